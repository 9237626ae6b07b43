package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/caseforge/caseforge/internal/models"
)

func newVocabCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "vocab",
		Short: "Manage controlled vocabularies",
	}
	cmd.AddCommand(vocabAddCmd())
	cmd.AddCommand(vocabListCmd())
	return cmd
}

func vocabAddCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "add <kind> <value>",
		Short: "Register a value in a controlled vocabulary",
		Args:  cobra.ExactArgs(2),
		Run: func(cmd *cobra.Command, args []string) {
			withEngine(func(ctx context.Context, e *engine) error {
				kind, err := models.ParseVocabKind(args[0])
				if err != nil {
					return err
				}

				v, err := e.vocab.CreateValue(ctx, kind, args[1])
				if err != nil {
					return err
				}

				output(v, v.Value)
				return nil
			})
		},
	}
}

func vocabListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list <kind>",
		Short: "List all values of a controlled vocabulary",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			withEngine(func(ctx context.Context, e *engine) error {
				kind, err := models.ParseVocabKind(args[0])
				if err != nil {
					return err
				}

				values, err := e.vocab.ListValues(ctx, kind)
				if err != nil {
					return err
				}

				if flagFmt == "table" {
					rows := make([][]string, 0, len(values))
					for _, v := range values {
						rows = append(rows, []string{string(v.Kind), v.Value})
					}
					formatTable([]string{"KIND", "VALUE"}, rows)
					return nil
				}

				output(map[string]any{"values": values}, "")
				return nil
			})
		},
	}
}
