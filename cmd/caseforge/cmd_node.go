package main

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/caseforge/caseforge/internal/models"
)

func newNodeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "node",
		Short: "Manage nodes",
	}
	cmd.AddCommand(nodeCreateCmd())
	cmd.AddCommand(nodeGetCmd())
	cmd.AddCommand(nodeUpdateCmd())
	cmd.AddCommand(nodeDeleteCmd())
	cmd.AddCommand(nodeListCmd())
	cmd.AddCommand(nodeHistoryCmd())
	cmd.AddCommand(nodeCommentCmd())
	cmd.AddCommand(nodeDetectionPointCmd())
	return cmd
}

func nodeCreateCmd() *cobra.Command {
	var actor string
	cmd := &cobra.Command{
		Use:   "create <request.json>",
		Short: "Create a node from a JSON request ('-' for stdin)",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			withEngine(func(ctx context.Context, e *engine) error {
				data, err := readInput(args[0])
				if err != nil {
					return err
				}

				var req models.CreateNodeRequest
				if err := json.Unmarshal(data, &req); err != nil {
					return err
				}

				node, _, err := e.nodes.CreateNode(ctx, req, actor)
				if err != nil {
					return err
				}

				output(node, node.UUID.String())
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&actor, "actor", "cli", "Actor recorded in history")
	return cmd
}

func nodeGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <uuid>",
		Short: "Get a node by UUID",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			withEngine(func(ctx context.Context, e *engine) error {
				id, err := uuid.Parse(args[0])
				if err != nil {
					return err
				}

				node, err := e.nodes.GetNode(ctx, id)
				if err != nil {
					return err
				}

				output(node, node.UUID.String())
				return nil
			})
		},
	}
}

func nodeUpdateCmd() *cobra.Command {
	var actor string
	cmd := &cobra.Command{
		Use:   "update <uuid> <request.json>",
		Short: "Update a node from a JSON request ('-' for stdin)",
		Args:  cobra.ExactArgs(2),
		Run: func(cmd *cobra.Command, args []string) {
			withEngine(func(ctx context.Context, e *engine) error {
				id, err := uuid.Parse(args[0])
				if err != nil {
					return err
				}

				data, err := readInput(args[1])
				if err != nil {
					return err
				}

				var req models.UpdateNodeRequest
				if err := json.Unmarshal(data, &req); err != nil {
					return err
				}

				node, err := e.nodes.UpdateNode(ctx, id, req, actor)
				if err != nil {
					return err
				}

				output(node, node.Version.String())
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&actor, "actor", "cli", "Actor recorded in history")
	return cmd
}

func nodeDeleteCmd() *cobra.Command {
	var actor string
	cmd := &cobra.Command{
		Use:   "delete <uuid>",
		Short: "Delete a node, its children, and its tree placements",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			withEngine(func(ctx context.Context, e *engine) error {
				id, err := uuid.Parse(args[0])
				if err != nil {
					return err
				}

				return e.nodes.DeleteNode(ctx, id, actor)
			})
		},
	}
	cmd.Flags().StringVar(&actor, "actor", "cli", "Actor recorded in history")
	return cmd
}

func nodeListCmd() *cobra.Command {
	var kind string
	var limit, offset int
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List nodes",
		Run: func(cmd *cobra.Command, args []string) {
			withEngine(func(ctx context.Context, e *engine) error {
				nodes, hasMore, err := e.nodes.ListNodes(ctx, kind, limit, offset)
				if err != nil {
					return err
				}

				if flagFmt == "table" {
					rows := make([][]string, 0, len(nodes))
					for _, n := range nodes {
						rows = append(rows, []string{
							n.UUID.String(), string(n.Kind), n.CreatedAt.Format("2006-01-02 15:04:05"),
						})
					}
					formatTable([]string{"UUID", "KIND", "CREATED"}, rows)
					return nil
				}

				output(map[string]any{"nodes": nodes, "has_more": hasMore}, "")
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&kind, "kind", "", "Filter by node kind")
	cmd.Flags().IntVar(&limit, "limit", 50, "Page size")
	cmd.Flags().IntVar(&offset, "offset", 0, "Page offset")
	return cmd
}

func nodeHistoryCmd() *cobra.Command {
	var limit, offset int
	cmd := &cobra.Command{
		Use:   "history <uuid>",
		Short: "Show the change history of a record, oldest first",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			withEngine(func(ctx context.Context, e *engine) error {
				id, err := uuid.Parse(args[0])
				if err != nil {
					return err
				}

				entries, hasMore, err := e.history.GetHistory(ctx, id, limit, offset)
				if err != nil {
					return err
				}

				output(map[string]any{"history": entries, "has_more": hasMore}, "")
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 50, "Page size")
	cmd.Flags().IntVar(&offset, "offset", 0, "Page offset")
	return cmd
}

func nodeCommentCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "comment",
		Short: "Manage node comments",
	}

	var actor string
	add := &cobra.Command{
		Use:   "add <node-uuid> <text>",
		Short: "Append a comment to a node",
		Args:  cobra.ExactArgs(2),
		Run: func(cmd *cobra.Command, args []string) {
			withEngine(func(ctx context.Context, e *engine) error {
				id, err := uuid.Parse(args[0])
				if err != nil {
					return err
				}

				node, err := e.nodes.AddComment(ctx, id, args[1], actor)
				if err != nil {
					return err
				}

				output(node, node.Version.String())
				return nil
			})
		},
	}
	add.Flags().StringVar(&actor, "actor", "cli", "Actor recorded in history")

	var delActor string
	del := &cobra.Command{
		Use:   "delete <comment-uuid>",
		Short: "Delete a comment from its node",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			withEngine(func(ctx context.Context, e *engine) error {
				id, err := uuid.Parse(args[0])
				if err != nil {
					return err
				}

				node, err := e.nodes.DeleteChildRecord(ctx, id, delActor)
				if err != nil {
					return err
				}

				output(node, node.Version.String())
				return nil
			})
		},
	}
	del.Flags().StringVar(&delActor, "actor", "cli", "Actor recorded in history")

	cmd.AddCommand(add)
	cmd.AddCommand(del)
	return cmd
}

func nodeDetectionPointCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "detection-point",
		Short: "Manage node detection points",
	}

	var actor string
	add := &cobra.Command{
		Use:   "add <node-uuid> <value>",
		Short: "Append a detection point to a node",
		Args:  cobra.ExactArgs(2),
		Run: func(cmd *cobra.Command, args []string) {
			withEngine(func(ctx context.Context, e *engine) error {
				id, err := uuid.Parse(args[0])
				if err != nil {
					return err
				}

				node, err := e.nodes.AddDetectionPoint(ctx, id, args[1], actor)
				if err != nil {
					return err
				}

				output(node, node.Version.String())
				return nil
			})
		},
	}
	add.Flags().StringVar(&actor, "actor", "cli", "Actor recorded in history")

	cmd.AddCommand(add)
	return cmd
}
