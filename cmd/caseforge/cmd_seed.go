package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"

	"github.com/caseforge/caseforge/internal/models"
)

// seedFile is the YAML layout for vocabulary seeding: one list of values per
// vocabulary kind.
type seedFile struct {
	Queues          []string `yaml:"queues"`
	Tags            []string `yaml:"tags"`
	Directives      []string `yaml:"directives"`
	Threats         []string `yaml:"threats"`
	ThreatActors    []string `yaml:"threat_actors"`
	ObservableTypes []string `yaml:"observable_types"`
}

// kindValues flattens the file into per-kind value lists.
func (f *seedFile) kindValues() map[models.VocabKind][]string {
	return map[models.VocabKind][]string{
		models.VocabQueue:          f.Queues,
		models.VocabTag:            f.Tags,
		models.VocabDirective:      f.Directives,
		models.VocabThreat:         f.Threats,
		models.VocabThreatActor:    f.ThreatActors,
		models.VocabObservableType: f.ObservableTypes,
	}
}

func parseSeedFile(path string) (*seedFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading seed file: %w", err)
	}

	var f seedFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parsing seed file: %w", err)
	}

	return &f, nil
}

func newSeedCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "seed <file.yaml>",
		Short: "Seed controlled vocabularies from a YAML file",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			withEngine(func(ctx context.Context, e *engine) error {
				f, err := parseSeedFile(args[0])
				if err != nil {
					return err
				}

				g, ctx := errgroup.WithContext(ctx)
				g.SetLimit(e.cfg.SeedWorkers)

				var total int
				for kind, values := range f.kindValues() {
					for _, value := range values {
						kind, value := kind, value
						total++
						g.Go(func() error {
							_, err := e.vocab.CreateValue(ctx, kind, value)
							return err
						})
					}
				}

				if err := g.Wait(); err != nil {
					return err
				}

				e.log.WithField("values", total).Info("vocabulary seeded")
				return nil
			})
		},
	}
}
