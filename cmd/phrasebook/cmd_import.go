package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/conorfennell/phrasebook/internal/audiofile"
	"github.com/conorfennell/phrasebook/internal/digest"
	"github.com/conorfennell/phrasebook/internal/manifest"
)

func (a *app) importCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "import <manifest.yaml>",
		Short: "Create cards listed in a YAML manifest",
		Long: `import creates one card per manifest entry. Entries matching an existing
card's title, source and trim window are skipped, so a manifest can be
imported again after it grew.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			m, err := manifest.ParseFile(args[0])
			if err != nil {
				return err
			}

			existing, err := a.repo.ListAll(ctx)
			if err != nil {
				return err
			}
			seen := make(map[string]bool, len(existing))
			for _, c := range existing {
				seen[digest.Card(c)] = true
			}

			var imported, skipped int
			for _, e := range m.Cards {
				card := e.Card(time.Now())
				key := digest.Card(card)
				if seen[key] {
					a.logger.Info("card already present, skipping", zap.String("title", e.Title))
					skipped++
					continue
				}

				payload, _, err := audiofile.Read(m.AudioPath(e))
				if err != nil {
					return fmt.Errorf("entry %q: %w", e.Title, err)
				}
				if err := a.repo.Save(ctx, &card, payload); err != nil {
					return fmt.Errorf("entry %q: %w", e.Title, err)
				}
				seen[key] = true
				imported++
			}

			a.logger.Info("import complete",
				zap.String("manifest", args[0]),
				zap.Int("imported", imported),
				zap.Int("skipped", skipped),
			)
			fmt.Fprintf(a.out, "imported %d, skipped %d\n", imported, skipped)
			return nil
		},
	}
}
