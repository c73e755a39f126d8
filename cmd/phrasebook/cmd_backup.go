package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/conorfennell/phrasebook/internal/backup"
)

func (a *app) backupCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "backup",
		Short: "Commit a snapshot of the library to a local git repository",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			res, err := backup.New(a.cfg.Backup, a.repo, a.logger).Run(cmd.Context())
			if err != nil {
				return err
			}
			if res.Commit.IsZero() {
				fmt.Fprintf(a.out, "%d cards, no changes\n", res.Cards)
				return nil
			}
			fmt.Fprintf(a.out, "%d cards, committed %s\n", res.Cards, res.Commit)
			return nil
		},
	}
}
