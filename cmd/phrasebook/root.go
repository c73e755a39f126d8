package main

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/conorfennell/phrasebook/internal/cards"
	"github.com/conorfennell/phrasebook/internal/config"
	"github.com/conorfennell/phrasebook/internal/domain"
	"github.com/conorfennell/phrasebook/internal/logging"
	"github.com/conorfennell/phrasebook/internal/store"
)

// app holds what every subcommand needs once flags are parsed.
type app struct {
	out     io.Writer
	cfg     config.Config
	logger  *zap.Logger
	manager *store.Manager
	repo    *cards.Repository
}

// run builds the command tree, executes args against it and releases the
// store and logger afterwards, whether or not the command failed.
func run(ctx context.Context, args []string, out io.Writer) error {
	a := &app{out: out}
	defer a.close()

	root := a.rootCmd()
	root.SetArgs(args)
	root.SetOut(out)
	return root.ExecuteContext(ctx)
}

func (a *app) rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "phrasebook",
		Short: "Practise short recorded musical phrases",
		Long: `phrasebook keeps a library of short audio phrases ("cards"), each with
a trim window, a tempo goal, mastery per practice mode and a log of practice
sessions. Everything lives in one local SQLite file.`,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: a.setup,
	}
	config.RegisterFlags(root.PersistentFlags())

	root.AddCommand(
		a.listCmd(),
		a.showCmd(),
		a.addCmd(),
		a.editCmd(),
		a.deleteCmd(),
		a.exportAudioCmd(),
		a.logCmd(),
		a.sessionsCmd(),
		a.previewCmd(),
		a.importCmd(),
		a.backupCmd(),
	)
	return root
}

func (a *app) setup(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(cmd.Flags())
	if err != nil {
		return err
	}
	a.cfg = cfg

	logger, err := logging.New(cfg.Log)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	a.logger = logger

	a.manager = store.NewManager(cfg.Store, logger)
	db, err := a.manager.Initialize(cmd.Context())
	if err != nil {
		return err
	}
	a.repo = cards.NewRepository(db, logger, cards.WithMaxSessions(cfg.Sessions.MaxPerCard))
	return nil
}

func (a *app) close() {
	if a.manager != nil {
		if err := a.manager.Close(); err != nil {
			a.logger.Warn("failed to close store", zap.Error(err))
		}
	}
	if a.logger != nil {
		_ = a.logger.Sync()
	}
}

var errCardNotFound = errors.New("card not found")

// card loads id or fails with errCardNotFound.
func (a *app) card(ctx context.Context, id string) (*domain.Card, error) {
	card, err := a.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if card == nil {
		return nil, fmt.Errorf("%w: %s", errCardNotFound, id)
	}
	return card, nil
}
