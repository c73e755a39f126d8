package main

import (
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/conorfennell/phrasebook/internal/domain"
	"github.com/conorfennell/phrasebook/internal/playback"
)

func (a *app) logCmd() *cobra.Command {
	var (
		mode      string
		tempos    []int
		errorRate float64
		notes     string
	)
	cmd := &cobra.Command{
		Use:   "log <card-id>",
		Short: "Record a practice session on a card",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := domain.ParsePracticeMode(mode)
			if err != nil {
				return err
			}
			card, err := a.card(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			s := domain.NewSession(card.ID, m, time.Now())
			s.TemposAchieved = tempos
			s.ErrorRate = errorRate
			s.Notes = notes
			if err := a.repo.AppendSession(cmd.Context(), card, s); err != nil {
				return err
			}
			fmt.Fprintf(a.out, "logged %s session, max tempo now %d\n", m, card.MaxTempo())
			return nil
		},
	}
	cmd.Flags().StringVar(&mode, "mode", string(domain.ModeFree), "Practice mode: circleOfFifths, chromatic or free")
	cmd.Flags().IntSliceVar(&tempos, "tempo", nil, "Tempo reached, repeatable")
	cmd.Flags().Float64Var(&errorRate, "error-rate", 0, "Estimated error rate in percent")
	cmd.Flags().StringVar(&notes, "notes", "", "Free-form notes")
	return cmd
}

func (a *app) sessionsCmd() *cobra.Command {
	var archived bool
	cmd := &cobra.Command{
		Use:   "sessions <card-id>",
		Short: "List a card's practice sessions, oldest first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			card, err := a.card(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			sessions := card.Sessions
			if archived {
				older, err := a.repo.ArchivedSessions(cmd.Context(), card.ID)
				if err != nil {
					return err
				}
				sessions = append(older, sessions...)
			}

			w := tabwriter.NewWriter(a.out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "DATE\tMODE\tTEMPOS\tERRORS\tNOTES")
			for _, s := range sessions {
				tempos := make([]string, len(s.TemposAchieved))
				for i, t := range s.TemposAchieved {
					tempos[i] = fmt.Sprint(t)
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%g%%\t%s\n",
					s.Date.Local().Format(time.DateTime), s.Mode, strings.Join(tempos, ","), s.ErrorRate, s.Notes)
			}
			return w.Flush()
		},
	}
	cmd.Flags().BoolVar(&archived, "archived", false, "Include sessions moved to the archive")
	return cmd
}

func (a *app) previewCmd() *cobra.Command {
	var start, end float64
	cmd := &cobra.Command{
		Use:   "preview <card-id>",
		Short: "Run a card's trim window on a silent clock and report where it stopped",
		Long: `preview drives the segment controller with a silent player whose playhead
follows the wall clock. It is useful to check a trim window's length and the
stop behaviour without an audio device.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			card, err := a.card(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if !cmd.Flags().Changed("start") {
				start = card.Trim.StartSec
			}
			if !cmd.Flags().Changed("end") {
				end = card.Trim.EndSec
			}

			h := playback.NewPolledHandle(playback.NewClockPlayer(0), a.cfg.Playback.PollInterval)
			ctl := playback.NewController(a.logger)
			seg, err := ctl.Start(h, start, end)
			if err != nil {
				return err
			}

			select {
			case <-seg.Done():
			case <-cmd.Context().Done():
				ctl.Cancel()
			}
			a.logger.Debug("preview finished", zap.String("card_id", card.ID), zap.Stringer("state", seg.State()))

			if seg.State() == playback.Stopped {
				fmt.Fprintf(a.out, "%s: stopped at %.3fs (window %g-%gs)\n", seg.State(), seg.StoppedAt(), start, end)
			} else {
				fmt.Fprintf(a.out, "%s\n", seg.State())
			}
			return nil
		},
	}
	cmd.Flags().Float64Var(&start, "start", 0, "Override the window start in seconds")
	cmd.Flags().Float64Var(&end, "end", 0, "Override the window end in seconds")
	return cmd
}
