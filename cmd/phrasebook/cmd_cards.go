package main

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/conorfennell/phrasebook/internal/audiofile"
	"github.com/conorfennell/phrasebook/internal/domain"
)

func (a *app) listCmd() *cobra.Command {
	var tag string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List cards, most recently updated first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			all, err := a.repo.ListAll(cmd.Context())
			if err != nil {
				return err
			}
			domain.SortByUpdatedDesc(all)

			w := tabwriter.NewWriter(a.out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tTITLE\tWINDOW\tMAX BPM\tFIFTHS\tCHROMATIC\tUPDATED")
			for _, c := range all {
				if tag != "" && !slices.Contains(c.Tags, tag) {
					continue
				}
				fmt.Fprintf(w, "%s\t%s\t%g-%gs\t%d\t%s\t%s\t%s\n",
					c.ID, c.Title, c.Trim.StartSec, c.Trim.EndSec, c.MaxTempo(),
					c.Mastery.CircleOfFifths, c.Mastery.Chromatic,
					c.UpdatedAt.Local().Format(time.DateTime))
			}
			return w.Flush()
		},
	}
	cmd.Flags().StringVar(&tag, "tag", "", "Only list cards carrying this tag")
	return cmd
}

func (a *app) showCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <card-id>",
		Short: "Print a card and its session log as YAML",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			card, err := a.card(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			archived, err := a.repo.ArchivedSessions(cmd.Context(), card.ID)
			if err != nil {
				return err
			}

			doc, err := yaml.Marshal(card)
			if err != nil {
				return err
			}
			if _, err := a.out.Write(doc); err != nil {
				return err
			}
			fmt.Fprintf(a.out, "max_tempo: %d\narchived_sessions: %d\n", card.MaxTempo(), len(archived))
			return nil
		},
	}
}

// cardFlags are the editable fields shared by add and edit.
type cardFlags struct {
	title     string
	source    string
	comments  string
	tags      []string
	audio     string
	start     float64
	end       float64
	bpm       int
	fifths    string
	chromatic string
}

func (f *cardFlags) register(cmd *cobra.Command) {
	fs := cmd.Flags()
	fs.StringVar(&f.title, "title", "", "Card title")
	fs.StringVar(&f.source, "source", "", "Where the phrase comes from")
	fs.StringVar(&f.comments, "comments", "", "Free-form notes")
	fs.StringSliceVar(&f.tags, "tag", nil, "Tag, repeatable")
	fs.StringVar(&f.audio, "audio", "", "Path to the recorded audio")
	fs.Float64Var(&f.start, "start", 0, "Trim window start in seconds")
	fs.Float64Var(&f.end, "end", 0, "Trim window end in seconds")
	fs.IntVar(&f.bpm, "bpm", 0, "Target tempo")
	fs.StringVar(&f.fifths, "circle-of-fifths", "", "Mastery in circle-of-fifths mode: not_started, in_progress or mastered")
	fs.StringVar(&f.chromatic, "chromatic", "", "Mastery in chromatic mode: not_started, in_progress or mastered")
}

// apply copies every flag the user set onto card.
func (f *cardFlags) apply(cmd *cobra.Command, card *domain.Card) error {
	fs := cmd.Flags()
	if fs.Changed("title") {
		card.Title = f.title
	}
	if fs.Changed("source") {
		card.Source = f.source
	}
	if fs.Changed("comments") {
		card.Comments = f.comments
	}
	if fs.Changed("tag") {
		card.Tags = f.tags
	}
	if fs.Changed("start") {
		card.Trim.StartSec = f.start
	}
	if fs.Changed("end") {
		card.Trim.EndSec = f.end
	}
	if fs.Changed("bpm") {
		card.BPMTarget = f.bpm
	}
	if fs.Changed("circle-of-fifths") {
		s, err := domain.ParseMasteryStatus(f.fifths)
		if err != nil {
			return err
		}
		card.Mastery.CircleOfFifths = s
	}
	if fs.Changed("chromatic") {
		s, err := domain.ParseMasteryStatus(f.chromatic)
		if err != nil {
			return err
		}
		card.Mastery.Chromatic = s
	}
	return nil
}

// payload reads --audio when it was given.
func (f *cardFlags) payload(cmd *cobra.Command) ([]byte, error) {
	if !cmd.Flags().Changed("audio") {
		return nil, nil
	}
	b, _, err := audiofile.Read(f.audio)
	return b, err
}

func (a *app) addCmd() *cobra.Command {
	var f cardFlags
	cmd := &cobra.Command{
		Use:   "add --title <title> --audio <file> --start <sec> --end <sec>",
		Short: "Create a card from a recording",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			payload, err := f.payload(cmd)
			if err != nil {
				return err
			}
			card := domain.NewCard("", domain.Trim{}, time.Now())
			if err := f.apply(cmd, &card); err != nil {
				return err
			}
			if err := a.repo.Save(cmd.Context(), &card, payload); err != nil {
				return err
			}
			fmt.Fprintln(a.out, card.ID)
			return nil
		},
	}
	f.register(cmd)
	_ = cmd.MarkFlagRequired("audio")
	_ = cmd.MarkFlagRequired("end")
	return cmd
}

func (a *app) editCmd() *cobra.Command {
	var f cardFlags
	cmd := &cobra.Command{
		Use:   "edit <card-id>",
		Short: "Change a card's metadata, trim window, mastery or recording",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			card, err := a.card(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			payload, err := f.payload(cmd)
			if err != nil {
				return err
			}
			if err := f.apply(cmd, card); err != nil {
				return err
			}
			return a.repo.Save(cmd.Context(), card, payload)
		},
	}
	f.register(cmd)
	return cmd
}

func (a *app) deleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <card-id>...",
		Short: "Delete cards together with their audio and archived sessions",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, id := range args {
				if err := a.repo.Delete(cmd.Context(), id); err != nil {
					return err
				}
			}
			return nil
		},
	}
}

func (a *app) exportAudioCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "export-audio <card-id> <file|->",
		Short: "Write a card's recording to a file, or stdout with -",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			payload, err := a.repo.GetPayload(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if payload == nil {
				return fmt.Errorf("%w: %s", errCardNotFound, args[0])
			}

			dest := args[1]
			if dest == "-" {
				_, err := a.out.Write(payload)
				return err
			}
			if filepath.Ext(dest) == "" {
				dest += audiofile.Extension(payload)
			}
			if err := os.WriteFile(dest, payload, 0o644); err != nil {
				return fmt.Errorf("failed to write %s: %w", dest, err)
			}
			fmt.Fprintln(a.out, dest)
			return nil
		},
	}
}
