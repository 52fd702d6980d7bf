package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"text/tabwriter"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	gomidi "gitlab.com/gomidi/midi/v2"

	"github.com/stephaneeybert/musicng-sub001/pkg/api"
	"github.com/stephaneeybert/musicng-sub001/pkg/midiio"
	"github.com/stephaneeybert/musicng-sub001/pkg/score"
	"github.com/stephaneeybert/musicng-sub001/pkg/session"
	"github.com/stephaneeybert/musicng-sub001/pkg/tui"
)

var scheduleCmd = &cobra.Command{
	Use:   "schedule <input.mid>",
	Short: "Print every note of a MIDI file with its transport time",
	Args:  cobra.ExactArgs(1),
	RunE:  runSchedule,
}

var playCmd = &cobra.Command{
	Use:   "play <input.mid>",
	Short: "Play a MIDI file on the MIDI output",
	Args:  cobra.ExactArgs(1),
	RunE:  runPlay,
}

var devicesCmd = &cobra.Command{
	Use:   "devices",
	Short: "List MIDI input and output ports",
	Args:  cobra.NoArgs,
	RunE:  runDevices,
}

var tuiCmd = &cobra.Command{
	Use:   "tui",
	Short: "Launch interactive terminal UI",
	RunE:  runTUI,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the API server",
	RunE:  runServe,
}

func runSchedule(cmd *cobra.Command, args []string) error {
	tracks, err := score.ImportSMFFile(args[0])
	if err != nil {
		return err
	}
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	for i, t := range tracks {
		fmt.Fprintf(w, "track %d\t%s\tchannel %d\tprogram %d\t%.3fs\n", i, t.Name, t.Channel, t.Instrument.Program, t.Seconds())
		fmt.Fprintln(w, "  cursor\tpitch\tvelocity\tlength\tstart\thold")
		for _, sn := range t.Schedule() {
			n := sn.Placed.Note
			fmt.Fprintf(w, "  %s\t%s\t%d\t%s\t%.3f\t%.3f\n",
				sn.Placed.Cursor, n.Pitch, n.Velocity, n.DurationNotation(), sn.Start, sn.Hold)
		}
	}
	return w.Flush()
}

// withSession runs fn while a session built from the configuration is
// running, and waits for the session to release everything.
func withSession(ctx context.Context, fn func(ctx context.Context, sess *session.Session) error) error {
	sess, err := session.NewFromConfig(cfg)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan error, 1)
	go func() { done <- sess.Run(ctx) }()

	err = fn(ctx, sess)
	cancel()
	return errors.Join(err, <-done)
}

func runPlay(cmd *cobra.Command, args []string) error {
	data, err := os.ReadFile(args[0])
	if err != nil {
		return err
	}
	if cfg.MIDIOutPort == "" {
		logrus.Warn("no MIDI output port configured, notes are only recorded")
	}

	ctx, stop := signalContext()
	defer stop()
	return withSession(ctx, func(ctx context.Context, sess *session.Session) error {
		st, _, err := sess.AddSoundtrack(ctx, session.SoundtrackName(args[0]), data)
		if err != nil {
			return err
		}
		fmt.Printf("Playing %s (%d tracks)\n", filepath.Base(args[0]), len(st.Tracks))
		err = sess.PlaySoundtrack(ctx, st.ID)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})
}

func runDevices(cmd *cobra.Command, args []string) error {
	ins, err := midiio.DefaultSource.Ins()
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, "Inputs:")
	for _, in := range ins {
		fmt.Fprintf(out, "  %s\n", in)
	}
	fmt.Fprintln(out, "Outputs:")
	for _, o := range gomidi.GetOutPorts() {
		fmt.Fprintf(out, "  %s\n", o)
	}
	return nil
}

func runTUI(cmd *cobra.Command, args []string) error {
	ctx, stop := signalContext()
	defer stop()
	return withSession(ctx, tui.Run)
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signalContext()
	defer stop()
	return withSession(ctx, func(ctx context.Context, sess *session.Session) error {
		fmt.Printf("Starting API server on port %d...\n", cfg.ServerPort)
		fmt.Printf("Swagger docs available at http://localhost:%d/swagger/index.html\n", cfg.ServerPort)
		return api.StartServer(ctx, cfg.ServerPort, sess)
	})
}
