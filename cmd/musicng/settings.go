package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/stephaneeybert/musicng-sub001/pkg/score"
	"github.com/stephaneeybert/musicng-sub001/pkg/storage"
	"github.com/stephaneeybert/musicng-sub001/pkg/store"
)

var (
	setTempo         int
	setNumerator     int
	setDenominator   int
	setAnimatedStave bool
	setShowKeyboard  bool
	setMIDIOut       string
)

var settingsCmd = &cobra.Command{
	Use:   "settings",
	Short: "Show or change the stored user settings",
}

var settingsShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the current settings",
	Args:  cobra.NoArgs,
	RunE:  runSettingsShow,
}

var settingsSetCmd = &cobra.Command{
	Use:   "set",
	Short: "Change some settings and store them",
	Args:  cobra.NoArgs,
	RunE:  runSettingsSet,
}

var settingsResetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Restore the default settings",
	Args:  cobra.NoArgs,
	RunE:  runSettingsReset,
}

func init() {
	f := settingsSetCmd.Flags()
	f.IntVar(&setTempo, "tempo", 0, "Tempo in beats per minute")
	f.IntVar(&setNumerator, "numerator", 0, "Time signature numerator")
	f.IntVar(&setDenominator, "denominator", 0, "Time signature denominator")
	f.BoolVar(&setAnimatedStave, "animated-stave", true, "Animate the stave while playing")
	f.BoolVar(&setShowKeyboard, "show-keyboard", true, "Show a keyboard per device")
	f.StringVar(&setMIDIOut, "midi-out-port", "", "Preferred MIDI output port")

	settingsCmd.AddCommand(settingsShowCmd)
	settingsCmd.AddCommand(settingsSetCmd)
	settingsCmd.AddCommand(settingsResetCmd)
}

// openSettings loads the settings store from the storage directory. The
// CLI uses it from a single goroutine, so no session is needed.
func openSettings() (*store.SettingsStore, error) {
	s := store.NewSettingsStore(storage.NewDir(cfg.StorageDir))
	if err := s.LoadFromStorage(); err != nil {
		return nil, err
	}
	return s, nil
}

func printSettings(cmd *cobra.Command, s store.Settings) error {
	out, err := yaml.Marshal(s)
	if err != nil {
		return err
	}
	_, err = cmd.OutOrStdout().Write(out)
	return err
}

func runSettingsShow(cmd *cobra.Command, args []string) error {
	s, err := openSettings()
	if err != nil {
		return err
	}
	return printSettings(cmd, s.Settings())
}

func runSettingsSet(cmd *cobra.Command, args []string) error {
	s, err := openSettings()
	if err != nil {
		return err
	}
	next := s.Settings()
	flags := cmd.Flags()
	if flags.Changed("tempo") {
		if setTempo <= 0 {
			return fmt.Errorf("tempo %d: %w", setTempo, score.ErrInvalidArgument)
		}
		next.TempoBPM = setTempo
	}
	if flags.Changed("numerator") {
		next.TimeSignatureNumerator = setNumerator
	}
	if flags.Changed("denominator") {
		next.TimeSignatureDenominator = setDenominator
	}
	if _, err := score.NewTimeSignature(next.TimeSignatureNumerator, next.TimeSignatureDenominator); err != nil {
		return err
	}
	if flags.Changed("animated-stave") {
		next.AnimatedStave = setAnimatedStave
	}
	if flags.Changed("show-keyboard") {
		next.ShowKeyboard = setShowKeyboard
	}
	if flags.Changed("midi-out-port") {
		next.MIDIOutPort = setMIDIOut
	}
	if err := s.SetAndStoreSettings(next); err != nil {
		return err
	}
	return printSettings(cmd, next)
}

func runSettingsReset(cmd *cobra.Command, args []string) error {
	s := store.NewSettingsStore(storage.NewDir(cfg.StorageDir))
	s.Delete()
	fmt.Fprintln(cmd.OutOrStdout(), "Settings restored to defaults")
	return nil
}
