// Package main is the entry point for the musicng CLI
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/stephaneeybert/musicng-sub001/pkg/config"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

var (
	configPath   string
	logLevel     string
	storageDir   string
	midiOutPort  string
	pollInterval time.Duration
	serverPort   int

	cfg config.Config
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "musicng",
	Short: "Score timing, MIDI devices and soundtracks from the terminal",
	Long: `musicng resolves musical scores to transport time and plays them,
keeping connected MIDI keyboards, loaded soundtracks and user settings
in observable stores.

Examples:
  musicng schedule song.mid
  musicng play song.mid --midi-out "FLUID Synth"
  musicng devices
  musicng settings set --tempo 96
  musicng tui
  musicng serve --port 8080`,
	Version:           fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
	PersistentPreRunE: loadConfig,
	SilenceUsage:      true,
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", config.DefaultPath(), "Configuration file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&storageDir, "storage", "", "Directory holding the stored settings")
	rootCmd.PersistentFlags().StringVar(&midiOutPort, "midi-out", "", "MIDI output port (substring match)")
	rootCmd.PersistentFlags().DurationVar(&pollInterval, "poll", 0, "MIDI device polling interval")

	// serve command
	serveCmd.Flags().IntVarP(&serverPort, "port", "p", 0, "Server port")

	// Add commands
	rootCmd.AddCommand(scheduleCmd)
	rootCmd.AddCommand(playCmd)
	rootCmd.AddCommand(devicesCmd)
	rootCmd.AddCommand(settingsCmd)
	rootCmd.AddCommand(tuiCmd)
	rootCmd.AddCommand(serveCmd)
}

// loadConfig reads the configuration file; flags set on the command line
// win over it.
func loadConfig(cmd *cobra.Command, args []string) error {
	logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	var err error
	cfg, err = config.Load(configPath)
	if err != nil {
		return err
	}
	flags := cmd.Flags()
	if flags.Changed("log-level") {
		cfg.LogLevel = logLevel
	}
	if flags.Changed("storage") {
		cfg.StorageDir = storageDir
	}
	if flags.Changed("midi-out") {
		cfg.MIDIOutPort = midiOutPort
	}
	if flags.Changed("poll") {
		cfg.PollInterval = pollInterval
	}
	if flags.Changed("port") {
		cfg.ServerPort = serverPort
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	return cfg.ApplyLogLevel()
}

// signalContext is cancelled on interrupt.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}
