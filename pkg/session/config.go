package session

import (
	"fmt"

	"github.com/stephaneeybert/musicng-sub001/pkg/audio"
	"github.com/stephaneeybert/musicng-sub001/pkg/config"
	"github.com/stephaneeybert/musicng-sub001/pkg/midiio"
	"github.com/stephaneeybert/musicng-sub001/pkg/storage"
	"github.com/stephaneeybert/musicng-sub001/pkg/store"
	"github.com/stephaneeybert/musicng-sub001/pkg/wakelock"
)

// OutPort picks the MIDI output port: the configured one, else the one
// saved in the user settings.
func OutPort(cfg config.Config, st storage.Storage) string {
	if cfg.MIDIOutPort != "" {
		return cfg.MIDIOutPort
	}
	settings := store.NewSettingsStore(st)
	if err := settings.LoadFromStorage(); err != nil {
		return ""
	}
	return settings.Settings().MIDIOutPort
}

// NewFromConfig builds a session on the storage directory, the registered
// MIDI driver and the chosen output port. Without an output port notes are
// only recorded.
func NewFromConfig(cfg config.Config) (*Session, error) {
	st := storage.NewDir(cfg.StorageDir)
	wakelock.SetDefault(wakelock.NewManager(wakelock.DetectBackend()))

	var synth audio.Synthesizer = audio.NewRecorder()
	if port := OutPort(cfg, st); port != "" {
		out, err := audio.NewMIDIOutByName(port, 0)
		if err != nil {
			return nil, fmt.Errorf("open MIDI output: %w", err)
		}
		synth = out
	}

	return New(Options{
		Storage: st,
		Synth:   synth,
		Manager: midiio.NewManager(midiio.DefaultSource, cfg.PollInterval),
		PPQ:     cfg.PPQ,
	}), nil
}
