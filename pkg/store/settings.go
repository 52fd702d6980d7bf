package store

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/stephaneeybert/musicng-sub001/pkg/score"
	"github.com/stephaneeybert/musicng-sub001/pkg/storage"
)

// SettingsKey is the storage key of the settings blob.
const SettingsKey = "settings"

// Settings are the user preferences.
type Settings struct {
	AnimatedStave            bool   `yaml:"animatedStave" json:"animatedStave"`
	ShowKeyboard             bool   `yaml:"showKeyboard" json:"showKeyboard"`
	TempoBPM                 int    `yaml:"tempoBpm" json:"tempoBpm"`
	TimeSignatureNumerator   int    `yaml:"timeSignatureNumerator" json:"timeSignatureNumerator"`
	TimeSignatureDenominator int    `yaml:"timeSignatureDenominator" json:"timeSignatureDenominator"`
	MIDIOutPort              string `yaml:"midiOutPort,omitempty" json:"midiOutPort,omitempty"`
}

// DefaultSettings returns the settings used when nothing is stored.
func DefaultSettings() Settings {
	return Settings{
		AnimatedStave:            true,
		ShowKeyboard:             true,
		TempoBPM:                 int(score.DefaultTempo.Value),
		TimeSignatureNumerator:   score.CommonTime.Numerator,
		TimeSignatureDenominator: score.CommonTime.Denominator,
	}
}

// Context is the score context the settings describe.
func (s Settings) Context() score.Context {
	return score.Context{
		Tempo:     score.NewTempo(float64(s.TempoBPM)),
		Signature: score.TimeSignature{Numerator: s.TimeSignatureNumerator, Denominator: s.TimeSignatureDenominator},
		PPQ:       score.DefaultPPQ,
	}
}

// SettingsStore holds the settings and keeps them in a Storage.
type SettingsStore struct {
	*Store[Settings]
	storage storage.Storage
	log     *logrus.Entry
}

func NewSettingsStore(st storage.Storage) *SettingsStore {
	return &SettingsStore{
		Store:   New(DefaultSettings()),
		storage: st,
		log:     logrus.WithField("store", "settings"),
	}
}

// Settings returns the current settings.
func (s *SettingsStore) Settings() Settings {
	return s.State()
}

// LoadFromStorage publishes the stored settings, if any. The blob is
// decoded generically and every field is checked on its own; missing or
// malformed fields fall back to their default.
func (s *SettingsStore) LoadFromStorage() error {
	blob, ok, err := s.storage.Get(SettingsKey)
	if err != nil {
		return fmt.Errorf("load settings: %w", err)
	}
	if !ok {
		return nil
	}
	var raw map[string]any
	if err := yaml.Unmarshal(blob, &raw); err != nil {
		return fmt.Errorf("decode settings: %w", err)
	}
	s.SetState(CleanSettings(raw))
	return nil
}

// SetAndStoreSettings publishes settings, then persists them. A storage
// failure is returned; the published settings stay in place.
func (s *SettingsStore) SetAndStoreSettings(settings Settings) error {
	s.SetState(settings)
	blob, err := yaml.Marshal(settings)
	if err != nil {
		return fmt.Errorf("encode settings: %w", err)
	}
	if err := s.storage.Set(SettingsKey, blob); err != nil {
		return fmt.Errorf("store settings: %w", err)
	}
	return nil
}

// Delete restores the defaults and clears the stored copy. It always
// succeeds; a storage failure is only logged.
func (s *SettingsStore) Delete() bool {
	s.SetState(DefaultSettings())
	if err := s.storage.Delete(SettingsKey); err != nil {
		s.log.WithError(err).Warn("failed to delete stored settings")
	}
	return true
}

// CleanSettings builds Settings from a decoded blob, field by field.
func CleanSettings(raw map[string]any) Settings {
	s := DefaultSettings()
	if v, ok := raw["animatedStave"].(bool); ok {
		s.AnimatedStave = v
	}
	if v, ok := raw["showKeyboard"].(bool); ok {
		s.ShowKeyboard = v
	}
	if v, ok := intField(raw["tempoBpm"]); ok && v > 0 {
		s.TempoBPM = v
	}
	num, numOK := intField(raw["timeSignatureNumerator"])
	den, denOK := intField(raw["timeSignatureDenominator"])
	if numOK && denOK {
		if ts, err := score.NewTimeSignature(num, den); err == nil {
			s.TimeSignatureNumerator = ts.Numerator
			s.TimeSignatureDenominator = ts.Denominator
		}
	}
	if v, ok := raw["midiOutPort"].(string); ok {
		s.MIDIOutPort = v
	}
	return s
}

func intField(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case uint64:
		return int(n), true
	case float64:
		if n == float64(int(n)) {
			return int(n), true
		}
	}
	return 0, false
}
