package store

import (
	"errors"
	"testing"

	"github.com/stephaneeybert/musicng-sub001/pkg/midiio"
)

type fakeHandle struct {
	released int
	err      error
}

func (h *fakeHandle) Release() error {
	h.released++
	return h.err
}

type fakeKeyboard struct {
	fakeHandle
}

func (k *fakeKeyboard) ElementID() string   { return "fake" }
func (k *fakeKeyboard) PressKey(...uint8)   {}
func (k *fakeKeyboard) UnpressKey(...uint8) {}
func (k *fakeKeyboard) UnpressAll()         {}

type fakeVoice struct {
	fakeHandle
}

func (v *fakeVoice) Channel() uint8 { return 0 }

func TestDeviceStoreAddNormalizes(t *testing.T) {
	s := NewDeviceStore()
	if !s.Add(Device{ID: "Device A", Name: "first"}) {
		t.Fatal("first Add() = false")
	}
	if s.Add(Device{ID: "DeviceA", Name: "second"}) {
		t.Error("second Add() with the same key = true")
	}

	devices := s.State()
	if len(devices) != 1 {
		t.Fatalf("len = %d, want 1", len(devices))
	}
	if devices[0].ID != "DeviceA" || devices[0].Name != "first" {
		t.Errorf("device = %+v, want id DeviceA and the first name", devices[0])
	}
	if _, ok := s.Get("Devi ceA"); !ok {
		t.Error("Get() with spaces did not find the device")
	}
}

func TestDeviceStoreAddPublishesOnlyOnChange(t *testing.T) {
	s := NewDeviceStore()
	var published int
	s.Subscribe(func([]Device) { published++ })

	s.Add(Device{ID: "x"})
	s.Add(Device{ID: " x "})
	if published != 2 {
		t.Errorf("published = %d, want initial + one add", published)
	}
}

func TestDeviceStoreDeleteReleasesOnce(t *testing.T) {
	s := NewDeviceStore()
	stops := 0
	kb := &fakeKeyboard{}
	v := &fakeVoice{}
	s.Add(Device{
		ID:           "Keystation",
		Keyboard:     kb,
		Synth:        v,
		Subscription: midiio.NewSubscription(func() { stops++ }),
	})

	if err := s.Delete("Key station"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if err := s.Delete("Keystation"); err != nil {
		t.Fatalf("second Delete() error = %v", err)
	}
	if stops != 1 || kb.released != 1 || v.released != 1 {
		t.Errorf("stops = %d, keyboard releases = %d, synth releases = %d, want 1 each", stops, kb.released, v.released)
	}
	if s.Len() != 0 {
		t.Errorf("Len() = %d after Delete", s.Len())
	}
}

func TestDeviceStoreDeleteUnknownIsNoop(t *testing.T) {
	s := NewDeviceStore()
	s.Add(Device{ID: "a"})
	var published int
	s.Subscribe(func([]Device) { published++ })

	if err := s.Delete("b"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if published != 1 || s.Len() != 1 {
		t.Errorf("published = %d, Len() = %d, want nothing changed", published, s.Len())
	}
}

func TestDeviceStoreDeleteRemovesDespiteReleaseError(t *testing.T) {
	s := NewDeviceStore()
	boom := errors.New("boom")
	s.Add(Device{ID: "a", Keyboard: &fakeKeyboard{fakeHandle{err: boom}}})

	if err := s.Delete("a"); !errors.Is(err, boom) {
		t.Errorf("Delete() error = %v, want %v", err, boom)
	}
	if s.Len() != 0 {
		t.Error("device kept after a failed release")
	}
}

func TestDeviceStoreDeleteAll(t *testing.T) {
	s := NewDeviceStore()
	var voices []*fakeVoice
	for _, id := range []string{"a", "b", "c"} {
		v := &fakeVoice{}
		voices = append(voices, v)
		s.Add(Device{ID: id, Synth: v})
	}
	if err := s.DeleteAll(); err != nil {
		t.Fatalf("DeleteAll() error = %v", err)
	}
	for i, v := range voices {
		if v.released != 1 {
			t.Errorf("voice %d released %d times", i, v.released)
		}
	}
	if s.Len() != 0 {
		t.Errorf("Len() = %d after DeleteAll", s.Len())
	}
}

func TestDeviceStoreMute(t *testing.T) {
	s := NewDeviceStore()
	s.Add(Device{ID: "a"})
	var published int
	s.Subscribe(func([]Device) { published++ })

	s.Unmute("a")
	s.Mute("a")
	s.Mute("a")
	if published != 2 {
		t.Errorf("published = %d, want initial + one mute", published)
	}
	if d, _ := s.Get("a"); !d.Muted {
		t.Error("device not muted")
	}
	if s.Mute("missing") {
		t.Error("Mute() on unknown device = true")
	}
}

func TestDeviceStoreSetHandles(t *testing.T) {
	s := NewDeviceStore()
	s.Add(Device{ID: "a"})
	before := s.State()

	first := &fakeKeyboard{}
	second := &fakeKeyboard{}
	if ok, err := s.SetDeviceKeyboard("a", first); !ok || err != nil {
		t.Fatalf("SetDeviceKeyboard() = %v, %v", ok, err)
	}
	s.SetDeviceKeyboard("a", first)
	if first.released != 0 {
		t.Error("setting the same keyboard released it")
	}
	s.SetDeviceKeyboard("a", second)
	if first.released != 1 {
		t.Errorf("replaced keyboard released %d times, want 1", first.released)
	}
	s.SetDeviceKeyboard("a", nil)
	if second.released != 1 {
		t.Errorf("cleared keyboard released %d times, want 1", second.released)
	}
	if d, _ := s.Get("a"); d.Keyboard != nil {
		t.Error("keyboard still set after nil")
	}

	v := &fakeVoice{}
	s.SetDeviceSynth("a", v)
	s.SetDeviceSynth("a", nil)
	if v.released != 1 {
		t.Errorf("cleared synth released %d times, want 1", v.released)
	}

	stops := 0
	s.SetDeviceSubscription("a", midiio.NewSubscription(func() { stops++ }))
	s.SetDeviceSubscription("a", nil)
	if stops != 1 {
		t.Errorf("cleared subscription stopped %d times, want 1", stops)
	}

	if before[0].Keyboard != nil {
		t.Error("published snapshot was modified")
	}
	if ok, _ := s.SetDeviceKeyboard("missing", &fakeKeyboard{}); ok {
		t.Error("SetDeviceKeyboard() on unknown device = true")
	}
}
