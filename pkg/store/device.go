package store

import (
	"errors"

	"github.com/stephaneeybert/musicng-sub001/pkg/audio"
	"github.com/stephaneeybert/musicng-sub001/pkg/keyboard"
	"github.com/stephaneeybert/musicng-sub001/pkg/midiio"
)

// Device is a connected MIDI input. The handles are owned by the store
// entry: only the DeviceStore replaces or releases them.
type Device struct {
	ID           string
	Name         string
	Muted        bool
	Keyboard     keyboard.Keyboard
	Synth        audio.Voice
	Subscription *midiio.Subscription
}

// release stops the subscription first, then frees the widget and voice.
func (d *Device) release() error {
	if d.Subscription != nil {
		d.Subscription.Stop()
	}
	var errs []error
	if d.Keyboard != nil {
		errs = append(errs, d.Keyboard.Release())
	}
	if d.Synth != nil {
		errs = append(errs, d.Synth.Release())
	}
	return errors.Join(errs...)
}

// DeviceStore is the live list of connected devices.
type DeviceStore struct {
	items keyed[Device]
}

func NewDeviceStore() *DeviceStore {
	return &DeviceStore{items: newKeyed(
		func(d *Device) *string { return &d.ID },
		(*Device).release,
	)}
}

// State returns the current device list. The slice must not be modified.
func (s *DeviceStore) State() []Device {
	return s.items.State()
}

// Subscribe observes the device list.
func (s *DeviceStore) Subscribe(fn func([]Device)) *Subscription[[]Device] {
	return s.items.Subscribe(fn)
}

// Len is the number of devices.
func (s *DeviceStore) Len() int {
	return len(s.items.State())
}

// Get returns the device whose key matches id.
func (s *DeviceStore) Get(id string) (Device, bool) {
	return s.items.get(id)
}

// Add appends d under its normalized id. It does nothing and returns false
// when a device with the same key is already present.
func (s *DeviceStore) Add(d Device) bool {
	return s.items.add(d)
}

// Delete releases the device handles and removes it. Unknown ids are
// ignored. Release errors are returned but the device is removed anyway.
func (s *DeviceStore) Delete(id string) error {
	return s.items.remove(id)
}

// DeleteAll releases and removes every device.
func (s *DeviceStore) DeleteAll() error {
	return s.items.removeAll()
}

// Mute marks the device muted; nothing is published when it already is.
func (s *DeviceStore) Mute(id string) bool {
	return s.setMuted(id, true)
}

// Unmute clears the muted flag; nothing is published when it is not set.
func (s *DeviceStore) Unmute(id string) bool {
	return s.setMuted(id, false)
}

func (s *DeviceStore) setMuted(id string, muted bool) bool {
	return s.items.update(id, func(d *Device) bool {
		if d.Muted == muted {
			return false
		}
		d.Muted = muted
		return true
	})
}

// SetDeviceKeyboard gives the keyboard to the device, releasing the one it
// replaces. A nil keyboard releases the current one. It reports false, and
// takes no ownership, when the device is unknown.
func (s *DeviceStore) SetDeviceKeyboard(id string, kb keyboard.Keyboard) (bool, error) {
	var err error
	found := s.items.update(id, func(d *Device) bool {
		err = releaseReplaced(d.Keyboard, kb)
		d.Keyboard = kb
		return true
	})
	return found, err
}

// SetDeviceSynth gives the voice to the device, releasing the one it
// replaces. A nil voice releases the current one.
func (s *DeviceStore) SetDeviceSynth(id string, v audio.Voice) (bool, error) {
	var err error
	found := s.items.update(id, func(d *Device) bool {
		err = releaseReplaced(d.Synth, v)
		d.Synth = v
		return true
	})
	return found, err
}

// SetDeviceSubscription gives the MIDI subscription to the device,
// stopping the one it replaces. A nil subscription stops the current one.
func (s *DeviceStore) SetDeviceSubscription(id string, sub *midiio.Subscription) bool {
	return s.items.update(id, func(d *Device) bool {
		if d.Subscription != nil && d.Subscription != sub {
			d.Subscription.Stop()
		}
		d.Subscription = sub
		return true
	})
}
