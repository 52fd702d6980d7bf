// Package keyboard provides the on-screen keyboard widgets attached to
// devices and soundtracks.
package keyboard

import (
	"errors"
	"sort"
	"strings"
	"sync"
)

// Keyboard is a widget handle. Keys are MIDI note numbers.
type Keyboard interface {
	ElementID() string
	PressKey(notes ...uint8)
	UnpressKey(notes ...uint8)
	UnpressAll()
	Release() error
}

// Factory creates keyboard widgets.
type Factory interface {
	CreateKeyboard(elementID string, width int) (Keyboard, error)
}

// ErrDuplicateElement is returned when a live keyboard already uses the
// element id.
var ErrDuplicateElement = errors.New("keyboard element already in use")

// Registry creates Virtual keyboards and tracks the live ones by element id.
type Registry struct {
	mu   sync.Mutex
	live map[string]*Virtual
}

func NewRegistry() *Registry {
	return &Registry{live: make(map[string]*Virtual)}
}

func (r *Registry) CreateKeyboard(elementID string, width int) (Keyboard, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.live[elementID]; ok {
		return nil, ErrDuplicateElement
	}
	kb := &Virtual{id: elementID, width: width, pressed: map[uint8]bool{}, registry: r}
	r.live[elementID] = kb
	return kb, nil
}

// Lookup returns the live keyboard bound to elementID.
func (r *Registry) Lookup(elementID string) (*Virtual, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	kb, ok := r.live[elementID]
	return kb, ok
}

// Len is the number of live keyboards.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.live)
}

func (r *Registry) remove(kb *Virtual) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.live[kb.id] == kb {
		delete(r.live, kb.id)
	}
}

// Virtual is a text keyboard: it keeps the set of pressed keys and renders
// them as a row of key glyphs.
type Virtual struct {
	id       string
	width    int
	registry *Registry

	mu       sync.Mutex
	pressed  map[uint8]bool
	released bool
}

func (v *Virtual) ElementID() string { return v.id }

func (v *Virtual) PressKey(notes ...uint8) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.released {
		return
	}
	for _, n := range notes {
		v.pressed[n] = true
	}
}

func (v *Virtual) UnpressKey(notes ...uint8) {
	v.mu.Lock()
	defer v.mu.Unlock()
	for _, n := range notes {
		delete(v.pressed, n)
	}
}

func (v *Virtual) UnpressAll() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.pressed = map[uint8]bool{}
}

// Release unpresses every key and frees the element id.
func (v *Virtual) Release() error {
	v.mu.Lock()
	if v.released {
		v.mu.Unlock()
		return nil
	}
	v.released = true
	v.pressed = map[uint8]bool{}
	v.mu.Unlock()
	if v.registry != nil {
		v.registry.remove(v)
	}
	return nil
}

// Pressed returns the pressed keys in ascending order.
func (v *Virtual) Pressed() []uint8 {
	v.mu.Lock()
	defer v.mu.Unlock()
	keys := make([]uint8, 0, len(v.pressed))
	for k := range v.pressed {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}

var blackKeys = [12]bool{1: true, 3: true, 6: true, 8: true, 10: true}

// Render draws width keys starting at C of the octave holding the lowest
// pressed key (C4 when nothing is pressed).
func (v *Virtual) Render() string {
	pressed := v.Pressed()
	first := 60
	if len(pressed) > 0 {
		first = int(pressed[0]) / 12 * 12
	}
	width := v.width
	if width <= 0 {
		width = 24
	}
	set := make(map[int]bool, len(pressed))
	for _, p := range pressed {
		set[int(p)] = true
	}

	var b strings.Builder
	for n := first; n < first+width && n < 128; n++ {
		switch {
		case set[n]:
			b.WriteRune('█')
		case blackKeys[n%12]:
			b.WriteRune('▄')
		default:
			b.WriteRune('_')
		}
	}
	return b.String()
}
