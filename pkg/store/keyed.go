package store

import (
	"errors"
	"strings"
	"unicode"
)

// NormalizeKey strips every whitespace character from id. Case is kept.
func NormalizeKey(id string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, id)
}

// keyed is a list of items identified by normalized key. Every change
// publishes a fresh slice, so a published slice is never modified
// afterwards.
type keyed[E any] struct {
	*Store[[]E]
	id      func(*E) *string
	release func(*E) error
}

func newKeyed[E any](id func(*E) *string, release func(*E) error) keyed[E] {
	return keyed[E]{Store: New([]E{}), id: id, release: release}
}

func (k keyed[E]) index(id string) int {
	key := NormalizeKey(id)
	for i, items := 0, k.State(); i < len(items); i++ {
		if *k.id(&items[i]) == key {
			return i
		}
	}
	return -1
}

func (k keyed[E]) get(id string) (E, bool) {
	if i := k.index(id); i >= 0 {
		return k.State()[i], true
	}
	var zero E
	return zero, false
}

func (k keyed[E]) add(item E) bool {
	key := NormalizeKey(*k.id(&item))
	if k.index(key) >= 0 {
		return false
	}
	*k.id(&item) = key
	items := k.State()
	next := make([]E, len(items), len(items)+1)
	copy(next, items)
	k.SetState(append(next, item))
	return true
}

func (k keyed[E]) remove(id string) error {
	i := k.index(id)
	if i < 0 {
		return nil
	}
	items := k.State()
	item := items[i]
	err := k.release(&item)
	next := make([]E, 0, len(items)-1)
	next = append(next, items[:i]...)
	next = append(next, items[i+1:]...)
	k.SetState(next)
	return err
}

func (k keyed[E]) removeAll() error {
	items := k.State()
	if len(items) == 0 {
		return nil
	}
	var errs []error
	for i := range items {
		item := items[i]
		errs = append(errs, k.release(&item))
	}
	k.SetState([]E{})
	return errors.Join(errs...)
}

// update applies fn to a copy of the item under id and publishes when fn
// reports a change. It returns false when no item has the key.
func (k keyed[E]) update(id string, fn func(*E) bool) bool {
	i := k.index(id)
	if i < 0 {
		return false
	}
	next := append([]E(nil), k.State()...)
	if fn(&next[i]) {
		k.SetState(next)
	}
	return true
}

type releaser interface {
	Release() error
}

// releaseReplaced releases old unless it is absent or replaced by itself.
func releaseReplaced(old, next releaser) error {
	if old == nil || old == next {
		return nil
	}
	return old.Release()
}
