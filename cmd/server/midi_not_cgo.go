//go:build !cgo

package main

// Without cgo no MIDI driver is registered: no device is ever listed and
// notes are only recorded.
