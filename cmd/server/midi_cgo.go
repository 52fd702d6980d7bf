//go:build cgo

package main

import (
	// registers the RtMidi driver used for device ports
	_ "gitlab.com/gomidi/midi/v2/drivers/rtmididrv"
)
