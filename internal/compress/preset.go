package compress

import (
	"fmt"
	"strings"

	"github.com/lgulliver/pdfshrink/pkg/types"
)

// Preset is a named Ghostscript quality tier. It is not a numeric knob:
// the set is closed and ordered from most to least aggressive.
type Preset string

const (
	PresetScreen   Preset = "screen"
	PresetEbook    Preset = "ebook"
	PresetPrinter  Preset = "printer"
	PresetPrepress Preset = "prepress"
)

// SearchOrder is the sequence a target-size search walks. Prepress is only
// available for single-preset compression.
var SearchOrder = []Preset{PresetScreen, PresetEbook, PresetPrinter}

// Token returns the engine configuration token, e.g. "/ebook"
func (p Preset) Token() string {
	return "/" + string(p)
}

func (p Preset) String() string {
	return string(p)
}

// Valid reports whether p is one of the known presets
func (p Preset) Valid() bool {
	switch p {
	case PresetScreen, PresetEbook, PresetPrinter, PresetPrepress:
		return true
	}
	return false
}

// ParsePreset accepts "ebook" or "/ebook" in any case
func ParsePreset(s string) (Preset, error) {
	p := Preset(strings.ToLower(strings.TrimPrefix(strings.TrimSpace(s), "/")))
	if !p.Valid() {
		return "", fmt.Errorf("%w: unknown quality preset %q", types.ErrInvalidRequest, s)
	}
	return p, nil
}
