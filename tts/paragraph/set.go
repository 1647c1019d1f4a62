// Package paragraph splits lesson text into narration units and drives
// paragraph-to-paragraph playback.
package paragraph

import (
	"regexp"
	"strings"
)

// blankLines matches one or more blank lines, which separate units.
var blankLines = regexp.MustCompile(`\r?\n(?:[ \t]*\r?\n)+`)

// Split breaks text into trimmed, non-empty paragraphs. A text without
// blank lines yields one unit; a blank text yields none.
func Split(text string) []string {
	parts := blankLines.Split(text, -1)
	units := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			units = append(units, p)
		}
	}
	return units
}

// Set is an ordered sequence of paragraphs with a cursor.
// Set is not safe for concurrent use; Sequencer guards its own Set.
type Set struct {
	text  string
	units []string
	index int
}

// NewSet splits text into a Set positioned at the first unit.
func NewSet(text string) *Set {
	return &Set{text: text, units: Split(text)}
}

// Len returns the number of units.
func (s *Set) Len() int { return len(s.units) }

// Index returns the cursor position.
func (s *Set) Index() int { return s.index }

// Text returns the text the set was built from.
func (s *Set) Text() string { return s.text }

// Units returns a copy of the units.
func (s *Set) Units() []string {
	out := make([]string, len(s.units))
	copy(out, s.units)
	return out
}

// Current returns the unit under the cursor, or the whole text when the set
// is empty.
func (s *Set) Current() string {
	if len(s.units) == 0 {
		return s.text
	}
	return s.units[s.index]
}

// IsLast reports whether the cursor is on the final unit.
func (s *Set) IsLast() bool {
	return s.index >= len(s.units)-1
}

// Advance moves to the next unit. It reports whether the cursor moved.
func (s *Set) Advance() bool {
	if s.index+1 >= len(s.units) {
		return false
	}
	s.index++
	return true
}

// Retreat moves to the previous unit. It reports whether the cursor moved.
func (s *Set) Retreat() bool {
	if s.index == 0 {
		return false
	}
	s.index--
	return true
}

// Seek moves the cursor to i. Out-of-range positions are rejected.
func (s *Set) Seek(i int) bool {
	if i < 0 || i >= len(s.units) {
		return false
	}
	s.index = i
	return true
}

// Fraction returns the cursor position as a fraction of the lesson, in
// [0,1], measured by the units before the cursor.
func (s *Set) Fraction() float64 {
	if len(s.units) <= 1 {
		return 0
	}
	return float64(s.index) / float64(len(s.units)-1)
}

// SeekFraction moves the cursor to the unit nearest to fraction f of the
// lesson, the inverse of Fraction.
func (s *Set) SeekFraction(f float64) {
	if len(s.units) == 0 {
		return
	}
	switch {
	case f <= 0:
		s.index = 0
	case f >= 1:
		s.index = len(s.units) - 1
	default:
		s.index = int(f*float64(len(s.units)-1) + 0.5)
	}
}
