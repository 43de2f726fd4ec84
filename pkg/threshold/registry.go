package threshold

import (
	"errors"
	"fmt"
	"sort"
)

// ErrInvalidEntry is returned when a code or its minimums are malformed.
var ErrInvalidEntry = errors.New("threshold: invalid entry")

// Entry is the minimum number of flights a position must fly in each window.
type Entry struct {
	OneMonth   int `yaml:"one_month" json:"one_month"`
	ThreeMonth int `yaml:"three_month" json:"three_month"`
}

// Registry is a read-only position code → Entry table.
// It is safe for concurrent use because nothing mutates it after New.
type Registry struct {
	entries map[string]Entry
}

// builtin is the default requirement table.
//
// ISS is what a raw "MISSING" code field extracts to; its minimums are set
// out of reach so members without a code always surface as failures.
// PIN is exempt from the requirement.
var builtin = map[string]Entry{
	"KAN": {OneMonth: 2, ThreeMonth: 5},
	"KAE": {OneMonth: 1, ThreeMonth: 3},
	"EAN": {OneMonth: 2, ThreeMonth: 5},
	"EAE": {OneMonth: 1, ThreeMonth: 3},
	"PAE": {OneMonth: 2, ThreeMonth: 5},
	"PAN": {OneMonth: 3, ThreeMonth: 8},
	"CAE": {OneMonth: 2, ThreeMonth: 5},
	"CAN": {OneMonth: 3, ThreeMonth: 8},
	"NAE": {OneMonth: 2, ThreeMonth: 5},
	"NAN": {OneMonth: 3, ThreeMonth: 8},
	"EBE": {OneMonth: 1, ThreeMonth: 3},
	"PBE": {OneMonth: 1, ThreeMonth: 2},
	"KBE": {OneMonth: 1, ThreeMonth: 2},
	"ISS": {OneMonth: 10, ThreeMonth: 30},
	"PIN": {OneMonth: 0, ThreeMonth: 0},
}

// New builds a Registry from entries. The map is copied.
func New(entries map[string]Entry) (*Registry, error) {
	out := make(map[string]Entry, len(entries))
	for code, e := range entries {
		if err := validate(code, e); err != nil {
			return nil, err
		}
		out[code] = e
	}
	return &Registry{entries: out}, nil
}

// Default returns the built-in registry.
func Default() *Registry {
	r, err := New(builtin)
	if err != nil {
		panic(err) // builtin table is static
	}
	return r
}

// With returns a new Registry containing r's entries with overrides applied.
// Overrides may add new codes or replace existing ones; r is not modified.
func (r *Registry) With(overrides map[string]Entry) (*Registry, error) {
	merged := make(map[string]Entry, len(r.entries)+len(overrides))
	for code, e := range r.entries {
		merged[code] = e
	}
	for code, e := range overrides {
		merged[code] = e
	}
	return New(merged)
}

// Lookup returns the Entry for code and whether it exists.
func (r *Registry) Lookup(code string) (Entry, bool) {
	if r == nil {
		return Entry{}, false
	}
	e, ok := r.entries[code]
	return e, ok
}

// Codes returns every registered code in sorted order.
func (r *Registry) Codes() []string {
	codes := make([]string, 0, len(r.entries))
	for code := range r.entries {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	return codes
}

// Len returns the number of registered codes.
func (r *Registry) Len() int { return len(r.entries) }

// Entries returns a copy of the underlying table.
func (r *Registry) Entries() map[string]Entry {
	out := make(map[string]Entry, len(r.entries))
	for code, e := range r.entries {
		out[code] = e
	}
	return out
}

func validate(code string, e Entry) error {
	if code == "" {
		return fmt.Errorf("%w: empty position code", ErrInvalidEntry)
	}
	if e.OneMonth < 0 || e.ThreeMonth < 0 {
		return fmt.Errorf("%w: %q has negative minimum (one_month=%d, three_month=%d)",
			ErrInvalidEntry, code, e.OneMonth, e.ThreeMonth)
	}
	return nil
}
