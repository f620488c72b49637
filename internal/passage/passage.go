// Package passage defines the immutable reference data a recitation session
// works through: passages of verses partitioned into phases, loaded from
// static YAML definitions.
package passage

import (
	"errors"
	"fmt"
)

// Verse is the smallest addressable unit of text. IDs are 1-based and
// unique within a passage. Verses are reference data and never mutated.
type Verse struct {
	// ID is the verse number within its passage.
	ID int `yaml:"id"`

	// Text is the fully vocalised Arabic verse text.
	Text string `yaml:"text"`
}

// Phase is a contiguous group of verses studied as one unit before testing.
type Phase struct {
	// Label is the phase's display name (e.g. "آية 1-3").
	Label string `yaml:"label"`

	// Verses is the ordered, non-empty list of verse IDs in this phase.
	Verses []int `yaml:"verses"`
}

// Passage is a short span of text being memorized, divided into phases.
type Passage struct {
	// ID is a stable identifier used in progress records and audio
	// locators (e.g. "114" for surah an-Nas).
	ID string `yaml:"id"`

	// Label is the passage's display name.
	Label string `yaml:"label"`

	Verses []Verse `yaml:"verses"`
	Phases []Phase `yaml:"phases"`
}

// Verse returns the verse with the given ID, or false if the passage does
// not contain it.
func (p *Passage) Verse(id int) (Verse, bool) {
	for _, v := range p.Verses {
		if v.ID == id {
			return v, true
		}
	}
	return Verse{}, false
}

// PhaseVerses resolves a phase's verse-ID list to the verses themselves,
// preserving order. Returns an error if any ID is unknown.
func (p *Passage) PhaseVerses(phase Phase) ([]Verse, error) {
	verses := make([]Verse, 0, len(phase.Verses))
	for _, id := range phase.Verses {
		v, ok := p.Verse(id)
		if !ok {
			return nil, fmt.Errorf("passage %s: phase %q references unknown verse %d", p.ID, phase.Label, id)
		}
		verses = append(verses, v)
	}
	return verses, nil
}

// Validate checks the structural invariants of a passage: a non-empty ID,
// at least one verse, unique verse IDs, and phases whose ordered ID lists
// are non-empty and reference known verses. It returns a joined error
// listing all failures found.
func (p *Passage) Validate() error {
	var errs []error

	if p.ID == "" {
		errs = append(errs, errors.New("passage id is required"))
	}
	if len(p.Verses) == 0 {
		errs = append(errs, fmt.Errorf("passage %s has no verses", p.ID))
	}

	seen := make(map[int]struct{}, len(p.Verses))
	for i, v := range p.Verses {
		if v.ID < 1 {
			errs = append(errs, fmt.Errorf("passage %s: verses[%d] has non-positive id %d", p.ID, i, v.ID))
		}
		if v.Text == "" {
			errs = append(errs, fmt.Errorf("passage %s: verse %d has empty text", p.ID, v.ID))
		}
		if _, dup := seen[v.ID]; dup {
			errs = append(errs, fmt.Errorf("passage %s: duplicate verse id %d", p.ID, v.ID))
		}
		seen[v.ID] = struct{}{}
	}

	if len(p.Phases) == 0 {
		errs = append(errs, fmt.Errorf("passage %s has no phases", p.ID))
	}
	for i, ph := range p.Phases {
		if len(ph.Verses) == 0 {
			errs = append(errs, fmt.Errorf("passage %s: phases[%d] (%q) has no verses", p.ID, i, ph.Label))
		}
		phaseSeen := make(map[int]struct{}, len(ph.Verses))
		for _, id := range ph.Verses {
			if _, ok := seen[id]; !ok {
				errs = append(errs, fmt.Errorf("passage %s: phases[%d] references unknown verse %d", p.ID, i, id))
			}
			if _, dup := phaseSeen[id]; dup {
				errs = append(errs, fmt.Errorf("passage %s: phases[%d] repeats verse %d", p.ID, i, id))
			}
			phaseSeen[id] = struct{}{}
		}
	}

	return errors.Join(errs...)
}
