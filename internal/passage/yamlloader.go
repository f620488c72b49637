package passage

import (
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// File is the top-level structure of a passage definition YAML file.
//
// Example:
//
//	passages:
//	  - id: "114"
//	    label: "سورة الناس"
//	    verses:
//	      - id: 1
//	        text: "قُلْ أَعُوذُ بِرَبِّ ٱلنَّاسِ"
//	    phases:
//	      - label: "آية 1-3"
//	        verses: [1, 2, 3]
type File struct {
	Passages []Passage `yaml:"passages"`
}

// Load reads and validates a passage definition file from disk.
func Load(path string) (*File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("passage: open %q: %w", path, err)
	}
	defer f.Close()

	pf, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("passage: parse %q: %w", path, err)
	}
	return pf, nil
}

// LoadFromReader parses passage YAML from r and validates every passage.
// Unknown YAML fields are rejected so typos in definition files surface
// immediately.
func LoadFromReader(r io.Reader) (*File, error) {
	var pf File
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&pf); err != nil {
		return nil, fmt.Errorf("passage: decode yaml: %w", err)
	}

	ids := make(map[string]struct{}, len(pf.Passages))
	for i := range pf.Passages {
		p := &pf.Passages[i]
		if err := p.Validate(); err != nil {
			return nil, err
		}
		if _, dup := ids[p.ID]; dup {
			return nil, fmt.Errorf("passage: duplicate passage id %q", p.ID)
		}
		ids[p.ID] = struct{}{}
	}
	return &pf, nil
}

// ByID returns the passage with the given ID, or nil if absent.
func (f *File) ByID(id string) *Passage {
	for i := range f.Passages {
		if f.Passages[i].ID == id {
			return &f.Passages[i]
		}
	}
	return nil
}
