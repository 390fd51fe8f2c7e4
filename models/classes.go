package models

import (
	"os"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

const (
	// MaxClasses is the largest class table a pill model may carry.
	MaxClasses = 16
	// UnknownLabel is the label of any class index outside the table.
	UnknownLabel = "Unknown"
)

// ErrTooManyClasses is returned when a class table exceeds MaxClasses labels.
var ErrTooManyClasses = errors.Errorf("pill class tables hold at most %d labels", MaxClasses)

// OutputClass represents one pill label.
type OutputClass struct {
	// The integer index returned by the model.
	Index int
	// The human-readable label.
	Name string
}

// PillClassTable maps class indexes to pill labels.
//
// A table is immutable once built and safe to share between detectors and goroutines.
type PillClassTable struct {
	classes []OutputClass
	// nameToIdx for fast lookup by name
	nameToIdx map[string]int
}

// NewPillClassTable builds a table where names[i] is the label of class i.
//
// Arguments:
//   - names: The labels in class index order. May be empty for box-only models.
//
// Returns:
//   - *PillClassTable: The table.
//   - error: ErrTooManyClasses for more than MaxClasses names, or an error for an
//     empty or repeated name.
//
// @example
// table, err := NewPillClassTable("A", "B", "C")
// table.Label(1)  // "B"
// table.Label(12) // "Unknown"
func NewPillClassTable(names ...string) (*PillClassTable, error) {
	if len(names) > MaxClasses {
		return nil, errors.Wrapf(ErrTooManyClasses, "got %d", len(names))
	}

	table := &PillClassTable{
		classes:   make([]OutputClass, len(names)),
		nameToIdx: make(map[string]int, len(names)),
	}
	for i, name := range names {
		if name == "" {
			return nil, errors.Errorf("class %d has an empty label", i)
		}
		if prev, ok := table.nameToIdx[name]; ok {
			return nil, errors.Errorf("label %q used by classes %d and %d", name, prev, i)
		}
		table.classes[i] = OutputClass{Index: i, Name: name}
		table.nameToIdx[name] = i
	}
	return table, nil
}

// MustPillClassTable is NewPillClassTable for static tables; it panics on error.
func MustPillClassTable(names ...string) *PillClassTable {
	table, err := NewPillClassTable(names...)
	if err != nil {
		panic(err)
	}
	return table
}

// Label returns the label of class index, or UnknownLabel when the index is outside
// the table. A nil table knows no labels.
func (t *PillClassTable) Label(index int) string {
	if t == nil || index < 0 || index >= len(t.classes) {
		return UnknownLabel
	}
	return t.classes[index].Name
}

// Index returns the class index of a label.
func (t *PillClassTable) Index(name string) (int, bool) {
	if t == nil {
		return 0, false
	}
	idx, ok := t.nameToIdx[name]
	return idx, ok
}

// Len returns the number of classes in the table.
func (t *PillClassTable) Len() int {
	if t == nil {
		return 0
	}
	return len(t.classes)
}

// Labels returns a copy of the labels in class index order.
func (t *PillClassTable) Labels() []string {
	names := make([]string, t.Len())
	for i := range names {
		names[i] = t.classes[i].Name
	}
	return names
}

// classFile is the on-disk form of a class table.
type classFile struct {
	Classes []string `yaml:"classes"`
}

// LoadPillClassTable reads a class table from a YAML file of the form:
//
//	classes: [A, B, C]
func LoadPillClassTable(path string) (*PillClassTable, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read class table")
	}
	return ParsePillClassTable(data)
}

// ParsePillClassTable decodes a YAML class table.
func ParsePillClassTable(data []byte) (*PillClassTable, error) {
	var file classFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, errors.Wrap(err, "failed to parse class table")
	}
	return NewPillClassTable(file.Classes...)
}

// PillSearchClasses is the table shipped with the pill identification model.
var PillSearchClasses = MustPillClassTable("A", "B", "C", "D", "E", "F", "G", "H", "I", "J", "K")
