// Package identity resolves national-ID style identifiers: the reference
// dataset, the one-time-code provider, QR decoding and the derived account
// handle, mask and hash.
package identity

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"
)

// DateLayout is the dataset's date-of-birth format.
const DateLayout = "2006-01-02"

// Record is one reference dataset entry.
type Record struct {
	Name string `json:"name"`
	DOB  string `json:"dob"`
}

// BirthDate parses DOB; nil when empty or malformed.
func (r Record) BirthDate() *time.Time {
	if r.DOB == "" {
		return nil
	}
	t, err := time.Parse(DateLayout, r.DOB)
	if err != nil {
		return nil
	}
	return &t
}

// Dataset is an immutable identifier → Record lookup table.
type Dataset struct {
	records map[string]Record
}

// NewDataset copies records into a new Dataset.
func NewDataset(records map[string]Record) *Dataset {
	m := make(map[string]Record, len(records))
	for k, v := range records {
		m[k] = v
	}
	return &Dataset{records: m}
}

// LoadDataset reads a JSON object of identifier → {"name", "dob"}.
// A missing file yields an empty dataset; malformed JSON is an error.
func LoadDataset(path string) (*Dataset, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return NewDataset(nil), nil
		}
		return nil, fmt.Errorf("read dataset: %w", err)
	}

	var records map[string]Record
	if err := json.Unmarshal(b, &records); err != nil {
		return nil, fmt.Errorf("parse dataset %s: %w", path, err)
	}
	return &Dataset{records: records}, nil
}

// Lookup returns the record for id.
func (d *Dataset) Lookup(id string) (Record, bool) {
	if d == nil {
		return Record{}, false
	}
	r, ok := d.records[id]
	return r, ok
}

// Len returns the number of records.
func (d *Dataset) Len() int {
	if d == nil {
		return 0
	}
	return len(d.records)
}
