/*
Package metadata supplies what the storage engine needs to know about
pixels sets beyond their storage: descriptors and the original files they
were imported from.
*/
package metadata

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/janelia-flyem/pixstore/pix"
)

// ErrUnknownPixels is returned for pixels ids that have no descriptor.
var ErrUnknownPixels = errors.New("unknown pixels id")

// OriginalFile is a file a pixels set was imported from.
type OriginalFile struct {
	ID     int64  `json:"id"`
	Name   string `json:"name,omitempty"`
	Format string `json:"format"`
}

// Provider finds original files for pixels sets.
type Provider interface {
	// OriginalFileWhereFormatStartsWith returns the first original file of px
	// whose format begins with prefix, or nil if there is none.
	OriginalFileWhereFormatStartsWith(px *pix.Pixels, prefix string) (*OriginalFile, error)
}

// Entry is one pixels set in a manifest.
type Entry struct {
	pix.Pixels
	OriginalFiles []OriginalFile `json:"original_files,omitempty"`
}

type manifestJSON struct {
	Pixels []Entry `json:"pixels"`
}

var (
	compiledSchema *jsonschema.Schema
	compileOnce    sync.Once
	compileErr     error
)

func schema() (*jsonschema.Schema, error) {
	compileOnce.Do(func() {
		compiledSchema, compileErr = jsonschema.CompileString("manifest.schema.json", manifestSchema)
	})
	return compiledSchema, compileErr
}

// Manifest is a read-only Provider loaded from a JSON document listing
// pixels descriptors and their original files.
type Manifest struct {
	entries map[int64]*Entry
}

// LoadManifest reads and validates a manifest file.
func LoadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	m, err := ParseManifest(data)
	if err != nil {
		return nil, fmt.Errorf("manifest %s: %w", path, err)
	}
	pix.Infof("Loaded manifest %s with %d pixels sets\n", path, len(m.entries))
	return m, nil
}

// ParseManifest validates data against the manifest schema and decodes it.
func ParseManifest(data []byte) (*Manifest, error) {
	sch, err := schema()
	if err != nil {
		return nil, err
	}
	var v interface{}
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, err
	}
	if err := sch.Validate(v); err != nil {
		return nil, err
	}
	var doc manifestJSON
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	return NewManifest(doc.Pixels...)
}

// NewManifest builds a manifest from entries.  Duplicate ids are an error.
func NewManifest(entries ...Entry) (*Manifest, error) {
	m := &Manifest{entries: make(map[int64]*Entry, len(entries))}
	for i := range entries {
		e := entries[i]
		if err := e.Validate(); err != nil {
			return nil, err
		}
		if _, found := m.entries[e.ID]; found {
			return nil, fmt.Errorf("pixels %d listed more than once", e.ID)
		}
		m.entries[e.ID] = &e
	}
	return m, nil
}

// IDs returns the pixels ids in ascending order.
func (m *Manifest) IDs() []int64 {
	ids := make([]int64, 0, len(m.entries))
	for id := range m.entries {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Pixels returns a copy of the descriptor for id.
func (m *Manifest) Pixels(id int64) (*pix.Pixels, error) {
	e, found := m.entries[id]
	if !found {
		return nil, fmt.Errorf("pixels %d: %w", id, ErrUnknownPixels)
	}
	px := e.Pixels
	return &px, nil
}

// OriginalFileWhereFormatStartsWith implements Provider.
func (m *Manifest) OriginalFileWhereFormatStartsWith(px *pix.Pixels, prefix string) (*OriginalFile, error) {
	e, found := m.entries[px.ID]
	if !found {
		return nil, nil
	}
	for _, f := range e.OriginalFiles {
		if strings.HasPrefix(f.Format, prefix) {
			of := f
			return &of, nil
		}
	}
	return nil, nil
}
