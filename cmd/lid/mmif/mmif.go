package mmif

import (
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"strings"
)

const (
	SpecVersion = "1.0.0"
	specURL     = "http://mmif.clams.ai/" + SpecVersion

	vocabularyURL = "http://mmif.clams.ai/vocabulary/"

	AudioDocument = vocabularyURL + "AudioDocument/v1"
	VideoDocument = vocabularyURL + "VideoDocument/v1"
	TimeFrame     = vocabularyURL + "TimeFrame/v5"
)

type Metadata struct {
	MMIF string `json:"mmif"`
}

// Mmif is a multimedia interchange document. Only the parts needed to read
// source documents and append new views are modeled, anything else in
// existing views is carried through untouched.
type Mmif struct {
	Metadata  Metadata    `json:"metadata"`
	Documents []*Document `json:"documents"`
	Views     []*View     `json:"views"`
}

func New() *Mmif {
	return &Mmif{
		Metadata:  Metadata{MMIF: specURL},
		Documents: []*Document{},
		Views:     []*View{},
	}
}

func Parse(data []byte) (*Mmif, error) {
	var m Mmif
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to unmarshal mmif: %w", err)
	}
	if m.Metadata.MMIF == "" {
		return nil, fmt.Errorf("invalid mmif: missing metadata.mmif")
	}
	if m.Documents == nil {
		m.Documents = []*Document{}
	}
	if m.Views == nil {
		m.Views = []*View{}
	}
	for i, doc := range m.Documents {
		if doc == nil {
			return nil, fmt.Errorf("invalid mmif: document %d is null", i)
		}
	}
	for i, v := range m.Views {
		if v == nil {
			return nil, fmt.Errorf("invalid mmif: view %d is null", i)
		}
	}
	return &m, nil
}

func Read(r io.Reader) (*Mmif, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read mmif: %w", err)
	}
	return Parse(data)
}

func (m *Mmif) Write(w io.Writer, pretty bool) error {
	enc := json.NewEncoder(w)
	if pretty {
		enc.SetIndent("", "  ")
	}
	if err := enc.Encode(m); err != nil {
		return fmt.Errorf("failed to encode mmif: %w", err)
	}
	return nil
}

// DocumentsByType returns the top level documents whose type is any of the
// given ones. Types are matched by name so that version suffixes don't
// matter, e.g. AudioDocument/v1 matches AudioDocument/v2.
func (m *Mmif) DocumentsByType(types ...string) []*Document {
	var docs []*Document
	for _, doc := range m.Documents {
		for _, t := range types {
			if TypeName(doc.Type) == TypeName(t) {
				docs = append(docs, doc)
				break
			}
		}
	}
	return docs
}

func (m *Mmif) View(id string) *View {
	for _, v := range m.Views {
		if v.ID == id {
			return v
		}
	}
	return nil
}

// NewView appends an empty view with a fresh id.
func (m *Mmif) NewView() *View {
	id := fmt.Sprintf("v_%d", len(m.Views))
	for n := len(m.Views) + 1; m.View(id) != nil; n++ {
		id = fmt.Sprintf("v_%d", n)
	}

	v := &View{
		ID: id,
		Metadata: ViewMetadata{
			Contains: map[string]map[string]any{},
		},
		Annotations: []*Annotation{},
		counters:    map[string]int{},
	}
	m.Views = append(m.Views, v)
	return v
}

// TypeName returns the short name of a vocabulary type, e.g. "TimeFrame" for
// "http://mmif.clams.ai/vocabulary/TimeFrame/v5".
func TypeName(t string) string {
	t = strings.TrimPrefix(t, vocabularyURL)
	if idx := strings.Index(t, "/"); idx >= 0 {
		t = t[:idx]
	}
	return t
}

type Document struct {
	Type       string         `json:"@type"`
	Properties map[string]any `json:"properties"`
}

func (d *Document) property(name string) string {
	if d.Properties == nil {
		return ""
	}
	s, _ := d.Properties[name].(string)
	return s
}

func (d *Document) ID() string {
	return d.property("id")
}

func (d *Document) Location() string {
	return d.property("location")
}

// LocationPath resolves the document location to a local file path. Plain
// paths and file:// URIs are supported.
func (d *Document) LocationPath() (string, error) {
	loc := d.Location()
	if loc == "" {
		return "", fmt.Errorf("document %q has no location", d.ID())
	}

	if !strings.Contains(loc, "://") {
		return loc, nil
	}

	u, err := url.Parse(loc)
	if err != nil {
		return "", fmt.Errorf("failed to parse location: %w", err)
	}
	if u.Scheme != "file" {
		return "", fmt.Errorf("unsupported location scheme %q", u.Scheme)
	}
	if u.Path == "" {
		return "", fmt.Errorf("location %q has an empty path", loc)
	}

	return u.Path, nil
}
