package mmif

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
	"unicode"
)

type ViewError struct {
	Message    string `json:"message"`
	StackTrace string `json:"stackTrace,omitempty"`
}

type ViewMetadata struct {
	App              string                    `json:"app,omitempty"`
	Timestamp        string                    `json:"timestamp,omitempty"`
	AppConfiguration map[string]any            `json:"appConfiguration,omitempty"`
	Contains         map[string]map[string]any `json:"contains,omitempty"`
	Error            *ViewError                `json:"error,omitempty"`
	Warnings         []string                  `json:"warnings,omitempty"`
}

type Annotation struct {
	Type       string         `json:"@type"`
	Properties map[string]any `json:"properties"`
}

func (a *Annotation) ID() string {
	s, _ := a.Properties["id"].(string)
	return s
}

type View struct {
	ID          string        `json:"id"`
	Metadata    ViewMetadata  `json:"metadata"`
	Annotations []*Annotation `json:"annotations"`

	// Views read from input are written back exactly as they came.
	raw      json.RawMessage
	counters map[string]int
}

type viewJSON struct {
	ID          string        `json:"id"`
	Metadata    ViewMetadata  `json:"metadata"`
	Annotations []*Annotation `json:"annotations"`
}

func (v *View) UnmarshalJSON(data []byte) error {
	var header struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(data, &header); err != nil {
		return err
	}
	var parsed viewJSON
	// Views produced by other apps may not fit the model, they're kept raw.
	if err := json.Unmarshal(data, &parsed); err == nil {
		v.Metadata = parsed.Metadata
		v.Annotations = parsed.Annotations
	}
	v.ID = header.ID
	v.raw = append(json.RawMessage(nil), data...)
	return nil
}

func (v *View) MarshalJSON() ([]byte, error) {
	if v.raw != nil {
		return v.raw, nil
	}
	annotations := v.Annotations
	if annotations == nil {
		annotations = []*Annotation{}
	}
	return json.Marshal(viewJSON{
		ID:          v.ID,
		Metadata:    v.Metadata,
		Annotations: annotations,
	})
}

// Sign records the producing app and the parameters it ran with.
func (v *View) Sign(app string, params map[string]any) {
	v.Metadata.App = app
	v.Metadata.Timestamp = time.Now().UTC().Format(time.RFC3339Nano)
	if len(params) > 0 {
		v.Metadata.AppConfiguration = params
	}
}

// NewContains declares that the view holds annotations of the given type.
func (v *View) NewContains(atType string, props map[string]any) {
	if v.Metadata.Contains == nil {
		v.Metadata.Contains = map[string]map[string]any{}
	}
	if props == nil {
		props = map[string]any{}
	}
	v.Metadata.Contains[atType] = props
}

// NewAnnotation appends an annotation with a view unique id, e.g. tf_1 for
// the first TimeFrame.
func (v *View) NewAnnotation(atType string, props map[string]any) *Annotation {
	if v.counters == nil {
		v.counters = map[string]int{}
	}
	prefix := idPrefix(TypeName(atType))
	v.counters[prefix]++

	p := make(map[string]any, len(props)+1)
	for k, val := range props {
		p[k] = val
	}
	p["id"] = fmt.Sprintf("%s_%d", prefix, v.counters[prefix])

	a := &Annotation{Type: atType, Properties: p}
	v.Annotations = append(v.Annotations, a)
	return a
}

// SetError marks the view as failed. Any annotations are dropped as the view
// can only hold either.
func (v *View) SetError(err error) {
	v.Metadata.Error = &ViewError{Message: err.Error()}
	v.Metadata.Contains = nil
	v.Annotations = []*Annotation{}
}

func (v *View) AddWarning(msg string) {
	v.Metadata.Warnings = append(v.Metadata.Warnings, msg)
}

// idPrefix turns a CamelCase type name into its lowercase initials.
func idPrefix(name string) string {
	var sb strings.Builder
	for _, r := range name {
		if unicode.IsUpper(r) {
			sb.WriteRune(unicode.ToLower(r))
		}
	}
	if sb.Len() == 0 {
		return "a"
	}
	return sb.String()
}
