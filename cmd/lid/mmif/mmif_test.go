package mmif

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

const sampleMMIF = `{
  "metadata": {"mmif": "http://mmif.clams.ai/1.0.0"},
  "documents": [
    {"@type": "http://mmif.clams.ai/vocabulary/AudioDocument/v1",
     "properties": {"id": "d1", "mime": "audio/wav", "location": "file:///data/a%20b.wav"}},
    {"@type": "http://mmif.clams.ai/vocabulary/TextDocument/v1",
     "properties": {"id": "d2", "text": {"@value": "hello"}}},
    {"@type": "http://mmif.clams.ai/vocabulary/VideoDocument/v2",
     "properties": {"id": "d3", "location": "/data/b.mp4"}}
  ],
  "views": [
    {"id": "v_0", "metadata": {"app": "http://apps.clams.ai/other", "custom": [1, 2]},
     "annotations": [{"@type": "http://example.com/Thing", "properties": {"id": "t_1", "weird": {"nested": true}}}]}
  ]
}`

func TestParse(t *testing.T) {
	m, err := Parse([]byte(sampleMMIF))
	require.NoError(t, err)
	require.Len(t, m.Documents, 3)
	require.Len(t, m.Views, 1)
	require.Equal(t, "v_0", m.Views[0].ID)

	_, err = Parse([]byte(`{"documents": []}`))
	require.EqualError(t, err, "invalid mmif: missing metadata.mmif")

	_, err = Parse([]byte(`{`))
	require.Error(t, err)

	_, err = Parse([]byte(`{"metadata": {"mmif": "x"}, "documents": [null]}`))
	require.EqualError(t, err, "invalid mmif: document 0 is null")

	m, err = Parse([]byte(`{"metadata": {"mmif": "x"}}`))
	require.NoError(t, err)
	require.Empty(t, m.Documents)
	require.Empty(t, m.Views)
}

func TestDocumentsByType(t *testing.T) {
	m, err := Parse([]byte(sampleMMIF))
	require.NoError(t, err)

	docs := m.DocumentsByType(AudioDocument, VideoDocument)
	require.Len(t, docs, 2)
	require.Equal(t, "d1", docs[0].ID())
	require.Equal(t, "d3", docs[1].ID())

	require.Empty(t, m.DocumentsByType("http://mmif.clams.ai/vocabulary/ImageDocument/v1"))
}

func TestLocationPath(t *testing.T) {
	tcs := []struct {
		name          string
		location      string
		expected      string
		expectedError string
	}{
		{
			name:     "file uri",
			location: "file:///data/a%20b.wav",
			expected: "/data/a b.wav",
		},
		{
			name:     "plain path",
			location: "/data/b.mp4",
			expected: "/data/b.mp4",
		},
		{
			name:          "http",
			location:      "http://example.com/a.wav",
			expectedError: `unsupported location scheme "http"`,
		},
		{
			name:          "missing",
			expectedError: `document "d" has no location`,
		},
	}

	for _, tc := range tcs {
		t.Run(tc.name, func(t *testing.T) {
			doc := &Document{Type: AudioDocument, Properties: map[string]any{"id": "d"}}
			if tc.location != "" {
				doc.Properties["location"] = tc.location
			}
			path, err := doc.LocationPath()
			if tc.expectedError != "" {
				require.EqualError(t, err, tc.expectedError)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tc.expected, path)
		})
	}
}

func TestTypeName(t *testing.T) {
	require.Equal(t, "TimeFrame", TypeName(TimeFrame))
	require.Equal(t, "AudioDocument", TypeName("http://mmif.clams.ai/vocabulary/AudioDocument/v2"))
	require.Equal(t, "Custom", TypeName("Custom"))
}

func TestNewView(t *testing.T) {
	m, err := Parse([]byte(sampleMMIF))
	require.NoError(t, err)

	v := m.NewView()
	require.Equal(t, "v_1", v.ID)
	v.Sign("http://apps.clams.ai/spoken-lid/v1.0.0", map[string]any{"chunk": 30.0})
	v.NewContains(TimeFrame, map[string]any{"timeUnit": "milliseconds", "document": "d1"})

	a := v.NewAnnotation(TimeFrame, map[string]any{"start": int64(0), "end": int64(30000), "label": "en"})
	require.Equal(t, "tf_1", a.ID())
	a = v.NewAnnotation(TimeFrame, nil)
	require.Equal(t, "tf_2", a.ID())

	require.Equal(t, "v_2", m.NewView().ID)

	var buf bytes.Buffer
	require.NoError(t, m.Write(&buf, false))

	var out map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &out))

	views := out["views"].([]any)
	require.Len(t, views, 3)

	// Existing views are preserved as is.
	first := views[0].(map[string]any)
	require.Equal(t, []any{1.0, 2.0}, first["metadata"].(map[string]any)["custom"])
	require.Equal(t, map[string]any{"nested": true},
		first["annotations"].([]any)[0].(map[string]any)["properties"].(map[string]any)["weird"])

	second := views[1].(map[string]any)
	meta := second["metadata"].(map[string]any)
	require.Equal(t, "http://apps.clams.ai/spoken-lid/v1.0.0", meta["app"])
	require.NotEmpty(t, meta["timestamp"])
	require.Equal(t, map[string]any{"chunk": 30.0}, meta["appConfiguration"])
	require.Equal(t, map[string]any{"timeUnit": "milliseconds", "document": "d1"},
		meta["contains"].(map[string]any)[TimeFrame])

	anns := second["annotations"].([]any)
	require.Len(t, anns, 2)
	props := anns[0].(map[string]any)["properties"].(map[string]any)
	require.Equal(t, map[string]any{"id": "tf_1", "start": 0.0, "end": 30000.0, "label": "en"}, props)

	third := views[2].(map[string]any)
	require.Equal(t, []any{}, third["annotations"])

	// Documents keep unknown properties.
	docs := out["documents"].([]any)
	require.Equal(t, map[string]any{"@value": "hello"},
		docs[1].(map[string]any)["properties"].(map[string]any)["text"])
}

func TestNewViewIDCollision(t *testing.T) {
	m := New()
	m.Views = append(m.Views, &View{ID: "v_1"})
	require.Equal(t, "v_2", m.NewView().ID)
	require.Equal(t, "v_3", m.NewView().ID)
}

func TestSetError(t *testing.T) {
	m := New()
	v := m.NewView()
	v.NewContains(TimeFrame, nil)
	v.NewAnnotation(TimeFrame, map[string]any{"label": "en"})
	v.SetError(errors.New("invalid score format"))

	var buf bytes.Buffer
	require.NoError(t, m.Write(&buf, true))
	require.True(t, strings.Contains(buf.String(), "\n  "))

	var out struct {
		Views []struct {
			Metadata struct {
				Contains map[string]any `json:"contains"`
				Error    struct {
					Message string `json:"message"`
				} `json:"error"`
			} `json:"metadata"`
			Annotations []any `json:"annotations"`
		} `json:"views"`
	}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &out))
	require.Len(t, out.Views, 1)
	require.Equal(t, "invalid score format", out.Views[0].Metadata.Error.Message)
	require.Nil(t, out.Views[0].Metadata.Contains)
	require.Empty(t, out.Views[0].Annotations)
}

func TestIDPrefix(t *testing.T) {
	require.Equal(t, "tf", idPrefix("TimeFrame"))
	require.Equal(t, "a", idPrefix("thing"))
}
