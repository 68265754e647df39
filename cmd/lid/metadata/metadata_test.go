package metadata

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/clamsproject/spoken-lid/cmd/lid/config"
	"github.com/clamsproject/spoken-lid/cmd/lid/mmif"

	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	var cfg config.LIDConfig
	cfg.SetDefaults()
	cfg.Top = 5

	md := New(cfg)
	require.Equal(t, AppID(), md.Identifier)
	require.Equal(t, "whisper.cpp", md.AnalyzerVersion)
	require.Equal(t, mmif.TimeFrame, md.Output[0].Type)

	params := map[string]Parameter{}
	for _, p := range md.Parameters {
		params[p.Name] = p
	}
	require.Equal(t, 30.0, params["chunk"].Default)
	require.Equal(t, 5, params["top"].Default)
	require.Equal(t, "tiny", params["model_size"].Default)
	require.Len(t, params["model_size"].Choices, 6)

	var buf bytes.Buffer
	require.NoError(t, md.Write(&buf))

	var out map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &out))
	require.Equal(t, "Spoken Language ID", out["name"])
	require.Equal(t, []any{
		[]any{
			map[string]any{"@type": mmif.AudioDocument},
			map[string]any{"@type": mmif.VideoDocument},
		},
	}, out["input"])
}

func TestAppID(t *testing.T) {
	old := Version
	defer func() { Version = old }()

	Version = "v2.1.0"
	require.Equal(t, "http://apps.clams.ai/spoken-lid/v2.1.0", AppID())
}
