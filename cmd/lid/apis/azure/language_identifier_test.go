package azure

import (
	"context"
	"os"
	"strings"
	"testing"

	"github.com/clamsproject/spoken-lid/cmd/lid/audio"

	"github.com/stretchr/testify/require"
)

func TestLocaleToCode(t *testing.T) {
	require.Equal(t, "en", localeToCode("en-US"))
	require.Equal(t, "zh", localeToCode("zh_Hans_CN"))
	require.Equal(t, "fr", localeToCode(" FR "))
	require.Equal(t, "", localeToCode(""))
}

func TestLanguageIdentifierConfigIsValid(t *testing.T) {
	tcs := []struct {
		name          string
		cfg           LanguageIdentifierConfig
		expectedError string
	}{
		{
			name:          "empty",
			cfg:           LanguageIdentifierConfig{},
			expectedError: "invalid SpeechKey: should not be empty",
		},
		{
			name:          "missing region",
			cfg:           LanguageIdentifierConfig{SpeechKey: "key"},
			expectedError: "invalid SpeechRegion: should not be empty",
		},
		{
			name:          "no languages",
			cfg:           LanguageIdentifierConfig{SpeechKey: "key", SpeechRegion: "eastus"},
			expectedError: "invalid Languages: should contain between 1 and 4 locales",
		},
		{
			name: "too many languages",
			cfg: LanguageIdentifierConfig{SpeechKey: "key", SpeechRegion: "eastus",
				Languages: []string{"en-US", "fr-FR", "de-DE", "es-ES", "it-IT"}},
			expectedError: "invalid Languages: should contain between 1 and 4 locales",
		},
		{
			name: "blank locale",
			cfg: LanguageIdentifierConfig{SpeechKey: "key", SpeechRegion: "eastus",
				Languages: []string{"en-US", " "}},
			expectedError: `invalid Languages: " " is not a valid locale`,
		},
		{
			name: "valid",
			cfg: LanguageIdentifierConfig{SpeechKey: "key", SpeechRegion: "eastus",
				Languages: []string{"en-US", "fr-FR"}},
		},
	}

	for _, tc := range tcs {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.cfg.IsValid()
			if tc.expectedError == "" {
				require.NoError(t, err)
			} else {
				require.EqualError(t, err, tc.expectedError)
			}
		})
	}
}

func TestNewLanguageIdentifier(t *testing.T) {
	s, err := NewLanguageIdentifier(LanguageIdentifierConfig{
		SpeechKey:    "key",
		SpeechRegion: "eastus",
		Languages:    []string{"en-US", "en-GB", "es-MX"},
	})
	require.NoError(t, err)
	require.Equal(t, []string{"en", "es"}, s.Vocabulary().Codes())
	require.NoError(t, s.Destroy())

	_, err = s.Classify(context.Background(), nil, audioSampleRate)
	require.EqualError(t, err, "samples should not be empty")

	_, err = s.Classify(context.Background(), make([]float32, 10), 8000)
	require.EqualError(t, err, "unsupported sample rate 8000")
}

func TestClassify(t *testing.T) {
	key := os.Getenv("AZURE_SPEECH_KEY")
	region := os.Getenv("AZURE_SPEECH_REGION")
	if key == "" || region == "" {
		t.Skip("AZURE_SPEECH_KEY or AZURE_SPEECH_REGION is not set")
	}
	path := os.Getenv("AZURE_TEST_WAV")
	if path == "" {
		t.Skip("AZURE_TEST_WAV is not set")
	}

	s, err := NewLanguageIdentifier(LanguageIdentifierConfig{
		SpeechKey:    key,
		SpeechRegion: region,
		Languages:    strings.Split("en-US,es-ES", ","),
	})
	require.NoError(t, err)

	wf, err := audio.Load(context.Background(), path)
	require.NoError(t, err)

	res, err := s.Classify(context.Background(), wf.Samples, wf.SampleRate)
	require.NoError(t, err)
	require.True(t, res.Degraded)
	require.True(t, s.Vocabulary().Contains(res.Label))
}
