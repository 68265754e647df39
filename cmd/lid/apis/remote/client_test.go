package remote

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/clamsproject/spoken-lid/cmd/lid/lid"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestConfigIsValid(t *testing.T) {
	tcs := []struct {
		name          string
		cfg           Config
		expectedError string
	}{
		{
			name:          "empty",
			cfg:           Config{},
			expectedError: "invalid URL: should not be empty",
		},
		{
			name:          "bad scheme",
			cfg:           Config{URL: "ftp://example.com"},
			expectedError: "invalid URL: scheme should be http or https",
		},
		{
			name:          "negative timeout",
			cfg:           Config{URL: "http://localhost", Timeout: -time.Second},
			expectedError: "invalid Timeout: should not be negative",
		},
		{
			name: "valid",
			cfg:  Config{URL: "https://example.com/lid"},
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

func TestDecodeResponse(t *testing.T) {
	tcs := []struct {
		name          string
		body          string
		expectedKind  lid.Kind
		expectedLabel string
		expectedError string
	}{
		{
			name:         "records",
			body:         `[{"language": "en", "probability": 0.9}, {"language": "fr", "probability": 0.1}]`,
			expectedKind: lid.KindRecords,
		},
		{
			name:         "keyed",
			body:         `{"en": 0.9, "fr": 0.1}`,
			expectedKind: lid.KindKeyed,
		},
		{
			name:          "wrapped",
			body:          `{"label": "en", "scores": {"en": 0.9, "fr": 0.1}}`,
			expectedKind:  lid.KindKeyed,
			expectedLabel: "en",
		},
		{
			name:          "not json",
			body:          `<html>`,
			expectedError: "invalid score format: failed to decode response: invalid character '<' looking for beginning of value",
		},
		{
			name:          "non numeric",
			body:          `{"en": "high"}`,
			expectedError: `invalid score format: non-numeric score for "en"`,
		},
		{
			name:          "bad record",
			body:          `[1, 2]`,
			expectedError: "invalid score format: expected record, got float64",
		},
		{
			name:          "scalar",
			body:          `0.5`,
			expectedError: "invalid score format: unexpected response of type float64",
		},
	}

	for _, tc := range tcs {
		t.Run(tc.name, func(t *testing.T) {
			res, err := decodeResponse([]byte(tc.body))
			if tc.expectedError != "" {
				require.EqualError(t, err, tc.expectedError)
				require.ErrorIs(t, err, lid.ErrFormat)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tc.expectedKind, res.Raw.Kind)
			require.Equal(t, tc.expectedLabel, res.Label)
		})
	}
}

func TestClassify(t *testing.T) {
	retryAttemptWaitTime = time.Millisecond
	defer func() {
		retryAttemptWaitTime = retryAttemptWaitTimeDef
	}()

	samples := make([]float32, 1600)

	t.Run("success", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			require.Equal(t, http.MethodPost, r.Method)
			require.Equal(t, "audio/wav", r.Header.Get("Content-Type"))
			_, err := uuid.Parse(r.Header.Get(requestIDHeader))
			require.NoError(t, err)

			data, err := io.ReadAll(r.Body)
			require.NoError(t, err)
			require.Equal(t, "RIFF", string(data[:4]))
			require.Len(t, data, 44+len(samples)*2)

			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`[{"language": "fr", "probability": 0.7}, {"language": "en", "probability": 0.3}]`))
		}))
		defer srv.Close()

		c, err := NewClient(Config{URL: srv.URL, Languages: []string{"en", "fr"}})
		require.NoError(t, err)
		defer func() {
			require.NoError(t, c.Destroy())
		}()

		res, err := c.Classify(context.Background(), samples, 16000)
		require.NoError(t, err)

		scores, err := lid.Normalize(res.Raw, c.Vocabulary())
		require.NoError(t, err)
		require.Equal(t, "fr", scores[0].Label)
		require.Equal(t, 0.7, scores[0].Prob)
	})

	t.Run("retry on server error", func(t *testing.T) {
		var calls atomic.Int32
		var requestIDs []string
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			requestIDs = append(requestIDs, r.Header.Get(requestIDHeader))
			if calls.Add(1) == 1 {
				w.WriteHeader(http.StatusServiceUnavailable)
				return
			}
			_, _ = w.Write([]byte(`{"en": 1}`))
		}))
		defer srv.Close()

		c, err := NewClient(Config{URL: srv.URL})
		require.NoError(t, err)

		res, err := c.Classify(context.Background(), samples, 16000)
		require.NoError(t, err)
		require.Equal(t, lid.KindKeyed, res.Raw.Kind)
		require.Equal(t, int32(2), calls.Load())
		require.Len(t, requestIDs, 2)
		require.Equal(t, requestIDs[0], requestIDs[1])
	})

	t.Run("no retry on client error", func(t *testing.T) {
		var calls atomic.Int32
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			calls.Add(1)
			http.Error(w, "bad audio", http.StatusBadRequest)
		}))
		defer srv.Close()

		c, err := NewClient(Config{URL: srv.URL})
		require.NoError(t, err)

		_, err = c.Classify(context.Background(), samples, 16000)
		require.ErrorIs(t, err, lid.ErrInference)
		require.EqualError(t, err, "inference failed: unexpected status code 400: bad audio")
		require.Equal(t, int32(1), calls.Load())
	})

	t.Run("gives up", func(t *testing.T) {
		var calls atomic.Int32
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			calls.Add(1)
			w.WriteHeader(http.StatusInternalServerError)
		}))
		defer srv.Close()

		c, err := NewClient(Config{URL: srv.URL})
		require.NoError(t, err)

		_, err = c.Classify(context.Background(), samples, 16000)
		require.ErrorIs(t, err, lid.ErrInference)
		require.Equal(t, int32(maxRetryAttempts), calls.Load())
	})

	t.Run("destroyed", func(t *testing.T) {
		c, err := NewClient(Config{URL: "http://localhost"})
		require.NoError(t, err)
		require.NoError(t, c.Destroy())
		require.EqualError(t, c.Destroy(), "client is not initialized")

		_, err = c.Classify(context.Background(), samples, 16000)
		require.EqualError(t, err, "client is not initialized")
	})
}
