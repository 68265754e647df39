package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/clamsproject/spoken-lid/cmd/lid/audio"
	"github.com/clamsproject/spoken-lid/cmd/lid/lid"

	"github.com/google/uuid"
)

const (
	httpRequestTimeout      = 60 * time.Second
	maxResponseSize         = 1 << 20
	maxRetryAttempts        = 3
	retryAttemptWaitTimeDef = time.Second
	requestIDHeader         = "X-Request-ID"
)

var retryAttemptWaitTime = retryAttemptWaitTimeDef

type Config struct {
	// The endpoint that receives the WAV encoded window.
	URL string
	// The languages the service can answer with. VoxLingua107 if empty.
	Languages []string
	Timeout   time.Duration
}

func (c Config) IsValid() error {
	if c.URL == "" {
		return fmt.Errorf("invalid URL: should not be empty")
	}

	u, err := url.Parse(c.URL)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("invalid URL: scheme should be http or https")
	}

	if c.Timeout < 0 {
		return fmt.Errorf("invalid Timeout: should not be negative")
	}

	return nil
}

// Client classifies windows by posting them to a language identification
// service. Responses are either a list of records, e.g.
// [{"language": "en", "probability": 0.9}], a keyed object, e.g.
// {"en": 0.9, "fr": 0.1}, or an object holding one of those under "scores"
// together with an optional "label".
type Client struct {
	cfg        Config
	httpClient *http.Client
	vocab      lid.Vocabulary
}

func NewClient(cfg Config) (*Client, error) {
	if err := cfg.IsValid(); err != nil {
		return nil, fmt.Errorf("failed to validate config: %w", err)
	}

	if cfg.Timeout == 0 {
		cfg.Timeout = httpRequestTimeout
	}

	codes := cfg.Languages
	if len(codes) == 0 {
		codes = lid.VoxLingua107
	}
	vocab, err := lid.NewVocabulary(codes)
	if err != nil {
		return nil, fmt.Errorf("failed to build vocabulary: %w", err)
	}

	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		vocab:      vocab,
	}, nil
}

func (c *Client) Vocabulary() lid.Vocabulary {
	return c.vocab
}

func (c *Client) Destroy() error {
	if c.httpClient == nil {
		return fmt.Errorf("client is not initialized")
	}
	c.httpClient.CloseIdleConnections()
	c.httpClient = nil
	return nil
}

type statusError struct {
	code int
	body string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("unexpected status code %d: %s", e.code, e.body)
}

func (c *Client) Classify(ctx context.Context, samples []float32, sampleRate int) (lid.Result, error) {
	if len(samples) == 0 {
		return lid.Result{}, fmt.Errorf("samples should not be empty")
	}
	if c.httpClient == nil {
		return lid.Result{}, fmt.Errorf("client is not initialized")
	}

	payload := audio.EncodeWAV(samples, sampleRate)
	requestID := uuid.NewString()

	var body []byte
	var err error
	for i := 0; i < maxRetryAttempts; i++ {
		if i > 0 {
			slog.Warn("retrying request",
				slog.String("requestID", requestID),
				slog.Int("attempt", i+1),
				slog.String("err", err.Error()))
			select {
			case <-time.After(retryAttemptWaitTime):
			case <-ctx.Done():
				return lid.Result{}, ctx.Err()
			}
		}

		body, err = c.post(ctx, payload, requestID)
		if err == nil {
			break
		}
		if ctx.Err() != nil {
			return lid.Result{}, ctx.Err()
		}
		// Only server side failures are worth retrying.
		var se *statusError
		if errors.As(err, &se) && se.code < http.StatusInternalServerError {
			break
		}
	}
	if err != nil {
		return lid.Result{}, fmt.Errorf("%w: %w", lid.ErrInference, err)
	}

	return decodeResponse(body)
}

func (c *Client) post(ctx context.Context, payload []byte, requestID string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.URL, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "audio/wav")
	req.Header.Set("Accept", "application/json")
	req.Header.Set(requestIDHeader, requestID)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, &statusError{code: resp.StatusCode, body: string(bytes.TrimSpace(body))}
	}

	return body, nil
}

func decodeResponse(body []byte) (lid.Result, error) {
	var v any
	if err := json.Unmarshal(body, &v); err != nil {
		return lid.Result{}, fmt.Errorf("%w: failed to decode response: %w", lid.ErrFormat, err)
	}

	var res lid.Result
	if obj, ok := v.(map[string]any); ok {
		if scores, ok := obj["scores"]; ok {
			if label, ok := obj["label"].(string); ok {
				res.Label = label
			}
			v = scores
		}
	}

	raw, err := toRawScores(v)
	if err != nil {
		return lid.Result{}, err
	}
	res.Raw = raw

	return res, nil
}

func toRawScores(v any) (lid.RawScores, error) {
	switch t := v.(type) {
	case []any:
		records := make([]lid.Record, 0, len(t))
		for _, item := range t {
			m, ok := item.(map[string]any)
			if !ok {
				return lid.RawScores{}, fmt.Errorf("%w: expected record, got %T", lid.ErrFormat, item)
			}
			records = append(records, lid.Record(m))
		}
		return lid.Records(records), nil
	case map[string]any:
		keyed := make(map[string]float64, len(t))
		for k, val := range t {
			f, ok := val.(float64)
			if !ok {
				return lid.RawScores{}, fmt.Errorf("%w: non-numeric score for %q", lid.ErrFormat, k)
			}
			keyed[k] = f
		}
		return lid.Keyed(keyed), nil
	default:
		return lid.RawScores{}, fmt.Errorf("%w: unexpected response of type %T", lid.ErrFormat, v)
	}
}
