package embed

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
	gobreaker "github.com/sony/gobreaker/v2"

	"match-service/internal/metrics"
)

const (
	defaultModel   = "clip-ViT-B-32"
	breakerName    = "clip"
	maxErrBodySize = 512
)

// HTTPConfig points at a CLIP inference server.
type HTTPConfig struct {
	URL     string
	Model   string
	Timeout time.Duration
}

// HTTPBackend talks to a CLIP server exposing /health, /embed/text and
// /embed/image. Calls go through a circuit breaker so a dead server costs
// one fast rejection per request instead of a timeout.
type HTTPBackend struct {
	httpClient *http.Client
	baseURL    string
	model      string
	cb         *gobreaker.CircuitBreaker[[][]float32]
	logger     zerolog.Logger
}

type embedRequest struct {
	Model  string   `json:"model"`
	Texts  []string `json:"texts,omitempty"`
	Images []string `json:"images,omitempty"`
}

type embedResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
	Error      string      `json:"error,omitempty"`
}

// NewHTTPBackend validates cfg and builds the client. No network traffic.
func NewHTTPBackend(cfg HTTPConfig, logger zerolog.Logger) (*HTTPBackend, error) {
	base := strings.TrimRight(strings.TrimSpace(cfg.URL), "/")
	if base == "" {
		return nil, ErrBackendNotConfigured
	}
	if cfg.Model == "" {
		cfg.Model = defaultModel
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	lg := logger.With().Str("component", "clip").Str("url", base).Logger()

	metrics.SetBreakerState(breakerName, 0)
	cb := gobreaker.NewCircuitBreaker[[][]float32](gobreaker.Settings{
		Name:        breakerName,
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		// >= 60% failures over at least 5 requests
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < 5 {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) >= 0.6
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			lg.Warn().Str("from", from.String()).Str("to", to.String()).Msg("circuit breaker state change")
			metrics.SetBreakerState(name, breakerStateValue(to))
			metrics.IncBreakerTransition(name, from.String(), to.String())
		},
	})

	return &HTTPBackend{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    base,
		model:      cfg.Model,
		cb:         cb,
		logger:     lg,
	}, nil
}

// HTTPLoader returns a Loader that builds an HTTPBackend and checks the
// server answers /health before declaring it ready.
func HTTPLoader(cfg HTTPConfig, logger zerolog.Logger) Loader {
	return func(ctx context.Context) (Backend, error) {
		b, err := NewHTTPBackend(cfg, logger)
		if err != nil {
			return nil, err
		}
		if err := b.Ping(ctx); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		return b, nil
	}
}

func (b *HTTPBackend) Model() string { return b.model }

// Ping checks the server health endpoint.
func (b *HTTPBackend) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, b.baseURL+"/health", nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	resp, err := b.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health: status %d", resp.StatusCode)
	}
	return nil
}

func (b *HTTPBackend) EmbedText(ctx context.Context, text string) ([]float32, error) {
	return b.single(ctx, "/embed/text", embedRequest{Model: b.model, Texts: []string{text}})
}

func (b *HTTPBackend) EmbedImage(ctx context.Context, image []byte) ([]float32, error) {
	enc := base64.StdEncoding.EncodeToString(image)
	return b.single(ctx, "/embed/image", embedRequest{Model: b.model, Images: []string{enc}})
}

func (b *HTTPBackend) single(ctx context.Context, path string, body embedRequest) ([]float32, error) {
	vecs, err := b.cb.Execute(func() ([][]float32, error) {
		return b.post(ctx, path, body)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		return nil, err
	}
	if len(vecs) == 0 || len(vecs[0]) == 0 {
		return nil, fmt.Errorf("%s: no embedding returned", path)
	}
	return vecs[0], nil
}

func (b *HTTPBackend) post(ctx context.Context, path string, body embedRequest) ([][]float32, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := b.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	var out embedResponse
	if resp.StatusCode != http.StatusOK {
		if json.Unmarshal(raw, &out) == nil && out.Error != "" {
			return nil, fmt.Errorf("%s: status %d: %s", path, resp.StatusCode, out.Error)
		}
		if len(raw) > maxErrBodySize {
			raw = raw[:maxErrBodySize]
		}
		return nil, fmt.Errorf("%s: status %d, body: %s", path, resp.StatusCode, string(raw))
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("unmarshal response: %w", err)
	}
	return out.Embeddings, nil
}

func breakerStateValue(s gobreaker.State) float64 {
	switch s {
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return 0
	}
}
