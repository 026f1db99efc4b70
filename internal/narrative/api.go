package narrative

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	defaultAPIRetries        = 2
	defaultAPIRetryBackoff   = 500 * time.Millisecond
	defaultAPITimeout        = 30 * time.Second
	maxHTTPErrorBodyReadSize = 64 * 1024
	maxNarrativeBodyBytes    = 1 << 20
)

// APIGeneratorConfig configures an HTTP-backed generator. The endpoint
// receives a JSON Request per call and answers {"text": "..."}.
type APIGeneratorConfig struct {
	Endpoint     string
	AuthToken    string
	Timeout      time.Duration
	Retries      int
	RetryBackoff time.Duration
	Logger       *log.Logger
	Client       *http.Client
}

// APIGenerator delegates narrative text to an external HTTP service with
// bounded retries on transient failures.
type APIGenerator struct {
	endpoint     string
	authToken    string
	retries      int
	retryBackoff time.Duration
	logger       *log.Logger
	client       *http.Client
}

func NewAPIGenerator(cfg APIGeneratorConfig) (*APIGenerator, error) {
	endpoint := strings.TrimSpace(cfg.Endpoint)
	if endpoint == "" {
		return nil, fmt.Errorf("empty narrative endpoint")
	}
	if _, err := url.ParseRequestURI(endpoint); err != nil {
		return nil, fmt.Errorf("invalid narrative endpoint %q: %w", endpoint, err)
	}
	if cfg.Logger == nil {
		cfg.Logger = log.Default()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultAPITimeout
	}
	retries := cfg.Retries
	if retries <= 0 {
		retries = defaultAPIRetries
	}
	retryBackoff := cfg.RetryBackoff
	if retryBackoff <= 0 {
		retryBackoff = defaultAPIRetryBackoff
	}
	client := cfg.Client
	if client == nil {
		client = &http.Client{Timeout: timeout}
	}
	return &APIGenerator{
		endpoint:     endpoint,
		authToken:    strings.TrimSpace(cfg.AuthToken),
		retries:      retries,
		retryBackoff: retryBackoff,
		logger:       cfg.Logger,
		client:       client,
	}, nil
}

func (g *APIGenerator) Generate(ctx context.Context, req Request) (string, error) {
	var lastErr error
	for attempt := 1; attempt <= g.retries+1; attempt++ {
		text, err := g.generateOnce(ctx, req)
		if err == nil {
			return text, nil
		}
		lastErr = err
		if !isRetryableAPIError(err) || attempt == g.retries+1 {
			break
		}
		wait := time.Duration(attempt) * g.retryBackoff
		g.logger.Printf("narrative api retry attempt=%d wait=%s reason=%v", attempt, wait, err)
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return "", ctx.Err()
		case <-timer.C:
		}
	}
	if lastErr == nil {
		lastErr = errors.New("unknown narrative generation error")
	}
	return "", lastErr
}

func (g *APIGenerator) generateOnce(ctx context.Context, req Request) (string, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("marshal narrative request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, g.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create narrative request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if g.authToken != "" {
		httpReq.Header.Set("Authorization", "Bearer "+g.authToken)
	}

	resp, err := g.client.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("narrative api request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		errBody, readErr := io.ReadAll(io.LimitReader(resp.Body, maxHTTPErrorBodyReadSize))
		if readErr != nil {
			return "", fmt.Errorf("narrative api status=%d and read body failed: %w", resp.StatusCode, readErr)
		}
		return "", apiHTTPError{statusCode: resp.StatusCode, body: strings.TrimSpace(string(errBody))}
	}

	var out struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxNarrativeBodyBytes)).Decode(&out); err != nil {
		return "", fmt.Errorf("decode narrative response: %w", err)
	}
	return strings.TrimSpace(out.Text), nil
}

type apiHTTPError struct {
	statusCode int
	body       string
}

func (e apiHTTPError) Error() string {
	if e.body == "" {
		return fmt.Sprintf("narrative api status=%d", e.statusCode)
	}
	return fmt.Sprintf("narrative api status=%d body=%s", e.statusCode, e.body)
}

func isRetryableAPIError(err error) bool {
	var statusErr apiHTTPError
	if errors.As(err, &statusErr) {
		return statusErr.statusCode == http.StatusTooManyRequests || statusErr.statusCode >= http.StatusInternalServerError
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	return false
}
