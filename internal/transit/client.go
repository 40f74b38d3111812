// Package transit fetches live CTA arrival predictions for a stop and
// normalizes bus and train responses into a common shape.
//
// The Bus Tracker and Train Tracker APIs are separate products with
// separate keys. Auth is a key query parameter; rate limiting is handled
// via a token bucket limiter shared by both endpoints.
package transit

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/time/rate"

	"github.com/mfigueroa/linealert/internal/cache"
)

// Kind selects which CTA API a prediction request goes to.
type Kind string

const (
	KindBus   Kind = "bus"
	KindTrain Kind = "train"
)

// NeverMinutes marks a prediction whose countdown was missing or
// unparsable. It compares greater than any real threshold, so the matcher
// drops these naturally.
const NeverMinutes = math.MaxInt32

// Prediction is one upcoming arrival at a stop.
type Prediction struct {
	Line           string `json:"line"`
	ArrivalMinutes int    `json:"arrival_minutes"`
	StopID         string `json:"stop_id"`
}

// ErrMissingAPIKey is returned when the key for the requested kind is not
// configured. It is a configuration problem: callers log it and treat the
// call's contribution as empty rather than retrying.
var ErrMissingAPIKey = errors.New("transit API key not configured")

// Default production endpoints.
const (
	DefaultBusBaseURL   = "http://www.ctabustracker.com/bustime/api/v2"
	DefaultTrainBaseURL = "https://lapi.transitchicago.com/api/1.0"
)

// Client is the shared HTTP client for both CTA prediction endpoints.
type Client struct {
	httpClient   *http.Client
	busBaseURL   string
	trainBaseURL string
	busKey       string
	trainKey     string
	limiter      *rate.Limiter
	cache        *cache.Cache[[]Prediction]
	logger       *slog.Logger
}

// NewClient creates a CTA prediction client with rate limiting and a
// per-stop response cache. cacheTTL <= 0 disables caching.
func NewClient(busBaseURL, trainBaseURL, busKey, trainKey string, requestsPerMinute int, timeout, cacheTTL time.Duration, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	if busBaseURL == "" {
		busBaseURL = DefaultBusBaseURL
	}
	if trainBaseURL == "" {
		trainBaseURL = DefaultTrainBaseURL
	}
	// requestsPerMinute <= 0 disables rate limiting, like cacheTTL <= 0
	// disables caching. A zero rate would block every Wait forever.
	limit := rate.Inf
	if requestsPerMinute > 0 {
		limit = rate.Limit(float64(requestsPerMinute) / 60.0)
	}
	c := &Client{
		httpClient:   &http.Client{Timeout: timeout},
		busBaseURL:   busBaseURL,
		trainBaseURL: trainBaseURL,
		busKey:       busKey,
		trainKey:     trainKey,
		limiter:      rate.NewLimiter(limit, 1),
		logger:       logger,
	}
	if cacheTTL > 0 {
		c.cache = cache.New[[]Prediction](cacheTTL)
	}
	return c
}

// Predictions fetches arrivals of one kind for a stop.
//
// The only error it returns is a missing API key. Network and response
// shape failures are recovered locally: the train path degrades to a
// fixed synthetic fallback list, the bus path to an empty list.
func (c *Client) Predictions(ctx context.Context, stopID string, kind Kind) ([]Prediction, error) {
	switch kind {
	case KindBus:
		return c.busPredictions(ctx, stopID)
	case KindTrain:
		return c.trainPredictions(ctx, stopID)
	default:
		return nil, fmt.Errorf("unknown transit kind %q", kind)
	}
}

// AllPredictions concatenates bus and train predictions for a stop.
// Missing keys are logged and contribute nothing.
func (c *Client) AllPredictions(ctx context.Context, stopID string) []Prediction {
	var all []Prediction
	for _, kind := range []Kind{KindBus, KindTrain} {
		preds, err := c.Predictions(ctx, stopID, kind)
		if err != nil {
			c.logger.Warn("prediction fetch skipped", "kind", kind, "stop_id", stopID, "error", err)
			continue
		}
		all = append(all, preds...)
	}
	return all
}

// get performs a rate-limited GET and returns the raw body.
func (c *Client) get(ctx context.Context, rawURL string) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("status %d: %s", resp.StatusCode, truncate(body, 200))
	}
	return body, nil
}

func (c *Client) cacheGet(key string) ([]Prediction, bool) {
	if c.cache == nil {
		return nil, false
	}
	return c.cache.Get(key)
}

func (c *Client) cacheSet(key string, preds []Prediction) {
	if c.cache != nil {
		c.cache.Set(key, preds)
	}
}

func cacheKey(kind Kind, stopID string) string {
	return string(kind) + ":" + stopID
}

func truncate(b []byte, maxLen int) string {
	if len(b) <= maxLen {
		return string(b)
	}
	return string(b[:maxLen]) + "..."
}

// encodeQuery is a small helper so bus and train build URLs the same way.
func encodeQuery(base, path string, params url.Values) string {
	return base + path + "?" + params.Encode()
}
