package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"
)

const defaultBaseURL = "https://api.aladhan.com/v1"

var (
	// ErrCircuitOpen is returned while the provider is considered down.
	ErrCircuitOpen = errors.New("prayer times API unavailable (circuit open)")

	errRateLimited = errors.New("rate limited")
	errServerError = errors.New("server error")
)

// Params are the optional calculation parameters. A negative value leaves
// the choice to the provider.
type Params struct {
	Method             int
	School             int
	LatitudeAdjustment int
}

// DefaultParams leaves every parameter unset.
func DefaultParams() Params {
	return Params{Method: -1, School: -1, LatitudeAdjustment: -1}
}

func (p Params) apply(v url.Values) {
	if p.Method >= 0 {
		v.Set("method", strconv.Itoa(p.Method))
	}
	if p.School >= 0 {
		v.Set("school", strconv.Itoa(p.School))
	}
	if p.LatitudeAdjustment >= 0 {
		v.Set("latitudeAdjustmentMethod", strconv.Itoa(p.LatitudeAdjustment))
	}
}

// BackoffConfig controls retries of transient failures.
type BackoffConfig struct {
	MaxRetries      int
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

// Client communicates with the Al Adhan prayer times API.
type Client struct {
	httpClient *http.Client
	breaker    *gobreaker.CircuitBreaker
	log        zerolog.Logger

	// BaseURL is the API base URL. Defaults to the Al Adhan API.
	// Exported for testing with httptest.
	BaseURL string
	Backoff BackoffConfig
}

// NewClient creates a new API client with sensible defaults.
func NewClient() *Client {
	c := &Client{
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		log:     zerolog.Nop(),
		BaseURL: defaultBaseURL,
		Backoff: BackoffConfig{
			MaxRetries:      2,
			InitialInterval: 500 * time.Millisecond,
			MaxInterval:     4 * time.Second,
		},
	}
	c.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "aladhan",
		MaxRequests: 1,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			c.log.Warn().Str("breaker", name).Stringer("from", from).Stringer("to", to).Msg("circuit breaker state changed")
		},
	})
	return c
}

// SetLogger replaces the client's logger.
func (c *Client) SetLogger(l zerolog.Logger) {
	c.log = l
}

// FetchByCoordinates fetches prayer times for the given date and coordinates.
func (c *Client) FetchByCoordinates(ctx context.Context, date time.Time, lat, lon float64, p Params) (*Response, error) {
	endpoint := fmt.Sprintf("%s/timings/%s", c.BaseURL, date.Format("02-01-2006"))

	params := url.Values{}
	params.Set("latitude", fmt.Sprintf("%f", lat))
	params.Set("longitude", fmt.Sprintf("%f", lon))
	p.apply(params)

	return c.doRequest(ctx, endpoint, params)
}

// FetchByCity fetches prayer times for the given date, city, and country.
func (c *Client) FetchByCity(ctx context.Context, date time.Time, city, country string, p Params) (*Response, error) {
	endpoint := fmt.Sprintf("%s/timingsByCity/%s", c.BaseURL, date.Format("02-01-2006"))

	params := url.Values{}
	params.Set("city", city)
	params.Set("country", country)
	p.apply(params)

	return c.doRequest(ctx, endpoint, params)
}

func (c *Client) doRequest(ctx context.Context, endpoint string, params url.Values) (*Response, error) {
	reqURL := fmt.Sprintf("%s?%s", endpoint, params.Encode())

	resp, err := c.doWithResilience(ctx, func() (*http.Request, error) {
		return http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	})
	if err != nil {
		return nil, fmt.Errorf("API request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("API returned status %d: %s", resp.StatusCode, string(body))
	}

	var apiResp Response
	if err := json.NewDecoder(resp.Body).Decode(&apiResp); err != nil {
		return nil, fmt.Errorf("failed to decode API response: %w", err)
	}

	if apiResp.Code != 200 {
		return nil, fmt.Errorf("API error: code=%d status=%s", apiResp.Code, apiResp.Status)
	}

	return &apiResp, nil
}

// doWithResilience runs the request inside the circuit breaker and retries
// transport errors, 429 and 5xx with exponential backoff. Other statuses are
// returned to the caller as-is.
func (c *Client) doWithResilience(ctx context.Context, build func() (*http.Request, error)) (*http.Response, error) {
	var attempt int
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		req, err := build()
		if err != nil {
			return nil, err
		}

		result, err := c.breaker.Execute(func() (interface{}, error) {
			resp, err := c.httpClient.Do(req)
			if err != nil {
				return nil, err
			}
			switch {
			case resp.StatusCode == http.StatusTooManyRequests:
				drain(resp)
				return nil, errRateLimited
			case resp.StatusCode >= 500:
				drain(resp)
				return nil, fmt.Errorf("%w: status %d", errServerError, resp.StatusCode)
			}
			return resp, nil
		})
		if err == nil {
			return result.(*http.Response), nil
		}

		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, ErrCircuitOpen
		}
		if attempt >= c.Backoff.MaxRetries {
			return nil, err
		}

		delay := c.Backoff.InitialInterval * time.Duration(math.Pow(2, float64(attempt)))
		if c.Backoff.MaxInterval > 0 && delay > c.Backoff.MaxInterval {
			delay = c.Backoff.MaxInterval
		}
		c.log.Debug().Err(err).Int("attempt", attempt+1).Dur("backoff", delay).Msg("retrying prayer times request")

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
		attempt++
	}
}

func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
	resp.Body.Close()
}
