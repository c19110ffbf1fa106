// Package fmcsa provides a client for the FMCSA QCMobile carrier registry.
package fmcsa

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"

	"github.com/sells-group/inbound-carrier/internal/resilience"
)

const defaultBaseURL = "https://mobile.fmcsa.dot.gov/qc/services"

// Client looks up carriers in the federal registry.
type Client interface {
	// CarrierByDocket returns the carrier registered under an MC docket
	// number, or nil with no error when the registry has no such carrier.
	CarrierByDocket(ctx context.Context, mcNumber string) (*Carrier, error)
}

// Carrier is the subset of the registry's carrier record the service uses.
type Carrier struct {
	DOTNumber        int64            `json:"dotNumber"`
	LegalName        string           `json:"legalName"`
	DBAName          string           `json:"dbaName"`
	AllowedToOperate string           `json:"allowedToOperate"`
	StatusCode       string           `json:"statusCode"`
	CarrierOperation CarrierOperation `json:"carrierOperation"`
}

// CarrierOperation describes how the carrier operates.
type CarrierOperation struct {
	Code        string `json:"carrierOperationCode"`
	Description string `json:"carrierOperationDesc"`
}

// Authorized reports whether the registry allows the carrier to operate.
func (c *Carrier) Authorized() bool {
	return strings.EqualFold(strings.TrimSpace(c.AllowedToOperate), "Y")
}

// Name returns the legal name, falling back to the DBA name.
func (c *Carrier) Name() string {
	if n := strings.TrimSpace(c.LegalName); n != "" {
		return n
	}
	return strings.TrimSpace(c.DBAName)
}

type docketResponse struct {
	Content []struct {
		Carrier Carrier `json:"carrier"`
	} `json:"content"`
}

// Option configures the client.
type Option func(*httpClient)

// WithBaseURL overrides the default API base URL.
func WithBaseURL(url string) Option {
	return func(c *httpClient) {
		c.baseURL = strings.TrimRight(url, "/")
	}
}

// WithHTTPClient overrides the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

// WithRateLimit caps outbound requests per second.
func WithRateLimit(perSec float64, burst int) Option {
	return func(c *httpClient) {
		if perSec > 0 {
			if burst <= 0 {
				burst = 1
			}
			c.limiter = rate.NewLimiter(rate.Limit(perSec), burst)
		}
	}
}

// WithRetry overrides the retry policy for transient failures.
func WithRetry(cfg resilience.RetryConfig) Option {
	return func(c *httpClient) {
		c.retry = cfg
	}
}

type httpClient struct {
	webKey  string
	baseURL string
	http    *http.Client
	limiter *rate.Limiter
	retry   resilience.RetryConfig
}

// NewClient creates a registry client authenticated with webKey.
func NewClient(webKey string, opts ...Option) Client {
	retry := resilience.DefaultRetryConfig()
	retry.MaxAttempts = 2
	retry.OnRetry = resilience.RetryLogger("fmcsa", "carrier_by_docket")

	c := &httpClient{
		webKey:  webKey,
		baseURL: defaultBaseURL,
		http: &http.Client{
			Timeout: 10 * time.Second,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		limiter: rate.NewLimiter(5, 5),
		retry:   retry,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *httpClient) CarrierByDocket(ctx context.Context, mcNumber string) (*Carrier, error) {
	return resilience.DoVal(ctx, c.retry, func(ctx context.Context) (*Carrier, error) {
		return c.lookup(ctx, mcNumber)
	})
}

func (c *httpClient) lookup(ctx context.Context, mcNumber string) (*Carrier, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, eris.Wrap(err, "fmcsa: rate limit wait")
		}
	}

	reqURL := c.baseURL + "/carriers/docket-number/" + url.PathEscape(mcNumber) +
		"?webKey=" + url.QueryEscape(c.webKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, eris.Wrap(err, "fmcsa: create request")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, resilience.NewTransientError(eris.Wrap(err, "fmcsa: request failed"), 0)
	}
	defer resp.Body.Close() //nolint:errcheck

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resilience.NewTransientError(eris.Wrap(err, "fmcsa: read response body"), resp.StatusCode)
	}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, nil
	case resilience.IsTransientHTTPStatus(resp.StatusCode):
		return nil, resilience.NewTransientError(
			eris.Errorf("fmcsa: status %d: %s", resp.StatusCode, truncate(body, 200)), resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		return nil, eris.Errorf("fmcsa: unexpected status %d: %s", resp.StatusCode, truncate(body, 200))
	}

	var result docketResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, eris.Wrap(err, "fmcsa: unmarshal response")
	}
	if len(result.Content) == 0 {
		return nil, nil
	}
	carrier := result.Content[0].Carrier
	return &carrier, nil
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
