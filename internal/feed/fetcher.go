package feed

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"time"

	securitynet "agora/internal/security/netutil"
)

const (
	DefaultUserAgent    = "Agora/1.0"
	DefaultMaxFeedBytes = 5 << 20
	DefaultFetchTimeout = 30 * time.Second

	acceptHeader = "application/rss+xml, application/xml"
	maxRedirects = 5
)

var ErrFeedTooLarge = errors.New("feed exceeds size limit")

// FetchError is the single failure recorded when a feed cannot be downloaded.
// Its message is shown to administrators as is.
type FetchError struct {
	URL        string
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("Impossible de récupérer le flux RSS (%d).", e.StatusCode)
	}
	return fmt.Sprintf("Impossible de récupérer le flux RSS : %v", e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

type FetcherConfig struct {
	Timeout   time.Duration
	MaxBytes  int64
	UserAgent string
	// Lookup resolves hosts for the private-address guard. Nil uses DNS.
	Lookup securitynet.LookupFunc
}

// Fetcher downloads feed documents over HTTP.
type Fetcher struct {
	client    *http.Client
	logger    *log.Logger
	maxBytes  int64
	userAgent string
	lookup    securitynet.LookupFunc
}

func NewFetcher(logger *log.Logger, cfg FetcherConfig) *Fetcher {
	if logger == nil {
		logger = log.Default()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultFetchTimeout
	}
	if cfg.MaxBytes <= 0 {
		cfg.MaxBytes = DefaultMaxFeedBytes
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = DefaultUserAgent
	}

	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           (&net.Dialer{Timeout: 10 * time.Second, KeepAlive: 30 * time.Second}).DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   10,
		IdleConnTimeout:       90 * time.Second,
		ResponseHeaderTimeout: 10 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}

	f := &Fetcher{
		logger:    logger,
		maxBytes:  cfg.MaxBytes,
		userAgent: cfg.UserAgent,
		lookup:    cfg.Lookup,
	}
	f.client = &http.Client{
		Timeout:   cfg.Timeout,
		Transport: transport,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= maxRedirects {
				return fmt.Errorf("stopped after %d redirects", maxRedirects)
			}
			return securitynet.CheckHost(req.URL.Hostname(), f.lookup)
		},
	}
	return f
}

// Fetch returns the body of the document at feedURL. Transport failures,
// non-2xx statuses and oversized bodies are reported as *FetchError.
func (f *Fetcher) Fetch(ctx context.Context, feedURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, feedURL, nil)
	if err != nil {
		return "", &FetchError{URL: feedURL, Err: err}
	}
	req.Header.Set("Accept", acceptHeader)
	req.Header.Set("User-Agent", f.userAgent)

	// Resolve host and block private/reserved ranges (allow loopback for tests)
	if err := securitynet.CheckHost(req.URL.Hostname(), f.lookup); err != nil {
		return "", &FetchError{URL: feedURL, Err: err}
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return "", &FetchError{URL: feedURL, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
		return "", &FetchError{URL: feedURL, StatusCode: resp.StatusCode}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBytes+1))
	if err != nil {
		return "", &FetchError{URL: feedURL, Err: err}
	}
	if int64(len(body)) > f.maxBytes {
		return "", &FetchError{URL: feedURL, Err: ErrFeedTooLarge}
	}
	return string(body), nil
}
