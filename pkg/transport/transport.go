// Package transport implements the HTTP client for the four index-server
// endpoints. Every call carries the caller's context, is retried with
// exponential backoff for transport faults, and is guarded by a circuit
// breaker. The transport only ever carries opaque material: sealed
// documents, derived lookup keys, and masked values.
package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/net/proxy"

	"github.com/opd-ai/go-emb25/pkg/config"
	"github.com/opd-ai/go-emb25/pkg/crypto"
	"github.com/opd-ai/go-emb25/pkg/errors"
	"github.com/opd-ai/go-emb25/pkg/logger"
	"github.com/opd-ai/go-emb25/pkg/metrics"
)

// Client talks to one index server.
type Client struct {
	base    string
	http    *http.Client
	policy  *errors.RetryPolicy
	breaker *errors.CircuitBreaker
	log     *logger.Logger
	met     *metrics.Metrics
}

// New creates a transport client from the configuration. With a SocksProxy
// configured, all traffic is dialed through the SOCKS5 proxy.
func New(cfg *config.Config, log *logger.Logger, met *metrics.Metrics) (*Client, error) {
	if log == nil {
		log = logger.NewDefault()
	}
	if met == nil {
		met = metrics.New()
	}

	httpClient, err := newHTTPClient(cfg)
	if err != nil {
		return nil, err
	}

	return &Client{
		base: strings.TrimRight(cfg.ServerURL, "/"),
		http: httpClient,
		policy: &errors.RetryPolicy{
			MaxAttempts:  cfg.MaxRetries,
			InitialDelay: cfg.RetryInitialDelay,
			MaxDelay:     cfg.RetryMaxDelay,
			Multiplier:   2.0,
			Jitter:       0.1,
			RetryableErrors: map[errors.ErrorCategory]bool{
				errors.CategoryNetwork: true,
				errors.CategoryTimeout: true,
			},
		},
		breaker: errors.NewCircuitBreaker(&errors.CircuitBreakerConfig{
			MaxFailures:         cfg.BreakerMaxFailures,
			Timeout:             cfg.BreakerTimeout,
			HalfOpenMaxRequests: 1,
			FailureThreshold:    0.5,
			MinRequests:         10,
		}),
		log: log.Component("transport"),
		met: met,
	}, nil
}

// newHTTPClient builds the underlying http.Client, optionally dialing
// through a SOCKS5 proxy.
func newHTTPClient(cfg *config.Config) (*http.Client, error) {
	dial := (&net.Dialer{Timeout: cfg.DialTimeout}).DialContext

	if cfg.SocksProxy != "" {
		proxyURL, err := url.Parse(cfg.SocksProxy)
		if err != nil {
			return nil, errors.ConfigurationError("failed to parse proxy URL", err)
		}
		dialer, err := proxy.FromURL(proxyURL, proxy.Direct)
		if err != nil {
			return nil, errors.ConfigurationError("failed to create SOCKS5 dialer", err)
		}

		dial = func(ctx context.Context, network, addr string) (net.Conn, error) {
			type result struct {
				conn net.Conn
				err  error
			}
			ch := make(chan result, 1)
			go func() {
				conn, err := dialer.Dial(network, addr)
				ch <- result{conn, err}
			}()
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case res := <-ch:
				return res.conn, res.err
			}
		}
	}

	return &http.Client{
		Timeout: cfg.RequestTimeout,
		Transport: &http.Transport{
			DialContext:     dial,
			MaxIdleConns:    10,
			IdleConnTimeout: 90 * time.Second,
		},
	}, nil
}

// PutDocument uploads one sealed document: POST /index/{id}.
func (c *Client) PutDocument(ctx context.Context, id uint64, doc crypto.EncryptedDocument) error {
	return c.do(ctx, http.MethodPost, fmt.Sprintf("/index/%d", id), doc, nil)
}

// GetDocument fetches one sealed document by id: GET /index/{id}.
// A 404 surfaces as a non-retryable storage error.
func (c *Client) GetDocument(ctx context.Context, id uint64) (crypto.EncryptedDocument, error) {
	var doc crypto.EncryptedDocument
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf("/index/%d", id), nil, &doc); err != nil {
		return crypto.EncryptedDocument{}, err
	}
	return doc, nil
}

// PostIndex uploads a batch of opaque posting records: POST /index.
func (c *Client) PostIndex(ctx context.Context, upd crypto.EncryptedIndexUpdate) error {
	return c.do(ctx, http.MethodPost, "/index", upd, nil)
}

// Lookup sends the planned lookup keys to POST /search and returns the
// value list. The server answers positionally: the i-th value belongs to
// the i-th key, and an empty slot is a miss. Any other shape is a protocol
// error.
func (c *Client) Lookup(ctx context.Context, keys [][]byte) ([][]byte, error) {
	var values [][]byte
	if err := c.do(ctx, http.MethodPost, "/search", keys, &values); err != nil {
		return nil, err
	}
	if len(values) != len(keys) {
		return nil, errors.ProtocolError("search response length mismatch", nil).
			WithContext("want", len(keys)).
			WithContext("got", len(values))
	}
	return values, nil
}

// do runs one JSON request through the breaker and the retry policy.
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var payload []byte
	if body != nil {
		var err error
		if payload, err = json.Marshal(body); err != nil {
			return errors.InternalError("failed to encode request body", err)
		}
	}

	attempts := 0
	err := c.breaker.Execute(ctx, func() error {
		return errors.RetryWithPolicy(ctx, c.policy, func() error {
			attempts++
			return c.attempt(ctx, method, path, payload, out)
		})
	})

	c.met.RecordRequest(err == nil, int64(attempts-1))
	if err != nil {
		c.log.Warn("request failed", "method", method, "path", path, "attempts", attempts, "error", err)
	}
	return err
}

// attempt performs a single HTTP exchange and classifies its failure.
func (c *Client) attempt(ctx context.Context, method, path string, payload []byte, out any) error {
	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base+path, reader)
	if err != nil {
		return errors.InternalError("failed to build request", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return errors.TimeoutError("request deadline exceeded", err)
		}
		return errors.NetworkError("request failed", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		// A missing blob will stay missing; retrying cannot help.
		return errors.StorageError("not found", nil).WithContext("path", path)
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return errors.NetworkError(fmt.Sprintf("server returned %s", resp.Status), nil)
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return errors.ProtocolError("failed to decode response body", err)
		}
	} else {
		// Drain so the connection can be reused.
		_, _ = io.Copy(io.Discard, resp.Body)
	}
	return nil
}
