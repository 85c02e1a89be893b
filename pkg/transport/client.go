// Package transport is the wallet's network capability. Flows never touch
// net/http directly; they issue requests through the Client interface and
// receive either a Response, including protocol-level rejections, or a
// NetworkError once retries are exhausted.
package transport

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/openwalletlab/wallet-core/internal/util"
)

// Client performs HTTP requests on behalf of the wallet engine.
type Client interface {
	Request(ctx context.Context, method, url string, headers map[string]string, body []byte) (*Response, error)
}

// Response is the outcome of a request that reached the peer. Non-2xx
// statuses are returned here, not as errors; deciding what a rejection means
// is up to the flow.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

func (r *Response) Is2xx() bool {
	return util.Is2xxResponse(r.StatusCode)
}

// NetworkError marks a request that could not reach the peer after the
// configured number of attempts.
type NetworkError struct {
	URL string
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("request to %s failed: %v", e.URL, e.Err)
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

const (
	defaultMaxAttempts    = 3
	defaultRequestTimeout = 30 * time.Second
	initialRetryInterval  = 250 * time.Millisecond
)

// HTTPClient implements Client over net/http with bounded exponential
// backoff. Transport faults and 5xx responses are retried; 4xx responses are
// final.
type HTTPClient struct {
	// HTTP is exported so tests can intercept it.
	HTTP        *http.Client
	maxAttempts uint64
}

type HTTPClientOption func(*HTTPClient)

func WithMaxAttempts(attempts uint64) HTTPClientOption {
	return func(c *HTTPClient) {
		if attempts > 0 {
			c.maxAttempts = attempts
		}
	}
}

func WithHTTP(httpClient *http.Client) HTTPClientOption {
	return func(c *HTTPClient) {
		c.HTTP = httpClient
	}
}

func NewHTTPClient(opts ...HTTPClientOption) *HTTPClient {
	client := &HTTPClient{
		HTTP:        &http.Client{Timeout: defaultRequestTimeout},
		maxAttempts: defaultMaxAttempts,
	}
	for _, opt := range opts {
		opt(client)
	}
	return client
}

func (c *HTTPClient) Request(ctx context.Context, method, url string, headers map[string]string, body []byte) (*Response, error) {
	var response *Response

	operation := func() error {
		request, err := http.NewRequestWithContext(ctx, method, url, bytes.NewReader(body))
		if err != nil {
			return backoff.Permanent(errors.Wrap(err, "building request"))
		}
		for k, v := range headers {
			request.Header.Set(k, v)
		}

		resp, err := c.HTTP.Do(request)
		if err != nil {
			if ctx.Err() != nil {
				return backoff.Permanent(ctx.Err())
			}
			return err
		}
		defer func() { _ = resp.Body.Close() }()

		respBody, err := io.ReadAll(resp.Body)
		if err != nil {
			return errors.Wrap(err, "reading response body")
		}

		// 2xx and 4xx are final answers, anything else is worth another attempt
		if !util.Is2xxResponse(resp.StatusCode) && !util.Is4xxResponse(resp.StatusCode) {
			return errors.Errorf("server error: %d", resp.StatusCode)
		}

		response = &Response{
			StatusCode: resp.StatusCode,
			Header:     resp.Header,
			Body:       respBody,
		}
		return nil
	}

	expBackoff := backoff.NewExponentialBackOff()
	expBackoff.InitialInterval = initialRetryInterval
	policy := backoff.WithMaxRetries(expBackoff, c.maxAttempts-1)
	if err := backoff.Retry(operation, backoff.WithContext(policy, ctx)); err != nil {
		logrus.WithError(err).Errorf("request to %s failed after %d attempts", util.SanitizeLog(url), c.maxAttempts)
		return nil, &NetworkError{URL: url, Err: err}
	}
	return response, nil
}

// Get is a convenience wrapper for GET requests.
func Get(ctx context.Context, client Client, url string) (*Response, error) {
	return client.Request(ctx, http.MethodGet, url, nil, nil)
}

// PostForm posts url-encoded form values.
func PostForm(ctx context.Context, client Client, url string, form string) (*Response, error) {
	return client.Request(ctx, http.MethodPost, url, map[string]string{
		"Content-Type": "application/x-www-form-urlencoded",
	}, []byte(form))
}

// PostJSON posts a JSON body, authorized with a bearer token when one is
// given.
func PostJSON(ctx context.Context, client Client, url, bearerToken string, body []byte) (*Response, error) {
	headers := map[string]string{"Content-Type": "application/json"}
	if bearerToken != "" {
		headers["Authorization"] = "Bearer " + bearerToken
	}
	return client.Request(ctx, http.MethodPost, url, headers, body)
}
