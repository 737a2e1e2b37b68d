package source

import (
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"
)

const (
	defaultUserAgent = "spigell/job-sift"
	contentEncoding  = "gzip"
	maxBodySize      = 10 << 20
)

// HTTPClient is the interface for performing HTTP requests.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client performs paced GET requests on behalf of one source.
type Client struct {
	source    string
	http      HTTPClient
	logger    *zap.Logger
	UserAgent string
}

// NewClient returns a client for the named source. A nil httpClient uses a
// client with a 30 second timeout.
func NewClient(source string, httpClient HTTPClient, logger *zap.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		source:    source,
		http:      httpClient,
		logger:    logger,
		UserAgent: defaultUserAgent,
	}
}

// Get waits on pacer, requests rawURL with q and returns the body of a 200 response.
// Every error is a *Failure.
func (c *Client) Get(ctx context.Context, pacer Pacer, rawURL string, q url.Values) ([]byte, error) {
	if pacer != nil {
		if err := pacer.Wait(ctx); err != nil {
			return nil, Classify(c.source, err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, Permanentf(c.source, "build request: %w", err)
	}
	if len(q) > 0 {
		query := req.URL.Query()
		for key, values := range q {
			for _, v := range values {
				query.Add(key, v)
			}
		}
		req.URL.RawQuery = query.Encode()
	}

	req.Header.Set("User-Agent", c.UserAgent)
	req.Header.Set("Accept-Encoding", contentEncoding)

	c.logger.Debug("make request", zap.String("source", c.source), zap.String("url", req.URL.String()))

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, Classify(c.source, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, StatusFailure(c.source, resp.StatusCode)
	}

	var body io.Reader = resp.Body
	if resp.Header.Get("Content-Encoding") == "gzip" {
		gz, err := gzip.NewReader(resp.Body)
		if err != nil {
			return nil, Permanentf(c.source, "open gzip body: %w", err)
		}
		defer gz.Close()
		body = gz
	}

	data, err := io.ReadAll(io.LimitReader(body, maxBodySize))
	if err != nil {
		return nil, Classify(c.source, fmt.Errorf("read body: %w", err))
	}

	return data, nil
}
