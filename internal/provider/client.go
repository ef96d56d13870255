// internal/provider/client.go
package provider

import (
	"context"
	"crypto/tls"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/tidwall/gjson"

	"github.com/signalnine/teforward/internal/protocol"
)

var (
	// ErrTransport marks network, TLS, auth and HTTP status failures
	ErrTransport = errors.New("provider transport error")
	// ErrMissingTestID is returned for listed tests without an identifier
	ErrMissingTestID = errors.New("test has no id")
)

const maxBodyBytes = 10 << 20

// Client reads tests and results from the monitoring API
type Client struct {
	baseURL    string
	token      string
	maxBody    int64
	httpClient *http.Client
}

// NewClient constructs a client that authenticates with a static bearer token.
func NewClient(baseURL, token string, tlsSkipVerify bool) (*Client, error) {
	normalized, err := normalizeBaseURL(baseURL)
	if err != nil {
		return nil, err
	}

	if token == "" {
		return nil, errors.New("provider token is required")
	}

	transport := &http.Transport{}
	if tlsSkipVerify {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
	}

	return &Client{
		baseURL: normalized,
		token:   token,
		maxBody: maxBodyBytes,
		httpClient: &http.Client{
			Timeout:   30 * time.Second,
			Transport: transport,
		},
	}, nil
}

// WithHTTPClient overrides the default http.Client. Primarily useful for testing.
func (c *Client) WithHTTPClient(httpClient *http.Client) {
	if httpClient != nil {
		c.httpClient = httpClient
	}
}

// ListTests returns every test visible to the token.
// testId is read as a string whether the API sends it as a number or a string.
func (c *Client) ListTests(ctx context.Context) ([]protocol.Test, error) {
	body, err := c.get(ctx, "/tests")
	if err != nil {
		return nil, err
	}

	if !gjson.ValidBytes(body) {
		return nil, errors.New("tests response is not valid JSON")
	}

	list := gjson.GetBytes(body, "tests")
	if !list.IsArray() {
		return nil, errors.New("tests response has no tests array")
	}

	var tests []protocol.Test
	list.ForEach(func(_, t gjson.Result) bool {
		tests = append(tests, protocol.Test{
			ID:   t.Get("testId").String(),
			Name: t.Get("testName").String(),
			Type: t.Get("type").String(),
		})
		return true
	})

	return tests, nil
}

// LatestResults returns the raw latest-results payload for a test.
// Tests with a missing id or an unknown type are rejected before any request is made.
func (c *Client) LatestResults(ctx context.Context, test protocol.Test) ([]byte, error) {
	if test.ID == "" {
		return nil, errors.Wrapf(ErrMissingTestID, "test %q", test.Name)
	}

	typ, err := protocol.ParseTestType(test.Type)
	if err != nil {
		return nil, err
	}

	suffix, err := typ.EndpointSuffix()
	if err != nil {
		return nil, err
	}

	return c.get(ctx, "/test-results/"+url.PathEscape(test.ID)+"/"+suffix)
}

func (c *Client) get(ctx context.Context, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, errors.Wrap(err, "create request")
	}

	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		var opErr *net.OpError
		if errors.As(err, &opErr) {
			err = errors.Wrapf(err, "network error contacting %s", req.URL.Hostname())
		}
		return nil, errors.Mark(errors.Wrap(err, "execute request"), ErrTransport)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBody+1))
	if err != nil {
		return nil, errors.Mark(errors.Wrap(err, "read response"), ErrTransport)
	}
	if int64(len(body)) > c.maxBody {
		return nil, errors.Mark(errors.Newf("response too large (over %d bytes)", c.maxBody), ErrTransport)
	}

	if resp.StatusCode >= 300 {
		msg := strings.TrimSpace(string(body))
		if msg == "" {
			return nil, errors.Mark(errors.Newf("unexpected status %d", resp.StatusCode), ErrTransport)
		}
		return nil, errors.Mark(errors.Newf("unexpected status %d: %s", resp.StatusCode, msg), ErrTransport)
	}

	return body, nil
}

func normalizeBaseURL(raw string) (string, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return "", errors.New("provider base URL is required")
	}

	if !strings.Contains(trimmed, "://") {
		trimmed = "https://" + trimmed
	}

	parsed, err := url.Parse(trimmed)
	if err != nil {
		return "", errors.Wrap(err, "invalid provider base URL")
	}

	if parsed.Scheme == "" || parsed.Host == "" {
		return "", errors.Newf("invalid provider base URL: %s", raw)
	}

	parsed.Path = strings.TrimSuffix(parsed.Path, "/")
	parsed.RawQuery = ""
	parsed.Fragment = ""

	return strings.TrimSuffix(parsed.String(), "/"), nil
}
