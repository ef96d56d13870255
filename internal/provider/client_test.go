package provider

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/h2non/gock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/signalnine/teforward/internal/protocol"
)

const apiBase = "https://api.example.com"

func newMockedClient(t *testing.T) *Client {
	t.Helper()

	c, err := NewClient(apiBase+"/v7/", "te-token", true)
	require.NoError(t, err)

	gock.InterceptClient(c.httpClient)
	t.Cleanup(func() {
		gock.RestoreClient(c.httpClient)
		gock.Off()
	})

	return c
}

func TestNewClient(t *testing.T) {
	_, err := NewClient("", "token", false)
	assert.Error(t, err)

	_, err = NewClient(apiBase, "", false)
	assert.Error(t, err)

	c, err := NewClient("api.example.com/v7/", "token", false)
	require.NoError(t, err)
	assert.Equal(t, "https://api.example.com/v7", c.baseURL)
}

func TestListTests(t *testing.T) {
	c := newMockedClient(t)

	gock.New(apiBase).
		Get("/v7/tests").
		MatchHeader("Authorization", "^Bearer te-token$").
		MatchHeader("Accept", "application/json").
		Reply(http.StatusOK).
		JSON(map[string]any{
			"tests": []map[string]any{
				{"testId": "281474976710706", "testName": "server-1 web", "type": "http-server"},
				{"testId": 42, "testName": "umbrella api", "type": "api"},
				{"testName": "no id", "type": "agent-to-server"},
			},
		})

	tests, err := c.ListTests(context.Background())
	require.NoError(t, err)
	require.Len(t, tests, 3)

	assert.Equal(t, protocol.Test{ID: "281474976710706", Name: "server-1 web", Type: "http-server"}, tests[0])
	assert.Equal(t, "42", tests[1].ID)
	assert.Equal(t, "", tests[2].ID)
	assert.True(t, gock.IsDone())
}

func TestListTestsBadShape(t *testing.T) {
	c := newMockedClient(t)

	gock.New(apiBase).Get("/v7/tests").Reply(http.StatusOK).BodyString("not json")
	_, err := c.ListTests(context.Background())
	assert.Error(t, err)

	gock.New(apiBase).Get("/v7/tests").Reply(http.StatusOK).JSON(map[string]any{"items": []string{}})
	_, err = c.ListTests(context.Background())
	assert.Error(t, err)
}

func TestListTestsUnauthorized(t *testing.T) {
	c := newMockedClient(t)

	gock.New(apiBase).
		Get("/v7/tests").
		Reply(http.StatusUnauthorized).
		JSON(map[string]string{"error": "invalid_token"})

	_, err := c.ListTests(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrTransport))
	assert.Contains(t, err.Error(), "401")
}

func TestLatestResultsEndpoints(t *testing.T) {
	tts := []struct {
		typ  string
		path string
	}{
		{"agent-to-server", "/v7/test-results/100/network"},
		{"http-server", "/v7/test-results/100/http-server"},
		{"page-load", "/v7/test-results/100/page-load"},
		{"api", "/v7/test-results/100/api"},
	}

	for _, tt := range tts {
		t.Run(tt.typ, func(t *testing.T) {
			c := newMockedClient(t)

			gock.New(apiBase).
				Get(tt.path).
				MatchHeader("Authorization", "^Bearer te-token$").
				Reply(http.StatusOK).
				BodyString(`{"results":[{"loss":0}]}`)

			body, err := c.LatestResults(context.Background(), protocol.Test{ID: "100", Name: "t", Type: tt.typ})
			require.NoError(t, err)
			assert.JSONEq(t, `{"results":[{"loss":0}]}`, string(body))
			assert.True(t, gock.IsDone())
		})
	}
}

func TestLatestResultsSkipsUnknownType(t *testing.T) {
	c := newMockedClient(t)

	_, err := c.LatestResults(context.Background(), protocol.Test{ID: "1", Name: "dns", Type: "dns-server"})
	assert.True(t, errors.Is(err, protocol.ErrUnknownTestType))

	_, err = c.LatestResults(context.Background(), protocol.Test{Name: "anon", Type: "api"})
	assert.True(t, errors.Is(err, ErrMissingTestID))

	assert.False(t, gock.HasUnmatchedRequest())
}

func TestLatestResultsServerError(t *testing.T) {
	c := newMockedClient(t)

	gock.New(apiBase).Get("/v7/test-results/7/api").Reply(http.StatusInternalServerError)

	_, err := c.LatestResults(context.Background(), protocol.Test{ID: "7", Type: "api"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrTransport))
}

func TestLatestResultsTooLarge(t *testing.T) {
	c := newMockedClient(t)
	c.maxBody = 32

	gock.New(apiBase).
		Get("/v7/test-results/7/api").
		Reply(http.StatusOK).
		BodyString(`{"results":[{"apiTransactionTime":120,"padding":"xxxxxxxx"}]}`)

	_, err := c.LatestResults(context.Background(), protocol.Test{ID: "7", Type: "api"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrTransport))
	assert.Contains(t, err.Error(), "response too large")
}

func TestLatestResultsAtLimit(t *testing.T) {
	c := newMockedClient(t)
	body := `{"results":[]}`
	c.maxBody = int64(len(body))

	gock.New(apiBase).Get("/v7/test-results/7/api").Reply(http.StatusOK).BodyString(body)

	got, err := c.LatestResults(context.Background(), protocol.Test{ID: "7", Type: "api"})
	require.NoError(t, err)
	assert.Equal(t, body, string(got))
}

func TestLatestResultsConnectionRefused(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()

	c, err := NewClient(url, "te-token", false)
	require.NoError(t, err)

	_, err = c.LatestResults(context.Background(), protocol.Test{ID: "7", Type: "api"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrTransport))
}
