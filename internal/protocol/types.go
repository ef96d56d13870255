// internal/protocol/types.go
package protocol

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
)

// ErrUnknownTestType is returned for test types we have no results endpoint for
var ErrUnknownTestType = errors.New("unknown test type")

// TestType is the provider's test type, using its wire values
type TestType string

const (
	TestTypeNetwork    TestType = "agent-to-server"
	TestTypeHTTPServer TestType = "http-server"
	TestTypePageLoad   TestType = "page-load"
	TestTypeAPI        TestType = "api"
)

// ParseTestType maps a provider type string (or one of its logical aliases)
// to a known TestType.
func ParseTestType(s string) (TestType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "agent-to-server", "network-agent":
		return TestTypeNetwork, nil
	case "http-server":
		return TestTypeHTTPServer, nil
	case "page-load":
		return TestTypePageLoad, nil
	case "api", "api-transaction":
		return TestTypeAPI, nil
	}
	return "", errors.Wrapf(ErrUnknownTestType, "%q", s)
}

// EndpointSuffix is the test-results path segment for this type.
func (t TestType) EndpointSuffix() (string, error) {
	switch t {
	case TestTypeNetwork:
		return "network", nil
	case TestTypeHTTPServer:
		return "http-server", nil
	case TestTypePageLoad:
		return "page-load", nil
	case TestTypeAPI:
		return "api", nil
	}
	return "", errors.Wrapf(ErrUnknownTestType, "%q", string(t))
}

// Test is a monitoring test as listed by the provider.
// Type holds the raw provider value so unknown types survive discovery.
type Test struct {
	ID   string `json:"testId"`
	Name string `json:"testName"`
	Type string `json:"type"`
}

// Classification is the verdict for a single result
type Classification string

const (
	StatusPass      Classification = "PASS"
	StatusFail      Classification = "FAIL"
	StatusNoResults Classification = "NO_RESULTS"
)

// Event is what gets forwarded for each test on every run
type Event struct {
	TestID   string          `json:"testId"`
	TestName string          `json:"testName"`
	Type     string          `json:"type"`
	Status   Classification  `json:"status"`
	Results  json.RawMessage `json:"results"`
}

// Envelope is the HTTP Event Collector request body
type Envelope struct {
	Event      Event   `json:"event"`
	SourceType string  `json:"sourcetype"`
	Host       string  `json:"host"`
	Time       float64 `json:"time"`
}

// EmptyResults is sent when no payload could be retrieved
var EmptyResults = json.RawMessage(`{}`)

// StoredEvent is what the development collector persists
type StoredEvent struct {
	ID         int64     `json:"id"`
	ReceivedAt time.Time `json:"received_at"`
	Time       float64   `json:"time"`
	Host       string    `json:"host"`
	SourceType string    `json:"sourcetype"`
	Event      Event     `json:"event"`
}
