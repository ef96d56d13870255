package forward

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"

	"github.com/signalnine/teforward/internal/config"
	"github.com/signalnine/teforward/internal/protocol"
)

// ChannelHeader identifies the sender to collectors with indexer acknowledgement on
const ChannelHeader = "X-Splunk-Request-Channel"

// HECSink posts events to an HTTP Event Collector
type HECSink struct {
	cfg     *config.CollectorConfig
	client  *http.Client
	channel string
	now     func() time.Time
}

// NewHECSink creates a sink for the configured collector endpoint
func NewHECSink(cfg *config.CollectorConfig) (*HECSink, error) {
	if strings.TrimSpace(cfg.URL) == "" {
		return nil, errors.New("collector url is required")
	}

	transport := &http.Transport{}
	if cfg.TLSSkipVerify {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
	}

	return &HECSink{
		cfg: cfg,
		client: &http.Client{
			Timeout:   30 * time.Second,
			Transport: transport,
		},
		channel: uuid.NewString(),
		now:     time.Now,
	}, nil
}

func (s *HECSink) Send(ctx context.Context, event protocol.Event) error {
	body, err := json.Marshal(envelope(event, s.cfg, s.now()))
	if err != nil {
		return errors.Wrap(err, "marshal event")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.URL, bytes.NewReader(body))
	if err != nil {
		return errors.Wrap(err, "create request")
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", s.cfg.Scheme+" "+s.cfg.Token)
	req.Header.Set(ChannelHeader, s.channel)

	resp, err := s.client.Do(req)
	if err != nil {
		return errors.Mark(errors.Wrap(err, "post event"), ErrTransport)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return errors.Mark(
			errors.Newf("collector returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body))),
			ErrTransport,
		)
	}

	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

func (s *HECSink) Close() error {
	s.client.CloseIdleConnections()
	return nil
}
