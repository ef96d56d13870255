package main

import (
	"bytes"
	"testing"

	"github.com/fatih/color"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/signalnine/teforward/internal/agent"
	"github.com/signalnine/teforward/internal/config"
	"github.com/signalnine/teforward/internal/evaluate"
	"github.com/signalnine/teforward/internal/protocol"
)

func TestNewLogger(t *testing.T) {
	log, err := newLogger(config.LogConfig{Level: "warn", Format: "json"}, false)
	require.NoError(t, err)
	assert.Equal(t, zerolog.WarnLevel, log.GetLevel())

	log, err = newLogger(config.LogConfig{Level: "warn", Format: "console"}, true)
	require.NoError(t, err)
	assert.Equal(t, zerolog.DebugLevel, log.GetLevel())

	log, err = newLogger(config.LogConfig{}, false)
	require.NoError(t, err)
	assert.Equal(t, zerolog.InfoLevel, log.GetLevel())

	_, err = newLogger(config.LogConfig{Level: "loud"}, false)
	assert.Error(t, err)

	_, err = newLogger(config.LogConfig{Level: "info", Format: "xml"}, false)
	assert.Error(t, err)
}

func TestPrintSummary(t *testing.T) {
	color.NoColor = true

	summary := &agent.Summary{
		Discovered:   3,
		Skipped:      1,
		Sent:         1,
		SendFailures: 1,
		ByStatus: map[protocol.Classification]int{
			protocol.StatusPass: 1,
			protocol.StatusFail: 1,
		},
		Outcomes: []agent.Outcome{
			{Test: protocol.Test{ID: "1", Name: "web", Type: "http-server"}, Verdict: evaluate.Verdict{Status: protocol.StatusPass}, Sent: true},
			{Test: protocol.Test{ID: "2", Name: "ping", Type: "agent-to-server"}, Verdict: evaluate.Verdict{Status: protocol.StatusFail, Reason: "loss 3"}, SendFailed: true},
			{Test: protocol.Test{ID: "3", Name: "dns", Type: "dns-server"}, Skipped: true},
		},
	}

	var buf bytes.Buffer
	printSummary(&buf, summary, false)
	out := buf.String()

	assert.Contains(t, out, "SKIPPED")
	assert.Contains(t, out, "failed")
	assert.Contains(t, out, "loss 3")
	assert.Contains(t, out, "3 tests, 1 pass, 1 fail, 0 no results, 1 skipped, 1 send failures")

	buf.Reset()
	printSummary(&buf, &agent.Summary{}, false)
	assert.Empty(t, buf.String())
}

func TestPrintTests(t *testing.T) {
	color.NoColor = true

	var buf bytes.Buffer
	printTests(&buf, []protocol.Test{
		{ID: "1", Name: "ping", Type: "agent-to-server"},
		{ID: "2", Name: "dns", Type: "dns-server"},
	})

	assert.Contains(t, buf.String(), "test-results/1/network")
	assert.Contains(t, buf.String(), "unsupported")
}
