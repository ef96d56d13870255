// internal/agent/agent.go
package agent

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/rs/zerolog"
	"github.com/tidwall/gjson"

	"github.com/signalnine/teforward/internal/config"
	"github.com/signalnine/teforward/internal/evaluate"
	"github.com/signalnine/teforward/internal/forward"
	"github.com/signalnine/teforward/internal/protocol"
	"github.com/signalnine/teforward/internal/provider"
)

// ResultsSource is the part of the monitoring API the agent reads from
type ResultsSource interface {
	ListTests(ctx context.Context) ([]protocol.Test, error)
	LatestResults(ctx context.Context, test protocol.Test) ([]byte, error)
}

// Outcome is what happened to one allowed test during a run
type Outcome struct {
	Test       protocol.Test
	Verdict    evaluate.Verdict
	Skipped    bool
	Sent       bool
	SendFailed bool
}

// Summary of a single run
type Summary struct {
	Discovered   int
	Skipped      int
	Sent         int
	SendFailures int
	ByStatus     map[protocol.Classification]int
	Outcomes     []Outcome
}

// Agent fetches, classifies and forwards the latest result of every allowed test
type Agent struct {
	allow     map[string]struct{}
	source    ResultsSource
	evaluator *evaluate.Evaluator
	sink      forward.Sink
	log       zerolog.Logger
	now       func() time.Time
}

// New creates a new agent. A nil sink makes every run a dry run.
func New(cfg *config.Config, source ResultsSource, sink forward.Sink, log zerolog.Logger) *Agent {
	return &Agent{
		allow:  cfg.AllowList(),
		source: source,
		evaluator: evaluate.New(evaluate.Thresholds{
			HealthScore:    cfg.Thresholds.HealthScore,
			APITransaction: cfg.Thresholds.APITransactionMs,
			MaxResultAge:   cfg.Thresholds.MaxResultAge,
		}),
		sink: sink,
		log:  log,
		now:  time.Now,
	}
}

// Run does one pass over the allowed tests. Failures on individual tests are
// logged and never abort the run; only context cancellation is returned.
func (a *Agent) Run(ctx context.Context) (*Summary, error) {
	summary := &Summary{ByStatus: make(map[protocol.Classification]int)}

	tests := a.Discover(ctx)
	summary.Discovered = len(tests)
	if len(tests) == 0 {
		a.log.Warn().Msg("no tests found")
		return summary, nil
	}

	a.log.Info().Int("count", len(tests)).Msg("found tests")
	for _, test := range tests {
		a.log.Info().
			Str("test_id", test.ID).
			Str("test_name", test.Name).
			Str("type", test.Type).
			Msg("test")
	}

	for _, test := range tests {
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		summary.add(a.process(ctx, test))
	}

	a.log.Info().
		Int("discovered", summary.Discovered).
		Int("sent", summary.Sent).
		Int("skipped", summary.Skipped).
		Int("send_failures", summary.SendFailures).
		Int("pass", summary.ByStatus[protocol.StatusPass]).
		Int("fail", summary.ByStatus[protocol.StatusFail]).
		Int("no_results", summary.ByStatus[protocol.StatusNoResults]).
		Msg("run complete")

	return summary, nil
}

// Discover returns the provider's tests that are on the allow-list, in
// provider order. Any failure yields an empty list.
func (a *Agent) Discover(ctx context.Context) []protocol.Test {
	all, err := a.source.ListTests(ctx)
	if err != nil {
		a.log.Error().Err(err).Msg("failed to fetch tests")
		return nil
	}

	var tests []protocol.Test
	for _, t := range all {
		if _, ok := a.allow[t.ID]; ok {
			tests = append(tests, t)
		}
	}
	return tests
}

func (a *Agent) process(ctx context.Context, test protocol.Test) Outcome {
	log := a.log.With().Str("test_id", test.ID).Str("test_name", test.Name).Logger()
	out := Outcome{Test: test}

	payload, err := a.source.LatestResults(ctx, test)
	if err != nil {
		if errors.IsAny(err, protocol.ErrUnknownTestType, provider.ErrMissingTestID) {
			log.Warn().Err(err).Str("type", test.Type).Msg("skipping test")
			out.Skipped = true
			return out
		}
		log.Error().Err(err).Msg("could not get results")
		payload = nil
	}

	if first := gjson.GetBytes(payload, "results.0"); first.IsObject() {
		log.Debug().RawJSON("result", []byte(first.Raw)).Msg("latest result")
	}

	out.Verdict = a.evaluator.Evaluate(test, payload, a.now())
	if out.Verdict.Err != nil {
		log.Error().Err(out.Verdict.Err).Msg("failed to evaluate result")
	}
	log.Debug().Str("status", string(out.Verdict.Status)).Str("reason", out.Verdict.Reason).Msg("evaluated")

	if a.sink == nil {
		return out
	}

	event := protocol.Event{
		TestID:   test.ID,
		TestName: test.Name,
		Type:     test.Type,
		Status:   out.Verdict.Status,
		Results:  rawResults(payload),
	}

	if err := a.sink.Send(ctx, event); err != nil {
		log.Error().Err(err).Msg("failed to send event")
		out.SendFailed = true
		return out
	}

	out.Sent = true
	log.Info().Str("status", string(event.Status)).Msg("sent")
	return out
}

func (s *Summary) add(o Outcome) {
	s.Outcomes = append(s.Outcomes, o)
	if o.Skipped {
		s.Skipped++
		return
	}
	s.ByStatus[o.Verdict.Status]++
	if o.Sent {
		s.Sent++
	}
	if o.SendFailed {
		s.SendFailures++
	}
}

// rawResults is the results list from the payload, or {} when there is none
func rawResults(payload []byte) []byte {
	if len(payload) == 0 || !gjson.ValidBytes(payload) {
		return protocol.EmptyResults
	}
	results := gjson.GetBytes(payload, "results")
	if !results.Exists() {
		return protocol.EmptyResults
	}
	return []byte(results.Raw)
}
