// Package evaluate classifies the latest result of a test as PASS, FAIL or NO_RESULTS.
package evaluate

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/tidwall/gjson"

	"github.com/signalnine/teforward/internal/protocol"
)

// ErrDataShape is wrapped by every field extraction failure. Evaluation
// fails closed on it.
var ErrDataShape = errors.New("unexpected result shape")

const (
	DefaultHealthThreshold         = 0.95
	DefaultAPITransactionThreshold = 1000
	DefaultMaxResultAge            = 600 * time.Second
)

// Thresholds tunes the pass rules. Zero values fall back to defaults.
type Thresholds struct {
	HealthScore    float64
	APITransaction float64 // milliseconds, same unit the provider reports
	MaxResultAge   time.Duration
}

// Verdict is the outcome of one evaluation
type Verdict struct {
	Status protocol.Classification
	Reason string
	Err    error // set when the result could not be read and we failed closed
}

type Evaluator struct {
	thresholds Thresholds
}

func New(t Thresholds) *Evaluator {
	if t.HealthScore <= 0 {
		t.HealthScore = DefaultHealthThreshold
	}
	if t.APITransaction <= 0 {
		t.APITransaction = DefaultAPITransactionThreshold
	}
	if t.MaxResultAge <= 0 {
		t.MaxResultAge = DefaultMaxResultAge
	}
	return &Evaluator{thresholds: t}
}

// Evaluate applies, in order: payload presence, freshness of the first
// record, the health score rule, then the rule for the test type.
func (e *Evaluator) Evaluate(test protocol.Test, payload []byte, now time.Time) Verdict {
	if len(payload) == 0 {
		return noResults("no result payload")
	}
	if !gjson.ValidBytes(payload) {
		return noResults("result payload is not valid JSON")
	}

	results := gjson.GetBytes(payload, "results")
	if !results.IsArray() {
		return noResults("result payload has no results list")
	}

	records := results.Array()
	if len(records) == 0 {
		return noResults("no recent results")
	}

	v, err := e.classify(test, records[0], now)
	if err != nil {
		return Verdict{Status: protocol.StatusFail, Reason: "could not evaluate result", Err: err}
	}
	return v
}

func (e *Evaluator) classify(test protocol.Test, record gjson.Result, now time.Time) (Verdict, error) {
	if !record.IsObject() {
		return Verdict{}, errors.Wrapf(ErrDataShape, "result record is %s", record.Type)
	}

	if end := record.Get("endTime"); end.Exists() {
		endTime, err := parseEndTime(end)
		if err != nil {
			return Verdict{}, err
		}
		// now is compared in whole seconds
		if age := now.Truncate(time.Second).Sub(endTime); age > e.thresholds.MaxResultAge {
			return noResults("result too old (" + age.String() + ")"), nil
		}
	}

	if score := record.Get("healthScore"); score.Exists() {
		if score.Type != gjson.Number {
			return Verdict{}, errors.Wrapf(ErrDataShape, "healthScore is %s", score.Type)
		}
		return threshold(score.Float() >= e.thresholds.HealthScore, "healthScore %s", score.Raw), nil
	}

	typ, err := protocol.ParseTestType(test.Type)
	if err != nil {
		return fail("no rule for test type " + test.Type), nil
	}

	switch typ {
	case protocol.TestTypeHTTPServer:
		return e.httpServer(record)
	case protocol.TestTypeAPI:
		return e.apiTransaction(record), nil
	case protocol.TestTypeNetwork:
		return e.network(record), nil
	case protocol.TestTypePageLoad:
		return fail("no rule for page-load results without healthScore"), nil
	}
	return fail("no rule for test type " + test.Type), nil
}

func (e *Evaluator) httpServer(record gjson.Result) (Verdict, error) {
	code := record.Get("responseCode")

	errorType := ""
	if et := record.Get("errorType"); et.Exists() {
		if et.Type != gjson.String {
			return Verdict{}, errors.Wrapf(ErrDataShape, "errorType is %s", et.Type)
		}
		errorType = strings.ToLower(et.Str)
	}

	ok := code.Type == gjson.Number && code.Float() == 200 && (errorType == "" || errorType == "none")
	return threshold(ok, "responseCode %s errorType %q", rawOrMissing(code), errorType), nil
}

func (e *Evaluator) apiTransaction(record gjson.Result) Verdict {
	txn := record.Get("apiTransactionTime")
	ok := txn.Type == gjson.Number && txn.Float() < e.thresholds.APITransaction
	return threshold(ok, "apiTransactionTime %s", rawOrMissing(txn))
}

func (e *Evaluator) network(record gjson.Result) Verdict {
	loss := record.Get("loss")
	ok := loss.Type == gjson.Number && loss.Float() == 0
	return threshold(ok, "loss %s", rawOrMissing(loss))
}

// parseEndTime accepts epoch seconds or an RFC 3339 timestamp
func parseEndTime(v gjson.Result) (time.Time, error) {
	switch v.Type {
	case gjson.Number:
		whole, frac := math.Modf(v.Float())
		return time.Unix(int64(whole), int64(frac*float64(time.Second))), nil
	case gjson.String:
		t, err := time.Parse(time.RFC3339, v.Str)
		if err != nil {
			return time.Time{}, errors.Wrapf(ErrDataShape, "endTime %q", v.Str)
		}
		return t, nil
	}
	return time.Time{}, errors.Wrapf(ErrDataShape, "endTime is %s", v.Type)
}

func threshold(ok bool, format string, args ...any) Verdict {
	reason := fmt.Sprintf(format, args...)
	if ok {
		return Verdict{Status: protocol.StatusPass, Reason: reason}
	}
	return fail(reason)
}

func fail(reason string) Verdict {
	return Verdict{Status: protocol.StatusFail, Reason: reason}
}

func noResults(reason string) Verdict {
	return Verdict{Status: protocol.StatusNoResults, Reason: reason}
}

func rawOrMissing(v gjson.Result) string {
	if !v.Exists() {
		return "missing"
	}
	return v.Raw
}
