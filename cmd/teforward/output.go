// cmd/teforward/output.go
package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/fatih/color"
	"github.com/rs/zerolog"

	"github.com/signalnine/teforward/internal/agent"
	"github.com/signalnine/teforward/internal/config"
	"github.com/signalnine/teforward/internal/protocol"
)

var (
	passColor    = color.New(color.FgGreen, color.Bold).SprintFunc()
	failColor    = color.New(color.FgRed, color.Bold).SprintFunc()
	noDataColor  = color.New(color.FgYellow).SprintFunc()
	skippedColor = color.New(color.Faint).SprintFunc()
)

func newLogger(cfg config.LogConfig, verbose bool) (zerolog.Logger, error) {
	level, err := zerolog.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil {
		return zerolog.Logger{}, errors.Wrapf(err, "log level %q", cfg.Level)
	}
	if level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	if verbose {
		level = zerolog.DebugLevel
	}

	var out io.Writer = os.Stderr
	switch cfg.Format {
	case "", "console":
		out = zerolog.ConsoleWriter{
			Out:        os.Stderr,
			TimeFormat: time.RFC3339,
		}
	case "json":
	default:
		return zerolog.Logger{}, errors.Newf("unknown log format %q", cfg.Format)
	}

	return zerolog.New(out).Level(level).With().Timestamp().Logger(), nil
}

func colorStatus(s protocol.Classification) string {
	switch s {
	case protocol.StatusPass:
		return passColor(s)
	case protocol.StatusFail:
		return failColor(s)
	default:
		return noDataColor(s)
	}
}

func printSummary(w io.Writer, s *agent.Summary, dryRun bool) {
	if s == nil || len(s.Outcomes) == 0 {
		return
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "TEST ID\tNAME\tTYPE\tSTATUS\tDELIVERY\tREASON")
	for _, o := range s.Outcomes {
		status, delivery := colorStatus(o.Verdict.Status), "sent"
		switch {
		case o.Skipped:
			status, delivery = skippedColor("SKIPPED"), "-"
		case o.SendFailed:
			delivery = failColor("failed")
		case dryRun:
			delivery = "dry-run"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			o.Test.ID, o.Test.Name, o.Test.Type, status, delivery, o.Verdict.Reason)
	}
	tw.Flush()

	fmt.Fprintf(w, "\n%d tests, %s pass, %s fail, %s no results, %d skipped, %d send failures\n",
		s.Discovered,
		passColor(s.ByStatus[protocol.StatusPass]),
		failColor(s.ByStatus[protocol.StatusFail]),
		noDataColor(s.ByStatus[protocol.StatusNoResults]),
		s.Skipped,
		s.SendFailures,
	)
}

func printTests(w io.Writer, tests []protocol.Test) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "TEST ID\tNAME\tTYPE\tENDPOINT")
	for _, t := range tests {
		endpoint := skippedColor("unsupported")
		if typ, err := protocol.ParseTestType(t.Type); err == nil {
			if suffix, err := typ.EndpointSuffix(); err == nil {
				endpoint = "test-results/" + t.ID + "/" + suffix
			}
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", t.ID, t.Name, t.Type, endpoint)
	}
	tw.Flush()
}
