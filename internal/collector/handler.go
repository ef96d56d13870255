// internal/collector/handler.go
package collector

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/signalnine/teforward/internal/protocol"
)

// HEC reply codes
const (
	codeSuccess      = 0
	codeInvalidToken = 4
	codeNoData       = 5
	codeInvalidData  = 6
	codeInternal     = 8
	codeEventMissing = 12
	codeHealthy      = 17
)

type reply struct {
	Text string `json:"text"`
	Code int    `json:"code"`
}

// IngestHandler handles HEC event posts from the forwarder
type IngestHandler struct {
	db              *DB
	token           string
	maxPayloadBytes int64
	log             zerolog.Logger
	now             func() time.Time
}

// NewIngestHandler creates a new ingest handler
func NewIngestHandler(db *DB, token string, maxPayloadBytes int64, log zerolog.Logger) *IngestHandler {
	return &IngestHandler{
		db:              db,
		token:           token,
		maxPayloadBytes: maxPayloadBytes,
		log:             log,
		now:             time.Now,
	}
}

func (h *IngestHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		writeReply(w, http.StatusMethodNotAllowed, reply{Text: "Method not allowed", Code: codeInvalidData})
		return
	}

	if !h.authorized(r.Header.Get("Authorization")) {
		writeReply(w, http.StatusUnauthorized, reply{Text: "Invalid token", Code: codeInvalidToken})
		return
	}

	if r.ContentLength > h.maxPayloadBytes {
		writeReply(w, http.StatusRequestEntityTooLarge, reply{Text: "Content too large", Code: codeInvalidData})
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, h.maxPayloadBytes+1))
	if err != nil {
		writeReply(w, http.StatusBadRequest, reply{Text: "Invalid data format", Code: codeInvalidData})
		return
	}
	if int64(len(body)) > h.maxPayloadBytes {
		writeReply(w, http.StatusRequestEntityTooLarge, reply{Text: "Content too large", Code: codeInvalidData})
		return
	}
	if len(bytes.TrimSpace(body)) == 0 {
		writeReply(w, http.StatusBadRequest, reply{Text: "No data", Code: codeNoData})
		return
	}

	// A single post may carry several envelopes back to back
	received := h.now()
	var events []*protocol.StoredEvent
	dec := json.NewDecoder(bytes.NewReader(body))
	for dec.More() {
		var env rawEnvelope
		if err := dec.Decode(&env); err != nil {
			writeReply(w, http.StatusBadRequest, reply{Text: "Invalid data format", Code: codeInvalidData})
			return
		}
		if len(env.Event) == 0 || bytes.Equal(env.Event, []byte("null")) {
			writeReply(w, http.StatusBadRequest, reply{Text: "Event field is required", Code: codeEventMissing})
			return
		}

		stored := &protocol.StoredEvent{
			ReceivedAt: received,
			Time:       env.Time,
			Host:       env.Host,
			SourceType: env.SourceType,
		}
		if err := json.Unmarshal(env.Event, &stored.Event); err != nil {
			writeReply(w, http.StatusBadRequest, reply{Text: "Invalid data format", Code: codeInvalidData})
			return
		}
		events = append(events, stored)
	}

	if err := h.db.InsertEvents(events); err != nil {
		h.log.Error().Err(err).Msg("db error")
		writeReply(w, http.StatusInternalServerError, reply{Text: "Internal server error", Code: codeInternal})
		return
	}

	for _, stored := range events {
		h.log.Info().
			Str("test_id", stored.Event.TestID).
			Str("status", string(stored.Event.Status)).
			Str("host", stored.Host).
			Msg("event received")
	}

	writeReply(w, http.StatusOK, reply{Text: "Success", Code: codeSuccess})
}

// authorized accepts both "Splunk <token>" and "Bearer <token>"
func (h *IngestHandler) authorized(header string) bool {
	scheme, token, ok := strings.Cut(header, " ")
	if !ok {
		return false
	}
	if !strings.EqualFold(scheme, "Splunk") && !strings.EqualFold(scheme, "Bearer") {
		return false
	}
	return token != "" && token == h.token
}

// rawEnvelope keeps the event undecoded so a missing event can be told apart
type rawEnvelope struct {
	Event      json.RawMessage `json:"event"`
	SourceType string          `json:"sourcetype"`
	Host       string          `json:"host"`
	Time       float64         `json:"time"`
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	writeReply(w, http.StatusOK, reply{Text: "HEC is healthy", Code: codeHealthy})
}

func writeReply(w http.ResponseWriter, status int, body reply) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}
