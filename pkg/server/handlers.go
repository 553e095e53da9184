package server

import (
	"encoding/json"
	"net/http"

	"mercator-hq/foreman/pkg/dispatch"
	"mercator-hq/foreman/pkg/messages"
)

// defaultAPIUser identifies REST callers that do not name themselves.
const defaultAPIUser = "api-user"

// defaultDiagnoseText seeds the diagnose endpoint when the caller sends no
// question of their own.
const defaultDiagnoseText = "Why is this equipment stopped?"

// MessageRequest is the body of POST /api/v1/message and /api/v1/diagnose.
type MessageRequest struct {
	// Text is the message body.
	Text string `json:"text"`

	// UserID identifies the caller; defaults to "api-user".
	UserID string `json:"user_id,omitempty"`

	// NodeID optionally scopes the request to one equipment node.
	NodeID string `json:"node_id,omitempty"`
}

// MessageResponse is the reply body.
type MessageResponse struct {
	// Text is the assistant's reply.
	Text string `json:"text"`

	// Intent is the classified intent the reply came from.
	Intent string `json:"intent"`

	// Model names the LLM that answered; empty for Layer-0 and
	// command-style replies.
	Model string `json:"model,omitempty"`

	// LatencyMS is the provider call latency; zero when no LLM ran.
	LatencyMS int64 `json:"latency_ms,omitempty"`
}

// handleMessage dispatches a free-form message exactly as a chat channel
// would, intent classified from the text.
func (s *Server) handleMessage(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decodeMessage(w, r)
	if !ok {
		return
	}

	msg := messages.NewInbound(messages.ChannelHTTPAPI, req.UserID, req.Text)
	msg.NodeID = req.NodeID

	s.respond(w, r, msg)
}

// handleDiagnose forces the diagnose intent so callers can wire the endpoint
// to an alarm button without phrasing a question.
func (s *Server) handleDiagnose(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decodeMessage(w, r)
	if !ok {
		return
	}
	if req.Text == "" {
		req.Text = defaultDiagnoseText
	}

	msg := messages.NewInbound(messages.ChannelHTTPAPI, req.UserID, req.Text)
	msg.NodeID = req.NodeID
	msg.Intent = messages.IntentDiagnose

	s.respond(w, r, msg)
}

// decodeMessage parses and defaults the request body, answering 400 itself
// on malformed JSON.
func (s *Server) decodeMessage(w http.ResponseWriter, r *http.Request) (MessageRequest, bool) {
	var req MessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return req, false
	}
	if req.UserID == "" {
		req.UserID = defaultAPIUser
	}
	return req, true
}

// respond runs the dispatch and writes the reply. Classification happens
// here so the response can report the intent the dispatcher acted on.
func (s *Server) respond(w http.ResponseWriter, r *http.Request, msg messages.InboundMessage) {
	if msg.Intent == "" || msg.Intent == messages.IntentUnknown {
		msg.Intent = messages.Classify(msg)
	}

	out := s.dispatcher.Dispatch(r.Context(), msg)

	writeJSON(w, http.StatusOK, MessageResponse{
		Text:      out.Text,
		Intent:    msg.Intent.String(),
		Model:     dispatch.Model(out),
		LatencyMS: dispatch.LatencyMS(out),
	})
}

// handleHealth serves the aggregate connector health. Degraded still answers
// 200: the gateway itself is up, the body says what isn't.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.aggregator.Check(r.Context()))
}

// handleMetrics serves the in-process traffic summary as JSON. The
// Prometheus exposition lives at /metrics/prometheus.
func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	if s.collector == nil {
		writeError(w, http.StatusNotFound, "metrics not enabled")
		return
	}
	writeJSON(w, http.StatusOK, s.collector.Summary())
}

// handleRoot describes the running gateway.
func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.info)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
