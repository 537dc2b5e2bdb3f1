package webhook

import (
	"encoding/json"
	"io"
	"log"
	"net/http"

	"github.com/google/uuid"

	"githubapp/pkg/core"
	"githubapp/pkg/storage"
)

// GitHubHandler receives GitHub App webhook deliveries. Every verified
// delivery is recorded before dispatch so the audit trail survives a
// downstream failure.
type GitHubHandler struct {
	secret      string
	logger      *log.Logger
	maxBody     int64
	debugEvents bool
	payloads    storage.PayloadStore
	dispatcher  *Dispatcher
}

// envelope is the minimal shape shared by every GitHub webhook body.
type envelope struct {
	Zen    string `json:"zen"`
	Action string `json:"action"`
	Sender struct {
		ID int64 `json:"id"`
	} `json:"sender"`
}

// NewGitHubHandler creates a webhook handler.
func NewGitHubHandler(secret string, logger *log.Logger, maxBody int64, debugEvents bool, payloads storage.PayloadStore, dispatcher *Dispatcher) *GitHubHandler {
	if logger == nil {
		logger = log.Default()
	}
	if maxBody <= 0 {
		maxBody = 1 << 20
	}
	return &GitHubHandler{
		secret:      secret,
		logger:      logger,
		maxBody:     maxBody,
		debugEvents: debugEvents,
		payloads:    payloads,
		dispatcher:  dispatcher,
	}
}

// ServeHTTP handles one webhook delivery. The order is fixed: verify the
// signature, decode, answer liveness pings, require the event header,
// persist, then dispatch.
func (h *GitHubHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	logger := core.WithRequestID(h.logger, requestID(r))

	rawBody, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.maxBody))
	if err != nil {
		logger.Printf("github webhook body read failed: %v", err)
		http.Error(w, "unreadable body", http.StatusBadRequest)
		return
	}

	if !VerifySignature(h.secret, rawBody, r.Header.Get("X-Hub-Signature-256")) &&
		!VerifySignature(h.secret, rawBody, r.Header.Get("X-Hub-Signature")) {
		logger.Printf("github webhook signature invalid for event %s", r.Header.Get("X-GitHub-Event"))
		w.WriteHeader(http.StatusForbidden)
		return
	}

	var body envelope
	if err := json.Unmarshal(rawBody, &body); err != nil {
		logger.Printf("github webhook decode failed: %v", err)
		http.Error(w, "invalid payload", http.StatusBadRequest)
		return
	}

	if h.debugEvents {
		logger.Printf("debug event name=%s payload=%s", r.Header.Get("X-GitHub-Event"), string(rawBody))
	}

	// A ping carries a zen aphorism and nothing else of interest. It is
	// answered before the event header check because not every delivery
	// configuration sends the header on pings.
	if body.Zen != "" {
		w.Header().Set("Content-Type", "text/plain")
		_, _ = w.Write([]byte("pong"))
		return
	}

	event := r.Header.Get("X-GitHub-Event")
	if event == "" {
		http.Error(w, "Missing event", http.StatusForbidden)
		return
	}

	if _, err := h.payloads.Record(r.Context(), storage.WebhookPayload{
		Event:   event,
		Action:  body.Action,
		Sender:  body.Sender.ID,
		Payload: rawBody,
	}); err != nil {
		logger.Printf("github webhook persist failed: %v", err)
		http.Error(w, "storage unavailable", http.StatusInternalServerError)
		return
	}

	if err := h.dispatcher.Dispatch(r.Context(), event, body.Action, rawBody); err != nil {
		logger.Printf("github webhook dispatch failed event=%s action=%s: %v", event, body.Action, err)
		http.Error(w, "event handling failed", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/plain")
	_, _ = w.Write([]byte("ok"))
}

func requestID(r *http.Request) string {
	if r == nil {
		return uuid.NewString()
	}
	if id := r.Header.Get("X-GitHub-Delivery"); id != "" {
		return id
	}
	if id := r.Header.Get("X-Request-Id"); id != "" {
		return id
	}
	return uuid.NewString()
}
