package server

import (
	"errors"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"githubapp/pkg/storage"
	"githubapp/pkg/sync"
)

// interactiveHandlers serve the authenticated browser flows. The host
// application terminates authentication and forwards the caller's tenant
// and linked GitHub account id as headers.
type interactiveHandlers struct {
	engine        *sync.Engine
	installations storage.InstallationStore
	logger        *log.Logger
}

func newInteractiveHandlers(engine *sync.Engine, installations storage.InstallationStore, logger *log.Logger) *interactiveHandlers {
	if logger == nil {
		logger = log.Default()
	}
	return &interactiveHandlers{engine: engine, installations: installations, logger: logger}
}

func identityFromRequest(r *http.Request) (int64, int64, error) {
	tenantID, err := strconv.ParseInt(strings.TrimSpace(r.Header.Get("X-Tenant-ID")), 10, 64)
	if err != nil || tenantID <= 0 {
		return 0, 0, fmt.Errorf("X-Tenant-ID header is required")
	}
	externalUID, err := strconv.ParseInt(strings.TrimSpace(r.Header.Get("X-External-UID")), 10, 64)
	if err != nil || externalUID <= 0 {
		return 0, 0, fmt.Errorf("X-External-UID header is required")
	}
	return tenantID, externalUID, nil
}

// redirectWithMessages sends the caller to target carrying flash messages
// as repeated "message" query parameters.
func redirectWithMessages(w http.ResponseWriter, r *http.Request, target string, messages []string) {
	if len(messages) > 0 {
		parsed, err := url.Parse(target)
		if err != nil {
			parsed = &url.URL{Path: "/"}
		}
		query := parsed.Query()
		for _, message := range messages {
			query.Add("message", message)
		}
		parsed.RawQuery = query.Encode()
		target = parsed.String()
	}
	http.Redirect(w, r, target, http.StatusFound)
}

// AppEdit sends the caller to the GitHub settings page of their
// installation. With several candidate installations the choice is the
// caller's, so they get a link per installation instead of a guess.
func (h *interactiveHandlers) AppEdit(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	tenantID, externalUID, err := identityFromRequest(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	candidates, err := storage.FindInstallationsForRequest(r.Context(), h.installations, tenantID, externalUID)
	if err != nil {
		h.logger.Printf("appedit lookup failed tenant=%d: %v", tenantID, err)
		http.Error(w, "installation lookup failed", http.StatusInternalServerError)
		return
	}

	switch len(candidates) {
	case 0:
		redirectWithMessages(w, r, "/", []string{"GitHub App is not installed"})
	case 1:
		target := candidates[0].SettingsURL
		if target == "" {
			redirectWithMessages(w, r, "/", []string{"Installation has no settings page recorded"})
			return
		}
		http.Redirect(w, r, target, http.StatusFound)
	default:
		messages := make([]string, 0, len(candidates))
		for _, candidate := range candidates {
			messages = append(messages, fmt.Sprintf("Installation %d: %s", candidate.InstallationID, candidate.SettingsURL))
		}
		redirectWithMessages(w, r, "/", messages)
	}
}

// Resync re-imports every repository the tenant's installation can see.
// Ambiguity is reported back, never resolved by guessing.
func (h *interactiveHandlers) Resync(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	tenantID, externalUID, err := identityFromRequest(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	messages, err := h.engine.Resync(r.Context(), tenantID, externalUID)
	switch {
	case errors.Is(err, sync.ErrNoInstallation):
		redirectWithMessages(w, r, "/", []string{"Cannot find GitHub App installation"})
		return
	case errors.Is(err, sync.ErrMultipleInstallations):
		redirectWithMessages(w, r, "/", []string{"Multiple GitHub App installations detected, cannot continue"})
		return
	case err != nil:
		h.logger.Printf("resync failed tenant=%d: %v", tenantID, err)
		http.Error(w, "resync failed", http.StatusInternalServerError)
		return
	}
	if len(messages) == 0 {
		messages = []string{"Nothing to sync"}
	}
	redirectWithMessages(w, r, "/", messages)
}
