package webhook

import (
	"bytes"
	"context"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"testing"

	"githubapp/pkg/storage"
	"githubapp/pkg/sync"
)

const testSecret = "s3cret"

type handlerFixture struct {
	handler       *GitHubHandler
	payloads      *storage.MockPayloadStore
	installations *storage.MockInstallationStore
	products      *storage.MockProductStore
	accounts      *storage.MockAccountDirectory
}

func newHandlerFixture(t *testing.T) *handlerFixture {
	t.Helper()
	payloads := storage.NewMockPayloadStore()
	installations := storage.NewMockInstallationStore()
	products := storage.NewMockProductStore()
	accounts := storage.NewMockAccountDirectory()
	logger := log.New(io.Discard, "", 0)
	engine := sync.NewEngine(products, installations, accounts, stubRepos{}, logger, 1)
	dispatcher := NewDispatcher(engine, installations, logger)
	return &handlerFixture{
		handler:       NewGitHubHandler(testSecret, logger, 1<<20, false, payloads, dispatcher),
		payloads:      payloads,
		installations: installations,
		products:      products,
		accounts:      accounts,
	}
}

type stubRepos struct{}

func (stubRepos) Repository(_ context.Context, _ int64, fullName string) (sync.Repository, error) {
	return sync.Repository{FullName: fullName}, nil
}

func (stubRepos) ListRepositories(_ context.Context, _ int64) ([]sync.Repository, error) {
	return nil, nil
}

func postWebhook(t *testing.T, handler http.Handler, event string, body []byte, sign bool) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/webhook", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if event != "" {
		req.Header.Set("X-GitHub-Event", event)
	}
	if sign {
		req.Header.Set("X-Hub-Signature-256", signSHA256(testSecret, body))
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func storedPayloads(t *testing.T, f *handlerFixture) []storage.WebhookPayload {
	t.Helper()
	records, err := f.payloads.ListPayloads(context.Background(), 100)
	if err != nil {
		t.Fatalf("list payloads: %v", err)
	}
	return records
}

func TestHandlerRejectsUnsignedDelivery(t *testing.T) {
	f := newHandlerFixture(t)
	body := []byte(`{"action":"created","sender":{"id":1001}}`)

	rec := postWebhook(t, f.handler, "repository", body, false)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rec.Code)
	}
	if got := len(storedPayloads(t, f)); got != 0 {
		t.Fatalf("unsigned delivery must not be persisted, got %d records", got)
	}

	rec = postWebhook(t, f.handler, "repository", body, true)
	if rec.Code != http.StatusOK || rec.Body.String() != "ok" {
		t.Fatalf("expected ok, got %d %q", rec.Code, rec.Body.String())
	}
	records := storedPayloads(t, f)
	if len(records) != 1 {
		t.Fatalf("expected one persisted record, got %d", len(records))
	}
	if records[0].Event != "repository" || records[0].Action != "created" || records[0].Sender != 1001 {
		t.Fatalf("unexpected record: %+v", records[0])
	}
}

func TestHandlerRejectsTamperedBody(t *testing.T) {
	f := newHandlerFixture(t)
	body := []byte(`{"action":"created","sender":{"id":1001}}`)

	req := httptest.NewRequest(http.MethodPost, "/webhook", bytes.NewReader([]byte(`{"action":"deleted"}`)))
	req.Header.Set("X-GitHub-Event", "repository")
	req.Header.Set("X-Hub-Signature-256", signSHA256(testSecret, body))
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for tampered body, got %d", rec.Code)
	}
}

func TestHandlerAcceptsLegacySHA1Signature(t *testing.T) {
	f := newHandlerFixture(t)
	body := []byte(`{"sender":{"id":1001}}`)

	req := httptest.NewRequest(http.MethodPost, "/webhook", bytes.NewReader(body))
	req.Header.Set("X-GitHub-Event", "watch")
	req.Header.Set("X-Hub-Signature", signSHA1(testSecret, body))
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 for sha1 signature, got %d", rec.Code)
	}
}

func TestHandlerAnswersPingBeforeEventCheck(t *testing.T) {
	f := newHandlerFixture(t)
	body := []byte(`{"zen":"Design for failure.","hook_id":1}`)

	// No event header at all: the ping must still be answered.
	rec := postWebhook(t, f.handler, "", body, true)
	if rec.Code != http.StatusOK || rec.Body.String() != "pong" {
		t.Fatalf("expected pong, got %d %q", rec.Code, rec.Body.String())
	}

	rec = postWebhook(t, f.handler, "ping", body, true)
	if rec.Code != http.StatusOK || rec.Body.String() != "pong" {
		t.Fatalf("expected pong with header, got %d %q", rec.Code, rec.Body.String())
	}

	// Pings are answered, not recorded.
	if got := len(storedPayloads(t, f)); got != 0 {
		t.Fatalf("expected no persisted pings, got %d", got)
	}
}

func TestHandlerRequiresEventHeader(t *testing.T) {
	f := newHandlerFixture(t)
	body := []byte(`{"action":"created","sender":{"id":1001}}`)

	rec := postWebhook(t, f.handler, "", body, true)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rec.Code)
	}
	if got := rec.Body.String(); got != "Missing event\n" {
		t.Fatalf("unexpected body: %q", got)
	}
}

func TestHandlerRejectsMalformedJSON(t *testing.T) {
	f := newHandlerFixture(t)
	body := []byte(`{"action":`)

	rec := postWebhook(t, f.handler, "repository", body, true)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestHandlerRejectsNonPost(t *testing.T) {
	f := newHandlerFixture(t)
	req := httptest.NewRequest(http.MethodGet, "/webhook", nil)
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", rec.Code)
	}
}

func TestHandlerUnknownInstallationIsInert(t *testing.T) {
	f := newHandlerFixture(t)
	body := []byte(`{
		"action": "created",
		"repository": {"full_name": "kiwi/widgets", "description": "widgets", "fork": false},
		"installation": {"id": 99},
		"sender": {"id": 1001}
	}`)

	rec := postWebhook(t, f.handler, "repository", body, true)
	if rec.Code != http.StatusOK || rec.Body.String() != "ok" {
		t.Fatalf("expected ok for unknown installation, got %d %q", rec.Code, rec.Body.String())
	}
	for _, tenantID := range []int64{1, 5} {
		if got := len(f.products.Products(tenantID)); got != 0 {
			t.Fatalf("expected no products under tenant %d, got %d", tenantID, got)
		}
	}
	// Still audited.
	if got := len(storedPayloads(t, f)); got != 1 {
		t.Fatalf("expected one persisted record, got %d", got)
	}
}

func TestHandlerPendingInstallationIsInert(t *testing.T) {
	f := newHandlerFixture(t)
	if _, err := f.installations.CreateInstallation(context.Background(), storage.AppInstallation{
		InstallationID: 99,
		Sender:         1001,
	}); err != nil {
		t.Fatalf("seed installation: %v", err)
	}
	body := []byte(`{
		"action": "created",
		"repository": {"full_name": "kiwi/widgets", "fork": false},
		"installation": {"id": 99},
		"sender": {"id": 1001}
	}`)

	rec := postWebhook(t, f.handler, "repository", body, true)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected ok for pending installation, got %d", rec.Code)
	}
	for _, tenantID := range []int64{1, 5} {
		if got := len(f.products.Products(tenantID)); got != 0 {
			t.Fatalf("expected no products under tenant %d, got %d", tenantID, got)
		}
	}
}

func TestHandlerConfiguredInstallationImports(t *testing.T) {
	f := newHandlerFixture(t)
	tenant := int64(5)
	if _, err := f.installations.CreateInstallation(context.Background(), storage.AppInstallation{
		InstallationID: 99,
		Sender:         1001,
		TenantID:       &tenant,
	}); err != nil {
		t.Fatalf("seed installation: %v", err)
	}
	body := []byte(`{
		"action": "created",
		"repository": {"full_name": "kiwi/widgets", "description": "widgets", "html_url": "https://github.com/kiwi/widgets", "fork": false},
		"installation": {"id": 99},
		"sender": {"id": 1001}
	}`)

	rec := postWebhook(t, f.handler, "repository", body, true)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected ok, got %d %s", rec.Code, rec.Body.String())
	}
	products := f.products.Products(5)
	if len(products) != 1 || products[0].Name != "kiwi/widgets" {
		t.Fatalf("unexpected products: %+v", products)
	}
	if got := len(f.products.BugSystems(5)); got != 1 {
		t.Fatalf("expected one bug system, got %d", got)
	}
}
