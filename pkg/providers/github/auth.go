package github

import (
	"bytes"
	"context"
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/json"
	"encoding/pem"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"
)

const defaultBaseURL = "https://api.github.com"

// AppConfig carries the GitHub App credentials. Exactly one of
// PrivateKeyPath or PrivateKeyPEM must be set.
type AppConfig struct {
	AppID          int64
	PrivateKeyPath string
	PrivateKeyPEM  string
	BaseURL        string
}

// Account is the org or user an installation belongs to.
type Account struct {
	ID   string
	Name string
	Type string
}

// InstallationToken is a short-lived installation access token. GitHub
// expires these after one hour.
type InstallationToken struct {
	Token     string
	ExpiresAt *time.Time
}

type appAuthenticator struct {
	cfg AppConfig
}

func newAppAuthenticator(cfg AppConfig) *appAuthenticator {
	return &appAuthenticator{cfg: cfg}
}

func (a *appAuthenticator) privateKey() (*rsa.PrivateKey, error) {
	pemData := []byte(a.cfg.PrivateKeyPEM)
	if len(pemData) == 0 {
		if a.cfg.PrivateKeyPath == "" {
			return nil, fmt.Errorf("github app private key is not configured")
		}
		data, err := os.ReadFile(a.cfg.PrivateKeyPath)
		if err != nil {
			return nil, fmt.Errorf("read github app private key: %w", err)
		}
		pemData = data
	}
	block, _ := pem.Decode(pemData)
	if block == nil {
		return nil, fmt.Errorf("github app private key is not valid PEM")
	}
	if key, err := x509.ParsePKCS1PrivateKey(block.Bytes); err == nil {
		return key, nil
	}
	parsed, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("parse github app private key: %w", err)
	}
	key, ok := parsed.(*rsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("github app private key is not an RSA key")
	}
	return key, nil
}

// jwt signs a short-lived RS256 app token. The issued-at claim is backdated
// one minute to absorb clock skew between us and GitHub.
func (a *appAuthenticator) jwt() (string, error) {
	key, err := a.privateKey()
	if err != nil {
		return "", err
	}
	now := time.Now().UTC()
	header, err := encodeSegment(map[string]interface{}{"alg": "RS256", "typ": "JWT"})
	if err != nil {
		return "", err
	}
	claims, err := encodeSegment(map[string]interface{}{
		"iat": now.Add(-time.Minute).Unix(),
		"exp": now.Add(9 * time.Minute).Unix(),
		"iss": strconv.FormatInt(a.cfg.AppID, 10),
	})
	if err != nil {
		return "", err
	}
	signingInput := header + "." + claims
	digest := sha256.Sum256([]byte(signingInput))
	signature, err := rsa.SignPKCS1v15(rand.Reader, key, crypto.SHA256, digest[:])
	if err != nil {
		return "", fmt.Errorf("sign github app jwt: %w", err)
	}
	return signingInput + "." + base64.RawURLEncoding.EncodeToString(signature), nil
}

func (a *appAuthenticator) installationToken(ctx context.Context, installationID int64) (string, error) {
	token, err := FetchInstallationToken(ctx, a.cfg, installationID)
	if err != nil {
		return "", err
	}
	return token.Token, nil
}

func encodeSegment(payload interface{}) (string, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(raw), nil
}

func normalizeBaseURL(baseURL string) string {
	trimmed := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if trimmed == "" {
		return defaultBaseURL
	}
	return trimmed
}

func (a *appAuthenticator) doAppRequest(ctx context.Context, method, path string, out interface{}) error {
	token, err := a.jwt()
	if err != nil {
		return err
	}
	url := normalizeBaseURL(a.cfg.BaseURL) + path
	req, err := http.NewRequestWithContext(ctx, method, url, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/vnd.github+json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("github app request %s: %w", path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("read github response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("github app request %s failed (%d): %s", path, resp.StatusCode, strings.TrimSpace(string(body)))
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode github response: %w", err)
	}
	return nil
}

// FetchInstallationAccount looks up the account an installation belongs to
// using the app JWT.
func FetchInstallationAccount(ctx context.Context, cfg AppConfig, installationID int64) (Account, error) {
	if installationID == 0 {
		return Account{}, fmt.Errorf("github installation id is required")
	}
	authenticator := newAppAuthenticator(cfg)
	var payload struct {
		Account struct {
			ID    int64  `json:"id"`
			Login string `json:"login"`
			Type  string `json:"type"`
		} `json:"account"`
	}
	path := fmt.Sprintf("/app/installations/%d", installationID)
	if err := authenticator.doAppRequest(ctx, http.MethodGet, path, &payload); err != nil {
		return Account{}, err
	}
	if payload.Account.ID == 0 {
		return Account{}, fmt.Errorf("github installation %d response is missing the account id", installationID)
	}
	return Account{
		ID:   strconv.FormatInt(payload.Account.ID, 10),
		Name: payload.Account.Login,
		Type: payload.Account.Type,
	}, nil
}

// FetchInstallationToken exchanges the app JWT for an installation access
// token. An unparseable expires_at is tolerated and reported as nil.
func FetchInstallationToken(ctx context.Context, cfg AppConfig, installationID int64) (InstallationToken, error) {
	if installationID == 0 {
		return InstallationToken{}, fmt.Errorf("github installation id is required")
	}
	authenticator := newAppAuthenticator(cfg)
	var payload struct {
		Token     string `json:"token"`
		ExpiresAt string `json:"expires_at"`
	}
	path := fmt.Sprintf("/app/installations/%d/access_tokens", installationID)
	if err := authenticator.doAppRequest(ctx, http.MethodPost, path, &payload); err != nil {
		return InstallationToken{}, err
	}
	if payload.Token == "" {
		return InstallationToken{}, fmt.Errorf("github installation %d token missing from response", installationID)
	}
	token := InstallationToken{Token: payload.Token}
	if payload.ExpiresAt != "" {
		if expires, err := time.Parse(time.RFC3339, payload.ExpiresAt); err == nil {
			expiresUTC := expires.UTC()
			token.ExpiresAt = &expiresUTC
		}
	}
	return token, nil
}

// InstallationIDFromPayload extracts installation.id from a raw webhook
// body without decoding the full payload.
func InstallationIDFromPayload(raw []byte) (int64, bool, error) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return 0, false, nil
	}
	var envelope struct {
		Installation *struct {
			ID int64 `json:"id"`
		} `json:"installation"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return 0, false, fmt.Errorf("decode webhook payload: %w", err)
	}
	if envelope.Installation == nil || envelope.Installation.ID == 0 {
		return 0, false, nil
	}
	return envelope.Installation.ID, true, nil
}
