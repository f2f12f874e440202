// Package github provides GitHub App authentication for the GitHub backend
// adapter: App JWT generation, installation-token exchange, and automatic
// refresh.
package github

import (
	"crypto/rsa"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v4"

	"github.com/andywolf/beadbridge/internal/backend"
)

// MaxJWTDuration is the maximum duration GitHub accepts for App JWTs.
const MaxJWTDuration = 10 * time.Minute

// TokenRefreshBuffer is how long before expiry a refresh is triggered.
// Installation tokens live one hour; a 5-minute buffer keeps long sync
// cycles from racing expiry.
const TokenRefreshBuffer = 5 * time.Minute

// AppCredentials holds GitHub App identity plus its signing key.
type AppCredentials struct {
	AppID          string
	InstallationID int64
	PrivateKeyPEM  []byte
}

// signJWT produces a short-lived RS256 App JWT.
func signJWT(appID string, key *rsa.PrivateKey, duration time.Duration) (string, error) {
	if duration <= 0 || duration > MaxJWTDuration {
		return "", fmt.Errorf("JWT duration must be in (0, %v], got %v", MaxJWTDuration, duration)
	}

	now := time.Now()
	claims := jwt.RegisteredClaims{
		Issuer:    appID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(duration)),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	signed, err := token.SignedString(key)
	if err != nil {
		return "", fmt.Errorf("signing App JWT: %w", err)
	}
	return signed, nil
}

// parsePrivateKey parses a PEM-encoded RSA private key in PKCS#1 or PKCS#8.
func parsePrivateKey(pemData []byte) (*rsa.PrivateKey, error) {
	block, _ := pem.Decode(pemData)
	if block == nil {
		return nil, fmt.Errorf("no PEM block found in private key")
	}

	if block.Type == "RSA PRIVATE KEY" {
		return x509.ParsePKCS1PrivateKey(block.Bytes)
	}

	key, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("parsing private key: %w", err)
	}
	rsaKey, ok := key.(*rsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("private key is not RSA")
	}
	return rsaKey, nil
}

// InstallationToken is a GitHub App installation access token.
type InstallationToken struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// TokenManager exchanges App JWTs for installation tokens and refreshes
// them before expiry. Safe for concurrent use.
type TokenManager struct {
	mu sync.RWMutex

	creds      AppCredentials
	privateKey *rsa.PrivateKey

	token     string
	expiresAt time.Time

	httpClient *http.Client
	baseURL    string
	nowFunc    func() time.Time
}

// TokenManagerOption configures a TokenManager.
type TokenManagerOption func(*TokenManager)

// WithBaseURL points the exchanger at a custom API endpoint (tests).
func WithBaseURL(url string) TokenManagerOption {
	return func(tm *TokenManager) { tm.baseURL = url }
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(client *http.Client) TokenManagerOption {
	return func(tm *TokenManager) { tm.httpClient = client }
}

// WithNowFunc sets a custom time source (tests).
func WithNowFunc(fn func() time.Time) TokenManagerOption {
	return func(tm *TokenManager) { tm.nowFunc = fn }
}

// NewTokenManager validates the credentials and builds a manager. The
// private key is parsed eagerly so misconfiguration fails here rather than
// mid-sync.
func NewTokenManager(creds AppCredentials, opts ...TokenManagerOption) (*TokenManager, error) {
	if creds.AppID == "" {
		return nil, fmt.Errorf("app ID cannot be empty")
	}
	if creds.InstallationID <= 0 {
		return nil, fmt.Errorf("installation ID must be positive")
	}

	key, err := parsePrivateKey(creds.PrivateKeyPEM)
	if err != nil {
		return nil, fmt.Errorf("invalid App private key: %w", err)
	}

	tm := &TokenManager{
		creds:      creds,
		privateKey: key,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		baseURL:    "https://api.github.com",
		nowFunc:    time.Now,
	}
	for _, opt := range opts {
		opt(tm)
	}
	return tm, nil
}

// Token returns a valid installation token, refreshing if necessary.
func (tm *TokenManager) Token() (string, error) {
	tm.mu.RLock()
	if tm.isValidLocked() {
		token := tm.token
		tm.mu.RUnlock()
		return token, nil
	}
	tm.mu.RUnlock()

	return tm.Refresh()
}

// Refresh forces a token refresh regardless of current validity.
func (tm *TokenManager) Refresh() (string, error) {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	appJWT, err := signJWT(tm.creds.AppID, tm.privateKey, MaxJWTDuration)
	if err != nil {
		return "", err
	}

	installToken, err := tm.exchange(appJWT)
	if err != nil {
		return "", err
	}

	tm.token = installToken.Token
	tm.expiresAt = installToken.ExpiresAt
	return tm.token, nil
}

// NeedsRefresh reports whether the token is missing or close to expiry.
func (tm *TokenManager) NeedsRefresh() bool {
	tm.mu.RLock()
	defer tm.mu.RUnlock()
	return !tm.isValidLocked()
}

// isValidLocked checks token validity; caller must hold at least RLock.
func (tm *TokenManager) isValidLocked() bool {
	if tm.token == "" {
		return false
	}
	return tm.expiresAt.After(tm.nowFunc().Add(TokenRefreshBuffer))
}

// exchange trades the App JWT for an installation token.
func (tm *TokenManager) exchange(appJWT string) (*InstallationToken, error) {
	url := fmt.Sprintf("%s/app/installations/%d/access_tokens", tm.baseURL, tm.creds.InstallationID)

	req, err := http.NewRequest(http.MethodPost, url, nil)
	if err != nil {
		return nil, fmt.Errorf("building token request: %w", err)
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("Authorization", "Bearer "+appJWT)
	req.Header.Set("X-GitHub-Api-Version", "2022-11-28")

	resp, err := tm.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("requesting installation token: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading token response: %w", err)
	}

	if resp.StatusCode != http.StatusCreated {
		return nil, exchangeError(resp.StatusCode, body)
	}

	var token InstallationToken
	if err := json.Unmarshal(body, &token); err != nil {
		return nil, fmt.Errorf("parsing token response: %w", err)
	}
	return &token, nil
}

// exchangeError classifies a failed exchange. 401/403 surface as AuthError
// so the sync layer can report a credential problem distinctly.
func exchangeError(statusCode int, body []byte) error {
	var apiErr struct {
		Message string `json:"message"`
	}
	_ = json.Unmarshal(body, &apiErr)
	if apiErr.Message == "" {
		apiErr.Message = string(body)
	}

	switch statusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		return &backend.AuthError{Backend: "github", Reason: apiErr.Message}
	case http.StatusNotFound:
		return fmt.Errorf("installation not found: %s", apiErr.Message)
	default:
		return fmt.Errorf("token exchange failed (status %d): %s", statusCode, apiErr.Message)
	}
}
