package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestGitHubOAuthProvider_GetLoginURL_ContainsRequiredParams(t *testing.T) {
	provider := NewGitHubOAuthProvider(GitHubOAuthConfig{
		ClientID:    "test-client-id",
		RedirectURL: "http://localhost:8080/auth/github/callback",
	})

	url := provider.GetLoginURL("test-state-value")

	if !strings.HasPrefix(url, "https://github.com/login/oauth/authorize?") {
		t.Errorf("unexpected auth endpoint: %q", url)
	}

	tests := []struct {
		name     string
		contains string
	}{
		{"client_id", "client_id=test-client-id"},
		{"redirect_uri", "redirect_uri="},
		{"state", "state=test-state-value"},
		{"response_type", "response_type=code"},
		{"scope", "scope=read%3Auser"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if !strings.Contains(url, tt.contains) {
				t.Errorf("URL should contain %q, got %q", tt.contains, url)
			}
		})
	}
}

// newGitHubTestServers はトークンエンドポイントとユーザーAPIを模したサーバーを起動する。
func newGitHubTestServers(t *testing.T, userHandler http.HandlerFunc) (tokenURL, userURL string) {
	t.Helper()

	tokenServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			t.Errorf("failed to parse token request: %v", err)
		}
		if got := r.PostForm.Get("code"); got != "valid-code" {
			w.WriteHeader(http.StatusBadRequest)
			json.NewEncoder(w).Encode(map[string]string{"error": "bad_verification_code"})
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"access_token": "test-access-token",
			"token_type":   "bearer",
			"scope":        "read:user",
		})
	}))
	t.Cleanup(tokenServer.Close)

	userServer := httptest.NewServer(userHandler)
	t.Cleanup(userServer.Close)

	return tokenServer.URL, userServer.URL
}

func TestGitHubOAuthProvider_ExchangeCode_Success(t *testing.T) {
	tokenURL, userURL := newGitHubTestServers(t, func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer test-access-token" {
			t.Errorf("unexpected Authorization header: %q", got)
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"id":    583231,
			"login": "octocat",
		})
	})

	provider := NewGitHubOAuthProvider(GitHubOAuthConfig{
		ClientID:     "test-client-id",
		ClientSecret: "test-client-secret",
		TokenURL:     tokenURL,
		UserURL:      userURL,
	})

	info, err := provider.ExchangeCode(context.Background(), "valid-code")
	if err != nil {
		t.Fatalf("ExchangeCode: %v", err)
	}
	if info.ProviderUserID != "583231" {
		t.Errorf("ProviderUserID = %q, want 583231", info.ProviderUserID)
	}
	if info.Login != "octocat" {
		t.Errorf("Login = %q, want octocat", info.Login)
	}
}

func TestGitHubOAuthProvider_ExchangeCode_TokenError(t *testing.T) {
	tokenURL, userURL := newGitHubTestServers(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("user endpoint should not be called")
	})

	provider := NewGitHubOAuthProvider(GitHubOAuthConfig{
		ClientID: "test-client-id",
		TokenURL: tokenURL,
		UserURL:  userURL,
	})

	if _, err := provider.ExchangeCode(context.Background(), "bad-code"); err == nil {
		t.Fatal("expected error for invalid code")
	}
}

func TestGitHubOAuthProvider_ExchangeCode_UserEndpointFailure(t *testing.T) {
	tokenURL, userURL := newGitHubTestServers(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		w.Write([]byte(`{"message":"rate limited"}`))
	})

	provider := NewGitHubOAuthProvider(GitHubOAuthConfig{
		ClientID: "test-client-id",
		TokenURL: tokenURL,
		UserURL:  userURL,
	})

	if _, err := provider.ExchangeCode(context.Background(), "valid-code"); err == nil {
		t.Fatal("expected error when user endpoint fails")
	}
}

func TestGitHubOAuthProvider_ExchangeCode_MissingID(t *testing.T) {
	tokenURL, userURL := newGitHubTestServers(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"login":"ghost"}`))
	})

	provider := NewGitHubOAuthProvider(GitHubOAuthConfig{
		ClientID: "test-client-id",
		TokenURL: tokenURL,
		UserURL:  userURL,
	})

	if _, err := provider.ExchangeCode(context.Background(), "valid-code"); err == nil {
		t.Fatal("expected error for response without id")
	}
}
