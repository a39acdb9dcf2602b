package adminapi

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestUnauthorizedAccess(t *testing.T) {
	server := newTestServer(t)

	// No Authorization header at all.
	req, _ := http.NewRequest("GET", "/v1/lsn", nil)
	resp := httptest.NewRecorder()
	server.router.ServeHTTP(resp, req)
	if resp.Code != http.StatusUnauthorized {
		t.Errorf("Expected status 401 with no auth header, got %d", resp.Code)
	}

	// Malformed scheme.
	req, _ = http.NewRequest("GET", "/v1/lsn", nil)
	req.Header.Set("Authorization", "Basic whatever")
	resp = httptest.NewRecorder()
	server.router.ServeHTTP(resp, req)
	if resp.Code != http.StatusUnauthorized {
		t.Errorf("Expected status 401 for unsupported auth scheme, got %d", resp.Code)
	}

	// Invalid bearer token.
	req, _ = http.NewRequest("GET", "/v1/lsn", nil)
	req.Header.Set("Authorization", "Bearer not-a-real-token")
	resp = httptest.NewRecorder()
	server.router.ServeHTTP(resp, req)
	if resp.Code != http.StatusUnauthorized {
		t.Errorf("Expected status 401 for invalid bearer token, got %d", resp.Code)
	}

	// Invalid API key.
	req, _ = http.NewRequest("GET", "/v1/lsn", nil)
	req.Header.Set("Authorization", "ApiKey wrong-key")
	resp = httptest.NewRecorder()
	server.router.ServeHTTP(resp, req)
	if resp.Code != http.StatusUnauthorized {
		t.Errorf("Expected status 401 for invalid API key, got %d", resp.Code)
	}
}

func TestApiKeyAccessGrantsProtectedRoute(t *testing.T) {
	server := newTestServer(t)

	req, _ := http.NewRequest("GET", "/v1/lsn", nil)
	req.Header.Set("Authorization", "ApiKey test-key")
	resp := httptest.NewRecorder()
	server.router.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Errorf("ApiKey auth: Expected status 200, got %d", resp.Code)
	}
}

func TestLoginAndBearerAccess(t *testing.T) {
	server := newTestServer(t)

	loginBody, _ := json.Marshal(loginRequest{APIKey: "test-key"})
	req, _ := http.NewRequest("POST", "/v1/login", jsonReader(loginBody))
	req.Header.Set("Content-Type", "application/json")
	resp := httptest.NewRecorder()
	server.router.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("login: Expected status 200, got %d", resp.Code)
	}

	var response APIResponse
	if err := json.Unmarshal(resp.Body.Bytes(), &response); err != nil {
		t.Fatalf("Failed to unmarshal login response: %v", err)
	}
	loginData, ok := response.Data.(map[string]interface{})
	if !ok {
		t.Fatal("Expected login data in response")
	}
	token, ok := loginData["token"].(string)
	if !ok || token == "" {
		t.Fatal("Expected token in login response")
	}

	// The minted token must work on a protected route.
	req, _ = http.NewRequest("GET", "/v1/lsn", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	resp = httptest.NewRecorder()
	server.router.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Errorf("Bearer auth with minted token: Expected status 200, got %d", resp.Code)
	}
}

func TestLoginWithInvalidAPIKey(t *testing.T) {
	server := newTestServer(t)

	loginBody, _ := json.Marshal(loginRequest{APIKey: "wrong-key"})
	req, _ := http.NewRequest("POST", "/v1/login", jsonReader(loginBody))
	req.Header.Set("Content-Type", "application/json")
	resp := httptest.NewRecorder()
	server.router.ServeHTTP(resp, req)

	if resp.Code != http.StatusUnauthorized {
		t.Errorf("Expected status 401 for invalid API key at login, got %d", resp.Code)
	}
}

func TestHealthCheckBypassesAuthEvenWithBadHeader(t *testing.T) {
	server := newTestServer(t)

	req, _ := http.NewRequest("GET", "/v1/health", nil)
	req.Header.Set("Authorization", "garbage")
	resp := httptest.NewRecorder()
	server.router.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Errorf("Health check should bypass auth entirely: Expected status 200, got %d", resp.Code)
	}
}
