package integration

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/taskhive/taskhive/internal/auth"
	"github.com/taskhive/taskhive/internal/config"
)

type envelopeResponse struct {
	RequestID string          `json:"request_id"`
	Data      json.RawMessage `json:"data"`
}

type errorEnvelope struct {
	Error struct {
		Code      string `json:"code"`
		Message   string `json:"message"`
		RequestID string `json:"request_id"`
	} `json:"error"`
}

func testConfig() *config.Config {
	return &config.Config{
		Env:             "dev",
		HTTPAddr:        ":0",
		BaseURL:         "http://localhost",
		DBDSN:           "unused",
		JWTSecret:       "test-secret",
		LogLevel:        "error",
		RateLimitRPM:    1000,
		SessionDays:     7,
		CacheTTLSeconds: 300,
	}
}

func newClient(t *testing.T) *http.Client {
	t.Helper()

	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	return &http.Client{Jar: jar}
}

// csrfToken reads the CSRF cookie the server set during signup/login. The
// double-submit check compares it against the request header.
func csrfToken(t *testing.T, client *http.Client, baseURL string) string {
	t.Helper()

	u, err := url.Parse(baseURL)
	require.NoError(t, err)

	for _, c := range client.Jar.Cookies(u) {
		if c.Name == auth.CSRFCookieName {
			return c.Value
		}
	}
	t.Fatalf("no CSRF cookie in jar")
	return ""
}

// signup registers a user and returns their ID. The response also starts a
// session, so the client is logged in afterwards.
func signup(t *testing.T, client *http.Client, baseURL, email, name, password string) uuid.UUID {
	t.Helper()

	env := doJSONExpectSuccess(t, client, http.MethodPost, baseURL+"/api/v1/auth/signup", "", http.StatusCreated, map[string]any{
		"email":    email,
		"name":     name,
		"password": password,
	})

	var parsed struct {
		UserID uuid.UUID `json:"user_id"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &parsed))
	require.NotEqual(t, uuid.Nil, parsed.UserID)

	return parsed.UserID
}

type orgInfo struct {
	ID   uuid.UUID `json:"id"`
	Name string    `json:"name"`
	Slug string    `json:"slug"`
}

func createOrg(t *testing.T, client *http.Client, baseURL, csrf, name string) orgInfo {
	t.Helper()

	env := doJSONExpectSuccess(t, client, http.MethodPost, baseURL+"/api/v1/orgs", csrf, http.StatusCreated, map[string]any{
		"name": name,
	})

	var parsed struct {
		Organization orgInfo `json:"organization"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &parsed))
	require.NotEqual(t, uuid.Nil, parsed.Organization.ID)
	require.NotEmpty(t, parsed.Organization.Slug)

	return parsed.Organization
}

func doJSONExpectSuccess(t *testing.T, client *http.Client, method, urlStr, csrf string, wantStatus int, payload any) envelopeResponse {
	t.Helper()

	respBody := doJSONExpectStatus(t, client, method, urlStr, csrf, wantStatus, payload)

	var env envelopeResponse
	require.NoError(t, json.Unmarshal(respBody, &env))
	require.NotEmpty(t, env.RequestID)

	return env
}

func doJSONExpectError(t *testing.T, client *http.Client, method, urlStr, csrf string, wantStatus int, payload any) errorEnvelope {
	t.Helper()

	respBody := doJSONExpectStatus(t, client, method, urlStr, csrf, wantStatus, payload)

	var env errorEnvelope
	require.NoError(t, json.Unmarshal(respBody, &env))
	require.NotEmpty(t, env.Error.RequestID)

	return env
}

func doJSONExpectStatus(t *testing.T, client *http.Client, method, urlStr, csrf string, wantStatus int, payload any) []byte {
	t.Helper()

	var bodyReader io.Reader
	if payload != nil {
		b, err := json.Marshal(payload)
		require.NoError(t, err)
		bodyReader = bytes.NewReader(b)
	}

	req, err := http.NewRequest(method, urlStr, bodyReader)
	require.NoError(t, err)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if csrf != "" {
		req.Header.Set(auth.CSRFHeaderName, csrf)
	}

	resp, err := client.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.Equal(t, wantStatus, resp.StatusCode, "body: %s", string(body))

	return body
}
