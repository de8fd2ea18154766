package mockapi

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func postJSON(t *testing.T, srv *Server, path string, body map[string]any) *httptest.ResponseRecorder {
	t.Helper()
	return postJSONAs(t, srv, path, body, "")
}

func postJSONAs(t *testing.T, srv *Server, path string, body map[string]any, clientID string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(http.MethodPost, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if clientID != "" {
		req.Header.Set("X-Client-ID", clientID)
	}
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body["error"]
}

func TestCreateUser(t *testing.T) {
	tests := []struct {
		name       string
		body       map[string]any
		wantStatus int
		wantError  string
	}{
		{
			name:       "valid user with email",
			body:       map[string]any{"name": "Alice", "username": "alice_01", "email": "alice@example.com"},
			wantStatus: http.StatusCreated,
		},
		{
			name:       "valid user with phone",
			body:       map[string]any{"name": "Bob", "username": "bob_02", "phone": "555-0100"},
			wantStatus: http.StatusCreated,
		},
		{
			name:       "empty body",
			body:       nil,
			wantStatus: http.StatusBadRequest,
			wantError:  "Request body is required",
		},
		{
			name:       "name required",
			body:       map[string]any{"username": "alice_01", "email": "alice@example.com"},
			wantStatus: http.StatusBadRequest,
			wantError:  "name field is required",
		},
		{
			name:       "username required",
			body:       map[string]any{"name": "Alice", "email": "alice@example.com"},
			wantStatus: http.StatusBadRequest,
			wantError:  "username field is required",
		},
		{
			name:       "premium account requires email",
			body:       map[string]any{"name": "Alice", "username": "alice_01", "account_type": "premium", "phone": "555-0100"},
			wantStatus: http.StatusBadRequest,
			wantError:  "email is required when account_type is 'premium'",
		},
		{
			name:       "email and phone are mutually exclusive",
			body:       map[string]any{"name": "Alice", "username": "alice_01", "email": "alice@example.com", "phone": "555-0100"},
			wantStatus: http.StatusBadRequest,
			wantError:  "Cannot specify both email and phone",
		},
		{
			name:       "at least one contact method",
			body:       map[string]any{"name": "Alice", "username": "alice_01"},
			wantStatus: http.StatusBadRequest,
			wantError:  "Either email or phone must be provided",
		},
		{
			name:       "contact_type email enforces format",
			body:       map[string]any{"name": "Alice", "username": "alice_01", "contact_type": "email", "email": "not-an-email"},
			wantStatus: http.StatusBadRequest,
			wantError:  "Valid email format required",
		},
		{
			name:       "underage user rejected",
			body:       map[string]any{"name": "Kid", "username": "kid_01", "email": "kid@example.com", "age": 17},
			wantStatus: http.StatusBadRequest,
			wantError:  "age must be at least 18",
		},
		{
			name:       "age accepts numeric strings",
			body:       map[string]any{"name": "Alice", "username": "alice_01", "email": "alice@example.com", "age": "21"},
			wantStatus: http.StatusCreated,
		},
		{
			name:       "garbage age rejected",
			body:       map[string]any{"name": "Alice", "username": "alice_01", "email": "alice@example.com", "age": "old"},
			wantStatus: http.StatusBadRequest,
			wantError:  "age must be a valid number",
		},
		{
			name:       "username pattern enforced",
			body:       map[string]any{"name": "Alice", "username": "a!", "email": "alice@example.com"},
			wantStatus: http.StatusBadRequest,
			wantError:  "username must be 3-20 characters",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := NewServer("127.0.0.1:0", nil)
			rec := postJSON(t, srv, "/users", tt.body)
			assert.Equal(t, tt.wantStatus, rec.Code)
			if tt.wantError != "" {
				assert.Contains(t, decodeError(t, rec), tt.wantError)
			}
		})
	}

	t.Run("created user echoes fields", func(t *testing.T) {
		srv := NewServer("127.0.0.1:0", nil)
		rec := postJSON(t, srv, "/users", map[string]any{
			"name": "Alice", "username": "alice_01", "email": "alice@example.com",
		})
		require.Equal(t, http.StatusCreated, rec.Code)

		var user map[string]any
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &user))
		assert.Equal(t, float64(123), user["id"])
		assert.Equal(t, "basic", user["account_type"])
		assert.Equal(t, "email", user["contact_method"])
	})
}

func TestCreateUserRateLimit(t *testing.T) {
	srv := NewServer("127.0.0.1:0", nil)
	body := map[string]any{"name": "Alice", "username": "alice_01", "email": "alice@example.com"}

	for i := 0; i < 10; i++ {
		rec := postJSONAs(t, srv, "/users", body, "client-a")
		require.Equal(t, http.StatusCreated, rec.Code, "request %d should pass", i+1)
	}

	rec := postJSONAs(t, srv, "/users", body, "client-a")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Contains(t, decodeError(t, rec), "maximum 10 requests per 30 seconds")

	// Another client has its own bucket
	rec = postJSONAs(t, srv, "/users", body, "client-b")
	assert.Equal(t, http.StatusCreated, rec.Code)
}

func TestCreateOrder(t *testing.T) {
	tests := []struct {
		name       string
		body       map[string]any
		wantStatus int
		wantError  string
	}{
		{
			name:       "valid cash order",
			body:       map[string]any{"total_amount": 19.99},
			wantStatus: http.StatusCreated,
		},
		{
			name:       "credit card requires billing address",
			body:       map[string]any{"payment_method": "credit_card", "total_amount": 19.99},
			wantStatus: http.StatusBadRequest,
			wantError:  "billing_address is required when payment_method is 'credit_card'",
		},
		{
			name: "credit card with billing address",
			body: map[string]any{
				"payment_method": "credit_card", "billing_address": "1 Main St", "total_amount": 19.99,
			},
			wantStatus: http.StatusCreated,
		},
		{
			name:       "zero amount rejected",
			body:       map[string]any{"total_amount": 0},
			wantStatus: http.StatusBadRequest,
			wantError:  "total_amount must be greater than 0",
		},
		{
			name:       "negative amount rejected",
			body:       map[string]any{"total_amount": -5},
			wantStatus: http.StatusBadRequest,
			wantError:  "total_amount must be greater than 0",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := NewServer("127.0.0.1:0", nil)
			rec := postJSON(t, srv, "/orders", tt.body)
			assert.Equal(t, tt.wantStatus, rec.Code)
			if tt.wantError != "" {
				assert.Contains(t, decodeError(t, rec), tt.wantError)
			}
		})
	}
}

func TestCreateOrderRateLimit(t *testing.T) {
	srv := NewServer("127.0.0.1:0", nil)
	body := map[string]any{"total_amount": 9.99}

	for i := 0; i < 10; i++ {
		rec := postJSONAs(t, srv, "/orders", body, "client-a")
		require.Equal(t, http.StatusCreated, rec.Code)
	}
	rec := postJSONAs(t, srv, "/orders", body, "client-a")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Contains(t, decodeError(t, rec), "maximum 10 orders per minute")
}

func TestCreateProduct(t *testing.T) {
	srv := NewServer("127.0.0.1:0", nil)

	rec := postJSON(t, srv, "/products", map[string]any{"name": "Widget", "contact_email": "nope"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, decodeError(t, rec), "contact_email must be a valid email format")

	rec = postJSON(t, srv, "/products", map[string]any{"name": "Widget", "contact_email": "sales@example.com"})
	require.Equal(t, http.StatusCreated, rec.Code)

	var product map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &product))
	assert.Equal(t, float64(789), product["id"])
	assert.Equal(t, "Widget", product["name"])

	// No rate limit on products; more than ten requests go through
	for i := 0; i < 15; i++ {
		rec := postJSON(t, srv, "/products", map[string]any{"name": fmt.Sprintf("Widget %d", i)})
		require.Equal(t, http.StatusCreated, rec.Code)
	}
}

func TestCreateProfile(t *testing.T) {
	srv := NewServer("127.0.0.1:0", nil)

	rec := postJSON(t, srv, "/profiles", map[string]any{"bio": "hello"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, decodeError(t, rec), "username field is required")

	rec = postJSON(t, srv, "/profiles", map[string]any{"username": "alice_01", "bio": "hello"})
	require.Equal(t, http.StatusCreated, rec.Code)

	var profile map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &profile))
	assert.Equal(t, float64(101), profile["id"])
	assert.Equal(t, "alice_01", profile["username"])
}

func TestHealthz(t *testing.T) {
	srv := NewServer("127.0.0.1:0", nil)
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK", rec.Body.String())
}

func TestMethodNotAllowed(t *testing.T) {
	srv := NewServer("127.0.0.1:0", nil)
	req := httptest.NewRequest(http.MethodGet, "/users", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}
