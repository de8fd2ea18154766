package mockapi

import (
	"encoding/json"
	"net/http"
	"regexp"
	"strconv"
	"time"

	"go.uber.org/zap"
)

var (
	emailRegex    = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)
	usernameRegex = regexp.MustCompile(`^[a-zA-Z0-9_]{3,20}$`)
)

// payload is a decoded JSON request body.
type payload map[string]any

func (p payload) str(key string) string {
	s, _ := p[key].(string)
	return s
}

func (p payload) has(key string) bool {
	v, ok := p[key]
	if !ok {
		return false
	}
	if s, isStr := v.(string); isStr {
		return s != ""
	}
	return v != nil
}

// number converts a JSON value to float64, accepting numeric strings the way
// the agent sometimes sends them.
func (p payload) number(key string) (float64, bool) {
	switch v := p[key].(type) {
	case float64:
		return v, true
	case string:
		f, err := strconv.ParseFloat(v, 64)
		return f, err == nil
	default:
		return 0, false
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.log.Error("Failed to encode response", zap.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]string{"error": msg})
}

// decodeBody reads the request body; a missing or undecodable body is
// reported to the client and ends the handler.
func (s *Server) decodeBody(w http.ResponseWriter, r *http.Request) (payload, bool) {
	var data payload
	if err := json.NewDecoder(r.Body).Decode(&data); err != nil || len(data) == 0 {
		s.writeError(w, http.StatusBadRequest, "Request body is required")
		return nil, false
	}
	return data, true
}

// handleCreateUser enforces the user-creation constraint set: required
// fields, the premium/email conditional, email/phone mutual exclusivity, the
// contact_type format dependency, the age business rule and the username
// pattern.
func (s *Server) handleCreateUser(w http.ResponseWriter, r *http.Request) {
	data, ok := s.decodeBody(w, r)
	if !ok {
		return
	}

	if !s.limiter.Allow("/users", clientKey(r), 10, 30*time.Second) {
		s.writeError(w, http.StatusTooManyRequests,
			"Rate limit exceeded: maximum 10 requests per 30 seconds for user creation")
		return
	}

	if !data.has("name") {
		s.writeError(w, http.StatusBadRequest, "name field is required")
		return
	}
	if !data.has("username") {
		s.writeError(w, http.StatusBadRequest, "username field is required")
		return
	}

	// Conditional requirement: email required for premium accounts.
	if data.str("account_type") == "premium" && !data.has("email") {
		s.writeError(w, http.StatusBadRequest, "email is required when account_type is 'premium'")
		return
	}

	// Mutual exclusivity: either email or phone, not both, at least one.
	hasEmail := data.has("email")
	hasPhone := data.has("phone")
	if hasEmail && hasPhone {
		s.writeError(w, http.StatusBadRequest,
			"Cannot specify both email and phone. Please provide only one contact method.")
		return
	}
	if !hasEmail && !hasPhone {
		s.writeError(w, http.StatusBadRequest,
			"Either email or phone must be provided as contact method")
		return
	}

	// Format dependency: strict email format when contact_type says so.
	if data.str("contact_type") == "email" && !emailRegex.MatchString(data.str("email")) {
		s.writeError(w, http.StatusBadRequest,
			"Valid email format required when contact_type is 'email'")
		return
	}

	if data.has("age") {
		age, ok := data.number("age")
		if !ok {
			s.writeError(w, http.StatusBadRequest, "age must be a valid number")
			return
		}
		if age < 18 {
			s.writeError(w, http.StatusBadRequest, "age must be at least 18 for account creation")
			return
		}
	}

	if !usernameRegex.MatchString(data.str("username")) {
		s.writeError(w, http.StatusBadRequest,
			"username must be 3-20 characters and contain only letters, numbers, and underscores")
		return
	}

	accountType := data.str("account_type")
	if accountType == "" {
		accountType = "basic"
	}
	contactMethod := "phone"
	if hasEmail {
		contactMethod = "email"
	}

	user := map[string]any{
		"id":             123,
		"name":           data["name"],
		"username":       data["username"],
		"account_type":   accountType,
		"contact_method": contactMethod,
	}
	if hasEmail {
		user["email"] = data["email"]
	}
	if hasPhone {
		user["phone"] = data["phone"]
	}

	s.writeJSON(w, http.StatusCreated, user)
}

// handleCreateOrder enforces the order business rules.
func (s *Server) handleCreateOrder(w http.ResponseWriter, r *http.Request) {
	data, ok := s.decodeBody(w, r)
	if !ok {
		return
	}

	if !s.limiter.Allow("/orders", clientKey(r), 10, time.Minute) {
		s.writeError(w, http.StatusTooManyRequests,
			"Rate limit exceeded: maximum 10 orders per minute")
		return
	}

	// Conditional requirement: card payments need a billing address.
	if data.str("payment_method") == "credit_card" && !data.has("billing_address") {
		s.writeError(w, http.StatusBadRequest,
			"billing_address is required when payment_method is 'credit_card'")
		return
	}

	totalAmount := 0.0
	if data.has("total_amount") {
		amount, ok := data.number("total_amount")
		if !ok {
			s.writeError(w, http.StatusBadRequest, "total_amount must be a valid number")
			return
		}
		if amount <= 0 {
			s.writeError(w, http.StatusBadRequest, "total_amount must be greater than 0")
			return
		}
		totalAmount = amount
	}

	paymentMethod := data.str("payment_method")
	if paymentMethod == "" {
		paymentMethod = "cash"
	}

	s.writeJSON(w, http.StatusCreated, map[string]any{
		"id":             456,
		"status":         "created",
		"total_amount":   totalAmount,
		"payment_method": paymentMethod,
	})
}

// handleCreateProduct only validates formats; it is the endpoint the agent
// uses to learn format constraints without rate-limit noise.
func (s *Server) handleCreateProduct(w http.ResponseWriter, r *http.Request) {
	data, ok := s.decodeBody(w, r)
	if !ok {
		return
	}

	if data.has("contact_email") && !emailRegex.MatchString(data.str("contact_email")) {
		s.writeError(w, http.StatusBadRequest, "contact_email must be a valid email format")
		return
	}

	name := data.str("name")
	if name == "" {
		name = "Default Product"
	}

	s.writeJSON(w, http.StatusCreated, map[string]any{
		"id":            789,
		"name":          name,
		"contact_email": data["contact_email"],
		"created_at":    s.now().UTC().Format(time.RFC3339),
	})
}

// handleCreateProfile only validates required fields, again without rate
// limits.
func (s *Server) handleCreateProfile(w http.ResponseWriter, r *http.Request) {
	data, ok := s.decodeBody(w, r)
	if !ok {
		return
	}

	if !data.has("username") {
		s.writeError(w, http.StatusBadRequest, "username field is required")
		return
	}

	s.writeJSON(w, http.StatusCreated, map[string]any{
		"id":         101,
		"username":   data["username"],
		"bio":        data.str("bio"),
		"created_at": s.now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK")) //nolint:errcheck
}

// clientKey identifies the rate-limit bucket for a request. Tests and the
// agent may set X-Client-ID; everything else shares the default bucket, the
// way the original mock did.
func clientKey(r *http.Request) string {
	if id := r.Header.Get("X-Client-ID"); id != "" {
		return id
	}
	return "default"
}
