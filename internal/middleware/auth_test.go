package middleware

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ruralpay/remittance/internal/models"
)

var testSecret = []byte("staff-secret")

func signStaff(t *testing.T, secret []byte, claims StaffClaims) string {
	t.Helper()
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
	require.NoError(t, err)
	return tok
}

func validClaims() StaffClaims {
	return StaffClaims{
		TenantID: "T1",
		UserID:   "S1",
		BranchID: "B1",
		Role:     "teller",
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
}

func newAuthRouter() http.Handler {
	r := chi.NewRouter()
	r.Use(AuthMiddleware(testSecret))
	r.Get("/whoami", func(w http.ResponseWriter, r *http.Request) {
		caller, err := models.CallerFromContext(r.Context())
		if err != nil {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		json.NewEncoder(w).Encode(caller)
	})
	return r
}

func TestAuthMiddleware(t *testing.T) {
	router := newAuthRouter()

	t.Run("valid token puts caller on context", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
		req.Header.Set("Authorization", "Bearer "+signStaff(t, testSecret, validClaims()))
		req.Header.Set(TenantHeader, "T1")
		w := httptest.NewRecorder()

		router.ServeHTTP(w, req)

		require.Equal(t, http.StatusOK, w.Code)
		var caller models.Caller
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &caller))
		assert.Equal(t, models.Caller{TenantID: "T1", UserID: "S1", BranchID: "B1", Role: "teller"}, caller)
	})

	expired := validClaims()
	expired.ExpiresAt = jwt.NewNumericDate(time.Now().Add(-time.Minute))
	noTenant := validClaims()
	noTenant.TenantID = ""

	tests := []struct {
		name   string
		header string
		tenant string
		status int
	}{
		{"missing header", "", "", http.StatusUnauthorized},
		{"wrong scheme", "Basic abc", "", http.StatusUnauthorized},
		{"bad signature", "Bearer " + signStaff(t, []byte("other"), validClaims()), "", http.StatusUnauthorized},
		{"expired", "Bearer " + signStaff(t, testSecret, expired), "", http.StatusUnauthorized},
		{"no tenant claim", "Bearer " + signStaff(t, testSecret, noTenant), "", http.StatusUnauthorized},
		{"tenant header mismatch", "Bearer " + signStaff(t, testSecret, validClaims()), "T2", http.StatusForbidden},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			if tc.tenant != "" {
				req.Header.Set(TenantHeader, tc.tenant)
			}
			w := httptest.NewRecorder()

			router.ServeHTTP(w, req)
			assert.Equal(t, tc.status, w.Code)
		})
	}
}

func TestRequestLogger(t *testing.T) {
	var buf bytes.Buffer
	log := zerolog.New(&buf)

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(RequestLogger(log))
	r.Use(SecurityHeaders)
	r.Get("/missing", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/missing", nil))

	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "warn", line["level"])
	assert.Equal(t, "/missing", line["path"])
	assert.Equal(t, float64(http.StatusNotFound), line["status"])
	assert.NotEmpty(t, line["request_id"])
}
