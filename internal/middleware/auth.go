package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/ruralpay/remittance/internal/models"
	"github.com/ruralpay/remittance/internal/services"
)

// TenantHeader may repeat the tenant of the bearer token; a different value is rejected.
const TenantHeader = "Tenant-ID"

// StaffClaims are the claims of a staff bearer token.
type StaffClaims struct {
	TenantID string `json:"tenant_id"`
	UserID   string `json:"user_id"`
	BranchID string `json:"branch_id,omitempty"`
	Role     string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// AuthMiddleware verifies the HS256 bearer token and puts the caller on the request context.
func AuthMiddleware(secret []byte) func(http.Handler) http.Handler {
	parser := jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// Get token from Authorization header
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				services.SendErrorResponse(w, "Authorization header required", http.StatusUnauthorized, nil)
				return
			}

			parts := strings.Split(authHeader, " ")
			if len(parts) != 2 || parts[0] != "Bearer" {
				services.SendErrorResponse(w, "Invalid authorization header format", http.StatusUnauthorized, nil)
				return
			}

			caller, err := validateToken(parser, secret, parts[1])
			if err != nil {
				services.SendErrorResponse(w, "Invalid token", http.StatusUnauthorized, nil)
				return
			}

			if tenant := r.Header.Get(TenantHeader); tenant != "" && tenant != caller.TenantID {
				services.SendErrorResponse(w, "Tenant does not match token", http.StatusForbidden, nil)
				return
			}

			ctx := models.WithCaller(r.Context(), caller)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func validateToken(parser *jwt.Parser, secret []byte, tokenString string) (models.Caller, error) {
	var claims StaffClaims
	token, err := parser.ParseWithClaims(tokenString, &claims, func(*jwt.Token) (any, error) {
		return secret, nil
	})
	if err != nil {
		return models.Caller{}, err
	}
	if !token.Valid {
		return models.Caller{}, errors.New("token is not valid")
	}
	if claims.TenantID == "" || claims.UserID == "" {
		return models.Caller{}, errors.New("token lacks tenant or user")
	}

	return models.Caller{
		TenantID: claims.TenantID,
		UserID:   claims.UserID,
		BranchID: claims.BranchID,
		Role:     claims.Role,
	}, nil
}
