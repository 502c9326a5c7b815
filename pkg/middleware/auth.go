package middleware

import (
	"net/http"

	"tour-booking/pkg/utils"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

// Headers set by the upstream gateway after it authenticated the caller.
const (
	HeaderUserID     = "X-User-ID"
	HeaderUserRole   = "X-User-Role"
	HeaderWebhookKey = "X-Webhook-Key"
)

const (
	RoleClient = "client"
	RoleAdmin  = "admin"
)

// Principal reads the caller identity forwarded by the gateway
func Principal(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			rawID := r.Header.Get(HeaderUserID)
			if rawID == "" {
				utils.ResponseUnauthorized(w, "Missing caller identity")
				return
			}

			userID, err := uuid.Parse(rawID)
			if err != nil {
				logger.Warn("Invalid caller identity",
					zap.String("user_id", rawID),
					zap.String("path", r.URL.Path))
				utils.ResponseUnauthorized(w, "Invalid caller identity")
				return
			}

			role := r.Header.Get(HeaderUserRole)
			switch role {
			case "":
				role = RoleClient
			case RoleClient, RoleAdmin:
			default:
				logger.Warn("Unknown caller role",
					zap.String("user_id", rawID),
					zap.String("role", role))
				utils.ResponseUnauthorized(w, "Unknown caller role")
				return
			}

			ctx := utils.SetUserContext(r.Context(), userID, role)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// Admin - middleware cek role admin, must run after Principal
func Admin(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID, ok := utils.GetUserIDFromContext(r.Context())
			if !ok {
				utils.ResponseUnauthorized(w, "Authentication required")
				return
			}

			role, _ := utils.GetRoleFromContext(r.Context())
			if role != RoleAdmin {
				logger.Warn("Admin check: non-admin access attempt",
					zap.String("user_id", userID.String()),
					zap.String("path", r.URL.Path))
				utils.ResponseForbidden(w, "Admin access required")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// WebhookKey guards the payment gateway callback. keyHash is a bcrypt hash
// of the shared key; an empty hash closes the endpoint.
func WebhookKey(keyHash string, logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if keyHash == "" {
				logger.Error("Webhook called but no key is configured", zap.String("path", r.URL.Path))
				utils.ResponseUnauthorized(w, "Webhook not enabled")
				return
			}

			key := r.Header.Get(HeaderWebhookKey)
			if key == "" {
				utils.ResponseUnauthorized(w, "Missing webhook key")
				return
			}

			if err := bcrypt.CompareHashAndPassword([]byte(keyHash), []byte(key)); err != nil {
				logger.Warn("Webhook key mismatch",
					zap.String("ip", r.RemoteAddr),
					zap.Error(err))
				utils.ResponseUnauthorized(w, "Invalid webhook key")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
