package server

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/mtbar/concerts/internal/auth"
)

// ContextKey is a custom type for context keys to avoid collisions
type ContextKey string

const (
	// TelegramUserIDKey is the context key for telegram user ID
	TelegramUserIDKey ContextKey = "telegram_user_id"
)

type middleware func(http.Handler) http.Handler

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// loggingMiddleware logs every request with its outcome
func loggingMiddleware(logger *slog.Logger) middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

			next.ServeHTTP(rec, r)

			attrs := []any{
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", rec.status),
				slog.Duration("duration", time.Since(start)),
			}
			switch {
			case rec.status >= http.StatusInternalServerError:
				logger.ErrorContext(r.Context(), "HTTP request failed", attrs...)
			case isPublicPath(r.URL.Path):
				logger.DebugContext(r.Context(), "HTTP request completed", attrs...)
			default:
				logger.InfoContext(r.Context(), "HTTP request completed", attrs...)
			}
		})
	}
}

// authMiddleware requires a Bearer JWT on every non-public path
func authMiddleware(jwtManager *auth.JWTManager, logger *slog.Logger) middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if isPublicPath(r.URL.Path) {
				next.ServeHTTP(w, r)
				return
			}

			if jwtManager == nil {
				writeError(w, http.StatusServiceUnavailable, "admin api is disabled")
				return
			}

			token, ok := extractBearerToken(r)
			if !ok {
				logger.WarnContext(r.Context(), "Authentication failed - no token",
					slog.String("path", r.URL.Path),
				)
				writeError(w, http.StatusUnauthorized, "missing or invalid token")
				return
			}

			claims, err := jwtManager.ValidateToken(token)
			if err != nil {
				logger.WarnContext(r.Context(), "Authentication failed - invalid token",
					slog.String("path", r.URL.Path),
					slog.Any("error", err),
				)
				writeError(w, http.StatusUnauthorized, "invalid token")
				return
			}

			ctx := context.WithValue(r.Context(), TelegramUserIDKey, claims.TelegramUserID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// extractBearerToken reads the token from "Authorization: Bearer <token>"
func extractBearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	token, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || strings.TrimSpace(token) == "" {
		return "", false
	}
	return strings.TrimSpace(token), true
}

func isPublicPath(path string) bool {
	return path == "/healthcheck" || path == "/metrics"
}
