package httptransport

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"authbroker/internal/admintoken"
	dErrors "authbroker/pkg/domain-errors"
	"authbroker/pkg/platform/httputil"
)

type contextKeyBearerToken struct{}

// BearerToken retrieves the verified bearer token from the context. Empty
// outside routes protected by RequireAdmin.
func BearerToken(ctx context.Context) string {
	token, _ := ctx.Value(contextKeyBearerToken{}).(string)
	return token
}

// bearerFromHeader extracts the token from the Authorization header, or ""
// when the header is absent or not a bearer scheme.
func bearerFromHeader(r *http.Request) string {
	token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	if !ok {
		return ""
	}
	return token
}

// RequireAdmin rejects requests that do not carry a currently valid
// self-issued bearer token. The verified raw token is placed in the request
// context for handlers that need it, such as revocation.
func RequireAdmin(tokens *admintoken.Service, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			token := bearerFromHeader(r)
			if token == "" {
				logger.WarnContext(ctx, "unauthorized access - missing bearer token",
					"path", r.URL.Path,
				)
				httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "missing or invalid Authorization header"))
				return
			}

			claims, err := tokens.Verify(ctx, token)
			if err != nil {
				logger.WarnContext(ctx, "unauthorized access - token verification failed",
					"path", r.URL.Path,
					"error", err,
				)
				httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "invalid bearer token"))
				return
			}
			if claims == nil {
				logger.WarnContext(ctx, "unauthorized access - token not currently valid",
					"path", r.URL.Path,
				)
				httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "invalid or expired token"))
				return
			}

			next.ServeHTTP(w, r.WithContext(context.WithValue(ctx, contextKeyBearerToken{}, token)))
		})
	}
}
