/**
 * @description
 * Caller identity. Handlers only ever see the caller's email through CallerEmail;
 * how it was established is up to the IdentityProvider wired in main.
 */

package api

import (
	"context"
	"net/http"
	"strings"
)

// IdentityProvider resolves the caller of a request to an email address.
type IdentityProvider interface {
	Identify(r *http.Request) (string, error)
}

type callerContextKey string

const callerEmailKey callerContextKey = "callerEmail"

// StaticIdentity treats every request as coming from one fixed user.
type StaticIdentity struct {
	Email string
}

func (s StaticIdentity) Identify(r *http.Request) (string, error) {
	if strings.TrimSpace(s.Email) == "" {
		return "", errMissingIdentity
	}
	return s.Email, nil
}

// IdentityMiddleware rejects requests the provider cannot identify and stores the
// caller's email in the request context.
func IdentityMiddleware(provider IdentityProvider) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			email, err := provider.Identify(r)
			if err != nil {
				writeError(w, http.StatusUnauthorized, "unauthorized")
				return
			}
			ctx := context.WithValue(r.Context(), callerEmailKey, email)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// CallerEmail retrieves the authenticated caller's email from the request context.
func CallerEmail(ctx context.Context) (string, bool) {
	email, ok := ctx.Value(callerEmailKey).(string)
	return email, ok && email != ""
}
