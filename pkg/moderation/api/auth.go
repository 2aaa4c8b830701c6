package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/jwtauth"
	"github.com/tendant/simple-moderation/pkg/moderation"
)

type actorContextKey struct{}

// errUnauthorized marks a bearer token that failed verification.
var errUnauthorized = errors.New("unauthorized")

// WithActor returns a context carrying actor.
func WithActor(ctx context.Context, actor moderation.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

// ActorFromContext returns the actor stored by Authenticator. Requests
// without a token yield the anonymous actor.
func ActorFromContext(ctx context.Context) moderation.Actor {
	actor, _ := ctx.Value(actorContextKey{}).(moderation.Actor)
	return actor
}

// Authenticator verifies HS256 bearer tokens and stores the actor they name
// on the request context. A missing token is anonymous, an invalid one is
// rejected with 401.
func Authenticator(ta *jwtauth.JWTAuth) func(http.Handler) http.Handler {
	verifier := jwtauth.Verifier(ta)
	return func(next http.Handler) http.Handler {
		return verifier(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, claims, err := jwtauth.FromContext(r.Context())
			if err != nil {
				if errors.Is(err, jwtauth.ErrNoTokenFound) {
					next.ServeHTTP(w, r)
					return
				}
				writeError(w, r, fmt.Errorf("%w: %v", errUnauthorized, err))
				return
			}
			if token == nil {
				next.ServeHTTP(w, r)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithActor(r.Context(), ActorFromClaims(claims))))
		}))
	}
}

// ActorFromClaims maps token claims onto an actor. "sub" is the actor ID,
// "username" its display name and "roles" either a list or a comma
// separated string.
func ActorFromClaims(claims map[string]interface{}) moderation.Actor {
	actor := moderation.Actor{
		ID:       claimString(claims["sub"]),
		Username: claimString(claims["username"]),
	}
	if actor.Username == "" {
		actor.Username = actor.ID
	}

	switch roles := claims["roles"].(type) {
	case []interface{}:
		for _, role := range roles {
			if s := claimString(role); s != "" {
				actor.Roles = append(actor.Roles, s)
			}
		}
	case []string:
		actor.Roles = append(actor.Roles, roles...)
	case string:
		for _, role := range strings.Split(roles, ",") {
			if s := strings.TrimSpace(role); s != "" {
				actor.Roles = append(actor.Roles, s)
			}
		}
	}
	return actor
}

func claimString(v interface{}) string {
	switch v := v.(type) {
	case nil:
		return ""
	case string:
		return v
	case float64:
		return fmt.Sprintf("%.0f", v)
	default:
		return fmt.Sprint(v)
	}
}
