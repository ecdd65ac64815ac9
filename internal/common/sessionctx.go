package common

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
)

type ctxKey string

const shopperSessionKey ctxKey = "shopper/session-id"

// ShopperSessionCookie is the cookie carrying the shopper session identifier.
const ShopperSessionCookie = "shopper_session"

// WithShopperSession stores the shopper session identifier on the provided context.
func WithShopperSession(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, shopperSessionKey, id)
}

// ShopperSession extracts the shopper session identifier from the context if present.
func ShopperSession(ctx context.Context) (string, bool) {
	v := ctx.Value(shopperSessionKey)
	if v == nil {
		return "", false
	}
	id, ok := v.(string)
	return id, ok
}

// ShopperSessionMiddleware assigns a session cookie to first-time shoppers and
// threads the session id through the request context.
func ShopperSessionMiddleware(secure bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var id string
			if cookie, err := r.Cookie(ShopperSessionCookie); err == nil && cookie.Value != "" {
				id = cookie.Value
			} else {
				id = uuid.NewString()
				http.SetCookie(w, &http.Cookie{
					Name:     ShopperSessionCookie,
					Value:    id,
					Path:     "/",
					MaxAge:   int((30 * 24 * time.Hour).Seconds()),
					HttpOnly: true,
					Secure:   secure,
					SameSite: http.SameSiteLaxMode,
				})
			}
			next.ServeHTTP(w, r.WithContext(WithShopperSession(r.Context(), id)))
		})
	}
}
