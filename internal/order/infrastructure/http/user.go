package http

import (
	"context"
	"net/http"
	"strconv"
)

const UserHeader = "X-User-ID"

type userKey struct{}

// RequireUser resolves the acting user from the X-User-ID header set by the
// authenticating proxy. Requests without a valid user are rejected with 401.
func RequireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, err := strconv.ParseInt(r.Header.Get(UserHeader), 10, 64)
		if err != nil || id <= 0 {
			writeJSON(w, http.StatusUnauthorized, errorResp{Error: "unauthorized", Message: "missing or invalid " + UserHeader})
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), userKey{}, id)))
	})
}

func UserID(ctx context.Context) int64 {
	id, _ := ctx.Value(userKey{}).(int64)
	return id
}

// UserKey returns the acting user as a string, for scoping per-user state.
func UserKey(r *http.Request) string {
	return r.Header.Get(UserHeader)
}
