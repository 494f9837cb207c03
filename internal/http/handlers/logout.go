package handlers

import "net/http"

// NewLogoutHandler serves POST /logout: it clears both token cookies.
// Token revocation at the store is not implied; opaque refresh tokens die
// with the cookie for browser clients.
func NewLogoutHandler(secureCookies bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		clearTokenCookies(w, secureCookies)
		w.WriteHeader(http.StatusNoContent)
	}
}
