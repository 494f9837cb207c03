// Package handlers contains the HTTP endpoints.
package handlers

import (
	"net/http"
	"time"
)

const (
	accessTokenCookie  = "ap_access_token"
	refreshTokenCookie = "ap_refresh_token"
)

// setTokenCookies mirrors the token response into HttpOnly cookies for
// browser clients. The refresh cookie is path-restricted to the token
// endpoint so it never rides along on API calls.
func setTokenCookies(w http.ResponseWriter, accessToken, refreshToken string, accessTTL, refreshTTL time.Duration, secure bool) {
	if accessToken != "" {
		http.SetCookie(w, &http.Cookie{
			Name:     accessTokenCookie,
			Value:    accessToken,
			Path:     "/",
			MaxAge:   int(accessTTL.Seconds()),
			HttpOnly: true,
			Secure:   secure,
			SameSite: http.SameSiteLaxMode,
		})
	}
	if refreshToken != "" {
		http.SetCookie(w, &http.Cookie{
			Name:     refreshTokenCookie,
			Value:    refreshToken,
			Path:     "/oauth/token",
			MaxAge:   int(refreshTTL.Seconds()),
			HttpOnly: true,
			Secure:   secure,
			SameSite: http.SameSiteStrictMode,
		})
	}
}

// clearTokenCookies expires both token cookies.
func clearTokenCookies(w http.ResponseWriter, secure bool) {
	http.SetCookie(w, &http.Cookie{
		Name: accessTokenCookie, Value: "", Path: "/",
		MaxAge: -1, HttpOnly: true, Secure: secure, SameSite: http.SameSiteLaxMode,
	})
	http.SetCookie(w, &http.Cookie{
		Name: refreshTokenCookie, Value: "", Path: "/oauth/token",
		MaxAge: -1, HttpOnly: true, Secure: secure, SameSite: http.SameSiteStrictMode,
	})
}
