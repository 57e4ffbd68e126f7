package handlers

import (
	"net/http"
	"strings"

	"github.com/clipstream/backend/internal/auth"
	"github.com/clipstream/backend/internal/logging"
)

const (
	accessTokenCookie  = "accessToken"
	refreshTokenCookie = "refreshToken"
)

// accessTokenFrom extracts the access token from the Authorization header or
// the access-token cookie, in that order.
func accessTokenFrom(r *http.Request) string {
	if header := strings.TrimSpace(r.Header.Get("Authorization")); header != "" {
		if token, ok := strings.CutPrefix(header, "Bearer "); ok {
			return strings.TrimSpace(token)
		}
	}
	if cookie, err := r.Cookie(accessTokenCookie); err == nil {
		return strings.TrimSpace(cookie.Value)
	}
	return ""
}

// requireUser resolves the caller's identity or writes a 401 envelope. The
// second return reports whether the request may proceed.
func requireUser(w http.ResponseWriter, r *http.Request, issuer TokenIssuer) (*auth.Claims, bool) {
	ctx := r.Context()

	token := accessTokenFrom(r)
	if token == "" {
		fail(ctx, w, http.StatusUnauthorized, "unauthorized request")
		return nil, false
	}

	claims, err := issuer.VerifyAccess(token)
	if err != nil {
		logging.FromContext(ctx).Warn("access token rejected", "error", err)
		fail(ctx, w, http.StatusUnauthorized, "invalid or expired token")
		return nil, false
	}

	return claims, true
}

// viewerID resolves the caller's identity on endpoints where authentication
// is optional. Anonymous or invalid tokens yield an empty viewer.
func viewerID(r *http.Request, issuer TokenIssuer) string {
	token := accessTokenFrom(r)
	if token == "" {
		return ""
	}
	claims, err := issuer.VerifyAccess(token)
	if err != nil {
		return ""
	}
	return claims.UserID()
}

func setAuthCookies(w http.ResponseWriter, accessToken, refreshToken string) {
	http.SetCookie(w, &http.Cookie{
		Name:     accessTokenCookie,
		Value:    accessToken,
		Path:     "/",
		HttpOnly: true,
		Secure:   true,
	})
	http.SetCookie(w, &http.Cookie{
		Name:     refreshTokenCookie,
		Value:    refreshToken,
		Path:     "/",
		HttpOnly: true,
		Secure:   true,
	})
}

func clearAuthCookies(w http.ResponseWriter) {
	for _, name := range []string{accessTokenCookie, refreshTokenCookie} {
		http.SetCookie(w, &http.Cookie{
			Name:     name,
			Value:    "",
			Path:     "/",
			HttpOnly: true,
			Secure:   true,
			MaxAge:   -1,
		})
	}
}
