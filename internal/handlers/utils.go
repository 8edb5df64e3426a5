// internal/handlers/utils.go
package handlers

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/neverhq/never-service/internal/auth"
	"github.com/neverhq/never-service/internal/database"
	"github.com/neverhq/never-service/internal/models"
)

// extractCookieToken extracts a named cookie value from the "Cookie" header,
// or returns empty if not found.
func extractCookieToken(cookieHeader, cookieName string) string {
	parts := strings.Split(cookieHeader, cookieName+"=")
	if len(parts) < 2 {
		return ""
	}
	token := parts[1]
	if idx := strings.Index(token, ";"); idx != -1 {
		token = token[:idx]
	}
	return token
}

// EnsureGuestUser resolves the caller's identity from the auth_token cookie.
// Callers without a valid token get a fresh guest user and a new cookie, so
// every request arrives authenticated.
func EnsureGuestUser(w http.ResponseWriter, r *http.Request, db *database.Store) (uuid.UUID, error) {
	token := extractCookieToken(r.Header.Get("Cookie"), "auth_token")
	if token != "" {
		if userIDStr, err := auth.AuthenticateJWT(token); err == nil {
			userID, parseErr := uuid.Parse(userIDStr)
			if parseErr != nil {
				return uuid.Nil, fmt.Errorf("invalid user id in token: %w", parseErr)
			}
			return userID, nil
		}
	}

	guest := models.User{Username: "Guest", IsGuest: true}
	if err := db.CreateUser(context.Background(), &guest); err != nil {
		return uuid.Nil, fmt.Errorf("create guest user: %w", err)
	}
	newToken, err := auth.CreateJWT(guest.ID.String())
	if err != nil {
		return uuid.Nil, fmt.Errorf("create guest token: %w", err)
	}
	http.SetCookie(w, &http.Cookie{
		Name:     "auth_token",
		Value:    newToken,
		HttpOnly: true,
		Path:     "/",
	})
	return guest.ID, nil
}
