// controllers/auth.go
package controllers

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"sparknexora-backend/models"
	"sparknexora-backend/storage"
	"sparknexora-backend/utils"
)

const (
	maxLoginAttempts = 5
	lockoutDuration  = 2 * time.Hour
)

// AuthController handles admin authentication
type AuthController struct {
	Users storage.UserStore
}

// NewAuthController creates a new AuthController
func NewAuthController(users storage.UserStore) *AuthController {
	return &AuthController{Users: users}
}

// Login authenticates an admin and returns a JWT
func (ac *AuthController) Login(w http.ResponseWriter, r *http.Request) {
	var creds struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&creds); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if creds.Email == "" || creds.Password == "" {
		respondError(w, http.StatusBadRequest, "Email and password are required")
		return
	}

	user, err := ac.Users.FindByEmail(r.Context(), strings.ToLower(creds.Email))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			respondError(w, http.StatusUnauthorized, "Invalid email or password")
			return
		}
		log.Printf("Login error: %v", err)
		respondError(w, http.StatusInternalServerError, "Login failed. Please try again.")
		return
	}

	now := time.Now()
	if user.Locked(now) {
		respondError(w, http.StatusLocked,
			"Account is temporarily locked due to too many failed login attempts. Please try again later.")
		return
	}
	if !user.IsActive {
		respondError(w, http.StatusForbidden, "Account is deactivated. Please contact administrator.")
		return
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(creds.Password)); err != nil {
		var lockUntil *time.Time
		if user.LoginAttempts+1 >= maxLoginAttempts {
			t := now.Add(lockoutDuration)
			lockUntil = &t
		}
		if rerr := ac.Users.RecordFailedLogin(r.Context(), user.ID, lockUntil); rerr != nil {
			log.Printf("Failed to record login attempt for %s: %v", user.Email, rerr)
		}
		respondError(w, http.StatusUnauthorized, "Invalid email or password")
		return
	}

	if err := ac.Users.ResetLoginAttempts(r.Context(), user.ID, now); err != nil {
		log.Printf("Failed to reset login attempts for %s: %v", user.Email, err)
	}

	token, err := utils.GenerateJWT(user.ID, user.Email, user.Role)
	if err != nil {
		log.Printf("Error generating token: %v", err)
		respondError(w, http.StatusInternalServerError, "Login failed. Please try again.")
		return
	}

	respondData(w, http.StatusOK, "Login successful", map[string]interface{}{
		"user":  userPayload(user, &now),
		"token": token,
	})
}

// Verify validates a bearer token and returns the account behind it
func (ac *AuthController) Verify(w http.ResponseWriter, r *http.Request) {
	authHeader := r.Header.Get("Authorization")
	token := strings.TrimPrefix(authHeader, "Bearer ")
	if authHeader == "" || token == authHeader {
		respondError(w, http.StatusUnauthorized, "Access token is required")
		return
	}

	claims, err := utils.ParseJWT(token)
	if err != nil {
		respondError(w, http.StatusUnauthorized, "Invalid token")
		return
	}

	user, err := ac.Users.FindByID(r.Context(), claims.UserID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			respondError(w, http.StatusUnauthorized, "Invalid token - user not found")
			return
		}
		log.Printf("Token verification error: %v", err)
		respondError(w, http.StatusInternalServerError, "Token verification failed")
		return
	}
	if !user.IsActive {
		respondError(w, http.StatusForbidden, "Account is deactivated")
		return
	}

	respondData(w, http.StatusOK, "Token is valid", map[string]interface{}{
		"user": userPayload(user, user.LastLogin),
	})
}

// Logout is a client-side token removal acknowledgment
func (ac *AuthController) Logout(w http.ResponseWriter, r *http.Request) {
	respondData(w, http.StatusOK,
		"Logout successful. Please remove the token from client-side storage.", nil)
}

func userPayload(u *models.User, lastLogin *time.Time) map[string]interface{} {
	return map[string]interface{}{
		"id":        u.ID,
		"name":      u.Name,
		"email":     u.Email,
		"role":      u.Role,
		"lastLogin": lastLogin,
	}
}
