package api

import "time"

type Empty struct{}

// MessageResponse is the envelope of every lifecycle action that only
// reports an outcome.
type MessageResponse struct {
	Message string `json:"message"`
}

type RegisterRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type RegisterResponse struct {
	User    *User  `json:"user"`
	Message string `json:"message"`
}

type TokenRequest struct {
	Token string `json:"token"`
}

type EmailRequest struct {
	Email string `json:"email"`
}

type ResetPasswordRequest struct {
	Token       string `json:"token"`
	NewPassword string `json:"newPassword"`
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// SessionResponse is returned wherever a session starts.
type SessionResponse struct {
	User              *User  `json:"user"`
	SessionCredential string `json:"sessionCredential"`
}

// HubLoginResponse keeps the field names the hub front end already reads.
type HubLoginResponse struct {
	Authenticated bool   `json:"autenticado"`
	UserName      string `json:"userName,omitempty"`
	SSOToken      string `json:"ssoToken,omitempty"`
	Message       string `json:"message"`
}

type ChangePasswordRequest struct {
	CurrentPassword string `json:"currentPassword"`
	NewPassword     string `json:"newPassword"`
}

type DeleteUserRequest struct {
	UserID string `json:"userId"`
}

// User is the public view of an account.
type User struct {
	ID            string    `json:"id"`
	Name          string    `json:"name"`
	Email         string    `json:"email"`
	Role          string    `json:"role"`
	EmailVerified bool      `json:"emailVerified"`
	CreatedAt     time.Time `json:"createdAt"`
}
