package model

// User represents the authenticated guardian (tutor)
type User struct {
	ID    int64  `json:"id"`
	Name  string `json:"nombre"`
	Email string `json:"email"`
	Type  string `json:"tipo"`
}

// Tutor is a guardian with its children embedded
type Tutor struct {
	User
	Children []Child `json:"hijos,omitempty"`
}

// LoginRequest represents login credentials
type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

// RegisterTutorRequest represents a guardian sign-up
type RegisterTutorRequest struct {
	Name     string `json:"nombre" binding:"required"`
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=6"`
	Type     string `json:"tipo"`
}

// AuthResponse represents the login response of the remote API
type AuthResponse struct {
	AccessToken string `json:"access_token"`
	User        User   `json:"user"`
}
