package model

import "time"

// Child statuses reported by the live channel
const (
	ChildOnline  = "online"
	ChildOffline = "offline"
)

// Child represents a tracked dependent (hijo)
type Child struct {
	ID        int64    `json:"id"`
	Name      string   `json:"nombre"`
	Surname   string   `json:"apellido,omitempty"`
	Email     string   `json:"email"`
	Phone     string   `json:"telefono,omitempty"`
	Latitude  *float64 `json:"latitud,omitempty"`
	Longitude *float64 `json:"longitud,omitempty"`
	Linked    bool     `json:"vinculado"`
	// LinkCode is always present, also for linked children, so it can be regenerated.
	LinkCode       string     `json:"codigoVinculacion"`
	LastConnection *time.Time `json:"ultimaconexion,omitempty"`
	Battery        *float64   `json:"battery,omitempty"`
	Status         string     `json:"status,omitempty"`
}

// ApplyNewCode records a regenerated linking code. The previous code is
// invalid and the child has to be linked again.
func (c *Child) ApplyNewCode(code string) {
	c.LinkCode = code
	c.Linked = false
}

// RegisterChildRequest represents the creation of a child by its guardian
type RegisterChildRequest struct {
	Name     string `json:"nombre" binding:"required"`
	Surname  string `json:"apellido,omitempty"`
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=6"`
	Phone    string `json:"telefono,omitempty"`
}

// UpdateChildRequest is a partial update; nil fields are left untouched.
// Email and password cannot change once the child is linked.
type UpdateChildRequest struct {
	Name     *string `json:"nombre,omitempty"`
	Surname  *string `json:"apellido,omitempty"`
	Phone    *string `json:"telefono,omitempty"`
	Email    *string `json:"email,omitempty"`
	Password *string `json:"password,omitempty"`
}

// LinkCodeResponse is returned when a linking code is regenerated
type LinkCodeResponse struct {
	LinkCode string `json:"codigoVinculacion"`
}
