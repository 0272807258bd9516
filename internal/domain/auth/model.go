package auth

// Role decides which slice of the clinic data a login may see.
type Role string

const (
	RoleAdmin   Role = "Admin"
	RolePatient Role = "Patient"
)

// Credential maps to an entry of the users snapshot. Password is an
// opaque comparison value, stored and compared as-is.
type Credential struct {
	ID        string `json:"id"`
	Email     string `json:"email"`
	Password  string `json:"password"`
	Role      Role   `json:"role"`
	PatientID string `json:"patientId,omitempty"`
}

// Session is the at-most-one active login. It mirrors the persisted
// currentUser entry.
type Session struct {
	User Credential
}

// IsAdmin reports whether the session belongs to an administrator.
func (s *Session) IsAdmin() bool { return s.User.Role == RoleAdmin }
