package auth

// Principal is the authenticated identity attached to a backend request
type Principal struct {
	UserID string `json:"user_id"`
	Email  string `json:"email"`
	Role   string `json:"role"`
}

// PrincipalFromClaims extracts the request identity from validated claims
func PrincipalFromClaims(c *AccessClaims) Principal {
	return Principal{UserID: c.UserID, Email: c.Email, Role: c.Role}
}
