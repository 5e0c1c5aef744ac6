package models

// Session is the server-held proof of a successful login. Only the SHA-256
// digest of the bearer token is kept; the raw token is never persisted.
type Session struct {
	ID          string `json:"id"`
	UserID      string `json:"user_id"`
	TokenDigest string `json:"-"`
	ExpiresAt   int64  `json:"expires_at"`
	CreatedAt   int64  `json:"created_at"`
}

// Live reports whether the session is still valid at now.
func (s *Session) Live(now int64) bool {
	return s.ExpiresAt > now
}
