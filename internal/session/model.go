package session

import "time"

// Session is one logged-in device. A session is active while it is not
// flagged expired and expires_at is still in the future.
type Session struct {
	ID        int       `db:"id" json:"id"`
	UserID    int       `db:"user_id" json:"user_id"`
	Token     string    `db:"token" json:"-"`
	Expired   bool      `db:"expired" json:"expired"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	ExpiresAt time.Time `db:"expires_at" json:"expires_at"`
}

func (s *Session) Active(now time.Time) bool {
	return !s.Expired && s.ExpiresAt.After(now)
}
