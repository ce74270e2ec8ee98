package domain

import "time"

// Context is the per-ticket signing context handed to an attendee device.
// Key is the HMAC secret for rotating tokens; it is never logged.
type Context struct {
	ID        string
	TicketID  string
	EventID   string
	Key       []byte
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// Expired reports whether the context can no longer be used to sign at now.
func (c *Context) Expired(now time.Time) bool {
	return !now.Before(c.ExpiresAt)
}

// Remaining returns how long the context stays usable after now; zero when expired.
func (c *Context) Remaining(now time.Time) time.Duration {
	if c.Expired(now) {
		return 0
	}
	return c.ExpiresAt.Sub(now)
}
