package weighment

import (
	"time"

	"github.com/majani/coop-engine/generic"
)

// Session is a clerk's collection day. It survives restarts but never
// carries over into the next calendar day.
type Session struct {
	ClerkID   string
	Active    bool
	StartedAt time.Time
	Count     int
	Weight    generic.Amount // net kg recorded this session
}

// OpenSession starts a fresh session for clerk.
func OpenSession(clerkID string, now time.Time) Session {
	return Session{ClerkID: clerkID, Active: true, StartedAt: now, Weight: generic.Kg(0)}
}

// Add counts one captured record.
func (s Session) Add(r CollectionRecord) Session {
	if !s.Active {
		return s
	}
	s.Count++
	s.Weight = s.Weight.Add(r.NetWeight)
	return s
}

// Close ends the session, returning the closed session as its summary.
func (s Session) Close() Session {
	s.Active = false
	return s
}

// Restore checks a persisted session against now. A session started on an
// earlier calendar day (in loc) is discarded and expired reports it.
func (s Session) Restore(now time.Time, loc *time.Location) (restored Session, expired bool) {
	if !s.Active {
		return s, false
	}
	if !generic.SameDay(s.StartedAt, now, loc) {
		return Session{ClerkID: s.ClerkID, Weight: generic.Kg(0)}, true
	}
	return s, false
}
