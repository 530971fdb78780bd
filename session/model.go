package session

import (
	"context"
	"time"
)

// Identity is the signed-in user as reported by the auth backend.
type Identity struct {
	ID             string
	Email          string
	OrganizationID string
	Metadata       map[string]string
}

// Same reports whether i and other name the same user. Two nil identities are the same.
func (i *Identity) Same(other *Identity) bool {
	if i == nil || other == nil {
		return i == nil && other == nil
	}
	return i.ID == other.ID
}

// Fetcher performs the remote identity lookup. A nil identity with a nil error means
// nobody is signed in.
type Fetcher interface {
	CurrentIdentity(ctx context.Context) (*Identity, error)
}

// EventType names an auth state transition pushed by the backend.
type EventType string

const (
	EventSignedIn       EventType = "SIGNED_IN"
	EventSignedOut      EventType = "SIGNED_OUT"
	EventTokenRefreshed EventType = "TOKEN_REFRESHED"
	EventUserUpdated    EventType = "USER_UPDATED"
)

// Event is one auth state notification. Identity is nil after a sign-out.
type Event struct {
	Type     EventType
	Identity *Identity
	At       time.Time
}

// Notifier delivers auth state events. The returned function cancels the
// subscription and is safe to call more than once.
type Notifier interface {
	SubscribeAuthState(fn func(Event)) (cancel func())
}
