package backend

import (
	"time"

	"github.com/MrEthical07/loanGuard/session"
)

// SessionInfo is the token pair of the signed-in user.
type SessionInfo struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
	Identity     *session.Identity
}

func (s *SessionInfo) clone() *SessionInfo {
	if s == nil {
		return nil
	}
	c := *s
	return &c
}

type userPayload struct {
	ID           string         `json:"id"`
	Email        string         `json:"email"`
	UserMetadata map[string]any `json:"user_metadata"`
	AppMetadata  map[string]any `json:"app_metadata"`
}

func (u *userPayload) identity() *session.Identity {
	if u == nil || u.ID == "" {
		return nil
	}
	id := &session.Identity{ID: u.ID, Email: u.Email}
	if org, ok := u.AppMetadata["organization_id"].(string); ok {
		id.OrganizationID = org
	}
	for k, v := range u.UserMetadata {
		s, ok := v.(string)
		if !ok {
			continue
		}
		if id.Metadata == nil {
			id.Metadata = make(map[string]string, len(u.UserMetadata))
		}
		id.Metadata[k] = s
	}
	return id
}

type tokenResponse struct {
	AccessToken  string       `json:"access_token"`
	RefreshToken string       `json:"refresh_token"`
	ExpiresIn    int64        `json:"expires_in"`
	ExpiresAt    int64        `json:"expires_at"`
	User         *userPayload `json:"user"`
}

func (t *tokenResponse) session(now time.Time) *SessionInfo {
	info := &SessionInfo{
		AccessToken:  t.AccessToken,
		RefreshToken: t.RefreshToken,
		Identity:     t.User.identity(),
	}
	switch {
	case t.ExpiresAt > 0:
		info.ExpiresAt = time.Unix(t.ExpiresAt, 0)
	case t.ExpiresIn > 0:
		info.ExpiresAt = now.Add(time.Duration(t.ExpiresIn) * time.Second)
	}
	return info
}

type passwordGrant struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type refreshGrant struct {
	RefreshToken string `json:"refresh_token"`
}

type roleRequest struct {
	UserID         string `json:"p_user_id"`
	OrganizationID string `json:"p_organization_id,omitempty"`
}
