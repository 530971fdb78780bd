package flows

import "context"

// LogoutDeps captures logout flow dependencies.
type LogoutDeps struct {
	CurrentUserID func() string
	SignOut       func(context.Context) error
	// AuthChanged runs after the sign-out call whatever it returned.
	AuthChanged func()

	MetricInc   func(int)
	EmitAudit   func(ctx context.Context, event string, success bool, userID, email string, err error, metadata func() map[string]string)
	LogoutEvent string
	LogoutCount int
}

// RunLogout signs out and invalidates caches. The backend error is returned after the
// local state has been cleared.
func RunLogout(ctx context.Context, deps LogoutDeps) error {
	var userID string
	if deps.CurrentUserID != nil {
		userID = deps.CurrentUserID()
	}

	var err error
	if deps.SignOut != nil {
		err = deps.SignOut(ctx)
	}
	if deps.AuthChanged != nil {
		deps.AuthChanged()
	}

	if deps.MetricInc != nil {
		deps.MetricInc(deps.LogoutCount)
	}
	if deps.EmitAudit != nil {
		deps.EmitAudit(ctx, deps.LogoutEvent, err == nil, userID, "", err, nil)
	}
	return err
}
