package lockdown

import "context"

// Subscription is the handle returned by every host event registration.
// Unsubscribe must be safe to call exactly once at session teardown;
// after it returns the callback never fires again.
type Subscription interface {
	Unsubscribe()
}

// HostController is the OS-level window manager that owns the restricted
// ("kiosk") display surface. The session only sends it commands and listens
// to its events. It never owns the controller, which is shared per attempt.
type HostController interface {
	// OpenRestrictedWindow creates the kiosk surface for the given quiz.
	OpenRestrictedWindow(ctx context.Context, quizID string) error

	// ReleaseRestrictions lifts kiosk enforcement: fullscreen lock,
	// always-on-top, close interception. Must be called before
	// CloseRestrictedWindow: a controller still enforcing closability
	// rejects close requests.
	ReleaseRestrictions(ctx context.Context) error

	// CloseRestrictedWindow destroys the restricted window.
	CloseRestrictedWindow(ctx context.Context) error

	OnBlur(fn func()) Subscription
	OnLeaveFullscreen(fn func()) Subscription
	OnMinimizeAttempt(fn func()) Subscription
	OnCloseAttempt(fn func()) Subscription
	OnForbiddenKeyChord(fn func(chord string)) Subscription
}
