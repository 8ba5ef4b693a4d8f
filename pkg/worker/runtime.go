// Package worker implements the background-worker side of the push
// subsystem: the lifecycle hooks, the push display handler, and the
// notification click router.
//
// The host runtime (worker registry, notification display, window list,
// cache storage) sits behind the Host capability interface. The JS-world
// "keep the event alive until this promise settles" contract is rendered as
// plain blocking methods: a handler has not returned until its display work
// is done.
package worker

import "context"

// Host is the slice of the worker runtime the handler needs.
type Host interface {
	// SkipWaiting promotes a newly installed worker version immediately
	// instead of waiting for every controlled page to close.
	SkipWaiting(ctx context.Context) error

	// ClaimClients takes control of already-open pages.
	ClaimClients(ctx context.Context) error

	// ShowNotification displays a notification and blocks until the display
	// has settled.
	ShowNotification(ctx context.Context, n Notification) error

	// Windows lists the application windows currently open.
	Windows(ctx context.Context) ([]Window, error)

	// OpenWindow opens a new application window at the given route.
	OpenWindow(ctx context.Context, route string) (Window, error)

	// ClearCaches drops every cached offline asset.
	ClearCaches(ctx context.Context) error
}

// Window is one open application window.
type Window interface {
	Focus(ctx context.Context) error
}

// Notification is the displayable rendering of a push payload.
type Notification struct {
	Title   string
	Body    string
	Icon    string
	Badge   string
	Actions []Action
	// Data rides along to the click handler.
	Data map[string]string
}

// Action is one button on a displayed notification.
type Action struct {
	ID    string
	Title string
}

// DisplayedNotification is the handle a click event carries.
type DisplayedNotification interface {
	Close(ctx context.Context) error
}

// Click is one user interaction with a displayed notification. Action is
// empty when the user tapped the notification body rather than a button.
type Click struct {
	Action       string
	Notification DisplayedNotification
}
