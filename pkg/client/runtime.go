// Package client implements the device-side half of the push subsystem: the
// registration manager that owns the background worker and its push
// subscription, and the reconciliation hook that derives a subscribed state
// for UI toggles.
//
// All platform access goes through the Runtime capability interface, so the
// lifecycle logic runs unchanged against a fake in tests.
package client

import "context"

// PermissionState is the platform's notification permission for this origin.
type PermissionState string

const (
	PermissionDefault PermissionState = "default"
	PermissionDenied  PermissionState = "denied"
	PermissionGranted PermissionState = "granted"
)

// Runtime is the narrow slice of the host platform the registration manager
// needs: capability detection, the permission probe, and the worker registry.
type Runtime interface {
	// SupportsPush reports whether the platform has worker and push capability.
	SupportsPush() bool

	// Permission is a read-only probe; it never triggers a prompt.
	Permission() PermissionState

	// RegisterWorker registers the background worker script, or returns the
	// existing registration. It blocks until the registration is activatable.
	RegisterWorker(ctx context.Context) (WorkerRegistration, error)
}

// WorkerRegistration is an active background-worker registration.
type WorkerRegistration interface {
	// Subscription returns the live push subscription, or nil when the
	// registration holds none.
	Subscription(ctx context.Context) (PushSubscription, error)

	// Subscribe requests a new push subscription using the decoded server
	// signing key. The platform may prompt the user; a refusal surfaces as an
	// error.
	Subscribe(ctx context.Context, serverKey []byte) (PushSubscription, error)
}

// PushSubscription is one live browser-level subscription.
type PushSubscription interface {
	Endpoint() string
	// Keys returns the raw key material: the p256dh public key and the shared
	// auth secret.
	Keys() (p256dh []byte, auth []byte)
	Unsubscribe(ctx context.Context) error
}
