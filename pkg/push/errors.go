package push

import "errors"

// Failure taxonomy for the subscription lifecycle. Callers match with
// errors.Is instead of inspecting message strings.
var (
	// ErrUnsupportedPlatform means the runtime lacks worker or push capability.
	ErrUnsupportedPlatform = errors.New("push: platform does not support service workers or push")

	// ErrPermissionDenied means the user has blocked notifications.
	ErrPermissionDenied = errors.New("push: notification permission denied")

	// ErrRegistrationFailure means the background worker could not be registered.
	ErrRegistrationFailure = errors.New("push: worker registration failed")

	// ErrKeyFetchFailure means the signing key pair could not be loaded.
	ErrKeyFetchFailure = errors.New("push: signing key fetch failed")

	// ErrMalformedKey means a signing public key did not decode to a valid
	// uncompressed P-256 point.
	ErrMalformedKey = errors.New("push: malformed signing key")

	// ErrSubscribeFailure means the browser-level subscribe call failed.
	ErrSubscribeFailure = errors.New("push: browser subscribe failed")

	// ErrPersistFailure means the subscription could not be stored server-side.
	// The live browser-level subscription is left intact when this is returned.
	ErrPersistFailure = errors.New("push: subscription persist failed")

	// ErrSubscribeInFlight means a subscribe for the same recipient is already
	// running on this device; the second call is rejected, never interleaved.
	ErrSubscribeInFlight = errors.New("push: subscribe already in flight for recipient")
)
