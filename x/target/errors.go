package target

import "errors"

var (
	// ErrProtocolViolation is fatal: a collaborator sent something the coordinator never asked for.
	ErrProtocolViolation = errors.New("target: protocol violation")
	// ErrAborted is returned by every operation after a protocol violation.
	ErrAborted = errors.New("target: coordinator aborted")
	// ErrCallbackFailed wraps an error returned by the completion callback.
	ErrCallbackFailed = errors.New("target: completion callback failed")
	// ErrUnknownTemporalID indicates an id that is neither pending, active nor completed.
	ErrUnknownTemporalID = errors.New("target: unknown temporal id")
	// ErrNotComplete indicates Finalize on an epoch whose callback has not fired.
	ErrNotComplete = errors.New("target: epoch not complete")
	// ErrNotStarted indicates a delivery before Start.
	ErrNotStarted = errors.New("target: coordinator not started")
	// ErrInvalidPoints indicates a point set the coordinator cannot build a record from.
	ErrInvalidPoints = errors.New("target: invalid point set")
)
