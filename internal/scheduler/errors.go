package scheduler

import "errors"

var (
	// ErrNoTickFunc is returned when a scheduler is started without a tick function
	ErrNoTickFunc = errors.New("no tick function configured")

	// ErrContextDone is returned when Start is given an already cancelled context
	ErrContextDone = errors.New("context already done")
)
