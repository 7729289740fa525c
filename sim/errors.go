package sim

import "errors"

// ErrNotFound is returned when an account, order or position does not
// exist. Callers match it with errors.Is.
var ErrNotFound = errors.New("not found")

// ErrInvalidTransition is returned for lifecycle violations, e.g.
// cancelling an order that is already terminal. No state is changed.
var ErrInvalidTransition = errors.New("invalid order transition")
