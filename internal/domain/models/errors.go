package models

import "errors"

var (
	// ErrAbstained marks a producer that gave no usable opinion this cycle.
	ErrAbstained = errors.New("producer abstained")
	// ErrNoSnapshot is returned when the portfolio source cannot produce a snapshot.
	ErrNoSnapshot = errors.New("portfolio snapshot unavailable")
	// ErrDuplicateDispatch is returned when a cycle already emitted its intent.
	ErrDuplicateDispatch = errors.New("intent already dispatched for cycle")
	// ErrNotFound is returned by stores when nothing has been recorded yet.
	ErrNotFound = errors.New("not found")
)
