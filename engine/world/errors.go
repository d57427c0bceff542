package world

import (
	"errors"
	"fmt"
)

var (
	// ErrCycleDetected is returned when a structural change would make an
	// agent its own ancestor.
	ErrCycleDetected = errors.New("cycle detected")

	// ErrReparentNotAllowed is returned when attaching an agent that already
	// has a parent. The agent must be detached first. It is a kind of
	// ErrCycleDetected.
	ErrReparentNotAllowed = fmt.Errorf("%w: agent is already attached elsewhere", ErrCycleDetected)

	// ErrKeyNotFound is returned by trait lookups on absent names.
	ErrKeyNotFound = errors.New("trait not found")

	// ErrTraitKind is returned when a trait holds a different kind of value
	// than the caller asked for.
	ErrTraitKind = errors.New("trait has a different kind")

	// ErrImmutable is returned when mutating an agent that belongs to a
	// committed generation.
	ErrImmutable = errors.New("agent belongs to a committed generation")

	// ErrMalformedOperation is recorded when an effect queues an operation
	// that can never be valid (unknown agent ID, empty trait name, nil agent).
	ErrMalformedOperation = errors.New("malformed operation")

	// ErrInconsistentTree is returned when a commit would leave the tree in
	// an invalid state. The commit is discarded.
	ErrInconsistentTree = errors.New("inconsistent tree")

	// ErrStaleQueue is returned when committing a queue that was recorded
	// against an older generation.
	ErrStaleQueue = errors.New("queue recorded against a stale generation")
)
