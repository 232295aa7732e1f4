// Package engine contains the writer and reader engines that move messages
// between the queue and an on-disk stream container. Each engine instance is
// unidirectional and owns at most one open target at a time.
package engine

import "github.com/pkg/errors"

var (
	// ErrBusy means the operation conflicts with a target already held or a
	// drain thread currently running.
	ErrBusy = errors.New("engine is busy")
	// ErrNotReady means a required earlier step (open target, write or read
	// header) has not happened yet.
	ErrNotReady = errors.New("engine is not ready")
)

// writerState replaces the original flag bitset with an explicit state per
// writer instance. Every public operation checks it before touching the
// target, so an illegal call fails fast instead of corrupting the stream.
type writerState int

const (
	wIdle writerState = iota
	wTargetOpen
	wHeaderWritten
	wRunning
)

func (s writerState) String() string {
	switch s {
	case wIdle:
		return "idle"
	case wTargetOpen:
		return "target-open"
	case wHeaderWritten:
		return "header-written"
	case wRunning:
		return "running"
	}
	return "unknown"
}

type readerState int

const (
	rIdle readerState = iota
	rSourceOpen
	rHeaderRead
	rHeaderValid
)

func (s readerState) String() string {
	switch s {
	case rIdle:
		return "idle"
	case rSourceOpen:
		return "source-open"
	case rHeaderRead:
		return "header-read"
	case rHeaderValid:
		return "header-valid"
	}
	return "unknown"
}
