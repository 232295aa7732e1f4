package engine

import (
	"bufio"
	"os"
	"sync"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/qvisor/capstream/internal/queue"
	"github.com/qvisor/capstream/internal/replay"
	"github.com/qvisor/capstream/internal/stream"
)

type SyncPolicy int

const (
	// NoSync relies on buffered writeback; data reaches disk on close.
	NoSync SyncPolicy = iota
	// AlwaysSync flushes to storage after every message.
	AlwaysSync
)

const defaultLockTimeout = 50 * time.Millisecond

// CallbackFunc handles a mid-stream control request. It runs on the drain
// goroutine itself, so it is serialized with respect to in-flight writes and
// may close, reopen or relocate the current target.
type CallbackFunc func(arg []byte)

type WriterConfig struct {
	SyncPolicy SyncPolicy
	// LockTimeout bounds how long OpenTarget waits for the exclusive file
	// lock before failing.
	LockTimeout time.Duration
	// Tracker receives every drained message so a later target swap can
	// self-describe. A fresh one is created when nil.
	Tracker *replay.Tracker
}

// Writer turns a queue of live or replayed messages into a durable, correctly
// framed stream file. It always produces current-version streams.
type Writer struct {
	mu    sync.Mutex
	state writerState

	opts WriterConfig

	f    *os.File
	bw   *bufio.Writer
	path string

	codec    stream.Codec
	callback CallbackFunc
	tracker  *replay.Tracker

	wg     sync.WaitGroup
	runErr error
}

func NewWriter(opts WriterConfig) *Writer {
	if opts.LockTimeout == 0 {
		opts.LockTimeout = defaultLockTimeout
	}
	if opts.Tracker == nil {
		opts.Tracker = replay.New()
	}
	codec, _ := stream.CodecFor(stream.VersionCurrent)
	return &Writer{
		opts:    opts,
		codec:   codec,
		tracker: opts.Tracker,
	}
}

// SetCallback registers the control request handler. Requests drained while
// no callback is registered are dropped.
func (w *Writer) SetCallback(cb CallbackFunc) {
	w.mu.Lock()
	w.callback = cb
	w.mu.Unlock()
}

// Tracker exposes the state tracker shared with the drain loop.
func (w *Writer) Tracker() *replay.Tracker {
	return w.tracker
}

// OpenTarget opens path for writing and takes ownership of it. Fails with
// ErrBusy while a target is already held.
func (w *Writer) OpenTarget(path string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.state != wIdle {
		return ErrBusy
	}

	log.WithFields(log.Fields{"file": path, "sync": w.opts.SyncPolicy == AlwaysSync}).
		Info("opening target for writing stream")

	flags := os.O_CREATE | os.O_WRONLY
	if w.opts.SyncPolicy == AlwaysSync {
		flags |= os.O_SYNC
	}
	f, err := os.OpenFile(path, flags, 0644)
	if err != nil {
		log.WithError(err).WithField("file", path).Error("can't open target")
		return errors.Wrapf(err, "open %s", path)
	}
	if err := w.setTargetLocked(f, path); err != nil {
		f.Close()
		return err
	}
	return nil
}

// SetTarget takes ownership of an already opened write-only handle.
func (w *Writer) SetTarget(f *os.File) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.state != wIdle {
		return ErrBusy
	}
	return w.setTargetLocked(f, f.Name())
}

func (w *Writer) setTargetLocked(f *os.File, path string) error {
	if err := flock(f.Fd(), w.opts.LockTimeout); err != nil {
		log.WithError(err).WithField("file", path).Error("can't lock target")
		return errors.Wrapf(err, "lock %s", path)
	}
	// Truncate only once the file is locked.
	if err := f.Truncate(0); err != nil {
		return errors.Wrapf(err, "truncate %s", path)
	}
	if _, err := f.Seek(0, 0); err != nil {
		return errors.Wrapf(err, "seek %s", path)
	}
	w.f = f
	w.bw = bufio.NewWriter(f)
	w.path = path
	w.state = wTargetOpen
	return nil
}

// CloseTarget flushes, unlocks and releases the target. Fails with ErrBusy
// while the drain thread is running. The target is always released; if the
// final flush or close fails, the first such error is returned so buffered
// tail data is never lost silently.
func (w *Writer) CloseTarget() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	switch w.state {
	case wIdle:
		return ErrNotReady
	case wRunning:
		return ErrBusy
	}

	var firstErr error
	if err := w.bw.Flush(); err != nil {
		log.WithError(err).WithField("file", w.path).Error("can't flush target")
		firstErr = errors.Wrapf(err, "flush %s", w.path)
	}
	if err := funlock(w.f.Fd()); err != nil {
		log.WithError(err).WithField("file", w.path).Error("can't unlock target")
		if firstErr == nil {
			firstErr = errors.Wrapf(err, "unlock %s", w.path)
		}
	}
	if err := w.f.Close(); err != nil {
		log.WithError(err).WithField("file", w.path).Error("can't close target")
		if firstErr == nil {
			firstErr = errors.Wrapf(err, "close %s", w.path)
		}
	}
	w.f = nil
	w.bw = nil
	w.state = wIdle
	return firstErr
}

// WriteHeader writes the stream header followed by the producer name and
// capture date. It must precede every run of the drain thread.
func (w *Writer) WriteHeader(h stream.Header, name, date string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	switch w.state {
	case wIdle:
		return ErrNotReady
	case wRunning:
		return ErrBusy
	}

	if err := stream.WriteHeader(w.bw, h, name, date); err != nil {
		log.WithError(err).WithField("file", w.path).Error("can't write stream header")
		return errors.Wrap(err, "write stream header")
	}
	if err := w.flushLocked(); err != nil {
		return errors.Wrap(err, "write stream header")
	}
	w.state = wHeaderWritten
	return nil
}

// WriteState asks the tracker to enumerate all known durable state and writes
// each item as a normal framed message, making the target self-describing.
func (w *Writer) WriteState() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.checkWritableLocked(); err != nil {
		return err
	}
	err := w.tracker.Replay(func(msg []byte) error {
		return w.writeMessageLocked(msg[0], msg[1:])
	})
	if err != nil {
		log.WithError(err).WithField("file", w.path).Error("can't write state")
		return errors.Wrap(err, "write state")
	}
	return nil
}

// WriteEOF emits the zero-payload close message terminating the stream.
func (w *Writer) WriteEOF() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.checkWritableLocked(); err != nil {
		return err
	}
	if err := w.writeMessageLocked(stream.TagClose, nil); err != nil {
		log.WithError(err).WithField("file", w.path).Error("can't write eof")
		return errors.Wrap(err, "write eof")
	}
	return nil
}

func (w *Writer) checkWritableLocked() error {
	switch w.state {
	case wRunning:
		return ErrBusy
	case wHeaderWritten:
		return nil
	}
	return ErrNotReady
}

// Start spawns the drain goroutine consuming q into the target. It requires
// the header to be written first.
func (w *Writer) Start(q *queue.Queue) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	switch w.state {
	case wRunning:
		return ErrBusy
	case wHeaderWritten:
	default:
		return ErrNotReady
	}
	w.state = wRunning
	w.runErr = nil
	w.wg.Add(1)
	go w.drain(q)
	return nil
}

// Wait joins the drain goroutine and returns its error, if any. Afterwards a
// new header must be written before another run.
func (w *Writer) Wait() error {
	w.mu.Lock()
	if w.state != wRunning {
		w.mu.Unlock()
		return ErrNotReady
	}
	w.mu.Unlock()

	w.wg.Wait()

	w.mu.Lock()
	defer w.mu.Unlock()
	w.state = wTargetOpen
	return w.runErr
}

// drain empties the queue into the target until a close message is written,
// the queue is canceled, or a write fails.
func (w *Writer) drain(q *queue.Queue) {
	defer w.wg.Done()
	for {
		s, err := q.Next()
		if err != nil {
			// canceled: clean stop
			return
		}
		msg := s.Bytes()
		if len(msg) == 0 {
			q.Release(s)
			continue
		}
		tag, payload := msg[0], msg[1:]
		w.tracker.Absorb(msg)

		switch tag {
		case stream.TagCallbackRequest:
			// control requests never reach disk
			w.invokeCallback(payload)
		case stream.TagContainer:
			err = w.writeContainer(payload)
		default:
			err = w.writeMessage(tag, payload)
		}
		q.Release(s)

		if err != nil {
			log.WithError(err).WithField("file", w.path).Error("stream write failed")
			w.mu.Lock()
			w.runErr = err
			w.mu.Unlock()
			q.Cancel()
			return
		}
		if tag == stream.TagClose {
			return
		}
	}
}

// invokeCallback runs the registered callback inline. The engine leaves the
// running state for the duration so the callback may legally close, reopen or
// relocate the target; no write can race it because the drain goroutine is
// the one executing it.
func (w *Writer) invokeCallback(arg []byte) {
	w.mu.Lock()
	cb := w.callback
	if cb == nil {
		w.mu.Unlock()
		return
	}
	w.state = wHeaderWritten
	w.mu.Unlock()

	cb(arg)

	w.mu.Lock()
	w.state = wRunning
	w.mu.Unlock()
}

// writeContainer validates a container envelope and writes its pre-framed
// inner message through to disk byte-for-byte.
func (w *Writer) writeContainer(payload []byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.bw == nil {
		return ErrNotReady
	}
	if err := stream.ValidateContainer(payload); err != nil {
		return err
	}
	if _, err := w.bw.Write(payload); err != nil {
		return err
	}
	return w.flushLocked()
}

func (w *Writer) writeMessage(tag byte, payload []byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.writeMessageLocked(tag, payload)
}

func (w *Writer) writeMessageLocked(tag byte, payload []byte) error {
	if w.bw == nil {
		return ErrNotReady
	}
	if err := w.codec.WriteFrame(w.bw, tag, uint64(1+len(payload))); err != nil {
		return err
	}
	if len(payload) > 0 {
		if _, err := w.bw.Write(payload); err != nil {
			return err
		}
	}
	return w.flushLocked()
}

func (w *Writer) flushLocked() error {
	if w.opts.SyncPolicy != AlwaysSync {
		return nil
	}
	return w.bw.Flush()
}
