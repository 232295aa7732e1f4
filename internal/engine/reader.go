package engine

import (
	"io"
	"os"
	"sync"
	"sync/atomic"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/qvisor/capstream/internal/queue"
	"github.com/qvisor/capstream/internal/stream"
)

// maxMessageSize bounds a single frame's declared length. The length field is
// read from untrusted input; anything larger than this is corrupt framing,
// not data, and must not reach a slot allocation.
const maxMessageSize = 1 << 32

type ReaderConfig struct {
	// UseMmap reads the source through a read-only shared memory mapping
	// instead of buffered sequential reads.
	UseMmap bool
}

// Reader validates and decodes a stream container back into discrete
// messages, republishing them onto a queue. The read loop runs synchronously
// on the caller's goroutine.
type Reader struct {
	mu    sync.Mutex
	state readerState

	opts ReaderConfig

	src  source
	path string

	hdr    stream.Header
	hdrErr error
	codec  stream.Codec

	canceled int32
}

func NewReader(opts ReaderConfig) *Reader {
	return &Reader{opts: opts}
}

// OpenSource opens path for reading and takes ownership of it. Fails with
// ErrBusy while a source is already held.
func (r *Reader) OpenSource(path string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state != rIdle {
		return ErrBusy
	}

	log.WithField("file", path).Info("opening source for reading stream")
	f, err := os.Open(path)
	if err != nil {
		log.WithError(err).WithField("file", path).Error("can't open source")
		return errors.Wrapf(err, "open %s", path)
	}
	if err := r.setSourceLocked(f, path); err != nil {
		f.Close()
		return err
	}
	return nil
}

// SetSource takes ownership of an already opened read-only handle.
func (r *Reader) SetSource(f *os.File) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state != rIdle {
		return ErrBusy
	}
	return r.setSourceLocked(f, f.Name())
}

func (r *Reader) setSourceLocked(f *os.File, path string) error {
	if _, err := f.Seek(0, 0); err != nil {
		return errors.Wrapf(err, "seek %s", path)
	}
	if r.opts.UseMmap {
		src, err := newMmapSource(f)
		if err != nil {
			log.WithError(err).WithField("file", path).Error("can't mmap source")
			return errors.Wrapf(err, "mmap %s", path)
		}
		r.src = src
	} else {
		r.src = newFileSource(f)
	}
	r.path = path
	r.state = rSourceOpen
	atomic.StoreInt32(&r.canceled, 0)
	return nil
}

// CloseSource releases the source and resets all header state.
func (r *Reader) CloseSource() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state == rIdle {
		return ErrNotReady
	}
	if err := r.src.Close(); err != nil {
		log.WithError(err).WithField("file", r.path).Error("can't close source")
	}
	r.src = nil
	r.hdrErr = nil
	r.state = rIdle
	return nil
}

// ReadHeader reads the stream header and its trailing name and date strings,
// exactly once per source. A bad signature or unsupported version leaves the
// header read but invalid; every subsequent read pass fails until the source
// is reopened.
func (r *Reader) ReadHeader() (stream.Header, string, string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	switch r.state {
	case rIdle:
		return stream.Header{}, "", "", ErrNotReady
	case rHeaderRead, rHeaderValid:
		return stream.Header{}, "", "", ErrBusy
	}

	h, name, date, err := stream.ReadHeader(r.src)
	if err != nil {
		cause := errors.Cause(err)
		if cause == stream.ErrBadSignature || cause == stream.ErrUnsupportedVersion {
			r.state = rHeaderRead
			r.hdrErr = err
		}
		log.WithError(err).WithField("file", r.path).Error("can't read stream header")
		return h, name, date, err
	}

	codec, err := stream.CodecFor(h.Version)
	if err != nil {
		r.state = rHeaderRead
		r.hdrErr = err
		return h, name, date, err
	}
	log.WithFields(log.Fields{"file": r.path, "version": h.Version}).Info("stream header valid")
	r.hdr = h
	r.codec = codec
	r.state = rHeaderValid
	return h, name, date, nil
}

// Header returns the last header read from the current source.
func (r *Reader) Header() stream.Header {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.hdr
}

// Cancel requests a cooperative stop of the read loop. It takes effect at the
// next message boundary, never mid-message.
func (r *Reader) Cancel() {
	atomic.StoreInt32(&r.canceled, 1)
}

// Read runs the read loop: frame each message in the order dictated by the
// stream version, copy it into a queue slot and publish it, until a close
// message is seen or a cancellation is observed.
//
// Unexpected end of input mid-message publishes a synthesized close message
// and is not an error. Queue cancellation received while blocked is a clean
// termination. Any other failure cancels the queue and is returned. After any
// completed pass the header state is cleared, so a fresh header must be read
// before another pass.
func (r *Reader) Read(q *queue.Queue) error {
	r.mu.Lock()
	switch r.state {
	case rHeaderValid:
	case rHeaderRead:
		hdrErr := r.hdrErr
		r.state = rSourceOpen
		r.mu.Unlock()
		log.WithField("file", r.path).Error("stream header not valid")
		return hdrErr
	default:
		r.mu.Unlock()
		log.WithField("file", r.path).Error("stream header not read")
		return ErrNotReady
	}
	src := r.src
	codec := r.codec
	r.mu.Unlock()

	var ret error
	for atomic.LoadInt32(&r.canceled) == 0 {
		tag, length, err := codec.ReadFrame(src)
		if err != nil {
			if err == io.EOF || err == io.ErrUnexpectedEOF {
				r.sendEOF(q)
				break
			}
			ret = errors.Wrap(err, "read frame")
			break
		}
		if length == 0 || length > maxMessageSize {
			ret = errors.Wrapf(stream.ErrMalformedFrame, "message length %d", length)
			break
		}

		s, err := q.AcquireSlot(int(length))
		if err != nil {
			// canceled while blocked: clean termination
			break
		}
		b := s.Bytes()
		b[0] = tag
		if _, err := io.ReadFull(src, b[1:]); err != nil {
			q.Release(s)
			if err == io.EOF || err == io.ErrUnexpectedEOF {
				r.sendEOF(q)
				break
			}
			ret = errors.Wrap(err, "read payload")
			break
		}
		if err := q.Publish(s); err != nil {
			q.Release(s)
			break
		}
		if tag == stream.TagClose {
			break
		}
	}

	r.mu.Lock()
	r.state = rSourceOpen
	r.mu.Unlock()

	if ret != nil {
		log.WithError(ret).WithField("file", r.path).Error("stream read failed")
		q.Cancel()
		return ret
	}
	return nil
}

// sendEOF publishes a synthesized close message so downstream consumers still
// observe a clean terminal event after a truncated stream.
func (r *Reader) sendEOF(q *queue.Queue) {
	log.WithField("file", r.path).Warn("unexpected end of stream, synthesizing close")
	s, err := q.AcquireSlot(1)
	if err != nil {
		return
	}
	s.Bytes()[0] = stream.TagClose
	if err := q.Publish(s); err != nil {
		q.Release(s)
	}
}
