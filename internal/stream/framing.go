package stream

import (
	"io"

	"github.com/pkg/errors"
)

var (
	ErrSizeMismatch   = errors.New("container size does not match inner message")
	ErrMalformedFrame = errors.New("malformed message frame")
)

// Codec reads and writes the per-message frame (length field plus type tag).
// The length always includes the tag byte and excludes the length field
// itself, so the payload that follows a frame is length-1 bytes.
//
// The codec is selected once per stream open from the header version and is
// never mixed within a file.
type Codec interface {
	// ReadFrame reads the next length and tag in the version's field order.
	ReadFrame(r io.Reader) (tag byte, length uint64, err error)
	// WriteFrame writes the length and tag in the version's field order.
	WriteFrame(w io.Writer, tag byte, length uint64) error
}

// CodecFor returns the frame codec for a stream version.
func CodecFor(version uint32) (Codec, error) {
	switch version {
	case VersionCurrent:
		return currentCodec{}, nil
	case VersionLegacy:
		return legacyCodec{}, nil
	}
	return nil, errors.Wrapf(ErrUnsupportedVersion, "version 0x%02x", version)
}

// currentCodec frames messages as [length][tag], the same layout container
// envelopes use for their inner message.
type currentCodec struct{}

func (currentCodec) ReadFrame(r io.Reader) (byte, uint64, error) {
	var buf [SizeFieldSize + 1]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, 0, err
	}
	return buf[SizeFieldSize], ByteOrdering.Uint64(buf[:SizeFieldSize]), nil
}

func (currentCodec) WriteFrame(w io.Writer, tag byte, length uint64) error {
	var buf [SizeFieldSize + 1]byte
	ByteOrdering.PutUint64(buf[:SizeFieldSize], length)
	buf[SizeFieldSize] = tag
	_, err := w.Write(buf[:])
	return err
}

// legacyCodec frames messages as [tag][length]. Version 0x3 streams are
// identical to current ones in every other way.
type legacyCodec struct{}

func (legacyCodec) ReadFrame(r io.Reader) (byte, uint64, error) {
	var buf [1 + SizeFieldSize]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, 0, err
	}
	return buf[0], ByteOrdering.Uint64(buf[1:]), nil
}

func (legacyCodec) WriteFrame(w io.Writer, tag byte, length uint64) error {
	var buf [1 + SizeFieldSize]byte
	buf[0] = tag
	ByteOrdering.PutUint64(buf[1:], length)
	_, err := w.Write(buf[:])
	return err
}

// ValidateContainer checks a container envelope payload: one complete
// [length][tag][payload] triple whose declared length must account for the
// available bytes exactly. Inner triples always use the current field order
// regardless of the stream version.
func ValidateContainer(payload []byte) error {
	if len(payload) < SizeFieldSize+1 {
		return errors.Wrapf(ErrMalformedFrame, "container payload of %d bytes", len(payload))
	}
	inner := ByteOrdering.Uint64(payload[:SizeFieldSize])
	if inner == 0 || uint64(len(payload)) != SizeFieldSize+inner {
		return errors.Wrapf(ErrSizeMismatch, "declared %d, available %d", inner, len(payload)-SizeFieldSize)
	}
	return nil
}

// WrapContainer builds a container envelope message from a tag and payload:
// the envelope tag followed by the pre-framed inner triple.
func WrapContainer(tag byte, payload []byte) []byte {
	msg := make([]byte, 1+SizeFieldSize+1+len(payload))
	msg[0] = TagContainer
	ByteOrdering.PutUint64(msg[1:1+SizeFieldSize], uint64(1+len(payload)))
	msg[1+SizeFieldSize] = tag
	copy(msg[1+SizeFieldSize+1:], payload)
	return msg
}
