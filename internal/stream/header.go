package stream

import (
	"io"
	"math"

	"github.com/pkg/errors"
)

var (
	ErrBadSignature       = errors.New("file signature does not match")
	ErrUnsupportedVersion = errors.New("unsupported stream version")
)

// Header is the fixed-size record at the start of every stream file.
// NameSize bytes of NUL-terminated producer name and DateSize bytes of
// NUL-terminated capture date follow it immediately.
type Header struct {
	Signature uint32
	Version   uint32
	FPS       float64
	Flags     uint32
	Pid       uint32
	NameSize  uint32
	DateSize  uint32
}

// NewHeader returns a current-version header with the signature filled in.
func NewHeader(fps float64, flags uint32, pid uint32) Header {
	return Header{
		Signature: Signature,
		Version:   VersionCurrent,
		FPS:       fps,
		Flags:     flags,
		Pid:       pid,
	}
}

// Validate checks the signature and version. A header that fails validation
// must not be followed by any message read.
func (h Header) Validate() error {
	if h.Signature != Signature {
		return errors.Wrapf(ErrBadSignature, "got 0x%08x, want 0x%08x", h.Signature, Signature)
	}
	if h.Version != VersionCurrent && h.Version != VersionLegacy {
		return errors.Wrapf(ErrUnsupportedVersion, "version 0x%02x", h.Version)
	}
	return nil
}

// Marshal encodes the header into its fixed 32-byte on-disk form.
func (h Header) Marshal() []byte {
	b := make([]byte, HeaderSize)
	ByteOrdering.PutUint32(b[0:4], h.Signature)
	ByteOrdering.PutUint32(b[4:8], h.Version)
	ByteOrdering.PutUint64(b[8:16], math.Float64bits(h.FPS))
	ByteOrdering.PutUint32(b[16:20], h.Flags)
	ByteOrdering.PutUint32(b[20:24], h.Pid)
	ByteOrdering.PutUint32(b[24:28], h.NameSize)
	ByteOrdering.PutUint32(b[28:32], h.DateSize)
	return b
}

// UnmarshalHeader decodes the fixed 32-byte on-disk form.
func UnmarshalHeader(b []byte) (Header, error) {
	if len(b) < HeaderSize {
		return Header{}, errors.Errorf("header needs %d bytes, got %d", HeaderSize, len(b))
	}
	return Header{
		Signature: ByteOrdering.Uint32(b[0:4]),
		Version:   ByteOrdering.Uint32(b[4:8]),
		FPS:       math.Float64frombits(ByteOrdering.Uint64(b[8:16])),
		Flags:     ByteOrdering.Uint32(b[16:20]),
		Pid:       ByteOrdering.Uint32(b[20:24]),
		NameSize:  ByteOrdering.Uint32(b[24:28]),
		DateSize:  ByteOrdering.Uint32(b[28:32]),
	}, nil
}

// WriteHeader writes the header record followed by the NUL-terminated name
// and date strings. NameSize and DateSize are filled in from the strings.
func WriteHeader(w io.Writer, h Header, name, date string) error {
	h.NameSize = uint32(len(name) + 1)
	h.DateSize = uint32(len(date) + 1)
	if _, err := w.Write(h.Marshal()); err != nil {
		return err
	}
	if _, err := w.Write(append([]byte(name), 0)); err != nil {
		return err
	}
	if _, err := w.Write(append([]byte(date), 0)); err != nil {
		return err
	}
	return nil
}

// ReadHeader reads and decodes the header record and its trailing name and
// date strings. It does not validate; the caller decides how far an invalid
// header should be trusted.
func ReadHeader(r io.Reader) (Header, string, string, error) {
	buf := make([]byte, HeaderSize)
	if _, err := io.ReadFull(r, buf); err != nil {
		return Header{}, "", "", err
	}
	h, err := UnmarshalHeader(buf)
	if err != nil {
		return Header{}, "", "", err
	}
	if err := h.Validate(); err != nil {
		return h, "", "", err
	}
	name, err := readCString(r, h.NameSize)
	if err != nil {
		return h, "", "", err
	}
	date, err := readCString(r, h.DateSize)
	if err != nil {
		return h, name, "", err
	}
	return h, name, date, nil
}

func readCString(r io.Reader, size uint32) (string, error) {
	if size == 0 {
		return "", nil
	}
	b := make([]byte, size)
	if _, err := io.ReadFull(r, b); err != nil {
		return "", err
	}
	// strip the trailing NUL
	if b[len(b)-1] == 0 {
		b = b[:len(b)-1]
	}
	return string(b), nil
}
