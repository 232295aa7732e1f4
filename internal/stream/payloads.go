package stream

import (
	"math"

	"github.com/pkg/errors"
)

// Marshal encodes the picture header. Pixel data is appended by the caller.
func (p PictureHeader) Marshal() []byte {
	b := make([]byte, PictureHeaderSize)
	ByteOrdering.PutUint64(b[0:8], p.Timestamp)
	ByteOrdering.PutUint32(b[8:12], uint32(p.Ctx))
	return b
}

func ParsePictureHeader(b []byte) (PictureHeader, error) {
	if len(b) < PictureHeaderSize {
		return PictureHeader{}, errors.Wrap(ErrMalformedFrame, "short picture header")
	}
	return PictureHeader{
		Timestamp: ByteOrdering.Uint64(b[0:8]),
		Ctx:       int32(ByteOrdering.Uint32(b[8:12])),
	}, nil
}

func (m CtxMessage) Marshal() []byte {
	b := make([]byte, CtxMessageSize)
	ByteOrdering.PutUint32(b[0:4], m.Flags)
	ByteOrdering.PutUint32(b[4:8], uint32(m.Ctx))
	ByteOrdering.PutUint32(b[8:12], m.Width)
	ByteOrdering.PutUint32(b[12:16], m.Height)
	return b
}

func ParseCtxMessage(b []byte) (CtxMessage, error) {
	if len(b) < CtxMessageSize {
		return CtxMessage{}, errors.Wrap(ErrMalformedFrame, "short ctx message")
	}
	return CtxMessage{
		Flags:  ByteOrdering.Uint32(b[0:4]),
		Ctx:    int32(ByteOrdering.Uint32(b[4:8])),
		Width:  ByteOrdering.Uint32(b[8:12]),
		Height: ByteOrdering.Uint32(b[12:16]),
	}, nil
}

func (m AudioFormatMessage) Marshal() []byte {
	b := make([]byte, AudioFormatMessageSize)
	ByteOrdering.PutUint32(b[0:4], m.Flags)
	ByteOrdering.PutUint32(b[4:8], uint32(m.Stream))
	ByteOrdering.PutUint32(b[8:12], m.Rate)
	ByteOrdering.PutUint32(b[12:16], m.Channels)
	return b
}

func ParseAudioFormatMessage(b []byte) (AudioFormatMessage, error) {
	if len(b) < AudioFormatMessageSize {
		return AudioFormatMessage{}, errors.Wrap(ErrMalformedFrame, "short audio format message")
	}
	return AudioFormatMessage{
		Flags:    ByteOrdering.Uint32(b[0:4]),
		Stream:   int32(ByteOrdering.Uint32(b[4:8])),
		Rate:     ByteOrdering.Uint32(b[8:12]),
		Channels: ByteOrdering.Uint32(b[12:16]),
	}, nil
}

// Marshal encodes the audio data header. Sample data is appended by the caller.
func (h AudioHeader) Marshal() []byte {
	b := make([]byte, AudioHeaderSize)
	ByteOrdering.PutUint64(b[0:8], h.Timestamp)
	ByteOrdering.PutUint64(b[8:16], h.Size)
	ByteOrdering.PutUint32(b[16:20], uint32(h.Stream))
	return b
}

func ParseAudioHeader(b []byte) (AudioHeader, error) {
	if len(b) < AudioHeaderSize {
		return AudioHeader{}, errors.Wrap(ErrMalformedFrame, "short audio header")
	}
	return AudioHeader{
		Timestamp: ByteOrdering.Uint64(b[0:8]),
		Size:      ByteOrdering.Uint64(b[8:16]),
		Stream:    int32(ByteOrdering.Uint32(b[16:20])),
	}, nil
}

func (m ColorMessage) Marshal() []byte {
	b := make([]byte, ColorMessageSize)
	ByteOrdering.PutUint32(b[0:4], uint32(m.Ctx))
	ByteOrdering.PutUint32(b[4:8], math.Float32bits(m.Brightness))
	ByteOrdering.PutUint32(b[8:12], math.Float32bits(m.Contrast))
	ByteOrdering.PutUint32(b[12:16], math.Float32bits(m.Red))
	ByteOrdering.PutUint32(b[16:20], math.Float32bits(m.Green))
	ByteOrdering.PutUint32(b[20:24], math.Float32bits(m.Blue))
	return b
}

func ParseColorMessage(b []byte) (ColorMessage, error) {
	if len(b) < ColorMessageSize {
		return ColorMessage{}, errors.Wrap(ErrMalformedFrame, "short color message")
	}
	return ColorMessage{
		Ctx:        int32(ByteOrdering.Uint32(b[0:4])),
		Brightness: math.Float32frombits(ByteOrdering.Uint32(b[4:8])),
		Contrast:   math.Float32frombits(ByteOrdering.Uint32(b[8:12])),
		Red:        math.Float32frombits(ByteOrdering.Uint32(b[12:16])),
		Green:      math.Float32frombits(ByteOrdering.Uint32(b[16:20])),
		Blue:       math.Float32frombits(ByteOrdering.Uint32(b[20:24])),
	}, nil
}

// Message assembles a queue-level message: tag byte followed by payload.
func Message(tag byte, payload []byte) []byte {
	msg := make([]byte, 1+len(payload))
	msg[0] = tag
	copy(msg[1:], payload)
	return msg
}
