package stream

import "encoding/binary"

// Message type tags. The tag is the first byte of every message, both in the
// in-memory queue representation and on disk.
const (
	TagClose       byte = 0x01
	TagPicture     byte = 0x02
	TagCtx         byte = 0x03
	TagLZO         byte = 0x04
	TagAudioFormat byte = 0x05
	TagAudio       byte = 0x06
	TagQuickLZ     byte = 0x07
	TagColor       byte = 0x08
	TagContainer   byte = 0x09

	// TagCallbackRequest is a side-channel control message consumed by the
	// writer's drain loop. It never reaches disk.
	TagCallbackRequest byte = 0x0a
)

const (
	// Signature is the magic constant every stream file starts with ("GLC\0").
	Signature uint32 = 0x00434c47

	// VersionCurrent frames messages as [length][tag][payload].
	VersionCurrent uint32 = 0x4
	// VersionLegacy frames messages as [tag][length][payload]. This is the
	// only difference between the two supported versions.
	VersionLegacy uint32 = 0x3

	// HeaderSize is the fixed size of the stream header record.
	HeaderSize = 32
	// SizeFieldSize is the width of the per-message length field.
	SizeFieldSize = 8
)

// ByteOrdering is used for every integer field in the container format.
var ByteOrdering = binary.LittleEndian

// Picture context flags.
const (
	CtxCreate       uint32 = 1 << iota // create context
	CtxUpdate                          // update existing context
	CtxBGR                             // 24bit BGR, last row first
	CtxBGRA                            // 32bit BGRA, last row first
	CtxYCbCr420JPEG                    // planar YV12 420jpeg
	CtxDWordAligned                    // double-word aligned rows
)

// Audio stream flags.
const (
	AudioInterleaved   uint32 = 1 << iota // interleaved samples
	AudioFormatUnknown                    // unknown/unsupported format
	AudioS16LE                            // signed 16bit little-endian
	AudioS24LE                            // signed 24bit little-endian
	AudioS32LE                            // signed 32bit little-endian
)

const (
	PictureHeaderSize      = 12
	CtxMessageSize         = 16
	AudioFormatMessageSize = 16
	AudioHeaderSize        = 20
	ColorMessageSize       = 24
)

// PictureHeader leads every picture message payload; pixel data follows.
type PictureHeader struct {
	Timestamp uint64
	Ctx       int32
}

// CtxMessage declares or updates a picture context.
type CtxMessage struct {
	Flags  uint32
	Ctx    int32
	Width  uint32
	Height uint32
}

// AudioFormatMessage declares the format of an audio stream.
type AudioFormatMessage struct {
	Flags    uint32
	Stream   int32
	Rate     uint32
	Channels uint32
}

// AudioHeader leads every audio data message payload; sample data follows.
type AudioHeader struct {
	Timestamp uint64
	Size      uint64
	Stream    int32
}

// ColorMessage carries color correction for a picture context.
type ColorMessage struct {
	Ctx        int32
	Brightness float32
	Contrast   float32
	Red        float32
	Green      float32
	Blue       float32
}
