package stream

import (
	"bytes"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCurrentCodecOrder(t *testing.T) {
	codec, err := CodecFor(VersionCurrent)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, codec.WriteFrame(&buf, TagPicture, 13))

	b := buf.Bytes()
	require.Len(t, b, SizeFieldSize+1)
	assert.Equal(t, uint64(13), ByteOrdering.Uint64(b[:SizeFieldSize]))
	assert.Equal(t, TagPicture, b[SizeFieldSize])

	tag, length, err := codec.ReadFrame(&buf)
	require.NoError(t, err)
	assert.Equal(t, TagPicture, tag)
	assert.Equal(t, uint64(13), length)
}

func TestLegacyCodecOrder(t *testing.T) {
	codec, err := CodecFor(VersionLegacy)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, codec.WriteFrame(&buf, TagAudio, 21))

	b := buf.Bytes()
	require.Len(t, b, 1+SizeFieldSize)
	assert.Equal(t, TagAudio, b[0])
	assert.Equal(t, uint64(21), ByteOrdering.Uint64(b[1:]))

	tag, length, err := codec.ReadFrame(&buf)
	require.NoError(t, err)
	assert.Equal(t, TagAudio, tag)
	assert.Equal(t, uint64(21), length)
}

func TestCodecForUnknownVersion(t *testing.T) {
	_, err := CodecFor(0x5)
	assert.Equal(t, ErrUnsupportedVersion, errors.Cause(err))
}

func TestWrapContainer(t *testing.T) {
	payload := []byte{0xaa, 0xbb, 0xcc}
	msg := WrapContainer(TagPicture, payload)

	require.Equal(t, TagContainer, msg[0])
	require.NoError(t, ValidateContainer(msg[1:]))

	inner := msg[1:]
	assert.Equal(t, uint64(4), ByteOrdering.Uint64(inner[:SizeFieldSize]))
	assert.Equal(t, TagPicture, inner[SizeFieldSize])
	assert.Equal(t, payload, inner[SizeFieldSize+1:])
}

func TestValidateContainerMismatch(t *testing.T) {
	msg := WrapContainer(TagPicture, []byte{1, 2, 3, 4})

	// declare one byte more than available
	ByteOrdering.PutUint64(msg[1:1+SizeFieldSize], 6)
	assert.Equal(t, ErrSizeMismatch, errors.Cause(ValidateContainer(msg[1:])))

	// truncated envelope
	assert.Equal(t, ErrMalformedFrame, errors.Cause(ValidateContainer([]byte{1, 2})))

	// zero-length inner message
	zero := make([]byte, SizeFieldSize+1)
	assert.Equal(t, ErrSizeMismatch, errors.Cause(ValidateContainer(zero)))
}

func TestPayloadRoundTrips(t *testing.T) {
	ctx := CtxMessage{Flags: CtxCreate | CtxBGRA, Ctx: 2, Width: 1920, Height: 1080}
	gotCtx, err := ParseCtxMessage(ctx.Marshal())
	require.NoError(t, err)
	assert.Equal(t, ctx, gotCtx)

	af := AudioFormatMessage{Flags: AudioInterleaved | AudioS16LE, Stream: 1, Rate: 48000, Channels: 2}
	gotAF, err := ParseAudioFormatMessage(af.Marshal())
	require.NoError(t, err)
	assert.Equal(t, af, gotAF)

	col := ColorMessage{Ctx: 2, Brightness: 0.5, Contrast: 1.25, Red: 1, Green: 0.9, Blue: 1.1}
	gotCol, err := ParseColorMessage(col.Marshal())
	require.NoError(t, err)
	assert.Equal(t, col, gotCol)

	pic := PictureHeader{Timestamp: 123456, Ctx: 2}
	gotPic, err := ParsePictureHeader(pic.Marshal())
	require.NoError(t, err)
	assert.Equal(t, pic, gotPic)

	ah := AudioHeader{Timestamp: 77, Size: 4096, Stream: 1}
	gotAH, err := ParseAudioHeader(ah.Marshal())
	require.NoError(t, err)
	assert.Equal(t, ah, gotAH)
}
