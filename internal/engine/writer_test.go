package engine

import (
	"io/ioutil"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qvisor/capstream/internal/queue"
	"github.com/qvisor/capstream/internal/replay"
	"github.com/qvisor/capstream/internal/stream"
)

func TestWriterLifecycleGuards(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.cap")
	w := NewWriter(WriterConfig{})
	q := queue.New(queue.Opts{})

	// nothing is legal before a target is open
	assert.Equal(t, ErrNotReady, w.WriteHeader(stream.NewHeader(60, 0, 1), "app", "date"))
	assert.Equal(t, ErrNotReady, w.WriteEOF())
	assert.Equal(t, ErrNotReady, w.WriteState())
	assert.Equal(t, ErrNotReady, w.Start(q))
	assert.Equal(t, ErrNotReady, w.CloseTarget())
	assert.Equal(t, ErrNotReady, w.Wait())

	require.NoError(t, w.OpenTarget(path))

	// header must be written before state, eof or a run
	assert.Equal(t, ErrNotReady, w.WriteEOF())
	assert.Equal(t, ErrNotReady, w.WriteState())
	assert.Equal(t, ErrNotReady, w.Start(q))

	// a second target is refused while one is held
	assert.Equal(t, ErrBusy, w.OpenTarget(filepath.Join(t.TempDir(), "other.cap")))

	require.NoError(t, w.WriteHeader(stream.NewHeader(60, 0, 1), "app", "date"))
	require.NoError(t, w.Start(q))

	// while the drain thread runs, target mutation fails fast
	assert.Equal(t, ErrBusy, w.WriteHeader(stream.NewHeader(60, 0, 1), "app", "date"))
	assert.Equal(t, ErrBusy, w.WriteEOF())
	assert.Equal(t, ErrBusy, w.WriteState())
	assert.Equal(t, ErrBusy, w.CloseTarget())
	assert.Equal(t, ErrBusy, w.Start(q))

	q.Cancel()
	require.NoError(t, w.Wait())

	// wait clears header-written: a new header is needed before eof or a run
	assert.Equal(t, ErrNotReady, w.WriteEOF())
	assert.Equal(t, ErrNotReady, w.Start(q))

	require.NoError(t, w.CloseTarget())
	assert.Equal(t, ErrNotReady, w.CloseTarget())
}

func TestWriterExclusiveFileLock(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.cap")
	w1 := NewWriter(WriterConfig{})
	require.NoError(t, w1.OpenTarget(path))
	defer w1.CloseTarget()

	w2 := NewWriter(WriterConfig{})
	err := w2.OpenTarget(path)
	require.Error(t, err)

	// the first writer's target is untouched
	require.NoError(t, w1.WriteHeader(stream.NewHeader(60, 0, 1), "app", "date"))
	require.NoError(t, w1.WriteEOF())
}

func TestWriterFramesHeaderAndEOF(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.cap")
	w := NewWriter(WriterConfig{SyncPolicy: AlwaysSync})
	require.NoError(t, w.OpenTarget(path))
	require.NoError(t, w.WriteHeader(stream.NewHeader(60, 0, 42), "app", "2024-01-01"))
	require.NoError(t, w.WriteEOF())
	require.NoError(t, w.CloseTarget())

	raw, err := ioutil.ReadFile(path)
	require.NoError(t, err)

	// header, "app\0", "2024-01-01\0", then [length=1][close], no residue
	require.Len(t, raw, stream.HeaderSize+4+11+stream.SizeFieldSize+1)

	h, err := stream.UnmarshalHeader(raw)
	require.NoError(t, err)
	assert.Equal(t, stream.VersionCurrent, h.Version)
	assert.Equal(t, uint32(42), h.Pid)
	assert.Equal(t, "app\x00", string(raw[stream.HeaderSize:stream.HeaderSize+4]))

	frame := raw[stream.HeaderSize+4+11:]
	assert.Equal(t, uint64(1), stream.ByteOrdering.Uint64(frame[:stream.SizeFieldSize]))
	assert.Equal(t, stream.TagClose, frame[stream.SizeFieldSize])
}

func TestWriterTruncatesExistingTarget(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.cap")
	require.NoError(t, ioutil.WriteFile(path, make([]byte, 4096), 0644))

	w := NewWriter(WriterConfig{})
	require.NoError(t, w.OpenTarget(path))
	require.NoError(t, w.WriteHeader(stream.NewHeader(60, 0, 1), "a", "b"))
	require.NoError(t, w.CloseTarget())

	raw, err := ioutil.ReadFile(path)
	require.NoError(t, err)
	assert.Len(t, raw, stream.HeaderSize+2+2)
}

func TestWriterCloseTargetReportsFlushFailure(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.cap")
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY, 0644)
	require.NoError(t, err)

	w := NewWriter(WriterConfig{})
	require.NoError(t, w.SetTarget(f))
	// under NoSync the header stays in the write buffer
	require.NoError(t, w.WriteHeader(stream.NewHeader(60, 0, 1), "app", "date"))

	// closing the handle underneath makes the final flush fail; the error
	// must surface instead of being dropped with the buffered tail
	require.NoError(t, f.Close())
	assert.Error(t, w.CloseTarget())

	// the target was still released
	assert.Equal(t, ErrNotReady, w.CloseTarget())
}

func TestWriterStateWriteBack(t *testing.T) {
	tr := replay.New()
	ctx := stream.Message(stream.TagCtx, stream.CtxMessage{Flags: stream.CtxCreate, Ctx: 1, Width: 640, Height: 480}.Marshal())
	tr.Absorb(ctx)

	path := filepath.Join(t.TempDir(), "out.cap")
	w := NewWriter(WriterConfig{Tracker: tr})
	require.NoError(t, w.OpenTarget(path))
	require.NoError(t, w.WriteHeader(stream.NewHeader(60, 0, 1), "a", "b"))
	require.NoError(t, w.WriteState())
	require.NoError(t, w.WriteEOF())
	require.NoError(t, w.CloseTarget())

	raw, err := ioutil.ReadFile(path)
	require.NoError(t, err)
	body := raw[stream.HeaderSize+2+2:]

	// framed ctx message first
	require.Equal(t, uint64(1+stream.CtxMessageSize), stream.ByteOrdering.Uint64(body[:stream.SizeFieldSize]))
	require.Equal(t, stream.TagCtx, body[stream.SizeFieldSize])
	got, err := stream.ParseCtxMessage(body[stream.SizeFieldSize+1 : stream.SizeFieldSize+1+stream.CtxMessageSize])
	require.NoError(t, err)
	assert.Equal(t, uint32(640), got.Width)
}
