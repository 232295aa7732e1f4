// Package replay tracks durable stream state so a writer can make a fresh
// target self-describing without the original producers re-emitting their
// declarations.
package replay

import (
	"sort"
	"sync"

	"github.com/qvisor/capstream/internal/stream"
)

// Tracker remembers the latest picture context, audio format and color
// correction declarations seen on a stream, keyed by their context or audio
// stream index.
type Tracker struct {
	mu      sync.Mutex
	ctxs    map[int32][]byte
	formats map[int32][]byte
	colors  map[int32][]byte
}

func New() *Tracker {
	return &Tracker{
		ctxs:    make(map[int32][]byte),
		formats: make(map[int32][]byte),
		colors:  make(map[int32][]byte),
	}
}

// Absorb updates tracked state if msg carries a durable declaration.
// Other message types are ignored; Absorb never fails the caller.
func (t *Tracker) Absorb(msg []byte) {
	if len(msg) == 0 {
		return
	}
	payload := msg[1:]
	switch msg[0] {
	case stream.TagCtx:
		m, err := stream.ParseCtxMessage(payload)
		if err != nil {
			return
		}
		t.store(t.ctxs, m.Ctx, msg)
	case stream.TagAudioFormat:
		m, err := stream.ParseAudioFormatMessage(payload)
		if err != nil {
			return
		}
		t.store(t.formats, m.Stream, msg)
	case stream.TagColor:
		m, err := stream.ParseColorMessage(payload)
		if err != nil {
			return
		}
		t.store(t.colors, m.Ctx, msg)
	}
}

func (t *Tracker) store(m map[int32][]byte, key int32, msg []byte) {
	cp := make([]byte, len(msg))
	copy(cp, msg)
	t.mu.Lock()
	m[key] = cp
	t.mu.Unlock()
}

// Replay calls emit once per tracked state item: picture contexts first, then
// audio formats, then colors, each in ascending index order. It stops at and
// returns the first emit failure.
func (t *Tracker) Replay(emit func(msg []byte) error) error {
	t.mu.Lock()
	ordered := make([][]byte, 0, len(t.ctxs)+len(t.formats)+len(t.colors))
	for _, m := range []map[int32][]byte{t.ctxs, t.formats, t.colors} {
		keys := make([]int32, 0, len(m))
		for k := range m {
			keys = append(keys, k)
		}
		sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
		for _, k := range keys {
			ordered = append(ordered, m[k])
		}
	}
	t.mu.Unlock()

	for _, msg := range ordered {
		if err := emit(msg); err != nil {
			return err
		}
	}
	return nil
}
