package engine

import (
	"bufio"
	"io"
	"os"

	"github.com/tysontate/gommap"
)

const readBufferSize = 64 * 1024

// source is the byte supplier behind a reader engine: either buffered
// sequential reads or a shared read-only memory mapping of the whole file.
type source interface {
	io.Reader
	Close() error
}

type fileSource struct {
	f  *os.File
	br *bufio.Reader
}

func newFileSource(f *os.File) *fileSource {
	return &fileSource{f: f, br: bufio.NewReaderSize(f, readBufferSize)}
}

func (s *fileSource) Read(p []byte) (int, error) {
	return s.br.Read(p)
}

func (s *fileSource) Close() error {
	return s.f.Close()
}

type mmapSource struct {
	f   *os.File
	m   gommap.MMap
	off int
}

func newMmapSource(f *os.File) (*mmapSource, error) {
	m, err := gommap.Map(f.Fd(), gommap.PROT_READ, gommap.MAP_SHARED)
	if err != nil {
		return nil, err
	}
	return &mmapSource{f: f, m: m}, nil
}

func (s *mmapSource) Read(p []byte) (int, error) {
	if s.off >= len(s.m) {
		return 0, io.EOF
	}
	n := copy(p, s.m[s.off:])
	s.off += n
	return n, nil
}

func (s *mmapSource) Close() error {
	defer s.f.Close()
	return s.m.UnsafeUnmap()
}
