package main

import (
	"fmt"
	"os"

	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"

	"github.com/qvisor/capstream/internal/catalog"
	"github.com/qvisor/capstream/internal/engine"
	"github.com/qvisor/capstream/internal/httpd"
	"github.com/qvisor/capstream/internal/queue"
	"github.com/qvisor/capstream/internal/stream"
)

var tagNames = map[byte]string{
	stream.TagClose:       "close",
	stream.TagPicture:     "picture",
	stream.TagCtx:         "ctx",
	stream.TagLZO:         "lzo",
	stream.TagAudioFormat: "audio-format",
	stream.TagAudio:       "audio",
	stream.TagQuickLZ:     "quicklz",
	stream.TagColor:       "color",
	stream.TagContainer:   "container",
}

func main() {
	app := &cli.App{
		Name:  "capstream",
		Usage: "inspect and repack capture stream containers",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "verbose", Usage: "enable debug logging"},
		},
		Before: func(c *cli.Context) error {
			if c.Bool("verbose") {
				log.SetLevel(log.DebugLevel)
			}
			return nil
		},
		Commands: []*cli.Command{
			{
				Name:      "info",
				Usage:     "print the stream header of a container file",
				ArgsUsage: "FILE",
				Action:    runInfo,
			},
			{
				Name:      "dump",
				Usage:     "walk a container file and list its messages",
				ArgsUsage: "FILE",
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "mmap", Usage: "read through a memory mapping"},
				},
				Action: runDump,
			},
			{
				Name:      "repack",
				Usage:     "read a container file and rewrite it as a current-version stream",
				ArgsUsage: "SRC DST",
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "sync", Usage: "flush to storage after every message"},
					&cli.BoolFlag{Name: "mmap", Usage: "read the source through a memory mapping"},
					&cli.StringFlag{Name: "data-dir", Value: ".", Usage: "directory holding the recording catalog"},
				},
				Action: runRepack,
			},
			{
				Name:  "serve",
				Usage: "serve the recording catalog over HTTP",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "data-dir", Value: ".", Usage: "directory holding the recording catalog"},
					&cli.StringFlag{Name: "addr", Value: ":8750", Usage: "listen address"},
				},
				Action: runServe,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func runInfo(c *cli.Context) error {
	if c.NArg() != 1 {
		return cli.ShowSubcommandHelp(c)
	}
	r := engine.NewReader(engine.ReaderConfig{})
	if err := r.OpenSource(c.Args().Get(0)); err != nil {
		return err
	}
	defer r.CloseSource()

	h, name, date, err := r.ReadHeader()
	if err != nil {
		return err
	}
	fmt.Printf("signature:  0x%08x\n", h.Signature)
	fmt.Printf("version:    0x%02x\n", h.Version)
	fmt.Printf("fps:        %g\n", h.FPS)
	fmt.Printf("flags:      0x%08x\n", h.Flags)
	fmt.Printf("pid:        %d\n", h.Pid)
	fmt.Printf("name:       %s\n", name)
	fmt.Printf("date:       %s\n", date)
	return nil
}

func runDump(c *cli.Context) error {
	if c.NArg() != 1 {
		return cli.ShowSubcommandHelp(c)
	}
	r := engine.NewReader(engine.ReaderConfig{UseMmap: c.Bool("mmap")})
	if err := r.OpenSource(c.Args().Get(0)); err != nil {
		return err
	}
	defer r.CloseSource()
	if _, _, _, err := r.ReadHeader(); err != nil {
		return err
	}

	q := queue.New(queue.Opts{})
	readErr := make(chan error, 1)
	go func() { readErr <- r.Read(q) }()

	n := 0
	for {
		s, err := q.Next()
		if err != nil {
			break
		}
		b := s.Bytes()
		tag := b[0]
		name, ok := tagNames[tag]
		if !ok {
			name = fmt.Sprintf("0x%02x", tag)
		}
		fmt.Printf("%6d  %-12s %8d bytes\n", n, name, len(b)-1)
		n++
		q.Release(s)
		if tag == stream.TagClose {
			break
		}
	}
	if err := <-readErr; err != nil {
		return err
	}
	fmt.Printf("%d messages\n", n)
	return nil
}

func runRepack(c *cli.Context) error {
	if c.NArg() != 2 {
		return cli.ShowSubcommandHelp(c)
	}
	src, dst := c.Args().Get(0), c.Args().Get(1)

	r := engine.NewReader(engine.ReaderConfig{UseMmap: c.Bool("mmap")})
	if err := r.OpenSource(src); err != nil {
		return err
	}
	defer r.CloseSource()
	h, name, date, err := r.ReadHeader()
	if err != nil {
		return err
	}

	policy := engine.NoSync
	if c.Bool("sync") {
		policy = engine.AlwaysSync
	}
	w := engine.NewWriter(engine.WriterConfig{SyncPolicy: policy})
	if err := w.OpenTarget(dst); err != nil {
		return err
	}
	defer w.CloseTarget()

	// the target is always written in the current version, whatever the
	// source declared
	h.Version = stream.VersionCurrent
	if err := w.WriteHeader(h, name, date); err != nil {
		return err
	}

	q := queue.New(queue.Opts{})
	if err := w.Start(q); err != nil {
		return err
	}
	if err := r.Read(q); err != nil {
		w.Wait()
		return err
	}
	if err := w.Wait(); err != nil {
		return err
	}
	if err := w.CloseTarget(); err != nil {
		return err
	}

	cat, err := catalog.Open(c.String("data-dir"))
	if err != nil {
		return err
	}
	defer cat.Close()
	info, err := os.Stat(dst)
	if err != nil {
		return err
	}
	rec, err := cat.Add(catalog.Recording{
		Path: dst,
		Name: name,
		Date: date,
		FPS:  h.FPS,
		Pid:  h.Pid,
		Size: info.Size(),
	})
	if err != nil {
		return err
	}
	log.WithFields(log.Fields{"id": rec.ID, "file": dst}).Info("repacked stream registered")
	return nil
}

func runServe(c *cli.Context) error {
	cat, err := catalog.Open(c.String("data-dir"))
	if err != nil {
		return err
	}
	defer cat.Close()
	return httpd.NewServer(cat).ListenAndServe(c.String("addr"))
}
