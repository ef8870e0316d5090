package audit

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/fsnotify/fsnotify"
)

// Follow calls fn for every entry appended to the log at path after Follow
// starts. It blocks until ctx is cancelled.
func Follow(ctx context.Context, path string, fn func(Entry)) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("opening audit log: %w", err)
	}
	defer f.Close()

	offset, err := f.Seek(0, io.SeekEnd)
	if err != nil {
		return fmt.Errorf("seeking audit log: %w", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	if err := watcher.Add(path); err != nil {
		return err
	}

	slog.Debug("following audit log", "path", path)

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Op&fsnotify.Write == 0 {
				continue
			}
			offset, err = drain(f, offset, fn)
			if err != nil {
				return err
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			slog.Error("audit log watcher error", "error", err)
		}
	}
}

// drain emits the complete lines written since offset and returns the offset
// of the first byte not yet consumed.
func drain(f *os.File, offset int64, fn func(Entry)) (int64, error) {
	info, err := f.Stat()
	if err != nil {
		return offset, fmt.Errorf("stat audit log: %w", err)
	}
	if info.Size() < offset {
		// Truncated; start over.
		offset = 0
	}
	if info.Size() == offset {
		return offset, nil
	}

	buf := make([]byte, info.Size()-offset)
	n, err := f.ReadAt(buf, offset)
	if err != nil && err != io.EOF {
		return offset, fmt.Errorf("reading audit log: %w", err)
	}
	buf = buf[:n]

	end := bytes.LastIndexByte(buf, '\n')
	if end < 0 {
		return offset, nil
	}
	entries, err := Decode(bytes.NewReader(buf[:end+1]))
	if err != nil {
		return offset, err
	}
	for _, e := range entries {
		fn(e)
	}
	return offset + int64(end+1), nil
}
