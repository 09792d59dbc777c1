package trace

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// Follower tails a growing NDJSON trace file, emitting each appended
// record. Existing content is emitted first.
type Follower struct {
	path      string
	fsWatcher *fsnotify.Watcher

	offset  int64
	partial []byte

	records chan Record
	errors  chan error

	done chan struct{}
	once sync.Once
	wg   sync.WaitGroup
}

// Follow opens path and starts emitting its records, then watches for
// appends. Truncation restarts from the beginning of the file.
func Follow(path string) (*Follower, error) {
	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fsWatcher.Add(filepath.Dir(path)); err != nil {
		fsWatcher.Close()
		return nil, fmt.Errorf("watch %s: %w", path, err)
	}

	f := &Follower{
		path:      path,
		fsWatcher: fsWatcher,
		records:   make(chan Record, 100),
		errors:    make(chan error, 10),
		done:      make(chan struct{}),
	}

	f.wg.Add(1)
	go f.run()
	return f, nil
}

// Records returns the channel of replayed records.
func (f *Follower) Records() <-chan Record {
	return f.records
}

// Errors returns the channel of read/validation errors.
func (f *Follower) Errors() <-chan error {
	return f.errors
}

// Close stops following and closes the record channel.
func (f *Follower) Close() error {
	f.once.Do(func() { close(f.done) })
	err := f.fsWatcher.Close()
	f.wg.Wait()
	return err
}

func (f *Follower) run() {
	defer f.wg.Done()
	defer close(f.records)

	// Drain whatever is already on disk before watching for appends.
	f.consume()

	for {
		select {
		case <-f.done:
			return
		case ev, ok := <-f.fsWatcher.Events:
			if !ok {
				return
			}
			if ev.Name != f.path {
				continue
			}
			if ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create) {
				f.consume()
			}
		case err, ok := <-f.fsWatcher.Errors:
			if !ok {
				return
			}
			f.reportError(err)
		}
	}
}

// consume reads from the last offset to EOF, emitting complete lines and
// holding back a trailing partial line until more bytes arrive.
func (f *Follower) consume() {
	file, err := os.Open(f.path)
	if err != nil {
		if !os.IsNotExist(err) {
			f.reportError(err)
		}
		return
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		f.reportError(err)
		return
	}
	if info.Size() < f.offset {
		// Truncated; start over.
		f.offset = 0
		f.partial = nil
	}

	if _, err := file.Seek(f.offset, io.SeekStart); err != nil {
		f.reportError(err)
		return
	}

	reader := bufio.NewReader(file)
	for {
		chunk, err := reader.ReadBytes('\n')
		f.offset += int64(len(chunk))

		if err != nil {
			// No newline yet; keep the fragment for the next write.
			f.partial = append(f.partial, chunk...)
			if err != io.EOF {
				f.reportError(err)
			}
			return
		}

		line := append(f.partial, chunk...)
		f.partial = nil

		line = bytes.TrimSpace(line)
		if len(line) == 0 {
			continue
		}

		rec, perr := ParseLine(line)
		if perr != nil {
			f.reportError(perr)
			continue
		}

		select {
		case f.records <- rec:
		case <-f.done:
			return
		}
	}
}

func (f *Follower) reportError(err error) {
	select {
	case f.errors <- err:
	default:
	}
}
