package logger

import (
	"os"
	"sync"

	"github.com/cockroachdb/errors"
)

// File is an append-only log file that keeps at most one rotated copy.
// When a write would grow the file past maxSize, the file is renamed to
// path+".1" (replacing an older copy) and a new file is started.
type File struct {
	mu      sync.Mutex
	path    string
	maxSize int64
	f       *os.File
	size    int64
}

// OpenFile opens path for appending. A maxSize of zero disables rotation.
func OpenFile(path string, maxSize int64) (*File, error) {
	if path == "" {
		return nil, errors.New("log file path is required")
	}
	lf := &File{path: path, maxSize: maxSize}
	if err := lf.open(); err != nil {
		return nil, err
	}
	return lf, nil
}

func (lf *File) open() error {
	f, err := os.OpenFile(lf.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return errors.Wrapf(err, "open log file %s", lf.path)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return errors.Wrapf(err, "stat log file %s", lf.path)
	}
	lf.f = f
	lf.size = info.Size()
	return nil
}

// Write implements io.Writer.
func (lf *File) Write(p []byte) (int, error) {
	lf.mu.Lock()
	defer lf.mu.Unlock()

	if lf.f == nil {
		return 0, os.ErrClosed
	}
	if lf.maxSize > 0 && lf.size > 0 && lf.size+int64(len(p)) > lf.maxSize {
		if err := lf.rotate(); err != nil {
			return 0, err
		}
	}
	n, err := lf.f.Write(p)
	lf.size += int64(n)
	return n, err
}

func (lf *File) rotate() error {
	if err := lf.f.Close(); err != nil {
		return errors.Wrap(err, "close log file")
	}
	lf.f = nil
	if err := os.Rename(lf.path, lf.path+".1"); err != nil {
		return errors.Wrap(err, "rotate log file")
	}
	return lf.open()
}

// Close implements io.Closer.
func (lf *File) Close() error {
	lf.mu.Lock()
	defer lf.mu.Unlock()

	if lf.f == nil {
		return nil
	}
	err := lf.f.Close()
	lf.f = nil
	return err
}
