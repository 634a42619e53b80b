package destination

import (
	"errors"
	"io"
	"os"
	"path/filepath"

	"github.com/kamazee/vcutil/pkg/vcerrors"
)

// Handle is an open destination. Only its owner writes to it.
type Handle interface {
	Name() string
	// WriteLine appends one complete record.
	WriteLine(line []byte) error
	// Sync makes everything written so far durable.
	Sync() error
	Close() error
}

// Opener opens destinations for append. created reports that the
// destination did not exist or was empty, so it still needs a header.
type Opener interface {
	OpenAppend(name string) (h Handle, created bool, err error)
}

// FileOpener opens local files. Relative names resolve against Root; an
// empty Root means the working directory.
type FileOpener struct {
	Root string
	// Perm is used for new files; zero means 0o644.
	Perm os.FileMode
}

// Path returns the filesystem path of a destination name.
func (o FileOpener) Path(name string) string {
	if o.Root == "" || filepath.IsAbs(name) {
		return name
	}
	return filepath.Join(o.Root, name)
}

// OpenAppend implements Opener.
func (o FileOpener) OpenAppend(name string) (Handle, bool, error) {
	path := o.Path(name)
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, false, fileErr(err, "failed to create destination directory", name)
		}
	}

	perm := o.Perm
	if perm == 0 {
		perm = 0o644
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_APPEND|os.O_CREATE, perm)
	if err != nil {
		return nil, false, fileErr(err, "failed to open destination", name)
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, false, fileErr(err, "failed to stat destination", name)
	}

	enc, err := newEncoder(CompressionFor(name), f)
	if err != nil {
		_ = f.Close()
		return nil, false, fileErr(err, "failed to start compressor", name)
	}
	return &fileHandle{name: name, f: f, enc: enc}, info.Size() == 0, nil
}

type fileHandle struct {
	name string
	f    *os.File
	enc  encoder
}

func (h *fileHandle) Name() string { return h.name }

func (h *fileHandle) WriteLine(line []byte) error {
	if _, err := h.enc.Write(line); err != nil {
		return fileErr(err, "failed to write record", h.name)
	}
	return nil
}

func (h *fileHandle) Sync() error {
	if err := h.enc.Flush(); err != nil {
		return fileErr(err, "failed to flush destination", h.name)
	}
	if err := h.f.Sync(); err != nil {
		return fileErr(err, "failed to sync destination", h.name)
	}
	return nil
}

func (h *fileHandle) Close() error {
	encErr := h.enc.Close()
	syncErr := h.f.Sync()
	closeErr := h.f.Close()
	if err := errors.Join(encErr, syncErr, closeErr); err != nil {
		return fileErr(err, "failed to close destination", h.name)
	}
	return nil
}

// OpenRead opens a destination for reading, decompressing by extension.
func OpenRead(path string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fileErr(err, "failed to open destination", path)
	}
	dec, err := newDecoder(CompressionFor(path), f)
	if err != nil {
		_ = f.Close()
		return nil, fileErr(err, "failed to start decompressor", path)
	}
	return &Reader{ReadCloser: dec, f: f}, nil
}

// Reader is a decompressed view of a destination.
type Reader struct {
	io.ReadCloser
	f *os.File
}

// Close closes the decompressor and the file.
func (r *Reader) Close() error {
	return errors.Join(r.ReadCloser.Close(), r.f.Close())
}

func fileErr(err error, msg, name string) error {
	return vcerrors.Wrap(err, vcerrors.ErrorTypeFile, msg).WithDetail("destination", name)
}
