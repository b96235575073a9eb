package sink

import (
	"context"
	"io"
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"
)

// StdoutPath selects standard output for the file sink.
const StdoutPath = "-"

// File writes the GeoJSON document to a path. Files are replaced atomically
// so readers never see a partial document.
type File struct {
	path   string
	stdout io.Writer
}

// NewFile creates a file sink. path "-" writes to stdout.
func NewFile(path string) *File {
	return &File{path: path, stdout: os.Stdout}
}

// Name implements Sink.
func (f *File) Name() string { return "file" }

// Submit implements Sink.
func (f *File) Submit(ctx context.Context, sub *Submission) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := sub.GeoJSON()
	if err != nil {
		return eris.Wrap(err, "file sink: encode")
	}
	data = append(data, '\n')

	if f.path == StdoutPath || f.path == "" {
		if _, err := f.stdout.Write(data); err != nil {
			return eris.Wrap(err, "file sink: write stdout")
		}
		return nil
	}
	return writeAtomic(f.path, data)
}

func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return eris.Wrapf(err, "sink: create dir %s", dir)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return eris.Wrap(err, "sink: create temp file")
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) //nolint:errcheck

	if _, err := tmp.Write(data); err != nil {
		tmp.Close() //nolint:errcheck
		return eris.Wrap(err, "sink: write temp file")
	}
	if err := tmp.Close(); err != nil {
		return eris.Wrap(err, "sink: close temp file")
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		return eris.Wrap(err, "sink: chmod")
	}
	if err := os.Rename(tmpName, path); err != nil {
		return eris.Wrapf(err, "sink: rename to %s", path)
	}
	return nil
}
