// Package sofile loads shared objects from, and stores them to, an
// afero.Fs. Inputs may be gzip or zstd compressed; outputs are written to a
// temporary file and renamed into place so that a failed conversion never
// leaves a partial file behind.
package sofile

import (
	"bytes"
	"io"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/pkg/errors"
	"github.com/spf13/afero"
)

type Compression uint8

const (
	None Compression = iota
	Gzip
	Zstd
)

func (c Compression) String() string {
	switch c {
	case Gzip:
		return "gzip"
	case Zstd:
		return "zstd"
	default:
		return "none"
	}
}

var (
	gzipMagic = []byte{0x1f, 0x8b}
	zstdMagic = []byte{0x28, 0xb5, 0x2f, 0xfd}
)

// Detect looks at the magic bytes of data.
func Detect(data []byte) Compression {
	switch {
	case bytes.HasPrefix(data, gzipMagic):
		return Gzip
	case bytes.HasPrefix(data, zstdMagic):
		return Zstd
	}
	return None
}

// Decompress returns data unchanged unless it is gzip or zstd compressed.
func Decompress(data []byte) ([]byte, Compression, error) {
	c := Detect(data)
	switch c {
	case Gzip:
		r, err := gzip.NewReader(bytes.NewReader(data))
		if err != nil {
			return nil, c, errors.Wrap(err, "create gzip reader")
		}
		defer r.Close()
		res, err := io.ReadAll(r)
		if err != nil {
			return nil, c, errors.Wrap(err, "decompress gzip data")
		}
		return res, c, nil
	case Zstd:
		r, err := zstd.NewReader(bytes.NewReader(data))
		if err != nil {
			return nil, c, errors.Wrap(err, "create zstd reader")
		}
		defer r.Close()
		res, err := io.ReadAll(r)
		if err != nil {
			return nil, c, errors.Wrap(err, "decompress zstd data")
		}
		return res, c, nil
	}
	return data, None, nil
}

// Compress encodes data with c.
func Compress(data []byte, c Compression) ([]byte, error) {
	var buf bytes.Buffer
	switch c {
	case Gzip:
		w := gzip.NewWriter(&buf)
		if _, err := w.Write(data); err != nil {
			return nil, errors.Wrap(err, "compress gzip data")
		}
		if err := w.Close(); err != nil {
			return nil, errors.Wrap(err, "compress gzip data")
		}
	case Zstd:
		w, err := zstd.NewWriter(&buf)
		if err != nil {
			return nil, errors.Wrap(err, "create zstd writer")
		}
		if _, err = w.Write(data); err != nil {
			w.Close()
			return nil, errors.Wrap(err, "compress zstd data")
		}
		if err = w.Close(); err != nil {
			return nil, errors.Wrap(err, "compress zstd data")
		}
	default:
		return data, nil
	}
	return buf.Bytes(), nil
}

// File is a loaded shared object.
type File struct {
	Path        string
	Data        []byte
	Compression Compression
	Mode        os.FileMode
	// StoredSize is the size on disk, before decompression.
	StoredSize int64
}

func Load(fs afero.Fs, path string) (*File, error) {
	fi, err := fs.Stat(path)
	if err != nil {
		return nil, errors.Wrapf(err, "stat %s", path)
	}
	if fi.IsDir() {
		return nil, errors.Errorf("%s is a directory", path)
	}
	raw, err := afero.ReadFile(fs, path)
	if err != nil {
		return nil, errors.Wrapf(err, "read %s", path)
	}
	data, c, err := Decompress(raw)
	if err != nil {
		return nil, errors.Wrapf(err, "read %s", path)
	}
	return &File{
		Path:        path,
		Data:        data,
		Compression: c,
		Mode:        fi.Mode().Perm(),
		StoredSize:  int64(len(raw)),
	}, nil
}

// Store writes data to path, compressed with c, through a temporary file in
// the same directory.
func Store(fs afero.Fs, path string, data []byte, c Compression, mode os.FileMode) (err error) {
	if mode == 0 {
		mode = 0o644
	}
	encoded, err := Compress(data, c)
	if err != nil {
		return err
	}
	dir := filepath.Dir(path)
	if err = fs.MkdirAll(dir, 0o755); err != nil {
		return errors.Wrapf(err, "create %s", dir)
	}
	tmp, err := afero.TempFile(fs, dir, "."+filepath.Base(path)+".tmp*")
	if err != nil {
		return errors.Wrap(err, "create temporary file")
	}
	defer func() {
		if err != nil {
			_ = fs.Remove(tmp.Name())
		}
	}()
	if _, err = tmp.Write(encoded); err != nil {
		tmp.Close()
		return errors.Wrapf(err, "write %s", tmp.Name())
	}
	if err = tmp.Close(); err != nil {
		return errors.Wrapf(err, "close %s", tmp.Name())
	}
	if err = fs.Chmod(tmp.Name(), mode); err != nil {
		return errors.Wrapf(err, "chmod %s", tmp.Name())
	}
	if err = fs.Rename(tmp.Name(), path); err != nil {
		return errors.Wrapf(err, "rename %s to %s", tmp.Name(), path)
	}
	return nil
}
