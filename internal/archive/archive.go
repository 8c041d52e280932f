// Package archive unpacks the zstd-compressed tar packages (.tzst) the
// resource service distributes.
package archive

import (
	"archive/tar"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/klauspost/compress/zstd"

	"github.com/infinite-dreams/igame-bootstrapper/internal/logging"
)

var log = logging.L("archive")

// Stage names the step of Extract that failed.
type Stage string

const (
	StageCreateDir  Stage = "create-dir"
	StageOpen       Stage = "open"
	StageDecompress Stage = "decompress"
	StageUnpack     Stage = "unpack"
)

type StageError struct {
	Stage Stage
	Path  string
	Err   error
}

func (e *StageError) Error() string {
	switch e.Stage {
	case StageCreateDir:
		return fmt.Sprintf("create directory %s: %v", e.Path, e.Err)
	case StageOpen:
		return fmt.Sprintf("open package %s: %v", e.Path, e.Err)
	case StageDecompress:
		return fmt.Sprintf("zstd decompress %s: %v", e.Path, e.Err)
	default:
		return fmt.Sprintf("tar unpack %s: %v", e.Path, e.Err)
	}
}

func (e *StageError) Unwrap() error { return e.Err }

// ErrUnsafePath is returned for entries that would land outside the
// destination directory.
var ErrUnsafePath = errors.New("archive entry escapes destination")

const randomDirAttempts = 16

// Extract unpacks the .tzst at archivePath into destDir, creating destDir
// first.
func Extract(archivePath, destDir string) error {
	if err := os.MkdirAll(destDir, 0755); err != nil {
		return &StageError{Stage: StageCreateDir, Path: destDir, Err: err}
	}

	f, err := os.Open(archivePath)
	if err != nil {
		return &StageError{Stage: StageOpen, Path: archivePath, Err: err}
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return &StageError{Stage: StageDecompress, Path: archivePath, Err: err}
	}
	defer dec.Close()

	src := &decodeReader{r: dec}
	if err := unpack(tar.NewReader(src), destDir); err != nil {
		if src.err != nil {
			return &StageError{Stage: StageDecompress, Path: archivePath, Err: src.err}
		}
		return &StageError{Stage: StageUnpack, Path: destDir, Err: err}
	}

	log.Debug("package extracted", logging.KeyPath, archivePath, "dest", destDir)
	return nil
}

// decodeReader remembers errors raised by the decompressor so they can be
// told apart from tar format errors.
type decodeReader struct {
	r   io.Reader
	err error
}

func (d *decodeReader) Read(p []byte) (int, error) {
	n, err := d.r.Read(p)
	if err != nil && !errors.Is(err, io.EOF) {
		d.err = err
	}
	return n, err
}

func unpack(tr *tar.Reader, destDir string) error {
	for {
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}

		name := filepath.FromSlash(strings.TrimPrefix(hdr.Name, "./"))
		if name == "" || name == "." {
			continue
		}
		if !filepath.IsLocal(name) {
			return fmt.Errorf("%w: %s", ErrUnsafePath, hdr.Name)
		}
		target := filepath.Join(destDir, name)

		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, 0755); err != nil {
				return err
			}
		case tar.TypeReg:
			if err := writeEntry(target, tr, fs.FileMode(hdr.Mode).Perm()|0600); err != nil {
				return err
			}
		default:
			log.Debug("skipping archive entry", "name", hdr.Name, "type", string(hdr.Typeflag))
		}
	}
}

func writeEntry(target string, r io.Reader, mode fs.FileMode) error {
	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return err
	}
	out, err := os.OpenFile(target, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, mode)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, r); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

// RandomDir creates and returns a fresh directory under parent with a
// random name. The directory is reserved with os.Mkdir so concurrent callers
// never receive the same path.
func RandomDir(parent string) (string, error) {
	var lastErr error
	for range randomDirAttempts {
		name := strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
		dir := filepath.Join(parent, name)
		err := os.Mkdir(dir, 0755)
		if err == nil {
			return dir, nil
		}
		if !errors.Is(err, fs.ErrExist) {
			return "", fmt.Errorf("create random directory in %s: %w", parent, err)
		}
		lastErr = err
	}
	return "", fmt.Errorf("no free random directory name in %s: %w", parent, lastErr)
}
