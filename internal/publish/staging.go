package publish

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

var ErrInvalidMediaName = errors.New("invalid media file name")

// stage copies ref into dir when it names an existing absolute file and
// returns the staged path. Anything else (URLs, relative names) is returned
// unchanged for the uploader to resolve.
func stage(dir, ref string) (string, error) {
	if dir == "" || !filepath.IsAbs(ref) {
		return ref, nil
	}
	fi, err := os.Stat(ref)
	if err != nil || fi.IsDir() {
		return ref, nil
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return "", fmt.Errorf("create media dir: %w", err)
	}
	dst := filepath.Join(dir, strings.ReplaceAll(uuid.NewString(), "-", "")+"_"+filepath.Base(ref))
	if err := copyFile(ref, dst); err != nil {
		return "", fmt.Errorf("stage %s: %w", filepath.Base(ref), err)
	}
	return dst, nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src) // #nosec G304 -- caller-provided local media
	if err != nil {
		return err
	}
	defer func() { _ = in.Close() }()
	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_EXCL, 0o640) // #nosec G304
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		_ = os.Remove(dst)
		return err
	}
	return out.Close()
}

// MediaStore holds uploaded media files under one directory.
type MediaStore struct {
	dir string
}

func NewMediaStore(dir string) *MediaStore { return &MediaStore{dir: dir} }

// Save writes an uploaded file as <uuid><ext> and returns the stored name
// and its absolute path.
func (m *MediaStore) Save(fh *multipart.FileHeader) (string, string, error) {
	src, err := fh.Open()
	if err != nil {
		return "", "", err
	}
	defer func() { _ = src.Close() }()
	if err := os.MkdirAll(m.dir, 0o750); err != nil {
		return "", "", err
	}
	name := uuid.NewString() + strings.ToLower(filepath.Ext(fh.Filename))
	path := filepath.Join(m.dir, name)
	out, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_EXCL, 0o640) // #nosec G304
	if err != nil {
		return "", "", err
	}
	if _, err := io.Copy(out, src); err != nil {
		_ = out.Close()
		_ = os.Remove(path)
		return "", "", err
	}
	if err := out.Close(); err != nil {
		return "", "", err
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}
	return name, abs, nil
}

// Path resolves a stored file name, rejecting anything that could escape
// the media directory.
func (m *MediaStore) Path(name string) (string, error) {
	if name == "" || strings.Contains(name, "..") || strings.ContainsAny(name, `/\`) {
		return "", ErrInvalidMediaName
	}
	p := filepath.Join(m.dir, name)
	fi, err := os.Stat(p)
	if err != nil {
		return "", err
	}
	if fi.IsDir() {
		return "", ErrInvalidMediaName
	}
	return p, nil
}
