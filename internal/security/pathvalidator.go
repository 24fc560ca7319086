package security

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

var (
	ErrPathEscapes  = errors.New("path escapes directory")
	ErrAbsolutePath = errors.New("absolute paths are not allowed")
	ErrEmptyPath    = errors.New("empty path not allowed")
)

// PathValidator confines key file operations to one directory using the
// os.Root API, so a crafted name can never write outside it.
type PathValidator struct {
	root *os.Root
	dir  string
}

// New opens dir as the confinement root
func New(dir string) (*PathValidator, error) {
	absPath, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to get absolute path: %w", err)
	}

	root, err := os.OpenRoot(absPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open directory: %w", err)
	}

	return &PathValidator{root: root, dir: absPath}, nil
}

// Close releases the root handle
func (pv *PathValidator) Close() error {
	if pv.root != nil {
		return pv.root.Close()
	}
	return nil
}

// Root returns the absolute confinement directory
func (pv *PathValidator) Root() string { return pv.dir }

// ValidateAndNormalize returns userPath as a clean slash-separated path
// relative to the root. Empty, absolute and escaping paths are rejected,
// as are names filepath.IsLocal refuses (reserved device names on Windows).
func (pv *PathValidator) ValidateAndNormalize(userPath string) (string, error) {
	if userPath == "" {
		return "", ErrEmptyPath
	}

	if !filepath.IsLocal(userPath) {
		if filepath.IsAbs(userPath) {
			return "", fmt.Errorf("%w: %s", ErrAbsolutePath, userPath)
		}
		return "", fmt.Errorf("%w: %s", ErrPathEscapes, userPath)
	}

	cleanPath := filepath.Clean(userPath)
	return filepath.ToSlash(cleanPath), nil
}

// Relative converts an absolute path into one relative to the root. It
// fails when path lies outside the root.
func (pv *PathValidator) Relative(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("failed to get absolute path: %w", err)
	}
	rel, err := filepath.Rel(pv.dir, abs)
	if err != nil {
		return "", fmt.Errorf("failed to compute relative path: %w", err)
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %s", ErrPathEscapes, path)
	}
	return pv.ValidateAndNormalize(rel)
}

// CreateFileInRoot writes a new file below the root. The parent directory
// must exist. It fails with an os.ErrExist error when the file exists.
func (pv *PathValidator) CreateFileInRoot(path string, data []byte, perm os.FileMode) error {
	rel, err := pv.ValidateAndNormalize(filepath.FromSlash(path))
	if err != nil {
		return fmt.Errorf("invalid path: %w", err)
	}
	platformPath := filepath.FromSlash(rel)

	f, err := pv.root.OpenFile(platformPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, perm)
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// ReadFileInRoot reads a file below the root
func (pv *PathValidator) ReadFileInRoot(path string) ([]byte, error) {
	rel, err := pv.ValidateAndNormalize(filepath.FromSlash(path))
	if err != nil {
		return nil, fmt.Errorf("invalid path: %w", err)
	}
	f, err := pv.root.Open(filepath.FromSlash(rel))
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(f)
}

// StatInRoot stats a file below the root
func (pv *PathValidator) StatInRoot(path string) (os.FileInfo, error) {
	rel, err := pv.ValidateAndNormalize(filepath.FromSlash(path))
	if err != nil {
		return nil, fmt.Errorf("invalid path: %w", err)
	}
	return pv.root.Stat(filepath.FromSlash(rel))
}
