package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
)

var ErrInvalidName = errors.New("invalid file name")

// Local keeps uploads in a directory and addresses them as baseURL/<name>.
type Local struct {
	dir     string
	baseURL string
}

func NewLocal(dir, baseURL string) *Local {
	return &Local{dir: dir, baseURL: strings.TrimRight(baseURL, "/")}
}

// EnsureDir creates the upload directory.
func (l *Local) EnsureDir() error {
	if err := os.MkdirAll(l.dir, 0o755); err != nil {
		return fmt.Errorf("create upload directory: %w", err)
	}
	return nil
}

// Save writes data under name through a temp file so readers never see a
// partial upload.
func (l *Local) Save(ctx context.Context, name string, data []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if !validName(name) {
		return "", fmt.Errorf("%w: %q", ErrInvalidName, name)
	}

	tmp, err := os.CreateTemp(l.dir, ".upload-*")
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return "", fmt.Errorf("write upload: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("close upload: %w", err)
	}
	if err := os.Rename(tmp.Name(), filepath.Join(l.dir, name)); err != nil {
		return "", fmt.Errorf("move upload: %w", err)
	}
	return l.baseURL + "/" + name, nil
}

// Load reads a file previously returned by Save.
func (l *Local) Load(ctx context.Context, url string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	name := path.Base(url)
	if !strings.HasPrefix(url, l.baseURL+"/") || !validName(name) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidName, url)
	}
	data, err := os.ReadFile(filepath.Join(l.dir, name))
	if err != nil {
		return nil, fmt.Errorf("read upload: %w", err)
	}
	return data, nil
}

// Dir is the directory served at baseURL.
func (l *Local) Dir() string {
	return l.dir
}

func validName(name string) bool {
	return name != "" && name != "." && name != ".." &&
		!strings.ContainsAny(name, `/\`) && !strings.HasPrefix(name, ".")
}
