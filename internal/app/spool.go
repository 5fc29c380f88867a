package app

import (
	"fmt"
	"io"
	"os"
	"strings"
)

// spool stages uploaded bytes on disk so extractors can read them by path.
type spool struct {
	dir      string
	maxBytes int64
}

func newSpool(dir string, maxBytes int64) (*spool, error) {
	if strings.TrimSpace(dir) == "" {
		dir = os.TempDir()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}
	return &spool{dir: dir, maxBytes: maxBytes}, nil
}

// write copies r into a new temp file with extension ext and returns its path.
// The caller removes the file. Content beyond maxBytes yields ErrFileTooLarge
// and leaves nothing behind.
func (s *spool) write(r io.Reader, ext string) (path string, err error) {
	tmp, err := os.CreateTemp(s.dir, "docqa-*"+ext)
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	defer func() {
		if cerr := tmp.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("close temp file: %w", cerr)
		}
		if err != nil {
			os.Remove(tmp.Name())
			path = ""
		}
	}()

	src := r
	if s.maxBytes > 0 {
		src = io.LimitReader(r, s.maxBytes+1)
	}
	n, err := io.Copy(tmp, src)
	if err != nil {
		return "", fmt.Errorf("write temp file: %w", err)
	}
	if s.maxBytes > 0 && n > s.maxBytes {
		return "", ErrFileTooLarge
	}
	return tmp.Name(), nil
}
