// Package publish moves finalized aggregates to where they are kept.
package publish

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"syscall"
)

// Sink publishes one file and returns where it now lives.
type Sink interface {
	Publish(ctx context.Context, path string) (string, error)
}

// DirSink moves files into Dir. Files already there with the same name are
// replaced; nothing else in Dir is touched.
type DirSink struct {
	Dir string
}

func (s DirSink) Publish(_ context.Context, path string) (string, error) {
	if err := os.MkdirAll(s.Dir, 0o755); err != nil {
		return "", fmt.Errorf("creating data dir: %w", err)
	}
	dst := filepath.Join(s.Dir, filepath.Base(path))
	err := os.Rename(path, dst)
	if errors.Is(err, syscall.EXDEV) {
		err = moveAcross(path, dst)
	}
	if err != nil {
		return "", fmt.Errorf("moving %s to %s: %w", path, s.Dir, err)
	}
	return dst, nil
}

func moveAcross(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}
	return os.Remove(src)
}

// Chain publishes through each sink in turn, handing every sink the
// location returned by the previous one.
type Chain []Sink

func (c Chain) Publish(ctx context.Context, path string) (string, error) {
	for _, s := range c {
		next, err := s.Publish(ctx, path)
		if err != nil {
			return path, err
		}
		path = next
	}
	return path, nil
}
