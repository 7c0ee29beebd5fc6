package frame

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zstd"
	"github.com/vmihailenco/msgpack/v5"
)

// File extensions understood by Read and Write.
const (
	ExtJSON   = "json"
	ExtBinary = "eve"
)

var eveMagic = []byte("EVE\x01")

// Ext returns the extension of path without the leading dot.
func Ext(path string) string {
	ext := filepath.Ext(path)
	if ext == "" {
		return ""
	}
	return ext[1:]
}

// Read loads a frame from path, choosing the codec by extension.
func Read(path string) (*Frame, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading frame %s: %w", path, err)
	}
	var f *Frame
	switch Ext(path) {
	case ExtJSON:
		f, err = UnmarshalJSON(data)
	case ExtBinary:
		f, err = UnmarshalBinary(data)
	default:
		return nil, fmt.Errorf("reading frame %s: unknown extension", path)
	}
	if err != nil {
		return nil, fmt.Errorf("reading frame %s: %w", path, err)
	}
	return f, nil
}

// Write stores f at path, choosing the codec by extension.
func (f *Frame) Write(path string) error {
	var (
		data []byte
		err  error
	)
	switch Ext(path) {
	case ExtJSON:
		data, err = json.MarshalIndent(f, "", "  ")
	case ExtBinary:
		data, err = f.MarshalBinary()
	default:
		return fmt.Errorf("writing frame %s: unknown extension", path)
	}
	if err != nil {
		return fmt.Errorf("encoding frame: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing frame %s: %w", path, err)
	}
	return nil
}

// UnmarshalJSON decodes a frame written as JSON.
func UnmarshalJSON(data []byte) (*Frame, error) {
	var f Frame
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, err
	}
	f.normalize()
	return &f, nil
}

// MarshalBinary encodes f as zstd-compressed msgpack behind a magic header.
// Map keys are sorted so equal frames encode to equal bytes.
func (f *Frame) MarshalBinary() ([]byte, error) {
	var buf bytes.Buffer
	enc := msgpack.NewEncoder(&buf)
	enc.SetSortMapKeys(true)
	if err := enc.Encode(f); err != nil {
		return nil, err
	}
	zw, err := zstd.NewWriter(nil)
	if err != nil {
		return nil, err
	}
	defer zw.Close()
	out := append([]byte(nil), eveMagic...)
	return zw.EncodeAll(buf.Bytes(), out), nil
}

// UnmarshalBinary decodes a frame written by MarshalBinary.
func UnmarshalBinary(data []byte) (*Frame, error) {
	if !bytes.HasPrefix(data, eveMagic) {
		return nil, fmt.Errorf("%w: missing binary header", ErrIncompatible)
	}
	zr, err := zstd.NewReader(nil)
	if err != nil {
		return nil, err
	}
	defer zr.Close()
	raw, err := zr.DecodeAll(data[len(eveMagic):], nil)
	if err != nil {
		return nil, fmt.Errorf("decompressing: %w", err)
	}
	var f Frame
	if err := msgpack.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("decoding: %w", err)
	}
	f.normalize()
	return &f, nil
}

func (f *Frame) normalize() {
	if f.Params == nil {
		f.Params = map[string]any{}
	}
	f.Params.Normalize()
	for _, s := range f.Slides {
		if s.Params == nil {
			s.Params = map[string]any{}
		}
		s.Params.Normalize()
		if s.Data == nil {
			s.Data = map[string][]Sample{}
		}
	}
}
