package state

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"

	"github.com/BCCDC-PHL/qc-collector/internal/durable"
	"github.com/BCCDC-PHL/qc-collector/internal/model"
)

// FileStore keeps Known as a JSON document.
type FileStore struct {
	path  string
	write func(path string, data []byte, perm fs.FileMode) error
}

func NewFileStore(path string) *FileStore {
	return &FileStore{
		path:  path,
		write: durable.WriteFile,
	}
}

// Load returns an empty set when the file does not exist yet. Any other
// problem is model.ErrCorruptState: treating an unreadable state as empty
// would re-report every run.
func (s *FileStore) Load(ctx context.Context) (Known, error) {
	if err := ctx.Err(); err != nil {
		return Known{}, err
	}
	b, err := os.ReadFile(s.path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return NewKnown(), nil
	case err != nil:
		return Known{}, fmt.Errorf("%w: reading %s: %w", model.ErrCorruptState, s.path, err)
	}

	var known Known
	dec := json.NewDecoder(bytes.NewReader(b))
	if err := dec.Decode(&known); err != nil {
		return Known{}, fmt.Errorf("%w: decoding %s: %w", model.ErrCorruptState, s.path, err)
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		return Known{}, fmt.Errorf("%w: decoding %s: trailing content", model.ErrCorruptState, s.path)
	}
	return known, nil
}

func (s *FileStore) Save(ctx context.Context, known Known) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %w", model.ErrStatePersistence, err)
	}
	b, err := json.MarshalIndent(known, "", "  ")
	if err != nil {
		return fmt.Errorf("%w: encoding: %w", model.ErrStatePersistence, err)
	}
	b = append(b, '\n')
	if err := s.write(s.path, b, 0o644); err != nil {
		return fmt.Errorf("%w: %w", model.ErrStatePersistence, err)
	}
	return nil
}
