// Package durable writes files so that readers see either the previous or the
// new content, never a partial one: data goes to a temporary file in the
// target directory, which is synced, renamed over the target and followed by
// a sync of the directory.
package durable

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// ErrNotSynced is returned by Commit when the target was replaced, but the
// directory entry could not be synced. Readers already see the new content.
var ErrNotSynced = errors.New("replaced but not synced")

// StaleAfter is the age after which a leftover temporary file of a target is
// removed by Stage.
var StaleAfter = time.Hour

// syncFile and syncDir are replaced in tests to simulate a failing disk
var (
	syncFile = func(f *os.File) error {
		return f.Sync()
	}
	syncDir = fsyncDir
)

// Staged is a fully written and synced temporary file waiting to replace its target.
type Staged struct {
	tmp    string
	target string
	done   bool
}

// Stage writes data into a temporary file next to path. The target itself is
// not touched until Commit.
func Stage(path string, data []byte, perm fs.FileMode) (*Staged, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}

	sweep(dir, tmpPrefix(path), time.Now().Add(-StaleAfter))

	tmp, err := os.CreateTemp(dir, tmpPrefix(path)+"*")
	if err != nil {
		return nil, err
	}
	staged := &Staged{tmp: tmp.Name(), target: path}

	err = func() error {
		if _, err := tmp.Write(data); err != nil {
			return err
		}
		if err := tmp.Chmod(perm); err != nil {
			return err
		}
		return syncFile(tmp)
	}()
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(staged.tmp)
		return nil, fmt.Errorf("staging %s: %w", path, err)
	}
	return staged, nil
}

// Commit atomically replaces the target with the staged file.
func (s *Staged) Commit() error {
	if s.done {
		return errors.New("staged file already committed or discarded")
	}
	if err := os.Rename(s.tmp, s.target); err != nil {
		_ = s.Discard()
		return fmt.Errorf("replacing %s: %w", s.target, err)
	}
	s.done = true
	if err := syncDir(filepath.Dir(s.target)); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrNotSynced, s.target, err)
	}
	return nil
}

// Discard removes the staged file. It is a no-op after Commit.
func (s *Staged) Discard() error {
	if s.done {
		return nil
	}
	s.done = true
	err := os.Remove(s.tmp)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}

// Target is the path the staged file replaces.
func (s *Staged) Target() string {
	return s.target
}

// WriteFile is Stage followed by Commit.
func WriteFile(path string, data []byte, perm fs.FileMode) error {
	staged, err := Stage(path, data, perm)
	if err != nil {
		return err
	}
	return staged.Commit()
}

func tmpPrefix(path string) string {
	return "." + filepath.Base(path) + ".tmp."
}

// sweep removes temporary files left behind by a crash between Stage and
// Commit. Files modified after cutoff may belong to a writer still running.
func sweep(dir, prefix string, cutoff time.Time) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return
	}
	for _, e := range entries {
		if e.IsDir() || !strings.HasPrefix(e.Name(), prefix) {
			continue
		}
		info, err := e.Info()
		if err != nil || info.ModTime().After(cutoff) {
			continue
		}
		_ = os.Remove(filepath.Join(dir, e.Name()))
	}
}

func fsyncDir(dir string) error {
	f, err := os.Open(dir)
	if err != nil {
		return err
	}
	defer func() {
		_ = f.Close()
	}()
	return f.Sync()
}
