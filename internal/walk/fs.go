package walk

import (
	"context"
	"fmt"
	"io/fs"
	"iter"
	"os"
	"path"
	"path/filepath"

	"github.com/BCCDC-PHL/qc-collector/internal/model"
)

// Root is a directory expected to contain run directories directly.
// Name is the absolute path of the root, it prefixes every Entry's Path().
type Root struct {
	Name string
	FS   fs.FS
}

// OSRoot returns a Root backed by os.DirFS. Unlike os.Root, it follows
// symlinks pointing outside of the root, which is how run folders are often
// linked into an analysis tree.
func OSRoot(name string) Root {
	return Root{Name: name, FS: os.DirFS(name)}
}

// RootError reports a root which can't be listed. It wraps model.ErrRootUnavailable.
type RootError struct {
	Root string
	Err  error
}

func (e *RootError) Error() string {
	return fmt.Sprintf("listing root %s: %v", e.Root, e.Err)
}

func (e *RootError) Unwrap() []error {
	return []error{model.ErrRootUnavailable, e.Err}
}

// Dirs lists immediate subdirectories of every root, in order of roots and then
// in lexical order of names. It does not recurse.
//
// A root which can't be listed yields a zero Entry and a *RootError. A
// subdirectory which can't be stat-ed yields its Entry and the error, so the
// caller can classify it. Symlinks are followed; anything that is not a
// directory is silently skipped.
func Dirs(ctx context.Context, roots ...Root) iter.Seq2[Entry, error] {
	return func(yield func(Entry, error) bool) {
		for _, root := range roots {
			if ctx.Err() != nil {
				return
			}
			if root.FS == nil {
				panic("root FS is nil")
			}
			dentries, err := fs.ReadDir(root.FS, ".")
			if err != nil {
				if !yield(Entry{}, &RootError{Root: root.Name, Err: err}) {
					return
				}
				continue
			}
			for _, d := range dentries {
				if ctx.Err() != nil {
					return
				}
				entry := Entry{root: root, name: d.Name()}
				isDir := d.IsDir()
				if d.Type()&fs.ModeSymlink != 0 {
					info, err := fs.Stat(root.FS, d.Name())
					if err != nil {
						if !yield(entry, fmt.Errorf("stat %s: %w", entry.Path(), err)) {
							return
						}
						continue
					}
					isDir = info.IsDir()
				}
				if !isDir {
					continue
				}
				if !yield(entry, nil) {
					return
				}
			}
		}
	}
}

// Open returns the Entry of a single directory identified by its path.
func Open(p string) (Entry, error) {
	abs, err := filepath.Abs(p)
	if err != nil {
		return Entry{}, err
	}
	return Entry{root: OSRoot(filepath.Dir(abs)), name: filepath.Base(abs)}, nil
}

// Entry is a candidate run directory inside a root.
type Entry struct {
	root Root
	name string
}

// Name returns the base name of the directory.
func (e Entry) Name() string {
	return e.name
}

// Root returns the name of the root the entry was found in.
func (e Entry) Root() string {
	return e.root.Name
}

// Path returns the absolute path to the directory.
func (e Entry) Path() string {
	return filepath.Join(e.root.Name, e.name)
}

// Stat follows symlinks.
func (e Entry) Stat() (fs.FileInfo, error) {
	return fs.Stat(e.root.FS, e.name)
}

// ReadDir lists the directory, it is used to tell an unreadable directory
// apart from an empty one.
func (e Entry) ReadDir() ([]fs.DirEntry, error) {
	return fs.ReadDir(e.root.FS, e.name)
}

// Glob matches pattern relative to the directory, see fs.Glob for the syntax.
// Returned names are relative to the directory too.
func (e Entry) Glob(pattern string) ([]string, error) {
	sub, err := fs.Sub(e.root.FS, e.name)
	if err != nil {
		return nil, err
	}
	return fs.Glob(sub, path.Clean(pattern))
}
