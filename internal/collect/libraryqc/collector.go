// Package libraryqc collects per library sequencing and assembly metrics of
// a run from fastp and QUAST summaries into one JSON document per run.
package libraryqc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/BCCDC-PHL/qc-collector/internal/durable"
	"github.com/BCCDC-PHL/qc-collector/internal/log"
	"github.com/BCCDC-PHL/qc-collector/internal/model"
)

const (
	Name        = "library_qc"
	Subdir      = "library-qc"
	FastpGlob   = "*/*_fastp.csv"
	QuastGlob   = "*/*_quast.csv"
	fileSuffix  = "_library_qc.json"
	outFileMode = 0o644
)

// LibraryQC is one element of the written document.
type LibraryQC struct {
	LibraryID          string `json:"library_id"`
	NumBases           *int64 `json:"num_bases"`
	AssemblyLength     *int64 `json:"assembly_length,omitempty"`
	AssemblyNumContigs *int64 `json:"assembly_num_contigs,omitempty"`
	AssemblyN50        *int64 `json:"assembly_N50,omitempty"`
}

type Collector struct {
	outputDir string
	logger    *slog.Logger
}

func New(outputDir string, logger *slog.Logger) *Collector {
	return &Collector{
		outputDir: outputDir,
		logger:    logger,
	}
}

func (c *Collector) Name() string {
	return Name
}

// Path returns the document path of a run.
func (c *Collector) Path(runID string) string {
	return filepath.Join(c.outputDir, Subdir, runID+fileSuffix)
}

// Collect writes the library QC document of run. An existing document is
// kept, remove it to have it generated again.
func (c *Collector) Collect(ctx context.Context, run model.RunDirectory) error {
	dst := c.Path(run.ID)
	_, err := os.Stat(dst)
	switch {
	case err == nil:
		log.Event(ctx, c.logger, slog.LevelDebug, "write_library_qc_skipped",
			"run_id", run.ID,
			"dst_file", dst,
		)
	case errors.Is(err, fs.ErrNotExist):
		libs, err := Libraries(ctx, os.DirFS(run.Path))
		if err != nil {
			return fmt.Errorf("collecting library qc of %s: %w", run.ID, err)
		}
		b, err := json.MarshalIndent(libs, "", "  ")
		if err != nil {
			return err
		}
		if err := durable.WriteFile(dst, append(b, '\n'), outFileMode); err != nil {
			return fmt.Errorf("writing library qc of %s: %w", run.ID, err)
		}
		log.Event(ctx, c.logger, slog.LevelInfo, "write_library_qc_complete",
			"run_id", run.ID,
			"dst_file", dst,
			"libraries", len(libs),
		)
	default:
		return fmt.Errorf("checking library qc of %s: %w", run.ID, err)
	}

	log.Event(ctx, c.logger, slog.LevelInfo, "collect_outputs_complete",
		"run_id", run.ID,
		"analysis_dir_path", run.Path,
	)
	return nil
}

// Libraries joins fastp and QUAST summaries found in the run directory
// fsys. Libraries are ordered by first appearance in the fastp files; an
// assembly is joined on the part of its identifier before the first '_'
// and is ignored when no fastp row has that library.
func Libraries(ctx context.Context, fsys fs.FS) ([]LibraryQC, error) {
	libs := []LibraryQC{}
	index := map[string]int{}

	fastpPaths, err := fs.Glob(fsys, FastpGlob)
	if err != nil {
		return nil, err
	}
	for _, p := range fastpPaths {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		rows, err := parseFile(fsys, p, ParseFastp)
		if err != nil {
			return nil, err
		}
		for _, r := range rows {
			i, ok := index[r.SampleID]
			if !ok {
				i = len(libs)
				index[r.SampleID] = i
				libs = append(libs, LibraryQC{LibraryID: r.SampleID})
			}
			libs[i].NumBases = r.TotalBasesBeforeFiltering
		}
	}

	quastPaths, err := fs.Glob(fsys, QuastGlob)
	if err != nil {
		return nil, err
	}
	for _, p := range quastPaths {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		rows, err := parseFile(fsys, p, ParseQuast)
		if err != nil {
			return nil, err
		}
		for _, r := range rows {
			libraryID, _, _ := strings.Cut(r.AssemblyID, "_")
			i, ok := index[libraryID]
			if !ok {
				continue
			}
			libs[i].AssemblyLength = r.TotalLength
			libs[i].AssemblyNumContigs = r.NumContigs
			libs[i].AssemblyN50 = r.AssemblyN50
		}
	}
	return libs, nil
}

func parseFile[T any](fsys fs.FS, name string, parse func(r io.Reader) ([]T, error)) ([]T, error) {
	f, err := fsys.Open(name)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = f.Close()
	}()
	rows, err := parse(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	return rows, nil
}
