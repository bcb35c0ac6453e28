package model

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/encoding/yaml"

	_ "embed"
)

// Enum helpers.
const (
	StateBackendJSON   = "json"
	StateBackendSQLite = "sqlite"

	LogStderr  = "stderr"
	LogStdout  = "stdout"
	LogDiscard = "discard"

	DefaultCompletionMarker = "analysis_complete.json"
)

//go:embed config.cue
var cueSource []byte

var (
	cueCtx *cue.Context
	schema cue.Value
)

func init() {
	if len(cueSource) == 0 {
		panic("variable cueSource is empty")
	}
	cueCtx = cuecontext.New()
	compiled := cueCtx.CompileBytes(cueSource)
	if compiled.Err() != nil {
		panic(compiled.Err())
	}

	if err := compiled.Validate(); err != nil {
		panic(err)
	}

	schema = compiled.LookupPath(cue.ParsePath("#Config"))
	if schema.Err() != nil {
		panic(schema.Err())
	}
}

type Config struct {
	Version int     `json:"version" yaml:"version"` // fixed 0 for now
	Input   Input   `json:"input" yaml:"input"`
	State   State   `json:"state" yaml:"state"`
	Output  Output  `json:"output" yaml:"output"`
	Collect Collect `json:"collect" yaml:"collect"`
	Service Service `json:"service" yaml:"service"`
}

// Input describes where run directories live and how they are recognized.
type Input struct {
	Roots            []string  `json:"roots" yaml:"roots"`
	CompletionMarker string    `json:"completion_marker" yaml:"completion_marker"` // glob relative to the run directory
	Patterns         []Pattern `json:"patterns,omitempty" yaml:"patterns,omitempty"` // nil/empty => DefaultPatterns
	ExcludedRunsList string    `json:"excluded_runs_list,omitempty" yaml:"excluded_runs_list,omitempty"`
}

// Pattern is a named run identifier regular expression. Name ends up as the
// sequencer type of matching runs.
type Pattern struct {
	Name  string `json:"name" yaml:"name"`
	Regex string `json:"regex" yaml:"regex"`
}

type State struct {
	Path    string `json:"path" yaml:"path"`
	Backend string `json:"backend" yaml:"backend"` // "json" | "sqlite"
	Lock    bool   `json:"lock" yaml:"lock"`
}

type Output struct {
	Path string `json:"path" yaml:"path"`
}

type Collect struct {
	Parallelism int        `json:"parallelism" yaml:"parallelism"`
	LibraryQC   *LibraryQC `json:"library_qc,omitempty" yaml:"library_qc,omitempty"`
}

type LibraryQC struct {
	Enabled   bool   `json:"enabled" yaml:"enabled"`
	OutputDir string `json:"output_dir" yaml:"output_dir"`
}

type Service struct {
	Verbose  bool      `json:"verbose" yaml:"verbose"`
	Log      string    `json:"log" yaml:"log"` // "stderr"|"stdout"|"discard"|path
	Schedule *Schedule `json:"schedule,omitempty" yaml:"schedule,omitempty"`
}

// Schedule drives the watch command. Cron wins when both are set.
type Schedule struct {
	Cron  string `json:"cron,omitempty" yaml:"cron,omitempty"`
	Every string `json:"every,omitempty" yaml:"every,omitempty"`
}

// DefaultPatterns are the run folder conventions of the supported instruments.
func DefaultPatterns() []Pattern {
	return []Pattern{
		{Name: "miseq", Regex: `\d{6}_M\d{5}_\d+_\d{9}-[A-Z0-9]{5}`},
		{Name: "nextseq", Regex: `\d{6}_VH\d{5}_\d+_[A-Z0-9]{9}`},
		{Name: "gridion", Regex: `\d{8}_\d{4}_X\d+_[A-Z0-9]{8}_[a-z0-9]{8}`},
	}
}

// LoadConfig validates YAML (or JSON) from r against CUE schema and decodes to Config.
// Relative paths are resolved against the working directory.
func LoadConfig(r io.Reader) (Config, error) {
	yamlFile, err := yaml.Extract("config.yaml", r)
	if err != nil {
		return Config{}, err
	}
	yamlValue := cueCtx.BuildFile(yamlFile)

	unified := schema.Unify(yamlValue)
	if err := unified.Validate(
		cue.All(),          // all constraints
		cue.Concrete(true), // no incomplete values
	); err != nil {
		return Config{}, err
	}

	var out Config
	if err := unified.Decode(&out); err != nil {
		return Config{}, err
	}
	if len(out.Input.Patterns) == 0 {
		out.Input.Patterns = DefaultPatterns()
	}
	if err := out.absPaths(); err != nil {
		return Config{}, err
	}

	return out, nil
}

func (c *Config) absPaths() error {
	var err error
	abs := func(p *string) {
		if err != nil || *p == "" {
			return
		}
		*p, err = filepath.Abs(*p)
	}
	for i := range c.Input.Roots {
		abs(&c.Input.Roots[i])
	}
	abs(&c.Input.ExcludedRunsList)
	abs(&c.State.Path)
	abs(&c.Output.Path)
	if c.Collect.LibraryQC != nil {
		abs(&c.Collect.LibraryQC.OutputDir)
	}
	if err != nil {
		return fmt.Errorf("resolving config paths: %w", err)
	}
	return nil
}

// LoadExcludedRuns reads run identifiers, one per line. Blank lines and lines
// starting with # are ignored.
func LoadExcludedRuns(path string) (map[string]struct{}, error) {
	excluded := make(map[string]struct{})
	if path == "" {
		return excluded, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening excluded runs list: %w", err)
	}
	defer func() {
		_ = f.Close()
	}()

	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := sc.Text()
		if strings.HasPrefix(line, "#") {
			continue
		}
		id := strings.TrimSpace(line)
		if id == "" {
			continue
		}
		excluded[id] = struct{}{}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("reading excluded runs list: %w", err)
	}
	return excluded, nil
}
