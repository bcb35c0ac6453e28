package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"runtime/debug"
	"syscall"

	"github.com/BCCDC-PHL/qc-collector/internal/log"
	"github.com/BCCDC-PHL/qc-collector/internal/model"
	"github.com/BCCDC-PHL/qc-collector/internal/service"
	"github.com/BCCDC-PHL/qc-collector/internal/state"
	"gopkg.in/yaml.v3"

	"github.com/spf13/cobra"
)

const (
	envConfig  = "QCCOLLECTORCONFIG"
	configName = "qc-collector.yaml"
)

var (
	userConfigPath string // /default/config/path/qc-collector on given OS
	configPath     string // actual config file used
	config         model.Config
	logCloser      io.Closer = io.NopCloser(nil)

	flagConfigFilePath string // value of --config flag
	flagVerbose        bool   // value of --verbose flag
)

func init() {
	d, err := os.UserConfigDir()
	if err != nil {
		d = "."
	}
	userConfigPath = filepath.Join(d, "qc-collector")
}

func main() {
	// root flags
	rootCmd.PersistentFlags().StringVar(&flagConfigFilePath, "config", "", "Config file to load - default is "+configName+" in "+userConfigPath+" or in current directory")
	rootCmd.PersistentFlags().BoolVar(&flagVerbose, "verbose", false, "verbose logging")

	// never print messages
	rootCmd.SilenceErrors = true

	// parse the config, setup logging
	rootCmd.PersistentPreRunE = initCollector

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(knownCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(versionCmd)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		slog.Error("qc-collector failed", "error", err)
	}
	_ = logCloser.Close()
	if err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:          "qc-collector",
	Short:        "Tool discovering finished sequencing runs and collecting their QC",
	SilenceUsage: true,
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "run scans the input directories once and reports new runs",
	RunE:  doRun,
}

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "watch runs an invocation on every tick of service.schedule until interrupted",
	RunE:  doWatch,
}

var knownCmd = &cobra.Command{
	Use:   "known",
	Short: "known prints identifiers of already reported runs, one per line",
	RunE:  doKnown,
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "config prints the effective configuration",
	RunE: func(cmd *cobra.Command, _ []string) error {
		enc := yaml.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent(2)
		if err := enc.Encode(config); err != nil {
			return fmt.Errorf("encoding configuration: %w", err)
		}
		return enc.Close()
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "version provide version of a qc-collector",
	Run: func(cmd *cobra.Command, args []string) {
		info, ok := debug.ReadBuildInfo()
		if !ok {
			fmt.Println("qc-collector: version info not available")
			return
		}

		if configPath != "" {
			fmt.Printf("config:       %s\n", configPath)
		}
		fmt.Printf("qc-collector: %s\n", info.Main.Version)
		fmt.Printf("go:           %s\n", info.GoVersion)
		for _, s := range info.Settings {
			switch s.Key {
			case "vcs.revision":
				fmt.Printf("commit:       %s\n", s.Value)
			case "vcs.time":
				fmt.Printf("date:         %s\n", s.Value)
			case "vcs.modified":
				fmt.Printf("dirty:        %s\n", s.Value)
			}
		}
		fmt.Println()
	},
}

func commandContext(cmd *cobra.Command) context.Context {
	attrs := slog.Group("qc_collector",
		slog.String("cmd", cmd.Name()),
		slog.Int("pid", os.Getpid()),
	)
	return log.ContextAttrs(cmd.Context(), attrs)
}

func doRun(cmd *cobra.Command, _ []string) error {
	ctx := commandContext(cmd)
	inv, err := service.NewInvocation(ctx, config, service.WithLogger(slog.Default()))
	if err != nil {
		return err
	}
	defer func() {
		_ = inv.Close()
	}()
	_, err = inv.Do(ctx)
	return err
}

func doWatch(cmd *cobra.Command, _ []string) error {
	ctx := commandContext(cmd)
	if config.Service.Schedule == nil {
		return errors.New("watch requires service.schedule in the configuration")
	}
	if err := service.ValidateSchedule(config.Service.Schedule); err != nil {
		return err
	}
	inv, err := service.NewInvocation(ctx, config, service.WithLogger(slog.Default()))
	if err != nil {
		return err
	}
	defer func() {
		_ = inv.Close()
	}()
	return service.Watch(ctx, inv, config.Service.Schedule)
}

func doKnown(cmd *cobra.Command, _ []string) error {
	ctx := commandContext(cmd)
	store, err := state.Open(ctx, config.State)
	if err != nil {
		return err
	}
	if c, ok := store.(io.Closer); ok {
		defer func() {
			_ = c.Close()
		}()
	}
	known, err := store.Load(ctx)
	if err != nil {
		return err
	}
	w := cmd.OutOrStdout()
	for _, id := range known.IDs() {
		if _, err := fmt.Fprintln(w, id); err != nil {
			return err
		}
	}
	return nil
}

func initCollector(cmd *cobra.Command, _ []string) error {
	var err error
	configPath, err = findConfig(flagConfigFilePath, userConfigPath, ".")
	if err != nil {
		if cmd == versionCmd {
			return nil
		}
		return err
	}

	f, err := os.Open(configPath)
	if err != nil {
		return fmt.Errorf("opening config file: %w", err)
	}
	defer func() {
		_ = f.Close()
	}()
	config, err = model.LoadConfig(f)
	if err != nil {
		for _, d := range model.ConfigErrDetails(err) {
			slog.Error("invalid configuration", d.Attr("detail"))
		}
		return fmt.Errorf("parsing config %s: %w", configPath, err)
	}

	// --verbose has a precedence over config file
	if flagVerbose {
		config.Service.Verbose = true
	}

	// initialize logging
	w, closer, err := log.Open(config.Service.Log)
	if err != nil {
		return err
	}
	logCloser = closer
	slog.SetDefault(log.New(w, config.Service.Verbose))

	slog.Debug("qc-collector run", "configPath", configPath)
	slog.Debug("qc-collector run", "config", config)
	return nil
}

// findConfig returns the configuration file to load: $QCCOLLECTORCONFIG, the
// --config flag or the first qc-collector.yaml found in dirs.
func findConfig(flag string, dirs ...string) (string, error) {
	if env, ok := os.LookupEnv(envConfig); ok && env != "" {
		return env, nil
	}
	if flag != "" {
		return flag, nil
	}
	for _, d := range dirs {
		path := filepath.Join(d, configName)
		if exists(path) {
			return path, nil
		}
	}
	return "", fmt.Errorf("no configuration found: set %s, use --config or create %s in %v", envConfig, configName, dirs)
}

func exists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}
