package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"runtime/debug"
	"strings"

	"github.com/CZERTAINLY/vuln-lens/internal/log"
	"github.com/CZERTAINLY/vuln-lens/internal/model"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

const (
	configEnv  = "VULNLENSCONFIG"
	configName = "vuln-lens.yaml"
)

var (
	userConfigPath string // /default/config/path/vuln-lens on given OS
	configPath     string // actual config file used (if loaded)

	flagConfigFilePath string // value of --config flag
	flagVerbose        bool   // value of --verbose flag
)

var rootCmd = &cobra.Command{
	Use:          "vuln-lens",
	Short:        "Normalizes vulnerability scans and builds a risk graph",
	SilenceUsage: true,
}

var graphCmd = &cobra.Command{
	Use:   "graph [FILE...]",
	Short: "graph loads scan documents and prints their risk graph",
	Long: `graph loads scan documents and prints their risk graph.

Without arguments the first existing file of input.candidates is used. A single
FILE is tried before the candidates, several files are processed independently.
Use - to read a document from stdin.`,
	RunE: doGraph,
}

var batchCmd = &cobra.Command{
	Use:   "batch DIR...",
	Short: "batch processes every scan document found below the directories",
	Args:  cobra.MinimumNArgs(1),
	RunE:  doBatch,
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "config prints the effective configuration",
	Args:  cobra.NoArgs,
	RunE:  doConfig,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "version provides a version of vuln-lens",
	RunE:  doVersion,
}

func init() {
	// user configuration
	d, err := os.UserConfigDir()
	if err != nil {
		panic(err)
	}
	userConfigPath = filepath.Join(d, "vuln-lens")
}

func main() {
	// root flags
	rootCmd.PersistentFlags().StringVar(&flagConfigFilePath, "config", "", "Config file to load - default is "+configName+" in current directory or in "+userConfigPath)
	rootCmd.PersistentFlags().BoolVar(&flagVerbose, "verbose", false, "verbose logging")

	graphFlags(graphCmd)
	batchFlags(batchCmd)

	// never print messages and usage
	rootCmd.SilenceErrors = true
	rootCmd.SilenceUsage = true

	rootCmd.AddCommand(graphCmd)
	rootCmd.AddCommand(batchCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(versionCmd)

	if cmd, err := rootCmd.ExecuteC(); err != nil {
		slog.Error("vuln-lens failed", "err", err)
		if strings.HasPrefix(err.Error(), "unknown command") {
			_ = rootCmd.Help() // ./cmd bflmp
		} else if strings.Contains(err.Error(), "arg(s)") {
			_ = cmd.Help() // ./cmd batch (missing arg)
		}
		os.Exit(1)
	}
}

func doVersion(cmd *cobra.Command, args []string) error {
	info, ok := debug.ReadBuildInfo()
	if !ok || info == nil {
		return fmt.Errorf("vuln-lens: version info not available")
	}

	w := cmd.OutOrStdout()
	if configPath != "" {
		fmt.Fprintf(w, "config: %s\n", configPath)
	}
	fmt.Fprintf(w, "vuln-lens: %s\n", info.Main.Version)
	fmt.Fprintf(w, "go:     %s\n", info.GoVersion)
	for _, s := range info.Settings {
		switch s.Key {
		case "vcs.revision":
			fmt.Fprintf(w, "commit: %s\n", s.Value)
		case "vcs.time":
			fmt.Fprintf(w, "date:   %s\n", s.Value)
		case "vcs.modified":
			fmt.Fprintf(w, "dirty:  %s\n", s.Value)
		}
	}
	fmt.Fprintln(w)

	return nil
}

func doConfig(cmd *cobra.Command, _ []string) error {
	config, err := loadConfig()
	if err != nil {
		return err
	}
	if configPath != "" {
		fmt.Fprintf(cmd.OutOrStdout(), "# %s\n", configPath)
	}
	enc := yaml.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent(2)
	defer func() {
		_ = enc.Close()
	}()
	return enc.Encode(config)
}

// loadConfig finds the configuration: $VULNLENSCONFIG, --config, then
// vuln-lens.yaml in the user config directory or the current directory.
// Defaults are used when there is none.
func loadConfig() (model.Config, error) {
	if envConfig, ok := os.LookupEnv(configEnv); ok {
		configPath = envConfig
	} else if flagConfigFilePath != "" {
		configPath = flagConfigFilePath
	} else {
		for _, d := range []string{userConfigPath, "."} {
			path := filepath.Join(d, configName)
			if exists(path) {
				configPath = path
				break
			}
		}
	}

	var config model.Config
	if configPath == "" {
		config = model.DefaultConfig()
	} else {
		var err error
		config, err = model.LoadConfigFromPath(configPath)
		if err != nil {
			return config, err
		}
	}

	// --verbose has a precedence over config file
	if flagVerbose {
		config.Service.Verbose = true
	}

	// initialize logging
	w, err := logWriter(config.Service.Log)
	if err != nil {
		return config, err
	}
	slog.SetDefault(log.NewWriter(w, config.Service.Verbose))

	slog.Debug("vuln-lens", "configPath", configPath)
	slog.Debug("vuln-lens", "config", config)
	return config, nil
}

func logWriter(dest string) (io.Writer, error) {
	switch dest {
	case "", model.LogStderr:
		return os.Stderr, nil
	case model.LogStdout:
		return os.Stdout, nil
	case model.LogDiscard:
		return io.Discard, nil
	default:
		f, err := os.OpenFile(dest, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, fmt.Errorf("opening log file: %w", err)
		}
		return f, nil
	}
}

func runContext(ctx context.Context, cmd string) context.Context {
	attrs := slog.Group("vuln-lens",
		slog.String("cmd", cmd),
		slog.Int("pid", os.Getpid()),
		slog.String("run", uuid.NewString()),
	)
	return log.ContextAttrs(ctx, attrs)
}

func exists(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return info.Mode().IsRegular()
}
