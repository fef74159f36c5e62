// Package cmd provides the command-line interface for hbsbundle.
//
// Configuration System:
//
//	Settings come from several sources, highest priority first:
//	1. Command-line flags (--config, --dir, --log-level)
//	2. HBSBUNDLE_CONFIG_FILE environment variable: custom config file path
//	3. Individual environment variables (HBSBUNDLE_TEMPLATES_SOURCE_MAP, ...)
//	4. The configuration file (.hbsbundle.yml in the project directory)
//
// A .env file in the project directory is loaded into the environment
// before the configuration is read.
package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/conneroisu/hbsbundle/internal/config"
	"github.com/conneroisu/hbsbundle/internal/logging"
	"github.com/conneroisu/hbsbundle/internal/plugins"
)

var (
	cfgFile   string
	rootDir   string
	logLevel  string
	logFormat string

	// configErr holds a failure to read an explicitly named config file.
	configErr error
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "hbsbundle",
	Short: "Bundle TypeScript libraries that import Handlebars templates",
	Long: `hbsbundle builds browser libraries whose sources import Handlebars
templates. Templates are precompiled into ES modules that import only the
Handlebars runtime, stylesheet imports are elided, and the library is bundled
once per configured target.

Quick Start:
  hbsbundle init                  Write a default .hbsbundle.yml
  hbsbundle list                  List the templates of the project
  hbsbundle compile card.hbs      Print the module compiled from a template
  hbsbundle render card.hbs       Render a template with JSON data
  hbsbundle build                 Bundle every target into the output directory`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is .hbsbundle.yml, can also use HBSBUNDLE_CONFIG_FILE env var)")
	rootCmd.PersistentFlags().StringVarP(&rootDir, "dir", "C", ".", "project directory")
	rootCmd.PersistentFlags().StringVarP(&logLevel, "log-level", "l", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "text", "log format (text, json)")
}

// initConfig prepares the global viper instance for config.Load.
func initConfig() {
	configErr = nil

	// A missing .env file is not an error.
	_ = godotenv.Load(filepath.Join(rootDir, ".env"))

	v := viper.GetViper()
	config.SetDefaults(v)
	config.BindEnv(v)

	explicit := true
	switch {
	case cfgFile != "":
		v.SetConfigFile(cfgFile)
	case os.Getenv(config.EnvPrefix+"_CONFIG_FILE") != "":
		v.SetConfigFile(os.Getenv(config.EnvPrefix + "_CONFIG_FILE"))
	default:
		explicit = false
		v.SetConfigFile(filepath.Join(rootDir, config.FileName))
	}

	if err := v.ReadInConfig(); err != nil && (explicit || !isNotFound(err)) {
		configErr = err
	}
}

func isNotFound(err error) bool {
	if _, ok := err.(viper.ConfigFileNotFoundError); ok {
		return true
	}

	return os.IsNotExist(err)
}

// session bundles what every command needs: the validated configuration,
// the absolute project directory and a logger.
type session struct {
	cfg    *config.Config
	root   string
	fs     afero.Fs
	logger logging.Logger
}

func newSession(cmd *cobra.Command) (*session, error) {
	if configErr != nil {
		return nil, fmt.Errorf("failed to read configuration: %w", configErr)
	}

	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	root, err := filepath.Abs(rootDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve project directory: %w", err)
	}

	logger, err := newLogger(cmd)
	if err != nil {
		return nil, err
	}

	return &session{cfg: cfg, root: root, fs: afero.NewOsFs(), logger: logger}, nil
}

func newLogger(cmd *cobra.Command) (logging.Logger, error) {
	level, err := logging.ParseLevel(logLevel)
	if err != nil {
		return nil, err
	}
	if logFormat != "text" && logFormat != "json" {
		return nil, fmt.Errorf("invalid log format %q, must be one of: text, json", logFormat)
	}

	return logging.NewLogger(&logging.LoggerConfig{
		Level:  level,
		Format: logFormat,
		Output: cmd.ErrOrStderr(),
	}), nil
}

// pluginManager registers the built-in plugins the configuration enables.
func (s *session) pluginManager(metrics *plugins.Metrics) (*plugins.PluginManager, error) {
	opts, err := s.cfg.BuiltinOptions()
	if err != nil {
		return nil, err
	}

	pm := plugins.NewPluginManager(s.fs, s.logger, metrics)
	if err := pm.RegisterBuiltins(opts); err != nil {
		return nil, err
	}

	return pm, nil
}

// templatePath resolves a template argument. Relative paths are taken from
// the working directory, like --data-file.
func templatePath(p string) (string, error) {
	abs, err := filepath.Abs(p)
	if err != nil {
		return "", fmt.Errorf("failed to resolve %s: %w", p, err)
	}

	return abs, nil
}
