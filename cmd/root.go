// Package cmd provides the command-line interface for scribe with
// configuration drawn from several sources.
//
// Configuration System:
//
//	Values are resolved with the following precedence:
//	1. Command-line flags (--port, --base-path, etc.) - highest priority
//	2. Individual environment variables (SCRIBE_SERVER_PORT, etc.), which
//	   may also come from a .env file in the working directory
//	3. Configuration file: --config, else SCRIBE_CONFIG_FILE, else .scribe.yml
//	4. Built-in defaults - lowest priority
//
// Environment Variables:
//
//	SCRIBE_CONFIG_FILE: Path to custom configuration file
//	SCRIBE_SERVER_PORT: Override server port
//	SCRIBE_THEME_PATH: Override the Handlebars theme directory
//	And the rest following the SCRIBE_<SECTION>_<OPTION> pattern
package cmd

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/conneroisu/scribe/internal/config"
	"github.com/conneroisu/scribe/internal/logging"
)

var cfgFile string

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "scribe",
	Short: "A self-hosted blog server with live reload",
	Long: `Scribe serves a directory of Markdown posts through a Handlebars theme.

Posts and theme files are watched: saving a post or a template updates the
site immediately and open browser tabs reload themselves.

Quick Start:
  scribe serve --handlebars-theme ./theme     Serve ./blog on port 3000
  scribe render hello.md                      Print one rendered post
  scribe version                              Show version information`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is .scribe.yml, can also use SCRIBE_CONFIG_FILE env var)")
	rootCmd.PersistentFlags().StringP("log-level", "l", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-format", "text", "log format (text, json)")
	_ = viper.BindPFlag("log.level", rootCmd.PersistentFlags().Lookup("log-level"))
	_ = viper.BindPFlag("log.format", rootCmd.PersistentFlags().Lookup("log-format"))
}

// initConfig wires viper to the config file and the environment.
func initConfig() {
	// .env only seeds variables that are not already set
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		fmt.Fprintln(os.Stderr, "Ignoring unreadable .env:", err)
	}

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else if envConfigFile := os.Getenv("SCRIBE_CONFIG_FILE"); envConfigFile != "" {
		viper.SetConfigFile(envConfigFile)
	} else {
		viper.AddConfigPath(".")
		viper.SetConfigType("yaml")
		viper.SetConfigName(".scribe")
	}

	viper.SetEnvPrefix("SCRIBE")
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// a missing config file is fine; defaults and flags still apply
	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}

// newLogger builds the process logger from the log.* settings.
func newLogger(cfg config.LogConfig) (logging.Logger, error) {
	level, err := logging.ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}
	logConfig := logging.DefaultConfig()
	logConfig.Level = level
	logConfig.Format = cfg.Format
	logConfig.Output = os.Stderr
	return logging.NewLogger(logConfig), nil
}
