package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/conneroisu/scribe/internal/config"
)

// StandardFlags provides consistent flag definitions across commands
type StandardFlags struct {
	// Server flags
	Address string `flag:"address,a" desc:"Address to bind to" default:"127.0.0.1"`
	Port    int    `flag:"port,p" desc:"Port to serve on" default:"3000"`

	// Content flags
	BasePath       string `flag:"base-path,b" desc:"Directory of Markdown posts" default:"blog"`
	FileServerPath string `flag:"file-server-path" desc:"Directory served under /files" default:"static"`

	// Theme flags
	Theme string `flag:"handlebars-theme,t" desc:"Handlebars theme directory" default:""`
}

// flagKeys maps flag names to the configuration keys they override.
var flagKeys = map[string]string{
	"address":          "server.host",
	"port":             "server.port",
	"base-path":        "content.base_path",
	"file-server-path": "files.path",
	"handlebars-theme": "theme.path",
}

// AddStandardFlags adds standard flags to a command
func AddStandardFlags(cmd *cobra.Command, flagTypes ...string) *StandardFlags {
	flags := &StandardFlags{}

	for _, flagType := range flagTypes {
		switch flagType {
		case "server":
			addServerFlags(cmd, flags)
		case "content":
			addContentFlags(cmd, flags)
		case "theme":
			addThemeFlags(cmd, flags)
		}
	}

	return flags
}

func addServerFlags(cmd *cobra.Command, flags *StandardFlags) {
	cmd.Flags().StringVarP(&flags.Address, "address", "a", config.DefaultHost, "Address to bind to")
	cmd.Flags().IntVarP(&flags.Port, "port", "p", config.DefaultPort, "Port to serve on")
}

func addContentFlags(cmd *cobra.Command, flags *StandardFlags) {
	cmd.Flags().StringVarP(&flags.BasePath, "base-path", "b", config.DefaultBasePath, "Directory of Markdown posts")
	cmd.Flags().StringVar(&flags.FileServerPath, "file-server-path", config.DefaultFilesPath, "Directory served under /files")
}

func addThemeFlags(cmd *cobra.Command, flags *StandardFlags) {
	cmd.Flags().StringVarP(&flags.Theme, "handlebars-theme", "t", "", "Handlebars theme directory")
}

// bindFlags binds the command's standard flags to their configuration keys.
// It runs per command, just before execution, so commands sharing a flag
// name do not steal each other's binding.
func bindFlags(cmd *cobra.Command) error {
	var err error
	cmd.Flags().VisitAll(func(f *pflag.Flag) {
		key, ok := flagKeys[f.Name]
		if !ok || err != nil {
			return
		}
		if bindErr := viper.BindPFlag(key, f); bindErr != nil {
			err = fmt.Errorf("binding --%s: %w", f.Name, bindErr)
		}
	})
	return err
}

// ValidateFlags validates flag values
func ValidateFlags(flags *StandardFlags) error {
	if flags.Port < 0 || flags.Port > 65535 {
		return fmt.Errorf("invalid port %d: must be between 0 and 65535", flags.Port)
	}
	return nil
}
