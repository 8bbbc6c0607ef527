package cmd

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/conneroisu/scribe/internal/entry"
)

var renderFlags *StandardFlags

var renderCmd = &cobra.Command{
	Use:   "render <file>",
	Short: "Render one post to stdout",
	Long: `Parse a single post from the base path and print its title and HTML.
Useful for checking front-matter before publishing.

Examples:
  scribe render hello.md
  scribe render hello.md --base-path posts`,
	Args: cobra.ExactArgs(1),
	PreRunE: func(cmd *cobra.Command, _ []string) error {
		return bindFlags(cmd)
	},
	RunE: runRender,
}

func init() {
	rootCmd.AddCommand(renderCmd)
	renderFlags = AddStandardFlags(renderCmd, "content")
	renderCmd.Flags().Bool("gfm", false, "Enable GitHub Flavored Markdown extensions")
}

func runRender(cmd *cobra.Command, args []string) error {
	basePath := viper.GetString("content.base_path")
	if basePath == "" {
		basePath = renderFlags.BasePath
	}
	gfm, _ := cmd.Flags().GetBool("gfm")

	parser := entry.NewParser(entry.Options{
		GFM:        gfm || viper.GetBool("content.gfm"),
		UnsafeHTML: viper.GetBool("content.unsafe_html"),
	})

	e, err := parser.Parse(cmd.Context(), filepath.Join(basePath, args[0]))
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Title: %s\n", e.Metadata.Title)
	fmt.Fprintf(out, "Content: \n%s\n", e.HTML)
	return nil
}
