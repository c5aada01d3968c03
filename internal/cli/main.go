package cli

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

func Main() {
	_ = godotenv.Load() // best-effort: load .env if present

	root := newRootCmd()
	root.SetOut(os.Stdout)
	root.SetErr(os.Stderr)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "clipsmith <url|file>",
		Short:         "Cut a long video into short, titled clips",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, args[0])
		},
	}

	f := root.Flags()
	f.String("out", "videos", "Output directory")
	f.Float64("min", 30, "Minimum clip duration in seconds")
	f.Float64("max", 300, "Maximum clip duration in seconds")
	f.StringSlice("platform", []string{"shorts"}, "Allowed platform (repeatable)")
	f.String("provider", "gemini", "Text generation provider: gemini, openrouter or openai")
	f.String("model", "", "Model name (defaults per provider, or *_MODEL env)")
	f.Int("workers", 1, "Clips enriched and extracted in parallel")
	f.Bool("tags", true, "Generate tags for each clip")
	f.Bool("subtitles", false, "Write an .ass subtitle file next to each clip")
	f.String("uploader", "", "Channel name for the description (overrides the source's)")
	f.String("config", "", "YAML settings file (prompts, banned words, default tags, policy)")
	f.Bool("quiet", false, "Only print the run summary")

	return root
}
