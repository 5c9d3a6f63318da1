package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/astralkiln/magnetar/internal/blueprint"
	"github.com/astralkiln/magnetar/internal/config"
	"github.com/astralkiln/magnetar/internal/dag"
)

var graphCmd = &cobra.Command{
	Use:   "graph",
	Short: "Print the blueprint's dependency waves",
	Long: "Graph groups the blueprint's components into topological waves: wave 0\n" +
		"is claimable immediately, each later wave unlocks as the one before it\n" +
		"merges. Useful for judging how much parallelism a build allows.",
	RunE: func(cmd *cobra.Command, args []string) error {
		_ = viper.BindPFlag("build_dir", cmd.Flags().Lookup("dir"))
		cfg := config.Load()

		bp, err := blueprint.Load(cfg.BuildDir)
		if err != nil {
			return fmt.Errorf("loading blueprint: %w", err)
		}

		g := dag.FromSpecs(bp.Specs())
		waves, err := g.Waves()
		if err != nil {
			return fmt.Errorf("ordering %s: %w", bp.Manifest.Build.ID, err)
		}

		fmt.Printf("%s: %d components in %d waves\n", bp.Manifest.Build.ID, g.Len(), len(waves))
		for i, wave := range waves {
			fmt.Printf("  wave %d: %s\n", i, strings.Join(wave, ", "))
		}
		return nil
	},
}

func init() {
	graphCmd.Flags().String("dir", "", "build directory (default current directory)")
	rootCmd.AddCommand(graphCmd)
}
