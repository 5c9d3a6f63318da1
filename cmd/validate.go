package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/astralkiln/magnetar/internal/blueprint"
	"github.com/astralkiln/magnetar/internal/config"
	"github.com/astralkiln/magnetar/internal/dag"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check the build blueprint for structural problems",
	Long: "Validate parses the build directory and reports duplicate component\n" +
		"names, self-dependencies, references to unknown components, and\n" +
		"dependency cycles. At run time such components are simply never\n" +
		"claimable; validate surfaces them before agents start waiting on them.",
	RunE: func(cmd *cobra.Command, args []string) error {
		_ = viper.BindPFlag("build_dir", cmd.Flags().Lookup("dir"))
		cfg := config.Load()

		bp, err := blueprint.Load(cfg.BuildDir)
		if err != nil {
			return fmt.Errorf("loading blueprint: %w", err)
		}

		g := dag.FromSpecs(bp.Specs())
		findings := g.Validate()
		if len(findings) == 0 {
			fmt.Fprintf(os.Stderr, "✓ %s: %d components, no structural problems\n",
				bp.Manifest.Build.ID, g.Len())
			return nil
		}

		for _, f := range findings {
			fmt.Fprintf(os.Stderr, "✗ %s\n", f)
		}
		os.Exit(1)
		return nil
	},
}

func init() {
	validateCmd.Flags().String("dir", "", "build directory (default current directory)")
	rootCmd.AddCommand(validateCmd)
}
