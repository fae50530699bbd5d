package cli

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/wesleyorama2/slink/internal/config"
	"github.com/wesleyorama2/slink/internal/output"
)

var checkCmd = &cobra.Command{
	Use:   "check SCENARIO",
	Short: "Validate a scenario file without running it",
	Args:  cobra.ExactArgs(1),
	Long: `Check a scenario file against the scenario schema and the semantic
rules the runner enforces, and report every problem found.

The file passes only when it is well-formed YAML or JSON, matches the
schema, and describes streams the runner could actually admit.

Examples:
  slink check scenario.yaml
  slink check scenarios/congested-link.json`,
	Run: func(cmd *cobra.Command, args []string) {
		runCheck(cmd, args)
	},
}

func runCheck(cmd *cobra.Command, args []string) {
	noColor, _ := cmd.Flags().GetBool("no-color")

	path := args[0]
	data, err := os.ReadFile(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error reading scenario: %v\n", err)
		os.Exit(1)
	}

	failed := false

	ok, schemaErrs := config.CheckScenario(data, path)
	if ok {
		fmt.Printf("%s Schema validation passed\n", output.SuccessIcon(noColor))
	} else {
		failed = true
		fmt.Printf("%s Schema validation failed\n", output.ErrorIcon(noColor))
		for _, e := range schemaErrs {
			fmt.Printf("  - %s\n", e.Error())
		}
	}

	cfg, err := config.ParseScenario(data, path)
	if err != nil {
		fmt.Printf("%s Parse failed\n", output.ErrorIcon(noColor))
		fmt.Printf("  - %v\n", err)
		os.Exit(1)
	}

	config.ApplyDefaults(cfg)
	if err := cfg.Validate(); err != nil {
		failed = true
		fmt.Printf("%s Scenario validation failed\n", output.ErrorIcon(noColor))
		var verrs *config.ValidationErrors
		if errors.As(err, &verrs) {
			for _, ve := range verrs.Errors {
				fmt.Printf("  - %s: %s\n", ve.Field, ve.Message)
			}
		} else {
			fmt.Printf("  - %v\n", err)
		}
	} else {
		fmt.Printf("%s Scenario validation passed\n", output.SuccessIcon(noColor))
	}

	if failed {
		os.Exit(1)
	}
	fmt.Printf("\n%s is valid (%d streams)\n", path, len(cfg.Streams))
}

func init() {
	checkCmd.Flags().Bool("no-color", false, "Disable colored output")
}
