package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/wesleyorama2/slink/bandwidth"
	"github.com/wesleyorama2/slink/internal/config"
	"github.com/wesleyorama2/slink/internal/output"
	"github.com/wesleyorama2/slink/internal/simulate"
	"github.com/wesleyorama2/slink/pkg/jsonpath"
)

var runCmd = &cobra.Command{
	Use:   "run SCENARIO",
	Short: "Run a scenario file through a shared bandwidth link",
	Args:  cobra.ExactArgs(1),
	Long: `Run the streams of a scenario file against one shared link and report
how the budget was split.

The scenario file is YAML or JSON:

  name: shared 1 Mbps link
  link:
    rate: 125 KiB
    resolution: 40
  streams:
    bulk:
      bytes: 5 MiB
    drip:
      bytes: 512 KiB
      produceRate: 64 KiB

Examples:
  slink run scenario.yaml
  slink run scenario.yaml --json
  slink run scenario.yaml --output result.json --quiet
  slink run scenario.yaml --duration-cap 30s
  slink run scenario.yaml --extract '$.metrics.throughput'`,
	Run: func(cmd *cobra.Command, args []string) {
		runScenario(cmd, args)
	},
}

// runScenario loads the scenario, drives the engine, and reports.
func runScenario(cmd *cobra.Command, args []string) {
	jsonOutput, _ := cmd.Flags().GetBool("json")
	outputPath, _ := cmd.Flags().GetString("output")
	quiet, _ := cmd.Flags().GetBool("quiet")
	noColor, _ := cmd.Flags().GetBool("no-color")
	durationCap, _ := cmd.Flags().GetDuration("duration-cap")
	extract, _ := cmd.Flags().GetString("extract")

	// Both replace the console report with machine-readable output.
	plain := jsonOutput || extract != ""

	cfg, err := config.LoadScenario(args[0])
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading scenario: %v\n", err)
		os.Exit(1)
	}
	if cfg.Name == "" {
		cfg.Name = filepath.Base(args[0])
	}
	if durationCap > 0 {
		cfg.Duration = config.Duration(durationCap)
	}

	runner, err := simulate.NewRunner(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	report := output.NewReportWriter(output.ReportConfig{
		ScenarioName: cfg.Name,
		NoColor:      noColor,
		Quiet:        quiet || plain,
	})

	// NewRunner applied the defaults, so the link section is complete.
	linkCfg := bandwidth.DefaultConfig()
	for _, opt := range cfg.Link.Options() {
		opt(&linkCfg)
	}
	report.PrintHeader(linkCfg)

	plannedBytes := int64(0)
	for _, stream := range cfg.Streams {
		plannedBytes += int64(stream.Bytes)
	}
	totalStreams := len(cfg.Streams)

	// A first interrupt cancels the run; streams abort and the partial
	// report still prints.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var wg sync.WaitGroup
	var result *simulate.Result
	var runErr error

	// Run the engine in a goroutine
	wg.Add(1)
	go func() {
		defer wg.Done()
		result, runErr = runner.Run(ctx)
	}()

	// Update progress while the engine is running
	updateTicker := time.NewTicker(time.Second)
	defer updateTicker.Stop()

progressLoop:
	for {
		select {
		case <-updateTicker.C:
			if runner.IsRunning() {
				stats := output.StatsFromSnapshot(runner.Metrics(), plannedBytes, totalStreams)
				if report.IsTTY() {
					report.Update(stats)
				} else if !quiet && !plain {
					report.PrintProgressLine(stats)
				}
			} else {
				break progressLoop
			}
		default:
			// Check if the engine has stopped
			if !runner.IsRunning() && result != nil {
				break progressLoop
			}
			time.Sleep(100 * time.Millisecond)
		}
	}

	// Wait for the engine to complete
	wg.Wait()

	if runErr != nil {
		fmt.Fprintf(os.Stderr, "Error running scenario: %v\n", runErr)
		// Continue to report whatever completed
	}
	if result == nil {
		os.Exit(1)
	}

	switch {
	case extract != "":
		data, err := json.Marshal(result)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error encoding result: %v\n", err)
			os.Exit(1)
		}
		value, err := jsonpath.Extract(string(data), extract)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error extracting %s: %v\n", extract, err)
			os.Exit(1)
		}
		fmt.Println(value)
	case jsonOutput:
		if err := report.WriteJSON(result); err != nil {
			fmt.Fprintf(os.Stderr, "Error writing result: %v\n", err)
			os.Exit(1)
		}
	default:
		report.PrintSummary(result)
	}

	if outputPath != "" {
		if err := writeResultFile(result, outputPath); err != nil {
			fmt.Fprintf(os.Stderr, "Error writing result to file: %v\n", err)
			os.Exit(1)
		}
		if !quiet && !plain {
			fmt.Printf("Results written to: %s\n", outputPath)
		}
	}

	if runErr != nil {
		os.Exit(1)
	}
}

// writeResultFile saves the result as indented JSON.
func writeResultFile(result *simulate.Result, path string) error {
	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

func init() {
	runCmd.Flags().Bool("json", false, "Print the result as JSON instead of the console report")
	runCmd.Flags().StringP("output", "o", "", "Write the result JSON to a file")
	runCmd.Flags().BoolP("quiet", "q", false, "Disable progress output, print only the outcome")
	runCmd.Flags().Bool("no-color", false, "Disable colored output")
	runCmd.Flags().Duration("duration-cap", 0, "Override the scenario's duration cap (e.g. 30s)")
	runCmd.Flags().String("extract", "", "Print only the value at this JSONPath in the result (e.g. $.metrics.throughput)")
}
