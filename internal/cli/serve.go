package cli

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/wesleyorama2/slink/bandwidth"
	"github.com/wesleyorama2/slink/internal/config"
	"github.com/wesleyorama2/slink/internal/relay"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve throttled transfers over HTTP",
	Long: `Start an HTTP server whose responses all share one bandwidth budget.

GET /t/{size} streams that many synthetic bytes through the link; sizes
take humanized forms like 4MiB as well as plain byte counts. With
--root set, GET /f/{path} serves files from that directory through the
same budget. The link can be inspected and retuned while the server
runs:

  GET   /control/config   effective link configuration
  PATCH /control/config   partial retune, e.g. {"bytesPerSecond": "256 KiB"}
  GET   /control/stats    transfer counters and timing percentiles

Examples:
  slink serve --rate "512 KiB"
  slink serve --rate 1MiB --addr :9000 --root ./files
  slink serve --rate unlimited --sessions-per-sec 10 --session-burst 3`,
	Run: func(cmd *cobra.Command, args []string) {
		runServe(cmd, args)
	},
}

func runServe(cmd *cobra.Command, args []string) {
	addr, _ := cmd.Flags().GetString("addr")
	rateStr, _ := cmd.Flags().GetString("rate")
	resolution, _ := cmd.Flags().GetInt("resolution")
	highWaterStr, _ := cmd.Flags().GetString("high-water")
	sessionsPerSec, _ := cmd.Flags().GetFloat64("sessions-per-sec")
	sessionBurst, _ := cmd.Flags().GetInt("session-burst")
	maxBytesStr, _ := cmd.Flags().GetString("max-bytes")
	root, _ := cmd.Flags().GetString("root")

	rate, err := config.ParseByteSize(rateStr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error parsing --rate: %v\n", err)
		os.Exit(1)
	}
	highWater, err := config.ParseByteSize(highWaterStr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error parsing --high-water: %v\n", err)
		os.Exit(1)
	}
	maxBytes, err := config.ParseByteSize(maxBytesStr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error parsing --max-bytes: %v\n", err)
		os.Exit(1)
	}

	server, err := relay.NewServer(relay.Options{
		Addr: addr,
		Link: []bandwidth.Option{
			bandwidth.WithRate(rate),
			bandwidth.WithResolution(resolution),
			bandwidth.WithHighWater(int(highWater)),
		},
		SessionsPerSecond: sessionsPerSec,
		SessionBurst:      sessionBurst,
		MaxBytes:          maxBytes,
		Root:              root,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error starting server: %v\n", err)
		os.Exit(1)
	}

	if err := server.Start(); err != nil {
		fmt.Fprintf(os.Stderr, "Error starting server: %v\n", err)
		os.Exit(1)
	}

	rateText := config.ByteSize(rate).String() + "/s"
	if rate == bandwidth.Unlimited {
		rateText = "unlimited"
	}
	log.Printf("serving throttled transfers on %s", server.Addr())
	log.Printf("link: %s, %d ticks/s, high water %s",
		rateText, resolution, config.ByteSize(highWater))
	log.Printf("endpoints: /t/{size} /control/config /control/stats")
	if root != "" {
		log.Printf("serving files from %s under /f/", root)
	}
	log.Printf("press Ctrl+C to stop")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()
	stop()

	log.Printf("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		fmt.Fprintf(os.Stderr, "Error during shutdown: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	serveCmd.Flags().String("addr", relay.DefaultAddr, "Listen address")
	serveCmd.Flags().String("rate", "unlimited", "Shared link rate in bytes per second (e.g. \"512 KiB\", \"unlimited\")")
	serveCmd.Flags().Int("resolution", bandwidth.DefaultResolution, "Scheduler ticks per second")
	serveCmd.Flags().String("high-water", "16 KiB", "Per-transfer buffered high water mark")
	serveCmd.Flags().Float64("sessions-per-sec", 0, "Admission rate for new transfers (0 = unlimited)")
	serveCmd.Flags().Int("session-burst", 1, "Admission burst size when --sessions-per-sec is set")
	serveCmd.Flags().String("max-bytes", "1 GiB", "Largest synthetic transfer served by /t/{size}")
	serveCmd.Flags().String("root", "", "Directory to serve under /f/ (empty disables file serving)")
}
