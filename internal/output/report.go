// Package output provides console progress and report rendering for
// scenario runs.
package output

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/mattn/go-isatty"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/wesleyorama2/slink/bandwidth"
	"github.com/wesleyorama2/slink/internal/metrics"
	"github.com/wesleyorama2/slink/internal/simulate"
)

// ANSI escape codes for cursor control
const (
	cursorUp  = "\033[%dA" // Move cursor up N lines
	clearLine = "\033[2K"  // Clear entire line

	// Box drawing characters
	boxHorizontal  = "━"
	boxVertical    = "│"
	boxTopLeft     = "┌"
	boxTopRight    = "┐"
	boxBottomLeft  = "└"
	boxBottomRight = "┘"

	// Progress bar characters
	progressFilled = "█"
	progressEmpty  = "░"
)

// LiveStats contains real-time statistics for display.
type LiveStats struct {
	// Progress tracking
	Progress float64       // 0.0 to 1.0, measured in released bytes
	Elapsed  time.Duration // Time elapsed since the run started

	// Stream stats
	ActiveStreams int // Streams currently on the link
	TotalStreams  int // Streams the scenario defines
	Ended         int64
	Aborted       int64

	// Link stats
	Released   int64   // Total bytes released downstream
	Throughput float64 // Released bytes per second since the start
}

// ReportWriter manages live console output during a scenario run and
// renders the final report.
type ReportWriter struct {
	scenarioName string
	writer       io.Writer
	scheme       *ColorScheme
	printer      *message.Printer
	isTTY        bool
	quiet        bool

	// State
	mu          sync.Mutex
	linesOutput int // Number of lines in the live display
}

// ReportConfig contains configuration for ReportWriter.
type ReportConfig struct {
	ScenarioName string
	Writer       io.Writer
	NoColor      bool
	Quiet        bool
	ForceTTY     bool
}

// NewReportWriter creates a new report writer.
func NewReportWriter(config ReportConfig) *ReportWriter {
	if config.Writer == nil {
		config.Writer = os.Stdout
	}

	scheme := DefaultColorScheme()
	if config.NoColor || os.Getenv("NO_COLOR") != "" {
		scheme = NoColorScheme()
	}

	return &ReportWriter{
		scenarioName: config.ScenarioName,
		writer:       config.Writer,
		scheme:       scheme,
		printer:      message.NewPrinter(language.English),
		isTTY:        config.ForceTTY || isTerminal(config.Writer),
		quiet:        config.Quiet,
	}
}

// isTerminal checks if the writer is a terminal.
func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// PrintHeader prints the scenario banner with the link parameters.
func (r *ReportWriter) PrintHeader(cfg bandwidth.Config) {
	if r.quiet {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	line := strings.Repeat(boxHorizontal, 56)
	r.writeln(r.scheme.Border.Sprint(line))
	r.writeln(r.scheme.Title.Sprintf("%s - Running", r.scenarioName))
	r.writeln(fmt.Sprintf("Link: %s | %d ticks/s | high water %s",
		r.scheme.Rate.Sprint(formatLinkRate(cfg.BytesPerSecond)),
		cfg.Resolution,
		humanize.IBytes(uint64(cfg.HighWater))))
	r.writeln(r.scheme.Border.Sprint(line))
	r.writeln("")
}

// Update redraws the live display with new statistics. It only writes
// to interactive terminals; use PrintProgressLine everywhere else.
func (r *ReportWriter) Update(stats *LiveStats) {
	if r.quiet || !r.isTTY {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.clearLiveLocked()

	lines := r.renderLiveStats(stats)
	r.linesOutput = len(lines)
	for _, line := range lines {
		r.writeln(line)
	}
}

// clearLiveLocked erases the previous live display.
func (r *ReportWriter) clearLiveLocked() {
	if r.linesOutput == 0 {
		return
	}
	r.write(fmt.Sprintf(cursorUp, r.linesOutput))
	for i := 0; i < r.linesOutput; i++ {
		r.write(clearLine + "\n")
	}
	r.write(fmt.Sprintf(cursorUp, r.linesOutput))
	r.linesOutput = 0
}

// renderLiveStats renders the live statistics display.
func (r *ReportWriter) renderLiveStats(stats *LiveStats) []string {
	var lines []string

	progressBar := renderProgressBar(stats.Progress, 40)
	progressPercent := fmt.Sprintf("%.0f%%", stats.Progress*100)
	lines = append(lines, fmt.Sprintf("Progress: %s %s | %s | %s",
		r.scheme.Success.Sprint(progressBar),
		r.scheme.Title.Sprint(progressPercent),
		formatDuration(stats.Elapsed),
		r.scheme.Rate.Sprint(formatRate(stats.Throughput))))
	lines = append(lines, "")

	// Stats box
	boxWidth := 55

	lines = append(lines, r.scheme.Border.Sprint(boxTopLeft+strings.Repeat(boxHorizontal, boxWidth-2)+boxTopRight))

	streamsStr := fmt.Sprintf("Streams: %s / %d",
		r.scheme.StreamName.Sprintf("%d", stats.ActiveStreams),
		stats.TotalStreams)
	releasedStr := fmt.Sprintf("Released:  %s", r.scheme.Bytes.Sprint(humanize.IBytes(uint64(stats.Released))))
	lines = append(lines, r.formatBoxRow(streamsStr, releasedStr, boxWidth))

	endedStr := fmt.Sprintf("Ended:   %s", r.scheme.StateEnded.Sprint(r.printer.Sprintf("%d", stats.Ended)))
	abortColor := r.scheme.Success
	if stats.Aborted > 0 {
		abortColor = r.scheme.StateAborted
	}
	abortedStr := fmt.Sprintf("Aborted:   %s", abortColor.Sprint(r.printer.Sprintf("%d", stats.Aborted)))
	lines = append(lines, r.formatBoxRow(endedStr, abortedStr, boxWidth))

	lines = append(lines, r.scheme.Border.Sprint(boxBottomLeft+strings.Repeat(boxHorizontal, boxWidth-2)+boxBottomRight))

	return lines
}

// formatBoxRow formats a row inside the stats box with two columns.
func (r *ReportWriter) formatBoxRow(left, right string, boxWidth int) string {
	// Account for ANSI codes when calculating padding
	leftVisible := stripANSI(left)
	rightVisible := stripANSI(right)

	colWidth := (boxWidth - 4) / 2 // 4 = 2 borders + 2 padding

	leftPadding := colWidth - len(leftVisible)
	if leftPadding < 0 {
		leftPadding = 0
	}

	rightPadding := colWidth - len(rightVisible)
	if rightPadding < 0 {
		rightPadding = 0
	}

	return fmt.Sprintf("%s %s%s%s %s%s %s",
		r.scheme.Border.Sprint(boxVertical),
		left, strings.Repeat(" ", leftPadding),
		r.scheme.Border.Sprint(boxVertical),
		right, strings.Repeat(" ", rightPadding),
		r.scheme.Border.Sprint(boxVertical))
}

// renderProgressBar renders a progress bar.
func renderProgressBar(progress float64, width int) string {
	if progress < 0 {
		progress = 0
	}
	if progress > 1 {
		progress = 1
	}

	filled := int(progress * float64(width))
	empty := width - filled

	return "[" + strings.Repeat(progressFilled, filled) + strings.Repeat(progressEmpty, empty) + "]"
}

// PrintProgressLine prints a one-line status update. Used when output
// is not a TTY (e.g. piped to a file or CI).
func (r *ReportWriter) PrintProgressLine(stats *LiveStats) {
	if r.quiet {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.writeln(fmt.Sprintf("[%s] Progress: %.0f%% | Streams: %d/%d | Released: %s | Rate: %s | Aborted: %d",
		formatDuration(stats.Elapsed),
		stats.Progress*100,
		stats.ActiveStreams,
		stats.TotalStreams,
		humanize.IBytes(uint64(stats.Released)),
		formatRate(stats.Throughput),
		stats.Aborted))
}

// PrintSummary prints the final run report.
func (r *ReportWriter) PrintSummary(result *simulate.Result) {
	completed := result.Completed()

	if r.quiet {
		// In quiet mode, just print the outcome
		if completed {
			r.writeln(r.scheme.Success.Sprint("COMPLETED"))
		} else {
			r.writeln(r.scheme.Error.Sprint("INCOMPLETE"))
		}
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	// Clear live output if we were in TTY mode
	if r.isTTY {
		r.clearLiveLocked()
	}

	line := strings.Repeat(boxHorizontal, 56)
	status := "Completed ✓"
	statusColor := r.scheme.Success
	if !completed {
		status = "Incomplete ✗"
		statusColor = r.scheme.Error
	}

	r.writeln("")
	r.writeln(r.scheme.Border.Sprint(line))
	r.writeln(fmt.Sprintf("%s - %s",
		r.scheme.Title.Sprint(result.Name),
		statusColor.Sprint(status)))
	r.writeln(r.scheme.Border.Sprint(line))
	r.writeln("")

	r.writeln(fmt.Sprintf("Duration:      %s", r.scheme.Highlight.Sprint(formatDuration(result.Duration))))
	r.writeln(fmt.Sprintf("Released:      %s", r.scheme.Bytes.Sprint(humanize.IBytes(uint64(result.TotalReleased())))))
	if result.Metrics != nil {
		r.writeln(fmt.Sprintf("Throughput:    %s", r.scheme.Rate.Sprint(formatRate(result.Metrics.Throughput))))
		r.writeln(fmt.Sprintf("Releases:      %s", r.printer.Sprintf("%d", result.Metrics.Releases)))
		r.writeln(fmt.Sprintf("Streams:       %s ended, %s aborted",
			r.printer.Sprintf("%d", result.Metrics.StreamsEnded),
			r.printer.Sprintf("%d", result.Metrics.StreamsAborted)))
	}
	r.writeln("")

	r.printStreamTable(result)

	if result.Metrics != nil {
		r.printDistribution("Transfer Times:", result.Metrics.Transfer)
		r.printDistribution("Producer Stalls:", result.Metrics.Stall)
	}
}

// printStreamTable prints the per-stream outcome table.
func (r *ReportWriter) printStreamTable(result *simulate.Result) {
	if len(result.Streams) == 0 {
		return
	}

	r.writeln(r.scheme.Label.Sprint(fmt.Sprintf("%-16s %-9s %10s %10s %9s %12s",
		"STREAM", "STATE", "PRODUCED", "RELEASED", "DURATION", "RATE")))

	for _, name := range result.StreamNames() {
		s := result.Streams[name]
		stateCell := r.stateColor(s.State).Sprint(fmt.Sprintf("%-9s", s.State))
		r.writeln(fmt.Sprintf("%-16s %s %10s %10s %9s %12s",
			truncate(s.Name, 16),
			stateCell,
			humanize.IBytes(uint64(s.BytesProduced)),
			humanize.IBytes(uint64(s.BytesReleased)),
			formatDurationShort(s.Duration),
			formatRate(s.Throughput)))
		if s.Error != "" {
			r.writeln(strings.Repeat(" ", 17) + r.scheme.Error.Sprint("error: "+s.Error))
		}
	}
	r.writeln("")
}

// stateColor picks the color for a terminal stream state.
func (r *ReportWriter) stateColor(state string) *color.Color {
	switch state {
	case "ended":
		return r.scheme.StateEnded
	case "aborted":
		return r.scheme.StateAborted
	default:
		return r.scheme.StateOther
	}
}

// printDistribution prints one duration distribution block.
func (r *ReportWriter) printDistribution(title string, stats metrics.DurationStats) {
	if stats.Count == 0 {
		return
	}

	r.writeln(r.scheme.Title.Sprint(title))
	r.writeln(fmt.Sprintf("  Count:     %s", r.printer.Sprintf("%d", stats.Count)))
	r.writeln(fmt.Sprintf("  Min:       %s", formatDurationShort(stats.Min)))
	r.writeln(fmt.Sprintf("  P50:       %s", formatDurationShort(stats.P50)))
	r.writeln(fmt.Sprintf("  P90:       %s", formatDurationShort(stats.P90)))
	r.writeln(fmt.Sprintf("  P95:       %s", formatDurationShort(stats.P95)))
	r.writeln(fmt.Sprintf("  P99:       %s", formatDurationShort(stats.P99)))
	r.writeln(fmt.Sprintf("  Max:       %s", formatDurationShort(stats.Max)))
	r.writeln("")
}

// WriteJSON writes the result as indented JSON with no console
// decoration.
func (r *ReportWriter) WriteJSON(result *simulate.Result) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	enc := json.NewEncoder(r.writer)
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}

// IsTTY returns whether the output is a terminal.
func (r *ReportWriter) IsTTY() bool {
	return r.isTTY
}

// write writes to the output without a newline.
func (r *ReportWriter) write(s string) {
	fmt.Fprint(r.writer, s)
}

// writeln writes to the output with a newline.
func (r *ReportWriter) writeln(s string) {
	fmt.Fprintln(r.writer, s)
}

// StatsFromSnapshot derives display statistics from a metrics snapshot.
// plannedBytes is the total the scenario intends to release; zero
// leaves the progress fraction at zero.
func StatsFromSnapshot(snap *metrics.Snapshot, plannedBytes int64, totalStreams int) *LiveStats {
	if snap == nil {
		return &LiveStats{TotalStreams: totalStreams}
	}

	progress := 0.0
	if plannedBytes > 0 {
		progress = float64(snap.BytesReleased) / float64(plannedBytes)
		if progress > 1 {
			progress = 1
		}
	}

	return &LiveStats{
		Progress:      progress,
		Elapsed:       snap.Elapsed,
		ActiveStreams: snap.ActiveStreams,
		TotalStreams:  totalStreams,
		Ended:         snap.StreamsEnded,
		Aborted:       snap.StreamsAborted,
		Released:      snap.BytesReleased,
		Throughput:    snap.Throughput,
	}
}

// Helper functions

// formatLinkRate renders the shared budget, covering the two special
// rates: an unlimited link and a frozen one.
func formatLinkRate(bytesPerSecond int64) string {
	switch {
	case bytesPerSecond == bandwidth.Unlimited:
		return "unlimited"
	case bytesPerSecond == 0:
		return "frozen"
	default:
		return humanize.IBytes(uint64(bytesPerSecond)) + "/s"
	}
}

// formatRate renders a byte rate like "1.5 MiB/s".
func formatRate(bytesPerSecond float64) string {
	if bytesPerSecond < 0 {
		bytesPerSecond = 0
	}
	return humanize.IBytes(uint64(bytesPerSecond)) + "/s"
}

// formatDuration formats a duration in a human-readable format.
func formatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	if d < time.Minute {
		return fmt.Sprintf("%.1fs", d.Seconds())
	}
	if d < time.Hour {
		m := int(d.Minutes())
		s := int(d.Seconds()) % 60
		return fmt.Sprintf("%dm %02ds", m, s)
	}
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	s := int(d.Seconds()) % 60
	return fmt.Sprintf("%dh %02dm %02ds", h, m, s)
}

// formatDurationShort formats a duration in a short format.
func formatDurationShort(d time.Duration) string {
	if d < time.Microsecond {
		return "0ms"
	}
	if d < time.Millisecond {
		return fmt.Sprintf("%dµs", d.Microseconds())
	}
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	if d < time.Minute {
		return fmt.Sprintf("%.2fs", d.Seconds())
	}
	return fmt.Sprintf("%.1fm", d.Minutes())
}

// truncate shortens s to at most n characters, marking the cut with an
// ellipsis.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	if n <= 3 {
		return s[:n]
	}
	return s[:n-3] + "..."
}

// stripANSI removes ANSI escape codes from a string.
func stripANSI(s string) string {
	// Simple state machine to strip ANSI sequences
	var result strings.Builder
	inEscape := false

	for i := 0; i < len(s); i++ {
		if s[i] == '\033' {
			inEscape = true
			continue
		}
		if inEscape {
			if (s[i] >= 'a' && s[i] <= 'z') || (s[i] >= 'A' && s[i] <= 'Z') {
				inEscape = false
			}
			continue
		}
		result.WriteByte(s[i])
	}

	return result.String()
}
