//go:build ignore

// Soak runner with built-in profiling support
// This program churns throttles through a shared link for a while with
// memory and goroutine monitoring, to catch leaks in the scheduler and
// membership paths.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"runtime"
	"runtime/pprof"
	"sync"
	"sync/atomic"
	"time"

	"github.com/wesleyorama2/slink/bandwidth"
	"github.com/wesleyorama2/slink/internal/config"
)

func main() {
	cpuProfile := flag.String("cpuprofile", "", "write cpu profile to file")
	memProfile := flag.String("memprofile", "", "write memory profile to file")
	goroutineProfile := flag.String("goroutineprofile", "", "write goroutine profile to file")
	monitorInterval := flag.Duration("monitor-interval", 10*time.Second, "interval for monitoring stats")
	duration := flag.Duration("duration", time.Minute, "how long to churn")
	rateFlag := flag.String("rate", "16 MiB", "shared link rate in bytes per second")
	workers := flag.Int("workers", 32, "concurrent producers")
	transferFlag := flag.String("transfer", "64 KiB", "bytes per transfer")
	chunkFlag := flag.String("chunk", "8 KiB", "bytes per write")
	flag.Parse()

	rate, err := config.ParseByteSize(*rateFlag)
	if err != nil {
		log.Fatal("invalid -rate: ", err)
	}
	transferSize, err := config.ParseByteSize(*transferFlag)
	if err != nil {
		log.Fatal("invalid -transfer: ", err)
	}
	chunkSize, err := config.ParseByteSize(*chunkFlag)
	if err != nil {
		log.Fatal("invalid -chunk: ", err)
	}

	fmt.Println("========================================")
	fmt.Println("Shared Link Churn Soak with Profiling")
	fmt.Println("========================================")
	fmt.Println()

	// Enable CPU profiling if requested
	if *cpuProfile != "" {
		f, err := os.Create(*cpuProfile)
		if err != nil {
			log.Fatal("could not create CPU profile: ", err)
		}
		defer f.Close()
		if err := pprof.StartCPUProfile(f); err != nil {
			log.Fatal("could not start CPU profile: ", err)
		}
		defer pprof.StopCPUProfile()
		fmt.Printf("✓ CPU profiling enabled: %s\n", *cpuProfile)
	}

	// Start monitoring goroutine
	stopMonitor := make(chan struct{})
	monitorDone := make(chan struct{})

	go func() {
		defer close(monitorDone)
		ticker := time.NewTicker(*monitorInterval)
		defer ticker.Stop()

		fmt.Println("\nStarting resource monitoring...")
		fmt.Println("Time\t\tGoroutines\tMemAlloc(MB)\tSys(MB)\t\tNumGC")
		fmt.Println("----\t\t----------\t------------\t-------\t\t-----")

		for {
			select {
			case <-ticker.C:
				var m runtime.MemStats
				runtime.ReadMemStats(&m)

				fmt.Printf("%s\t%d\t\t%.2f\t\t%.2f\t\t%d\n",
					time.Now().Format("15:04:05"),
					runtime.NumGoroutine(),
					float64(m.Alloc)/1024/1024,
					float64(m.Sys)/1024/1024,
					m.NumGC,
				)
			case <-stopMonitor:
				return
			}
		}
	}()

	// Record initial stats
	var initialStats runtime.MemStats
	runtime.ReadMemStats(&initialStats)
	initialGoroutines := runtime.NumGoroutine()

	fmt.Printf("Initial state:\n")
	fmt.Printf("  Goroutines: %d\n", initialGoroutines)
	fmt.Printf("  Memory Allocated: %.2f MB\n", float64(initialStats.Alloc)/1024/1024)
	fmt.Printf("  System Memory: %.2f MB\n", float64(initialStats.Sys)/1024/1024)
	fmt.Println()

	group, err := bandwidth.NewGroup(bandwidth.WithRate(rate))
	if err != nil {
		log.Fatal("could not create group: ", err)
	}

	fmt.Printf("Churning %d workers over a %s/s link for %s...\n",
		*workers, config.ByteSize(rate), *duration)
	fmt.Println()

	var transfers, aborted, produced int64

	ctx := context.Background()
	deadline := time.Now().Add(*duration)
	startTime := time.Now()

	var wg sync.WaitGroup
	for i := 0; i < *workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			chunk := make([]byte, chunkSize)
			n := 0
			for time.Now().Before(deadline) {
				th, err := group.CreateThrottle(bandwidth.NewWriterSink(io.Discard))
				if err != nil {
					return
				}
				w := bandwidth.NewWriter(ctx, th)

				var sent int64
				failed := false
				for sent < transferSize {
					m, err := w.Write(chunk)
					sent += int64(m)
					if err != nil {
						failed = true
						break
					}
				}

				// Abort a slice of the transfers so membership churn
				// exercises the reslicing path, not just clean drains.
				n++
				if failed || n%7 == 0 {
					th.Abort()
					atomic.AddInt64(&aborted, 1)
				} else if err := w.Close(); err != nil {
					th.Destroy()
				}
				atomic.AddInt64(&transfers, 1)
				atomic.AddInt64(&produced, sent)
			}
		}()
	}

	wg.Wait()
	elapsed := time.Since(startTime)
	group.Shutdown()

	// Stop monitoring
	close(stopMonitor)
	<-monitorDone

	fmt.Println()
	fmt.Println("========================================")
	fmt.Println("Soak Completed")
	fmt.Println("========================================")
	fmt.Printf("Duration: %s\n", elapsed)
	fmt.Printf("Transfers: %d (%d aborted)\n", transfers, aborted)
	fmt.Printf("Produced: %s (%.2f MB/s)\n",
		config.ByteSize(produced),
		float64(produced)/elapsed.Seconds()/1024/1024)
	fmt.Println()

	// Record final stats
	var finalStats runtime.MemStats
	runtime.ReadMemStats(&finalStats)
	finalGoroutines := runtime.NumGoroutine()

	fmt.Printf("Final state:\n")
	fmt.Printf("  Goroutines: %d (delta: %+d)\n", finalGoroutines, finalGoroutines-initialGoroutines)
	fmt.Printf("  Memory Allocated: %.2f MB (delta: %+.2f MB)\n",
		float64(finalStats.Alloc)/1024/1024,
		float64(finalStats.Alloc)/1024/1024-float64(initialStats.Alloc)/1024/1024)
	fmt.Printf("  System Memory: %.2f MB (delta: %+.2f MB)\n",
		float64(finalStats.Sys)/1024/1024,
		float64(finalStats.Sys)/1024/1024-float64(initialStats.Sys)/1024/1024)
	fmt.Printf("  Total GC Runs: %d\n", finalStats.NumGC-initialStats.NumGC)
	fmt.Println()

	// Check for goroutine leaks
	if finalGoroutines > initialGoroutines+5 {
		fmt.Printf("⚠ WARNING: Possible goroutine leak detected! (+%d goroutines)\n", finalGoroutines-initialGoroutines)
	} else {
		fmt.Println("✓ No goroutine leaks detected")
	}

	if members := group.MemberCount(); members != 0 {
		fmt.Printf("⚠ WARNING: %d members still registered after shutdown\n", members)
	} else {
		fmt.Println("✓ All members deregistered")
	}

	// Write memory profile if requested
	if *memProfile != "" {
		f, err := os.Create(*memProfile)
		if err != nil {
			log.Fatal("could not create memory profile: ", err)
		}
		defer f.Close()
		runtime.GC() // get up-to-date statistics
		if err := pprof.WriteHeapProfile(f); err != nil {
			log.Fatal("could not write memory profile: ", err)
		}
		fmt.Printf("✓ Memory profile written to: %s\n", *memProfile)
	}

	// Write goroutine profile if requested
	if *goroutineProfile != "" {
		f, err := os.Create(*goroutineProfile)
		if err != nil {
			log.Fatal("could not create goroutine profile: ", err)
		}
		defer f.Close()
		if err := pprof.Lookup("goroutine").WriteTo(f, 0); err != nil {
			log.Fatal("could not write goroutine profile: ", err)
		}
		fmt.Printf("✓ Goroutine profile written to: %s\n", *goroutineProfile)
	}

	fmt.Println()
	fmt.Println("✓ Soak completed successfully!")
	fmt.Println()
	fmt.Println("To analyze profiles:")
	if *cpuProfile != "" {
		fmt.Printf("  go tool pprof %s\n", *cpuProfile)
	}
	if *memProfile != "" {
		fmt.Printf("  go tool pprof %s\n", *memProfile)
	}
	if *goroutineProfile != "" {
		fmt.Printf("  go tool pprof %s\n", *goroutineProfile)
	}
}
