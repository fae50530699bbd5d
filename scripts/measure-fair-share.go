//go:build ignore

// Fair-share measurement over HTTP: starts a throttled relay on a
// loopback port, downloads the same payload on several concurrent
// connections, and reports each connection's throughput against the
// equal share the link should give it.
package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/wesleyorama2/slink/bandwidth"
	"github.com/wesleyorama2/slink/internal/relay"
)

func main() {
	rate := int64(2 * 1024 * 1024)
	concurrency := 4
	transferSize := "4MiB"

	server, err := relay.NewServer(relay.Options{
		Addr: "127.0.0.1:0",
		Link: []bandwidth.Option{bandwidth.WithRate(rate)},
	})
	if err != nil {
		fmt.Printf("Error starting relay: %v\n", err)
		return
	}
	if err := server.Start(); err != nil {
		fmt.Printf("Error starting relay: %v\n", err)
		return
	}

	url := fmt.Sprintf("http://%s/t/%s", server.Addr(), transferSize)
	fmt.Printf("Downloading %s from %s\n", transferSize, url)
	fmt.Printf("Link: %d B/s, Concurrency: %d, expected share: %d B/s each\n\n",
		rate, concurrency, rate/int64(concurrency))

	client := &http.Client{}

	var (
		totalBytes atomic.Int64
		wg         sync.WaitGroup
	)
	perConn := make([]float64, concurrency)

	startTime := time.Now()

	for i := 0; i < concurrency; i++ {
		wg.Add(1)
		go func(conn int) {
			defer wg.Done()

			connStart := time.Now()
			resp, err := client.Get(url)
			if err != nil {
				fmt.Printf("Connection %d failed: %v\n", conn, err)
				return
			}
			defer resp.Body.Close()

			buf := make([]byte, 32*1024)
			var got int64
			for {
				n, err := resp.Body.Read(buf)
				got += int64(n)
				totalBytes.Add(int64(n))
				if err == io.EOF {
					break
				}
				if err != nil {
					fmt.Printf("Connection %d read error: %v\n", conn, err)
					break
				}
			}
			perConn[conn] = float64(got) / time.Since(connStart).Seconds()
		}(i)
	}

	// Progress reporter
	done := make(chan struct{})
	go func() {
		ticker := time.NewTicker(1 * time.Second)
		defer ticker.Stop()
		lastCount := int64(0)

		for {
			select {
			case <-ticker.C:
				currentCount := totalBytes.Load()
				fmt.Printf("Aggregate rate: %d B/s, Total: %d bytes\n",
					currentCount-lastCount, currentCount)
				lastCount = currentCount
			case <-done:
				return
			}
		}
	}()

	wg.Wait()
	close(done)
	actualDuration := time.Since(startTime)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	server.Shutdown(shutdownCtx)

	fmt.Printf("\n=== Results ===\n")
	for i, bps := range perConn {
		fmt.Printf("Connection %d: %.0f B/s (%.2fx of equal share)\n",
			i, bps, bps/(float64(rate)/float64(concurrency)))
	}
	fmt.Printf("Total: %d bytes in %v\n", totalBytes.Load(), actualDuration)
	fmt.Printf("Aggregate: %.0f B/s (link configured at %d B/s)\n",
		float64(totalBytes.Load())/actualDuration.Seconds(), rate)
}
