// Package bandwidth shares one bytes-per-second budget fairly among many
// concurrent byte streams, simulating several transfers squeezed through
// a single link.
//
// A Group owns the budget and a tick scheduler running at a configurable
// resolution. Each stream is represented by a Throttle that buffers
// producer bytes and releases them to a downstream Sink. Every tick the
// group splits the per-tick budget equally among the active throttles;
// unused allotment is forfeited at the next tick, so fairness is
// recomputed continuously as members come and go.
//
// # Quick Start
//
//	group, _ := bandwidth.NewGroup(
//	    bandwidth.WithRate(125_000), // one megabit
//	    bandwidth.WithResolution(40),
//	)
//
//	t, _ := group.CreateThrottle(bandwidth.NewWriterSink(conn))
//	w := bandwidth.NewWriter(ctx, t)
//	io.Copy(w, file)
//	w.Close() // waits for the final drain
//
// # Backpressure
//
// Both edges of a throttle carry a poll/notify backpressure contract.
// On the producer side, Write returns false once the pending buffer
// crosses the high-water mark and WaitWritable blocks until it drains
// below it. On the sink side, Push returns ok=false when the downstream
// cannot accept more and Ready resumes the drain; a resumed drain never
// exceeds what is left of the current tick's allotment.
//
// # Reconfiguration
//
// Configure applies a partial configuration atomically and takes effect
// on the next tick:
//
//	group.Configure(bandwidth.WithRate(0))      // freeze the link
//	group.Configure(bandwidth.WithRate(50_000)) // thaw at 50 kB/s
package bandwidth
