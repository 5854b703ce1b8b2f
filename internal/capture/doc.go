// Package capture holds the latest depth frame produced by a capture source.
//
// A producer (Synthetic, or a hardware binding) calls Store.Publish for every
// frame it receives; consumers read the most recent frame and its metadata
// without blocking. Before the first frame both reads report "unavailable".
package capture
