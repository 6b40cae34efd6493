// Package sim provides the deterministic guest TSC scaling and
// migration simulation engine.
//
// # Reading Guide
//
// Start with these three files to understand the core math:
//   - fixedpoint.go: fixed point layouts (AMD 8.32, Intel 16.48) and the
//     guest/host frequency ratio
//   - scale.go: the 128-bit multiply/shift primitive behind the Scaler
//     interface, in two interchangeable implementations
//   - simulator.go: the per-segment sampling loop and migration freezing
//
// # Architecture
//
// The sim package owns the math and the run loop; storage and rendering
// live in sub-packages:
//   - sim/record/: SQLite recording of sample rows and segment metadata
//   - sim/report/: CSV and Markdown rendering with drift statistics
//
// All arithmetic is unsigned 64-bit with 128-bit intermediates from
// math/bits; nothing here touches floating point except display
// helpers. Scaling truncates toward zero by contract, so a guest clock
// under a non-representable ratio drifts slightly below the ideal
// linear progression. That drift is pinned by tests, not compensated.
//
// # Key Interfaces
//
//   - Scaler: the multiply/shift primitive. The native and bitwise
//     implementations must agree bit for bit on every input, and the
//     "both" selector cross-checks them on every call.
package sim
