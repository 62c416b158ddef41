// Package filtering decides which candidate volumes are worth adding.
//
// [Engine] applies the configured criteria in a fixed, cheapest-first order and stops at
// the first rejection:
//
//  1. publisher allow-list (name or ID, case-insensitive)
//  2. name deny regex
//  3. name allow regex
//  4. minimum start year (unknown years pass)
//  5. minimum issue count
//  6. appearance gating (heavy sweep only)
//
// Appearance gating is the only step that can cost reference queries. It runs through the
// [AppearanceProber] given to [NewEngine], and only when the heavy sweep is enabled with a threshold.
package filtering
