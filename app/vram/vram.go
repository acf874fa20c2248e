// Package vram estimates memory use of a LoRA training run from batch size and network rank.
// The model is a linear heuristic for UI feedback, not a measurement.
package vram

import (
	"fmt"
	"strconv"
	"strings"
)

const (
	baseMB    = 2000 // fixed overhead of the base model
	perBatch  = 500  // per sample in a batch
	perRankMB = 20   // per unit of network rank
)

// NotAvailable is returned when batch size or rank can't be parsed
const NotAvailable = "Estimated VRAM: N/A"

// MemoryMB returns estimated memory in megabytes for the given batch size and rank.
// Computed in float64, any int input fits without overflow.
func MemoryMB(batchSize, rank int) float64 {
	return baseMB + float64(batchSize)*perBatch + float64(rank)*perRankMB
}

// Estimate returns a display string like "Estimated VRAM: 3.6 GB".
// Both values are parsed as integers; any parse failure yields NotAvailable.
func Estimate(batchSize, rank string) string {
	bs, err := strconv.Atoi(strings.TrimSpace(batchSize))
	if err != nil {
		return NotAvailable
	}
	rk, err := strconv.Atoi(strings.TrimSpace(rank))
	if err != nil {
		return NotAvailable
	}
	return fmt.Sprintf("Estimated VRAM: %.1f GB", MemoryMB(bs, rk)/1024)
}

// Recompute is called by the UI on every batch size or rank change
func Recompute(batchSize, rank string) string {
	return Estimate(batchSize, rank)
}
