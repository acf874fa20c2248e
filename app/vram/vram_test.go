package vram

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEstimate(t *testing.T) {
	tests := []struct {
		name      string
		batchSize string
		rank      string
		want      string
	}{
		{"sd15 defaults", "2", "32", "Estimated VRAM: 3.6 GB"},
		{"sdxl defaults", "1", "64", "Estimated VRAM: 3.7 GB"},
		{"pony defaults", "3", "16", "Estimated VRAM: 3.7 GB"},
		{"zeros", "0", "0", "Estimated VRAM: 2.0 GB"},
		{"large", "16", "128", "Estimated VRAM: 12.3 GB"},
		{"whitespace", " 2 ", "32\n", "Estimated VRAM: 3.6 GB"},
		{"empty batch", "", "32", NotAvailable},
		{"empty rank", "2", "", NotAvailable},
		{"float batch", "2.5", "32", NotAvailable},
		{"text rank", "2", "abc", NotAvailable},
		{"both bad", "x", "y", NotAvailable},
		{"overflow", "99999999999999999999999", "1", NotAvailable},
		{"huge batch", "20000000000000000", "1", "Estimated VRAM: 9765625000000002.0 GB"},
		{"max int", "9223372036854775807", "9223372036854775807", "Estimated VRAM: 4683743612465315840.0 GB"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Estimate(tt.batchSize, tt.rank))
		})
	}
}

func TestEstimate_MatchesFormula(t *testing.T) {
	for b := 0; b <= 32; b++ {
		for r := 0; r <= 256; r += 8 {
			want := fmt.Sprintf("Estimated VRAM: %.1f GB", float64(2000+500*b+20*r)/1024)
			assert.Equal(t, want, Estimate(fmt.Sprint(b), fmt.Sprint(r)), "b=%d r=%d", b, r)
		}
	}
}

func TestMemoryMB(t *testing.T) {
	assert.InDelta(t, 2000, MemoryMB(0, 0), 0)
	assert.InDelta(t, 3640, MemoryMB(2, 32), 0)
	assert.InDelta(t, 3780, MemoryMB(1, 64), 0)
	assert.Positive(t, MemoryMB(20000000000000000, 1))
}

func TestRecompute(t *testing.T) {
	assert.Equal(t, Estimate("3", "16"), Recompute("3", "16"))
	assert.Equal(t, NotAvailable, Recompute("three", "16"))
}
