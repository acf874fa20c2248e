//go:build e2e

package e2e

import (
	"testing"

	"github.com/playwright-community/playwright-go"
	"github.com/stretchr/testify/require"
)

// --- preset tests ---

func TestPreset_SelectFillsFields(t *testing.T) {
	tests := []struct {
		preset, model, lr, batch, rank, vram string
	}{
		{"SDXL", "stabilityai/stable-diffusion-xl-base-1.0", "3e-5", "1", "64", "Estimated VRAM: 3.7 GB"},
		{"PonyXL", "civitai/pony-diffusion-v6-xl", "1.0", "3", "16", "Estimated VRAM: 3.7 GB"},
		{"SD1.5", "runwayml/stable-diffusion-v1-5", "1e-4", "2", "32", "Estimated VRAM: 3.6 GB"},
	}

	page := newPage(t)
	navigateToWizard(t, page)
	for _, tt := range tests {
		t.Run(tt.preset, func(t *testing.T) {
			_, err := page.Locator("select[name='preset']").SelectOption(playwright.SelectOptionValues{
				Values: &[]string{tt.preset},
			})
			require.NoError(t, err)

			waitForValue(t, page, "input[name='model']", tt.model)
			waitForValue(t, page, "input[name='learning_rate']", tt.lr)
			waitForValue(t, page, "input[name='batch_size']", tt.batch)
			waitForValue(t, page, "input[name='rank']", tt.rank)
			waitForText(t, page, "#vram", tt.vram)
		})
	}
}

// --- vram estimate tests ---

func TestVram_RecomputedOnInput(t *testing.T) {
	page := newPage(t)
	navigateToWizard(t, page)

	require.NoError(t, page.Locator("input[name='batch_size']").Fill("4"))
	require.NoError(t, page.Locator("input[name='rank']").Fill("128"))
	waitForText(t, page, "#vram", "Estimated VRAM: 6.4 GB")

	require.NoError(t, page.Locator("input[name='rank']").Fill("abc"))
	waitForText(t, page, "#vram", "Estimated VRAM: N/A")

	require.NoError(t, page.Locator("input[name='rank']").Fill("8"))
	require.NoError(t, page.Locator("input[name='batch_size']").Fill("1"))
	waitForText(t, page, "#vram", "Estimated VRAM: 2.6 GB")
}

func TestVram_FollowsPresetAfterEdit(t *testing.T) {
	page := newPage(t)
	navigateToWizard(t, page)

	require.NoError(t, page.Locator("input[name='batch_size']").Fill("10"))
	waitForText(t, page, "#vram", "Estimated VRAM: 7.5 GB")

	_, err := page.Locator("select[name='preset']").SelectOption(playwright.SelectOptionValues{Values: &[]string{"SDXL"}})
	require.NoError(t, err)
	waitForValue(t, page, "input[name='batch_size']", "1")
	waitForText(t, page, "#vram", "Estimated VRAM: 3.7 GB")
}
