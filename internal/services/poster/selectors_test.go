package poster

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadSelectorsEmptyPathReturnsDefaults(t *testing.T) {
	selectors, err := LoadSelectors("")
	require.NoError(t, err)
	assert.Equal(t, DefaultSelectors(), selectors)
}

func TestLoadSelectorsMergesOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "selectors.yaml")
	overrides := `
title_input: 'input[aria-label="Title"]'
rate_limit_markers:
  - "posting too fast"
`
	require.NoError(t, os.WriteFile(path, []byte(overrides), 0644))

	selectors, err := LoadSelectors(path)
	require.NoError(t, err)

	assert.Equal(t, `input[aria-label="Title"]`, selectors.TitleInput)
	assert.Equal(t, []string{"posting too fast"}, selectors.RateLimitMarkers)

	// Keys absent from the overrides file keep the compiled-in value
	defaults := DefaultSelectors()
	assert.Equal(t, defaults.PriceInput, selectors.PriceInput)
	assert.Equal(t, defaults.PublishButton, selectors.PublishButton)
	assert.Equal(t, defaults.UploadInputs, selectors.UploadInputs)
}

func TestLoadSelectorsBadFileStillReturnsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "selectors.yaml")
	require.NoError(t, os.WriteFile(path, []byte("title_input: [unclosed"), 0644))

	selectors, err := LoadSelectors(path)
	assert.Error(t, err)
	assert.Equal(t, DefaultSelectors().PublishButton, selectors.PublishButton)
}

func TestLoadSelectorsMissingFile(t *testing.T) {
	selectors, err := LoadSelectors(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
	assert.Equal(t, DefaultSelectors(), selectors)
}
