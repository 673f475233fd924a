package poster

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Selectors holds every DOM selector the posting machine touches. The
// marketplace UI is unversioned and changes without notice, so selectors are
// config, not code: a drift is fixed by editing the YAML overrides file, not
// by a release.
type Selectors struct {
	TitleInput         string   `yaml:"title_input"`
	PriceInput         string   `yaml:"price_input"`
	DescriptionInput   string   `yaml:"description_input"`
	LocationInput      string   `yaml:"location_input"`
	LocationSuggestion string   `yaml:"location_suggestion"`
	CategorySelector   string   `yaml:"category_selector"`
	HousingCategory    string   `yaml:"housing_category"` // Visible text of the housing category option
	PropertyTypeField  string   `yaml:"property_type_field"`
	ListingTypeField   string   `yaml:"listing_type_field"`
	BedroomsInput      string   `yaml:"bedrooms_input"`
	BathroomsInput     string   `yaml:"bathrooms_input"`
	AreaInput          string   `yaml:"area_input"`
	UploadInputs       []string `yaml:"upload_inputs"` // Tried in order until one matches
	UploadedThumb      string   `yaml:"uploaded_thumb"`
	PublishButton      string   `yaml:"publish_button"`
	ConfirmMarker      string   `yaml:"confirm_marker"`
	RateLimitMarkers   []string `yaml:"rate_limit_markers"` // Body text fragments signaling throttling
}

// DefaultSelectors returns the compiled-in selector set
func DefaultSelectors() Selectors {
	return Selectors{
		TitleInput:         `[data-testid="marketplace-composer-title-input"]`,
		PriceInput:         `[data-testid="marketplace-composer-price-input"]`,
		DescriptionInput:   `[data-testid="marketplace-composer-description-input"]`,
		LocationInput:      `[data-testid="marketplace-composer-location-input"]`,
		LocationSuggestion: `[data-testid="location-suggestion-0"]`,
		CategorySelector:   `[data-testid="marketplace-composer-category-selector"]`,
		HousingCategory:    "Vivienda en venta o alquiler",
		PropertyTypeField:  `[data-testid="property-type-dropdown"]`,
		ListingTypeField:   `[data-testid="listing-type-dropdown"]`,
		BedroomsInput:      `[data-testid="bedrooms-input"]`,
		BathroomsInput:     `[data-testid="bathrooms-input"]`,
		AreaInput:          `[data-testid="area-input"]`,
		UploadInputs: []string{
			`[data-testid="marketplace-composer-media-upload"] input[type="file"]`,
			`input[type="file"][accept*="image"]`,
			`[data-testid="media-upload-button"] input[type="file"]`,
		},
		UploadedThumb: `[data-testid="uploaded-image"]`,
		PublishButton: `[data-testid="marketplace-composer-publish-button"]`,
		RateLimitMarkers: []string{
			"temporarily blocked",
			"limit reached",
			"try again later",
			"demasiadas publicaciones",
		},
	}
}

// LoadSelectors returns the default selectors merged with YAML overrides
// from the given file. An empty path returns the defaults unchanged.
func LoadSelectors(path string) (Selectors, error) {
	selectors := DefaultSelectors()
	if path == "" {
		return selectors, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return selectors, fmt.Errorf("failed to read selectors file %s: %w", path, err)
	}

	// Unmarshal over the defaults: absent keys keep their default value
	if err := yaml.Unmarshal(data, &selectors); err != nil {
		return selectors, fmt.Errorf("failed to parse selectors file %s: %w", path, err)
	}

	return selectors, nil
}
