package poster

import (
	"fmt"
	"strings"

	"github.com/listup/publisher/internal/models"
)

// maxDescriptionFeatures caps the feature bullets so long scraped feature
// lists do not blow out the composer's description field
const maxDescriptionFeatures = 10

// BuildDescription assembles the marketplace description from the listing's
// structured attributes: room summary, area, feature bullets and a contact
// footer, with the scraped free-text description in between.
func BuildDescription(listing *models.Listing) string {
	var parts []string

	var rooms []string
	if listing.Bedrooms > 0 {
		rooms = append(rooms, fmt.Sprintf("%d %s", listing.Bedrooms, pluralize(listing.Bedrooms, "recámara", "recámaras")))
	}
	if listing.Bathrooms > 0 {
		rooms = append(rooms, fmt.Sprintf("%s %s", formatCount(listing.Bathrooms), pluralizeFloat(listing.Bathrooms, "baño", "baños")))
	}
	if len(rooms) > 0 {
		parts = append(parts, strings.Join(rooms, " • "))
	}

	if listing.AreaM2 > 0 {
		parts = append(parts, fmt.Sprintf("Área: %s m²", formatCount(listing.AreaM2)))
	}

	if len(listing.Features) > 0 {
		parts = append(parts, "\n🏠 Características:")
		features := listing.Features
		if len(features) > maxDescriptionFeatures {
			features = features[:maxDescriptionFeatures]
		}
		for _, feature := range features {
			parts = append(parts, "• "+feature)
		}
	}

	if listing.Description != "" {
		parts = append(parts, "\n"+listing.Description)
	}

	parts = append(parts, "\n📞 ¡Contáctanos para más información!")

	return strings.Join(parts, "\n")
}

// NormalizePrice renders the listing price the way the composer's price
// input expects it: digits only, no currency symbol, no thousands
// separators.
func NormalizePrice(listing *models.Listing) string {
	price := fmt.Sprintf("%.2f", listing.Price)
	price = strings.TrimSuffix(price, ".00")

	replacer := strings.NewReplacer("$", "", ",", "", " ", "")
	price = replacer.Replace(price)
	if listing.Currency != "" {
		price = strings.TrimSuffix(price, listing.Currency)
	}
	return strings.TrimSpace(price)
}

func pluralize(n int, singular, plural string) string {
	if n == 1 {
		return singular
	}
	return plural
}

func pluralizeFloat(n float64, singular, plural string) string {
	if n == 1 {
		return singular
	}
	return plural
}

// formatCount renders a float without a trailing ".0" for whole values
// (2.5 baños but 2 baños, not 2.0)
func formatCount(n float64) string {
	if n == float64(int64(n)) {
		return fmt.Sprintf("%d", int64(n))
	}
	return strings.TrimRight(fmt.Sprintf("%.1f", n), "0")
}
