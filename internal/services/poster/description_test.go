package poster

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/listup/publisher/internal/models"
)

func TestBuildDescription(t *testing.T) {
	listing := &models.Listing{
		Title:       "Casa en venta",
		Description: "Hermosa casa en zona residencial.",
		Bedrooms:    3,
		Bathrooms:   2.5,
		AreaM2:      180,
		Features:    []string{"Jardín", "Cochera techada"},
	}

	desc := BuildDescription(listing)

	assert.Contains(t, desc, "3 recámaras • 2.5 baños")
	assert.Contains(t, desc, "Área: 180 m²")
	assert.Contains(t, desc, "🏠 Características:")
	assert.Contains(t, desc, "• Jardín")
	assert.Contains(t, desc, "• Cochera techada")
	assert.Contains(t, desc, "Hermosa casa en zona residencial.")
	assert.Contains(t, desc, "📞 ¡Contáctanos para más información!")
}

func TestBuildDescriptionSingularForms(t *testing.T) {
	listing := &models.Listing{Bedrooms: 1, Bathrooms: 1}
	desc := BuildDescription(listing)
	assert.Contains(t, desc, "1 recámara • 1 baño")
	assert.NotContains(t, desc, "recámaras")
}

func TestBuildDescriptionCapsFeatures(t *testing.T) {
	listing := &models.Listing{}
	for i := 0; i < 25; i++ {
		listing.Features = append(listing.Features, fmt.Sprintf("Amenidad %d", i))
	}

	desc := BuildDescription(listing)
	assert.Equal(t, maxDescriptionFeatures, strings.Count(desc, "• Amenidad"))
}

func TestBuildDescriptionOmitsEmptySections(t *testing.T) {
	desc := BuildDescription(&models.Listing{})
	assert.NotContains(t, desc, "recámara")
	assert.NotContains(t, desc, "Área")
	assert.NotContains(t, desc, "Características")
	assert.Contains(t, desc, "📞", "contact footer is always present")
}

func TestNormalizePrice(t *testing.T) {
	tests := []struct {
		name     string
		listing  models.Listing
		expected string
	}{
		{"whole amount drops decimals", models.Listing{Price: 1500000}, "1500000"},
		{"fractional amount keeps decimals", models.Listing{Price: 1250.50}, "1250.50"},
		{"currency suffix stripped", models.Listing{Price: 9000, Currency: "MXN"}, "9000"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, NormalizePrice(&tt.listing))
		})
	}
}

func TestFormatCount(t *testing.T) {
	assert.Equal(t, "2", formatCount(2))
	assert.Equal(t, "2.5", formatCount(2.5))
	assert.Equal(t, "180", formatCount(180.0))
}
