package poster

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/chromedp"

	"github.com/listup/publisher/internal/interfaces"
	"github.com/listup/publisher/internal/models"
)

// errSubmitNotDispatched marks a submit-stage failure that provably
// happened before the click, so it is safe to classify as a plain failure
var errSubmitNotDispatched = errors.New("submit control not found")

// navigate opens the composer URL and verifies the browser actually landed
// on the listing-creation page
func (m *Machine) navigate(ctx context.Context) error {
	if err := chromedp.Run(ctx,
		chromedp.Navigate(m.config.ComposerURL),
		chromedp.WaitReady(`body`, chromedp.ByQuery),
	); err != nil {
		return fmt.Errorf("navigation failed: %w", err)
	}

	var currentURL string
	if err := chromedp.Run(ctx, chromedp.Location(&currentURL)); err != nil {
		return fmt.Errorf("failed to read location: %w", err)
	}
	if !strings.Contains(currentURL, "/marketplace/create") {
		return fmt.Errorf("landed on %s instead of the composer", currentURL)
	}
	return nil
}

// openComposer waits for the composer form to render
func (m *Machine) openComposer(ctx context.Context) error {
	if err := chromedp.Run(ctx,
		chromedp.WaitVisible(m.selectors.TitleInput, chromedp.ByQuery),
	); err != nil {
		return fmt.Errorf("composer did not render: %w", err)
	}
	return nil
}

// fillFields writes every content field and reads each one back. The UI can
// silently drop input, so a write without a matching read-back does not
// count as filled.
func (m *Machine) fillFields(ctx context.Context, listing *models.Listing) error {
	if err := m.fillVerified(ctx, "title", m.selectors.TitleInput, listing.Title); err != nil {
		return err
	}
	if err := m.fillVerified(ctx, "price", m.selectors.PriceInput, NormalizePrice(listing)); err != nil {
		return err
	}
	if err := m.fillVerified(ctx, "description", m.selectors.DescriptionInput, BuildDescription(listing)); err != nil {
		return err
	}

	if err := m.selectCategory(ctx); err != nil {
		return err
	}

	if listing.PropertyType != "" {
		if err := m.selectDropdown(ctx, "property_type", m.selectors.PropertyTypeField, listing.PropertyType); err != nil {
			return err
		}
	}
	listingType := listing.ListingType
	if listingType == "" {
		listingType = "Venta"
	}
	if err := m.selectDropdown(ctx, "listing_type", m.selectors.ListingTypeField, listingType); err != nil {
		return err
	}

	if listing.Bedrooms > 0 {
		if err := m.fillVerified(ctx, "bedrooms", m.selectors.BedroomsInput, fmt.Sprintf("%d", listing.Bedrooms)); err != nil {
			return err
		}
	}
	if listing.Bathrooms > 0 {
		if err := m.fillVerified(ctx, "bathrooms", m.selectors.BathroomsInput, formatCount(listing.Bathrooms)); err != nil {
			return err
		}
	}
	if listing.AreaM2 > 0 {
		if err := m.fillVerified(ctx, "area", m.selectors.AreaInput, formatCount(listing.AreaM2)); err != nil {
			return err
		}
	}

	return m.fillLocation(ctx, listing.Location)
}

// fillVerified writes a value into an input and confirms the rendered value
// matches what was intended
func (m *Machine) fillVerified(ctx context.Context, field, selector, value string) error {
	if err := chromedp.Run(ctx,
		chromedp.WaitVisible(selector, chromedp.ByQuery),
		chromedp.Click(selector, chromedp.ByQuery),
		chromedp.SetValue(selector, "", chromedp.ByQuery),
		chromedp.SendKeys(selector, value, chromedp.ByQuery),
	); err != nil {
		return fmt.Errorf("failed to fill %s: %w", field, err)
	}

	var rendered string
	if err := chromedp.Run(ctx, chromedp.Value(selector, &rendered, chromedp.ByQuery)); err != nil {
		return fmt.Errorf("failed to read back %s: %w", field, err)
	}
	if strings.TrimSpace(rendered) != strings.TrimSpace(value) {
		return fmt.Errorf("%s read-back mismatch: wrote %q, page shows %q", field, value, rendered)
	}
	return nil
}

// selectCategory picks the housing category and verifies the selector
// control reflects it
func (m *Machine) selectCategory(ctx context.Context) error {
	if m.selectors.CategorySelector == "" {
		return nil
	}

	optionXPath := fmt.Sprintf(`//*[normalize-space(text())=%q]`, m.selectors.HousingCategory)
	if err := chromedp.Run(ctx,
		chromedp.Click(m.selectors.CategorySelector, chromedp.ByQuery),
		chromedp.Click(optionXPath, chromedp.BySearch),
	); err != nil {
		return fmt.Errorf("failed to select housing category: %w", err)
	}

	var rendered string
	if err := chromedp.Run(ctx, chromedp.Text(m.selectors.CategorySelector, &rendered, chromedp.ByQuery)); err != nil {
		return fmt.Errorf("failed to read back category: %w", err)
	}
	if !strings.Contains(rendered, m.selectors.HousingCategory) {
		return fmt.Errorf("category read-back mismatch: page shows %q", rendered)
	}
	return nil
}

// selectDropdown picks a dropdown option by its visible text and verifies
// the control reflects the choice
func (m *Machine) selectDropdown(ctx context.Context, field, selector, value string) error {
	optionXPath := fmt.Sprintf(`//*[normalize-space(text())=%q]`, value)
	if err := chromedp.Run(ctx,
		chromedp.Click(selector, chromedp.ByQuery),
		chromedp.Click(optionXPath, chromedp.BySearch),
	); err != nil {
		return fmt.Errorf("failed to select %s option %q: %w", field, value, err)
	}

	var rendered string
	if err := chromedp.Run(ctx, chromedp.Text(selector, &rendered, chromedp.ByQuery)); err != nil {
		return fmt.Errorf("failed to read back %s: %w", field, err)
	}
	if !strings.Contains(rendered, value) {
		return fmt.Errorf("%s read-back mismatch: wanted %q, page shows %q", field, value, rendered)
	}
	return nil
}

// fillLocation writes the location and picks the first autocomplete
// suggestion when one appears. Missing suggestions are tolerated; the typed
// value alone is valid.
func (m *Machine) fillLocation(ctx context.Context, location string) error {
	if err := m.fillVerified(ctx, "location", m.selectors.LocationInput, location); err != nil {
		return err
	}

	suggestionCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := chromedp.Run(suggestionCtx,
		chromedp.Click(m.selectors.LocationSuggestion, chromedp.ByQuery),
	); err != nil {
		// No suggestion rendered; keep the typed value
		return nil
	}
	return nil
}

// attachImages uploads the ordered image set through the composer's file
// input and verifies the rendered thumbnail count before moving on
func (m *Machine) attachImages(ctx context.Context, images []interfaces.ImageAsset) error {
	paths := make([]string, len(images))
	for i, img := range images {
		paths[i] = img.Path
	}

	inputSel, err := m.findUploadInput(ctx)
	if err != nil {
		return err
	}

	if err := chromedp.Run(ctx,
		chromedp.SetUploadFiles(inputSel, paths, chromedp.ByQuery),
	); err != nil {
		return fmt.Errorf("failed to attach images: %w", err)
	}

	expected := len(images)
	if m.config.AllowPartialImages {
		expected = 1
	}
	return m.waitForThumbnails(ctx, expected)
}

// findUploadInput tries the configured upload selectors in order. The
// platform has shipped several variants of the media widget; only one will
// be present at a time.
func (m *Machine) findUploadInput(ctx context.Context) (string, error) {
	for _, sel := range m.selectors.UploadInputs {
		var nodes []*cdp.Node
		if err := chromedp.Run(ctx,
			chromedp.Nodes(sel, &nodes, chromedp.ByQueryAll, chromedp.AtLeast(0)),
		); err != nil {
			return "", fmt.Errorf("failed to probe upload input: %w", err)
		}
		if len(nodes) > 0 {
			return sel, nil
		}
	}
	return "", fmt.Errorf("no upload input matched any known selector")
}

// waitForThumbnails polls the rendered thumbnail count until the upload is
// reflected in the DOM or the stage deadline expires
func (m *Machine) waitForThumbnails(ctx context.Context, expected int) error {
	script := fmt.Sprintf(`document.querySelectorAll(%q).length`, m.selectors.UploadedThumb)
	for {
		var count int
		if err := chromedp.Run(ctx, chromedp.Evaluate(script, &count)); err != nil {
			return fmt.Errorf("failed to count uploaded thumbnails: %w", err)
		}
		if count >= expected {
			return nil
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("uploads rendered %d of %d thumbnails: %w", count, expected, ctx.Err())
		case <-time.After(500 * time.Millisecond):
		}
	}
}

// submit dispatches the publish click. The control's existence is checked
// first so a missing button can be reported as provably not dispatched.
func (m *Machine) submit(ctx context.Context) error {
	var nodes []*cdp.Node
	if err := chromedp.Run(ctx,
		chromedp.Nodes(m.selectors.PublishButton, &nodes, chromedp.ByQueryAll, chromedp.AtLeast(0)),
	); err != nil {
		return fmt.Errorf("failed to probe publish button: %w", errors.Join(errSubmitNotDispatched, err))
	}
	if len(nodes) == 0 {
		return fmt.Errorf("%w: %s", errSubmitNotDispatched, m.selectors.PublishButton)
	}

	if err := chromedp.Run(ctx, chromedp.Click(m.selectors.PublishButton, chromedp.ByQuery)); err != nil {
		return fmt.Errorf("publish click failed: %w", err)
	}
	return nil
}

// confirm reads back proof that the listing was actually created: either
// the browser navigated to the configured confirmation URL, or the
// configured confirmation marker appears in the rendered page.
func (m *Machine) confirm(ctx context.Context) error {
	for {
		var currentURL string
		if err := chromedp.Run(ctx, chromedp.Location(&currentURL)); err != nil {
			return fmt.Errorf("failed to read location: %w", err)
		}
		if m.config.ConfirmURLPattern != "" && strings.Contains(currentURL, m.config.ConfirmURLPattern) {
			return nil
		}

		if m.config.ConfirmSelector != "" {
			found, err := m.confirmMarkerPresent(ctx)
			if err != nil {
				return err
			}
			if found {
				return nil
			}
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("no confirmation observed (last URL %s): %w", currentURL, ctx.Err())
		case <-time.After(500 * time.Millisecond):
		}
	}
}

// confirmMarkerPresent parses the rendered HTML and looks for the
// configured confirmation marker
func (m *Machine) confirmMarkerPresent(ctx context.Context) (bool, error) {
	var html string
	if err := chromedp.Run(ctx, chromedp.OuterHTML(`html`, &html, chromedp.ByQuery)); err != nil {
		return false, fmt.Errorf("failed to snapshot page: %w", err)
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return false, fmt.Errorf("failed to parse page snapshot: %w", err)
	}
	return doc.Find(m.config.ConfirmSelector).Length() > 0, nil
}
