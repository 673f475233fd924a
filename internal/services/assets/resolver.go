package assets

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/listup/publisher/internal/common"
	"github.com/listup/publisher/internal/interfaces"
	"github.com/listup/publisher/internal/models"
)

// Resolver implements the AssetResolver interface. Local references are
// verified on disk; remote URLs are downloaded into a content-addressed
// cache. Transient download failures are retried a small bounded number of
// times before the reference is surfaced as unavailable.
type Resolver struct {
	config    common.ImagesConfig
	userAgent string
	client    *http.Client
	logger    arbor.ILogger

	timeout time.Duration
	retries int
}

// NewResolver creates a new image asset resolver
func NewResolver(config common.ImagesConfig, userAgent string, logger arbor.ILogger) (*Resolver, error) {
	if err := os.MkdirAll(config.CacheDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create image cache directory: %w", err)
	}

	timeout := common.ParseDurationOr(config.DownloadTimeout, 30*time.Second)
	retries := config.DownloadRetries
	if retries < 0 {
		retries = 0
	}

	return &Resolver{
		config:    config,
		userAgent: userAgent,
		client:    &http.Client{Timeout: timeout},
		logger:    logger,
		timeout:   timeout,
		retries:   retries,
	}, nil
}

// Resolve returns the listing's images as ordered, locally-accessible
// payloads. Order is preserved from the listing's reference order, which
// selects the cover photo on the remote platform.
func (r *Resolver) Resolve(ctx context.Context, listing *models.Listing) ([]interfaces.ImageAsset, error) {
	if len(listing.ImageRefs) == 0 {
		return nil, &interfaces.AssetUnavailableError{Ref: "", Err: fmt.Errorf("listing has no image references")}
	}

	assets := make([]interfaces.ImageAsset, 0, len(listing.ImageRefs))
	for _, ref := range listing.ImageRefs {
		asset, err := r.resolveRef(ctx, ref)
		if err != nil {
			r.logger.Warn().
				Str("listing_id", listing.ID).
				Str("ref", ref).
				Err(err).
				Msg("Image reference could not be resolved")
			return nil, &interfaces.AssetUnavailableError{Ref: ref, Err: err}
		}
		assets = append(assets, asset)
	}

	r.logger.Debug().
		Str("listing_id", listing.ID).
		Int("images", len(assets)).
		Msg("Resolved image assets")

	return assets, nil
}

func (r *Resolver) resolveRef(ctx context.Context, ref string) (interfaces.ImageAsset, error) {
	if strings.HasPrefix(ref, "http://") || strings.HasPrefix(ref, "https://") {
		return r.download(ctx, ref)
	}

	info, err := os.Stat(ref)
	if err != nil {
		return interfaces.ImageAsset{}, fmt.Errorf("local image missing: %w", err)
	}
	if info.IsDir() {
		return interfaces.ImageAsset{}, fmt.Errorf("local image reference is a directory")
	}

	abs, err := filepath.Abs(ref)
	if err != nil {
		return interfaces.ImageAsset{}, fmt.Errorf("failed to resolve path: %w", err)
	}

	return interfaces.ImageAsset{Ref: ref, Path: abs, Size: info.Size()}, nil
}

// download fetches a remote image into the cache with bounded retries on
// transient failures. Cached files are content-addressed by SHA-256 so
// repeated attempts for the same listing reuse the payload.
func (r *Resolver) download(ctx context.Context, ref string) (interfaces.ImageAsset, error) {
	var lastErr error
	for attempt := 0; attempt <= r.retries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return interfaces.ImageAsset{}, ctx.Err()
			case <-time.After(time.Duration(attempt) * time.Second):
			}
		}

		asset, retryable, err := r.downloadOnce(ctx, ref)
		if err == nil {
			return asset, nil
		}
		lastErr = err
		if !retryable {
			break
		}

		r.logger.Debug().
			Str("ref", ref).
			Int("attempt", attempt+1).
			Err(err).
			Msg("Transient image download failure, retrying")
	}
	return interfaces.ImageAsset{}, lastErr
}

func (r *Resolver) downloadOnce(ctx context.Context, ref string) (interfaces.ImageAsset, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ref, nil)
	if err != nil {
		return interfaces.ImageAsset{}, false, fmt.Errorf("invalid image URL: %w", err)
	}
	req.Header.Set("User-Agent", r.userAgent)

	resp, err := r.client.Do(req)
	if err != nil {
		// Network-level failures are the transient class
		return interfaces.ImageAsset{}, true, fmt.Errorf("download failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		retryable := resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests
		return interfaces.ImageAsset{}, retryable, fmt.Errorf("download failed: HTTP %d", resp.StatusCode)
	}

	contentType := resp.Header.Get("Content-Type")
	if contentType != "" && !strings.HasPrefix(contentType, "image/") {
		return interfaces.ImageAsset{}, false, fmt.Errorf("not an image: content type %s", contentType)
	}

	limit := r.config.MaxImageSize
	if limit <= 0 {
		limit = 10 * 1024 * 1024
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, limit+1))
	if err != nil {
		return interfaces.ImageAsset{}, true, fmt.Errorf("failed to read image body: %w", err)
	}
	if int64(len(data)) > limit {
		return interfaces.ImageAsset{}, false, fmt.Errorf("image exceeds size limit of %d bytes", limit)
	}
	if len(data) == 0 {
		return interfaces.ImageAsset{}, true, fmt.Errorf("empty image body")
	}

	hash := sha256.Sum256(data)
	name := hex.EncodeToString(hash[:]) + extensionFor(contentType, ref)
	path := filepath.Join(r.config.CacheDir, name)

	if _, err := os.Stat(path); err != nil {
		if err := os.WriteFile(path, data, 0644); err != nil {
			return interfaces.ImageAsset{}, false, fmt.Errorf("failed to write cached image: %w", err)
		}
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return interfaces.ImageAsset{}, false, fmt.Errorf("failed to resolve cache path: %w", err)
	}

	return interfaces.ImageAsset{Ref: ref, Path: abs, Size: int64(len(data))}, false, nil
}

func extensionFor(contentType, ref string) string {
	switch contentType {
	case "image/jpeg":
		return ".jpg"
	case "image/png":
		return ".png"
	case "image/webp":
		return ".webp"
	case "image/gif":
		return ".gif"
	}
	if ext := strings.ToLower(filepath.Ext(ref)); ext != "" && len(ext) <= 5 {
		return ext
	}
	return ".jpg"
}
