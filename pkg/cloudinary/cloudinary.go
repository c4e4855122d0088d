package cloudinary

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"path"
	"path/filepath"
	"strings"

	"github.com/cloudinary/cloudinary-go/v2"
	"github.com/cloudinary/cloudinary-go/v2/api/uploader"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Config contains credentials required to talk to Cloudinary.
type Config struct {
	CloudName string
	APIKey    string
	APISecret string
	Folder    string
}

// Service stores assignment attachments and submission files in Cloudinary.
type Service struct {
	client *cloudinary.Cloudinary
	folder string
	logger zerolog.Logger
}

// New constructs a Cloudinary service instance.
func New(cfg Config, logger zerolog.Logger) (*Service, error) {
	if cfg.CloudName == "" || cfg.APIKey == "" || cfg.APISecret == "" {
		return nil, fmt.Errorf("cloudinary credentials must be provided")
	}

	cld, err := cloudinary.NewFromParams(cfg.CloudName, cfg.APIKey, cfg.APISecret)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize cloudinary: %w", err)
	}

	return &Service{
		client: cld,
		folder: cfg.Folder,
		logger: logger.With().Str("component", "cloudinary").Logger(),
	}, nil
}

// Upload sends the file to Cloudinary and returns its secure URL.
// The original extension is kept so raw documents stay downloadable with the right type.
func (s *Service) Upload(ctx context.Context, name string, reader io.Reader) (string, error) {
	params := uploader.UploadParams{
		Folder:       strings.Trim(s.folder, "/"),
		PublicID:     BuildPublicID(name),
		ResourceType: "auto",
	}

	result, err := s.client.Upload.Upload(ctx, reader, params)
	if err != nil {
		return "", fmt.Errorf("failed to upload asset: %w", err)
	}
	if result.Error.Message != "" {
		return "", fmt.Errorf("failed to upload asset: %s", result.Error.Message)
	}

	s.logger.Info().Str("public_id", result.PublicID).Int("bytes", result.Bytes).Msg("file uploaded to cloudinary")

	return result.SecureURL, nil
}

// Delete destroys the asset behind a URL returned by Upload. Missing assets are not an error.
func (s *Service) Delete(ctx context.Context, assetURL string) error {
	publicID, resourceType, err := ParseAssetURL(assetURL)
	if err != nil {
		return err
	}

	// Non-raw assets may or may not keep the extension in their public id.
	candidates := []string{publicID}
	if resourceType != "raw" {
		candidates = []string{strings.TrimSuffix(publicID, path.Ext(publicID)), publicID}
	}

	invalidate := true
	for _, candidate := range candidates {
		result, err := s.client.Upload.Destroy(ctx, uploader.DestroyParams{
			PublicID:     candidate,
			ResourceType: resourceType,
			Invalidate:   &invalidate,
		})
		if err != nil {
			return fmt.Errorf("failed to delete asset: %w", err)
		}
		if result.Error.Message != "" {
			return fmt.Errorf("failed to delete asset: %s", result.Error.Message)
		}
		if result.Result == "ok" {
			s.logger.Info().Str("public_id", candidate).Msg("file deleted from cloudinary")
			return nil
		}
	}

	s.logger.Debug().Str("url", assetURL).Msg("cloudinary asset already gone")
	return nil
}

// ParseAssetURL extracts the public id and resource type from a delivery URL such as
// https://res.cloudinary.com/<cloud>/raw/upload/v123/<folder>/<id>.pdf.
func ParseAssetURL(assetURL string) (publicID, resourceType string, err error) {
	parsed, err := url.Parse(assetURL)
	if err != nil {
		return "", "", fmt.Errorf("invalid asset url: %w", err)
	}

	segments := strings.Split(strings.Trim(parsed.Path, "/"), "/")
	marker := -1
	for i := 1; i < len(segments)-1; i++ {
		if segments[i] == "upload" {
			marker = i
			break
		}
	}
	if marker < 1 {
		return "", "", fmt.Errorf("invalid asset url %q", assetURL)
	}

	rest := segments[marker+1:]
	if len(rest) > 1 && isVersionSegment(rest[0]) {
		rest = rest[1:]
	}

	return strings.Join(rest, "/"), segments[marker-1], nil
}

func isVersionSegment(segment string) bool {
	if len(segment) < 2 || segment[0] != 'v' {
		return false
	}
	for _, r := range segment[1:] {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// Ping checks that the configured credentials are accepted.
func (s *Service) Ping(ctx context.Context) error {
	result, err := s.client.Admin.Ping(ctx)
	if err != nil {
		return fmt.Errorf("cloudinary ping: %w", err)
	}
	if result.Error.Message != "" {
		return fmt.Errorf("cloudinary ping: %s", result.Error.Message)
	}
	return nil
}

// BuildPublicID turns an upload name into a unique, URL-safe identifier.
func BuildPublicID(name string) string {
	ext := strings.ToLower(filepath.Ext(name))
	base := strings.TrimSuffix(filepath.Base(name), filepath.Ext(name))
	base = strings.Map(func(r rune) rune {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			return r
		}
		return '-'
	}, base)

	base = strings.Trim(base, "-")
	if base == "" {
		base = "upload"
	}

	suffix := strings.Split(uuid.NewString(), "-")[0]
	return fmt.Sprintf("%s-%s%s", base, suffix, ext)
}
