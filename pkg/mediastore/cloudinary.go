// Package mediastore stores and retrieves recorded audio blobs.
package mediastore

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cloudinary/cloudinary-go/v2"
	"github.com/cloudinary/cloudinary-go/v2/api/uploader"
	"github.com/rs/zerolog"
)

// Store abstracts the blob storage the response pipeline reads and writes.
type Store interface {
	Upload(ctx context.Context, path string, reader io.Reader, contentType string) (string, error)
	Download(ctx context.Context, path string) ([]byte, error)
	SignedURL(path string, ttl time.Duration) (string, error)
}

// Config contains credentials required to talk to Cloudinary.
type Config struct {
	CloudName string
	APIKey    string
	APISecret string
	Folder    string
}

// Service implements Store using Cloudinary. Audio assets are delivered
// under Cloudinary's video resource type.
type Service struct {
	client     *cloudinary.Cloudinary
	folder     string
	httpClient *http.Client
	logger     zerolog.Logger
}

// New constructs a Cloudinary-backed media store.
func New(cfg Config, logger zerolog.Logger) (*Service, error) {
	if cfg.CloudName == "" || cfg.APIKey == "" || cfg.APISecret == "" {
		return nil, fmt.Errorf("cloudinary credentials must be provided")
	}

	cld, err := cloudinary.NewFromParams(cfg.CloudName, cfg.APIKey, cfg.APISecret)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize cloudinary: %w", err)
	}

	return &Service{
		client:     cld,
		folder:     strings.Trim(cfg.Folder, "/"),
		httpClient: &http.Client{Timeout: 30 * time.Second},
		logger:     logger.With().Str("component", "mediastore").Logger(),
	}, nil
}

// Upload stores the audio blob and returns its delivery URL.
func (s *Service) Upload(ctx context.Context, path string, reader io.Reader, contentType string) (string, error) {
	params := uploader.UploadParams{
		Folder:       s.folder,
		PublicID:     path,
		ResourceType: "video",
	}

	result, err := s.client.Upload.Upload(ctx, reader, params)
	if err != nil {
		return "", fmt.Errorf("failed to upload audio: %w", err)
	}

	s.logger.Info().Str("public_id", result.PublicID).Str("content_type", contentType).Msg("audio uploaded")

	return result.SecureURL, nil
}

// Download fetches the stored audio bytes via a signed delivery URL.
func (s *Service) Download(ctx context.Context, path string) ([]byte, error) {
	url, err := s.SignedURL(path, 5*time.Minute)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build download request: %w", err)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to download audio: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("audio download returned status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read audio body: %w", err)
	}

	return data, nil
}

// SignedURL produces a time-limited delivery URL for the stored audio.
func (s *Service) SignedURL(path string, ttl time.Duration) (string, error) {
	media, err := s.client.Video(s.qualified(path))
	if err != nil {
		return "", fmt.Errorf("failed to build media asset: %w", err)
	}

	media.Config.URL.SignURL = true
	if ttl > 0 {
		media.Config.AuthToken.Duration = int64(ttl.Seconds())
	}

	url, err := media.String()
	if err != nil {
		return "", fmt.Errorf("failed to sign media url: %w", err)
	}

	return url, nil
}

func (s *Service) qualified(path string) string {
	if s.folder == "" || strings.HasPrefix(path, s.folder+"/") {
		return path
	}
	return s.folder + "/" + path
}
