package transform

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/ManuelReschke/Ghiblit/app/models"
	"github.com/ManuelReschke/Ghiblit/app/repository"
	"github.com/ManuelReschke/Ghiblit/internal/pkg/cache"
	"github.com/ManuelReschke/Ghiblit/internal/pkg/credits"
	"github.com/ManuelReschke/Ghiblit/internal/pkg/imagegen"
	"github.com/ManuelReschke/Ghiblit/internal/pkg/imageprocessor"
	"github.com/ManuelReschke/Ghiblit/internal/pkg/s3storage"
	"github.com/ManuelReschke/Ghiblit/internal/pkg/upload"
)

const (
	DefaultRecentLimit = 6
	MaxRecentLimit     = 24
	MaxPageSize        = 50
)

// StatsRecorder counts successful transforms.
type StatsRecorder interface {
	AddTransform(ctx context.Context, style string) error
}

// Input is one uploaded source image.
type Input struct {
	UserID   uint
	Filename string
	Data     []byte
	Style    string
}

// Output is the stored result of a transform.
type Output struct {
	Image         *models.GeneratedImage
	DownloadToken string
	Balance       int
}

// ImageView is the public representation of a generated image.
type ImageView struct {
	ID                  uint      `json:"id"`
	UUID                string    `json:"uuid"`
	Style               string    `json:"style"`
	ImageURL            string    `json:"image_url,omitempty"`
	PreviewURL          string    `json:"preview_url"`
	Width               int       `json:"width"`
	Height              int       `json:"height"`
	DownloadTokenExpiry time.Time `json:"download_token_expiry,omitzero"`
	CreatedAt           time.Time `json:"created_at"`
}

type Service struct {
	images  repository.ImageRepository
	prompts repository.StylePromptRepository
	gate    *credits.Gate
	gen     imagegen.Generator
	store   s3storage.Store
	recent  *cache.JSONCache
	stats   StatsRecorder
	now     func() time.Time
}

// NewService wires the transform pipeline. recent and stats may be nil.
func NewService(images repository.ImageRepository, prompts repository.StylePromptRepository, gate *credits.Gate,
	gen imagegen.Generator, store s3storage.Store, recent *cache.JSONCache, stats StatsRecorder) *Service {
	return &Service{
		images:  images,
		prompts: prompts,
		gate:    gate,
		gen:     gen,
		store:   store,
		recent:  recent,
		stats:   stats,
		now:     time.Now,
	}
}

// Transform styles the uploaded image and charges one credit for it.
func (s *Service) Transform(ctx context.Context, in Input) (*Output, error) {
	if err := upload.ValidateSize(int64(len(in.Data))); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidImage, err)
	}
	if _, err := upload.ValidateImageBySniff(in.Filename, in.Data[:min(len(in.Data), 512)]); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidImage, err)
	}

	style := NormalizeStyle(in.Style)
	prompt := PromptFor(s.prompts, style)

	var out *Output
	balance, err := s.gate.Run(ctx, in.UserID, func(ctx context.Context) (func(), error) {
		o, discard, err := s.render(ctx, in, style, prompt)
		if err != nil {
			return nil, err
		}
		out = o
		return discard, nil
	})
	if err != nil {
		return nil, err
	}
	out.Balance = balance

	s.afterTransform(ctx, style)
	log.Infof("[Transform] user %d created image %s (%s), balance now %d", in.UserID, out.Image.UUID, style, balance)
	return out, nil
}

func (s *Service) render(ctx context.Context, in Input, style, prompt string) (*Output, func(), error) {
	src, err := imageprocessor.Decode(in.Data)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %w", ErrInvalidImage, err)
	}
	prepared, err := imageprocessor.Prepare(src)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %w", ErrInvalidImage, err)
	}

	generated, err := s.gen.Generate(ctx, prepared.PNG, prompt)
	if err != nil {
		log.Errorf("[Transform] Generation failed for user %d: %v", in.UserID, err)
		return nil, nil, fmt.Errorf("%w: %w", ErrGenerationFailed, err)
	}
	result, err := prepared.Finish(generated)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %w", ErrGenerationFailed, err)
	}

	now := s.now()
	id := uuid.NewString()
	ext := strings.ToLower(filepath.Ext(in.Filename))
	image := &models.GeneratedImage{
		UUID:        id,
		UserID:      in.UserID,
		Style:       style,
		OriginalKey: s3storage.ObjectKey(s3storage.KindOriginal, id, ext, now),
		ImageKey:    s3storage.ObjectKey(s3storage.KindGenerated, id, ".jpg", now),
		PreviewKey:  s3storage.ObjectKey(s3storage.KindPreview, id, ".webp", now),
		Width:       result.Width,
		Height:      result.Height,
	}
	image.ImageURL = s.store.URL(image.ImageKey)
	image.PreviewURL = s.store.URL(image.PreviewKey)

	uploads := []struct {
		key  string
		body []byte
	}{
		{image.OriginalKey, in.Data},
		{image.ImageKey, result.JPEG},
		{image.PreviewKey, result.Preview},
	}
	var written []string
	cleanup := func() {
		bg := context.WithoutCancel(ctx)
		for _, key := range written {
			if err := s.store.Delete(bg, key); err != nil {
				log.Warnf("[Transform] Failed to delete orphaned object %s: %v", key, err)
			}
		}
	}
	for _, u := range uploads {
		if err := s.store.Put(ctx, u.key, u.body, s3storage.ContentTypeFor(u.key)); err != nil {
			cleanup()
			return nil, nil, err
		}
		written = append(written, u.key)
	}

	token, err := image.IssueDownloadToken(now)
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	if err := s.images.Create(image); err != nil {
		cleanup()
		return nil, nil, err
	}

	discard := func() {
		if err := s.images.Delete(image.ID); err != nil {
			log.Warnf("[Transform] Failed to discard image %d: %v", image.ID, err)
		}
		cleanup()
	}
	return &Output{Image: image, DownloadToken: token}, discard, nil
}

func (s *Service) afterTransform(ctx context.Context, style string) {
	if s.recent != nil {
		if err := s.recent.Drop(ctx, cache.RecentImagesKey); err != nil {
			log.Warnf("[Transform] Failed to drop recent images cache: %v", err)
		}
	}
	if s.stats != nil {
		if err := s.stats.AddTransform(ctx, style); err != nil {
			log.Warnf("[Transform] Failed to count transform: %v", err)
		}
	}
}

// Recent returns the newest images of all users as previews. The default
// page is served from cache.
func (s *Service) Recent(ctx context.Context, limit int) ([]ImageView, error) {
	if limit <= 0 {
		limit = DefaultRecentLimit
	}
	limit = min(limit, MaxRecentLimit)

	cacheable := s.recent != nil && limit == DefaultRecentLimit
	if cacheable {
		var cached []ImageView
		if hit, err := s.recent.Load(ctx, cache.RecentImagesKey, &cached); err == nil && hit {
			return cached, nil
		}
	}

	images, err := s.images.GetRecent(limit)
	if err != nil {
		return nil, err
	}
	views := make([]ImageView, 0, len(images))
	for i := range images {
		v := viewOf(&images[i])
		v.ImageURL = ""
		v.DownloadTokenExpiry = time.Time{}
		views = append(views, v)
	}

	if cacheable {
		if err := s.recent.Store(ctx, cache.RecentImagesKey, views, cache.RecentImagesTTL); err != nil {
			log.Warnf("[Transform] Failed to cache recent images: %v", err)
		}
	}
	return views, nil
}

// Mine lists the images of userID, newest first.
func (s *Service) Mine(ctx context.Context, userID uint, page, pageSize int) ([]ImageView, int64, error) {
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 || pageSize > MaxPageSize {
		pageSize = MaxPageSize
	}
	images, err := s.images.GetByUserID(userID, (page-1)*pageSize, pageSize)
	if err != nil {
		return nil, 0, err
	}
	total, err := s.images.CountByUserID(userID)
	if err != nil {
		return nil, 0, err
	}
	views := make([]ImageView, 0, len(images))
	for i := range images {
		views = append(views, viewOf(&images[i]))
	}
	return views, total, nil
}

// Download returns the generated JPEG when token is valid for the owner's image.
func (s *Service) Download(ctx context.Context, userID, imageID uint, token string) ([]byte, *models.GeneratedImage, error) {
	if token == "" {
		return nil, nil, ErrTokenRequired
	}
	image, err := s.ownedImage(imageID, userID)
	if err != nil {
		return nil, nil, err
	}
	if !image.MatchesDownloadToken(token) {
		return nil, nil, ErrImageNotFound
	}
	if image.DownloadExpired(s.now()) {
		return nil, nil, ErrTokenExpired
	}

	body, err := s.store.Get(ctx, image.ImageKey)
	if errors.Is(err, s3storage.ErrObjectNotFound) {
		return nil, nil, ErrImageNotFound
	}
	if err != nil {
		return nil, nil, err
	}
	log.Infof("[Transform] user %d downloading image %d", userID, imageID)
	return body, image, nil
}

// ReissueToken replaces the download token of the owner's image with a fresh one.
func (s *Service) ReissueToken(ctx context.Context, userID, imageID uint) (string, *models.GeneratedImage, error) {
	image, err := s.ownedImage(imageID, userID)
	if err != nil {
		return "", nil, err
	}
	token, err := image.IssueDownloadToken(s.now())
	if err != nil {
		return "", nil, err
	}
	if err := s.images.Update(image); err != nil {
		return "", nil, err
	}
	return token, image, nil
}

func (s *Service) ownedImage(imageID, userID uint) (*models.GeneratedImage, error) {
	image, err := s.images.GetByIDForUser(imageID, userID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrImageNotFound
	}
	return image, err
}

// DownloadFilename is the attachment name of a downloaded image.
func DownloadFilename(imageID uint) string {
	return fmt.Sprintf("ghiblified-image-%d.jpg", imageID)
}

func viewOf(img *models.GeneratedImage) ImageView {
	return ImageView{
		ID:                  img.ID,
		UUID:                img.UUID,
		Style:               img.Style,
		ImageURL:            img.ImageURL,
		PreviewURL:          img.PreviewURL,
		Width:               img.Width,
		Height:              img.Height,
		DownloadTokenExpiry: img.DownloadTokenExpiry,
		CreatedAt:           img.CreatedAt,
	}
}
