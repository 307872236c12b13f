package service

import (
	"context"
	"mime"
	"os"
	"path"
	"strings"

	"github.com/h2non/filetype"
	"github.com/h2non/filetype/types"
	"github.com/maheshrc27/postqueue/internal/models"
	"github.com/maheshrc27/postqueue/internal/repository"
)

type RegisterMedia struct {
	SourceURI string
	FileName  string
	Category  string
	Caption   string
}

// MediaService owns the catalog of postable items. Posting stats are only
// written by the posting path.
type MediaService interface {
	Register(ctx context.Context, in RegisterMedia) (*models.MediaItem, error)
	Get(ctx context.Context, id string) (*models.MediaItem, error)
	List(ctx context.Context, category string, activeOnly bool, limit, offset int) ([]*models.MediaItem, error)
	SetActive(ctx context.Context, id string, active bool) error
}

type mediaService struct {
	mr    repository.MediaRepository
	clock Clock
}

func NewMediaService(mr repository.MediaRepository, clock Clock) MediaService {
	return &mediaService{
		mr:    mr,
		clock: clock,
	}
}

func (s *mediaService) Register(ctx context.Context, in RegisterMedia) (*models.MediaItem, error) {
	uri := strings.TrimSpace(in.SourceURI)
	if uri == "" {
		return nil, models.NewValidationError("source_uri", "is required")
	}

	mimeType, err := detectMime(uri)
	if err != nil {
		return nil, err
	}

	fileName := in.FileName
	if fileName == "" {
		fileName = path.Base(localPath(uri))
	}

	now := s.clock.Now()
	item := &models.MediaItem{
		ID:        newID(),
		FileName:  fileName,
		SourceURI: uri,
		MimeType:  mimeType,
		Category:  strings.ToLower(strings.TrimSpace(in.Category)),
		Caption:   in.Caption,
		IsActive:  true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.mr.Create(ctx, nil, item); err != nil {
		return nil, err
	}
	return item, nil
}

// detectMime sniffs local files and falls back to the extension for remote
// sources.
func detectMime(uri string) (string, error) {
	if isRemote(uri) {
		return mime.TypeByExtension(path.Ext(uri)), nil
	}

	p := localPath(uri)
	if _, err := os.Stat(p); err != nil {
		if os.IsNotExist(err) {
			return "", models.NewNotFoundError("media file", uri)
		}
		return "", err
	}
	kind, err := filetype.MatchFile(p)
	if err != nil || kind == types.Unknown {
		return "", models.NewValidationError("source_uri", "unsupported file type")
	}
	if _, ok := allowedTypes[kind.Extension]; !ok {
		return "", models.NewValidationError("source_uri", "file type "+kind.Extension+" is not allowed")
	}
	return kind.MIME.Value, nil
}

func (s *mediaService) Get(ctx context.Context, id string) (*models.MediaItem, error) {
	item, err := s.mr.GetByID(ctx, nil, id)
	if err != nil {
		return nil, err
	}
	if item == nil {
		return nil, models.NewNotFoundError("media", id)
	}
	return item, nil
}

func (s *mediaService) List(ctx context.Context, category string, activeOnly bool, limit, offset int) ([]*models.MediaItem, error) {
	if offset < 0 {
		offset = 0
	}
	return s.mr.List(ctx, category, activeOnly, clampLimit(limit), offset)
}

func (s *mediaService) SetActive(ctx context.Context, id string, active bool) error {
	return s.mr.SetActive(ctx, id, active, s.clock.Now())
}
