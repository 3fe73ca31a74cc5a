package catalog

import (
	"context"
	"errors"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/grvbrk/vidcatalog_server/internal/auth"
	"github.com/grvbrk/vidcatalog_server/internal/models"
	"github.com/grvbrk/vidcatalog_server/internal/storage"
	"github.com/grvbrk/vidcatalog_server/internal/store"
	"go.uber.org/zap"
)

const (
	DefaultPageSize = 10
	MaxPageSize     = 100

	payloadExt         = ".mp4"
	defaultContentType = "video/mp4"
)

type PageRequest struct {
	Limit int
	Token string
}

type Page struct {
	Items     []models.VideoSummary `json:"items"`
	NextToken string                `json:"next_token,omitempty"`
}

type UploadInput struct {
	Title       string
	Description string
	Filename    string
	ContentType string
	Size        int64
	Body        io.Reader
}

type UploadResult struct {
	ID       string `json:"id"`
	Filename string `json:"filename"`
}

// Service enforces identity, ownership, title uniqueness and pagination over
// the metadata and object stores. It holds no per-request state.
type Service struct {
	videos   store.VideoStore
	objects  storage.ObjectStore
	resolver auth.Resolver
	titles   store.TitleLock
	events   store.EventSink
	logger   *zap.Logger

	defaultPageSize int
	now             func() time.Time
	newID           func() string
}

type Option func(*Service)

func WithTitleLock(l store.TitleLock) Option {
	return func(s *Service) { s.titles = l }
}

func WithEventSink(e store.EventSink) Option {
	return func(s *Service) { s.events = e }
}

func WithDefaultPageSize(n int) Option {
	return func(s *Service) {
		if n > 0 && n <= MaxPageSize {
			s.defaultPageSize = n
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func WithIDGenerator(gen func() string) Option {
	return func(s *Service) { s.newID = gen }
}

func NewService(videos store.VideoStore, objects storage.ObjectStore, resolver auth.Resolver, logger *zap.Logger, opts ...Option) *Service {
	s := &Service{
		videos:          videos,
		objects:         objects,
		resolver:        resolver,
		titles:          store.NoopTitleLock{},
		events:          store.NoopEventSink{},
		logger:          logger,
		defaultPageSize: DefaultPageSize,
		now:             time.Now,
		newID:           uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Authenticate resolves a bearer credential. It is called once per request.
func (s *Service) Authenticate(ctx context.Context, credential string) (*models.Identity, error) {
	identity, err := s.resolver.Resolve(ctx, credential)
	if err != nil {
		if errors.Is(err, auth.ErrProviderUnavailable) {
			return nil, newError(ErrStorage, err, "identity provider call failed")
		}
		return nil, newError(ErrUnauthorized, err, "invalid credential")
	}
	return identity, nil
}

func requireCaller(caller *models.Identity) error {
	if caller == nil || caller.DisplayName == "" {
		return newError(ErrUnauthorized, nil, "missing identity")
	}
	return nil
}

func (s *Service) pageLimit(req PageRequest) (int, error) {
	switch {
	case req.Limit == 0:
		return s.defaultPageSize, nil
	case req.Limit < 0 || req.Limit > MaxPageSize:
		return 0, newError(ErrInvalidInput, nil, "limit must be between 1 and %d", MaxPageSize)
	}
	return req.Limit, nil
}

// storeError maps adapter failures onto the service's error kinds.
func storeError(err error, format string, args ...any) error {
	switch {
	case errors.Is(err, store.ErrVideoNotFound):
		return newError(ErrNotFound, nil, "video not found")
	case errors.Is(err, store.ErrInvalidToken):
		return newError(ErrInvalidInput, err, format, args...)
	case errors.Is(err, store.ErrTitleTaken):
		return newError(ErrConflict, nil, "a video with this title already exists")
	}
	return newError(ErrStorage, err, format, args...)
}

// List returns one store page sorted newest first. The order holds within a
// page only: the store pages in its own order and we sort what it returned.
func (s *Service) List(ctx context.Context, caller *models.Identity, req PageRequest) (*Page, error) {
	if err := requireCaller(caller); err != nil {
		return nil, err
	}
	return s.scanPage(ctx, nil, req)
}

// MyVideos is List restricted to videos the caller uploaded.
func (s *Service) MyVideos(ctx context.Context, caller *models.Identity, req PageRequest) (*Page, error) {
	if err := requireCaller(caller); err != nil {
		return nil, err
	}
	return s.scanPage(ctx, &store.Filter{
		Field: store.AttrUploader,
		Op:    store.OpEquals,
		Value: caller.DisplayName,
	}, req)
}

// Search matches videos whose category attribute contains key, case
// sensitively. category is handed to the store as an attribute name as is.
func (s *Service) Search(ctx context.Context, caller *models.Identity, category, key string, req PageRequest) (*Page, error) {
	if err := requireCaller(caller); err != nil {
		return nil, err
	}
	if category == "" || key == "" {
		return nil, newError(ErrInvalidInput, nil, "category and key are required")
	}
	return s.scanPage(ctx, &store.Filter{
		Field: category,
		Op:    store.OpContains,
		Value: key,
	}, req)
}

func (s *Service) scanPage(ctx context.Context, filter *store.Filter, req PageRequest) (*Page, error) {
	limit, err := s.pageLimit(req)
	if err != nil {
		return nil, err
	}

	result, err := s.videos.ScanVideos(ctx, store.ScanParams{
		Filter:     filter,
		Projection: store.SummaryProjection,
		Limit:      limit,
		Token:      req.Token,
	})
	if err != nil {
		return nil, storeError(err, "failed to list videos")
	}

	videos := result.Videos
	sort.SliceStable(videos, func(i, j int) bool {
		if videos[i].Timestamp.Equal(videos[j].Timestamp) {
			return videos[i].ID < videos[j].ID
		}
		return videos[i].Timestamp.After(videos[j].Timestamp)
	})

	page := &Page{
		Items:     make([]models.VideoSummary, 0, len(videos)),
		NextToken: result.NextToken,
	}
	for _, v := range videos {
		page.Items = append(page.Items, v.Summary())
	}
	return page, nil
}

// Get returns the full record. Any authenticated caller may read any video.
func (s *Service) Get(ctx context.Context, caller *models.Identity, id string) (*models.Video, error) {
	if err := requireCaller(caller); err != nil {
		return nil, err
	}
	video, err := s.videos.GetVideo(ctx, id)
	if err != nil {
		return nil, storeError(err, "failed to read video %s", id)
	}
	return video, nil
}

// titleExists follows the exact-match scan across every store page.
func (s *Service) titleExists(ctx context.Context, title string) (bool, error) {
	token := ""
	for {
		page, err := s.videos.ScanVideos(ctx, store.ScanParams{
			Filter:     &store.Filter{Field: store.AttrTitle, Op: store.OpEquals, Value: title},
			Projection: []string{store.AttrID},
			Token:      token,
		})
		if err != nil {
			return false, err
		}
		if len(page.Videos) > 0 {
			return true, nil
		}
		if page.NextToken == "" {
			return false, nil
		}
		token = page.NextToken
	}
}

// Upload stores the payload and then the metadata. The uniqueness check and
// the writes are not atomic; the title lock only narrows the window. If the
// metadata write fails the payload stays behind and an orphan event is recorded.
func (s *Service) Upload(ctx context.Context, caller *models.Identity, in UploadInput) (*UploadResult, error) {
	if err := requireCaller(caller); err != nil {
		return nil, err
	}
	if strings.TrimSpace(in.Title) == "" {
		return nil, newError(ErrInvalidInput, nil, "title is required")
	}
	if in.Body == nil {
		return nil, newError(ErrInvalidInput, nil, "file is required")
	}

	release, err := s.titles.Acquire(ctx, in.Title)
	if err != nil {
		if errors.Is(err, store.ErrTitleLocked) {
			return nil, newError(ErrConflict, nil, "a video with this title is already being uploaded")
		}
		return nil, newError(ErrStorage, err, "failed to lock title")
	}
	defer release()

	exists, err := s.titleExists(ctx, in.Title)
	if err != nil {
		return nil, storeError(err, "failed to check title")
	}
	if exists {
		return nil, newError(ErrConflict, nil, "a video with this title already exists")
	}

	id := s.newID()
	bucket := s.objects.Bucket()
	key := id + payloadExt
	filePath := bucket + "/" + key

	contentType := in.ContentType
	if contentType == "" {
		contentType = defaultContentType
	}

	if err := s.objects.Put(ctx, bucket, key, in.Body, in.Size, contentType); err != nil {
		return nil, newError(ErrStorage, err, "failed to store video payload")
	}

	video := &models.Video{
		ID:          id,
		Title:       in.Title,
		Description: in.Description,
		Uploader:    caller.DisplayName,
		FilePath:    filePath,
		FilePathOrg: filePath,
		Timestamp:   s.now().UTC(),
	}

	if err := s.videos.PutVideo(ctx, video); err != nil {
		s.record(ctx, models.EventUploadOrphanedPayload, video, err.Error())
		return nil, storeError(err, "failed to save video metadata")
	}

	s.record(ctx, models.EventUploadCommitted, video, "")
	s.logger.Info("video uploaded",
		zap.String("video_id", id),
		zap.String("uploader", caller.DisplayName),
		zap.Int64("size", in.Size),
	)

	return &UploadResult{ID: id, Filename: in.Filename}, nil
}

// splitFilePath splits "bucket/key" on the first separator.
func splitFilePath(p string) (bucket, key string, ok bool) {
	bucket, key, ok = strings.Cut(p, "/")
	if !ok || bucket == "" || key == "" {
		return "", "", false
	}
	return bucket, key, true
}

// Delete removes the payload and then the metadata. Only the uploader may
// delete. A metadata failure after the payload is gone leaves a record that
// points at nothing; it is reported, not repaired.
func (s *Service) Delete(ctx context.Context, caller *models.Identity, id string) error {
	if err := requireCaller(caller); err != nil {
		return err
	}

	video, err := s.videos.GetVideo(ctx, id)
	if err != nil {
		return storeError(err, "failed to read video %s", id)
	}

	if video.Uploader != caller.DisplayName {
		return newError(ErrForbidden, nil, "you do not have permission to delete this video")
	}

	bucket, key, ok := splitFilePath(video.FilePath)
	if !ok {
		return newError(ErrNotFound, nil, "file path not found in metadata")
	}

	if err := s.objects.Delete(ctx, bucket, key); err != nil {
		return newError(ErrStorage, err, "failed to delete video payload")
	}

	if err := s.videos.DeleteVideo(ctx, id); err != nil {
		s.record(ctx, models.EventDeleteOrphanedMetadata, video, err.Error())
		return newError(ErrStorage, err, "failed to delete video metadata")
	}

	s.record(ctx, models.EventDeleteCommitted, video, "")
	s.logger.Info("video deleted", zap.String("video_id", id), zap.String("uploader", caller.DisplayName))
	return nil
}

// record never fails the operation; the event trail is best effort.
func (s *Service) record(ctx context.Context, kind models.CatalogEventKind, v *models.Video, detail string) {
	event := models.CatalogEvent{
		EventID:   uuid.NewString(),
		Kind:      kind,
		VideoID:   v.ID,
		Uploader:  v.Uploader,
		FilePath:  v.FilePath,
		Detail:    detail,
		CreatedAt: s.now().UTC(),
	}
	if event.Orphan() {
		s.logger.Warn("catalog stores diverged",
			zap.String("kind", string(kind)),
			zap.String("video_id", v.ID),
			zap.String("file_path", v.FilePath),
			zap.String("detail", detail),
		)
	}
	if err := s.events.Record(context.WithoutCancel(ctx), event); err != nil {
		s.logger.Warn("failed to record catalog event",
			zap.String("kind", string(kind)),
			zap.String("video_id", v.ID),
			zap.Error(err),
		)
	}
}
