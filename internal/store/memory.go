package store

import (
	"context"
	"sort"
	"sync"

	"github.com/grvbrk/vidcatalog_server/internal/models"
)

// MemoryVideoStore keeps records in process. It backs local development and
// tests; it pages by ascending id like the Postgres store.
type MemoryVideoStore struct {
	mu     sync.RWMutex
	videos map[string]models.Video
}

var _ VideoStore = (*MemoryVideoStore)(nil)

func NewMemoryVideoStore() *MemoryVideoStore {
	return &MemoryVideoStore{videos: make(map[string]models.Video)}
}

func (m *MemoryVideoStore) PutVideo(ctx context.Context, video *models.Video) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.videos[video.ID] = *video
	return nil
}

func (m *MemoryVideoStore) GetVideo(ctx context.Context, id string) (*models.Video, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.videos[id]
	if !ok {
		return nil, ErrVideoNotFound
	}
	return &v, nil
}

func (m *MemoryVideoStore) DeleteVideo(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.videos, id)
	return nil
}

func (m *MemoryVideoStore) ScanVideos(ctx context.Context, params ScanParams) (*ScanPage, error) {
	after, err := decodeIDToken(params.Token)
	if err != nil {
		return nil, err
	}

	m.mu.RLock()
	ids := make([]string, 0, len(m.videos))
	for id := range m.videos {
		if id > after {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)

	page := &ScanPage{Videos: []models.Video{}}
	examined := 0
	for _, id := range ids {
		if params.Limit > 0 && examined == params.Limit {
			break
		}
		examined++
		v := m.videos[id]
		if params.Filter.Matches(&v) {
			page.Videos = append(page.Videos, project(v, params.Projection))
		}
		if params.Limit > 0 && examined == params.Limit && examined < len(ids) {
			page.NextToken = encodeIDToken(id)
		}
	}
	m.mu.RUnlock()

	return page, nil
}

// Len is used by tests to assert that nothing was written.
func (m *MemoryVideoStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.videos)
}
