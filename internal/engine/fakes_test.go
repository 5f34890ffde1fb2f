package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/mtbar/concerts/internal/i18n"
	"github.com/mtbar/concerts/pkg/models"
)

type memStore struct {
	mu        sync.Mutex
	events    map[int64]models.Event
	photos    map[int64]models.PendingPhoto
	nextEvent int64
	nextPhoto int64
	updates   int
	failWrite error
}

func newMemStore() *memStore {
	return &memStore{
		events: make(map[int64]models.Event),
		photos: make(map[int64]models.PendingPhoto),
	}
}

func (s *memStore) CreateEvent(_ context.Context, ev *models.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failWrite != nil {
		return s.failWrite
	}
	s.nextEvent++
	ev.ID = s.nextEvent
	s.events[ev.ID] = *ev
	return nil
}

func (s *memStore) GetEvent(_ context.Context, id int64) (*models.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ev, ok := s.events[id]
	if !ok {
		return nil, models.ErrEventNotFound
	}
	return &ev, nil
}

func (s *memStore) UpdateEvent(_ context.Context, ev *models.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failWrite != nil {
		return s.failWrite
	}
	if _, ok := s.events[ev.ID]; !ok {
		return models.ErrEventNotFound
	}
	s.updates++
	s.events[ev.ID] = *ev
	return nil
}

func (s *memStore) ListEvents(context.Context) ([]*models.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.Event
	for _, ev := range s.events {
		ev := ev
		out = append(out, &ev)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *memStore) ListActiveEvents(ctx context.Context) ([]*models.Event, error) {
	all, _ := s.ListEvents(ctx)
	var out []*models.Event
	for _, ev := range all {
		if !ev.Status.IsTerminal() {
			out = append(out, ev)
		}
	}
	return out, nil
}

func (s *memStore) SavePendingPhoto(_ context.Context, p *models.PendingPhoto) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextPhoto++
	p.ID = s.nextPhoto
	s.photos[p.ID] = *p
	return nil
}

func (s *memStore) GetPendingPhoto(_ context.Context, id int64) (*models.PendingPhoto, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.photos[id]
	if !ok {
		return nil, models.ErrNoPendingPhoto
	}
	return &p, nil
}

func (s *memStore) LatestPendingPhoto(context.Context) (*models.PendingPhoto, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var latest *models.PendingPhoto
	for _, p := range s.photos {
		p := p
		if latest == nil || p.ID > latest.ID {
			latest = &p
		}
	}
	if latest == nil {
		return nil, models.ErrNoPendingPhoto
	}
	return latest, nil
}

func (s *memStore) DeletePendingPhoto(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.photos, id)
	return nil
}

func (s *memStore) event(t *testing.T, id int64) models.Event {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	ev, ok := s.events[id]
	if !ok {
		t.Fatalf("event %d not stored", id)
	}
	return ev
}

func (s *memStore) seed(ev models.Event) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextEvent++
	ev.ID = s.nextEvent
	if ev.Status == "" {
		ev.Status = models.StatusDraft
	}
	ev.Recompute()
	s.events[ev.ID] = ev
	return ev.ID
}

type fakeUploader struct {
	calls []string
	err   error
}

func (u *fakeUploader) Upload(_ context.Context, fileID string) (string, error) {
	u.calls = append(u.calls, fileID)
	if u.err != nil {
		return "", u.err
	}
	return "https://static.example.com/" + fileID + ".jpg", nil
}

type fakePublisher struct {
	titles []string
	err    error
}

func (p *fakePublisher) CreateAndPublish(_ context.Context, title, _ string) (*models.Page, error) {
	p.titles = append(p.titles, title)
	if p.err != nil {
		return nil, p.err
	}
	id := fmt.Sprint(len(p.titles))
	return &models.Page{ID: id, URL: "https://site.example.com/page" + id + ".html"}, nil
}

type fakeRenderer struct{}

func (fakeRenderer) Render(ev *models.Event) (string, error) {
	return "<h1>" + ev.Title + "</h1>", nil
}

type fakeMirror struct {
	mu     sync.Mutex
	synced []models.Event
}

func (m *fakeMirror) Sync(_ context.Context, ev models.Event) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.synced = append(m.synced, ev)
}

type fixture struct {
	engine    *Engine
	store     *memStore
	uploader  *fakeUploader
	publisher *fakePublisher
	mirror    *fakeMirror
}

var testNow = time.Date(2026, time.January, 15, 12, 0, 0, 0, time.UTC)

func newFixture(t *testing.T) *fixture {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	tr, err := i18n.NewTranslator("ru", logger)
	if err != nil {
		t.Fatalf("NewTranslator returned error: %v", err)
	}

	f := &fixture{
		store:     newMemStore(),
		uploader:  &fakeUploader{},
		publisher: &fakePublisher{},
		mirror:    &fakeMirror{},
	}
	f.engine = New(Deps{
		Store:      f.store,
		Uploader:   f.uploader,
		Publisher:  f.publisher,
		Renderer:   fakeRenderer{},
		Mirror:     f.mirror,
		Translator: tr,
		Logger:     logger,
		Now:        func() time.Time { return testNow },
	})
	return f
}

var errStorage = errors.New("storage unavailable")

const longDescription = "Легендарная группа возвращается с новой программой: два часа живого звука, " +
	"хиты разных лет и премьера альбома на большой сцене."
