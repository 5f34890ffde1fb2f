package repo

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mtbar/concerts/pkg/models"
)

// Repository provides database operations
type Repository struct {
	pool *pgxpool.Pool
}

// New creates a new repository instance
func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const eventColumns = `id, title, event_date, event_time, image_url, image_file_id, tickets_url,
	description, music_url, status, page_id, page_url, completeness, created_at, updated_at`

// Events operations

func (r *Repository) CreateEvent(ctx context.Context, ev *models.Event) error {
	query := `
		INSERT INTO events (title, event_date, event_time, image_url, image_file_id, tickets_url,
			description, music_url, status, page_id, page_url, completeness, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		RETURNING id`

	ev.Recompute()
	return r.pool.QueryRow(ctx, query,
		ev.Title, ev.Date, ev.Time, ev.ImageURL, ev.ImageFileID, ev.TicketsURL,
		ev.Description, ev.MusicURL, ev.Status, ev.PageID, ev.PageURL, ev.Completeness,
		ev.CreatedAt, ev.UpdatedAt,
	).Scan(&ev.ID)
}

func (r *Repository) GetEvent(ctx context.Context, id int64) (*models.Event, error) {
	query := `SELECT ` + eventColumns + ` FROM events WHERE id = $1`

	rows, err := r.pool.Query(ctx, query, id)
	if err != nil {
		return nil, err
	}

	ev, err := pgx.CollectExactlyOneRow(rows, pgx.RowToAddrOfStructByName[models.Event])
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, models.ErrEventNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan event %d: %w", id, err)
	}
	return ev, nil
}

// UpdateEvent writes the whole row. The completeness is recomputed from the fields first.
func (r *Repository) UpdateEvent(ctx context.Context, ev *models.Event) error {
	query := `
		UPDATE events SET
			title = $2, event_date = $3, event_time = $4, image_url = $5, image_file_id = $6,
			tickets_url = $7, description = $8, music_url = $9, status = $10, page_id = $11,
			page_url = $12, completeness = $13, updated_at = $14
		WHERE id = $1`

	ev.Recompute()
	tag, err := r.pool.Exec(ctx, query,
		ev.ID, ev.Title, ev.Date, ev.Time, ev.ImageURL, ev.ImageFileID,
		ev.TicketsURL, ev.Description, ev.MusicURL, ev.Status, ev.PageID,
		ev.PageURL, ev.Completeness, ev.UpdatedAt,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return models.ErrEventNotFound
	}
	return nil
}

func (r *Repository) ListEvents(ctx context.Context) ([]*models.Event, error) {
	return r.listEvents(ctx, `SELECT `+eventColumns+` FROM events ORDER BY id DESC`)
}

// ListActiveEvents returns drafts only, published and cancelled events are terminal
func (r *Repository) ListActiveEvents(ctx context.Context) ([]*models.Event, error) {
	return r.listEvents(ctx, `SELECT `+eventColumns+` FROM events WHERE status = 'draft' ORDER BY id`)
}

func (r *Repository) listEvents(ctx context.Context, query string) ([]*models.Event, error) {
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowToAddrOfStructByName[models.Event])
}

// Pending photos operations

func (r *Repository) SavePendingPhoto(ctx context.Context, photo *models.PendingPhoto) error {
	query := `
		INSERT INTO pending_photos (file_id, chat_id, message_id, created_at)
		VALUES ($1, $2, $3, $4)
		RETURNING id`

	return r.pool.QueryRow(ctx, query, photo.FileID, photo.ChatID, photo.MessageID, photo.CreatedAt).Scan(&photo.ID)
}

func (r *Repository) GetPendingPhoto(ctx context.Context, id int64) (*models.PendingPhoto, error) {
	query := `SELECT id, file_id, chat_id, message_id, created_at FROM pending_photos WHERE id = $1`
	return r.scanPendingPhoto(r.pool.QueryRow(ctx, query, id))
}

// LatestPendingPhoto returns the most recent unconsumed photo across all conversations
func (r *Repository) LatestPendingPhoto(ctx context.Context) (*models.PendingPhoto, error) {
	query := `SELECT id, file_id, chat_id, message_id, created_at FROM pending_photos ORDER BY id DESC LIMIT 1`
	return r.scanPendingPhoto(r.pool.QueryRow(ctx, query))
}

func (r *Repository) scanPendingPhoto(row pgx.Row) (*models.PendingPhoto, error) {
	photo := &models.PendingPhoto{}
	err := row.Scan(&photo.ID, &photo.FileID, &photo.ChatID, &photo.MessageID, &photo.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, models.ErrNoPendingPhoto
	}
	if err != nil {
		return nil, err
	}
	return photo, nil
}

func (r *Repository) DeletePendingPhoto(ctx context.Context, id int64) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM pending_photos WHERE id = $1`, id)
	return err
}

// Subscribers operations

// AddSubscriber registers a chat for the digest. Registering twice is a no-op.
func (r *Repository) AddSubscriber(ctx context.Context, chatID int64) error {
	query := `
		INSERT INTO subscribers (chat_id, created_at)
		VALUES ($1, NOW())
		ON CONFLICT (chat_id) DO NOTHING`

	_, err := r.pool.Exec(ctx, query, chatID)
	return err
}

func (r *Repository) ListSubscribers(ctx context.Context) ([]int64, error) {
	rows, err := r.pool.Query(ctx, `SELECT chat_id FROM subscribers ORDER BY chat_id`)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[int64])
}
