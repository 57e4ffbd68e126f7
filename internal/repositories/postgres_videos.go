package repositories

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/clipstream/backend/internal/db"
	"github.com/clipstream/backend/internal/models"
)

const (
	defaultVideoPageSize = 50
	maxVideoPageSize     = 100
)

const videoColumns = `id, owner_id, video_url, thumbnail_url, title, description, duration, views, is_published, created_at, updated_at`

// PostgresVideoRepository provides PostgreSQL-backed persistence for videos.
type PostgresVideoRepository struct {
	pool db.Pool
}

// NewPostgresVideoRepository constructs a video repository backed by PostgreSQL.
func NewPostgresVideoRepository(pool db.Pool) *PostgresVideoRepository {
	return &PostgresVideoRepository{pool: pool}
}

// Create stores a new video record.
func (r *PostgresVideoRepository) Create(ctx context.Context, video models.Video) error {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	_, err = conn.Exec(ctx, `
        INSERT INTO videos (`+videoColumns+`)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
    `, video.ID, video.OwnerID, video.VideoURL, video.ThumbnailURL, video.Title, video.Description,
		video.Duration, video.Views, video.IsPublished, video.CreatedAt, video.UpdatedAt)
	if err != nil {
		switch pgErrorCode(err) {
		case pgUniqueViolation:
			return ErrConflict
		case pgForeignKeyViolation:
			return ErrNotFound
		}
		return fmt.Errorf("insert video: %w", err)
	}

	return nil
}

// FindByID fetches the raw video record without owner enrichment.
func (r *PostgresVideoRepository) FindByID(ctx context.Context, id string) (models.Video, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return models.Video{}, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	row := conn.QueryRow(ctx, `SELECT `+videoColumns+` FROM videos WHERE id = $1`, id)

	var video models.Video
	if err := row.Scan(
		&video.ID, &video.OwnerID, &video.VideoURL, &video.ThumbnailURL, &video.Title, &video.Description,
		&video.Duration, &video.Views, &video.IsPublished, &video.CreatedAt, &video.UpdatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Video{}, ErrNotFound
		}
		return models.Video{}, fmt.Errorf("select video: %w", err)
	}

	return video, nil
}

// Detail assembles the flat detail projection: the video joined with its
// owner and the owner's subscriber count. An inner join means a video whose
// owner is gone reads as absent rather than erroring.
func (r *PostgresVideoRepository) Detail(ctx context.Context, id string) (models.VideoDetail, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return models.VideoDetail{}, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	row := conn.QueryRow(ctx, `
        SELECT v.id, v.owner_id, v.video_url, v.thumbnail_url, v.title, v.description,
               v.duration, v.views, v.is_published, v.created_at, v.updated_at,
               o.username, o.full_name, o.avatar_url,
               (SELECT COUNT(*) FROM subscriptions s WHERE s.channel_id = o.id) AS owner_subscribers_count
        FROM videos v
        JOIN users o ON o.id = v.owner_id
        WHERE v.id = $1
    `, id)

	var detail models.VideoDetail
	if err := row.Scan(
		&detail.ID, &detail.OwnerID, &detail.VideoURL, &detail.ThumbnailURL, &detail.Title, &detail.Description,
		&detail.Duration, &detail.Views, &detail.IsPublished, &detail.CreatedAt, &detail.UpdatedAt,
		&detail.Owner.Username, &detail.Owner.FullName, &detail.Owner.AvatarURL,
		&detail.OwnerSubscribersCount,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.VideoDetail{}, ErrNotFound
		}
		return models.VideoDetail{}, fmt.Errorf("select video detail: %w", err)
	}

	return detail, nil
}

// List returns published videos owner-enriched and most-recent-first,
// optionally restricted to one owner by id or username.
func (r *PostgresVideoRepository) List(ctx context.Context, params models.VideoListParams) ([]models.VideoListItem, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	limit := params.Limit
	if limit <= 0 {
		limit = defaultVideoPageSize
	}
	if limit > maxVideoPageSize {
		limit = maxVideoPageSize
	}
	offset := params.Offset
	if offset < 0 {
		offset = 0
	}

	rows, err := conn.Query(ctx, `
        SELECT v.id, v.owner_id, v.video_url, v.thumbnail_url, v.title, v.description,
               v.duration, v.views, v.is_published, v.created_at, v.updated_at,
               o.username, o.full_name, o.avatar_url
        FROM videos v
        JOIN users o ON o.id = v.owner_id
        WHERE v.is_published
          AND ($1 = '' OR v.owner_id = $1)
          AND ($2 = '' OR o.username = $2)
        ORDER BY v.created_at DESC
        LIMIT $3 OFFSET $4
    `, params.OwnerID, params.OwnerUsername, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("query videos: %w", err)
	}
	defer rows.Close()

	var items []models.VideoListItem
	for rows.Next() {
		var item models.VideoListItem
		if err := rows.Scan(
			&item.ID, &item.OwnerID, &item.VideoURL, &item.ThumbnailURL, &item.Title, &item.Description,
			&item.Duration, &item.Views, &item.IsPublished, &item.CreatedAt, &item.UpdatedAt,
			&item.Owner.Username, &item.Owner.FullName, &item.Owner.AvatarURL,
		); err != nil {
			return nil, fmt.Errorf("scan video: %w", err)
		}
		items = append(items, item)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate videos: %w", err)
	}

	return items, nil
}

// Update replaces the mutable descriptive fields of a video.
func (r *PostgresVideoRepository) Update(ctx context.Context, video models.Video) error {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	tag, err := conn.Exec(ctx, `
        UPDATE videos
        SET title = $2, description = $3, thumbnail_url = $4, is_published = $5, updated_at = NOW()
        WHERE id = $1
    `, video.ID, video.Title, video.Description, video.ThumbnailURL, video.IsPublished)
	if err != nil {
		return fmt.Errorf("update video: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}

	return nil
}

// Delete removes a video record.
func (r *PostgresVideoRepository) Delete(ctx context.Context, id string) error {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	tag, err := conn.Exec(ctx, `DELETE FROM videos WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete video: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}

	return nil
}

var _ VideoRepository = (*PostgresVideoRepository)(nil)
