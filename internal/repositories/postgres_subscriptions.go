package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	crdbpgx "github.com/cockroachdb/cockroach-go/v2/crdb/crdbpgxv5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/clipstream/backend/internal/db"
	"github.com/clipstream/backend/internal/models"
)

// PostgresSubscriptionRepository provides PostgreSQL-backed persistence for
// subscription edges.
type PostgresSubscriptionRepository struct {
	pool db.Pool
}

// NewPostgresSubscriptionRepository constructs a subscription repository backed by PostgreSQL.
func NewPostgresSubscriptionRepository(pool db.Pool) *PostgresSubscriptionRepository {
	return &PostgresSubscriptionRepository{pool: pool}
}

// Toggle flips the subscription edge for (subscriber, channel) inside a
// retried transaction: an existing edge is deleted, otherwise one is created.
// A concurrent duplicate subscribe resolves to "already subscribed" via the
// uniqueness constraint instead of failing.
func (r *PostgresSubscriptionRepository) Toggle(ctx context.Context, subscriberID, channelID string) (models.ToggleResult, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return models.ToggleResult{}, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	var result models.ToggleResult
	err = crdbpgx.ExecuteTx(ctx, conn, pgx.TxOptions{}, func(tx pgx.Tx) error {
		var channelExists bool
		if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM users WHERE id = $1)`, channelID).Scan(&channelExists); err != nil {
			return fmt.Errorf("check channel: %w", err)
		}
		if !channelExists {
			return ErrNotFound
		}

		tag, err := tx.Exec(ctx, `
            DELETE FROM subscriptions
            WHERE subscriber_id = $1 AND channel_id = $2
        `, subscriberID, channelID)
		if err != nil {
			return fmt.Errorf("delete subscription: %w", err)
		}
		if tag.RowsAffected() > 0 {
			result = models.ToggleResult{Subscribed: false}
			return nil
		}

		sub := models.Subscription{
			ID:           uuid.NewString(),
			SubscriberID: subscriberID,
			ChannelID:    channelID,
			CreatedAt:    time.Now().UTC(),
		}
		row := tx.QueryRow(ctx, `
            INSERT INTO subscriptions (id, subscriber_id, channel_id, created_at)
            VALUES ($1, $2, $3, $4)
            ON CONFLICT (subscriber_id, channel_id) DO NOTHING
            RETURNING id, created_at
        `, sub.ID, sub.SubscriberID, sub.ChannelID, sub.CreatedAt)
		if err := row.Scan(&sub.ID, &sub.CreatedAt); err != nil {
			if !errors.Is(err, pgx.ErrNoRows) {
				return fmt.Errorf("insert subscription: %w", err)
			}
			// A concurrent call won the insert; report the existing edge.
			existing := tx.QueryRow(ctx, `
                SELECT id, subscriber_id, channel_id, created_at
                FROM subscriptions
                WHERE subscriber_id = $1 AND channel_id = $2
            `, subscriberID, channelID)
			if err := existing.Scan(&sub.ID, &sub.SubscriberID, &sub.ChannelID, &sub.CreatedAt); err != nil {
				return fmt.Errorf("select subscription after conflict: %w", err)
			}
		}

		result = models.ToggleResult{Subscribed: true, Subscription: sub}
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return models.ToggleResult{}, ErrNotFound
		}
		return models.ToggleResult{}, fmt.Errorf("toggle subscription: %w", err)
	}

	return result, nil
}

const channelSummaryEnrichment = `
               (SELECT COUNT(*) FROM subscriptions sc WHERE sc.channel_id = u.id) AS subscribers_count,
               EXISTS (
                   SELECT 1 FROM subscriptions sv
                   WHERE sv.channel_id = u.id AND sv.subscriber_id = $2
               ) AS is_subscribed`

// Subscribers lists everyone subscribed to the channel, each enriched with
// their own subscriber count and the viewer's subscription flag toward them.
func (r *PostgresSubscriptionRepository) Subscribers(ctx context.Context, channelID, viewerID string) ([]models.ChannelSummary, error) {
	return r.listSummaries(ctx, channelID, viewerID, `
        SELECT u.id, u.username, u.full_name, u.avatar_url,`+channelSummaryEnrichment+`
        FROM subscriptions s
        JOIN users u ON u.id = s.subscriber_id
        WHERE s.channel_id = $1
        ORDER BY s.created_at DESC
    `)
}

// SubscribedChannels lists every channel the subscriber follows with the same
// enrichment, the subscriber acting as the viewer. The optional full-name
// filter is applied over the joined rows, not the base table.
func (r *PostgresSubscriptionRepository) SubscribedChannels(ctx context.Context, subscriberID, fullNameFilter string) ([]models.ChannelSummary, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	if err := r.ensureUser(ctx, conn, subscriberID); err != nil {
		return nil, err
	}

	rows, err := conn.Query(ctx, `
        SELECT u.id, u.username, u.full_name, u.avatar_url,`+channelSummaryEnrichment+`
        FROM subscriptions s
        JOIN users u ON u.id = s.channel_id
        WHERE s.subscriber_id = $1
          AND ($3 = '' OR u.full_name ILIKE '%' || $3 || '%')
        ORDER BY s.created_at DESC
    `, subscriberID, subscriberID, fullNameFilter)
	if err != nil {
		return nil, fmt.Errorf("query subscribed channels: %w", err)
	}
	defer rows.Close()

	return collectSummaries(rows)
}

func (r *PostgresSubscriptionRepository) listSummaries(ctx context.Context, subjectID, viewerID, query string) ([]models.ChannelSummary, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	if err := r.ensureUser(ctx, conn, subjectID); err != nil {
		return nil, err
	}

	rows, err := conn.Query(ctx, query, subjectID, viewerID)
	if err != nil {
		return nil, fmt.Errorf("query subscriptions: %w", err)
	}
	defer rows.Close()

	return collectSummaries(rows)
}

func (r *PostgresSubscriptionRepository) ensureUser(ctx context.Context, conn interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}, id string) error {
	var exists bool
	if err := conn.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM users WHERE id = $1)`, id).Scan(&exists); err != nil {
		return fmt.Errorf("check user: %w", err)
	}
	if !exists {
		return ErrNotFound
	}
	return nil
}

func collectSummaries(rows pgx.Rows) ([]models.ChannelSummary, error) {
	var summaries []models.ChannelSummary
	for rows.Next() {
		var s models.ChannelSummary
		if err := rows.Scan(&s.ID, &s.Username, &s.FullName, &s.AvatarURL, &s.SubscribersCount, &s.IsSubscribed); err != nil {
			return nil, fmt.Errorf("scan channel summary: %w", err)
		}
		summaries = append(summaries, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate channel summaries: %w", err)
	}
	return summaries, nil
}

var _ SubscriptionRepository = (*PostgresSubscriptionRepository)(nil)
