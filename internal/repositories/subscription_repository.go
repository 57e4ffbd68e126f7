package repositories

import (
	"context"

	"github.com/clipstream/backend/internal/models"
)

// SubscriptionRepository manages subscription edges and the enriched listings
// derived from them.
type SubscriptionRepository interface {
	Toggle(ctx context.Context, subscriberID, channelID string) (models.ToggleResult, error)
	Subscribers(ctx context.Context, channelID, viewerID string) ([]models.ChannelSummary, error)
	SubscribedChannels(ctx context.Context, subscriberID, fullNameFilter string) ([]models.ChannelSummary, error)
}
