package repositories

import (
	"context"

	"github.com/clipstream/backend/internal/models"
)

// VideoRepository exposes data access for videos and their owner-enriched views.
type VideoRepository interface {
	Create(ctx context.Context, video models.Video) error
	FindByID(ctx context.Context, id string) (models.Video, error)
	Detail(ctx context.Context, id string) (models.VideoDetail, error)
	List(ctx context.Context, params models.VideoListParams) ([]models.VideoListItem, error)
	Update(ctx context.Context, video models.Video) error
	Delete(ctx context.Context, id string) error
}
