package handlers

import (
	"context"
	"io"

	"github.com/clipstream/backend/internal/auth"
	"github.com/clipstream/backend/internal/models"
)

// UserStore captures the persistence operations the user handlers rely on.
type UserStore interface {
	Create(ctx context.Context, user models.User) error
	FindByID(ctx context.Context, id string) (models.User, error)
	FindByUsername(ctx context.Context, username string) (models.User, error)
	FindByEmail(ctx context.Context, email string) (models.User, error)
	UpdateProfile(ctx context.Context, id, fullName, email string) (models.User, error)
	UpdateAvatar(ctx context.Context, id, avatarURL string) (models.User, error)
	UpdateCoverImage(ctx context.Context, id, coverImageURL string) (models.User, error)
	UpdatePassword(ctx context.Context, id, passwordHash string) error
	SetRefreshToken(ctx context.Context, id, token string) error
	RotateRefreshToken(ctx context.Context, id, current, next string) error
	ChannelProfile(ctx context.Context, username, viewerID string) (models.ChannelProfile, error)
	WatchHistory(ctx context.Context, userID string) ([]models.WatchHistoryEntry, error)
	RecordWatch(ctx context.Context, userID, videoID string) error
}

// VideoStore captures the persistence operations the video handlers rely on.
type VideoStore interface {
	Create(ctx context.Context, video models.Video) error
	FindByID(ctx context.Context, id string) (models.Video, error)
	Detail(ctx context.Context, id string) (models.VideoDetail, error)
	List(ctx context.Context, params models.VideoListParams) ([]models.VideoListItem, error)
	Update(ctx context.Context, video models.Video) error
	Delete(ctx context.Context, id string) error
}

// TweetStore captures the persistence operations the tweet handlers rely on.
type TweetStore interface {
	Create(ctx context.Context, tweet models.Tweet) error
	FindByID(ctx context.Context, id string) (models.Tweet, error)
	ListByUsername(ctx context.Context, username string) ([]models.Tweet, error)
	UpdateContent(ctx context.Context, id, content string) (models.Tweet, error)
	Delete(ctx context.Context, id string) error
}

// SubscriptionStore captures the subscription operations used by handlers.
type SubscriptionStore interface {
	Toggle(ctx context.Context, subscriberID, channelID string) (models.ToggleResult, error)
	Subscribers(ctx context.Context, channelID, viewerID string) ([]models.ChannelSummary, error)
	SubscribedChannels(ctx context.Context, subscriberID, fullNameFilter string) ([]models.ChannelSummary, error)
}

// TokenIssuer mints and verifies the access/refresh token pair.
type TokenIssuer interface {
	IssueAccessToken(user models.User) (string, error)
	IssueRefreshToken(userID string) (string, error)
	VerifyAccess(token string) (*auth.Claims, error)
	VerifyRefresh(token string) (*auth.Claims, error)
}

// FileStorage persists uploaded media and returns a public location for it.
type FileStorage interface {
	Save(ctx context.Context, name string, r io.Reader, contentType string) (string, error)
}

// MediaProber inspects a video file on disk and reports its duration.
type MediaProber interface {
	Duration(ctx context.Context, path string) (float64, error)
}

// BlobCleaner schedules background deletion of replaced or orphaned blobs.
type BlobCleaner interface {
	Enqueue(ctx context.Context, location string) error
}
