package models

import "time"

// User represents an account on the platform. A user doubles as a channel
// when other users subscribe to them.
type User struct {
	ID            string
	Username      string
	Email         string
	FullName      string
	AvatarURL     string
	CoverImageURL string
	Password      string
	RefreshToken  string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Video stores the media URLs and descriptive fields for a published video.
type Video struct {
	ID           string
	OwnerID      string
	VideoURL     string
	ThumbnailURL string
	Title        string
	Description  string
	Duration     float64
	Views        int64
	IsPublished  bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Tweet is a short text post owned by a user.
type Tweet struct {
	ID        string
	OwnerID   string
	Content   string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Subscription is a directed edge from a subscriber to a channel. The
// existence of the edge is the only state it carries.
type Subscription struct {
	ID           string
	SubscriberID string
	ChannelID    string
	CreatedAt    time.Time
}

// ChannelProfile is the read model for a channel page: the user joined with
// counts and flags derived from the subscription edges at query time.
type ChannelProfile struct {
	ID                        string
	Username                  string
	Email                     string
	FullName                  string
	AvatarURL                 string
	CoverImageURL             string
	SubscribersCount          int64
	ChannelsSubscribedToCount int64
	IsSubscribed              bool
}

// ChannelSummary is a single enriched row in a subscriber or subscribed-channel
// listing: the user plus their own subscriber count and the viewer's flag.
type ChannelSummary struct {
	ID               string
	Username         string
	FullName         string
	AvatarURL        string
	SubscribersCount int64
	IsSubscribed     bool
}

// VideoOwner is the projection of a video owner embedded in read models.
type VideoOwner struct {
	Username  string
	FullName  string
	AvatarURL string
}

// VideoDetail is the flat projection served for a single video: the video
// fields plus the owner and the owner's derived subscriber count.
type VideoDetail struct {
	Video
	Owner                 VideoOwner
	OwnerSubscribersCount int64
}

// VideoListItem is one owner-enriched row of a video listing.
type VideoListItem struct {
	Video
	Owner VideoOwner
}

// WatchHistoryEntry is one video of a user's watch history with its owner
// reduced to the fields shown in the history view.
type WatchHistoryEntry struct {
	Video
	Owner VideoOwner
}

// VideoListParams filters and pages a video listing.
type VideoListParams struct {
	OwnerID       string
	OwnerUsername string
	Limit         int
	Offset        int
}

// ToggleResult reports the state transition performed by a subscription toggle.
type ToggleResult struct {
	Subscribed   bool
	Subscription Subscription
}
