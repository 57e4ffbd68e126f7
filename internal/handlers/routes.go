package handlers

import (
	"net/http"
	"time"
)

// Dependencies aggregates everything the HTTP surface needs.
type Dependencies struct {
	Users         UserStore
	Videos        VideoStore
	Tweets        TweetStore
	Subscriptions SubscriptionStore

	Issuer  TokenIssuer
	Storage FileStorage
	Prober  MediaProber
	Cleaner BlobCleaner
	Limiter RateLimiter

	MaxUploadBytes int64
	TempDir        string
	NowFunc        func() time.Time
}

// RegisterRoutes mounts every endpoint on the provided mux.
func RegisterRoutes(mux *http.ServeMux, deps Dependencies) {
	users := UserHandler{
		Users:          deps.Users,
		Issuer:         deps.Issuer,
		Storage:        deps.Storage,
		Cleaner:        deps.Cleaner,
		Limiter:        deps.Limiter,
		MaxUploadBytes: deps.MaxUploadBytes,
		TempDir:        deps.TempDir,
		NowFunc:        deps.NowFunc,
	}
	tweets := TweetHandler{
		Tweets:  deps.Tweets,
		Users:   deps.Users,
		Issuer:  deps.Issuer,
		NowFunc: deps.NowFunc,
	}
	subscriptions := SubscriptionHandler{
		Subscriptions: deps.Subscriptions,
		Issuer:        deps.Issuer,
	}
	videos := VideoHandler{
		Videos:         deps.Videos,
		Users:          deps.Users,
		Issuer:         deps.Issuer,
		Storage:        deps.Storage,
		Prober:         deps.Prober,
		Cleaner:        deps.Cleaner,
		MaxUploadBytes: deps.MaxUploadBytes,
		TempDir:        deps.TempDir,
		NowFunc:        deps.NowFunc,
	}

	mux.HandleFunc("GET /healthz", HealthHandler{}.Handle)

	mux.HandleFunc("POST /api/v1/users/register", users.Register)
	mux.HandleFunc("POST /api/v1/users/login", users.Login)
	mux.HandleFunc("POST /api/v1/users/logout", users.Logout)
	mux.HandleFunc("POST /api/v1/users/refresh-token", users.Refresh)
	mux.HandleFunc("POST /api/v1/users/change-password", users.ChangePassword)
	mux.HandleFunc("GET /api/v1/users/current-user", users.CurrentUser)
	mux.HandleFunc("PATCH /api/v1/users/update-account", users.UpdateAccount)
	mux.HandleFunc("POST /api/v1/users/update-avatar", users.UpdateAvatar)
	mux.HandleFunc("POST /api/v1/users/update-cover-image", users.UpdateCoverImage)
	mux.HandleFunc("GET /api/v1/users/c/{username}", users.ChannelProfile)
	mux.HandleFunc("GET /api/v1/users/history", users.WatchHistory)

	mux.HandleFunc("POST /api/v1/tweets/create-tweet", tweets.Create)
	mux.HandleFunc("GET /api/v1/tweets/user/{username}", tweets.ListByUser)
	mux.HandleFunc("PATCH /api/v1/tweets/{tweetId}", tweets.Update)
	mux.HandleFunc("DELETE /api/v1/tweets/{tweetId}", tweets.Delete)

	mux.HandleFunc("POST /api/v1/subscriptions/{channelId}", subscriptions.Toggle)
	mux.HandleFunc("GET /api/v1/subscriptions/channel/{channelId}/subscribers", subscriptions.Subscribers)
	mux.HandleFunc("GET /api/v1/subscriptions/subscriber/{subscriberId}/channels", subscriptions.SubscribedChannels)

	mux.HandleFunc("GET /api/v1/videos", videos.List)
	mux.HandleFunc("POST /api/v1/videos", videos.Publish)
	mux.HandleFunc("GET /api/v1/videos/{videoId}", videos.Detail)
	mux.HandleFunc("PATCH /api/v1/videos/{videoId}", videos.Update)
	mux.HandleFunc("DELETE /api/v1/videos/{videoId}", videos.Delete)
}
