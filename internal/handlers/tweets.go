package handlers

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/clipstream/backend/internal/models"
)

// TweetHandler implements the short-post endpoints.
type TweetHandler struct {
	Tweets  TweetStore
	Users   UserStore
	Issuer  TokenIssuer
	NowFunc func() time.Time
}

type tweetResponse struct {
	ID        string    `json:"id"`
	OwnerID   string    `json:"ownerId"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func newTweetResponse(tweet models.Tweet) tweetResponse {
	return tweetResponse{
		ID:        tweet.ID,
		OwnerID:   tweet.OwnerID,
		Content:   tweet.Content,
		CreatedAt: tweet.CreatedAt,
		UpdatedAt: tweet.UpdatedAt,
	}
}

func (h TweetHandler) now() time.Time {
	if h.NowFunc != nil {
		return h.NowFunc().UTC()
	}
	return time.Now().UTC()
}

type tweetRequest struct {
	Content string `json:"content"`
}

// Create handles POST /api/v1/tweets/create-tweet.
func (h TweetHandler) Create(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	claims, ok := requireUser(w, r, h.Issuer)
	if !ok {
		return
	}

	var req tweetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		fail(ctx, w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Content) == "" {
		fail(ctx, w, http.StatusBadRequest, "content is required")
		return
	}

	now := h.now()
	tweet := models.Tweet{
		ID:        uuid.NewString(),
		OwnerID:   claims.UserID(),
		Content:   strings.TrimSpace(req.Content),
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := h.Tweets.Create(ctx, tweet); err != nil {
		failFromError(ctx, w, err, "user does not exist", "")
		return
	}

	respond(ctx, w, http.StatusCreated, newTweetResponse(tweet), "tweet created successfully")
}

// ListByUser handles GET /api/v1/tweets/user/{username}, newest first.
func (h TweetHandler) ListByUser(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	username := strings.ToLower(strings.TrimSpace(r.PathValue("username")))
	if username == "" {
		fail(ctx, w, http.StatusBadRequest, "username is required")
		return
	}

	// An unknown user is a 404, not an empty list.
	if _, err := h.Users.FindByUsername(ctx, username); err != nil {
		failFromError(ctx, w, err, "user does not exist", "")
		return
	}

	tweets, err := h.Tweets.ListByUsername(ctx, username)
	if err != nil {
		failFromError(ctx, w, err, "user does not exist", "")
		return
	}

	items := make([]tweetResponse, 0, len(tweets))
	for _, tweet := range tweets {
		items = append(items, newTweetResponse(tweet))
	}
	respond(ctx, w, http.StatusOK, items, "tweets fetched successfully")
}

// Update handles PATCH /api/v1/tweets/{tweetId}. Only the owner may edit;
// a mismatch reads as 401 rather than 404 so the tweet's existence is not
// hidden (deployment decision, either is defensible).
func (h TweetHandler) Update(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	claims, ok := requireUser(w, r, h.Issuer)
	if !ok {
		return
	}

	tweet, ok := h.ownedTweet(w, r, claims.UserID())
	if !ok {
		return
	}

	var req tweetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		fail(ctx, w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Content) == "" {
		fail(ctx, w, http.StatusBadRequest, "content is required")
		return
	}

	updated, err := h.Tweets.UpdateContent(ctx, tweet.ID, strings.TrimSpace(req.Content))
	if err != nil {
		failFromError(ctx, w, err, "tweet does not exist", "")
		return
	}

	respond(ctx, w, http.StatusOK, newTweetResponse(updated), "tweet updated successfully")
}

// Delete handles DELETE /api/v1/tweets/{tweetId}.
func (h TweetHandler) Delete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	claims, ok := requireUser(w, r, h.Issuer)
	if !ok {
		return
	}

	tweet, ok := h.ownedTweet(w, r, claims.UserID())
	if !ok {
		return
	}

	if err := h.Tweets.Delete(ctx, tweet.ID); err != nil {
		failFromError(ctx, w, err, "tweet does not exist", "")
		return
	}

	respond(ctx, w, http.StatusOK, struct{}{}, "tweet deleted successfully")
}

func (h TweetHandler) ownedTweet(w http.ResponseWriter, r *http.Request, userID string) (models.Tweet, bool) {
	ctx := r.Context()

	tweetID := strings.TrimSpace(r.PathValue("tweetId"))
	if tweetID == "" {
		fail(ctx, w, http.StatusBadRequest, "tweet id is required")
		return models.Tweet{}, false
	}

	tweet, err := h.Tweets.FindByID(ctx, tweetID)
	if err != nil {
		failFromError(ctx, w, err, "tweet does not exist", "")
		return models.Tweet{}, false
	}

	if tweet.OwnerID != userID {
		fail(ctx, w, http.StatusUnauthorized, "only the owner can modify this tweet")
		return models.Tweet{}, false
	}

	return tweet, true
}
