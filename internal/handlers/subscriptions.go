package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/clipstream/backend/internal/models"
)

// SubscriptionHandler implements the channel subscription endpoints.
type SubscriptionHandler struct {
	Subscriptions SubscriptionStore
	Issuer        TokenIssuer
}

type subscriptionResponse struct {
	ID           string    `json:"id"`
	SubscriberID string    `json:"subscriberId"`
	ChannelID    string    `json:"channelId"`
	CreatedAt    time.Time `json:"createdAt"`
}

type channelSummaryResponse struct {
	ID               string `json:"id"`
	Username         string `json:"username"`
	FullName         string `json:"fullName"`
	AvatarURL        string `json:"avatar"`
	SubscribersCount int64  `json:"subscribersCount"`
	IsSubscribed     bool   `json:"isSubscribed"`
}

func newChannelSummaryResponses(summaries []models.ChannelSummary) []channelSummaryResponse {
	items := make([]channelSummaryResponse, 0, len(summaries))
	for _, s := range summaries {
		items = append(items, channelSummaryResponse{
			ID:               s.ID,
			Username:         s.Username,
			FullName:         s.FullName,
			AvatarURL:        s.AvatarURL,
			SubscribersCount: s.SubscribersCount,
			IsSubscribed:     s.IsSubscribed,
		})
	}
	return items
}

// Toggle handles POST /api/v1/subscriptions/{channelId}. Subscribing returns
// the new edge, unsubscribing returns an empty object.
func (h SubscriptionHandler) Toggle(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	claims, ok := requireUser(w, r, h.Issuer)
	if !ok {
		return
	}

	channelID := strings.TrimSpace(r.PathValue("channelId"))
	if channelID == "" {
		fail(ctx, w, http.StatusBadRequest, "channel id is required")
		return
	}
	if channelID == claims.UserID() {
		fail(ctx, w, http.StatusBadRequest, "cannot subscribe to your own channel")
		return
	}

	result, err := h.Subscriptions.Toggle(ctx, claims.UserID(), channelID)
	if err != nil {
		failFromError(ctx, w, err, "channel does not exist", "")
		return
	}

	if !result.Subscribed {
		respond(ctx, w, http.StatusOK, struct{}{}, "unsubscribed successfully")
		return
	}

	data := subscriptionResponse{
		ID:           result.Subscription.ID,
		SubscriberID: result.Subscription.SubscriberID,
		ChannelID:    result.Subscription.ChannelID,
		CreatedAt:    result.Subscription.CreatedAt,
	}
	respond(ctx, w, http.StatusOK, data, "subscribed successfully")
}

// Subscribers handles GET /api/v1/subscriptions/channel/{channelId}/subscribers.
func (h SubscriptionHandler) Subscribers(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	channelID := strings.TrimSpace(r.PathValue("channelId"))
	if channelID == "" {
		fail(ctx, w, http.StatusBadRequest, "channel id is required")
		return
	}

	summaries, err := h.Subscriptions.Subscribers(ctx, channelID, viewerID(r, h.Issuer))
	if err != nil {
		failFromError(ctx, w, err, "channel does not exist", "")
		return
	}

	respond(ctx, w, http.StatusOK, newChannelSummaryResponses(summaries), "subscribers fetched successfully")
}

// SubscribedChannels handles
// GET /api/v1/subscriptions/subscriber/{subscriberId}/channels?fullName=.
// The optional fullName query filters channels by a case-insensitive
// substring match.
func (h SubscriptionHandler) SubscribedChannels(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	subscriberID := strings.TrimSpace(r.PathValue("subscriberId"))
	if subscriberID == "" {
		fail(ctx, w, http.StatusBadRequest, "subscriber id is required")
		return
	}

	filter := strings.TrimSpace(r.URL.Query().Get("fullName"))

	summaries, err := h.Subscriptions.SubscribedChannels(ctx, subscriberID, filter)
	if err != nil {
		failFromError(ctx, w, err, "subscriber does not exist", "")
		return
	}

	respond(ctx, w, http.StatusOK, newChannelSummaryResponses(summaries), "subscribed channels fetched successfully")
}
