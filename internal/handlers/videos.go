package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/clipstream/backend/internal/logging"
	"github.com/clipstream/backend/internal/models"
	"github.com/clipstream/backend/internal/repositories"
)

// VideoHandler implements the video publish and playback-view endpoints.
type VideoHandler struct {
	Videos  VideoStore
	Users   UserStore
	Issuer  TokenIssuer
	Storage FileStorage
	Prober  MediaProber
	Cleaner BlobCleaner

	MaxUploadBytes int64
	TempDir        string
	NowFunc        func() time.Time
}

type videoOwnerResponse struct {
	Username  string `json:"username"`
	FullName  string `json:"fullName"`
	AvatarURL string `json:"avatar"`
}

func newVideoOwnerResponse(owner models.VideoOwner) videoOwnerResponse {
	return videoOwnerResponse{
		Username:  owner.Username,
		FullName:  owner.FullName,
		AvatarURL: owner.AvatarURL,
	}
}

type videoResponse struct {
	ID           string    `json:"id"`
	OwnerID      string    `json:"ownerId"`
	VideoURL     string    `json:"videoFile"`
	ThumbnailURL string    `json:"thumbnail"`
	Title        string    `json:"title"`
	Description  string    `json:"description"`
	Duration     float64   `json:"duration"`
	Views        int64     `json:"views"`
	IsPublished  bool      `json:"isPublished"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

func newVideoResponse(video models.Video) videoResponse {
	return videoResponse{
		ID:           video.ID,
		OwnerID:      video.OwnerID,
		VideoURL:     video.VideoURL,
		ThumbnailURL: video.ThumbnailURL,
		Title:        video.Title,
		Description:  video.Description,
		Duration:     video.Duration,
		Views:        video.Views,
		IsPublished:  video.IsPublished,
		CreatedAt:    video.CreatedAt,
		UpdatedAt:    video.UpdatedAt,
	}
}

type videoListItemResponse struct {
	videoResponse
	Owner videoOwnerResponse `json:"owner"`
}

type videoDetailResponse struct {
	videoResponse
	Owner                 videoOwnerResponse `json:"owner"`
	OwnerSubscribersCount int64              `json:"ownerSubscribersCount"`
}

func (h VideoHandler) now() time.Time {
	if h.NowFunc != nil {
		return h.NowFunc().UTC()
	}
	return time.Now().UTC()
}

// List handles GET /api/v1/videos. Only published videos appear. Supports
// ?username= plus limit/offset paging.
func (h VideoHandler) List(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	query := r.URL.Query()
	params := models.VideoListParams{
		OwnerUsername: strings.ToLower(strings.TrimSpace(query.Get("username"))),
	}
	if raw := query.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			fail(ctx, w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		params.Limit = limit
	}
	if raw := query.Get("offset"); raw != "" {
		offset, err := strconv.Atoi(raw)
		if err != nil || offset < 0 {
			fail(ctx, w, http.StatusBadRequest, "offset must be a non-negative integer")
			return
		}
		params.Offset = offset
	}

	items, err := h.Videos.List(ctx, params)
	if err != nil {
		failFromError(ctx, w, err, "videos not found", "")
		return
	}

	data := make([]videoListItemResponse, 0, len(items))
	for _, item := range items {
		data = append(data, videoListItemResponse{
			videoResponse: newVideoResponse(item.Video),
			Owner:         newVideoOwnerResponse(item.Owner),
		})
	}
	respond(ctx, w, http.StatusOK, data, "videos fetched successfully")
}

// Publish handles POST /api/v1/videos. The media files are validated and
// uploaded before the row is inserted, so a stored video always points at
// reachable blobs.
func (h VideoHandler) Publish(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := logging.FromContext(ctx)

	claims, ok := requireUser(w, r, h.Issuer)
	if !ok {
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.MaxUploadBytes)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		fail(ctx, w, http.StatusBadRequest, "invalid multipart form")
		return
	}

	title := strings.TrimSpace(r.FormValue("title"))
	description := strings.TrimSpace(r.FormValue("description"))
	if title == "" {
		fail(ctx, w, http.StatusBadRequest, "title is required")
		return
	}

	videoUpload, err := saveTempFile(r, "videoFile", h.TempDir)
	if err != nil {
		fail(ctx, w, http.StatusBadRequest, "video file is required")
		return
	}
	defer removeTemp(r, videoUpload.Path)

	if !videoUpload.isVideo() {
		fail(ctx, w, http.StatusBadRequest, "video must be an mp4, webm, or quicktime file")
		return
	}

	thumbUpload, err := saveTempFile(r, "thumbnail", h.TempDir)
	if err != nil {
		fail(ctx, w, http.StatusBadRequest, "thumbnail file is required")
		return
	}
	defer removeTemp(r, thumbUpload.Path)

	if !thumbUpload.isImage() {
		fail(ctx, w, http.StatusBadRequest, "thumbnail must be a jpeg or png image")
		return
	}

	duration, err := h.Prober.Duration(ctx, videoUpload.Path)
	if err != nil {
		logger.Warn("probe uploaded video", "error", err)
		failFromError(ctx, w, err, "", "")
		return
	}

	ctx, span := logging.StartSpan(ctx, "videos.upload")
	videoURL, err := storeUpload(r, h.Storage, videoUpload)
	if err != nil {
		span.End()
		logger.Error("upload video", "error", err)
		fail(ctx, w, http.StatusInternalServerError, "failed to store video")
		return
	}
	thumbnailURL, err := storeUpload(r, h.Storage, thumbUpload)
	span.End()
	if err != nil {
		logger.Error("upload thumbnail", "error", err)
		fail(ctx, w, http.StatusInternalServerError, "failed to store thumbnail")
		return
	}

	now := h.now()
	video := models.Video{
		ID:           uuid.NewString(),
		OwnerID:      claims.UserID(),
		VideoURL:     videoURL,
		ThumbnailURL: thumbnailURL,
		Title:        title,
		Description:  description,
		Duration:     duration,
		IsPublished:  true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := h.Videos.Create(ctx, video); err != nil {
		// Uploaded blobs are orphaned on insert failure; log and accept.
		logger.Error("persist video", "error", err, "videoFile", videoURL, "thumbnail", thumbnailURL)
		failFromError(ctx, w, err, "user does not exist", "video already exists")
		return
	}

	respond(ctx, w, http.StatusCreated, newVideoResponse(video), "video published successfully")
}

// Detail handles GET /api/v1/videos/{videoId}. Authenticated viewers get the
// fetch recorded in their watch history.
func (h VideoHandler) Detail(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	videoID := strings.TrimSpace(r.PathValue("videoId"))
	if videoID == "" {
		fail(ctx, w, http.StatusBadRequest, "video id is required")
		return
	}

	detail, err := h.Videos.Detail(ctx, videoID)
	if err != nil {
		failFromError(ctx, w, err, "video does not exist", "")
		return
	}

	if viewer := viewerID(r, h.Issuer); viewer != "" {
		if err := h.Users.RecordWatch(ctx, viewer, detail.ID); err != nil {
			logging.FromContext(ctx).Warn("record watch history", "videoId", detail.ID, "error", err)
		}
	}

	data := videoDetailResponse{
		videoResponse:         newVideoResponse(detail.Video),
		Owner:                 newVideoOwnerResponse(detail.Owner),
		OwnerSubscribersCount: detail.OwnerSubscribersCount,
	}
	respond(ctx, w, http.StatusOK, data, "video fetched successfully")
}

type updateVideoRequest struct {
	Title       *string `json:"title"`
	Description *string `json:"description"`
	IsPublished *bool   `json:"isPublished"`
}

// Update handles PATCH /api/v1/videos/{videoId}. Owner-only, like tweets.
func (h VideoHandler) Update(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	claims, ok := requireUser(w, r, h.Issuer)
	if !ok {
		return
	}

	video, ok := h.ownedVideo(w, r, claims.UserID())
	if !ok {
		return
	}

	var req updateVideoRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		fail(ctx, w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Title == nil && req.Description == nil && req.IsPublished == nil {
		fail(ctx, w, http.StatusBadRequest, "nothing to update")
		return
	}

	if req.Title != nil {
		title := strings.TrimSpace(*req.Title)
		if title == "" {
			fail(ctx, w, http.StatusBadRequest, "title cannot be blank")
			return
		}
		video.Title = title
	}
	if req.Description != nil {
		video.Description = strings.TrimSpace(*req.Description)
	}
	if req.IsPublished != nil {
		video.IsPublished = *req.IsPublished
	}
	video.UpdatedAt = h.now()

	if err := h.Videos.Update(ctx, video); err != nil {
		failFromError(ctx, w, err, "video does not exist", "")
		return
	}

	respond(ctx, w, http.StatusOK, newVideoResponse(video), "video updated successfully")
}

// Delete handles DELETE /api/v1/videos/{videoId}. The media blobs are reaped
// in the background after the row is gone.
func (h VideoHandler) Delete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	claims, ok := requireUser(w, r, h.Issuer)
	if !ok {
		return
	}

	video, ok := h.ownedVideo(w, r, claims.UserID())
	if !ok {
		return
	}

	if err := h.Videos.Delete(ctx, video.ID); err != nil {
		failFromError(ctx, w, err, "video does not exist", "")
		return
	}

	if h.Cleaner != nil {
		logger := logging.FromContext(ctx)
		for _, location := range []string{video.VideoURL, video.ThumbnailURL} {
			if err := h.Cleaner.Enqueue(ctx, location); err != nil {
				logger.Warn("enqueue video blob for deletion", "location", location, "error", err)
			}
		}
	}

	respond(ctx, w, http.StatusOK, struct{}{}, "video deleted successfully")
}

func (h VideoHandler) ownedVideo(w http.ResponseWriter, r *http.Request, userID string) (models.Video, bool) {
	ctx := r.Context()

	videoID := strings.TrimSpace(r.PathValue("videoId"))
	if videoID == "" {
		fail(ctx, w, http.StatusBadRequest, "video id is required")
		return models.Video{}, false
	}

	video, err := h.Videos.FindByID(ctx, videoID)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			fail(ctx, w, http.StatusNotFound, "video does not exist")
			return models.Video{}, false
		}
		failFromError(ctx, w, err, "video does not exist", "")
		return models.Video{}, false
	}

	if video.OwnerID != userID {
		fail(ctx, w, http.StatusUnauthorized, "only the owner can modify this video")
		return models.Video{}, false
	}

	return video, true
}
