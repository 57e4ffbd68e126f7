package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/clipstream/backend/internal/logging"
	"github.com/clipstream/backend/internal/models"
	"github.com/clipstream/backend/internal/repositories"
)

// UserHandler implements account, session, and channel-view endpoints.
type UserHandler struct {
	Users   UserStore
	Issuer  TokenIssuer
	Storage FileStorage
	Cleaner BlobCleaner
	Limiter RateLimiter

	MaxUploadBytes int64
	TempDir        string
	NowFunc        func() time.Time
}

type userResponse struct {
	ID            string    `json:"id"`
	Username      string    `json:"username"`
	Email         string    `json:"email"`
	FullName      string    `json:"fullName"`
	AvatarURL     string    `json:"avatar"`
	CoverImageURL string    `json:"coverImage"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

func newUserResponse(user models.User) userResponse {
	return userResponse{
		ID:            user.ID,
		Username:      user.Username,
		Email:         user.Email,
		FullName:      user.FullName,
		AvatarURL:     user.AvatarURL,
		CoverImageURL: user.CoverImageURL,
		CreatedAt:     user.CreatedAt,
		UpdatedAt:     user.UpdatedAt,
	}
}

func (h UserHandler) now() time.Time {
	if h.NowFunc != nil {
		return h.NowFunc().UTC()
	}
	return time.Now().UTC()
}

// Register handles POST /api/v1/users/register. The avatar upload happens
// before the insert so a stored user always has a reachable avatar URL.
func (h UserHandler) Register(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := logging.FromContext(ctx)

	if !allowRequest(h.Limiter, r, "register") {
		fail(ctx, w, http.StatusTooManyRequests, "too many requests, slow down")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.MaxUploadBytes)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		logger.Warn("invalid register form", "error", err)
		fail(ctx, w, http.StatusBadRequest, "invalid multipart form")
		return
	}

	fullName := strings.TrimSpace(r.FormValue("fullName"))
	email := strings.ToLower(strings.TrimSpace(r.FormValue("email")))
	username := strings.ToLower(strings.TrimSpace(r.FormValue("username")))
	password := r.FormValue("password")

	if fullName == "" || email == "" || username == "" || strings.TrimSpace(password) == "" {
		fail(ctx, w, http.StatusBadRequest, "all fields are required")
		return
	}
	if _, err := mail.ParseAddress(email); err != nil {
		fail(ctx, w, http.StatusBadRequest, "invalid email address")
		return
	}

	avatar, err := saveTempFile(r, "avatar", h.TempDir)
	if err != nil {
		fail(ctx, w, http.StatusBadRequest, "avatar file is required")
		return
	}
	defer removeTemp(r, avatar.Path)

	if !avatar.isImage() {
		fail(ctx, w, http.StatusBadRequest, "avatar must be a jpeg or png image")
		return
	}

	var coverUpload tempUpload
	hasCover := false
	if cover, err := saveTempFile(r, "coverImage", h.TempDir); err == nil {
		coverUpload = cover
		hasCover = true
		defer removeTemp(r, cover.Path)
		if !cover.isImage() {
			fail(ctx, w, http.StatusBadRequest, "cover image must be a jpeg or png image")
			return
		}
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		failFromError(ctx, w, err, "", "")
		return
	}

	avatarURL, err := storeUpload(r, h.Storage, avatar)
	if err != nil {
		logger.Error("upload avatar", "error", err)
		fail(ctx, w, http.StatusInternalServerError, "failed to store avatar")
		return
	}

	coverURL := ""
	if hasCover {
		coverURL, err = storeUpload(r, h.Storage, coverUpload)
		if err != nil {
			logger.Error("upload cover image", "error", err)
			fail(ctx, w, http.StatusInternalServerError, "failed to store cover image")
			return
		}
	}

	now := h.now()
	user := models.User{
		ID:            uuid.NewString(),
		Username:      username,
		Email:         email,
		FullName:      fullName,
		AvatarURL:     avatarURL,
		CoverImageURL: coverURL,
		Password:      string(hash),
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	if err := h.Users.Create(ctx, user); err != nil {
		if errors.Is(err, repositories.ErrConflict) {
			// The uploaded blobs are orphaned here; log and accept the leak.
			logger.Warn("registration conflict leaves orphaned uploads", "avatar", avatarURL, "coverImage", coverURL)
		}
		failFromError(ctx, w, err, "user does not exist", "user with email or username already exists")
		return
	}

	respond(ctx, w, http.StatusCreated, newUserResponse(user), "user registered successfully")
}

type loginRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type sessionResponse struct {
	User         userResponse `json:"user"`
	AccessToken  string       `json:"accessToken"`
	RefreshToken string       `json:"refreshToken"`
}

// Login handles POST /api/v1/users/login.
func (h UserHandler) Login(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := logging.FromContext(ctx)

	if !allowRequest(h.Limiter, r, "login") {
		fail(ctx, w, http.StatusTooManyRequests, "too many requests, slow down")
		return
	}

	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		fail(ctx, w, http.StatusBadRequest, "invalid request body")
		return
	}

	req.Username = strings.ToLower(strings.TrimSpace(req.Username))
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	if (req.Username == "" && req.Email == "") || req.Password == "" {
		fail(ctx, w, http.StatusBadRequest, "username or email and password are required")
		return
	}

	var (
		user models.User
		err  error
	)
	if req.Username != "" {
		user, err = h.Users.FindByUsername(ctx, req.Username)
	} else {
		user, err = h.Users.FindByEmail(ctx, req.Email)
	}
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			fail(ctx, w, http.StatusNotFound, "user does not exist")
			return
		}
		failFromError(ctx, w, err, "user does not exist", "")
		return
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(req.Password)); err != nil {
		logger.Warn("login password mismatch", "userId", user.ID)
		fail(ctx, w, http.StatusUnauthorized, "invalid user credentials")
		return
	}

	accessToken, refreshToken, err := h.issueSession(r, w, user)
	if err != nil {
		failFromError(ctx, w, err, "user does not exist", "")
		return
	}

	data := sessionResponse{
		User:         newUserResponse(user),
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
	}
	respond(ctx, w, http.StatusOK, data, "user logged in successfully")
}

func (h UserHandler) issueSession(r *http.Request, w http.ResponseWriter, user models.User) (string, string, error) {
	accessToken, err := h.Issuer.IssueAccessToken(user)
	if err != nil {
		return "", "", err
	}
	refreshToken, err := h.Issuer.IssueRefreshToken(user.ID)
	if err != nil {
		return "", "", err
	}
	if err := h.Users.SetRefreshToken(r.Context(), user.ID, refreshToken); err != nil {
		return "", "", err
	}
	setAuthCookies(w, accessToken, refreshToken)
	return accessToken, refreshToken, nil
}

// Logout handles POST /api/v1/users/logout.
func (h UserHandler) Logout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	claims, ok := requireUser(w, r, h.Issuer)
	if !ok {
		return
	}

	if err := h.Users.SetRefreshToken(ctx, claims.UserID(), ""); err != nil && !errors.Is(err, repositories.ErrNotFound) {
		failFromError(ctx, w, err, "user does not exist", "")
		return
	}

	clearAuthCookies(w)
	respond(ctx, w, http.StatusOK, struct{}{}, "user logged out")
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

type tokenPairResponse struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

// Refresh handles POST /api/v1/users/refresh-token. The stored token is
// rotated with a conditional update so a stale token can never mint a new
// session, no matter how requests interleave.
func (h UserHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := logging.FromContext(ctx)

	incoming := ""
	if cookie, err := r.Cookie(refreshTokenCookie); err == nil {
		incoming = strings.TrimSpace(cookie.Value)
	}
	if incoming == "" && r.Body != nil {
		var req refreshRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err == nil {
			incoming = strings.TrimSpace(req.RefreshToken)
		}
	}
	if incoming == "" {
		fail(ctx, w, http.StatusUnauthorized, "unauthorized request")
		return
	}

	claims, err := h.Issuer.VerifyRefresh(incoming)
	if err != nil {
		logger.Warn("refresh token rejected", "error", err)
		fail(ctx, w, http.StatusUnauthorized, "invalid refresh token")
		return
	}

	user, err := h.Users.FindByID(ctx, claims.UserID())
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			fail(ctx, w, http.StatusUnauthorized, "invalid refresh token")
			return
		}
		failFromError(ctx, w, err, "user does not exist", "")
		return
	}

	accessToken, err := h.Issuer.IssueAccessToken(user)
	if err != nil {
		failFromError(ctx, w, err, "", "")
		return
	}
	refreshToken, err := h.Issuer.IssueRefreshToken(user.ID)
	if err != nil {
		failFromError(ctx, w, err, "", "")
		return
	}

	if err := h.Users.RotateRefreshToken(ctx, user.ID, incoming, refreshToken); err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			fail(ctx, w, http.StatusUnauthorized, "refresh token is expired or already used")
			return
		}
		failFromError(ctx, w, err, "", "")
		return
	}

	setAuthCookies(w, accessToken, refreshToken)
	respond(ctx, w, http.StatusOK, tokenPairResponse{AccessToken: accessToken, RefreshToken: refreshToken}, "access token refreshed")
}

type changePasswordRequest struct {
	OldPassword string `json:"oldPassword"`
	NewPassword string `json:"newPassword"`
}

// ChangePassword handles POST /api/v1/users/change-password.
func (h UserHandler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	claims, ok := requireUser(w, r, h.Issuer)
	if !ok {
		return
	}

	var req changePasswordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		fail(ctx, w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.OldPassword) == "" || strings.TrimSpace(req.NewPassword) == "" {
		fail(ctx, w, http.StatusBadRequest, "old and new password are required")
		return
	}

	user, err := h.Users.FindByID(ctx, claims.UserID())
	if err != nil {
		failFromError(ctx, w, err, "user does not exist", "")
		return
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(req.OldPassword)); err != nil {
		fail(ctx, w, http.StatusBadRequest, "invalid old password")
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.NewPassword), bcrypt.DefaultCost)
	if err != nil {
		failFromError(ctx, w, err, "", "")
		return
	}

	if err := h.Users.UpdatePassword(ctx, user.ID, string(hash)); err != nil {
		failFromError(ctx, w, err, "user does not exist", "")
		return
	}

	respond(ctx, w, http.StatusOK, struct{}{}, "password changed successfully")
}

// CurrentUser handles GET /api/v1/users/current-user.
func (h UserHandler) CurrentUser(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	claims, ok := requireUser(w, r, h.Issuer)
	if !ok {
		return
	}

	user, err := h.Users.FindByID(ctx, claims.UserID())
	if err != nil {
		failFromError(ctx, w, err, "user does not exist", "")
		return
	}

	respond(ctx, w, http.StatusOK, newUserResponse(user), "current user fetched successfully")
}

type updateAccountRequest struct {
	FullName string `json:"fullName"`
	Email    string `json:"email"`
}

// UpdateAccount handles PATCH /api/v1/users/update-account.
func (h UserHandler) UpdateAccount(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	claims, ok := requireUser(w, r, h.Issuer)
	if !ok {
		return
	}

	var req updateAccountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		fail(ctx, w, http.StatusBadRequest, "invalid request body")
		return
	}

	fullName := strings.TrimSpace(req.FullName)
	email := strings.ToLower(strings.TrimSpace(req.Email))
	if fullName == "" || email == "" {
		fail(ctx, w, http.StatusBadRequest, "full name and email are required")
		return
	}
	if _, err := mail.ParseAddress(email); err != nil {
		fail(ctx, w, http.StatusBadRequest, "invalid email address")
		return
	}

	user, err := h.Users.UpdateProfile(ctx, claims.UserID(), fullName, email)
	if err != nil {
		failFromError(ctx, w, err, "user does not exist", "email already in use")
		return
	}

	respond(ctx, w, http.StatusOK, newUserResponse(user), "account details updated successfully")
}

// UpdateAvatar handles POST /api/v1/users/update-avatar. The previous blob is
// reaped in the background once the new URL is persisted.
func (h UserHandler) UpdateAvatar(w http.ResponseWriter, r *http.Request) {
	h.updateImage(w, r, "avatar",
		func(u models.User) string { return u.AvatarURL },
		h.Users.UpdateAvatar,
	)
}

// UpdateCoverImage handles POST /api/v1/users/update-cover-image.
func (h UserHandler) UpdateCoverImage(w http.ResponseWriter, r *http.Request) {
	h.updateImage(w, r, "coverImage",
		func(u models.User) string { return u.CoverImageURL },
		h.Users.UpdateCoverImage,
	)
}

func (h UserHandler) updateImage(
	w http.ResponseWriter,
	r *http.Request,
	field string,
	currentURL func(models.User) string,
	persist func(ctx context.Context, id, url string) (models.User, error),
) {
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

	upload, err := saveTempFile(r, field, h.TempDir)
	if err != nil {
		fail(ctx, w, http.StatusBadRequest, field+" file is required")
		return
	}
	defer removeTemp(r, upload.Path)

	if !upload.isImage() {
		fail(ctx, w, http.StatusBadRequest, field+" must be a jpeg or png image")
		return
	}

	user, err := h.Users.FindByID(ctx, claims.UserID())
	if err != nil {
		failFromError(ctx, w, err, "user does not exist", "")
		return
	}
	previous := currentURL(user)

	location, err := storeUpload(r, h.Storage, upload)
	if err != nil {
		logger.Error("upload "+field, "error", err)
		fail(ctx, w, http.StatusInternalServerError, "failed to store "+field)
		return
	}

	updated, err := persist(ctx, user.ID, location)
	if err != nil {
		failFromError(ctx, w, err, "user does not exist", "")
		return
	}

	if previous != "" && h.Cleaner != nil {
		if err := h.Cleaner.Enqueue(ctx, previous); err != nil {
			logger.Warn("enqueue old blob for deletion", "location", previous, "error", err)
		}
	}

	respond(ctx, w, http.StatusOK, newUserResponse(updated), field+" updated successfully")
}

type channelProfileResponse struct {
	ID                        string `json:"id"`
	Username                  string `json:"username"`
	Email                     string `json:"email"`
	FullName                  string `json:"fullName"`
	AvatarURL                 string `json:"avatar"`
	CoverImageURL             string `json:"coverImage"`
	SubscribersCount          int64  `json:"subscribersCount"`
	ChannelsSubscribedToCount int64  `json:"channelsSubscribedToCount"`
	IsSubscribed              bool   `json:"isSubscribed"`
}

// ChannelProfile handles GET /api/v1/users/c/{username}. Authentication is
// optional; anonymous viewers see isSubscribed=false.
func (h UserHandler) ChannelProfile(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	username := strings.ToLower(strings.TrimSpace(r.PathValue("username")))
	if username == "" {
		fail(ctx, w, http.StatusBadRequest, "username is required")
		return
	}

	profile, err := h.Users.ChannelProfile(ctx, username, viewerID(r, h.Issuer))
	if err != nil {
		failFromError(ctx, w, err, "channel does not exist", "")
		return
	}

	data := channelProfileResponse{
		ID:                        profile.ID,
		Username:                  profile.Username,
		Email:                     profile.Email,
		FullName:                  profile.FullName,
		AvatarURL:                 profile.AvatarURL,
		CoverImageURL:             profile.CoverImageURL,
		SubscribersCount:          profile.SubscribersCount,
		ChannelsSubscribedToCount: profile.ChannelsSubscribedToCount,
		IsSubscribed:              profile.IsSubscribed,
	}
	respond(ctx, w, http.StatusOK, data, "channel profile fetched successfully")
}

type watchHistoryItem struct {
	ID           string             `json:"id"`
	VideoURL     string             `json:"videoFile"`
	ThumbnailURL string             `json:"thumbnail"`
	Title        string             `json:"title"`
	Description  string             `json:"description"`
	Duration     float64            `json:"duration"`
	Views        int64              `json:"views"`
	CreatedAt    time.Time          `json:"createdAt"`
	Owner        videoOwnerResponse `json:"owner"`
}

// WatchHistory handles GET /api/v1/users/history, most recent first.
func (h UserHandler) WatchHistory(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	claims, ok := requireUser(w, r, h.Issuer)
	if !ok {
		return
	}

	ctx, span := logging.StartSpan(ctx, "users.watch_history")
	defer span.End()

	entries, err := h.Users.WatchHistory(ctx, claims.UserID())
	if err != nil {
		failFromError(ctx, w, err, "user does not exist", "")
		return
	}

	items := make([]watchHistoryItem, 0, len(entries))
	for _, entry := range entries {
		items = append(items, watchHistoryItem{
			ID:           entry.ID,
			VideoURL:     entry.VideoURL,
			ThumbnailURL: entry.ThumbnailURL,
			Title:        entry.Title,
			Description:  entry.Description,
			Duration:     entry.Duration,
			Views:        entry.Views,
			CreatedAt:    entry.CreatedAt,
			Owner:        newVideoOwnerResponse(entry.Owner),
		})
	}

	respond(ctx, w, http.StatusOK, items, "watch history fetched successfully")
}
