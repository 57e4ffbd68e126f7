package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/clipstream/backend/internal/auth"
	"github.com/clipstream/backend/internal/models"
	"github.com/clipstream/backend/internal/repositories"
)

// memStore is an in-memory implementation of every store interface, mirroring
// the semantics of the Postgres repositories.
type memStore struct {
	mu      sync.Mutex
	users   map[string]models.User
	videos  map[string]models.Video
	tweets  map[string]models.Tweet
	subs    map[string]models.Subscription
	watches map[string]map[string]time.Time

	failWith error
}

func newMemStore() *memStore {
	return &memStore{
		users:   make(map[string]models.User),
		videos:  make(map[string]models.Video),
		tweets:  make(map[string]models.Tweet),
		subs:    make(map[string]models.Subscription),
		watches: make(map[string]map[string]time.Time),
	}
}

func (s *memStore) Create(ctx context.Context, user models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failWith != nil {
		return s.failWith
	}
	for _, existing := range s.users {
		if existing.Username == user.Username || existing.Email == user.Email {
			return repositories.ErrConflict
		}
	}
	s.users[user.ID] = user
	return nil
}

func (s *memStore) FindByID(ctx context.Context, id string) (models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	user, ok := s.users[id]
	if !ok {
		return models.User{}, repositories.ErrNotFound
	}
	return user, nil
}

func (s *memStore) FindByUsername(ctx context.Context, username string) (models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, user := range s.users {
		if user.Username == username {
			return user, nil
		}
	}
	return models.User{}, repositories.ErrNotFound
}

func (s *memStore) FindByEmail(ctx context.Context, email string) (models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, user := range s.users {
		if user.Email == email {
			return user, nil
		}
	}
	return models.User{}, repositories.ErrNotFound
}

func (s *memStore) UpdateProfile(ctx context.Context, id, fullName, email string) (models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	user, ok := s.users[id]
	if !ok {
		return models.User{}, repositories.ErrNotFound
	}
	for otherID, other := range s.users {
		if otherID != id && other.Email == email {
			return models.User{}, repositories.ErrConflict
		}
	}
	user.FullName = fullName
	user.Email = email
	user.UpdatedAt = time.Now().UTC()
	s.users[id] = user
	return user, nil
}

func (s *memStore) UpdateAvatar(ctx context.Context, id, avatarURL string) (models.User, error) {
	return s.updateUser(id, func(u *models.User) { u.AvatarURL = avatarURL })
}

func (s *memStore) UpdateCoverImage(ctx context.Context, id, coverImageURL string) (models.User, error) {
	return s.updateUser(id, func(u *models.User) { u.CoverImageURL = coverImageURL })
}

func (s *memStore) updateUser(id string, apply func(*models.User)) (models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	user, ok := s.users[id]
	if !ok {
		return models.User{}, repositories.ErrNotFound
	}
	apply(&user)
	user.UpdatedAt = time.Now().UTC()
	s.users[id] = user
	return user, nil
}

func (s *memStore) UpdatePassword(ctx context.Context, id, passwordHash string) error {
	_, err := s.updateUser(id, func(u *models.User) { u.Password = passwordHash })
	return err
}

func (s *memStore) SetRefreshToken(ctx context.Context, id, token string) error {
	_, err := s.updateUser(id, func(u *models.User) { u.RefreshToken = token })
	return err
}

func (s *memStore) RotateRefreshToken(ctx context.Context, id, current, next string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	user, ok := s.users[id]
	if !ok || user.RefreshToken != current {
		return repositories.ErrNotFound
	}
	user.RefreshToken = next
	s.users[id] = user
	return nil
}

func (s *memStore) ChannelProfile(ctx context.Context, username, viewerID string) (models.ChannelProfile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, user := range s.users {
		if user.Username != username {
			continue
		}
		profile := models.ChannelProfile{
			ID:            user.ID,
			Username:      user.Username,
			Email:         user.Email,
			FullName:      user.FullName,
			AvatarURL:     user.AvatarURL,
			CoverImageURL: user.CoverImageURL,
		}
		for _, sub := range s.subs {
			if sub.ChannelID == user.ID {
				profile.SubscribersCount++
				if sub.SubscriberID == viewerID {
					profile.IsSubscribed = true
				}
			}
			if sub.SubscriberID == user.ID {
				profile.ChannelsSubscribedToCount++
			}
		}
		return profile, nil
	}
	return models.ChannelProfile{}, repositories.ErrNotFound
}

func (s *memStore) WatchHistory(ctx context.Context, userID string) ([]models.WatchHistoryEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	type rec struct {
		videoID   string
		watchedAt time.Time
	}
	var recs []rec
	for videoID, watchedAt := range s.watches[userID] {
		recs = append(recs, rec{videoID: videoID, watchedAt: watchedAt})
	}
	sort.Slice(recs, func(i, j int) bool { return recs[i].watchedAt.After(recs[j].watchedAt) })

	entries := make([]models.WatchHistoryEntry, 0, len(recs))
	for _, r := range recs {
		video, ok := s.videos[r.videoID]
		if !ok {
			continue
		}
		owner := s.users[video.OwnerID]
		entries = append(entries, models.WatchHistoryEntry{
			Video: video,
			Owner: models.VideoOwner{Username: owner.Username, FullName: owner.FullName, AvatarURL: owner.AvatarURL},
		})
	}
	return entries, nil
}

func (s *memStore) RecordWatch(ctx context.Context, userID, videoID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.videos[videoID]; !ok {
		return repositories.ErrNotFound
	}
	if s.watches[userID] == nil {
		s.watches[userID] = make(map[string]time.Time)
	}
	s.watches[userID][videoID] = time.Now().UTC()
	return nil
}

// CreateVideo and friends implement VideoStore. The method set overlaps with
// UserStore on Create/FindByID, so videos get their own wrapper type below.

type memVideoStore struct{ *memStore }

func (s memVideoStore) Create(ctx context.Context, video models.Video) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failWith != nil {
		return s.failWith
	}
	if _, ok := s.users[video.OwnerID]; !ok {
		return repositories.ErrNotFound
	}
	s.videos[video.ID] = video
	return nil
}

func (s memVideoStore) FindByID(ctx context.Context, id string) (models.Video, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	video, ok := s.videos[id]
	if !ok {
		return models.Video{}, repositories.ErrNotFound
	}
	return video, nil
}

func (s memVideoStore) Detail(ctx context.Context, id string) (models.VideoDetail, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	video, ok := s.videos[id]
	if !ok {
		return models.VideoDetail{}, repositories.ErrNotFound
	}
	owner, ok := s.users[video.OwnerID]
	if !ok {
		return models.VideoDetail{}, repositories.ErrNotFound
	}
	detail := models.VideoDetail{
		Video: video,
		Owner: models.VideoOwner{Username: owner.Username, FullName: owner.FullName, AvatarURL: owner.AvatarURL},
	}
	for _, sub := range s.subs {
		if sub.ChannelID == owner.ID {
			detail.OwnerSubscribersCount++
		}
	}
	return detail, nil
}

func (s memVideoStore) List(ctx context.Context, params models.VideoListParams) ([]models.VideoListItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	limit := params.Limit
	if limit <= 0 {
		limit = 50
	}
	if limit > 100 {
		limit = 100
	}

	var all []models.Video
	for _, video := range s.videos {
		if !video.IsPublished {
			continue
		}
		owner := s.users[video.OwnerID]
		if params.OwnerUsername != "" && owner.Username != params.OwnerUsername {
			continue
		}
		all = append(all, video)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].CreatedAt.After(all[j].CreatedAt) })

	if params.Offset >= len(all) {
		return nil, nil
	}
	all = all[params.Offset:]
	if len(all) > limit {
		all = all[:limit]
	}

	items := make([]models.VideoListItem, 0, len(all))
	for _, video := range all {
		owner := s.users[video.OwnerID]
		items = append(items, models.VideoListItem{
			Video: video,
			Owner: models.VideoOwner{Username: owner.Username, FullName: owner.FullName, AvatarURL: owner.AvatarURL},
		})
	}
	return items, nil
}

func (s memVideoStore) Update(ctx context.Context, video models.Video) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.videos[video.ID]; !ok {
		return repositories.ErrNotFound
	}
	s.videos[video.ID] = video
	return nil
}

func (s memVideoStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.videos[id]; !ok {
		return repositories.ErrNotFound
	}
	delete(s.videos, id)
	return nil
}

type memTweetStore struct{ *memStore }

func (s memTweetStore) Create(ctx context.Context, tweet models.Tweet) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[tweet.OwnerID]; !ok {
		return repositories.ErrNotFound
	}
	s.tweets[tweet.ID] = tweet
	return nil
}

func (s memTweetStore) FindByID(ctx context.Context, id string) (models.Tweet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tweet, ok := s.tweets[id]
	if !ok {
		return models.Tweet{}, repositories.ErrNotFound
	}
	return tweet, nil
}

func (s memTweetStore) ListByUsername(ctx context.Context, username string) ([]models.Tweet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var ownerID string
	for _, user := range s.users {
		if user.Username == username {
			ownerID = user.ID
			break
		}
	}
	var tweets []models.Tweet
	for _, tweet := range s.tweets {
		if tweet.OwnerID == ownerID && ownerID != "" {
			tweets = append(tweets, tweet)
		}
	}
	sort.Slice(tweets, func(i, j int) bool { return tweets[i].CreatedAt.After(tweets[j].CreatedAt) })
	return tweets, nil
}

func (s memTweetStore) UpdateContent(ctx context.Context, id, content string) (models.Tweet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tweet, ok := s.tweets[id]
	if !ok {
		return models.Tweet{}, repositories.ErrNotFound
	}
	tweet.Content = content
	tweet.UpdatedAt = time.Now().UTC()
	s.tweets[id] = tweet
	return tweet, nil
}

func (s memTweetStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tweets[id]; !ok {
		return repositories.ErrNotFound
	}
	delete(s.tweets, id)
	return nil
}

type memSubscriptionStore struct{ *memStore }

func (s memSubscriptionStore) Toggle(ctx context.Context, subscriberID, channelID string) (models.ToggleResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[channelID]; !ok {
		return models.ToggleResult{}, repositories.ErrNotFound
	}
	for id, sub := range s.subs {
		if sub.SubscriberID == subscriberID && sub.ChannelID == channelID {
			delete(s.subs, id)
			return models.ToggleResult{Subscribed: false}, nil
		}
	}
	sub := models.Subscription{
		ID:           uuid.NewString(),
		SubscriberID: subscriberID,
		ChannelID:    channelID,
		CreatedAt:    time.Now().UTC(),
	}
	s.subs[sub.ID] = sub
	return models.ToggleResult{Subscribed: true, Subscription: sub}, nil
}

func (s memSubscriptionStore) Subscribers(ctx context.Context, channelID, viewerID string) ([]models.ChannelSummary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var summaries []models.ChannelSummary
	for _, sub := range s.subs {
		if sub.ChannelID != channelID {
			continue
		}
		summaries = append(summaries, s.summaryLocked(sub.SubscriberID, viewerID))
	}
	return summaries, nil
}

func (s memSubscriptionStore) SubscribedChannels(ctx context.Context, subscriberID, fullNameFilter string) ([]models.ChannelSummary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var summaries []models.ChannelSummary
	for _, sub := range s.subs {
		if sub.SubscriberID != subscriberID {
			continue
		}
		summary := s.summaryLocked(sub.ChannelID, subscriberID)
		if fullNameFilter != "" && !strings.Contains(strings.ToLower(summary.FullName), strings.ToLower(fullNameFilter)) {
			continue
		}
		summaries = append(summaries, summary)
	}
	return summaries, nil
}

func (s *memStore) summaryLocked(userID, viewerID string) models.ChannelSummary {
	user := s.users[userID]
	summary := models.ChannelSummary{
		ID:        user.ID,
		Username:  user.Username,
		FullName:  user.FullName,
		AvatarURL: user.AvatarURL,
	}
	for _, sub := range s.subs {
		if sub.ChannelID == userID {
			summary.SubscribersCount++
			if sub.SubscriberID == viewerID {
				summary.IsSubscribed = true
			}
		}
	}
	return summary
}

type fakeStorage struct {
	mu    sync.Mutex
	saves []string
	err   error
}

func (f *fakeStorage) Save(ctx context.Context, name string, r io.Reader, contentType string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	if _, err := io.Copy(io.Discard, r); err != nil {
		return "", err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.saves = append(f.saves, name)
	return "https://cdn.test/" + name, nil
}

func (f *fakeStorage) saveCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.saves)
}

type fakeProber struct {
	duration float64
	err      error
}

func (f *fakeProber) Duration(ctx context.Context, path string) (float64, error) {
	if f.err != nil {
		return 0, f.err
	}
	return f.duration, nil
}

type fakeCleaner struct {
	mu       sync.Mutex
	enqueued []string
	err      error
}

func (f *fakeCleaner) Enqueue(ctx context.Context, location string) error {
	if f.err != nil {
		return f.err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.enqueued = append(f.enqueued, location)
	return nil
}

func (f *fakeCleaner) locations() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.enqueued))
	copy(out, f.enqueued)
	return out
}

type fakeLimiter struct{ allow bool }

func (f fakeLimiter) Allow(key string) bool { return f.allow }

// testEnv wires the full route table against in-memory collaborators so
// tests exercise the same mux patterns production uses.
type testEnv struct {
	mux     *http.ServeMux
	store   *memStore
	storage *fakeStorage
	cleaner *fakeCleaner
	prober  *fakeProber
	issuer  *auth.Issuer
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	store := newMemStore()
	storage := &fakeStorage{}
	cleaner := &fakeCleaner{}
	prober := &fakeProber{duration: 12.5}
	issuer := auth.NewIssuer("test-access-secret", "test-refresh-secret", 15*time.Minute, 24*time.Hour)

	mux := http.NewServeMux()
	RegisterRoutes(mux, Dependencies{
		Users:          store,
		Videos:         memVideoStore{store},
		Tweets:         memTweetStore{store},
		Subscriptions:  memSubscriptionStore{store},
		Issuer:         issuer,
		Storage:        storage,
		Prober:         prober,
		Cleaner:        cleaner,
		Limiter:        fakeLimiter{allow: true},
		MaxUploadBytes: 64 << 20,
		TempDir:        t.TempDir(),
	})

	return &testEnv{
		mux:     mux,
		store:   store,
		storage: storage,
		cleaner: cleaner,
		prober:  prober,
		issuer:  issuer,
	}
}

func (env *testEnv) seedUser(t *testing.T, username, password string) models.User {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	now := time.Now().UTC()
	user := models.User{
		ID:        uuid.NewString(),
		Username:  username,
		Email:     username + "@example.com",
		FullName:  "User " + username,
		AvatarURL: "https://cdn.test/" + username + ".png",
		Password:  string(hash),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := env.store.Create(context.Background(), user); err != nil {
		t.Fatalf("seed user: %v", err)
	}
	return user
}

func (env *testEnv) seedVideo(t *testing.T, owner models.User, title string, published bool) models.Video {
	t.Helper()
	now := time.Now().UTC()
	video := models.Video{
		ID:           uuid.NewString(),
		OwnerID:      owner.ID,
		VideoURL:     "https://cdn.test/" + title + ".mp4",
		ThumbnailURL: "https://cdn.test/" + title + ".jpg",
		Title:        title,
		Duration:     30,
		IsPublished:  published,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := (memVideoStore{env.store}).Create(context.Background(), video); err != nil {
		t.Fatalf("seed video: %v", err)
	}
	return video
}

func (env *testEnv) accessTokenFor(t *testing.T, user models.User) string {
	t.Helper()
	token, err := env.issuer.IssueAccessToken(user)
	if err != nil {
		t.Fatalf("issue access token: %v", err)
	}
	return token
}

func (env *testEnv) do(t *testing.T, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	env.mux.ServeHTTP(rec, req)
	return rec
}

func jsonRequest(t *testing.T, method, target string, payload any) *http.Request {
	t.Helper()
	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			t.Fatalf("marshal payload: %v", err)
		}
		body = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, target, body)
	req.Header.Set("Content-Type", "application/json")
	return req
}

func authed(req *http.Request, token string) *http.Request {
	req.Header.Set("Authorization", "Bearer "+token)
	return req
}

type filePart struct {
	field   string
	name    string
	content []byte
}

func multipartRequest(t *testing.T, target string, fields map[string]string, files []filePart) *http.Request {
	t.Helper()

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	for key, value := range fields {
		if err := writer.WriteField(key, value); err != nil {
			t.Fatalf("write field %s: %v", key, err)
		}
	}
	for _, file := range files {
		part, err := writer.CreateFormFile(file.field, file.name)
		if err != nil {
			t.Fatalf("create form file %s: %v", file.field, err)
		}
		if _, err := part.Write(file.content); err != nil {
			t.Fatalf("write form file %s: %v", file.field, err)
		}
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("close multipart writer: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, target, &buf)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	return req
}

// pngBytes carries the PNG signature so content sniffing reports image/png.
func pngBytes() []byte {
	return append([]byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n'}, bytes.Repeat([]byte{0}, 64)...)
}

// mp4Bytes carries an ftyp box so content sniffing reports video/mp4.
func mp4Bytes() []byte {
	header := []byte{0x00, 0x00, 0x00, 0x18, 'f', 't', 'y', 'p', 'm', 'p', '4', '2', 0x00, 0x00, 0x00, 0x00, 'm', 'p', '4', '2', 'i', 's', 'o', 'm'}
	return append(header, bytes.Repeat([]byte{0}, 64)...)
}

func textBytes() []byte {
	return []byte("definitely not a media file")
}

type envelopeBody struct {
	StatusCode int             `json:"statusCode"`
	Data       json.RawMessage `json:"data"`
	Message    string          `json:"message"`
	Success    bool            `json:"success"`
	Errors     []string        `json:"errors"`
}

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder) envelopeBody {
	t.Helper()
	var body envelopeBody
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode envelope: %v", err)
	}
	return body
}

func decodeData(t *testing.T, rec *httptest.ResponseRecorder, out any) envelopeBody {
	t.Helper()
	body := decodeEnvelope(t, rec)
	if err := json.Unmarshal(body.Data, out); err != nil {
		t.Fatalf("decode envelope data: %v", err)
	}
	return body
}

func wantStatus(t *testing.T, rec *httptest.ResponseRecorder, status int) {
	t.Helper()
	if rec.Code != status {
		t.Fatalf("expected status %d, got %d (body %s)", status, rec.Code, rec.Body.String())
	}
}

var errBoom = errors.New("boom")
