package handlers

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/clipstream/backend/internal/media"
	"github.com/clipstream/backend/internal/models"
)

func TestPublishVideo(t *testing.T) {
	env := newTestEnv(t)
	user := env.seedUser(t, "ada", "pw")

	req := multipartRequest(t, "/api/v1/videos", map[string]string{
		"title":       "My launch video",
		"description": "first upload",
	}, []filePart{
		{field: "videoFile", name: "launch.mp4", content: mp4Bytes()},
		{field: "thumbnail", name: "thumb.png", content: pngBytes()},
	})
	rec := env.do(t, authed(req, env.accessTokenFor(t, user)))
	wantStatus(t, rec, http.StatusCreated)

	var data videoResponse
	decodeData(t, rec, &data)
	if data.Title != "My launch video" || data.OwnerID != user.ID {
		t.Fatalf("unexpected video: %+v", data)
	}
	if data.Duration != 12.5 {
		t.Fatalf("expected probed duration 12.5, got %v", data.Duration)
	}
	if data.VideoURL == "" || data.ThumbnailURL == "" {
		t.Fatalf("expected stored media URLs, got %+v", data)
	}
	if !data.IsPublished {
		t.Fatal("published videos default to visible")
	}
	if env.storage.saveCount() != 2 {
		t.Fatalf("expected 2 uploads, got %d", env.storage.saveCount())
	}
}

func TestPublishVideoValidation(t *testing.T) {
	env := newTestEnv(t)
	user := env.seedUser(t, "ada", "pw")
	token := env.accessTokenFor(t, user)

	// Missing title.
	req := multipartRequest(t, "/api/v1/videos", nil, []filePart{
		{field: "videoFile", name: "v.mp4", content: mp4Bytes()},
		{field: "thumbnail", name: "t.png", content: pngBytes()},
	})
	wantStatus(t, env.do(t, authed(req, token)), http.StatusBadRequest)

	// Missing video file.
	req = multipartRequest(t, "/api/v1/videos", map[string]string{"title": "x"}, []filePart{
		{field: "thumbnail", name: "t.png", content: pngBytes()},
	})
	wantStatus(t, env.do(t, authed(req, token)), http.StatusBadRequest)

	// Wrong video content type.
	req = multipartRequest(t, "/api/v1/videos", map[string]string{"title": "x"}, []filePart{
		{field: "videoFile", name: "v.mp4", content: textBytes()},
		{field: "thumbnail", name: "t.png", content: pngBytes()},
	})
	wantStatus(t, env.do(t, authed(req, token)), http.StatusBadRequest)

	// Unauthenticated.
	req = multipartRequest(t, "/api/v1/videos", map[string]string{"title": "x"}, []filePart{
		{field: "videoFile", name: "v.mp4", content: mp4Bytes()},
		{field: "thumbnail", name: "t.png", content: pngBytes()},
	})
	wantStatus(t, env.do(t, req), http.StatusUnauthorized)
}

func TestPublishVideoProbeFailureAbortsBeforeUpload(t *testing.T) {
	env := newTestEnv(t)
	user := env.seedUser(t, "ada", "pw")
	env.prober.err = fmt.Errorf("%w: no readable stream", media.ErrProbeFailed)

	req := multipartRequest(t, "/api/v1/videos", map[string]string{"title": "x"}, []filePart{
		{field: "videoFile", name: "v.mp4", content: mp4Bytes()},
		{field: "thumbnail", name: "t.png", content: pngBytes()},
	})
	rec := env.do(t, authed(req, env.accessTokenFor(t, user)))
	wantStatus(t, rec, http.StatusBadRequest)

	if env.storage.saveCount() != 0 {
		t.Fatalf("nothing may be uploaded when the probe fails, got %d uploads", env.storage.saveCount())
	}
}

func TestPublishVideoCleansTempFiles(t *testing.T) {
	env := newTestEnv(t)
	user := env.seedUser(t, "ada", "pw")
	tempDir := t.TempDir()

	mux := http.NewServeMux()
	RegisterRoutes(mux, Dependencies{
		Users:          env.store,
		Videos:         memVideoStore{env.store},
		Tweets:         memTweetStore{env.store},
		Subscriptions:  memSubscriptionStore{env.store},
		Issuer:         env.issuer,
		Storage:        env.storage,
		Prober:         env.prober,
		Cleaner:        env.cleaner,
		Limiter:        fakeLimiter{allow: true},
		MaxUploadBytes: 64 << 20,
		TempDir:        tempDir,
	})

	req := authed(multipartRequest(t, "/api/v1/videos", map[string]string{"title": "x"}, []filePart{
		{field: "videoFile", name: "v.mp4", content: mp4Bytes()},
		{field: "thumbnail", name: "t.png", content: pngBytes()},
	}), env.accessTokenFor(t, user))

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	wantStatus(t, rec, http.StatusCreated)

	entries, err := os.ReadDir(tempDir)
	if err != nil {
		t.Fatalf("read temp dir: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("temp files must be removed after publish, found %d entries", len(entries))
	}

	// Failure paths clean up too: break the prober and publish again.
	env.prober.err = fmt.Errorf("%w: broken", media.ErrProbeFailed)
	req = authed(multipartRequest(t, "/api/v1/videos", map[string]string{"title": "x"}, []filePart{
		{field: "videoFile", name: "v.mp4", content: mp4Bytes()},
		{field: "thumbnail", name: "t.png", content: pngBytes()},
	}), env.accessTokenFor(t, user))
	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	wantStatus(t, rec, http.StatusBadRequest)

	entries, err = os.ReadDir(tempDir)
	if err != nil {
		t.Fatalf("read temp dir: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("temp files must be removed after a failed publish, found %d entries", len(entries))
	}
}

func TestVideoListingFiltersAndPages(t *testing.T) {
	env := newTestEnv(t)
	ada := env.seedUser(t, "ada", "pw")
	bob := env.seedUser(t, "bob", "pw")

	// Stagger creation times so ordering is deterministic.
	for i := 0; i < 3; i++ {
		video := env.seedVideo(t, ada, fmt.Sprintf("ada-%d", i), true)
		video.CreatedAt = time.Now().UTC().Add(-time.Duration(i) * time.Hour)
		env.store.videos[video.ID] = video
	}
	env.seedVideo(t, bob, "bob-video", true)
	env.seedVideo(t, ada, "draft", false)

	rec := env.do(t, jsonRequest(t, http.MethodGet, "/api/v1/videos", nil))
	wantStatus(t, rec, http.StatusOK)

	var items []videoListItemResponse
	decodeData(t, rec, &items)
	if len(items) != 4 {
		t.Fatalf("expected 4 published videos, got %d", len(items))
	}
	for _, item := range items {
		if item.Owner.Username == "" {
			t.Fatalf("expected owner enrichment, got %+v", item)
		}
		if item.Title == "draft" {
			t.Fatal("unpublished videos must not be listed")
		}
	}

	rec = env.do(t, jsonRequest(t, http.MethodGet, "/api/v1/videos?username=ada", nil))
	wantStatus(t, rec, http.StatusOK)
	decodeData(t, rec, &items)
	if len(items) != 3 {
		t.Fatalf("expected 3 videos for ada, got %d", len(items))
	}

	rec = env.do(t, jsonRequest(t, http.MethodGet, "/api/v1/videos?username=ada&limit=2&offset=1", nil))
	wantStatus(t, rec, http.StatusOK)
	decodeData(t, rec, &items)
	if len(items) != 2 {
		t.Fatalf("expected a 2-item page, got %d", len(items))
	}

	rec = env.do(t, jsonRequest(t, http.MethodGet, "/api/v1/videos?limit=-1", nil))
	wantStatus(t, rec, http.StatusBadRequest)
}

func TestVideoListingCapsPageSize(t *testing.T) {
	env := newTestEnv(t)
	ada := env.seedUser(t, "ada", "pw")

	for i := 0; i < 105; i++ {
		env.seedVideo(t, ada, fmt.Sprintf("v-%03d", i), true)
	}

	rec := env.do(t, jsonRequest(t, http.MethodGet, "/api/v1/videos?limit=500", nil))
	wantStatus(t, rec, http.StatusOK)

	var items []videoListItemResponse
	decodeData(t, rec, &items)
	if len(items) != 100 {
		t.Fatalf("expected the page size to cap at 100, got %d", len(items))
	}
}

func TestVideoDetailRecordsWatchForViewers(t *testing.T) {
	env := newTestEnv(t)
	ada := env.seedUser(t, "ada", "pw")
	bob := env.seedUser(t, "bob", "pw")
	video := env.seedVideo(t, bob, "watched", true)

	if _, err := (memSubscriptionStore{env.store}).Toggle(context.Background(), ada.ID, bob.ID); err != nil {
		t.Fatalf("toggle: %v", err)
	}

	rec := env.do(t, authed(jsonRequest(t, http.MethodGet, "/api/v1/videos/"+video.ID, nil), env.accessTokenFor(t, ada)))
	wantStatus(t, rec, http.StatusOK)

	var data videoDetailResponse
	decodeData(t, rec, &data)
	if data.Owner.Username != "bob" || data.OwnerSubscribersCount != 1 {
		t.Fatalf("unexpected detail enrichment: %+v", data)
	}

	history, err := env.store.WatchHistory(context.Background(), ada.ID)
	if err != nil {
		t.Fatalf("watch history: %v", err)
	}
	if len(history) != 1 || history[0].ID != video.ID {
		t.Fatalf("expected the fetch recorded in watch history, got %+v", history)
	}

	// Anonymous fetches leave no trace.
	rec = env.do(t, jsonRequest(t, http.MethodGet, "/api/v1/videos/"+video.ID, nil))
	wantStatus(t, rec, http.StatusOK)
	history, _ = env.store.WatchHistory(context.Background(), ada.ID)
	if len(history) != 1 {
		t.Fatalf("anonymous fetch must not add history, got %d entries", len(history))
	}

	rec = env.do(t, jsonRequest(t, http.MethodGet, "/api/v1/videos/"+uuid.NewString(), nil))
	wantStatus(t, rec, http.StatusNotFound)
}

func TestUpdateVideoOwnerOnly(t *testing.T) {
	env := newTestEnv(t)
	ada := env.seedUser(t, "ada", "pw")
	bob := env.seedUser(t, "bob", "pw")
	video := env.seedVideo(t, ada, "original", true)

	rec := env.do(t, authed(jsonRequest(t, http.MethodPatch, "/api/v1/videos/"+video.ID, map[string]any{
		"title": "hijacked",
	}), env.accessTokenFor(t, bob)))
	wantStatus(t, rec, http.StatusUnauthorized)

	rec = env.do(t, authed(jsonRequest(t, http.MethodPatch, "/api/v1/videos/"+video.ID, map[string]any{
		"title":       "renamed",
		"isPublished": false,
	}), env.accessTokenFor(t, ada)))
	wantStatus(t, rec, http.StatusOK)

	var data videoResponse
	decodeData(t, rec, &data)
	if data.Title != "renamed" || data.IsPublished {
		t.Fatalf("unexpected updated video: %+v", data)
	}

	stored := env.store.videos[video.ID]
	if stored.Title != "renamed" || stored.IsPublished {
		t.Fatalf("update must persist, got %+v", stored)
	}

	rec = env.do(t, authed(jsonRequest(t, http.MethodPatch, "/api/v1/videos/"+video.ID, map[string]any{}), env.accessTokenFor(t, ada)))
	wantStatus(t, rec, http.StatusBadRequest)
}

func TestDeleteVideoReapsBlobs(t *testing.T) {
	env := newTestEnv(t)
	ada := env.seedUser(t, "ada", "pw")
	bob := env.seedUser(t, "bob", "pw")
	video := env.seedVideo(t, ada, "doomed", true)

	rec := env.do(t, authed(jsonRequest(t, http.MethodDelete, "/api/v1/videos/"+video.ID, nil), env.accessTokenFor(t, bob)))
	wantStatus(t, rec, http.StatusUnauthorized)

	rec = env.do(t, authed(jsonRequest(t, http.MethodDelete, "/api/v1/videos/"+video.ID, nil), env.accessTokenFor(t, ada)))
	wantStatus(t, rec, http.StatusOK)

	if _, ok := env.store.videos[video.ID]; ok {
		t.Fatal("video row must be deleted")
	}

	locations := env.cleaner.locations()
	if len(locations) != 2 {
		t.Fatalf("expected both blobs enqueued for deletion, got %v", locations)
	}

	rec = env.do(t, authed(jsonRequest(t, http.MethodDelete, "/api/v1/videos/"+video.ID, nil), env.accessTokenFor(t, ada)))
	wantStatus(t, rec, http.StatusNotFound)
}

func TestVideoListItemShape(t *testing.T) {
	env := newTestEnv(t)
	ada := env.seedUser(t, "ada", "pw")
	env.seedVideo(t, ada, "only", true)

	rec := env.do(t, jsonRequest(t, http.MethodGet, "/api/v1/videos?username=ada", nil))
	wantStatus(t, rec, http.StatusOK)

	var items []videoListItemResponse
	decodeData(t, rec, &items)
	if len(items) != 1 {
		t.Fatalf("expected one item, got %d", len(items))
	}
	item := items[0]
	if item.Owner.FullName != "User ada" || item.Owner.AvatarURL == "" {
		t.Fatalf("owner projection incomplete: %+v", item.Owner)
	}

	var listed []models.VideoListItem
	listed, err := (memVideoStore{env.store}).List(context.Background(), models.VideoListParams{OwnerUsername: "ada"})
	if err != nil || len(listed) != 1 {
		t.Fatalf("store listing mismatch: %v %v", listed, err)
	}
}
