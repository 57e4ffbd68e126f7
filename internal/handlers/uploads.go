package handlers

import (
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/clipstream/backend/internal/logging"
)

var imageContentTypes = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
}

var videoContentTypes = map[string]string{
	"video/mp4":       ".mp4",
	"video/webm":      ".webm",
	"video/quicktime": ".mov",
}

// tempUpload is a multipart file spooled to local disk, ready for content
// inspection and object-store upload.
type tempUpload struct {
	Path        string
	ContentType string
	Ext         string
	Size        int64
}

// saveTempFile spools the named multipart field to tempDir. The content type
// is sniffed from the file bytes rather than trusted from the client part
// header. Callers must remove the file on every path.
func saveTempFile(r *http.Request, field, tempDir string) (tempUpload, error) {
	file, header, err := r.FormFile(field)
	if err != nil {
		return tempUpload{}, fmt.Errorf("read form file %s: %w", field, err)
	}
	defer file.Close()

	sniff := make([]byte, 512)
	n, err := io.ReadFull(file, sniff)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return tempUpload{}, fmt.Errorf("sniff %s: %w", field, err)
	}
	contentType := http.DetectContentType(sniff[:n])
	if i := strings.Index(contentType, ";"); i >= 0 {
		contentType = strings.TrimSpace(contentType[:i])
	}
	if _, err := file.Seek(0, io.SeekStart); err != nil {
		return tempUpload{}, fmt.Errorf("rewind %s: %w", field, err)
	}

	tmp, err := os.CreateTemp(tempDir, "upload-*"+filepath.Ext(header.Filename))
	if err != nil {
		return tempUpload{}, fmt.Errorf("create temp file: %w", err)
	}

	size, err := io.Copy(tmp, file)
	closeErr := tmp.Close()
	if err == nil {
		err = closeErr
	}
	if err != nil {
		_ = os.Remove(tmp.Name())
		return tempUpload{}, fmt.Errorf("spool %s: %w", field, err)
	}

	return tempUpload{
		Path:        tmp.Name(),
		ContentType: contentType,
		Ext:         uploadExt(header, contentType),
		Size:        size,
	}, nil
}

func uploadExt(header *multipart.FileHeader, contentType string) string {
	if ext := strings.ToLower(filepath.Ext(header.Filename)); ext != "" {
		return ext
	}
	if ext, ok := imageContentTypes[contentType]; ok {
		return ext
	}
	if ext, ok := videoContentTypes[contentType]; ok {
		return ext
	}
	return ""
}

func (u tempUpload) isImage() bool {
	_, ok := imageContentTypes[u.ContentType]
	return ok
}

func (u tempUpload) isVideo() bool {
	// quicktime files sniff as video/quicktime only with a leading ftyp box;
	// fall back to the mp4 family detection for the rest.
	_, ok := videoContentTypes[u.ContentType]
	return ok
}

// storeUpload streams the spooled file into object storage under a fresh
// uuid-based key and returns the public location.
func storeUpload(r *http.Request, storage FileStorage, upload tempUpload) (string, error) {
	file, err := os.Open(upload.Path)
	if err != nil {
		return "", fmt.Errorf("open temp upload: %w", err)
	}
	defer file.Close()

	key := uuid.NewString() + upload.Ext
	return storage.Save(r.Context(), key, file, upload.ContentType)
}

// removeTemp deletes a spooled upload, logging rather than failing when the
// file is already gone.
func removeTemp(r *http.Request, path string) {
	if path == "" {
		return
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		logging.FromContext(r.Context()).Warn("remove temp upload", "path", path, "error", err)
	}
}
