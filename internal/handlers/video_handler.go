package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/grvbrk/vidcatalog_server/internal/catalog"
	"github.com/grvbrk/vidcatalog_server/internal/middlewares"
	"github.com/grvbrk/vidcatalog_server/internal/models"
	"github.com/grvbrk/vidcatalog_server/internal/utils"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
)

// multipart parts beyond this are spooled to disk
const multipartMemory = 32 << 20

type Catalog interface {
	List(ctx context.Context, caller *models.Identity, req catalog.PageRequest) (*catalog.Page, error)
	MyVideos(ctx context.Context, caller *models.Identity, req catalog.PageRequest) (*catalog.Page, error)
	Search(ctx context.Context, caller *models.Identity, category, key string, req catalog.PageRequest) (*catalog.Page, error)
	Upload(ctx context.Context, caller *models.Identity, in catalog.UploadInput) (*catalog.UploadResult, error)
	Get(ctx context.Context, caller *models.Identity, id string) (*models.Video, error)
	Delete(ctx context.Context, caller *models.Identity, id string) error
}

type VideoHandler struct {
	Catalog        Catalog
	Logger         *zap.Logger
	MaxUploadBytes int64
	uploadSem      *semaphore.Weighted
}

func NewVideoHandler(c Catalog, logger *zap.Logger, maxUploadBytes, maxConcurrentUploads int64) *VideoHandler {
	return &VideoHandler{
		Catalog:        c,
		Logger:         logger,
		MaxUploadBytes: maxUploadBytes,
		uploadSem:      semaphore.NewWeighted(maxConcurrentUploads),
	}
}

func (vh *VideoHandler) HandlerListVideos(w http.ResponseWriter, r *http.Request) {
	identity, ok := middlewares.GetIdentityFromContext(r)
	if !ok {
		utils.WriteError(w, http.StatusUnauthorized, "Not authenticated")
		return
	}

	req, err := pageRequest(r)
	if err != nil {
		utils.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	page, err := vh.Catalog.List(r.Context(), identity, req)
	if err != nil {
		vh.writeError(w, err)
		return
	}

	writePage(w, page)
}

func (vh *VideoHandler) HandlerMyVideos(w http.ResponseWriter, r *http.Request) {
	identity, ok := middlewares.GetIdentityFromContext(r)
	if !ok {
		utils.WriteError(w, http.StatusUnauthorized, "Not authenticated")
		return
	}

	req, err := pageRequest(r)
	if err != nil {
		utils.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	page, err := vh.Catalog.MyVideos(r.Context(), identity, req)
	if err != nil {
		vh.writeError(w, err)
		return
	}

	writePage(w, page)
}

func (vh *VideoHandler) HandlerSearchVideos(w http.ResponseWriter, r *http.Request) {
	identity, ok := middlewares.GetIdentityFromContext(r)
	if !ok {
		utils.WriteError(w, http.StatusUnauthorized, "Not authenticated")
		return
	}

	req, err := pageRequest(r)
	if err != nil {
		utils.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	category := r.URL.Query().Get("category")
	key := r.URL.Query().Get("key")

	page, err := vh.Catalog.Search(r.Context(), identity, category, key, req)
	if err != nil {
		vh.writeError(w, err)
		return
	}

	writePage(w, page)
}

func (vh *VideoHandler) HandlerUploadVideo(w http.ResponseWriter, r *http.Request) {
	identity, ok := middlewares.GetIdentityFromContext(r)
	if !ok {
		utils.WriteError(w, http.StatusUnauthorized, "Not authenticated")
		return
	}

	if err := vh.uploadSem.Acquire(r.Context(), 1); err != nil {
		utils.WriteError(w, http.StatusServiceUnavailable, "upload cancelled while waiting for a slot")
		return
	}
	defer vh.uploadSem.Release(1)

	r.Body = http.MaxBytesReader(w, r.Body, vh.MaxUploadBytes)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			utils.WriteError(w, http.StatusRequestEntityTooLarge, "upload exceeds the size limit")
			return
		}
		vh.Logger.Debug("invalid multipart body", zap.Error(err))
		utils.WriteError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("file")
	if err != nil {
		utils.WriteError(w, http.StatusBadRequest, "file is required")
		return
	}
	defer file.Close()

	result, err := vh.Catalog.Upload(r.Context(), identity, catalog.UploadInput{
		Title:       r.FormValue("title"),
		Description: r.FormValue("description"),
		Filename:    header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Size:        header.Size,
		Body:        file,
	})
	if err != nil {
		vh.writeError(w, err)
		return
	}

	utils.WriteJSON(w, http.StatusOK, utils.Envelope{
		"message":  "Video uploaded successfully!",
		"id":       result.ID,
		"filename": result.Filename,
	})
}

func (vh *VideoHandler) HandlerGetVideoByID(w http.ResponseWriter, r *http.Request) {
	identity, ok := middlewares.GetIdentityFromContext(r)
	if !ok {
		utils.WriteError(w, http.StatusUnauthorized, "Not authenticated")
		return
	}

	video, err := vh.Catalog.Get(r.Context(), identity, chi.URLParam(r, "id"))
	if err != nil {
		vh.writeError(w, err)
		return
	}

	utils.WriteJSON(w, http.StatusOK, video)
}

func (vh *VideoHandler) HandlerDeleteVideoByID(w http.ResponseWriter, r *http.Request) {
	identity, ok := middlewares.GetIdentityFromContext(r)
	if !ok {
		utils.WriteError(w, http.StatusUnauthorized, "Not authenticated")
		return
	}

	if err := vh.Catalog.Delete(r.Context(), identity, chi.URLParam(r, "id")); err != nil {
		vh.writeError(w, err)
		return
	}

	utils.WriteJSON(w, http.StatusOK, utils.Envelope{"message": "Video deleted successfully!"})
}

func (vh *VideoHandler) writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		vh.Logger.Error("catalog operation failed", zap.Error(err))
	}
	utils.WriteError(w, status, catalog.Detail(err))
}

func pageRequest(r *http.Request) (catalog.PageRequest, error) {
	req := catalog.PageRequest{Token: r.URL.Query().Get("next_token")}

	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		limit, err := strconv.Atoi(limitStr)
		if err != nil || limit < 1 {
			return req, errors.New("limit must be a positive integer")
		}
		req.Limit = limit
	}
	return req, nil
}

func writePage(w http.ResponseWriter, page *catalog.Page) {
	body := utils.Envelope{"items": page.Items}
	if page.NextToken != "" {
		body["next_token"] = page.NextToken
	}
	utils.WriteJSON(w, http.StatusOK, body)
}
