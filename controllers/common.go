package controllers

import (
	"context"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"

	config "github.com/phillip/iinsaf-marketplace-go/config"
	middleware "github.com/phillip/iinsaf-marketplace-go/middleware"
	services "github.com/phillip/iinsaf-marketplace-go/services"
)

// Handler carries the dependencies every endpoint needs.
type Handler struct {
	Cfg *config.Config
	Svc *services.Service
}

func NewHandler(cfg *config.Config, svc *services.Service) *Handler {
	return &Handler{Cfg: cfg, Svc: svc}
}

// requestCtx bounds a plain request by the configured timeout.
func (h *Handler) requestCtx(c *gin.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(c.Request.Context(), orDefault(h.Cfg.RequestTimeout, 5*time.Second))
}

// uploadCtx bounds requests that push files to the media store.
func (h *Handler) uploadCtx(c *gin.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(c.Request.Context(), orDefault(h.Cfg.UploadTimeout, 60*time.Second))
}

// externalCtx bounds requests that call the gateway or view counter.
func (h *Handler) externalCtx(c *gin.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(c.Request.Context(), orDefault(h.Cfg.ExternalTimeout, 15*time.Second))
}

func orDefault(d, fallback time.Duration) time.Duration {
	if d <= 0 {
		return fallback
	}
	return d
}

func actor(c *gin.Context) (services.Actor, bool) {
	a, ok := middleware.ActorFrom(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid user id"})
	}
	return a, ok
}

func objectIDParam(c *gin.Context, name string) (primitive.ObjectID, bool) {
	id, err := primitive.ObjectIDFromHex(c.Param(name))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("invalid %s", name)})
		return primitive.NilObjectID, false
	}
	return id, true
}

// respondError maps service error categories onto HTTP statuses.
func respondError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, services.ErrValidation):
		status = http.StatusBadRequest
	case errors.Is(err, services.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, services.ErrForbidden):
		status = http.StatusForbidden
	case errors.Is(err, services.ErrConflict):
		status = http.StatusConflict
	case errors.Is(err, services.ErrExternal):
		status = http.StatusBadGateway
	case errors.Is(err, context.DeadlineExceeded):
		status = http.StatusGatewayTimeout
	}
	_ = c.Error(err)

	if status >= http.StatusInternalServerError && status != http.StatusBadGateway {
		zap.L().Error("Request failed",
			zap.String("path", c.FullPath()),
			zap.String("request_id", c.GetString(middleware.KeyRequestID)),
			zap.Error(err))
		c.JSON(status, gin.H{"error": "internal error"})
		return
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

// parseDate accepts RFC3339 and a few plain layouts.
func parseDate(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, nil
	}
	// Try fallback formats
	layouts := []string{"2006-01-02", "2006-01-02 15:04", "2006-01-02 15:04:05"}
	for _, layout := range layouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid date %q, use RFC3339 or YYYY-MM-DD", raw)
}

// openUpload opens one multipart file. The caller closes the returned file.
func openUpload(fh *multipart.FileHeader) (services.Upload, multipart.File, error) {
	file, err := fh.Open()
	if err != nil {
		return services.Upload{}, nil, err
	}
	return services.Upload{File: file, Filename: fh.Filename}, file, nil
}

// formUploads opens every file posted under field. closeAll must be called
// once the service returns.
func formUploads(c *gin.Context, field string) (uploads []services.Upload, closeAll func(), err error) {
	var opened []multipart.File
	closeAll = func() {
		for _, f := range opened {
			f.Close()
		}
	}

	form, err := c.MultipartForm()
	if err != nil {
		if errors.Is(err, http.ErrNotMultipart) {
			return nil, closeAll, nil
		}
		return nil, closeAll, err
	}
	for _, fh := range form.File[field] {
		u, f, err := openUpload(fh)
		if err != nil {
			closeAll()
			return nil, func() {}, fmt.Errorf("failed to open file %s", fh.Filename)
		}
		opened = append(opened, f)
		uploads = append(uploads, u)
	}
	return uploads, closeAll, nil
}

// formUpload opens the single file posted under field, or returns nil.
func formUpload(c *gin.Context, field string) (*services.Upload, func(), error) {
	uploads, closeAll, err := formUploads(c, field)
	if err != nil || len(uploads) == 0 {
		return nil, closeAll, err
	}
	return &uploads[0], closeAll, nil
}
