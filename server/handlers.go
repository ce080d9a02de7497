package server

import (
	"errors"
	"mime"
	"net/http"
	"path"
	"strconv"

	"github.com/gin-gonic/gin"

	logstorage "github.com/syedhassaanahmed/log-storage-service"
)

var zipContentTypes = map[string]bool{
	"application/zip":              true,
	"application/x-zip-compressed": true,
}

type errorResponse struct {
	Error     string `json:"error"`
	RequestID string `json:"requestId,omitempty"`
}

func (s *Server) fail(c *gin.Context, status int, msg string) {
	c.AbortWithStatusJSON(status, errorResponse{Error: msg, RequestID: getRequestID(c)})
}

// failErr maps service errors to responses. Unclassified errors are logged
// and reported as 500 without details.
func (s *Server) failErr(c *gin.Context, err error) {
	status, msg := classify(err)
	if status >= http.StatusInternalServerError {
		_ = c.Error(err)
		s.log().Error("request failed",
			"request_id", getRequestID(c),
			"path", c.Request.URL.Path,
			"error", err)
	}
	s.fail(c, status, msg)
}

func classify(err error) (int, string) {
	switch {
	case errors.Is(err, logstorage.ErrNotFound):
		return http.StatusNotFound, "not found"
	case errors.Is(err, logstorage.ErrInvalidArchiveID):
		return http.StatusBadRequest, "invalid archive name"
	case errors.Is(err, logstorage.ErrEmptyUpload):
		return http.StatusBadRequest, "request body is empty"
	case errors.Is(err, logstorage.ErrEmptyArchive):
		return http.StatusBadRequest, "archive is empty"
	case errors.Is(err, logstorage.ErrUnsupportedArchive):
		return http.StatusUnsupportedMediaType, "not a zip archive"
	case errors.Is(err, logstorage.ErrTooLarge),
		errors.Is(err, logstorage.ErrArchiveTooLarge):
		return http.StatusRequestEntityTooLarge, "archive too large"
	case errors.Is(err, logstorage.ErrMetadataTooLarge):
		return http.StatusRequestEntityTooLarge, "archive has too many files for the storage backend"
	case errors.Is(err, logstorage.ErrCorruptArchive),
		errors.Is(err, logstorage.ErrInconsistentIndex),
		errors.Is(err, logstorage.ErrEntryVanished):
		return http.StatusBadGateway, "stored archive failed integrity checks"
	default:
		return http.StatusInternalServerError, "internal server error"
	}
}

func (s *Server) healthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) statusInfo(c *gin.Context) {
	status := make(map[string]string, len(s.status)+1)
	for k, v := range s.status {
		status[k] = v
	}
	status["baseUrl"] = s.svc.BaseURL()
	c.JSON(http.StatusOK, status)
}

func (s *Server) upload(c *gin.Context) {
	name := c.Param("name")
	if !zipContentTypes[c.ContentType()] {
		s.fail(c, http.StatusUnsupportedMediaType, "content type must be application/zip")
		return
	}
	length := c.Request.ContentLength
	if length == 0 {
		s.fail(c, http.StatusBadRequest, "request body is empty")
		return
	}
	if s.maxUploadSize > 0 && length > s.maxUploadSize {
		s.fail(c, http.StatusRequestEntityTooLarge, "archive too large")
		return
	}

	res, err := s.svc.Upload(c.Request.Context(), name, c.Request.Body)
	if err != nil {
		s.failErr(c, err)
		return
	}
	c.Header("Location", "/api/logs/"+res.ArchiveID)
	c.JSON(http.StatusCreated, res.Links)
}

func (s *Server) index(c *gin.Context) {
	links, err := s.svc.Index(c.Request.Context(), c.Param("archive"))
	if err != nil {
		s.failErr(c, err)
		return
	}
	c.JSON(http.StatusOK, links)
}

func (s *Server) download(c *gin.Context) {
	ctx := c.Request.Context()
	f, ok, err := s.svc.Resolve(ctx, c.Param("path"))
	if err != nil {
		s.failErr(c, err)
		return
	}
	if !ok {
		s.fail(c, http.StatusNotFound, "not found")
		return
	}

	contentType := mime.TypeByExtension(path.Ext(f.Name()))
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	headers := map[string]string{
		"Last-Modified": f.ModTime().UTC().Format(http.TimeFormat),
		"Cache-Control": s.cacheControl(),
	}

	if c.Request.Method == http.MethodHead {
		for k, v := range headers {
			c.Header(k, v)
		}
		c.Header("Content-Type", contentType)
		c.Header("Content-Length", strconv.FormatInt(f.Size(), 10))
		c.Status(http.StatusOK)
		return
	}

	rc, err := f.Open(ctx)
	if err != nil {
		// A stored archive over the limit is a server-side state, not a bad request.
		if errors.Is(err, logstorage.ErrTooLarge) || errors.Is(err, logstorage.ErrArchiveTooLarge) {
			s.log().Warn("stored archive exceeds the size limit",
				"request_id", getRequestID(c),
				"path", c.Request.URL.Path,
				"error", err)
			s.fail(c, http.StatusBadGateway, "stored archive exceeds the size limit")
			return
		}
		s.failErr(c, err)
		return
	}
	defer rc.Close()
	c.DataFromReader(http.StatusOK, f.Size(), contentType, rc, headers)
}

func (s *Server) cacheControl() string {
	if s.cacheMaxAge <= 0 {
		return "no-cache"
	}
	return "public,max-age=" + strconv.FormatInt(int64(s.cacheMaxAge.Seconds()), 10)
}
