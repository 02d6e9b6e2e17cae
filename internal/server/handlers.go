package server

import (
	"context"
	"errors"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/lumenlabs/lumen/internal/observe"
	"github.com/lumenlabs/lumen/internal/pipeline"
	"github.com/lumenlabs/lumen/internal/refstyle"
)

// maxReferenceUpload caps reference video uploads at 256 MiB.
const maxReferenceUpload = 256 << 20

// errorBody is the uniform error envelope for all API failures.
type errorBody struct {
	ErrorKind string `json:"error_kind"`
	Message   string `json:"message"`
	RequestID string `json:"request_id,omitempty"`
}

// handleGenerate runs one generation request through the pipeline.
func (s *Server) handleGenerate(c *gin.Context) {
	var req pipeline.Request
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorBody{
			ErrorKind: string(pipeline.KindInvalidInput),
			Message:   "invalid JSON body: " + err.Error(),
		})
		return
	}

	res, err := s.orch.Generate(c.Request.Context(), req)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// handlePersonas lists the configured persona tags.
func (s *Server) handlePersonas(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"personas": s.orch.Personas()})
}

// styleNamePattern keeps extracted profile names filesystem-safe.
var styleNamePattern = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]{0,63}$`)

// handleReferenceStyle extracts a motion style profile from an uploaded
// reference video and persists it for use in later generation requests.
func (s *Server) handleReferenceStyle(c *gin.Context) {
	if s.extractor == nil {
		c.JSON(http.StatusNotImplemented, errorBody{
			ErrorKind: string(pipeline.KindInvalidInput),
			Message:   "style extraction is not configured",
		})
		return
	}

	name := strings.ToLower(strings.TrimSpace(c.PostForm("name")))
	if !styleNamePattern.MatchString(name) {
		c.JSON(http.StatusBadRequest, errorBody{
			ErrorKind: string(pipeline.KindInvalidInput),
			Message:   "name must be lowercase alphanumeric with - or _",
		})
		return
	}

	file, err := c.FormFile("video")
	if err != nil {
		c.JSON(http.StatusBadRequest, errorBody{
			ErrorKind: string(pipeline.KindInvalidInput),
			Message:   "video file is required",
		})
		return
	}
	if file.Size > maxReferenceUpload {
		c.JSON(http.StatusRequestEntityTooLarge, errorBody{
			ErrorKind: string(pipeline.KindInvalidInput),
			Message:   "video exceeds the upload limit",
		})
		return
	}

	tmpPath, cleanup, err := s.spoolUpload(c, file)
	if err != nil {
		s.writeError(c, pipeline.Wrap(pipeline.KindInternal, err, "spool upload"))
		return
	}
	defer cleanup()

	source, err := refstyle.NewVideoFile(tmpPath)
	if err != nil {
		s.writeError(c, pipeline.Wrap(pipeline.KindInternal, err, "open reference video"))
		return
	}

	profile, err := s.extractor.BuildStyle(c.Request.Context(), source, name)
	if err != nil {
		if errors.Is(err, refstyle.ErrInsufficientReferenceData) {
			c.JSON(http.StatusUnprocessableEntity, errorBody{
				ErrorKind: string(pipeline.KindInsufficientReferenceData),
				Message:   err.Error(),
			})
			return
		}
		s.writeError(c, pipeline.Wrap(pipeline.KindInternal, err, "extract style"))
		return
	}

	if s.styleDir != "" {
		if err := os.MkdirAll(s.styleDir, 0o755); err != nil {
			s.writeError(c, pipeline.Wrap(pipeline.KindInternal, err, "create style dir"))
			return
		}
		if err := profile.Save(filepath.Join(s.styleDir, name+".json")); err != nil {
			s.writeError(c, pipeline.Wrap(pipeline.KindInternal, err, "persist style"))
			return
		}
	}
	c.JSON(http.StatusOK, profile)
}

// spoolUpload copies a multipart file to a temp path ffmpeg can read. The
// returned cleanup removes the spool directory.
func (s *Server) spoolUpload(c *gin.Context, file *multipart.FileHeader) (string, func(), error) {
	dir, err := os.MkdirTemp("", "lumen-ref-*")
	if err != nil {
		return "", nil, err
	}
	cleanup := func() { os.RemoveAll(dir) }

	path := filepath.Join(dir, "reference"+filepath.Ext(file.Filename))
	if err := c.SaveUploadedFile(file, path); err != nil {
		cleanup()
		return "", nil, err
	}
	return path, cleanup, nil
}

// writeError maps a pipeline error kind to an HTTP status and writes the
// uniform error envelope.
func (s *Server) writeError(c *gin.Context, err error) {
	kind := pipeline.KindOf(err)
	status := http.StatusInternalServerError
	switch kind {
	case pipeline.KindInvalidInput:
		status = http.StatusBadRequest
	case pipeline.KindUpstreamUnavailable:
		status = http.StatusBadGateway
	case pipeline.KindInsufficientReferenceData:
		status = http.StatusUnprocessableEntity
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		// Client went away mid-run; 408 is the closest standard status.
		status = http.StatusRequestTimeout
	}

	observe.Logger(c.Request.Context()).Error("request failed",
		"kind", string(kind), "error", err)
	c.JSON(status, errorBody{
		ErrorKind: string(kind),
		Message:   err.Error(),
		RequestID: observe.CorrelationID(c.Request.Context()),
	})
}
