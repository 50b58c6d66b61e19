package api

import (
	"errors"
	"fmt"
	"log/slog"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"docwebapi/config"
	"docwebapi/convert"
	"docwebapi/task"
	"docwebapi/workspace"

	"github.com/gin-gonic/gin"
)

type Handler struct {
	taskManager *task.Manager
	cfg         *config.Config
}

func NewHandler(tm *task.Manager, cfg *config.Config) *Handler {
	return &Handler{
		taskManager: tm,
		cfg:         cfg,
	}
}

// saveUploads stores uploaded files in a fresh upload workspace. Each file
// gets its own subdirectory so that equal names do not overwrite each other.
// With checkSize set, a file over MAX_INPUT_SIZE rejects the whole upload;
// otherwise the converter reports it as a failure of that file alone.
func (h *Handler) saveUploads(c *gin.Context, files []*multipart.FileHeader, checkSize bool) (paths []string, err error) {
	if checkSize && h.cfg.MaxInputSize > 0 {
		for _, fh := range files {
			if fh.Size > h.cfg.MaxInputSize {
				return nil, fmt.Errorf("%w: %s exceeds limit of %d bytes", convert.ErrSourceRead, fh.Filename, h.cfg.MaxInputSize)
			}
		}
	}

	ws, err := h.taskManager.Workspaces().Allocate(workspace.KindUpload)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err != nil {
			os.RemoveAll(ws.Root)
		}
	}()

	paths = make([]string, 0, len(files))
	for i, fh := range files {
		name := filepath.Base(filepath.Clean("/" + fh.Filename))
		if name == "/" || name == "." {
			name = "upload"
		}
		dir := filepath.Join(ws.Root, strconv.Itoa(i))
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
		dst := filepath.Join(dir, name)
		if err := c.SaveUploadedFile(fh, dst); err != nil {
			return nil, fmt.Errorf("could not store upload %s: %w", fh.Filename, err)
		}
		paths = append(paths, dst)
	}
	return paths, nil
}

// handleConvert converts a single uploaded file synchronously.
func (h *Handler) handleConvert(c *gin.Context) {
	fh, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "multipart field 'file' is required"})
		return
	}

	// Reject unsupported types before storing anything.
	if convert.KindOf(fh.Filename) == convert.KindUnknown {
		c.JSON(http.StatusUnsupportedMediaType, gin.H{"error": convert.ErrUnsupportedFileType.Error()})
		return
	}

	paths, err := h.saveUploads(c, []*multipart.FileHeader{fh}, true)
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}

	res, err := h.taskManager.ConvertFile(c.Request.Context(), paths[0])
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"taskId":      res.TaskID,
		"markdown":    res.Markdown,
		"downloadUrl": h.downloadURL(c, res.TaskID, filepath.Base(res.ArchivePath)),
	})
}

// handleCreateBatch queues an asynchronous batch conversion.
func (h *Handler) handleCreateBatch(c *gin.Context) {
	form, err := c.MultipartForm()
	if err != nil || len(form.File["files"]) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "multipart field 'files' is required"})
		return
	}

	paths, err := h.saveUploads(c, form.File["files"], false)
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}

	t, err := h.taskManager.SubmitBatch(paths)
	if err != nil {
		if id, ok := h.taskManager.Workspaces().IDOf(paths[0]); ok {
			os.RemoveAll(filepath.Join(h.taskManager.Workspaces().Root(), id))
		}
		status := http.StatusInternalServerError
		if errors.Is(err, task.ErrQueueFull) {
			status = http.StatusServiceUnavailable
		}
		c.JSON(status, gin.H{"error": "Failed to create task", "details": err.Error()})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{"taskId": t.ID})
}

// handleListTasks lists all tasks.
func (h *Handler) handleListTasks(c *gin.Context) {
	tasks := h.taskManager.List()
	for _, t := range tasks {
		h.buildDownloadURL(c, t)
	}
	c.JSON(http.StatusOK, tasks)
}

func (h *Handler) downloadURL(c *gin.Context, taskID, filename string) string {
	baseURL := h.cfg.BaseURL
	if baseURL == "" {
		scheme := "http"
		if c.Request.TLS != nil {
			scheme = "https"
		}
		baseURL = fmt.Sprintf("%s://%s", scheme, c.Request.Host)
	}
	baseURL = strings.TrimSuffix(baseURL, "/")

	return fmt.Sprintf("%s/api/v1/files/%s/%s", baseURL, taskID, filename)
}

// buildDownloadURL fills in the batch archive URL of a completed task.
func (h *Handler) buildDownloadURL(c *gin.Context, t *task.Task) {
	if t.Status != task.StatusCompleted || t.ArchivePath == "" {
		return
	}
	t.DownloadURL = h.downloadURL(c, t.ID, filepath.Base(t.ArchivePath))
}

// handleGetTaskStatus retrieves the status of a single task.
func (h *Handler) handleGetTaskStatus(c *gin.Context) {
	taskID := c.Param("taskId")
	t, found := h.taskManager.Get(taskID)
	if !found {
		c.JSON(http.StatusNotFound, gin.H{"error": "Task not found"})
		return
	}

	h.buildDownloadURL(c, t)
	c.JSON(http.StatusOK, t)
}

// handleCancelTask cancels a task.
func (h *Handler) handleCancelTask(c *gin.Context) {
	taskID := c.Param("taskId")
	err := h.taskManager.Cancel(taskID)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Task cancellation requested"})
}

// handleGetFile serves a file from a task workspace.
func (h *Handler) handleGetFile(c *gin.Context) {
	filePath, err := h.taskManager.FilePath(c.Param("taskId"), c.Param("filename"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.FileAttachment(filePath, filepath.Base(filePath))
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, convert.ErrUnsupportedFileType):
		return http.StatusUnsupportedMediaType
	case errors.Is(err, convert.ErrSourceRead):
		return http.StatusBadRequest
	case errors.Is(err, convert.ErrConversion):
		return http.StatusUnprocessableEntity
	}
	slog.Error("request failed", "error", err)
	return http.StatusInternalServerError
}
