package mirror

import (
	"net/http"
	"strconv"
	"strings"
	"sync"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type Handler struct {
	Path   string
	Logger *zap.Logger

	mu   sync.Mutex
	snap *Snapshot
}

func NewHandler(path string, logger *zap.Logger) *Handler {
	return &Handler{Path: path, Logger: logger}
}

func (h *Handler) RegisterRoutes(r gin.IRouter) {
	r.GET("/feed/:country/rss/customerreviews/:page/:id/*rest", h.reviews)
	r.GET("/lookup", h.lookup)
	r.POST("/reload", h.reload)
}

// snapshot loads the fixture on first use and keeps it until reload.
func (h *Handler) snapshot() (*Snapshot, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.snap != nil {
		return h.snap, nil
	}
	s, err := Load(h.Path)
	if err != nil {
		return nil, err
	}
	h.snap = s
	return s, nil
}

func pathValue(segment, key string) (string, bool) {
	return strings.CutPrefix(segment, key+"=")
}

func (h *Handler) reviews(c *gin.Context) {
	pageRaw, ok1 := pathValue(c.Param("page"), "page")
	appID, ok2 := pathValue(c.Param("id"), "id")
	page, err := strconv.Atoi(pageRaw)
	if !ok1 || !ok2 || err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "bad feed path"})
		return
	}

	snap, err := h.snapshot()
	if err != nil {
		h.Logger.Error("load mirror failed", zap.String("path", h.Path), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, toFeed(snap.Page(appID, page)))
}

func (h *Handler) lookup(c *gin.Context) {
	snap, err := h.snapshot()
	if err != nil {
		h.Logger.Error("load mirror failed", zap.String("path", h.Path), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	id := c.Query("id")
	app, ok := snap.Apps[id]
	if !ok {
		c.JSON(http.StatusOK, gin.H{"resultCount": 0, "results": []any{}})
		return
	}
	trackID, _ := strconv.ParseInt(id, 10, 64)
	c.JSON(http.StatusOK, gin.H{
		"resultCount": 1,
		"results": []gin.H{{
			"trackId":     trackID,
			"trackName":   app.Title,
			"releaseDate": app.ReleaseDate,
		}},
	})
}

func (h *Handler) reload(c *gin.Context) {
	h.mu.Lock()
	h.snap = nil
	h.mu.Unlock()

	if _, err := h.snapshot(); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}
