package reviews

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"reviewdash/pkg/middleware"
	"reviewdash/pkg/models"
	"reviewdash/pkg/utils"
)

type Handler struct {
	Repo   *Repo
	Cache  Cache
	Logger *zap.Logger
}

func NewHandler(repo *Repo, cache Cache, logger *zap.Logger) *Handler {
	if cache == nil {
		cache = NopCache{}
	}
	return &Handler{Repo: repo, Cache: cache, Logger: logger}
}

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/reviews", h.list)
	rg.GET("/reviews/latest", h.latest)
	rg.GET("/reviews/summary", h.summary)
	rg.GET("/reviews/labels", h.labelCounts)
	rg.POST("/classify", h.classify)
}

func parseListQuery(c *gin.Context) (ListQuery, error) {
	q := ListQuery{
		AppID:  strings.TrimSpace(c.Query("appId")),
		Limit:  parseInt(c.Query("limit"), 20),
		Offset: parseInt(c.Query("offset"), 0),
	}

	for _, p := range splitCSV(c.Query("provider")) {
		src, err := models.ParseSource(p)
		if err != nil {
			return q, httperror.WrapError(http.StatusBadRequest, err)
		}
		q.Sources = append(q.Sources, src)
	}

	if y := strings.TrimSpace(c.Query("year")); y != "" {
		year, err := strconv.Atoi(y)
		if err != nil || year < 1900 {
			return q, httperror.NewHTTPErrorf(http.StatusBadRequest, "invalid year %q", y)
		}
		q.Year = year
	}

	for _, r := range splitCSV(c.Query("ratings")) {
		n, err := strconv.Atoi(r)
		if err != nil || n < 0 || n > 5 {
			return q, httperror.NewHTTPErrorf(http.StatusBadRequest, "invalid rating %q", r)
		}
		q.Ratings = append(q.Ratings, n)
	}

	if l := strings.TrimSpace(c.Query("label")); l != "" {
		if l != models.LabelInbox && !models.Label(l).Valid() {
			return q, httperror.NewHTTPErrorf(http.StatusBadRequest, "invalid label %q", l)
		}
		q.Label = l
	}

	switch s := strings.TrimSpace(c.Query("sort")); s {
	case "", SortDateDesc:
		q.Sort = SortDateDesc
	case SortHelpfulDesc:
		q.Sort = SortHelpfulDesc
	default:
		return q, httperror.NewHTTPErrorf(http.StatusBadRequest, "invalid sort %q", s)
	}

	q.clamp()
	return q, nil
}

func (h *Handler) list(c *gin.Context) {
	q, err := parseListQuery(c)
	if err != nil {
		middleware.RespondError(c, err)
		return
	}
	ctx := c.Request.Context()

	total, err := h.Repo.Count(ctx, q)
	if err != nil {
		h.Logger.Error("count reviews failed", zap.Error(err))
		total = 0
	}
	items, err := h.Repo.List(ctx, q)
	if err != nil {
		h.Logger.Error("list reviews failed", zap.Error(err))
		items = []models.Review{}
	}

	c.JSON(http.StatusOK, gin.H{
		"total":  total,
		"limit":  q.Limit,
		"offset": q.Offset,
		"items":  items,
	})
}

func (h *Handler) latest(c *gin.Context) {
	items, err := h.Repo.Latest(c.Request.Context(), parseInt(c.Query("limit"), 20))
	if err != nil {
		h.Logger.Error("latest reviews failed", zap.Error(err))
		items = []models.Review{}
	}
	c.JSON(http.StatusOK, gin.H{"items": items})
}

func (h *Handler) summary(c *gin.Context) {
	ctx := c.Request.Context()

	var s models.Summary
	if h.Cache.Get(ctx, summaryCacheKey, &s) {
		c.JSON(http.StatusOK, s)
		return
	}

	s, err := h.Repo.Summary(ctx)
	if err != nil {
		h.Logger.Error("summary failed", zap.Error(err))
		c.JSON(http.StatusOK, models.EmptySummary())
		return
	}
	h.Cache.Set(ctx, summaryCacheKey, s)
	c.JSON(http.StatusOK, s)
}

func (h *Handler) labelCounts(c *gin.Context) {
	ctx := c.Request.Context()

	var counts models.LabelCounts
	if h.Cache.Get(ctx, labelCountsCacheKey, &counts) {
		c.JSON(http.StatusOK, counts)
		return
	}

	counts, err := h.Repo.LabelCounts(ctx)
	if err != nil {
		h.Logger.Error("label counts failed", zap.Error(err))
		c.JSON(http.StatusOK, models.LabelCounts{})
		return
	}
	h.Cache.Set(ctx, labelCountsCacheKey, counts)
	c.JSON(http.StatusOK, counts)
}

type classifyReq struct {
	IDs   []string `json:"ids" validate:"required,min=1,dive,required"`
	Label *string  `json:"label"`
}

func (h *Handler) classify(c *gin.Context) {
	req, err := utils.BindJSON[classifyReq](c)
	if err != nil {
		middleware.RespondError(c, err)
		return
	}

	label, err := models.ParseLabel(req.Label)
	if err != nil {
		middleware.RespondError(c, httperror.WrapError(http.StatusBadRequest, err))
		return
	}

	ctx := c.Request.Context()
	updated, err := h.Repo.SetLabel(ctx, req.IDs, label)
	if err != nil {
		if errors.Is(err, ErrNoIDs) {
			middleware.RespondError(c, httperror.WrapError(http.StatusBadRequest, err))
			return
		}
		h.Logger.Error("classify failed", zap.Int("ids", len(req.IDs)), zap.Error(err))
		middleware.RespondError(c, httperror.NewHTTPError(http.StatusInternalServerError, "classify failed"))
		return
	}

	if err := h.Cache.Invalidate(ctx); err != nil {
		h.Logger.Warn("invalidate cache failed", zap.Error(err))
	}

	c.JSON(http.StatusOK, gin.H{"ok": true, "updated": updated})
}

func parseInt(s string, def int) int {
	s = strings.TrimSpace(s)
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return n
}

func splitCSV(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
