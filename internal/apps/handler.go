package apps

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"reviewdash/internal/scraper"
	"reviewdash/pkg/middleware"
	"reviewdash/pkg/models"
	"reviewdash/pkg/utils"
)

type Handler struct {
	Repo    *Repo
	Service *Service
	Logger  *zap.Logger
}

func NewHandler(repo *Repo, svc *Service, logger *zap.Logger) *Handler {
	return &Handler{Repo: repo, Service: svc, Logger: logger}
}

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/apps/meta", h.fetchMeta)
	rg.GET("/apps", h.list)
	rg.GET("/apps/:provider/:appId", h.get)
}

type metaReq struct {
	Provider string `json:"provider" validate:"required"`
	AppID    string `json:"appId" validate:"required"`
	Country  string `json:"country" validate:"omitempty,len=2,alpha"`
	Debug    bool   `json:"debug"`
}

func (h *Handler) fetchMeta(c *gin.Context) {
	req, err := utils.BindJSON[metaReq](c)
	if err != nil {
		middleware.RespondError(c, err)
		return
	}
	source, err := models.ParseSource(req.Provider)
	if err != nil {
		middleware.RespondError(c, httperror.WrapError(http.StatusBadRequest, err))
		return
	}

	res, err := h.Service.Fetch(c.Request.Context(), source, req.AppID, req.Country, req.Debug)
	if err != nil {
		h.Logger.Warn("fetch app meta failed",
			zap.String("source", req.Provider),
			zap.String("app_id", req.AppID),
			zap.Error(err))
		middleware.RespondError(c, scraper.ToHTTPError(err))
		return
	}

	body := gin.H{"ok": true, "meta": res.Meta}
	if req.Debug {
		body["raw"] = res.Raw
	}
	c.JSON(http.StatusOK, body)
}

func (h *Handler) list(c *gin.Context) {
	limit := parseInt(c.Query("limit"), 20)
	offset := parseInt(c.Query("offset"), 0)
	ctx := c.Request.Context()

	total, err := h.Repo.Count(ctx)
	if err != nil {
		h.Logger.Error("count apps failed", zap.Error(err))
	}
	items, err := h.Repo.List(ctx, limit, offset)
	if err != nil {
		h.Logger.Error("list apps failed", zap.Error(err))
		items = []models.AppMeta{}
	}

	c.JSON(http.StatusOK, gin.H{
		"total":  total,
		"limit":  limit,
		"offset": offset,
		"items":  items,
	})
}

func (h *Handler) get(c *gin.Context) {
	source, err := models.ParseSource(c.Param("provider"))
	if err != nil {
		middleware.RespondError(c, httperror.WrapError(http.StatusBadRequest, err))
		return
	}
	appID := strings.TrimSpace(c.Param("appId"))
	if source == models.SourcePlay {
		appID = strings.ToLower(appID)
	}

	m, err := h.Repo.Get(c.Request.Context(), source, appID)
	if err != nil {
		h.Logger.Error("get app failed", zap.Error(err))
		middleware.RespondError(c, httperror.NewHTTPError(http.StatusInternalServerError, "get app failed"))
		return
	}
	if m == nil {
		middleware.RespondError(c, httperror.NewHTTPError(http.StatusNotFound, "not found"))
		return
	}
	c.JSON(http.StatusOK, m)
}

func parseInt(s string, def int) int {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return def
	}
	return n
}
