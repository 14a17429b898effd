package scraper

import (
	"context"
	"encoding/json"
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

// Invalidator drops cached aggregates after new reviews land.
type Invalidator interface {
	Invalidate(ctx context.Context) error
}

type Handler struct {
	Driver *Driver
	Cache  Invalidator
	Logger *zap.Logger
}

func NewHandler(driver *Driver, cache Invalidator, logger *zap.Logger) *Handler {
	return &Handler{Driver: driver, Cache: cache, Logger: logger}
}

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/ingest/reviews", h.ingest)
	rg.GET("/ingest/reviews/locales", h.ingestLocales)
	rg.POST("/ingest/reviews/locales", h.ingestLocales)
}

type ingestReq struct {
	Provider string `json:"provider" validate:"required"`
	AppID    string `json:"appId" validate:"required"`
}

func (h *Handler) ingest(c *gin.Context) {
	req, err := utils.BindJSON[ingestReq](c)
	if err != nil {
		middleware.RespondError(c, err)
		return
	}
	source, err := models.ParseSource(req.Provider)
	if err != nil {
		middleware.RespondError(c, httperror.WrapError(http.StatusBadRequest, err))
		return
	}

	country, lang := h.Driver.Defaults()
	res, err := h.run(c, Request{
		Source:    source,
		AppID:     req.AppID,
		Countries: []string{country},
		Languages: []string{lang},
		MaxPages:  h.Driver.opts.HardMaxPages,
	})
	if err != nil {
		middleware.RespondError(c, ToHTTPError(err))
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"ok":                 true,
		"runId":              res.RunID,
		"inserted":           res.Inserted,
		"seen":               res.Seen,
		"rejected":           res.Rejected,
		"country":            country,
		"lang":               lang,
		"combinationsFailed": res.CombinationsFailed,
	})
}

// localesReq accepts either query parameters or a JSON body. Countries and
// languages may be comma separated strings or arrays in the body.
type localesReq struct {
	Provider  string   `json:"provider"`
	AppID     string   `json:"appId"`
	Countries csvField `json:"countries"`
	Languages csvField `json:"languages"`
	MaxPages  int      `json:"maxPages"`
}

func (h *Handler) bindLocales(c *gin.Context) (localesReq, error) {
	var req localesReq
	if c.Request.Method == http.MethodPost && c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			return req, httperror.WrapError(http.StatusBadRequest, err)
		}
	}
	if v := c.Query("provider"); v != "" {
		req.Provider = v
	}
	if v := c.Query("appId"); v != "" {
		req.AppID = v
	}
	if v := c.Query("countries"); v != "" {
		req.Countries = splitCSV(v)
	}
	if v := c.Query("languages"); v != "" {
		req.Languages = splitCSV(v)
	}
	if v := strings.TrimSpace(c.Query("maxPages")); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return req, httperror.NewHTTPErrorf(http.StatusBadRequest, "invalid maxPages %q", v)
		}
		req.MaxPages = n
	}
	if req.Provider == "" {
		req.Provider = string(models.SourceAppStore)
	}
	if strings.TrimSpace(req.AppID) == "" {
		return req, httperror.NewHTTPError(http.StatusBadRequest, "appId is required")
	}
	return req, nil
}

func (h *Handler) ingestLocales(c *gin.Context) {
	req, err := h.bindLocales(c)
	if err != nil {
		middleware.RespondError(c, err)
		return
	}
	source, err := models.ParseSource(req.Provider)
	if err != nil {
		middleware.RespondError(c, httperror.WrapError(http.StatusBadRequest, err))
		return
	}

	res, err := h.run(c, Request{
		Source:    source,
		AppID:     req.AppID,
		Countries: req.Countries,
		Languages: req.Languages,
		MaxPages:  req.MaxPages,
	})
	if err != nil {
		middleware.RespondError(c, ToHTTPError(err))
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"ok":                 true,
		"runId":              res.RunID,
		"appId":              res.AppID,
		"countries":          res.Countries,
		"languages":          res.Languages,
		"maxPages":           res.MaxPages,
		"seen":               res.Seen,
		"upserted":           res.Inserted,
		"rejected":           res.Rejected,
		"combinationsTried":  res.CombinationsTried,
		"combinationsFailed": res.CombinationsFailed,
	})
}

func (h *Handler) run(c *gin.Context, req Request) (*Result, error) {
	ctx := c.Request.Context()
	res, err := h.Driver.Run(ctx, req)
	if res != nil && res.Inserted > 0 && h.Cache != nil {
		if cerr := h.Cache.Invalidate(ctx); cerr != nil {
			h.Logger.Warn("invalidate cache failed", zap.Error(cerr))
		}
	}
	if err != nil {
		h.Logger.Warn("ingest failed",
			zap.String("source", string(req.Source)),
			zap.String("app_id", req.AppID),
			zap.String("request_id", middleware.GetRequestID(c)),
			zap.Error(err))
	}
	return res, err
}

type csvField []string

func (f *csvField) UnmarshalJSON(b []byte) error {
	var list []string
	if err := json.Unmarshal(b, &list); err == nil {
		*f = list
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	*f = splitCSV(s)
	return nil
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
