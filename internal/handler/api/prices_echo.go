package api

import (
	"encoding/json"
	"fmt"
	"net/http"

	"OracleFeed/internal/cache"
	models "OracleFeed/internal/domain/models"
	"OracleFeed/internal/orchestrator"
	xhttp "OracleFeed/pkg/http"
	xlogger "OracleFeed/pkg/logger"

	"github.com/labstack/echo/v4"
)

// PricesEchoHandler exposes the consensus read API over Echo.
type PricesEchoHandler struct {
	logger *xlogger.Logger
	orch   *orchestrator.Orchestrator
	cache  *cache.RealTime
}

func NewPricesEchoHandler(logger *xlogger.Logger, orch *orchestrator.Orchestrator, c *cache.RealTime) *PricesEchoHandler {
	return &PricesEchoHandler{logger: logger, orch: orch, cache: c}
}

func (h *PricesEchoHandler) RegisterRoutes(e *echo.Echo) {
	g := e.Group("/api")
	g.GET("/price", h.Price)
	g.GET("/price/round", h.RoundPrice)
	g.POST("/price/round", h.SnapshotRound)
	g.GET("/quality", h.Quality)
	g.GET("/feeds", h.Feeds)
	g.GET("/cache/stats", h.CacheStats)
	g.GET("/stream", h.Stream)
}

func feedFromRequest(category, symbol string) models.FeedID {
	return models.NewFeedID(models.ParseCategory(category), symbol)
}

// Price serves the current consensus price for a feed.
func (h *PricesEchoHandler) Price(c echo.Context) error {
	req := &models.PriceRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	p := h.orch.GetAggregatedPrice(feedFromRequest(req.Category, req.Symbol))
	if p == nil {
		return xhttp.AppErrorResponse(c, xhttp.NotFoundErrorf("no fresh consensus for %s", req.Symbol))
	}
	c.Response().Header().Set(echo.HeaderCacheControl, "no-store")
	return xhttp.SuccessResponse(c, p)
}

// RoundPrice serves the consensus frozen for a voting round.
func (h *PricesEchoHandler) RoundPrice(c echo.Context) error {
	req := &models.RoundPriceRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	p := h.orch.GetVotingRoundPrice(feedFromRequest(req.Category, req.Symbol), req.Round)
	if p == nil {
		return xhttp.AppErrorResponse(c, xhttp.NotFoundErrorf("no snapshot for %s round %d", req.Symbol, req.Round))
	}
	return xhttp.SuccessResponse(c, p)
}

// SnapshotRound freezes the current consensus under a round id.
func (h *PricesEchoHandler) SnapshotRound(c echo.Context) error {
	req := &models.RoundPriceRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	p := h.orch.SnapshotVotingRound(feedFromRequest(req.Category, req.Symbol), req.Round)
	if p == nil {
		return xhttp.AppErrorResponse(c, xhttp.NotFoundErrorf("no consensus to snapshot for %s", req.Symbol))
	}
	return xhttp.CreatedResponse(c, p)
}

// Quality serves per-feed consensus health.
func (h *PricesEchoHandler) Quality(c echo.Context) error {
	req := &models.QualityRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	return xhttp.SuccessResponse(c, h.orch.Quality(feedFromRequest(req.Category, req.Symbol)))
}

// Feeds lists the registered feeds.
func (h *PricesEchoHandler) Feeds(c echo.Context) error {
	feeds := h.orch.Feeds()
	return xhttp.ListResponse(c, feeds, int64(len(feeds)))
}

// CacheStats exposes the consensus cache counters.
func (h *PricesEchoHandler) CacheStats(c echo.Context) error {
	return xhttp.SuccessResponse(c, h.cache.GetStats())
}

// Stream pushes consensus updates for one feed as server-sent events until
// the client disconnects. Slow clients skip updates instead of stalling the
// pipeline.
func (h *PricesEchoHandler) Stream(c echo.Context) error {
	req := &models.StreamRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	feed := feedFromRequest(req.Category, req.Symbol)

	res := c.Response()
	res.Header().Set(echo.HeaderContentType, "text/event-stream")
	res.Header().Set(echo.HeaderCacheControl, "no-cache")
	res.Header().Set(echo.HeaderConnection, "keep-alive")
	res.WriteHeader(http.StatusOK)

	flusher, ok := res.Writer.(http.Flusher)
	if !ok {
		return echo.NewHTTPError(http.StatusInternalServerError, "streaming unsupported")
	}

	updates := make(chan *models.AggregatedPrice, 16)
	unsub := h.orch.Subscribe(feed, func(_ models.FeedID, p *models.AggregatedPrice) {
		select {
		case updates <- p:
		default:
		}
	})
	defer unsub()

	ctx := c.Request().Context()
	for {
		select {
		case <-ctx.Done():
			return nil
		case p := <-updates:
			b, err := json.Marshal(p)
			if err != nil {
				continue
			}
			if _, err := fmt.Fprintf(res, "data: %s\n\n", b); err != nil {
				return nil
			}
			flusher.Flush()
		}
	}
}
