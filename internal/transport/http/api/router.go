package api

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"quorum/internal/consensus"
	"quorum/internal/decision"
	"quorum/internal/logger"
	"quorum/internal/store/decisionlog"

	"github.com/gin-gonic/gin"
)

// Decider 是 HTTP 层需要的引擎能力。
type Decider interface {
	Decide(ctx context.Context, req consensus.Request) consensus.Response
	Limits(symbol string) consensus.RateLimitState
	ResetLimits(symbol string) consensus.RateLimitState
}

// EventLog 查询审计记录；未启用审计时为 nil。
type EventLog interface {
	Recent(ctx context.Context, q decisionlog.Query) ([]decisionlog.Entry, error)
	Count(ctx context.Context, q decisionlog.Query) (int, error)
}

// Router 挂载 /api/consensus 路由。
type Router struct {
	engine Decider
	events EventLog
}

func NewRouter(engine Decider, events EventLog) *Router {
	return &Router{engine: engine, events: events}
}

// Register 将路由挂载到给定分组下。
func (r *Router) Register(group *gin.RouterGroup) {
	if group == nil {
		return
	}
	group.POST("/decide", r.handleDecide)
	group.GET("/limits/:symbol", r.handleLimits)
	group.DELETE("/limits/:symbol", r.handleResetLimits)
	group.GET("/events", r.handleEvents)
}

// DecideRequest 是 POST /decide 的请求体。symbols 与 symbol 二选一。
type DecideRequest struct {
	Symbol  string         `json:"symbol"`
	Symbols []string       `json:"symbols"`
	CycleID string         `json:"cycle_id"`
	Price   float64        `json:"price"`
	ATR     *float64       `json:"atr"`
	Extras  map[string]any `json:"extras"`
}

func (r *Router) handleDecide(c *gin.Context) {
	var body DecideRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
		return
	}
	symbols := body.Symbols
	if s := strings.TrimSpace(body.Symbol); s != "" {
		symbols = append([]string{s}, symbols...)
	}
	if !hasSymbol(symbols) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "symbols is required"})
		return
	}
	resp := r.engine.Decide(c.Request.Context(), consensus.Request{
		Symbols: symbols,
		CycleID: strings.TrimSpace(body.CycleID),
		Snapshot: decision.Snapshot{
			Price:     body.Price,
			ATR:       body.ATR,
			Timestamp: time.Now(),
			Extras:    body.Extras,
		},
	})
	c.JSON(http.StatusOK, resp)
}

func (r *Router) handleLimits(c *gin.Context) {
	symbol := strings.TrimSpace(c.Param("symbol"))
	c.JSON(http.StatusOK, r.engine.Limits(symbol))
}

func (r *Router) handleResetLimits(c *gin.Context) {
	symbol := strings.TrimSpace(c.Param("symbol"))
	state := r.engine.ResetLimits(symbol)
	logger.Infof("[api] rate limit reset symbol=%s ip=%s", state.Symbol, c.ClientIP())
	c.JSON(http.StatusOK, state)
}

func (r *Router) handleEvents(c *gin.Context) {
	if r.events == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "审计日志未启用"})
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))
	if offset < 0 {
		offset = 0
	}
	vetoed, _ := strconv.ParseBool(c.DefaultQuery("vetoed", "false"))
	q := decisionlog.Query{
		Symbol:     c.Query("symbol"),
		ReasonCode: c.Query("reason_code"),
		CycleID:    c.Query("cycle_id"),
		VetoedOnly: vetoed,
		Limit:      limit,
		Offset:     offset,
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()
	items, err := r.events.Recent(ctx, q)
	if err != nil {
		logger.Errorf("[api] consensus events list failed ip=%s err=%v", c.ClientIP(), err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	total, err := r.events.Count(ctx, q)
	if err != nil {
		logger.Warnf("[api] consensus events count failed: %v", err)
		total = len(items)
	}
	if items == nil {
		items = []decisionlog.Entry{}
	}
	c.JSON(http.StatusOK, gin.H{"items": items, "total": total, "limit": limit, "offset": offset})
}

func hasSymbol(symbols []string) bool {
	for _, s := range symbols {
		if strings.TrimSpace(s) != "" {
			return true
		}
	}
	return false
}
