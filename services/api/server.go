// Package api serves backtests over HTTP.
package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"pairs-backtest/proto"
	"pairs-backtest/services/arrowpipeline"
	"pairs-backtest/services/engine"
	"pairs-backtest/services/monitoring"
	"pairs-backtest/services/runner"
)

const version = "1.0.0"

type Server struct {
	runner       *runner.Runner
	pipeline     *arrowpipeline.Pipeline
	metrics      *monitoring.Metrics
	logger       *zap.Logger
	maxBodyBytes int64
}

func NewServer(r *runner.Runner, p *arrowpipeline.Pipeline, m *monitoring.Metrics, logger *zap.Logger, maxBodyBytes int64) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	if p == nil {
		p = arrowpipeline.NewPipeline(arrowpipeline.Config{}, nil, logger)
	}
	if maxBodyBytes <= 0 {
		maxBodyBytes = 32 << 20
	}
	return &Server{runner: r, pipeline: p, metrics: m, logger: logger, maxBodyBytes: maxBodyBytes}
}

// Router builds the gin engine with every route registered.
func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), s.requestLogger())
	if s.metrics != nil {
		r.Use(s.metrics.GinMiddleware())
		r.GET("/metrics", gin.WrapH(s.metrics.Handler()))
	}
	r.GET("/healthz", s.handleHealth)

	v1 := r.Group("/v1/backtests")
	{
		v1.POST("", s.handleRun)
		v1.POST("/batch", s.handleBatch)
		v1.GET("/:id", s.handleGet)
		v1.GET("/:id/summary", s.handleSummary)
		v1.GET("/:id/trades.arrow", s.handleArrow)
	}
	return r
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.Debug("http request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("elapsed", time.Since(start)),
		)
	}
}

func (s *Server) fail(c *gin.Context, err error) {
	status, payload := Envelope(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed", zap.String("path", c.FullPath()), zap.Error(err))
	}
	c.AbortWithStatusJSON(status, gin.H{"error": payload})
}

func (s *Server) decode(c *gin.Context, dst any) bool {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, s.maxBodyBytes)
	dec := json.NewDecoder(c.Request.Body)
	if err := dec.Decode(dst); err != nil {
		s.fail(c, fmt.Errorf("%w: decode body: %v", runner.ErrInvalidRequest, err))
		return false
	}
	return true
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "healthy",
		"timestamp": time.Now().Unix(),
		"version":   version,
	})
}

func (s *Server) handleRun(c *gin.Context) {
	req := s.runner.NewRequest()
	if !s.decode(c, &req) {
		return
	}
	rec, err := s.runner.Run(c.Request.Context(), req)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, runner.Response(rec))
}

func (s *Server) handleBatch(c *gin.Context) {
	var raw struct {
		Requests []json.RawMessage `json:"requests"`
	}
	if !s.decode(c, &raw) {
		return
	}
	if len(raw.Requests) == 0 {
		s.fail(c, fmt.Errorf("%w: batch has no requests", runner.ErrInvalidRequest))
		return
	}

	reqs := make([]proto.BacktestRequest, len(raw.Requests))
	decodeErrs := make(map[int]error)
	for i, msg := range raw.Requests {
		reqs[i] = s.runner.NewRequest()
		dec := json.NewDecoder(bytes.NewReader(msg))
		if err := dec.Decode(&reqs[i]); err != nil {
			decodeErrs[i] = fmt.Errorf("%w: decode request %d: %v", runner.ErrInvalidRequest, i, err)
		}
	}

	runnable := make([]proto.BacktestRequest, 0, len(reqs))
	index := make([]int, 0, len(reqs))
	for i := range reqs {
		if decodeErrs[i] == nil {
			runnable = append(runnable, reqs[i])
			index = append(index, i)
		}
	}
	outcomes, err := s.runner.RunBatch(c.Request.Context(), runnable)
	if err != nil {
		s.fail(c, err)
		return
	}

	resp := proto.BatchResponse{Results: make([]proto.BatchItem, len(reqs))}
	for i, err := range decodeErrs {
		_, payload := Envelope(err)
		resp.Results[i] = proto.BatchItem{Index: i, Error: payload}
	}
	for j, o := range outcomes {
		i := index[j]
		item := proto.BatchItem{Index: i}
		if o.Err != nil {
			_, item.Error = Envelope(o.Err)
		} else {
			item.Response = runner.Response(o.Record)
		}
		resp.Results[i] = item
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) handleGet(c *gin.Context) {
	id := c.Param("id")
	if rec, ok := s.runner.Get(id); ok {
		c.JSON(http.StatusOK, runner.Response(rec))
		return
	}
	res, err := s.runner.Lookup(c.Request.Context(), id)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, runner.Response(&runner.Record{Result: res}))
}

func (s *Server) handleSummary(c *gin.Context) {
	resp, err := s.runner.Summary(c.Request.Context(), proto.SummaryRequest{RunID: c.Param("id"), Select: c.Query("select")})
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) handleArrow(c *gin.Context) {
	res, err := s.runner.Lookup(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	var leg engine.LegResult
	switch c.DefaultQuery("leg", "buy") {
	case "buy":
		leg = res.Buy
	case "short", "sellshort":
		leg = res.Short
	default:
		s.fail(c, fmt.Errorf("%w: leg must be buy or short", runner.ErrInvalidRequest))
		return
	}

	var buf bytes.Buffer
	if err := s.pipeline.EncodeTrades(&buf, leg.Symbol, leg.Trades); err != nil {
		s.fail(c, err)
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%s-%s.arrow", res.Manifest.RunID, leg.Symbol))
	c.Data(http.StatusOK, "application/vnd.apache.arrow.stream", buf.Bytes())
}
