// Package labhttp 提供实验管理的 HTTP API。
package labhttp

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"banditlab/internal/experiment"
	"banditlab/internal/logger"
	"banditlab/internal/presets"
	"banditlab/internal/report"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Server 暴露实验提交、查询与报表接口。
type Server struct {
	addr    string
	svc     *experiment.Service
	presets *presets.Registry
	router  *gin.Engine
}

// Config 描述 HTTP Server 的依赖。
type Config struct {
	Addr    string
	Svc     *experiment.Service
	Presets *presets.Registry // 可为 nil
}

// NewServer 构建 HTTP Server。
func NewServer(cfg Config) (*Server, error) {
	if cfg.Svc == nil {
		return nil, errors.New("experiment service 不能为空")
	}
	if cfg.Addr == "" {
		cfg.Addr = ":9881"
	}
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery(), requestLogger())

	s := &Server{
		addr:    cfg.Addr,
		svc:     cfg.Svc,
		presets: cfg.Presets,
		router:  router,
	}
	s.registerRoutes()
	return s, nil
}

func (s *Server) registerRoutes() {
	s.router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	s.router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := s.router.Group("/api")
	api.POST("/experiments", s.handleSubmit)
	api.GET("/experiments", s.handleList)
	api.GET("/experiments/:id", s.handleDetail)
	api.GET("/experiments/:id/policies", s.handlePolicies)
	api.GET("/experiments/:id/chart", s.handleChart)
	api.GET("/presets", s.handlePresets)
	api.POST("/presets/:id/runs", s.handlePresetRun)
}

// Addr 返回监听地址。
func (s *Server) Addr() string {
	if s == nil {
		return ""
	}
	return s.addr
}

// Handler 暴露路由，测试用。
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) handleSubmit(c *gin.Context) {
	var req experiment.RunRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	run, err := s.svc.Submit(req)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"run": run})
}

func (s *Server) handleList(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	runs, err := s.svc.ListRuns(c.Request.Context(), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"runs": runs})
}

func (s *Server) handleDetail(c *gin.Context) {
	id := c.Param("id")
	// 内存里有最新状态就用内存的，避免读到落库前的旧快照
	if run, ok := s.svc.RunSnapshot(id); ok {
		c.JSON(http.StatusOK, gin.H{"run": run})
		return
	}
	run, err := s.svc.GetRun(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"run": run})
}

func (s *Server) handlePolicies(c *gin.Context) {
	id := c.Param("id")
	run, err := s.svc.GetRun(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	policies, err := s.svc.ListPolicies(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"policies": policies,
		"summary":  report.Summary(run, policies),
	})
}

func (s *Server) handleChart(c *gin.Context) {
	id := c.Param("id")
	run, err := s.svc.GetRun(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	policies, err := s.svc.ListPolicies(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	curves := make(map[string][]float64)
	for _, pr := range policies {
		curve, err := s.svc.ListCurve(c.Request.Context(), id, pr.Policy, 0)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		if len(curve) > 0 {
			curves[pr.Policy] = curve
		}
	}
	c.Header("Content-Type", "text/html; charset=utf-8")
	c.Status(http.StatusOK)
	if err := report.RenderRunHTML(c.Writer, report.RunChartInput{
		Run:      run,
		Policies: policies,
		Curves:   curves,
	}); err != nil {
		logger.Errorf("render chart for run %s failed: %v", id, err)
	}
}

func (s *Server) handlePresets(c *gin.Context) {
	if s.presets == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "preset registry 未启用"})
		return
	}
	snap := s.presets.Snapshot()
	c.JSON(http.StatusOK, gin.H{
		"version":   snap.Version,
		"loaded_at": snap.LoadedAt,
		"presets":   snap.Presets,
	})
}

func (s *Server) handlePresetRun(c *gin.Context) {
	if s.presets == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "preset registry 未启用"})
		return
	}
	id := c.Param("id")
	preset, ok := s.presets.Preset(id)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown preset: " + id})
		return
	}
	overrides := map[string]any{}
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&overrides); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}
	cfg, err := preset.BuildConfig(s.svc.Defaults(), overrides)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	run, err := s.svc.SubmitConfig(cfg)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"run": run})
}

// requestLogger 记录接口调用，便于追踪提交与轮询。
func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		method := c.Request.Method
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery
		client := c.ClientIP()
		c.Next()
		dur := time.Since(start)
		status := c.Writer.Status()
		fullPath := path
		if query != "" {
			fullPath = path + "?" + query
		}
		logger.Debugf("HTTP %s %s status=%d ip=%s dur=%s", method, fullPath, status, client, dur)
	}
}

// Start 启动 HTTP 服务，直到 ctx 取消或出现错误。
func (s *Server) Start(ctx context.Context) error {
	if s == nil {
		return nil
	}
	srv := &http.Server{Addr: s.addr, Handler: s.router}
	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		shCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shCtx)
		return nil
	case err := <-errCh:
		return err
	}
}
