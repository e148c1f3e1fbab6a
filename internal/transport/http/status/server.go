// Package statushttp 暴露只读的运行状态查询接口。
// 这里没有任何写路径：下单、改配置都不走 HTTP。
package statushttp

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"petrel/internal/execution"
	"petrel/internal/logger"
	"petrel/internal/profile"
	"petrel/internal/store"
	"petrel/internal/types"
)

// Query 状态服务对持久层的只读依赖面。
type Query interface {
	LoadState(ctx context.Context, symbol string) (types.PersistedState, error)
	RecentDecisions(ctx context.Context, symbol string, limit int) ([]store.DecisionRecord, error)
}

// ServerConfig 描述状态服务依赖。Profiles 可为 nil。
type ServerConfig struct {
	Addr     string
	Symbol   string
	Query    Query
	Account  execution.AccountSource
	Profiles *profile.Registry
}

// Server 最小化状态查询服务。
type Server struct {
	addr   string
	cfg    ServerConfig
	router *gin.Engine
}

// NewServer 构建状态服务。
func NewServer(cfg ServerConfig) (*Server, error) {
	if cfg.Query == nil {
		return nil, errors.New("status http server requires a query backend")
	}
	if cfg.Addr == "" {
		cfg.Addr = ":9991"
	}
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery(), requestLogger())

	s := &Server{addr: cfg.Addr, cfg: cfg, router: router}

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	api := router.Group("/api/status")
	api.GET("/state", s.handleState)
	api.GET("/decisions", s.handleDecisions)
	api.GET("/account", s.handleAccount)
	api.GET("/profiles", s.handleProfiles)

	return s, nil
}

func (s *Server) handleState(c *gin.Context) {
	st, err := s.cfg.Query.LoadState(c.Request.Context(), s.symbol(c))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, st)
}

func (s *Server) handleDecisions(c *gin.Context) {
	limit := 20
	if raw := c.Query("limit"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v <= 0 || v > 500 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit 必须是 1-500 的整数"})
			return
		}
		limit = v
	}
	recs, err := s.cfg.Query.RecentDecisions(c.Request.Context(), s.symbol(c), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"count": len(recs), "decisions": recs})
}

func (s *Server) handleAccount(c *gin.Context) {
	if s.cfg.Account == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "账户口径不可用"})
		return
	}
	m, err := s.cfg.Account.Metrics(c.Request.Context(), s.symbol(c))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, m)
}

func (s *Server) handleProfiles(c *gin.Context) {
	if s.cfg.Profiles == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "风险预设未启用"})
		return
	}
	c.JSON(http.StatusOK, s.cfg.Profiles.Snapshot())
}

func (s *Server) symbol(c *gin.Context) string {
	if sym := c.Query("symbol"); sym != "" {
		return sym
	}
	return s.cfg.Symbol
}

// Addr 返回监听地址。
func (s *Server) Addr() string {
	if s == nil {
		return ""
	}
	return s.addr
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
	}()
	logger.Infof("状态服务监听 %s", s.addr)
	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

// requestLogger 记录接口调用，便于追踪人工查询。
func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Debugf("HTTP %s %s status=%d ip=%s dur=%s",
			c.Request.Method, c.Request.URL.Path, c.Writer.Status(), c.ClientIP(), time.Since(start))
	}
}
