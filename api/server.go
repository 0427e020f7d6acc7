// Package api exposes the simulation and factor pipelines over HTTP,
// plus a WebSocket endpoint for progress events.
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"stocklab/event"
)

// Server HTTP服务器
type Server struct {
	engine *gin.Engine
	server *http.Server
	log    zerolog.Logger
}

// NewServer 创建服务器
func NewServer(port int, h *Handler, hub *event.Hub, log zerolog.Logger) *Server {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(corsMiddleware())
	engine.Use(loggerMiddleware(log))

	s := &Server{
		engine: engine,
		log:    log,
		server: &http.Server{
			Addr:    fmt.Sprintf(":%d", port),
			Handler: engine,
		},
	}

	s.setupRoutes(h, hub)
	return s
}

// setupRoutes 设置路由
func (s *Server) setupRoutes(h *Handler, hub *event.Hub) {
	api := s.engine.Group("/api")
	{
		// 回测
		api.POST("/backtest", h.Backtest)

		// 因子
		api.POST("/factor/compute", h.ComputeFactor)
		api.GET("/factors", h.ListFactors)

		// 行情数据更新与实时报价
		api.POST("/data/update", h.UpdateData)
		api.POST("/data/append", h.AppendDaily)
		api.GET("/quotes", h.Quotes)

		// 运行时配置
		api.GET("/config", h.GetConfig)
		api.POST("/config", h.SetConfig)
	}

	// 进度与错误事件推送
	if hub != nil {
		s.engine.GET("/ws", gin.WrapF(hub.ServeWS))
	}

	// 健康检查
	s.engine.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
}

// Start 启动服务器
func (s *Server) Start() error {
	s.log.Info().Str("addr", s.server.Addr).Msg("HTTP 服务启动")
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown 优雅关闭服务器
func (s *Server) Shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.server.Shutdown(ctx)
}

// loggerMiddleware 日志中间件
func loggerMiddleware(log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		log.Info().
			Str("method", c.Request.Method).
			Str("path", path).
			Int("status", c.Writer.Status()).
			Dur("latency", time.Since(start)).
			Msg("request")
	}
}

// corsMiddleware CORS中间件
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}
