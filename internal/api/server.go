package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/yourusername/camgate/internal/capture"
	"github.com/yourusername/camgate/internal/channel"
	"github.com/yourusername/camgate/internal/decoder"
	"github.com/yourusername/camgate/internal/gateway"
	"go.uber.org/zap"
)

// Gateway는 API가 사용하는 게이트웨이 연산입니다
type Gateway interface {
	StartChannels(specs []gateway.ChannelSpec) []gateway.StartResult
	StopChannel(port int) error
	Poll(port int) (string, bool, error)
	Capture(ctx context.Context, req capture.Request, maxResultSize int) (capture.Result, error)
	Channels() []channel.Info
}

// Server는 HTTP API 서버입니다
type Server struct {
	logger     *zap.Logger
	httpServer *http.Server
	router     *gin.Engine
	port       int

	gateway       Gateway
	maxResultSize int

	// 핸들러
	healthHandler    func() map[string]interface{}
	metricsHandler   http.Handler
	websocketHandler func(w http.ResponseWriter, r *http.Request, port int)
}

// ServerConfig는 API 서버 설정
type ServerConfig struct {
	Port          int
	Production    bool
	Logger        *zap.Logger
	Gateway       Gateway
	MaxResultSize int // capture 요청에 크기가 없을 때 사용

	HealthHandler    func() map[string]interface{}
	MetricsPath      string
	MetricsHandler   http.Handler // nil이면 메트릭 라우트 없음
	WebSocketHandler func(w http.ResponseWriter, r *http.Request, port int)
}

// channelRequest는 채널 시작 요청 항목
type channelRequest struct {
	Port int    `json:"port"`
	Type string `json:"type"`
}

// startRequest는 단일 채널 또는 채널 목록을 받습니다
type startRequest struct {
	channelRequest
	Channels []channelRequest `json:"channels"`
}

type startResult struct {
	Port   int    `json:"port"`
	Type   string `json:"type"`
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

type captureRequest struct {
	IP            string `json:"ip"`
	Username      string `json:"username"`
	Password      string `json:"password"`
	ExtraParam    string `json:"extra_param"`
	Type          string `json:"type"`
	MaxResultSize int    `json:"max_result_size"`
}

// NewServer는 새로운 API 서버를 생성합니다
func NewServer(config ServerConfig) *Server {
	if !config.Production {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	if config.Logger == nil {
		config.Logger = zap.NewNop()
	}
	if config.MetricsPath == "" {
		config.MetricsPath = "/metrics"
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(corsMiddleware())
	router.Use(loggerMiddleware(config.Logger))

	server := &Server{
		logger:           config.Logger,
		router:           router,
		port:             config.Port,
		gateway:          config.Gateway,
		maxResultSize:    config.MaxResultSize,
		healthHandler:    config.HealthHandler,
		metricsHandler:   config.MetricsHandler,
		websocketHandler: config.WebSocketHandler,
	}

	server.setupRoutes(config.MetricsPath)

	return server
}

// Handler는 라우터를 반환합니다 (테스트용)
func (s *Server) Handler() http.Handler {
	return s.router
}

// setupRoutes는 라우트를 설정합니다
func (s *Server) setupRoutes(metricsPath string) {
	// Health check
	s.router.GET("/health", s.handleHealth)

	// API v1
	v1 := s.router.Group("/api/v1")
	{
		v1.GET("/channels", s.handleChannels)
		v1.POST("/channels", s.handleStartChannels)
		v1.DELETE("/channels/:port", s.handleStopChannel)
		v1.GET("/channels/:port/latest", s.handlePoll)
		v1.POST("/capture", s.handleCapture)
	}

	if s.metricsHandler != nil {
		s.router.GET(metricsPath, gin.WrapH(s.metricsHandler))
	}

	// 채널 결과 스트림
	if s.websocketHandler != nil {
		s.router.GET("/ws/channels/:port", s.handleWebSocket)
	}
}

// Start는 API 서버를 시작합니다
func (s *Server) Start() error {
	addr := fmt.Sprintf(":%d", s.port)

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	s.logger.Info("Starting API server",
		zap.String("addr", addr),
	)

	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("API server error", zap.Error(err))
		}
	}()

	return nil
}

// Stop은 API 서버를 종료합니다
func (s *Server) Stop() error {
	s.logger.Info("Stopping API server")

	if s.httpServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.httpServer.Shutdown(ctx)
	}

	return nil
}

// handleHealth는 헬스 체크를 처리합니다
func (s *Server) handleHealth(c *gin.Context) {
	var health map[string]interface{}

	if s.healthHandler != nil {
		health = s.healthHandler()
	} else {
		health = map[string]interface{}{
			"status": "ok",
			"time":   time.Now().UTC(),
		}
	}

	c.JSON(http.StatusOK, health)
}

// handleChannels는 채널 목록을 반환합니다
func (s *Server) handleChannels(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"channels": s.gateway.Channels(),
	})
}

// handleStartChannels는 채널을 시작합니다. 일부 실패 시 롤백하지 않고 207을 반환합니다.
func (s *Server) handleStartChannels(c *gin.Context) {
	var req startRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
		return
	}

	items := req.Channels
	if len(items) == 0 {
		if req.Port == 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "no channels given"})
			return
		}
		items = []channelRequest{req.channelRequest}
	}

	specs := make([]gateway.ChannelSpec, len(items))
	for i, item := range items {
		specs[i] = gateway.ChannelSpec{Port: item.Port, Type: decoder.ParseType(item.Type)}
	}

	results := s.gateway.StartChannels(specs)

	status := http.StatusCreated
	out := make([]startResult, len(results))
	for i, r := range results {
		out[i] = startResult{Port: r.Spec.Port, Type: r.Spec.Type.String(), Status: "started"}
		if r.Err != nil {
			out[i].Status = startErrorCode(r.Err)
			out[i].Error = r.Err.Error()
			status = http.StatusMultiStatus
		}
	}

	c.JSON(status, gin.H{"results": out})
}

// handleStopChannel은 채널을 중지합니다
func (s *Server) handleStopChannel(c *gin.Context) {
	port, ok := portParam(c)
	if !ok {
		return
	}

	if err := s.gateway.StopChannel(port); err != nil {
		s.channelError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

// handlePoll은 채널의 최신 결과를 읽고 비웁니다. 새 결과가 없으면 204.
func (s *Server) handlePoll(c *gin.Context) {
	port, ok := portParam(c)
	if !ok {
		return
	}

	text, ok, err := s.gateway.Poll(port)
	if err != nil {
		s.channelError(c, err)
		return
	}
	if !ok {
		c.Status(http.StatusNoContent)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"port": port,
		"text": text,
	})
}

// handleCapture는 카메라에 동기 조회를 수행합니다
func (s *Server) handleCapture(c *gin.Context) {
	var req captureRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
		return
	}

	maxResultSize := req.MaxResultSize
	if maxResultSize <= 0 {
		maxResultSize = s.maxResultSize
	}

	res, err := s.gateway.Capture(c.Request.Context(), capture.Request{
		IP:         req.IP,
		Username:   req.Username,
		Password:   req.Password,
		ExtraParam: req.ExtraParam,
		Type:       decoder.Type(req.Type),
	}, maxResultSize)

	switch {
	case err == nil, errors.Is(err, capture.ErrTruncated) && res.Length > 0:
		c.JSON(http.StatusOK, res)
	default:
		c.JSON(captureStatus(err), gin.H{
			"error":     err.Error(),
			"kind":      capture.Outcome(err),
			"truncated": res.Truncated,
		})
	}
}

func (s *Server) handleWebSocket(c *gin.Context) {
	port, ok := portParam(c)
	if !ok {
		return
	}

	// 업그레이드 전에 채널 존재 여부 확인
	if !s.hasChannel(port) {
		c.JSON(http.StatusNotFound, gin.H{"error": fmt.Sprintf("channel not found: port %d", port)})
		return
	}

	s.websocketHandler(c.Writer, c.Request, port)
}

func (s *Server) hasChannel(port int) bool {
	for _, info := range s.gateway.Channels() {
		if info.Port == port {
			return true
		}
	}
	return false
}

func (s *Server) channelError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, channel.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	default:
		s.logger.Error("Channel operation failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}

func portParam(c *gin.Context) (int, bool) {
	port, err := strconv.Atoi(c.Param("port"))
	if err != nil || port < 1 || port > 65535 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid port: " + c.Param("port")})
		return 0, false
	}
	return port, true
}

func startErrorCode(err error) string {
	switch {
	case errors.Is(err, channel.ErrAlreadyBound):
		return "already_bound"
	case errors.Is(err, channel.ErrBindFailed):
		return "bind_failed"
	case errors.Is(err, channel.ErrInvalidPort):
		return "invalid_port"
	case errors.Is(err, channel.ErrUnknownType):
		return "unknown_type"
	default:
		return "error"
	}
}

func captureStatus(err error) int {
	switch {
	case errors.Is(err, capture.ErrTimeout):
		return http.StatusGatewayTimeout
	case errors.Is(err, capture.ErrDecodeFailed):
		return http.StatusUnprocessableEntity
	case errors.Is(err, capture.ErrConnectionFailed),
		errors.Is(err, capture.ErrAuthFailed),
		errors.Is(err, capture.ErrUnexpectedStatus),
		errors.Is(err, capture.ErrTruncated):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// corsMiddleware는 CORS 미들웨어입니다
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization, accept, origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, DELETE")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	}
}

// loggerMiddleware는 로깅 미들웨어입니다
func loggerMiddleware(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery

		c.Next()

		latency := time.Since(start)

		logger.Info("HTTP request",
			zap.String("method", c.Request.Method),
			zap.String("path", path),
			zap.String("query", query),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", latency),
			zap.String("ip", c.ClientIP()),
		)
	}
}
