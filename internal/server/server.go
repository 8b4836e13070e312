package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"cdr.dev/slog"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/xerrors"

	"github.com/ai-gateway/chat-gateway/internal/gateway"
)

type Options struct {
	Address string
	Gateway *gateway.Gateway
	Logger  slog.Logger
	// Gatherer backs /metrics. Nil disables the endpoint.
	Gatherer prometheus.Gatherer
}

type Server struct {
	addr     string
	engine   *gin.Engine
	gateway  *gateway.Gateway
	log      slog.Logger
	gatherer prometheus.Gatherer
}

func New(opts Options) *Server {
	r := gin.New()
	srv := &Server{
		addr:     opts.Address,
		engine:   r,
		gateway:  opts.Gateway,
		log:      opts.Logger,
		gatherer: opts.Gatherer,
	}
	r.Use(srv.logRequests(), srv.recover())
	srv.registerRoutes()
	return srv
}

func (s *Server) registerRoutes() {
	s.engine.GET("/healthz", s.healthz)
	if s.gatherer != nil {
		s.engine.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{})))
	}

	api := s.engine.Group("/api")
	api.POST("/auth/login", s.login)
	api.GET("/chats", s.listChats)
	api.POST("/chats", s.createChat)
	api.POST("/chats/message", s.newChatMessage)
	api.POST("/chats/:chat_id", s.sendMessage)
	api.GET("/chats/:chat_id", s.getChat)
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Start serves until ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	s.log.Info(ctx, "listening", slog.F("address", s.addr))
	err := srv.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	if err != nil {
		return xerrors.Errorf("serve %s: %w", s.addr, err)
	}
	return nil
}

type loginRequest struct {
	SessionKey string `json:"sessionKey"`
}

type messageRequest struct {
	Message   string `json:"message"`
	ProjectID string `json:"project_id"`
}

// bind decodes the JSON body into v. A missing or malformed body leaves v
// zero so that required-field checks report it.
func bind(c *gin.Context, v any) {
	_ = c.ShouldBindJSON(v)
}

func (s *Server) healthz(c *gin.Context) {
	c.JSON(http.StatusOK, envelope{Status: statusSuccess})
}

func (s *Server) login(c *gin.Context) {
	var req loginRequest
	bind(c, &req)
	res, err := s.gateway.Login(c.Request.Context(), req.SessionKey)
	if err != nil {
		fail(c, err)
		return
	}
	successMessage(c, "Successfully authenticated", res)
}

func (s *Server) listChats(c *gin.Context) {
	chats, err := s.gateway.ListChats(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	success(c, chats)
}

func (s *Server) createChat(c *gin.Context) {
	chat, err := s.gateway.CreateChat(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	success(c, chat)
}

func (s *Server) newChatMessage(c *gin.Context) {
	var req messageRequest
	bind(c, &req)
	res, err := s.gateway.NewChatMessage(c.Request.Context(), req.Message, req.ProjectID)
	if err != nil {
		fail(c, err)
		return
	}
	success(c, res)
}

func (s *Server) sendMessage(c *gin.Context) {
	var req messageRequest
	bind(c, &req)
	res, err := s.gateway.SendMessage(c.Request.Context(), c.Param("chat_id"), req.Message)
	if err != nil {
		fail(c, err)
		return
	}
	success(c, res)
}

func (s *Server) getChat(c *gin.Context) {
	chat, err := s.gateway.GetChat(c.Request.Context(), c.Param("chat_id"))
	if err != nil {
		fail(c, err)
		return
	}
	success(c, chat)
}

func (s *Server) logRequests() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.log.Debug(c.Request.Context(), "request handled",
			slog.F("method", c.Request.Method),
			slog.F("path", c.Request.URL.Path),
			slog.F("status", c.Writer.Status()),
			slog.F("latency", time.Since(start)))
	}
}

func (s *Server) recover() gin.HandlerFunc {
	return gin.CustomRecovery(func(c *gin.Context, recovered any) {
		s.log.Error(c.Request.Context(), "handler panicked",
			slog.F("path", c.Request.URL.Path),
			slog.F("panic", recovered))
		c.AbortWithStatusJSON(http.StatusInternalServerError, envelope{
			Status:  statusError,
			Message: fmt.Sprint(recovered),
		})
	})
}
