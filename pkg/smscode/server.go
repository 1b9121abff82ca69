package smscode

import (
	"context"
	"errors"
	"net"
	"net/http"
	"regexp"
	"time"

	"github.com/gin-gonic/gin"

	"xqcrawler/pkg/logger"
)

var (
	phonePattern = regexp.MustCompile(`^\+?\d{6,15}$`)
	codePattern  = regexp.MustCompile(`^\d{4,8}$`)
)

type codeRequest struct {
	Phone string `json:"phone" binding:"required"`
	Code  string `json:"code" binding:"required"`
}

// Server accepts SMS codes over HTTP.
type Server struct {
	cache  *Cache
	log    logger.Logger
	engine *gin.Engine
}

// NewServer builds the routes. It does not listen until Start.
func NewServer(cache *Cache, log logger.Logger) *Server {
	gin.SetMode(gin.ReleaseMode)
	s := &Server{cache: cache, log: log, engine: gin.New()}
	s.engine.Use(gin.Recovery())
	s.engine.GET("/healthz", s.health)
	s.engine.POST("/sms/code", s.receive)
	return s
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler { return s.engine }

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) receive(c *gin.Context) {
	var req codeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "phone and code are required"})
		return
	}
	if !phonePattern.MatchString(req.Phone) || !codePattern.MatchString(req.Code) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "malformed phone or code"})
		return
	}

	s.cache.Put(req.Phone, req.Code)
	s.log.WithField("key", Key(req.Phone)).Info("SMS code received")
	c.JSON(http.StatusAccepted, gin.H{"status": "accepted"})
}

// Start listens on addr until ctx is done, then shuts down gracefully. It
// returns once the listener is bound so callers can rely on it.
func (s *Server) Start(ctx context.Context, addr string) (<-chan error, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}

	srv := &http.Server{Handler: s.engine, ReadHeaderTimeout: 5 * time.Second}
	done := make(chan error, 1)

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	go func() {
		err := srv.Serve(ln)
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
		logger.LogComponentStop(s.log, "sms-server", "shutdown")
		done <- err
		close(done)
	}()

	logger.LogComponentStart(s.log, "sms-server", map[string]interface{}{"addr": ln.Addr().String()})
	return done, nil
}
