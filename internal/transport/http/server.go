package statushttp

import (
	"context"
	"errors"
	"net/http"
	"time"

	"corral/internal/account"
	"corral/internal/bracket"
	"corral/internal/ledger"
	"corral/internal/logger"
	"corral/internal/risk"

	"github.com/gin-gonic/gin"
)

// Server exposes a read-only status API over the live in-memory state.
// All writes go through the coordinator; these endpoints only snapshot.
type Server struct {
	addr   string
	router *gin.Engine
}

type ServerConfig struct {
	Addr     string
	Accounts *account.Registry
	Book     *ledger.Ledger
	Gate     *risk.Gate
	Brackets *bracket.Controller
}

func NewServer(cfg ServerConfig) (*Server, error) {
	if cfg.Book == nil || cfg.Brackets == nil || cfg.Gate == nil {
		return nil, errors.New("status http server requires ledger, gate and brackets")
	}
	if cfg.Addr == "" {
		cfg.Addr = ":9992"
	}
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery(), requestLogger())

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := router.Group("/api")
	api.GET("/accounts", func(c *gin.Context) {
		var list []account.Account
		if cfg.Accounts != nil {
			list = cfg.Accounts.Accounts()
		}
		c.JSON(http.StatusOK, gin.H{"accounts": list})
	})
	api.GET("/orders", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"orders": cfg.Book.Orders()})
	})
	api.GET("/orders/:id", func(c *gin.Context) {
		o, ok := cfg.Book.Get(c.Param("id"))
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{"error": "order not found"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"order": o, "avg_fill_price": o.AvgFillPrice()})
	})
	api.GET("/brackets", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"brackets": cfg.Brackets.Snapshots()})
	})
	api.GET("/risk", func(c *gin.Context) {
		c.JSON(http.StatusOK, cfg.Gate.Snapshot())
	})

	return &Server{addr: cfg.Addr, router: router}, nil
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		method := c.Request.Method
		path := c.Request.URL.Path
		c.Next()
		logger.Debugf("HTTP %s %s status=%d ip=%s dur=%s",
			method, path, c.Writer.Status(), c.ClientIP(), time.Since(start))
	}
}

func (s *Server) Addr() string {
	if s == nil {
		return ""
	}
	return s.addr
}

// Start serves until ctx is cancelled or the listener fails.
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
