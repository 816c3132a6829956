package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"sharexp/engagement"
	"sharexp/feeds"
	"sharexp/graph"
	"sharexp/monitoring/middleware"
	"sharexp/notifications"
	"sharexp/presence"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
)

const shutdownTimeout = 30 * time.Second

type Server struct {
	graph      *graph.Graph
	ledger     *engagement.Ledger
	dispatcher *notifications.Dispatcher
	feeds      *feeds.Assembler
	registry   *presence.Registry
	hub        *presence.Hub
	jwtSecret  []byte
}

func NewServer(
	socialGraph *graph.Graph,
	ledger *engagement.Ledger,
	dispatcher *notifications.Dispatcher,
	assembler *feeds.Assembler,
	registry *presence.Registry,
	hub *presence.Hub,
	jwtSecret string,
) *Server {
	return &Server{
		graph:      socialGraph,
		ledger:     ledger,
		dispatcher: dispatcher,
		feeds:      assembler,
		registry:   registry,
		hub:        hub,
		jwtSecret:  []byte(jwtSecret),
	}
}

func (s *Server) Router() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())

	router.GET("/health", s.getHealth)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := router.Group("/api", requireIdentity(s.jwtSecret))

	api.POST("/follow/:id", s.postFollow)
	api.GET("/userprofile/:id", s.getUserProfile)

	api.POST("/posts", s.postPost)
	api.DELETE("/posts/:id", s.deletePost)
	api.GET("/posts/user/:id", s.getUserPosts)
	api.POST("/posts/:id/like", s.postLike)
	api.DELETE("/posts/:id/like", s.deleteLike)
	api.GET("/posts/:id/like-status", s.getLikeStatus)
	api.POST("/posts/:id/comments", s.postComment)
	api.POST("/posts/:id/actions", s.postAction)

	api.GET("/notifications/all", s.getAllNotifications)
	api.GET("/notifications/unread", s.getUnreadNotifications)
	api.GET("/notifications/count", s.getUnreadCount)
	api.PATCH("/notifications/mark-read", s.patchMarkRead)

	api.GET("/following", s.getFollowingFeed)

	api.GET("/ws", s.getWebsocket)

	return router
}

// Run serves until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, port string) error {
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           middleware.NewServerMiddleware(s.Router()),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	errs := make(chan error, 1)
	go func() {
		log.Infof("Starting HTTP server on port %s", port)
		errs <- srv.ListenAndServe()
	}()

	select {
	case err := <-errs:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	log.Info("Shutting down HTTP server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	log.Info("HTTP server stopped")
	return nil
}
