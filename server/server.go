// Package server hosts the HTTP/JSON API of the simulated microblogging
// platform. One Server owns one experiment database; the database target
// is fixed at construction and never re-pointed at runtime.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"gorm.io/gorm"

	"github.com/ysocial/yserver/config"
	"github.com/ysocial/yserver/models"
	"github.com/ysocial/yserver/perspective"
	"github.com/ysocial/yserver/sentiment"
)

type Server struct {
	db        *gorm.DB
	cfg       *config.Config
	sentiment *sentiment.Analyzer
	toxicity  *perspective.Client
	echo      *echo.Echo

	resetLk sync.Mutex

	log *slog.Logger
}

// serverListenerBootTimeout is how long to wait for the requested server
// socket to become available for use.
const serverListenerBootTimeout = 5 * time.Second

func NewServer(db *gorm.DB, cfg *config.Config) (*Server, error) {
	if err := db.AutoMigrate(models.All()...); err != nil {
		return nil, fmt.Errorf("migrating schema: %w", err)
	}

	analyzer, err := sentiment.NewAnalyzer()
	if err != nil {
		return nil, err
	}

	s := &Server{
		db:        db,
		cfg:       cfg,
		sentiment: analyzer,
		toxicity:  perspective.NewClient(cfg.PerspectiveAPIKey, 4),
		log:       slog.Default().With("system", "yserver", "experiment", cfg.Name),
	}

	return s, nil
}

func (s *Server) RunAPI(listen string) error {
	var lc net.ListenConfig
	ctx, cancel := context.WithTimeout(context.Background(), serverListenerBootTimeout)
	defer cancel()
	li, err := lc.Listen(ctx, "tcp", listen)
	if err != nil {
		return fmt.Errorf("could not listen on %s: %w", listen, err)
	}
	return s.RunAPIWithListener(li)
}

func (s *Server) RunAPIWithListener(listen net.Listener) error {
	e := echo.New()
	s.echo = e
	e.HideBanner = true
	e.Use(middleware.Recover())
	e.Use(middleware.LoggerWithConfig(middleware.LoggerConfig{
		Format: "method=${method} uri=${uri} status=${status} latency=${latency_human}\n",
	}))
	e.Use(middleware.CORS())

	e.HTTPErrorHandler = s.errorHandler

	e.GET("/_health", s.HandleHealthCheck)

	e.POST("/accounts", s.HandleRegisterAccount)
	e.GET("/accounts/:id", s.HandleGetAccount)
	e.GET("/accounts/handle/:handle", s.HandleGetAccountByHandle)
	e.POST("/accounts/:id", s.HandleUpdateAccount)
	e.DELETE("/accounts/:id", s.HandleDeactivateAccount)
	e.GET("/accounts/:id/posts", s.HandleGetAccountPosts)
	e.GET("/accounts/:id/timeline", s.HandleGetTimeline)
	e.GET("/accounts/:id/mentions", s.HandleGetMention)
	e.GET("/accounts/:id/followers", s.HandleGetFollowers)
	e.GET("/accounts/:id/following", s.HandleGetFollowing)
	e.GET("/accounts/:id/suggestions", s.HandleGetFollowSuggestions)

	e.POST("/posts", s.HandleCreatePost)
	e.GET("/posts", s.HandleGetPostsByRound)
	e.GET("/posts/search", s.HandleSearchPosts)
	e.GET("/posts/:id", s.HandleGetPost)
	e.DELETE("/posts/:id", s.HandleDeletePost)
	e.GET("/posts/:id/thread", s.HandleGetThread)
	e.GET("/posts/:id/article", s.HandleGetPostArticle)
	e.POST("/posts/:id/reactions", s.HandleCreateReaction)
	e.POST("/posts/:id/share", s.HandleSharePost)
	e.POST("/feed", s.HandleReadFeed)

	e.POST("/follows", s.HandleFollow)
	e.DELETE("/follows", s.HandleUnfollow)

	e.POST("/votes", s.HandleCastVote)
	e.GET("/votes/tallies", s.HandleGetTallies)

	e.POST("/news", s.HandleCommentNews)
	e.GET("/articles", s.HandleGetArticleByTitle)
	e.GET("/articles/:id", s.HandleGetArticle)
	e.POST("/images", s.HandleCommentImage)

	e.GET("/time", s.HandleGetTime)
	e.POST("/time", s.HandleAdvanceTime)

	e.POST("/reset", s.HandleReset)

	s.log.Info("starting API server", "addr", listen.Addr().String())
	e.Listener = listen
	return e.Start("")
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.echo == nil {
		return nil
	}
	return s.echo.Shutdown(ctx)
}

func (s *Server) HandleHealthCheck(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) requireModule(name string) error {
	if !s.cfg.HasModule(name) {
		return fmt.Errorf("%q: %w", name, ErrModuleDisabled)
	}
	return nil
}

func paramID(c echo.Context) (uint, error) {
	raw := c.Param("id")
	id, err := strconv.ParseUint(raw, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("%w: bad id %q", ErrInvalidInput, raw)
	}
	return uint(id), nil
}

func getAccount(tx *gorm.DB, id uint) (*models.Account, error) {
	var acc models.Account
	if err := tx.First(&acc, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("account %d: %w", id, ErrNotFound)
		}
		return nil, err
	}
	return &acc, nil
}

func getActiveAccount(tx *gorm.DB, id uint) (*models.Account, error) {
	acc, err := getAccount(tx, id)
	if err != nil {
		return nil, err
	}
	if !acc.Active {
		return nil, fmt.Errorf("%w: account %d is deactivated", ErrInvalidInput, id)
	}
	return acc, nil
}

func getPost(tx *gorm.DB, id uint) (*models.Post, error) {
	var post models.Post
	if err := tx.First(&post, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("post %d: %w", id, ErrNotFound)
		}
		return nil, err
	}
	return &post, nil
}
