package server

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"
	"gorm.io/gorm"

	"github.com/ysocial/yserver/models"
)

const (
	defaultVisibilityRounds = 36
	defaultFollowersRatio   = 0.6

	FeedRChrono                    = "rchrono"
	FeedRChronoPopularity          = "rchrono_popularity"
	FeedRChronoFollowers           = "rchrono_followers"
	FeedRChronoFollowersPopularity = "rchrono_followers_popularity"
	FeedRandom                     = "random"
)

type ReadFeedRequest struct {
	AccountID        uint     `json:"user_id"`
	Limit            int      `json:"limit"`
	Mode             string   `json:"mode"`
	VisibilityRounds *int64   `json:"visibility_rounds"`
	FollowersRatio   *float64 `json:"followers_ratio"`
	ArticlesOnly     bool     `json:"article"`
}

// HandleReadFeed serves a page of recommended posts and records what was
// served in the recommendations audit table.
func (s *Server) HandleReadFeed(c echo.Context) error {
	var body ReadFeedRequest
	if err := c.Bind(&body); err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidInput, err)
	}
	out, err := s.readFeed(c.Request().Context(), &body)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, out)
}

func (s *Server) readFeed(ctx context.Context, body *ReadFeedRequest) ([]*PostView, error) {
	mode := body.Mode
	if mode == "" {
		mode = FeedRChrono
	}
	switch mode {
	case FeedRChrono, FeedRChronoPopularity, FeedRChronoFollowers, FeedRChronoFollowersPopularity, FeedRandom:
	default:
		return nil, fmt.Errorf("%w: unknown feed mode %q", ErrInvalidInput, mode)
	}

	limit := body.Limit
	if limit <= 0 || limit > 500 {
		limit = defaultPageSize
	}
	vrounds := int64(defaultVisibilityRounds)
	if body.VisibilityRounds != nil {
		vrounds = *body.VisibilityRounds
	}
	ratio := defaultFollowersRatio
	if body.FollowersRatio != nil {
		ratio = *body.FollowersRatio
	}
	if ratio < 0 || ratio > 1 {
		return nil, fmt.Errorf("%w: followers_ratio must be within [0,1]", ErrInvalidInput)
	}

	var posts []models.Post
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		reader, err := getActiveAccount(tx, body.AccountID)
		if err != nil {
			return err
		}
		round, err := currentRound(tx)
		if err != nil {
			return err
		}
		visibility := int64(round.ID) - vrounds

		base := func() *gorm.DB {
			q := tx.Model(&models.Post{}).
				Select("posts.*").
				Where("posts.round >= ?", visibility).
				Where("posts.account_id <> ?", reader.ID)
			if body.ArticlesOnly {
				q = q.Joins("JOIN accounts ON accounts.id = posts.account_id").
					Where("posts.article_id IS NOT NULL").
					Where("accounts.is_page = ?", true).
					Where("accounts.leaning = ?", reader.Leaning)
			}
			return q
		}

		switch mode {
		case FeedRChrono:
			err = base().Order("posts.id desc").Limit(limit).Find(&posts).Error
		case FeedRChronoPopularity:
			err = orderByPopularity(base()).Limit(limit).Find(&posts).Error
		case FeedRandom:
			err = base().Order("RANDOM()").Limit(limit).Find(&posts).Error
		case FeedRChronoFollowers, FeedRChronoFollowersPopularity:
			posts, err = s.splitFollowerFeed(tx, base, reader.ID, mode, limit, ratio)
		}
		if err != nil {
			return err
		}

		return s.recordRecommendation(tx, reader.ID, int64(round.ID), posts)
	})
	if err != nil {
		return nil, err
	}

	feedReadsCounter.WithLabelValues(mode).Inc()

	out := make([]*PostView, len(posts))
	for i := range posts {
		out[i] = postView(&posts[i])
	}
	return out, nil
}

// orderByPopularity ranks by reaction count, recency breaking ties.
func orderByPopularity(q *gorm.DB) *gorm.DB {
	return q.
		Joins("LEFT JOIN reactions ON reactions.post_id = posts.id").
		Group("posts.id").
		Order("COUNT(reactions.id) desc").
		Order("posts.id desc")
}

// splitFollowerFeed fills a ratio-sized slice of the page from followed
// accounts and the remainder from the rest of the network, newest first
// within each slice.
func (s *Server) splitFollowerFeed(tx *gorm.DB, base func() *gorm.DB, readerID uint, mode string, limit int, ratio float64) ([]models.Post, error) {
	followeeIDs, err := followeeIDs(tx, readerID)
	if err != nil {
		return nil, err
	}

	followedLimit := int(math.Ceil(float64(limit) * ratio))
	if followedLimit > limit {
		followedLimit = limit
	}

	order := func(q *gorm.DB) *gorm.DB {
		if mode == FeedRChronoFollowersPopularity {
			return orderByPopularity(q)
		}
		return q.Order("posts.id desc")
	}

	var followed []models.Post
	if followedLimit > 0 && len(followeeIDs) > 0 {
		if err := order(base().Where("posts.account_id IN ?", followeeIDs)).
			Limit(followedLimit).Find(&followed).Error; err != nil {
			return nil, err
		}
	}

	rest := limit - len(followed)
	var others []models.Post
	if rest > 0 {
		q := base()
		if len(followeeIDs) > 0 {
			q = q.Where("posts.account_id NOT IN ?", followeeIDs)
		}
		if err := order(q).Limit(rest).Find(&others).Error; err != nil {
			return nil, err
		}
	}

	return append(followed, others...), nil
}

func (s *Server) recordRecommendation(tx *gorm.DB, accountID uint, round int64, posts []models.Post) error {
	if len(posts) == 0 {
		return nil
	}
	ids := make([]string, len(posts))
	for i := range posts {
		ids[i] = strconv.FormatUint(uint64(posts[i].ID), 10)
	}
	rec := models.Recommendation{
		AccountID: accountID,
		PostIDs:   strings.Join(ids, "|"),
		Round:     round,
	}
	return tx.Create(&rec).Error
}
