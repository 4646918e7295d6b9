package server

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"net/http"
	"sort"
	"strconv"

	"github.com/labstack/echo/v4"
	"gorm.io/gorm"

	"github.com/ysocial/yserver/models"
)

const (
	SuggestRandom                 = "random"
	SuggestPreferentialAttachment = "preferential_attachment"
	SuggestCommonNeighbors        = "common_neighbors"
	SuggestJaccard                = "jaccard"
	SuggestAdamicAdar             = "adamic_adar"

	// matching-leaning candidates get their score scaled up when the
	// leaning bias is enabled
	leaningBiasMultiplier = 1.5
)

type FollowRequest struct {
	FollowerID uint   `json:"user_id"`
	FolloweeID uint   `json:"target_id"`
	Round      *int64 `json:"round"`
}

type FollowView struct {
	FollowerID uint  `json:"user_id"`
	FolloweeID uint  `json:"target_id"`
	Round      int64 `json:"round"`
}

func (s *Server) HandleFollow(c echo.Context) error {
	var body FollowRequest
	if err := c.Bind(&body); err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidInput, err)
	}
	out, err := s.follow(c.Request().Context(), &body)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, out)
}

func (s *Server) follow(ctx context.Context, body *FollowRequest) (*FollowView, error) {
	if body.FollowerID == body.FolloweeID {
		return nil, fmt.Errorf("account %d: %w", body.FollowerID, ErrSelfFollow)
	}

	var out *FollowView
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := getActiveAccount(tx, body.FollowerID); err != nil {
			return err
		}
		if _, err := getAccount(tx, body.FolloweeID); err != nil {
			return err
		}

		var existing models.Follow
		err := tx.First(&existing, "follower_id = ? AND followee_id = ?", body.FollowerID, body.FolloweeID).Error
		switch {
		case err == nil:
			return fmt.Errorf("%d -> %d: %w", body.FollowerID, body.FolloweeID, ErrAlreadyFollowing)
		case !errors.Is(err, gorm.ErrRecordNotFound):
			return err
		}

		round, err := resolveRound(tx, body.Round)
		if err != nil {
			return err
		}

		edge := models.Follow{
			FollowerID: body.FollowerID,
			FolloweeID: body.FolloweeID,
			Round:      round,
		}
		if err := tx.Create(&edge).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return fmt.Errorf("%d -> %d: %w", body.FollowerID, body.FolloweeID, ErrAlreadyFollowing)
			}
			return err
		}

		out = &FollowView{FollowerID: edge.FollowerID, FolloweeID: edge.FolloweeID, Round: edge.Round}
		return nil
	})
	if err != nil {
		return nil, err
	}

	followEventsCounter.WithLabelValues("follow").Inc()
	return out, nil
}

func (s *Server) HandleUnfollow(c echo.Context) error {
	var body FollowRequest
	if err := c.Bind(&body); err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidInput, err)
	}

	err := s.db.WithContext(c.Request().Context()).Transaction(func(tx *gorm.DB) error {
		if _, err := getActiveAccount(tx, body.FollowerID); err != nil {
			return err
		}
		if _, err := getAccount(tx, body.FolloweeID); err != nil {
			return err
		}

		var edge models.Follow
		err := tx.First(&edge, "follower_id = ? AND followee_id = ?", body.FollowerID, body.FolloweeID).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("%d -> %d: %w", body.FollowerID, body.FolloweeID, ErrNotFollowing)
		}
		if err != nil {
			return err
		}
		return tx.Delete(&edge).Error
	})
	if err != nil {
		return err
	}

	followEventsCounter.WithLabelValues("unfollow").Inc()
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

type FollowEdgeView struct {
	AccountID uint   `json:"id"`
	Handle    string `json:"handle"`
	Leaning   string `json:"leaning"`
	Round     int64  `json:"round"`
}

func (s *Server) HandleGetFollowers(c echo.Context) error {
	return s.listFollowEdges(c, "follows.followee_id", "follows.follower_id")
}

func (s *Server) HandleGetFollowing(c echo.Context) error {
	return s.listFollowEdges(c, "follows.follower_id", "follows.followee_id")
}

func (s *Server) listFollowEdges(c echo.Context, whereCol, joinCol string) error {
	id, err := paramID(c)
	if err != nil {
		return err
	}
	ctx := c.Request().Context()
	if _, err := getAccount(s.db.WithContext(ctx), id); err != nil {
		return err
	}

	var out []FollowEdgeView
	if err := s.db.WithContext(ctx).Model(&models.Follow{}).
		Select("accounts.id as account_id, accounts.handle, accounts.leaning, follows.round").
		Joins(fmt.Sprintf("JOIN accounts ON accounts.id = %s", joinCol)).
		Where(fmt.Sprintf("%s = ?", whereCol), id).
		Order("follows.id asc").
		Scan(&out).Error; err != nil {
		return err
	}
	if out == nil {
		out = []FollowEdgeView{}
	}
	return c.JSON(http.StatusOK, out)
}

func followeeIDs(tx *gorm.DB, accountID uint) ([]uint, error) {
	var ids []uint
	if err := tx.Model(&models.Follow{}).
		Where("follower_id = ?", accountID).
		Pluck("followee_id", &ids).Error; err != nil {
		return nil, err
	}
	return ids, nil
}

type SuggestionView struct {
	AccountID uint    `json:"id"`
	Handle    string  `json:"handle"`
	Leaning   string  `json:"leaning"`
	Score     float64 `json:"score"`
}

// HandleGetFollowSuggestions scores candidate accounts against the follow
// graph. The graph for an experiment comfortably fits in memory, so all
// edges are loaded and scored in-process rather than per-candidate SQL.
func (s *Server) HandleGetFollowSuggestions(c echo.Context) error {
	id, err := paramID(c)
	if err != nil {
		return err
	}

	mode := c.QueryParam("mode")
	if mode == "" {
		mode = SuggestCommonNeighbors
	}
	switch mode {
	case SuggestRandom, SuggestPreferentialAttachment, SuggestCommonNeighbors, SuggestJaccard, SuggestAdamicAdar:
	default:
		return fmt.Errorf("%w: unknown suggestion mode %q", ErrInvalidInput, mode)
	}
	leaningBias := false
	if raw := c.QueryParam("leaning_bias"); raw != "" {
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return fmt.Errorf("%w: bad leaning_bias", ErrInvalidInput)
		}
		leaningBias = b
	}
	limit := queryLimit(c)

	ctx := c.Request().Context()
	reader, err := getActiveAccount(s.db.WithContext(ctx), id)
	if err != nil {
		return err
	}

	var accounts []models.Account
	if err := s.db.WithContext(ctx).
		Where("active = ?", true).
		Find(&accounts).Error; err != nil {
		return err
	}
	var edges []models.Follow
	if err := s.db.WithContext(ctx).Find(&edges).Error; err != nil {
		return err
	}

	out := suggestFollows(reader, accounts, edges, mode, leaningBias, limit)
	return c.JSON(http.StatusOK, out)
}

func suggestFollows(reader *models.Account, accounts []models.Account, edges []models.Follow, mode string, leaningBias bool, limit int) []SuggestionView {
	followees := make(map[uint]map[uint]bool)
	followerCount := make(map[uint]int)
	for _, e := range edges {
		if followees[e.FollowerID] == nil {
			followees[e.FollowerID] = make(map[uint]bool)
		}
		followees[e.FollowerID][e.FolloweeID] = true
		followerCount[e.FolloweeID]++
	}

	mine := followees[reader.ID]
	var candidates []*models.Account
	for i := range accounts {
		acc := &accounts[i]
		if acc.ID == reader.ID || mine[acc.ID] {
			continue
		}
		candidates = append(candidates, acc)
	}

	score := func(cand *models.Account) float64 {
		switch mode {
		case SuggestRandom:
			return rand.Float64()
		case SuggestPreferentialAttachment:
			return float64(followerCount[cand.ID])
		case SuggestCommonNeighbors:
			return float64(commonNeighbors(mine, followees[cand.ID]))
		case SuggestJaccard:
			common := commonNeighbors(mine, followees[cand.ID])
			union := len(mine) + len(followees[cand.ID]) - common
			if union == 0 {
				return 0
			}
			return float64(common) / float64(union)
		case SuggestAdamicAdar:
			var sum float64
			for n := range mine {
				if followees[cand.ID][n] && followerCount[n] > 1 {
					sum += 1.0 / math.Log(float64(followerCount[n]))
				}
			}
			return sum
		}
		return 0
	}

	scored := make([]SuggestionView, 0, len(candidates))
	for _, cand := range candidates {
		sv := SuggestionView{
			AccountID: cand.ID,
			Handle:    cand.Handle,
			Leaning:   cand.Leaning,
			Score:     score(cand),
		}
		if leaningBias && cand.Leaning == reader.Leaning {
			sv.Score *= leaningBiasMultiplier
		}
		scored = append(scored, sv)
	}

	sort.Slice(scored, func(i, j int) bool {
		if scored[i].Score != scored[j].Score {
			return scored[i].Score > scored[j].Score
		}
		return scored[i].AccountID < scored[j].AccountID
	})
	if len(scored) > limit {
		scored = scored[:limit]
	}
	return scored
}

func commonNeighbors(a, b map[uint]bool) int {
	if len(b) < len(a) {
		a, b = b, a
	}
	n := 0
	for k := range a {
		if b[k] {
			n++
		}
	}
	return n
}
