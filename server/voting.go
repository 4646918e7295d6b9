package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"gorm.io/gorm"

	"github.com/ysocial/yserver/config"
	"github.com/ysocial/yserver/models"
)

type CastVoteRequest struct {
	AccountID   uint   `json:"user_id"`
	ContentType string `json:"content_type"`
	ContentID   uint   `json:"content_id"`
	Preference  string `json:"preference"`
	Round       *int64 `json:"round"`
}

type VoteView struct {
	ID          uint   `json:"id"`
	AccountID   uint   `json:"user_id"`
	ContentType string `json:"content_type"`
	ContentID   uint   `json:"content_id"`
	Preference  string `json:"preference"`
	Round       int64  `json:"round"`
}

// HandleCastVote records a preference for a content target. An account
// holds at most one vote per target; re-casting replaces the previous
// preference in place.
func (s *Server) HandleCastVote(c echo.Context) error {
	if err := s.requireModule(config.ModuleVoting); err != nil {
		return err
	}
	var body CastVoteRequest
	if err := c.Bind(&body); err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidInput, err)
	}
	out, err := s.castVote(c.Request().Context(), &body)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, out)
}

func (s *Server) castVote(ctx context.Context, body *CastVoteRequest) (*VoteView, error) {
	if body.ContentType == "" || body.Preference == "" {
		return nil, fmt.Errorf("%w: content_type and preference are required", ErrInvalidInput)
	}

	var out *VoteView
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := getActiveAccount(tx, body.AccountID); err != nil {
			return err
		}
		round, err := resolveRound(tx, body.Round)
		if err != nil {
			return err
		}

		var vote models.Vote
		err = tx.First(&vote, "account_id = ? AND content_type = ? AND content_id = ?",
			body.AccountID, body.ContentType, body.ContentID).Error
		switch {
		case err == nil:
			vote.Preference = body.Preference
			vote.Round = round
			if err := tx.Save(&vote).Error; err != nil {
				return err
			}
		case errors.Is(err, gorm.ErrRecordNotFound):
			vote = models.Vote{
				AccountID:   body.AccountID,
				ContentType: body.ContentType,
				ContentID:   body.ContentID,
				Preference:  body.Preference,
				Round:       round,
			}
			if err := tx.Create(&vote).Error; err != nil {
				return err
			}
		default:
			return err
		}

		out = &VoteView{
			ID:          vote.ID,
			AccountID:   vote.AccountID,
			ContentType: vote.ContentType,
			ContentID:   vote.ContentID,
			Preference:  vote.Preference,
			Round:       vote.Round,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

type TallyView struct {
	ContentType string `json:"content_type"`
	ContentID   uint   `json:"content_id"`
	Preference  string `json:"preference"`
	Count       int64  `json:"count"`
}

func (s *Server) HandleGetTallies(c echo.Context) error {
	if err := s.requireModule(config.ModuleVoting); err != nil {
		return err
	}

	q := s.db.WithContext(c.Request().Context()).Model(&models.Vote{})
	if ct := c.QueryParam("content_type"); ct != "" {
		q = q.Where("content_type = ?", ct)
	}

	var out []TallyView
	if err := q.
		Select("content_type, content_id, preference, COUNT(*) as count").
		Group("content_type").Group("content_id").Group("preference").
		Order("content_type asc").Order("content_id asc").Order("preference asc").
		Scan(&out).Error; err != nil {
		return err
	}
	if out == nil {
		out = []TallyView{}
	}
	return c.JSON(http.StatusOK, out)
}
