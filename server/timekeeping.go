package server

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"gorm.io/gorm"

	"github.com/ysocial/yserver/models"
)

const hoursPerDay = 24

type RoundView struct {
	ID   uint `json:"id"`
	Day  int  `json:"day"`
	Hour int  `json:"round"`
}

func roundView(r *models.Round) *RoundView {
	return &RoundView{ID: r.ID, Day: r.Day, Hour: r.Hour}
}

// currentRound returns the newest round row, lazily creating round zero on
// a fresh database.
func currentRound(tx *gorm.DB) (*models.Round, error) {
	var round models.Round
	err := tx.Order("id desc").First(&round).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		round = models.Round{Day: 0, Hour: 0}
		if err := tx.Create(&round).Error; err != nil {
			return nil, err
		}
		return &round, nil
	}
	if err != nil {
		return nil, err
	}
	return &round, nil
}

func (s *Server) HandleGetTime(c echo.Context) error {
	var out *RoundView
	err := s.db.WithContext(c.Request().Context()).Transaction(func(tx *gorm.DB) error {
		round, err := currentRound(tx)
		if err != nil {
			return err
		}
		out = roundView(round)
		return nil
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, out)
}

type AdvanceTimeRequest struct {
	Day  *int `json:"day"`
	Hour *int `json:"round"`
}

// HandleAdvanceTime steps the simulation clock. With an explicit day/hour
// the target must not precede the current round (the clock never rolls
// back); with an empty body the clock advances one hour.
func (s *Server) HandleAdvanceTime(c echo.Context) error {
	var body AdvanceTimeRequest
	if err := c.Bind(&body); err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidInput, err)
	}
	if (body.Day == nil) != (body.Hour == nil) {
		return fmt.Errorf("%w: day and round must be supplied together", ErrInvalidInput)
	}

	var out *RoundView
	err := s.db.WithContext(c.Request().Context()).Transaction(func(tx *gorm.DB) error {
		cur, err := currentRound(tx)
		if err != nil {
			return err
		}

		day, hour := cur.Day, cur.Hour+1
		if hour == hoursPerDay {
			day, hour = day+1, 0
		}
		if body.Day != nil {
			day, hour = *body.Day, *body.Hour
			if hour < 0 || hour >= hoursPerDay {
				return fmt.Errorf("%w: round %d out of range", ErrInvalidInput, hour)
			}
			if day < cur.Day || (day == cur.Day && hour < cur.Hour) {
				return fmt.Errorf("%w: cannot advance clock backwards to day=%d round=%d", ErrInvalidInput, day, hour)
			}
			if day == cur.Day && hour == cur.Hour {
				out = roundView(cur)
				return nil
			}
		}

		next := models.Round{Day: day, Hour: hour}
		if err := tx.Create(&next).Error; err != nil {
			return err
		}
		out = roundView(&next)
		return nil
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, out)
}
