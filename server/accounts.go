package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"gorm.io/gorm"

	"github.com/ysocial/yserver/models"
)

type RegisterAccountRequest struct {
	Handle         string `json:"handle"`
	Email          string `json:"email"`
	Leaning        string `json:"leaning"`
	Type           string `json:"type"`
	Age            int    `json:"age"`
	Openness       string `json:"oe"`
	Conscientious  string `json:"co"`
	Extraversion   string `json:"ex"`
	Agreeableness  string `json:"ag"`
	Neuroticism    string `json:"ne"`
	Language       string `json:"language"`
	Owner          string `json:"owner"`
	EducationLevel string `json:"education_level"`
	Gender         string `json:"gender"`
	Nationality    string `json:"nationality"`
	Profession     string `json:"profession"`
	JoinedRound    *int64 `json:"joined_on"`
	RoundActions   *int   `json:"round_actions"`
	DailyActivity  *int   `json:"daily_activity"`
	IsPage         bool   `json:"is_page"`
}

type AccountView struct {
	ID             uint   `json:"id"`
	Handle         string `json:"handle"`
	Email          string `json:"email"`
	Leaning        string `json:"leaning"`
	Type           string `json:"type"`
	Age            int    `json:"age"`
	Openness       string `json:"oe"`
	Conscientious  string `json:"co"`
	Extraversion   string `json:"ex"`
	Agreeableness  string `json:"ag"`
	Neuroticism    string `json:"ne"`
	RecsysType     string `json:"rec_sys"`
	FollowRecsys   string `json:"frec_sys"`
	Language       string `json:"language"`
	Owner          string `json:"owner"`
	EducationLevel string `json:"education_level"`
	Gender         string `json:"gender"`
	Nationality    string `json:"nationality"`
	Profession     string `json:"profession"`
	JoinedRound    int64  `json:"joined_on"`
	RoundActions   int    `json:"round_actions"`
	DailyActivity  int    `json:"daily_activity"`
	IsPage         bool   `json:"is_page"`
	Active         bool   `json:"active"`
	LeftRound      *int64 `json:"left_on,omitempty"`
}

func accountView(acc *models.Account) *AccountView {
	return &AccountView{
		ID:             acc.ID,
		Handle:         acc.Handle,
		Email:          acc.Email,
		Leaning:        acc.Leaning,
		Type:           acc.Type,
		Age:            acc.Age,
		Openness:       acc.Openness,
		Conscientious:  acc.Conscientious,
		Extraversion:   acc.Extraversion,
		Agreeableness:  acc.Agreeableness,
		Neuroticism:    acc.Neuroticism,
		RecsysType:     acc.RecsysType,
		FollowRecsys:   acc.FollowRecsysType,
		Language:       acc.Language,
		Owner:          acc.Owner,
		EducationLevel: acc.EducationLevel,
		Gender:         acc.Gender,
		Nationality:    acc.Nationality,
		Profession:     acc.Profession,
		JoinedRound:    acc.JoinedRound,
		RoundActions:   acc.RoundActions,
		DailyActivity:  acc.DailyActivity,
		IsPage:         acc.IsPage,
		Active:         acc.Active,
		LeftRound:      acc.LeftRound,
	}
}

func (s *Server) HandleRegisterAccount(c echo.Context) error {
	var body RegisterAccountRequest
	if err := c.Bind(&body); err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidInput, err)
	}
	out, err := s.registerAccount(c.Request().Context(), &body)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, out)
}

func (s *Server) registerAccount(ctx context.Context, body *RegisterAccountRequest) (*AccountView, error) {
	if body.Handle == "" {
		return nil, fmt.Errorf("%w: handle is required", ErrInvalidInput)
	}

	var out *AccountView
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing models.Account
		err := tx.First(&existing, "handle = ?", body.Handle).Error
		switch {
		case err == nil:
			return fmt.Errorf("%q: %w", body.Handle, ErrDuplicateHandle)
		case !errors.Is(err, gorm.ErrRecordNotFound):
			return err
		}

		joined := int64(0)
		if body.JoinedRound != nil {
			joined = *body.JoinedRound
		} else {
			round, err := currentRound(tx)
			if err != nil {
				return err
			}
			joined = int64(round.ID)
		}

		acc := models.Account{
			Handle:           body.Handle,
			Email:            body.Email,
			Leaning:          orDefault(body.Leaning, "neutral"),
			Type:             orDefault(body.Type, "user"),
			Age:              body.Age,
			Openness:         body.Openness,
			Conscientious:    body.Conscientious,
			Extraversion:     body.Extraversion,
			Agreeableness:    body.Agreeableness,
			Neuroticism:      body.Neuroticism,
			RecsysType:       "default",
			FollowRecsysType: "default",
			Language:         orDefault(body.Language, "en"),
			Owner:            body.Owner,
			EducationLevel:   body.EducationLevel,
			Gender:           body.Gender,
			Nationality:      body.Nationality,
			Profession:       body.Profession,
			JoinedRound:      joined,
			RoundActions:     orDefaultInt(body.RoundActions, 3),
			DailyActivity:    orDefaultInt(body.DailyActivity, 1),
			IsPage:           body.IsPage,
			Active:           true,
		}
		if err := tx.Create(&acc).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return fmt.Errorf("%q: %w", body.Handle, ErrDuplicateHandle)
			}
			return err
		}

		out = accountView(&acc)
		return nil
	})
	if err != nil {
		return nil, err
	}

	accountsRegisteredCounter.Inc()
	return out, nil
}

func (s *Server) HandleGetAccount(c echo.Context) error {
	id, err := paramID(c)
	if err != nil {
		return err
	}
	acc, err := getAccount(s.db.WithContext(c.Request().Context()), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, accountView(acc))
}

func (s *Server) HandleGetAccountByHandle(c echo.Context) error {
	handle := c.Param("handle")
	acc, err := s.getAccountByHandle(c.Request().Context(), handle)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, accountView(acc))
}

func (s *Server) getAccountByHandle(ctx context.Context, handle string) (*models.Account, error) {
	var acc models.Account
	if err := s.db.WithContext(ctx).First(&acc, "handle = ?", handle).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("account %q: %w", handle, ErrNotFound)
		}
		return nil, err
	}
	return &acc, nil
}

type UpdateAccountRequest struct {
	RecsysType    *string `json:"rec_sys"`
	FollowRecsys  *string `json:"frec_sys"`
	Language      *string `json:"language"`
	RoundActions  *int    `json:"round_actions"`
	DailyActivity *int    `json:"daily_activity"`
}

func (s *Server) HandleUpdateAccount(c echo.Context) error {
	id, err := paramID(c)
	if err != nil {
		return err
	}
	var body UpdateAccountRequest
	if err := c.Bind(&body); err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidInput, err)
	}
	out, err := s.updateAccount(c.Request().Context(), id, &body)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, out)
}

func (s *Server) updateAccount(ctx context.Context, id uint, body *UpdateAccountRequest) (*AccountView, error) {
	var out *AccountView
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		acc, err := getAccount(tx, id)
		if err != nil {
			return err
		}
		if body.RecsysType != nil {
			acc.RecsysType = *body.RecsysType
		}
		if body.FollowRecsys != nil {
			acc.FollowRecsysType = *body.FollowRecsys
		}
		if body.Language != nil {
			acc.Language = *body.Language
		}
		if body.RoundActions != nil {
			acc.RoundActions = *body.RoundActions
		}
		if body.DailyActivity != nil {
			acc.DailyActivity = *body.DailyActivity
		}
		if err := tx.Save(acc).Error; err != nil {
			return err
		}
		out = accountView(acc)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// HandleDeactivateAccount soft-disables an account; the row (and its
// content) remains for the analytics half of the experiment.
func (s *Server) HandleDeactivateAccount(c echo.Context) error {
	id, err := paramID(c)
	if err != nil {
		return err
	}
	out, err := s.deactivateAccount(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, out)
}

func (s *Server) deactivateAccount(ctx context.Context, id uint) (*AccountView, error) {
	var out *AccountView
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		acc, err := getAccount(tx, id)
		if err != nil {
			return err
		}
		if acc.Active {
			round, err := currentRound(tx)
			if err != nil {
				return err
			}
			left := int64(round.ID)
			acc.Active = false
			acc.LeftRound = &left
			if err := tx.Save(acc).Error; err != nil {
				return err
			}
		}
		out = accountView(acc)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func orDefault(val, def string) string {
	if val == "" {
		return def
	}
	return val
}

func orDefaultInt(val *int, def int) int {
	if val == nil {
		return def
	}
	return *val
}
