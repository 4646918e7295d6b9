package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"gorm.io/gorm"

	"github.com/ysocial/yserver/config"
	"github.com/ysocial/yserver/models"
)

type CommentImageRequest struct {
	AccountID   uint     `json:"user_id"`
	Text        string   `json:"text"`
	Round       *int64   `json:"round"`
	Hashtags    []string `json:"hashtags"`
	Mentions    []string `json:"mentions"`
	URL         string   `json:"url"`
	Description string   `json:"description"`
	ArticleID   *uint    `json:"article_id"`
}

// HandleCommentImage publishes a post about an image. Images are
// deduplicated by URL; the stored description is whatever the first
// commenter's vision model produced.
func (s *Server) HandleCommentImage(c echo.Context) error {
	if err := s.requireModule(config.ModuleNews); err != nil {
		return err
	}
	var body CommentImageRequest
	if err := c.Bind(&body); err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidInput, err)
	}
	out, err := s.commentImage(c.Request().Context(), &body)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, out)
}

func (s *Server) commentImage(ctx context.Context, body *CommentImageRequest) (*PostView, error) {
	text := strings.TrimSpace(body.Text)
	if text == "" {
		return nil, fmt.Errorf("%w: post text is required", ErrInvalidInput)
	}
	if body.URL == "" {
		return nil, fmt.Errorf("%w: image url is required", ErrInvalidInput)
	}

	ann := s.annotate(ctx, text)

	var out *PostView
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		author, err := getActiveAccount(tx, body.AccountID)
		if err != nil {
			return err
		}
		round, err := resolveRound(tx, body.Round)
		if err != nil {
			return err
		}

		image, err := upsertImage(tx, body.URL, body.Description, body.ArticleID)
		if err != nil {
			return err
		}

		imageID := image.ID
		post, err := s.insertPost(tx, &postInsert{
			Account:   author,
			Text:      text,
			Round:     round,
			ImageID:   &imageID,
			ArticleID: image.ArticleID,
			Hashtags:  body.Hashtags,
			Mentions:  body.Mentions,
			Ann:       ann,
		})
		if err != nil {
			return err
		}
		out = postView(post)
		return nil
	})
	if err != nil {
		return nil, err
	}

	postsCreatedCounter.WithLabelValues("image").Inc()
	return out, nil
}

func upsertImage(tx *gorm.DB, url, description string, articleID *uint) (*models.Image, error) {
	var image models.Image
	err := tx.First(&image, "url = ?", url).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		image = models.Image{URL: url, Description: description, ArticleID: articleID}
		if err := tx.Create(&image).Error; err != nil {
			return nil, err
		}
		return &image, nil
	}
	if err != nil {
		return nil, err
	}
	return &image, nil
}
