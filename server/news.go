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

type ArticleView struct {
	ID        uint   `json:"id"`
	WebsiteID uint   `json:"website_id"`
	Link      string `json:"link"`
	Title     string `json:"title"`
	Summary   string `json:"summary"`
	FetchedOn int64  `json:"fetched_on"`
}

func articleView(a *models.Article) *ArticleView {
	return &ArticleView{
		ID:        a.ID,
		WebsiteID: a.WebsiteID,
		Link:      a.Link,
		Title:     a.Title,
		Summary:   a.Summary,
		FetchedOn: a.FetchedOn,
	}
}

type CommentNewsRequest struct {
	AccountID uint     `json:"user_id"`
	Text      string   `json:"text"`
	Round     *int64   `json:"round"`
	Hashtags  []string `json:"hashtags"`
	Mentions  []string `json:"mentions"`

	Website CommentNewsWebsite `json:"website"`
	Article CommentNewsArticle `json:"article"`
}

type CommentNewsWebsite struct {
	Name     string `json:"name"`
	RSS      string `json:"rss"`
	Leaning  string `json:"leaning"`
	Category string `json:"category"`
	Language string `json:"language"`
	Country  string `json:"country"`
}

type CommentNewsArticle struct {
	Link    string `json:"link"`
	Title   string `json:"title"`
	Summary string `json:"summary"`
}

type CommentNewsResponse struct {
	Post      *PostView `json:"post,omitempty"`
	ArticleID uint      `json:"article_id"`
}

// HandleCommentNews upserts the news source and article, then publishes
// the commenting post linked to the article. Sources are deduplicated by
// RSS url, articles by (website, link); repeated shares of the same story
// reuse the stored rows.
func (s *Server) HandleCommentNews(c echo.Context) error {
	if err := s.requireModule(config.ModuleNews); err != nil {
		return err
	}
	var body CommentNewsRequest
	if err := c.Bind(&body); err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidInput, err)
	}
	out, err := s.commentNews(c.Request().Context(), &body)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, out)
}

func (s *Server) commentNews(ctx context.Context, body *CommentNewsRequest) (*CommentNewsResponse, error) {
	if body.Website.RSS == "" || body.Article.Link == "" {
		return nil, fmt.Errorf("%w: website rss and article link are required", ErrInvalidInput)
	}
	text := strings.TrimSpace(body.Text)

	var ann annotation
	if text != "" {
		ann = s.annotate(ctx, text)
	}

	var out *CommentNewsResponse
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		author, err := getActiveAccount(tx, body.AccountID)
		if err != nil {
			return err
		}
		round, err := resolveRound(tx, body.Round)
		if err != nil {
			return err
		}

		website, err := upsertWebsite(tx, &body.Website, round)
		if err != nil {
			return err
		}
		article, err := upsertArticle(tx, website.ID, &body.Article, round)
		if err != nil {
			return err
		}

		out = &CommentNewsResponse{ArticleID: article.ID}
		if text == "" {
			return nil
		}

		articleID := article.ID
		post, err := s.insertPost(tx, &postInsert{
			Account:   author,
			Text:      text,
			Round:     round,
			ArticleID: &articleID,
			Hashtags:  body.Hashtags,
			Mentions:  body.Mentions,
			Ann:       ann,
		})
		if err != nil {
			return err
		}
		out.Post = postView(post)
		return nil
	})
	if err != nil {
		return nil, err
	}

	if out.Post != nil {
		postsCreatedCounter.WithLabelValues("news").Inc()
	}
	return out, nil
}

func upsertWebsite(tx *gorm.DB, in *CommentNewsWebsite, round int64) (*models.Website, error) {
	var site models.Website
	err := tx.First(&site, "rss = ?", in.RSS).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		site = models.Website{
			Name:        in.Name,
			RSS:         in.RSS,
			Leaning:     in.Leaning,
			Category:    in.Category,
			Language:    in.Language,
			Country:     in.Country,
			LastFetched: round,
		}
		if err := tx.Create(&site).Error; err != nil {
			return nil, err
		}
		return &site, nil
	}
	if err != nil {
		return nil, err
	}
	if site.LastFetched < round {
		site.LastFetched = round
		if err := tx.Save(&site).Error; err != nil {
			return nil, err
		}
	}
	return &site, nil
}

func upsertArticle(tx *gorm.DB, websiteID uint, in *CommentNewsArticle, round int64) (*models.Article, error) {
	var article models.Article
	err := tx.First(&article, "website_id = ? AND link = ?", websiteID, in.Link).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		article = models.Article{
			WebsiteID: websiteID,
			Link:      in.Link,
			Title:     in.Title,
			Summary:   in.Summary,
			FetchedOn: round,
		}
		if err := tx.Create(&article).Error; err != nil {
			return nil, err
		}
		return &article, nil
	}
	if err != nil {
		return nil, err
	}
	return &article, nil
}

func (s *Server) HandleGetArticle(c echo.Context) error {
	if err := s.requireModule(config.ModuleNews); err != nil {
		return err
	}
	id, err := paramID(c)
	if err != nil {
		return err
	}

	var article models.Article
	if err := s.db.WithContext(c.Request().Context()).First(&article, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("article %d: %w", id, ErrNotFound)
		}
		return err
	}
	return c.JSON(http.StatusOK, articleView(&article))
}

func (s *Server) HandleGetArticleByTitle(c echo.Context) error {
	if err := s.requireModule(config.ModuleNews); err != nil {
		return err
	}
	title := strings.TrimSpace(c.QueryParam("title"))
	if title == "" {
		return fmt.Errorf("%w: query parameter title is required", ErrInvalidInput)
	}

	var article models.Article
	err := s.db.WithContext(c.Request().Context()).First(&article, "title = ?", title).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("article %q: %w", title, ErrNotFound)
	}
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, articleView(&article))
}

type SharePostRequest struct {
	AccountID uint   `json:"user_id"`
	Text      string `json:"text"`
	Round     *int64 `json:"round"`
}

// HandleSharePost republishes an existing post under the sharing account.
// The share keeps a SharedFromID back-reference, carries over the article
// link if the original had one, and roots its own thread.
func (s *Server) HandleSharePost(c echo.Context) error {
	if err := s.requireModule(config.ModuleNews); err != nil {
		return err
	}
	postID, err := paramID(c)
	if err != nil {
		return err
	}
	var body SharePostRequest
	if err := c.Bind(&body); err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidInput, err)
	}
	out, err := s.sharePost(c.Request().Context(), postID, &body)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, out)
}

func (s *Server) sharePost(ctx context.Context, postID uint, body *SharePostRequest) (*PostView, error) {
	text := strings.TrimSpace(body.Text)

	var ann annotation
	if text != "" {
		ann = s.annotate(ctx, text)
	}

	var out *PostView
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		author, err := getActiveAccount(tx, body.AccountID)
		if err != nil {
			return err
		}
		original, err := getPost(tx, postID)
		if err != nil {
			return err
		}
		round, err := resolveRound(tx, body.Round)
		if err != nil {
			return err
		}

		if text == "" {
			ann.scores = s.sentiment.Score(original.Text)
			ann.toxState = models.ToxicityUnknown
		}

		sharedID := original.ID
		post, err := s.insertPost(tx, &postInsert{
			Account:      author,
			Text:         text,
			Round:        round,
			SharedFromID: &sharedID,
			ArticleID:    original.ArticleID,
			Ann:          ann,
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

	postsCreatedCounter.WithLabelValues("share").Inc()
	return out, nil
}
