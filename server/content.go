package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"
	"gorm.io/gorm"

	"github.com/ysocial/yserver/models"
	"github.com/ysocial/yserver/sentiment"
)

const defaultPageSize = 50

type PostView struct {
	ID            uint     `json:"id"`
	AccountID     uint     `json:"user_id"`
	Text          string   `json:"text"`
	Round         int64    `json:"round"`
	ParentID      *uint    `json:"parent_id,omitempty"`
	ThreadID      uint     `json:"thread_id"`
	SharedFromID  *uint    `json:"shared_from,omitempty"`
	ArticleID     *uint    `json:"article_id,omitempty"`
	ImageID       *uint    `json:"image_id,omitempty"`
	Sentiment     string   `json:"sentiment_label"`
	Compound      float64  `json:"sentiment_score"`
	ToxicityState string   `json:"toxicity_state"`
	ToxicityScore *float64 `json:"toxicity_score,omitempty"`
	Toxic         bool     `json:"toxic"`
}

func postView(p *models.Post) *PostView {
	return &PostView{
		ID:            p.ID,
		AccountID:     p.AccountID,
		Text:          p.Text,
		Round:         p.Round,
		ParentID:      p.ParentID,
		ThreadID:      p.ThreadID,
		SharedFromID:  p.SharedFromID,
		ArticleID:     p.ArticleID,
		ImageID:       p.ImageID,
		Sentiment:     p.SentimentLabel,
		Compound:      p.SentimentScore,
		ToxicityState: p.ToxicityState,
		ToxicityScore: p.ToxicityScore,
		Toxic:         p.Toxic,
	}
}

// annotation carries the derived sentiment/toxicity values computed before
// the insert transaction opens.
type annotation struct {
	scores   sentiment.Scores
	toxState string
	toxScore *float64
	toxic    bool
}

// annotate runs both adapters. Toxicity degrades to unknown when the
// external scorer is unconfigured or unreachable; content creation never
// fails on annotation.
func (s *Server) annotate(ctx context.Context, text string) annotation {
	ann := annotation{
		scores:   s.sentiment.Score(text),
		toxState: models.ToxicityUnknown,
	}

	if s.toxicity == nil {
		return ann
	}

	res, err := s.toxicity.Score(ctx, text)
	if err != nil {
		annotationFailuresCounter.Inc()
		s.log.Warn("toxicity scoring degraded to unknown", "err", err)
		return ann
	}

	v := res.Toxicity
	ann.toxState = models.ToxicityScored
	ann.toxScore = &v
	ann.toxic = res.Toxic()
	return ann
}

// postInsert is the shared insert pipeline used by posts, comments, news
// and image commentary, and shares.
type postInsert struct {
	Account      *models.Account
	Text         string
	Round        int64
	Parent       *models.Post
	SharedFromID *uint
	ArticleID    *uint
	ImageID      *uint
	Hashtags     []string
	Mentions     []string

	Ann annotation
}

func (s *Server) insertPost(tx *gorm.DB, ins *postInsert) (*models.Post, error) {
	post := models.Post{
		AccountID:      ins.Account.ID,
		Text:           ins.Text,
		Round:          ins.Round,
		SharedFromID:   ins.SharedFromID,
		ArticleID:      ins.ArticleID,
		ImageID:        ins.ImageID,
		SentimentLabel: ins.Ann.scores.Label(),
		SentimentScore: ins.Ann.scores.Compound,
		SentimentPos:   ins.Ann.scores.Pos,
		SentimentNeg:   ins.Ann.scores.Neg,
		SentimentNeu:   ins.Ann.scores.Neu,
		ToxicityState:  ins.Ann.toxState,
		ToxicityScore:  ins.Ann.toxScore,
		Toxic:          ins.Ann.toxic,
	}
	if ins.Parent != nil {
		pid := ins.Parent.ID
		post.ParentID = &pid
		post.ThreadID = ins.Parent.ThreadID
	}
	if err := tx.Create(&post).Error; err != nil {
		return nil, err
	}
	if ins.Parent == nil {
		// top-level posts root their own thread; the id only exists
		// after the insert
		post.ThreadID = post.ID
		if err := tx.Model(&post).Update("thread_id", post.ID).Error; err != nil {
			return nil, err
		}
	}

	if err := s.attachHashtags(tx, post.ID, ins.Hashtags); err != nil {
		return nil, err
	}
	if err := s.attachMentions(tx, &post, ins.Account, ins.Mentions); err != nil {
		return nil, err
	}

	return &post, nil
}

func (s *Server) attachHashtags(tx *gorm.DB, postID uint, tags []string) error {
	for _, raw := range tags {
		tag := strings.ToLower(strings.TrimPrefix(strings.TrimSpace(raw), "#"))
		if len(tag) < 4 {
			continue
		}
		var ht models.Hashtag
		err := tx.First(&ht, "tag = ?", tag).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			ht = models.Hashtag{Tag: tag}
			if err := tx.Create(&ht).Error; err != nil {
				return err
			}
		} else if err != nil {
			return err
		}
		link := models.PostHashtag{PostID: postID, HashtagID: ht.ID}
		if err := tx.Create(&link).Error; err != nil {
			return err
		}
	}
	return nil
}

// attachMentions records a Mention for every referenced account that
// exists and is not the author; unknown handles are dropped.
func (s *Server) attachMentions(tx *gorm.DB, post *models.Post, author *models.Account, mentions []string) error {
	for _, raw := range mentions {
		handle := strings.TrimPrefix(strings.TrimSpace(raw), "@")
		if handle == "" {
			continue
		}
		var acc models.Account
		err := tx.First(&acc, "handle = ?", handle).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			continue
		}
		if err != nil {
			return err
		}
		if acc.ID == author.ID {
			continue
		}
		mn := models.Mention{AccountID: acc.ID, PostID: post.ID, Round: post.Round}
		if err := tx.Create(&mn).Error; err != nil {
			return err
		}
	}
	return nil
}

type CreatePostRequest struct {
	AccountID uint     `json:"user_id"`
	Text      string   `json:"text"`
	ParentID  *uint    `json:"parent_id"`
	Round     *int64   `json:"round"`
	Hashtags  []string `json:"hashtags"`
	Mentions  []string `json:"mentions"`
}

func (s *Server) HandleCreatePost(c echo.Context) error {
	var body CreatePostRequest
	if err := c.Bind(&body); err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidInput, err)
	}
	out, err := s.createPost(c.Request().Context(), &body)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, out)
}

func (s *Server) createPost(ctx context.Context, body *CreatePostRequest) (*PostView, error) {
	text := strings.TrimSpace(strings.Trim(body.Text, `"`))
	if text == "" {
		return nil, fmt.Errorf("%w: post text is required", ErrInvalidInput)
	}

	ann := s.annotate(ctx, text)

	var out *PostView
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		author, err := getActiveAccount(tx, body.AccountID)
		if err != nil {
			return err
		}

		var parent *models.Post
		if body.ParentID != nil {
			parent, err = getPost(tx, *body.ParentID)
			if err != nil {
				return fmt.Errorf("parent: %w", err)
			}
		}

		round, err := resolveRound(tx, body.Round)
		if err != nil {
			return err
		}

		post, err := s.insertPost(tx, &postInsert{
			Account:  author,
			Text:     text,
			Round:    round,
			Parent:   parent,
			Hashtags: body.Hashtags,
			Mentions: body.Mentions,
			Ann:      ann,
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

	if body.ParentID != nil {
		postsCreatedCounter.WithLabelValues("comment").Inc()
	} else {
		postsCreatedCounter.WithLabelValues("post").Inc()
	}
	return out, nil
}

// resolveRound uses an explicit round stamp when the payload carries one,
// otherwise the round active at call time.
func resolveRound(tx *gorm.DB, explicit *int64) (int64, error) {
	if explicit != nil {
		return *explicit, nil
	}
	round, err := currentRound(tx)
	if err != nil {
		return 0, err
	}
	return int64(round.ID), nil
}

func (s *Server) HandleGetPost(c echo.Context) error {
	id, err := paramID(c)
	if err != nil {
		return err
	}
	post, err := getPost(s.db.WithContext(c.Request().Context()), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, postView(post))
}

func (s *Server) HandleGetAccountPosts(c echo.Context) error {
	id, err := paramID(c)
	if err != nil {
		return err
	}
	ctx := c.Request().Context()
	if _, err := getAccount(s.db.WithContext(ctx), id); err != nil {
		return err
	}

	var posts []models.Post
	if err := s.db.WithContext(ctx).
		Where("account_id = ?", id).
		Order("id desc").
		Limit(queryLimit(c)).
		Find(&posts).Error; err != nil {
		return err
	}

	out := make([]*PostView, len(posts))
	for i := range posts {
		out[i] = postView(&posts[i])
	}
	return c.JSON(http.StatusOK, out)
}

func (s *Server) HandleGetPostsByRound(c echo.Context) error {
	ctx := c.Request().Context()
	q := s.db.WithContext(ctx).Model(&models.Post{})

	if since := c.QueryParam("since"); since != "" {
		n, err := strconv.ParseInt(since, 10, 64)
		if err != nil {
			return fmt.Errorf("%w: bad since round", ErrInvalidInput)
		}
		q = q.Where("round >= ?", n)
	}
	if until := c.QueryParam("until"); until != "" {
		n, err := strconv.ParseInt(until, 10, 64)
		if err != nil {
			return fmt.Errorf("%w: bad until round", ErrInvalidInput)
		}
		q = q.Where("round <= ?", n)
	}

	var posts []models.Post
	if err := q.Order("id desc").Limit(queryLimit(c)).Find(&posts).Error; err != nil {
		return err
	}

	out := make([]*PostView, len(posts))
	for i := range posts {
		out[i] = postView(&posts[i])
	}
	return c.JSON(http.StatusOK, out)
}

// HandleSearchPosts matches the query against post text and, when the
// query looks like a tag, against the hashtag index.
func (s *Server) HandleSearchPosts(c echo.Context) error {
	q := strings.TrimSpace(c.QueryParam("q"))
	if q == "" {
		return fmt.Errorf("%w: query parameter q is required", ErrInvalidInput)
	}
	ctx := c.Request().Context()
	limit := queryLimit(c)

	var textMatches []models.Post
	if err := s.db.WithContext(ctx).
		Where("text LIKE ?", "%"+q+"%").
		Order("id desc").
		Limit(limit).
		Find(&textMatches).Error; err != nil {
		return err
	}

	tag := strings.ToLower(strings.TrimPrefix(q, "#"))
	var tagMatches []models.Post
	if err := s.db.WithContext(ctx).
		Select("posts.*").
		Joins("JOIN post_hashtags ON post_hashtags.post_id = posts.id").
		Joins("JOIN hashtags ON hashtags.id = post_hashtags.hashtag_id").
		Where("hashtags.tag = ?", tag).
		Order("posts.id desc").
		Limit(limit).
		Find(&tagMatches).Error; err != nil {
		return err
	}

	seen := make(map[uint]bool)
	merged := make([]*PostView, 0, len(textMatches)+len(tagMatches))
	for _, batch := range [][]models.Post{textMatches, tagMatches} {
		for i := range batch {
			if seen[batch[i].ID] {
				continue
			}
			seen[batch[i].ID] = true
			merged = append(merged, postView(&batch[i]))
		}
	}
	sort.Slice(merged, func(i, j int) bool { return merged[i].ID > merged[j].ID })
	if len(merged) > limit {
		merged = merged[:limit]
	}
	return c.JSON(http.StatusOK, merged)
}

type DeletePostRequest struct {
	AccountID uint `json:"user_id"`
}

// HandleDeletePost removes an account's own post (soft delete; the row
// stays for analytics but leaves all read paths).
func (s *Server) HandleDeletePost(c echo.Context) error {
	id, err := paramID(c)
	if err != nil {
		return err
	}
	var body DeletePostRequest
	if err := c.Bind(&body); err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidInput, err)
	}

	err = s.db.WithContext(c.Request().Context()).Transaction(func(tx *gorm.DB) error {
		post, err := getPost(tx, id)
		if err != nil {
			return err
		}
		if post.AccountID != body.AccountID {
			return fmt.Errorf("%w: only the author can delete a post", ErrInvalidInput)
		}
		return tx.Delete(post).Error
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

type ThreadEntryView struct {
	PostID    uint   `json:"post_id"`
	AccountID uint   `json:"user_id"`
	Handle    string `json:"handle"`
	Text      string `json:"text"`
	Round     int64  `json:"round"`
}

func (s *Server) HandleGetThread(c echo.Context) error {
	id, err := paramID(c)
	if err != nil {
		return err
	}
	ctx := c.Request().Context()

	post, err := getPost(s.db.WithContext(ctx), id)
	if err != nil {
		return err
	}

	var entries []ThreadEntryView
	if err := s.db.WithContext(ctx).Model(&models.Post{}).
		Select("posts.id as post_id, posts.account_id, accounts.handle, posts.text, posts.round").
		Joins("JOIN accounts ON accounts.id = posts.account_id").
		Where("posts.thread_id = ?", post.ThreadID).
		Order("posts.id asc").
		Scan(&entries).Error; err != nil {
		return err
	}
	return c.JSON(http.StatusOK, entries)
}

type CreateReactionRequest struct {
	AccountID uint   `json:"user_id"`
	Kind      string `json:"kind"`
	Round     *int64 `json:"round"`
}

// HandleCreateReaction records a reaction. A repeated (actor, post, kind)
// call is rejected with AlreadyReacted, not treated as a no-op.
func (s *Server) HandleCreateReaction(c echo.Context) error {
	postID, err := paramID(c)
	if err != nil {
		return err
	}
	var body CreateReactionRequest
	if err := c.Bind(&body); err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidInput, err)
	}
	out, err := s.createReaction(c.Request().Context(), postID, &body)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, out)
}

type ReactionView struct {
	ID        uint   `json:"id"`
	AccountID uint   `json:"user_id"`
	PostID    uint   `json:"post_id"`
	Kind      string `json:"kind"`
	Round     int64  `json:"round"`
}

func (s *Server) createReaction(ctx context.Context, postID uint, body *CreateReactionRequest) (*ReactionView, error) {
	kind := models.ReactionKind(body.Kind)
	if !kind.Valid() {
		return nil, fmt.Errorf("%w: unknown reaction kind %q", ErrInvalidInput, body.Kind)
	}

	var out *ReactionView
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := getActiveAccount(tx, body.AccountID); err != nil {
			return err
		}
		if _, err := getPost(tx, postID); err != nil {
			return err
		}

		var existing models.Reaction
		err := tx.First(&existing, "account_id = ? AND post_id = ? AND kind = ?", body.AccountID, postID, kind).Error
		switch {
		case err == nil:
			return fmt.Errorf("%s on post %d: %w", kind, postID, ErrAlreadyReacted)
		case !errors.Is(err, gorm.ErrRecordNotFound):
			return err
		}

		round, err := resolveRound(tx, body.Round)
		if err != nil {
			return err
		}

		react := models.Reaction{
			AccountID: body.AccountID,
			PostID:    postID,
			Kind:      kind,
			Round:     round,
		}
		if err := tx.Create(&react).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return fmt.Errorf("%s on post %d: %w", kind, postID, ErrAlreadyReacted)
			}
			return err
		}

		out = &ReactionView{
			ID:        react.ID,
			AccountID: react.AccountID,
			PostID:    react.PostID,
			Kind:      string(react.Kind),
			Round:     react.Round,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	reactionsCreatedCounter.Inc()
	return out, nil
}

type TimelineEntryView struct {
	PostID   uint   `json:"post_id"`
	Text     string `json:"text"`
	Round    int64  `json:"round"`
	Likes    int64  `json:"likes"`
	Dislikes int64  `json:"dislikes"`
	Comments int64  `json:"comments"`
	Shares   int64  `json:"shares"`
}

func (s *Server) HandleGetTimeline(c echo.Context) error {
	id, err := paramID(c)
	if err != nil {
		return err
	}
	ctx := c.Request().Context()
	if _, err := getAccount(s.db.WithContext(ctx), id); err != nil {
		return err
	}

	var posts []models.Post
	if err := s.db.WithContext(ctx).
		Where("account_id = ?", id).
		Order("id desc").
		Limit(queryLimit(c)).
		Find(&posts).Error; err != nil {
		return err
	}

	out := make([]TimelineEntryView, 0, len(posts))
	for i := range posts {
		p := &posts[i]
		entry := TimelineEntryView{PostID: p.ID, Text: p.Text, Round: p.Round}

		if err := s.db.WithContext(ctx).Model(&models.Reaction{}).
			Where("post_id = ? AND kind = ?", p.ID, models.ReactionLike).
			Count(&entry.Likes).Error; err != nil {
			return err
		}
		if err := s.db.WithContext(ctx).Model(&models.Reaction{}).
			Where("post_id = ? AND kind = ?", p.ID, models.ReactionDislike).
			Count(&entry.Dislikes).Error; err != nil {
			return err
		}
		if err := s.db.WithContext(ctx).Model(&models.Post{}).
			Where("parent_id = ?", p.ID).
			Count(&entry.Comments).Error; err != nil {
			return err
		}
		if err := s.db.WithContext(ctx).Model(&models.Post{}).
			Where("shared_from_id = ?", p.ID).
			Count(&entry.Shares).Error; err != nil {
			return err
		}

		out = append(out, entry)
	}
	return c.JSON(http.StatusOK, out)
}

// HandleGetMention pops the oldest unanswered mention for the account
// within the visibility window and marks it answered.
func (s *Server) HandleGetMention(c echo.Context) error {
	id, err := paramID(c)
	if err != nil {
		return err
	}
	vrounds := int64(defaultVisibilityRounds)
	if raw := c.QueryParam("visibility_rounds"); raw != "" {
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return fmt.Errorf("%w: bad visibility_rounds", ErrInvalidInput)
		}
		vrounds = n
	}

	var out map[string]uint
	err = s.db.WithContext(c.Request().Context()).Transaction(func(tx *gorm.DB) error {
		if _, err := getAccount(tx, id); err != nil {
			return err
		}
		round, err := currentRound(tx)
		if err != nil {
			return err
		}
		visibility := int64(round.ID) - vrounds

		var mention models.Mention
		err = tx.Where("account_id = ? AND round >= ? AND answered = ?", id, visibility, false).
			Order("id asc").
			First(&mention).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("no pending mentions: %w", ErrNotFound)
		}
		if err != nil {
			return err
		}

		mention.Answered = true
		if err := tx.Save(&mention).Error; err != nil {
			return err
		}
		out = map[string]uint{"post_id": mention.PostID}
		return nil
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, out)
}

func (s *Server) HandleGetPostArticle(c echo.Context) error {
	id, err := paramID(c)
	if err != nil {
		return err
	}
	ctx := c.Request().Context()
	post, err := getPost(s.db.WithContext(ctx), id)
	if err != nil {
		return err
	}
	if post.ArticleID == nil {
		return fmt.Errorf("post %d has no article: %w", id, ErrNotFound)
	}

	var article models.Article
	if err := s.db.WithContext(ctx).First(&article, "id = ?", *post.ArticleID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("article %d: %w", *post.ArticleID, ErrNotFound)
		}
		return err
	}
	return c.JSON(http.StatusOK, articleView(&article))
}

func queryLimit(c echo.Context) int {
	raw := c.QueryParam("limit")
	if raw == "" {
		return defaultPageSize
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 || n > 500 {
		return defaultPageSize
	}
	return n
}
