package models

import (
	"time"

	"gorm.io/gorm"
)

// Account is a simulated platform participant. Accounts are never hard
// deleted; deactivation flips Active and records the leaving round.
type Account struct {
	gorm.Model
	Handle           string `gorm:"uniqueIndex"`
	Email            string
	Leaning          string `gorm:"default:neutral"`
	Type             string `gorm:"default:user"`
	Age              int
	Openness         string
	Conscientious    string
	Extraversion     string
	Agreeableness    string
	Neuroticism      string
	RecsysType       string `gorm:"default:default"`
	FollowRecsysType string `gorm:"default:default"`
	Language         string `gorm:"default:en"`
	Owner            string
	EducationLevel   string
	Gender           string
	Nationality      string
	Profession       string
	JoinedRound      int64
	RoundActions     int `gorm:"default:3"`
	DailyActivity    int `gorm:"default:1"`
	IsPage           bool
	Active           bool `gorm:"default:true"`
	LeftRound        *int64
}

// Post holds a top-level post, a comment (ParentID set), or a share
// (SharedFromID set). Comments inherit the parent's ThreadID; top-level
// posts are their own thread root. Sentiment fields are filled at create
// time by the lexicon scorer; toxicity fields come from the external
// scoring service and degrade to ToxicityUnknown when it is unavailable.
type Post struct {
	gorm.Model
	AccountID    uint `gorm:"index"`
	Text         string
	Round        int64 `gorm:"index"`
	ParentID     *uint `gorm:"index"`
	ThreadID     uint  `gorm:"index"`
	SharedFromID *uint
	ArticleID    *uint
	ImageID      *uint

	SentimentLabel string
	SentimentScore float64
	SentimentPos   float64
	SentimentNeg   float64
	SentimentNeu   float64

	ToxicityState string `gorm:"default:unknown"`
	ToxicityScore *float64
	Toxic         bool
}

const (
	ToxicityScored  = "scored"
	ToxicityUnknown = "unknown"
)

type ReactionKind string

const (
	ReactionLike    = ReactionKind("like")
	ReactionDislike = ReactionKind("dislike")
)

func (rk ReactionKind) Valid() bool {
	switch rk {
	case ReactionLike, ReactionDislike:
		return true
	default:
		return false
	}
}

// Reaction records at most one reaction of a given kind per (account, post)
// pair, enforced by the composite unique index.
type Reaction struct {
	ID        uint `gorm:"primarykey"`
	CreatedAt time.Time
	AccountID uint         `gorm:"index:idx_reaction_once,unique"`
	PostID    uint         `gorm:"index:idx_reaction_once,unique"`
	Kind      ReactionKind `gorm:"index:idx_reaction_once,unique"`
	Round     int64
}

// Follow is a live edge in the follow graph. Unfollowing deletes the row;
// Round records when the edge was established.
type Follow struct {
	ID         uint `gorm:"primarykey"`
	CreatedAt  time.Time
	FollowerID uint `gorm:"index:idx_follow_edge,unique"`
	FolloweeID uint `gorm:"index:idx_follow_edge,unique"`
	Round      int64
}

// Vote is one preference record per (account, content) target; re-casting
// updates the existing row.
type Vote struct {
	ID          uint `gorm:"primarykey"`
	CreatedAt   time.Time
	AccountID   uint   `gorm:"index:idx_vote_once,unique"`
	ContentType string `gorm:"index:idx_vote_once,unique"`
	ContentID   uint   `gorm:"index:idx_vote_once,unique"`
	Preference  string
	Round       int64
}

// Round is the simulation clock. The autoincrement ID is the canonical
// round number; Day and Hour are the wall-calendar view the agents see.
type Round struct {
	ID   uint `gorm:"primarykey"`
	Day  int
	Hour int
}

// Website is an external news source, deduplicated by RSS feed URL.
type Website struct {
	ID          uint `gorm:"primarykey"`
	Name        string
	RSS         string `gorm:"uniqueIndex"`
	Leaning     string
	Category    string
	Language    string
	Country     string
	LastFetched int64
}

type Article struct {
	ID        uint `gorm:"primarykey"`
	WebsiteID uint `gorm:"index:idx_article_link,unique"`
	Link      string `gorm:"index:idx_article_link,unique"`
	Title     string
	Summary   string
	FetchedOn int64
}

type Image struct {
	ID          uint   `gorm:"primarykey"`
	URL         string `gorm:"uniqueIndex"`
	Description string
	ArticleID   *uint
}

type Hashtag struct {
	ID  uint   `gorm:"primarykey"`
	Tag string `gorm:"uniqueIndex"`
}

type PostHashtag struct {
	ID        uint `gorm:"primarykey"`
	PostID    uint `gorm:"index:idx_post_hashtag,unique"`
	HashtagID uint `gorm:"index:idx_post_hashtag,unique"`
}

// Mention marks an account referenced in a post. Answered flips once the
// mention has been served to the mentioned account.
type Mention struct {
	ID        uint `gorm:"primarykey"`
	AccountID uint `gorm:"index"`
	PostID    uint
	Round     int64
	Answered  bool
}

// Recommendation is an audit row of the post ids served by a feed read,
// "|"-joined in serve order.
type Recommendation struct {
	ID        uint `gorm:"primarykey"`
	CreatedAt time.Time
	AccountID uint `gorm:"index"`
	PostIDs   string
	Round     int64
}

// All lists every table in migration order; reset drops and recreates
// exactly this set.
func All() []interface{} {
	return []interface{}{
		&Account{},
		&Post{},
		&Reaction{},
		&Follow{},
		&Vote{},
		&Round{},
		&Website{},
		&Article{},
		&Image{},
		&Hashtag{},
		&PostHashtag{},
		&Mention{},
		&Recommendation{},
	}
}
