package notices

import (
	"time"

	"github.com/google/uuid"
)

// Category identifies what a notice is about.
type Category string

const (
	// Digest categories, surfaced in the daily summary email.
	CategoryUserNewFollower        Category = "user_new_follower"
	CategoryArticleNewCollected    Category = "article_new_collected"
	CategoryArticleNewAppreciation Category = "article_new_appreciation"
	CategoryArticleNewSubscriber   Category = "article_new_subscriber"
	CategoryArticleNewComment      Category = "article_new_comment"
	CategoryArticleMentionedYou    Category = "article_mentioned_you"
	CategoryCommentNewReply        Category = "comment_new_reply"
	CategoryCommentMentionedYou    Category = "comment_mentioned_you"

	// Lifecycle categories, written by the user queue jobs. They show up
	// in-app but are excluded from the digest.
	CategoryUserActivated Category = "user_activated"
	CategoryUserUnbanned  Category = "user_unbanned"
)

// DigestCategories lists the categories included in the daily summary
// email, in rendering order.
var DigestCategories = []Category{
	CategoryUserNewFollower,
	CategoryArticleNewCollected,
	CategoryArticleNewAppreciation,
	CategoryArticleNewSubscriber,
	CategoryArticleNewComment,
	CategoryArticleMentionedYou,
	CategoryCommentNewReply,
	CategoryCommentMentionedYou,
}

var validCategories = map[Category]struct{}{
	CategoryUserNewFollower:        {},
	CategoryArticleNewCollected:    {},
	CategoryArticleNewAppreciation: {},
	CategoryArticleNewSubscriber:   {},
	CategoryArticleNewComment:      {},
	CategoryArticleMentionedYou:    {},
	CategoryCommentNewReply:        {},
	CategoryCommentMentionedYou:    {},
	CategoryUserActivated:          {},
	CategoryUserUnbanned:           {},
}

// Valid reports whether c belongs to the known category set.
func (c Category) Valid() bool {
	_, ok := validCategories[c]
	return ok
}

// Digest reports whether the category is part of the daily summary.
func (c Category) Digest() bool {
	for _, dc := range DigestCategories {
		if c == dc {
			return true
		}
	}
	return false
}

// Notice is a single in-app notification.
type Notice struct {
	ID        uuid.UUID
	UserID    uuid.UUID
	Category  Category
	ActorID   *uuid.UUID
	Read      bool
	CreatedAt time.Time
}

// GroupByCategory buckets notices for digest rendering. Categories with
// no notices are absent from the result.
func GroupByCategory(list []*Notice) map[Category][]*Notice {
	grouped := make(map[Category][]*Notice)
	for _, n := range list {
		grouped[n.Category] = append(grouped[n.Category], n)
	}
	return grouped
}
