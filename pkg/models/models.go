// Package models holds the canonical records the crawler persists.
package models

import "strconv"

// IDKind tells consumers whether an id came from the platform or was
// synthesized by the crawler. Derived ids are unstable across scrape
// strategies.
type IDKind string

const (
	IDKindNative  IDKind = "native"
	IDKindDerived IDKind = "derived"
)

// Timestamps are owned by the storage layer. Both are epoch milliseconds.
type Timestamps struct {
	AddTS        int64 `gorm:"column:add_ts;not null" json:"add_ts"`
	LastModifyTS int64 `gorm:"column:last_modify_ts;not null" json:"last_modify_ts"`
}

// Post is one status on the platform.
type Post struct {
	ID                  string `gorm:"column:status_id;primaryKey;size:64" json:"id"`
	IDKind              IDKind `gorm:"column:id_kind;size:16;default:native" json:"id_kind"`
	Type                string `gorm:"size:32" json:"type"`
	Title               string `gorm:"type:text" json:"title"`
	Content             string `gorm:"type:text" json:"content"`
	ContentText         string `gorm:"type:text" json:"content_text"`
	TargetText          string `gorm:"type:text" json:"target_text"`
	TopicDesc           string `gorm:"size:255" json:"topic_desc"`
	Source              string `gorm:"size:64" json:"source"`
	StatusURL           string `gorm:"size:255" json:"status_url"`
	LikeCount           int64  `json:"like_count"`
	ReplyCount          int64  `json:"reply_count"`
	RetweetCount        int64  `json:"retweet_count"`
	RewardCount         int64  `json:"reward_count"`
	CreatedAt           int64  `gorm:"column:created_at;autoCreateTime:false" json:"created_at"`
	CreatedAtText       string `gorm:"size:64" json:"created_at_text"`
	UserID              string `gorm:"size:64;index" json:"user_id"`
	ScreenName          string `gorm:"size:128" json:"screen_name"`
	ProfileImage        string `gorm:"size:512" json:"profile_image"`
	VerifiedDescription string `gorm:"size:255" json:"verified_description"`
	SourceKeyword       string `gorm:"size:128;index" json:"source_keyword"`
	Timestamps
}

func (Post) TableName() string { return "xueqiu_status" }

// Comment always belongs to exactly one Post.
type Comment struct {
	ID              string `gorm:"column:comment_id;primaryKey;size:64" json:"id"`
	IDKind          IDKind `gorm:"column:id_kind;size:16;default:native" json:"id_kind"`
	PostID          string `gorm:"column:post_id;size:64;not null;index" json:"post_id"`
	UserID          string `gorm:"size:64" json:"user_id"`
	Nickname        string `gorm:"size:128" json:"nickname"`
	Avatar          string `gorm:"size:512" json:"avatar"`
	Content         string `gorm:"type:text" json:"content"`
	LikeCount       int64  `json:"like_count"`
	ParentCommentID string `gorm:"size:64" json:"parent_comment_id"`
	ReplyToUser     string `gorm:"size:128" json:"reply_to_user"`
	CreatedAt       int64  `gorm:"column:created_at;autoCreateTime:false" json:"created_at"`
	Timestamps
}

func (Comment) TableName() string { return "xueqiu_comment" }

// Creator is an author profile.
type Creator struct {
	UserID              string `gorm:"column:user_id;primaryKey;size:64" json:"user_id"`
	ScreenName          string `gorm:"size:128" json:"screen_name"`
	Description         string `gorm:"type:text" json:"description"`
	City                string `gorm:"size:64" json:"city"`
	Province            string `gorm:"size:64" json:"province"`
	ProfileImage        string `gorm:"size:512" json:"profile_image"`
	FollowersCount      int64  `json:"followers_count"`
	FriendsCount        int64  `json:"friends_count"`
	StatusesCount       int64  `json:"statuses_count"`
	VerifiedType        int64  `json:"verified_type"`
	VerifiedDescription string `gorm:"size:255" json:"verified_description"`
	Timestamps
}

func (Creator) TableName() string { return "xueqiu_creator" }

// CSV column layouts. The order of each header matches its Record method.
var (
	PostCSVHeader = []string{
		"id", "id_kind", "type", "title", "content", "content_text", "target_text",
		"topic_desc", "source", "status_url", "like_count", "reply_count",
		"retweet_count", "reward_count", "created_at", "created_at_text", "user_id",
		"screen_name", "profile_image", "verified_description", "source_keyword",
		"add_ts", "last_modify_ts",
	}
	CommentCSVHeader = []string{
		"id", "id_kind", "post_id", "user_id", "nickname", "avatar", "content",
		"like_count", "parent_comment_id", "reply_to_user", "created_at",
		"add_ts", "last_modify_ts",
	}
	CreatorCSVHeader = []string{
		"user_id", "screen_name", "description", "city", "province", "profile_image",
		"followers_count", "friends_count", "statuses_count", "verified_type",
		"verified_description", "add_ts", "last_modify_ts",
	}
)

func itoa(n int64) string { return strconv.FormatInt(n, 10) }

// Record renders the post as a CSV row.
func (p *Post) Record() []string {
	return []string{
		p.ID, string(p.IDKind), p.Type, p.Title, p.Content, p.ContentText, p.TargetText,
		p.TopicDesc, p.Source, p.StatusURL, itoa(p.LikeCount), itoa(p.ReplyCount),
		itoa(p.RetweetCount), itoa(p.RewardCount), itoa(p.CreatedAt), p.CreatedAtText, p.UserID,
		p.ScreenName, p.ProfileImage, p.VerifiedDescription, p.SourceKeyword,
		itoa(p.AddTS), itoa(p.LastModifyTS),
	}
}

// Record renders the comment as a CSV row.
func (c *Comment) Record() []string {
	return []string{
		c.ID, string(c.IDKind), c.PostID, c.UserID, c.Nickname, c.Avatar, c.Content,
		itoa(c.LikeCount), c.ParentCommentID, c.ReplyToUser, itoa(c.CreatedAt),
		itoa(c.AddTS), itoa(c.LastModifyTS),
	}
}

// Record renders the creator as a CSV row.
func (c *Creator) Record() []string {
	return []string{
		c.UserID, c.ScreenName, c.Description, c.City, c.Province, c.ProfileImage,
		itoa(c.FollowersCount), itoa(c.FriendsCount), itoa(c.StatusesCount), itoa(c.VerifiedType),
		c.VerifiedDescription, itoa(c.AddTS), itoa(c.LastModifyTS),
	}
}
