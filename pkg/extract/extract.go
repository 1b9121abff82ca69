// Package extract maps raw platform payloads onto canonical records. Every
// function here is pure: no I/O, and missing or mistyped fields fall back to
// zero values instead of failing.
package extract

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"

	"xqcrawler/pkg/models"
)

// BaseURL prefixes derived status links.
const BaseURL = "https://xueqiu.com"

var textPolicy = bluemonday.StrictPolicy()

// StatusURL derives the public link of a status.
func StatusURL(userID, statusID string) string {
	return BaseURL + "/" + userID + "/" + statusID
}

// PlainText strips markup and collapses whitespace.
func PlainText(s string) string {
	if s == "" {
		return ""
	}
	clean := html.UnescapeString(textPolicy.Sanitize(s))
	return strings.Join(strings.Fields(clean), " ")
}

// Post maps a raw status.
func Post(raw map[string]any) models.Post {
	if raw == nil {
		raw = map[string]any{}
	}
	user := obj(raw, "user")

	p := models.Post{
		ID:                  idOrEmpty(raw["id"]),
		IDKind:              models.IDKindNative,
		Type:                str(raw["type"]),
		Title:               str(raw["title"]),
		Content:             str(raw["text"]),
		TargetText:          str(obj(raw, "target")["text"]),
		TopicDesc:           str(raw["topic_desc"]),
		Source:              str(raw["source"]),
		StatusURL:           str(raw["status_url"]),
		LikeCount:           num(raw["like_count"]),
		ReplyCount:          num(raw["reply_count"]),
		RetweetCount:        num(raw["retweet_count"]),
		RewardCount:         num(raw["reward_count"]),
		UserID:              idOrEmpty(user["id"]),
		ScreenName:          str(user["screen_name"]),
		ProfileImage:        str(user["profile_image_url"]),
		VerifiedDescription: str(user["verified_description"]),
	}
	p.ContentText = PlainText(p.Content)

	if kind, _ := raw["id_kind"].(string); kind == string(models.IDKindDerived) {
		p.IDKind = models.IDKindDerived
	}

	// DOM results carry a display string like "今天 09:30" instead of an epoch.
	if created := raw["created_at"]; isNumeric(created) {
		p.CreatedAt = num(created)
	} else {
		p.CreatedAtText = str(created)
	}

	if p.StatusURL == "" && p.ID != "" && p.IDKind == models.IDKindNative {
		p.StatusURL = StatusURL(p.UserID, p.ID)
	}
	return p
}

// Comment maps a raw comment onto postID. The raw payload's own status
// reference is ignored.
func Comment(postID string, raw map[string]any) models.Comment {
	if raw == nil {
		raw = map[string]any{}
	}
	user := obj(raw, "user")

	return models.Comment{
		ID:              idOrEmpty(raw["id"]),
		IDKind:          models.IDKindNative,
		PostID:          postID,
		UserID:          idOrEmpty(user["id"]),
		Nickname:        str(user["screen_name"]),
		Avatar:          str(user["profile_image_url"]),
		Content:         str(raw["text"]),
		LikeCount:       num(raw["like_count"]),
		ParentCommentID: idOrEmpty(raw["in_reply_to_status_id"]),
		ReplyToUser:     str(raw["in_reply_to_screen_name"]),
		CreatedAt:       num(raw["created_at"]),
	}
}

// Creator maps a raw user profile.
func Creator(raw map[string]any) models.Creator {
	if raw == nil {
		raw = map[string]any{}
	}
	return models.Creator{
		UserID:              idOrEmpty(raw["id"]),
		ScreenName:          str(raw["screen_name"]),
		Description:         str(raw["description"]),
		City:                str(raw["city"]),
		Province:            str(raw["province"]),
		ProfileImage:        str(raw["profile_image_url"]),
		FollowersCount:      num(raw["followers_count"]),
		FriendsCount:        num(raw["friends_count"]),
		StatusesCount:       num(raw["statuses_count"]),
		VerifiedType:        num(raw["verified_type"]),
		VerifiedDescription: str(raw["verified_description"]),
	}
}
