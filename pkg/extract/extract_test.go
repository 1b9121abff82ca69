package extract

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"xqcrawler/pkg/models"
)

func decode(t *testing.T, s string) map[string]any {
	t.Helper()
	var m map[string]any
	require.NoError(t, json.Unmarshal([]byte(s), &m))
	return m
}

func TestPostFullPayload(t *testing.T) {
	raw := decode(t, `{
		"id": 301234567890,
		"type": "0",
		"title": "白酒",
		"text": "<p>茅台 <b>涨停</b> &amp; 放量</p>",
		"target": {"text": "原帖"},
		"topic_desc": "白酒板块",
		"source": "雪球",
		"like_count": 12,
		"reply_count": "3",
		"retweet_count": 1.0,
		"created_at": 1717171717000,
		"user": {"id": 9876543210, "screen_name": "老股民", "profile_image_url": "a.png", "verified_description": "认证"}
	}`)

	p := Post(raw)

	assert.Equal(t, "301234567890", p.ID)
	assert.Equal(t, models.IDKindNative, p.IDKind)
	assert.Equal(t, "原帖", p.TargetText)
	assert.Equal(t, "茅台 涨停 & 放量", p.ContentText)
	assert.Equal(t, int64(12), p.LikeCount)
	assert.Equal(t, int64(3), p.ReplyCount)
	assert.Equal(t, int64(1), p.RetweetCount)
	assert.Equal(t, int64(0), p.RewardCount)
	assert.Equal(t, int64(1717171717000), p.CreatedAt)
	assert.Equal(t, "9876543210", p.UserID)
	assert.Equal(t, "https://xueqiu.com/9876543210/301234567890", p.StatusURL)
	assert.Equal(t, "认证", p.VerifiedDescription)
}

func TestPostKeepsSuppliedStatusURL(t *testing.T) {
	p := Post(map[string]any{"id": "1", "status_url": "https://xueqiu.com/x/1"})
	assert.Equal(t, "https://xueqiu.com/x/1", p.StatusURL)
}

func TestPostJSONNumberIDs(t *testing.T) {
	dec := json.NewDecoder(strings.NewReader(`{"id": 301234567890123, "like_count": 5}`))
	dec.UseNumber()
	var raw map[string]any
	require.NoError(t, dec.Decode(&raw))

	p := Post(raw)
	assert.Equal(t, "301234567890123", p.ID)
	assert.Equal(t, int64(5), p.LikeCount)
}

func TestMissingFieldsNeverFail(t *testing.T) {
	inputs := []map[string]any{
		nil,
		{},
		{"user": "not-an-object", "target": 42},
		{"id": nil, "like_count": "many", "created_at": []any{1}},
		{"like_count": -5},
	}

	for _, raw := range inputs {
		assert.NotPanics(t, func() {
			p := Post(raw)
			assert.GreaterOrEqual(t, p.LikeCount, int64(0))
			c := Comment("42", raw)
			assert.Equal(t, "42", c.PostID)
			Creator(raw)
		})
	}
}

func TestCommentForcesPostID(t *testing.T) {
	raw := decode(t, `{
		"id": 555,
		"status_id": 999,
		"text": "同意",
		"like_count": 2,
		"in_reply_to_status_id": 0,
		"in_reply_to_screen_name": "",
		"created_at": 1717000000000,
		"user": {"id": 7, "screen_name": "小白", "profile_image_url": "b.png"}
	}`)

	c := Comment("123", raw)

	assert.Equal(t, "555", c.ID)
	assert.Equal(t, "123", c.PostID)
	assert.Equal(t, "", c.ParentCommentID)
	assert.Equal(t, "小白", c.Nickname)
	assert.Equal(t, "7", c.UserID)
}

func TestCommentThreadedReply(t *testing.T) {
	c := Comment("1", map[string]any{"id": "2", "in_reply_to_status_id": float64(88), "in_reply_to_screen_name": "楼主"})
	assert.Equal(t, "88", c.ParentCommentID)
	assert.Equal(t, "楼主", c.ReplyToUser)
}

func TestCreator(t *testing.T) {
	raw := decode(t, `{
		"id": 1234, "screen_name": "价值投资", "description": "长期主义",
		"city": "深圳", "province": "广东", "profile_image_url": "c.png",
		"followers_count": 1000, "friends_count": "20", "statuses_count": 300,
		"verified_type": 1, "verified_description": "基金经理"
	}`)

	c := Creator(raw)

	assert.Equal(t, "1234", c.UserID)
	assert.Equal(t, int64(1000), c.FollowersCount)
	assert.Equal(t, int64(20), c.FriendsCount)
	assert.Equal(t, int64(1), c.VerifiedType)
	assert.Equal(t, "深圳", c.City)
}

func TestCommentListPathsPriority(t *testing.T) {
	tests := []struct {
		name string
		body string
		want int
	}{
		{"list", `{"list": [{"id": 1}, {"id": 2}], "comments": [{"id": 3}]}`, 2},
		{"comments", `{"comments": [{"id": 3}]}`, 1},
		{"data.list", `{"data": {"list": [{"id": 1}, {"id": 2}, {"id": 3}]}}`, 3},
		{"data.comments", `{"data": {"comments": [{"id": 1}]}}`, 1},
		{"list not a list", `{"list": "x", "comments": [{"id": 1}]}`, 1},
		{"nothing", `{"data": {"items": []}}`, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Len(t, FirstList(decode(t, tt.body), CommentListPaths), tt.want)
		})
	}
}

func TestFirstObject(t *testing.T) {
	nested := decode(t, `{"status": {"id": 1}}`)
	assert.Equal(t, float64(1), FirstObject(nested, StatusPaths)["id"])

	root := decode(t, `{"id": 2, "text": "x"}`)
	assert.Equal(t, float64(2), FirstObject(root, StatusPaths)["id"])

	profile := decode(t, `{"user": {"id": 3}}`)
	assert.Equal(t, float64(3), FirstObject(profile, CreatorPaths)["id"])

	assert.Nil(t, FirstObject(map[string]any{}, StatusPaths))
}

func TestSynthesizeID(t *testing.T) {
	a := SynthesizeID("https://xueqiu.com/1/2", "text", "茅台")
	b := SynthesizeID("https://xueqiu.com/1/2", "text", "茅台")
	c := SynthesizeID("https://xueqiu.com/1/3", "text", "茅台")
	d := SynthesizeID("", "text", "五粮液")

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.NotEqual(t, a, d)
	assert.Len(t, a, 32)
}

const searchPage = `<html><body>
<article class="timeline_item">
  <a class="user-name" href="/u/1001">张三</a>
  <div class="avatar"><img src="https://img/1.png"></div>
  <a class="date-and-source" data-id="4001" href="/1001/4001">今天 09:30</a>
  <div class="timeline_item_bd">  茅台又涨了  </div>
</article>
<article class="timeline_item">
  <a class="user-name" href="/u/1002">李四</a>
  <a class="date-and-source" href="/1002/4002">昨天</a>
  <div class="timeline_item_ft">只有页脚</div>
</article>
<article class="timeline_item">
  <a class="user-name" href="/u/1003">王五</a>
  <div class="timeline_item_bd">没有链接的帖子</div>
</article>
<article class="timeline_item"><span>empty</span></article>
</body></html>`

func TestParseSearchHTML(t *testing.T) {
	items, err := ParseSearchHTML(searchPage)
	require.NoError(t, err)
	require.Len(t, items, 3)

	assert.Equal(t, "4001", items[0].ID)
	assert.Equal(t, "茅台又涨了", items[0].Text)
	assert.Equal(t, "1001", items[0].UserID)
	assert.Equal(t, "https://img/1.png", items[0].Avatar)
	assert.Equal(t, "https://xueqiu.com/1001/4001", items[0].StatusHref)

	assert.Equal(t, "4002", items[1].ID)
	assert.Equal(t, "1002", items[1].UserID)
	assert.Equal(t, "只有页脚", items[1].Text)

	assert.Equal(t, "", items[2].ID)
}

func TestStatusIDFromLink(t *testing.T) {
	tests := []struct {
		href string
		want string
	}{
		{"/1002/4002", "4002"},
		{"https://xueqiu.com/8152922548/301975196", "301975196"},
		{"/S/SH600519", "600519"},
		{"/about", ""},
		{"", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, statusIDFromLink(tt.href), tt.href)
	}
}

func TestDOMPostDerivedID(t *testing.T) {
	items, err := ParseSearchHTML(searchPage)
	require.NoError(t, err)

	native := Post(DOMPost(items[0], "茅台"))
	assert.Equal(t, "4001", native.ID)
	assert.Equal(t, models.IDKindNative, native.IDKind)
	assert.Equal(t, "今天 09:30", native.CreatedAtText)
	assert.Equal(t, int64(0), native.CreatedAt)
	assert.Equal(t, "dom_search", native.Source)
	assert.Equal(t, "茅台", native.TopicDesc)

	derived := Post(DOMPost(items[2], "茅台"))
	assert.Equal(t, SynthesizeID("", "没有链接的帖子", "茅台"), derived.ID)
	assert.Equal(t, models.IDKindDerived, derived.IDKind)
	assert.Equal(t, "", derived.StatusURL)
}
