package weibo

import (
	"fmt"

	"github.com/cespare/xxhash/v2"
)

// Post is one harvested Weibo post, flattened from the container API's
// mblog payload. The page controller only looks at Identity(); everything
// else is opaque payload handed to storage and export.
type Post struct {
	// Post information
	Mid            string `json:"mid"`
	CreatedAt      string `json:"created_at"`
	Text           string `json:"text"`
	TextLength     int    `json:"text_length"`
	Source         string `json:"source"`
	Favorited      bool   `json:"favorited"`
	RepostsCount   int    `json:"reposts_count"`
	CommentsCount  int    `json:"comments_count"`
	AttitudesCount int    `json:"attitudes_count"`
	PicNum         int    `json:"pic_num"`
	PicURLs        string `json:"pic_urls"`

	// User information
	UserID         int64  `json:"user_id"`
	ScreenName     string `json:"screen_name"`
	FollowCount    int    `json:"follow_count"`
	FollowersCount int    `json:"followers_count"`
	StatusesCount  int    `json:"statuses_count"`
	Verified       bool   `json:"verified"`
	VerifiedType   int    `json:"verified_type"`
	Gender         string `json:"gender"`

	// Additional metadata
	IsRepost   bool `json:"is_repost"`
	IsLongText bool `json:"is_long_text"`

	// Collection context, filled in by the page controller
	Location    string `json:"location"`
	Coordinates string `json:"coordinates"`
}

// Identity returns the stable identifier used for dedup within a
// location's result set. Falls back to a content hash when the API
// omits the mid.
func (p Post) Identity() string {
	if p.Mid != "" {
		return p.Mid
	}
	h := xxhash.New()
	_, _ = h.WriteString(p.CreatedAt)
	_, _ = h.WriteString("\x00")
	_, _ = h.WriteString(p.Text)
	return fmt.Sprintf("x%016x", h.Sum64())
}

// endOfDataMsg is the container API's explicit end-of-data signal,
// returned with ok=0 once a location's result set is exhausted.
const endOfDataMsg = "这里还没有内容"

// Card types carried in the container API response
const (
	cardTypePost  = 9  // a single post
	cardTypeGroup = 11 // a group container nesting type-9 cards
)

// Response is the top-level container API response
type Response struct {
	Ok   int           `json:"ok"`
	Msg  string        `json:"msg"`
	Data ContainerData `json:"data"`
}

// ContainerData wraps the card list of one result page
type ContainerData struct {
	CardlistInfo CardlistInfo `json:"cardlistInfo"`
	Cards        []Card       `json:"cards"`
}

// CardlistInfo carries the API's pagination hints. Page is the next page
// number the API expects, 0 when no further page exists.
type CardlistInfo struct {
	Total int `json:"total"`
	Page  int `json:"page"`
}

// Card is one entry of a result page. Type-9 cards carry a post directly;
// type-11 cards nest further cards in CardGroup.
type Card struct {
	CardType  int    `json:"card_type"`
	Mblog     *Mblog `json:"mblog,omitempty"`
	CardGroup []Card `json:"card_group,omitempty"`
}

// Mblog is the raw post payload as returned by the API
type Mblog struct {
	Mid             string     `json:"mid"`
	CreatedAt       string     `json:"created_at"`
	Text            string     `json:"text"`
	Source          string     `json:"source"`
	Favorited       bool       `json:"favorited"`
	RepostsCount    int        `json:"reposts_count"`
	CommentsCount   int        `json:"comments_count"`
	AttitudesCount  int        `json:"attitudes_count"`
	PicNum          int        `json:"pic_num"`
	IsLongText      bool       `json:"isLongText"`
	RetweetedStatus *Mblog     `json:"retweeted_status,omitempty"`
	User            *MblogUser `json:"user,omitempty"`
	Pics            []MblogPic `json:"pics,omitempty"`
}

// MblogUser is the author attributes nested inside an mblog
type MblogUser struct {
	ID             int64  `json:"id"`
	ScreenName     string `json:"screen_name"`
	FollowCount    int    `json:"follow_count"`
	FollowersCount int    `json:"followers_count"`
	StatusesCount  int    `json:"statuses_count"`
	Verified       bool   `json:"verified"`
	VerifiedType   int    `json:"verified_type"`
	Gender         string `json:"gender"`
}

// MblogPic is one attached image reference
type MblogPic struct {
	URL string `json:"url"`
}
