package models

import (
	"time"
)

// InboundMessage is one command received from a chat front end.
type InboundMessage struct {
	RequestID    string    `json:"request_id"`
	ChatID       int64     `json:"chat_id"`
	UserID       int64     `json:"user_id"`
	UserName     string    `json:"user_name"`
	Text         string    `json:"text"`
	Command      string    `json:"command,omitempty"` // lower-case, no slash, no @bot suffix
	Args         []string  `json:"args,omitempty"`
	CallbackID   string    `json:"callback_id,omitempty"`
	CallbackData string    `json:"callback_data,omitempty"`
	ReceivedAt   time.Time `json:"received_at"`
}

// IsCallback reports whether the message came from an inline keyboard button.
func (m InboundMessage) IsCallback() bool {
	return m.CallbackData != ""
}

// Button is an inline keyboard button: either a callback (Data) or a link (URL).
type Button struct {
	Text string `json:"text"`
	Data string `json:"data,omitempty"`
	URL  string `json:"url,omitempty"`
}

// Result is the reply returned to the chat front end.
type Result struct {
	RequestID string        `json:"request_id"`
	Success   bool          `json:"success"`
	Text      string        `json:"text"` // HTML, already escaped
	Photos    []string      `json:"photos,omitempty"`
	Buttons   []Button      `json:"buttons,omitempty"`
	Error     string        `json:"error,omitempty"` // error kind, empty on success
	Took      time.Duration `json:"took"`
}

// Profile is the subset of an Instagram account the relay shows.
type Profile struct {
	Username    string `json:"username"`
	FullName    string `json:"full_name"`
	Biography   string `json:"biography"`
	ExternalURL string `json:"external_url"`
	PictureURL  string `json:"picture_url"`
	Followers   int    `json:"followers"`
	Following   int    `json:"following"`
	MediaCount  int    `json:"media_count"`
	IsPrivate   bool   `json:"is_private"`
	IsVerified  bool   `json:"is_verified"`
}

// Media types of a Post.
const (
	MediaPhoto    = "photo"
	MediaVideo    = "video"
	MediaCarousel = "carousel"
)

// Post is one feed item.
type Post struct {
	Code      string    `json:"code"`
	Caption   string    `json:"caption"`
	MediaType string    `json:"media_type"`
	ImageURL  string    `json:"image_url"`
	VideoURL  string    `json:"video_url,omitempty"`
	Likes     int       `json:"likes"`
	Comments  int       `json:"comments"`
	TakenAt   time.Time `json:"taken_at"`
}

// URL returns the public permalink of the post.
func (p Post) URL() string {
	return "https://www.instagram.com/p/" + p.Code + "/"
}
