package telegram

import "time"

type Config struct {
	// APIBaseURL overrides the bot API host, mainly for tests.
	APIBaseURL  string
	Token       string
	ChatID      string
	PollTimeout time.Duration
}

// Update is one inbound item from getUpdates.
type Update struct {
	UpdateID int64    `json:"update_id"`
	Message  *Message `json:"message"`
}

type Message struct {
	Text string `json:"text"`
	Chat Chat   `json:"chat"`
	From *User  `json:"from"`
}

type Chat struct {
	ID   int64  `json:"id"`
	Type string `json:"type"`
}

type User struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
}
