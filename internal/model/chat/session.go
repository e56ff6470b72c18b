package chat

import "time"

// Session captures a transient anonymous conversation about one document.
type Session struct {
	ID            string    `json:"id"`
	CreatedAt     time.Time `json:"createdAt"`
	LastActiveAt  time.Time `json:"lastActiveAt"`
	HasDocument   bool      `json:"hasDocument"`
	DocumentName  string    `json:"documentName,omitempty"`
	DocumentChars int       `json:"documentChars,omitempty"`
	Pages         int       `json:"pages,omitempty"`
	Entries       int       `json:"entries"`
}
