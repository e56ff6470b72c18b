package chat

import "time"

// Entry is one answered question. Entries are immutable once stored.
type Entry struct {
	Question string    `json:"question"`
	Answer   string    `json:"answer"`
	AskedAt  time.Time `json:"askedAt"`
}
