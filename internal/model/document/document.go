package document

import "time"

// Document is the normalized text extracted from an uploaded PDF.
type Document struct {
	Name       string    `json:"name"`
	Text       string    `json:"-"`
	Pages      int       `json:"pages"`
	Size       int64     `json:"size"`
	UploadedAt time.Time `json:"uploadedAt"`
}

// Chars returns the length of Text in characters.
func (d Document) Chars() int {
	return len([]rune(d.Text))
}
