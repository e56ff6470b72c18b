package ai

import (
	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/schema"
)

// DefaultContextLimit is how many characters of the document reach the model.
const DefaultContextLimit = 4000

const documentSystemPrompt = `You are a helpful chatbot that answers questions based on the following PDF content:
{context}

Provide a clear, concise answer based on the PDF content. If the answer is not in the content, say so.`

// NewDocumentPrompt returns the template filled with "context" and "question".
func NewDocumentPrompt() prompt.ChatTemplate {
	return prompt.FromMessages(
		schema.FString,
		schema.SystemMessage(documentSystemPrompt),
		schema.UserMessage("User question: {question}"),
	)
}

// TruncateContext keeps the first limit characters (runes) of text.
func TruncateContext(text string, limit int) string {
	if limit <= 0 {
		return ""
	}

	count := 0
	for i := range text {
		if count == limit {
			return text[:i]
		}
		count++
	}
	return text
}
