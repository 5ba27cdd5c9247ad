package domain

import (
	"strings"
	"time"
)

// Transcript line prefixes.
const (
	CustomerPrefix = "Customer: "
	ChatbotPrefix  = "Chatbot: "
)

// Conversation is the persisted transcript owned by an account.
type Conversation struct {
	ID         int64     `json:"id"`
	AccountID  *int64    `json:"account_id,omitempty"`
	Transcript string    `json:"conversation_data"`
	CreatedAt  time.Time `json:"created_at"`
}

// AppendCustomer returns transcript with a customer line appended.
func AppendCustomer(transcript, text string) string {
	return transcript + CustomerPrefix + text + "\n"
}

// AppendChatbot returns transcript with a chatbot line appended.
func AppendChatbot(transcript, text string) string {
	return transcript + ChatbotPrefix + text + "\n"
}

// CountTurns returns the number of customer and chatbot lines in transcript.
// Continuation lines of multi-line replies are not counted.
func CountTurns(transcript string) (customer, chatbot int) {
	for _, line := range strings.Split(transcript, "\n") {
		switch {
		case strings.HasPrefix(line, CustomerPrefix):
			customer++
		case strings.HasPrefix(line, ChatbotPrefix):
			chatbot++
		}
	}
	return customer, chatbot
}
