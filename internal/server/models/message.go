package models

import "time"

// Attachment describes an uploaded file referenced by a message. Key is the
// object key in blob storage; when set, FileURL is resolved from it each
// time the message is read.
type Attachment struct {
	Key      string `json:"key,omitempty"`
	FileURL  string `json:"fileUrl"`
	FileName string `json:"fileName"`
	FileType string `json:"fileType"`
}

// Message is a stored chat message. CipherText and IV are what is persisted;
// Text is filled in when the message is decrypted for delivery.
type Message struct {
	ID             string      `json:"id"`
	Seq            int64       `json:"seq"`
	ConversationID string      `json:"conversationId"`
	SenderID       string      `json:"senderId"`
	CipherText     string      `json:"-"`
	IV             string      `json:"-"`
	Text           string      `json:"text"`
	CreatedAt      time.Time   `json:"createdAt"`
	Attachment     *Attachment `json:"attachment,omitempty"`
}

// Encrypted reports whether the message carries ciphertext. File-only
// messages without a caption have none.
func (m *Message) Encrypted() bool {
	return m.CipherText != "" || m.IV != ""
}
