package models

// Attachment describes the single binary file bound to a question.
// StorageKey is unique per upload and never reused.
type Attachment struct {
	RecordID    string `json:"record_id"`
	DisplayName string `json:"display_name"`
	StorageKey  string `json:"-"`
	ByteSize    int64  `json:"byte_size"`
	ContentType string `json:"content_type"`
}
