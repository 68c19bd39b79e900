package models

import "time"

// Question is a note inside a folder. Optional text fields are nil when unset.
type Question struct {
	ID             string      `json:"id"`
	UserID         string      `json:"user_id"`
	FolderID       string      `json:"folder_id"`
	Title          string      `json:"title"`
	Description    *string     `json:"description"`
	Notes          *string     `json:"notes"`
	Links          []string    `json:"links"`
	Code           *string     `json:"code"`
	TerminalOutput *string     `json:"terminal_output,omitempty"`
	Attachment     *Attachment `json:"attachment,omitempty"`
	CreatedAt      time.Time   `json:"created_at"`
	UpdatedAt      time.Time   `json:"updated_at"`
}
