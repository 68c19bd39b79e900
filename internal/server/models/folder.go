// Package models defines the server-side records persisted in the database
// and carried in user sessions.
package models

import "time"

type Folder struct {
	ID        string     `json:"id"`
	UserID    string     `json:"user_id"`
	Name      string     `json:"name"`
	CreatedAt time.Time  `json:"created_at"`
	Questions []Question `json:"questions,omitempty"`
}
