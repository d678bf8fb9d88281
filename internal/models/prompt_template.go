package models

import "time"

// PromptTemplate is a reusable, named prompt prefix offered to
// clients as a starting point for a generation request.
type PromptTemplate struct {
	TemplateID    string    `db:"template_id" json:"templateId"`
	Name          string    `db:"name" json:"name"`
	Category      string    `db:"category" json:"category"`
	PromptText    string    `db:"prompt_text" json:"promptText"`
	OperationType string    `db:"operation_type" json:"operationType"`
	IsActive      bool      `db:"is_active" json:"isActive"`
	CreatedAt     time.Time `db:"created_at" json:"createdAt"`
}
