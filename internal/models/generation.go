package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// GenerationStatus tracks a generation job through its lifecycle. Once a
// generation reaches a terminal status (Completed, Failed, or Cancelled)
// it never transitions again.
type GenerationStatus string

const (
	GenerationQueued     GenerationStatus = "queued"
	GenerationProcessing GenerationStatus = "processing"
	GenerationCompleted  GenerationStatus = "completed"
	GenerationFailed     GenerationStatus = "failed"
	GenerationCancelled  GenerationStatus = "cancelled"
)

// IsTerminal reports whether a generation can no longer change status.
func (s GenerationStatus) IsTerminal() bool {
	return s == GenerationCompleted || s == GenerationFailed || s == GenerationCancelled
}

// ReferenceType narrows how an image_reference/image_multiple_reference
// generation should use its reference image(s).
type ReferenceType string

const (
	ReferenceSubject   ReferenceType = "subject"
	ReferenceFace      ReferenceType = "face"
	ReferenceFullImage ReferenceType = "full_image"
)

// StringList is a JSON-encoded []string used for sqlx JSONB columns.
type StringList []string

func (l StringList) Value() (driver.Value, error) {
	if l == nil {
		return "[]", nil
	}
	return json.Marshal(l)
}

func (l *StringList) Scan(value interface{}) error {
	if value == nil {
		*l = nil
		return nil
	}
	var data []byte
	switch v := value.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("unsupported type for StringList: %T", value)
	}
	return json.Unmarshal(data, l)
}

// InputRef records one resolved input image attached to a generation
// request (either a prior upload or a freshly ingested file).
type InputRef struct {
	UploadID uuid.UUID `json:"uploadId"`
	URL      string    `json:"url"`
}

// InputRefList is the JSONB-encoded list of input images for a generation.
// TargetInput reuses the same type holding zero or one element, since a
// JSONB array scans/round-trips identically whether it models "many
// reference images" or "one optional target image".
type InputRefList []InputRef

func (l InputRefList) Value() (driver.Value, error) {
	if l == nil {
		return "[]", nil
	}
	return json.Marshal(l)
}

func (l *InputRefList) Scan(value interface{}) error {
	if value == nil {
		*l = nil
		return nil
	}
	var data []byte
	switch v := value.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("unsupported type for InputRefList: %T", value)
	}
	return json.Unmarshal(data, l)
}

// JSONMap is a JSONB-encoded free-form object, used for Generation's
// request-side Metadata and response-side AIMetadata columns.
type JSONMap map[string]interface{}

func (m JSONMap) Value() (driver.Value, error) {
	if m == nil {
		return "{}", nil
	}
	return json.Marshal(m)
}

func (m *JSONMap) Scan(value interface{}) error {
	if value == nil {
		*m = nil
		return nil
	}
	var data []byte
	switch v := value.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("unsupported type for JSONMap: %T", value)
	}
	return json.Unmarshal(data, m)
}

// Generation is one request for N images: a prompt, an operation kind,
// zero or more resolved input images, and the eventual output(s) once a
// worker completes it. Tokens are charged exactly once, on success
// (§4.F step 7); TokensCharged stays zero for a failed or cancelled row.
type Generation struct {
	GenerationID     uuid.UUID        `db:"generation_id" json:"generationId"`
	UserID           uuid.UUID        `db:"user_id" json:"userId"`
	ProjectID        *uuid.UUID       `db:"project_id" json:"projectId,omitempty"`
	OperationType    string           `db:"operation_type" json:"operationType"`
	Prompt           string           `db:"prompt" json:"prompt"`
	NegativePrompt   *string          `db:"negative_prompt" json:"negativePrompt,omitempty"`
	PromptTemplateID *string          `db:"prompt_template_id" json:"promptTemplateId,omitempty"`
	ReferenceType    *ReferenceType   `db:"reference_type" json:"referenceType,omitempty"`
	Model            string           `db:"model" json:"model"`
	Inputs           InputRefList     `db:"inputs" json:"inputs"`
	TargetInput      InputRefList     `db:"target_input" json:"targetInput,omitempty"`
	NumberOfImages   int              `db:"number_of_images" json:"numberOfImages"`
	AspectRatio      *string          `db:"aspect_ratio" json:"aspectRatio,omitempty"`
	Status           GenerationStatus `db:"status" json:"status"`
	Progress         int              `db:"progress" json:"progress"`
	OutputURLs       StringList       `db:"output_urls" json:"outputUrls"`
	Metadata         JSONMap          `db:"metadata" json:"metadata,omitempty"`
	AIMetadata       JSONMap          `db:"ai_metadata" json:"aiMetadata,omitempty"`
	ErrorMessage     *string          `db:"error_message" json:"errorMessage,omitempty"`
	TokensCharged    int64            `db:"tokens_charged" json:"tokensCharged"`
	LedgerTxnID      *uuid.UUID       `db:"ledger_txn_id" json:"ledgerTxnId,omitempty"`
	QueuedAt         time.Time        `db:"queued_at" json:"queuedAt"`
	StartedAt        *time.Time       `db:"started_at" json:"startedAt,omitempty"`
	CompletedAt      *time.Time       `db:"completed_at" json:"completedAt,omitempty"`
	CreatedAt        time.Time        `db:"created_at" json:"createdAt"`
	UpdatedAt        time.Time        `db:"updated_at" json:"updatedAt"`
}
