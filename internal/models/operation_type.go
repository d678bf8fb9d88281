package models

import "time"

// OperationType is the sole authoritative source of the token cost charged
// for a generation kind. Callers must not hardcode costs; they look the
// current row up by Code. MaxInputImages counts reference images only —
// for image_multiple_reference the single target image is tracked and
// capped separately (exactly one, always required).
type OperationType struct {
	Code               string    `db:"code" json:"code"`
	DisplayName        string    `db:"display_name" json:"displayName"`
	TokensPerOperation int64     `db:"tokens_per_operation" json:"tokensPerOperation"`
	MaxInputImages     int       `db:"max_input_images" json:"maxInputImages"`
	Enabled            bool      `db:"enabled" json:"enabled"`
	CreatedAt          time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt          time.Time `db:"updated_at" json:"updatedAt"`
}

const (
	OperationTextToImage          = "text_to_image"
	OperationImageReference       = "image_reference"
	OperationImageMultiReference  = "image_multiple_reference"
)
