package types

import (
	"encoding/json"
	"time"
)

// InstructionRecord is an audit entry for an instruction the host executed or
// a completion notice it delivered.
type InstructionRecord struct {
	ID          int64           `json:"id"`
	Action      string          `json:"action"`
	BlockHeight uint64          `json:"block_height"`
	Correlation uint64          `json:"correlation"`
	Payload     json.RawMessage `json:"payload"`
	CreatedAt   time.Time       `json:"created_at"`
}
