package record

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusProcessed Status = "processed"
)

// Record is one unit of ingested data. The id is minted by the ingesting
// process before the record ever touches the queue, so the job and the
// eventual persisted row share identity.
type Record struct {
	ID        string          `json:"id"`
	Source    string          `json:"source"`
	Value     float64         `json:"value"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Status    Status          `json:"status"`
	CreatedAt time.Time       `json:"createdAt"`
}

// IngestItem is the caller-supplied shape of one record. Value is a pointer
// so a missing field is distinguishable from an explicit zero.
type IngestItem struct {
	Source  string          `json:"source"`
	Value   *float64        `json:"value"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// New builds a pending Record from an already-validated IngestItem.
func New(item IngestItem) Record {
	var value float64
	if item.Value != nil {
		value = *item.Value
	}
	return Record{
		ID:      uuid.NewString(),
		Source:  item.Source,
		Value:   value,
		Payload: item.Payload,
		Status:  StatusPending,
	}
}
