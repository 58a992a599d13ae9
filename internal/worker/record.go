package worker

import (
	"encoding/json"
	"time"

	"github.com/pkg/errors"

	"github.com/SachioKuro/mqs/internal/protocol"
)

// LineRecord is the payload the file workers exchange through the broker:
// one line of the input file.
type LineRecord struct {
	ID        string    `json:"id"`
	Content   string    `json:"content"`
	LineNum   int       `json:"line_num"`
	Timestamp time.Time `json:"timestamp"`
}

func decodeRecord(e protocol.Entry) (LineRecord, error) {
	var rec LineRecord
	if err := json.Unmarshal(e.Payload, &rec); err != nil {
		return rec, errors.Wrapf(err, "decode record from queue %s", e.Queue)
	}
	return rec, nil
}
