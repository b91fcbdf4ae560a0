package workflow

import (
	"time"

	"github.com/ledgerrun/ledgerrun/id"
)

// Checkpoint records the completed outcome of a named step within a
// run. On replay after a crash or retry, a step whose checkpoint exists
// is skipped and its recorded data is returned instead of re-executing.
type Checkpoint struct {
	ID        id.CheckpointID `json:"id"`
	RunID     id.RunID        `json:"run_id"`
	StepName  string          `json:"step_name"`
	Data      []byte          `json:"data,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}
