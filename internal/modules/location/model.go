// README: Agent position snapshots for persistence and replay.
package location

import (
	"time"

	"vrent/internal/types"
)

type Snapshot struct {
	ID         int64       `json:"id"`
	AgentID    types.ID    `json:"agent_id"`
	Position   types.Point `json:"position"`
	RecordedAt time.Time   `json:"recorded_at"`
}

type Update struct {
	AgentID  types.ID    `json:"agent_id"`
	Position types.Point `json:"position"`
	At       time.Time   `json:"at"`
}
