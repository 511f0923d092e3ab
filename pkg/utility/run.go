package utility

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// RunID identifies one frontier run across all log lines it produces.
type RunID = uuid.UUID

// NewRunID returns a time-ordered (v7) identifier.
func NewRunID() RunID {
	return uuid.Must(uuid.NewV7())
}

func ParseRunID(s string) (RunID, error) {
	id, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, fmt.Errorf("unable to parse run id %q: %w", s, err)
	}
	if id.Version() != 7 {
		return uuid.Nil, fmt.Errorf("run id %q is version %d, expected 7", s, id.Version())
	}
	return id, nil
}

// RunTime extracts the creation time embedded in a run id.
func RunTime(id RunID) time.Time {
	sec, nsec := id.Time().UnixTime()
	return time.Unix(sec, nsec)
}
