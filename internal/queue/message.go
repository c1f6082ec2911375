package queue

import (
	"fmt"
	"strings"
)

// DueMessage names a note that became claimable. It grants no ownership: the
// worker that wakes up still has to win the claim.
type DueMessage struct {
	NoteID string `json:"noteId"`
}

func (m DueMessage) Validate() error {
	if strings.TrimSpace(m.NoteID) == "" {
		return fmt.Errorf("noteId is required")
	}
	return nil
}
