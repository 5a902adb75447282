// Package publisher defines the notifications sent to downstream report
// consumers. Implementations live in the memory and pubsub subpackages.
package publisher

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/JakeFAU/riftlens/internal/riftlens"
)

// EventReportUpdated is the event attribute of ReportUpdated messages.
const EventReportUpdated = "report.updated"

// Attributer is implemented by payloads that carry message attributes.
type Attributer interface {
	Attributes() map[string]string
}

// ReportUpdated announces that an entity report gained matches and had its
// aggregates refreshed.
type ReportUpdated struct {
	PlayerID     riftlens.EntityID `json:"player_id"`
	DisplayName  string            `json:"display_name"`
	Matches      int               `json:"matches"`
	Appended     int               `json:"appended"`
	WorstMatchID string            `json:"worst_match_id,omitempty"`
	Timestamp    string            `json:"timestamp"`
}

// NewReportUpdated builds the notification for r.
func NewReportUpdated(r riftlens.EntityReport, appended int, now time.Time) ReportUpdated {
	msg := ReportUpdated{
		PlayerID:    r.ID,
		DisplayName: r.DisplayName,
		Matches:     len(r.MatchHistory),
		Appended:    appended,
		Timestamp:   now.UTC().Format(time.RFC3339),
	}
	if r.WorstGameStats != nil {
		msg.WorstMatchID = r.WorstGameStats.MatchID
	}
	return msg
}

// Attributes implements Attributer.
func (m ReportUpdated) Attributes() map[string]string {
	return map[string]string{
		"event":     EventReportUpdated,
		"player_id": m.PlayerID,
	}
}

// Encode marshals payload to JSON and collects its attributes.
func Encode(payload any) ([]byte, map[string]string, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, nil, fmt.Errorf("marshal payload: %w", err)
	}
	attrs := map[string]string{}
	if a, ok := payload.(Attributer); ok {
		for k, v := range a.Attributes() {
			attrs[k] = v
		}
	}
	return data, attrs, nil
}
