package riftlens

// Account is the account-v1 payload.
type Account struct {
	PUUID    string `json:"puuid"`
	GameName string `json:"gameName"`
	TagLine  string `json:"tagLine"`
}

// RawMatch is a match-v5 payload. Info fields stay loosely typed so that
// coercion happens in one place, the normalizer.
type RawMatch struct {
	Metadata RawMatchMetadata `json:"metadata"`
	Info     RawMatchInfo     `json:"info"`
}

// RawMatchMetadata carries the match id and the participant ids.
type RawMatchMetadata struct {
	MatchID      string   `json:"matchId"`
	Participants []string `json:"participants"`
}

// RawMatchInfo holds the match body.
type RawMatchInfo struct {
	GameCreation any              `json:"gameCreation"`
	GameDuration any              `json:"gameDuration"`
	GameMode     any              `json:"gameMode"`
	QueueID      any              `json:"queueId"`
	Participants []RawParticipant `json:"participants"`
}

// RawParticipant is one participant object exactly as received.
type RawParticipant map[string]any

// PUUID returns the participant id when it is a non-empty string.
func (p RawParticipant) PUUID() string {
	if s, ok := p["puuid"].(string); ok {
		return s
	}
	return ""
}

// ParticipantIDs lists participant ids from the info block, falling back to
// metadata when info is empty.
func (m RawMatch) ParticipantIDs() []string {
	ids := make([]string, 0, len(m.Info.Participants))
	for _, p := range m.Info.Participants {
		if id := p.PUUID(); id != "" {
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		for _, id := range m.Metadata.Participants {
			if id != "" {
				ids = append(ids, id)
			}
		}
	}
	return ids
}
