package sections

// Stats counts what a Harness has seen since it was created.
type Stats struct {
	Receives    int64   `json:"receives"`
	Points      int64   `json:"points"`
	Demoted     int64   `json:"demoted"`
	Sections    int64   `json:"sections"`
	Runs        int64   `json:"runs"`
	LastOutcome Outcome `json:"last_outcome"`
}
