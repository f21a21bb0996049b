package enricher

import "time"

// StreamID is an opaque 40-character hex token identifying one live stream.
// Values produced by this package are always lowercase.
type StreamID string

// Observation is one parsed row from the usage feed or the status endpoint.
// User is empty for plain per-stream client counts. FromStatus rows carry
// presence only, not a client count.
type Observation struct {
	StreamID   StreamID
	User       string
	Clients    int
	FromStatus bool
}

// UserChannel keys the per-user, per-channel aggregate.
type UserChannel struct {
	User    string
	Channel string
}

// Snapshot is the aggregate result of one cycle. It fully replaces the
// previously published snapshot.
type Snapshot struct {
	Channels     map[string]int
	UserChannels map[UserChannel]int
}

// NewSnapshot returns an empty snapshot with initialized maps.
func NewSnapshot() Snapshot {
	return Snapshot{
		Channels:     make(map[string]int),
		UserChannels: make(map[UserChannel]int),
	}
}

// Channel is a directory entry from the paginated listing.
type Channel struct {
	ID   ChannelID `json:"id"`
	Name string    `json:"name"`
}

// ChannelPage is one page of the directory listing.
type ChannelPage struct {
	Channels   []Channel
	TotalPages int // negative when the response did not declare it
}

// CycleStatus describes the outcome of the most recent cycle.
type CycleStatus struct {
	At       time.Time `json:"last_cycle_at"`
	Result   string    `json:"last_cycle_result"`
	Channels int       `json:"channels"`
}
