package recordings

// Provider webhook event names.
const (
	EventEgressStarted   = "egress_started"
	EventEgressUpdated   = "egress_updated"
	EventEgressEnded     = "egress_ended"
	EventRoomStarted     = "room_started"
	EventRoomFinished    = "room_finished"
	EventParticipantJoin = "participant_joined"
	EventParticipantLeft = "participant_left"
)

// Event is the provider webhook envelope. Only the fields this pipeline reads
// are declared; every event carries an egress or room key to locate the session.
type Event struct {
	Event       string           `json:"event"`
	ID          string           `json:"id"`
	CreatedAt   int64            `json:"createdAt"`
	EgressInfo  *EgressInfo      `json:"egressInfo,omitempty"`
	Room        *RoomInfo        `json:"room,omitempty"`
	Participant *ParticipantInfo `json:"participant,omitempty"`
}

// EgressInfo describes the provider-side recording job state.
type EgressInfo struct {
	EgressID    string       `json:"egressId"`
	RoomName    string       `json:"roomName"`
	Status      string       `json:"status"`
	Error       string       `json:"error,omitempty"`
	FileResults []FileResult `json:"fileResults,omitempty"`
}

// FileResult describes a produced media file.
type FileResult struct {
	Filename string `json:"filename"`
	Location string `json:"location"`
	Duration int64  `json:"duration"` // nanoseconds
	Size     int64  `json:"size"`
}

// RoomInfo identifies the live room an event concerns.
type RoomInfo struct {
	Name string `json:"name"`
}

// ParticipantInfo identifies a room participant.
type ParticipantInfo struct {
	Identity string `json:"identity"`
	Name     string `json:"name,omitempty"`
}
