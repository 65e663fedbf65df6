package peerchat

import (
	"encoding/json"
	"time"

	"github.com/putto11262002/peerchat/core"
)

// ICEServer is one STUN or TURN server. URLs may arrive as a string or a list.
type ICEServer struct {
	URLs       StringList `json:"urls"`
	Username   string     `json:"username,omitempty"`
	Credential string     `json:"credential,omitempty"`
}

type RTCConfig struct {
	ICEServers     []ICEServer `json:"iceServers"`
	PeerServerHost string      `json:"peerServerHost,omitempty"`
	PeerServerPort int         `json:"peerServerPort,omitempty"`
	PeerServerPath string      `json:"peerServerPath,omitempty"`
	PeerServerKey  string      `json:"peerServerKey,omitempty"`
}

// FileData is a file body delivered by the backend on request.
type FileData struct {
	ID         string    `json:"fileId"`
	RoomKey    string    `json:"roomKey,omitempty"`
	Name       string    `json:"name"`
	MimeType   string    `json:"mimeType"`
	Data       []byte    `json:"data"`
	ReceivedAt time.Time `json:"receivedAt"`
}

// OngoingCall is a call announced in one of our rooms.
type OngoingCall struct {
	Scope     core.CallScope `json:"scope"`
	From      string         `json:"from"`
	StartedAt time.Time      `json:"startedAt"`
}

// clientState is everything the event loop owns besides the room logs.
type clientState struct {
	identity *core.Profile
	records  map[string]core.Room
	focus    core.Focus
	rtc      *RTCConfig
	peers    core.KeySet
	files    map[string]FileData
	ongoing  map[string]OngoingCall
	// rings maps a call id to the dialog ringing for it.
	rings map[string]string
}

func newClientState() *clientState {
	return &clientState{
		records: make(map[string]core.Room),
		peers:   core.NewKeySet(),
		files:   make(map[string]FileData),
		ongoing: make(map[string]OngoingCall),
		rings:   make(map[string]string),
	}
}

// resetSession drops what only holds for one backend connection.
func (s *clientState) resetSession() {
	s.peers = core.NewKeySet()
	s.ongoing = make(map[string]OngoingCall)
	s.rings = make(map[string]string)
}

func (s *clientState) localKey() string {
	if s.identity == nil {
		return ""
	}
	return s.identity.PublicKey
}

func (s *clientState) writable(roomKey string) bool {
	r, ok := s.records[roomKey]
	return ok && r.Writable
}

// StringList decodes either a JSON string or an array of strings.
type StringList []string

func (l *StringList) UnmarshalJSON(b []byte) error {
	var one string
	if err := json.Unmarshal(b, &one); err == nil {
		*l = StringList{one}
		return nil
	}
	var many []string
	if err := json.Unmarshal(b, &many); err != nil {
		return err
	}
	*l = many
	return nil
}
