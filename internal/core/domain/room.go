package domain

// Room is the provider's view of a call room. It is fetched per call and
// never owned by the relay.
type Room struct {
	Name            string      `json:"roomName"`
	Exists          bool        `json:"exists"`
	MaxParticipants int         `json:"maxParticipants,omitempty"`
	ICEServers      []ICEServer `json:"iceServers,omitempty"`
}

// ICEServer is one traversal credential: a STUN or TURN address plus the
// optional secret needed to use it.
type ICEServer struct {
	URL        string `json:"url"`
	Username   string `json:"username,omitempty"`
	Credential string `json:"credential,omitempty"`
	Protocol   string `json:"protocol,omitempty"`
}
