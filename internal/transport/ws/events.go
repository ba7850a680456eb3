package ws

// Client payload shapes. The userId fields exist for wire compatibility, but
// the authenticated identity attached to the connection is authoritative.

type joinRoomPayload struct {
	GroupID string `json:"groupId"`
}

type sendMessagePayload struct {
	GroupID string `json:"groupId"`
	UserID  string `json:"userId"`
	Content string `json:"content"`
}

type updateNotePayload struct {
	GroupID string `json:"groupId"`
	UserID  string `json:"userId"`
	Content string `json:"content"`
}

type createQuestionPayload struct {
	GroupID  string `json:"groupId"`
	UserID   string `json:"userId"`
	Question string `json:"question"`
}

type answerQuestionPayload struct {
	GroupID    string `json:"groupId"`
	UserID     string `json:"userId"`
	QuestionID string `json:"questionId"`
	Answer     string `json:"answer"`
}

type startVideoCallPayload struct {
	GroupID  string `json:"groupId"`
	UserID   string `json:"userId"`
	UserName string `json:"userName"`
}

type joinVideoCallPayload struct {
	CallID   string `json:"callId"`
	GroupID  string `json:"groupId"`
	UserID   string `json:"userId"`
	UserName string `json:"userName"`
}

type leaveVideoCallPayload struct {
	CallID  string `json:"callId"`
	GroupID string `json:"groupId"`
	UserID  string `json:"userId"`
}

type endVideoCallPayload struct {
	CallID  string `json:"callId"`
	GroupID string `json:"groupId"`
	UserID  string `json:"userId"`
}

type toggleMediaPayload struct {
	CallID    string `json:"callId"`
	UserID    string `json:"userId"`
	MediaType string `json:"mediaType"`
	Enabled   bool   `json:"enabled"`
}

// signalPayload is the routing header of a WebRTC negotiation message. The
// rest of the payload (SDP/ICE body) is never interpreted here.
type signalPayload struct {
	From   string `json:"from"`
	To     string `json:"to"`
	CallID string `json:"callId"`
}
