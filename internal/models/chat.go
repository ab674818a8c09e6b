package models

import "time"

// AdminSenderId is the shared sender identity of every admin chat message.
const AdminSenderId = "admin"

// ChatMessage is one append-only entry in a request's chat thread.
type ChatMessage struct {
	Id          string    `json:"id"`
	RequestId   string    `json:"request_id"`
	SenderId    string    `json:"sender_id"`
	SenderEmail string    `json:"sender_email"`
	Text        string    `json:"text"`
	IsAdmin     bool      `json:"is_admin"`
	Timestamp   time.Time `json:"timestamp"`
}

// ChatThread is the listing metadata kept alongside a request's messages.
type ChatThread struct {
	RequestId    string    `json:"request_id"`
	Participants []string  `json:"participants"`
	LastMessage  string    `json:"last_message"`
	LastSender   string    `json:"last_sender"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// ChatViewer describes who is looking at a thread.
type ChatViewer struct {
	UserId    string
	AdminView bool
}

// IsMine applies the two-role display rule. The admin role is shared, so an
// admin viewer owns every admin message; a requester owns only the non-admin
// messages carrying their own id.
func (m ChatMessage) IsMine(v ChatViewer) bool {
	if v.AdminView {
		return m.IsAdmin
	}
	return !m.IsAdmin && m.SenderId == v.UserId
}
