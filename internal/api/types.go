package api

import "github.com/matheus3301/chatbox/internal/model"

type StatusReply struct {
	Session   string           `json:"session"`
	State     string           `json:"state"`
	Advisory  string           `json:"advisory,omitempty"`
	UptimeMs  int64            `json:"uptimeMs"`
	Principal *model.Principal `json:"principal,omitempty"`
}

type SignUpRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type SignInRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type PrincipalReply struct {
	Principal *model.Principal `json:"principal"`
}

type ProfileRequest struct {
	Name       string `json:"name"`
	Bio        string `json:"bio"`
	AvatarPath string `json:"avatarPath,omitempty"`
}

type SessionEvent struct {
	Kind      string           `json:"kind"`
	Principal *model.Principal `json:"principal,omitempty"`
	Advisory  string           `json:"advisory,omitempty"`
}

type ChatsReply struct {
	Entries []model.Entry `json:"entries"`
}

type SearchRequest struct {
	Query string `json:"query"`
}

type UsersReply struct {
	Users []model.Principal `json:"users"`
}

type StartChatRequest struct {
	PrincipalID string `json:"principalId"`
}

type StartChatReply struct {
	ConversationID string `json:"conversationId"`
	Created        bool   `json:"created"`
}

type ConversationRequest struct {
	ConversationID string `json:"conversationId"`
}

type MessagesReply struct {
	Messages []model.Message `json:"messages"`
}

// SendRequest carries either Text or ImagePath. ImagePath is read by the
// daemon, so it must be reachable from the daemon's file system. The
// recipient is resolved from the sender's directory.
type SendRequest struct {
	ConversationID string `json:"conversationId"`
	Text           string `json:"text,omitempty"`
	ImagePath      string `json:"imagePath,omitempty"`
}

// LikeRequest names the target by id, or by createdAt for messages stored
// without one.
type LikeRequest struct {
	ConversationID string `json:"conversationId"`
	MessageID      string `json:"messageId,omitempty"`
	CreatedAt      int64  `json:"createdAt,omitempty"`
}

type RepairsReply struct {
	Repairs []Repair `json:"repairs"`
}

type Repair struct {
	ConversationID string `json:"conversationId"`
	OwnerID        string `json:"ownerId"`
	CounterpartyID string `json:"counterpartyId"`
}
