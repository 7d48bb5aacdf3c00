package model

import "unicode/utf8"

// Backend collection names.
const (
	UsersCollection         = "users"
	DirectoriesCollection   = "chats"
	ConversationsCollection = "messages"
)

// Default profile values assigned at sign-up.
const (
	DefaultBio    = "Hi there! I am using chat app"
	DefaultAvatar = "https://storage.chatbox.invalid/images/avatar_icon.png"
)

// ImagePreview is the last-message preview used for image messages.
const ImagePreview = "Image"

// PreviewLength is the number of characters kept in a last-message preview.
const PreviewLength = 30

// Principal is a registered user account as stored in users/<id>.
type Principal struct {
	ID       string `json:"id"`
	Email    string `json:"email"`
	Username string `json:"username"`
	Name     string `json:"name"`
	Avatar   string `json:"avatar"`
	Bio      string `json:"bio"`
	LastSeen int64  `json:"lastSeen"`
}

// DisplayName returns the name, falling back to the username.
func (p *Principal) DisplayName() string {
	if p == nil {
		return ""
	}
	if p.Name != "" {
		return p.Name
	}
	return p.Username
}

// ConversationSummary is one side's view of a conversation, stored in the
// owner's directory.
type ConversationSummary struct {
	ConversationID string `json:"messageId"`
	CounterpartyID string `json:"rId"`
	LastMessage    string `json:"lastMessage"`
	UpdatedAt      int64  `json:"updatedAt"`
	Seen           bool   `json:"messageSeen"`
}

// Directory is the chats/<principal> document.
type Directory struct {
	Summaries []ConversationSummary `json:"chatsData"`
}

// Find returns the index of the summary for conversationID, or -1.
func (d *Directory) Find(conversationID string) int {
	for i, s := range d.Summaries {
		if s.ConversationID == conversationID {
			return i
		}
	}
	return -1
}

// FindCounterparty returns the index of the first summary referencing
// counterpartyID, or -1.
func (d *Directory) FindCounterparty(counterpartyID string) int {
	for i, s := range d.Summaries {
		if s.CounterpartyID == counterpartyID {
			return i
		}
	}
	return -1
}

// Message is a single entry of a conversation. Exactly one of Text and Image
// is set.
type Message struct {
	ID        string `json:"id,omitempty"`
	SenderID  string `json:"sId"`
	Text      string `json:"text,omitempty"`
	Image     string `json:"image,omitempty"`
	CreatedAt int64  `json:"createdAt"`
	Liked     bool   `json:"isLiked"`
}

// IsImage reports whether the message carries an image reference.
func (m *Message) IsImage() bool {
	return m.Image != ""
}

// Conversation is the messages/<conversation> document.
type Conversation struct {
	Messages []Message `json:"messages"`
}

// Entry is a directory summary joined with the counterparty's live profile.
// Counterparty is nil when the profile could not be resolved.
type Entry struct {
	ConversationSummary
	Counterparty *Principal `json:"userData,omitempty"`
}

// ActiveConversation identifies the conversation currently open on a
// session, together with the other participant.
type ActiveConversation struct {
	ID             string
	CounterpartyID string
}

// Preview truncates text to PreviewLength characters.
func Preview(text string) string {
	if utf8.RuneCountInString(text) <= PreviewLength {
		return text
	}
	return string([]rune(text)[:PreviewLength])
}
