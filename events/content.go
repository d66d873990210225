package events

import "github.com/broady/mxapi/id"

var contentTypes = map[Type]func() any{
	TypeMember:    func() any { return new(MemberContent) },
	TypeMessage:   func() any { return new(MessageContent) },
	TypeName:      func() any { return new(NameContent) },
	TypeTopic:     func() any { return new(TopicContent) },
	TypeRedaction: func() any { return new(RedactionContent) },
	TypeTyping:    func() any { return new(TypingContent) },
	TypePresence:  func() any { return new(PresenceContent) },
}

func newContent(t Type) any {
	if fn, ok := contentTypes[t]; ok {
		return fn()
	}
	return new(map[string]any)
}

// Membership is a user's relationship to a room.
type Membership string

const (
	MembershipInvite Membership = "invite"
	MembershipJoin   Membership = "join"
	MembershipKnock  Membership = "knock"
	MembershipLeave  Membership = "leave"
	MembershipBan    Membership = "ban"
)

func (m Membership) IsValid() bool {
	switch m {
	case MembershipInvite, MembershipJoin, MembershipKnock, MembershipLeave, MembershipBan:
		return true
	}
	return false
}

// MemberContent is the content of m.room.member.
type MemberContent struct {
	Membership  Membership `json:"membership"`
	DisplayName *string    `json:"displayname,omitempty"`
	AvatarURL   *string    `json:"avatar_url,omitempty"`
	Reason      *string    `json:"reason,omitempty"`
}

// MessageContent is the content of m.room.message.
type MessageContent struct {
	MsgType       string  `json:"msgtype"`
	Body          string  `json:"body"`
	Format        *string `json:"format,omitempty"`
	FormattedBody *string `json:"formatted_body,omitempty"`
}

// NameContent is the content of m.room.name.
type NameContent struct {
	Name string `json:"name"`
}

// TopicContent is the content of m.room.topic.
type TopicContent struct {
	Topic string `json:"topic"`
}

// RedactionContent is the content of m.room.redaction.
type RedactionContent struct {
	Reason *string `json:"reason,omitempty"`
}

// TypingContent is the content of the m.typing ephemeral event.
type TypingContent struct {
	UserIDs []id.UserID `json:"user_ids"`
}

// PresenceContent is the content of m.presence. Presence is one of
// "online", "unavailable" or "offline".
type PresenceContent struct {
	Presence        string  `json:"presence"`
	LastActiveAgo   *int64  `json:"last_active_ago,omitempty"`
	CurrentlyActive *bool   `json:"currently_active,omitempty"`
	StatusMsg       *string `json:"status_msg,omitempty"`
	DisplayName     *string `json:"displayname,omitempty"`
	AvatarURL       *string `json:"avatar_url,omitempty"`
}
