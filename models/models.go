package models

import "fmt"

type UserIdentity struct {
	Id                string
	Name              string
	PairId            string
	NotificationToken string
	Avatar            []byte
	Mood              string
	LastDoodleAt      int64
}

type PairCode struct {
	Code        string `json:"code"`
	CreatorId   string `json:"creatorId"`
	CreatorName string `json:"creatorName"`
	CreatedAt   int64  `json:"createdAt"`
}

type Pair struct {
	Id        string `json:"id"`
	UserA     string `json:"userA"`
	UserB     string `json:"userB"`
	CreatedAt int64  `json:"createdAt"`
}

// Partner returns the member of the pair that is not selfId.
func (p Pair) Partner(selfId string) (string, bool) {
	switch selfId {
	case p.UserA:
		return p.UserB, true
	case p.UserB:
		return p.UserA, true
	}
	return "", false
}

type MessageKind int

const (
	KindText MessageKind = iota
	KindDrawing
)

func (k MessageKind) String() string {
	switch k {
	case KindText:
		return "text"
	case KindDrawing:
		return "drawing"
	}
	return fmt.Sprintf("MessageKind(%d)", int(k))
}

func (k MessageKind) Valid() bool {
	return k == KindText || k == KindDrawing
}

func (k MessageKind) MarshalText() ([]byte, error) {
	if !k.Valid() {
		return nil, fmt.Errorf("invalid message kind %d", int(k))
	}
	return []byte(k.String()), nil
}

func (k *MessageKind) UnmarshalText(b []byte) error {
	switch string(b) {
	case "text":
		*k = KindText
	case "drawing":
		*k = KindDrawing
	default:
		return fmt.Errorf("invalid message kind %q", string(b))
	}
	return nil
}

type Message struct {
	Id         string      `json:"id"`
	PairId     string      `json:"pairId"`
	AuthorId   string      `json:"authorId"`
	AuthorName string      `json:"authorName"`
	Content    string      `json:"content"`
	Kind       MessageKind `json:"kind"`
	Timestamp  int64       `json:"timestamp"`
	Read       bool        `json:"read"`
}

// LatestMessage is the denormalized copy of the most recently sent message of a pair.
type LatestMessage struct {
	Content    string      `json:"content"`
	Kind       MessageKind `json:"kind"`
	AuthorId   string      `json:"authorId"`
	AuthorName string      `json:"authorName"`
	Timestamp  int64       `json:"timestamp"`
}

func (m Message) Latest() LatestMessage {
	return LatestMessage{
		Content:    m.Content,
		Kind:       m.Kind,
		AuthorId:   m.AuthorId,
		AuthorName: m.AuthorName,
		Timestamp:  m.Timestamp,
	}
}

// DrawingStroke is one vector stroke of a drawing message.
type DrawingStroke struct {
	Path  string  `json:"path"`
	Color string  `json:"color"`
	Width float64 `json:"width"`
}

type CanvasActivity struct {
	UserId    string `json:"userId"`
	Timestamp int64  `json:"timestamp"`
}

type Nudge struct {
	SenderId   string `json:"senderId"`
	SenderName string `json:"senderName"`
	Timestamp  int64  `json:"timestamp"`
}

// WidgetData is the record read by the out-of-process widget renderers.
type WidgetData struct {
	Message   string      `json:"message"`
	FromName  string      `json:"fromName"`
	Type      MessageKind `json:"type"`
	Timestamp int64       `json:"timestamp"`
}

// CodeExpiry is queued when an invite code is created and consumed once its
// time to live has passed.
type CodeExpiry struct {
	Code      string `json:"code"`
	CreatedAt int64  `json:"createdAt"`
}
