package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
)

var ErrInvalidRecord = errors.New("invalid record")

// Children of a users/{userId} node
const (
	FieldId                = "id"
	FieldName              = "name"
	FieldPairId            = "pairId"
	FieldNotificationToken = "notificationToken"
	FieldAvatar            = "avatar"
	FieldMood              = "mood"
	FieldLastDoodleAt      = "lastDoodleAt"
)

func invalid(kind string, reason string) error {
	return fmt.Errorf("%w: %s: %s", ErrInvalidRecord, kind, reason)
}

func EncodePairCode(pc PairCode) ([]byte, error) {
	return json.Marshal(pc)
}

func DecodePairCode(b []byte) (PairCode, error) {
	var pc PairCode
	if err := json.Unmarshal(b, &pc); err != nil {
		return PairCode{}, invalid("pair code", err.Error())
	}
	if pc.Code == "" || pc.CreatorId == "" {
		return PairCode{}, invalid("pair code", "missing code or creator")
	}
	return pc, nil
}

func EncodePair(p Pair) ([]byte, error) {
	return json.Marshal(p)
}

func DecodePair(b []byte) (Pair, error) {
	var p Pair
	if err := json.Unmarshal(b, &p); err != nil {
		return Pair{}, invalid("pair", err.Error())
	}
	if p.Id == "" || p.UserA == "" || p.UserB == "" {
		return Pair{}, invalid("pair", "missing id or member")
	}
	if p.UserA == p.UserB {
		return Pair{}, invalid("pair", "members are identical")
	}
	return p, nil
}

func EncodeMessage(m Message) ([]byte, error) {
	return json.Marshal(m)
}

func DecodeMessage(b []byte) (Message, error) {
	var m Message
	if err := json.Unmarshal(b, &m); err != nil {
		return Message{}, invalid("message", err.Error())
	}
	if m.Id == "" || m.AuthorId == "" {
		return Message{}, invalid("message", "missing id or author")
	}
	return m, nil
}

func EncodeLatestMessage(l LatestMessage) ([]byte, error) {
	return json.Marshal(l)
}

func DecodeLatestMessage(b []byte) (LatestMessage, error) {
	var l LatestMessage
	if err := json.Unmarshal(b, &l); err != nil {
		return LatestMessage{}, invalid("latest message", err.Error())
	}
	if l.AuthorId == "" {
		return LatestMessage{}, invalid("latest message", "missing author")
	}
	return l, nil
}

func EncodeNudge(n Nudge) ([]byte, error) {
	return json.Marshal(n)
}

func DecodeNudge(b []byte) (Nudge, error) {
	var n Nudge
	if err := json.Unmarshal(b, &n); err != nil {
		return Nudge{}, invalid("nudge", err.Error())
	}
	if n.SenderId == "" {
		return Nudge{}, invalid("nudge", "missing sender")
	}
	return n, nil
}

func EncodeCanvasActivity(a CanvasActivity) ([]byte, error) {
	return json.Marshal(a)
}

func DecodeCanvasActivity(b []byte) (CanvasActivity, error) {
	var a CanvasActivity
	if err := json.Unmarshal(b, &a); err != nil {
		return CanvasActivity{}, invalid("canvas activity", err.Error())
	}
	if a.UserId == "" {
		return CanvasActivity{}, invalid("canvas activity", "missing user")
	}
	return a, nil
}

func EncodeWidgetData(w WidgetData) ([]byte, error) {
	return json.Marshal(w)
}

func DecodeWidgetData(b []byte) (WidgetData, error) {
	var w WidgetData
	if err := json.Unmarshal(b, &w); err != nil {
		return WidgetData{}, invalid("widget data", err.Error())
	}
	return w, nil
}

// UserFromFields maps the children of a users/{userId} node to a UserIdentity.
func UserFromFields(fields map[string][]byte) (UserIdentity, error) {
	id := string(fields[FieldId])
	if id == "" {
		return UserIdentity{}, invalid("user", "missing id")
	}

	u := UserIdentity{
		Id:                id,
		Name:              string(fields[FieldName]),
		PairId:            string(fields[FieldPairId]),
		NotificationToken: string(fields[FieldNotificationToken]),
		Mood:              string(fields[FieldMood]),
	}
	if avatar := fields[FieldAvatar]; len(avatar) > 0 {
		u.Avatar = append([]byte(nil), avatar...)
	}
	if raw := fields[FieldLastDoodleAt]; len(raw) > 0 {
		ts, err := strconv.ParseInt(string(raw), 10, 64)
		if err != nil {
			return UserIdentity{}, invalid("user", "bad lastDoodleAt")
		}
		u.LastDoodleAt = ts
	}
	return u, nil
}

// UserFields maps a UserIdentity to node children. Empty optional fields map to
// nil so that a merge removes them.
func UserFields(u UserIdentity) map[string][]byte {
	fields := map[string][]byte{
		FieldId:                []byte(u.Id),
		FieldName:              []byte(u.Name),
		FieldPairId:            optional(u.PairId),
		FieldNotificationToken: optional(u.NotificationToken),
		FieldMood:              optional(u.Mood),
		FieldAvatar:            nil,
		FieldLastDoodleAt:      nil,
	}
	if len(u.Avatar) > 0 {
		fields[FieldAvatar] = u.Avatar
	}
	if u.LastDoodleAt > 0 {
		fields[FieldLastDoodleAt] = []byte(strconv.FormatInt(u.LastDoodleAt, 10))
	}
	return fields
}

func optional(s string) []byte {
	if s == "" {
		return nil
	}
	return []byte(s)
}
