// Package session holds the local identity of this device and its pairing
// state. A Session is created once with Init and passed to every engine.
package session

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"

	"github.com/gofrs/uuid/v5"
	"github.com/zlnvch/duo/device"
	"github.com/zlnvch/duo/models"
	"github.com/zlnvch/duo/store"
)

var (
	ErrEmptyName = errors.New("name must not be empty")
	ErrNotPaired = errors.New("not paired")
)

type State int

const (
	StateUnnamed State = iota
	StateNamed
	StateWaiting
	StatePaired
)

func (s State) String() string {
	switch s {
	case StateUnnamed:
		return "unnamed"
	case StateNamed:
		return "named"
	case StateWaiting:
		return "waiting"
	case StatePaired:
		return "paired"
	}
	return "unknown"
}

type Session struct {
	device device.Store
	remote store.RemoteStore

	mu          sync.Mutex
	userId      string
	name        string
	pairId      string
	pendingCode string
	tracked     []store.Unsubscribe
}

// Init loads the local identity, generating a user id on first launch, and
// registers it remotely. The remote pairId is authoritative: a pair made
// while this device was offline is adopted, and an unpair by the partner is
// applied locally.
func Init(ctx context.Context, dev device.Store, remote store.RemoteStore) (*Session, error) {
	s := &Session{device: dev, remote: remote}

	userId, err := readOptional(ctx, dev, device.KeyLocalUserId)
	if err != nil {
		return nil, err
	}
	if userId == "" {
		userId = uuid.Must(uuid.NewV4()).String()
		if err := dev.Set(ctx, device.KeyLocalUserId, userId); err != nil {
			return nil, fmt.Errorf("save user id: %w", err)
		}
	}
	s.userId = userId

	if s.name, err = readOptional(ctx, dev, device.KeyLocalUserName); err != nil {
		return nil, err
	}
	if s.pairId, err = readOptional(ctx, dev, device.KeyLocalPairId); err != nil {
		return nil, err
	}
	if s.pendingCode, err = readOptional(ctx, dev, device.KeyPendingCode); err != nil {
		return nil, err
	}

	fields, err := remote.GetNode(ctx, store.UserPath(userId))
	if err != nil {
		return nil, fmt.Errorf("load user %s: %w", userId, err)
	}

	register := map[string][]byte{models.FieldId: []byte(userId)}
	if s.name != "" {
		register[models.FieldName] = []byte(s.name)
	}
	if err := remote.Update(ctx, store.UserPath(userId), register); err != nil {
		return nil, fmt.Errorf("register user %s: %w", userId, err)
	}

	if remotePairId := string(fields[models.FieldPairId]); len(fields) > 0 && remotePairId != s.pairId {
		log.Printf("Syncing local pair id for user %s: %q -> %q", userId, s.pairId, remotePairId)
		if remotePairId != "" {
			err = s.AdoptPair(ctx, remotePairId)
		} else {
			err = s.savePairId(ctx, "")
		}
		if err != nil {
			return nil, err
		}
	}

	return s, nil
}

func readOptional(ctx context.Context, dev device.Store, key string) (string, error) {
	value, err := dev.Get(ctx, key)
	if err != nil {
		if errors.Is(err, device.ErrNotFound) {
			return "", nil
		}
		return "", fmt.Errorf("read %s: %w", key, err)
	}
	return value, nil
}

func (s *Session) UserId() string {
	return s.userId
}

func (s *Session) Name() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.name
}

func (s *Session) PairId() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pairId
}

func (s *Session) PendingCode() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pendingCode
}

// RequirePair returns the pair id or ErrNotPaired.
func (s *Session) RequirePair() (string, error) {
	pairId := s.PairId()
	if pairId == "" {
		return "", ErrNotPaired
	}
	return pairId, nil
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch {
	case s.pairId != "":
		return StatePaired
	case s.pendingCode != "":
		return StateWaiting
	case s.name != "":
		return StateNamed
	}
	return StateUnnamed
}

func (s *Session) SetName(ctx context.Context, name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return ErrEmptyName
	}

	if err := s.device.Set(ctx, device.KeyLocalUserName, name); err != nil {
		return err
	}
	if err := s.remote.Update(ctx, store.UserPath(s.userId), map[string][]byte{
		models.FieldName: []byte(name),
	}); err != nil {
		return fmt.Errorf("update name: %w", err)
	}

	s.mu.Lock()
	s.name = name
	s.mu.Unlock()
	return nil
}

// SetNotificationToken stores the push token partners notify. "" clears it.
func (s *Session) SetNotificationToken(ctx context.Context, token string) error {
	var value []byte
	if token != "" {
		value = []byte(token)
	}
	return s.remote.Update(ctx, store.UserPath(s.userId), map[string][]byte{
		models.FieldNotificationToken: value,
	})
}

// SetAvatar stores an already compressed image. nil clears it.
func (s *Session) SetAvatar(ctx context.Context, avatar []byte) error {
	if len(avatar) == 0 {
		avatar = nil
	}
	return s.remote.Update(ctx, store.UserPath(s.userId), map[string][]byte{
		models.FieldAvatar: avatar,
	})
}

// SetPendingCode remembers an invite code this device is waiting on. ""
// forgets it.
func (s *Session) SetPendingCode(ctx context.Context, code string) error {
	var err error
	if code == "" {
		err = s.device.Delete(ctx, device.KeyPendingCode)
	} else {
		err = s.device.Set(ctx, device.KeyPendingCode, code)
	}
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.pendingCode = code
	s.mu.Unlock()
	return nil
}

// AdoptPair persists a pair id learned from a join or a pair watch.
func (s *Session) AdoptPair(ctx context.Context, pairId string) error {
	if err := s.savePairId(ctx, pairId); err != nil {
		return err
	}
	return s.SetPendingCode(ctx, "")
}

func (s *Session) savePairId(ctx context.Context, pairId string) error {
	var err error
	if pairId == "" {
		err = s.device.Delete(ctx, device.KeyLocalPairId)
	} else {
		err = s.device.Set(ctx, device.KeyLocalPairId, pairId)
	}
	if err != nil {
		return fmt.Errorf("save pair id: %w", err)
	}

	s.mu.Lock()
	s.pairId = pairId
	s.mu.Unlock()
	return nil
}

// Identity reads this user's remote record.
func (s *Session) Identity(ctx context.Context) (models.UserIdentity, error) {
	fields, err := s.remote.GetNode(ctx, store.UserPath(s.userId))
	if err != nil {
		return models.UserIdentity{}, err
	}
	return models.UserFromFields(fields)
}

// Track registers a subscription to release on Teardown.
func (s *Session) Track(unsub store.Unsubscribe) {
	if unsub == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tracked = append(s.tracked, unsub)
}

// Teardown releases tracked subscriptions and forgets the local pair state.
func (s *Session) Teardown(ctx context.Context) error {
	s.mu.Lock()
	tracked := s.tracked
	s.tracked = nil
	s.mu.Unlock()

	for _, unsub := range tracked {
		unsub()
	}

	if err := s.savePairId(ctx, ""); err != nil {
		return err
	}
	return s.SetPendingCode(ctx, "")
}
