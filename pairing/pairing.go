package pairing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/zlnvch/duo/models"
	"github.com/zlnvch/duo/mq"
	"github.com/zlnvch/duo/session"
	"github.com/zlnvch/duo/store"
)

var (
	ErrCodeNotFound    = errors.New("invite code not found or expired")
	ErrSelfPairAttempt = errors.New("cannot pair with your own invite code")
	ErrInvalidCode     = errors.New("invalid invite code")
	ErrEmptyName       = errors.New("name must not be empty")
	ErrPairNotFound    = errors.New("pair not found")
	ErrPartnerNotFound = errors.New("partner not found")
)

// Engine runs the invite-code protocol against the remote store. None of the
// multi-record writes are atomic; a failure part way leaves earlier writes in
// place and is reported to the caller.
type Engine struct {
	remote  store.RemoteStore
	expiry  mq.MessageQueue
	codeTTL time.Duration
	now     func() time.Time
	random  io.Reader
}

type Option func(*Engine)

// WithExpiryQueue schedules every new code for deletion after ttl.
func WithExpiryQueue(q mq.MessageQueue, ttl time.Duration) Option {
	return func(e *Engine) {
		e.expiry = q
		e.codeTTL = ttl
	}
}

func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		e.now = now
	}
}

func WithRandom(r io.Reader) Option {
	return func(e *Engine) {
		e.random = r
	}
}

func NewEngine(remote store.RemoteStore, opts ...Option) *Engine {
	e := &Engine{
		remote: remote,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// CreateInviteCode writes a new code for the creator. Collisions with a live
// code are not detected.
func (e *Engine) CreateInviteCode(ctx context.Context, creatorId string, creatorName string) (string, error) {
	creatorName = strings.TrimSpace(creatorName)
	if creatorName == "" {
		return "", ErrEmptyName
	}

	code, err := GenerateCode(e.random)
	if err != nil {
		return "", fmt.Errorf("generate code: %w", err)
	}

	pc := models.PairCode{
		Code:        code,
		CreatorId:   creatorId,
		CreatorName: creatorName,
		CreatedAt:   e.now().UnixMilli(),
	}
	data, err := models.EncodePairCode(pc)
	if err != nil {
		return "", err
	}
	if err := e.remote.Set(ctx, store.PairCodePath(code), data); err != nil {
		return "", fmt.Errorf("write code: %w", err)
	}

	if e.expiry != nil {
		e.scheduleExpiry(ctx, pc)
	}
	return code, nil
}

func (e *Engine) scheduleExpiry(ctx context.Context, pc models.PairCode) {
	body, err := json.Marshal(models.CodeExpiry{Code: pc.Code, CreatedAt: pc.CreatedAt})
	if err != nil {
		log.Printf("Failed to encode expiry for code %s: %v", pc.Code, err)
		return
	}
	if err := e.expiry.SendDelayed(ctx, string(body), e.codeTTL); err != nil {
		log.Printf("Failed to schedule expiry for code %s: %v", pc.Code, err)
	}
}

// JoinWithCode consumes a code and links the joiner with its creator. Writes
// happen in order: pair record, creator pointer, joiner pointer, code delete.
func (e *Engine) JoinWithCode(ctx context.Context, code string, joinerId string, joinerName string) (string, error) {
	code, err := NormalizeCode(code)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(joinerName) == "" {
		return "", ErrEmptyName
	}

	data, err := e.remote.Get(ctx, store.PairCodePath(code))
	if err != nil {
		if errors.Is(err, store.ErrItemNotFound) {
			return "", ErrCodeNotFound
		}
		return "", fmt.Errorf("read code: %w", err)
	}
	pc, err := models.DecodePairCode(data)
	if err != nil {
		log.Printf("Unreadable invite code %s: %v", code, err)
		return "", ErrCodeNotFound
	}

	if pc.CreatorId == joinerId {
		return "", ErrSelfPairAttempt
	}

	pair := models.Pair{
		Id:        DerivePairId(pc.CreatorId, joinerId),
		UserA:     pc.CreatorId,
		UserB:     joinerId,
		CreatedAt: e.now().UnixMilli(),
	}
	pairData, err := models.EncodePair(pair)
	if err != nil {
		return "", err
	}

	if err := e.remote.Set(ctx, store.PairPath(pair.Id), pairData); err != nil {
		return "", fmt.Errorf("write pair: %w", err)
	}
	for _, userId := range []string{pc.CreatorId, joinerId} {
		if err := e.remote.Update(ctx, store.UserPath(userId), map[string][]byte{
			models.FieldPairId: []byte(pair.Id),
		}); err != nil {
			return "", fmt.Errorf("link user %s: %w", userId, err)
		}
	}
	if err := e.remote.Delete(ctx, store.PairCodePath(code)); err != nil {
		return "", fmt.Errorf("delete code: %w", err)
	}

	return pair.Id, nil
}

// WatchPairAssignment calls onPaired once, when userId's remote pairId is set,
// then unsubscribes. It fires straight away if the user is already paired.
func (e *Engine) WatchPairAssignment(ctx context.Context, userId string, onPaired func(pairId string)) (store.Unsubscribe, error) {
	var (
		mu     sync.Mutex
		fired  bool
		unsub  store.Unsubscribe
		detach bool
	)

	handler := func(snap store.Snapshot) {
		if !snap.Exists || len(snap.Value) == 0 {
			return
		}

		mu.Lock()
		if fired {
			mu.Unlock()
			return
		}
		fired = true
		u := unsub
		if u == nil {
			// Fired during subscribe; detach once the handle exists
			detach = true
		}
		mu.Unlock()

		if u != nil {
			u()
		}
		onPaired(string(snap.Value))
	}

	u, err := e.remote.SubscribeValue(ctx, store.UserFieldPath(userId, models.FieldPairId), handler)
	if err != nil {
		return nil, err
	}

	mu.Lock()
	unsub = u
	shouldDetach := detach
	mu.Unlock()

	if shouldDetach {
		u()
	}
	return u, nil
}

// GetPartner resolves the pair and loads the member that is not selfId.
func (e *Engine) GetPartner(ctx context.Context, pairId string, selfId string) (models.UserIdentity, error) {
	pair, err := e.GetPair(ctx, pairId)
	if err != nil {
		return models.UserIdentity{}, err
	}

	partnerId, ok := pair.Partner(selfId)
	if !ok {
		return models.UserIdentity{}, ErrPairNotFound
	}

	fields, err := e.remote.GetNode(ctx, store.UserPath(partnerId))
	if err != nil {
		return models.UserIdentity{}, fmt.Errorf("read partner: %w", err)
	}
	if len(fields) == 0 {
		return models.UserIdentity{}, ErrPartnerNotFound
	}
	partner, err := models.UserFromFields(fields)
	if err != nil {
		log.Printf("Unreadable user record %s: %v", partnerId, err)
		return models.UserIdentity{}, ErrPartnerNotFound
	}
	return partner, nil
}

func (e *Engine) GetPair(ctx context.Context, pairId string) (models.Pair, error) {
	if pairId == "" {
		return models.Pair{}, ErrPairNotFound
	}

	data, err := e.remote.Get(ctx, store.PairPath(pairId))
	if err != nil {
		if errors.Is(err, store.ErrItemNotFound) {
			return models.Pair{}, ErrPairNotFound
		}
		return models.Pair{}, fmt.Errorf("read pair: %w", err)
	}
	pair, err := models.DecodePair(data)
	if err != nil {
		log.Printf("Unreadable pair record %s: %v", pairId, err)
		return models.Pair{}, ErrPairNotFound
	}
	return pair, nil
}

// Unpair clears the pairId of both members and tears down the session. The
// pair record itself is kept.
func (e *Engine) Unpair(ctx context.Context, sess *session.Session) error {
	pairId, err := sess.RequirePair()
	if err != nil {
		return err
	}

	members := []string{sess.UserId()}
	pair, err := e.GetPair(ctx, pairId)
	switch {
	case err == nil:
		if partnerId, ok := pair.Partner(sess.UserId()); ok {
			members = append(members, partnerId)
		}
	case errors.Is(err, ErrPairNotFound):
		log.Printf("Pair %s missing while unpairing, clearing own pointer only", pairId)
	default:
		return err
	}

	for _, userId := range members {
		if err := e.remote.Update(ctx, store.UserPath(userId), map[string][]byte{
			models.FieldPairId: nil,
		}); err != nil {
			return fmt.Errorf("unlink user %s: %w", userId, err)
		}
	}

	return sess.Teardown(ctx)
}
