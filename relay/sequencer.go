package relay

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"humanity.network/core/cidutil"
	"humanity.network/core/moderation"
	"humanity.network/core/object"
	"humanity.network/core/storage"
	"humanity.network/core/syncer"
	"humanity.network/core/validate"
)

// SequencerOptions configure a Sequencer. Store is required.
type SequencerOptions struct {
	// Store persists admitted objects and assigns their per-space sequence.
	Store storage.Store

	// Moderation projects governance objects for the admission gates.
	// A fresh engine is created when nil; it is rebuilt from Store by
	// replaying each space the first time the space is touched.
	Moderation *moderation.Engine

	// Policy decides structural admission. Defaults to validate.Strict:
	// a relay rejects what it cannot check rather than forwarding it.
	Policy *validate.Policy

	Logger zerolog.Logger

	// Now supplies unix time in seconds for expiry and rate limiting.
	Now func() uint64
}

// Sequencer is the relay core: it admits pushed objects against signature,
// schema, and moderation gates, assigns them a per-space sequence, and
// serves them back in order. It implements syncer.Feed, so clients can run
// against an in-process sequencer or a remote one behind Client without
// noticing the difference.
type Sequencer struct {
	store   storage.Store
	moder   *moderation.Engine
	policy  validate.Policy
	log     zerolog.Logger
	now     func() uint64
	limiter *rateLimiter

	mu        sync.Mutex
	spaces    map[string]*sync.Mutex
	recovered map[string]bool
}

var _ syncer.Feed = (*Sequencer)(nil)

// NewSequencer validates opts and builds a Sequencer.
func NewSequencer(opts SequencerOptions) (*Sequencer, error) {
	if opts.Store == nil {
		return nil, fmt.Errorf("relay: sequencer requires a store")
	}
	moder := opts.Moderation
	if moder == nil {
		moder = moderation.NewEngine()
	}
	policy := validate.Strict()
	if opts.Policy != nil {
		policy = *opts.Policy
	}
	now := opts.Now
	if now == nil {
		now = func() uint64 { return uint64(time.Now().Unix()) }
	}
	return &Sequencer{
		store:     opts.Store,
		moder:     moder,
		policy:    policy,
		log:       opts.Logger.With().Str("component", "relay-sequencer").Logger(),
		now:       now,
		limiter:   newRateLimiter(),
		spaces:    make(map[string]*sync.Mutex),
		recovered: make(map[string]bool),
	}, nil
}

// Moderation exposes the projection the sequencer admits against.
func (s *Sequencer) Moderation() *moderation.Engine { return s.moder }

func (s *Sequencer) lockSpace(spaceID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	lock, ok := s.spaces[spaceID]
	if !ok {
		lock = &sync.Mutex{}
		s.spaces[spaceID] = lock
	}
	return lock
}

// recoverSpace replays the stored log through the moderation engine once
// per space, so a restarted relay enforces the same bans and policies as
// the process that wrote the log. Must run under the space lock.
func (s *Sequencer) recoverSpace(ctx context.Context, spaceID string) error {
	s.mu.Lock()
	done := s.recovered[spaceID]
	s.mu.Unlock()
	if done {
		return nil
	}
	recs, err := s.store.ListBySpaceSince(ctx, spaceID, 0, 0)
	if err != nil {
		return fmt.Errorf("relay: replay %s: %w", spaceID, err)
	}
	for _, rec := range recs {
		o, err := object.Decode(rec.Bytes)
		if err != nil {
			s.log.Warn().Str("space", spaceID).Str("object", rec.ObjectID).Err(err).
				Msg("undecodable object in stored log, skipping replay")
			continue
		}
		if !s.policy.IsGovernance(o.ObjectType) {
			continue
		}
		if _, err := s.moder.Apply(o); err != nil {
			s.log.Warn().Str("space", spaceID).Str("object", rec.ObjectID).Err(err).
				Msg("stored governance object no longer applies")
		}
	}
	s.mu.Lock()
	s.recovered[spaceID] = true
	s.mu.Unlock()
	return nil
}

// Pull serves admitted objects for spaceID in sequence order, strictly
// after cursor. Cursors are the decimal per-space sequence numbers this
// sequencer assigned; the empty cursor means from the beginning.
func (s *Sequencer) Pull(ctx context.Context, spaceID string, cursor string, limit int) ([]syncer.Envelope, error) {
	since := uint64(0)
	if cursor != "" {
		n, err := strconv.ParseUint(cursor, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: %q", ErrBadCursor, cursor)
		}
		since = n
	}
	recs, err := s.store.ListBySpaceSince(ctx, spaceID, since, limit)
	if err != nil {
		return nil, fmt.Errorf("relay: list %s: %w", spaceID, err)
	}
	envs := make([]syncer.Envelope, 0, len(recs))
	for _, rec := range recs {
		envs = append(envs, syncer.Envelope{
			Bytes:  rec.Bytes,
			Cursor: strconv.FormatUint(rec.Sequence, 10),
		})
	}
	return envs, nil
}

// Push admits objects into spaceID one at a time, in the order given.
// Every object gets a verdict; an error means the batch was cut short by
// a storage or context failure and the pusher should retry the remainder.
func (s *Sequencer) Push(ctx context.Context, spaceID string, objects [][]byte) ([]syncer.PushResult, error) {
	if spaceID == "" {
		return nil, fmt.Errorf("relay: push requires a space id")
	}
	lock := s.lockSpace(spaceID)
	lock.Lock()
	defer lock.Unlock()
	if err := s.recoverSpace(ctx, spaceID); err != nil {
		return nil, err
	}
	results := make([]syncer.PushResult, 0, len(objects))
	for _, raw := range objects {
		if err := ctx.Err(); err != nil {
			return results, err
		}
		res, err := s.admit(ctx, spaceID, raw)
		if err != nil {
			return results, err
		}
		results = append(results, res)
	}
	return results, nil
}

// admit runs one object through the admission pipeline. Rejections come
// back as verdicts; only storage failures surface as errors.
func (s *Sequencer) admit(ctx context.Context, spaceID string, raw []byte) (syncer.PushResult, error) {
	id := cidutil.CIDv1RawBlake3(raw)
	reject := func(reason string) (syncer.PushResult, error) {
		s.log.Debug().Str("space", spaceID).Str("object", id).Str("reason", reason).Msg("push rejected")
		return syncer.PushResult{ObjectID: id, Reason: reason}, nil
	}

	o, err := object.Decode(raw)
	if err != nil {
		return reject(ReasonInvalidSchema)
	}
	if o.SpaceID != spaceID {
		return reject(ReasonInvalidSchema)
	}
	if err := o.VerifySignature(); err != nil {
		return reject(ReasonInvalidSignature)
	}
	if res := s.policy.Validate(o); res.Disposition == validate.Reject {
		return reject(ReasonInvalidSchema)
	}
	// References must name objects already in the log. Content addressing
	// means an author can only cite ids that existed when the object was
	// built, so a dangling reference is out-of-order delivery or a
	// fabricated id; either way it does not enter the log.
	for _, ref := range o.References {
		held, err := s.store.HasObject(ctx, ref)
		if err != nil {
			return syncer.PushResult{}, fmt.Errorf("relay: check reference %s: %w", ref, err)
		}
		if !held {
			return reject(ReasonInvalidSchema)
		}
	}

	now := s.now()
	var rules moderation.SpaceRules
	hasRules := false
	if r, err := s.moder.Rules(spaceID); err == nil {
		rules = r
		hasRules = true
	}
	if hasRules && rules.Safety.MaxAttachmentBytes > 0 &&
		o.ObjectType == object.TypeAttachment && uint64(len(o.Payload)) > rules.Safety.MaxAttachmentBytes {
		return reject(ReasonInvalidSchema)
	}
	if s.moder.IdentityStatus(spaceID, o.AuthorPublicKey, now) == moderation.IdentityBanned {
		return reject(ReasonBanned)
	}
	if !s.admitMember(spaceID, rules, hasRules, o.AuthorPublicKey) {
		return reject(ReasonNotAMember)
	}
	if s.moder.ContentStatus(spaceID, id, now) == moderation.ContentQuarantined {
		return reject(ReasonContentQuarantined)
	}
	if hasRules && rules.Safety.MaxObjectsPerMinute > 0 {
		if !s.limiter.allow(rateKey(spaceID, o.AuthorPublicKey), rules.Safety.MaxObjectsPerMinute, now) {
			return reject(ReasonRateLimited)
		}
	}

	// Governance objects pass through the projection before they are
	// stored, keeping malformed payloads out of the log entirely. Replay
	// of an already-applied object is a no-op, so a storage failure after
	// this point is safe to retry.
	if s.policy.IsGovernance(o.ObjectType) {
		if _, err := s.moder.Apply(o); err != nil {
			return reject(ReasonInvalidSchema)
		}
	}

	rec, err := s.store.PutObject(ctx, storage.ObjectRecord{ObjectID: id, SpaceID: spaceID, Bytes: raw})
	if err != nil {
		if errors.Is(err, storage.ErrImmutable) || errors.Is(err, storage.ErrIDMismatch) || errors.Is(err, storage.ErrInvalidID) {
			return reject(ReasonInvalidSchema)
		}
		return syncer.PushResult{}, fmt.Errorf("relay: store %s: %w", id, err)
	}
	s.log.Debug().Str("space", spaceID).Str("object", id).Uint64("seq", rec.Sequence).Msg("object admitted")
	return syncer.PushResult{ObjectID: id, Accepted: true}, nil
}

// admitMember gates writes on the space membership policy. Spaces with no
// recorded policy are open: the genesis objects themselves have to land
// before any rules exist.
func (s *Sequencer) admitMember(spaceID string, rules moderation.SpaceRules, hasRules bool, author []byte) bool {
	if !hasRules {
		return true
	}
	switch rules.MembershipPolicy {
	case moderation.MembershipInviteOnly, moderation.MembershipApprovalRequired:
	default:
		return true
	}
	if s.moder.Membership(spaceID, author) == moderation.MemberActive {
		return true
	}
	auth, err := s.moder.Authority(spaceID)
	if err != nil {
		return false
	}
	return auth.RoleOf(author) != ""
}
