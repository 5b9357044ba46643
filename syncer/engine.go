package syncer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/rs/zerolog"
	"github.com/sethvargo/go-retry"

	"humanity.network/core/cidutil"
	"humanity.network/core/moderation"
	"humanity.network/core/object"
	"humanity.network/core/storage"
	"humanity.network/core/validate"
)

const (
	defaultPullLimit     = 256
	defaultPushLimit     = 64
	defaultSeenCacheSize = 4096
)

// Options configures an Engine. Store and Feed are required; everything else
// has a usable default.
type Options struct {
	Store storage.SyncStore
	Feed  Feed

	// Policy is the validation policy for inbound and locally authored
	// objects. Nil means validate.Default().
	Policy *validate.Policy

	// Moderation receives governance objects and answers the display gate.
	// Nil means a fresh engine.
	Moderation *moderation.Engine

	// Classifier decides which bucket locally authored objects fall into.
	// Nil means NewClassifier().
	Classifier *Classifier

	Logger zerolog.Logger

	// PullLimit caps objects fetched per cycle; PushLimit caps outbound
	// items per cycle. Zero means the defaults above.
	PullLimit int
	PushLimit int

	// SeenCacheSize bounds the duplicate-delivery cache. Zero means the
	// default; negative disables the cache.
	SeenCacheSize int

	// Backoff builds a fresh backoff for each push attempt. Nil means
	// capped, jittered exponential backoff.
	Backoff func() retry.Backoff

	// Now supplies the time used for restriction expiry at the display
	// gate. Nil means the wall clock.
	Now func() uint64
}

// Engine drives the per-space reconciliation cycle.
//
// Cycles for distinct spaces may run concurrently; cycles for the same space
// are serialized internally. Cancellation mid-cycle leaves the queue and
// cursor consistent: the cursor only ever advances past fully applied
// entries.
type Engine struct {
	store  storage.SyncStore
	feed   Feed
	policy validate.Policy
	moder  *moderation.Engine
	class  *Classifier
	seen   *lru.Cache[string, struct{}]
	log    zerolog.Logger

	pullLimit int
	pushLimit int
	backoff   func() retry.Backoff
	now       func() uint64

	mu     sync.Mutex
	active map[string]*sync.Mutex
}

// Report is the outcome of one sync cycle.
type Report struct {
	SpaceID string

	Pulled     int
	Duplicates int
	Discarded  int
	StoredOnly int
	Suppressed int
	Applied    int

	Pushed   int
	Acked    int
	Rejected int

	Cursor string
}

func New(opts Options) (*Engine, error) {
	if opts.Store == nil {
		return nil, fmt.Errorf("syncer: store is required")
	}
	if opts.Feed == nil {
		return nil, fmt.Errorf("syncer: feed is required")
	}

	e := &Engine{
		store:     opts.Store,
		feed:      opts.Feed,
		moder:     opts.Moderation,
		class:     opts.Classifier,
		log:       opts.Logger.With().Str("component", "syncer").Logger(),
		pullLimit: opts.PullLimit,
		pushLimit: opts.PushLimit,
		backoff:   opts.Backoff,
		now:       opts.Now,
		active:    make(map[string]*sync.Mutex),
	}
	if opts.Policy != nil {
		e.policy = *opts.Policy
	} else {
		e.policy = validate.Default()
	}
	if e.moder == nil {
		e.moder = moderation.NewEngine()
	}
	if e.class == nil {
		e.class = NewClassifier()
	}
	if e.pullLimit <= 0 {
		e.pullLimit = defaultPullLimit
	}
	if e.pushLimit <= 0 {
		e.pushLimit = defaultPushLimit
	}
	if e.backoff == nil {
		e.backoff = defaultBackoff
	}
	if e.now == nil {
		e.now = func() uint64 { return uint64(time.Now().Unix()) }
	}
	if opts.SeenCacheSize >= 0 {
		size := opts.SeenCacheSize
		if size == 0 {
			size = defaultSeenCacheSize
		}
		cache, err := lru.New[string, struct{}](size)
		if err != nil {
			return nil, fmt.Errorf("syncer: seen cache: %w", err)
		}
		e.seen = cache
	}
	return e, nil
}

func defaultBackoff() retry.Backoff {
	b := retry.NewExponential(500 * time.Millisecond)
	b = retry.WithCappedDuration(8*time.Second, b)
	b = retry.WithJitterPercent(10, b)
	return retry.WithMaxRetries(4, b)
}

// Moderation exposes the projection engine the syncer feeds, for callers
// that need to query effective state.
func (e *Engine) Moderation() *moderation.Engine {
	return e.moder
}

func (e *Engine) lockSpace(spaceID string) func() {
	e.mu.Lock()
	l, ok := e.active[spaceID]
	if !ok {
		l = &sync.Mutex{}
		e.active[spaceID] = l
	}
	e.mu.Unlock()
	l.Lock()
	return l.Unlock
}

// SyncSpace runs one full cycle for a space: pull, ingest, push, acknowledge.
//
// Per-object failures (bad signature, malformed bytes, rejected validation)
// are counted and logged, never fatal to the batch. Structural failures
// (store errors, feed transport errors) abort the cycle with the partial
// Report and a non-nil error; the cycle is safe to re-run.
func (e *Engine) SyncSpace(ctx context.Context, spaceID string) (Report, error) {
	unlock := e.lockSpace(spaceID)
	defer unlock()

	log := e.log.With().Str("space", spaceID).Logger()
	rep := Report{SpaceID: spaceID}

	cursor, err := e.store.GetCursor(ctx, spaceID)
	if err != nil {
		return rep, object.WrapError(object.KindStorage, "", "read cursor", err)
	}
	rep.Cursor = cursor

	envs, err := e.feed.Pull(ctx, spaceID, cursor, e.pullLimit)
	if err != nil {
		return rep, fmt.Errorf("pull %s: %w", spaceID, err)
	}
	rep.Pulled = len(envs)

	for _, env := range envs {
		if err := ctx.Err(); err != nil {
			return rep, err
		}
		if err := e.ingest(ctx, &rep, env, log); err != nil {
			return rep, err
		}
		if env.Cursor != "" {
			if err := e.store.PutCursor(ctx, spaceID, env.Cursor); err != nil {
				return rep, object.WrapError(object.KindStorage, "", "advance cursor", err)
			}
			rep.Cursor = env.Cursor
		}
	}

	if err := e.push(ctx, &rep, spaceID, log); err != nil {
		return rep, err
	}

	log.Debug().
		Int("pulled", rep.Pulled).
		Int("applied", rep.Applied).
		Int("discarded", rep.Discarded).
		Int("pushed", rep.Pushed).
		Int("acked", rep.Acked).
		Int("rejected", rep.Rejected).
		Msg("sync cycle complete")
	return rep, nil
}

// ingest runs one inbound envelope through verify, validate, the display
// gate, storage, and the moderation projection. Returns an error only for
// structural store failures.
func (e *Engine) ingest(ctx context.Context, rep *Report, env Envelope, log zerolog.Logger) error {
	id := cidutil.CIDv1RawBlake3(env.Bytes)
	if e.seen != nil && e.seen.Contains(id) {
		rep.Duplicates++
		return nil
	}

	o, err := object.Decode(env.Bytes)
	if err != nil {
		rep.Discarded++
		log.Warn().Err(err).Str("object", id).Msg("discarding undecodable object")
		return nil
	}
	if err := o.VerifySignature(); err != nil {
		rep.Discarded++
		log.Warn().Err(err).Str("object", id).Msg("discarding object with bad signature")
		return nil
	}

	res := e.policy.Validate(o)
	if res.Disposition == validate.Reject {
		rep.Discarded++
		log.Warn().Err(res.Err).Str("object", id).Str("rule", res.RuleID).Msg("discarding rejected object")
		return nil
	}

	suppress := false
	if res.Disposition == validate.StoreOnly {
		suppress = true
		rep.StoredOnly++
	}
	// Display gate: authors effectively muted or banned at this log
	// position have their new objects stored suppressed. Earlier objects
	// are untouched.
	if o.SpaceID != "" {
		if st := e.moder.IdentityStatus(o.SpaceID, o.AuthorPublicKey, e.now()); st != moderation.IdentityUnrestricted {
			if !suppress {
				rep.Suppressed++
			}
			suppress = true
			log.Info().Str("object", id).Str("status", string(st)).Msg("suppressing object from restricted author")
		}
	}

	rec := storage.ObjectRecord{
		ObjectID:   id,
		SpaceID:    o.SpaceID,
		Bytes:      env.Bytes,
		Suppressed: suppress,
	}
	if _, err := e.store.PutObject(ctx, rec); err != nil {
		if errors.Is(err, storage.ErrImmutable) || errors.Is(err, storage.ErrIDMismatch) || errors.Is(err, storage.ErrInvalidID) {
			rep.Discarded++
			log.Warn().Err(err).Str("object", id).Msg("discarding object the store refused")
			return nil
		}
		return object.WrapError(object.KindStorage, "", "store object", err)
	}

	if res.Disposition == validate.Accept && e.policy.IsGovernance(o.ObjectType) {
		if _, err := e.moder.Apply(o); err != nil {
			// Stored but not projectable. The raw log keeps it; the
			// projection never sees it.
			log.Warn().Err(err).Str("object", id).Msg("stored governance object failed to apply")
		}
	}

	if e.seen != nil {
		e.seen.Add(id, struct{}{})
	}
	rep.Applied++
	return nil
}

// EnqueueLocal stores a locally authored object, applies it provisionally,
// and queues it for push according to its bucket. Local-only objects are
// stored and never queued; the returned item has Position zero.
func (e *Engine) EnqueueLocal(ctx context.Context, o *object.Object) (storage.QueueItem, error) {
	b, err := o.CanonicalBytes()
	if err != nil {
		return storage.QueueItem{}, err
	}
	if err := o.VerifySignature(); err != nil {
		return storage.QueueItem{}, err
	}
	res := e.policy.Validate(o)
	if res.Disposition == validate.Reject {
		return storage.QueueItem{}, res.Err
	}

	id := cidutil.CIDv1RawBlake3(b)
	rec := storage.ObjectRecord{
		ObjectID:   id,
		SpaceID:    o.SpaceID,
		Bytes:      b,
		Suppressed: res.Disposition == validate.StoreOnly,
	}
	if _, err := e.store.PutObject(ctx, rec); err != nil {
		return storage.QueueItem{}, object.WrapError(object.KindStorage, "", "store local object", err)
	}

	// Provisional local apply: the author sees the effect immediately;
	// the remote's verdict arrives through the push results.
	if res.Disposition == validate.Accept && e.policy.IsGovernance(o.ObjectType) {
		if _, err := e.moder.Apply(o); err != nil {
			return storage.QueueItem{}, err
		}
	}

	bucket := e.class.Classify(o.ObjectType)
	if bucket == BucketLocalOnly {
		return storage.QueueItem{
			ObjectID: id,
			SpaceID:  o.SpaceID,
			Bucket:   string(bucket),
		}, nil
	}
	item, err := e.store.Enqueue(ctx, storage.QueueItem{
		ObjectID: id,
		SpaceID:  o.SpaceID,
		Bucket:   string(bucket),
	})
	if err != nil {
		return storage.QueueItem{}, object.WrapError(object.KindStorage, "", "enqueue local object", err)
	}
	return item, nil
}

// push submits pending queue items and records the remote's verdicts.
// Rejected items keep their reason and stay visible in the queue snapshot;
// nothing is ever silently dropped.
func (e *Engine) push(ctx context.Context, rep *Report, spaceID string, log zerolog.Logger) error {
	pending, err := e.store.PendingQueue(ctx, spaceID, e.pushLimit)
	if err != nil {
		return object.WrapError(object.KindStorage, "", "read pending queue", err)
	}
	if len(pending) == 0 {
		return nil
	}

	items := make([]storage.QueueItem, 0, len(pending))
	payloads := make([][]byte, 0, len(pending))
	for _, item := range pending {
		rec, err := e.store.GetObject(ctx, item.ObjectID)
		if err != nil {
			if storage.IsNotFound(err) {
				item.State = storage.QueueRejected
				item.Reason = "object missing from local store"
				if uerr := e.store.UpdateQueue(ctx, item); uerr != nil {
					return object.WrapError(object.KindStorage, "", "update queue", uerr)
				}
				rep.Rejected++
				log.Error().Str("object", item.ObjectID).Msg("queued object missing from local store")
				continue
			}
			return object.WrapError(object.KindStorage, "", "load queued object", err)
		}
		items = append(items, item)
		payloads = append(payloads, rec.Bytes)
	}
	if len(items) == 0 {
		return nil
	}

	var results []PushResult
	err = retry.Do(ctx, e.backoff(), func(ctx context.Context) error {
		rs, perr := e.feed.Push(ctx, spaceID, payloads)
		if perr != nil {
			return retry.RetryableError(perr)
		}
		results = rs
		return nil
	})
	if err != nil {
		// Transport failure: bump attempts, keep everything pending, and
		// surface the error so the caller can reschedule.
		for _, item := range items {
			item.Attempts++
			item.LastError = err.Error()
			if uerr := e.store.UpdateQueue(ctx, item); uerr != nil {
				return object.WrapError(object.KindStorage, "", "update queue", uerr)
			}
		}
		return fmt.Errorf("push %s: %w", spaceID, err)
	}
	rep.Pushed = len(items)

	byID := make(map[string]PushResult, len(results))
	for _, r := range results {
		byID[r.ObjectID] = r
	}
	for _, item := range items {
		item.Attempts++
		r, ok := byID[item.ObjectID]
		switch {
		case !ok:
			// The relay returned no verdict. Stay pending for the next
			// cycle rather than guessing.
			item.LastError = "no verdict from relay"
		case r.Accepted:
			item.State = storage.QueueAcked
			item.LastError = ""
			rep.Acked++
		default:
			item.State = storage.QueueRejected
			item.Reason = r.Reason
			rep.Rejected++
			log.Warn().Str("object", item.ObjectID).Str("reason", r.Reason).Msg("relay rejected outbound object")
		}
		if err := e.store.UpdateQueue(ctx, item); err != nil {
			return object.WrapError(object.KindStorage, "", "update queue", err)
		}
	}
	return nil
}

// Queue returns the full outbound queue for a space, including acked and
// rejected items.
func (e *Engine) Queue(ctx context.Context, spaceID string) ([]storage.QueueItem, error) {
	return e.store.QueueSnapshot(ctx, spaceID)
}
