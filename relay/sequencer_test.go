package relay_test

import (
	"context"
	"crypto/ed25519"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"humanity.network/core/canon"
	"humanity.network/core/moderation"
	"humanity.network/core/object"
	"humanity.network/core/relay"
	"humanity.network/core/storage"
	"humanity.network/core/storage/memstore"
	"humanity.network/core/syncer"
)

const space = "space-meridian"

const base = uint64(1700000000)

func mustKeypair(t *testing.T, seed byte) (ed25519.PublicKey, ed25519.PrivateKey) {
	t.Helper()
	s := make([]byte, ed25519.SeedSize)
	for i := range s {
		s[i] = seed
	}
	priv := ed25519.NewKeyFromSeed(s)
	return priv.Public().(ed25519.PublicKey), priv
}

func signIn(t *testing.T, priv ed25519.PrivateKey, objType, spaceID string, payload map[string]any) *object.Object {
	t.Helper()
	o, err := object.NewBuilder(objType).
		Space(spaceID).
		CreatedAt(base).
		Payload(payload).
		Sign(priv)
	require.NoError(t, err)
	return o
}

func message(t *testing.T, priv ed25519.PrivateKey, body string) *object.Object {
	t.Helper()
	return signIn(t, priv, object.TypeMessage, space, map[string]any{"body": body})
}

func mustBytes(t *testing.T, o *object.Object) []byte {
	t.Helper()
	b, err := o.CanonicalBytes()
	require.NoError(t, err)
	return b
}

func mustID(t *testing.T, o *object.Object) string {
	t.Helper()
	id, err := o.ID()
	require.NoError(t, err)
	return id
}

// corruptSignature flips one bit of the signature and re-encodes, so the
// envelope stays canonical but no longer verifies.
func corruptSignature(t *testing.T, raw []byte) []byte {
	t.Helper()
	m, err := canon.DecodeMap(raw)
	require.NoError(t, err)
	sig, ok := m["signature"].([]byte)
	require.True(t, ok)
	sig[0] ^= 0x01
	m["signature"] = sig
	out, err := canon.Marshal(m)
	require.NoError(t, err)
	return out
}

func newSequencer(t *testing.T, st storage.Store, now func() uint64) *relay.Sequencer {
	t.Helper()
	if now == nil {
		now = func() uint64 { return base + 10 }
	}
	seq, err := relay.NewSequencer(relay.SequencerOptions{
		Store:  st,
		Logger: zerolog.Nop(),
		Now:    now,
	})
	require.NoError(t, err)
	return seq
}

func pushOne(t *testing.T, feed syncer.Feed, spaceID string, raw []byte) syncer.PushResult {
	t.Helper()
	res, err := feed.Push(context.Background(), spaceID, [][]byte{raw})
	require.NoError(t, err)
	require.Len(t, res, 1)
	return res[0]
}

// openSpace pushes a genesis policy owned by owner with the given extras
// merged into the policy payload.
func openSpace(t *testing.T, seq *relay.Sequencer, ownerPub ed25519.PublicKey, ownerPriv ed25519.PrivateKey, extra map[string]any) {
	t.Helper()
	payload := map[string]any{
		"owner_public_key":  []byte(ownerPub),
		"membership_policy": "open",
	}
	for k, v := range extra {
		payload[k] = v
	}
	policy := signIn(t, ownerPriv, object.TypeSpacePolicy, space, payload)
	res := pushOne(t, seq, space, mustBytes(t, policy))
	require.True(t, res.Accepted, "genesis policy rejected: %s", res.Reason)
}

func TestSequencer_RequiresStore(t *testing.T) {
	_, err := relay.NewSequencer(relay.SequencerOptions{})
	require.Error(t, err)
}

func TestSequencer_PushAssignsSequenceAndPullResumes(t *testing.T) {
	ctx := context.Background()
	_, alice := mustKeypair(t, 0x21)
	seq := newSequencer(t, memstore.New(), nil)

	m1 := message(t, alice, "first")
	m2 := message(t, alice, "second")
	res, err := seq.Push(ctx, space, [][]byte{mustBytes(t, m1), mustBytes(t, m2)})
	require.NoError(t, err)
	require.Len(t, res, 2)
	require.True(t, res[0].Accepted)
	require.True(t, res[1].Accepted)
	require.Equal(t, mustID(t, m1), res[0].ObjectID)

	envs, err := seq.Pull(ctx, space, "", 0)
	require.NoError(t, err)
	require.Len(t, envs, 2)
	require.Equal(t, "1", envs[0].Cursor)
	require.Equal(t, "2", envs[1].Cursor)
	require.Equal(t, mustBytes(t, m1), envs[0].Bytes)

	envs, err = seq.Pull(ctx, space, "1", 0)
	require.NoError(t, err)
	require.Len(t, envs, 1)
	require.Equal(t, mustBytes(t, m2), envs[0].Bytes)

	envs, err = seq.Pull(ctx, space, "2", 0)
	require.NoError(t, err)
	require.Empty(t, envs)
}

func TestSequencer_PushIsIdempotent(t *testing.T) {
	ctx := context.Background()
	_, alice := mustKeypair(t, 0x22)
	seq := newSequencer(t, memstore.New(), nil)

	m := message(t, alice, "delivered twice")
	require.True(t, pushOne(t, seq, space, mustBytes(t, m)).Accepted)
	require.True(t, pushOne(t, seq, space, mustBytes(t, m)).Accepted)

	envs, err := seq.Pull(ctx, space, "", 0)
	require.NoError(t, err)
	require.Len(t, envs, 1, "a re-push must not grow the log")
	require.Equal(t, "1", envs[0].Cursor)
}

func TestSequencer_RejectsBadSignature(t *testing.T) {
	_, alice := mustKeypair(t, 0x23)
	seq := newSequencer(t, memstore.New(), nil)

	raw := corruptSignature(t, mustBytes(t, message(t, alice, "tampered")))
	res := pushOne(t, seq, space, raw)
	require.False(t, res.Accepted)
	require.Equal(t, relay.ReasonInvalidSignature, res.Reason)

	envs, err := seq.Pull(context.Background(), space, "", 0)
	require.NoError(t, err)
	require.Empty(t, envs)
}

func TestSequencer_RejectsWrongSpaceAndGarbage(t *testing.T) {
	_, alice := mustKeypair(t, 0x24)
	seq := newSequencer(t, memstore.New(), nil)

	res := pushOne(t, seq, "space-other", mustBytes(t, message(t, alice, "misrouted")))
	require.False(t, res.Accepted)
	require.Equal(t, relay.ReasonInvalidSchema, res.Reason)

	res = pushOne(t, seq, space, []byte{0xff, 0x00, 0x01})
	require.False(t, res.Accepted)
	require.Equal(t, relay.ReasonInvalidSchema, res.Reason)
}

func TestSequencer_RejectsUnknownTypeUnderStrictPolicy(t *testing.T) {
	_, alice := mustKeypair(t, 0x25)
	seq := newSequencer(t, memstore.New(), nil)

	exotic := signIn(t, alice, "holographic_meetup", space, map[string]any{"venue": "pier 9"})
	res := pushOne(t, seq, space, mustBytes(t, exotic))
	require.False(t, res.Accepted)
	require.Equal(t, relay.ReasonInvalidSchema, res.Reason)
}

func TestSequencer_ReferencesMustNameStoredObjects(t *testing.T) {
	_, alice := mustKeypair(t, 0x2B)
	seq := newSequencer(t, memstore.New(), nil)

	root := message(t, alice, "root")
	require.True(t, pushOne(t, seq, space, mustBytes(t, root)).Accepted)

	reply := func(ref string) []byte {
		o, err := object.NewBuilder(object.TypeMessage).
			Space(space).
			CreatedAt(base).
			References(ref).
			Payload(map[string]any{"body": "reply"}).
			Sign(alice)
		require.NoError(t, err)
		return mustBytes(t, o)
	}

	// A well-formed id the relay has never stored cannot be cited.
	ghost := mustID(t, message(t, alice, "never pushed"))
	res := pushOne(t, seq, space, reply(ghost))
	require.False(t, res.Accepted)
	require.Equal(t, relay.ReasonInvalidSchema, res.Reason)

	res = pushOne(t, seq, space, reply(mustID(t, root)))
	require.True(t, res.Accepted, "reply citing a stored object rejected: %s", res.Reason)
}

func TestSequencer_BannedAuthorIsRejected(t *testing.T) {
	ownerPub, ownerPriv := mustKeypair(t, 0x26)
	bobPub, bobPriv := mustKeypair(t, 0x27)
	seq := newSequencer(t, memstore.New(), nil)
	openSpace(t, seq, ownerPub, ownerPriv, nil)

	ban := signIn(t, ownerPriv, object.TypeModerationAction, space, map[string]any{
		"action_type":      "ban_identity",
		"issued_by":        []byte(ownerPub),
		"target_identity":  []byte(bobPub),
		"duration_seconds": uint64(3600),
	})
	require.True(t, pushOne(t, seq, space, mustBytes(t, ban)).Accepted)

	res := pushOne(t, seq, space, mustBytes(t, message(t, bobPriv, "let me in")))
	require.False(t, res.Accepted)
	require.Equal(t, relay.ReasonBanned, res.Reason)

	// The owner is unaffected.
	require.True(t, pushOne(t, seq, space, mustBytes(t, message(t, ownerPriv, "still here"))).Accepted)
}

func TestSequencer_MembershipGatesInviteOnlySpace(t *testing.T) {
	ownerPub, ownerPriv := mustKeypair(t, 0x28)
	bobPub, bobPriv := mustKeypair(t, 0x29)
	seq := newSequencer(t, memstore.New(), nil)

	policy := signIn(t, ownerPriv, object.TypeSpacePolicy, space, map[string]any{
		"owner_public_key":  []byte(ownerPub),
		"membership_policy": "invite_only",
	})
	require.True(t, pushOne(t, seq, space, mustBytes(t, policy)).Accepted,
		"genesis lands before any policy exists, so the gate is open")

	res := pushOne(t, seq, space, mustBytes(t, message(t, bobPriv, "knock knock")))
	require.False(t, res.Accepted)
	require.Equal(t, relay.ReasonNotAMember, res.Reason)

	invite := signIn(t, ownerPriv, object.TypeModerationAction, space, map[string]any{
		"action_type":     "invite_member",
		"issued_by":       []byte(ownerPub),
		"target_identity": []byte(bobPub),
	})
	require.True(t, pushOne(t, seq, space, mustBytes(t, invite)).Accepted)

	// Invited is not yet a member.
	res = pushOne(t, seq, space, mustBytes(t, message(t, bobPriv, "got the invite")))
	require.False(t, res.Accepted)
	require.Equal(t, relay.ReasonNotAMember, res.Reason)

	add := signIn(t, ownerPriv, object.TypeModerationAction, space, map[string]any{
		"action_type":     "add_member",
		"issued_by":       []byte(ownerPub),
		"target_identity": []byte(bobPub),
	})
	require.True(t, pushOne(t, seq, space, mustBytes(t, add)).Accepted)

	require.True(t, pushOne(t, seq, space, mustBytes(t, message(t, bobPriv, "finally in"))).Accepted)

	// Role holders write without an explicit membership record.
	require.True(t, pushOne(t, seq, space, mustBytes(t, message(t, ownerPriv, "welcome"))).Accepted)
}

func TestSequencer_RateLimitFromSpaceRules(t *testing.T) {
	now := base + 10
	ownerPub, ownerPriv := mustKeypair(t, 0x2a)
	_, alice := mustKeypair(t, 0x2b)
	seq := newSequencer(t, memstore.New(), func() uint64 { return now })
	openSpace(t, seq, ownerPub, ownerPriv, map[string]any{
		"safety": map[string]any{"max_objects_per_minute": uint64(2)},
	})

	res, err := seq.Push(context.Background(), space, [][]byte{
		mustBytes(t, message(t, alice, "one")),
		mustBytes(t, message(t, alice, "two")),
		mustBytes(t, message(t, alice, "three")),
	})
	require.NoError(t, err)
	require.True(t, res[0].Accepted)
	require.True(t, res[1].Accepted)
	require.False(t, res[2].Accepted)
	require.Equal(t, relay.ReasonRateLimited, res[2].Reason)

	// Another author has their own bucket.
	require.True(t, pushOne(t, seq, space, mustBytes(t, message(t, ownerPriv, "unthrottled"))).Accepted)

	// The bucket refills with time.
	now += 120
	require.True(t, pushOne(t, seq, space, mustBytes(t, message(t, alice, "three, later"))).Accepted)
}

func TestSequencer_QuarantinedContentCannotBeRepushed(t *testing.T) {
	ownerPub, ownerPriv := mustKeypair(t, 0x2c)
	_, alice := mustKeypair(t, 0x2d)
	seq := newSequencer(t, memstore.New(), nil)
	openSpace(t, seq, ownerPub, ownerPriv, nil)

	m := message(t, alice, "soon to be quarantined")
	require.True(t, pushOne(t, seq, space, mustBytes(t, m)).Accepted)

	quarantine := signIn(t, ownerPriv, object.TypeModerationAction, space, map[string]any{
		"action_type":      "quarantine_content",
		"issued_by":        []byte(ownerPub),
		"target_object_id": mustID(t, m),
	})
	require.True(t, pushOne(t, seq, space, mustBytes(t, quarantine)).Accepted)

	res := pushOne(t, seq, space, mustBytes(t, m))
	require.False(t, res.Accepted)
	require.Equal(t, relay.ReasonContentQuarantined, res.Reason)
}

func TestSequencer_AttachmentSizeCap(t *testing.T) {
	ownerPub, ownerPriv := mustKeypair(t, 0x2e)
	_, alice := mustKeypair(t, 0x2f)
	seq := newSequencer(t, memstore.New(), nil)
	openSpace(t, seq, ownerPub, ownerPriv, map[string]any{
		"safety": map[string]any{"max_attachment_bytes": uint64(128)},
	})

	big := make([]byte, 256)
	attachment := signIn(t, alice, object.TypeAttachment, space, map[string]any{
		"file_name": "mural.png",
		"data":      big,
	})
	res := pushOne(t, seq, space, mustBytes(t, attachment))
	require.False(t, res.Accepted)
	require.Equal(t, relay.ReasonInvalidSchema, res.Reason)

	small := signIn(t, alice, object.TypeAttachment, space, map[string]any{
		"file_name": "icon.png",
		"data":      []byte{1, 2, 3},
	})
	require.True(t, pushOne(t, seq, space, mustBytes(t, small)).Accepted)
}

func TestSequencer_MalformedGovernanceRejected(t *testing.T) {
	ownerPub, ownerPriv := mustKeypair(t, 0x30)
	seq := newSequencer(t, memstore.New(), nil)
	openSpace(t, seq, ownerPub, ownerPriv, nil)

	// Well-formed envelope, unparseable action: no issued_by.
	bad := signIn(t, ownerPriv, object.TypeModerationAction, space, map[string]any{
		"action_type":     "ban_identity",
		"target_identity": []byte(ownerPub),
	})
	res := pushOne(t, seq, space, mustBytes(t, bad))
	require.False(t, res.Accepted)
	require.Equal(t, relay.ReasonInvalidSchema, res.Reason)

	envs, err := seq.Pull(context.Background(), space, "1", 0)
	require.NoError(t, err)
	require.Empty(t, envs, "rejected governance must stay out of the log")
}

func TestSequencer_IneligibleGovernanceIsStoredExcluded(t *testing.T) {
	ownerPub, ownerPriv := mustKeypair(t, 0x31)
	bobPub, bobPriv := mustKeypair(t, 0x32)
	carolPub, _ := mustKeypair(t, 0x33)
	seq := newSequencer(t, memstore.New(), nil)
	openSpace(t, seq, ownerPub, ownerPriv, nil)

	// bob holds no role; his ban is recorded but applies to nothing.
	rogue := signIn(t, bobPriv, object.TypeModerationAction, space, map[string]any{
		"action_type":     "ban_identity",
		"issued_by":       []byte(bobPub),
		"target_identity": []byte(carolPub),
	})
	require.True(t, pushOne(t, seq, space, mustBytes(t, rogue)).Accepted)

	require.Equal(t, moderation.IdentityUnrestricted,
		seq.Moderation().IdentityStatus(space, carolPub, base+10))

	envs, err := seq.Pull(context.Background(), space, "1", 0)
	require.NoError(t, err)
	require.Len(t, envs, 1, "excluded actions still travel for audit")
}

func TestSequencer_ReplayRestoresModerationState(t *testing.T) {
	st := memstore.New()
	ownerPub, ownerPriv := mustKeypair(t, 0x34)
	bobPub, bobPriv := mustKeypair(t, 0x35)

	first := newSequencer(t, st, nil)
	openSpace(t, first, ownerPub, ownerPriv, nil)
	ban := signIn(t, ownerPriv, object.TypeModerationAction, space, map[string]any{
		"action_type":      "ban_identity",
		"issued_by":        []byte(ownerPub),
		"target_identity":  []byte(bobPub),
		"duration_seconds": uint64(3600),
	})
	require.True(t, pushOne(t, first, space, mustBytes(t, ban)).Accepted)

	// A fresh process over the same store enforces the same ban.
	second := newSequencer(t, st, nil)
	res := pushOne(t, second, space, mustBytes(t, message(t, bobPriv, "new process, old ban")))
	require.False(t, res.Accepted)
	require.Equal(t, relay.ReasonBanned, res.Reason)
}

func TestSequencer_PullRejectsForeignCursor(t *testing.T) {
	seq := newSequencer(t, memstore.New(), nil)
	_, err := seq.Pull(context.Background(), space, "not-a-sequence", 0)
	require.Error(t, err)
	require.True(t, errors.Is(err, relay.ErrBadCursor))
}

func TestSequencer_PushRequiresSpace(t *testing.T) {
	seq := newSequencer(t, memstore.New(), nil)
	_, err := seq.Push(context.Background(), "", nil)
	require.Error(t, err)
}
