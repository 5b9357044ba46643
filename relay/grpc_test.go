package relay

import (
	"context"
	"crypto/ed25519"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/sethvargo/go-retry"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/test/bufconn"

	"humanity.network/core/canon"
	"humanity.network/core/cidutil"
	"humanity.network/core/object"
	"humanity.network/core/storage/memstore"
	"humanity.network/core/syncer"
)

const testSpace = "space-lantern"

func wireKeypair(seed byte) ed25519.PrivateKey {
	s := make([]byte, ed25519.SeedSize)
	for i := range s {
		s[i] = seed
	}
	return ed25519.NewKeyFromSeed(s)
}

func wireMessage(t *testing.T, priv ed25519.PrivateKey, body string) []byte {
	t.Helper()
	o, err := object.NewBuilder(object.TypeMessage).
		Space(testSpace).
		CreatedAt(1700000000).
		Payload(map[string]any{"body": body}).
		Sign(priv)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	b, err := o.CanonicalBytes()
	if err != nil {
		t.Fatalf("canonical bytes: %v", err)
	}
	return b
}

func breakSignature(t *testing.T, raw []byte) []byte {
	t.Helper()
	m, err := canon.DecodeMap(raw)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	sig := m["signature"].([]byte)
	sig[0] ^= 0x01
	m["signature"] = sig
	out, err := canon.Marshal(m)
	if err != nil {
		t.Fatalf("re-encode: %v", err)
	}
	return out
}

func testSequencer(t *testing.T) *Sequencer {
	t.Helper()
	seq, err := NewSequencer(SequencerOptions{Store: memstore.New(), Logger: zerolog.Nop()})
	if err != nil {
		t.Fatalf("NewSequencer: %v", err)
	}
	return seq
}

// serveFeed stands up feed behind a bufconn gRPC server and returns a
// connected Client.
func serveFeed(t *testing.T, feed syncer.Feed) *Client {
	t.Helper()
	lis := bufconn.Listen(1024 * 1024)
	srv := grpc.NewServer()
	RegisterFeedServer(srv, &Server{Feed: feed})

	go func() {
		_ = srv.Serve(lis)
	}()
	t.Cleanup(srv.Stop)

	dialer := func(ctx context.Context, s string) (net.Conn, error) { return lis.Dial() }
	cc, err := grpc.NewClient(
		"passthrough:///bufnet",
		grpc.WithContextDialer(dialer),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	t.Cleanup(func() { _ = cc.Close() })

	client := NewClient(cc)
	client.Timeout = 5 * time.Second
	return client
}

func TestFeedGRPC_SequencerRoundTrip(t *testing.T) {
	ctx := context.Background()
	client := serveFeed(t, testSequencer(t))
	alice := wireKeypair(0x41)

	first := wireMessage(t, alice, "over the wire")
	second := wireMessage(t, alice, "and another")
	verdicts, err := client.Push(ctx, testSpace, [][]byte{first, second})
	if err != nil {
		t.Fatalf("Push: %v", err)
	}
	if len(verdicts) != 2 || !verdicts[0].Accepted || !verdicts[1].Accepted {
		t.Fatalf("expected two accepted verdicts, got %+v", verdicts)
	}
	if want := cidutil.CIDv1RawBlake3(first); verdicts[0].ObjectID != want {
		t.Fatalf("verdict id = %q, want %q", verdicts[0].ObjectID, want)
	}

	envs, err := client.Pull(ctx, testSpace, "", 0)
	if err != nil {
		t.Fatalf("Pull: %v", err)
	}
	if len(envs) != 2 {
		t.Fatalf("expected 2 envelopes, got %d", len(envs))
	}
	if string(envs[0].Bytes) != string(first) || envs[0].Cursor != "1" {
		t.Fatalf("first envelope out of order: cursor %q", envs[0].Cursor)
	}

	envs, err = client.Pull(ctx, testSpace, "1", 0)
	if err != nil {
		t.Fatalf("Pull from cursor: %v", err)
	}
	if len(envs) != 1 || string(envs[0].Bytes) != string(second) {
		t.Fatalf("resume from cursor 1 should yield the second object")
	}
}

func TestFeedGRPC_VerdictsCrossTheWire(t *testing.T) {
	ctx := context.Background()
	client := serveFeed(t, testSequencer(t))
	alice := wireKeypair(0x42)

	bad := breakSignature(t, wireMessage(t, alice, "tampered in transit"))
	good := wireMessage(t, alice, "intact")
	verdicts, err := client.Push(ctx, testSpace, [][]byte{bad, good})
	if err != nil {
		t.Fatalf("Push: %v", err)
	}
	if len(verdicts) != 2 {
		t.Fatalf("expected 2 verdicts, got %d", len(verdicts))
	}
	if verdicts[0].Accepted || verdicts[0].Reason != ReasonInvalidSignature {
		t.Fatalf("bad object verdict = %+v", verdicts[0])
	}
	if !verdicts[1].Accepted {
		t.Fatalf("good object rejected: %s", verdicts[1].Reason)
	}
}

func TestFeedGRPC_BadCursorMapsToSentinel(t *testing.T) {
	client := serveFeed(t, testSequencer(t))
	_, err := client.Pull(context.Background(), testSpace, "definitely-not-mine", 0)
	if !errors.Is(err, ErrBadCursor) {
		t.Fatalf("expected ErrBadCursor, got %v", err)
	}
}

func TestFeedGRPC_MissingSpaceRejected(t *testing.T) {
	client := serveFeed(t, testSequencer(t))
	if _, err := client.Pull(context.Background(), "", "", 0); err == nil {
		t.Fatalf("expected error for missing space id")
	}
	if _, err := client.Push(context.Background(), "", nil); err == nil {
		t.Fatalf("expected error for missing space id")
	}
}

// Two devices with independent local stores converge through one relay.
func TestFeedGRPC_SyncEnginesConverge(t *testing.T) {
	ctx := context.Background()
	client := serveFeed(t, testSequencer(t))
	alice := wireKeypair(0x43)

	backoff := func() retry.Backoff {
		return retry.WithMaxRetries(3, retry.NewConstant(time.Millisecond))
	}
	newDevice := func() (*syncer.Engine, *memstore.Store) {
		st := memstore.New()
		e, err := syncer.New(syncer.Options{
			Store:   st,
			Feed:    client,
			Logger:  zerolog.Nop(),
			Backoff: backoff,
		})
		if err != nil {
			t.Fatalf("syncer.New: %v", err)
		}
		return e, st
	}
	sender, _ := newDevice()
	receiver, receiverStore := newDevice()

	o, err := object.Decode(wireMessage(t, alice, "hello from device one"))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if _, err := sender.EnqueueLocal(ctx, o); err != nil {
		t.Fatalf("EnqueueLocal: %v", err)
	}
	rep, err := sender.SyncSpace(ctx, testSpace)
	if err != nil {
		t.Fatalf("sender sync: %v", err)
	}
	if rep.Acked != 1 {
		t.Fatalf("expected 1 acked push, got %d", rep.Acked)
	}

	rep, err = receiver.SyncSpace(ctx, testSpace)
	if err != nil {
		t.Fatalf("receiver sync: %v", err)
	}
	if rep.Applied != 1 {
		t.Fatalf("expected 1 applied object, got %d", rep.Applied)
	}
	id, err := o.ID()
	if err != nil {
		t.Fatalf("ID: %v", err)
	}
	ok, err := receiverStore.HasObject(ctx, id)
	if err != nil || !ok {
		t.Fatalf("receiver store missing %s (err %v)", id, err)
	}
}
