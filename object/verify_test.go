package object

import (
	"crypto/ed25519"
	"testing"
)

func TestVerifySignature_ReasonsAreDistinguished(t *testing.T) {
	_, priv := mustKeypair(t, 0x31)
	pubOther, _ := mustKeypair(t, 0x32)

	good := mustObject(t, priv)
	if err := good.VerifySignature(); err != nil {
		t.Fatalf("VerifySignature(good): %v", err)
	}

	unsupported := *good
	unsupported.ProtocolVersion = 2
	if got := RuleID(unsupported.VerifySignature()); got != RuleUnsupportedAlgorithm {
		t.Errorf("unsupported version rule = %s, want %s", got, RuleUnsupportedAlgorithm)
	}

	short := *good
	short.AuthorPublicKey = good.AuthorPublicKey[:AuthorKeySize-1]
	if got := RuleID(short.VerifySignature()); got != RuleMalformedKey {
		t.Errorf("short key rule = %s, want %s", got, RuleMalformedKey)
	}

	swapped := *good
	swapped.AuthorPublicKey = pubOther
	if got := RuleID(swapped.VerifySignature()); got != RuleSignatureMismatch {
		t.Errorf("wrong author rule = %s, want %s", got, RuleSignatureMismatch)
	}

	unsigned := *good
	unsigned.Signature = nil
	if got := RuleID(unsigned.VerifySignature()); got != RuleSignatureMismatch {
		t.Errorf("missing signature rule = %s, want %s", got, RuleSignatureMismatch)
	}
}

func TestVerifySignature_CoversEveryField(t *testing.T) {
	_, priv := mustKeypair(t, 0x33)
	good := mustObject(t, priv)

	mutations := []func(o *Object){
		func(o *Object) { o.ObjectType = "other" },
		func(o *Object) { o.SpaceID = "space-2" },
		func(o *Object) { o.SpaceID = "" },
		func(o *Object) { o.ChannelID = "" },
		func(o *Object) { *o.CreatedAt = *o.CreatedAt + 1 },
		func(o *Object) { o.CreatedAt = nil },
		func(o *Object) { o.References = []string{"bafyone"} },
		func(o *Object) { o.References = []string{} },
		func(o *Object) { o.PayloadSchemaVersion = 2 },
		func(o *Object) { o.PayloadEncoding = EncodingEncrypted },
		func(o *Object) { o.Payload = []byte{0x01} },
	}
	for i, mutate := range mutations {
		mutated := *good
		ts := *good.CreatedAt
		mutated.CreatedAt = &ts
		mutate(&mutated)
		if err := mutated.VerifySignature(); err == nil {
			t.Errorf("mutation %d still verifies; signature must cover every field", i)
		}
	}
}

func TestVerifyDetached(t *testing.T) {
	_, priv := mustKeypair(t, 0x34)
	coPub, coPriv := mustKeypair(t, 0x35)

	o := mustObject(t, priv)
	signable, err := o.SignableBytes()
	if err != nil {
		t.Fatalf("SignableBytes: %v", err)
	}
	coSig := ed25519.Sign(coPriv, signable)

	if err := VerifyDetached(coPub, coSig, signable); err != nil {
		t.Fatalf("VerifyDetached(valid signature): %v", err)
	}

	bad := append([]byte(nil), coSig...)
	bad[0] ^= 0xFF
	if err := VerifyDetached(coPub, bad, signable); err == nil {
		t.Fatalf("VerifyDetached accepted a corrupted signature")
	}
	if err := VerifyDetached(o.AuthorPublicKey, coSig, signable); err == nil {
		t.Fatalf("VerifyDetached accepted a signature under the wrong key")
	}
	if got := RuleID(VerifyDetached(coPub[:16], coSig, signable)); got != RuleMalformedKey {
		t.Errorf("short key rule = %s, want %s", got, RuleMalformedKey)
	}
	if got := RuleID(VerifyDetached(coPub, coSig[:16], signable)); got != RuleSignatureMismatch {
		t.Errorf("short signature rule = %s, want %s", got, RuleSignatureMismatch)
	}
}
