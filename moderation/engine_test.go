package moderation

import (
	"crypto/ed25519"
	"testing"

	"github.com/stretchr/testify/require"

	"humanity.network/core/object"
)

const space = "space-atrium"

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

func signGov(t *testing.T, objType string, priv ed25519.PrivateKey, createdAt uint64, payload map[string]any) *object.Object {
	t.Helper()
	o, err := object.NewBuilder(objType).Space(space).CreatedAt(createdAt).Payload(payload).Sign(priv)
	if err != nil {
		t.Fatalf("sign %s: %v", objType, err)
	}
	return o
}

func basePolicy(owner ed25519.PublicKey) map[string]any {
	return map[string]any{
		"owner_public_key":  []byte(owner),
		"membership_policy": "open",
	}
}

func actionPayload(typ ActionType, issuer ed25519.PublicKey) map[string]any {
	return map[string]any{
		"action_type": string(typ),
		"issued_by":   []byte(issuer),
	}
}

func mustApply(t *testing.T, e *Engine, o *object.Object) Result {
	t.Helper()
	res, err := e.Apply(o)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	return res
}

func mustID(t *testing.T, o *object.Object) string {
	t.Helper()
	id, err := o.ID()
	if err != nil {
		t.Fatalf("ID: %v", err)
	}
	return id
}

func TestEngine_GenesisPolicy(t *testing.T) {
	ownerPub, ownerPriv := mustKeypair(t, 0x01)
	_, otherPriv := mustKeypair(t, 0x02)
	targetPub, _ := mustKeypair(t, 0x03)
	e := NewEngine()

	early := actionPayload(ActionMuteIdentity, mustPub(otherPriv))
	early["target_identity"] = []byte(targetPub)
	res := mustApply(t, e, signGov(t, object.TypeModerationAction, otherPriv, base, early))
	require.False(t, res.Applied)
	require.Equal(t, "space has no policy", res.Reason)

	impostor := signGov(t, object.TypeSpacePolicy, otherPriv, base, basePolicy(ownerPub))
	res = mustApply(t, e, impostor)
	require.False(t, res.Applied)
	require.Contains(t, res.Reason, "declared owner")

	genesis := signGov(t, object.TypeSpacePolicy, ownerPriv, base, basePolicy(ownerPub))
	res = mustApply(t, e, genesis)
	require.True(t, res.Applied)

	auth, err := e.Authority(space)
	require.NoError(t, err)
	require.Equal(t, []byte(ownerPub), auth.Owner)
	require.Empty(t, auth.Administrators)
	require.Equal(t, mustID(t, genesis), e.PolicyHead(space))

	second := signGov(t, object.TypeSpacePolicy, ownerPriv, base+1, basePolicy(ownerPub))
	res = mustApply(t, e, second)
	require.False(t, res.Applied)
	require.Equal(t, "space already has a policy chain", res.Reason)
}

func TestEngine_PolicyChain(t *testing.T) {
	ownerPub, ownerPriv := mustKeypair(t, 0x04)
	adminPub, adminPriv := mustKeypair(t, 0x05)
	newOwnerPub, _ := mustKeypair(t, 0x06)
	_, outsiderPriv := mustKeypair(t, 0x07)
	e := NewEngine()

	p0 := basePolicy(ownerPub)
	p0["administrators"] = []any{[]byte(adminPub)}
	genesis := signGov(t, object.TypeSpacePolicy, ownerPriv, base, p0)
	require.True(t, mustApply(t, e, genesis).Applied)
	genesisID := mustID(t, genesis)

	stale := basePolicy(ownerPub)
	stale["previous_policy_object_id"] = "bafkreihead"
	res := mustApply(t, e, signGov(t, object.TypeSpacePolicy, ownerPriv, base+1, stale))
	require.False(t, res.Applied)
	require.Equal(t, "policy does not chain from the current head", res.Reason)

	intruder := basePolicy(ownerPub)
	intruder["previous_policy_object_id"] = genesisID
	res = mustApply(t, e, signGov(t, object.TypeSpacePolicy, outsiderPriv, base+2, intruder))
	require.False(t, res.Applied)
	require.Contains(t, res.Reason, "not authorized")

	rotation := basePolicy(newOwnerPub)
	rotation["previous_policy_object_id"] = genesisID
	res = mustApply(t, e, signGov(t, object.TypeSpacePolicy, adminPriv, base+3, rotation))
	require.False(t, res.Applied)
	require.Contains(t, res.Reason, "owner rotation")

	byAdmin := basePolicy(ownerPub)
	byAdmin["previous_policy_object_id"] = genesisID
	byAdmin["membership_policy"] = "invite_only"
	upd := signGov(t, object.TypeSpacePolicy, adminPriv, base+4, byAdmin)
	require.True(t, mustApply(t, e, upd).Applied)
	require.Equal(t, mustID(t, upd), e.PolicyHead(space))

	rules, err := e.Rules(space)
	require.NoError(t, err)
	require.Equal(t, MembershipInviteOnly, rules.MembershipPolicy)

	rotate := basePolicy(newOwnerPub)
	rotate["previous_policy_object_id"] = mustID(t, upd)
	res = mustApply(t, e, signGov(t, object.TypeSpacePolicy, ownerPriv, base+5, rotate))
	require.True(t, res.Applied)
	auth, err := e.Authority(space)
	require.NoError(t, err)
	require.Equal(t, []byte(newOwnerPub), auth.Owner)
}

func TestEngine_PolicyReplaceResetsAuthority(t *testing.T) {
	ownerPub, ownerPriv := mustKeypair(t, 0x08)
	modPub, modPriv := mustKeypair(t, 0x09)
	targetPub, _ := mustKeypair(t, 0x0A)
	e := NewEngine()

	genesis := signGov(t, object.TypeSpacePolicy, ownerPriv, base, basePolicy(ownerPub))
	require.True(t, mustApply(t, e, genesis).Applied)

	grant := actionPayload(ActionUpdateAuthority, ownerPub)
	grant["authority"] = map[string]any{"moderators": []any{[]byte(modPub)}}
	require.True(t, mustApply(t, e, signGov(t, object.TypeModerationAction, ownerPriv, base+1, grant)).Applied)

	mute := actionPayload(ActionMuteIdentity, modPub)
	mute["target_identity"] = []byte(targetPub)
	require.True(t, mustApply(t, e, signGov(t, object.TypeModerationAction, modPriv, base+2, mute)).Applied)

	replace := basePolicy(ownerPub)
	replace["previous_policy_object_id"] = mustID(t, genesis)
	require.True(t, mustApply(t, e, signGov(t, object.TypeSpacePolicy, ownerPriv, base+3, replace)).Applied)

	auth, err := e.Authority(space)
	require.NoError(t, err)
	require.Empty(t, auth.Moderators)

	again := actionPayload(ActionMuteIdentity, modPub)
	again["target_identity"] = []byte(ownerPub)
	res := mustApply(t, e, signGov(t, object.TypeModerationAction, modPriv, base+4, again))
	require.False(t, res.Applied)
	require.Contains(t, res.Reason, "lacks mute_members")

	require.Equal(t, IdentityMuted, e.IdentityStatus(space, targetPub, base+10))
}

func TestEngine_BanPrecedence(t *testing.T) {
	ownerPub, ownerPriv := mustKeypair(t, 0x0B)
	targetPub, _ := mustKeypair(t, 0x0C)
	e := NewEngine()
	require.True(t, mustApply(t, e, signGov(t, object.TypeSpacePolicy, ownerPriv, base, basePolicy(ownerPub))).Applied)

	mute := actionPayload(ActionMuteIdentity, ownerPub)
	mute["target_identity"] = []byte(targetPub)
	require.True(t, mustApply(t, e, signGov(t, object.TypeModerationAction, ownerPriv, base+1, mute)).Applied)
	require.Equal(t, IdentityMuted, e.IdentityStatus(space, targetPub, base+10))

	ban := actionPayload(ActionBanIdentity, ownerPub)
	ban["target_identity"] = []byte(targetPub)
	banObj := signGov(t, object.TypeModerationAction, ownerPriv, base+2, ban)
	require.True(t, mustApply(t, e, banObj).Applied)
	require.Equal(t, IdentityBanned, e.IdentityStatus(space, targetPub, base+10))

	vague := actionPayload(ActionUnbanIdentity, ownerPub)
	vague["target_identity"] = []byte(targetPub)
	vague["replaces"] = []any{"bafkreisomethingelse"}
	require.True(t, mustApply(t, e, signGov(t, object.TypeModerationAction, ownerPriv, base+3, vague)).Applied)
	require.Equal(t, IdentityBanned, e.IdentityStatus(space, targetPub, base+10))

	unban := actionPayload(ActionUnbanIdentity, ownerPub)
	unban["target_identity"] = []byte(targetPub)
	unban["replaces"] = []any{mustID(t, banObj)}
	require.True(t, mustApply(t, e, signGov(t, object.TypeModerationAction, ownerPriv, base+4, unban)).Applied)

	require.Equal(t, IdentityMuted, e.IdentityStatus(space, targetPub, base+10))
}

func TestEngine_ContentPrecedence(t *testing.T) {
	ownerPub, ownerPriv := mustKeypair(t, 0x0D)
	e := NewEngine()
	require.True(t, mustApply(t, e, signGov(t, object.TypeSpacePolicy, ownerPriv, base, basePolicy(ownerPub))).Applied)

	const contentID = "bafkreicontent"
	hide := actionPayload(ActionHideContent, ownerPub)
	hide["target_object_id"] = contentID
	hideObj := signGov(t, object.TypeModerationAction, ownerPriv, base+1, hide)
	require.True(t, mustApply(t, e, hideObj).Applied)
	require.Equal(t, ContentHidden, e.ContentStatus(space, contentID, base+10))

	quarantine := actionPayload(ActionQuarantineContent, ownerPub)
	quarantine["target_object_id"] = contentID
	qObj := signGov(t, object.TypeModerationAction, ownerPriv, base+2, quarantine)
	require.True(t, mustApply(t, e, qObj).Applied)
	require.Equal(t, ContentQuarantined, e.ContentStatus(space, contentID, base+10))

	allowOne := actionPayload(ActionAllowContent, ownerPub)
	allowOne["target_object_id"] = contentID
	allowOne["replaces"] = []any{mustID(t, qObj)}
	require.True(t, mustApply(t, e, signGov(t, object.TypeModerationAction, ownerPriv, base+3, allowOne)).Applied)
	require.Equal(t, ContentHidden, e.ContentStatus(space, contentID, base+10))

	allowBoth := actionPayload(ActionAllowContent, ownerPub)
	allowBoth["target_object_id"] = contentID
	allowBoth["replaces"] = []any{mustID(t, hideObj), mustID(t, qObj)}
	require.True(t, mustApply(t, e, signGov(t, object.TypeModerationAction, ownerPriv, base+4, allowBoth)).Applied)
	require.Equal(t, ContentVisible, e.ContentStatus(space, contentID, base+10))
}

func TestEngine_MuteExpiry(t *testing.T) {
	ownerPub, ownerPriv := mustKeypair(t, 0x0E)
	targetPub, _ := mustKeypair(t, 0x0F)
	e := NewEngine()
	require.True(t, mustApply(t, e, signGov(t, object.TypeSpacePolicy, ownerPriv, base, basePolicy(ownerPub))).Applied)

	mute := actionPayload(ActionMuteIdentity, ownerPub)
	mute["target_identity"] = []byte(targetPub)
	mute["duration_seconds"] = uint64(600)
	require.True(t, mustApply(t, e, signGov(t, object.TypeModerationAction, ownerPriv, base+1, mute)).Applied)

	require.Equal(t, IdentityMuted, e.IdentityStatus(space, targetPub, base+1+599))
	require.Equal(t, IdentityUnrestricted, e.IdentityStatus(space, targetPub, base+1+600))

	// Expiry changes status, never the log.
	require.Len(t, e.Log(space), 2)
}

func TestEngine_AuthorityRetroactivity(t *testing.T) {
	ownerPub, ownerPriv := mustKeypair(t, 0x10)
	modPub, modPriv := mustKeypair(t, 0x11)
	uPub, _ := mustKeypair(t, 0x12)
	vPub, _ := mustKeypair(t, 0x13)
	e := NewEngine()
	require.True(t, mustApply(t, e, signGov(t, object.TypeSpacePolicy, ownerPriv, base, basePolicy(ownerPub))).Applied)

	grant := actionPayload(ActionUpdateAuthority, ownerPub)
	grant["authority"] = map[string]any{"moderators": []any{[]byte(modPub)}}
	require.True(t, mustApply(t, e, signGov(t, object.TypeModerationAction, ownerPriv, base+1, grant)).Applied)

	muteU := actionPayload(ActionMuteIdentity, modPub)
	muteU["target_identity"] = []byte(uPub)
	require.True(t, mustApply(t, e, signGov(t, object.TypeModerationAction, modPriv, base+2, muteU)).Applied)

	revoke := actionPayload(ActionUpdateAuthority, ownerPub)
	revoke["authority"] = map[string]any{}
	require.True(t, mustApply(t, e, signGov(t, object.TypeModerationAction, ownerPriv, base+3, revoke)).Applied)

	muteV := actionPayload(ActionMuteIdentity, modPub)
	muteV["target_identity"] = []byte(vPub)
	res := mustApply(t, e, signGov(t, object.TypeModerationAction, modPriv, base+4, muteV))
	require.False(t, res.Applied)

	require.Equal(t, IdentityMuted, e.IdentityStatus(space, uPub, base+10))
	require.Equal(t, IdentityUnrestricted, e.IdentityStatus(space, vPub, base+10))

	exclusions := e.Exclusions(space)
	require.Len(t, exclusions, 1)
	require.Contains(t, exclusions[0].Reason, "lacks mute_members")
}

func TestEngine_GovernanceThreshold(t *testing.T) {
	ownerPub, ownerPriv := mustKeypair(t, 0x14)
	adminPub, adminPriv := mustKeypair(t, 0x15)
	modPub, _ := mustKeypair(t, 0x16)
	_, strangerPriv := mustKeypair(t, 0x17)
	e := NewEngine()

	p0 := basePolicy(ownerPub)
	p0["administrators"] = []any{[]byte(adminPub)}
	p0["governance_threshold"] = uint64(2)
	require.True(t, mustApply(t, e, signGov(t, object.TypeSpacePolicy, ownerPriv, base, p0)).Applied)

	grant := actionPayload(ActionUpdateAuthority, ownerPub)
	grant["authority"] = map[string]any{
		"administrators": []any{[]byte(adminPub)},
		"moderators":     []any{[]byte(modPub)},
	}

	alone := signGov(t, object.TypeModerationAction, ownerPriv, base+1, grant)
	res := mustApply(t, e, alone)
	require.False(t, res.Applied)
	require.Equal(t, "1 of 2 required governance signers", res.Reason)

	strangerSig, err := CoSign(alone, strangerPriv)
	require.NoError(t, err)
	withStranger, err := WithCoSignatures(alone, ownerPriv, []CoSignature{strangerSig})
	require.NoError(t, err)
	res = mustApply(t, e, withStranger)
	require.False(t, res.Applied)
	require.Equal(t, "1 of 2 required governance signers", res.Reason)

	adminSig, err := CoSign(alone, adminPriv)
	require.NoError(t, err)
	withAdmin, err := WithCoSignatures(alone, ownerPriv, []CoSignature{adminSig})
	require.NoError(t, err)
	res = mustApply(t, e, withAdmin)
	require.True(t, res.Applied)

	auth, err := e.Authority(space)
	require.NoError(t, err)
	require.Equal(t, [][]byte{modPub}, auth.Moderators)
}

func TestEngine_PermanentBanCosigners(t *testing.T) {
	ownerPub, ownerPriv := mustKeypair(t, 0x18)
	adminPub, adminPriv := mustKeypair(t, 0x19)
	targetPub, _ := mustKeypair(t, 0x1A)
	e := NewEngine()

	p0 := basePolicy(ownerPub)
	p0["administrators"] = []any{[]byte(adminPub)}
	p0["safety"] = map[string]any{"permanent_ban_cosigners": uint64(2)}
	require.True(t, mustApply(t, e, signGov(t, object.TypeSpacePolicy, ownerPriv, base, p0)).Applied)

	permanent := actionPayload(ActionBanIdentity, ownerPub)
	permanent["target_identity"] = []byte(targetPub)
	alone := signGov(t, object.TypeModerationAction, ownerPriv, base+1, permanent)
	res := mustApply(t, e, alone)
	require.False(t, res.Applied)
	require.Equal(t, "1 of 2 required permanent ban signers", res.Reason)
	require.Equal(t, IdentityUnrestricted, e.IdentityStatus(space, targetPub, base+10))

	adminSig, err := CoSign(alone, adminPriv)
	require.NoError(t, err)
	cosigned, err := WithCoSignatures(alone, ownerPriv, []CoSignature{adminSig})
	require.NoError(t, err)
	require.True(t, mustApply(t, e, cosigned).Applied)
	require.Equal(t, IdentityBanned, e.IdentityStatus(space, targetPub, base+10))

	timed := actionPayload(ActionBanIdentity, ownerPub)
	timed["target_identity"] = []byte(targetPub)
	timed["duration_seconds"] = uint64(3600)
	require.True(t, mustApply(t, e, signGov(t, object.TypeModerationAction, ownerPriv, base+2, timed)).Applied)
}

func TestEngine_RulesUpdateAndReset(t *testing.T) {
	ownerPub, ownerPriv := mustKeypair(t, 0x1B)
	e := NewEngine()
	genesis := signGov(t, object.TypeSpacePolicy, ownerPriv, base, basePolicy(ownerPub))
	require.True(t, mustApply(t, e, genesis).Applied)

	upd := actionPayload(ActionUpdateSpaceRules, ownerPub)
	upd["rules"] = map[string]any{
		"membership_policy":      "approval_required",
		"quarantine_new_members": true,
		"max_objects_per_minute": uint64(30),
	}
	require.True(t, mustApply(t, e, signGov(t, object.TypeModerationAction, ownerPriv, base+1, upd)).Applied)

	rules, err := e.Rules(space)
	require.NoError(t, err)
	require.Equal(t, MembershipApprovalRequired, rules.MembershipPolicy)
	require.True(t, rules.Safety.QuarantineNewMembers)
	require.Equal(t, uint64(30), rules.Safety.MaxObjectsPerMinute)

	replace := basePolicy(ownerPub)
	replace["previous_policy_object_id"] = mustID(t, genesis)
	require.True(t, mustApply(t, e, signGov(t, object.TypeSpacePolicy, ownerPriv, base+2, replace)).Applied)

	rules, err = e.Rules(space)
	require.NoError(t, err)
	require.Equal(t, MembershipOpen, rules.MembershipPolicy)
	require.False(t, rules.Safety.QuarantineNewMembers)
	require.Zero(t, rules.Safety.MaxObjectsPerMinute)
}

func TestEngine_Membership(t *testing.T) {
	ownerPub, ownerPriv := mustKeypair(t, 0x1C)
	memberPub, _ := mustKeypair(t, 0x1D)
	e := NewEngine()
	require.True(t, mustApply(t, e, signGov(t, object.TypeSpacePolicy, ownerPriv, base, basePolicy(ownerPub))).Applied)

	require.Equal(t, MemberNone, e.Membership(space, memberPub))

	invite := actionPayload(ActionInviteMember, ownerPub)
	invite["target_identity"] = []byte(memberPub)
	require.True(t, mustApply(t, e, signGov(t, object.TypeModerationAction, ownerPriv, base+1, invite)).Applied)
	require.Equal(t, MemberInvited, e.Membership(space, memberPub))

	add := actionPayload(ActionAddMember, ownerPub)
	add["target_identity"] = []byte(memberPub)
	require.True(t, mustApply(t, e, signGov(t, object.TypeModerationAction, ownerPriv, base+2, add)).Applied)
	require.Equal(t, MemberActive, e.Membership(space, memberPub))

	reinvite := actionPayload(ActionInviteMember, ownerPub)
	reinvite["target_identity"] = []byte(memberPub)
	require.True(t, mustApply(t, e, signGov(t, object.TypeModerationAction, ownerPriv, base+3, reinvite)).Applied)
	require.Equal(t, MemberActive, e.Membership(space, memberPub))

	remove := actionPayload(ActionRemoveMember, ownerPub)
	remove["target_identity"] = []byte(memberPub)
	require.True(t, mustApply(t, e, signGov(t, object.TypeModerationAction, ownerPriv, base+4, remove)).Applied)
	require.Equal(t, MemberRemoved, e.Membership(space, memberPub))
}

func TestEngine_RoleCapabilityOverride(t *testing.T) {
	ownerPub, ownerPriv := mustKeypair(t, 0x1E)
	modPub, modPriv := mustKeypair(t, 0x1F)
	targetPub, _ := mustKeypair(t, 0x20)
	e := NewEngine()

	p0 := basePolicy(ownerPub)
	p0["moderators"] = []any{[]byte(modPub)}
	p0["roles"] = map[string]any{RoleModerator: []any{string(CapModerateContent)}}
	require.True(t, mustApply(t, e, signGov(t, object.TypeSpacePolicy, ownerPriv, base, p0)).Applied)

	hide := actionPayload(ActionHideContent, modPub)
	hide["target_object_id"] = "bafkreicontent"
	require.True(t, mustApply(t, e, signGov(t, object.TypeModerationAction, modPriv, base+1, hide)).Applied)

	mute := actionPayload(ActionMuteIdentity, modPub)
	mute["target_identity"] = []byte(targetPub)
	res := mustApply(t, e, signGov(t, object.TypeModerationAction, modPriv, base+2, mute))
	require.False(t, res.Applied)
	require.Contains(t, res.Reason, "lacks mute_members")
}

func TestEngine_DuplicateDelivery(t *testing.T) {
	ownerPub, ownerPriv := mustKeypair(t, 0x21)
	targetPub, _ := mustKeypair(t, 0x22)
	e := NewEngine()
	require.True(t, mustApply(t, e, signGov(t, object.TypeSpacePolicy, ownerPriv, base, basePolicy(ownerPub))).Applied)

	mute := actionPayload(ActionMuteIdentity, ownerPub)
	mute["target_identity"] = []byte(targetPub)
	o := signGov(t, object.TypeModerationAction, ownerPriv, base+1, mute)

	first := mustApply(t, e, o)
	require.True(t, first.Applied)
	require.False(t, first.Duplicate)
	before := e.Snapshot(space, base+10)

	second := mustApply(t, e, o)
	require.True(t, second.Applied)
	require.True(t, second.Duplicate)
	require.Equal(t, before, e.Snapshot(space, base+10))
}

func TestEngine_RejectsMalformedInput(t *testing.T) {
	ownerPub, ownerPriv := mustKeypair(t, 0x23)
	targetPub, _ := mustKeypair(t, 0x24)
	e := NewEngine()
	require.True(t, mustApply(t, e, signGov(t, object.TypeSpacePolicy, ownerPriv, base, basePolicy(ownerPub))).Applied)

	mute := actionPayload(ActionMuteIdentity, ownerPub)
	mute["target_identity"] = []byte(targetPub)
	tampered := signGov(t, object.TypeModerationAction, ownerPriv, base+1, mute)
	tampered.Payload = append([]byte(nil), tampered.Payload...)
	tampered.Payload[len(tampered.Payload)-1] ^= 0xFF
	_, err := e.Apply(tampered)
	require.Error(t, err)
	require.True(t, object.IsKind(err, object.KindVerification))

	post, err := object.NewBuilder(object.TypePost).Space(space).Payload(map[string]any{"body": "hello"}).Sign(ownerPriv)
	require.NoError(t, err)
	_, err = e.Apply(post)
	require.Error(t, err)
	require.Equal(t, "HUM-MOD-003", object.RuleID(err))

	spaceless, err := object.NewBuilder(object.TypeModerationAction).Payload(mute).Sign(ownerPriv)
	require.NoError(t, err)
	_, err = e.Apply(spaceless)
	require.Error(t, err)

	// Nothing above may leave a trace in the log.
	require.Len(t, e.Log(space), 1)
}

func TestEngine_UnknownSpaceQueries(t *testing.T) {
	e := NewEngine()
	key, _ := mustKeypair(t, 0x25)

	require.Equal(t, IdentityUnrestricted, e.IdentityStatus("space-unknown", key, base))
	require.Equal(t, ContentVisible, e.ContentStatus("space-unknown", "bafkreicontent", base))
	require.Equal(t, MemberNone, e.Membership("space-unknown", key))
	require.Empty(t, e.PolicyHead("space-unknown"))
	require.Nil(t, e.Snapshot("space-unknown", base))

	_, err := e.Authority("space-unknown")
	require.True(t, object.IsKind(err, object.KindAuthority))
	_, err = e.Rules("space-unknown")
	require.True(t, object.IsKind(err, object.KindAuthority))
}

func mustPub(priv ed25519.PrivateKey) ed25519.PublicKey {
	return priv.Public().(ed25519.PublicKey)
}
