// Package moderation implements per-space governance as a deterministic fold
// over signed objects: an append-only action log, a policy chain, and
// derived projections (identity status, content status, membership,
// authority). Replaying the same log always reproduces the same state, and
// restriction status is insensitive to the arrival order of independent
// restrictions.
package moderation

import (
	"bytes"
	"fmt"

	"humanity.network/core/canon"
	"humanity.network/core/object"
)

// ActionType enumerates the moderation action vocabulary.
type ActionType string

const (
	ActionMuteIdentity      ActionType = "mute_identity"
	ActionUnmuteIdentity    ActionType = "unmute_identity"
	ActionBanIdentity       ActionType = "ban_identity"
	ActionUnbanIdentity     ActionType = "unban_identity"
	ActionHideContent       ActionType = "hide_content"
	ActionQuarantineContent ActionType = "quarantine_content"
	ActionAllowContent      ActionType = "allow_content"
	ActionAddMember         ActionType = "add_member"
	ActionRemoveMember      ActionType = "remove_member"
	ActionInviteMember      ActionType = "invite_member"
	ActionUpdateAuthority   ActionType = "update_authority_set"
	ActionUpdateSpaceRules  ActionType = "update_space_rules"
)

var actionTypes = map[ActionType]bool{
	ActionMuteIdentity:      true,
	ActionUnmuteIdentity:    true,
	ActionBanIdentity:       true,
	ActionUnbanIdentity:     true,
	ActionHideContent:       true,
	ActionQuarantineContent: true,
	ActionAllowContent:      true,
	ActionAddMember:         true,
	ActionRemoveMember:      true,
	ActionInviteMember:      true,
	ActionUpdateAuthority:   true,
	ActionUpdateSpaceRules:  true,
}

// IsUndo reports whether t reverses earlier restrictions. Undo actions take
// effect only through an explicit replaces list; a later contradictory
// action never implicitly cancels an earlier one.
func (t ActionType) IsUndo() bool {
	switch t {
	case ActionUnmuteIdentity, ActionUnbanIdentity, ActionAllowContent:
		return true
	default:
		return false
	}
}

func (t ActionType) targetsIdentity() bool {
	switch t {
	case ActionMuteIdentity, ActionUnmuteIdentity, ActionBanIdentity, ActionUnbanIdentity,
		ActionAddMember, ActionRemoveMember, ActionInviteMember:
		return true
	default:
		return false
	}
}

func (t ActionType) targetsContent() bool {
	switch t {
	case ActionHideContent, ActionQuarantineContent, ActionAllowContent:
		return true
	default:
		return false
	}
}

// CoSignature is one additional governance signature over the carrying
// object's co-signable bytes (see CoSignBytes).
type CoSignature struct {
	PublicKey []byte
	Signature []byte
}

// Action is a decoded moderation action. Its identifier is the object id of
// the carrying object; the payload carries no separate action id.
type Action struct {
	ID        string
	SpaceID   string
	Author    []byte
	CreatedAt *uint64
	Type      ActionType

	TargetIdentity []byte
	TargetObjectID string
	Reason         string
	Duration       *uint64
	Replaces       []string
	CoSignatures   []CoSignature

	Authority *AuthorityUpdate
	Rules     *RuleUpdate

	// Object is the carrying object, kept for co-signature verification.
	Object *object.Object
}

// AuthorityUpdate is the payload of update_authority_set: full replacement
// lists for the administrator and moderator tiers. Replacement rather than
// delta keeps replay independent of any state outside the log.
type AuthorityUpdate struct {
	Administrators [][]byte
	Moderators     [][]byte
}

// RuleUpdate is the payload of update_space_rules: a partial update of the
// space's membership policy and safety limits. Nil fields leave the current
// value unchanged.
type RuleUpdate struct {
	MembershipPolicy      string
	MaxObjectsPerMinute   *uint64
	MaxAttachmentBytes    *uint64
	QuarantineNewMembers  *bool
	PermanentBanCosigners *uint64
}

var actionPayloadFields = map[string]bool{
	"action_type":      true,
	"target_identity":  true,
	"target_object_id": true,
	"reason":           true,
	"duration_seconds": true,
	"replaces":         true,
	"issued_by":        true,
	"cosignatures":     true,
	"authority":        true,
	"rules":            true,
}

func actionError(msg string) error {
	return object.NewError(object.KindValidation, "HUM-MOD-001", msg)
}

// ParseAction decodes and checks the payload of a moderation_action object.
// The object is expected to be signature-verified already; ParseAction binds
// the payload to the envelope (issued_by must equal the author) but does not
// judge authority. Parsing failures make the action invalid everywhere;
// authority failures are decided later, per space state.
func ParseAction(o *object.Object) (*Action, error) {
	if o.ObjectType != object.TypeModerationAction {
		return nil, actionError(fmt.Sprintf("object type %q is not a moderation action", o.ObjectType))
	}
	if o.PayloadEncoding != object.EncodingPlaintext {
		return nil, actionError("moderation action payload must be plaintext")
	}
	if len(o.Payload) == 0 {
		return nil, actionError("moderation action payload is empty")
	}
	m, err := canon.DecodeMap(o.Payload)
	if err != nil {
		return nil, object.WrapError(object.KindValidation, "HUM-MOD-001", "decode moderation action payload", err)
	}
	for key := range m {
		if !actionPayloadFields[key] {
			return nil, actionError(fmt.Sprintf("unknown action field %q", key))
		}
	}

	a := &Action{SpaceID: o.SpaceID, Author: o.AuthorPublicKey, CreatedAt: o.CreatedAt, Object: o}
	if a.ID, err = o.ID(); err != nil {
		return nil, err
	}

	typeName, err := payloadText(m, "action_type", true)
	if err != nil {
		return nil, err
	}
	a.Type = ActionType(typeName)
	if !actionTypes[a.Type] {
		return nil, actionError(fmt.Sprintf("unknown action type %q", typeName))
	}

	issuedBy, err := payloadBytes(m, "issued_by", true)
	if err != nil {
		return nil, err
	}
	if !bytes.Equal(issuedBy, o.AuthorPublicKey) {
		return nil, actionError("issued_by does not match the signing author")
	}

	if a.TargetIdentity, err = payloadBytes(m, "target_identity", a.Type.targetsIdentity()); err != nil {
		return nil, err
	}
	if a.TargetIdentity != nil && len(a.TargetIdentity) != object.AuthorKeySize {
		return nil, actionError("target_identity must be a public key")
	}
	if !a.Type.targetsIdentity() && a.TargetIdentity != nil {
		return nil, actionError(fmt.Sprintf("%s does not take target_identity", a.Type))
	}
	if a.TargetObjectID, err = payloadText(m, "target_object_id", a.Type.targetsContent()); err != nil {
		return nil, err
	}
	if !a.Type.targetsContent() && a.TargetObjectID != "" {
		return nil, actionError(fmt.Sprintf("%s does not take target_object_id", a.Type))
	}

	if a.Reason, err = payloadText(m, "reason", false); err != nil {
		return nil, err
	}
	if a.Duration, err = payloadUintPtr(m, "duration_seconds"); err != nil {
		return nil, err
	}
	if a.Duration != nil && a.Type != ActionMuteIdentity && a.Type != ActionBanIdentity {
		return nil, actionError(fmt.Sprintf("%s does not take duration_seconds", a.Type))
	}

	if a.Replaces, err = payloadTextList(m, "replaces"); err != nil {
		return nil, err
	}
	if a.Type.IsUndo() && len(a.Replaces) == 0 {
		return nil, actionError(fmt.Sprintf("%s requires a non-empty replaces list", a.Type))
	}
	if !a.Type.IsUndo() && len(a.Replaces) > 0 {
		return nil, actionError(fmt.Sprintf("%s does not take replaces", a.Type))
	}

	if a.CoSignatures, err = payloadCoSignatures(m); err != nil {
		return nil, err
	}

	if a.Authority, err = payloadAuthorityUpdate(m); err != nil {
		return nil, err
	}
	if (a.Type == ActionUpdateAuthority) != (a.Authority != nil) {
		return nil, actionError("authority is required by update_authority_set and forbidden elsewhere")
	}
	if a.Rules, err = payloadRuleUpdate(m); err != nil {
		return nil, err
	}
	if (a.Type == ActionUpdateSpaceRules) != (a.Rules != nil) {
		return nil, actionError("rules is required by update_space_rules and forbidden elsewhere")
	}

	return a, nil
}

// VerifyCoSignatures checks every co-signature over the carrying object's
// co-signable bytes and rejects duplicate or author-duplicated co-signers.
func (a *Action) VerifyCoSignatures() error {
	if len(a.CoSignatures) == 0 {
		return nil
	}
	msg, err := CoSignBytes(a.Object)
	if err != nil {
		return err
	}
	seen := map[string]bool{string(a.Author): true}
	for i, cs := range a.CoSignatures {
		if seen[string(cs.PublicKey)] {
			return actionError(fmt.Sprintf("duplicate co-signer at index %d", i))
		}
		seen[string(cs.PublicKey)] = true
		if err := object.VerifyDetached(cs.PublicKey, cs.Signature, msg); err != nil {
			return object.WrapError(object.KindVerification, object.RuleSignatureMismatch,
				fmt.Sprintf("co-signature %d does not verify", i), err)
		}
	}
	return nil
}

func payloadText(m map[string]any, key string, required bool) (string, error) {
	v, ok := m[key]
	if !ok {
		if required {
			return "", actionError(fmt.Sprintf("missing action field %q", key))
		}
		return "", nil
	}
	s, ok := v.(string)
	if !ok || s == "" {
		return "", actionError(fmt.Sprintf("action field %q must be a non-empty text string", key))
	}
	return s, nil
}

func payloadBytes(m map[string]any, key string, required bool) ([]byte, error) {
	v, ok := m[key]
	if !ok {
		if required {
			return nil, actionError(fmt.Sprintf("missing action field %q", key))
		}
		return nil, nil
	}
	b, ok := v.([]byte)
	if !ok || len(b) == 0 {
		return nil, actionError(fmt.Sprintf("action field %q must be a non-empty byte string", key))
	}
	return b, nil
}

func payloadUintPtr(m map[string]any, key string) (*uint64, error) {
	v, ok := m[key]
	if !ok {
		return nil, nil
	}
	u, ok := v.(uint64)
	if !ok {
		return nil, actionError(fmt.Sprintf("action field %q must be an unsigned integer", key))
	}
	return &u, nil
}

func payloadTextList(m map[string]any, key string) ([]string, error) {
	v, ok := m[key]
	if !ok {
		return nil, nil
	}
	arr, ok := v.([]any)
	if !ok {
		return nil, actionError(fmt.Sprintf("action field %q must be an array of text strings", key))
	}
	out := make([]string, 0, len(arr))
	for _, e := range arr {
		s, ok := e.(string)
		if !ok || s == "" {
			return nil, actionError(fmt.Sprintf("action field %q must be an array of text strings", key))
		}
		out = append(out, s)
	}
	return out, nil
}

func payloadCoSignatures(m map[string]any) ([]CoSignature, error) {
	v, ok := m["cosignatures"]
	if !ok {
		return nil, nil
	}
	arr, ok := v.([]any)
	if !ok {
		return nil, actionError("cosignatures must be an array")
	}
	out := make([]CoSignature, 0, len(arr))
	for i, e := range arr {
		entry, ok := e.(map[string]any)
		if !ok {
			return nil, actionError(fmt.Sprintf("cosignature %d must be a map", i))
		}
		pub, ok := entry["public_key"].([]byte)
		if !ok || len(pub) != object.AuthorKeySize {
			return nil, actionError(fmt.Sprintf("cosignature %d public_key must be a public key", i))
		}
		sig, ok := entry["signature"].([]byte)
		if !ok || len(sig) != object.SignatureSize {
			return nil, actionError(fmt.Sprintf("cosignature %d signature must be %d bytes", i, object.SignatureSize))
		}
		if len(entry) != 2 {
			return nil, actionError(fmt.Sprintf("cosignature %d carries unknown fields", i))
		}
		out = append(out, CoSignature{PublicKey: pub, Signature: sig})
	}
	return out, nil
}

func payloadAuthorityUpdate(m map[string]any) (*AuthorityUpdate, error) {
	v, ok := m["authority"]
	if !ok {
		return nil, nil
	}
	entry, ok := v.(map[string]any)
	if !ok {
		return nil, actionError("authority must be a map")
	}
	for key := range entry {
		if key != "administrators" && key != "moderators" {
			return nil, actionError(fmt.Sprintf("unknown authority field %q", key))
		}
	}
	upd := &AuthorityUpdate{}
	var err error
	if upd.Administrators, err = payloadKeyList(entry, "administrators"); err != nil {
		return nil, err
	}
	if upd.Moderators, err = payloadKeyList(entry, "moderators"); err != nil {
		return nil, err
	}
	return upd, nil
}

func payloadKeyList(m map[string]any, key string) ([][]byte, error) {
	v, ok := m[key]
	if !ok {
		return [][]byte{}, nil
	}
	arr, ok := v.([]any)
	if !ok {
		return nil, actionError(fmt.Sprintf("field %q must be an array of public keys", key))
	}
	out := make([][]byte, 0, len(arr))
	for _, e := range arr {
		b, ok := e.([]byte)
		if !ok || len(b) != object.AuthorKeySize {
			return nil, actionError(fmt.Sprintf("field %q must be an array of public keys", key))
		}
		out = append(out, b)
	}
	return out, nil
}

func payloadRuleUpdate(m map[string]any) (*RuleUpdate, error) {
	v, ok := m["rules"]
	if !ok {
		return nil, nil
	}
	entry, ok := v.(map[string]any)
	if !ok {
		return nil, actionError("rules must be a map")
	}
	upd := &RuleUpdate{}
	for key, val := range entry {
		switch key {
		case "membership_policy":
			s, ok := val.(string)
			if !ok || !membershipPolicies[s] {
				return nil, actionError("rules membership_policy must name a membership policy")
			}
			upd.MembershipPolicy = s
		case "max_objects_per_minute":
			u, ok := val.(uint64)
			if !ok {
				return nil, actionError("rules max_objects_per_minute must be an unsigned integer")
			}
			upd.MaxObjectsPerMinute = &u
		case "max_attachment_bytes":
			u, ok := val.(uint64)
			if !ok {
				return nil, actionError("rules max_attachment_bytes must be an unsigned integer")
			}
			upd.MaxAttachmentBytes = &u
		case "quarantine_new_members":
			b, ok := val.(bool)
			if !ok {
				return nil, actionError("rules quarantine_new_members must be a boolean")
			}
			upd.QuarantineNewMembers = &b
		case "permanent_ban_cosigners":
			u, ok := val.(uint64)
			if !ok {
				return nil, actionError("rules permanent_ban_cosigners must be an unsigned integer")
			}
			upd.PermanentBanCosigners = &u
		default:
			return nil, actionError(fmt.Sprintf("unknown rules field %q", key))
		}
	}
	return upd, nil
}
