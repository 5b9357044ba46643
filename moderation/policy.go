package moderation

import (
	"bytes"
	"fmt"

	"humanity.network/core/canon"
	"humanity.network/core/object"
)

// Membership policies a space can declare.
const (
	MembershipOpen             = "open"
	MembershipInviteOnly       = "invite_only"
	MembershipApprovalRequired = "approval_required"
)

var membershipPolicies = map[string]bool{
	MembershipOpen:             true,
	MembershipInviteOnly:       true,
	MembershipApprovalRequired: true,
}

// SafetyLimits are a space's abuse limits. Relays enforce the rate and size
// limits at admission; the quarantine flag drives the default content status
// for new members; the co-signer count gates permanent bans.
type SafetyLimits struct {
	MaxObjectsPerMinute   uint64
	MaxAttachmentBytes    uint64
	QuarantineNewMembers  bool
	PermanentBanCosigners uint64
}

// SpacePolicy is a decoded space_policy object: the governance root of a
// space. Policies form a hash chain through PreviousPolicyID; the head of
// the chain is the space's current policy.
type SpacePolicy struct {
	ID        string
	SpaceID   string
	Author    []byte
	CreatedAt *uint64

	Owner               []byte
	Administrators      [][]byte
	Moderators          [][]byte
	MembershipPolicy    string
	RoleCapabilities    map[string][]Capability
	GovernanceThreshold uint64
	Safety              SafetyLimits
	PreviousPolicyID    string
}

var policyPayloadFields = map[string]bool{
	"owner_public_key":          true,
	"administrators":            true,
	"moderators":                true,
	"membership_policy":         true,
	"roles":                     true,
	"governance_threshold":      true,
	"safety":                    true,
	"previous_policy_object_id": true,
}

func policyError(msg string) error {
	return object.NewError(object.KindValidation, "HUM-MOD-002", msg)
}

// ParsePolicy decodes and checks the payload of a space_policy object. Role
// names and capability strings are validated here, at ingestion; nothing
// downstream ever interprets free-form capability text.
func ParsePolicy(o *object.Object) (*SpacePolicy, error) {
	if o.ObjectType != object.TypeSpacePolicy {
		return nil, policyError(fmt.Sprintf("object type %q is not a space policy", o.ObjectType))
	}
	if o.PayloadEncoding != object.EncodingPlaintext {
		return nil, policyError("space policy payload must be plaintext")
	}
	if len(o.Payload) == 0 {
		return nil, policyError("space policy payload is empty")
	}
	m, err := canon.DecodeMap(o.Payload)
	if err != nil {
		return nil, object.WrapError(object.KindValidation, "HUM-MOD-002", "decode space policy payload", err)
	}
	for key := range m {
		if !policyPayloadFields[key] {
			return nil, policyError(fmt.Sprintf("unknown policy field %q", key))
		}
	}

	p := &SpacePolicy{SpaceID: o.SpaceID, Author: o.AuthorPublicKey, CreatedAt: o.CreatedAt}
	if p.ID, err = o.ID(); err != nil {
		return nil, err
	}

	owner, ok := m["owner_public_key"].([]byte)
	if !ok || len(owner) != object.AuthorKeySize {
		return nil, policyError("owner_public_key must be a public key")
	}
	p.Owner = owner

	if p.Administrators, err = payloadKeyListNamed(m, "administrators"); err != nil {
		return nil, err
	}
	if p.Moderators, err = payloadKeyListNamed(m, "moderators"); err != nil {
		return nil, err
	}
	if containsKey(p.Administrators, p.Owner) || containsKey(p.Moderators, p.Owner) {
		return nil, policyError("the owner is not listed in a tier")
	}

	policyName, ok := m["membership_policy"].(string)
	if !ok || !membershipPolicies[policyName] {
		return nil, policyError("membership_policy must name a membership policy")
	}
	p.MembershipPolicy = policyName

	if p.RoleCapabilities, err = parseRoles(m); err != nil {
		return nil, err
	}

	if v, ok := m["governance_threshold"]; ok {
		u, ok := v.(uint64)
		if !ok {
			return nil, policyError("governance_threshold must be an unsigned integer")
		}
		p.GovernanceThreshold = u
	}

	if p.Safety, err = parseSafety(m); err != nil {
		return nil, err
	}

	if v, ok := m["previous_policy_object_id"]; ok {
		s, ok := v.(string)
		if !ok || s == "" {
			return nil, policyError("previous_policy_object_id must be a non-empty text string")
		}
		p.PreviousPolicyID = s
	}

	return p, nil
}

func payloadKeyListNamed(m map[string]any, key string) ([][]byte, error) {
	v, ok := m[key]
	if !ok {
		return [][]byte{}, nil
	}
	arr, ok := v.([]any)
	if !ok {
		return nil, policyError(fmt.Sprintf("policy field %q must be an array of public keys", key))
	}
	out := make([][]byte, 0, len(arr))
	for _, e := range arr {
		b, ok := e.([]byte)
		if !ok || len(b) != object.AuthorKeySize {
			return nil, policyError(fmt.Sprintf("policy field %q must be an array of public keys", key))
		}
		if containsKey(out, b) {
			return nil, policyError(fmt.Sprintf("policy field %q lists a key twice", key))
		}
		out = append(out, b)
	}
	return out, nil
}

func parseRoles(m map[string]any) (map[string][]Capability, error) {
	v, ok := m["roles"]
	if !ok {
		return nil, nil
	}
	entry, ok := v.(map[string]any)
	if !ok {
		return nil, policyError("roles must be a map of role name to capabilities")
	}
	out := make(map[string][]Capability, len(entry))
	for role, capsAny := range entry {
		if role != RoleAdministrator && role != RoleModerator {
			return nil, policyError(fmt.Sprintf("unknown role %q", role))
		}
		arr, ok := capsAny.([]any)
		if !ok {
			return nil, policyError(fmt.Sprintf("role %q capabilities must be an array", role))
		}
		caps := make([]Capability, 0, len(arr))
		for _, c := range arr {
			s, ok := c.(string)
			if !ok || !capabilities[Capability(s)] {
				return nil, policyError(fmt.Sprintf("role %q names unknown capability %v", role, c))
			}
			caps = append(caps, Capability(s))
		}
		out[role] = caps
	}
	return out, nil
}

func parseSafety(m map[string]any) (SafetyLimits, error) {
	var s SafetyLimits
	v, ok := m["safety"]
	if !ok {
		return s, nil
	}
	entry, ok := v.(map[string]any)
	if !ok {
		return s, policyError("safety must be a map")
	}
	for key, val := range entry {
		switch key {
		case "max_objects_per_minute":
			u, ok := val.(uint64)
			if !ok {
				return s, policyError("safety max_objects_per_minute must be an unsigned integer")
			}
			s.MaxObjectsPerMinute = u
		case "max_attachment_bytes":
			u, ok := val.(uint64)
			if !ok {
				return s, policyError("safety max_attachment_bytes must be an unsigned integer")
			}
			s.MaxAttachmentBytes = u
		case "quarantine_new_members":
			b, ok := val.(bool)
			if !ok {
				return s, policyError("safety quarantine_new_members must be a boolean")
			}
			s.QuarantineNewMembers = b
		case "permanent_ban_cosigners":
			u, ok := val.(uint64)
			if !ok {
				return s, policyError("safety permanent_ban_cosigners must be an unsigned integer")
			}
			s.PermanentBanCosigners = u
		default:
			return s, policyError(fmt.Sprintf("unknown safety field %q", key))
		}
	}
	return s, nil
}

func containsKey(keys [][]byte, key []byte) bool {
	for _, k := range keys {
		if bytes.Equal(k, key) {
			return true
		}
	}
	return false
}
