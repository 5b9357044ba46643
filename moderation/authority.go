package moderation

import "bytes"

// Capability is one entry of the fixed capability vocabulary. Role maps in
// space policies grant capabilities by these names only; nothing is ever
// inferred from a role's name at use time.
type Capability string

const (
	CapModerateContent Capability = "moderate_content"
	CapMuteMembers     Capability = "mute_members"
	CapBanMembers      Capability = "ban_members"
	CapManageMembers   Capability = "manage_members"
	CapInviteMembers   Capability = "invite_members"
	CapManagePolicy    Capability = "manage_policy"
)

var capabilities = map[Capability]bool{
	CapModerateContent: true,
	CapMuteMembers:     true,
	CapBanMembers:      true,
	CapManageMembers:   true,
	CapInviteMembers:   true,
	CapManagePolicy:    true,
}

// Role names a policy may grant capabilities to.
const (
	RoleAdministrator = "administrator"
	RoleModerator     = "moderator"
)

var defaultRoleCaps = map[string][]Capability{
	RoleAdministrator: {
		CapModerateContent, CapMuteMembers, CapBanMembers,
		CapManageMembers, CapInviteMembers, CapManagePolicy,
	},
	RoleModerator: {
		CapModerateContent, CapMuteMembers, CapInviteMembers,
	},
}

func requiredCapability(t ActionType) Capability {
	switch t {
	case ActionMuteIdentity, ActionUnmuteIdentity:
		return CapMuteMembers
	case ActionBanIdentity, ActionUnbanIdentity:
		return CapBanMembers
	case ActionHideContent, ActionQuarantineContent, ActionAllowContent:
		return CapModerateContent
	case ActionAddMember, ActionRemoveMember:
		return CapManageMembers
	case ActionInviteMember:
		return CapInviteMembers
	case ActionUpdateAuthority, ActionUpdateSpaceRules:
		return CapManagePolicy
	}
	return ""
}

// Authority is the effective authority set of a space at one point in its
// log: the policy-declared owner and tiers, as later reshaped by applied
// update_authority_set actions.
type Authority struct {
	Owner            []byte
	Administrators   [][]byte
	Moderators       [][]byte
	RoleCapabilities map[string][]Capability
}

func authorityFromPolicy(p *SpacePolicy) *Authority {
	return &Authority{
		Owner:            append([]byte(nil), p.Owner...),
		Administrators:   copyKeys(p.Administrators),
		Moderators:       copyKeys(p.Moderators),
		RoleCapabilities: p.RoleCapabilities,
	}
}

// applyUpdate replaces the administrator and moderator tiers wholesale. The
// owner and the role capability map change only through policy objects.
func (a *Authority) applyUpdate(upd *AuthorityUpdate) {
	a.Administrators = copyKeys(upd.Administrators)
	a.Moderators = copyKeys(upd.Moderators)
}

func (a *Authority) clone() *Authority {
	return &Authority{
		Owner:            a.Owner,
		Administrators:   copyKeys(a.Administrators),
		Moderators:       copyKeys(a.Moderators),
		RoleCapabilities: a.RoleCapabilities,
	}
}

// RoleOf returns "owner", a role constant, or "" for keys with no standing.
func (a *Authority) RoleOf(key []byte) string {
	if bytes.Equal(key, a.Owner) {
		return "owner"
	}
	if containsKey(a.Administrators, key) {
		return RoleAdministrator
	}
	if containsKey(a.Moderators, key) {
		return RoleModerator
	}
	return ""
}

// HasCapability reports whether key holds c. The owner holds every
// capability; tier members hold the policy's grant for their role, or the
// default grant when the policy is silent.
func (a *Authority) HasCapability(key []byte, c Capability) bool {
	role := a.RoleOf(key)
	switch role {
	case "":
		return false
	case "owner":
		return true
	}
	caps, ok := a.RoleCapabilities[role]
	if !ok {
		caps = defaultRoleCaps[role]
	}
	for _, have := range caps {
		if have == c {
			return true
		}
	}
	return false
}

func copyKeys(keys [][]byte) [][]byte {
	out := make([][]byte, len(keys))
	for i, k := range keys {
		out[i] = append([]byte(nil), k...)
	}
	return out
}
