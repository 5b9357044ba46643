package moderation

import "encoding/hex"

// Snapshot is a space's full projected state at one moment: everything the
// engine derives from the governance log, with keys hex-encoded so
// snapshots compare cleanly. Two engines fed the same log produce equal
// snapshots; engines fed independent restrictions in different orders still
// agree on the Identities and Content projections.
type Snapshot struct {
	SpaceID  string
	PolicyID string

	Owner          string
	Administrators []string
	Moderators     []string
	Rules          SpaceRules

	Identities map[string]IdentityStatus
	Content    map[string]ContentStatus
	Members    map[string]MembershipState

	Applied  []string
	Excluded []string
}

// Snapshot projects a space's complete effective state at now. It returns
// nil for spaces the engine has never seen.
func (e *Engine) Snapshot(spaceID string, now uint64) *Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	s, ok := e.spaces[spaceID]
	if !ok {
		return nil
	}

	snap := &Snapshot{
		SpaceID:    spaceID,
		Rules:      s.rules,
		Identities: make(map[string]IdentityStatus),
		Content:    make(map[string]ContentStatus),
		Members:    make(map[string]MembershipState),
		Applied:    []string{},
		Excluded:   []string{},
	}
	if s.head != nil {
		snap.PolicyID = s.head.ID
		snap.Owner = hex.EncodeToString(s.authority.Owner)
		snap.Administrators = hexKeys(s.authority.Administrators)
		snap.Moderators = hexKeys(s.authority.Moderators)
	}
	for key := range s.identityLog {
		snap.Identities[hex.EncodeToString([]byte(key))] = s.identityStatus([]byte(key), now)
	}
	for objectID := range s.contentLog {
		snap.Content[objectID] = s.contentStatus(objectID, now)
	}
	for key, m := range s.members {
		snap.Members[hex.EncodeToString([]byte(key))] = m
	}
	for _, rec := range s.log {
		if rec.Applied {
			snap.Applied = append(snap.Applied, rec.ObjectID)
		} else {
			snap.Excluded = append(snap.Excluded, rec.ObjectID)
		}
	}
	return snap
}

func hexKeys(keys [][]byte) []string {
	out := make([]string, len(keys))
	for i, k := range keys {
		out[i] = hex.EncodeToString(k)
	}
	return out
}
