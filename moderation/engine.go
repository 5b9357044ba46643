package moderation

import (
	"bytes"
	"fmt"
	"sync"

	"humanity.network/core/object"
)

// IdentityStatus is the effective restriction state of one identity in one
// space.
type IdentityStatus string

const (
	IdentityUnrestricted IdentityStatus = "unrestricted"
	IdentityMuted        IdentityStatus = "muted"
	IdentityBanned       IdentityStatus = "banned"
)

// ContentStatus is the effective restriction state of one object in one
// space.
type ContentStatus string

const (
	ContentVisible     ContentStatus = "visible"
	ContentHidden      ContentStatus = "hidden"
	ContentQuarantined ContentStatus = "quarantined"
)

// MembershipState is the effective membership of one identity in one space.
type MembershipState string

const (
	MemberNone    MembershipState = "none"
	MemberInvited MembershipState = "invited"
	MemberActive  MembershipState = "member"
	MemberRemoved MembershipState = "removed"
)

// SpaceRules are the effective operational rules of a space: the policy
// head's declarations as later adjusted by applied update_space_rules
// actions. The governance threshold changes only through policy objects.
type SpaceRules struct {
	MembershipPolicy    string
	GovernanceThreshold uint64
	Safety              SafetyLimits
}

// Result reports what applying one governance object did.
type Result struct {
	ObjectID  string
	Applied   bool
	Duplicate bool
	Reason    string
}

// Record is one entry of a space's governance log: an action or policy
// object together with the eligibility decision made at its log position.
// Excluded entries are retained for audit but contribute nothing to any
// projection.
type Record struct {
	ObjectID string
	SpaceID  string
	Position int
	Applied  bool
	Reason   string

	Action *Action
	Policy *SpacePolicy
}

type spaceState struct {
	id string

	head     *SpacePolicy
	policies []*SpacePolicy

	authority *Authority
	rules     SpaceRules

	log  []*Record
	byID map[string]*Record

	identityLog map[string][]*Record
	contentLog  map[string][]*Record
	lifts       map[string][]*Action
	members     map[string]MembershipState
}

// Engine folds a per-space governance log into effective authority,
// restriction, membership, and rule state. Application order is the order
// Apply is called in; replaying the same sequence into a fresh engine
// reproduces the same projections, and restriction status is additionally
// insensitive to the relative order of independent restrictions.
type Engine struct {
	mu     sync.Mutex
	spaces map[string]*spaceState
}

func NewEngine() *Engine {
	return &Engine{spaces: make(map[string]*spaceState)}
}

func (e *Engine) space(id string) *spaceState {
	s, ok := e.spaces[id]
	if !ok {
		s = &spaceState{
			id:          id,
			byID:        make(map[string]*Record),
			identityLog: make(map[string][]*Record),
			contentLog:  make(map[string][]*Record),
			lifts:       make(map[string][]*Action),
			members:     make(map[string]MembershipState),
		}
		e.spaces[id] = s
	}
	return s
}

func engineError(msg string) error {
	return object.NewError(object.KindValidation, "HUM-MOD-003", msg)
}

// Apply feeds one governance object (a space policy or a moderation action)
// into the engine. Malformed or unverifiable objects return an error and
// leave no trace; well-formed but ineligible objects are recorded as
// excluded and reported through Result.Reason. Duplicate delivery of an
// already-seen object id repeats the original decision without changing
// state.
func (e *Engine) Apply(o *object.Object) (Result, error) {
	if o == nil {
		return Result{}, engineError("nil object")
	}
	if o.SpaceID == "" {
		return Result{}, engineError("governance objects must declare a space")
	}
	if err := o.VerifySignature(); err != nil {
		return Result{}, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	switch o.ObjectType {
	case object.TypeSpacePolicy:
		p, err := ParsePolicy(o)
		if err != nil {
			return Result{}, err
		}
		return e.space(o.SpaceID).applyPolicy(p), nil
	case object.TypeModerationAction:
		a, err := ParseAction(o)
		if err != nil {
			return Result{}, err
		}
		return e.space(o.SpaceID).applyAction(a), nil
	}
	return Result{}, engineError(fmt.Sprintf("object type %q carries no governance semantics", o.ObjectType))
}

func (s *spaceState) record(rec *Record) Result {
	rec.Position = len(s.log)
	s.log = append(s.log, rec)
	s.byID[rec.ObjectID] = rec
	return Result{ObjectID: rec.ObjectID, Applied: rec.Applied, Reason: rec.Reason}
}

func (s *spaceState) duplicate(id string) (Result, bool) {
	rec, ok := s.byID[id]
	if !ok {
		return Result{}, false
	}
	return Result{ObjectID: id, Applied: rec.Applied, Duplicate: true, Reason: rec.Reason}, true
}

func (s *spaceState) applyPolicy(p *SpacePolicy) Result {
	if res, ok := s.duplicate(p.ID); ok {
		return res
	}
	rec := &Record{ObjectID: p.ID, SpaceID: s.id, Policy: p}

	if reason := s.policyEligibility(p); reason != "" {
		rec.Reason = reason
		return s.record(rec)
	}

	s.head = p
	s.policies = append(s.policies, p)
	s.authority = authorityFromPolicy(p)
	s.rules = SpaceRules{
		MembershipPolicy:    p.MembershipPolicy,
		GovernanceThreshold: p.GovernanceThreshold,
		Safety:              p.Safety,
	}
	rec.Applied = true
	return s.record(rec)
}

// policyEligibility decides whether p extends the space's policy chain,
// judged under the authority in force before p. A genesis policy must be
// signed by the owner it declares; an update must chain from the current
// head, its author must hold manage_policy, and only the current owner can
// move the owner key.
func (s *spaceState) policyEligibility(p *SpacePolicy) string {
	if s.head == nil {
		if p.PreviousPolicyID != "" {
			return "policy chains from an unknown head"
		}
		if !bytes.Equal(p.Author, p.Owner) {
			return "genesis policy must be signed by its declared owner"
		}
		return ""
	}
	if p.PreviousPolicyID == "" {
		return "space already has a policy chain"
	}
	if p.PreviousPolicyID != s.head.ID {
		return "policy does not chain from the current head"
	}
	if !s.authority.HasCapability(p.Author, CapManagePolicy) {
		return "policy author is not authorized to manage policy"
	}
	if !bytes.Equal(p.Owner, s.authority.Owner) && !bytes.Equal(p.Author, s.authority.Owner) {
		return "owner rotation requires the current owner's signature"
	}
	return ""
}

func (s *spaceState) applyAction(a *Action) Result {
	if res, ok := s.duplicate(a.ID); ok {
		return res
	}
	rec := &Record{ObjectID: a.ID, SpaceID: s.id, Action: a}

	if reason := s.actionEligibility(a); reason != "" {
		rec.Reason = reason
		return s.record(rec)
	}

	switch a.Type {
	case ActionMuteIdentity, ActionBanIdentity:
		key := string(a.TargetIdentity)
		s.identityLog[key] = append(s.identityLog[key], rec)
	case ActionHideContent, ActionQuarantineContent:
		s.contentLog[a.TargetObjectID] = append(s.contentLog[a.TargetObjectID], rec)
	case ActionUnmuteIdentity, ActionUnbanIdentity, ActionAllowContent:
		for _, id := range a.Replaces {
			s.lifts[id] = append(s.lifts[id], a)
		}
	case ActionAddMember:
		s.members[string(a.TargetIdentity)] = MemberActive
	case ActionRemoveMember:
		s.members[string(a.TargetIdentity)] = MemberRemoved
	case ActionInviteMember:
		if s.members[string(a.TargetIdentity)] != MemberActive {
			s.members[string(a.TargetIdentity)] = MemberInvited
		}
	case ActionUpdateAuthority:
		s.authority.applyUpdate(a.Authority)
	case ActionUpdateSpaceRules:
		s.applyRules(a.Rules)
	}
	rec.Applied = true
	return s.record(rec)
}

// actionEligibility decides whether a counts at this log position: the
// author must hold the action's capability under the authority in force
// right now, claimed co-signatures must verify, and governance actions and
// policy-flagged permanent bans must meet their signer thresholds.
func (s *spaceState) actionEligibility(a *Action) string {
	if s.head == nil {
		return "space has no policy"
	}
	need := requiredCapability(a.Type)
	if !s.authority.HasCapability(a.Author, need) {
		return fmt.Sprintf("author lacks %s", need)
	}
	if len(a.CoSignatures) > 0 {
		if err := a.VerifyCoSignatures(); err != nil {
			return err.Error()
		}
	}
	switch a.Type {
	case ActionUpdateAuthority, ActionUpdateSpaceRules:
		threshold := s.rules.GovernanceThreshold
		if threshold < 1 {
			threshold = 1
		}
		if got := s.authorizedSigners(a, CapManagePolicy); got < threshold {
			return fmt.Sprintf("%d of %d required governance signers", got, threshold)
		}
	case ActionBanIdentity:
		if need := s.rules.Safety.PermanentBanCosigners; need > 0 && a.Duration == nil {
			if got := s.authorizedSigners(a, CapBanMembers); got < need {
				return fmt.Sprintf("%d of %d required permanent ban signers", got, need)
			}
		}
	}
	return ""
}

func (s *spaceState) authorizedSigners(a *Action, c Capability) uint64 {
	var count uint64
	if s.authority.HasCapability(a.Author, c) {
		count++
	}
	for _, cs := range a.CoSignatures {
		if s.authority.HasCapability(cs.PublicKey, c) {
			count++
		}
	}
	return count
}

func (s *spaceState) applyRules(upd *RuleUpdate) {
	if upd.MembershipPolicy != "" {
		s.rules.MembershipPolicy = upd.MembershipPolicy
	}
	if upd.MaxObjectsPerMinute != nil {
		s.rules.Safety.MaxObjectsPerMinute = *upd.MaxObjectsPerMinute
	}
	if upd.MaxAttachmentBytes != nil {
		s.rules.Safety.MaxAttachmentBytes = *upd.MaxAttachmentBytes
	}
	if upd.QuarantineNewMembers != nil {
		s.rules.Safety.QuarantineNewMembers = *upd.QuarantineNewMembers
	}
	if upd.PermanentBanCosigners != nil {
		s.rules.Safety.PermanentBanCosigners = *upd.PermanentBanCosigners
	}
}

// inForce reports whether an applied restriction still binds at now: not
// expired and not lifted by any applied undo whose replaces names it.
func (s *spaceState) inForce(rec *Record, now uint64) bool {
	a := rec.Action
	if a.Duration != nil && a.CreatedAt != nil {
		expiry := *a.CreatedAt + *a.Duration
		if expiry >= *a.CreatedAt && now >= expiry {
			return false
		}
	}
	for _, undo := range s.lifts[a.ID] {
		if undoLifts(undo, a) {
			return false
		}
	}
	return true
}

// undoLifts reports whether undo reverses restriction: matching kind and
// matching target. A replaces entry naming anything else has no effect.
func undoLifts(undo, restriction *Action) bool {
	switch undo.Type {
	case ActionUnmuteIdentity:
		return restriction.Type == ActionMuteIdentity &&
			bytes.Equal(undo.TargetIdentity, restriction.TargetIdentity)
	case ActionUnbanIdentity:
		return restriction.Type == ActionBanIdentity &&
			bytes.Equal(undo.TargetIdentity, restriction.TargetIdentity)
	case ActionAllowContent:
		return (restriction.Type == ActionHideContent || restriction.Type == ActionQuarantineContent) &&
			undo.TargetObjectID == restriction.TargetObjectID
	}
	return false
}

// IdentityStatus projects the effective restriction state of key in a
// space. The most restrictive in-force restriction wins regardless of the
// order restrictions were applied in.
func (e *Engine) IdentityStatus(spaceID string, key []byte, now uint64) IdentityStatus {
	e.mu.Lock()
	defer e.mu.Unlock()
	s, ok := e.spaces[spaceID]
	if !ok {
		return IdentityUnrestricted
	}
	return s.identityStatus(key, now)
}

func (s *spaceState) identityStatus(key []byte, now uint64) IdentityStatus {
	status := IdentityUnrestricted
	for _, rec := range s.identityLog[string(key)] {
		if !s.inForce(rec, now) {
			continue
		}
		if rec.Action.Type == ActionBanIdentity {
			return IdentityBanned
		}
		status = IdentityMuted
	}
	return status
}

// ContentStatus projects the effective restriction state of one object in a
// space.
func (e *Engine) ContentStatus(spaceID, objectID string, now uint64) ContentStatus {
	e.mu.Lock()
	defer e.mu.Unlock()
	s, ok := e.spaces[spaceID]
	if !ok {
		return ContentVisible
	}
	return s.contentStatus(objectID, now)
}

func (s *spaceState) contentStatus(objectID string, now uint64) ContentStatus {
	status := ContentVisible
	for _, rec := range s.contentLog[objectID] {
		if !s.inForce(rec, now) {
			continue
		}
		if rec.Action.Type == ActionQuarantineContent {
			return ContentQuarantined
		}
		status = ContentHidden
	}
	return status
}

// Membership projects the membership state of key in a space.
func (e *Engine) Membership(spaceID string, key []byte) MembershipState {
	e.mu.Lock()
	defer e.mu.Unlock()
	s, ok := e.spaces[spaceID]
	if !ok {
		return MemberNone
	}
	m, ok := s.members[string(key)]
	if !ok {
		return MemberNone
	}
	return m
}

// Authority returns the effective authority set of a space.
func (e *Engine) Authority(spaceID string) (*Authority, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	s, ok := e.spaces[spaceID]
	if !ok || s.head == nil {
		return nil, object.NewError(object.KindAuthority, "HUM-MOD-004",
			fmt.Sprintf("no policy for space %s", spaceID))
	}
	return s.authority.clone(), nil
}

// Rules returns the effective operational rules of a space.
func (e *Engine) Rules(spaceID string) (SpaceRules, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	s, ok := e.spaces[spaceID]
	if !ok || s.head == nil {
		return SpaceRules{}, object.NewError(object.KindAuthority, "HUM-MOD-004",
			fmt.Sprintf("no policy for space %s", spaceID))
	}
	return s.rules, nil
}

// PolicyHead returns the object id of a space's current policy, or "" when
// the space has none.
func (e *Engine) PolicyHead(spaceID string) string {
	e.mu.Lock()
	defer e.mu.Unlock()
	s, ok := e.spaces[spaceID]
	if !ok || s.head == nil {
		return ""
	}
	return s.head.ID
}

// Log returns a space's governance log in application order, applied and
// excluded entries both.
func (e *Engine) Log(spaceID string) []Record {
	e.mu.Lock()
	defer e.mu.Unlock()
	s, ok := e.spaces[spaceID]
	if !ok {
		return nil
	}
	out := make([]Record, len(s.log))
	for i, rec := range s.log {
		out[i] = *rec
	}
	return out
}

// Exclusions returns the entries of a space's governance log that were
// rejected at application time, with their reasons.
func (e *Engine) Exclusions(spaceID string) []Record {
	e.mu.Lock()
	defer e.mu.Unlock()
	s, ok := e.spaces[spaceID]
	if !ok {
		return nil
	}
	var out []Record
	for _, rec := range s.log {
		if !rec.Applied {
			out = append(out, *rec)
		}
	}
	return out
}
