// Package validate applies structural rules to decoded, signature-verified
// objects. Validation is pure and deterministic: it never consults a store,
// a clock, or the network, so every replica reaches the same verdict on the
// same bytes.
package validate

import (
	"fmt"

	"humanity.network/core/canon"
	"humanity.network/core/cidutil"
	"humanity.network/core/object"
	"humanity.network/core/seal"
)

// Disposition is the validator's verdict on an object.
type Disposition int

const (
	// Accept admits the object for storage and interpretation.
	Accept Disposition = iota
	// StoreOnly stores the object's bytes without interpreting them: the
	// type or schema version is newer than this implementation. The object
	// stays identifiable and can be interpreted after an upgrade.
	StoreOnly
	// Reject refuses the object.
	Reject
)

func (d Disposition) String() string {
	switch d {
	case Accept:
		return "accept"
	case StoreOnly:
		return "store_only"
	case Reject:
		return "reject"
	default:
		return fmt.Sprintf("disposition(%d)", int(d))
	}
}

// Result pairs a disposition with the rule that decided it. Err is non-nil
// exactly when the disposition is Reject.
type Result struct {
	Disposition Disposition
	RuleID      string
	Err         error
}

func rejected(err error) Result {
	return Result{Disposition: Reject, RuleID: object.RuleID(err), Err: err}
}

// TypeRule describes how one known object type is validated.
type TypeRule struct {
	// Governance marks types whose payloads the moderation engine
	// interprets. Governance payloads must be plaintext and space-scoped.
	Governance bool
	// Schemas lists the payload_schema_version values this implementation
	// can interpret for the type.
	Schemas []uint64
}

// Policy is a validation configuration. Policies are plain values; the zero
// value rejects everything, so start from Default or Strict.
type Policy struct {
	ProtocolVersions []uint64
	Types            map[string]TypeRule
	// StoreUnknownTypes stores objects of unknown type instead of rejecting
	// them. Offline-first clients keep such objects so an upgrade can
	// interpret them later; relays typically reject instead.
	StoreUnknownTypes bool
	// StoreUnknownSchemas does the same for unknown schema versions of
	// known types.
	StoreUnknownSchemas bool
	MaxObjectBytes      int
	MaxReferences       int
}

// Default returns the client validation policy: known types of this
// implementation, store-only for anything newer.
func Default() Policy {
	return Policy{
		ProtocolVersions:    []uint64{object.ProtocolVersion},
		Types:               knownTypes(),
		StoreUnknownTypes:   true,
		StoreUnknownSchemas: true,
		MaxObjectBytes:      1 << 20,
		MaxReferences:       64,
	}
}

// Strict returns the relay validation policy: unknown types and schemas are
// rejected rather than stored.
func Strict() Policy {
	p := Default()
	p.StoreUnknownTypes = false
	p.StoreUnknownSchemas = false
	return p
}

func knownTypes() map[string]TypeRule {
	return map[string]TypeRule{
		object.TypeThreadCreate:     {Schemas: []uint64{1}},
		object.TypePost:             {Schemas: []uint64{1}},
		object.TypeMessage:          {Schemas: []uint64{1}},
		object.TypeProfile:          {Schemas: []uint64{1}},
		object.TypeChannelCreate:    {Schemas: []uint64{1}},
		object.TypeAttachment:       {Schemas: []uint64{1}},
		object.TypeSpaceKeyGrant:    {Schemas: []uint64{1}},
		object.TypeModerationAction: {Governance: true, Schemas: []uint64{1}},
		object.TypeSpacePolicy:      {Governance: true, Schemas: []uint64{1}},
	}
}

// IsGovernance reports whether objectType is a governance type under this
// policy.
func (p Policy) IsGovernance(objectType string) bool {
	return p.Types[objectType].Governance
}

// Validate checks o in a fixed rule order and returns the verdict. The
// caller is expected to have decoded o from canonical bytes and verified its
// signature; Validate only judges structure and relationships.
func (p Policy) Validate(o *object.Object) Result {
	if !containsUint(p.ProtocolVersions, o.ProtocolVersion) {
		return rejected(object.NewError(object.KindValidation, "HUM-VAL-101",
			fmt.Sprintf("unsupported protocol version %d", o.ProtocolVersion)))
	}

	tr, known := p.Types[o.ObjectType]
	if !known {
		if p.StoreUnknownTypes {
			return Result{Disposition: StoreOnly, RuleID: "HUM-VAL-102"}
		}
		return rejected(object.NewError(object.KindValidation, "HUM-VAL-102",
			fmt.Sprintf("unknown object type %q", o.ObjectType)))
	}
	if !containsUint(tr.Schemas, o.PayloadSchemaVersion) {
		if p.StoreUnknownSchemas {
			return Result{Disposition: StoreOnly, RuleID: "HUM-VAL-103"}
		}
		return rejected(object.NewError(object.KindValidation, "HUM-VAL-103",
			fmt.Sprintf("unsupported payload schema version %d for %q", o.PayloadSchemaVersion, o.ObjectType)))
	}

	if err := ValidateRules(o, p.structuralRules(tr)); err != nil {
		return rejected(err)
	}
	return Result{Disposition: Accept}
}

func (p Policy) structuralRules(tr TypeRule) []Rule {
	return []Rule{
		{ID: "HUM-VAL-104", Apply: checkPayloadEncoding},
		{ID: "HUM-VAL-105", Apply: checkEncryptedFraming},
		{ID: "HUM-VAL-106", Apply: checkPlaintextCanonical},
		{ID: "HUM-VAL-107", Apply: requireIf(tr.Governance, governancePlaintext)},
		{ID: "HUM-VAL-108", Apply: requireIf(tr.Governance, governanceNeedsSpace)},
		{ID: "HUM-VAL-109", Apply: channelNeedsSpace},
		{ID: "HUM-VAL-110", Apply: referencesWellFormed},
		{ID: "HUM-VAL-111", Apply: p.referencesWithinCap},
		{ID: "HUM-VAL-112", Apply: p.withinSizeCap},
	}
}

func containsUint(vs []uint64, v uint64) bool {
	for _, x := range vs {
		if x == v {
			return true
		}
	}
	return false
}

func requireIf(cond bool, apply func(*object.Object) error) func(*object.Object) error {
	if !cond {
		return func(*object.Object) error { return nil }
	}
	return apply
}

func checkPayloadEncoding(o *object.Object) error {
	switch o.PayloadEncoding {
	case object.EncodingPlaintext, object.EncodingEncrypted:
		return nil
	default:
		return object.NewError(object.KindValidation, "HUM-VAL-104",
			fmt.Sprintf("unrecognized payload encoding %q", o.PayloadEncoding))
	}
}

func checkEncryptedFraming(o *object.Object) error {
	if o.PayloadEncoding != object.EncodingEncrypted {
		return nil
	}
	if err := seal.CheckFraming(o.Payload); err != nil {
		return object.WrapError(object.KindValidation, "HUM-VAL-105",
			"encrypted payload framing", err)
	}
	return nil
}

func checkPlaintextCanonical(o *object.Object) error {
	if o.PayloadEncoding != object.EncodingPlaintext || len(o.Payload) == 0 {
		return nil
	}
	if err := canon.Verify(o.Payload); err != nil {
		return object.WrapError(object.KindValidation, "HUM-VAL-106",
			"plaintext payload is not canonical", err)
	}
	return nil
}

func governancePlaintext(o *object.Object) error {
	if o.PayloadEncoding != object.EncodingPlaintext {
		return object.NewError(object.KindValidation, "HUM-VAL-107",
			fmt.Sprintf("%s payload must be plaintext", o.ObjectType))
	}
	return nil
}

func governanceNeedsSpace(o *object.Object) error {
	if o.SpaceID == "" {
		return object.NewError(object.KindValidation, "HUM-VAL-108",
			fmt.Sprintf("%s must be scoped to a space", o.ObjectType))
	}
	return nil
}

func channelNeedsSpace(o *object.Object) error {
	if o.ChannelID != "" && o.SpaceID == "" {
		return object.NewError(object.KindValidation, "HUM-VAL-109",
			"an object addressing a channel must declare its space")
	}
	return nil
}

func referencesWellFormed(o *object.Object) error {
	for _, ref := range o.References {
		if _, err := cidutil.Parse(ref); err != nil {
			return object.WrapError(object.KindValidation, "HUM-VAL-110",
				fmt.Sprintf("reference %q is not an object identifier", ref), err)
		}
	}
	return nil
}

func (p Policy) referencesWithinCap(o *object.Object) error {
	if p.MaxReferences > 0 && len(o.References) > p.MaxReferences {
		return object.NewError(object.KindValidation, "HUM-VAL-111",
			fmt.Sprintf("object carries %d references, cap is %d", len(o.References), p.MaxReferences))
	}
	return nil
}

func (p Policy) withinSizeCap(o *object.Object) error {
	if p.MaxObjectBytes <= 0 {
		return nil
	}
	raw, err := o.CanonicalBytes()
	if err != nil {
		return err
	}
	if len(raw) > p.MaxObjectBytes {
		return object.NewError(object.KindValidation, "HUM-VAL-112",
			fmt.Sprintf("object is %d bytes, cap is %d", len(raw), p.MaxObjectBytes))
	}
	return nil
}
