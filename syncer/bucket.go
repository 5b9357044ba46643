// Package syncer reconciles locally authored state with a remote feed under
// intermittent connectivity: pull, re-verify, apply, classify, push,
// acknowledge. The remote is untrusted; everything pulled is verified and
// validated locally before it is stored or projected.
package syncer

import (
	"fmt"

	"humanity.network/core/object"
)

// Bucket classifies a state-item kind for sync.
type Bucket string

const (
	// BucketLocalOnly items never leave the device.
	BucketLocalOnly Bucket = "local_only"
	// BucketMergeable items are sent as proposals; immutability makes raw
	// object merges conflict-free.
	BucketMergeable Bucket = "mergeable"
	// BucketAuthoritative items are sent but remain provisional locally
	// until the remote acknowledges them.
	BucketAuthoritative Bucket = "authoritative_elsewhere"
)

var buckets = map[Bucket]bool{
	BucketLocalOnly:     true,
	BucketMergeable:     true,
	BucketAuthoritative: true,
}

// Classifier maps state-item kinds to sync buckets.
//
// Defaults: drafts and local preferences stay on the device; content objects
// are mergeable; governance objects are authoritative elsewhere. Kinds the
// classifier has never heard of are treated as mergeable content.
type Classifier struct {
	rules map[string]Bucket
}

func NewClassifier() *Classifier {
	return &Classifier{rules: map[string]Bucket{
		"draft":      BucketLocalOnly,
		"preference": BucketLocalOnly,

		object.TypeThreadCreate:  BucketMergeable,
		object.TypePost:          BucketMergeable,
		object.TypeMessage:       BucketMergeable,
		object.TypeProfile:       BucketMergeable,
		object.TypeChannelCreate: BucketMergeable,
		object.TypeAttachment:    BucketMergeable,
		object.TypeSpaceKeyGrant: BucketMergeable,

		object.TypeSpacePolicy:      BucketAuthoritative,
		object.TypeModerationAction: BucketAuthoritative,
	}}
}

// Set overrides the bucket for a kind.
func (c *Classifier) Set(kind string, b Bucket) error {
	if kind == "" {
		return fmt.Errorf("syncer: empty kind")
	}
	if !buckets[b] {
		return fmt.Errorf("syncer: unknown bucket %q", b)
	}
	c.rules[kind] = b
	return nil
}

// Classify returns the bucket for a kind.
func (c *Classifier) Classify(kind string) Bucket {
	if b, ok := c.rules[kind]; ok {
		return b
	}
	return BucketMergeable
}
