package relay

import (
	"fmt"

	"google.golang.org/protobuf/types/known/wrapperspb"

	"humanity.network/core/canon"
)

// Wire messages for the Feed service. Requests and responses travel as
// canonical CBOR inside BytesValue frames, so the transport reuses the
// codec objects are already encoded with and needs no generated code.

type pullRequest struct {
	SpaceID string `cbor:"space_id"`
	Cursor  string `cbor:"cursor,omitempty"`
	Limit   uint64 `cbor:"limit,omitempty"`
}

type feedEntry struct {
	Bytes  []byte `cbor:"bytes"`
	Cursor string `cbor:"cursor"`
}

type pullResponse struct {
	Entries []feedEntry `cbor:"entries,omitempty"`
}

type pushRequest struct {
	SpaceID string   `cbor:"space_id"`
	Objects [][]byte `cbor:"objects"`
}

type pushVerdict struct {
	ObjectID string `cbor:"object_id"`
	Accepted bool   `cbor:"accepted"`
	Reason   string `cbor:"reason,omitempty"`
}

type pushResponse struct {
	Results []pushVerdict `cbor:"results,omitempty"`
}

func marshalFrame(v any) (*wrapperspb.BytesValue, error) {
	data, err := canon.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("relay: encode frame: %w", err)
	}
	return wrapperspb.Bytes(data), nil
}

func unmarshalFrame(frame *wrapperspb.BytesValue, v any) error {
	if frame == nil {
		return fmt.Errorf("relay: missing frame")
	}
	if err := canon.Unmarshal(frame.GetValue(), v); err != nil {
		return fmt.Errorf("relay: decode frame: %w", err)
	}
	return nil
}
