package relay

import (
	"context"
	"errors"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"humanity.network/core/storage"
	"humanity.network/core/syncer"
)

// Server exposes a syncer.Feed over the Feed gRPC service. Wrapping the
// interface rather than the Sequencer keeps the transport reusable for
// mirrors that proxy another relay.
type Server struct {
	UnimplementedFeedServer
	Feed syncer.Feed
}

func (s *Server) Pull(ctx context.Context, in *wrapperspb.BytesValue) (*wrapperspb.BytesValue, error) {
	if s == nil || s.Feed == nil {
		return nil, status.Error(codes.FailedPrecondition, "missing feed")
	}
	var req pullRequest
	if err := unmarshalFrame(in, &req); err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	if req.SpaceID == "" {
		return nil, status.Error(codes.InvalidArgument, "space_id is required")
	}
	envs, err := s.Feed.Pull(ctx, req.SpaceID, req.Cursor, int(req.Limit))
	if err != nil {
		return nil, mapFeedErr(err)
	}
	resp := pullResponse{Entries: make([]feedEntry, 0, len(envs))}
	for _, env := range envs {
		resp.Entries = append(resp.Entries, feedEntry{Bytes: env.Bytes, Cursor: env.Cursor})
	}
	out, err := marshalFrame(resp)
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	return out, nil
}

func (s *Server) Push(ctx context.Context, in *wrapperspb.BytesValue) (*wrapperspb.BytesValue, error) {
	if s == nil || s.Feed == nil {
		return nil, status.Error(codes.FailedPrecondition, "missing feed")
	}
	var req pushRequest
	if err := unmarshalFrame(in, &req); err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	if req.SpaceID == "" {
		return nil, status.Error(codes.InvalidArgument, "space_id is required")
	}
	results, err := s.Feed.Push(ctx, req.SpaceID, req.Objects)
	if err != nil {
		return nil, mapFeedErr(err)
	}
	resp := pushResponse{Results: make([]pushVerdict, 0, len(results))}
	for _, r := range results {
		resp.Results = append(resp.Results, pushVerdict{ObjectID: r.ObjectID, Accepted: r.Accepted, Reason: r.Reason})
	}
	out, err := marshalFrame(resp)
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	return out, nil
}

func mapFeedErr(err error) error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, ErrBadCursor):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())
	case storage.IsNotFound(err):
		return status.Error(codes.NotFound, err.Error())
	default:
		return status.Error(codes.Internal, err.Error())
	}
}
