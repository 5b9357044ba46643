package relay

import (
	"strings"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"humanity.network/core/storage"
)

func mapRPC(err error) error {
	if err == nil {
		return nil
	}
	st, ok := status.FromError(err)
	if !ok {
		return err
	}

	switch st.Code() {
	case codes.NotFound:
		return storage.ErrNotFound
	case codes.InvalidArgument:
		// The server reports cursors it never issued as InvalidArgument.
		if strings.HasPrefix(st.Message(), ErrBadCursor.Error()) {
			return ErrBadCursor
		}
		return err
	default:
		return err
	}
}
