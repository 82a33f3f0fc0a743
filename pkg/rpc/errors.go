package rpc

import (
	"strings"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/bromq-dev/fixhdr/pkg/inspect"
	"github.com/bromq-dev/fixhdr/pkg/packet"
)

// kindErrors maps error kinds sent over the wire back to their sentinels.
var kindErrors = map[string]error{
	"truncated_input":            packet.ErrTruncatedInput,
	"reserved_type":              packet.ErrReservedType,
	"invalid_flags":              packet.ErrInvalidFlags,
	"invalid_qos":                packet.ErrInvalidQoS,
	"malformed_remaining_length": packet.ErrMalformedRemainingLength,
	"non_minimal_encoding":       packet.ErrNonMinimalEncoding,
	"value_too_large":            packet.ErrValueTooLarge,
	"packet_too_large":           packet.ErrPacketTooLarge,
	"empty_remaining_length":     inspect.ErrEmptyRemainingLength,
}

// RemoteError is a decode error reported by a remote Decoder. It matches
// the local sentinel of its kind with errors.Is.
type RemoteError struct {
	Kind    string
	Message string
}

func (e *RemoteError) Error() string {
	return e.Message
}

func (e *RemoteError) Is(target error) bool {
	sentinel, ok := kindErrors[e.Kind]
	return ok && sentinel == target
}

// statusError encodes a decode error as InvalidArgument with its kind as
// message prefix.
func statusError(err error) error {
	return status.Error(codes.InvalidArgument, inspect.ErrorKind(err)+": "+err.Error())
}

// fromStatus turns an InvalidArgument status back into a RemoteError.
// Other errors are returned unchanged.
func fromStatus(err error) error {
	st, ok := status.FromError(err)
	if !ok || st.Code() != codes.InvalidArgument {
		return err
	}
	kind, msg, found := strings.Cut(st.Message(), ": ")
	if !found {
		return err
	}
	if _, known := kindErrors[kind]; !known {
		return err
	}
	return &RemoteError{Kind: kind, Message: msg}
}
