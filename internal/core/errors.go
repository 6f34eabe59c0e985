package core

import "errors"

var (
	ErrEmptyFirstPage      = errors.New("empty first page")
	ErrRecordCountMismatch = errors.New("record count mismatch")
	ErrUpstreamStatus      = errors.New("unsuccessful upstream status")
	ErrMissingPayload      = errors.New("missing payload field")
	ErrBadTimestamp        = errors.New("bad timestamp")
)
