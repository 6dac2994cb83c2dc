package service

import (
	"errors"
	"fmt"

	"connectrpc.com/connect"

	"github.com/abreulima/finsync/internal/store"
)

// The services surface one error taxonomy, expressed as connect codes:
// validation failures are CodeInvalidArgument, missing or foreign-owned rows
// are CodeNotFound, state-machine conflicts are CodeFailedPrecondition,
// aggregator failures are CodeUnavailable and storage failures are
// CodeInternal.

func invalidArgument(format string, args ...any) error {
	return connect.NewError(connect.CodeInvalidArgument, fmt.Errorf(format, args...))
}

func notFound(what string) error {
	return connect.NewError(connect.CodeNotFound, fmt.Errorf("%s not found", what))
}

func conflict(err error) error {
	return connect.NewError(connect.CodeFailedPrecondition, err)
}

func providerUnavailable(err error) error {
	return connect.NewError(connect.CodeUnavailable, fmt.Errorf("provider request failed: %w", err))
}

// storeError maps a Store failure onto the taxonomy. Missing rows surface as
// NotFound; anything else is a persistence failure.
func storeError(op string, err error) error {
	if errors.Is(err, store.ErrNotFound) {
		return connect.NewError(connect.CodeNotFound, err)
	}
	return connect.NewError(connect.CodeInternal, fmt.Errorf("%s: %w", op, err))
}
