package history

import "github.com/pkg/errors"

// Sentinel errors returned by the repository. Callers match them with
// errors.Is; store failures are wrapped around ErrInternal with context.
var (
	ErrUnauthorized = errors.New("unauthorized")
	ErrNotFound     = errors.New("chat not found")
	ErrValidation   = errors.New("invalid chat")
	ErrInternal     = errors.New("history store failure")
)

func internal(err error, op string) error {
	return errors.Wrapf(ErrInternal, "%s: %v", op, err)
}
