package webhook

import "errors"

// ErrInvalidEvent marks a malformed sub-event. Validation failures are
// dropped without retry: replaying the same malformed data cannot succeed.
var ErrInvalidEvent = errors.New("invalid webhook event")
