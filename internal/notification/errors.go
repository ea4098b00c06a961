package notification

import "errors"

// ErrPermanent wraps a channel failure the dispatcher should not retry
// (a provider 4xx, a malformed recipient). It still produces a
// notification.failed.v1 event and delivery row, it just skips the
// remaining retry attempts for that channel.
var ErrPermanent = errors.New("notification: permanent channel failure")
