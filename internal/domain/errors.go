package domain

import "errors"

// ErrDuplicateBill is returned by storage when an insert collides with the
// unique (owner, source_message_id) constraint on bills. Callers treat it as
// "already handled", not as a failure.
var ErrDuplicateBill = errors.New("bill already exists for this source message")
