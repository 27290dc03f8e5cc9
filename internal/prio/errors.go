package prio

import "errors"

// ErrDecryption is returned when a payload cannot be decrypted under a
// given Server's private key. It is the Go analogue of libprio's
// EncryptError: the intake and aggregation pipelines use errors.Is against
// this sentinel to decide "try the next decryption key" versus "this
// packet is broken".
var ErrDecryption = errors.New("prio: payload decryption failed")

// ErrBinsMismatch is returned by MergeTotalShares when two servers were
// not configured with the same bin count and so cannot be merged.
var ErrBinsMismatch = errors.New("prio: servers have mismatched bin counts")
