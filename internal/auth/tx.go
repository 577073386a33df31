// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Contractly Contributors

package auth

import "context"

// Transactor runs fn inside a single storage transaction. The transaction is
// carried in the context handed to fn; store methods called with that context
// participate in it. Calling InTransaction with a context that already carries
// a transaction joins it instead of starting a new one.
//
// If fn returns nil the transaction is committed, otherwise rolled back and
// fn's error is returned unchanged.
type Transactor interface {
	InTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}
