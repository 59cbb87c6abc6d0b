// Copyright (c) 2026 Pixveil. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package protection

import (
	"context"
	"errors"
	"time"
)

// ErrTokenNotFound is returned by [TokenStore.Get] when no record exists for
// a token string, either because it was never issued, already consumed, or
// evicted after expiry.
var ErrTokenNotFound = errors.New("protection: token not found")

// ErrTokenExhausted is returned by [TokenStore.Consume] when the usage budget
// was already spent by a concurrent consumer.
var ErrTokenExhausted = errors.New("protection: token max uses exceeded")

// # Token Storage

// TokenStore holds live access-token records keyed by the full token string.
//
// # Why an interface?
//
// Single-instance deployments use the in-memory store; multi-instance
// deployments swap in the Redis store so any replica can verify a token
// minted by another. The TokenService never knows which backend it has.
type TokenStore interface {

	/*
		Put stores a freshly minted token record.

		Parameters:
		  - context: context.Context
		  - token: string (Full wire token, used as the key)
		  - record: *TokenRecord
		  - ttl: time.Duration (Eviction deadline, already includes grace)

		Returns:
		  - error: Storage failures
	*/
	Put(context context.Context, token string, record *TokenRecord, ttl time.Duration) error

	/*
		Get retrieves the record for an exact token string.

		Returns:
		  - *TokenRecord: The live record
		  - error: ErrTokenNotFound if absent or evicted
	*/
	Get(context context.Context, token string) (*TokenRecord, error)

	/*
		Consume atomically spends one use: the read, increment, and write
		happen as a single operation so two concurrent verifications can
		never both succeed on the same remaining use. When the increment
		spends the last use the record is removed.

		Returns:
		  - *TokenRecord: The record after the increment
		  - error: ErrTokenNotFound if the record vanished, ErrTokenExhausted
		    if a concurrent consumer spent the budget first, storage failures
	*/
	Consume(context context.Context, token string) (*TokenRecord, error)

	/*
		Delete removes a token record (exhausted or expired).

		Returns:
		  - error: Storage failures (deleting an absent token is not an error)
	*/
	Delete(context context.Context, token string) error

	/*
		Count reports the number of live token records, for the operator
		stats endpoint.
	*/
	Count(context context.Context) (int, error)
}
