package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/punchamoorthee/ledgerops/internal/domain"
	"github.com/punchamoorthee/ledgerops/internal/store"
)

// Idempotency scopes. A key used under one scope never replays under another.
const (
	scopeCreatePaymentIntent = "payment_intents.create"
	scopeCreateTransfer      = "transfers.create"
)

// Replay is the stored response of an idempotent operation. Body is byte-for-byte
// what the first successful call produced.
type Replay struct {
	Body     json.RawMessage
	Replayed bool
}

func requestHash(scope string, req any) (string, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("hash request: %w", err)
	}
	sum := sha256.Sum256(append([]byte(scope+"\n"), body...))
	return hex.EncodeToString(sum[:]), nil
}

// idempotent runs op at most once per key. The lookup, op and the stored
// response share one unit of work, so a replay never observes a half-applied
// operation and a failed op leaves no record behind.
func idempotent[T any](ctx context.Context, s *Service, scope, key string, req any,
	op func(ctx context.Context, tx store.Tx) (T, error)) (Replay, error) {

	key = strings.TrimSpace(key)
	if key == "" {
		return Replay{}, ErrIdempotencyKeyRequired
	}

	hash, err := requestHash(scope, req)
	if err != nil {
		return Replay{}, err
	}

	var out Replay
	err = s.store.InTx(ctx, func(tx store.Tx) error {
		rec, err := tx.GetIdempotencyRecord(ctx, key)
		if err == nil {
			return replay(rec, hash, &out)
		}
		if !errors.Is(err, store.ErrNotFound) {
			return err
		}

		resp, err := op(ctx, tx)
		if err != nil {
			return err
		}
		body, err := json.Marshal(resp)
		if err != nil {
			return fmt.Errorf("encode response: %w", err)
		}

		out = Replay{Body: body}
		return tx.InsertIdempotencyRecord(ctx, domain.IdempotencyRecord{
			Key:         key,
			RequestHash: hash,
			Response:    body,
			CreatedAt:   s.now(),
		})
	})
	if !errors.Is(err, store.ErrDuplicate) {
		return counted(scope, out), err
	}

	// A concurrent request with the same key committed first.
	raceErr := err
	err = s.store.InTx(ctx, func(tx store.Tx) error {
		rec, err := tx.GetIdempotencyRecord(ctx, key)
		if err != nil {
			return err
		}
		return replay(rec, hash, &out)
	})
	if errors.Is(err, store.ErrNotFound) {
		return Replay{}, raceErr
	}
	return counted(scope, out), err
}

func counted(scope string, r Replay) Replay {
	if r.Replayed {
		idempotentReplays.WithLabelValues(scope).Inc()
	}
	return r
}

func replay(rec domain.IdempotencyRecord, hash string, out *Replay) error {
	if rec.RequestHash != hash {
		return ErrIdempotencyKeyConflict
	}
	*out = Replay{Body: rec.Response, Replayed: true}
	return nil
}
