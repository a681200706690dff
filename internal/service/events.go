package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/punchamoorthee/ledgerops/internal/domain"
	"github.com/punchamoorthee/ledgerops/internal/models"
	"github.com/punchamoorthee/ledgerops/internal/store"
)

// Event types per stream.
const (
	EventPaymentSucceeded  = "payment_succeeded"
	EventPaymentFailed     = "payment_failed"
	EventPaymentChargeback = "payment_chargeback"

	EventTransferSubmitted       = "transfer_submitted"
	EventTransferCreditConfirmed = "transfer_credit_confirmed"
	EventTransferFailedNoDebit   = "transfer_failed_no_debit"
	EventTransferFailedDebited   = "transfer_failed_debited"
	EventTransferReversed        = "transfer_reversed"
)

const noteDuplicateEvent = "duplicate_event_ignored"

// eventHandler applies one event inside the worker's unit of work and reports
// 1 when it changed state, 0 when the event was a no-op.
type eventHandler func(ctx context.Context, tx store.Tx, payload json.RawMessage) (int, error)

func (s *Service) handlers(stream store.Stream) map[string]eventHandler {
	switch stream {
	case store.ProviderStream:
		return map[string]eventHandler{
			EventPaymentSucceeded:  s.applyPaymentSucceeded,
			EventPaymentFailed:     s.applyPaymentFailed,
			EventPaymentChargeback: s.applyChargeback,
		}
	case store.TransferStream:
		return map[string]eventHandler{
			EventTransferSubmitted:       s.applyTransferSubmitted,
			EventTransferCreditConfirmed: s.applyTransferCreditConfirmed,
			EventTransferFailedNoDebit:   s.applyTransferFailedNoDebit,
			EventTransferFailedDebited:   s.applyTransferFailedDebited,
			EventTransferReversed:        s.applyTransferReversed,
		}
	}
	return nil
}

func isJSONObject(raw json.RawMessage) bool {
	raw = bytes.TrimSpace(raw)
	return len(raw) > 0 && raw[0] == '{' && json.Valid(raw)
}

// decodable reports whether the stream's handlers will be able to read the
// payload. Anything else is refused at intake so it cannot sit at the head of
// the queue failing on every run.
func decodable(stream store.Stream, raw json.RawMessage) bool {
	if !isJSONObject(raw) {
		return false
	}
	var err error
	switch stream {
	case store.ProviderStream:
		_, err = decodePaymentPayload(raw)
	case store.TransferStream:
		_, err = decodeTransferPayload(raw)
	}
	return err == nil
}

// IngestEvent records an inbound event for later processing. A provider event
// id seen before is accepted without being recorded again.
func (s *Service) IngestEvent(ctx context.Context, stream store.Stream, req models.WebhookRequest) (models.WebhookResponse, error) {
	if !stream.Valid() {
		return models.WebhookResponse{}, fmt.Errorf("unknown stream %q", stream)
	}
	if req.ProviderEventID == "" || req.Type == "" || !decodable(stream, req.Payload) {
		return models.WebhookResponse{}, ErrEventFieldsRequired
	}

	e := domain.Event{
		ID:              s.newID(),
		ProviderEventID: req.ProviderEventID,
		Type:            req.Type,
		Payload:         req.Payload,
		CreatedAt:       s.now(),
	}
	err := s.store.InTx(ctx, func(tx store.Tx) error {
		return tx.InsertEvent(ctx, stream, e)
	})
	if errors.Is(err, store.ErrDuplicate) {
		eventsDuplicate.WithLabelValues(string(stream)).Inc()
		return models.WebhookResponse{OK: true, Note: noteDuplicateEvent}, nil
	}
	if err != nil {
		return models.WebhookResponse{}, err
	}
	eventsIngested.WithLabelValues(string(stream)).Inc()
	return models.WebhookResponse{OK: true}, nil
}

// ProcessEvents applies one batch of unprocessed events, oldest first, each in
// its own unit of work. An event whose unit fails is logged and left
// unprocessed for a later run; the batch carries on.
func (s *Service) ProcessEvents(ctx context.Context, stream store.Stream) (models.ProcessResponse, error) {
	handlers := s.handlers(stream)
	if handlers == nil {
		return models.ProcessResponse{}, fmt.Errorf("unknown stream %q", stream)
	}

	var events []domain.Event
	err := s.store.InTx(ctx, func(tx store.Tx) error {
		var err error
		events, err = tx.ListUnprocessedEvents(ctx, stream, s.batchSize)
		return err
	})
	if err != nil {
		return models.ProcessResponse{}, fmt.Errorf("list %s events: %w", stream, err)
	}

	var resp models.ProcessResponse
	for _, e := range events {
		if err := ctx.Err(); err != nil {
			return resp, err
		}

		applied, err := s.processOne(ctx, stream, handlers[e.Type], e)
		if err != nil {
			eventsFailed.WithLabelValues(string(stream), e.Type).Inc()
			s.logger.Warn("event apply failed",
				"stream", stream,
				"event_id", e.ID,
				"provider_event_id", e.ProviderEventID,
				"type", e.Type,
				"error", err,
			)
			continue
		}

		result := "noop"
		if applied > 0 {
			result = "applied"
		}
		eventsApplied.WithLabelValues(string(stream), e.Type, result).Inc()
		resp.Processed += applied
	}
	return resp, nil
}

func (s *Service) processOne(ctx context.Context, stream store.Stream, h eventHandler, e domain.Event) (int, error) {
	var applied int
	err := s.store.InTx(ctx, func(tx store.Tx) error {
		applied = 0
		if h != nil {
			n, err := h(ctx, tx, e.Payload)
			if err != nil {
				return err
			}
			applied = n
		}
		return tx.MarkEventProcessed(ctx, stream, e.ID)
	})
	if err != nil {
		return 0, err
	}
	return applied, nil
}
