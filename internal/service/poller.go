package service

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/punchamoorthee/ledgerops/internal/domain"
	"github.com/punchamoorthee/ledgerops/internal/models"
	"github.com/punchamoorthee/ledgerops/internal/store"
)

// Failure recorded on transfers escalated by the poller.
const (
	FailureUnknownTimeout = "UNKNOWN_TIMEOUT"
	ReasonUnknownSLA      = "exceeded_unknown_sla"
)

// OutcomeSource answers "what happened to this transfer" on behalf of the provider.
type OutcomeSource interface {
	Outcome(ctx context.Context, transferID string) (string, error)
}

// OutcomeMap is an OutcomeSource backed by fixed answers; missing ids are unknown.
type OutcomeMap map[string]string

func (m OutcomeMap) Outcome(_ context.Context, transferID string) (string, error) {
	if o, ok := m[transferID]; ok && o != "" {
		return o, nil
	}
	return OutcomeUnknown, nil
}

// pollEventID is stable per transfer and outcome, so polling the same answer
// twice is deduplicated at intake.
func pollEventID(transferID, outcome string) string {
	return "poll:" + transferID + ":" + outcome
}

// PollUnknownTransfers asks src about transfers stuck in unknown, oldest first.
// A known outcome is fed through IngestEvent like any webhook; a transfer that
// stays unknown past the SLA goes to manual_review with no ledger entry.
func (s *Service) PollUnknownTransfers(ctx context.Context, limit int, src OutcomeSource) (models.PollResponse, error) {
	if limit <= 0 {
		limit = DefaultPollLimit
	}
	if src == nil {
		src = OutcomeMap(nil)
	}

	var candidates []domain.Transfer
	err := s.store.InTx(ctx, func(tx store.Tx) error {
		var err error
		candidates, err = tx.ListTransfersByStatus(ctx, domain.TransferUnknown, limit)
		return err
	})
	if err != nil {
		return models.PollResponse{}, fmt.Errorf("list unknown transfers: %w", err)
	}

	var resp models.PollResponse
	for _, c := range candidates {
		outcome, err := src.Outcome(ctx, c.ID)
		if err != nil {
			return resp, fmt.Errorf("query transfer %s: %w", c.ID, err)
		}

		polled, escalated, err := s.pollOne(ctx, c.ID, outcome)
		if err != nil {
			return resp, err
		}
		if !polled {
			continue
		}
		resp.Polled++
		if escalated {
			resp.EscalatedManualReview++
			transfersEscalated.Inc()
			s.logger.Info("transfer escalated to manual review", "transfer_id", c.ID)
			continue
		}

		eventType, known := outcomeEvents[outcome]
		if !known {
			continue
		}
		payload, err := json.Marshal(models.TransferEventPayload{TransferID: c.ID})
		if err != nil {
			return resp, err
		}
		ack, err := s.IngestEvent(ctx, store.TransferStream, models.WebhookRequest{
			ProviderEventID: pollEventID(c.ID, outcome),
			Type:            eventType,
			Payload:         payload,
		})
		if err != nil {
			return resp, err
		}
		if ack.Note == "" {
			resp.GeneratedEvents++
		}
	}

	if resp.GeneratedEvents > 0 {
		if _, err := s.ProcessEvents(ctx, store.TransferStream); err != nil {
			return resp, err
		}
	}
	return resp, nil
}

// pollOne records the poll on one transfer and escalates it when it is still
// unknown past the SLA. polled is false when the transfer was polled too
// recently or left the unknown state since it was listed.
func (s *Service) pollOne(ctx context.Context, id, outcome string) (polled, escalated bool, err error) {
	err = s.store.InTx(ctx, func(tx store.Tx) error {
		polled, escalated = false, false

		t, err := tx.GetTransfer(ctx, id)
		if err != nil {
			return err
		}
		if t.Status != domain.TransferUnknown {
			return nil
		}

		now := s.now()
		u := store.TransferUpdate{}
		submittedAt := now
		if t.SubmittedAt != nil {
			submittedAt = *t.SubmittedAt
		} else {
			u.SubmittedAt = &submittedAt
		}

		if t.LastPolledAt != nil && now.Sub(*t.LastPolledAt) < s.pollMinInterval {
			if u.SubmittedAt != nil {
				return tx.UpdateTransfer(ctx, id, u)
			}
			return nil
		}
		u.LastPolledAt = &now
		polled = true

		if outcome == OutcomeUnknown && now.Sub(submittedAt) >= s.unknownSLA {
			next, err := t.Status.Next(domain.TransferEscalate)
			if err != nil {
				return err
			}
			code, reason := FailureUnknownTimeout, ReasonUnknownSLA
			u.Status = next
			u.FailureCode = &code
			u.FailureReason = &reason
			u.UpdatedAt = now
			escalated = true
		}
		return tx.UpdateTransfer(ctx, id, u)
	})
	return polled, escalated, err
}
