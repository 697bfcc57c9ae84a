package service

import (
	"context"

	"github.com/jmerrifield20/careerledger/internal/journal"
	"github.com/jmerrifield20/careerledger/internal/registry/model"
	"go.uber.org/zap"
)

// Authorizer decides whether actor may apply action to rec.
type Authorizer interface {
	Authorize(ctx context.Context, actor string, rec *model.Record, action model.Action) error
}

// OwnerAuthorizer lets only the record's owner review it, so owners approve
// or reject their own submissions.
type OwnerAuthorizer struct{}

// Authorize implements Authorizer.
func (OwnerAuthorizer) Authorize(_ context.Context, actor string, rec *model.Record, _ model.Action) error {
	if !rec.OwnedBy(actor) {
		return model.ErrUnauthorized
	}
	return nil
}

// Review moves records through pending -> verified | rejected.
type Review struct {
	records recordStore
	auth    Authorizer
	journal journal.Journal // nil = no audit entries
	logger  *zap.Logger
}

// NewReview creates a Review using OwnerAuthorizer.
func NewReview(records recordStore, logger *zap.Logger) *Review {
	return &Review{records: records, auth: OwnerAuthorizer{}, logger: logger}
}

// SetAuthorizer replaces the authorization policy.
func (rv *Review) SetAuthorizer(a Authorizer) { rv.auth = a }

// SetJournal enables audit entries for transitions.
func (rv *Review) SetJournal(j journal.Journal) { rv.journal = j }

// Approve marks a pending record verified.
func (rv *Review) Approve(ctx context.Context, id, actor string) (*model.Record, error) {
	return rv.apply(ctx, id, actor, model.ActionApprove)
}

// Reject marks a pending record rejected.
func (rv *Review) Reject(ctx context.Context, id, actor string) (*model.Record, error) {
	return rv.apply(ctx, id, actor, model.ActionReject)
}

// apply checks, in order, that the record exists, that it is still pending
// and that actor is authorized, then writes the new status. The checks run
// against the record read inside the update cycle.
func (rv *Review) apply(ctx context.Context, id, actor string, action model.Action) (*model.Record, error) {
	var from model.Status
	rec, err := rv.records.Update(ctx, id, func(cur *model.Record) error {
		next, err := model.Transition(cur.Status, action)
		if err != nil {
			return err
		}
		if err := rv.auth.Authorize(ctx, actor, cur, action); err != nil {
			return err
		}
		from = cur.Status
		cur.Status = next
		return nil
	})
	if err != nil {
		return nil, err
	}

	if rv.journal != nil {
		if _, err := rv.journal.Append(ctx, id, string(action), actor, map[string]string{
			"from": string(from),
			"to":   string(rec.Status),
		}); err != nil {
			rv.logger.Error("journal append failed (non-fatal)",
				zap.String("action", string(action)),
				zap.String("id", id),
				zap.Error(err),
			)
		}
	}
	rv.logger.Info("portfolio reviewed",
		zap.String("id", id),
		zap.String("action", string(action)),
		zap.String("actor", actor),
		zap.String("status", string(rec.Status)),
	)
	return rec, nil
}
