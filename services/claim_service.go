package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"talentbridge-backend/chain"
	"talentbridge-backend/content"
	"talentbridge-backend/core/escrow"
	"talentbridge-backend/storage/ledger"
)

// ClaimCoordinator admits candidate submissions into capped slots and hands
// submissions to reviewers, at most one reviewer per submission.
type ClaimCoordinator struct {
	store   ledger.Store
	chain   chain.Client
	content content.Store
}

func NewClaimCoordinator(store ledger.Store, chainClient chain.Client, contentStore content.Store) *ClaimCoordinator {
	return &ClaimCoordinator{store: store, chain: chainClient, content: contentStore}
}

// AdmitSubmission takes one submission slot for the candidate. The contract's
// live status is consulted before admission; the cached ledger status alone is
// never trusted for the slot decision. A failed chain registration keeps the
// admitted row in pending and is retried later.
func (c *ClaimCoordinator) AdmitSubmission(ctx context.Context, assignmentID, candidateID string, evidence []byte) (escrow.Submission, error) {
	candidate, err := c.store.GetUser(ctx, candidateID)
	if errors.Is(err, ledger.ErrUserNotFound) {
		return escrow.Submission{}, escrow.Validationf("unknown candidate %s", candidateID)
	}
	if err != nil {
		return escrow.Submission{}, err
	}
	if !escrow.CapabilitiesFor(candidate.Role).SubmitWork {
		return escrow.Submission{}, escrow.Validationf("role %s cannot submit work", candidate.Role)
	}

	a, err := c.store.GetAssignment(ctx, assignmentID)
	if errors.Is(err, ledger.ErrAssignmentNotFound) {
		return escrow.Submission{}, fmt.Errorf("assignment %s: %w", assignmentID, escrow.ErrNotFound)
	}
	if err != nil {
		return escrow.Submission{}, err
	}
	if escrow.Expired(a, time.Now()) {
		if _, err := c.store.UpdateAssignmentStatus(ctx, assignmentID, escrow.AssignmentActive, escrow.AssignmentExpired); err != nil {
			return escrow.Submission{}, err
		}
		return escrow.Submission{}, escrow.Conflictf("assignment %s has expired", assignmentID)
	}
	if a.DepositStatus != escrow.DepositConfirmed {
		return escrow.Submission{}, escrow.Conflictf("assignment %s deposit is %s", assignmentID, a.DepositStatus)
	}
	if a.ChainJobID == nil {
		return escrow.Submission{}, escrow.Conflictf("assignment %s has no escrow on chain", assignmentID)
	}
	st, err := c.chain.GetAssignment(ctx, *a.ChainJobID)
	if err != nil {
		return escrow.Submission{}, &escrow.ChainError{Op: "get_assignment", Err: err}
	}
	if st.Status != chain.StateOpen {
		return escrow.Submission{}, escrow.Conflictf("assignment %s is %s on chain", assignmentID, st.Status)
	}

	var evidenceRef string
	if len(evidence) > 0 {
		evidenceRef, err = c.content.Put(ctx, evidence)
		if err != nil {
			return escrow.Submission{}, fmt.Errorf("store evidence: %w", err)
		}
	}

	sub, err := c.store.AdmitSubmission(ctx, escrow.Submission{
		ID:           newID("SUB"),
		AssignmentID: assignmentID,
		CandidateID:  candidateID,
		EvidenceRef:  evidenceRef,
		Status:       escrow.SubmissionPending,
		CreatedAt:    time.Now(),
	})
	switch {
	case errors.Is(err, ledger.ErrSlotUnavailable):
		return escrow.Submission{}, escrow.Conflictf("no submission slot available on assignment %s", assignmentID)
	case errors.Is(err, ledger.ErrDuplicateEntry):
		return escrow.Submission{}, escrow.Conflictf("candidate %s already submitted to assignment %s", candidateID, assignmentID)
	case errors.Is(err, ledger.ErrAssignmentNotFound):
		return escrow.Submission{}, fmt.Errorf("assignment %s: %w", assignmentID, escrow.ErrNotFound)
	case err != nil:
		return escrow.Submission{}, err
	}

	idx, err := c.chain.RegisterSubmission(ctx, *a.ChainJobID, candidateID)
	if err != nil {
		// Slot is held; registration is retried by RetryRegistration.
		log.Printf("chain registration for submission %s failed: %v", sub.ID, err)
		return sub, nil
	}
	if _, err := c.store.SetChainSubmission(ctx, sub.ID, idx); err != nil {
		return sub, err
	}
	return c.GetSubmission(ctx, sub.ID)
}

// RetryRegistration completes a submission whose chain registration failed at
// admission time.
func (c *ClaimCoordinator) RetryRegistration(ctx context.Context, submissionID string) (escrow.Submission, error) {
	sub, err := c.GetSubmission(ctx, submissionID)
	if err != nil {
		return escrow.Submission{}, err
	}
	if sub.ChainSubmissionID != nil {
		return sub, nil
	}
	a, err := c.store.GetAssignment(ctx, sub.AssignmentID)
	if err != nil {
		return sub, err
	}
	if a.ChainJobID == nil {
		return sub, escrow.Conflictf("assignment %s has no escrow on chain", a.ID)
	}
	idx, err := c.chain.RegisterSubmission(ctx, *a.ChainJobID, sub.CandidateID)
	if err != nil {
		return sub, &escrow.ChainError{Op: "register_submission", Err: err}
	}
	if _, err := c.store.SetChainSubmission(ctx, submissionID, idx); err != nil {
		return sub, err
	}
	return c.GetSubmission(ctx, submissionID)
}

// ClaimForReview attaches a reviewer to a submission. Re-claiming by the
// holder is a no-op; any other contender loses with a conflict.
func (c *ClaimCoordinator) ClaimForReview(ctx context.Context, submissionID, reviewerID string) (escrow.Submission, error) {
	reviewer, err := c.store.GetUser(ctx, reviewerID)
	if errors.Is(err, ledger.ErrUserNotFound) {
		return escrow.Submission{}, escrow.Validationf("unknown reviewer %s", reviewerID)
	}
	if err != nil {
		return escrow.Submission{}, err
	}
	if !escrow.CapabilitiesFor(reviewer.Role).ReviewSubmissions {
		return escrow.Submission{}, escrow.Validationf("role %s cannot review submissions", reviewer.Role)
	}

	err = c.store.AssignReviewer(ctx, submissionID, reviewerID)
	switch {
	case err == nil:
		return c.GetSubmission(ctx, submissionID)
	case errors.Is(err, ledger.ErrSubmissionNotFound):
		return escrow.Submission{}, fmt.Errorf("submission %s: %w", submissionID, escrow.ErrNotFound)
	case errors.Is(err, ledger.ErrAlreadyClaimed):
		sub, getErr := c.GetSubmission(ctx, submissionID)
		if getErr == nil && sub.AssignedReviewer == reviewerID {
			return sub, nil
		}
		return escrow.Submission{}, escrow.Conflictf("submission %s is already claimed", submissionID)
	case errors.Is(err, ledger.ErrNotClaimable):
		return escrow.Submission{}, escrow.Conflictf("submission %s is not awaiting review", submissionID)
	default:
		return escrow.Submission{}, err
	}
}

// GetSubmission reads one submission.
func (c *ClaimCoordinator) GetSubmission(ctx context.Context, id string) (escrow.Submission, error) {
	sub, err := c.store.GetSubmission(ctx, id)
	if errors.Is(err, ledger.ErrSubmissionNotFound) {
		return escrow.Submission{}, fmt.Errorf("submission %s: %w", id, escrow.ErrNotFound)
	}
	return sub, err
}

// ListSubmissions lists submissions matching the filter.
func (c *ClaimCoordinator) ListSubmissions(ctx context.Context, f escrow.SubmissionFilter) ([]escrow.Submission, error) {
	return c.store.ListSubmissions(ctx, f)
}
