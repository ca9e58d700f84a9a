package services

import (
	"context"
	"testing"

	"talentbridge-backend/chain"
	"talentbridge-backend/core/escrow"
)

func TestAdmitSubmission(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	a := env.postAssignment(t, 2, false)

	t.Run("HappyPath", func(t *testing.T) {
		sub := env.admit(t, a.ID, "cand-1")
		if sub.Status != escrow.SubmissionAwaitingReview {
			t.Errorf("expected awaiting_review after registration, got %s", sub.Status)
		}
		if sub.ChainSubmissionID == nil {
			t.Error("chain submission id not recorded")
		}
		if sub.EvidenceRef == "" {
			t.Error("evidence ref not recorded")
		}
	})

	t.Run("DuplicateCandidate", func(t *testing.T) {
		_, err := env.claims.AdmitSubmission(ctx, a.ID, "cand-1", nil)
		if !escrow.IsConflict(err) {
			t.Errorf("expected conflict, got %v", err)
		}
	})

	t.Run("SlotCap", func(t *testing.T) {
		env.admit(t, a.ID, "cand-2")
		_, err := env.claims.AdmitSubmission(ctx, a.ID, "cand-3", nil)
		if !escrow.IsConflict(err) {
			t.Errorf("expected conflict once slots are gone, got %v", err)
		}
	})

	t.Run("RecruiterCannotSubmit", func(t *testing.T) {
		_, err := env.claims.AdmitSubmission(ctx, a.ID, "rec-1", nil)
		if !escrow.IsValidation(err) {
			t.Errorf("expected validation error, got %v", err)
		}
	})
}

func TestResubmitAfterRejection(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	a := env.postAssignment(t, 3, false)
	sub := env.admit(t, a.ID, "cand-1")

	if _, err := env.approvals.RejectSubmission(ctx, sub.ID); err != nil {
		t.Fatalf("reject: %v", err)
	}

	again, err := env.claims.AdmitSubmission(ctx, a.ID, "cand-1", []byte("second attempt"))
	if err != nil {
		t.Fatalf("rejection should free the candidate to resubmit: %v", err)
	}
	if again.ID == sub.ID {
		t.Error("resubmission should be a fresh row")
	}

	// The open resubmission now holds the duplicate guard.
	if _, err := env.claims.AdmitSubmission(ctx, a.ID, "cand-1", nil); !escrow.IsConflict(err) {
		t.Errorf("expected conflict while a submission is open, got %v", err)
	}
}

func TestAdmitChecksLiveChainStatus(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	a := env.postAssignment(t, 3, false)

	// Ledger still says active, but the contract was cancelled out of band.
	env.chain.SetStatus(*a.ChainJobID, chain.StateCancelled)

	_, err := env.claims.AdmitSubmission(ctx, a.ID, "cand-1", nil)
	if !escrow.IsConflict(err) {
		t.Fatalf("expected conflict from live chain check, got %v", err)
	}
	got, _ := env.assignments.GetAssignment(ctx, a.ID)
	if got.CurrentSubmissions != 0 {
		t.Errorf("no slot should be consumed, got %d", got.CurrentSubmissions)
	}
}

func TestRetryRegistration(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	a := env.postAssignment(t, 1, false)

	// Admission succeeds but registration never reaches the contract.
	failingAdmit := NewClaimCoordinator(env.store, failingChain{env.chain}, nil)
	sub, err := failingAdmit.AdmitSubmission(ctx, a.ID, "cand-1", nil)
	if err != nil {
		t.Fatalf("admit: %v", err)
	}
	if sub.ChainSubmissionID != nil || sub.Status != escrow.SubmissionPending {
		t.Fatalf("expected pending unregistered submission, got %+v", sub)
	}

	got, err := env.claims.RetryRegistration(ctx, sub.ID)
	if err != nil {
		t.Fatalf("retry: %v", err)
	}
	if got.ChainSubmissionID == nil || got.Status != escrow.SubmissionAwaitingReview {
		t.Errorf("retry did not complete registration: %+v", got)
	}

	// A second retry is a no-op.
	again, err := env.claims.RetryRegistration(ctx, sub.ID)
	if err != nil {
		t.Fatalf("second retry: %v", err)
	}
	if *again.ChainSubmissionID != *got.ChainSubmissionID {
		t.Error("retry must not register twice")
	}
}

// failingChain fails submission registration only.
type failingChain struct {
	*chain.MockClient
}

func (f failingChain) RegisterSubmission(ctx context.Context, assignmentIndex uint64, submitter string) (uint64, error) {
	return 0, context.DeadlineExceeded
}

func TestClaimForReview(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	a := env.postAssignment(t, 2, false)
	sub := env.admit(t, a.ID, "cand-1")

	t.Run("FirstClaimWins", func(t *testing.T) {
		got, err := env.claims.ClaimForReview(ctx, sub.ID, "rev-1")
		if err != nil {
			t.Fatalf("claim: %v", err)
		}
		if got.Status != escrow.SubmissionUnderReview || got.AssignedReviewer != "rev-1" {
			t.Errorf("claim result wrong: %+v", got)
		}
	})

	t.Run("HolderReclaimIsNoop", func(t *testing.T) {
		got, err := env.claims.ClaimForReview(ctx, sub.ID, "rev-1")
		if err != nil {
			t.Fatalf("re-claim by holder: %v", err)
		}
		if got.AssignedReviewer != "rev-1" {
			t.Errorf("holder lost the claim: %+v", got)
		}
	})

	t.Run("SecondReviewerConflicts", func(t *testing.T) {
		_, err := env.claims.ClaimForReview(ctx, sub.ID, "rev-2")
		if !escrow.IsConflict(err) {
			t.Errorf("expected conflict, got %v", err)
		}
	})

	t.Run("CandidateCannotClaim", func(t *testing.T) {
		_, err := env.claims.ClaimForReview(ctx, sub.ID, "cand-2")
		if !escrow.IsValidation(err) {
			t.Errorf("expected validation error, got %v", err)
		}
	})
}
