package services

import (
	"context"
	"testing"

	"talentbridge-backend/core/escrow"
)

// Full lifecycle over a three-slot assignment: one submission settles through
// peer review, one is approved directly by the recruiter, one is rejected.
func TestMarketplaceLifecycle(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	a := env.postAssignment(t, 3, false)

	s1 := env.admit(t, a.ID, "cand-1")
	s2 := env.admit(t, a.ID, "cand-2")
	s3 := env.admit(t, a.ID, "cand-3")

	// Fourth candidate finds the slots gone.
	if _, err := env.claims.AdmitSubmission(ctx, a.ID, "cand-4", nil); !escrow.IsConflict(err) {
		t.Fatalf("expected slot conflict, got %v", err)
	}

	// Peer review path for the first submission.
	if _, err := env.claims.ClaimForReview(ctx, s1.ID, "rev-1"); err != nil {
		t.Fatalf("claim: %v", err)
	}
	review, err := env.reviews.SubmitReview(ctx, s1.ID, "rev-1", escrow.VerdictApprove, 85, goodNotes)
	if err != nil {
		t.Fatalf("review: %v", err)
	}
	if _, err := env.approvals.ApproveSubmission(ctx, s1.ID, 85); err != nil {
		t.Fatalf("approve reviewed submission: %v", err)
	}
	if _, err := env.reviews.SettleReviewerFee(ctx, review.ID); err != nil {
		t.Fatalf("settle fee: %v", err)
	}

	// Direct recruiter approval for the second.
	if _, err := env.approvals.ApproveSubmission(ctx, s2.ID, 90); err != nil {
		t.Fatalf("approve: %v", err)
	}

	// Third is rejected.
	if _, err := env.approvals.RejectSubmission(ctx, s3.ID); err != nil {
		t.Fatalf("reject: %v", err)
	}

	// All slots settled: the assignment closes itself.
	got, err := env.assignments.GetAssignment(ctx, a.ID)
	if err != nil {
		t.Fatalf("get assignment: %v", err)
	}
	if got.Status != escrow.AssignmentCompleted {
		t.Errorf("expected completed, got %s", got.Status)
	}
	if got.CurrentSubmissions != 3 {
		t.Errorf("expected 3 consumed slots, got %d", got.CurrentSubmissions)
	}

	// Two reward payments plus one reviewer fee, no duplicates.
	all, _ := env.store.ListPayments(ctx, "")
	rewards, fees := 0, 0
	for _, p := range all {
		switch {
		case p.PayeeID == "rev-1":
			fees++
		default:
			rewards++
			if p.Amount != 95000 {
				t.Errorf("reward payment after 5%% fee should be 95000, got %d", p.Amount)
			}
		}
	}
	if rewards != 2 || fees != 1 {
		t.Errorf("expected 2 rewards and 1 fee, got %d/%d", rewards, fees)
	}

	// Both winners hold certificates; the rejected candidate holds none.
	for _, id := range []string{s1.ID, s2.ID} {
		if _, err := env.store.GetCertificateBySubmission(ctx, id); err != nil {
			t.Errorf("certificate for %s: %v", id, err)
		}
	}
	if _, err := env.store.GetCertificateBySubmission(ctx, s3.ID); err == nil {
		t.Error("rejected submission must not hold a certificate")
	}

	// A reconcile pass over the settled marketplace finds nothing to do.
	report, err := env.reconciler.Run(ctx)
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if report.Mutations != 0 || report.Resumed != 0 {
		t.Errorf("settled state should reconcile clean: %+v", report)
	}
}
