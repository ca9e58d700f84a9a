package services

import (
	"context"
	"testing"
	"time"

	"talentbridge-backend/chain"
	"talentbridge-backend/core/escrow"
)

// seedUnconfirmed creates a ledger row linked to a real contract slot whose
// deposit confirmation never landed.
func seedUnconfirmed(t *testing.T, env *testEnv) escrow.Assignment {
	t.Helper()
	ctx := context.Background()
	index, txRef, err := env.chain.CreateAssignment(ctx, chain.CreateAssignmentParams{
		Owner: "rec-1", Reward: 5000, MaxSubmissions: 1, Expiry: time.Now().Add(time.Hour),
	})
	if err != nil {
		t.Fatalf("chain create: %v", err)
	}
	a := escrow.Assignment{
		ID:             newID("ASG"),
		RecruiterID:    "rec-1",
		Title:          "stuck deposit",
		RewardAmount:   5000,
		MaxSubmissions: 1,
		DepositStatus:  escrow.DepositUnconfirmed,
		Status:         escrow.AssignmentDraft,
		ExpiresAt:      time.Now().Add(time.Hour),
	}
	if err := env.store.CreateAssignment(ctx, a); err != nil {
		t.Fatalf("create: %v", err)
	}
	if ok, err := env.store.SetChainJob(ctx, a.ID, index, txRef); err != nil || !ok {
		t.Fatalf("set chain job: ok=%v err=%v", ok, err)
	}
	return a
}

// seedOrphan creates a ledger row pointing at a contract slot that was never
// allocated.
func seedOrphan(t *testing.T, env *testEnv) escrow.Assignment {
	t.Helper()
	ctx := context.Background()
	a := escrow.Assignment{
		ID:             newID("ASG"),
		RecruiterID:    "rec-1",
		Title:          "phantom escrow",
		RewardAmount:   5000,
		MaxSubmissions: 1,
		DepositStatus:  escrow.DepositUnconfirmed,
		Status:         escrow.AssignmentDraft,
		ExpiresAt:      time.Now().Add(time.Hour),
	}
	if err := env.store.CreateAssignment(ctx, a); err != nil {
		t.Fatalf("create: %v", err)
	}
	if ok, err := env.store.SetChainJob(ctx, a.ID, 9999, "0xlost"); err != nil || !ok {
		t.Fatalf("set chain job: ok=%v err=%v", ok, err)
	}
	return a
}

func TestReconcileClassification(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	healthy := env.postAssignment(t, 1, false)
	orphan := seedOrphan(t, env)
	stuck := seedUnconfirmed(t, env)
	diverged := env.postAssignment(t, 1, false)
	env.chain.SetStatus(*diverged.ChainJobID, chain.StateExpired)

	report, err := env.reconciler.Run(ctx)
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if report.Checked != 4 {
		t.Errorf("expected 4 checked rows, got %d", report.Checked)
	}

	kinds := map[string]string{}
	for _, f := range report.Findings {
		kinds[f.AssignmentID] = f.Kind
		if !f.Repaired {
			t.Errorf("finding for %s not repaired", f.AssignmentID)
		}
	}
	if kinds[orphan.ID] != escrow.DriftOrphan {
		t.Errorf("orphan misclassified: %q", kinds[orphan.ID])
	}
	if kinds[stuck.ID] != escrow.DriftStuckPending {
		t.Errorf("stuck deposit misclassified: %q", kinds[stuck.ID])
	}
	if kinds[diverged.ID] != escrow.DriftStatus {
		t.Errorf("divergence misclassified: %q", kinds[diverged.ID])
	}
	if _, ok := kinds[healthy.ID]; ok {
		t.Errorf("healthy assignment flagged: %s", kinds[healthy.ID])
	}
	if report.Mutations != 3 {
		t.Errorf("expected 3 mutations, got %d", report.Mutations)
	}

	t.Run("RepairsApplied", func(t *testing.T) {
		got, _ := env.store.GetAssignment(ctx, orphan.ID)
		if got.DepositStatus != escrow.DepositOrphaned || got.Status != escrow.AssignmentCancelled {
			t.Errorf("orphan not repaired: %s/%s", got.DepositStatus, got.Status)
		}
		got, _ = env.store.GetAssignment(ctx, stuck.ID)
		if got.DepositStatus != escrow.DepositConfirmed || got.Status != escrow.AssignmentActive {
			t.Errorf("stuck deposit not repaired: %s/%s", got.DepositStatus, got.Status)
		}
		if got.DepositTxRef != "recovered" {
			t.Errorf("promoted deposit should record a recovered tx ref, got %q", got.DepositTxRef)
		}
		got, _ = env.store.GetAssignment(ctx, diverged.ID)
		if got.Status != escrow.AssignmentExpired {
			t.Errorf("divergence not repaired: %s", got.Status)
		}
	})

	t.Run("SecondRunIsQuiet", func(t *testing.T) {
		report, err := env.reconciler.Run(ctx)
		if err != nil {
			t.Fatalf("reconcile: %v", err)
		}
		if report.Mutations != 0 {
			t.Errorf("repeated run mutated %d rows", report.Mutations)
		}
		for _, f := range report.Findings {
			if f.Kind == escrow.DriftOrphan {
				t.Errorf("repaired orphan reported again: %s", f.AssignmentID)
			}
		}
	})
}

func TestInspectDoesNotRepair(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	orphan := seedOrphan(t, env)

	report, err := env.reconciler.Inspect(ctx)
	if err != nil {
		t.Fatalf("inspect: %v", err)
	}
	if report.Mutations != 0 {
		t.Errorf("inspect mutated %d rows", report.Mutations)
	}
	if len(report.Findings) != 1 || report.Findings[0].Kind != escrow.DriftOrphan {
		t.Fatalf("orphan not reported: %+v", report.Findings)
	}
	got, _ := env.store.GetAssignment(ctx, orphan.ID)
	if got.DepositStatus != escrow.DepositUnconfirmed {
		t.Errorf("inspect changed deposit status to %s", got.DepositStatus)
	}
}

func TestReconcileResumesApprovals(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	a := env.postAssignment(t, 1, false)
	sub := env.admit(t, a.ID, "cand-1")

	env.chain.FailMint = 1
	if _, err := env.approvals.ApproveSubmission(ctx, sub.ID, 90); !escrow.IsPartialFailure(err) {
		t.Fatal("expected partial failure")
	}

	report, err := env.reconciler.Run(ctx)
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if report.Resumed != 1 {
		t.Errorf("expected one resumed approval, got %d", report.Resumed)
	}
	got, _ := env.claims.GetSubmission(ctx, sub.ID)
	if got.Status != escrow.SubmissionApproved {
		t.Errorf("submission not settled by reconcile: %s", got.Status)
	}
}

func TestReconcileChainOutage(t *testing.T) {
	env := newTestEnv(t)
	rec := NewReconciler(env.store, downChain{}, env.approvals)
	_, err := rec.Run(context.Background())
	if !escrow.IsChain(err) {
		t.Errorf("expected chain error when counter is unreadable, got %v", err)
	}
}

type downChain struct{}

func (downChain) CreateAssignment(ctx context.Context, p chain.CreateAssignmentParams) (uint64, string, error) {
	return 0, "", context.DeadlineExceeded
}
func (downChain) RegisterSubmission(ctx context.Context, a uint64, s string) (uint64, error) {
	return 0, context.DeadlineExceeded
}
func (downChain) UpdateVerification(ctx context.Context, s uint64, score int, release bool) (string, error) {
	return "", context.DeadlineExceeded
}
func (downChain) MintCertificate(ctx context.Context, s uint64) (uint64, string, error) {
	return 0, "", context.DeadlineExceeded
}
func (downChain) Refund(ctx context.Context, a uint64) (string, error) {
	return "", context.DeadlineExceeded
}
func (downChain) AssignmentCounter(ctx context.Context) (uint64, error) {
	return 0, context.DeadlineExceeded
}
func (downChain) GetAssignment(ctx context.Context, i uint64) (chain.AssignmentState, error) {
	return chain.AssignmentState{}, context.DeadlineExceeded
}
func (downChain) GetSubmission(ctx context.Context, i uint64) (chain.SubmissionState, error) {
	return chain.SubmissionState{}, context.DeadlineExceeded
}
