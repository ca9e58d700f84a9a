package services

import (
	"context"
	"testing"
	"time"

	"talentbridge-backend/core/escrow"
)

func TestPostAssignment(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	t.Run("HappyPath", func(t *testing.T) {
		a := env.postAssignment(t, 3, false)
		if a.Status != escrow.AssignmentActive {
			t.Errorf("expected active, got %s", a.Status)
		}
		if a.DepositStatus != escrow.DepositConfirmed {
			t.Errorf("expected confirmed deposit, got %s", a.DepositStatus)
		}
		if a.ChainJobID == nil || *a.ChainJobID == 0 {
			t.Error("chain job id not recorded")
		}
		if a.DepositTxRef == "" {
			t.Error("deposit tx ref not recorded")
		}
		if a.MetadataRef == "" {
			t.Error("metadata ref not recorded")
		}
	})

	t.Run("Validation", func(t *testing.T) {
		cases := []struct {
			name string
			p    PostAssignmentParams
		}{
			{"EmptyTitle", PostAssignmentParams{RecruiterID: "rec-1", RewardAmount: 100, MaxSubmissions: 1, ExpiresAt: time.Now().Add(time.Hour)}},
			{"ZeroReward", PostAssignmentParams{RecruiterID: "rec-1", Title: "x", MaxSubmissions: 1, ExpiresAt: time.Now().Add(time.Hour)}},
			{"ZeroSlots", PostAssignmentParams{RecruiterID: "rec-1", Title: "x", RewardAmount: 100, ExpiresAt: time.Now().Add(time.Hour)}},
			{"PastExpiry", PostAssignmentParams{RecruiterID: "rec-1", Title: "x", RewardAmount: 100, MaxSubmissions: 1, ExpiresAt: time.Now().Add(-time.Hour)}},
			{"UnknownRecruiter", PostAssignmentParams{RecruiterID: "ghost", Title: "x", RewardAmount: 100, MaxSubmissions: 1, ExpiresAt: time.Now().Add(time.Hour)}},
			{"CandidateCannotPost", PostAssignmentParams{RecruiterID: "cand-1", Title: "x", RewardAmount: 100, MaxSubmissions: 1, ExpiresAt: time.Now().Add(time.Hour)}},
		}
		for _, tc := range cases {
			t.Run(tc.name, func(t *testing.T) {
				_, err := env.assignments.PostAssignment(ctx, tc.p)
				if !escrow.IsValidation(err) {
					t.Errorf("expected validation error, got %v", err)
				}
			})
		}
	})

	t.Run("ChainFailureLeavesDraft", func(t *testing.T) {
		env := newTestEnv(t)
		env.chain.FailCreate = 1
		_, err := env.assignments.PostAssignment(ctx, PostAssignmentParams{
			RecruiterID:    "rec-1",
			Title:          "doomed posting",
			RewardAmount:   100,
			MaxSubmissions: 1,
			ExpiresAt:      time.Now().Add(time.Hour),
		})
		if !escrow.IsChain(err) {
			t.Fatalf("expected chain error, got %v", err)
		}
		rows, _ := env.store.ListAssignments(ctx, escrow.AssignmentFilter{RecruiterID: "rec-1"})
		if len(rows) != 1 {
			t.Fatalf("expected one ledger row, got %d", len(rows))
		}
		if rows[0].Status != escrow.AssignmentDraft || rows[0].DepositStatus != escrow.DepositUnconfirmed {
			t.Errorf("row promoted despite chain failure: %s/%s", rows[0].Status, rows[0].DepositStatus)
		}
		if rows[0].ChainJobID != nil {
			t.Error("chain job id must stay empty when the contract call failed")
		}
	})
}

func TestAssignmentLazyExpiry(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	a := env.postAssignment(t, 1, false)

	// Force the stored deadline into the past.
	got, _ := env.store.GetAssignment(ctx, a.ID)
	got.ExpiresAt = time.Now().Add(-time.Minute)
	if err := env.store.CreateAssignment(ctx, got); err != nil {
		t.Fatalf("rewrite assignment: %v", err)
	}

	read, err := env.assignments.GetAssignment(ctx, a.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if read.Status != escrow.AssignmentExpired {
		t.Errorf("expected expired on read, got %s", read.Status)
	}

	_, err = env.claims.AdmitSubmission(ctx, a.ID, "cand-1", nil)
	if !escrow.IsConflict(err) {
		t.Errorf("admission to expired assignment should conflict, got %v", err)
	}
}

func TestCancelAssignment(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	a := env.postAssignment(t, 2, false)

	t.Run("OnlyOwnerOrAdmin", func(t *testing.T) {
		_, err := env.assignments.CancelAssignment(ctx, a.ID, "cand-1")
		if !escrow.IsValidation(err) {
			t.Errorf("expected validation error, got %v", err)
		}
	})

	t.Run("BlockedAfterAdmission", func(t *testing.T) {
		env := newTestEnv(t)
		a := env.postAssignment(t, 2, false)
		env.admit(t, a.ID, "cand-1")
		_, err := env.assignments.CancelAssignment(ctx, a.ID, "rec-1")
		if !escrow.IsConflict(err) {
			t.Errorf("expected conflict, got %v", err)
		}
	})

	t.Run("CancelRefunds", func(t *testing.T) {
		got, err := env.assignments.CancelAssignment(ctx, a.ID, "rec-1")
		if err != nil {
			t.Fatalf("cancel: %v", err)
		}
		if got.Status != escrow.AssignmentCancelled {
			t.Errorf("expected cancelled, got %s", got.Status)
		}
		st, err := env.chain.GetAssignment(ctx, *got.ChainJobID)
		if err != nil {
			t.Fatalf("chain read: %v", err)
		}
		if st.Status == "open" {
			t.Error("escrow should be refunded on cancel")
		}
	})
}

func TestCloseAssignment(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	a := env.postAssignment(t, 1, false)
	sub := env.admit(t, a.ID, "cand-1")

	_, err := env.assignments.CloseAssignment(ctx, a.ID, "rec-1")
	if !escrow.IsConflict(err) {
		t.Fatalf("close with open submission should conflict, got %v", err)
	}

	if _, err := env.approvals.RejectSubmission(ctx, sub.ID); err != nil {
		t.Fatalf("reject: %v", err)
	}
	// Rejection settles the only slot, so the assignment closes itself.
	got, err := env.assignments.GetAssignment(ctx, a.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != escrow.AssignmentCompleted {
		t.Errorf("expected completed after all outcomes settled, got %s", got.Status)
	}
}
