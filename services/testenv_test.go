package services

import (
	"context"
	"testing"
	"time"

	"talentbridge-backend/chain"
	"talentbridge-backend/content"
	"talentbridge-backend/core/escrow"
	"talentbridge-backend/storage/ledger"
)

type testEnv struct {
	store       *ledger.MemoryStore
	chain       *chain.MockClient
	assignments *AssignmentService
	claims      *ClaimCoordinator
	reviews     *ReviewService
	approvals   *ApprovalOrchestrator
	reconciler  *Reconciler
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	store := ledger.NewMemoryStore()
	mock := chain.NewMockClient()
	blobs := content.NewMemoryStore()
	approvals := NewApprovalOrchestrator(store, mock, 80, 500)
	env := &testEnv{
		store:       store,
		chain:       mock,
		assignments: NewAssignmentService(store, mock, blobs),
		claims:      NewClaimCoordinator(store, mock, blobs),
		reviews:     NewReviewService(store, 500),
		approvals:   approvals,
		reconciler:  NewReconciler(store, mock, approvals),
	}
	ctx := context.Background()
	for _, u := range []escrow.User{
		{ID: "rec-1", Handle: "acme-hiring", Role: escrow.RoleRecruiter},
		{ID: "cand-1", Handle: "alice", Role: escrow.RoleCandidate},
		{ID: "cand-2", Handle: "bob", Role: escrow.RoleCandidate},
		{ID: "cand-3", Handle: "carol", Role: escrow.RoleCandidate},
		{ID: "cand-4", Handle: "dave", Role: escrow.RoleCandidate},
		{ID: "rev-1", Handle: "senior-dev", Role: escrow.RoleReviewer},
		{ID: "rev-2", Handle: "staff-dev", Role: escrow.RoleReviewer},
		{ID: "admin-1", Handle: "ops", Role: escrow.RoleAdmin},
	} {
		if err := store.CreateUser(ctx, u); err != nil {
			t.Fatalf("seed user %s: %v", u.ID, err)
		}
	}
	return env
}

func (env *testEnv) postAssignment(t *testing.T, slots int, autoVerify bool) escrow.Assignment {
	t.Helper()
	a, err := env.assignments.PostAssignment(context.Background(), PostAssignmentParams{
		RecruiterID:    "rec-1",
		Title:          "implement rate limiter",
		Description:    "token bucket with burst support",
		RewardAmount:   100000,
		MaxSubmissions: slots,
		AutoVerify:     autoVerify,
		ExpiresAt:      time.Now().Add(48 * time.Hour),
	})
	if err != nil {
		t.Fatalf("post assignment: %v", err)
	}
	return a
}

func (env *testEnv) admit(t *testing.T, assignmentID, candidateID string) escrow.Submission {
	t.Helper()
	sub, err := env.claims.AdmitSubmission(context.Background(), assignmentID, candidateID, []byte("solution archive"))
	if err != nil {
		t.Fatalf("admit %s: %v", candidateID, err)
	}
	return sub
}
