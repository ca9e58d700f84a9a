package ledger

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"talentbridge-backend/core/escrow"
)

func seedAssignment(t *testing.T, store *MemoryStore, id string, slots int) escrow.Assignment {
	t.Helper()
	ctx := context.Background()
	a := escrow.Assignment{
		ID:             id,
		RecruiterID:    "rec-1",
		Title:          "build a parser",
		RewardAmount:   50000,
		Currency:       "USD",
		MaxSubmissions: slots,
		DepositStatus:  escrow.DepositUnconfirmed,
		Status:         escrow.AssignmentDraft,
		ExpiresAt:      time.Now().Add(24 * time.Hour),
	}
	if err := store.CreateAssignment(ctx, a); err != nil {
		t.Fatalf("create assignment: %v", err)
	}
	if ok, err := store.SetChainJob(ctx, id, 1, "0xdeposit"); err != nil || !ok {
		t.Fatalf("set chain job: ok=%v err=%v", ok, err)
	}
	if ok, err := store.ConfirmDeposit(ctx, id, ""); err != nil || !ok {
		t.Fatalf("confirm deposit: ok=%v err=%v", ok, err)
	}
	got, err := store.GetAssignment(ctx, id)
	if err != nil {
		t.Fatalf("get assignment: %v", err)
	}
	return got
}

func TestDepositLifecycle(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	a := seedAssignment(t, store, "ASG-1", 3)

	if a.Status != escrow.AssignmentActive {
		t.Errorf("expected active after confirm, got %s", a.Status)
	}
	if a.DepositStatus != escrow.DepositConfirmed {
		t.Errorf("expected confirmed deposit, got %s", a.DepositStatus)
	}

	t.Run("ConfirmIsOneShot", func(t *testing.T) {
		ok, err := store.ConfirmDeposit(ctx, "ASG-1", "")
		if err != nil {
			t.Fatalf("confirm: %v", err)
		}
		if ok {
			t.Error("second confirm should not apply")
		}
	})

	t.Run("ChainJobSetOnce", func(t *testing.T) {
		ok, err := store.SetChainJob(ctx, "ASG-1", 99, "0xother")
		if err != nil {
			t.Fatalf("set chain job: %v", err)
		}
		if ok {
			t.Error("chain job must not be overwritten")
		}
		got, _ := store.GetAssignment(ctx, "ASG-1")
		if got.ChainJobID == nil || *got.ChainJobID != 1 {
			t.Errorf("chain job id changed: %v", got.ChainJobID)
		}
	})

	t.Run("OrphanCancelsOnce", func(t *testing.T) {
		ok, err := store.MarkDepositOrphaned(ctx, "ASG-1")
		if err != nil || !ok {
			t.Fatalf("orphan: ok=%v err=%v", ok, err)
		}
		got, _ := store.GetAssignment(ctx, "ASG-1")
		if got.DepositStatus != escrow.DepositOrphaned || got.Status != escrow.AssignmentCancelled {
			t.Errorf("expected orphaned/cancelled, got %s/%s", got.DepositStatus, got.Status)
		}
		ok, err = store.MarkDepositOrphaned(ctx, "ASG-1")
		if err != nil {
			t.Fatalf("orphan again: %v", err)
		}
		if ok {
			t.Error("second orphan mark should be a no-op")
		}
	})
}

func TestAdmitSubmissionCap(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	seedAssignment(t, store, "ASG-1", 2)

	for i := 0; i < 2; i++ {
		_, err := store.AdmitSubmission(ctx, escrow.Submission{
			ID:           fmt.Sprintf("SUB-%d", i),
			AssignmentID: "ASG-1",
			CandidateID:  fmt.Sprintf("cand-%d", i),
		})
		if err != nil {
			t.Fatalf("admit %d: %v", i, err)
		}
	}

	_, err := store.AdmitSubmission(ctx, escrow.Submission{
		ID: "SUB-over", AssignmentID: "ASG-1", CandidateID: "cand-over",
	})
	if !errors.Is(err, ErrSlotUnavailable) {
		t.Errorf("expected ErrSlotUnavailable, got %v", err)
	}

	_, err = store.AdmitSubmission(ctx, escrow.Submission{
		ID: "SUB-dup", AssignmentID: "ASG-1", CandidateID: "cand-0",
	})
	if !errors.Is(err, ErrDuplicateEntry) {
		t.Errorf("expected ErrDuplicateEntry, got %v", err)
	}

	a, _ := store.GetAssignment(ctx, "ASG-1")
	if a.CurrentSubmissions != 2 {
		t.Errorf("counter should stay at cap, got %d", a.CurrentSubmissions)
	}
	if a.Status != escrow.AssignmentInProgress {
		t.Errorf("expected in_progress after first admission, got %s", a.Status)
	}
}

func TestAdmitAfterTerminalSubmission(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	seedAssignment(t, store, "ASG-1", 3)

	if _, err := store.AdmitSubmission(ctx, escrow.Submission{
		ID: "SUB-1", AssignmentID: "ASG-1", CandidateID: "cand-1",
	}); err != nil {
		t.Fatalf("admit: %v", err)
	}
	if ok, err := store.UpdateSubmissionStatus(ctx, "SUB-1", escrow.SubmissionPending, escrow.SubmissionRejected); err != nil || !ok {
		t.Fatalf("reject: ok=%v err=%v", ok, err)
	}

	if _, err := store.AdmitSubmission(ctx, escrow.Submission{
		ID: "SUB-2", AssignmentID: "ASG-1", CandidateID: "cand-1",
	}); err != nil {
		t.Fatalf("readmit after rejection: %v", err)
	}

	_, err := store.AdmitSubmission(ctx, escrow.Submission{
		ID: "SUB-3", AssignmentID: "ASG-1", CandidateID: "cand-1",
	})
	if !errors.Is(err, ErrDuplicateEntry) {
		t.Errorf("expected ErrDuplicateEntry while a submission is open, got %v", err)
	}
	a, _ := store.GetAssignment(ctx, "ASG-1")
	if a.CurrentSubmissions != 2 {
		t.Errorf("each admission consumes a slot, got %d", a.CurrentSubmissions)
	}
}

func TestAdmitSubmissionConcurrent(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	const slots = 3
	const racers = 20
	seedAssignment(t, store, "ASG-1", slots)

	var wg sync.WaitGroup
	errs := make([]error, racers)
	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = store.AdmitSubmission(ctx, escrow.Submission{
				ID:           fmt.Sprintf("SUB-%d", i),
				AssignmentID: "ASG-1",
				CandidateID:  fmt.Sprintf("cand-%d", i),
			})
		}(i)
	}
	wg.Wait()

	admitted := 0
	for _, err := range errs {
		if err == nil {
			admitted++
		} else if !errors.Is(err, ErrSlotUnavailable) {
			t.Errorf("unexpected error: %v", err)
		}
	}
	if admitted != slots {
		t.Errorf("expected exactly %d admissions, got %d", slots, admitted)
	}
	a, _ := store.GetAssignment(ctx, "ASG-1")
	if a.CurrentSubmissions != slots {
		t.Errorf("counter overshoot: %d", a.CurrentSubmissions)
	}
	subs, _ := store.ListSubmissions(ctx, escrow.SubmissionFilter{AssignmentID: "ASG-1"})
	if len(subs) != slots {
		t.Errorf("expected %d submission rows, got %d", slots, len(subs))
	}
}

func TestAssignReviewerConcurrent(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	seedAssignment(t, store, "ASG-1", 1)
	if _, err := store.AdmitSubmission(ctx, escrow.Submission{
		ID: "SUB-1", AssignmentID: "ASG-1", CandidateID: "cand-1",
	}); err != nil {
		t.Fatalf("admit: %v", err)
	}
	if ok, err := store.SetChainSubmission(ctx, "SUB-1", 7); err != nil || !ok {
		t.Fatalf("set chain submission: ok=%v err=%v", ok, err)
	}

	const racers = 10
	var wg sync.WaitGroup
	errs := make([]error, racers)
	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = store.AssignReviewer(ctx, "SUB-1", fmt.Sprintf("rev-%d", i))
		}(i)
	}
	wg.Wait()

	winners := 0
	for _, err := range errs {
		if err == nil {
			winners++
		} else if !errors.Is(err, ErrAlreadyClaimed) {
			t.Errorf("unexpected error: %v", err)
		}
	}
	if winners != 1 {
		t.Errorf("expected exactly one claim winner, got %d", winners)
	}
	sub, _ := store.GetSubmission(ctx, "SUB-1")
	if sub.Status != escrow.SubmissionUnderReview || sub.AssignedReviewer == "" {
		t.Errorf("claim result inconsistent: status=%s reviewer=%q", sub.Status, sub.AssignedReviewer)
	}
}

func TestAssignReviewerRequiresAwaitingReview(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	seedAssignment(t, store, "ASG-1", 1)
	if _, err := store.AdmitSubmission(ctx, escrow.Submission{
		ID: "SUB-1", AssignmentID: "ASG-1", CandidateID: "cand-1",
	}); err != nil {
		t.Fatalf("admit: %v", err)
	}
	// Still pending: no chain submission index recorded yet.
	err := store.AssignReviewer(ctx, "SUB-1", "rev-1")
	if !errors.Is(err, ErrNotClaimable) {
		t.Errorf("expected ErrNotClaimable, got %v", err)
	}
}

func TestMirrorApprovalIdempotent(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	seedAssignment(t, store, "ASG-1", 1)
	if _, err := store.AdmitSubmission(ctx, escrow.Submission{
		ID: "SUB-1", AssignmentID: "ASG-1", CandidateID: "cand-1",
	}); err != nil {
		t.Fatalf("admit: %v", err)
	}

	p := MirrorParams{
		SubmissionID: "SUB-1",
		AssignmentID: "ASG-1",
		CandidateID:  "cand-1",
		RecruiterID:  "rec-1",
		TxRef:        "0xsettle1",
		TokenID:      1001,
		MintTxRef:    "0xmint1",
		Amount:       47500,
		IssuedAt:     time.Now(),
	}
	for i := 0; i < 3; i++ {
		if err := store.MirrorApproval(ctx, p); err != nil {
			t.Fatalf("mirror run %d: %v", i, err)
		}
	}

	payments, _ := store.ListPayments(ctx, "SUB-1")
	if len(payments) != 1 {
		t.Fatalf("expected exactly one payment, got %d", len(payments))
	}
	if payments[0].Amount != 47500 || payments[0].TxRef != "0xsettle1" {
		t.Errorf("payment fields wrong: %+v", payments[0])
	}
	cert, err := store.GetCertificateBySubmission(ctx, "SUB-1")
	if err != nil {
		t.Fatalf("certificate: %v", err)
	}
	if cert.TokenID != 1001 {
		t.Errorf("token id: %d", cert.TokenID)
	}
	sub, _ := store.GetSubmission(ctx, "SUB-1")
	if sub.Status != escrow.SubmissionApproved || !sub.RewardPaid || !sub.IsWinner {
		t.Errorf("submission not settled: %+v", sub)
	}

	// A different settlement ref for the same submission must be refused.
	p.TxRef = "0xsettle2"
	if err := store.MirrorApproval(ctx, p); err == nil {
		t.Error("expected mismatch error for conflicting settlement ref")
	}
}

func TestCompleteAssignmentIfSettled(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	seedAssignment(t, store, "ASG-1", 2)
	for i := 0; i < 2; i++ {
		if _, err := store.AdmitSubmission(ctx, escrow.Submission{
			ID:           fmt.Sprintf("SUB-%d", i),
			AssignmentID: "ASG-1",
			CandidateID:  fmt.Sprintf("cand-%d", i),
		}); err != nil {
			t.Fatalf("admit %d: %v", i, err)
		}
	}

	ok, err := store.CompleteAssignmentIfSettled(ctx, "ASG-1")
	if err != nil {
		t.Fatalf("settle check: %v", err)
	}
	if ok {
		t.Error("should not complete while submissions are open")
	}

	if _, err := store.UpdateSubmissionStatus(ctx, "SUB-0", escrow.SubmissionPending, escrow.SubmissionRejected); err != nil {
		t.Fatalf("reject: %v", err)
	}
	if err := store.MirrorApproval(ctx, MirrorParams{
		SubmissionID: "SUB-1", AssignmentID: "ASG-1", CandidateID: "cand-1",
		RecruiterID: "rec-1", TxRef: "0xsettle", TokenID: 1, Amount: 100, IssuedAt: time.Now(),
	}); err != nil {
		t.Fatalf("mirror: %v", err)
	}

	ok, err = store.CompleteAssignmentIfSettled(ctx, "ASG-1")
	if err != nil || !ok {
		t.Fatalf("expected completion: ok=%v err=%v", ok, err)
	}
	a, _ := store.GetAssignment(ctx, "ASG-1")
	if a.Status != escrow.AssignmentCompleted {
		t.Errorf("expected completed, got %s", a.Status)
	}
}

func TestCreatePaymentIdempotent(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	p := escrow.Payment{ID: "PAY-1", PayeeID: "rev-1", Amount: 500, TxRef: "fee-REV-1"}
	ok, err := store.CreatePayment(ctx, p)
	if err != nil || !ok {
		t.Fatalf("first payment: ok=%v err=%v", ok, err)
	}
	ok, err = store.CreatePayment(ctx, p)
	if err != nil {
		t.Fatalf("second payment: %v", err)
	}
	if ok {
		t.Error("duplicate tx ref must not insert")
	}
	out, _ := store.ListPayments(ctx, "")
	if len(out) != 1 {
		t.Errorf("expected one payment, got %d", len(out))
	}
}
