package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"talentbridge-backend/core/escrow"
	"talentbridge-backend/storage/ledger"
)

// minReviewNotes is the minimum length of the written rationale.
const minReviewNotes = 20

// ReviewService records reviewer verdicts and settles reviewer fees.
type ReviewService struct {
	store     ledger.Store
	feeAmount int64
}

func NewReviewService(store ledger.Store, feeAmount int64) *ReviewService {
	return &ReviewService{store: store, feeAmount: feeAmount}
}

// SubmitReview files the claiming reviewer's verdict and moves the submission
// to verified or rejected. The fee becomes owed regardless of verdict.
func (s *ReviewService) SubmitReview(ctx context.Context, submissionID, reviewerID, verdict string, confidence int, notes string) (escrow.Review, error) {
	if verdict != escrow.VerdictApprove && verdict != escrow.VerdictReject {
		return escrow.Review{}, escrow.Validationf("verdict must be approve or reject, got %q", verdict)
	}
	if confidence < 0 || confidence > 100 {
		return escrow.Review{}, escrow.Validationf("confidence must be within 0..100, got %d", confidence)
	}
	if len(strings.TrimSpace(notes)) < minReviewNotes {
		return escrow.Review{}, escrow.Validationf("review notes must be at least %d characters", minReviewNotes)
	}

	sub, err := s.store.GetSubmission(ctx, submissionID)
	if errors.Is(err, ledger.ErrSubmissionNotFound) {
		return escrow.Review{}, fmt.Errorf("submission %s: %w", submissionID, escrow.ErrNotFound)
	}
	if err != nil {
		return escrow.Review{}, err
	}
	if sub.AssignedReviewer != reviewerID {
		return escrow.Review{}, escrow.Validationf("reviewer %s does not hold the claim on submission %s", reviewerID, submissionID)
	}

	target := escrow.SubmissionVerified
	if verdict == escrow.VerdictReject {
		target = escrow.SubmissionRejected
	}
	ok, err := s.store.UpdateSubmissionStatus(ctx, submissionID, escrow.SubmissionUnderReview, target)
	if err != nil {
		return escrow.Review{}, err
	}
	if !ok {
		return escrow.Review{}, escrow.Conflictf("submission %s is not under review", submissionID)
	}

	r := escrow.Review{
		ID:            newID("REV"),
		SubmissionID:  submissionID,
		ReviewerID:    reviewerID,
		Verdict:       verdict,
		Confidence:    confidence,
		Notes:         notes,
		FeeAmount:     s.feeAmount,
		PaymentStatus: escrow.FeePending,
		CreatedAt:     time.Now(),
	}
	if err := s.store.CreateReview(ctx, r); err != nil {
		return escrow.Review{}, err
	}
	return r, nil
}

// SettleReviewerFee pays the reviewer exactly once. The fee tx ref is derived
// from the review id, so a retried settlement cannot double-pay.
func (s *ReviewService) SettleReviewerFee(ctx context.Context, reviewID string) (escrow.Review, error) {
	r, err := s.store.GetReview(ctx, reviewID)
	if errors.Is(err, ledger.ErrReviewNotFound) {
		return escrow.Review{}, fmt.Errorf("review %s: %w", reviewID, escrow.ErrNotFound)
	}
	if err != nil {
		return escrow.Review{}, err
	}
	if r.PaymentStatus == escrow.FeePaid {
		return r, nil
	}

	txRef := "fee-" + reviewID
	ok, err := s.store.SettleReviewFee(ctx, reviewID, txRef)
	if err != nil {
		return r, err
	}
	if ok {
		if _, err := s.store.CreatePayment(ctx, escrow.Payment{
			ID:           "PAY-" + txRef,
			PayeeID:      r.ReviewerID,
			Amount:       r.FeeAmount,
			SubmissionID: r.SubmissionID,
			TxRef:        txRef,
		}); err != nil {
			return r, err
		}
	}
	return s.store.GetReview(ctx, reviewID)
}

// GetReview reads one review.
func (s *ReviewService) GetReview(ctx context.Context, id string) (escrow.Review, error) {
	r, err := s.store.GetReview(ctx, id)
	if errors.Is(err, ledger.ErrReviewNotFound) {
		return escrow.Review{}, fmt.Errorf("review %s: %w", id, escrow.ErrNotFound)
	}
	return r, err
}

// ListReviews lists reviews for a submission.
func (s *ReviewService) ListReviews(ctx context.Context, submissionID string) ([]escrow.Review, error) {
	return s.store.ListReviews(ctx, submissionID)
}
