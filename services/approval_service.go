package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"talentbridge-backend/chain"
	"talentbridge-backend/core/escrow"
	"talentbridge-backend/storage/ledger"
)

// ApprovalOrchestrator drives the settlement pipeline for an approved
// submission: release the reward through the contract, mint the certificate,
// mirror both into the ledger. Each step is checkpointed so a crash or a
// mid-pipeline failure resumes from the last completed step instead of
// re-running chain calls that already moved value.
type ApprovalOrchestrator struct {
	store          ledger.Store
	chain          chain.Client
	autoThreshold  int
	platformFeeBps int64
}

func NewApprovalOrchestrator(store ledger.Store, chainClient chain.Client, autoThreshold int, platformFeeBps int64) *ApprovalOrchestrator {
	return &ApprovalOrchestrator{
		store:          store,
		chain:          chainClient,
		autoThreshold:  autoThreshold,
		platformFeeBps: platformFeeBps,
	}
}

// ApproveSubmission submits a verification score. A score at or above the
// threshold commits to releasing the reward; once the verification transaction
// is recorded the decision is irrevocable, and re-invocations resume from the
// checkpoint and converge on a fully mirrored settlement. A sub-threshold
// score records the verification only and releases nothing.
func (o *ApprovalOrchestrator) ApproveSubmission(ctx context.Context, submissionID string, score int) (escrow.Submission, error) {
	if score < 0 || score > 100 {
		return escrow.Submission{}, escrow.Validationf("score must be within 0..100, got %d", score)
	}
	sub, err := o.getSubmission(ctx, submissionID)
	if err != nil {
		return escrow.Submission{}, err
	}
	switch sub.Status {
	case escrow.SubmissionApproved:
		o.closeCheckpointIfOpen(ctx, submissionID)
		return sub, nil
	case escrow.SubmissionRejected:
		return sub, escrow.Conflictf("submission %s was rejected", submissionID)
	case escrow.SubmissionUnderReview:
		return sub, escrow.Conflictf("submission %s is under peer review", submissionID)
	case escrow.SubmissionPending:
		return sub, escrow.Conflictf("submission %s is not registered on chain", submissionID)
	}
	if sub.ChainSubmissionID == nil {
		return sub, escrow.Conflictf("submission %s is not registered on chain", submissionID)
	}

	a, err := o.store.GetAssignment(ctx, sub.AssignmentID)
	if err != nil {
		return sub, err
	}

	cp, err := o.store.GetCheckpoint(ctx, submissionID)
	if errors.Is(err, ledger.ErrCheckpointNotFound) {
		cp = escrow.ApprovalCheckpoint{SubmissionID: submissionID, Score: score}
	} else if err != nil {
		return sub, err
	} else {
		// A prior run already carries the binding score.
		score = cp.Score
	}

	if cp.VerificationTxRef == "" {
		if score < o.autoThreshold {
			// Sub-threshold scores are recorded on chain without a release;
			// the submission only becomes verified and settles later when a
			// qualifying score arrives.
			if _, err := o.chain.UpdateVerification(ctx, *sub.ChainSubmissionID, score, false); err != nil {
				return sub, &escrow.ChainError{Op: "update_verification", Err: err}
			}
			if sub.Status == escrow.SubmissionAwaitingReview {
				if _, err := o.store.UpdateSubmissionStatus(ctx, submissionID, sub.Status, escrow.SubmissionVerified); err != nil {
					return sub, err
				}
			}
			return o.getSubmission(ctx, submissionID)
		}
		txRef, err := o.chain.UpdateVerification(ctx, *sub.ChainSubmissionID, score, true)
		if err != nil {
			return sub, &escrow.ChainError{Op: "update_verification", Err: err}
		}
		cp.Score = score
		cp.VerificationTxRef = txRef
		if err := o.store.SaveCheckpoint(ctx, cp); err != nil {
			return sub, &escrow.PartialFailureError{SubmissionID: submissionID, Step: "record_verification", Err: err}
		}
	}

	if cp.MintTxRef == "" {
		tokenID, mintRef, err := o.chain.MintCertificate(ctx, *sub.ChainSubmissionID)
		if err != nil {
			return sub, &escrow.PartialFailureError{SubmissionID: submissionID, Step: "mint_certificate", Err: err}
		}
		cp.TokenID = tokenID
		cp.MintTxRef = mintRef
		if err := o.store.SaveCheckpoint(ctx, cp); err != nil {
			return sub, &escrow.PartialFailureError{SubmissionID: submissionID, Step: "record_mint", Err: err}
		}
	}

	if cp.MirroredAt == nil {
		amount := a.RewardAmount - a.RewardAmount*o.platformFeeBps/10000
		err := o.store.MirrorApproval(ctx, ledger.MirrorParams{
			SubmissionID: submissionID,
			AssignmentID: a.ID,
			CandidateID:  sub.CandidateID,
			RecruiterID:  a.RecruiterID,
			TxRef:        cp.VerificationTxRef,
			TokenID:      cp.TokenID,
			MintTxRef:    cp.MintTxRef,
			Amount:       amount,
			IssuedAt:     time.Now(),
		})
		if err != nil {
			return sub, &escrow.PartialFailureError{SubmissionID: submissionID, Step: "ledger_mirror", Err: err}
		}
		now := time.Now()
		cp.MirroredAt = &now
		if err := o.store.SaveCheckpoint(ctx, cp); err != nil {
			// Mirror landed; the open checkpoint is re-closed on resume.
			log.Printf("closing checkpoint for %s failed: %v", submissionID, err)
		}
		if _, err := o.store.CompleteAssignmentIfSettled(ctx, a.ID); err != nil {
			log.Printf("settle check for assignment %s failed: %v", a.ID, err)
		}
	}
	return o.getSubmission(ctx, submissionID)
}

// ScoreSubmission handles automated verification: on auto-verify assignments
// a score at or above the threshold releases the reward immediately; lower
// scores leave the submission awaiting a peer review claim.
func (o *ApprovalOrchestrator) ScoreSubmission(ctx context.Context, submissionID string, score int) (escrow.Submission, error) {
	if score < 0 || score > 100 {
		return escrow.Submission{}, escrow.Validationf("score must be within 0..100, got %d", score)
	}
	sub, err := o.getSubmission(ctx, submissionID)
	if err != nil {
		return escrow.Submission{}, err
	}
	if sub.Status != escrow.SubmissionAwaitingReview {
		return sub, escrow.Conflictf("submission %s is %s, not awaiting review", submissionID, sub.Status)
	}
	a, err := o.store.GetAssignment(ctx, sub.AssignmentID)
	if err != nil {
		return sub, err
	}
	if a.AutoVerify && score >= o.autoThreshold {
		return o.ApproveSubmission(ctx, submissionID, score)
	}
	return sub, nil
}

// RejectSubmission refuses a submission. Rejection is only possible while no
// chain release was initiated; afterwards the reward is gone and the outcome
// cannot be reversed.
func (o *ApprovalOrchestrator) RejectSubmission(ctx context.Context, submissionID string) (escrow.Submission, error) {
	sub, err := o.getSubmission(ctx, submissionID)
	if err != nil {
		return escrow.Submission{}, err
	}
	if sub.Status == escrow.SubmissionRejected {
		return sub, nil
	}
	if sub.Status == escrow.SubmissionApproved || sub.RewardPaid {
		return sub, escrow.Conflictf("submission %s already had its reward released", submissionID)
	}
	cp, err := o.store.GetCheckpoint(ctx, submissionID)
	if err == nil && cp.VerificationTxRef != "" {
		return sub, escrow.Conflictf("release for submission %s is already in flight", submissionID)
	}
	if err != nil && !errors.Is(err, ledger.ErrCheckpointNotFound) {
		return sub, err
	}
	if !escrow.CanTransitionSubmission(sub.Status, escrow.SubmissionRejected) {
		return sub, escrow.Conflictf("submission %s is %s and cannot be rejected", submissionID, sub.Status)
	}
	ok, err := o.store.UpdateSubmissionStatus(ctx, submissionID, sub.Status, escrow.SubmissionRejected)
	if err != nil {
		return sub, err
	}
	if !ok {
		return sub, escrow.Conflictf("submission %s changed state during rejection", submissionID)
	}
	if _, err := o.store.CompleteAssignmentIfSettled(ctx, sub.AssignmentID); err != nil {
		log.Printf("settle check for assignment %s failed: %v", sub.AssignmentID, err)
	}
	return o.getSubmission(ctx, submissionID)
}

// ResumeApproval re-drives a checkpointed pipeline from its recorded score.
func (o *ApprovalOrchestrator) ResumeApproval(ctx context.Context, submissionID string) (escrow.Submission, error) {
	cp, err := o.store.GetCheckpoint(ctx, submissionID)
	if errors.Is(err, ledger.ErrCheckpointNotFound) {
		return escrow.Submission{}, escrow.Validationf("no approval checkpoint for submission %s", submissionID)
	}
	if err != nil {
		return escrow.Submission{}, err
	}
	return o.ApproveSubmission(ctx, submissionID, cp.Score)
}

// ResumePending re-drives every open checkpoint and returns how many reached
// a fully mirrored settlement.
func (o *ApprovalOrchestrator) ResumePending(ctx context.Context) (int, error) {
	cps, err := o.store.ListPendingRepairs(ctx)
	if err != nil {
		return 0, err
	}
	resumed := 0
	for _, cp := range cps {
		if _, err := o.ApproveSubmission(ctx, cp.SubmissionID, cp.Score); err != nil {
			log.Printf("resume approval for %s failed: %v", cp.SubmissionID, err)
			continue
		}
		resumed++
	}
	return resumed, nil
}

func (o *ApprovalOrchestrator) closeCheckpointIfOpen(ctx context.Context, submissionID string) {
	cp, err := o.store.GetCheckpoint(ctx, submissionID)
	if err != nil || cp.MirroredAt != nil {
		return
	}
	now := time.Now()
	cp.MirroredAt = &now
	if err := o.store.SaveCheckpoint(ctx, cp); err != nil {
		log.Printf("closing checkpoint for %s failed: %v", submissionID, err)
	}
}

func (o *ApprovalOrchestrator) getSubmission(ctx context.Context, id string) (escrow.Submission, error) {
	sub, err := o.store.GetSubmission(ctx, id)
	if errors.Is(err, ledger.ErrSubmissionNotFound) {
		return escrow.Submission{}, fmt.Errorf("submission %s: %w", id, escrow.ErrNotFound)
	}
	return sub, err
}
