// Package ledger persists the platform's mirror of marketplace state. Every
// status-changing write is a guarded compare-and-set: the store reports
// whether the guard held so callers can classify lost races.
package ledger

import (
	"context"
	"time"

	"talentbridge-backend/core/escrow"
)

// Err is a storage-level error string.
type Err string

func (e Err) Error() string { return string(e) }

var (
	ErrUserNotFound       = Err("user not found")
	ErrAssignmentNotFound = Err("assignment not found")
	ErrSubmissionNotFound = Err("submission not found")
	ErrReviewNotFound     = Err("review not found")
	ErrCheckpointNotFound = Err("approval checkpoint not found")
	ErrSlotUnavailable    = Err("no submission slot available")
	ErrDuplicateEntry     = Err("candidate already submitted to assignment")
	ErrAlreadyClaimed     = Err("submission already claimed by a reviewer")
	ErrNotClaimable       = Err("submission not awaiting review")
)

// MirrorParams carries everything needed to mirror a settled approval into the
// ledger in one idempotent step, keyed by the verification transaction ref.
type MirrorParams struct {
	SubmissionID string
	AssignmentID string
	CandidateID  string
	RecruiterID  string
	TxRef        string
	TokenID      uint64
	MintTxRef    string
	Amount       int64
	IssuedAt     time.Time
}

// Store is the ledger persistence boundary. Methods returning (bool, error)
// report whether the guarded write applied; false with a nil error means the
// guard did not hold.
type Store interface {
	// Users.
	CreateUser(ctx context.Context, u escrow.User) error
	GetUser(ctx context.Context, id string) (escrow.User, error)

	// Assignments.
	CreateAssignment(ctx context.Context, a escrow.Assignment) error
	GetAssignment(ctx context.Context, id string) (escrow.Assignment, error)
	ListAssignments(ctx context.Context, f escrow.AssignmentFilter) ([]escrow.Assignment, error)
	// SetChainJob records the contract index and deposit tx once; the guard
	// is an empty chain_job_id.
	SetChainJob(ctx context.Context, id string, chainJobID uint64, txRef string) (bool, error)
	// ConfirmDeposit promotes unconfirmed -> confirmed and draft -> active.
	ConfirmDeposit(ctx context.Context, id, txRef string) (bool, error)
	// MarkDepositOrphaned flags a deposit whose recorded chain index does not
	// exist on chain, and cancels the assignment.
	MarkDepositOrphaned(ctx context.Context, id string) (bool, error)
	UpdateAssignmentStatus(ctx context.Context, id, from, to string) (bool, error)
	// CompleteAssignmentIfSettled closes an assignment whose slots are
	// exhausted and whose submissions all reached a terminal status.
	CompleteAssignmentIfSettled(ctx context.Context, id string) (bool, error)

	// Submissions. AdmitSubmission checks the slot cap, bumps the counter and
	// inserts the row as one atomic step; it returns ErrSlotUnavailable when
	// the cap is reached and ErrDuplicateEntry when the candidate still holds
	// a non-terminal submission on the assignment.
	AdmitSubmission(ctx context.Context, sub escrow.Submission) (escrow.Submission, error)
	GetSubmission(ctx context.Context, id string) (escrow.Submission, error)
	ListSubmissions(ctx context.Context, f escrow.SubmissionFilter) ([]escrow.Submission, error)
	// SetChainSubmission records the contract submission index and promotes
	// pending -> awaiting_review.
	SetChainSubmission(ctx context.Context, id string, chainSubmissionID uint64) (bool, error)
	// AssignReviewer claims a submission for review; the guard is status
	// awaiting_review with no reviewer attached. Returns ErrAlreadyClaimed
	// when another reviewer holds the claim.
	AssignReviewer(ctx context.Context, submissionID, reviewerID string) error
	UpdateSubmissionStatus(ctx context.Context, id, from, to string) (bool, error)

	// Reviews.
	CreateReview(ctx context.Context, r escrow.Review) error
	GetReview(ctx context.Context, id string) (escrow.Review, error)
	ListReviews(ctx context.Context, submissionID string) ([]escrow.Review, error)
	// SettleReviewFee flips pending -> paid once and records the fee tx ref.
	SettleReviewFee(ctx context.Context, reviewID, txRef string) (bool, error)

	// Approval checkpoints.
	SaveCheckpoint(ctx context.Context, cp escrow.ApprovalCheckpoint) error
	GetCheckpoint(ctx context.Context, submissionID string) (escrow.ApprovalCheckpoint, error)
	// ListPendingRepairs returns checkpoints whose chain steps ran but whose
	// ledger mirror never landed.
	ListPendingRepairs(ctx context.Context) ([]escrow.ApprovalCheckpoint, error)

	// MirrorApproval applies the approved outcome to the submission row and
	// inserts the certificate and payment. Re-running with the same tx ref is
	// a no-op.
	MirrorApproval(ctx context.Context, p MirrorParams) error

	// Certificates and payments.
	GetCertificateBySubmission(ctx context.Context, submissionID string) (escrow.Certificate, error)
	RevokeCertificate(ctx context.Context, submissionID string) (bool, error)
	// CreatePayment records a transfer once per tx ref; false means the ref
	// was already recorded.
	CreatePayment(ctx context.Context, p escrow.Payment) (bool, error)
	ListPayments(ctx context.Context, submissionID string) ([]escrow.Payment, error)

	Close()
}
