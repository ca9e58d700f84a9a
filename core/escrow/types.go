package escrow

import "time"

// Assignment lifecycle statuses.
const (
	AssignmentDraft      = "draft"
	AssignmentActive     = "active"
	AssignmentInProgress = "in_progress"
	AssignmentCompleted  = "completed"
	AssignmentCancelled  = "cancelled"
	AssignmentExpired    = "expired"
)

// Deposit statuses for the escrowed reward backing an assignment.
const (
	DepositUnconfirmed = "unconfirmed"
	DepositConfirmed   = "confirmed"
	DepositOrphaned    = "orphaned"
)

// Submission lifecycle statuses.
const (
	SubmissionPending        = "pending"
	SubmissionAwaitingReview = "awaiting_review"
	SubmissionUnderReview    = "under_review"
	SubmissionVerified       = "verified"
	SubmissionApproved       = "approved"
	SubmissionRejected       = "rejected"
)

// Review verdicts and fee payment statuses.
const (
	VerdictApprove = "approve"
	VerdictReject  = "reject"

	FeePending = "pending"
	FeePaid    = "paid"
)

// Assignment is an escrowed work posting by a recruiter. The reward is locked
// in the escrow contract when the deposit is confirmed; candidates compete for
// a bounded number of submission slots.
type Assignment struct {
	ID                 string    `json:"id"`
	RecruiterID        string    `json:"recruiter_id"`
	Title              string    `json:"title"`
	RewardAmount       int64     `json:"reward_amount"`
	Currency           string    `json:"currency"`
	MaxSubmissions     int       `json:"max_submissions"`
	CurrentSubmissions int       `json:"current_submissions"`
	AutoVerify         bool      `json:"auto_verify"`
	MetadataRef        string    `json:"metadata_ref,omitempty"`
	ChainJobID         *uint64   `json:"chain_job_id,omitempty"`
	DepositStatus      string    `json:"deposit_status"` // unconfirmed | confirmed | orphaned
	DepositTxRef       string    `json:"deposit_tx_ref,omitempty"`
	Status             string    `json:"status"` // draft | active | in_progress | completed | cancelled | expired
	ExpiresAt          time.Time `json:"expires_at"`
	CreatedAt          time.Time `json:"created_at"`
}

// Submission is one candidate's entry for an assignment slot.
type Submission struct {
	ID                 string    `json:"id"`
	AssignmentID       string    `json:"assignment_id"`
	CandidateID        string    `json:"candidate_id"`
	EvidenceRef        string    `json:"evidence_ref,omitempty"`
	ChainSubmissionID  *uint64   `json:"chain_submission_id,omitempty"`
	Status             string    `json:"status"` // pending | awaiting_review | under_review | verified | approved | rejected
	AssignedReviewer   string    `json:"assigned_reviewer,omitempty"`
	IsWinner           bool      `json:"is_winner"`
	RewardPaid         bool      `json:"reward_paid"`
	SettlementTxRef    string    `json:"settlement_tx_ref,omitempty"`
	CertificateMinted  bool      `json:"certificate_minted"`
	CertificateTokenID *uint64   `json:"certificate_token_id,omitempty"`
	CreatedAt          time.Time `json:"created_at"`
}

// Review is a reviewer's verdict on a claimed submission. The fee is owed to
// the reviewer regardless of verdict and settled exactly once.
type Review struct {
	ID            string    `json:"id"`
	SubmissionID  string    `json:"submission_id"`
	ReviewerID    string    `json:"reviewer_id"`
	Verdict       string    `json:"verdict"` // approve | reject
	Confidence    int       `json:"confidence"`
	Notes         string    `json:"notes"`
	FeeAmount     int64     `json:"fee_amount"`
	PaymentStatus string    `json:"payment_status"` // pending | paid
	FeeTxRef      string    `json:"fee_tx_ref,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

// Certificate mirrors the credential token minted for an approved submission.
type Certificate struct {
	ID           string     `json:"id"`
	UserID       string     `json:"user_id"`
	SubmissionID string     `json:"submission_id"`
	TokenID      uint64     `json:"token_id"`
	MintTxRef    string     `json:"mint_tx_ref,omitempty"`
	IssuedAt     time.Time  `json:"issued_at"`
	RevokedAt    *time.Time `json:"revoked_at,omitempty"`
}

// Payment is the ledger record of a completed value transfer. TxRef is the
// idempotency key: a transfer reference is recorded at most once.
type Payment struct {
	ID           string    `json:"id"`
	PayerID      string    `json:"payer_id,omitempty"`
	PayeeID      string    `json:"payee_id"`
	Amount       int64     `json:"amount"`
	SubmissionID string    `json:"submission_id,omitempty"`
	TxRef        string    `json:"tx_ref"`
	Status       string    `json:"status"`
	CreatedAt    time.Time `json:"created_at"`
}

// ApprovalCheckpoint records how far a submission's approval pipeline has
// advanced. A checkpoint with a verification reference but no mirror timestamp
// is a pending repair: value may have moved on chain without a ledger mirror.
type ApprovalCheckpoint struct {
	SubmissionID      string     `json:"submission_id"`
	Score             int        `json:"score"`
	VerificationTxRef string     `json:"verification_tx_ref,omitempty"`
	TokenID           uint64     `json:"token_id,omitempty"`
	MintTxRef         string     `json:"mint_tx_ref,omitempty"`
	MirroredAt        *time.Time `json:"mirrored_at,omitempty"`
	UpdatedAt         time.Time  `json:"updated_at"`
}

// AssignmentFilter narrows assignment listings. Zero fields match everything.
type AssignmentFilter struct {
	RecruiterID string
	Status      string
	ChainLinked bool // only rows holding an on-chain job id
}

// SubmissionFilter narrows submission listings.
type SubmissionFilter struct {
	AssignmentID string
	CandidateID  string
	Status       string
}

// Drift kinds reported by the reconciliation engine.
const (
	DriftOrphan       = "orphan"
	DriftStuckPending = "stuck_pending"
	DriftStatus       = "status_divergence"
)

// DriftFinding describes one ledger/chain divergence and whether it was repaired.
type DriftFinding struct {
	AssignmentID string `json:"assignment_id"`
	ChainJobID   uint64 `json:"chain_job_id"`
	Kind         string `json:"kind"` // orphan | stuck_pending | status_divergence
	Detail       string `json:"detail,omitempty"`
	Repaired     bool   `json:"repaired"`
}

// ReconcileReport summarizes one reconciliation run.
type ReconcileReport struct {
	ChainCounter uint64         `json:"chain_counter"`
	Checked      int            `json:"checked"`
	Findings     []DriftFinding `json:"findings"`
	Mutations    int            `json:"mutations"`
	Resumed      int            `json:"resumed_approvals"`
	RanAt        time.Time      `json:"ran_at"`
}
