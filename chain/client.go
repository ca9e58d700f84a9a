// Package chain is the typed boundary to the escrow contract. Implementations
// translate calls into contract transactions and queries; they carry no
// marketplace business logic.
package chain

import (
	"context"
	"time"
)

// Contract-side assignment statuses.
const (
	StateOpen      = "open"
	StateCompleted = "completed"
	StateCancelled = "cancelled"
	StateExpired   = "expired"
)

// AssignmentState mirrors the on-chain record for one escrowed assignment.
// A zero Owner means the slot at that index was never written.
type AssignmentState struct {
	Index           uint64    `json:"index"`
	Owner           string    `json:"owner"`
	Reward          int64     `json:"reward"`
	MaxSubmissions  int       `json:"max_submissions"`
	SubmissionCount int       `json:"submission_count"`
	Status          string    `json:"status"` // open | completed | cancelled | expired
	Expiry          time.Time `json:"expiry"`
}

// SubmissionState mirrors the on-chain record for one submission.
type SubmissionState struct {
	Index           uint64 `json:"index"`
	AssignmentIndex uint64 `json:"assignment_index"`
	Submitter       string `json:"submitter"`
	Score           int    `json:"score"`
	Approved        bool   `json:"approved"`
	Paid            bool   `json:"paid"`
}

// CreateAssignmentParams carries everything the contract needs to open an
// escrowed assignment and lock its reward.
type CreateAssignmentParams struct {
	Owner          string
	Title          string
	MetadataRef    string
	Reward         int64
	MaxSubmissions int
	AutoVerify     bool
	Expiry         time.Time
}

// Client talks to the escrow contract.
type Client interface {
	// CreateAssignment opens an assignment and escrows its reward. The
	// returned index is the contract's slot for the assignment.
	CreateAssignment(ctx context.Context, p CreateAssignmentParams) (index uint64, txRef string, err error)

	// RegisterSubmission appends a submission under an assignment.
	RegisterSubmission(ctx context.Context, assignmentIndex uint64, submitter string) (submissionIndex uint64, err error)

	// UpdateVerification records a score; when release is set the contract
	// also pays the submitter from escrow.
	UpdateVerification(ctx context.Context, submissionIndex uint64, score int, release bool) (txRef string, err error)

	// MintCertificate mints the credential token for an approved submission.
	// Minting is idempotent per submission index.
	MintCertificate(ctx context.Context, submissionIndex uint64) (tokenID uint64, txRef string, err error)

	// Refund returns the unspent escrow remainder to the assignment owner.
	Refund(ctx context.Context, assignmentIndex uint64) (txRef string, err error)

	// AssignmentCounter returns the highest assignment index ever allocated.
	AssignmentCounter(ctx context.Context) (uint64, error)

	GetAssignment(ctx context.Context, index uint64) (AssignmentState, error)
	GetSubmission(ctx context.Context, index uint64) (SubmissionState, error)
}
