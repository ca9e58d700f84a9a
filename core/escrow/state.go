package escrow

import "time"

var assignmentTransitions = map[string][]string{
	AssignmentDraft:      {AssignmentActive, AssignmentCancelled},
	AssignmentActive:     {AssignmentInProgress, AssignmentCompleted, AssignmentCancelled, AssignmentExpired},
	AssignmentInProgress: {AssignmentCompleted},
	AssignmentCompleted:  nil,
	AssignmentCancelled:  nil,
	AssignmentExpired:    nil,
}

var submissionTransitions = map[string][]string{
	SubmissionPending:        {SubmissionAwaitingReview, SubmissionRejected},
	SubmissionAwaitingReview: {SubmissionUnderReview, SubmissionVerified, SubmissionApproved, SubmissionRejected},
	SubmissionUnderReview:    {SubmissionVerified, SubmissionRejected},
	SubmissionVerified:       {SubmissionApproved, SubmissionRejected},
	SubmissionApproved:       nil,
	SubmissionRejected:       nil,
}

// CanTransitionAssignment reports whether an assignment may move from one
// status to another.
func CanTransitionAssignment(from, to string) bool {
	for _, s := range assignmentTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// CanTransitionSubmission reports whether a submission may move from one
// status to another.
func CanTransitionSubmission(from, to string) bool {
	for _, s := range submissionTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// SubmissionTerminal reports whether a submission status admits no further
// transitions.
func SubmissionTerminal(status string) bool {
	return status == SubmissionApproved || status == SubmissionRejected
}

// Expired reports whether an active assignment has outlived its deadline.
// Expiry is observed lazily: callers that see true should flip the stored
// status with a guarded update rather than trust this in-memory view.
func Expired(a Assignment, now time.Time) bool {
	return a.Status == AssignmentActive && !a.ExpiresAt.IsZero() && now.After(a.ExpiresAt)
}
