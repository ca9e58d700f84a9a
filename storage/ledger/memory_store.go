package ledger

import (
	"context"
	"sort"
	"sync"
	"time"

	"talentbridge-backend/core/escrow"
)

// MemoryStore keeps the full ledger in process memory behind one mutex. Guard
// evaluation and the guarded write happen inside a single critical section,
// matching the atomicity the Postgres store gets from conditional UPDATEs.
type MemoryStore struct {
	mu          sync.RWMutex
	users       map[string]escrow.User
	assignments map[string]escrow.Assignment
	submissions map[string]escrow.Submission
	reviews     map[string]escrow.Review
	checkpoints map[string]escrow.ApprovalCheckpoint
	certs       map[string]escrow.Certificate // keyed by submission id
	payments    map[string]escrow.Payment     // keyed by tx ref
	paymentSeq  []string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:       make(map[string]escrow.User),
		assignments: make(map[string]escrow.Assignment),
		submissions: make(map[string]escrow.Submission),
		reviews:     make(map[string]escrow.Review),
		checkpoints: make(map[string]escrow.ApprovalCheckpoint),
		certs:       make(map[string]escrow.Certificate),
		payments:    make(map[string]escrow.Payment),
	}
}

func cloneAssignment(a escrow.Assignment) escrow.Assignment {
	if a.ChainJobID != nil {
		v := *a.ChainJobID
		a.ChainJobID = &v
	}
	return a
}

func cloneSubmission(s escrow.Submission) escrow.Submission {
	if s.ChainSubmissionID != nil {
		v := *s.ChainSubmissionID
		s.ChainSubmissionID = &v
	}
	if s.CertificateTokenID != nil {
		v := *s.CertificateTokenID
		s.CertificateTokenID = &v
	}
	return s
}

func (m *MemoryStore) CreateUser(ctx context.Context, u escrow.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[u.ID] = u
	return nil
}

func (m *MemoryStore) GetUser(ctx context.Context, id string) (escrow.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.users[id]
	if !ok {
		return escrow.User{}, ErrUserNotFound
	}
	return u, nil
}

func (m *MemoryStore) CreateAssignment(ctx context.Context, a escrow.Assignment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now()
	}
	m.assignments[a.ID] = cloneAssignment(a)
	return nil
}

func (m *MemoryStore) GetAssignment(ctx context.Context, id string) (escrow.Assignment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.assignments[id]
	if !ok {
		return escrow.Assignment{}, ErrAssignmentNotFound
	}
	return cloneAssignment(a), nil
}

func (m *MemoryStore) ListAssignments(ctx context.Context, f escrow.AssignmentFilter) ([]escrow.Assignment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []escrow.Assignment
	for _, a := range m.assignments {
		if f.RecruiterID != "" && a.RecruiterID != f.RecruiterID {
			continue
		}
		if f.Status != "" && a.Status != f.Status {
			continue
		}
		if f.ChainLinked && a.ChainJobID == nil {
			continue
		}
		out = append(out, cloneAssignment(a))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *MemoryStore) SetChainJob(ctx context.Context, id string, chainJobID uint64, txRef string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.assignments[id]
	if !ok {
		return false, ErrAssignmentNotFound
	}
	if a.ChainJobID != nil {
		return false, nil
	}
	a.ChainJobID = &chainJobID
	a.DepositTxRef = txRef
	m.assignments[id] = a
	return true, nil
}

func (m *MemoryStore) ConfirmDeposit(ctx context.Context, id, txRef string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.assignments[id]
	if !ok {
		return false, ErrAssignmentNotFound
	}
	if a.DepositStatus != escrow.DepositUnconfirmed || a.ChainJobID == nil {
		return false, nil
	}
	a.DepositStatus = escrow.DepositConfirmed
	if txRef != "" {
		a.DepositTxRef = txRef
	}
	if a.Status == escrow.AssignmentDraft {
		a.Status = escrow.AssignmentActive
	}
	m.assignments[id] = a
	return true, nil
}

func (m *MemoryStore) MarkDepositOrphaned(ctx context.Context, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.assignments[id]
	if !ok {
		return false, ErrAssignmentNotFound
	}
	if a.DepositStatus == escrow.DepositOrphaned {
		return false, nil
	}
	a.DepositStatus = escrow.DepositOrphaned
	switch a.Status {
	case escrow.AssignmentDraft, escrow.AssignmentActive, escrow.AssignmentInProgress:
		a.Status = escrow.AssignmentCancelled
	}
	m.assignments[id] = a
	return true, nil
}

func (m *MemoryStore) UpdateAssignmentStatus(ctx context.Context, id, from, to string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.assignments[id]
	if !ok {
		return false, ErrAssignmentNotFound
	}
	if a.Status != from {
		return false, nil
	}
	a.Status = to
	m.assignments[id] = a
	return true, nil
}

func (m *MemoryStore) CompleteAssignmentIfSettled(ctx context.Context, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.assignments[id]
	if !ok {
		return false, ErrAssignmentNotFound
	}
	if a.Status != escrow.AssignmentActive && a.Status != escrow.AssignmentInProgress {
		return false, nil
	}
	if a.CurrentSubmissions < a.MaxSubmissions {
		return false, nil
	}
	for _, s := range m.submissions {
		if s.AssignmentID == id && !escrow.SubmissionTerminal(s.Status) {
			return false, nil
		}
	}
	a.Status = escrow.AssignmentCompleted
	m.assignments[id] = a
	return true, nil
}

func (m *MemoryStore) AdmitSubmission(ctx context.Context, sub escrow.Submission) (escrow.Submission, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.assignments[sub.AssignmentID]
	if !ok {
		return escrow.Submission{}, ErrAssignmentNotFound
	}
	// Only an open submission blocks the candidate; rejection frees them to
	// try again.
	for _, s := range m.submissions {
		if s.AssignmentID == sub.AssignmentID && s.CandidateID == sub.CandidateID &&
			!escrow.SubmissionTerminal(s.Status) {
			return escrow.Submission{}, ErrDuplicateEntry
		}
	}
	if a.Status != escrow.AssignmentActive && a.Status != escrow.AssignmentInProgress {
		return escrow.Submission{}, ErrSlotUnavailable
	}
	if a.CurrentSubmissions >= a.MaxSubmissions {
		return escrow.Submission{}, ErrSlotUnavailable
	}
	a.CurrentSubmissions++
	if a.Status == escrow.AssignmentActive {
		a.Status = escrow.AssignmentInProgress
	}
	m.assignments[sub.AssignmentID] = a

	if sub.Status == "" {
		sub.Status = escrow.SubmissionPending
	}
	if sub.CreatedAt.IsZero() {
		sub.CreatedAt = time.Now()
	}
	m.submissions[sub.ID] = cloneSubmission(sub)
	return cloneSubmission(sub), nil
}

func (m *MemoryStore) GetSubmission(ctx context.Context, id string) (escrow.Submission, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.submissions[id]
	if !ok {
		return escrow.Submission{}, ErrSubmissionNotFound
	}
	return cloneSubmission(s), nil
}

func (m *MemoryStore) ListSubmissions(ctx context.Context, f escrow.SubmissionFilter) ([]escrow.Submission, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []escrow.Submission
	for _, s := range m.submissions {
		if f.AssignmentID != "" && s.AssignmentID != f.AssignmentID {
			continue
		}
		if f.CandidateID != "" && s.CandidateID != f.CandidateID {
			continue
		}
		if f.Status != "" && s.Status != f.Status {
			continue
		}
		out = append(out, cloneSubmission(s))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *MemoryStore) SetChainSubmission(ctx context.Context, id string, chainSubmissionID uint64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.submissions[id]
	if !ok {
		return false, ErrSubmissionNotFound
	}
	if s.ChainSubmissionID != nil {
		return false, nil
	}
	s.ChainSubmissionID = &chainSubmissionID
	if s.Status == escrow.SubmissionPending {
		s.Status = escrow.SubmissionAwaitingReview
	}
	m.submissions[id] = s
	return true, nil
}

func (m *MemoryStore) AssignReviewer(ctx context.Context, submissionID, reviewerID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.submissions[submissionID]
	if !ok {
		return ErrSubmissionNotFound
	}
	if s.AssignedReviewer != "" {
		return ErrAlreadyClaimed
	}
	if s.Status != escrow.SubmissionAwaitingReview {
		return ErrNotClaimable
	}
	s.AssignedReviewer = reviewerID
	s.Status = escrow.SubmissionUnderReview
	m.submissions[submissionID] = s
	return nil
}

func (m *MemoryStore) UpdateSubmissionStatus(ctx context.Context, id, from, to string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.submissions[id]
	if !ok {
		return false, ErrSubmissionNotFound
	}
	if s.Status != from {
		return false, nil
	}
	s.Status = to
	m.submissions[id] = s
	return true, nil
}

func (m *MemoryStore) CreateReview(ctx context.Context, r escrow.Review) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now()
	}
	m.reviews[r.ID] = r
	return nil
}

func (m *MemoryStore) GetReview(ctx context.Context, id string) (escrow.Review, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.reviews[id]
	if !ok {
		return escrow.Review{}, ErrReviewNotFound
	}
	return r, nil
}

func (m *MemoryStore) ListReviews(ctx context.Context, submissionID string) ([]escrow.Review, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []escrow.Review
	for _, r := range m.reviews {
		if submissionID == "" || r.SubmissionID == submissionID {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *MemoryStore) SettleReviewFee(ctx context.Context, reviewID, txRef string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.reviews[reviewID]
	if !ok {
		return false, ErrReviewNotFound
	}
	if r.PaymentStatus != escrow.FeePending {
		return false, nil
	}
	r.PaymentStatus = escrow.FeePaid
	r.FeeTxRef = txRef
	m.reviews[reviewID] = r
	return true, nil
}

func (m *MemoryStore) SaveCheckpoint(ctx context.Context, cp escrow.ApprovalCheckpoint) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if cp.MirroredAt != nil {
		v := *cp.MirroredAt
		cp.MirroredAt = &v
	}
	cp.UpdatedAt = time.Now()
	m.checkpoints[cp.SubmissionID] = cp
	return nil
}

func (m *MemoryStore) GetCheckpoint(ctx context.Context, submissionID string) (escrow.ApprovalCheckpoint, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	cp, ok := m.checkpoints[submissionID]
	if !ok {
		return escrow.ApprovalCheckpoint{}, ErrCheckpointNotFound
	}
	return cp, nil
}

func (m *MemoryStore) ListPendingRepairs(ctx context.Context) ([]escrow.ApprovalCheckpoint, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []escrow.ApprovalCheckpoint
	for _, cp := range m.checkpoints {
		if cp.VerificationTxRef != "" && cp.MirroredAt == nil {
			out = append(out, cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SubmissionID < out[j].SubmissionID })
	return out, nil
}

func (m *MemoryStore) MirrorApproval(ctx context.Context, p MirrorParams) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.submissions[p.SubmissionID]
	if !ok {
		return ErrSubmissionNotFound
	}
	if s.SettlementTxRef != "" && s.SettlementTxRef != p.TxRef {
		return Err("settlement ref mismatch for submission " + p.SubmissionID)
	}
	s.Status = escrow.SubmissionApproved
	s.IsWinner = true
	s.RewardPaid = true
	s.SettlementTxRef = p.TxRef
	s.CertificateMinted = true
	token := p.TokenID
	s.CertificateTokenID = &token
	m.submissions[p.SubmissionID] = s

	if _, ok := m.certs[p.SubmissionID]; !ok {
		m.certs[p.SubmissionID] = escrow.Certificate{
			ID:           "CERT-" + p.SubmissionID,
			UserID:       p.CandidateID,
			SubmissionID: p.SubmissionID,
			TokenID:      p.TokenID,
			MintTxRef:    p.MintTxRef,
			IssuedAt:     p.IssuedAt,
		}
	}
	if _, ok := m.payments[p.TxRef]; !ok {
		m.payments[p.TxRef] = escrow.Payment{
			ID:           "PAY-" + p.TxRef,
			PayerID:      p.RecruiterID,
			PayeeID:      p.CandidateID,
			Amount:       p.Amount,
			SubmissionID: p.SubmissionID,
			TxRef:        p.TxRef,
			Status:       "completed",
			CreatedAt:    time.Now(),
		}
		m.paymentSeq = append(m.paymentSeq, p.TxRef)
	}
	return nil
}

func (m *MemoryStore) GetCertificateBySubmission(ctx context.Context, submissionID string) (escrow.Certificate, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.certs[submissionID]
	if !ok {
		return escrow.Certificate{}, escrow.ErrNotFound
	}
	return c, nil
}

func (m *MemoryStore) RevokeCertificate(ctx context.Context, submissionID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.certs[submissionID]
	if !ok {
		return false, escrow.ErrNotFound
	}
	if c.RevokedAt != nil {
		return false, nil
	}
	now := time.Now()
	c.RevokedAt = &now
	m.certs[submissionID] = c
	return true, nil
}

func (m *MemoryStore) CreatePayment(ctx context.Context, p escrow.Payment) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.payments[p.TxRef]; ok {
		return false, nil
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now()
	}
	if p.Status == "" {
		p.Status = "completed"
	}
	m.payments[p.TxRef] = p
	m.paymentSeq = append(m.paymentSeq, p.TxRef)
	return true, nil
}

func (m *MemoryStore) ListPayments(ctx context.Context, submissionID string) ([]escrow.Payment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []escrow.Payment
	for _, ref := range m.paymentSeq {
		p := m.payments[ref]
		if submissionID == "" || p.SubmissionID == submissionID {
			out = append(out, p)
		}
	}
	return out, nil
}

func (m *MemoryStore) Close() {}
