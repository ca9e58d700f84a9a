package chain

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// MockClient is an in-process escrow contract. It allocates indexes from 1,
// mints one token per submission, and can be told to fail the next N calls of
// a given operation. Used by tests and by deployments without a chain node.
type MockClient struct {
	mu          sync.Mutex
	assignments []AssignmentState
	submissions []SubmissionState
	tokens      map[uint64]uint64 // submission index -> token id
	mintRefs    map[uint64]string
	nextToken   uint64
	txSeq       uint64

	FailCreate int
	FailVerify int
	FailMint   int
	FailRefund int

	VerifyCalls int
	MintCalls   int
}

func NewMockClient() *MockClient {
	return &MockClient{
		tokens:    make(map[uint64]uint64),
		mintRefs:  make(map[uint64]string),
		nextToken: 1000,
	}
}

func (m *MockClient) nextTxRef() string {
	m.txSeq++
	return fmt.Sprintf("0xmock%06d", m.txSeq)
}

func (m *MockClient) CreateAssignment(ctx context.Context, p CreateAssignmentParams) (uint64, string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailCreate > 0 {
		m.FailCreate--
		return 0, "", fmt.Errorf("mock chain: create rejected")
	}
	m.assignments = append(m.assignments, AssignmentState{
		Index:          uint64(len(m.assignments) + 1),
		Owner:          p.Owner,
		Reward:         p.Reward,
		MaxSubmissions: p.MaxSubmissions,
		Status:         StateOpen,
		Expiry:         p.Expiry,
	})
	return uint64(len(m.assignments)), m.nextTxRef(), nil
}

func (m *MockClient) RegisterSubmission(ctx context.Context, assignmentIndex uint64, submitter string) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if assignmentIndex == 0 || assignmentIndex > uint64(len(m.assignments)) {
		return 0, fmt.Errorf("mock chain: no assignment at index %d", assignmentIndex)
	}
	a := &m.assignments[assignmentIndex-1]
	if a.Status != StateOpen {
		return 0, fmt.Errorf("mock chain: assignment %d is %s", assignmentIndex, a.Status)
	}
	a.SubmissionCount++
	m.submissions = append(m.submissions, SubmissionState{
		Index:           uint64(len(m.submissions) + 1),
		AssignmentIndex: assignmentIndex,
		Submitter:       submitter,
	})
	return uint64(len(m.submissions)), nil
}

func (m *MockClient) UpdateVerification(ctx context.Context, submissionIndex uint64, score int, release bool) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.VerifyCalls++
	if m.FailVerify > 0 {
		m.FailVerify--
		return "", fmt.Errorf("mock chain: verification rejected")
	}
	if submissionIndex == 0 || submissionIndex > uint64(len(m.submissions)) {
		return "", fmt.Errorf("mock chain: no submission at index %d", submissionIndex)
	}
	s := &m.submissions[submissionIndex-1]
	s.Score = score
	if release {
		s.Approved = true
		s.Paid = true
	}
	return m.nextTxRef(), nil
}

func (m *MockClient) MintCertificate(ctx context.Context, submissionIndex uint64) (uint64, string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.MintCalls++
	if m.FailMint > 0 {
		m.FailMint--
		return 0, "", fmt.Errorf("mock chain: mint rejected")
	}
	if submissionIndex == 0 || submissionIndex > uint64(len(m.submissions)) {
		return 0, "", fmt.Errorf("mock chain: no submission at index %d", submissionIndex)
	}
	// One token per submission; repeat mints return the original.
	if token, ok := m.tokens[submissionIndex]; ok {
		return token, m.mintRefs[submissionIndex], nil
	}
	m.nextToken++
	token := m.nextToken
	ref := m.nextTxRef()
	m.tokens[submissionIndex] = token
	m.mintRefs[submissionIndex] = ref
	return token, ref, nil
}

func (m *MockClient) Refund(ctx context.Context, assignmentIndex uint64) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailRefund > 0 {
		m.FailRefund--
		return "", fmt.Errorf("mock chain: refund rejected")
	}
	if assignmentIndex == 0 || assignmentIndex > uint64(len(m.assignments)) {
		return "", fmt.Errorf("mock chain: no assignment at index %d", assignmentIndex)
	}
	a := &m.assignments[assignmentIndex-1]
	if a.Status == StateOpen {
		a.Status = StateCompleted
	}
	return m.nextTxRef(), nil
}

func (m *MockClient) AssignmentCounter(ctx context.Context) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return uint64(len(m.assignments)), nil
}

func (m *MockClient) GetAssignment(ctx context.Context, index uint64) (AssignmentState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if index == 0 || index > uint64(len(m.assignments)) {
		return AssignmentState{}, fmt.Errorf("mock chain: no assignment at index %d", index)
	}
	a := m.assignments[index-1]
	if a.Status == StateOpen && !a.Expiry.IsZero() && time.Now().After(a.Expiry) {
		a.Status = StateExpired
	}
	return a, nil
}

func (m *MockClient) GetSubmission(ctx context.Context, index uint64) (SubmissionState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if index == 0 || index > uint64(len(m.submissions)) {
		return SubmissionState{}, fmt.Errorf("mock chain: no submission at index %d", index)
	}
	return m.submissions[index-1], nil
}

// SetStatus overrides an assignment's contract status. Test hook for
// divergence scenarios.
func (m *MockClient) SetStatus(index uint64, status string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if index > 0 && index <= uint64(len(m.assignments)) {
		m.assignments[index-1].Status = status
	}
}
