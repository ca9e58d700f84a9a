package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"talentbridge-backend/chain"
	"talentbridge-backend/content"
	"talentbridge-backend/core/escrow"
	"talentbridge-backend/storage/ledger"
)

// AssignmentService owns the assignment lifecycle: posting with an escrowed
// deposit, lazy expiry, cancellation and closing.
type AssignmentService struct {
	store   ledger.Store
	chain   chain.Client
	content content.Store
}

func NewAssignmentService(store ledger.Store, chainClient chain.Client, contentStore content.Store) *AssignmentService {
	return &AssignmentService{store: store, chain: chainClient, content: contentStore}
}

// PostAssignmentParams is the recruiter's posting request.
type PostAssignmentParams struct {
	RecruiterID    string    `json:"recruiter_id"`
	Title          string    `json:"title"`
	Description    string    `json:"description"`
	RewardAmount   int64     `json:"reward_amount"`
	Currency       string    `json:"currency"`
	MaxSubmissions int       `json:"max_submissions"`
	AutoVerify     bool      `json:"auto_verify"`
	ExpiresAt      time.Time `json:"expires_at"`
}

// PostAssignment creates the ledger row first, then escrows the reward on
// chain and promotes the deposit. A failed chain call leaves the row in draft
// with an unconfirmed deposit; nothing is ever promoted before the contract
// returns its index.
func (s *AssignmentService) PostAssignment(ctx context.Context, p PostAssignmentParams) (escrow.Assignment, error) {
	p.Title = strings.TrimSpace(p.Title)
	if p.Title == "" {
		return escrow.Assignment{}, escrow.Validationf("title is required")
	}
	if p.RewardAmount <= 0 {
		return escrow.Assignment{}, escrow.Validationf("reward must be positive, got %d", p.RewardAmount)
	}
	if p.MaxSubmissions < 1 {
		return escrow.Assignment{}, escrow.Validationf("max submissions must be at least 1, got %d", p.MaxSubmissions)
	}
	if p.ExpiresAt.IsZero() || !p.ExpiresAt.After(time.Now()) {
		return escrow.Assignment{}, escrow.Validationf("expiry must be in the future")
	}

	recruiter, err := s.store.GetUser(ctx, p.RecruiterID)
	if errors.Is(err, ledger.ErrUserNotFound) {
		return escrow.Assignment{}, escrow.Validationf("unknown recruiter %s", p.RecruiterID)
	}
	if err != nil {
		return escrow.Assignment{}, err
	}
	if !escrow.CapabilitiesFor(recruiter.Role).PostAssignments {
		return escrow.Assignment{}, escrow.Validationf("role %s cannot post assignments", recruiter.Role)
	}

	if p.Currency == "" {
		p.Currency = "USD"
	}
	meta, err := json.Marshal(map[string]any{
		"title":       p.Title,
		"description": p.Description,
		"currency":    p.Currency,
		"reward":      p.RewardAmount,
	})
	if err != nil {
		return escrow.Assignment{}, err
	}
	metaRef, err := s.content.Put(ctx, meta)
	if err != nil {
		return escrow.Assignment{}, fmt.Errorf("store assignment metadata: %w", err)
	}

	a := escrow.Assignment{
		ID:             newID("ASG"),
		RecruiterID:    recruiter.ID,
		Title:          p.Title,
		RewardAmount:   p.RewardAmount,
		Currency:       p.Currency,
		MaxSubmissions: p.MaxSubmissions,
		AutoVerify:     p.AutoVerify,
		MetadataRef:    metaRef,
		DepositStatus:  escrow.DepositUnconfirmed,
		Status:         escrow.AssignmentDraft,
		ExpiresAt:      p.ExpiresAt,
		CreatedAt:      time.Now(),
	}
	if err := s.store.CreateAssignment(ctx, a); err != nil {
		return escrow.Assignment{}, err
	}

	index, txRef, err := s.chain.CreateAssignment(ctx, chain.CreateAssignmentParams{
		Owner:          recruiter.ID,
		Title:          p.Title,
		MetadataRef:    metaRef,
		Reward:         p.RewardAmount,
		MaxSubmissions: p.MaxSubmissions,
		AutoVerify:     p.AutoVerify,
		Expiry:         p.ExpiresAt,
	})
	if err != nil {
		return a, &escrow.ChainError{Op: "create_assignment", Err: err}
	}
	if _, err := s.store.SetChainJob(ctx, a.ID, index, txRef); err != nil {
		return a, err
	}
	if _, err := s.store.ConfirmDeposit(ctx, a.ID, txRef); err != nil {
		return a, err
	}
	return s.GetAssignment(ctx, a.ID)
}

// GetAssignment reads one assignment, flipping it to expired on read when the
// deadline has passed.
func (s *AssignmentService) GetAssignment(ctx context.Context, id string) (escrow.Assignment, error) {
	a, err := s.store.GetAssignment(ctx, id)
	if errors.Is(err, ledger.ErrAssignmentNotFound) {
		return escrow.Assignment{}, fmt.Errorf("assignment %s: %w", id, escrow.ErrNotFound)
	}
	if err != nil {
		return escrow.Assignment{}, err
	}
	if escrow.Expired(a, time.Now()) {
		if ok, err := s.store.UpdateAssignmentStatus(ctx, id, escrow.AssignmentActive, escrow.AssignmentExpired); err == nil && ok {
			a.Status = escrow.AssignmentExpired
		}
	}
	return a, nil
}

// ListAssignments lists assignments, applying lazy expiry to each row.
func (s *AssignmentService) ListAssignments(ctx context.Context, f escrow.AssignmentFilter) ([]escrow.Assignment, error) {
	out, err := s.store.ListAssignments(ctx, f)
	if err != nil {
		return nil, err
	}
	now := time.Now()
	for i, a := range out {
		if escrow.Expired(a, now) {
			if ok, err := s.store.UpdateAssignmentStatus(ctx, a.ID, escrow.AssignmentActive, escrow.AssignmentExpired); err == nil && ok {
				out[i].Status = escrow.AssignmentExpired
			}
		}
	}
	return out, nil
}

func (s *AssignmentService) authorize(ctx context.Context, a escrow.Assignment, requesterID string) error {
	if a.RecruiterID == requesterID {
		return nil
	}
	u, err := s.store.GetUser(ctx, requesterID)
	if err == nil && u.Role == escrow.RoleAdmin {
		return nil
	}
	return escrow.Validationf("only the posting recruiter can manage assignment %s", a.ID)
}

// CancelAssignment withdraws an assignment before any submission was admitted
// and refunds the escrowed reward.
func (s *AssignmentService) CancelAssignment(ctx context.Context, id, requesterID string) (escrow.Assignment, error) {
	a, err := s.GetAssignment(ctx, id)
	if err != nil {
		return escrow.Assignment{}, err
	}
	if err := s.authorize(ctx, a, requesterID); err != nil {
		return escrow.Assignment{}, err
	}
	if a.CurrentSubmissions > 0 {
		return a, escrow.Conflictf("assignment %s already has admitted submissions", id)
	}
	if !escrow.CanTransitionAssignment(a.Status, escrow.AssignmentCancelled) {
		return a, escrow.Conflictf("assignment %s is %s and cannot be cancelled", id, a.Status)
	}
	ok, err := s.store.UpdateAssignmentStatus(ctx, id, a.Status, escrow.AssignmentCancelled)
	if err != nil {
		return a, err
	}
	if !ok {
		return a, escrow.Conflictf("assignment %s changed state during cancellation", id)
	}
	if a.ChainJobID != nil {
		if _, err := s.chain.Refund(ctx, *a.ChainJobID); err != nil {
			// Cancellation stands; the refund is retried from maintenance.
			log.Printf("refund for cancelled assignment %s failed: %v", id, err)
			return a, &escrow.ChainError{Op: "refund", Err: err}
		}
	}
	return s.store.GetAssignment(ctx, id)
}

// CloseAssignment completes an assignment whose submissions all reached a
// terminal outcome and returns the unspent escrow remainder to the recruiter.
func (s *AssignmentService) CloseAssignment(ctx context.Context, id, requesterID string) (escrow.Assignment, error) {
	a, err := s.GetAssignment(ctx, id)
	if err != nil {
		return escrow.Assignment{}, err
	}
	if err := s.authorize(ctx, a, requesterID); err != nil {
		return escrow.Assignment{}, err
	}
	subs, err := s.store.ListSubmissions(ctx, escrow.SubmissionFilter{AssignmentID: id})
	if err != nil {
		return a, err
	}
	for _, sub := range subs {
		if !escrow.SubmissionTerminal(sub.Status) {
			return a, escrow.Conflictf("submission %s is still %s", sub.ID, sub.Status)
		}
	}
	if !escrow.CanTransitionAssignment(a.Status, escrow.AssignmentCompleted) {
		return a, escrow.Conflictf("assignment %s is %s and cannot be closed", id, a.Status)
	}
	ok, err := s.store.UpdateAssignmentStatus(ctx, id, a.Status, escrow.AssignmentCompleted)
	if err != nil {
		return a, err
	}
	if !ok {
		return a, escrow.Conflictf("assignment %s changed state during close", id)
	}
	if a.ChainJobID != nil {
		if _, err := s.chain.Refund(ctx, *a.ChainJobID); err != nil {
			log.Printf("remainder refund for assignment %s failed: %v", id, err)
			return a, &escrow.ChainError{Op: "refund", Err: err}
		}
	}
	return s.store.GetAssignment(ctx, id)
}
