package ledger

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"talentbridge-backend/core/escrow"
)

// PGStore persists the ledger in Postgres. Guarded writes are single
// conditional UPDATEs; multi-row steps run in one transaction.
type PGStore struct {
	pool *pgxpool.Pool
}

func NewPGStore(connString string) (*PGStore, error) {
	pool, err := pgxpool.New(context.Background(), connString)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	s := &PGStore{pool: pool}
	if err := s.initSchema(context.Background()); err != nil {
		pool.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}
	return s, nil
}

func (s *PGStore) Close() {
	s.pool.Close()
}

const schema = `
CREATE TABLE IF NOT EXISTS escrow_users (
	id TEXT PRIMARY KEY,
	handle TEXT NOT NULL DEFAULT '',
	role TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS escrow_assignments (
	id TEXT PRIMARY KEY,
	recruiter_id TEXT NOT NULL,
	title TEXT NOT NULL DEFAULT '',
	reward_amount BIGINT NOT NULL,
	currency TEXT NOT NULL DEFAULT '',
	max_submissions INT NOT NULL,
	current_submissions INT NOT NULL DEFAULT 0,
	auto_verify BOOLEAN NOT NULL DEFAULT FALSE,
	metadata_ref TEXT,
	chain_job_id BIGINT,
	deposit_status TEXT NOT NULL DEFAULT 'unconfirmed',
	deposit_tx_ref TEXT,
	status TEXT NOT NULL DEFAULT 'draft',
	expires_at TIMESTAMPTZ,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_escrow_assignments_status ON escrow_assignments(status);
CREATE INDEX IF NOT EXISTS idx_escrow_assignments_chain ON escrow_assignments(chain_job_id) WHERE chain_job_id IS NOT NULL;

CREATE TABLE IF NOT EXISTS escrow_submissions (
	id TEXT PRIMARY KEY,
	assignment_id TEXT NOT NULL REFERENCES escrow_assignments(id),
	candidate_id TEXT NOT NULL,
	evidence_ref TEXT,
	chain_submission_id BIGINT,
	status TEXT NOT NULL DEFAULT 'pending',
	assigned_reviewer TEXT,
	is_winner BOOLEAN NOT NULL DEFAULT FALSE,
	reward_paid BOOLEAN NOT NULL DEFAULT FALSE,
	settlement_tx_ref TEXT,
	certificate_minted BOOLEAN NOT NULL DEFAULT FALSE,
	certificate_token_id BIGINT,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_escrow_submissions_assignment ON escrow_submissions(assignment_id, status);
CREATE UNIQUE INDEX IF NOT EXISTS idx_escrow_submissions_open
	ON escrow_submissions(assignment_id, candidate_id)
	WHERE status NOT IN ('approved','rejected');

CREATE TABLE IF NOT EXISTS escrow_reviews (
	id TEXT PRIMARY KEY,
	submission_id TEXT NOT NULL REFERENCES escrow_submissions(id),
	reviewer_id TEXT NOT NULL,
	verdict TEXT NOT NULL,
	confidence INT NOT NULL DEFAULT 0,
	notes TEXT NOT NULL DEFAULT '',
	fee_amount BIGINT NOT NULL DEFAULT 0,
	payment_status TEXT NOT NULL DEFAULT 'pending',
	fee_tx_ref TEXT,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS escrow_checkpoints (
	submission_id TEXT PRIMARY KEY REFERENCES escrow_submissions(id),
	score INT NOT NULL DEFAULT 0,
	verification_tx_ref TEXT,
	token_id BIGINT,
	mint_tx_ref TEXT,
	mirrored_at TIMESTAMPTZ,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS escrow_certificates (
	id TEXT PRIMARY KEY,
	user_id TEXT NOT NULL,
	submission_id TEXT NOT NULL UNIQUE REFERENCES escrow_submissions(id),
	token_id BIGINT NOT NULL DEFAULT 0,
	mint_tx_ref TEXT,
	issued_at TIMESTAMPTZ NOT NULL,
	revoked_at TIMESTAMPTZ
);

CREATE TABLE IF NOT EXISTS escrow_payments (
	id TEXT PRIMARY KEY,
	payer_id TEXT,
	payee_id TEXT NOT NULL,
	amount BIGINT NOT NULL,
	submission_id TEXT,
	tx_ref TEXT NOT NULL UNIQUE,
	status TEXT NOT NULL DEFAULT 'completed',
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
`

func (s *PGStore) initSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, schema)
	return err
}

func isNoRows(err error) bool {
	return err != nil && strings.Contains(err.Error(), "no rows")
}

func (s *PGStore) CreateUser(ctx context.Context, u escrow.User) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO escrow_users (id, handle, role) VALUES ($1, $2, $3)
		 ON CONFLICT (id) DO UPDATE SET handle = EXCLUDED.handle, role = EXCLUDED.role`,
		u.ID, u.Handle, string(u.Role))
	return err
}

func (s *PGStore) GetUser(ctx context.Context, id string) (escrow.User, error) {
	var u escrow.User
	var role string
	err := s.pool.QueryRow(ctx, `SELECT id, handle, role FROM escrow_users WHERE id = $1`, id).
		Scan(&u.ID, &u.Handle, &role)
	if isNoRows(err) {
		return escrow.User{}, ErrUserNotFound
	}
	if err != nil {
		return escrow.User{}, err
	}
	u.Role = escrow.Role(role)
	return u, nil
}

func (s *PGStore) CreateAssignment(ctx context.Context, a escrow.Assignment) error {
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now()
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO escrow_assignments
		 (id, recruiter_id, title, reward_amount, currency, max_submissions, current_submissions,
		  auto_verify, metadata_ref, chain_job_id, deposit_status, deposit_tx_ref, status, expires_at, created_at)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)`,
		a.ID, a.RecruiterID, a.Title, a.RewardAmount, a.Currency, a.MaxSubmissions, a.CurrentSubmissions,
		a.AutoVerify, nullStr(a.MetadataRef), nullChainID(a.ChainJobID), a.DepositStatus,
		nullStr(a.DepositTxRef), a.Status, nullTime(a.ExpiresAt), a.CreatedAt)
	return err
}

const assignmentCols = `id, recruiter_id, title, reward_amount, currency, max_submissions,
	current_submissions, auto_verify, metadata_ref, chain_job_id, deposit_status,
	deposit_tx_ref, status, expires_at, created_at`

func scanAssignment(row pgx.Row) (escrow.Assignment, error) {
	var a escrow.Assignment
	var metadataRef, depositTxRef sql.NullString
	var chainJobID sql.NullInt64
	var expiresAt sql.NullTime
	err := row.Scan(&a.ID, &a.RecruiterID, &a.Title, &a.RewardAmount, &a.Currency,
		&a.MaxSubmissions, &a.CurrentSubmissions, &a.AutoVerify, &metadataRef, &chainJobID,
		&a.DepositStatus, &depositTxRef, &a.Status, &expiresAt, &a.CreatedAt)
	if err != nil {
		return escrow.Assignment{}, err
	}
	a.MetadataRef = metadataRef.String
	a.DepositTxRef = depositTxRef.String
	if chainJobID.Valid {
		v := uint64(chainJobID.Int64)
		a.ChainJobID = &v
	}
	if expiresAt.Valid {
		a.ExpiresAt = expiresAt.Time
	}
	return a, nil
}

func (s *PGStore) GetAssignment(ctx context.Context, id string) (escrow.Assignment, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+assignmentCols+` FROM escrow_assignments WHERE id = $1`, id)
	a, err := scanAssignment(row)
	if isNoRows(err) {
		return escrow.Assignment{}, ErrAssignmentNotFound
	}
	return a, err
}

func (s *PGStore) ListAssignments(ctx context.Context, f escrow.AssignmentFilter) ([]escrow.Assignment, error) {
	query := `SELECT ` + assignmentCols + ` FROM escrow_assignments WHERE 1=1`
	args := []any{}
	if f.RecruiterID != "" {
		args = append(args, f.RecruiterID)
		query += fmt.Sprintf(" AND recruiter_id = $%d", len(args))
	}
	if f.Status != "" {
		args = append(args, f.Status)
		query += fmt.Sprintf(" AND status = $%d", len(args))
	}
	if f.ChainLinked {
		query += " AND chain_job_id IS NOT NULL"
	}
	query += " ORDER BY created_at"
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []escrow.Assignment
	for rows.Next() {
		a, err := scanAssignment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *PGStore) SetChainJob(ctx context.Context, id string, chainJobID uint64, txRef string) (bool, error) {
	tag, err := s.pool.Exec(ctx,
		`UPDATE escrow_assignments SET chain_job_id = $2, deposit_tx_ref = $3
		 WHERE id = $1 AND chain_job_id IS NULL`,
		id, int64(chainJobID), nullStr(txRef))
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (s *PGStore) ConfirmDeposit(ctx context.Context, id, txRef string) (bool, error) {
	tag, err := s.pool.Exec(ctx,
		`UPDATE escrow_assignments
		 SET deposit_status = 'confirmed',
		     deposit_tx_ref = COALESCE(NULLIF($2, ''), deposit_tx_ref),
		     status = CASE WHEN status = 'draft' THEN 'active' ELSE status END
		 WHERE id = $1 AND deposit_status = 'unconfirmed' AND chain_job_id IS NOT NULL`,
		id, txRef)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (s *PGStore) MarkDepositOrphaned(ctx context.Context, id string) (bool, error) {
	tag, err := s.pool.Exec(ctx,
		`UPDATE escrow_assignments
		 SET deposit_status = 'orphaned',
		     status = CASE WHEN status IN ('draft','active','in_progress') THEN 'cancelled' ELSE status END
		 WHERE id = $1 AND deposit_status <> 'orphaned'`,
		id)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (s *PGStore) UpdateAssignmentStatus(ctx context.Context, id, from, to string) (bool, error) {
	tag, err := s.pool.Exec(ctx,
		`UPDATE escrow_assignments SET status = $3 WHERE id = $1 AND status = $2`,
		id, from, to)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (s *PGStore) CompleteAssignmentIfSettled(ctx context.Context, id string) (bool, error) {
	tag, err := s.pool.Exec(ctx,
		`UPDATE escrow_assignments a SET status = 'completed'
		 WHERE a.id = $1
		   AND a.status IN ('active','in_progress')
		   AND a.current_submissions >= a.max_submissions
		   AND NOT EXISTS (
			SELECT 1 FROM escrow_submissions s
			WHERE s.assignment_id = a.id AND s.status NOT IN ('approved','rejected'))`,
		id)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (s *PGStore) AdmitSubmission(ctx context.Context, sub escrow.Submission) (escrow.Submission, error) {
	if sub.Status == "" {
		sub.Status = escrow.SubmissionPending
	}
	if sub.CreatedAt.IsZero() {
		sub.CreatedAt = time.Now()
	}
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return escrow.Submission{}, err
	}
	defer tx.Rollback(ctx)

	var exists bool
	err = tx.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM escrow_submissions
		 WHERE assignment_id = $1 AND candidate_id = $2 AND status NOT IN ('approved','rejected'))`,
		sub.AssignmentID, sub.CandidateID).Scan(&exists)
	if err != nil {
		return escrow.Submission{}, err
	}
	if exists {
		return escrow.Submission{}, ErrDuplicateEntry
	}

	// Cap check and counter bump in one statement; losing the race leaves
	// zero rows affected.
	tag, err := tx.Exec(ctx,
		`UPDATE escrow_assignments
		 SET current_submissions = current_submissions + 1,
		     status = CASE WHEN status = 'active' THEN 'in_progress' ELSE status END
		 WHERE id = $1
		   AND status IN ('active','in_progress')
		   AND current_submissions < max_submissions`,
		sub.AssignmentID)
	if err != nil {
		return escrow.Submission{}, err
	}
	if tag.RowsAffected() == 0 {
		var found bool
		if err := tx.QueryRow(ctx,
			`SELECT EXISTS (SELECT 1 FROM escrow_assignments WHERE id = $1)`,
			sub.AssignmentID).Scan(&found); err != nil {
			return escrow.Submission{}, err
		}
		if !found {
			return escrow.Submission{}, ErrAssignmentNotFound
		}
		return escrow.Submission{}, ErrSlotUnavailable
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO escrow_submissions
		 (id, assignment_id, candidate_id, evidence_ref, chain_submission_id, status, created_at)
		 VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		sub.ID, sub.AssignmentID, sub.CandidateID, nullStr(sub.EvidenceRef),
		nullChainID(sub.ChainSubmissionID), sub.Status, sub.CreatedAt)
	if err != nil {
		// Two same-candidate admits can both pass the EXISTS check; the
		// partial unique index settles the race.
		if strings.Contains(err.Error(), "duplicate key") {
			return escrow.Submission{}, ErrDuplicateEntry
		}
		return escrow.Submission{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return escrow.Submission{}, err
	}
	return sub, nil
}

const submissionCols = `id, assignment_id, candidate_id, evidence_ref, chain_submission_id,
	status, assigned_reviewer, is_winner, reward_paid, settlement_tx_ref,
	certificate_minted, certificate_token_id, created_at`

func scanSubmission(row pgx.Row) (escrow.Submission, error) {
	var sub escrow.Submission
	var evidenceRef, reviewer, settlementRef sql.NullString
	var chainID, tokenID sql.NullInt64
	err := row.Scan(&sub.ID, &sub.AssignmentID, &sub.CandidateID, &evidenceRef, &chainID,
		&sub.Status, &reviewer, &sub.IsWinner, &sub.RewardPaid, &settlementRef,
		&sub.CertificateMinted, &tokenID, &sub.CreatedAt)
	if err != nil {
		return escrow.Submission{}, err
	}
	sub.EvidenceRef = evidenceRef.String
	sub.AssignedReviewer = reviewer.String
	sub.SettlementTxRef = settlementRef.String
	if chainID.Valid {
		v := uint64(chainID.Int64)
		sub.ChainSubmissionID = &v
	}
	if tokenID.Valid {
		v := uint64(tokenID.Int64)
		sub.CertificateTokenID = &v
	}
	return sub, nil
}

func (s *PGStore) GetSubmission(ctx context.Context, id string) (escrow.Submission, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+submissionCols+` FROM escrow_submissions WHERE id = $1`, id)
	sub, err := scanSubmission(row)
	if isNoRows(err) {
		return escrow.Submission{}, ErrSubmissionNotFound
	}
	return sub, err
}

func (s *PGStore) ListSubmissions(ctx context.Context, f escrow.SubmissionFilter) ([]escrow.Submission, error) {
	query := `SELECT ` + submissionCols + ` FROM escrow_submissions WHERE 1=1`
	args := []any{}
	if f.AssignmentID != "" {
		args = append(args, f.AssignmentID)
		query += fmt.Sprintf(" AND assignment_id = $%d", len(args))
	}
	if f.CandidateID != "" {
		args = append(args, f.CandidateID)
		query += fmt.Sprintf(" AND candidate_id = $%d", len(args))
	}
	if f.Status != "" {
		args = append(args, f.Status)
		query += fmt.Sprintf(" AND status = $%d", len(args))
	}
	query += " ORDER BY created_at"
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []escrow.Submission
	for rows.Next() {
		sub, err := scanSubmission(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, sub)
	}
	return out, rows.Err()
}

func (s *PGStore) SetChainSubmission(ctx context.Context, id string, chainSubmissionID uint64) (bool, error) {
	tag, err := s.pool.Exec(ctx,
		`UPDATE escrow_submissions
		 SET chain_submission_id = $2,
		     status = CASE WHEN status = 'pending' THEN 'awaiting_review' ELSE status END
		 WHERE id = $1 AND chain_submission_id IS NULL`,
		id, int64(chainSubmissionID))
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (s *PGStore) AssignReviewer(ctx context.Context, submissionID, reviewerID string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE escrow_submissions SET assigned_reviewer = $2, status = 'under_review'
		 WHERE id = $1 AND status = 'awaiting_review' AND assigned_reviewer IS NULL`,
		submissionID, reviewerID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() > 0 {
		return nil
	}
	var reviewer sql.NullString
	var status string
	err = s.pool.QueryRow(ctx,
		`SELECT assigned_reviewer, status FROM escrow_submissions WHERE id = $1`, submissionID).
		Scan(&reviewer, &status)
	if isNoRows(err) {
		return ErrSubmissionNotFound
	}
	if err != nil {
		return err
	}
	if reviewer.Valid && reviewer.String != "" {
		return ErrAlreadyClaimed
	}
	return ErrNotClaimable
}

func (s *PGStore) UpdateSubmissionStatus(ctx context.Context, id, from, to string) (bool, error) {
	tag, err := s.pool.Exec(ctx,
		`UPDATE escrow_submissions SET status = $3 WHERE id = $1 AND status = $2`,
		id, from, to)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (s *PGStore) CreateReview(ctx context.Context, r escrow.Review) error {
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now()
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO escrow_reviews
		 (id, submission_id, reviewer_id, verdict, confidence, notes, fee_amount, payment_status, fee_tx_ref, created_at)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
		r.ID, r.SubmissionID, r.ReviewerID, r.Verdict, r.Confidence, r.Notes,
		r.FeeAmount, r.PaymentStatus, nullStr(r.FeeTxRef), r.CreatedAt)
	return err
}

func scanReview(row pgx.Row) (escrow.Review, error) {
	var r escrow.Review
	var feeTxRef sql.NullString
	err := row.Scan(&r.ID, &r.SubmissionID, &r.ReviewerID, &r.Verdict, &r.Confidence,
		&r.Notes, &r.FeeAmount, &r.PaymentStatus, &feeTxRef, &r.CreatedAt)
	if err != nil {
		return escrow.Review{}, err
	}
	r.FeeTxRef = feeTxRef.String
	return r, nil
}

const reviewCols = `id, submission_id, reviewer_id, verdict, confidence, notes,
	fee_amount, payment_status, fee_tx_ref, created_at`

func (s *PGStore) GetReview(ctx context.Context, id string) (escrow.Review, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+reviewCols+` FROM escrow_reviews WHERE id = $1`, id)
	r, err := scanReview(row)
	if isNoRows(err) {
		return escrow.Review{}, ErrReviewNotFound
	}
	return r, err
}

func (s *PGStore) ListReviews(ctx context.Context, submissionID string) ([]escrow.Review, error) {
	query := `SELECT ` + reviewCols + ` FROM escrow_reviews`
	args := []any{}
	if submissionID != "" {
		query += ` WHERE submission_id = $1`
		args = append(args, submissionID)
	}
	query += ` ORDER BY created_at`
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []escrow.Review
	for rows.Next() {
		r, err := scanReview(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *PGStore) SettleReviewFee(ctx context.Context, reviewID, txRef string) (bool, error) {
	tag, err := s.pool.Exec(ctx,
		`UPDATE escrow_reviews SET payment_status = 'paid', fee_tx_ref = $2
		 WHERE id = $1 AND payment_status = 'pending'`,
		reviewID, txRef)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (s *PGStore) SaveCheckpoint(ctx context.Context, cp escrow.ApprovalCheckpoint) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO escrow_checkpoints (submission_id, score, verification_tx_ref, token_id, mint_tx_ref, mirrored_at, updated_at)
		 VALUES ($1,$2,$3,$4,$5,$6,NOW())
		 ON CONFLICT (submission_id) DO UPDATE SET
		   score = EXCLUDED.score,
		   verification_tx_ref = EXCLUDED.verification_tx_ref,
		   token_id = EXCLUDED.token_id,
		   mint_tx_ref = EXCLUDED.mint_tx_ref,
		   mirrored_at = EXCLUDED.mirrored_at,
		   updated_at = NOW()`,
		cp.SubmissionID, cp.Score, nullStr(cp.VerificationTxRef),
		int64(cp.TokenID), nullStr(cp.MintTxRef), cp.MirroredAt)
	return err
}

func scanCheckpoint(row pgx.Row) (escrow.ApprovalCheckpoint, error) {
	var cp escrow.ApprovalCheckpoint
	var verifyRef, mintRef sql.NullString
	var tokenID sql.NullInt64
	var mirroredAt sql.NullTime
	err := row.Scan(&cp.SubmissionID, &cp.Score, &verifyRef, &tokenID, &mintRef, &mirroredAt, &cp.UpdatedAt)
	if err != nil {
		return escrow.ApprovalCheckpoint{}, err
	}
	cp.VerificationTxRef = verifyRef.String
	cp.MintTxRef = mintRef.String
	if tokenID.Valid {
		cp.TokenID = uint64(tokenID.Int64)
	}
	if mirroredAt.Valid {
		t := mirroredAt.Time
		cp.MirroredAt = &t
	}
	return cp, nil
}

const checkpointCols = `submission_id, score, verification_tx_ref, token_id, mint_tx_ref, mirrored_at, updated_at`

func (s *PGStore) GetCheckpoint(ctx context.Context, submissionID string) (escrow.ApprovalCheckpoint, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+checkpointCols+` FROM escrow_checkpoints WHERE submission_id = $1`, submissionID)
	cp, err := scanCheckpoint(row)
	if isNoRows(err) {
		return escrow.ApprovalCheckpoint{}, ErrCheckpointNotFound
	}
	return cp, err
}

func (s *PGStore) ListPendingRepairs(ctx context.Context) ([]escrow.ApprovalCheckpoint, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+checkpointCols+` FROM escrow_checkpoints
		 WHERE verification_tx_ref IS NOT NULL AND mirrored_at IS NULL
		 ORDER BY updated_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []escrow.ApprovalCheckpoint
	for rows.Next() {
		cp, err := scanCheckpoint(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, cp)
	}
	return out, rows.Err()
}

func (s *PGStore) MirrorApproval(ctx context.Context, p MirrorParams) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx,
		`UPDATE escrow_submissions
		 SET status = 'approved', is_winner = TRUE, reward_paid = TRUE,
		     settlement_tx_ref = $2, certificate_minted = TRUE, certificate_token_id = $3
		 WHERE id = $1 AND (settlement_tx_ref IS NULL OR settlement_tx_ref = $2)`,
		p.SubmissionID, p.TxRef, int64(p.TokenID))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		var exists bool
		if err := tx.QueryRow(ctx,
			`SELECT EXISTS (SELECT 1 FROM escrow_submissions WHERE id = $1)`,
			p.SubmissionID).Scan(&exists); err != nil {
			return err
		}
		if !exists {
			return ErrSubmissionNotFound
		}
		return Err("settlement ref mismatch for submission " + p.SubmissionID)
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO escrow_certificates (id, user_id, submission_id, token_id, mint_tx_ref, issued_at)
		 VALUES ($1,$2,$3,$4,$5,$6)
		 ON CONFLICT (submission_id) DO NOTHING`,
		"CERT-"+p.SubmissionID, p.CandidateID, p.SubmissionID, int64(p.TokenID),
		nullStr(p.MintTxRef), p.IssuedAt)
	if err != nil {
		return err
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO escrow_payments (id, payer_id, payee_id, amount, submission_id, tx_ref, status)
		 VALUES ($1,$2,$3,$4,$5,$6,'completed')
		 ON CONFLICT (tx_ref) DO NOTHING`,
		"PAY-"+p.TxRef, nullStr(p.RecruiterID), p.CandidateID, p.Amount, p.SubmissionID, p.TxRef)
	if err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (s *PGStore) GetCertificateBySubmission(ctx context.Context, submissionID string) (escrow.Certificate, error) {
	var c escrow.Certificate
	var mintRef sql.NullString
	var tokenID int64
	var revokedAt sql.NullTime
	err := s.pool.QueryRow(ctx,
		`SELECT id, user_id, submission_id, token_id, mint_tx_ref, issued_at, revoked_at
		 FROM escrow_certificates WHERE submission_id = $1`, submissionID).
		Scan(&c.ID, &c.UserID, &c.SubmissionID, &tokenID, &mintRef, &c.IssuedAt, &revokedAt)
	if isNoRows(err) {
		return escrow.Certificate{}, escrow.ErrNotFound
	}
	if err != nil {
		return escrow.Certificate{}, err
	}
	c.TokenID = uint64(tokenID)
	c.MintTxRef = mintRef.String
	if revokedAt.Valid {
		t := revokedAt.Time
		c.RevokedAt = &t
	}
	return c, nil
}

func (s *PGStore) RevokeCertificate(ctx context.Context, submissionID string) (bool, error) {
	tag, err := s.pool.Exec(ctx,
		`UPDATE escrow_certificates SET revoked_at = NOW()
		 WHERE submission_id = $1 AND revoked_at IS NULL`,
		submissionID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (s *PGStore) CreatePayment(ctx context.Context, p escrow.Payment) (bool, error) {
	if p.Status == "" {
		p.Status = "completed"
	}
	tag, err := s.pool.Exec(ctx,
		`INSERT INTO escrow_payments (id, payer_id, payee_id, amount, submission_id, tx_ref, status)
		 VALUES ($1,$2,$3,$4,$5,$6,$7)
		 ON CONFLICT (tx_ref) DO NOTHING`,
		p.ID, nullStr(p.PayerID), p.PayeeID, p.Amount, nullStr(p.SubmissionID), p.TxRef, p.Status)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (s *PGStore) ListPayments(ctx context.Context, submissionID string) ([]escrow.Payment, error) {
	query := `SELECT id, payer_id, payee_id, amount, submission_id, tx_ref, status, created_at
		 FROM escrow_payments`
	args := []any{}
	if submissionID != "" {
		query += ` WHERE submission_id = $1`
		args = append(args, submissionID)
	}
	query += ` ORDER BY created_at`
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []escrow.Payment
	for rows.Next() {
		var p escrow.Payment
		var payer, subID sql.NullString
		if err := rows.Scan(&p.ID, &payer, &p.PayeeID, &p.Amount, &subID, &p.TxRef, &p.Status, &p.CreatedAt); err != nil {
			return nil, err
		}
		p.PayerID = payer.String
		p.SubmissionID = subID.String
		out = append(out, p)
	}
	return out, rows.Err()
}

func nullStr(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t
}

func nullChainID(v *uint64) any {
	if v == nil {
		return nil
	}
	return int64(*v)
}
