package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	qrcode "github.com/skip2/go-qrcode"

	"talentbridge-backend/core/escrow"
	"talentbridge-backend/services"
	"talentbridge-backend/storage/ledger"
)

// Server wires the escrow marketplace HTTP surface.
type Server struct {
	store       ledger.Store
	assignments *services.AssignmentService
	claims      *services.ClaimCoordinator
	reviews     *services.ReviewService
	approvals   *services.ApprovalOrchestrator
	reconciler  *services.Reconciler
	apiKey      string
}

// NewServer builds a Server. An empty apiKey disables auth.
func NewServer(store ledger.Store, assignments *services.AssignmentService, claims *services.ClaimCoordinator,
	reviews *services.ReviewService, approvals *services.ApprovalOrchestrator, reconciler *services.Reconciler,
	apiKey string) *Server {
	return &Server{
		store:       store,
		assignments: assignments,
		claims:      claims,
		reviews:     reviews,
		approvals:   approvals,
		reconciler:  reconciler,
		apiKey:      apiKey,
	}
}

// RegisterRoutes attaches handlers to the mux.
func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.Handle("/metrics", MetricsHandler())
	mux.HandleFunc("/api/escrow/users", s.authWrap(s.handleUsers))
	mux.HandleFunc("/api/escrow/users/", s.authWrap(s.handleUsers))
	mux.HandleFunc("/api/escrow/assignments", s.authWrap(s.handleAssignments))
	mux.HandleFunc("/api/escrow/assignments/", s.authWrap(s.handleAssignments))
	mux.HandleFunc("/api/escrow/submissions/", s.authWrap(s.handleSubmissions))
	mux.HandleFunc("/api/escrow/reviews/", s.authWrap(s.handleReviews))
	mux.HandleFunc("/api/escrow/maintenance/", s.authWrap(s.handleMaintenance))
}

func (s *Server) authWrap(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.apiKey != "" && r.Header.Get("X-API-Key") != s.apiKey {
			Error(w, http.StatusForbidden, "invalid api key")
			return
		}
		next(w, r)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	JSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleUsers(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/api/escrow/users")
	parts := strings.Split(strings.Trim(path, "/"), "/")

	if parts[0] == "" {
		if r.Method != http.MethodPost {
			Error(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		var u escrow.User
		if err := json.NewDecoder(r.Body).Decode(&u); err != nil {
			Error(w, http.StatusBadRequest, "invalid json body")
			return
		}
		if u.ID == "" || u.Role == "" {
			Error(w, http.StatusBadRequest, "id and role are required")
			return
		}
		if escrow.CapabilitiesFor(u.Role) == (escrow.Capabilities{}) {
			Error(w, http.StatusBadRequest, fmt.Sprintf("unknown role %q", u.Role))
			return
		}
		if err := s.store.CreateUser(r.Context(), u); err != nil {
			DomainError(w, err)
			return
		}
		JSON(w, http.StatusCreated, u)
		return
	}

	if r.Method != http.MethodGet {
		Error(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	u, err := s.store.GetUser(r.Context(), parts[0])
	if err != nil {
		Error(w, http.StatusNotFound, "user not found")
		return
	}
	JSON(w, http.StatusOK, map[string]any{
		"user":         u,
		"capabilities": escrow.CapabilitiesFor(u.Role),
	})
}

func (s *Server) handleAssignments(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/api/escrow/assignments")
	parts := strings.Split(strings.Trim(path, "/"), "/")

	if parts[0] == "" {
		switch r.Method {
		case http.MethodGet:
			out, err := s.assignments.ListAssignments(r.Context(), escrow.AssignmentFilter{
				RecruiterID: r.URL.Query().Get("recruiter_id"),
				Status:      r.URL.Query().Get("status"),
			})
			if err != nil {
				DomainError(w, err)
				return
			}
			JSON(w, http.StatusOK, out)
		case http.MethodPost:
			var p services.PostAssignmentParams
			if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
				Error(w, http.StatusBadRequest, "invalid json body")
				return
			}
			a, err := s.assignments.PostAssignment(r.Context(), p)
			if err != nil {
				DomainError(w, err)
				return
			}
			JSON(w, http.StatusCreated, a)
		default:
			Error(w, http.StatusMethodNotAllowed, "method not allowed")
		}
		return
	}

	id := parts[0]
	if len(parts) == 1 {
		if r.Method != http.MethodGet {
			Error(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		a, err := s.assignments.GetAssignment(r.Context(), id)
		if err != nil {
			DomainError(w, err)
			return
		}
		JSON(w, http.StatusOK, a)
		return
	}

	switch parts[1] {
	case "cancel":
		s.handleAssignmentAction(w, r, id, s.assignments.CancelAssignment)
	case "close":
		s.handleAssignmentAction(w, r, id, s.assignments.CloseAssignment)
	case "qr":
		s.handleAssignmentQR(w, r, id)
	case "submissions":
		s.handleAssignmentSubmissions(w, r, id)
	default:
		Error(w, http.StatusNotFound, "unknown resource")
	}
}

func (s *Server) handleDriftKind(w http.ResponseWriter, r *http.Request, kind string) {
	if r.Method != http.MethodGet {
		Error(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	report, err := s.reconciler.Inspect(r.Context())
	if err != nil {
		DomainError(w, err)
		return
	}
	out := []escrow.DriftFinding{}
	for _, f := range report.Findings {
		if f.Kind == kind {
			out = append(out, f)
		}
	}
	JSON(w, http.StatusOK, out)
}

func (s *Server) handleAssignmentAction(w http.ResponseWriter, r *http.Request, id string,
	action func(ctx context.Context, id, requesterID string) (escrow.Assignment, error)) {
	if r.Method != http.MethodPost {
		Error(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var body struct {
		RequesterID string `json:"requester_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		Error(w, http.StatusBadRequest, "invalid json body")
		return
	}
	a, err := action(r.Context(), id, body.RequesterID)
	if err != nil {
		DomainError(w, err)
		return
	}
	JSON(w, http.StatusOK, a)
}

func (s *Server) handleAssignmentQR(w http.ResponseWriter, r *http.Request, id string) {
	if r.Method != http.MethodGet {
		Error(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	a, err := s.assignments.GetAssignment(r.Context(), id)
	if err != nil {
		DomainError(w, err)
		return
	}
	if a.DepositTxRef == "" {
		Error(w, http.StatusConflict, "deposit not recorded yet")
		return
	}
	png, err := qrcode.Encode(a.DepositTxRef, qrcode.Medium, 256)
	if err != nil {
		Error(w, http.StatusInternalServerError, "qr encoding failed")
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(png)
}

func (s *Server) handleAssignmentSubmissions(w http.ResponseWriter, r *http.Request, id string) {
	switch r.Method {
	case http.MethodGet:
		out, err := s.claims.ListSubmissions(r.Context(), escrow.SubmissionFilter{
			AssignmentID: id,
			Status:       r.URL.Query().Get("status"),
		})
		if err != nil {
			DomainError(w, err)
			return
		}
		JSON(w, http.StatusOK, out)
	case http.MethodPost:
		var body struct {
			CandidateID string `json:"candidate_id"`
			Evidence    string `json:"evidence"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			Error(w, http.StatusBadRequest, "invalid json body")
			return
		}
		sub, err := s.claims.AdmitSubmission(r.Context(), id, body.CandidateID, []byte(body.Evidence))
		if err != nil {
			DomainError(w, err)
			return
		}
		JSON(w, http.StatusCreated, sub)
	default:
		Error(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (s *Server) handleSubmissions(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/api/escrow/submissions/")
	parts := strings.Split(strings.Trim(path, "/"), "/")
	if parts[0] == "" {
		Error(w, http.StatusNotFound, "submission id required")
		return
	}
	id := parts[0]

	if len(parts) == 1 {
		if r.Method != http.MethodGet {
			Error(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		sub, err := s.claims.GetSubmission(r.Context(), id)
		if err != nil {
			DomainError(w, err)
			return
		}
		JSON(w, http.StatusOK, sub)
		return
	}

	switch parts[1] {
	case "claim":
		if r.Method != http.MethodPost {
			Error(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		var body struct {
			ReviewerID string `json:"reviewer_id"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			Error(w, http.StatusBadRequest, "invalid json body")
			return
		}
		sub, err := s.claims.ClaimForReview(r.Context(), id, body.ReviewerID)
		if err != nil {
			DomainError(w, err)
			return
		}
		JSON(w, http.StatusOK, sub)
	case "review":
		if r.Method != http.MethodPost {
			Error(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		var body struct {
			ReviewerID string `json:"reviewer_id"`
			Verdict    string `json:"verdict"`
			Confidence int    `json:"confidence"`
			Notes      string `json:"notes"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			Error(w, http.StatusBadRequest, "invalid json body")
			return
		}
		review, err := s.reviews.SubmitReview(r.Context(), id, body.ReviewerID, body.Verdict, body.Confidence, body.Notes)
		if err != nil {
			DomainError(w, err)
			return
		}
		JSON(w, http.StatusCreated, review)
	case "approve":
		if r.Method != http.MethodPost {
			Error(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		var body struct {
			Score int `json:"score"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			Error(w, http.StatusBadRequest, "invalid json body")
			return
		}
		sub, err := s.approvals.ApproveSubmission(r.Context(), id, body.Score)
		if err != nil {
			DomainError(w, err)
			return
		}
		approvalsTotal.Inc()
		JSON(w, http.StatusOK, sub)
	case "score":
		if r.Method != http.MethodPost {
			Error(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		var body struct {
			Score int `json:"score"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			Error(w, http.StatusBadRequest, "invalid json body")
			return
		}
		sub, err := s.approvals.ScoreSubmission(r.Context(), id, body.Score)
		if err != nil {
			DomainError(w, err)
			return
		}
		JSON(w, http.StatusOK, sub)
	case "reject":
		if r.Method != http.MethodPost {
			Error(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		sub, err := s.approvals.RejectSubmission(r.Context(), id)
		if err != nil {
			DomainError(w, err)
			return
		}
		JSON(w, http.StatusOK, sub)
	case "register":
		if r.Method != http.MethodPost {
			Error(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		sub, err := s.claims.RetryRegistration(r.Context(), id)
		if err != nil {
			DomainError(w, err)
			return
		}
		JSON(w, http.StatusOK, sub)
	case "certificate":
		if len(parts) == 3 && parts[2] == "revoke" {
			if r.Method != http.MethodPost {
				Error(w, http.StatusMethodNotAllowed, "method not allowed")
				return
			}
			ok, err := s.store.RevokeCertificate(r.Context(), id)
			if err != nil {
				DomainError(w, err)
				return
			}
			if !ok {
				Error(w, http.StatusConflict, "certificate already revoked")
				return
			}
		} else if r.Method != http.MethodGet {
			Error(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		cert, err := s.store.GetCertificateBySubmission(r.Context(), id)
		if err != nil {
			DomainError(w, err)
			return
		}
		JSON(w, http.StatusOK, cert)
	case "reviews":
		if r.Method != http.MethodGet {
			Error(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		reviews, err := s.reviews.ListReviews(r.Context(), id)
		if err != nil {
			DomainError(w, err)
			return
		}
		JSON(w, http.StatusOK, reviews)
	case "payments":
		if r.Method != http.MethodGet {
			Error(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		payments, err := s.store.ListPayments(r.Context(), id)
		if err != nil {
			DomainError(w, err)
			return
		}
		JSON(w, http.StatusOK, payments)
	default:
		Error(w, http.StatusNotFound, "unknown resource")
	}
}

func (s *Server) handleReviews(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/api/escrow/reviews/")
	parts := strings.Split(strings.Trim(path, "/"), "/")
	if parts[0] == "" {
		Error(w, http.StatusNotFound, "review id required")
		return
	}
	id := parts[0]

	if len(parts) == 1 {
		if r.Method != http.MethodGet {
			Error(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		review, err := s.reviews.GetReview(r.Context(), id)
		if err != nil {
			DomainError(w, err)
			return
		}
		JSON(w, http.StatusOK, review)
		return
	}

	if parts[1] != "settle" || r.Method != http.MethodPost {
		Error(w, http.StatusNotFound, "unknown resource")
		return
	}
	review, err := s.reviews.SettleReviewerFee(r.Context(), id)
	if err != nil {
		DomainError(w, err)
		return
	}
	JSON(w, http.StatusOK, review)
}

func (s *Server) handleMaintenance(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/api/escrow/maintenance/")
	parts := strings.Split(strings.Trim(path, "/"), "/")

	switch parts[0] {
	case "reconcile":
		if r.Method != http.MethodPost {
			Error(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		report, err := s.reconciler.Run(r.Context())
		if err != nil {
			DomainError(w, err)
			return
		}
		ObserveReconcile(report)
		JSON(w, http.StatusOK, report)
	case "drift":
		if r.Method != http.MethodGet {
			Error(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		report, err := s.reconciler.Inspect(r.Context())
		if err != nil {
			DomainError(w, err)
			return
		}
		JSON(w, http.StatusOK, report)
	case "orphans":
		s.handleDriftKind(w, r, escrow.DriftOrphan)
	case "stuck-pending":
		s.handleDriftKind(w, r, escrow.DriftStuckPending)
	case "approvals":
		if len(parts) != 3 || parts[2] != "resume" || r.Method != http.MethodPost {
			Error(w, http.StatusNotFound, "unknown resource")
			return
		}
		sub, err := s.approvals.ResumeApproval(r.Context(), parts[1])
		if err != nil {
			DomainError(w, err)
			return
		}
		JSON(w, http.StatusOK, sub)
	default:
		Error(w, http.StatusNotFound, "unknown resource")
	}
}
