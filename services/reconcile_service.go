package services

import (
	"context"
	"fmt"
	"log"
	"time"

	"talentbridge-backend/chain"
	"talentbridge-backend/core/escrow"
	"talentbridge-backend/storage/ledger"
)

// Reconciler compares every chain-linked ledger row against contract state and
// classifies divergence as orphan, stuck-pending or status divergence. Repairs
// touch the ledger only; escrowed funds are never moved from here. Each run
// reads a fresh chain counter and every repair is a guarded write, so a second
// run over repaired state produces zero mutations.
type Reconciler struct {
	store ledger.Store
	chain chain.Client
	orch  *ApprovalOrchestrator
}

func NewReconciler(store ledger.Store, chainClient chain.Client, orch *ApprovalOrchestrator) *Reconciler {
	return &Reconciler{store: store, chain: chainClient, orch: orch}
}

// Run reconciles and repairs.
func (r *Reconciler) Run(ctx context.Context) (escrow.ReconcileReport, error) {
	return r.scan(ctx, true)
}

// Inspect classifies divergence without repairing anything.
func (r *Reconciler) Inspect(ctx context.Context) (escrow.ReconcileReport, error) {
	return r.scan(ctx, false)
}

func (r *Reconciler) scan(ctx context.Context, repair bool) (escrow.ReconcileReport, error) {
	counter, err := r.chain.AssignmentCounter(ctx)
	if err != nil {
		return escrow.ReconcileReport{}, &escrow.ChainError{Op: "assignment_counter", Err: err}
	}
	report := escrow.ReconcileReport{ChainCounter: counter, RanAt: time.Now()}

	assignments, err := r.store.ListAssignments(ctx, escrow.AssignmentFilter{ChainLinked: true})
	if err != nil {
		return report, err
	}
	for _, a := range assignments {
		idx := *a.ChainJobID
		report.Checked++

		if idx > counter {
			r.recordOrphan(ctx, &report, a, repair,
				fmt.Sprintf("index %d exceeds chain counter %d", idx, counter))
			continue
		}

		st, err := r.chain.GetAssignment(ctx, idx)
		if err != nil {
			log.Printf("reconcile: read chain assignment %d: %v", idx, err)
			continue
		}
		if st.Owner == "" {
			r.recordOrphan(ctx, &report, a, repair,
				fmt.Sprintf("chain slot %d was never written", idx))
			continue
		}

		if a.DepositStatus == escrow.DepositUnconfirmed {
			f := escrow.DriftFinding{
				AssignmentID: a.ID,
				ChainJobID:   idx,
				Kind:         escrow.DriftStuckPending,
				Detail:       "escrow exists on chain but deposit was never confirmed",
			}
			if repair {
				// The original deposit hash is not recoverable from here.
				ok, err := r.store.ConfirmDeposit(ctx, a.ID, "recovered")
				if err != nil {
					log.Printf("reconcile: confirm deposit for %s: %v", a.ID, err)
				} else if ok {
					f.Repaired = true
					report.Mutations++
				}
			}
			report.Findings = append(report.Findings, f)
			continue
		}

		if (st.Status == chain.StateExpired || st.Status == chain.StateCancelled) &&
			(a.Status == escrow.AssignmentActive || a.Status == escrow.AssignmentInProgress) {
			target := escrow.AssignmentExpired
			if st.Status == chain.StateCancelled {
				target = escrow.AssignmentCancelled
			}
			f := escrow.DriftFinding{
				AssignmentID: a.ID,
				ChainJobID:   idx,
				Kind:         escrow.DriftStatus,
				Detail:       fmt.Sprintf("chain says %s, ledger says %s", st.Status, a.Status),
			}
			if repair {
				ok, err := r.store.UpdateAssignmentStatus(ctx, a.ID, a.Status, target)
				if err != nil {
					log.Printf("reconcile: align status for %s: %v", a.ID, err)
				} else if ok {
					f.Repaired = true
					report.Mutations++
				}
			}
			report.Findings = append(report.Findings, f)
		}
	}

	if repair && r.orch != nil {
		resumed, err := r.orch.ResumePending(ctx)
		if err != nil {
			log.Printf("reconcile: resume pending approvals: %v", err)
		} else {
			report.Resumed = resumed
		}
	}
	return report, nil
}

func (r *Reconciler) recordOrphan(ctx context.Context, report *escrow.ReconcileReport, a escrow.Assignment, repair bool, detail string) {
	if a.DepositStatus == escrow.DepositOrphaned {
		// Already flagged on an earlier run.
		return
	}
	f := escrow.DriftFinding{
		AssignmentID: a.ID,
		ChainJobID:   *a.ChainJobID,
		Kind:         escrow.DriftOrphan,
		Detail:       detail,
	}
	if repair {
		ok, err := r.store.MarkDepositOrphaned(ctx, a.ID)
		if err != nil {
			log.Printf("reconcile: mark orphan %s: %v", a.ID, err)
		} else if ok {
			f.Repaired = true
			report.Mutations++
		}
	}
	report.Findings = append(report.Findings, f)
}

// StartReconcileLoop runs the reconciler on a fixed interval until the context
// is cancelled. observe, when set, receives every successful report.
func StartReconcileLoop(ctx context.Context, r *Reconciler, interval time.Duration, observe func(escrow.ReconcileReport)) {
	go func() {
		t := time.NewTicker(interval)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				report, err := r.Run(ctx)
				if err != nil {
					log.Printf("reconcile error: %v", err)
					continue
				}
				if len(report.Findings) > 0 || report.Resumed > 0 {
					log.Printf("reconcile: checked=%d findings=%d mutations=%d resumed=%d",
						report.Checked, len(report.Findings), report.Mutations, report.Resumed)
				}
				if observe != nil {
					observe(report)
				}
			}
		}
	}()
}
