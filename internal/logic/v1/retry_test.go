package v1

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/quanpsy/vibex-gravity/internal/core/domain"
	"github.com/quanpsy/vibex-gravity/internal/core/repository/sqlite"
)

// flakyStore fails the first failures transactions with err, then
// delegates to the wrapped store.
type flakyStore struct {
	domain.Store
	err      error
	failures int
	calls    int
}

func (s *flakyStore) WithinTx(ctx context.Context, fn func(ctx context.Context, tx domain.Tx) error) error {
	s.calls++
	if s.calls <= s.failures {
		return s.err
	}
	return s.Store.WithinTx(ctx, fn)
}

func newFlakyServices(t *testing.T, err error, failures int) (*flakyStore, testServices) {
	t.Helper()
	store, openErr := sqlite.Open(filepath.Join(t.TempDir(), "gravity.db"))
	if openErr != nil {
		t.Fatalf("open store: %v", openErr)
	}
	t.Cleanup(store.Close)
	flaky := &flakyStore{Store: store, err: err, failures: failures}
	return flaky, servicesOn(flaky)
}

var errConflict = fmt.Errorf("%w: serialization failure", domain.ErrConflict)

func TestConflictIsRetried(t *testing.T) {
	flaky, svc := newFlakyServices(t, errConflict, 2)

	outcome, err := svc.reputation.RecordVouch(context.Background(), VouchRequest{VoucherID: "A", ReceiverID: "B", Skill: "go"})
	if err != nil {
		t.Fatalf("record vouch: %v", err)
	}
	if outcome.Status != VouchAccepted || outcome.SequenceNumber != 1 {
		t.Fatalf("outcome = %+v", outcome)
	}
	if flaky.calls != 3 {
		t.Fatalf("calls = %d, want 3", flaky.calls)
	}
}

func TestConflictRetryBudgetIsBounded(t *testing.T) {
	flaky, svc := newFlakyServices(t, errConflict, 100)

	_, err := svc.reputation.RecordVouch(context.Background(), VouchRequest{VoucherID: "A", ReceiverID: "B", Skill: "go"})
	if !errors.Is(err, ErrStorageFailure) {
		t.Fatalf("expected ErrStorageFailure, got %v", err)
	}
	if !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("expected the conflict cause to be kept, got %v", err)
	}
	if flaky.calls != maxTxAttempts {
		t.Fatalf("calls = %d, want %d", flaky.calls, maxTxAttempts)
	}
}

func TestStorageFailureIsNotRetried(t *testing.T) {
	unreachable := errors.New("connection refused")
	flaky, svc := newFlakyServices(t, unreachable, 100)
	ctx := context.Background()

	_, err := svc.sessions.CreateSession(ctx, "u", NewSession{Type: domain.SessionTypeVibe, Title: "x", DurationMinutes: 10})
	if !errors.Is(err, ErrStorageFailure) || !errors.Is(err, unreachable) {
		t.Fatalf("create: expected storage failure wrapping cause, got %v", err)
	}
	if flaky.calls != 1 {
		t.Fatalf("calls = %d, want 1", flaky.calls)
	}

	checks := []struct {
		name string
		call func() error
	}{
		{"evaluate", func() error {
			_, err := svc.participation.Evaluate(ctx, "u", domain.SessionTypeVibe, domain.FlowNone)
			return err
		}},
		{"summary", func() error { _, err := svc.participation.Summary(ctx, "u"); return err }},
		{"join", func() error { _, err := svc.sessions.JoinSession(ctx, "s", "u"); return err }},
		{"leave", func() error { return svc.sessions.LeaveSession(ctx, "s", "u") }},
		{"close", func() error { return svc.sessions.CloseSession(ctx, "s", "u") }},
		{"transfer", func() error { _, err := svc.sessions.TransferOwnership(ctx, "s", "u", "v"); return err }},
		{"extend", func() error { _, err := svc.sessions.ExtendSession(ctx, "s", "u", 5); return err }},
		{"preview", func() error { _, err := svc.reputation.PreviewVouch(ctx, "u", "v"); return err }},
		{"score", func() error { _, err := svc.reputation.Score(ctx, "u"); return err }},
		{"history", func() error { _, err := svc.reputation.History(ctx, "u"); return err }},
	}
	for _, c := range checks {
		if err := c.call(); !errors.Is(err, ErrStorageFailure) {
			t.Fatalf("%s: expected ErrStorageFailure, got %v", c.name, err)
		}
	}
}

func TestCancelledContextWritesNothing(t *testing.T) {
	svc := newTestServices(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := svc.reputation.RecordVouch(ctx, VouchRequest{VoucherID: "A", ReceiverID: "B", Skill: "go"})
	if !errors.Is(err, ErrStorageFailure) || !errors.Is(err, context.Canceled) {
		t.Fatalf("expected storage failure caused by cancellation, got %v", err)
	}

	_, err = svc.sessions.CreateSession(ctx, "B", NewSession{Type: domain.SessionTypeVibe, Title: "x", DurationMinutes: 10})
	if !errors.Is(err, ErrStorageFailure) {
		t.Fatalf("create: expected ErrStorageFailure, got %v", err)
	}

	live := context.Background()
	score, err := svc.reputation.Score(live, "B")
	if err != nil {
		t.Fatalf("score: %v", err)
	}
	if score.TotalScore != 0 {
		t.Fatalf("total score = %d, want 0", score.TotalScore)
	}
	summary, err := svc.participation.Summary(live, "B")
	if err != nil {
		t.Fatalf("summary: %v", err)
	}
	if summary.TotalActive != 0 {
		t.Fatalf("total active = %d, want 0", summary.TotalActive)
	}
}

func TestExpiredDeadlineIsStorageFailure(t *testing.T) {
	svc := newTestServices(t)

	ctx, cancel := context.WithDeadline(context.Background(), time.Now().Add(-time.Second))
	defer cancel()

	_, err := svc.participation.Evaluate(ctx, "u", domain.SessionTypeVibe, domain.FlowNone)
	if !errors.Is(err, ErrStorageFailure) || !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected storage failure caused by deadline, got %v", err)
	}
}

func TestDenialIsNotAnError(t *testing.T) {
	svc := newTestServices(t)
	ctx := context.Background()
	svc.mustCreate(t, "u", domain.SessionTypeVibe, domain.FlowNone, "held")

	outcome, err := svc.sessions.CreateSession(ctx, "u", NewSession{Type: domain.SessionTypeCookie, Flow: domain.FlowOffering, Title: "y", DurationMinutes: 10})
	if err != nil {
		t.Fatalf("denial returned error %v", err)
	}
	if outcome.Decision.Allowed || outcome.Decision.Code != DenialExclusiveSession {
		t.Fatalf("decision = %+v", outcome.Decision)
	}
}
