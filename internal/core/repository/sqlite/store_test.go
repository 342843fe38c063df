package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/quanpsy/vibex-gravity/internal/core/domain"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "gravity.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(store.Close)
	return store
}

func testSession(id string, sessionType domain.SessionType, flow domain.Flow) domain.Session {
	now := time.Date(2026, time.March, 2, 10, 0, 0, 0, time.UTC)
	return domain.Session{
		ID:              id,
		CreatorID:       "creator",
		OwnerID:         "creator",
		Type:            sessionType,
		Flow:            flow,
		Title:           "title " + id,
		Emoji:           "☕",
		EventTime:       now,
		DurationMinutes: 60,
		Status:          domain.SessionStatusActive,
		CreatedAt:       now,
	}
}

func TestSessionAndMembershipRoundTrip(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	err := store.WithinTx(ctx, func(ctx context.Context, tx domain.Tx) error {
		if err := tx.Sessions.CreateSession(ctx, testSession("s-1", domain.SessionTypeQuery, domain.FlowSeeking)); err != nil {
			return err
		}
		return tx.Sessions.InsertMembership(ctx, "s-1", "user-1", domain.RoleCreator)
	})
	if err != nil {
		t.Fatalf("create session: %v", err)
	}

	err = store.WithinTx(ctx, func(ctx context.Context, tx domain.Tx) error {
		got, err := tx.Sessions.GetSession(ctx, "s-1")
		if err != nil {
			return err
		}
		if got.Type != domain.SessionTypeQuery || got.Flow != domain.FlowSeeking {
			t.Fatalf("session type/flow = %s/%s, want query/seeking", got.Type, got.Flow)
		}
		if !got.EventTime.Equal(time.Date(2026, time.March, 2, 10, 0, 0, 0, time.UTC)) {
			t.Fatalf("event time = %v", got.EventTime)
		}

		memberships, err := tx.Sessions.ListActiveMemberships(ctx, "user-1")
		if err != nil {
			return err
		}
		if len(memberships) != 1 {
			t.Fatalf("memberships len = %d, want 1", len(memberships))
		}
		m := memberships[0]
		if m.SessionTitle != "title s-1" || m.Role != domain.RoleCreator || m.Flow != domain.FlowSeeking {
			t.Fatalf("unexpected membership %+v", m)
		}

		member, err := tx.Sessions.IsMember(ctx, "s-1", "user-1")
		if err != nil {
			return err
		}
		if !member {
			t.Fatal("expected user-1 to be a member")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
}

func TestDuplicateMembershipIsConflict(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	err := store.WithinTx(ctx, func(ctx context.Context, tx domain.Tx) error {
		if err := tx.Sessions.CreateSession(ctx, testSession("s-1", domain.SessionTypeVibe, domain.FlowNone)); err != nil {
			return err
		}
		if err := tx.Sessions.InsertMembership(ctx, "s-1", "user-1", domain.RoleCreator); err != nil {
			return err
		}
		return tx.Sessions.InsertMembership(ctx, "s-1", "user-1", domain.RoleParticipant)
	})
	if !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
}

func TestCloseSessionRemovesMemberships(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	err := store.WithinTx(ctx, func(ctx context.Context, tx domain.Tx) error {
		if err := tx.Sessions.CreateSession(ctx, testSession("s-1", domain.SessionTypeHelp, domain.FlowOffering)); err != nil {
			return err
		}
		if err := tx.Sessions.InsertMembership(ctx, "s-1", "user-1", domain.RoleCreator); err != nil {
			return err
		}
		return tx.Sessions.CloseSession(ctx, "s-1")
	})
	if err != nil {
		t.Fatalf("close session: %v", err)
	}

	err = store.WithinTx(ctx, func(ctx context.Context, tx domain.Tx) error {
		memberships, err := tx.Sessions.ListActiveMemberships(ctx, "user-1")
		if err != nil {
			return err
		}
		if len(memberships) != 0 {
			t.Fatalf("memberships len = %d, want 0", len(memberships))
		}
		s, err := tx.Sessions.GetSession(ctx, "s-1")
		if err != nil {
			return err
		}
		if s.Status != domain.SessionStatusClosed {
			t.Fatalf("status = %s, want closed", s.Status)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
}

func TestMissingRowsAreNotFound(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	err := store.WithinTx(ctx, func(ctx context.Context, tx domain.Tx) error {
		if _, err := tx.Sessions.GetSession(ctx, "missing"); !errors.Is(err, domain.ErrNotFound) {
			t.Fatalf("get session: expected not found, got %v", err)
		}
		if err := tx.Sessions.DeleteMembership(ctx, "missing", "user-1"); !errors.Is(err, domain.ErrNotFound) {
			t.Fatalf("delete membership: expected not found, got %v", err)
		}
		if err := tx.Sessions.CloseSession(ctx, "missing"); !errors.Is(err, domain.ErrNotFound) {
			t.Fatalf("close session: expected not found, got %v", err)
		}
		if _, err := tx.Vouches.GetScore(ctx, "nobody"); !errors.Is(err, domain.ErrNotFound) {
			t.Fatalf("get score: expected not found, got %v", err)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("tx: %v", err)
	}
}

func TestVouchSequenceSlotIsUnique(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	first := domain.VouchRecord{
		ID: "v-1", VoucherID: "a", ReceiverID: "b", Skill: "go",
		Points: 10, SequenceNumber: 1, CreatedAt: time.Now(),
	}
	if err := store.WithinTx(ctx, func(ctx context.Context, tx domain.Tx) error {
		return tx.Vouches.InsertVouch(ctx, first)
	}); err != nil {
		t.Fatalf("insert first vouch: %v", err)
	}

	dup := first
	dup.ID = "v-2"
	err := store.WithinTx(ctx, func(ctx context.Context, tx domain.Tx) error {
		return tx.Vouches.InsertVouch(ctx, dup)
	})
	if !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("expected conflict for reused sequence slot, got %v", err)
	}
}

func TestVouchUnknownSessionIsInvalidReference(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	vouch := domain.VouchRecord{
		ID: "v-1", SessionID: "no-such-session", VoucherID: "a", ReceiverID: "b", Skill: "go",
		Points: 10, SequenceNumber: 1, CreatedAt: time.Now(),
	}
	err := store.WithinTx(ctx, func(ctx context.Context, tx domain.Tx) error {
		return tx.Vouches.InsertVouch(ctx, vouch)
	})
	if !errors.Is(err, domain.ErrInvalidReference) {
		t.Fatalf("expected ErrInvalidReference, got %v", err)
	}
	if errors.Is(err, domain.ErrConflict) {
		t.Fatalf("foreign key failure must not be retryable: %v", err)
	}
}

func TestVouchConstraintsRejectInvalidRows(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	tests := []struct {
		name  string
		vouch domain.VouchRecord
	}{
		{name: "self vouch", vouch: domain.VouchRecord{ID: "v-self", VoucherID: "a", ReceiverID: "a", Skill: "go", Points: 10, SequenceNumber: 1}},
		{name: "sixth slot", vouch: domain.VouchRecord{ID: "v-six", VoucherID: "a", ReceiverID: "b", Skill: "go", Points: 1, SequenceNumber: 6}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := store.WithinTx(ctx, func(ctx context.Context, tx domain.Tx) error {
				return tx.Vouches.InsertVouch(ctx, tt.vouch)
			})
			if err == nil {
				t.Fatal("expected check constraint failure")
			}
		})
	}
}

func TestScoreProjection(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	err := store.WithinTx(ctx, func(ctx context.Context, tx domain.Tx) error {
		for i, points := range []int{10, 7} {
			v := domain.VouchRecord{
				ID: "v-" + string(rune('1'+i)), VoucherID: "a", ReceiverID: "b", Skill: "go",
				Points: points, SequenceNumber: i + 1, CreatedAt: time.Now(),
			}
			if err := tx.Vouches.InsertVouch(ctx, v); err != nil {
				return err
			}
		}
		total, err := tx.Vouches.SumReceivedPoints(ctx, "b")
		if err != nil {
			return err
		}
		if total != 17 {
			t.Fatalf("total = %d, want 17", total)
		}
		return tx.Vouches.SetScore(ctx, "b", total)
	})
	if err != nil {
		t.Fatalf("tx: %v", err)
	}

	err = store.WithinTx(ctx, func(ctx context.Context, tx domain.Tx) error {
		score, err := tx.Vouches.GetScore(ctx, "b")
		if err != nil {
			return err
		}
		if score.TotalScore != 17 {
			t.Fatalf("stored score = %d, want 17", score.TotalScore)
		}
		count, err := tx.Vouches.CountVouches(ctx, "a", "b")
		if err != nil {
			return err
		}
		if count != 2 {
			t.Fatalf("count = %d, want 2", count)
		}
		history, err := tx.Vouches.ListReceivedVouches(ctx, "b")
		if err != nil {
			return err
		}
		if len(history) != 2 || history[0].SequenceNumber != 2 {
			t.Fatalf("expected newest-first history, got %+v", history)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
}

func TestWithinTxRollsBackOnError(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	boom := errors.New("boom")

	err := store.WithinTx(ctx, func(ctx context.Context, tx domain.Tx) error {
		if err := tx.Vouches.SetScore(ctx, "b", 42); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}

	err = store.WithinTx(ctx, func(ctx context.Context, tx domain.Tx) error {
		_, err := tx.Vouches.GetScore(ctx, "b")
		return err
	})
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected rolled back score to be absent, got %v", err)
	}
}

func TestWithinTxHonoursCancelledContext(t *testing.T) {
	store := openTestStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	called := false
	err := store.WithinTx(ctx, func(ctx context.Context, tx domain.Tx) error {
		called = true
		return nil
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context canceled, got %v", err)
	}
	if called {
		t.Fatal("fn must not run on a cancelled context")
	}
}
