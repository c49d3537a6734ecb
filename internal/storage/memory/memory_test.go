package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Shivanand-hulikatti/library-reservations/internal/model"
	"github.com/Shivanand-hulikatti/library-reservations/internal/storage"
)

func seed(t *testing.T, s *Store, copies int) (model.Book, model.User) {
	t.Helper()
	return s.AddBook(model.Book{Title: "Kindred", Author: "Octavia E. Butler", AvailableCopies: copies}),
		s.AddUser(model.User{DisplayName: "Ada"})
}

func Test_WithTx_PublishesOnlyOnSuccess(t *testing.T) {
	ctx := context.Background()
	s := New()
	book, user := seed(t, s, 1)
	boom := errors.New("boom")

	err := s.WithTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		require.NoError(t, tx.InsertReservation(ctx, model.Reservation{
			ID: "r1", UserID: user.ID, BookID: book.ID, Status: model.StatusPending,
		}))
		_, ok, err := tx.DecrementCopies(ctx, book.ID)
		require.NoError(t, err)
		require.True(t, ok)
		return boom
	})
	require.ErrorIs(t, err, boom)

	_, err = s.GetReservation(ctx, "r1")
	assert.ErrorIs(t, err, model.ErrReservationNotFound)
	got, _ := s.GetBook(ctx, book.ID)
	assert.Equal(t, 1, got.AvailableCopies)
	debits, credits := s.Movements()
	assert.Zero(t, debits)
	assert.Zero(t, credits)
}

func Test_WithTx_SerialisesAcrossBooks(t *testing.T) {
	ctx := context.Background()
	s := New()
	first, _ := seed(t, s, 1)
	second := s.AddBook(model.Book{Title: "Dawn", Author: "Octavia E. Butler", AvailableCopies: 1})

	entered := make(chan struct{})
	release := make(chan struct{})
	go func() {
		_ = s.WithTx(ctx, func(ctx context.Context, tx storage.Tx) error {
			close(entered)
			<-release
			_, _, err := tx.DecrementCopies(ctx, first.ID)
			return err
		})
	}()
	<-entered

	done := make(chan error, 1)
	go func() {
		done <- s.WithTx(ctx, func(ctx context.Context, tx storage.Tx) error {
			_, _, err := tx.DecrementCopies(ctx, second.ID)
			return err
		})
	}()

	select {
	case <-done:
		t.Fatal("transaction on another book ran while the store was held")
	case <-time.After(50 * time.Millisecond):
	}

	close(release)
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("transaction did not run after the store was released")
	}
	got, _ := s.GetBook(ctx, second.ID)
	assert.Zero(t, got.AvailableCopies)
}

func Test_WithTx_FaultAbortsWrite(t *testing.T) {
	ctx := context.Background()
	lost := errors.New("connection lost")
	s := New(WithFault(func(op Op) error {
		if op == OpIncrementCopies {
			return lost
		}
		return nil
	}))
	book, _ := seed(t, s, 0)

	err := s.WithTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		_, err := tx.IncrementCopies(ctx, book.ID)
		return err
	})
	require.ErrorIs(t, err, lost)
	got, _ := s.GetBook(ctx, book.ID)
	assert.Equal(t, 0, got.AvailableCopies)

	s.SetFault(nil)
	err = s.WithTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		_, err := tx.IncrementCopies(ctx, book.ID)
		return err
	})
	require.NoError(t, err)
	got, _ = s.GetBook(ctx, book.ID)
	assert.Equal(t, 1, got.AvailableCopies)
}

func Test_WithTx_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	s := New()

	called := false
	err := s.WithTx(ctx, func(context.Context, storage.Tx) error {
		called = true
		return nil
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, called)
}

func Test_DecrementCopies_StopsAtZero(t *testing.T) {
	ctx := context.Background()
	s := New()
	book, _ := seed(t, s, 1)

	_ = s.WithTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		n, ok, err := tx.DecrementCopies(ctx, book.ID)
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, 0, n)

		n, ok, err = tx.DecrementCopies(ctx, book.ID)
		require.NoError(t, err)
		assert.False(t, ok)
		assert.Equal(t, 0, n)
		return nil
	})

	debits, _ := s.Movements()
	assert.Equal(t, 1, debits)
}

func Test_InsertReservation_ChecksReferences(t *testing.T) {
	ctx := context.Background()
	s := New()
	book, user := seed(t, s, 1)

	_ = s.WithTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		err := tx.InsertReservation(ctx, model.Reservation{ID: "a", UserID: user.ID, BookID: "missing"})
		assert.ErrorIs(t, err, model.ErrBookNotFound)

		err = tx.InsertReservation(ctx, model.Reservation{ID: "a", UserID: "missing", BookID: book.ID})
		assert.ErrorIs(t, err, model.ErrUserNotFound)

		require.NoError(t, tx.InsertReservation(ctx, model.Reservation{ID: "a", UserID: user.ID, BookID: book.ID}))
		assert.Error(t, tx.InsertReservation(ctx, model.Reservation{ID: "a", UserID: user.ID, BookID: book.ID}))
		return nil
	})
}

func Test_ListReservations_FiltersAndOrders(t *testing.T) {
	ctx := context.Background()
	base := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	tick := base
	s := New(WithNow(func() time.Time {
		tick = tick.Add(time.Minute)
		return tick
	}))
	book, ada := seed(t, s, 3)
	bob := s.AddUser(model.User{DisplayName: "Bob"})

	err := s.WithTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		for _, r := range []model.Reservation{
			{ID: "r1", UserID: ada.ID, BookID: book.ID, Status: model.StatusPending},
			{ID: "r2", UserID: bob.ID, BookID: book.ID, Status: model.StatusActive},
			{ID: "r3", UserID: ada.ID, BookID: book.ID, Status: model.StatusActive},
		} {
			if err := tx.InsertReservation(ctx, r); err != nil {
				return err
			}
		}
		return nil
	})
	require.NoError(t, err)

	all, err := s.ListReservations(ctx, model.ReservationFilter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, []string{"r3", "r2", "r1"}, []string{all[0].ID, all[1].ID, all[2].ID})
	assert.Equal(t, "Kindred", all[0].BookTitle)
	assert.Equal(t, "Ada", all[0].UserDisplayName)

	adaActive, err := s.ListReservations(ctx, model.ReservationFilter{UserID: ada.ID, Status: model.StatusActive})
	require.NoError(t, err)
	require.Len(t, adaActive, 1)
	assert.Equal(t, "r3", adaActive[0].ID)
}

func Test_OverdueCandidates(t *testing.T) {
	ctx := context.Background()
	s := New()
	book, user := seed(t, s, 3)
	today, _ := model.ParseDate("2024-06-10")
	past, future := today.AddDays(-1), today.AddDays(1)

	err := s.WithTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		for _, r := range []model.Reservation{
			{ID: "late", UserID: user.ID, BookID: book.ID, Status: model.StatusActive, DueDate: &past},
			{ID: "fine", UserID: user.ID, BookID: book.ID, Status: model.StatusActive, DueDate: &future},
			{ID: "done", UserID: user.ID, BookID: book.ID, Status: model.StatusReturned, DueDate: &past},
		} {
			if err := tx.InsertReservation(ctx, r); err != nil {
				return err
			}
		}
		return nil
	})
	require.NoError(t, err)

	ids, err := s.OverdueCandidates(ctx, today)
	require.NoError(t, err)
	assert.Equal(t, []string{"late"}, ids)
}
