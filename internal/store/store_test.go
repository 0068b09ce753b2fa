package store

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"

	"github.com/iurnickita/kiosk/internal/model"
	"github.com/iurnickita/kiosk/internal/store/config"
)

func testBooking(id string, amount int64) model.Booking {
	return model.Booking{
		ID:      id,
		Account: "100001",
		Time:    time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC),
		Amount:  amount,
		Name:    "Coffee",
		Type:    model.BookingTypePurchase,
	}
}

func TestFileStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "data", "journal.jsonl")

	store, err := NewStore(config.Config{JournalPath: path})
	require.NoError(t, err)

	require.NoError(t, store.AppendBooking(ctx, testBooking("b1", -250)))
	require.NoError(t, store.AppendMovement(ctx, model.Movement{
		ID: "m1", ItemID: "coffee", BookingID: "b1",
		Type: model.MovementTypeConsumption, Change: -1,
	}))
	require.NoError(t, store.AppendBooking(ctx, testBooking("b2", 1000)))
	require.NoError(t, store.Close())

	// после перезапуска журнал читается в том же порядке
	store, err = NewStore(config.Config{JournalPath: path})
	require.NoError(t, err)
	defer store.Close()

	bookings, err := store.Bookings(ctx)
	require.NoError(t, err)
	require.Len(t, bookings, 2)
	require.Equal(t, testBooking("b1", -250), bookings[0])
	require.Equal(t, "b2", bookings[1].ID)

	movements, err := store.Movements(ctx)
	require.NoError(t, err)
	require.Len(t, movements, 1)
	require.Equal(t, "b1", movements[0].BookingID)
	require.Equal(t, int64(-1), movements[0].Change)
}

func TestFileStoreDropsTornTail(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "journal.jsonl")

	store, err := NewFileStore(path)
	require.NoError(t, err)
	require.NoError(t, store.AppendBooking(ctx, testBooking("b1", 500)))
	require.NoError(t, store.Close())

	// имитация сбоя посреди записи
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o600)
	require.NoError(t, err)
	_, err = f.WriteString(`{"kind":"booking","booking":{"id":"b2"`)
	require.NoError(t, err)
	require.NoError(t, f.Close())

	store, err = NewFileStore(path)
	require.NoError(t, err)
	defer store.Close()

	require.NoError(t, store.AppendBooking(ctx, testBooking("b3", 700)))

	bookings, err := store.Bookings(ctx)
	require.NoError(t, err)
	require.Len(t, bookings, 2)
	require.Equal(t, "b1", bookings[0].ID)
	require.Equal(t, "b3", bookings[1].ID)
}

func TestFileStoreCorruptedLine(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.jsonl")
	require.NoError(t, os.WriteFile(path, []byte("not json\n"), 0o600))

	_, err := NewFileStore(path)
	require.ErrorIs(t, err, ErrCorrupted)
}

func TestFileStoreCanceledContext(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.jsonl")
	store, err := NewFileStore(path)
	require.NoError(t, err)
	defer store.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.ErrorIs(t, store.AppendBooking(ctx, testBooking("b1", 100)), context.Canceled)

	bookings, err := store.Bookings(context.Background())
	require.NoError(t, err)
	require.Empty(t, bookings)
}

// faultyFile - файл журнала с управляемыми сбоями.
type faultyFile struct {
	*os.File
	writeErr    error
	truncateErr error
	syncGate    chan struct{}
}

func (f *faultyFile) Write(b []byte) (int, error) {
	if f.writeErr != nil {
		n, _ := f.File.Write(b[:len(b)/2])
		return n, f.writeErr
	}
	return f.File.Write(b)
}

func (f *faultyFile) Sync() error {
	if f.syncGate != nil {
		<-f.syncGate
	}
	return f.File.Sync()
}

func (f *faultyFile) Truncate(size int64) error {
	if f.truncateErr != nil {
		return f.truncateErr
	}
	return f.File.Truncate(size)
}

func openFaultyFile(t *testing.T, path string) *faultyFile {
	t.Helper()
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o600)
	require.NoError(t, err)
	return &faultyFile{File: f}
}

func TestFileStoreStalledWrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.jsonl")
	f := openFaultyFile(t, path)
	f.syncGate = make(chan struct{})
	store, err := openFileStore(f)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	start := time.Now()
	err = store.AppendBooking(ctx, testBooking("b1", 100))
	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.Less(t, time.Since(start), time.Second)

	// журнал занят зависшей записью, следующий писатель уходит по своему сроку
	ctx2, cancel2 := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel2()
	start = time.Now()
	err = store.AppendBooking(ctx2, testBooking("b2", 200))
	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.Less(t, time.Since(start), time.Second)

	close(f.syncGate)
	require.NoError(t, store.AppendBooking(context.Background(), testBooking("b3", 300)))

	// брошенная запись откатана и не переживает перезапуск
	bookings, err := store.Bookings(context.Background())
	require.NoError(t, err)
	require.Len(t, bookings, 1)
	require.Equal(t, "b3", bookings[0].ID)
	require.NoError(t, store.Close())

	reopened, err := NewFileStore(path)
	require.NoError(t, err)
	defer reopened.Close()
	bookings, err = reopened.Bookings(context.Background())
	require.NoError(t, err)
	require.Len(t, bookings, 1)
	require.Equal(t, "b3", bookings[0].ID)
}

func TestFileStoreFailedRollback(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.jsonl")
	f := openFaultyFile(t, path)
	store, err := openFileStore(f)
	require.NoError(t, err)
	defer store.Close()

	f.writeErr = errors.New("disk full")
	f.truncateErr = errors.New("input/output error")
	err = store.AppendBooking(context.Background(), testBooking("b1", 100))
	require.ErrorIs(t, err, ErrJournalFailed)

	// половина b1 осталась в файле, дописывать после нее нельзя
	f.writeErr = nil
	err = store.AppendBooking(context.Background(), testBooking("b2", 200))
	require.ErrorIs(t, err, ErrJournalFailed)
}

func TestFileStoreRollbackPartialWrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.jsonl")
	f := openFaultyFile(t, path)
	store, err := openFileStore(f)
	require.NoError(t, err)
	defer store.Close()

	f.writeErr = errors.New("disk full")
	require.Error(t, store.AppendBooking(context.Background(), testBooking("b1", 100)))

	f.writeErr = nil
	require.NoError(t, store.AppendBooking(context.Background(), testBooking("b2", 200)))

	bookings, err := store.Bookings(context.Background())
	require.NoError(t, err)
	require.Len(t, bookings, 1)
	require.Equal(t, "b2", bookings[0].ID)
}

func setupDBMock(t *testing.T) (*dbStore, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS booking").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS stock_movement").WillReturnResult(sqlmock.NewResult(0, 0))

	store, err := newDBStore(db)
	require.NoError(t, err)
	return store, mock
}

func TestDBStoreAppendBooking(t *testing.T) {
	store, mock := setupDBMock(t)
	booking := testBooking("b1", -250)

	mock.ExpectExec("INSERT INTO booking").
		WithArgs("b1", "100001", "", booking.Time, int64(-250), "Coffee", "",
			"purchase", "", "", "", false).
		WillReturnResult(sqlmock.NewResult(1, 1))

	require.NoError(t, store.AppendBooking(context.Background(), booking))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDBStoreAppendDuplicate(t *testing.T) {
	store, mock := setupDBMock(t)

	mock.ExpectExec("INSERT INTO stock_movement").
		WillReturnError(&pgconn.PgError{Code: "23505"})

	err := store.AppendMovement(context.Background(), model.Movement{ID: "m1"})
	require.ErrorIs(t, err, ErrAlreadyExists)
}

func TestDBStoreBookings(t *testing.T) {
	store, mock := setupDBMock(t)
	ts := time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)

	mock.ExpectQuery("SELECT (.+) FROM booking ORDER BY seq").
		WillReturnRows(sqlmock.NewRows([]string{"id", "account", "item_id", "time", "amount", "name",
			"description", "type", "related_booking_id", "sender", "recipient", "admin"}).
			AddRow("b1", "100001", "", ts, int64(-500), "CHF 5.00 to Bob", "lunch",
				"transfer-out", "b2", "100001", "100002", false).
			AddRow("b3", "100001", "", ts, int64(-300), "1 x Mate", "Tally list carry over",
				"tally-carry-over", "", "", "", true))

	bookings, err := store.Bookings(context.Background())
	require.NoError(t, err)
	require.Len(t, bookings, 2)
	require.Equal(t, model.BookingTypeTransferOut, bookings[0].Type)
	require.Equal(t, "b2", bookings[0].RelatedBookingID)
	require.True(t, bookings[1].Admin)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDBStoreMovementsError(t *testing.T) {
	store, mock := setupDBMock(t)

	mock.ExpectQuery("SELECT (.+) FROM stock_movement").WillReturnError(sql.ErrConnDone)

	_, err := store.Movements(context.Background())
	require.ErrorIs(t, err, sql.ErrConnDone)
}
