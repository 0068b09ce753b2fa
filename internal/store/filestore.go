package store

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"sync"

	"github.com/iurnickita/kiosk/internal/model"
)

const (
	recordBooking  = "booking"
	recordMovement = "movement"
)

// Одна строка журнала (JSON Lines)
type journalRecord struct {
	Kind     string          `json:"kind"`
	Booking  *model.Booking  `json:"booking,omitempty"`
	Movement *model.Movement `json:"movement,omitempty"`
}

// journalFile - часть *os.File, нужная журналу.
type journalFile interface {
	io.Writer
	io.ReaderAt
	io.Seeker
	Sync() error
	Truncate(size int64) error
	Close() error
}

// fileStore пишет журнал по одной записи. Блокировка - семафор, а не sync.Mutex:
// ожидание записи ограничено контекстом вызывающего.
type fileStore struct {
	lock chan struct{}
	file journalFile
	size int64
	// failed - журнал в неизвестном состоянии, запись запрещена
	failed error
}

// NewFileStore открывает журнал по указанному пути, при необходимости создавая его.
// Недописанная последняя строка (сбой во время записи) отбрасывается.
func NewFileStore(path string) (Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o600)
	if err != nil {
		return nil, err
	}
	store, err := openFileStore(f)
	if err != nil {
		f.Close()
		return nil, err
	}
	return store, nil
}

func openFileStore(f journalFile) (*fileStore, error) {
	_, size, err := readJournal(io.NewSectionReader(f, 0, math.MaxInt64))
	if err != nil {
		return nil, err
	}
	if err := f.Truncate(size); err != nil {
		return nil, err
	}
	if _, err := f.Seek(size, io.SeekStart); err != nil {
		return nil, err
	}
	return &fileStore{lock: make(chan struct{}, 1), file: f, size: size}, nil
}

func (store *fileStore) acquire(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	select {
	case store.lock <- struct{}{}:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("journal is busy: %w", ctx.Err())
	}
}

func (store *fileStore) release() {
	<-store.lock
}

func (store *fileStore) AppendBooking(ctx context.Context, booking model.Booking) error {
	return store.append(ctx, journalRecord{Kind: recordBooking, Booking: &booking})
}

func (store *fileStore) AppendMovement(ctx context.Context, movement model.Movement) error {
	return store.append(ctx, journalRecord{Kind: recordMovement, Movement: &movement})
}

// pendingWrite - запись, которую вызывающий мог перестать ждать.
type pendingWrite struct {
	mu        sync.Mutex
	abandoned bool
	finished  bool
}

// append возвращает nil только после fsync. Если контекст истек раньше,
// запись доводится в фоне и откатывается; до конца отката журнал занят.
func (store *fileStore) append(ctx context.Context, record journalRecord) error {
	line, err := json.Marshal(record)
	if err != nil {
		return err
	}
	line = append(line, '\n')

	if err := store.acquire(ctx); err != nil {
		return err
	}
	if store.failed != nil {
		store.release()
		return fmt.Errorf("%w: %w", ErrJournalFailed, store.failed)
	}

	w := &pendingWrite{}
	done := make(chan error, 1)
	go func() {
		prevSize := store.size
		err := store.write(line)

		w.mu.Lock()
		if w.abandoned && err == nil {
			// вызывающий уже получил ошибку, запись не должна остаться в журнале
			err = store.rollback(prevSize)
		}
		w.finished = true
		w.mu.Unlock()

		store.release()
		done <- err
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
	}

	w.mu.Lock()
	finished := w.finished
	if !finished {
		w.abandoned = true
	}
	w.mu.Unlock()
	if finished {
		return <-done
	}
	return fmt.Errorf("journal write abandoned: %w", ctx.Err())
}

// write вызывается под блокировкой журнала.
func (store *fileStore) write(line []byte) error {
	n, err := store.file.Write(line)
	if err == nil {
		err = store.file.Sync()
	}
	if err != nil {
		if n > 0 {
			if rbErr := store.rollback(store.size); rbErr != nil {
				return errors.Join(err, rbErr)
			}
		}
		return err
	}
	store.size += int64(n)
	return nil
}

// rollback обрезает журнал до size. Если обрезать не удалось, журнал
// переводится в failed: следующая запись легла бы после отвергнутой.
func (store *fileStore) rollback(size int64) error {
	err := store.file.Truncate(size)
	if err == nil {
		_, err = store.file.Seek(size, io.SeekStart)
	}
	if err == nil {
		err = store.file.Sync()
	}
	if err != nil {
		store.failed = err
		return fmt.Errorf("%w: rollback: %w", ErrJournalFailed, err)
	}
	store.size = size
	return nil
}

func (store *fileStore) Bookings(ctx context.Context) ([]model.Booking, error) {
	records, err := store.records(ctx)
	if err != nil {
		return nil, err
	}
	var bookings []model.Booking
	for _, record := range records {
		if record.Kind == recordBooking && record.Booking != nil {
			bookings = append(bookings, *record.Booking)
		}
	}
	return bookings, nil
}

func (store *fileStore) Movements(ctx context.Context) ([]model.Movement, error) {
	records, err := store.records(ctx)
	if err != nil {
		return nil, err
	}
	var movements []model.Movement
	for _, record := range records {
		if record.Kind == recordMovement && record.Movement != nil {
			movements = append(movements, *record.Movement)
		}
	}
	return movements, nil
}

func (store *fileStore) records(ctx context.Context) ([]journalRecord, error) {
	if err := store.acquire(ctx); err != nil {
		return nil, err
	}
	defer store.release()

	records, _, err := readJournal(io.NewSectionReader(store.file, 0, store.size))
	return records, err
}

// Close дожидается текущей записи.
func (store *fileStore) Close() error {
	store.lock <- struct{}{}
	defer store.release()
	return store.file.Close()
}

// readJournal читает записи с начала r и возвращает смещение конца последней полной строки.
func readJournal(r io.Reader) ([]journalRecord, int64, error) {
	var records []journalRecord
	var offset int64

	reader := bufio.NewReader(r)
	for lineNo := 1; ; lineNo++ {
		line, err := reader.ReadBytes('\n')
		if errors.Is(err, io.EOF) {
			// строка без перевода строки - запись оборвалась
			return records, offset, nil
		}
		if err != nil {
			return nil, 0, err
		}

		var record journalRecord
		if len(bytes.TrimSpace(line)) > 0 {
			if err := json.Unmarshal(line, &record); err != nil {
				return nil, 0, fmt.Errorf("%w: line %d: %w", ErrCorrupted, lineNo, err)
			}
			records = append(records, record)
		}
		offset += int64(len(line))
	}
}
