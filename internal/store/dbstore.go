package store

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/iurnickita/kiosk/internal/model"
)

type dbStore struct {
	database *sql.DB
}

func NewDBStore(dsn string) (Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	store, err := newDBStore(db)
	if err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

func newDBStore(db *sql.DB) (*dbStore, error) {
	// Журнал проводок. seq задает порядок добавления,
	// по нему восстанавливается история счета после перезапуска
	_, err := db.Exec(
		"CREATE TABLE IF NOT EXISTS booking (" +
			" seq BIGSERIAL UNIQUE," +
			" id VARCHAR (36) PRIMARY KEY," +
			" account VARCHAR (36) NOT NULL," +
			" item_id VARCHAR (36) NOT NULL," +
			" time TIMESTAMP NOT NULL," +
			" amount BIGINT NOT NULL," +
			" name TEXT NOT NULL," +
			" description TEXT NOT NULL," +
			" type VARCHAR (20) NOT NULL," +
			" related_booking_id VARCHAR (36) NOT NULL," +
			" sender VARCHAR (36) NOT NULL," +
			" recipient VARCHAR (36) NOT NULL," +
			" admin BOOLEAN NOT NULL" +
			" );")
	if err != nil {
		return nil, err
	}

	// Движения склада, каждое связано с проводкой
	_, err = db.Exec(
		"CREATE TABLE IF NOT EXISTS stock_movement (" +
			" seq BIGSERIAL UNIQUE," +
			" id VARCHAR (36) PRIMARY KEY," +
			" item_id VARCHAR (36) NOT NULL," +
			" booking_id VARCHAR (36) NOT NULL," +
			" type VARCHAR (20) NOT NULL," +
			" change BIGINT NOT NULL," +
			" time TIMESTAMP NOT NULL" +
			" );")
	if err != nil {
		return nil, err
	}

	return &dbStore{database: db}, nil
}

func (store *dbStore) AppendBooking(ctx context.Context, booking model.Booking) error {
	_, err := store.database.ExecContext(ctx,
		"INSERT INTO booking (id, account, item_id, time, amount, name, description,"+
			" type, related_booking_id, sender, recipient, admin)"+
			" VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)",
		booking.ID,
		booking.Account,
		booking.ItemID,
		booking.Time,
		booking.Amount,
		booking.Name,
		booking.Description,
		string(booking.Type),
		booking.RelatedBookingID,
		booking.Sender,
		booking.Recipient,
		booking.Admin)
	return uniqueViolation(err)
}

func (store *dbStore) AppendMovement(ctx context.Context, movement model.Movement) error {
	_, err := store.database.ExecContext(ctx,
		"INSERT INTO stock_movement (id, item_id, booking_id, type, change, time)"+
			" VALUES ($1, $2, $3, $4, $5, $6)",
		movement.ID,
		movement.ItemID,
		movement.BookingID,
		string(movement.Type),
		movement.Change,
		movement.Time)
	return uniqueViolation(err)
}

func (store *dbStore) Bookings(ctx context.Context) ([]model.Booking, error) {
	rows, err := store.database.QueryContext(ctx,
		"SELECT id, account, item_id, time, amount, name, description,"+
			" type, related_booking_id, sender, recipient, admin"+
			" FROM booking ORDER BY seq")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var bookings []model.Booking
	for rows.Next() {
		var booking model.Booking
		var bookingType string
		err := rows.Scan(&booking.ID,
			&booking.Account,
			&booking.ItemID,
			&booking.Time,
			&booking.Amount,
			&booking.Name,
			&booking.Description,
			&bookingType,
			&booking.RelatedBookingID,
			&booking.Sender,
			&booking.Recipient,
			&booking.Admin)
		if err != nil {
			return nil, err
		}
		booking.Type = model.BookingType(bookingType)
		bookings = append(bookings, booking)
	}

	return bookings, rows.Err()
}

func (store *dbStore) Movements(ctx context.Context) ([]model.Movement, error) {
	rows, err := store.database.QueryContext(ctx,
		"SELECT id, item_id, booking_id, type, change, time"+
			" FROM stock_movement ORDER BY seq")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var movements []model.Movement
	for rows.Next() {
		var movement model.Movement
		var movementType string
		err := rows.Scan(&movement.ID,
			&movement.ItemID,
			&movement.BookingID,
			&movementType,
			&movement.Change,
			&movement.Time)
		if err != nil {
			return nil, err
		}
		movement.Type = model.MovementType(movementType)
		movements = append(movements, movement)
	}

	return movements, rows.Err()
}

func (store *dbStore) Close() error {
	return store.database.Close()
}

func uniqueViolation(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return ErrAlreadyExists
	}
	return err
}
