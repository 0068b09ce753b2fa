package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/iurnickita/kiosk/internal/model"
)

type Store struct {
	mock.Mock
}

func (s *Store) AppendBooking(ctx context.Context, booking model.Booking) error {
	args := s.Called(ctx, booking)
	return args.Error(0)
}

func (s *Store) AppendMovement(ctx context.Context, movement model.Movement) error {
	args := s.Called(ctx, movement)
	return args.Error(0)
}

func (s *Store) Bookings(ctx context.Context) ([]model.Booking, error) {
	args := s.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.Booking), args.Error(1)
}

func (s *Store) Movements(ctx context.Context) ([]model.Movement, error) {
	args := s.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.Movement), args.Error(1)
}

func (s *Store) Close() error {
	args := s.Called()
	return args.Error(0)
}

// NewAcceptingStore - хранилище, принимающее любые записи.
func NewAcceptingStore() *Store {
	s := &Store{}
	s.On("AppendBooking", mock.Anything, mock.Anything).Return(nil)
	s.On("AppendMovement", mock.Anything, mock.Anything).Return(nil)
	return s
}
