package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/iurnickita/kiosk/internal/model"
)

type Publisher struct {
	mock.Mock
}

func (p *Publisher) PublishBooking(ctx context.Context, booking model.Booking) error {
	args := p.Called(ctx, booking)
	return args.Error(0)
}

func (p *Publisher) PublishDanglingTransfer(ctx context.Context, transfer model.DanglingTransfer) error {
	args := p.Called(ctx, transfer)
	return args.Error(0)
}

func (p *Publisher) Close() error {
	args := p.Called()
	return args.Error(0)
}

func NewAcceptingPublisher() *Publisher {
	p := &Publisher{}
	p.On("PublishBooking", mock.Anything, mock.Anything).Return(nil)
	p.On("PublishDanglingTransfer", mock.Anything, mock.Anything).Return(nil)
	p.On("Close").Return(nil)
	return p
}
