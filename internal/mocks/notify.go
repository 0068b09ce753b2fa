package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"
)

type Sender struct {
	mock.Mock
}

func (s *Sender) Send(ctx context.Context, templateKey string, substitutions map[string]string, targetUserID string) error {
	args := s.Called(ctx, templateKey, substitutions, targetUserID)
	return args.Error(0)
}

// NewAcceptingSender - отправитель, принимающий любые сообщения.
func NewAcceptingSender() *Sender {
	s := &Sender{}
	s.On("Send", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil)
	return s
}
