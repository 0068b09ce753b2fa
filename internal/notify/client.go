package notify

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/iurnickita/kiosk/internal/notify/config"
)

// JSON запрос к сервису сообщений
type MessageRequest struct {
	Template string `json:"template"`
	Text     string `json:"text"`
	DirectTo string `json:"direct_to"`
}

type Client struct {
	serviceAddr string
	http        *resty.Client
}

func NewClient(cfg config.Config) *Client {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		serviceAddr: cfg.Address,
		http:        resty.New().SetTimeout(timeout),
	}
}

func (client *Client) Send(ctx context.Context, templateKey string, substitutions map[string]string, targetUserID string) error {
	path := "/api/messages"

	text, err := Render(templateKey, substitutions)
	if err != nil {
		return err
	}

	resp, err := client.http.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(MessageRequest{Template: templateKey, Text: text, DirectTo: targetUserID}).
		Post(client.serviceAddr + path)
	if err != nil {
		return err
	}

	switch resp.StatusCode() {
	case http.StatusOK, http.StatusCreated, http.StatusAccepted:
		return nil
	default:
		return fmt.Errorf("message request status: %d", resp.StatusCode())
	}
}
