package config

import "time"

type Config struct {
	// Address - адрес сервиса сообщений. Пустой - сообщения только пишутся в лог.
	Address string
	Timeout time.Duration
}
