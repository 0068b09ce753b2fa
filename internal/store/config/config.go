package config

import "time"

type Config struct {
	// DBDsn - строка подключения к Postgres. Пустая строка - файловый журнал.
	DBDsn       string
	JournalPath string
	// WriteTimeout ограничивает одну запись в журнал.
	WriteTimeout time.Duration
}
