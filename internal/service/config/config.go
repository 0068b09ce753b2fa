package config

import "time"

type Config struct {
	// CashUser - счет кассы, зеркалирующий внесения и выдачи наличных.
	CashUser string
	// BackgroundTimeout ограничивает фоновые задачи: зачисление перевода, уведомления, события.
	BackgroundTimeout time.Duration
	// TallyConcurrency - сколько строк листа учета проводится одновременно, 0 - без ограничения.
	TallyConcurrency int
	// ArchiveSchedule - cron-выражение с секундами для месячной архивации.
	ArchiveSchedule string
}
