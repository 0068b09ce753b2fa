package config

type Config struct {
	// Brokers - адреса Kafka. Пустой список отключает публикацию.
	Brokers []string
	Topic   string
}
