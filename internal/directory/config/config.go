package config

type Config struct {
	Path string
}
