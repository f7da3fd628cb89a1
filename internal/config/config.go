package config

import (
	"os"
	"strconv"

	"github.com/go-playground/validator/v10"
)

type Config struct {
	APIURL       string `validate:"required,url"`
	SocketURL    string `validate:"required"`
	Token        string `validate:"required"`
	SQLiteDSN    string `validate:"required"`
	TypingTTLSec int    `validate:"gte=1"`
	RedialSec    int    `validate:"gte=1"`
}

func getenv(key, def string) string {
	val := os.Getenv(key)
	if val != "" {
		return val
	}
	return def
}

func MustLoad() Config {
	typingttl, _ := strconv.Atoi(getenv("TYPING_TTL_SEC", "3"))
	redial, _ := strconv.Atoi(getenv("REDIAL_SEC", "3"))

	cfg := Config{
		APIURL:       getenv("API_URL", "http://localhost:3000/graphql"),
		SocketURL:    getenv("SOCKET_URL", "ws://localhost:3000/ws"),
		Token:        getenv("TOKEN", ""),
		SQLiteDSN:    getenv("SQLITE_DSN", "file:mmchat-cache.db?_pragma=foreign_keys(ON)"),
		TypingTTLSec: typingttl,
		RedialSec:    redial,
	}
	return cfg
}

func (c Config) Validate() error {
	return validator.New().Struct(c)
}
