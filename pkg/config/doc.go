// Package config loads process configuration from environment variables.
//
// Values are read from optional .env files (via github.com/joho/godotenv)
// and then parsed into a tagged struct with github.com/caarlos0/env/v11.
// Variables already present in the process environment win over file
// values, so deployments can override anything a checked-in .env sets.
//
//	type Config struct {
//		Addr string `env:"HTTP_ADDR" envDefault:":8080"`
//	}
//
//	var cfg Config
//	if err := config.Load(&cfg, config.WithPrefix("NOTIFY_")); err != nil {
//		return err
//	}
//
// Field types implementing encoding.TextUnmarshaler are parsed through
// UnmarshalText, which is how time-of-day and channel lists are expressed.
package config
