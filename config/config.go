package config

import (
	"log"
	"os"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	Debug                    bool   `envconfig:"debug"`
	Port                     int    `envconfig:"port" default:"8080"`
	Env                      string `envconfig:"env"`
	PostgresHost             string `envconfig:"postgres_host"`
	PostgresUser             string `envconfig:"postgres_user"`
	PostgresDB               string `envconfig:"postgres_db"`
	PostgresPort             int    `envconfig:"postgres_port"`
	PostgresPassword         string `envconfig:"postgres_password"`
	JWTSecret                string `envconfig:"jwt_secret"`
	AccessControlAllowOrigin string `envconfig:"access_control_allow_origin"`
	// FirebaseCredentials points at the FCM service-account file; push
	// notifications are disabled when empty.
	FirebaseCredentials string `envconfig:"firebase_credentials"`
	// SendRateLimit is the max send-message calls per user per minute.
	SendRateLimit uint `envconfig:"send_rate_limit" default:"60"`
}

func Load() (*Config, error) {
	env := os.Getenv("GIN_MODE")
	if env != "release" {
		if err := godotenv.Load("./.env"); err != nil {
			log.Printf("couldn't load env vars: %v", err)
		}
	}

	c := &Config{}
	err := envconfig.Process("gusen", c)
	if err != nil {
		return nil, err
	}
	return c, nil
}
