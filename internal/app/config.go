package app

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v2"
)

type Config struct {
	Gateway struct {
		Address   string `yaml:"Address"`
		BodyLimit string `yaml:"BodyLimit"`
	} `yaml:"Gateway"`
	Storage struct {
		Backend           string `yaml:"Backend"`
		Endpoint          string `yaml:"Endpoint"`
		AccessKey         string `yaml:"AccessKey"`
		AccessSecret      string `yaml:"AccessSecret"`
		Region            string `yaml:"Region"`
		OriginalsBucket   string `yaml:"OriginalsBucket"`
		DerivativesBucket string `yaml:"DerivativesBucket"`
	} `yaml:"Storage"`
	Broker struct {
		URL               string `yaml:"URL"`
		Queue             string `yaml:"Queue"`
		Workers           int    `yaml:"Workers"`
		ConnectTimeoutSec int    `yaml:"ConnectTimeoutSec"`
		PublishTimeoutSec int    `yaml:"PublishTimeoutSec"`
	} `yaml:"Broker"`
	Thumbnail struct {
		Size                 int   `yaml:"Size"`
		MaxImageBytes        int64 `yaml:"MaxImageBytes"`
		DownloadTimeoutSec   int   `yaml:"DownloadTimeoutSec"`
		ReconcileIntervalSec int   `yaml:"ReconcileIntervalSec"`
	} `yaml:"Thumbnail"`
}

// LoadConfig merges, in increasing precedence: built-in defaults, an optional
// yaml file named by CONFIG, and environment variables (a .env file is
// honored when present).
func LoadConfig() (*Config, error) {
	_ = godotenv.Load()

	c := &Config{}
	c.Gateway.Address = ":8000"
	c.Gateway.BodyLimit = "32M"
	c.Storage.Backend = "s3"
	c.Storage.Region = "us-east-1"
	c.Storage.OriginalsBucket = "photos"
	c.Storage.DerivativesBucket = "thumbs"
	c.Broker.URL = "amqp://localhost"
	c.Broker.Queue = "photos"
	c.Broker.Workers = 2
	c.Broker.ConnectTimeoutSec = 10
	c.Broker.PublishTimeoutSec = 10
	c.Thumbnail.Size = 100
	c.Thumbnail.MaxImageBytes = 32 << 20
	c.Thumbnail.DownloadTimeoutSec = 60
	c.Thumbnail.ReconcileIntervalSec = 30

	if path := os.Getenv("CONFIG"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config `%s`: %w", path, err)
		}

		if err := yaml.Unmarshal(data, c); err != nil {
			return nil, fmt.Errorf("unmarshal config `%s`: %w", path, err)
		}
	}

	if port := os.Getenv("PORT"); port != "" {
		c.Gateway.Address = ":" + port
	}
	c.Storage.Backend = getEnv("STORAGE_BACKEND", c.Storage.Backend)
	c.Storage.Endpoint = getEnv("STORAGE_ENDPOINT", c.Storage.Endpoint)
	c.Storage.AccessKey = getEnv("STORAGE_ACCESS_KEY", c.Storage.AccessKey)
	c.Storage.AccessSecret = getEnv("STORAGE_SECRET_KEY", c.Storage.AccessSecret)
	c.Storage.Region = getEnv("STORAGE_REGION", c.Storage.Region)
	c.Broker.URL = getEnv("RABBITMQ_URL", c.Broker.URL)
	if host := os.Getenv("RABBITMQ_HOST"); host != "" {
		c.Broker.URL = "amqp://" + host
	}
	if workers := os.Getenv("WORKERS"); workers != "" {
		n, err := strconv.Atoi(workers)
		if err != nil {
			return nil, fmt.Errorf("parse WORKERS `%s`: %w", workers, err)
		}
		c.Broker.Workers = n
	}

	return c, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}

	return fallback
}
