package models

import (
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v2"
)

type Config struct {
	ServerAddr  string           `yaml:"server_addr"`
	DatabaseURL string           `yaml:"database_url"`
	StoreDriver string           `yaml:"store_driver"` // postgres, memory
	Queue       QueueConfig      `yaml:"queue"`
	Blob        BlobConfig       `yaml:"blob"`
	Processing  ProcessingConfig `yaml:"processing"`
	Webhook     WebhookConfig    `yaml:"webhook"`
	Log         LogConfig        `yaml:"log"`
}

type QueueConfig struct {
	Driver       string   `yaml:"driver"` // kafka, memory
	KafkaBrokers []string `yaml:"kafka_brokers"`
	KafkaTopic   string   `yaml:"kafka_topic"`
	KafkaGroup   string   `yaml:"kafka_group"`
	Workers      int      `yaml:"workers"`
	Buffer       int      `yaml:"buffer"`
}

type BlobConfig struct {
	Driver        string `yaml:"driver"` // s3, minio
	Bucket        string `yaml:"bucket"`
	Region        string `yaml:"region"`
	Endpoint      string `yaml:"endpoint"`
	AccessKey     string `yaml:"access_key"`
	SecretKey     string `yaml:"secret_key"`
	UseSSL        bool   `yaml:"use_ssl"`
	PublicBaseURL string `yaml:"public_base_url"`
}

type ProcessingConfig struct {
	Quality       *int          `yaml:"quality"` // 0-100, nil means default
	FetchTimeout  time.Duration `yaml:"fetch_timeout"`
	MaxImageBytes int64         `yaml:"max_image_bytes"`
	ImageWorkers  int           `yaml:"image_workers"`
	MaxRows       int           `yaml:"max_rows"`
	AllowedHosts  []string      `yaml:"allowed_hosts"`
}

type WebhookConfig struct {
	Timeout time.Duration `yaml:"timeout"`
}

type LogConfig struct {
	Level       string `yaml:"level"`
	Development bool   `yaml:"development"`
}

// LoadConfig reads the YAML file at path (a missing file is not an error),
// applies environment overrides and fills defaults.
func LoadConfig(path string) (*Config, error) {
	var cfg Config
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, err
		}
	case os.IsNotExist(err):
	default:
		return nil, err
	}

	cfg.applyEnv()
	cfg.ApplyDefaults()
	return &cfg, nil
}

func (c *Config) applyEnv() {
	setString(&c.ServerAddr, "SERVER_ADDR")
	setString(&c.DatabaseURL, "DATABASE_URL")
	setString(&c.Blob.Bucket, "AWS_BUCKET")
	setString(&c.Blob.Region, "AWS_REGION")
	setString(&c.Blob.AccessKey, "BLOB_ACCESS_KEY")
	setString(&c.Blob.SecretKey, "BLOB_SECRET_KEY")
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		c.Queue.KafkaBrokers = strings.Split(v, ",")
	}
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

const defaultQuality = 50

func intPtr(v int) *int { return &v }

func (c *Config) ApplyDefaults() {
	if c.ServerAddr == "" {
		c.ServerAddr = ":8000"
	}
	if c.StoreDriver == "" {
		c.StoreDriver = "postgres"
	}
	if c.Queue.Driver == "" {
		c.Queue.Driver = "memory"
	}
	if c.Queue.KafkaTopic == "" {
		c.Queue.KafkaTopic = "image-batches"
	}
	if c.Queue.KafkaGroup == "" {
		c.Queue.KafkaGroup = "image-batch-processor"
	}
	if c.Queue.Workers <= 0 {
		c.Queue.Workers = 2
	}
	if c.Queue.Buffer <= 0 {
		c.Queue.Buffer = 64
	}
	if c.Blob.Driver == "" {
		c.Blob.Driver = "s3"
	}
	if c.Blob.Bucket == "" {
		c.Blob.Bucket = "compressimageurls"
	}
	if c.Blob.Region == "" {
		c.Blob.Region = "ap-south-1"
	}
	if q := c.Processing.Quality; q == nil || *q < 0 || *q > 100 {
		c.Processing.Quality = intPtr(defaultQuality)
	}
	if c.Processing.FetchTimeout <= 0 {
		c.Processing.FetchTimeout = 30 * time.Second
	}
	if c.Processing.MaxImageBytes <= 0 {
		c.Processing.MaxImageBytes = 32 << 20
	}
	if c.Processing.ImageWorkers <= 0 {
		c.Processing.ImageWorkers = 4
	}
	if c.Processing.MaxRows <= 0 {
		c.Processing.MaxRows = 10000
	}
	if len(c.Processing.AllowedHosts) == 0 {
		c.Processing.AllowedHosts = []string{"*"}
	}
	if c.Webhook.Timeout <= 0 {
		c.Webhook.Timeout = 10 * time.Second
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
}
