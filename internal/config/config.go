package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server struct {
		Port    int      `yaml:"port"`
		APIKeys []string `yaml:"apiKeys"`
	} `yaml:"server"`

	Database struct {
		Driver   string `yaml:"driver"` // mysql or postgres
		Host     string `yaml:"host"`
		Port     int    `yaml:"port"`
		User     string `yaml:"user"`
		Password string `yaml:"password"`
		Name     string `yaml:"name"`
	} `yaml:"database"`

	Minio struct {
		Endpoint   string `yaml:"endpoint"`
		AccessKey  string `yaml:"accessKey"`
		SecretKey  string `yaml:"secretKey"`
		BucketName string `yaml:"bucketName"`
		Region     string `yaml:"region"`
		UseSSL     bool   `yaml:"useSSL"`
	} `yaml:"minio"`

	Pipeline struct {
		OutputPrefix       string `yaml:"outputPrefix"`
		SuffixFilter       string `yaml:"suffixFilter"`
		DeidentSecret      string `yaml:"deidentSecret"`
		Mode               string `yaml:"mode"` // lenient or strict
		MaxAttempts        int    `yaml:"maxAttempts"`
		RetryBaseSeconds   int    `yaml:"retryBaseSeconds"`
		StepTimeoutSeconds int    `yaml:"stepTimeoutSeconds"`
	} `yaml:"pipeline"`

	Delivery struct {
		DefaultTTLSeconds int `yaml:"defaultTTLSeconds"`
	} `yaml:"delivery"`
}

// Load reads and parses the yaml config file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	switch c.Database.Driver {
	case "mysql", "postgres":
	default:
		return fmt.Errorf("database.driver must be mysql or postgres, got %q", c.Database.Driver)
	}
	switch c.Pipeline.Mode {
	case "", "lenient", "strict":
	default:
		return fmt.Errorf("pipeline.mode must be lenient or strict, got %q", c.Pipeline.Mode)
	}
	if c.Pipeline.DeidentSecret == "" {
		return fmt.Errorf("pipeline.deidentSecret is required")
	}
	return nil
}

// MySQLDSN builds the MySQL connection string.
func (c *Config) MySQLDSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true&charset=utf8mb4&loc=UTC",
		c.Database.User,
		c.Database.Password,
		c.Database.Host,
		c.Database.Port,
		c.Database.Name,
	)
}

// PostgresDSN builds the Postgres connection string.
func (c *Config) PostgresDSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
		c.Database.Host,
		c.Database.Port,
		c.Database.User,
		c.Database.Password,
		c.Database.Name,
	)
}
