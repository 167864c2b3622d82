package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	// Exchange
	ExchangeName = "vimeo_exchange"

	// Routing Keys
	RoutingLinksExtracted = "links.extracted"

	// Exchange Type
	ExchangeTypeTopic = "topic"

	// Renderers
	RendererHTTP   = "http"
	RendererChrome = "chrome"
)

// Config is the struct that holds the configuration of the application
type Config struct {
	App       AppConfig       `json:"app"`
	RabbitMq  RabbitMQConfig  `json:"rabbitmq"`
	Extractor ExtractorConfig `json:"extractor"`
	Recorder  RecorderConfig  `json:"recorder"`
	WebPanel  WebPanelConfig  `json:"webpanel"`
}

type AppConfig struct {
	Name     string `json:"name"`
	LogLevel int    `json:"logLevel"`
	Env      string `json:"env"`
}

type RabbitMQConfig struct {
	URL              string     `json:"url"`
	Exchange         string     `json:"exchange"`
	Queue            QueueNames `json:"queue"`
	ReconnectRetries int        `json:"reconnectRetries"`
	ReconnectTimeout int        `json:"reconnectTimeout"`
}

type ExtractorConfig struct {
	UserAgent string `json:"userAgent"`
	Timeout   int    `json:"timeout"` // seconds, 0 disables
	Renderer  string `json:"renderer"`
}

type RecorderConfig struct {
	Output string `json:"output"`
}

type WebPanelConfig struct {
	Host         string `json:"host"`
	Port         int    `json:"port"`
	ActivityFeed bool   `json:"activityFeed"`
}

type QueueNames struct {
	Recorder string `json:"recorder"`
}

// Enabled reports whether a broker has been configured
func (c *RabbitMQConfig) Enabled() bool {
	return c.URL != ""
}

// TimeoutDuration returns the fetch timeout, zero means no timeout
func (c *ExtractorConfig) TimeoutDuration() time.Duration {
	return time.Duration(c.Timeout) * time.Second
}

// Addr returns the listen address of the web panel
func (c *WebPanelConfig) Addr() string {
	return c.Host + ":" + strconv.Itoa(c.Port)
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "vimeo-scraper")
	v.SetDefault("app.logLevel", 4)
	v.SetDefault("app.env", "development")

	v.SetDefault("rabbitmq.url", "")
	v.SetDefault("rabbitmq.exchange", ExchangeName)
	v.SetDefault("rabbitmq.queue.recorder", "recorder.queue")
	v.SetDefault("rabbitmq.reconnectRetries", 5)
	v.SetDefault("rabbitmq.reconnectTimeout", 2000)

	v.SetDefault("extractor.userAgent", "Mozilla/5.0 (X11; Linux x86_64; rv:120.0) Gecko/20100101 Firefox/120.0")
	v.SetDefault("extractor.timeout", 30)
	v.SetDefault("extractor.renderer", RendererHTTP)

	v.SetDefault("recorder.output", "output/vimeo_links.csv")

	v.SetDefault("webpanel.host", "0.0.0.0")
	v.SetDefault("webpanel.port", 8080)
	v.SetDefault("webpanel.activityFeed", false)
}

// Load config from config.json in the working directory
func Load() (*Config, error) {
	return LoadFrom(".")
}

// LoadFrom reads config.json from dir, then applies .env and environment overrides
func LoadFrom(dir string) (*Config, error) {
	// .env is optional, variables may already be in the environment
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("error loading .env file: %w", err)
	}

	v := viper.New()
	v.SetConfigName("config") // File name without extension
	v.SetConfigType("json")   // Set to JSON format
	v.AddConfigPath(dir)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	// Try to read configuration file
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	// Unmarshal JSON to Config struct
	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	// Override from environment variables if available
	if envURL := os.Getenv("RABBITMQ_URL"); envURL != "" {
		config.RabbitMq.URL = envURL
	}
	if envPort := os.Getenv("PORT"); envPort != "" {
		port, err := strconv.Atoi(envPort)
		if err != nil {
			return nil, fmt.Errorf("invalid PORT %q: %w", envPort, err)
		}
		config.WebPanel.Port = port
	}

	if config.Extractor.Timeout < 0 {
		return nil, fmt.Errorf("invalid extractor timeout %d", config.Extractor.Timeout)
	}

	switch config.Extractor.Renderer {
	case RendererHTTP, RendererChrome:
	default:
		return nil, fmt.Errorf("unknown extractor renderer %q", config.Extractor.Renderer)
	}

	return &config, nil
}
