// Package config provides configuration management for the CMI payment service.
// Configuration can be loaded from YAML files and overridden by environment variables.
package config

import (
	"fmt"
	"github.com/ilyakaznacheev/cleanenv"
	"sync"
)

// Config holds all configuration for the CMI payment service.
// Values can be set via YAML configuration file or environment variables.
// Environment variables take precedence over YAML values.
type Config struct {
	IsDebug    bool   `yaml:"is_debug" env:"DEBUG" env-default:"false"`
	LogRecords int64  `yaml:"log_records" env:"LOG_RECORDS" env-default:"0"`
	BaseUrl    string `yaml:"base_url" env:"BASE_URL" env-default:"http://localhost:5100"`
	Listen     struct {
		Type     string `yaml:"type" env:"LISTEN_TYPE" env-default:"port"`
		BindIP   string `yaml:"bind_ip" env:"BIND_IP" env-default:"0.0.0.0"`
		Port     string `yaml:"port" env:"PORT" env-default:"5100"`
		TLS      bool   `yaml:"tls_enabled" env:"TLS_ENABLED" env-default:"false"`
		CertFile string `yaml:"cert_file" env:"TLS_CERT_FILE" env-default:""`
		KeyFile  string `yaml:"key_file" env:"TLS_KEY_FILE" env-default:""`
	} `yaml:"listen"`
	Mongo struct {
		Enabled  bool   `yaml:"enabled" env:"MONGO_ENABLED" env-default:"false"`
		Host     string `yaml:"host" env:"MONGO_HOST" env-default:"127.0.0.1"`
		Port     string `yaml:"port" env:"MONGO_PORT" env-default:"27017"`
		User     string `yaml:"user" env:"MONGO_USER" env-default:"admin"`
		Password string `yaml:"password" env:"MONGO_PASSWORD" env-default:"pass"`
		Database string `yaml:"database" env:"MONGO_DATABASE" env-default:""`
	} `yaml:"mongo"`
	Merchant struct {
		// MerchantId is the public account identifier sent to the gateway.
		MerchantId string `yaml:"merchant_id" env:"CMI_MERCHANT_ID" env-default:""`
		// StoreKey is the shared secret used only for signature computation.
		// It is never transmitted and must never appear in logs.
		StoreKey    string `yaml:"store_key" env:"CMI_STORE_KEY" env-default:""`
		GatewayUrl  string `yaml:"gateway_url" env:"CMI_GATEWAY_URL" env-default:"https://testpayment.cmi.co.ma/fim/est3Dgate"`
		Currency    string `yaml:"currency" env:"CMI_CURRENCY" env-default:"MAD"`
		AutoConfirm bool   `yaml:"auto_confirm" env:"CMI_AUTO_CONFIRM" env-default:"true"`
	} `yaml:"merchant"`
}

var instance *Config
var once sync.Once

// GetConfig loads configuration from the specified YAML file path.
// Configuration values can be overridden by environment variables.
// This function uses a singleton pattern and only loads the config once.
func GetConfig(path string) (*Config, error) {
	var err error
	once.Do(func() {
		instance = &Config{}
		if err = cleanenv.ReadConfig(path, instance); err != nil {
			desc, _ := cleanenv.GetDescription(instance, nil)
			err = fmt.Errorf("load config: %w; %s", err, desc)
			instance = nil
		}
	})
	return instance, err
}
