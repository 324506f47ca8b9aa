package ethrpc

import (
	"time"

	"github.com/ethfleet/snapboot/snapboot/common"
)

type config struct {
	timeout time.Duration
	headers map[string]string
	retry   *common.RetryConfig
}

type Option func(*config)

func WithTimeout(timeout time.Duration) Option {
	return func(cfg *config) {
		cfg.timeout = timeout
	}
}

func WithHeaders(headers map[string]string) Option {
	return func(cfg *config) {
		cfg.headers = headers
	}
}

func WithRetryConfig(rcfg *common.RetryConfig) Option {
	return func(cfg *config) {
		cfg.retry = rcfg
	}
}
