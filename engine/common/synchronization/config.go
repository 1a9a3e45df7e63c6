package synchronization

import (
	"fmt"
	"time"

	"github.com/hashicorp/go-multierror"

	"github.com/onflow/flow-rangesync/module/chainsync"
)

type Config struct {
	ScanInterval         time.Duration // how often idle peers are tasked and timed out requests are released
	RequestTimeout       time.Duration // how long we wait for a range response before giving up on the peer's request
	BatchSize            uint64        // the maximum number of blocks requested in one range request
	MaxParallelDownloads uint32        // the maximum number of peers downloading the same range
	DispatchWorkers      uint          // the number of workers sending requests concurrently
	SendRetries          uint64        // how often sending a request is retried before the peer's range is released
	SendRetryDelay       time.Duration // the initial delay between send attempts, doubled on every retry
}

func DefaultConfig() *Config {
	return &Config{
		ScanInterval:         time.Second,
		RequestTimeout:       10 * time.Second,
		BatchSize:            128,
		MaxParallelDownloads: chainsync.DefaultMaxParallelDownloads,
		DispatchWorkers:      8,
		SendRetries:          2,
		SendRetryDelay:       50 * time.Millisecond,
	}
}

// Validate checks all configuration values and reports every invalid one.
func (c *Config) Validate() error {
	var result *multierror.Error
	if c.ScanInterval <= 0 {
		result = multierror.Append(result, fmt.Errorf("scan interval must be positive, got %v", c.ScanInterval))
	}
	if c.RequestTimeout <= 0 {
		result = multierror.Append(result, fmt.Errorf("request timeout must be positive, got %v", c.RequestTimeout))
	}
	if c.BatchSize == 0 {
		result = multierror.Append(result, fmt.Errorf("batch size must be at least 1"))
	}
	if c.MaxParallelDownloads == 0 {
		result = multierror.Append(result, fmt.Errorf("max parallel downloads must be at least 1"))
	}
	if c.DispatchWorkers == 0 {
		result = multierror.Append(result, fmt.Errorf("dispatch workers must be at least 1"))
	}
	if c.SendRetryDelay <= 0 {
		result = multierror.Append(result, fmt.Errorf("send retry delay must be positive, got %v", c.SendRetryDelay))
	}
	return result.ErrorOrNil()
}

type OptionFunc func(*Config)

// WithScanInterval sets a custom interval at which we task idle peers and
// release timed out requests.
func WithScanInterval(interval time.Duration) OptionFunc {
	return func(cfg *Config) {
		cfg.ScanInterval = interval
	}
}

// WithRequestTimeout sets how long a peer has to answer a range request.
func WithRequestTimeout(timeout time.Duration) OptionFunc {
	return func(cfg *Config) {
		cfg.RequestTimeout = timeout
	}
}

// WithBatchSize sets the maximum number of blocks per range request.
func WithBatchSize(size uint64) OptionFunc {
	return func(cfg *Config) {
		cfg.BatchSize = size
	}
}

// WithMaxParallelDownloads sets how many peers may download the same range.
func WithMaxParallelDownloads(max uint32) OptionFunc {
	return func(cfg *Config) {
		cfg.MaxParallelDownloads = max
	}
}

// WithDispatchWorkers sets the number of concurrent request senders.
func WithDispatchWorkers(workers uint) OptionFunc {
	return func(cfg *Config) {
		cfg.DispatchWorkers = workers
	}
}

// WithSendRetries sets how often a failed request is sent again.
func WithSendRetries(retries uint64, delay time.Duration) OptionFunc {
	return func(cfg *Config) {
		cfg.SendRetries = retries
		cfg.SendRetryDelay = delay
	}
}
