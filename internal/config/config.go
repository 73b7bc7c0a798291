// Package config loads the library's runtime configuration from the
// environment, the way AdGuardDNS's internal/cmd package reads its
// environments struct with caarlos0/env.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v7"
	"github.com/google/uuid"

	"github.com/sb4client/safebrowsing4/internal/apiclient"
)

// Config is the environment-sourced configuration for a Safe Browsing
// client process.
type Config struct {
	// APIKey is the Safe Browsing v4 API key. Required.
	APIKey string `env:"SB4_API_KEY,notEmpty"`

	// BaseURL is the base URL of the Safe Browsing v4 service.
	BaseURL string `env:"SB4_BASE_URL" envDefault:"https://safebrowsing.googleapis.com"`

	// DatabasePath is the path to the local prefix-database file. An empty
	// value selects the in-memory, non-durable store.
	DatabasePath string `env:"SB4_DATABASE_PATH" envDefault:"./sb4.db.json"`

	// ClientID identifies this client implementation to the service. If
	// empty, a random identifier is generated at load time.
	ClientID string `env:"SB4_CLIENT_ID"`

	// ClientVersion is the version string sent alongside ClientID.
	ClientVersion string `env:"SB4_CLIENT_VERSION" envDefault:"1.0.0"`

	// Lists is a comma-separated list of threat-list selectors, e.g.
	// "MALWARE/*/*,SOCIAL_ENGINEERING/ANY_PLATFORM/URL". Empty selects
	// every list in the service's catalog.
	Lists string `env:"SB4_LISTS"`

	// RequestTimeout bounds every HTTP request made to the service.
	RequestTimeout time.Duration `env:"SB4_REQUEST_TIMEOUT" envDefault:"1m"`

	// UpdatePeriod is the minimum interval between background update runs,
	// used as a floor under the server's own minimumWaitDuration.
	UpdatePeriod time.Duration `env:"SB4_UPDATE_PERIOD" envDefault:"30m"`

	// MetricsEnabled turns on Prometheus metrics collection.
	MetricsEnabled strictBool `env:"SB4_METRICS_ENABLED" envDefault:"0"`

	// Verbose enables debug-level logging.
	Verbose strictBool `env:"SB4_VERBOSE" envDefault:"0"`
}

// Read parses the process environment into a [Config], filling ClientID
// with a freshly generated identifier when left unset.
func Read() (conf *Config, err error) {
	conf = &Config{}

	err = env.Parse(conf)
	if err != nil {
		return nil, fmt.Errorf("parsing environment: %w", err)
	}

	if conf.ClientID == "" {
		conf.ClientID = uuid.NewString()
	}

	return conf, nil
}

// APIClientConfig returns the [apiclient.Config] implied by conf.
func (conf *Config) APIClientConfig() apiclient.Config {
	return apiclient.Config{
		APIKey:        conf.APIKey,
		BaseURL:       conf.BaseURL,
		Timeout:       conf.RequestTimeout,
		ClientID:      conf.ClientID,
		ClientVersion: conf.ClientVersion,
	}
}

// strictBool is a boolean parsed more strictly than the usual bool: only
// "0" and "1" are accepted.
type strictBool bool

// UnmarshalText implements the encoding.TextUnmarshaler interface for
// *strictBool.
func (sb *strictBool) UnmarshalText(b []byte) (err error) {
	if len(b) == 1 {
		switch b[0] {
		case '0':
			*sb = false

			return nil
		case '1':
			*sb = true

			return nil
		}
	}

	return fmt.Errorf("invalid value %q, supported: %q, %q", b, "0", "1")
}
