package helpers

import (
	"crypto/tls"
	"net"
	"net/http"
	"time"

	"github.com/elastic/go-elasticsearch/v8"
)

// ESOptions configures the search cluster connection backing user search.
type ESOptions struct {
	Addrs      []string
	Username   string
	Password   string
	Timeout    time.Duration // dial and response header timeout; 0 means 5s
	MaxRetries int
}

func (o ESOptions) config() elasticsearch.Config {
	timeout := o.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return elasticsearch.Config{
		Addresses:     o.Addrs,
		Username:      o.Username,
		Password:      o.Password,
		MaxRetries:    o.MaxRetries,
		RetryOnStatus: []int{502, 503, 504, 429},
		Transport: &http.Transport{
			MaxIdleConnsPerHost:   10,
			ResponseHeaderTimeout: timeout,
			TLSClientConfig:       &tls.Config{MinVersion: tls.VersionTLS12},
			DialContext:           (&net.Dialer{Timeout: timeout}).DialContext,
		},
	}
}

// NewESClient builds the client used by the users index.
func NewESClient(opts ESOptions) (*elasticsearch.Client, error) {
	return elasticsearch.NewClient(opts.config())
}
