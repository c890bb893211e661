package helpers

import (
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestESOptionsDefaults(t *testing.T) {
	cfg := ESOptions{Addrs: []string{"http://es:9200"}, MaxRetries: 2}.config()

	assert.Equal(t, []string{"http://es:9200"}, cfg.Addresses)
	assert.Equal(t, 2, cfg.MaxRetries)
	assert.Contains(t, cfg.RetryOnStatus, 503)

	tr, ok := cfg.Transport.(*http.Transport)
	require.True(t, ok)
	assert.Equal(t, 5*time.Second, tr.ResponseHeaderTimeout)
}

func TestNewESClientCustomTimeout(t *testing.T) {
	opts := ESOptions{Addrs: []string{"http://es:9200"}, Timeout: time.Second}
	tr := opts.config().Transport.(*http.Transport)
	assert.Equal(t, time.Second, tr.ResponseHeaderTimeout)

	es, err := NewESClient(opts)
	require.NoError(t, err)
	assert.NotNil(t, es)
}
