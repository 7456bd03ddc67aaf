package s3fs

import (
	"strconv"

	"github.com/chromium/axiom-sub003/config"
	"github.com/chromium/axiom-sub003/fserr"
)

// DefaultConcurrency bounds the parallel deletes of a recursive unlink.
const DefaultConcurrency = 10

// Config holds the connection settings of a bucket backend.
type Config struct {
	// Endpoint is the server address, e.g. "localhost:9000"
	Endpoint string

	// Bucket is the bucket holding the tree
	Bucket string

	AccessKey string
	SecretKey string

	// Secure enables HTTPS
	Secure bool

	// Region skips the bucket location lookup when set
	Region string

	// Prefix namespaces every key, so several trees can share a bucket
	Prefix string

	// Concurrency limits parallel deletes (Default 10)
	Concurrency int
}

// ConfigFromMount reads a Config from the options of a mount entry:
// endpoint, bucket, access_key, secret_key, secure, region, prefix and
// concurrency.
func ConfigFromMount(m config.MountConfig) (Config, error) {
	cfg := Config{
		Endpoint:  m.Option("endpoint", ""),
		Bucket:    m.Option("bucket", ""),
		AccessKey: m.Option("access_key", ""),
		SecretKey: m.Option("secret_key", ""),
		Region:    m.Option("region", ""),
		Prefix:    m.Option("prefix", ""),
	}
	if v := m.Option("secure", ""); v != "" {
		secure, err := strconv.ParseBool(v)
		if err != nil {
			return Config{}, fserr.Wrapf(err, fserr.Invalid, "mount %s: bad secure option %q", m.Name, v)
		}
		cfg.Secure = secure
	}
	if v := m.Option("concurrency", ""); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return Config{}, fserr.Newf(fserr.Invalid, "mount %s: bad concurrency option %q", m.Name, v)
		}
		cfg.Concurrency = n
	}
	return cfg, cfg.validate()
}

// validate checks that every connection field is present.
func (c *Config) validate() error {
	switch {
	case c.Bucket == "":
		return fserr.New(fserr.Missing, "bucket is required")
	case c.Endpoint == "":
		return fserr.New(fserr.Missing, "endpoint is required")
	case c.AccessKey == "":
		return fserr.New(fserr.Missing, "access key is required")
	case c.SecretKey == "":
		return fserr.New(fserr.Missing, "secret key is required")
	}
	return nil
}
