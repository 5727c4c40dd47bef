package clickhouse

import (
	"net/url"
	"strconv"
	"time"
)

// Config is the connection part of the clickhouse config block. Table names
// belong to the repositories and live next to it in the app config.
type Config struct {
	Host             string        `yaml:"host" default:"localhost"`
	Port             int           `yaml:"port" default:"9000" validate:"min=1,max=65535"`
	Database         string        `yaml:"database" default:"liqpool"`
	User             string        `yaml:"user" default:"default"`
	Password         string        `yaml:"password"`
	UseHTTP          bool          `yaml:"use_http"`
	AsyncInsert      bool          `yaml:"async_insert"`
	WaitForAsync     bool          `yaml:"wait_for_async_insert"`
	DialTimeout      time.Duration `yaml:"dial_timeout" default:"5s"`
	ReadTimeout      time.Duration `yaml:"read_timeout" default:"30s"`
	MaxExecutionTime time.Duration `yaml:"max_execution_time" default:"60s"`
	MaxOpenConns     int           `yaml:"max_open_conns" default:"10"`
	MaxIdleConns     int           `yaml:"max_idle_conns" default:"5"`
	ConnMaxLifetime  time.Duration `yaml:"conn_max_lifetime" default:"5m"`
}

// Option adjusts how NewClient connects.
type Option func(*connectOptions)

type connectOptions struct {
	pingTimeout time.Duration
	skipPing    bool
}

// WithPingTimeout bounds the startup ping.
func WithPingTimeout(d time.Duration) Option {
	return func(o *connectOptions) { o.pingTimeout = d }
}

// WithoutPing opens the pool lazily; the first query dials.
func WithoutPing() Option {
	return func(o *connectOptions) { o.skipPing = true }
}

// DSN renders the clickhouse-go connection string.
func (c Config) DSN() string {
	scheme := "clickhouse"
	if c.UseHTTP {
		scheme = "http"
	}
	u := url.URL{
		Scheme:   scheme,
		User:     url.UserPassword(c.User, c.Password),
		Host:     c.Host + ":" + strconv.Itoa(c.Port),
		Path:     "/" + c.Database,
		RawQuery: c.settings().Encode(),
	}
	return u.String()
}

// settings are passed per connection. Write deadlines stay on the client
// side since some server versions reject write_timeout as a setting.
func (c Config) settings() url.Values {
	q := url.Values{}
	if c.DialTimeout > 0 {
		q.Set("dial_timeout", c.DialTimeout.String())
	}
	if c.ReadTimeout > 0 {
		q.Set("read_timeout", c.ReadTimeout.String())
	}
	if c.MaxExecutionTime > 0 {
		q.Set("max_execution_time", strconv.Itoa(int(c.MaxExecutionTime.Seconds())))
	}
	// lifecycle events are small and frequent
	if c.AsyncInsert {
		q.Set("async_insert", "1")
		if c.WaitForAsync {
			q.Set("wait_for_async_insert", "1")
		}
	}
	return q
}
