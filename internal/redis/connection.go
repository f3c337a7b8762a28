// Package redis holds the redigo connection plumbing shared by the Redis
// job store and lock manager.
package redis

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"net/url"
	"os"
	"time"

	jqerrors "github.com/BranchIntl/jobqueue/errors"
	"github.com/gomodule/redigo/redis"
)

var (
	// ErrInvalidScheme is returned when the Redis URI scheme is invalid
	ErrInvalidScheme = errors.New("invalid Redis database URI scheme")
)

// Options configures the connection pool
type Options struct {
	URI            string
	MaxConnections int
	MaxIdle        int
	IdleTimeout    time.Duration
	ConnectTimeout time.Duration
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration

	UseTLS        bool
	TLSSkipVerify bool
	TLSCertPath   string
}

// NewPool creates a Redis connection pool. Connections are dialed lazily.
func NewPool(opts Options) *redis.Pool {
	return &redis.Pool{
		MaxActive:   opts.MaxConnections,
		MaxIdle:     opts.MaxIdle,
		IdleTimeout: opts.IdleTimeout,
		Dial: func() (redis.Conn, error) {
			return Dial(opts)
		},
		TestOnBorrow: func(c redis.Conn, t time.Time) error {
			if time.Since(t) < time.Minute {
				return nil
			}
			_, err := c.Do("PING")
			return err
		},
	}
}

// Dial establishes a single Redis connection
func Dial(opts Options) (redis.Conn, error) {
	uri, err := url.Parse(opts.URI)
	if err != nil {
		return nil, jqerrors.NewConnectionError(Redact(opts.URI),
			fmt.Errorf("invalid URI: %w", err))
	}

	dialOptions := []redis.DialOption{
		redis.DialConnectTimeout(opts.ConnectTimeout),
		redis.DialReadTimeout(opts.ReadTimeout),
		redis.DialWriteTimeout(opts.WriteTimeout),
	}

	var network, address string
	switch uri.Scheme {
	case "redis", "rediss":
		network, address = "tcp", uri.Host
		if uri.User != nil {
			if password, ok := uri.User.Password(); ok {
				dialOptions = append(dialOptions, redis.DialPassword(password))
			}
			if name := uri.User.Username(); name != "" {
				dialOptions = append(dialOptions, redis.DialUsername(name))
			}
		}
		if len(uri.Path) > 1 {
			var db int
			if _, err := fmt.Sscanf(uri.Path[1:], "%d", &db); err != nil {
				return nil, jqerrors.NewConnectionError(Redact(opts.URI),
					fmt.Errorf("invalid database %q: %w", uri.Path[1:], err))
			}
			dialOptions = append(dialOptions, redis.DialDatabase(db))
		}

		if uri.Scheme == "rediss" || opts.UseTLS {
			tlsConfig := &tls.Config{
				InsecureSkipVerify: opts.TLSSkipVerify, //nolint:gosec // opt-in via configuration
			}
			if opts.TLSCertPath != "" {
				pool, err := LoadCertPool(opts.TLSCertPath)
				if err != nil {
					return nil, err
				}
				tlsConfig.RootCAs = pool
			}
			dialOptions = append(dialOptions,
				redis.DialUseTLS(true),
				redis.DialTLSConfig(tlsConfig),
			)
		}
	case "unix":
		network, address = "unix", uri.Path
	default:
		return nil, jqerrors.NewConnectionError(Redact(opts.URI), ErrInvalidScheme)
	}

	conn, err := redis.Dial(network, address, dialOptions...)
	if err != nil {
		return nil, jqerrors.NewConnectionError(Redact(opts.URI),
			fmt.Errorf("failed to connect: %w", err))
	}
	return conn, nil
}

// Get borrows a connection from the pool, classifying failures as
// connection errors.
func Get(ctx context.Context, pool *redis.Pool, uri string) (redis.Conn, error) {
	if pool == nil {
		return nil, jqerrors.ErrNotConnected
	}
	conn, err := pool.GetContext(ctx)
	if err != nil {
		return nil, Classify(uri, err)
	}
	return conn, nil
}

// Classify wraps err as a ConnectionError unless it is a reply from the
// server itself. Server replies mean the store is reachable.
func Classify(uri string, err error) error {
	if err == nil {
		return nil
	}
	var reply redis.Error
	if errors.As(err, &reply) {
		return err
	}
	if errors.Is(err, redis.ErrNil) || jqerrors.IsUnavailable(err) {
		return err
	}
	return jqerrors.NewConnectionError(Redact(uri), err)
}

// Redact strips the password from a connection URI
func Redact(uri string) string {
	u, err := url.Parse(uri)
	if err != nil || u.User == nil {
		return uri
	}
	if _, ok := u.User.Password(); ok {
		u.User = url.UserPassword(u.User.Username(), "xxxxx")
	}
	return u.String()
}

// LoadCertPool loads a certificate pool from a file
func LoadCertPool(certPath string) (*x509.CertPool, error) {
	rootCAs, _ := x509.SystemCertPool()
	if rootCAs == nil {
		rootCAs = x509.NewCertPool()
	}

	certs, err := os.ReadFile(certPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read cert file %q: %w", certPath, err)
	}

	if ok := rootCAs.AppendCertsFromPEM(certs); !ok {
		return nil, fmt.Errorf("failed to append certs from %q", certPath)
	}

	return rootCAs, nil
}
