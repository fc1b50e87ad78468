// Package config builds pgconn.ConnectParams from explicit fields, PG*
// environment variables, and an optional YAML profile file, mirroring the
// teacher's "explicit override, else default" accessor pattern
// (internal/config) but reshaped from multi-tenant pool configuration to
// named connection profiles — the single-connection analogue of a
// .pg_service.conf file.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/hexdbio/pgconn"
)

// Config is one connection profile, convertible to pgconn.ConnectParams via
// Params.
type Config struct {
	Hosts              []string          `yaml:"hosts"`
	Ports              []int             `yaml:"ports"`
	Database           string            `yaml:"database"`
	User               string            `yaml:"user"`
	Password           string            `yaml:"password"`
	ApplicationName    string            `yaml:"application_name"`
	TLSMode            string            `yaml:"tls_mode"`
	ChannelBinding     string            `yaml:"channel_binding"`
	TargetSessionAttrs string            `yaml:"target_session_attrs"`
	ConnectTimeout     time.Duration     `yaml:"connect_timeout"`
	KeepAlive          time.Duration     `yaml:"keepalive"`
	QueueDepth         int               `yaml:"queue_depth"`
	RuntimeParams      map[string]string `yaml:"runtime_params"`
}

// Profiles is a named set of Config entries, the unit a YAML profile file
// loads (analogous to the teacher's map[string]TenantConfig).
type Profiles map[string]Config

// FromEnv builds a Config from the standard libpq environment variables
// (SPEC_FULL.md §6): PGHOST, PGPORT, PGUSER, PGPASSWORD, PGDATABASE,
// PGOPTIONS, PGSSLMODE, PGAPPNAME, PGCONNECT_TIMEOUT. Any field already set
// on base takes precedence over the environment.
func FromEnv(base Config) Config {
	c := base
	if len(c.Hosts) == 0 {
		if host := os.Getenv("PGHOST"); host != "" {
			c.Hosts = []string{host}
		}
	}
	if len(c.Ports) == 0 {
		if port := os.Getenv("PGPORT"); port != "" {
			if n, err := strconv.Atoi(port); err == nil {
				c.Ports = []int{n}
			}
		}
	}
	if c.User == "" {
		c.User = os.Getenv("PGUSER")
	}
	if c.Password == "" {
		c.Password = os.Getenv("PGPASSWORD")
	}
	if c.Database == "" {
		c.Database = os.Getenv("PGDATABASE")
	}
	if c.ApplicationName == "" {
		c.ApplicationName = os.Getenv("PGAPPNAME")
	}
	if c.TLSMode == "" {
		c.TLSMode = os.Getenv("PGSSLMODE")
	}
	if c.ConnectTimeout == 0 {
		if raw := os.Getenv("PGCONNECT_TIMEOUT"); raw != "" {
			if n, err := strconv.Atoi(raw); err == nil {
				c.ConnectTimeout = time.Duration(n) * time.Second
			}
		}
	}
	if options := os.Getenv("PGOPTIONS"); options != "" {
		if c.RuntimeParams == nil {
			c.RuntimeParams = map[string]string{}
		}
		if _, ok := c.RuntimeParams["options"]; !ok {
			c.RuntimeParams["options"] = options
		}
	}
	applyDefaults(&c)
	return c
}

func applyDefaults(c *Config) {
	if len(c.Ports) == 0 {
		c.Ports = []int{5432}
	}
	if c.TLSMode == "" {
		c.TLSMode = "prefer"
	}
	if c.QueueDepth == 0 {
		c.QueueDepth = 64
	}
	if c.ConnectTimeout == 0 {
		c.ConnectTimeout = 10 * time.Second
	}
}

// Params converts a Config into pgconn.ConnectParams, translating the
// string-typed YAML/env enums into pgconn's typed TLSMode,
// ChannelBindingMode, and TargetSessionAttrs.
func (c Config) Params() (pgconn.ConnectParams, error) {
	tlsMode, err := parseTLSMode(c.TLSMode)
	if err != nil {
		return pgconn.ConnectParams{}, err
	}
	cb, err := parseChannelBinding(c.ChannelBinding)
	if err != nil {
		return pgconn.ConnectParams{}, err
	}
	attrs, err := parseTargetSessionAttrs(c.TargetSessionAttrs)
	if err != nil {
		return pgconn.ConnectParams{}, err
	}

	hosts := c.Hosts
	if len(hosts) == 0 {
		hosts = []string{"localhost"}
	}
	ports := c.Ports
	if len(ports) == 0 {
		ports = []int{5432}
	}

	return pgconn.ConnectParams{
		Hosts:              hosts,
		Ports:              ports,
		Database:           c.Database,
		User:               c.User,
		Password:           c.Password,
		ApplicationName:    c.ApplicationName,
		TLSMode:            tlsMode,
		ChannelBinding:     cb,
		TargetSessionAttrs: attrs,
		ConnectTimeout:     c.ConnectTimeout,
		KeepAlive:          c.KeepAlive,
		RuntimeParams:      c.RuntimeParams,
		QueueDepth:         c.QueueDepth,
	}, nil
}

func parseTLSMode(s string) (pgconn.TLSMode, error) {
	switch s {
	case "", "prefer":
		return pgconn.TLSPrefer, nil
	case "disable":
		return pgconn.TLSDisable, nil
	// verify-ca/verify-full are accepted for libpq familiarity; without a
	// caller-supplied TLSConfig (RootCAs, ServerName) they behave exactly
	// like require, so they are not given distinct pgconn.TLSMode values.
	case "require", "verify-ca", "verify-full":
		return pgconn.TLSRequire, nil
	default:
		return 0, fmt.Errorf("unknown tls_mode %q", s)
	}
}

func parseChannelBinding(s string) (pgconn.ChannelBindingMode, error) {
	switch s {
	case "", "prefer":
		return pgconn.ChannelBindingPrefer, nil
	case "disable":
		return pgconn.ChannelBindingDisable, nil
	case "require":
		return pgconn.ChannelBindingRequire, nil
	default:
		return 0, fmt.Errorf("unknown channel_binding %q", s)
	}
}

func parseTargetSessionAttrs(s string) (pgconn.TargetSessionAttrs, error) {
	switch s {
	case "", "any":
		return pgconn.TargetAny, nil
	case "read-write":
		return pgconn.TargetReadWrite, nil
	default:
		return 0, fmt.Errorf("unknown target_session_attrs %q", s)
	}
}
