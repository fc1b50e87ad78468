package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/hexdbio/pgconn"
)

func TestFromEnvFillsUnsetFields(t *testing.T) {
	os.Setenv("PGHOST", "db.internal")
	os.Setenv("PGPORT", "5433")
	os.Setenv("PGUSER", "app")
	os.Setenv("PGPASSWORD", "secret")
	os.Setenv("PGDATABASE", "appdb")
	os.Setenv("PGSSLMODE", "require")
	defer func() {
		for _, k := range []string{"PGHOST", "PGPORT", "PGUSER", "PGPASSWORD", "PGDATABASE", "PGSSLMODE"} {
			os.Unsetenv(k)
		}
	}()

	c := FromEnv(Config{})
	if len(c.Hosts) != 1 || c.Hosts[0] != "db.internal" {
		t.Errorf("expected host from PGHOST, got %v", c.Hosts)
	}
	if len(c.Ports) != 1 || c.Ports[0] != 5433 {
		t.Errorf("expected port from PGPORT, got %v", c.Ports)
	}
	if c.User != "app" {
		t.Errorf("expected user from PGUSER, got %q", c.User)
	}
	if c.Password != "secret" {
		t.Errorf("expected password from PGPASSWORD, got %q", c.Password)
	}
	if c.Database != "appdb" {
		t.Errorf("expected database from PGDATABASE, got %q", c.Database)
	}
	if c.TLSMode != "require" {
		t.Errorf("expected tls_mode from PGSSLMODE, got %q", c.TLSMode)
	}
}

func TestFromEnvExplicitFieldsWin(t *testing.T) {
	os.Setenv("PGHOST", "env-host")
	os.Setenv("PGUSER", "env-user")
	defer func() {
		os.Unsetenv("PGHOST")
		os.Unsetenv("PGUSER")
	}()

	c := FromEnv(Config{Hosts: []string{"explicit-host"}, User: "explicit-user"})
	if c.Hosts[0] != "explicit-host" {
		t.Errorf("expected explicit host to win, got %v", c.Hosts)
	}
	if c.User != "explicit-user" {
		t.Errorf("expected explicit user to win, got %q", c.User)
	}
}

func TestFromEnvAppliesDefaults(t *testing.T) {
	c := FromEnv(Config{})
	if len(c.Ports) != 1 || c.Ports[0] != 5432 {
		t.Errorf("expected default port 5432, got %v", c.Ports)
	}
	if c.TLSMode != "prefer" {
		t.Errorf("expected default tls_mode prefer, got %q", c.TLSMode)
	}
	if c.QueueDepth != 64 {
		t.Errorf("expected default queue depth 64, got %d", c.QueueDepth)
	}
	if c.ConnectTimeout != 10*time.Second {
		t.Errorf("expected default connect timeout 10s, got %v", c.ConnectTimeout)
	}
}

func TestParamsTranslatesEnums(t *testing.T) {
	c := Config{
		Hosts:              []string{"localhost"},
		TLSMode:            "require",
		ChannelBinding:     "require",
		TargetSessionAttrs: "read-write",
	}
	p, err := c.Params()
	if err != nil {
		t.Fatalf("Params failed: %v", err)
	}
	if p.TLSMode != pgconn.TLSRequire {
		t.Errorf("expected TLSRequire, got %v", p.TLSMode)
	}
	if p.ChannelBinding != pgconn.ChannelBindingRequire {
		t.Errorf("expected ChannelBindingRequire, got %v", p.ChannelBinding)
	}
	if p.TargetSessionAttrs != pgconn.TargetReadWrite {
		t.Errorf("expected TargetReadWrite, got %v", p.TargetSessionAttrs)
	}
}

func TestParamsUnknownTLSMode(t *testing.T) {
	c := Config{TLSMode: "bogus"}
	if _, err := c.Params(); err == nil {
		t.Error("expected error for unknown tls_mode")
	}
}

func TestParamsDefaultsWhenEmpty(t *testing.T) {
	p, err := Config{}.Params()
	if err != nil {
		t.Fatalf("Params failed: %v", err)
	}
	if len(p.Hosts) != 1 || p.Hosts[0] != "localhost" {
		t.Errorf("expected fallback host localhost, got %v", p.Hosts)
	}
	if len(p.Ports) != 1 || p.Ports[0] != 5432 {
		t.Errorf("expected fallback port 5432, got %v", p.Ports)
	}
}

func TestLoadProfiles(t *testing.T) {
	yaml := `
primary:
  hosts: ["db-a", "db-b"]
  ports: [5432]
  user: app
  database: appdb
  tls_mode: require
replica:
  hosts: ["db-replica"]
  user: app
  database: appdb
`
	path := writeTemp(t, yaml)

	profiles, err := LoadProfiles(path)
	if err != nil {
		t.Fatalf("LoadProfiles failed: %v", err)
	}
	primary, ok := profiles["primary"]
	if !ok {
		t.Fatal("primary profile not found")
	}
	if len(primary.Hosts) != 2 || primary.Hosts[1] != "db-b" {
		t.Errorf("expected two hosts for primary, got %v", primary.Hosts)
	}
	replica, ok := profiles["replica"]
	if !ok {
		t.Fatal("replica profile not found")
	}
	if len(replica.Ports) != 1 || replica.Ports[0] != 5432 {
		t.Errorf("expected default port applied to replica, got %v", replica.Ports)
	}
}

func TestLoadProfilesEnvSubstitution(t *testing.T) {
	os.Setenv("TEST_PROFILE_PASSWORD", "s3cret")
	defer os.Unsetenv("TEST_PROFILE_PASSWORD")

	yaml := `
primary:
  hosts: ["localhost"]
  user: app
  password: ${TEST_PROFILE_PASSWORD}
`
	path := writeTemp(t, yaml)

	profiles, err := LoadProfiles(path)
	if err != nil {
		t.Fatalf("LoadProfiles failed: %v", err)
	}
	if profiles["primary"].Password != "s3cret" {
		t.Errorf("expected substituted password, got %q", profiles["primary"].Password)
	}
}

func writeTemp(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "profiles.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("writing temp file: %v", err)
	}
	return path
}
