package env

import (
	"os"
	"path/filepath"
	"testing"
)

func TestGetEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	content := `
# a comment
NWCLINK_LOG_LEVEL=debug
NWCLINK_TIMEOUT = 30s
NWCLINK_CONNECTION="nostr+walletconnect://quoted"
NWCLINK_BRIDGE_URL='http://single.quoted'
MALFORMED LINE WITHOUT EQUALS
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	e, err := GetEnv(path)
	if err != nil {
		t.Fatal(err)
	}
	cases := map[string]string{
		"NWCLINK_LOG_LEVEL":  "debug",
		"NWCLINK_TIMEOUT":    "30s",
		"NWCLINK_CONNECTION": "nostr+walletconnect://quoted",
		"NWCLINK_BRIDGE_URL": "http://single.quoted",
	}
	for k, want := range cases {
		got, ok := e.LookupEnv(k)
		if !ok || got != want {
			t.Errorf("%s: got %q ok=%v, want %q", k, got, ok, want)
		}
	}
	if _, ok := e.LookupEnv("MALFORMED"); ok {
		t.Error("malformed line produced a key")
	}
	if _, ok := e.LookupEnv("# a comment"); ok {
		t.Error("comment line produced a key")
	}
}

func TestGetEnvMissingFile(t *testing.T) {
	if _, err := GetEnv(filepath.Join(t.TempDir(), "nope")); err == nil {
		t.Error("missing file should error")
	}
}
