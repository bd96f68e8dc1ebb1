package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"nwclink.dev/pkg/utils/apputil"
	"nwclink.dev/pkg/utils/chk"
)

// recordVersion is the current on-disk shape of the connection record.
const recordVersion = 1

// ConnectionRecord is the persisted wallet connection, written as a versioned
// JSON document so the shape can evolve without guessing at old files.
type ConnectionRecord struct {
	Version    int    `json:"version"`
	Connection string `json:"connection"`
}

// ConnectionPath is where the connection record is stored.
func (cfg *C) ConnectionPath() string {
	return filepath.Join(cfg.State, "connection.json")
}

// SaveConnection persists the connection string, creating the state directory
// if needed. The file carries the secret, so it is written user-only.
func (cfg *C) SaveConnection(uri string) (err error) {
	path := cfg.ConnectionPath()
	if err = apputil.EnsureDir(path); chk.E(err) {
		return
	}
	var b []byte
	if b, err = json.MarshalIndent(
		&ConnectionRecord{Version: recordVersion, Connection: uri}, "", "\t",
	); chk.E(err) {
		return
	}
	if err = os.WriteFile(path, b, 0o600); chk.E(err) {
		return
	}
	return
}

// LoadConnection reads back the persisted connection string. Files written
// before the record was versioned hold the bare URI and are accepted as
// version zero.
func (cfg *C) LoadConnection() (uri string, err error) {
	var b []byte
	if b, err = os.ReadFile(cfg.ConnectionPath()); err != nil {
		return
	}
	rec := &ConnectionRecord{}
	if jerr := json.Unmarshal(b, rec); jerr != nil {
		uri = strings.TrimSpace(string(b))
		return
	}
	if rec.Version > recordVersion {
		err = fmt.Errorf(
			"connection record version %d is newer than this build understands (%d)",
			rec.Version, recordVersion,
		)
		return
	}
	uri = rec.Connection
	return
}
