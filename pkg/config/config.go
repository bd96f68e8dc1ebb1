// Package config provides a go-simpler.org/env configuration table for the
// wallet client tools, an optional .env file in the XDG config directory, and
// the persisted connection record.
package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"reflect"
	"sort"
	"strings"
	"time"

	"github.com/adrg/xdg"
	"go-simpler.org/env"

	"nwclink.dev/pkg/utils/apputil"
	"nwclink.dev/pkg/utils/chk"
	env2 "nwclink.dev/pkg/utils/env"
	"nwclink.dev/pkg/utils/log"
	"nwclink.dev/pkg/version"
)

// C holds the configuration for the wallet client tools, loaded from
// environment variables with an optional .env file underneath.
type C struct {
	AppName    string        `env:"NWCLINK_APP_NAME" default:"nwclink"`
	Config     string        `env:"NWCLINK_CONFIG_DIR" usage:"location of the .env configuration file" default:"~/.config/nwclink"`
	State      string        `env:"NWCLINK_STATE_DATA_DIR" usage:"storage location for the persisted connection record" default:"~/.local/state/nwclink"`
	LogLevel   string        `env:"NWCLINK_LOG_LEVEL" default:"info" usage:"debug level: fatal error warn info debug trace"`
	Connection string        `env:"NWCLINK_CONNECTION" usage:"wallet connection string, nostr+walletconnect://..."`
	BridgeURL  string        `env:"NWCLINK_BRIDGE_URL" usage:"HTTP bridge endpoint; when set the bridge is tried before the relays"`
	Timeout    time.Duration `env:"NWCLINK_TIMEOUT" default:"10s" usage:"per-call deadline, uses notation 0h0m0s"`
	Strict     bool          `env:"NWCLINK_STRICT" default:"false" usage:"refuse methods the wallet does not advertise"`
}

// New loads the configuration from the environment, then from the .env file
// in the config directory if one exists, and sets the log level.
func New() (cfg *C, err error) {
	cfg = &C{}
	if err = env.Load(cfg, &env.Options{SliceSep: ","}); chk.T(err) {
		return
	}
	if cfg.Config == "" || strings.Contains(cfg.Config, "~") {
		cfg.Config = filepath.Join(xdg.ConfigHome, cfg.AppName)
	}
	if cfg.State == "" || strings.Contains(cfg.State, "~") {
		cfg.State = filepath.Join(xdg.StateHome, cfg.AppName)
	}
	envPath := filepath.Join(cfg.Config, ".env")
	if apputil.FileExists(envPath) {
		var e env2.Env
		if e, err = env2.GetEnv(envPath); chk.T(err) {
			return
		}
		if err = env.Load(
			cfg, &env.Options{SliceSep: ",", Source: e},
		); chk.E(err) {
			return
		}
		log.I.F("loaded configuration from %s", envPath)
	}
	log.SetLogLevel(cfg.LogLevel)
	return
}

// HelpRequested reports whether the first CLI argument asks for help.
func HelpRequested() (help bool) {
	if len(os.Args) > 1 {
		switch strings.ToLower(os.Args[1]) {
		case "help", "-h", "--h", "-help", "--help", "?":
			help = true
		}
	}
	return
}

// GetEnv reports whether the first CLI argument is "env", requesting a dump
// of the current configuration.
func GetEnv() (requested bool) {
	if len(os.Args) > 1 {
		if strings.ToLower(os.Args[1]) == "env" {
			requested = true
		}
	}
	return
}

// KV is a key/value pair.
type KV struct{ Key, Value string }

// KVSlice is a sortable slice of key/value pairs.
type KVSlice []KV

func (kv KVSlice) Len() int           { return len(kv) }
func (kv KVSlice) Less(i, j int) bool { return kv[i].Key < kv[j].Key }
func (kv KVSlice) Swap(i, j int)      { kv[i], kv[j] = kv[j], kv[i] }

// EnvKV extracts the env-tagged fields of a configuration struct as
// key/value pairs.
func EnvKV(cfg any) (m KVSlice) {
	t := reflect.TypeOf(cfg)
	for i := 0; i < t.NumField(); i++ {
		k := t.Field(i).Tag.Get("env")
		if k == "" {
			continue
		}
		v := reflect.ValueOf(cfg).Field(i).Interface()
		var val string
		switch v := v.(type) {
		case string:
			val = v
		case int, bool, time.Duration:
			val = fmt.Sprint(v)
		case []string:
			if len(v) > 0 {
				val = strings.Join(v, ",")
			}
		}
		m = append(m, KV{k, val})
	}
	return
}

// PrintEnv writes the configuration as sorted KEY=value lines.
func PrintEnv(cfg *C, printer io.Writer) {
	kvs := EnvKV(*cfg)
	sort.Sort(kvs)
	for _, v := range kvs {
		_, _ = fmt.Fprintf(printer, "%s=%s\n", v.Key, v.Value)
	}
}

// PrintHelp writes the version, the environment variable reference and the
// current configuration.
func PrintHelp(cfg *C, printer io.Writer) {
	_, _ = fmt.Fprintf(printer, "%s %s\n\n", cfg.AppName, version.V)
	_, _ = fmt.Fprintf(
		printer,
		"Environment variables that configure %s:\n\n", cfg.AppName,
	)
	env.Usage(cfg, printer, &env.Options{SliceSep: ","})
	_, _ = fmt.Fprintf(
		printer,
		"\na .env file at %s/.env is loaded automatically;\n"+
			"use the parameter 'env' to print the current configuration:\n\n"+
			"\t%s env > %s/.env\n\ncurrent configuration:\n\n",
		cfg.Config, os.Args[0], cfg.Config,
	)
	PrintEnv(cfg, printer)
	_, _ = fmt.Fprintln(printer)
}
