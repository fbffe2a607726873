// Package config loads the server's JSON configuration file into
// validated structures, including the application catalogue.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/mmserver/mmserverd/internal/appcatalog"
)

// ServerConfig holds the top-level `server { ... }` configuration block.
type ServerConfig struct {
	Bind             string    `json:"bind"`
	BindSystemd      string    `json:"bind_systemd,omitempty"`
	TLSCert          string    `json:"tls_cert,omitempty"`
	TLSKey           string    `json:"tls_key,omitempty"`
	WorkerThreads    int       `json:"worker_threads"`
	MaxConnections   int       `json:"max_connections"` // 0 means use DefaultMaxConnections; negative means unbounded ("inf")
	MDNS             bool      `json:"mdns"`
	MDNSHostname     string    `json:"mdns_hostname,omitempty"`
	MDNSInstanceName string    `json:"mdns_instance_name,omitempty"`
	VideoFECRatios   []float64 `json:"video_fec_ratios,omitempty"`
}

// DefaultAppSettings holds the `default_app_settings { ... }` block;
// per-application settings fall back to these when unset.
type DefaultAppSettings struct {
	XWayland       bool   `json:"xwayland"`
	Force1xScale   bool   `json:"force_1x_scale"`
	SessionTimeout string `json:"session_timeout,omitempty"` // Go duration string, e.g. "2m"
	IsolateHome    bool   `json:"isolate_home"`
	SharedHomeName string `json:"shared_home_name,omitempty"`
	TmpHome        bool   `json:"tmp_home"`
}

// appEntry mirrors one `apps.<name> { ... }` table entry.
type appEntry struct {
	Description    string            `json:"description,omitempty"`
	Command        []string          `json:"command"`
	Environment    map[string]string `json:"environment,omitempty"`
	AppPath        string            `json:"app_path,omitempty"`
	HeaderImage    string            `json:"header_image,omitempty"` // path to a PNG file
	XWayland       *bool             `json:"xwayland,omitempty"`
	Force1xScale   *bool             `json:"force_1x_scale,omitempty"`
	SessionTimeout string            `json:"session_timeout,omitempty"`
	IsolateHome    *bool             `json:"isolate_home,omitempty"`
	SharedHomeName string            `json:"shared_home_name,omitempty"`
	TmpHome        *bool             `json:"tmp_home,omitempty"`
}

// fileSchema is the top-level JSON document shape.
type fileSchema struct {
	Server             ServerConfig        `json:"server"`
	DefaultAppSettings DefaultAppSettings  `json:"default_app_settings"`
	Apps               map[string]appEntry `json:"apps"`
	IncludeApps        []string            `json:"include_apps,omitempty"`
}

// Config is the fully-resolved, validated configuration: server settings
// plus the built application catalogue.
type Config struct {
	Server  ServerConfig
	Catalog *appcatalog.Catalog
}

// DefaultMaxConnections is used when ServerConfig.MaxConnections is zero.
const DefaultMaxConnections = 4

// Load reads and merges a config file plus any include_apps files/
// directories, building the validated Config.
func Load(path string) (*Config, error) {
	schema, err := loadFile(path)
	if err != nil {
		return nil, err
	}

	merged := schema.Apps
	if merged == nil {
		merged = map[string]appEntry{}
	}
	for _, inc := range schema.IncludeApps {
		if err := mergeIncludes(inc, merged); err != nil {
			return nil, fmt.Errorf("include_apps %q: %w", inc, err)
		}
	}

	apps := make([]appcatalog.Application, 0, len(merged))
	for name, e := range merged {
		app, err := resolveApp(name, e, schema.DefaultAppSettings)
		if err != nil {
			return nil, err
		}
		apps = append(apps, app)
	}

	catalog, err := appcatalog.New(apps)
	if err != nil {
		return nil, err
	}

	if schema.Server.MaxConnections == 0 {
		schema.Server.MaxConnections = DefaultMaxConnections
	}

	return &Config{Server: schema.Server, Catalog: catalog}, nil
}

func loadFile(path string) (fileSchema, error) {
	var schema fileSchema
	data, err := os.ReadFile(path)
	if err != nil {
		return schema, fmt.Errorf("read config: %w", err)
	}
	if err := json.Unmarshal(data, &schema); err != nil {
		return schema, fmt.Errorf("parse config %s: %w", path, err)
	}
	return schema, nil
}

func mergeIncludes(path string, into map[string]appEntry) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}

	var files []string
	if info.IsDir() {
		entries, err := os.ReadDir(path)
		if err != nil {
			return err
		}
		for _, e := range entries {
			if !e.IsDir() && filepath.Ext(e.Name()) == ".json" {
				files = append(files, filepath.Join(path, e.Name()))
			}
		}
	} else {
		files = []string{path}
	}

	for _, f := range files {
		schema, err := loadFile(f)
		if err != nil {
			return err
		}
		for name, e := range schema.Apps {
			into[name] = e
		}
	}
	return nil
}

func resolveApp(name string, e appEntry, defaults DefaultAppSettings) (appcatalog.Application, error) {
	app := appcatalog.Application{
		Name:        name,
		Description: e.Description,
		Command:     e.Command,
		Environment: e.Environment,
		AppPath:     e.AppPath,
	}

	app.XWayland = boolOr(e.XWayland, defaults.XWayland)
	app.Force1xScale = boolOr(e.Force1xScale, defaults.Force1xScale)
	app.IsolateHome = boolOr(e.IsolateHome, defaults.IsolateHome)
	app.TmpHome = boolOr(e.TmpHome, defaults.TmpHome)

	app.SharedHomeName = e.SharedHomeName
	if app.SharedHomeName == "" {
		app.SharedHomeName = defaults.SharedHomeName
	}

	timeoutStr := e.SessionTimeout
	if timeoutStr == "" {
		timeoutStr = defaults.SessionTimeout
	}
	if timeoutStr == "" {
		app.SessionTimeout = 5 * time.Minute
	} else {
		d, err := time.ParseDuration(timeoutStr)
		if err != nil {
			return app, fmt.Errorf("application %q: invalid session_timeout %q: %w", name, timeoutStr, err)
		}
		app.SessionTimeout = d
	}

	if e.HeaderImage != "" {
		data, err := os.ReadFile(e.HeaderImage)
		if err != nil {
			return app, fmt.Errorf("application %q: header_image: %w", name, err)
		}
		app.HeaderImage = data
	}

	return app, nil
}

func boolOr(v *bool, fallback bool) bool {
	if v == nil {
		return fallback
	}
	return *v
}
