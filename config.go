package dbconsole

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

var DefaultConfigFile = func() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "dbconsole.json"
	}
	return filepath.Join(dir, "dbconsole", "config.json")
}()

// ErrEmptyConfig is returned by LoadConfig after it writes out a fresh,
// empty default config file.
var ErrEmptyConfig = errors.New("an empty config has been created - please fill it out")

type Config struct {
	Connections map[string]Connection `json:"connections"`
	Tunnels     map[string]SSHTunnel  `json:"tunnels"`
	Editor      Editor                `json:"editor"`
}

type Connection struct {
	Host              string            `json:"host,omitempty"`
	Port              int               `json:"port,omitempty"`
	Database          string            `json:"database,omitempty"`
	Username          string            `json:"username,omitempty"`
	Password          string            `json:"password,omitempty"` // optional, prompted for if empty
	Driver            string            `json:"driver,omitempty"`
	DriverOpts        map[string]string `json:"driver_opts,omitempty"`
	Schema            string            `json:"schema,omitempty"`              // optional, defaults to public
	Tunnel            string            `json:"tunnel,omitempty"`              // optional
	ConnectTimeoutSec int               `json:"connect_timeout_sec,omitempty"` // optional
	MaxOpenConns      int               `json:"max_open_conns,omitempty"`
}

type SSHTunnel struct {
	Host                   string     `json:"host,omitempty"`
	Port                   int        `json:"port,omitempty"`
	User                   string     `json:"user,omitempty"`
	AuthMethod             AuthMethod `json:"auth_method,omitempty"`
	Password               string     `json:"password,omitempty"`               // only used if auth_method is 'password'; optional, prompted for if empty
	PrivateKeyFile         string     `json:"private_key_file,omitempty"`       // only used if auth_method is 'public_key'
	PrivateKeyPassphrase   string     `json:"private_key_passphrase,omitempty"` // only used if auth_method is 'public_key' and private key is encrypted
	ConnectTimeoutSec      int        `json:"connect_timeout_sec,omitempty"`    // optional
	DisableVerifyKnownHost bool       `json:"disable_verify_known_host,omitempty"`
	HostPublicKeyFile      string     `json:"host_public_key_file,omitempty"` // optional
}

// Editor configures the query editing session shared by the hosts.
type Editor struct {
	HistoryFile      string `json:"history_file,omitempty"`       // optional, no autosave if empty
	FlushIntervalSec int    `json:"flush_interval_sec,omitempty"` // optional, defaults to 5
	PageSize         int    `json:"page_size,omitempty"`          // optional, defaults to 100
}

const (
	defaultFlushIntervalSec = 5
	defaultPageSize         = 100
)

func (e Editor) FlushInterval() time.Duration {
	return time.Duration(e.FlushIntervalSec) * time.Second
}

type AuthMethod string

const (
	PasswordAuth  AuthMethod = "password"
	PublicKeyAuth AuthMethod = "public_key"
	AgentAuth     AuthMethod = "agent"
)

// LoadConfig reads path into cfg. If path doesn't exist and isDefault is set,
// an empty config is written there and ErrEmptyConfig is returned.
func LoadConfig(path string, isDefault bool, cfg *Config) error {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) && isDefault {
			return writeEmptyConfig(path)
		}
		return fmt.Errorf("could not open %s: %w", path, err)
	}
	defer f.Close()

	if err := json.NewDecoder(f).Decode(cfg); err != nil {
		return fmt.Errorf("invalid config json: %w", err)
	}

	cfg.applyDefaults()

	if err := cfg.validate(); err != nil {
		return fmt.Errorf("invalid config:\n%w", err)
	}

	if len(cfg.Connections) == 0 {
		return fmt.Errorf("no connections defined in %s", path)
	}
	return nil
}

func writeEmptyConfig(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create default config file: %w", err)
	}
	defer f.Close()

	empty := Config{
		Connections: make(map[string]Connection),
		Tunnels:     make(map[string]SSHTunnel),
	}
	empty.applyDefaults()

	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	if err := enc.Encode(&empty); err != nil {
		return fmt.Errorf("failed to write default config file: %w", err)
	}
	return fmt.Errorf("%s: %w", path, ErrEmptyConfig)
}

func (c *Config) applyDefaults() {
	if c.Editor.FlushIntervalSec == 0 {
		c.Editor.FlushIntervalSec = defaultFlushIntervalSec
	}
	if c.Editor.PageSize == 0 {
		c.Editor.PageSize = defaultPageSize
	}
}

func (c *Config) validate() error {
	var errs errorList

	for k, v := range c.Connections {
		if err := v.validate(k); err != nil {
			errs = append(errs, err)
		}

		if v.Tunnel != "" {
			if _, ok := c.Tunnels[v.Tunnel]; !ok {
				errs = append(errs, fmt.Errorf("%s.tunnel: '%s' does not exist", k, v.Tunnel))
			}
		}
	}

	for k, v := range c.Tunnels {
		if err := v.validate(k); err != nil {
			errs = append(errs, err)
		}
	}

	if err := c.Editor.validate("editor"); err != nil {
		errs = append(errs, err)
	}

	return makeErrorList(errs...)
}

func (c *Connection) validate(prefix string) error {
	var errs errorList

	if c.Host == "" {
		errs = append(errs, errors.New(prefix+".host: required"))
	}
	if c.Port == 0 {
		errs = append(errs, errors.New(prefix+".port: required"))
	}
	if c.Database == "" {
		errs = append(errs, errors.New(prefix+".database: required"))
	}
	if c.Username == "" {
		errs = append(errs, errors.New(prefix+".username: required"))
	}
	if c.Driver == "" {
		errs = append(errs, errors.New(prefix+".driver: required"))
	} else if !stringsContains(sql.Drivers(), c.Driver) {
		errs = append(errs, errors.New(prefix+".driver: not a supported driver"))
	}
	if c.ConnectTimeoutSec < 0 {
		errs = append(errs, errors.New(prefix+".connect_timeout_sec: must be greater than or equal to 0"))
	}

	return makeErrorList(errs...)
}

func (s *SSHTunnel) validate(prefix string) error {
	var errs errorList

	if s.Host == "" {
		errs = append(errs, errors.New(prefix+".host: required"))
	}
	if s.Port == 0 {
		errs = append(errs, errors.New(prefix+".port: required"))
	}
	if s.User == "" {
		errs = append(errs, errors.New(prefix+".user: required"))
	}
	if err := s.AuthMethod.validate(); err != nil {
		errs = append(errs, errors.New(prefix+".auth_method: "+err.Error()))
	}
	if s.ConnectTimeoutSec < 0 {
		errs = append(errs, errors.New(prefix+".connect_timeout_sec: must be greater than or equal to 0"))
	}

	return makeErrorList(errs...)
}

func (e *Editor) validate(prefix string) error {
	var errs errorList

	if e.FlushIntervalSec < 0 {
		errs = append(errs, errors.New(prefix+".flush_interval_sec: must be greater than or equal to 0"))
	}
	if e.PageSize < 0 {
		errs = append(errs, errors.New(prefix+".page_size: must be greater than or equal to 0"))
	}

	return makeErrorList(errs...)
}

func (a AuthMethod) validate() error {
	switch a {
	case PasswordAuth, PublicKeyAuth, AgentAuth:
		return nil

	case "":
		return errors.New("required")

	default:
		return errors.New("must be one of: password, public_key, agent")
	}
}

type errorList []error

// makeErrorList flattens errs into a single error, dropping nils.
// It returns nil if nothing is left.
func makeErrorList(errs ...error) error {
	list := make(errorList, 0, len(errs))

	for _, err := range errs {
		switch v := err.(type) {
		case errorList:
			list = append(list, v...)
		case nil:
			continue
		default:
			list = append(list, err)
		}
	}

	if len(list) != 0 {
		return list
	}
	return nil
}

func (e errorList) Error() string {
	var sb strings.Builder

	for _, err := range e {
		sb.WriteString(err.Error())
		sb.WriteByte('\n')
	}

	return sb.String()
}
