package atmosphere

import (
	"fmt"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/go-playground/validator/v10"
)

type (
	// Settings holds the deployment settings shared by the daemons
	Settings struct {
		Debug              bool               `toml:"debug"`
		DeployServerURL    string             `toml:"deploy_server_url" validate:"required,url"`
		InstanceServiceURL string             `toml:"instance_service_url" validate:"omitempty,url"`
		VNCLicense         string             `toml:"vnc_license"`
		Ansible            AnsibleSettings    `toml:"ansible"`
		Hostnaming         HostnamingSettings `toml:"hostnaming"`
		DeployLog          DeployLogSettings  `toml:"deploy_log"`
		SSH                SSHSettings        `toml:"ssh"`
	}

	// SSHSettings are used to reach instances for script deployments
	SSHSettings struct {
		User           string `toml:"user"`
		Port           int    `toml:"port" validate:"omitempty,min=1,max=65535"`
		KeyPath        string `toml:"key_path"`
		KnownHostsPath string `toml:"known_hosts_path"`
		// InsecureSkipHostKeyChecking accepts any host key. Freshly booted
		// instances have keys nobody has seen yet.
		InsecureSkipHostKeyChecking bool     `toml:"insecure_skip_host_key_checking"`
		Timeout                     Duration `toml:"timeout"`
	}

	// Duration is a time.Duration read from a TOML string like "30s"
	Duration struct {
		time.Duration
	}

	// AnsibleSettings locates playbooks, roles and inventory
	AnsibleSettings struct {
		Executable   string `toml:"executable"`
		PlaybooksDir string `toml:"playbooks_dir"`
		RolesPath    string `toml:"roles_path"`
		HostFile     string `toml:"host_file"`
		ConfigFile   string `toml:"config_file"`
		FactCacheDir string `toml:"fact_cache_dir"`
	}

	// HostnamingSettings controls how instance hostnames are derived from
	// their IP. Format is a text/template with the fields One, Two, Three,
	// Four (the IPv4 octets) and Domain, e.g. "vm{{.Three}}-{{.Four}}.{{.Domain}}".
	HostnamingSettings struct {
		Format string `toml:"format"`
		Domain string `toml:"domain"`
	}

	// DeployLogSettings configures the rotated per-instance deploy log
	DeployLogSettings struct {
		File       string `toml:"file"`
		MaxSize    int    `toml:"max_size" validate:"omitempty,min=1,max=1024"`
		MaxBackups int    `toml:"max_backups" validate:"omitempty,min=1,max=100"`
		MaxAge     int    `toml:"max_age" validate:"omitempty,min=1,max=365"`
	}
)

// UnmarshalText parses a duration string
func (d *Duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// DefaultSettings returns settings suitable for a local development setup
func DefaultSettings() *Settings {
	return &Settings{
		DeployServerURL:    "http://localhost:18000",
		InstanceServiceURL: "http://localhost:18000/api/v1/instance",
		Ansible: AnsibleSettings{
			Executable:   "ansible-playbook",
			PlaybooksDir: "/opt/atmosphere/ansible/playbooks",
			RolesPath:    "/opt/atmosphere/ansible/roles",
			HostFile:     "/opt/atmosphere/ansible/hosts",
			FactCacheDir: "/tmp/atmosphere/facts",
		},
		DeployLog: DeployLogSettings{
			File:       "/var/log/atmosphere/deploy.log",
			MaxSize:    50,
			MaxBackups: 5,
			MaxAge:     30,
		},
		SSH: SSHSettings{
			User:    "root",
			Port:    22,
			KeyPath: "/etc/atmosphere/id_rsa",
			Timeout: Duration{30 * time.Second},
		},
	}
}

// LoadSettings reads a TOML settings file on top of DefaultSettings
func LoadSettings(path string) (*Settings, error) {
	s := DefaultSettings()
	if path != "" {
		if _, err := toml.DecodeFile(path, s); err != nil {
			return nil, err
		}
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

// Validate checks that all fields in Settings are valid
func (s *Settings) Validate() error {
	validate := validator.New()
	if err := validate.Struct(s); err != nil {
		return fmt.Errorf("validation failed for Settings: %w", err)
	}
	if s.Ansible.Executable == "" {
		return fmt.Errorf("ansible executable is required")
	}
	return nil
}

// Runtime overrides read by OverlaySettings
const (
	ConfigDebug      = "debug"
	ConfigVNCLicense = "vnc_license"
	ConfigHostFormat = "hostnaming_format"
	ConfigHostDomain = "hostnaming_domain"
)

// OverlaySettings returns a copy of s with any values set in the kv config
// applied on top.
func (c *Context) OverlaySettings(s *Settings) (*Settings, error) {
	out := *s
	overrides := []struct {
		key   string
		apply func(string)
	}{
		{ConfigDebug, func(v string) { out.Debug = ToBool(v) }},
		{ConfigVNCLicense, func(v string) { out.VNCLicense = v }},
		{ConfigHostFormat, func(v string) { out.Hostnaming.Format = v }},
		{ConfigHostDomain, func(v string) { out.Hostnaming.Domain = v }},
	}
	for _, o := range overrides {
		v, err := c.GetConfig(o.key)
		if err != nil {
			if c.IsKeyNotFound(err) {
				continue
			}
			return nil, err
		}
		o.apply(v)
	}
	return &out, nil
}
