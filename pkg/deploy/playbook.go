package deploy

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"

	"github.com/hashicorp/go-multierror"
	"github.com/mistifyio/atmosphere"
	log "github.com/sirupsen/logrus"
)

// Playbook names run on their own
const (
	CheckNetworkingPlaybook = "00_check_networking"
	SSHSetupPlaybook        = "05_ssh_setup"
)

// ErrAnsibleNotConfigured is returned when the playbooks or roles directory
// is missing
var ErrAnsibleNotConfigured = errors.New("ansible is not configured: check the ansible settings")

// CheckAnsible reports whether the playbooks and roles directories exist
func CheckAnsible(s atmosphere.AnsibleSettings) error {
	for _, dir := range []string{s.PlaybooksDir, s.RolesPath} {
		if dir == "" {
			return ErrAnsibleNotConfigured
		}
		if _, err := os.Stat(dir); err != nil {
			log.WithFields(log.Fields{
				"dir":   dir,
				"error": err,
			}).Warn("ansible is not configured")
			return ErrAnsibleNotConfigured
		}
	}
	return nil
}

// Executor runs a command and returns its stdout. A non-zero exit is
// reported through err alongside whatever was written to stdout.
type Executor func(ctx context.Context, name string, args, env []string) ([]byte, error)

// ExecCommand is the default Executor
func ExecCommand(ctx context.Context, name string, args, env []string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Env = append(os.Environ(), env...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil && stderr.Len() > 0 {
		log.WithFields(log.Fields{
			"cmd":    name,
			"stderr": stderr.String(),
		}).Debug("command wrote to stderr")
	}
	return out, err
}

// HostStats are the per-host counters ansible reports for a playbook run
type HostStats struct {
	OK          int `json:"ok"`
	Changed     int `json:"changed"`
	Failures    int `json:"failures"`
	Unreachable int `json:"unreachable"`
	Skipped     int `json:"skipped"`
}

func (h HostStats) String() string {
	return fmt.Sprintf(" ok=%d changed=%d unreachable=%d failed=%d skipped=%d",
		h.OK, h.Changed, h.Unreachable, h.Failures, h.Skipped)
}

// PlaybookResult is the outcome of one playbook
type PlaybookResult struct {
	Playbook string
	Stats    map[string]HostStats
}

// Summary returns the counters for host
func (r *PlaybookResult) Summary(host string) HostStats {
	return r.Stats[host]
}

// RunOptions target a single host
type RunOptions struct {
	Hostname  string
	IP        string
	ExtraVars map[string]interface{}
}

// PlaybookRunner drives ansible-playbook
type PlaybookRunner struct {
	Settings atmosphere.AnsibleSettings
	Exec     Executor
}

// NewPlaybookRunner creates a runner using the local ansible-playbook
func NewPlaybookRunner(s atmosphere.AnsibleSettings) *PlaybookRunner {
	return &PlaybookRunner{
		Settings: s,
		Exec:     ExecCommand,
	}
}

// Discover returns the playbooks in dir, sorted
func (r *PlaybookRunner) Discover(dir string) ([]string, error) {
	playbooks, err := filepath.Glob(filepath.Join(dir, "*.yml"))
	if err != nil {
		return nil, err
	}
	sort.Strings(playbooks)
	return playbooks, nil
}

func (r *PlaybookRunner) env() []string {
	env := []string{
		"ANSIBLE_HOST_KEY_CHECKING=False",
		"ANSIBLE_STDOUT_CALLBACK=json",
		"ANSIBLE_ROLES_PATH=" + r.Settings.RolesPath,
	}
	if r.Settings.ConfigFile != "" {
		env = append(env, "ANSIBLE_CONFIG="+r.Settings.ConfigFile)
	}
	if r.Settings.FactCacheDir != "" {
		env = append(env,
			"ANSIBLE_CACHE_PLUGIN=jsonfile",
			"ANSIBLE_CACHE_PLUGIN_CONNECTION="+r.Settings.FactCacheDir,
		)
	}
	return env
}

// Run runs a single playbook against opts.IP. Failed and unreachable hosts
// are reported in the stats rather than as an error.
func (r *PlaybookRunner) Run(ctx context.Context, playbook string, opts RunOptions) (*PlaybookResult, error) {
	vars, err := json.Marshal(opts.ExtraVars)
	if err != nil {
		return nil, err
	}
	inventory := r.Settings.HostFile
	limit := opts.Hostname
	inline := inventory == ""
	if inline {
		inventory = opts.IP + ","
		limit = opts.IP
	}
	args := []string{
		"-i", inventory,
		"--limit", limit,
		"-e", string(vars),
		playbook,
	}

	out, execErr := r.Exec(ctx, r.Settings.Executable, args, r.env())
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	var parsed struct {
		Stats map[string]HostStats `json:"stats"`
	}
	if err := json.Unmarshal(out, &parsed); err != nil {
		if execErr != nil {
			return nil, execErr
		}
		return nil, fmt.Errorf("parsing %s output: %w", filepath.Base(playbook), err)
	}

	result := &PlaybookResult{
		Playbook: playbook,
		Stats:    parsed.Stats,
	}
	// inline inventories report the host by ip
	if inline && opts.Hostname != "" {
		if stats, ok := result.Stats[opts.IP]; ok {
			result.Stats[opts.Hostname] = stats
		}
	}
	return result, nil
}

// AnsibleDeployError aggregates the unreachable and failed hosts of a set of
// playbook runs
type AnsibleDeployError struct {
	errs *multierror.Error
}

// Errors returns the individual playbook errors
func (e *AnsibleDeployError) Errors() []error {
	if e.errs == nil {
		return nil
	}
	return e.errs.Errors
}

func (e *AnsibleDeployError) Error() string {
	errs := e.Errors()
	msgs := make([]string, 0, len(errs))
	for _, err := range errs {
		msgs = append(msgs, err.Error())
	}
	return strings.Join(msgs, "|")
}

// Unwrap returns the aggregated errors
func (e *AnsibleDeployError) Unwrap() error {
	if e.errs == nil {
		return nil
	}
	return e.errs
}

// Deployer runs playbooks against instances
type Deployer struct {
	Settings *atmosphere.Settings
	Runner   *PlaybookRunner
	Logger   *log.Logger
}

// NewDeployer creates a Deployer from settings
func NewDeployer(s *atmosphere.Settings) *Deployer {
	return &Deployer{
		Settings: s,
		Runner:   NewPlaybookRunner(s.Ansible),
		Logger:   NewDeployLogger(s.DeployLog),
	}
}

// Target is an instance playbooks run against
type Target struct {
	IP         string
	InstanceID string
	User       *atmosphere.AtmosphereUser
}

func (t Target) username() string {
	if t.User == nil {
		return ""
	}
	return t.User.Username
}

func (d *Deployer) extraVars(t Target) map[string]interface{} {
	keys := []string{}
	if t.User != nil {
		keys = t.User.AuthorizedKeys()
	}
	return map[string]interface{}{
		"ATMOUSERNAME": t.username(),
		"VNCLICENSE":   d.Settings.VNCLicense,
		"USERSSHKEYS":  keys,
	}
}

// playbookName is the playbook path relative to the playbooks dir
func (d *Deployer) playbookName(playbook string) string {
	rel, err := filepath.Rel(d.Settings.Ansible.PlaybooksDir, filepath.Dir(playbook))
	if err != nil || rel == "." {
		return filepath.Base(playbook)
	}
	return filepath.Join(rel, filepath.Base(playbook))
}

// cacheBust drops the cached facts of hostname
func (d *Deployer) cacheBust(hostname string) {
	if d.Settings.Ansible.FactCacheDir == "" {
		return
	}
	err := os.RemoveAll(filepath.Join(d.Settings.Ansible.FactCacheDir, hostname))
	if err != nil {
		log.WithFields(log.Fields{
			"hostname": hostname,
			"error":    err,
		}).Warn("failed to bust fact cache")
	}
}

// run executes the playbooks in dir accepted by filter, logs summaries and
// aggregates errors. Nothing runs, and no error is returned, when ansible is
// not configured.
func (d *Deployer) run(ctx context.Context, t Target, dir string, filter func(string) bool, allowFailures bool) ([]*PlaybookResult, error) {
	if err := CheckAnsible(d.Settings.Ansible); err != nil {
		return []*PlaybookResult{}, nil
	}
	logger := InstanceLogger(d.Logger, t.IP, t.username(), t.InstanceID)
	hostname := BuildHostName(d.Settings.Hostnaming, t.IP)

	playbooks, err := d.Runner.Discover(dir)
	if err != nil {
		return nil, err
	}

	d.cacheBust(hostname)
	results := []*PlaybookResult{}
	for _, playbook := range playbooks {
		if filter != nil && !filter(playbook) {
			continue
		}
		result, err := d.Runner.Run(ctx, playbook, RunOptions{
			Hostname:  hostname,
			IP:        t.IP,
			ExtraVars: d.extraVars(t),
		})
		if err != nil {
			logger.WithFields(log.Fields{
				"playbook": d.playbookName(playbook),
				"error":    err,
			}).Error("playbook did not run")
			return results, err
		}
		results = append(results, result)
	}

	for _, result := range results {
		logger.Info(d.playbookName(result.Playbook) + result.Summary(hostname).String())
	}
	if err := d.playbookErrors(results, hostname, allowFailures); err != nil {
		return results, err
	}
	d.cacheBust(hostname)
	return results, nil
}

func (d *Deployer) playbookErrors(results []*PlaybookResult, hostname string, allowFailures bool) error {
	var errs *multierror.Error
	for _, result := range results {
		stats := result.Summary(hostname)
		if stats.Unreachable > 0 {
			errs = multierror.Append(errs, fmt.Errorf("%d => Unreachable with PlayBook %s",
				stats.Unreachable, d.playbookName(result.Playbook)))
		}
		if !allowFailures && stats.Failures > 0 {
			errs = multierror.Append(errs, fmt.Errorf("%d => Failures with PlayBook %s",
				stats.Failures, d.playbookName(result.Playbook)))
		}
	}
	if errs == nil {
		return nil
	}
	return &AnsibleDeployError{errs: errs}
}

// DeployTo runs every deployment playbook against the instance
func (d *Deployer) DeployTo(ctx context.Context, t Target) ([]*PlaybookResult, error) {
	return d.run(ctx, t, d.Settings.Ansible.PlaybooksDir, nil, false)
}

// RunUtilityPlaybooks runs the named utility playbooks. Failures are
// allowed, unreachable hosts are not.
func (d *Deployer) RunUtilityPlaybooks(ctx context.Context, t Target, names []string) ([]*PlaybookResult, error) {
	dir := strings.Replace(d.Settings.Ansible.PlaybooksDir, "/playbooks", "/util_playbooks", 1)
	wanted := map[string]bool{}
	for _, name := range names {
		wanted[name] = true
	}
	return d.run(ctx, t, dir, func(playbook string) bool {
		return wanted[filepath.Base(playbook)]
	}, true)
}

// CheckNetworking runs only the networking check playbook
func (d *Deployer) CheckNetworking(ctx context.Context, t Target) ([]*PlaybookResult, error) {
	return d.run(ctx, t, d.Settings.Ansible.PlaybooksDir, containing(CheckNetworkingPlaybook), false)
}

// ReadyToDeploy runs only the ssh setup playbook
func (d *Deployer) ReadyToDeploy(ctx context.Context, t Target) ([]*PlaybookResult, error) {
	return d.run(ctx, t, d.Settings.Ansible.PlaybooksDir, containing(SSHSetupPlaybook), false)
}

func containing(name string) func(string) bool {
	return func(playbook string) bool {
		return strings.Contains(filepath.Base(playbook), name)
	}
}
