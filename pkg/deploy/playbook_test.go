package deploy_test

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/hashicorp/go-multierror"
	"github.com/mistifyio/atmosphere"
	"github.com/mistifyio/atmosphere/internal/tests/common"
	"github.com/mistifyio/atmosphere/pkg/deploy"
	"github.com/stretchr/testify/suite"
)

type execCall struct {
	Name string
	Args []string
	Env  []string
}

type PlaybookTestSuite struct {
	common.Suite
	Dir      string
	Settings *atmosphere.Settings
	Deployer *deploy.Deployer
	Calls    []execCall
	// Stats maps a playbook base name to the stats returned for it
	Stats map[string]map[string]deploy.HostStats
}

func TestPlaybookTestSuite(t *testing.T) {
	suite.Run(t, new(PlaybookTestSuite))
}

func (s *PlaybookTestSuite) SetupTest() {
	s.Suite.SetupTest()
	var err error
	s.Dir, err = os.MkdirTemp("", "playbooks-")
	s.Require().NoError(err)

	for _, dir := range []string{"ansible/playbooks", "ansible/util_playbooks", "ansible/roles", "facts"} {
		s.Require().NoError(os.MkdirAll(filepath.Join(s.Dir, dir), 0755))
	}
	for _, pb := range []string{"ansible/playbooks/10_setup.yml", "ansible/playbooks/00_check_networking.yml",
		"ansible/playbooks/05_ssh_setup.yml", "ansible/playbooks/README.md",
		"ansible/util_playbooks/check_vnc.yml", "ansible/util_playbooks/zsh.yml"} {
		s.Require().NoError(os.WriteFile(filepath.Join(s.Dir, pb), []byte("---\n"), 0644))
	}

	s.Settings = atmosphere.DefaultSettings()
	s.Settings.VNCLicense = "LICENSE"
	s.Settings.Hostnaming = atmosphere.HostnamingSettings{
		Format: "vm{{.Three}}-{{.Four}}.{{.Domain}}",
		Domain: "example.org",
	}
	s.Settings.Ansible.PlaybooksDir = filepath.Join(s.Dir, "ansible/playbooks")
	s.Settings.Ansible.RolesPath = filepath.Join(s.Dir, "ansible/roles")
	s.Settings.Ansible.FactCacheDir = filepath.Join(s.Dir, "facts")
	s.Settings.Ansible.HostFile = ""
	s.Settings.DeployLog.File = ""

	s.Calls = nil
	s.Stats = map[string]map[string]deploy.HostStats{}
	s.Deployer = deploy.NewDeployer(s.Settings)
	s.Deployer.Runner.Exec = s.exec
}

func (s *PlaybookTestSuite) TearDownTest() {
	_ = os.RemoveAll(s.Dir)
}

func (s *PlaybookTestSuite) exec(ctx context.Context, name string, args, env []string) ([]byte, error) {
	s.Calls = append(s.Calls, execCall{name, args, env})
	playbook := filepath.Base(args[len(args)-1])
	stats, ok := s.Stats[playbook]
	if !ok {
		stats = map[string]deploy.HostStats{"128.196.64.12": {OK: 3}}
	}
	out, _ := json.Marshal(map[string]interface{}{"plays": []interface{}{}, "stats": stats})
	return out, nil
}

func (s *PlaybookTestSuite) target() deploy.Target {
	user := s.NewUser(false)
	return deploy.Target{IP: "128.196.64.12", InstanceID: "abc", User: user}
}

func (s *PlaybookTestSuite) playbooksRun() []string {
	names := []string{}
	for _, call := range s.Calls {
		names = append(names, filepath.Base(call.Args[len(call.Args)-1]))
	}
	return names
}

func (s *PlaybookTestSuite) TestCheckAnsible() {
	s.NoError(deploy.CheckAnsible(s.Settings.Ansible))

	bad := s.Settings.Ansible
	bad.RolesPath = filepath.Join(s.Dir, "missing")
	s.Equal(deploy.ErrAnsibleNotConfigured, deploy.CheckAnsible(bad))

	bad.PlaybooksDir = ""
	s.Equal(deploy.ErrAnsibleNotConfigured, deploy.CheckAnsible(bad))

	s.Settings.Ansible = bad
	results, err := s.Deployer.DeployTo(context.Background(), s.target())
	s.NoError(err, "an unconfigured ansible skips playbooks")
	s.Empty(results)
	s.Empty(s.Calls)
}

func (s *PlaybookTestSuite) TestDiscover() {
	playbooks, err := s.Deployer.Runner.Discover(s.Settings.Ansible.PlaybooksDir)
	s.NoError(err)
	s.Len(playbooks, 3)
	s.Equal("00_check_networking.yml", filepath.Base(playbooks[0]))
	s.Equal("10_setup.yml", filepath.Base(playbooks[2]))
}

func (s *PlaybookTestSuite) TestDeployTo() {
	t := s.target()
	cached := filepath.Join(s.Settings.Ansible.FactCacheDir, "vm64-12.example.org")
	s.Require().NoError(os.WriteFile(cached, []byte("{}"), 0644))

	results, err := s.Deployer.DeployTo(context.Background(), t)
	s.NoError(err)
	s.Len(results, 3)
	s.Equal([]string{"00_check_networking.yml", "05_ssh_setup.yml", "10_setup.yml"}, s.playbooksRun())
	s.Equal(3, results[0].Summary("vm64-12.example.org").OK, "inline inventory stats should map to the hostname")

	_, err = os.Stat(cached)
	s.True(os.IsNotExist(err), "fact cache should be busted")

	call := s.Calls[0]
	s.Equal("ansible-playbook", call.Name)
	s.Equal([]string{"-i", "128.196.64.12,", "--limit", "128.196.64.12"}, call.Args[:4])
	var vars map[string]interface{}
	s.NoError(json.Unmarshal([]byte(call.Args[5]), &vars))
	s.Equal(t.User.Username, vars["ATMOUSERNAME"])
	s.Equal("LICENSE", vars["VNCLICENSE"])
	s.Len(vars["USERSSHKEYS"], 1)
	s.Contains(call.Env, "ANSIBLE_HOST_KEY_CHECKING=False")
	s.Contains(call.Env, "ANSIBLE_ROLES_PATH="+s.Settings.Ansible.RolesPath)
}

func (s *PlaybookTestSuite) TestHostFile() {
	s.Settings.Ansible.HostFile = "/etc/ansible/hosts"
	s.Stats["10_setup.yml"] = map[string]deploy.HostStats{"vm64-12.example.org": {OK: 1}}
	_, err := s.Deployer.DeployTo(context.Background(), s.target())
	s.NoError(err)
	s.Equal([]string{"-i", "/etc/ansible/hosts", "--limit", "vm64-12.example.org"}, s.Calls[0].Args[:4])
}

func (s *PlaybookTestSuite) TestDeployToErrors() {
	s.Stats["00_check_networking.yml"] = map[string]deploy.HostStats{"128.196.64.12": {Unreachable: 1}}
	s.Stats["10_setup.yml"] = map[string]deploy.HostStats{"128.196.64.12": {Failures: 2}}

	_, err := s.Deployer.DeployTo(context.Background(), s.target())
	s.Require().Error(err)
	var deployErr *deploy.AnsibleDeployError
	s.Require().True(errors.As(err, &deployErr))
	s.Len(deployErr.Errors(), 2)
	var merr *multierror.Error
	s.True(errors.As(err, &merr), "aggregated errors should unwrap")
	s.Equal("1 => Unreachable with PlayBook 00_check_networking.yml|2 => Failures with PlayBook 10_setup.yml", err.Error())
}

func (s *PlaybookTestSuite) TestRunUtilityPlaybooks() {
	s.Stats["zsh.yml"] = map[string]deploy.HostStats{"128.196.64.12": {Failures: 1}}
	results, err := s.Deployer.RunUtilityPlaybooks(context.Background(), s.target(), []string{"zsh.yml"})
	s.NoError(err, "failures are allowed")
	s.Len(results, 1)
	s.Equal([]string{"zsh.yml"}, s.playbooksRun())

	s.Stats["zsh.yml"] = map[string]deploy.HostStats{"128.196.64.12": {Unreachable: 1}}
	_, err = s.Deployer.RunUtilityPlaybooks(context.Background(), s.target(), []string{"zsh.yml"})
	s.Error(err)
	s.True(strings.Contains(err.Error(), "Unreachable with PlayBook"))
}

func (s *PlaybookTestSuite) TestCheckNetworking() {
	_, err := s.Deployer.CheckNetworking(context.Background(), s.target())
	s.NoError(err)
	s.Equal([]string{"00_check_networking.yml"}, s.playbooksRun())
}

func (s *PlaybookTestSuite) TestReadyToDeploy() {
	_, err := s.Deployer.ReadyToDeploy(context.Background(), s.target())
	s.NoError(err)
	s.Equal([]string{"05_ssh_setup.yml"}, s.playbooksRun())
}

func (s *PlaybookTestSuite) TestRunnerBadOutput() {
	s.Deployer.Runner.Exec = func(ctx context.Context, name string, args, env []string) ([]byte, error) {
		return []byte("ERROR! the playbook could not be found"), errors.New("exit status 1")
	}
	_, err := s.Deployer.DeployTo(context.Background(), s.target())
	s.EqualError(err, "exit status 1")
}
