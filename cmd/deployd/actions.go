package main

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/mistifyio/atmosphere"
	"github.com/mistifyio/atmosphere/pkg/accounts"
	"github.com/mistifyio/atmosphere/pkg/deploy"
	"github.com/mistifyio/atmosphere/pkg/jobqueue"
	log "github.com/sirupsen/logrus"
)

// Job args read by the handlers
const (
	ArgPlaybooks = "playbooks"
	ArgToken     = "token"
	ArgPassword  = "password"
	ArgProvider  = "provider"
	ArgAdminRole = "admin_role"
	ArgMaxQuota  = "max_quota"
)

// playbookDeployer runs playbooks against an instance
type playbookDeployer interface {
	DeployTo(ctx context.Context, t deploy.Target) ([]*deploy.PlaybookResult, error)
	RunUtilityPlaybooks(ctx context.Context, t deploy.Target, names []string) ([]*deploy.PlaybookResult, error)
	CheckNetworking(ctx context.Context, t deploy.Target) ([]*deploy.PlaybookResult, error)
	ReadyToDeploy(ctx context.Context, t deploy.Target) ([]*deploy.PlaybookResult, error)
}

// remoteClient is a deploy.Client that must be closed
type remoteClient interface {
	deploy.Client
	Close() error
}

// actions holds what the handlers need to reach instances and providers
type actions struct {
	context  *atmosphere.Context
	settings *atmosphere.Settings
	factory  accounts.ManagerFactory
	deployer func(*atmosphere.Settings) playbookDeployer
	dial     func(ctx context.Context, c deploy.SSHConfig) (remoteClient, error)
}

func newActions(c *atmosphere.Context, s *atmosphere.Settings, factory accounts.ManagerFactory) *actions {
	return &actions{
		context:  c,
		settings: s,
		factory:  factory,
		deployer: func(s *atmosphere.Settings) playbookDeployer {
			return deploy.NewDeployer(s)
		},
		dial: func(ctx context.Context, c deploy.SSHConfig) (remoteClient, error) {
			return deploy.DialSSH(ctx, c)
		},
	}
}

// handlers maps every action to its handler
func (a *actions) handlers() map[string]Handler {
	return map[string]Handler{
		jobqueue.ActionDeploy:          a.playbooks(playbookDeployer.DeployTo),
		jobqueue.ActionReady:           a.playbooks(playbookDeployer.ReadyToDeploy),
		jobqueue.ActionCheckNetworking: a.playbooks(playbookDeployer.CheckNetworking),
		jobqueue.ActionUtility:         a.utility,
		jobqueue.ActionRedeploy:        a.redeploy,
		jobqueue.ActionCreateAccount:   a.createAccount,
		jobqueue.ActionDeleteAccount:   a.deleteAccount,
	}
}

// currentSettings applies the runtime overrides stored in the kv
func (a *actions) currentSettings() (*atmosphere.Settings, error) {
	return a.context.OverlaySettings(a.settings)
}

// instanceTarget loads the job's instance and its owner
func (a *actions) instanceTarget(job *jobqueue.Job) (*atmosphere.Instance, deploy.Target, error) {
	instance, err := a.context.Instance(job.Target)
	if err != nil {
		return nil, deploy.Target{}, err
	}
	if instance.IP == nil {
		return nil, deploy.Target{}, errors.New("instance has no ip")
	}
	user, err := a.context.User(instance.User)
	if err != nil {
		return nil, deploy.Target{}, err
	}
	return instance, deploy.Target{
		IP:         instance.IP.String(),
		InstanceID: instance.ProviderAlias,
		User:       user,
	}, nil
}

func (a *actions) playbooks(run func(playbookDeployer, context.Context, deploy.Target) ([]*deploy.PlaybookResult, error)) Handler {
	return func(ctx context.Context, job *jobqueue.Job) error {
		settings, err := a.currentSettings()
		if err != nil {
			return err
		}
		_, target, err := a.instanceTarget(job)
		if err != nil {
			return err
		}
		_, err = run(a.deployer(settings), ctx, target)
		return err
	}
}

func (a *actions) utility(ctx context.Context, job *jobqueue.Job) error {
	names := []string{}
	for _, name := range strings.Split(job.Args[ArgPlaybooks], ",") {
		if name = strings.TrimSpace(name); name != "" {
			names = append(names, name)
		}
	}
	if len(names) == 0 {
		return errors.New("no utility playbooks named")
	}

	settings, err := a.currentSettings()
	if err != nil {
		return err
	}
	_, target, err := a.instanceTarget(job)
	if err != nil {
		return err
	}
	_, err = a.deployer(settings).RunUtilityPlaybooks(ctx, target, names)
	return err
}

// redeploy reruns the init script on the instance over ssh
func (a *actions) redeploy(ctx context.Context, job *jobqueue.Job) error {
	settings, err := a.currentSettings()
	if err != nil {
		return err
	}
	instance, target, err := a.instanceTarget(job)
	if err != nil {
		return err
	}
	steps, err := deploy.Init(settings, instance, target.User, deploy.InitOptions{
		Password: job.Args[ArgPassword],
		Token:    job.Args[ArgToken],
		Redeploy: true,
	})
	if err != nil {
		return err
	}

	client, err := a.dial(ctx, deploy.NewSSHConfig(settings.SSH, target.IP))
	if err != nil {
		return err
	}
	defer func() {
		if err := client.Close(); err != nil {
			log.WithFields(log.Fields{
				"instance": instance.ID,
				"error":    err,
			}).Warn("failed to close ssh connection")
		}
	}()
	return steps.Run(ctx, &deploy.Node{ID: instance.ID, IP: target.IP}, client)
}

func (a *actions) accountDriver(job *jobqueue.Job) (*accounts.AccountDriver, error) {
	provider, err := a.context.Provider(job.Args[ArgProvider])
	if err != nil {
		return nil, fmt.Errorf("provider %q: %w", job.Args[ArgProvider], err)
	}
	return accounts.NewAccountDriver(a.context, provider, a.factory)
}

// createAccount provisions the user and builds the project network
func (a *actions) createAccount(ctx context.Context, job *jobqueue.Job) error {
	driver, err := a.accountDriver(job)
	if err != nil {
		return err
	}
	identity, err := driver.CreateAccount(ctx, job.Target,
		atmosphere.ToBool(job.Args[ArgAdminRole]),
		atmosphere.ToBool(job.Args[ArgMaxQuota]))
	if err != nil {
		return err
	}
	if identity == nil {
		log.WithField("username", job.Target).Info("provider admin, no account created")
		return nil
	}
	return driver.CreateNetwork(ctx, identity)
}

// deleteAccount removes the user's project and network and forgets the
// identity
func (a *actions) deleteAccount(ctx context.Context, job *jobqueue.Job) error {
	driver, err := a.accountDriver(job)
	if err != nil {
		return err
	}
	if err := driver.DeleteUser(ctx, job.Target, true); err != nil {
		return err
	}
	identity, err := a.context.UserIdentity(job.Target, driver.Provider().ID)
	if err != nil {
		if a.context.IsKeyNotFound(err) {
			return nil
		}
		return err
	}
	return identity.Destroy()
}
