package deploy

import (
	"errors"

	"github.com/mistifyio/atmosphere"
)

var (
	// ErrMissingInstance is returned by Init without an instance
	ErrMissingInstance = errors.New("missing instance argument")
	// ErrMissingUsername is returned by Init without a user
	ErrMissingUsername = errors.New("missing username argument")
)

// InitOptions tune the init sequence
type InitOptions struct {
	Password string
	// Token defaults to the instance id
	Token    string
	Redeploy bool
}

// Init builds the deployment that fetches and runs the instance init
// script. Scripts are removed afterwards unless settings.Debug is set.
func Init(settings *atmosphere.Settings, instance *atmosphere.Instance, user *atmosphere.AtmosphereUser, opts InitOptions) (*MultiStepDeployment, error) {
	if instance == nil {
		return nil, ErrMissingInstance
	}
	if user == nil || user.Username == "" {
		return nil, ErrMissingUsername
	}
	token := opts.Token
	if token == "" {
		token = instance.ID
	}
	url := settings.DeployServerURL + AtmoInitServerPath

	steps := NewMultiStepDeployment(InitLog())
	if opts.Redeploy {
		steps.Add(WgetFile(AtmoInitPath, url, DeployLogFile, 3))
		steps.Add(ChmodAxFile(AtmoInitPath, DeployLogFile))
		steps.Add(RedeployScript(settings, AtmoInitPath, user.Username, DeployLogFile))
	} else {
		steps.Add(PackageDeps(DeployLogFile, user.UsesZsh()))
		steps.Add(WgetFile(AtmoInitPath, url, DeployLogFile, 3))
		steps.Add(ChmodAxFile(AtmoInitPath, DeployLogFile))
		steps.Add(InitScript(settings, AtmoInitPath, user.Username, token, instance, opts.Password, false, DeployLogFile))
	}

	if !settings.Debug {
		steps.Add(RmScripts(DeployLogFile))
	}
	return steps, nil
}
