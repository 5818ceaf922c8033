package deploy

import (
	"bytes"
	"fmt"
	"path/filepath"
	"strings"
	"text/template"
	"time"

	"github.com/gosimple/slug"
	"github.com/mistifyio/atmosphere"
)

// Remote paths used by the init sequence
const (
	AtmoInitPath       = "/usr/sbin/atmo_init_full.py"
	AtmoInitServerPath = "/api/v1/init_files/v2/atmo_init_full.py"
	DeployLogFile      = "/var/log/atmo/deploy.log"
	serviceType        = "instance_service_v1"
)

// SyncInstance flushes the node's filesystem buffers
func SyncInstance() *ScriptDeployment {
	return NewScriptDeployment("sync", "./deploy_sync_instance.sh", false)
}

// GetDistro prints the node's release files
func GetDistro() *ScriptDeployment {
	return NewScriptDeployment("cat /etc/*-release", "./deploy_get_distro.sh", false)
}

// BuildScript wraps arbitrary script text
func BuildScript(script, name string) *ScriptDeployment {
	return NewScriptDeployment(script, name, false)
}

// DeployTest is an empty script used to check that deployments work
func DeployTest() *ScriptDeployment {
	return NewScriptDeployment("\n", "./deploy_test.sh", false)
}

// InstallBaseRequirements installs the packages the other scripts need
func InstallBaseRequirements(distro string) *ScriptDeployment {
	script := "yum install -qy util-linux python-simplejson"
	if strings.Contains(strings.ToLower(distro), "ubuntu") {
		script = "apt-get install -qy util-linux"
	}
	return NewScriptDeployment(script, "./deploy_base_requirements.sh", false)
}

// FreezeInstance freezes the root filesystem for sleep, in the background
func FreezeInstance(sleep time.Duration) *ScriptDeployment {
	return NewScriptDeployment(
		fmt.Sprintf("nohup fsfreeze -f / && sleep %d && fsfreeze -u / &", int(sleep.Seconds())),
		"./deploy_freeze_instance.sh", false)
}

// MountVolume mounts device at location, handing it to username:group when
// both are given
func MountVolume(device, location, username, group string) *ScriptDeployment {
	script := fmt.Sprintf("mkdir -p %s; mount %s %s; ", location, device, location)
	if username != "" && group != "" {
		script += fmt.Sprintf("chown -R %s:%s %s", username, group, location)
	}
	return NewScriptDeployment(script, "./deploy_mount_volume.sh", false)
}

// CheckMount lists mounts
func CheckMount() *ScriptDeployment {
	return NewScriptDeployment("mount", "./deploy_check_mount.sh", false)
}

// CheckProcess prints "1:<name> is running" or "0:<name> is NOT running"
func CheckProcess(name string) *ScriptDeployment {
	return NewScriptDeployment(
		fmt.Sprintf("if ps aux | grep '%s' > /dev/null; then echo '1:%s is running'; else echo '0:%s is NOT running'; fi",
			name, name, name),
		fmt.Sprintf("./deploy_check_process_%s.sh", name), false)
}

// CheckVolume prints the ext filesystem superblock of device
func CheckVolume(device string) *ScriptDeployment {
	return NewScriptDeployment("tune2fs -l "+device, "./deploy_check_volume.sh", false)
}

// MkfsVolume formats device as ext3
func MkfsVolume(device string) *ScriptDeployment {
	return NewScriptDeployment("mkfs.ext3 "+device, "./deploy_mkfs_volume.sh", false)
}

// UmountVolume unmounts everything mounted at location
func UmountVolume(location string) *ScriptDeployment {
	return NewScriptDeployment(
		fmt.Sprintf("mounts=`mount | grep '%s' | cut -d' ' -f3`; for mount in $mounts; do umount %s; done;", location, location),
		"./deploy_umount_volume.sh", false)
}

// LsofLocation lists open files under location
func LsofLocation(location string) *ScriptDeployment {
	return NewScriptDeployment("lsof | grep "+location, "./deploy_lsof_location.sh", false)
}

// StepScript runs a user supplied boot step, adding a bash shebang when the
// script has none
func StepScript(name, script string) *ScriptDeployment {
	if !strings.HasPrefix(script, "#!") {
		script = "#! /usr/bin/env bash\n" + script
	}
	return NewScriptDeployment(script, "./"+name, false)
}

// WgetFile downloads url to filename
func WgetFile(filename, url, logfile string, attempts int) *LoggedScriptDeployment {
	return NewLoggedScriptDeployment(
		fmt.Sprintf("wget -O %s %s", filename, url),
		fmt.Sprintf("./deploy_wget_%s.sh", filepath.Base(filename)),
		false, logfile, attempts)
}

// ChmodAxFile makes filename executable
func ChmodAxFile(filename, logfile string) *LoggedScriptDeployment {
	return NewLoggedScriptDeployment("chmod a+x "+filename, "./deploy_chmod_ax.sh", false, logfile, 1)
}

// PackageDeps installs editors and build tools, plus zsh for zsh users
func PackageDeps(logfile string, zsh bool) *LoggedScriptDeployment {
	ubuntu := "apt-get update;apt-get install -y emacs vim wget language-pack-en make gcc g++ gettext texinfo autoconf automake python-httplib2 "
	centos := "yum install -y emacs vim-enhanced wget make gcc gettext texinfo autoconf automake python-simplejson python-httplib2 "
	if zsh {
		ubuntu += "zsh "
		centos += "zsh "
	}
	script := "distro_cat=`cat /etc/*-release`\n" +
		"if [[ $distro_cat == *Ubuntu* ]]; then\n" +
		ubuntu +
		"\nelse if [[ $distro_cat == *CentOS* ]];then\n" +
		centos +
		"\nfi\nfi"
	return NewLoggedScriptDeployment(script, "./deploy_package_deps.sh", false, logfile, 1)
}

// RedeployScript calls the init script in redeploy mode
func RedeployScript(settings *atmosphere.Settings, filename, username, logfile string) *LoggedScriptDeployment {
	call := fmt.Sprintf("%s --service_type=%s --service_url=%s --server=%s --user_id=%s --redeploy",
		filename, serviceType, settings.InstanceServiceURL, settings.DeployServerURL, username)
	return NewLoggedScriptDeployment(call, "./deploy_call_atmoinit.sh", false, logfile, 1)
}

// InitScript calls the init script for a fresh instance. Double quotes in
// the instance name are escaped so they cannot end the --name argument.
func InitScript(settings *atmosphere.Settings, filename, username, token string, instance *atmosphere.Instance, password string, redeploy bool, logfile string) *LoggedScriptDeployment {
	redeployFlag := ""
	if redeploy {
		redeployFlag = " --redeploy"
	}
	call := fmt.Sprintf("%s --service_type=%s --service_url=%s --server=%s --user_id=%s --token=%s --name=\"%s\"%s --vnc_license=%s",
		filename, serviceType, settings.InstanceServiceURL, settings.DeployServerURL, username, token,
		strings.Replace(instance.Name, `"`, `\"`, -1), redeployFlag, settings.VNCLicense)
	if password != "" {
		call += " --root_password=" + password
	}
	return NewLoggedScriptDeployment(call, "./deploy_call_atmoinit.sh", false, logfile, 1)
}

// RmScripts removes the uploaded deploy scripts
func RmScripts(logfile string) *LoggedScriptDeployment {
	return NewLoggedScriptDeployment("rm -rf ~/deploy_*", "./deploy_remove_scripts.sh", false, logfile, 1)
}

// EchoTestScript echoes a timestamped line
func EchoTestScript() *ScriptDeployment {
	return NewScriptDeployment(
		fmt.Sprintf(`echo "Test deployment working @ %s"`, time.Now().Format(time.RFC3339)),
		"./deploy_echo.sh", false)
}

// InitLog makes sure the remote deploy log exists
func InitLog() *ScriptDeployment {
	return NewScriptDeployment(
		"if [ ! -d \"/var/log/atmo\" ];then\n"+
			"mkdir -p /var/log/atmo\n"+
			"fi\n"+
			"if [ ! -f \"/var/log/atmo/deploy.log\" ]; then\n"+
			"touch /var/log/atmo/deploy.log\n"+
			"fi",
		"./deploy_init_log.sh", false)
}

// WrapScript turns a boot script into a deployment named after it
func WrapScript(script, name string) *ScriptDeployment {
	return NewScriptDeployment(script, fmt.Sprintf("./deploy_boot_script_%s.sh", slug.Make(name)), false)
}

var injectEnvTemplate = template.Must(template.New("inject_env").Parse(`#!/usr/bin/env bash
if ! grep -q "ATMO_USER={{.Username}}" {{.EnvFile}} 2>/dev/null; then
    echo "export ATMO_USER={{.Username}}" >> {{.EnvFile}}
    echo "export ATMO_HOME=/home/{{.Username}}" >> {{.EnvFile}}
fi
`))

// InjectEnvScript renders the script that prepares username's shell
// environment
func InjectEnvScript(username string) (string, error) {
	var buf bytes.Buffer
	err := injectEnvTemplate.Execute(&buf, struct {
		Username string
		EnvFile  string
	}{
		Username: username,
		EnvFile:  "$HOME/.bashrc",
	})
	return buf.String(), err
}
