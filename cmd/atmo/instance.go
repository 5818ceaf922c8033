package main

import (
	"fmt"
	"net/http"
	"net/url"
	"sort"

	"github.com/mistifyio/atmosphere/internal/cli"
	"github.com/mistifyio/atmosphere/pkg/jobqueue"
	"github.com/spf13/cobra"
)

func instanceCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "instance",
		Short: "Manage instances and queue deployments",
	}

	var all bool
	list := &cobra.Command{
		Use:   "list [<id>...]",
		Short: "List instances",
		Long:  `List instances, or the ones named. An id may be the instance id or its provider alias.`,
		RunE: func(_ *cobra.Command, ids []string) error {
			return a.listInstances(cli.Args(ids, a.in), all)
		},
	}
	list.Flags().BoolVarP(&all, "all", "a", false, "list every user's instances (staff only)")

	var spec string
	deploy := &cobra.Command{
		Use:   "deploy <id>...",
		Short: "Queue playbook deployments",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(_ *cobra.Command, ids []string) error {
			return a.instanceAction(jobqueue.ActionDeploy, spec, cli.Args(ids, a.in))
		},
	}
	deploy.Flags().StringVar(&spec, "args", "", "json object of job args")

	action := &cobra.Command{
		Use:   "action <action> <id>...",
		Short: "Queue an instance action",
		Long:  fmt.Sprintf("Queue an action on instance(s). Actions are %v.", jobqueue.InstanceActions),
		Args:  cobra.MinimumNArgs(2),
		RunE: func(_ *cobra.Command, args []string) error {
			return a.instanceAction(args[0], spec, cli.Args(args[1:], a.in))
		},
	}
	action.Flags().StringVar(&spec, "args", "", "json object of job args")

	cmd.AddCommand(
		list,
		&cobra.Command{
			Use:   "create <spec>...",
			Short: "Create instances",
			Long:  `Create new instance(s) using "spec"(s) as the initial values. Where "spec" is a valid json string.`,
			Args:  cobra.MinimumNArgs(1),
			RunE: func(_ *cobra.Command, specs []string) error {
				return a.createInstances(cli.Args(specs, a.in))
			},
		},
		&cobra.Command{
			Use:   "delete <id>...",
			Short: "Delete instances",
			Args:  cobra.MinimumNArgs(1),
			RunE: func(_ *cobra.Command, ids []string) error {
				return a.deleteInstances(cli.Args(ids, a.in))
			},
		},
		deploy,
		action,
	)
	return cmd
}

func (a *app) listInstances(ids []string, all bool) error {
	c := a.client()
	var instances cli.JMapSlice

	if len(ids) == 0 {
		endpoint := "instances"
		if all {
			endpoint += "?all=true"
		}
		var err error
		if instances, err = c.GetMany("instances", endpoint); err != nil {
			return err
		}
		sort.Sort(instances)
	}
	for _, id := range ids {
		instance, err := c.Get("instance", "instances/"+url.PathEscape(id))
		if err != nil {
			return err
		}
		instances = append(instances, instance)
	}

	for _, instance := range instances {
		a.print(instance)
	}
	return nil
}

func (a *app) createInstances(specs []string) error {
	c := a.client()
	for _, spec := range specs {
		body, err := cli.ParseSpec(spec)
		if err != nil {
			return err
		}
		instance, _, err := c.Post("instance", "instances", body, http.StatusCreated)
		if err != nil {
			return err
		}
		a.print(instance)
	}
	return nil
}

func (a *app) deleteInstances(ids []string) error {
	c := a.client()
	for _, id := range ids {
		instance, _, err := c.Del("instance", "instances/"+url.PathEscape(id), http.StatusOK)
		if err != nil {
			return err
		}
		a.print(instance)
	}
	return nil
}

// instanceAction queues action on each instance and prints the job ids
func (a *app) instanceAction(action, spec string, ids []string) error {
	if !jobqueue.IsInstanceAction(action) {
		return fmt.Errorf("unknown action %q", action)
	}
	var body interface{}
	if spec != "" {
		args, err := cli.ParseSpec(spec)
		if err != nil {
			return err
		}
		body = args
	}

	c := a.client()
	for _, id := range ids {
		_, job, err := c.Post(action, "instances/"+url.PathEscape(id)+"/"+action, body, http.StatusAccepted)
		if err != nil {
			return err
		}
		a.printJob(job)
	}
	return nil
}

func (a *app) printJob(id string) {
	if a.jsonout {
		a.print(cli.JMap{"id": id})
		return
	}
	fmt.Fprintln(a.out, id)
}
