package main

import (
	"fmt"
	"time"

	"github.com/mistifyio/atmosphere/internal/cli"
	"github.com/spf13/cobra"
)

func jobCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "job",
		Short: "Inspect queued jobs",
	}
	var wait time.Duration
	get := &cobra.Command{
		Use:   "get <id>...",
		Short: "Show job status",
		Long: `Show the status of job(s). Without --jsonout the status is printed after the id.
With --wait each job is waited on until it finishes or the wait runs out.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(_ *cobra.Command, ids []string) error {
			c := a.client()
			query := ""
			if wait > 0 {
				query = "?wait=" + wait.String()
				c.SetTimeout(wait + 30*time.Second)
			}
			for _, id := range cli.Args(ids, a.in) {
				if err := cli.CheckID(id); err != nil {
					return err
				}
				job, err := c.Get("job", "jobs/"+id+query)
				if err != nil {
					return err
				}
				if a.jsonout {
					a.print(job)
					continue
				}
				line := job.ID() + " " + jobStatus(job)
				if msg, ok := job["error"].(string); ok && msg != "" {
					line += " " + msg
				}
				fmt.Fprintln(a.out, line)
			}
			return nil
		},
	}
	get.Flags().DurationVarP(&wait, "wait", "w", 0, "wait up to this long for the job to finish")
	cmd.AddCommand(get)
	return cmd
}

func jobStatus(job cli.JMap) string {
	if status, ok := job["status"].(string); ok {
		return status
	}
	return "unknown"
}
