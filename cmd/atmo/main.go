package main

import (
	"io"
	"os"

	"github.com/mistifyio/atmosphere/internal/cli"
	"github.com/mistifyio/atmosphere/internal/logx"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// app holds the global flags and the streams commands read and write
type app struct {
	server  string
	token   string
	jsonout bool
	out     io.Writer
	in      io.Reader
}

func (a *app) client() *cli.Client {
	return cli.New(a.server, a.token)
}

func (a *app) print(j cli.JMap) {
	j.Print(a.out, a.jsonout)
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:           "atmo",
		Short:         "atmo is the cli interface to atmosphered",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
	}
	root.SetOut(a.out)
	root.PersistentFlags().BoolVarP(&a.jsonout, "jsonout", "j", a.jsonout, "output in json")
	root.PersistentFlags().StringVarP(&a.server, "server", "s", a.server, "server address to connect to")
	root.PersistentFlags().StringVarP(&a.token, "token", "t", a.token, "api token (default $ATMO_TOKEN)")

	root.AddCommand(
		bookmarkCmd(a),
		instanceCmd(a),
		accountCmd(a),
		providerCmd(a),
		jobCmd(a),
		userCmd(a),
		tokenCmd(a),
		identityCmd(a),
	)
	return root
}

func main() {
	if err := logx.TextSetup("warning"); err != nil {
		log.WithField("error", err).Fatal("failed to set up logging")
	}

	a := &app{
		server: "http://localhost:18000/",
		token:  os.Getenv("ATMO_TOKEN"),
		out:    os.Stdout,
		in:     os.Stdin,
	}
	if err := newRootCmd(a).Execute(); err != nil {
		log.WithField("error", err).Fatal("command failed")
	}
}
