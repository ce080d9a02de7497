package main

import (
	"io"
	"os"

	"github.com/spf13/cobra"

	lshttp "github.com/syedhassaanahmed/log-storage-service/http"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

type globalFlags struct {
	server   string
	username string
	password string
}

func newRootCmd(out, errOut io.Writer) *cobra.Command {
	var g globalFlags

	root := &cobra.Command{
		Use:           "logstorage",
		Short:         "Store ZIP log archives and serve their files individually",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(out)
	root.SetErr(errOut)

	flags := root.PersistentFlags()
	flags.StringVar(&g.server, "server", envOr("LOGSTORAGE_SERVER_URL", "http://localhost:8080"), "log storage server URL")
	flags.StringVar(&g.username, "username", os.Getenv("LOGSTORAGE_USERNAME"), "basic auth username")
	flags.StringVar(&g.password, "password", os.Getenv("LOGSTORAGE_PASSWORD"), "basic auth password")

	root.AddCommand(
		newServeCmd(),
		newUploadCmd(&g),
		newLsCmd(&g),
		newCatCmd(&g),
		newStatCmd(&g),
		newStatusCmd(&g),
		newBenchCmd(),
		newVersionCmd(),
	)
	return root
}

func (g *globalFlags) client() (*lshttp.Client, error) {
	var opts []lshttp.Option
	if g.username != "" || g.password != "" {
		opts = append(opts, lshttp.WithBasicAuth(g.username, g.password))
	}
	return lshttp.NewClient(g.server, opts...)
}

func envOr(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return fallback
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			cmd.Println("logstorage", version)
		},
	}
}
