package cli

import (
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/yanqian/cashtags/internal/infra/apiclient"
	"github.com/yanqian/cashtags/pkg/logger"
)

const defaultServer = "http://localhost:8080"

type options struct {
	server    string
	tokenPath string
	timeout   time.Duration
	verbose   bool
}

// NewRootCommand builds the cashtags terminal client.
func NewRootCommand() *cobra.Command {
	opts := &options{}
	root := &cobra.Command{
		Use:           "cashtags",
		Short:         "Stream AI summaries of cashtag and topic chatter",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	server := os.Getenv("CASHTAGS_SERVER")
	if server == "" {
		server = defaultServer
	}
	root.PersistentFlags().StringVar(&opts.server, "server", server, "Base URL of the cashtags API")
	root.PersistentFlags().StringVar(&opts.tokenPath, "token-file", "", "Where the access token is stored (default: user config dir)")
	root.PersistentFlags().DurationVar(&opts.timeout, "timeout", 15*time.Second, "Timeout for non-streaming requests")
	root.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "Enable debug logging")

	root.AddCommand(newLoginCommand(opts))
	root.AddCommand(newSummaryCommand(opts))
	root.AddCommand(newWatchCommand(opts))
	return root
}

func (o *options) client() *apiclient.Client {
	return apiclient.New(o.server, o.timeout)
}

func (o *options) tokens() (*apiclient.TokenStore, error) {
	return apiclient.NewTokenStore(o.tokenPath)
}

func (o *options) logger() *slog.Logger {
	return logger.NewCLI(o.verbose)
}
