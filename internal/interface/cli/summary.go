package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/spf13/cobra"

	"github.com/yanqian/cashtags/internal/domain/summarizer"
	"github.com/yanqian/cashtags/internal/domain/summarysession"
	"github.com/yanqian/cashtags/internal/infra/apiclient"
)

var errNotSignedIn = errors.New("not signed in, run `cashtags login` first")

func newSummaryCommand(opts *options) *cobra.Command {
	var topic, asHTML bool
	cmd := &cobra.Command{
		Use:   "summary SUBJECT",
		Short: "Stream the summary of a ticker or topic",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSummary(cmd.Context(), opts, args[0], modeFor(topic), asHTML, cmd.OutOrStdout())
		},
	}
	cmd.Flags().BoolVar(&topic, "topic", false, "Treat SUBJECT as a topic name instead of a ticker")
	cmd.Flags().BoolVar(&asHTML, "html", false, "Print the finished summary as HTML instead of streaming markdown")
	return cmd
}

func runSummary(ctx context.Context, opts *options, subject string, mode summarysession.Mode, asHTML bool, out io.Writer) error {
	client := opts.client()
	tokens, err := opts.tokens()
	if err != nil {
		return err
	}
	subject = normalizeSubject(subject, mode)
	posts, err := fetchPosts(ctx, client, tokens, subject, mode)
	if err != nil {
		return err
	}
	if len(posts) == 0 {
		return fmt.Errorf("no posts found for %s", subject)
	}

	printer := newStreamPrinter(out, !asHTML, false)
	session := summarysession.New(client, tokens, opts.logger(), summarysession.WithObserver(printer.observe))
	session.Select(ctx, subject, posts, mode)

	final, err := printer.wait(ctx)
	if err != nil {
		session.Cancel()
		return err
	}
	switch final.Phase {
	case summarysession.PhaseAuthRequired:
		return errNotSignedIn
	case summarysession.PhaseFailed:
		return errors.New(final.Buffer)
	}
	if asHTML {
		return renderHTML(out, final.Buffer)
	}
	return nil
}

func modeFor(topic bool) summarysession.Mode {
	if topic {
		return summarysession.ModeTopic
	}
	return summarysession.ModeTicker
}

func normalizeSubject(subject string, mode summarysession.Mode) string {
	subject = strings.TrimSpace(subject)
	if mode.IsTopic() {
		return subject
	}
	return strings.ToUpper(strings.TrimPrefix(subject, "$"))
}

// fetchPosts loads the items a summary is built from: headlines for a ticker, posts for a topic.
func fetchPosts(ctx context.Context, client *apiclient.Client, creds summarysession.CredentialSource, subject string, mode summarysession.Mode) ([]summarizer.Post, error) {
	if mode.IsTopic() {
		posts, err := client.TopicPosts(ctx, subject)
		if err != nil {
			return nil, fmt.Errorf("load topic posts: %w", err)
		}
		return posts, nil
	}
	credential, err := creds.Credential(ctx)
	if errors.Is(err, summarysession.ErrNoCredential) {
		return nil, errNotSignedIn
	}
	if err != nil {
		return nil, err
	}
	posts, err := client.News(ctx, credential, subject)
	var apiErr *apiclient.APIError
	if errors.As(err, &apiErr) && apiErr.Status == http.StatusUnauthorized {
		return nil, errNotSignedIn
	}
	if err != nil {
		return nil, fmt.Errorf("load news: %w", err)
	}
	return posts, nil
}
