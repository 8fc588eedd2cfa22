package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/yanqian/cashtags/internal/domain/summarysession"
)

func newWatchCommand(opts *options) *cobra.Command {
	var topic bool
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Read subjects from stdin and stream each summary",
		Long:  "Each line on stdin selects a new subject. Selecting a new subject aborts the summary still streaming.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runWatch(cmd.Context(), opts, modeFor(topic), cmd.InOrStdin(), cmd.OutOrStdout(), cmd.ErrOrStderr())
		},
	}
	cmd.Flags().BoolVar(&topic, "topic", false, "Treat each line as a topic name instead of a ticker")
	return cmd
}

func runWatch(ctx context.Context, opts *options, mode summarysession.Mode, in io.Reader, out, errOut io.Writer) error {
	client := opts.client()
	tokens, err := opts.tokens()
	if err != nil {
		return err
	}
	printer := newStreamPrinter(out, true, true)
	session := summarysession.New(client, tokens, opts.logger(), summarysession.WithObserver(printer.observe))
	defer session.Cancel()

	lines := make(chan string)
	scanErr := make(chan error, 1)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
		scanErr <- scanner.Err()
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				return finishWatch(ctx, session, printer, scanErr)
			}
			subject := normalizeSubject(line, mode)
			if subject == "" {
				continue
			}
			posts, err := fetchPosts(ctx, client, tokens, subject, mode)
			if err != nil {
				fmt.Fprintf(errOut, "%s: %v\n", subject, err)
				continue
			}
			if len(posts) == 0 {
				fmt.Fprintf(errOut, "%s: no posts found\n", subject)
				continue
			}
			printer.drain()
			session.Select(ctx, subject, posts, mode)
		}
	}
}

// finishWatch lets the last summary finish once stdin is exhausted.
func finishWatch(ctx context.Context, session *summarysession.Session, printer *streamPrinter, scanErr <-chan error) error {
	select {
	case err := <-scanErr:
		if err != nil {
			return fmt.Errorf("read stdin: %w", err)
		}
	default:
	}
	printer.drain()
	if session.Snapshot().Streaming {
		// A cancelled ctx ends the wait early and the deferred Cancel stops the stream.
		_, _ = printer.wait(ctx)
	}
	return nil
}
