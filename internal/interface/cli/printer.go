package cli

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/renderer/html"

	"github.com/yanqian/cashtags/internal/domain/summarysession"
)

// streamPrinter mirrors session states to a terminal. In live mode each appended delta is written
// as it arrives; replaced buffers (failure or login texts) start on a new line.
type streamPrinter struct {
	mu      sync.Mutex
	out     io.Writer
	live    bool
	headers bool
	subject string
	shown   string
	midLine bool
	done    chan summarysession.State
}

func newStreamPrinter(out io.Writer, live, headers bool) *streamPrinter {
	return &streamPrinter{
		out:     out,
		live:    live,
		headers: headers,
		done:    make(chan summarysession.State, 1),
	}
}

func (p *streamPrinter) observe(st summarysession.State) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if st.Subject != p.subject {
		if p.headers {
			if p.midLine {
				p.write("\n")
			}
			fmt.Fprintf(p.out, "== %s ==\n", subjectLabel(st))
		}
		p.subject = st.Subject
		p.shown = ""
	}
	if p.live {
		if strings.HasPrefix(st.Buffer, p.shown) {
			p.write(st.Buffer[len(p.shown):])
		} else {
			if p.midLine {
				p.write("\n")
			}
			p.write(st.Buffer)
		}
	}
	p.shown = st.Buffer

	if terminal(st.Phase) {
		if p.midLine {
			p.write("\n")
		}
		select {
		case p.done <- st:
		default:
		}
	}
}

func (p *streamPrinter) write(text string) {
	if text == "" {
		return
	}
	_, _ = io.WriteString(p.out, text)
	p.midLine = !strings.HasSuffix(text, "\n")
}

// drain drops a terminal state left over from an earlier selection.
func (p *streamPrinter) drain() {
	select {
	case <-p.done:
	default:
	}
}

func (p *streamPrinter) wait(ctx context.Context) (summarysession.State, error) {
	select {
	case st := <-p.done:
		return st, nil
	case <-ctx.Done():
		return summarysession.State{}, ctx.Err()
	}
}

func terminal(phase summarysession.Phase) bool {
	switch phase {
	case summarysession.PhaseComplete, summarysession.PhaseFailed, summarysession.PhaseAuthRequired, summarysession.PhasePlaceholder:
		return true
	default:
		return false
	}
}

func subjectLabel(st summarysession.State) string {
	if st.Mode.IsTopic() {
		return st.Subject
	}
	return "$" + st.Subject
}

func renderHTML(w io.Writer, markdown string) error {
	md := goldmark.New(goldmark.WithRendererOptions(html.WithHardWraps()))
	return md.Convert([]byte(markdown), w)
}
