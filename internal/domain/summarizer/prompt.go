package summarizer

import (
	"strconv"
	"strings"
	"unicode"

	apperrors "github.com/yanqian/cashtags/pkg/errors"
)

const subjectPlaceholder = "{subject}"

type preparedPrompt struct {
	subject string
	system  string
	user    string
	posts   int
	tokens  int
}

func (s *service) preparePrompt(req Request) (preparedPrompt, error) {
	subject := normalizeSubject(req.Ticker, req.IsTopic)
	if subject == "" || len(req.Posts) == 0 {
		return preparedPrompt{}, apperrors.Wrap(apperrors.CodeInvalidInput, "missing posts or ticker", nil)
	}

	template := s.cfg.TickerPrompt
	if req.IsTopic {
		template = s.cfg.TopicPrompt
	}
	system := strings.ReplaceAll(template, subjectPlaceholder, subject)

	lines := make([]string, 0, len(req.Posts))
	for _, post := range req.Posts {
		text := normalize(post.Text)
		if text == "" {
			continue
		}
		lines = append(lines, formatPost(post.Hours, text))
		if s.cfg.MaxPosts > 0 && len(lines) >= s.cfg.MaxPosts {
			break
		}
	}
	if len(lines) == 0 {
		return preparedPrompt{}, apperrors.Wrap(apperrors.CodeInvalidInput, "posts contain no text", nil)
	}

	budget := s.cfg.MaxInputTokens - s.counter.Count(system)
	user, used, kept := fitLines(lines, budget, s.counter)

	return preparedPrompt{
		subject: subject,
		system:  system,
		user:    user,
		posts:   kept,
		tokens:  s.counter.Count(system) + used,
	}, nil
}

// fitLines keeps posts in order while they fit the token budget. The first post is always kept,
// cut down by runes if it alone exceeds the budget.
func fitLines(lines []string, budget int, counter TokenCounter) (string, int, int) {
	var (
		builder strings.Builder
		used    int
		kept    int
	)
	for i, line := range lines {
		cost := counter.Count(line + "\n")
		if budget > 0 && used+cost > budget {
			if i == 0 {
				line = truncateToBudget(line, budget, counter)
				cost = counter.Count(line + "\n")
			} else {
				break
			}
		}
		builder.WriteString(line)
		builder.WriteByte('\n')
		used += cost
		kept++
	}
	return strings.TrimRight(builder.String(), "\n"), used, kept
}

func truncateToBudget(line string, budget int, counter TokenCounter) string {
	runes := []rune(line)
	lo, hi := 0, len(runes)
	for lo < hi {
		mid := (lo + hi + 1) / 2
		if counter.Count(string(runes[:mid])+"\n") <= budget {
			lo = mid
		} else {
			hi = mid - 1
		}
	}
	return string(runes[:lo])
}

func formatPost(hours float64, text string) string {
	if hours < 1 {
		return "- (<1h ago) " + text
	}
	return "- (" + strconv.FormatFloat(hours, 'f', -1, 64) + "h ago) " + text
}

func normalizeSubject(subject string, isTopic bool) string {
	subject = strings.TrimSpace(subject)
	if isTopic {
		return subject
	}
	return strings.ToUpper(strings.TrimPrefix(subject, "$"))
}

func normalize(text string) string {
	text = strings.Map(func(r rune) rune {
		switch {
		case r == '\n' || r == '\t':
			return ' '
		case unicode.IsControl(r):
			return -1
		}
		return r
	}, text)
	return strings.Join(strings.Fields(text), " ")
}
