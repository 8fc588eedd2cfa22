package market

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/yanqian/cashtags/internal/domain/summarizer"
	apperrors "github.com/yanqian/cashtags/pkg/errors"
	"github.com/yanqian/cashtags/pkg/util"
)

var tickerPattern = regexp.MustCompile(`^[A-Z.]{1,10}$`)

// NormalizeTicker strips a leading cashtag sign, upper-cases and validates the symbol.
func NormalizeTicker(raw string) (string, error) {
	ticker := strings.ToUpper(strings.TrimPrefix(strings.TrimSpace(raw), "$"))
	if !tickerPattern.MatchString(ticker) {
		return "", apperrors.Wrap(apperrors.CodeInvalidInput, fmt.Sprintf("invalid ticker %q", raw), nil)
	}
	return ticker, nil
}

// FormatMarketCap renders a market capitalisation in billions or millions.
func FormatMarketCap(marketCap float64) string {
	switch {
	case marketCap <= 0:
		return "N/A"
	case marketCap >= 1e11:
		return fmt.Sprintf("%.0fB", marketCap/1e9)
	case marketCap >= 1e9:
		return fmt.Sprintf("%.1fB", marketCap/1e9)
	default:
		return fmt.Sprintf("%.0fM", marketCap/1e6)
	}
}

// ArticleToPost converts a headline into a summary source item.
func ArticleToPost(a Article, now time.Time) summarizer.Post {
	description := a.Description
	if strings.TrimSpace(description) == "" {
		description = "No description"
	}
	return summarizer.Post{
		Hours:      hoursAgo(a.PublishedAt, now),
		Text:       fmt.Sprintf("%s - %s (%s)", a.Title, a.Publisher, description),
		ArticleURL: a.ArticleURL,
	}
}

func hoursAgo(published, now time.Time) float64 {
	if published.IsZero() {
		return 0
	}
	return float64(util.HoursBetween(published, now))
}
