package collyfetcher

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/JakeFAU/hiscore-crawler/internal/crawler"
	"github.com/JakeFAU/hiscore-crawler/internal/hiscore"
)

// Some names come back with a non-breaking space or its mis-decoded form.
var nameReplacer = strings.NewReplacer("\u00a0", " ", "Ä€", " ")

func isRateLimited(body []byte) bool {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return false
	}
	return strings.Contains(doc.Text(), rateLimitMarker)
}

// parsePage extracts the leaderboard rows. Rows carry rank, optionally
// level, and score in their right-aligned cells. A page without rows is past
// the end of the leaderboard and yields an empty slice.
func parsePage(body []byte) ([]hiscore.CategoryRecord, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("read html: %v: %w", err, crawler.ErrParsingFailed)
	}

	var parseErr error
	records := []hiscore.CategoryRecord{}
	doc.Find(".personal-hiscores__row").EachWithBreak(func(i int, row *goquery.Selection) bool {
		cells := row.Find("td.right")
		if cells.Length() < 2 {
			parseErr = fmt.Errorf("row %d has %d numeric cells: %w", i, cells.Length(), crawler.ErrParsingFailed)
			return false
		}
		rank, err := parseNumber(cells.First().Text())
		if err != nil {
			parseErr = fmt.Errorf("row %d rank: %w", i, err)
			return false
		}
		score, err := parseNumber(cells.Last().Text())
		if err != nil {
			parseErr = fmt.Errorf("row %d score: %w", i, err)
			return false
		}
		rec := hiscore.CategoryRecord{
			Rank:     int(rank),
			Score:    score,
			Username: strings.TrimSpace(nameReplacer.Replace(row.Find("td.left a").First().Text())),
		}
		if cells.Length() >= 3 {
			level, err := parseNumber(cells.Eq(1).Text())
			if err != nil {
				parseErr = fmt.Errorf("row %d level: %w", i, err)
				return false
			}
			rec.Level = int(level)
		}
		records = append(records, rec)
		return true
	})
	if parseErr != nil {
		return nil, parseErr
	}
	return records, nil
}

func parseNumber(text string) (int64, error) {
	clean := strings.ReplaceAll(strings.TrimSpace(text), ",", "")
	v, err := strconv.ParseInt(clean, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("number %q: %w", text, crawler.ErrParsingFailed)
	}
	return v, nil
}
