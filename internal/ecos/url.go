package ecos

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"findash/internal/core"
)

// MaxItemCodes is the number of item code slots StatisticSearch accepts.
const MaxItemCodes = 4

var ErrTooManyItems = errors.New("too many item codes")

// SearchRequest selects one statistic series.
type SearchRequest struct {
	StatCode  string
	ItemCodes []string
	Cycle     core.Cycle
	Start     time.Time
	End       time.Time
}

func (r SearchRequest) validate() error {
	if strings.TrimSpace(r.StatCode) == "" {
		return core.ErrEmptyStatCode
	}
	if len(r.ItemCodes) > MaxItemCodes {
		return fmt.Errorf("%w: %d > %d", ErrTooManyItems, len(r.ItemCodes), MaxItemCodes)
	}
	if !r.Cycle.Valid() {
		return fmt.Errorf("%w: %q", core.ErrInvalidCycle, r.Cycle)
	}
	return nil
}

// BuildURL returns the StatisticSearch URL for rows startIndex..endIndex.
func BuildURL(baseURL, apiKey string, req SearchRequest, startIndex, endIndex int) (string, error) {
	if err := req.validate(); err != nil {
		return "", err
	}
	from, err := FormatPeriod(req.Cycle, req.Start)
	if err != nil {
		return "", err
	}
	to, err := FormatPeriod(req.Cycle, req.End)
	if err != nil {
		return "", err
	}
	parts := []string{
		"StatisticSearch", apiKey, "json", "kr",
		fmt.Sprint(startIndex), fmt.Sprint(endIndex),
		req.StatCode, string(req.Cycle), from, to,
	}
	for _, code := range req.ItemCodes {
		if code = strings.TrimSpace(code); code != "" {
			parts = append(parts, code)
		}
	}
	return joinURL(baseURL, parts...), nil
}

// TableListURL returns the StatisticTableList URL for rows startIndex..endIndex.
func TableListURL(baseURL, apiKey string, startIndex, endIndex int) string {
	return joinURL(baseURL, "StatisticTableList", apiKey, "json", "kr", fmt.Sprint(startIndex), fmt.Sprint(endIndex)) + "/"
}

// ItemListURL returns the StatisticItemList URL of one table.
func ItemListURL(baseURL, apiKey, statCode string, startIndex, endIndex int) string {
	return joinURL(baseURL, "StatisticItemList", apiKey, "json", "kr", fmt.Sprint(startIndex), fmt.Sprint(endIndex), statCode)
}

func joinURL(base string, parts ...string) string {
	escaped := make([]string, len(parts))
	for i, p := range parts {
		escaped[i] = url.PathEscape(p)
	}
	return strings.TrimRight(base, "/") + "/" + strings.Join(escaped, "/")
}
