package health

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"
)

const (
	defaultRangeURL = "https://api.pwnedpasswords.com/range/"
	pwnedUserAgent  = "toolbox-vault/1.0"

	pwnedTimeout      = 8 * time.Second
	maxPwnedBodyBytes = 2 * 1024 * 1024
)

// fetchRange performs the k-anonymity range query for a 5-hex prefix. Only
// the prefix leaves the machine.
func fetchRange(ctx context.Context, client *http.Client, baseURL, prefix string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL+prefix, nil)
	if err != nil {
		return nil, fmt.Errorf("breach request: %w", err)
	}
	req.Header.Set("User-Agent", pwnedUserAgent)
	req.Header.Set("Add-Padding", "true")
	req.Header.Set("Accept", "text/plain")

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("breach query: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("breach query: unexpected status %s", resp.Status)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxPwnedBodyBytes+1))
	if err != nil {
		return nil, fmt.Errorf("breach read response: %w", err)
	}
	if len(body) == 0 {
		return nil, fmt.Errorf("breach query: empty response")
	}
	if len(body) > maxPwnedBodyBytes {
		return nil, fmt.Errorf("breach query: response too large")
	}
	return body, nil
}

// parseRangeBody maps uppercase 35-hex suffixes to their breach counts.
// Lines that do not look like "SUFFIX:COUNT" are skipped.
func parseRangeBody(body []byte) map[string]int64 {
	counts := make(map[string]int64)
	for _, line := range strings.Split(string(body), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		suffix, countText, ok := strings.Cut(line, ":")
		if !ok || suffix == "" {
			continue
		}
		count, err := strconv.ParseInt(strings.TrimSpace(countText), 10, 64)
		if err != nil {
			continue
		}
		counts[strings.ToUpper(strings.TrimSpace(suffix))] = count
	}
	return counts
}
