package health

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/log"

	"github.com/toolboxpm/toolbox-vault/internal/crypto"
	"github.com/toolboxpm/toolbox-vault/internal/storage"
	"github.com/toolboxpm/toolbox-vault/internal/strength"
)

// ProgressFunc receives (done, total) ticks. The total grows once when the
// breach phase starts, to rows + distinct prefixes.
type ProgressFunc func(done, total int)

// Analyzer runs the full-vault scan on its own database handle with an
// owned copy of the master key. Close zeroes the key.
type Analyzer struct {
	dbPath       string
	masterKey    []byte
	enablePwned  bool
	allowNetwork bool

	progress ProgressFunc
	client   *http.Client
	rangeURL string
	logger   *log.Logger
}

// NewAnalyzer constructs an analyzer. masterKey ownership transfers to it.
func NewAnalyzer(dbPath string, masterKey []byte, enablePwned, allowNetwork bool) *Analyzer {
	return &Analyzer{
		dbPath:       dbPath,
		masterKey:    masterKey,
		enablePwned:  enablePwned,
		allowNetwork: allowNetwork,
		client:       &http.Client{Timeout: pwnedTimeout},
		rangeURL:     defaultRangeURL,
		logger:       log.Default().WithPrefix("health"),
	}
}

// SetProgress installs a progress callback; pass nil to disable.
func (a *Analyzer) SetProgress(fn ProgressFunc) {
	a.progress = fn
}

// Close zeroes the owned key copy.
func (a *Analyzer) Close() {
	crypto.ClearBytes(a.masterKey)
	a.masterKey = nil
}

func (a *Analyzer) tick(done, total int) {
	if a.progress != nil {
		a.progress(done, total)
	}
}

// Run scans every entry. Cancellation is cooperative at row and prefix
// boundaries and returns the items completed so far.
func (a *Analyzer) Run(ctx context.Context) ([]Item, error) {
	db, err := storage.OpenWorker(a.dbPath)
	if err != nil {
		return nil, err
	}
	defer db.Close()

	var total int
	if err := db.QueryRow(`SELECT COUNT(1) FROM password_entries`).Scan(&total); err != nil {
		return nil, fmt.Errorf("failed to count entries: %w", err)
	}
	a.tick(0, total)

	items, sha256Hashes, sha1Hexes, err := a.scanEntries(ctx, db, total)
	if err != nil {
		return nil, err
	}

	if a.enablePwned && ctx.Err() == nil {
		a.checkBreaches(ctx, db, items, sha1Hexes, len(items), total)
	}

	markReuse(items, sha256Hashes)
	return items, nil
}

// scanEntries is the local phase: decrypt, score, hash, staleness.
func (a *Analyzer) scanEntries(ctx context.Context, db *sql.DB, total int) ([]Item, []string, []string, error) {
	rows, err := db.Query(`
		SELECT
			e.id, e.group_id, e.title, COALESCE(e.username, ''), COALESCE(e.url, ''),
			COALESCE(e.category, ''), e.updated_at, e.password_enc,
			COALESCE(GROUP_CONCAT(t.name, ','), '')
		FROM password_entries e
		LEFT JOIN entry_tags et ON et.entry_id = e.id
		LEFT JOIN tags t ON t.id = et.tag_id
		GROUP BY e.id
		ORDER BY e.updated_at DESC`)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to read entries: %w", err)
	}
	defer rows.Close()

	var (
		items        []Item
		sha256Hashes []string
		sha1Hexes    []string
	)
	now := time.Now().Unix()
	done := 0

	for rows.Next() {
		if ctx.Err() != nil {
			break
		}

		var item Item
		var passwordEnc []byte
		var tagsCSV string
		if err := rows.Scan(&item.EntryID, &item.GroupID, &item.Title, &item.Username,
			&item.URL, &item.Category, &item.UpdatedAt, &passwordEnc, &tagsCSV); err != nil {
			return nil, nil, nil, fmt.Errorf("failed to scan entry: %w", err)
		}
		for _, tag := range strings.Split(tagsCSV, ",") {
			if trimmed := strings.TrimSpace(tag); trimmed != "" {
				item.Tags = append(item.Tags, trimmed)
			}
		}

		if item.UpdatedAt > 0 {
			item.DaysSinceUpdate = int((now - item.UpdatedAt) / 86400)
			if item.DaysSinceUpdate < 0 {
				item.DaysSinceUpdate = 0
			}
		}
		item.Stale = item.DaysSinceUpdate >= StaleDays

		plain, err := crypto.Open(a.masterKey, passwordEnc)
		if err != nil {
			item.Corrupted = true
			item.Score = 0
			item.Weak = true
			sha256Hashes = append(sha256Hashes, "")
			sha1Hexes = append(sha1Hexes, "")
		} else {
			result := strength.Evaluate(string(plain))
			item.Score = result.Score
			item.Weak = strength.Weak(result.Score)
			sha256Hashes = append(sha256Hashes, string(crypto.SHA256(plain)))
			sha1Hexes = append(sha1Hexes, crypto.SHA1HexUpper(plain))
			crypto.ClearBytes(plain)
		}

		items = append(items, item)
		done++
		a.tick(done, total)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, nil, fmt.Errorf("failed to iterate entries: %w", err)
	}
	return items, sha256Hashes, sha1Hexes, nil
}

// markReuse groups non-corrupted entries by password hash and flags every
// member of a group of two or more.
func markReuse(items []Item, hashes []string) {
	counts := make(map[string]int)
	for i := range items {
		if items[i].Corrupted || hashes[i] == "" {
			continue
		}
		counts[hashes[i]]++
	}
	for i := range items {
		if items[i].Corrupted || hashes[i] == "" {
			continue
		}
		if n := counts[hashes[i]]; n >= 2 {
			items[i].Reused = true
			items[i].ReuseCount = n
		}
	}
}

// checkBreaches is the optional phase 3: k-anonymity range lookups with
// the on-disk prefix cache. Network failures are per-prefix and never
// fatal; affected entries keep PwnedChecked=false.
func (a *Analyzer) checkBreaches(ctx context.Context, db *sql.DB, items []Item, sha1Hexes []string, rowsDone, rowTotal int) {
	prefixToIndices := make(map[string][]int)
	for i, hex := range sha1Hexes {
		if len(hex) != 40 {
			continue
		}
		prefix := hex[:5]
		prefixToIndices[prefix] = append(prefixToIndices[prefix], i)
	}
	if len(prefixToIndices) == 0 {
		return
	}

	prefixes := make([]string, 0, len(prefixToIndices))
	for prefix := range prefixToIndices {
		prefixes = append(prefixes, prefix)
	}
	sort.Strings(prefixes)

	total := rowTotal + len(prefixes)
	a.tick(rowsDone, total)

	prefixDone := 0
	for _, prefix := range prefixes {
		if ctx.Err() != nil {
			return
		}

		body, ok := a.rangeBody(ctx, db, prefix)
		if ok {
			counts := parseRangeBody(body)
			for _, idx := range prefixToIndices[prefix] {
				suffix := sha1Hexes[idx][5:]
				items[idx].PwnedChecked = true
				if count, hit := counts[suffix]; hit && count >= 1 {
					items[idx].Pwned = true
					items[idx].PwnedCount = count
				}
			}
		}

		prefixDone++
		a.tick(rowsDone+prefixDone, total)
	}
}

// rangeBody resolves a prefix body from the cache or, when allowed, the
// network. Fresh fetches are written back to the cache.
func (a *Analyzer) rangeBody(ctx context.Context, db *sql.DB, prefix string) ([]byte, bool) {
	now := time.Now()

	body, ok, err := storage.GetPwnedPrefix(db, prefix, now)
	if err != nil {
		a.logger.Warn("breach cache read failed", "prefix", prefix, "err", err)
	}
	if ok {
		return body, true
	}

	if !a.allowNetwork {
		return nil, false
	}

	body, err = fetchRange(ctx, a.client, a.rangeURL, prefix)
	if err != nil {
		a.logger.Warn("breach range fetch failed", "prefix", prefix, "err", err)
		return nil, false
	}
	if err := storage.PutPwnedPrefix(db, prefix, body, now); err != nil {
		a.logger.Warn("breach cache write failed", "prefix", prefix, "err", err)
	}
	return body, true
}
