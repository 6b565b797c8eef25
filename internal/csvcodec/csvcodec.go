// Package csvcodec reads and writes credential CSV files. The reader is
// deliberately tolerant: BOM stripping, delimiter sniffing, quoted fields
// with embedded newlines, and CRLF input. The writer emits the fixed
// Toolbox column layout other password managers can re-import.
package csvcodec

import (
	"errors"
	"fmt"
	"strings"

	"github.com/toolboxpm/toolbox-vault/internal/repository"
	"github.com/toolboxpm/toolbox-vault/internal/storage"
	"github.com/toolboxpm/toolbox-vault/internal/urlutil"
)

// ErrParse indicates malformed CSV: unbalanced quotes, a missing header,
// or no password column.
var ErrParse = errors.New("csv parse error")

// Format identifies the exporting application, detected from the header.
type Format int

const (
	FormatUnknown Format = iota
	FormatKeePassXC
	FormatChrome
	FormatToolbox
)

func (f Format) String() string {
	switch f {
	case FormatKeePassXC:
		return "KeePassXC"
	case FormatChrome:
		return "Chrome/Edge"
	case FormatToolbox:
		return "Toolbox"
	default:
		return "Unknown"
	}
}

// Header synonym tables, matched case-insensitively.
var (
	passwordHeaders = []string{"password", "pass"}
	usernameHeaders = []string{"username", "user", "login", "login_username"}
	urlHeaders      = []string{"url", "website", "origin", "formactionorigin"}
	titleHeaders    = []string{"title", "name"}
	notesHeaders    = []string{"notes", "note", "comment"}
	categoryHeaders = []string{"category", "folder", "group"}
	tagsHeaders     = []string{"tags", "tag"}
)

// Info describes a sniffed CSV file.
type Info struct {
	Delimiter rune
	Header    []string
	Format    Format
}

// ParseResult is the outcome of a full parse.
type ParseResult struct {
	Entries        []repository.EntrySecrets
	TotalRows      int
	SkippedEmpty   int // rows dropped for an empty password
	SkippedInvalid int // rows dropped for an underivable title
	Warnings       []string
}

func decodeText(data []byte) string {
	return strings.TrimPrefix(string(data), "\xEF\xBB\xBF")
}

// detectDelimiter sniffs the first line: tab wins when it ties or beats
// both others, then semicolon over comma, comma otherwise.
func detectDelimiter(line string) rune {
	commas := strings.Count(line, ",")
	semicolons := strings.Count(line, ";")
	tabs := strings.Count(line, "\t")

	if tabs >= commas && tabs >= semicolons && tabs > 0 {
		return '\t'
	}
	if semicolons > commas {
		return ';'
	}
	return ','
}

// parseTable runs the two-state quote machine over the whole input.
func parseTable(text string, delimiter rune) (header []string, rows [][]string, err error) {
	var all [][]string
	var row []string
	var field strings.Builder
	inQuotes := false

	flushField := func() {
		row = append(row, field.String())
		field.Reset()
	}
	flushRow := func() {
		flushField()
		all = append(all, row)
		row = nil
	}

	runes := []rune(text)
	for i := 0; i < len(runes); i++ {
		ch := runes[i]
		if inQuotes {
			if ch == '"' {
				if i+1 < len(runes) && runes[i+1] == '"' {
					field.WriteRune('"')
					i++
				} else {
					inQuotes = false
				}
			} else {
				field.WriteRune(ch)
			}
			continue
		}

		switch ch {
		case '"':
			inQuotes = true
		case delimiter:
			flushField()
		case '\n':
			flushRow()
		case '\r':
			// ignored outside quotes
		default:
			field.WriteRune(ch)
		}
	}

	if inQuotes {
		return nil, nil, fmt.Errorf("%w: unbalanced quotes", ErrParse)
	}
	if field.Len() > 0 || len(row) > 0 {
		flushRow()
	}
	if len(all) == 0 {
		return nil, nil, fmt.Errorf("%w: empty file or missing header", ErrParse)
	}
	return all[0], all[1:], nil
}

func headerIndex(header []string, candidates []string) int {
	for i, h := range header {
		trimmed := strings.ToLower(strings.TrimSpace(h))
		for _, candidate := range candidates {
			if trimmed == candidate {
				return i
			}
		}
	}
	return -1
}

func valueAt(row []string, index int) string {
	if index < 0 || index >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[index])
}

// Detect sniffs the delimiter and source format without materializing rows.
func Detect(data []byte) (Info, error) {
	text := decodeText(data)
	firstLine, _, _ := strings.Cut(text, "\n")

	info := Info{Delimiter: detectDelimiter(firstLine)}
	header, _, err := parseTable(text, info.Delimiter)
	if err != nil {
		return info, err
	}
	info.Header = header

	hasPassword := headerIndex(header, passwordHeaders) >= 0
	hasUsername := headerIndex(header, usernameHeaders) >= 0
	hasURL := headerIndex(header, urlHeaders) >= 0
	hasTitle := headerIndex(header, []string{"title"}) >= 0
	hasName := headerIndex(header, []string{"name"}) >= 0
	hasGroup := headerIndex(header, []string{"group"}) >= 0

	switch {
	case hasGroup && hasTitle && hasUsername && hasPassword && hasURL:
		info.Format = FormatKeePassXC
	case hasName && hasUsername && hasPassword && hasURL:
		info.Format = FormatChrome
	case hasTitle && hasPassword:
		info.Format = FormatToolbox
	default:
		info.Format = FormatUnknown
	}
	return info, nil
}

var tagSeparators = strings.NewReplacer("，", ",", "；", ",", ";", ",")

func splitTags(text string) []string {
	var out []string
	for _, tag := range strings.Split(tagSeparators.Replace(text), ",") {
		if trimmed := strings.TrimSpace(tag); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func deriveTitle(urlText string) string {
	if host := urlutil.HostFromURL(urlText); host != "" {
		return host
	}
	return strings.TrimSpace(urlText)
}

// Parse decodes credential rows, mapping headers through the synonym
// tables. Rows without a usable password or title are counted, not fatal;
// a missing password column fails the whole parse.
func Parse(data []byte, defaultGroupID int64) (*ParseResult, error) {
	if defaultGroupID <= 0 {
		defaultGroupID = storage.RootGroupID
	}

	text := decodeText(data)
	firstLine, _, _ := strings.Cut(text, "\n")
	header, rows, err := parseTable(text, detectDelimiter(firstLine))
	if err != nil {
		return nil, err
	}

	passwordIdx := headerIndex(header, passwordHeaders)
	usernameIdx := headerIndex(header, usernameHeaders)
	urlIdx := headerIndex(header, urlHeaders)
	titleIdx := headerIndex(header, titleHeaders)
	notesIdx := headerIndex(header, notesHeaders)
	categoryIdx := headerIndex(header, categoryHeaders)
	tagsIdx := headerIndex(header, tagsHeaders)

	if passwordIdx < 0 {
		return nil, fmt.Errorf("%w: no password column in header", ErrParse)
	}

	result := &ParseResult{TotalRows: len(rows)}

	for _, row := range rows {
		secrets := repository.EntrySecrets{
			Entry: repository.EntrySummary{
				GroupID:  defaultGroupID,
				Title:    valueAt(row, titleIdx),
				Username: valueAt(row, usernameIdx),
				URL:      valueAt(row, urlIdx),
				Category: valueAt(row, categoryIdx),
			},
			Password: valueAt(row, passwordIdx),
			Notes:    valueAt(row, notesIdx),
		}
		if tagsIdx >= 0 {
			secrets.Entry.Tags = splitTags(valueAt(row, tagsIdx))
		}

		if secrets.Entry.Title == "" {
			secrets.Entry.Title = deriveTitle(secrets.Entry.URL)
		}

		if secrets.Password == "" {
			result.SkippedEmpty++
			continue
		}
		if strings.TrimSpace(secrets.Entry.Title) == "" {
			result.SkippedInvalid++
			continue
		}

		result.Entries = append(result.Entries, secrets)
	}

	if titleIdx < 0 {
		result.Warnings = append(result.Warnings, "no title column, titles derived from URLs")
	}
	if urlIdx < 0 {
		result.Warnings = append(result.Warnings, "no url column, site matching will be unavailable")
	}
	return result, nil
}

func escapeField(value string) string {
	needQuote := strings.ContainsAny(value, ",\"\n\r")
	out := strings.ReplaceAll(value, `"`, `""`)
	if needQuote {
		return `"` + out + `"`
	}
	return out
}

// Export renders entries as UTF-8 CSV with a BOM, CRLF line endings, and
// the fixed Toolbox column order.
func Export(entries []repository.EntrySecrets) []byte {
	var b strings.Builder
	b.WriteString("\xEF\xBB\xBF")
	b.WriteString("title,username,password,url,category,tags,notes\r\n")

	for _, e := range entries {
		fields := []string{
			e.Entry.Title,
			e.Entry.Username,
			e.Password,
			e.Entry.URL,
			e.Entry.Category,
			strings.Join(e.Entry.Tags, ","),
			e.Notes,
		}
		for i, f := range fields {
			if i > 0 {
				b.WriteByte(',')
			}
			b.WriteString(escapeField(f))
		}
		b.WriteString("\r\n")
	}
	return []byte(b.String())
}
