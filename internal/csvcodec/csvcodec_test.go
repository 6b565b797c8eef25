package csvcodec

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/toolboxpm/toolbox-vault/internal/repository"
)

func TestDetectDelimiter(t *testing.T) {
	tests := []struct {
		line string
		want rune
	}{
		{"a,b,c", ','},
		{"a;b;c", ';'},
		{"a\tb\tc", '\t'},
		{"a\tb,c", '\t'}, // tab ties or beats comma
		{"a;b,c;d", ';'},
		{"plain", ','},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, detectDelimiter(tt.line), "line %q", tt.line)
	}
}

func TestDetectFormats(t *testing.T) {
	tests := []struct {
		name   string
		header string
		want   Format
	}{
		{"keepassxc", "Group,Title,Username,Password,URL,Notes", FormatKeePassXC},
		{"chrome", "name,url,username,password", FormatChrome},
		{"toolbox", "title,username,password,url,category,tags,notes", FormatToolbox},
		{"unknown", "foo,bar", FormatUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			info, err := Detect([]byte(tt.header + "\r\nx,y,z,w,v,u\r\n"))
			if tt.want == FormatUnknown {
				// Header still parses; only the format is unknown.
				require.NoError(t, err)
			} else {
				require.NoError(t, err)
			}
			assert.Equal(t, tt.want, info.Format)
		})
	}
}

func TestParseBasics(t *testing.T) {
	data := "\xEF\xBB\xBF" + "title,username,password,url,category,tags,notes\r\n" +
		"Mail,alice,pw1,https://mail.example.com,Work,\"a,b\",hello\r\n" +
		"Bank,bob,pw2,,,c；d，e,\r\n"

	result, err := Parse([]byte(data), 0)
	require.NoError(t, err)
	require.Len(t, result.Entries, 2)
	assert.Equal(t, 2, result.TotalRows)

	first := result.Entries[0]
	assert.Equal(t, "Mail", first.Entry.Title)
	assert.Equal(t, "alice", first.Entry.Username)
	assert.Equal(t, "pw1", first.Password)
	assert.Equal(t, "Work", first.Entry.Category)
	assert.Equal(t, []string{"a", "b"}, first.Entry.Tags)
	assert.Equal(t, "hello", first.Notes)

	// Full-width separators split tags too.
	assert.Equal(t, []string{"c", "d", "e"}, result.Entries[1].Entry.Tags)
}

func TestParseQuotedFields(t *testing.T) {
	data := "title,password,notes\n" +
		"\"has, comma\",pw,\"line one\nline two\"\n" +
		"\"embedded \"\"quote\"\"\",pw2,plain\n"

	result, err := Parse([]byte(data), 1)
	require.NoError(t, err)
	require.Len(t, result.Entries, 2)
	assert.Equal(t, "has, comma", result.Entries[0].Entry.Title)
	assert.Equal(t, "line one\nline two", result.Entries[0].Notes)
	assert.Equal(t, `embedded "quote"`, result.Entries[1].Entry.Title)
}

func TestParseUnbalancedQuotes(t *testing.T) {
	_, err := Parse([]byte("title,password\n\"oops,pw\n"), 1)
	assert.ErrorIs(t, err, ErrParse)
}

func TestParseRequiresPasswordColumn(t *testing.T) {
	_, err := Parse([]byte("title,username\nfoo,bar\n"), 1)
	assert.ErrorIs(t, err, ErrParse)
}

func TestParseHeaderSynonyms(t *testing.T) {
	data := "NAME,LOGIN_USERNAME,PASS,Origin,Folder,Tag,Comment\n" +
		"Site,carol,pw,https://www.site.example.org/login,Personal/Web,one,note text\n"

	result, err := Parse([]byte(data), 1)
	require.NoError(t, err)
	require.Len(t, result.Entries, 1)

	e := result.Entries[0]
	assert.Equal(t, "Site", e.Entry.Title)
	assert.Equal(t, "carol", e.Entry.Username)
	assert.Equal(t, "pw", e.Password)
	assert.Equal(t, "https://www.site.example.org/login", e.Entry.URL)
	assert.Equal(t, "Personal/Web", e.Entry.Category)
	assert.Equal(t, []string{"one"}, e.Entry.Tags)
	assert.Equal(t, "note text", e.Notes)
}

func TestParseRowFilters(t *testing.T) {
	data := "title,username,password,url\n" +
		",u1,,https://x.example.com\n" + // empty password → skippedEmpty
		",u2,pw,https://www.derive.example.com\n" + // title derived from host
		",u3,pw,\n" // no title, no url → skippedInvalid

	result, err := Parse([]byte(data), 1)
	require.NoError(t, err)
	assert.Equal(t, 1, result.SkippedEmpty)
	assert.Equal(t, 1, result.SkippedInvalid)
	require.Len(t, result.Entries, 1)
	assert.Equal(t, "derive.example.com", result.Entries[0].Entry.Title)
}

func TestParseWarnings(t *testing.T) {
	result, err := Parse([]byte("username,password\nu,pw\n"), 1)
	require.NoError(t, err)
	assert.Len(t, result.Warnings, 2)
	assert.Equal(t, 1, result.SkippedInvalid)
}

func TestExportLayout(t *testing.T) {
	entries := []repository.EntrySecrets{{
		Entry: repository.EntrySummary{
			Title:    `needs "quotes"`,
			Username: "a,b",
			URL:      "https://example.com",
			Category: "Work",
			Tags:     []string{"x", "y"},
		},
		Password: "p\nw",
		Notes:    "fine",
	}}

	out := string(Export(entries))
	assert.True(t, strings.HasPrefix(out, "\xEF\xBB\xBF"), "must start with BOM")
	assert.Contains(t, out, "title,username,password,url,category,tags,notes\r\n")
	assert.Contains(t, out, `"needs ""quotes"""`)
	assert.Contains(t, out, `"a,b"`)
	assert.Contains(t, out, "\"p\nw\"")
	assert.Contains(t, out, `"x,y"`)
	assert.True(t, strings.HasSuffix(out, "\r\n"))
}

func TestRoundTrip(t *testing.T) {
	entries := []repository.EntrySecrets{
		{
			Entry: repository.EntrySummary{
				Title: "Mail", Username: "alice", URL: "https://mail.example.com",
				Category: "Work", Tags: []string{"email", "primary"},
			},
			Password: "s3cret!",
			Notes:    "line one\nline two",
		},
		{
			Entry:    repository.EntrySummary{Title: "Quote\"y"},
			Password: "p,w;x",
		},
	}

	parsed, err := Parse(Export(entries), 1)
	require.NoError(t, err)
	require.Len(t, parsed.Entries, len(entries))

	for i, want := range entries {
		got := parsed.Entries[i]
		assert.Equal(t, want.Entry.Title, got.Entry.Title)
		assert.Equal(t, want.Entry.Username, got.Entry.Username)
		assert.Equal(t, want.Entry.URL, got.Entry.URL)
		assert.Equal(t, want.Entry.Category, got.Entry.Category)
		assert.ElementsMatch(t, want.Entry.Tags, got.Entry.Tags)
		assert.Equal(t, want.Password, got.Password)
		assert.Equal(t, want.Notes, got.Notes)
	}
}
