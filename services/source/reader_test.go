package source

import (
	"context"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/customeros/mailtriage/config"
	"github.com/customeros/mailtriage/dto"
	mterrors "github.com/customeros/mailtriage/internal/errors"
	"github.com/customeros/mailtriage/internal/testutil"
)

var base = time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)

func sourceConfig(path string) *config.SourceConfig {
	return &config.SourceConfig{
		DBPath:          path,
		Name:            "envelope",
		OpenMode:        "ro",
		SnippetMaxChars: 40,
	}
}

func openFixture(t *testing.T, cfg *config.SourceConfig) *Reader {
	t.Helper()
	reader, err := OpenReadOnly(context.Background(), cfg, testutil.NewLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = reader.Close() })
	return reader
}

func TestOpenReadOnly_MissingFile(t *testing.T) {
	cfg := sourceConfig(filepath.Join(t.TempDir(), "missing.db"))

	_, err := OpenReadOnly(context.Background(), cfg, testutil.NewLogger())

	assert.ErrorIs(t, err, mterrors.ErrSourceNotFound)
}

func TestOpenReadOnly_RejectsWritableMode(t *testing.T) {
	fixture := testutil.NewSourceFixture(t)
	cfg := sourceConfig(fixture.Path)
	cfg.OpenMode = "rw"

	_, err := OpenReadOnly(context.Background(), cfg, testutil.NewLogger())

	assert.ErrorIs(t, err, mterrors.ErrSourceWritableMode)
}

func TestOpenReadOnly_NotADatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "garbage.db")
	require.NoError(t, os.WriteFile(path, []byte(strings.Repeat("not sqlite at all ", 100)), 0o600))

	_, err := OpenReadOnly(context.Background(), sourceConfig(path), testutil.NewLogger())

	assert.ErrorIs(t, err, mterrors.ErrSourceCorrupt)
}

func TestReader_NeverWrites(t *testing.T) {
	fixture := testutil.NewSourceFixture(t)
	fixture.AddMessage(t, testutil.SourceRow{RowID: 1, From: "a@example.com", DateReceived: base})
	reader := openFixture(t, sourceConfig(fixture.Path))

	_, err := reader.db.Exec("DELETE FROM messages")

	assert.Error(t, err)
}

func TestFetchSince_KeysetOrderWithTies(t *testing.T) {
	fixture := testutil.NewSourceFixture(t)
	fixture.AddMailbox(t, 1, "imap://acct/INBOX", 4, 2)
	fixture.AddMessage(t, testutil.SourceRow{RowID: 5, From: "late@example.com", Subject: "late", MailboxID: 1, DateReceived: base.Add(time.Hour)})
	fixture.AddMessage(t, testutil.SourceRow{RowID: 3, From: "b@example.com", Subject: "tie b", MailboxID: 1, DateReceived: base})
	fixture.AddMessage(t, testutil.SourceRow{RowID: 2, From: " A@Example.COM ", FromName: "Ann", Subject: "tie a", MailboxID: 1, DateReceived: base, Read: true})
	fixture.AddMessage(t, testutil.SourceRow{RowID: 9, From: "early@example.com", Subject: "early", MailboxID: 1, DateReceived: base.Add(-time.Hour), Deleted: true})
	reader := openFixture(t, sourceConfig(fixture.Path))
	ctx := context.Background()

	first, err := reader.FetchSince(ctx, dto.Cursor{}, 2)
	require.NoError(t, err)
	require.Len(t, first, 2)
	assert.EqualValues(t, 9, first[0].SourceRowID)
	assert.True(t, first[0].Deleted)
	assert.EqualValues(t, 2, first[1].SourceRowID)
	assert.Equal(t, "a@example.com", first[1].SenderAddress)
	assert.Equal(t, "Ann", first[1].SenderDisplayName)
	assert.Equal(t, "imap://acct/INBOX", first[1].MailboxPath)
	assert.True(t, first[1].IsRead)
	assert.Equal(t, base, first[1].DateReceived)
	require.NotNil(t, first[1].DateSent)

	second, err := reader.FetchSince(ctx, first[1].Cursor(), 2)
	require.NoError(t, err)
	require.Len(t, second, 2)
	assert.EqualValues(t, 3, second[0].SourceRowID)
	assert.EqualValues(t, 5, second[1].SourceRowID)

	rest, err := reader.FetchSince(ctx, second[1].Cursor(), 2)
	require.NoError(t, err)
	assert.Empty(t, rest)
}

func TestFetchSince_SummarySnippet(t *testing.T) {
	fixture := testutil.NewSourceFixture(t)
	fixture.AddMessage(t, testutil.SourceRow{
		RowID:        1,
		From:         "a@example.com",
		DateReceived: base,
		Summary:      "  Hello\n\nthere,   this summary is definitely longer than forty characters  ",
	})
	reader := openFixture(t, sourceConfig(fixture.Path))

	messages, err := reader.FetchSince(context.Background(), dto.Cursor{}, 10)

	require.NoError(t, err)
	require.Len(t, messages, 1)
	assert.Equal(t, "Hello there, this summary is definitely ", messages[0].Snippet)
}

func TestFetchSince_WithoutSummariesTable(t *testing.T) {
	fixture := testutil.NewSourceFixture(t)
	fixture.Exec(t, "DROP TABLE summaries")
	fixture.AddMessage(t, testutil.SourceRow{RowID: 1, From: "a@example.com", DateReceived: base})
	reader := openFixture(t, sourceConfig(fixture.Path))

	messages, err := reader.FetchSince(context.Background(), dto.Cursor{}, 10)

	require.NoError(t, err)
	require.Len(t, messages, 1)
	assert.False(t, reader.hasSummaries)
	assert.Empty(t, messages[0].Snippet)
}

func TestFetchSince_SnippetFromEmlx(t *testing.T) {
	fixture := testutil.NewSourceFixture(t)
	fixture.AddMessage(t, testutil.SourceRow{RowID: 42, From: "a@example.com", DateReceived: base})
	dir := t.TempDir()
	mime := "From: a@example.com\r\nSubject: hi\r\nContent-Type: text/html; charset=utf-8\r\n\r\n" +
		"<html><head><style>p{}</style></head><body><p>Quarterly   report</p><script>x()</script><p>attached</p></body></html>\r\n"
	emlx := strings.Join([]string{"  " + strconv.Itoa(len(mime)), mime + "<?xml version=\"1.0\"?><plist></plist>"}, "\n")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "42.emlx"), []byte(emlx), 0o600))

	cfg := sourceConfig(fixture.Path)
	cfg.MessagesDir = dir
	reader := openFixture(t, cfg)

	messages, err := reader.FetchSince(context.Background(), dto.Cursor{}, 10)

	require.NoError(t, err)
	require.Len(t, messages, 1)
	assert.Contains(t, messages[0].Snippet, "Quarterly report")
	assert.NotContains(t, messages[0].Snippet, "x()")
	assert.NotContains(t, messages[0].Snippet, "plist")
}

func TestFetchSince_MissingMessageFileLeavesSnippetEmpty(t *testing.T) {
	fixture := testutil.NewSourceFixture(t)
	fixture.AddMessage(t, testutil.SourceRow{RowID: 7, From: "a@example.com", DateReceived: base})
	cfg := sourceConfig(fixture.Path)
	cfg.MessagesDir = t.TempDir()
	reader := openFixture(t, cfg)

	messages, err := reader.FetchSince(context.Background(), dto.Cursor{}, 10)

	require.NoError(t, err)
	require.Len(t, messages, 1)
	assert.Empty(t, messages[0].Snippet)
}

func TestFetchMailboxes(t *testing.T) {
	fixture := testutil.NewSourceFixture(t)
	fixture.AddMailbox(t, 1, "imap://acct/INBOX", 10, 4)
	fixture.AddMailbox(t, 2, "imap://acct/Archive", 120, 0)
	fixture.AddMailbox(t, 3, "", 0, 0)
	reader := openFixture(t, sourceConfig(fixture.Path))

	mailboxes, err := reader.FetchMailboxes(context.Background())

	require.NoError(t, err)
	require.Len(t, mailboxes, 2)
	assert.Equal(t, "imap://acct/INBOX", mailboxes[0].Path)
	assert.EqualValues(t, 4, mailboxes[0].UnreadCount)
	assert.EqualValues(t, 120, mailboxes[1].TotalCount)
}

func TestSourceOpener_ReopensEachTime(t *testing.T) {
	dir := t.TempDir()
	cfg := sourceConfig(filepath.Join(dir, "later.db"))
	opener := NewSourceOpener(cfg, testutil.NewLogger())

	_, err := opener.Open(context.Background())
	require.ErrorIs(t, err, mterrors.ErrSourceNotFound)

	fixture := testutil.NewSourceFixture(t)
	cfg.DBPath = fixture.Path
	reader, err := opener.Open(context.Background())
	require.NoError(t, err)
	assert.NoError(t, reader.Close())
}

func TestHTMLToPlainText(t *testing.T) {
	text, err := HTMLToPlainText("<html><body><style>.a{}</style><b>Hi</b> <i>there</i></body></html>")

	require.NoError(t, err)
	assert.Equal(t, "Hi there", normalizeSnippet(text, 0))
}
