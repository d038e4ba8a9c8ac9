package testutil

import (
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/require"
)

const envelopeSchema = `
CREATE TABLE addresses (ROWID INTEGER PRIMARY KEY, address TEXT, comment TEXT);
CREATE TABLE subjects (ROWID INTEGER PRIMARY KEY, subject TEXT);
CREATE TABLE mailboxes (ROWID INTEGER PRIMARY KEY, url TEXT, total_count INTEGER, unread_count INTEGER);
CREATE TABLE messages (
	ROWID INTEGER PRIMARY KEY,
	sender INTEGER,
	subject INTEGER,
	mailbox INTEGER,
	date_received INTEGER,
	date_sent INTEGER,
	read INTEGER DEFAULT 0,
	flagged INTEGER DEFAULT 0,
	deleted INTEGER DEFAULT 0,
	summary INTEGER
);
CREATE TABLE summaries (ROWID INTEGER PRIMARY KEY, summary TEXT);
`

// SourceFixture is a writable envelope index used to feed the read-only reader
type SourceFixture struct {
	Path string
	db   *sql.DB
}

type SourceRow struct {
	RowID        int64
	From         string
	FromName     string
	Subject      string
	MailboxID    int64
	DateReceived time.Time
	Read         bool
	Flagged      bool
	Deleted      bool
	Summary      string
}

func NewSourceFixture(t *testing.T) *SourceFixture {
	t.Helper()

	path := filepath.Join(t.TempDir(), "Envelope Index")
	db, err := sql.Open("sqlite3", path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	_, err = db.Exec(envelopeSchema)
	require.NoError(t, err)

	return &SourceFixture{Path: path, db: db}
}

func (f *SourceFixture) AddMailbox(t *testing.T, rowID int64, url string, total, unread int64) {
	t.Helper()
	_, err := f.db.Exec("INSERT INTO mailboxes (ROWID, url, total_count, unread_count) VALUES (?, ?, ?, ?)",
		rowID, url, total, unread)
	require.NoError(t, err)
}

// AddMessage inserts a message row plus its address, subject and summary rows
func (f *SourceFixture) AddMessage(t *testing.T, row SourceRow) {
	t.Helper()

	var senderID, subjectID, summaryID sql.NullInt64
	if row.From != "" {
		res, err := f.db.Exec("INSERT INTO addresses (address, comment) VALUES (?, ?)", row.From, row.FromName)
		require.NoError(t, err)
		senderID.Int64, _ = res.LastInsertId()
		senderID.Valid = true
	}
	if row.Subject != "" {
		res, err := f.db.Exec("INSERT INTO subjects (subject) VALUES (?)", row.Subject)
		require.NoError(t, err)
		subjectID.Int64, _ = res.LastInsertId()
		subjectID.Valid = true
	}
	if row.Summary != "" {
		res, err := f.db.Exec("INSERT INTO summaries (summary) VALUES (?)", row.Summary)
		require.NoError(t, err)
		summaryID.Int64, _ = res.LastInsertId()
		summaryID.Valid = true
	}

	_, err := f.db.Exec(`INSERT INTO messages
		(ROWID, sender, subject, mailbox, date_received, date_sent, read, flagged, deleted, summary)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		row.RowID, senderID, subjectID, row.MailboxID, row.DateReceived.Unix(), row.DateReceived.Unix()-60,
		boolInt(row.Read), boolInt(row.Flagged), boolInt(row.Deleted), summaryID)
	require.NoError(t, err)
}

func (f *SourceFixture) SetFlags(t *testing.T, rowID int64, read, flagged, deleted bool) {
	t.Helper()
	_, err := f.db.Exec("UPDATE messages SET read = ?, flagged = ?, deleted = ? WHERE ROWID = ?",
		boolInt(read), boolInt(flagged), boolInt(deleted), rowID)
	require.NoError(t, err)
}

func (f *SourceFixture) Exec(t *testing.T, query string, args ...interface{}) {
	t.Helper()
	_, err := f.db.Exec(query, args...)
	require.NoError(t, err)
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
