package source

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/mattn/go-sqlite3"
	"github.com/opentracing/opentracing-go"
	"github.com/pkg/errors"

	"github.com/customeros/mailtriage/config"
	"github.com/customeros/mailtriage/dto"
	"github.com/customeros/mailtriage/interfaces"
	mterrors "github.com/customeros/mailtriage/internal/errors"
	"github.com/customeros/mailtriage/internal/logger"
	"github.com/customeros/mailtriage/internal/tracing"
	"github.com/customeros/mailtriage/internal/utils"
)

const (
	readOnlyMode       = "ro"
	busyTimeoutMillis  = 5000
	fetchMessagesQuery = `
SELECT m.ROWID,
       COALESCE(a.address, ''),
       COALESCE(a.comment, ''),
       COALESCE(s.subject, ''),
       COALESCE(m.mailbox, 0),
       COALESCE(mb.url, ''),
       COALESCE(m.date_received, 0),
       m.date_sent,
       COALESCE(m.read, 0),
       COALESCE(m.flagged, 0),
       COALESCE(m.deleted, 0),
       %s
FROM messages m
LEFT JOIN addresses a ON a.ROWID = m.sender
LEFT JOIN subjects s ON s.ROWID = m.subject
LEFT JOIN mailboxes mb ON mb.ROWID = m.mailbox
%s
WHERE COALESCE(m.date_received, 0) > ?
   OR (COALESCE(m.date_received, 0) = ? AND m.ROWID > ?)
ORDER BY COALESCE(m.date_received, 0) ASC, m.ROWID ASC
LIMIT ?`
	fetchMailboxesQuery = `
SELECT ROWID, COALESCE(url, ''), COALESCE(total_count, 0), COALESCE(unread_count, 0)
FROM mailboxes
ORDER BY ROWID ASC`
)

// Reader is a read-only view of the envelope index. It never issues writes.
type Reader struct {
	db           *sql.DB
	cfg          *config.SourceConfig
	log          logger.Logger
	hasSummaries bool
	messagesSQL  string
}

// OpenReadOnly opens the source store. A missing file yields
// ErrSourceNotFound, which callers treat as a status rather than a failure.
func OpenReadOnly(ctx context.Context, cfg *config.SourceConfig, log logger.Logger) (*Reader, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "source.OpenReadOnly")
	defer span.Finish()
	tracing.SetDefaultSourceReaderSpanTags(ctx, span)
	span.SetTag("source.path", cfg.DBPath)

	if cfg.OpenMode != readOnlyMode {
		err := errors.Wrapf(mterrors.ErrSourceWritableMode, "open mode %q", cfg.OpenMode)
		tracing.TraceErr(span, err)
		return nil, err
	}

	info, err := os.Stat(cfg.DBPath)
	if err != nil {
		if os.IsNotExist(err) {
			span.SetTag("source.found", false)
			return nil, errors.Wrap(mterrors.ErrSourceNotFound, cfg.DBPath)
		}
		tracing.TraceErr(span, err)
		return nil, errors.Wrapf(mterrors.ErrSourceUnavailable, "stat %s: %v", cfg.DBPath, err)
	}
	if info.IsDir() {
		return nil, errors.Wrapf(mterrors.ErrSourceUnavailable, "%s is a directory", cfg.DBPath)
	}

	dsn := fmt.Sprintf("file:%s?mode=ro&_query_only=1&_busy_timeout=%d", cfg.DBPath, busyTimeoutMillis)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, errors.Wrapf(mterrors.ErrSourceUnavailable, "open: %v", err)
	}
	db.SetMaxOpenConns(2)

	reader := &Reader{db: db, cfg: cfg, log: log}
	if err = reader.probe(ctx); err != nil {
		_ = db.Close()
		tracing.TraceErr(span, err)
		return nil, err
	}

	return reader, nil
}

// probe touches the schema once so locking and corruption surface at open
func (r *Reader) probe(ctx context.Context) error {
	if err := r.db.PingContext(ctx); err != nil {
		return classifyError(err, "ping")
	}

	var count int
	err := r.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = 'summaries'").Scan(&count)
	if err != nil {
		return classifyError(err, "inspect schema")
	}
	r.hasSummaries = count > 0

	summaryColumn, summaryJoin := "''", ""
	if r.hasSummaries {
		summaryColumn = "COALESCE(su.summary, '')"
		summaryJoin = "LEFT JOIN summaries su ON su.ROWID = m.summary"
	}
	r.messagesSQL = fmt.Sprintf(fetchMessagesQuery, summaryColumn, summaryJoin)

	var rowID sql.NullInt64
	err = r.db.QueryRowContext(ctx, "SELECT ROWID FROM messages LIMIT 1").Scan(&rowID)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return classifyError(err, "probe messages")
	}
	return nil
}

// FetchSince returns up to limit rows strictly after cursor in
// (date_received, ROWID) order
func (r *Reader) FetchSince(ctx context.Context, cursor dto.Cursor, limit int) ([]dto.SourceMessage, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "source.FetchSince")
	defer span.Finish()
	tracing.SetDefaultSourceReaderSpanTags(ctx, span)
	span.SetTag("cursor.row", cursor.SourceRowID)
	span.SetTag("limit", limit)

	dateArg := int64(-1)
	if !cursor.IsZero() {
		dateArg = cursor.DateReceived.Unix()
	}

	rows, err := r.db.QueryContext(ctx, r.messagesSQL, dateArg, dateArg, cursor.SourceRowID, limit)
	if err != nil {
		err = classifyError(err, "fetch messages")
		tracing.TraceErr(span, err)
		return nil, err
	}
	defer rows.Close()

	messages := make([]dto.SourceMessage, 0, limit)
	for rows.Next() {
		var (
			message                   dto.SourceMessage
			dateReceived              int64
			dateSent                  sql.NullInt64
			read, flagged, deleted    int64
			address, comment, summary string
		)
		if err = rows.Scan(
			&message.SourceRowID,
			&address,
			&comment,
			&message.Subject,
			&message.MailboxSourceRowID,
			&message.MailboxPath,
			&dateReceived,
			&dateSent,
			&read,
			&flagged,
			&deleted,
			&summary,
		); err != nil {
			err = classifyError(err, "scan message")
			tracing.TraceErr(span, err)
			return nil, err
		}

		message.SenderAddress = utils.NormalizeEmailAddress(address)
		message.SenderDisplayName = strings.TrimSpace(comment)
		message.DateReceived = time.Unix(dateReceived, 0).UTC()
		if dateSent.Valid {
			sent := time.Unix(dateSent.Int64, 0).UTC()
			message.DateSent = &sent
		}
		message.IsRead = read != 0
		message.IsFlagged = flagged != 0
		message.Deleted = deleted != 0
		message.Snippet = normalizeSnippet(summary, r.cfg.SnippetMaxChars)
		messages = append(messages, message)
	}
	if err = rows.Err(); err != nil {
		err = classifyError(err, "iterate messages")
		tracing.TraceErr(span, err)
		return nil, err
	}

	r.enrichSnippets(ctx, messages)

	span.SetTag("fetched", len(messages))
	return messages, nil
}

func (r *Reader) FetchMailboxes(ctx context.Context) ([]dto.SourceMailbox, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "source.FetchMailboxes")
	defer span.Finish()
	tracing.SetDefaultSourceReaderSpanTags(ctx, span)

	rows, err := r.db.QueryContext(ctx, fetchMailboxesQuery)
	if err != nil {
		err = classifyError(err, "fetch mailboxes")
		tracing.TraceErr(span, err)
		return nil, err
	}
	defer rows.Close()

	var mailboxes []dto.SourceMailbox
	for rows.Next() {
		var mailbox dto.SourceMailbox
		if err = rows.Scan(&mailbox.SourceRowID, &mailbox.Path, &mailbox.TotalCount, &mailbox.UnreadCount); err != nil {
			err = classifyError(err, "scan mailbox")
			tracing.TraceErr(span, err)
			return nil, err
		}
		if mailbox.Path == "" {
			continue
		}
		mailboxes = append(mailboxes, mailbox)
	}
	if err = rows.Err(); err != nil {
		err = classifyError(err, "iterate mailboxes")
		tracing.TraceErr(span, err)
		return nil, err
	}

	return mailboxes, nil
}

func (r *Reader) Close() error {
	return r.db.Close()
}

// enrichSnippets fills empty snippets from raw message files. Failures are
// logged and leave the snippet empty.
func (r *Reader) enrichSnippets(ctx context.Context, messages []dto.SourceMessage) {
	if r.cfg.MessagesDir == "" {
		return
	}
	for i := range messages {
		if messages[i].Snippet != "" {
			continue
		}
		if ctx.Err() != nil {
			return
		}
		snippet, err := snippetFromMessageFile(r.cfg.MessagesDir, messages[i].SourceRowID)
		if err != nil {
			if r.log != nil {
				r.log.Debugf("no snippet for source row %d: %v", messages[i].SourceRowID, err)
			}
			continue
		}
		messages[i].Snippet = normalizeSnippet(snippet, r.cfg.SnippetMaxChars)
	}
}

// classifyError maps driver errors onto the source error taxonomy
func classifyError(err error, op string) error {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code {
		case sqlite3.ErrBusy, sqlite3.ErrLocked, sqlite3.ErrCantOpen, sqlite3.ErrPerm, sqlite3.ErrAuth:
			return errors.Wrapf(mterrors.ErrSourceUnavailable, "%s: %v", op, err)
		}
	}
	return errors.Wrapf(mterrors.ErrSourceCorrupt, "%s: %v", op, err)
}

type sourceOpener struct {
	cfg *config.SourceConfig
	log logger.Logger
}

func NewSourceOpener(cfg *config.SourceConfig, log logger.Logger) interfaces.SourceOpener {
	return &sourceOpener{cfg: cfg, log: log}
}

func (o *sourceOpener) Open(ctx context.Context) (interfaces.SourceReader, error) {
	reader, err := OpenReadOnly(ctx, o.cfg, o.log)
	if err != nil {
		return nil, err
	}
	return reader, nil
}
