package sync_engine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/customeros/mailtriage/config"
	"github.com/customeros/mailtriage/dto"
	"github.com/customeros/mailtriage/interfaces"
	"github.com/customeros/mailtriage/internal/enum"
	mterrors "github.com/customeros/mailtriage/internal/errors"
	"github.com/customeros/mailtriage/internal/models"
	"github.com/customeros/mailtriage/internal/repository"
	"github.com/customeros/mailtriage/internal/testutil"
	"github.com/customeros/mailtriage/services/source"
)

const tenant = "acme"

var base = time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)

// fakeReader serves an in-memory source and counts fetch calls
type fakeReader struct {
	messages   []dto.SourceMessage
	mailboxes  []dto.SourceMailbox
	fetchCalls int
	failOnCall int
}

func (r *fakeReader) FetchSince(ctx context.Context, cursor dto.Cursor, limit int) ([]dto.SourceMessage, error) {
	r.fetchCalls++
	if r.failOnCall > 0 && r.fetchCalls == r.failOnCall {
		return nil, mterrors.ErrSourceCorrupt
	}
	var out []dto.SourceMessage
	for _, message := range r.messages {
		if message.Cursor().After(cursor) {
			out = append(out, message)
		}
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (r *fakeReader) FetchMailboxes(ctx context.Context) ([]dto.SourceMailbox, error) {
	return r.mailboxes, nil
}

func (r *fakeReader) Close() error {
	return nil
}

type fakeOpener struct {
	reader interfaces.SourceReader
	err    error
}

func (o *fakeOpener) Open(ctx context.Context) (interfaces.SourceReader, error) {
	if o.err != nil {
		return nil, o.err
	}
	return o.reader, nil
}

func testConfig(batchSize, maxBatches int) *config.Config {
	return &config.Config{
		AppConfig:    &config.AppConfig{Tenant: tenant},
		SourceConfig: &config.SourceConfig{Name: "envelope", DBPath: "/nowhere", OpenMode: "ro"},
		SyncConfig:   &config.SyncConfig{BatchSize: batchSize, MaxBatchesPerCycle: maxBatches},
	}
}

func sourceMessage(rowID int64, received time.Time, from, subject string) dto.SourceMessage {
	return dto.SourceMessage{
		SourceRowID:        rowID,
		SenderAddress:      from,
		Subject:            subject,
		MailboxSourceRowID: 1,
		MailboxPath:        "imap://acct/INBOX",
		DateReceived:       received,
	}
}

func newService(t *testing.T, cfg *config.Config, opener interfaces.SourceOpener) (interfaces.SyncService, *repository.Repositories, *gorm.DB) {
	t.Helper()
	db := testutil.NewReplicaDB(t)
	repos := repository.InitRepositories(db)
	return NewSyncService(cfg, testutil.NewLogger(), repos, opener), repos, db
}

func count(t *testing.T, db *gorm.DB, model interface{}) int64 {
	t.Helper()
	var n int64
	require.NoError(t, db.Model(model).Count(&n).Error)
	return n
}

func TestRunSync_ThreeMessagesBatchOfTwo(t *testing.T) {
	reader := &fakeReader{messages: []dto.SourceMessage{
		sourceMessage(1, base, "a@example.com", "one"),
		sourceMessage(2, base.Add(time.Minute), "b@example.com", "two"),
		sourceMessage(3, base.Add(2*time.Minute), "a@example.com", "three"),
	}}
	svc, repos, db := newService(t, testConfig(2, 50), &fakeOpener{reader: reader})

	report, err := svc.RunSync(context.Background())

	require.NoError(t, err)
	assert.Equal(t, enum.SyncStatusOK, report.Status)
	assert.Equal(t, 2, reader.fetchCalls)
	assert.Equal(t, 2, report.FetchCalls)
	assert.Equal(t, 3, report.Inserted)
	assert.EqualValues(t, 3, count(t, db, &models.Message{}))
	assert.EqualValues(t, 2, count(t, db, &models.Address{}))

	state, err := repos.SyncStateRepository.GetSyncState(context.Background(), tenant, "envelope")
	require.NoError(t, err)
	require.NotNil(t, state)
	assert.EqualValues(t, 3, state.LastSourceRowID)
	assert.True(t, base.Add(2*time.Minute).Equal(state.LastDateReceived))
	assert.EqualValues(t, 3, state.RowsSynced)
}

func TestRunSync_Idempotent(t *testing.T) {
	reader := &fakeReader{messages: []dto.SourceMessage{
		sourceMessage(1, base, "a@example.com", "one"),
		sourceMessage(2, base, "a@example.com", "one"),
	}}
	svc, _, db := newService(t, testConfig(10, 50), &fakeOpener{reader: reader})

	_, err := svc.RunSync(context.Background())
	require.NoError(t, err)
	snapshot := count(t, db, &models.Message{})

	report, err := svc.RunSync(context.Background())
	require.NoError(t, err)

	assert.Zero(t, report.Inserted)
	assert.Zero(t, report.Fetched)
	assert.Equal(t, snapshot, count(t, db, &models.Message{}))
	assert.EqualValues(t, 1, count(t, db, &models.Subject{}))
}

func TestRunSync_SameTimestampAcrossBatchBoundary(t *testing.T) {
	reader := &fakeReader{messages: []dto.SourceMessage{
		sourceMessage(10, base, "a@example.com", "s"),
		sourceMessage(11, base, "a@example.com", "s"),
		sourceMessage(12, base, "a@example.com", "s"),
		sourceMessage(13, base, "a@example.com", "s"),
		sourceMessage(14, base, "a@example.com", "s"),
	}}
	svc, _, db := newService(t, testConfig(2, 50), &fakeOpener{reader: reader})

	report, err := svc.RunSync(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 5, report.Inserted)
	assert.EqualValues(t, 5, count(t, db, &models.Message{}))
	assert.EqualValues(t, 14, report.Cursor.SourceRowID)
}

func TestRunSync_LateArrivalWithSameTimestampIsPicked(t *testing.T) {
	reader := &fakeReader{messages: []dto.SourceMessage{
		sourceMessage(1, base, "a@example.com", "s"),
	}}
	svc, _, db := newService(t, testConfig(10, 50), &fakeOpener{reader: reader})
	_, err := svc.RunSync(context.Background())
	require.NoError(t, err)

	reader.messages = append(reader.messages, sourceMessage(2, base, "a@example.com", "s"))
	report, err := svc.RunSync(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 1, report.Inserted)
	assert.EqualValues(t, 2, count(t, db, &models.Message{}))
}

func TestRunSync_LateArrivalBehindCursorNeedsReset(t *testing.T) {
	reader := &fakeReader{messages: []dto.SourceMessage{
		sourceMessage(1, base.Add(time.Hour), "a@example.com", "s"),
	}}
	svc, _, db := newService(t, testConfig(10, 50), &fakeOpener{reader: reader})
	_, err := svc.RunSync(context.Background())
	require.NoError(t, err)

	// higher ROWID but an older date_received than the cursor
	reader.messages = append([]dto.SourceMessage{sourceMessage(2, base, "b@example.com", "late")}, reader.messages...)
	report, err := svc.RunSync(context.Background())

	require.NoError(t, err)
	assert.Zero(t, report.Inserted)
	assert.EqualValues(t, 1, count(t, db, &models.Message{}))

	require.NoError(t, svc.ResetCursor(context.Background()))
	report, err = svc.RunSync(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 1, report.Inserted)
	assert.EqualValues(t, 2, count(t, db, &models.Message{}))
}

func TestRunSync_UpdatesOnlyFlags(t *testing.T) {
	reader := &fakeReader{messages: []dto.SourceMessage{
		sourceMessage(1, base, "a@example.com", "one"),
	}}
	svc, repos, _ := newService(t, testConfig(10, 50), &fakeOpener{reader: reader})
	_, err := svc.RunSync(context.Background())
	require.NoError(t, err)
	require.NoError(t, repos.SyncStateRepository.DeleteSyncState(context.Background(), tenant, "envelope"))

	reader.messages[0].IsRead = true
	reader.messages[0].Deleted = true
	reader.messages[0].Subject = "rewritten"
	report, err := svc.RunSync(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 1, report.Updated)
	stored, err := repos.MessageRepository.GetBySourceRowIDs(context.Background(), tenant, []int64{1})
	require.NoError(t, err)
	assert.True(t, stored[1].IsRead)
	assert.True(t, stored[1].Deleted)

	subjects, err := repos.SubjectRepository.GetOrCreate(context.Background(), tenant, "one")
	require.NoError(t, err)
	assert.Equal(t, *stored[1].SubjectID, subjects.ID)
}

func TestRunSync_SourceNotFound(t *testing.T) {
	svc, _, _ := newService(t, testConfig(10, 50), &fakeOpener{err: mterrors.ErrSourceNotFound})

	report, err := svc.RunSync(context.Background())

	require.NoError(t, err)
	assert.Equal(t, enum.SyncStatusSourceNotFound, report.Status)
}

func TestRunSync_SourceFailureKeepsCommittedBatches(t *testing.T) {
	reader := &fakeReader{
		messages: []dto.SourceMessage{
			sourceMessage(1, base, "a@example.com", "one"),
			sourceMessage(2, base.Add(time.Minute), "a@example.com", "two"),
			sourceMessage(3, base.Add(2*time.Minute), "a@example.com", "three"),
		},
		failOnCall: 2,
	}
	svc, repos, _ := newService(t, testConfig(2, 50), &fakeOpener{reader: reader})

	report, err := svc.RunSync(context.Background())

	require.ErrorIs(t, err, mterrors.ErrSourceCorrupt)
	assert.Equal(t, enum.SyncStatusFailed, report.Status)
	state, err := repos.SyncStateRepository.GetSyncState(context.Background(), tenant, "envelope")
	require.NoError(t, err)
	assert.EqualValues(t, 2, state.LastSourceRowID)
}

func TestRunSync_ReplicaFailureRollsBackWholeBatch(t *testing.T) {
	reader := &fakeReader{messages: []dto.SourceMessage{
		sourceMessage(1, base, "a@example.com", "one"),
		sourceMessage(2, base, "b@example.com", "two"),
	}}
	svc, repos, db := newService(t, testConfig(10, 50), &fakeOpener{reader: reader})

	require.NoError(t, db.Callback().Create().Before("gorm:create").Register("test:fail_messages", func(tx *gorm.DB) {
		if tx.Statement.Table == "messages" {
			_ = tx.AddError(assert.AnError)
		}
	}))

	report, err := svc.RunSync(context.Background())

	require.ErrorIs(t, err, mterrors.ErrReplicaWriteFailure)
	assert.Equal(t, enum.SyncStatusFailed, report.Status)
	assert.Zero(t, count(t, db, &models.Message{}))
	assert.Zero(t, count(t, db, &models.Address{}))
	assert.Zero(t, count(t, db, &models.Subject{}))
	state, err := repos.SyncStateRepository.GetSyncState(context.Background(), tenant, "envelope")
	require.NoError(t, err)
	assert.Nil(t, state)

	// after the crash the same rows are applied once, without duplicates
	require.NoError(t, db.Callback().Create().Remove("test:fail_messages"))
	report, err = svc.RunSync(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, report.Inserted)
	assert.EqualValues(t, 2, count(t, db, &models.Message{}))
}

func TestRunSync_TruncatesAfterMaxBatches(t *testing.T) {
	var messages []dto.SourceMessage
	for i := int64(1); i <= 7; i++ {
		messages = append(messages, sourceMessage(i, base.Add(time.Duration(i)*time.Minute), "a@example.com", "s"))
	}
	reader := &fakeReader{messages: messages}
	svc, _, _ := newService(t, testConfig(2, 2), &fakeOpener{reader: reader})

	report, err := svc.RunSync(context.Background())
	require.NoError(t, err)
	assert.True(t, report.Truncated)
	assert.Equal(t, enum.SyncStatusTruncated, report.Status)
	assert.Equal(t, 4, report.Inserted)

	report, err = svc.RunSync(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, report.Inserted)
	assert.False(t, report.Truncated)
}

func TestRunSync_StopsBetweenBatchesOnCancel(t *testing.T) {
	reader := &fakeReader{messages: []dto.SourceMessage{sourceMessage(1, base, "a@example.com", "s")}}
	svc, _, db := newService(t, testConfig(10, 50), &fakeOpener{reader: reader})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := svc.RunSync(ctx)

	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, count(t, db, &models.Message{}))
}

func TestRunSync_MailboxCounts(t *testing.T) {
	reader := &fakeReader{mailboxes: []dto.SourceMailbox{{SourceRowID: 1, Path: "imap://acct/INBOX", TotalCount: 9, UnreadCount: 2}}}
	svc, repos, _ := newService(t, testConfig(10, 50), &fakeOpener{reader: reader})

	report, err := svc.RunSync(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 1, report.Mailboxes)
	mailboxes, err := repos.MailboxRepository.ListByTenant(context.Background(), tenant)
	require.NoError(t, err)
	require.Len(t, mailboxes, 1)
	assert.EqualValues(t, 9, mailboxes[0].TotalCount)
}

func TestResetCursor_RescanWithoutDuplicates(t *testing.T) {
	reader := &fakeReader{messages: []dto.SourceMessage{
		sourceMessage(1, base, "a@example.com", "one"),
		sourceMessage(2, base.Add(time.Minute), "a@example.com", "two"),
	}}
	svc, _, db := newService(t, testConfig(10, 50), &fakeOpener{reader: reader})
	_, err := svc.RunSync(context.Background())
	require.NoError(t, err)

	require.NoError(t, svc.ResetCursor(context.Background()))
	report, err := svc.RunSync(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 2, report.Fetched)
	assert.Equal(t, 2, report.Unchanged)
	assert.EqualValues(t, 2, count(t, db, &models.Message{}))
}

func TestRunSync_EndToEndWithSqliteSource(t *testing.T) {
	fixture := testutil.NewSourceFixture(t)
	fixture.AddMailbox(t, 1, "imap://acct/INBOX", 3, 1)
	fixture.AddMessage(t, testutil.SourceRow{RowID: 1, From: "a@example.com", Subject: "hello", MailboxID: 1, DateReceived: base, Summary: "first"})
	fixture.AddMessage(t, testutil.SourceRow{RowID: 2, From: "b@example.com", Subject: "hello", MailboxID: 1, DateReceived: base})
	fixture.AddMessage(t, testutil.SourceRow{RowID: 3, From: "a@example.com", Subject: "bye", MailboxID: 1, DateReceived: base.Add(time.Hour)})

	cfg := testConfig(2, 50)
	cfg.SourceConfig.DBPath = fixture.Path
	svc, repos, db := newService(t, cfg, source.NewSourceOpener(cfg.SourceConfig, testutil.NewLogger()))

	report, err := svc.RunSync(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, report.Inserted)
	assert.Equal(t, 2, report.FetchCalls)
	assert.EqualValues(t, 2, count(t, db, &models.Subject{}))

	fixture.SetFlags(t, 1, true, true, false)
	fixture.AddMessage(t, testutil.SourceRow{RowID: 4, From: "c@example.com", Subject: "new", MailboxID: 1, DateReceived: base.Add(2 * time.Hour)})
	report, err = svc.RunSync(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Inserted)

	messages, err := repos.MessageRepository.SelectUnclassified(context.Background(), tenant, 10)
	require.NoError(t, err)
	require.Len(t, messages, 4)
	assert.Equal(t, "first", messages[0].ContentSnippet)
	assert.Equal(t, "a@example.com", messages[0].SenderEmail())
}
