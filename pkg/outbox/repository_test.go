package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/bukkus/bukkus-backend/pkg/db/dbtest"
	"github.com/bukkus/bukkus-backend/pkg/db/models"
	"github.com/bukkus/bukkus-backend/pkg/enums"
)

func seedEvent(t *testing.T, conn *gorm.DB, createdAt time.Time, attempts int) models.OutboxEvent {
	t.Helper()
	row := models.OutboxEvent{
		ID:            uuid.New(),
		EventType:     enums.EventOfferCreated,
		AggregateType: enums.AggregateOffer,
		AggregateID:   uuid.New(),
		Payload:       json.RawMessage(`{"version":1}`),
		CreatedAt:     createdAt,
		AttemptCount:  attempts,
	}
	require.NoError(t, conn.Create(&row).Error)
	return row
}

func TestClaimBatchOrdersAndSkipsSettledRows(t *testing.T) {
	conn := dbtest.Open(t)
	repo := NewRepository(conn)
	base := time.Now().UTC().Add(-time.Minute)

	second := seedEvent(t, conn, base.Add(2*time.Second), 0)
	first := seedEvent(t, conn, base.Add(time.Second), 3)
	seedEvent(t, conn, base, 10)
	published := seedEvent(t, conn, base, 0)
	require.NoError(t, repo.MarkPublished(conn, published.ID, time.Now()))

	rows, err := repo.ClaimBatch(conn, 10, 10)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, first.ID, rows[0].ID)
	assert.Equal(t, second.ID, rows[1].ID)

	rows, err = repo.ClaimBatch(conn, 1, 10)
	require.NoError(t, err)
	assert.Len(t, rows, 1)

	_, err = repo.ClaimBatch(nil, 1, 1)
	assert.Error(t, err)
}

func TestRecordFailureAndPark(t *testing.T) {
	conn := dbtest.Open(t)
	repo := NewRepository(conn)
	row := seedEvent(t, conn, time.Now().UTC(), 0)

	require.NoError(t, repo.RecordFailure(conn, row.ID, errors.New(strings.Repeat("x", 2000))))
	var stored models.OutboxEvent
	require.NoError(t, conn.First(&stored, "id = ?", row.ID).Error)
	assert.Equal(t, 1, stored.AttemptCount)
	require.NotNil(t, stored.LastError)
	assert.Len(t, *stored.LastError, lastErrorLimit)

	require.NoError(t, repo.Park(conn, row.ID, errors.New("bad payload"), 10))
	require.NoError(t, conn.First(&stored, "id = ?", row.ID).Error)
	assert.Equal(t, 10, stored.AttemptCount)
	assert.Equal(t, "bad payload", *stored.LastError)

	rows, err := repo.ClaimBatch(conn, 10, 10)
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestDLQRecordIsIdempotent(t *testing.T) {
	conn := dbtest.Open(t)
	dlq := NewDLQRepository(conn)
	row := seedEvent(t, conn, time.Now().UTC(), 10)
	msg := "max attempts reached"

	entry := row.Park(enums.OutboxDLQReasonMaxAttempts, msg, time.Now().UTC())
	require.NoError(t, dlq.Record(conn, entry))
	require.NoError(t, dlq.Record(conn, entry))

	var count int64
	require.NoError(t, conn.Model(&models.OutboxDLQ{}).Count(&count).Error)
	assert.EqualValues(t, 1, count)

	found, err := dlq.Find(context.Background(), row.ID)
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, enums.OutboxDLQReasonMaxAttempts, found.ErrorReason)

	missing, err := dlq.Find(context.Background(), uuid.New())
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestPurgePublishedKeepsPendingRows(t *testing.T) {
	conn := dbtest.Open(t)
	repo := NewRepository(conn)
	now := time.Now().UTC()

	stale := seedEvent(t, conn, now.Add(-48*time.Hour), 0)
	require.NoError(t, conn.Model(&models.OutboxEvent{}).Where("id = ?", stale.ID).
		Update("published_at", now.Add(-47*time.Hour)).Error)
	fresh := seedEvent(t, conn, now.Add(-time.Hour), 0)
	require.NoError(t, repo.MarkPublished(conn, fresh.ID, time.Now()))
	pending := seedEvent(t, conn, now.Add(-72*time.Hour), 2)

	deleted, err := repo.PurgePublished(conn, now.Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	var ids []uuid.UUID
	require.NoError(t, conn.Model(&models.OutboxEvent{}).Order("created_at").Pluck("id", &ids).Error)
	assert.Equal(t, []uuid.UUID{pending.ID, fresh.ID}, ids)
}
