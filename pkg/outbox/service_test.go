package outbox

import (
	"context"
	"encoding/json"
	"errors"
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

type failingInserter struct{}

func (failingInserter) Insert(*gorm.DB, models.OutboxEvent) error {
	return errors.New("insert failed")
}

func TestEmitStoresEnvelope(t *testing.T) {
	conn := dbtest.Open(t)
	svc := NewService(NewRepository(conn), nil)

	aggregateID := uuid.New()
	actor := uuid.New()
	var eventID uuid.UUID
	err := conn.Transaction(func(tx *gorm.DB) error {
		var err error
		eventID, err = svc.Emit(context.Background(), tx, DomainEvent{
			EventType:     enums.EventOfferCreated,
			AggregateType: enums.AggregateOffer,
			AggregateID:   aggregateID,
			Actor:         &ActorRef{AccountID: actor, Role: "user"},
			Data:          map[string]string{"proposed_item": "bici"},
		})
		return err
	})
	require.NoError(t, err)
	require.NotEqual(t, uuid.Nil, eventID)

	var row models.OutboxEvent
	require.NoError(t, conn.First(&row, "id = ?", eventID).Error)
	assert.Equal(t, enums.EventOfferCreated, row.EventType)
	assert.Equal(t, aggregateID, row.AggregateID)
	assert.Nil(t, row.PublishedAt)

	var envelope PayloadEnvelope
	require.NoError(t, json.Unmarshal(row.Payload, &envelope))
	assert.Equal(t, eventID.String(), envelope.EventID)
	assert.Equal(t, CurrentVersion, envelope.Version)
	require.NotNil(t, envelope.Actor)
	assert.Equal(t, actor, envelope.Actor.AccountID)
	assert.JSONEq(t, `{"proposed_item":"bici"}`, string(envelope.Data))
}

func TestEmitRollsBackWithTransaction(t *testing.T) {
	conn := dbtest.Open(t)
	svc := NewService(NewRepository(conn), nil)

	err := conn.Transaction(func(tx *gorm.DB) error {
		if _, err := svc.Emit(context.Background(), tx, DomainEvent{
			EventType:     enums.EventLedgerCredited,
			AggregateType: enums.AggregateAccount,
			AggregateID:   uuid.New(),
			Data:          struct{}{},
		}); err != nil {
			return err
		}
		return errors.New("abort")
	})
	require.Error(t, err)

	var count int64
	require.NoError(t, conn.Model(&models.OutboxEvent{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestEmitValidation(t *testing.T) {
	conn := dbtest.Open(t)
	svc := NewService(NewRepository(conn), nil)

	_, err := svc.Emit(context.Background(), nil, DomainEvent{EventType: enums.EventOfferCreated})
	assert.Error(t, err)

	_, err = svc.Emit(context.Background(), conn, DomainEvent{EventType: "bogus"})
	assert.Error(t, err)

	failing := &Service{repo: failingInserter{}}
	_, err = failing.Emit(context.Background(), conn, DomainEvent{
		EventType:     enums.EventOfferRejected,
		AggregateType: enums.AggregateOffer,
		AggregateID:   uuid.New(),
	})
	assert.EqualError(t, err, "insert failed")
}

func TestEmitStampsServiceClock(t *testing.T) {
	conn := dbtest.Open(t)
	svc := NewService(NewRepository(conn), nil)
	fixed := time.Date(2026, 2, 3, 4, 5, 6, 0, time.UTC)
	svc.now = func() time.Time { return fixed }

	var eventID uuid.UUID
	require.NoError(t, conn.Transaction(func(tx *gorm.DB) error {
		var err error
		eventID, err = svc.Emit(context.Background(), tx, DomainEvent{
			EventType:     enums.EventListingRedeemed,
			AggregateType: enums.AggregateListing,
			AggregateID:   uuid.New(),
			Data:          map[string]int{"token_price": 30},
		})
		return err
	}))

	var row models.OutboxEvent
	require.NoError(t, conn.First(&row, "id = ?", eventID).Error)
	assert.True(t, fixed.Equal(row.CreatedAt))
	assert.Contains(t, string(row.Payload), `"occurred_at":"2026-02-03T04:05:06Z"`)
}
