package router

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bukkus/bukkus-backend/internal/analytics/types"
	"github.com/bukkus/bukkus-backend/pkg/enums"
	"github.com/bukkus/bukkus-backend/pkg/logger"
	"github.com/bukkus/bukkus-backend/pkg/outbox/payloads"
	"github.com/bukkus/bukkus-backend/pkg/outbox/registry"
)

type fakeWriter struct {
	inserted []types.MarketplaceEventRow
	err      error
}

func (f *fakeWriter) InsertMarketplace(_ context.Context, row types.MarketplaceEventRow) error {
	if f.err != nil {
		return f.err
	}
	f.inserted = append(f.inserted, row)
	return nil
}

type stubHandler struct {
	called  bool
	payload any
}

func (s *stubHandler) Handle(_ context.Context, _ types.Envelope, payload any) error {
	s.called = true
	s.payload = payload
	return nil
}

func newTestRouter(t *testing.T, w Writer, overrides map[enums.OutboxEventType]Handler) *Router {
	t.Helper()
	router, err := NewRouter(w, registry.NewCatalog(), logger.New(logger.Options{ServiceName: "router-test", Output: io.Discard}), overrides)
	require.NoError(t, err)
	return router
}

func envelopeFor(t *testing.T, eventType enums.OutboxEventType, aggregate enums.OutboxAggregateType, payload any) types.Envelope {
	t.Helper()
	data, err := json.Marshal(payload)
	require.NoError(t, err)
	return types.Envelope{
		EventID:        uuid.NewString(),
		EventType:      eventType,
		Version:        1,
		AggregateType:  aggregate,
		AggregateID:    uuid.NewString(),
		ActorAccountID: uuid.NewString(),
		OccurredAt:     time.Date(2026, 4, 2, 15, 0, 0, 0, time.UTC),
		Payload:        data,
	}
}

func TestRouterUnsupportedEvent(t *testing.T) {
	router := newTestRouter(t, &fakeWriter{}, nil)
	err := router.Handle(context.Background(), types.Envelope{
		EventType: enums.OutboxEventType("unsupported"),
		Payload:   []byte(`{"foo":"bar"}`),
	})
	assert.ErrorIs(t, err, ErrUnsupportedEventType)
}

func TestRouterRejectsEmptyPayload(t *testing.T) {
	router := newTestRouter(t, &fakeWriter{}, nil)
	err := router.Handle(context.Background(), types.Envelope{EventType: enums.EventOfferCreated})
	assert.Error(t, err)
}

func TestRouterOverrideReceivesDecodedPayload(t *testing.T) {
	handler := &stubHandler{}
	router := newTestRouter(t, &fakeWriter{}, map[enums.OutboxEventType]Handler{
		enums.EventOfferCreated: handler,
	})
	offerID := uuid.New()
	env := envelopeFor(t, enums.EventOfferCreated, enums.AggregateOffer, payloads.OfferCreatedEvent{OfferID: offerID})

	require.NoError(t, router.Handle(context.Background(), env))
	require.True(t, handler.called)
	decoded, ok := handler.payload.(payloads.OfferCreatedEvent)
	require.True(t, ok)
	assert.Equal(t, offerID, decoded.OfferID)
}

func TestOfferRows(t *testing.T) {
	w := &fakeWriter{}
	router := newTestRouter(t, w, nil)
	from, to, listing := uuid.New(), uuid.New(), uuid.New()

	created := envelopeFor(t, enums.EventOfferCreated, enums.AggregateOffer, payloads.OfferCreatedEvent{
		OfferID:       uuid.New(),
		ListingID:     listing,
		FromAccountID: from,
		ToAccountID:   to,
		ProposedItem:  "Ficciones",
	})
	accepted := envelopeFor(t, enums.EventOfferAccepted, enums.AggregateOffer, payloads.OfferResolvedEvent{
		OfferID:       uuid.New(),
		ListingID:     listing,
		FromAccountID: from,
		ToAccountID:   to,
		Status:        enums.OfferStatusAccepted,
	})
	require.NoError(t, router.Handle(context.Background(), created))
	require.NoError(t, router.Handle(context.Background(), accepted))
	require.Len(t, w.inserted, 2)

	row := w.inserted[0]
	assert.Equal(t, created.EventID, row.EventID)
	assert.Equal(t, "offer_created", row.EventType)
	assert.Equal(t, "offer", row.AggregateType)
	assert.Equal(t, from.String(), row.AccountID.StringVal)
	assert.Equal(t, to.String(), row.CounterpartyAccountID.StringVal)
	assert.Equal(t, "pending", row.OfferStatus.StringVal)
	assert.False(t, row.Amount.Valid)
	assert.True(t, row.Payload.Valid)

	row = w.inserted[1]
	assert.Equal(t, to.String(), row.AccountID.StringVal)
	assert.Equal(t, "accepted", row.OfferStatus.StringVal)
	assert.Equal(t, listing.String(), row.ListingID.StringVal)
}

func TestOfferResolvedRejectsPendingStatus(t *testing.T) {
	w := &fakeWriter{}
	router := newTestRouter(t, w, nil)
	env := envelopeFor(t, enums.EventOfferRejected, enums.AggregateOffer, payloads.OfferResolvedEvent{
		OfferID: uuid.New(),
		Status:  enums.OfferStatusPending,
	})
	assert.Error(t, router.Handle(context.Background(), env))
	assert.Empty(t, w.inserted)
}

func TestLedgerRows(t *testing.T) {
	w := &fakeWriter{}
	router := newTestRouter(t, w, nil)
	buyer, owner, listing, op := uuid.New(), uuid.New(), uuid.New(), uuid.New()

	credited := envelopeFor(t, enums.EventLedgerCredited, enums.AggregateAccount, payloads.LedgerCreditedEvent{
		EntryID:               uuid.New(),
		OperationID:           op,
		AccountID:             owner,
		Kind:                  enums.LedgerEntryTransferIn,
		Amount:                50,
		BalanceAfter:          50,
		CounterpartyAccountID: &buyer,
		RelatedListingID:      &listing,
	})
	redeemed := envelopeFor(t, enums.EventListingRedeemed, enums.AggregateListing, payloads.ListingRedeemedEvent{
		ListingID:      listing,
		OperationID:    op,
		BuyerAccountID: buyer,
		OwnerAccountID: owner,
		TokenPrice:     50,
	})
	require.NoError(t, router.Handle(context.Background(), credited))
	require.NoError(t, router.Handle(context.Background(), redeemed))
	require.Len(t, w.inserted, 2)

	credit := w.inserted[0]
	assert.Equal(t, "transfer_in", credit.EntryKind.StringVal)
	assert.Equal(t, int64(50), credit.Amount.Int64)
	assert.Equal(t, buyer.String(), credit.CounterpartyAccountID.StringVal)
	assert.Equal(t, op.String(), credit.OperationID.StringVal)

	redemption := w.inserted[1]
	assert.Equal(t, "redemption", redemption.EntryKind.StringVal)
	assert.Equal(t, buyer.String(), redemption.AccountID.StringVal)
	assert.Equal(t, owner.String(), redemption.CounterpartyAccountID.StringVal)
	assert.Equal(t, int64(50), redemption.Amount.Int64)
}

func TestLedgerCreditWithoutCounterparty(t *testing.T) {
	w := &fakeWriter{}
	router := newTestRouter(t, w, nil)
	env := envelopeFor(t, enums.EventLedgerCredited, enums.AggregateAccount, payloads.LedgerCreditedEvent{
		EntryID:     uuid.New(),
		OperationID: uuid.New(),
		AccountID:   uuid.New(),
		Kind:        enums.LedgerEntryDeposit,
		Amount:      100,
	})
	require.NoError(t, router.Handle(context.Background(), env))
	require.Len(t, w.inserted, 1)
	assert.False(t, w.inserted[0].CounterpartyAccountID.Valid)
	assert.False(t, w.inserted[0].ListingID.Valid)
}

func TestRouterSurfacesWriterErrors(t *testing.T) {
	w := &fakeWriter{err: errors.New("bigquery down")}
	router := newTestRouter(t, w, nil)
	env := envelopeFor(t, enums.EventLedgerCredited, enums.AggregateAccount, payloads.LedgerCreditedEvent{
		EntryID: uuid.New(), AccountID: uuid.New(), Kind: enums.LedgerEntryDeposit, Amount: 1,
	})
	assert.Error(t, router.Handle(context.Background(), env))
}
