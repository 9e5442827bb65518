package types

import (
	"testing"
	"time"

	cbigquery "cloud.google.com/go/bigquery"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarketplaceEventRowSave(t *testing.T) {
	offerID := "offer-1"
	row := &MarketplaceEventRow{
		EventID:       "evt-1",
		EventType:     "offer_created",
		OccurredAt:    time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		AggregateType: "offer",
		AggregateID:   offerID,
		OfferID:       Text(offerID),
		ListingID:     Text("   "),
		Amount:        Int(25),
		Payload:       cbigquery.NullJSON{Valid: true, JSONVal: `{"amount":25}`},
	}

	values, insertID, err := row.Save()
	require.NoError(t, err)
	assert.Equal(t, "evt-1", insertID)
	assert.Equal(t, "offer-1", values["offer_id"])
	assert.Equal(t, int64(25), values["amount"])
	assert.Nil(t, values["listing_id"])
	assert.Equal(t, `{"amount":25}`, values["payload"])
}

func TestMarketplaceEventsSchemaCoversEveryColumn(t *testing.T) {
	values, _, err := (&MarketplaceEventRow{}).Save()
	require.NoError(t, err)

	schema := MarketplaceEventsSchema()
	require.Len(t, schema, len(values))
	for _, field := range schema {
		assert.Contains(t, values, field.Name)
	}
}

func TestIDHelpersTreatZeroAsNull(t *testing.T) {
	assert.False(t, ID(uuid.Nil).Valid)
	assert.False(t, OptionalID(nil).Valid)
	id := uuid.New()
	assert.Equal(t, id.String(), OptionalID(&id).StringVal)
}
