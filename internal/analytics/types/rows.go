package types

import (
	"strings"
	"time"

	cbigquery "cloud.google.com/go/bigquery"
	"github.com/google/uuid"
)

// MarketplaceEventRow mirrors the marketplace_events BigQuery schema. One row
// is written per domain event; columns that do not apply stay NULL.
type MarketplaceEventRow struct {
	EventID               string               `bigquery:"event_id"`
	EventType             string               `bigquery:"event_type"`
	OccurredAt            time.Time            `bigquery:"occurred_at"`
	AggregateType         string               `bigquery:"aggregate_type"`
	AggregateID           string               `bigquery:"aggregate_id"`
	ActorAccountID        cbigquery.NullString `bigquery:"actor_account_id"`
	AccountID             cbigquery.NullString `bigquery:"account_id"`
	CounterpartyAccountID cbigquery.NullString `bigquery:"counterparty_account_id"`
	ListingID             cbigquery.NullString `bigquery:"listing_id"`
	OfferID               cbigquery.NullString `bigquery:"offer_id"`
	OperationID           cbigquery.NullString `bigquery:"operation_id"`
	EntryKind             cbigquery.NullString `bigquery:"entry_kind"`
	OfferStatus           cbigquery.NullString `bigquery:"offer_status"`
	Amount                cbigquery.NullInt64  `bigquery:"amount"`
	Payload               cbigquery.NullJSON   `bigquery:"payload"`
}

// Text is NULL for blank strings.
func Text(s string) cbigquery.NullString {
	s = strings.TrimSpace(s)
	return cbigquery.NullString{StringVal: s, Valid: s != ""}
}

// ID is NULL for the zero uuid.
func ID(id uuid.UUID) cbigquery.NullString {
	if id == uuid.Nil {
		return cbigquery.NullString{}
	}
	return Text(id.String())
}

func OptionalID(id *uuid.UUID) cbigquery.NullString {
	if id == nil {
		return cbigquery.NullString{}
	}
	return ID(*id)
}

func Int(v int64) cbigquery.NullInt64 {
	return cbigquery.NullInt64{Int64: v, Valid: true}
}

// MarketplaceEventsSchema is the table layout used when the table is created
// by the worker. Column order follows MarketplaceEventRow.
func MarketplaceEventsSchema() cbigquery.Schema {
	nullableString := func(name string) *cbigquery.FieldSchema {
		return &cbigquery.FieldSchema{Name: name, Type: cbigquery.StringFieldType}
	}
	return cbigquery.Schema{
		{Name: "event_id", Type: cbigquery.StringFieldType, Required: true},
		{Name: "event_type", Type: cbigquery.StringFieldType, Required: true},
		{Name: "occurred_at", Type: cbigquery.TimestampFieldType, Required: true},
		{Name: "aggregate_type", Type: cbigquery.StringFieldType, Required: true},
		{Name: "aggregate_id", Type: cbigquery.StringFieldType, Required: true},
		nullableString("actor_account_id"),
		nullableString("account_id"),
		nullableString("counterparty_account_id"),
		nullableString("listing_id"),
		nullableString("offer_id"),
		nullableString("operation_id"),
		nullableString("entry_kind"),
		nullableString("offer_status"),
		{Name: "amount", Type: cbigquery.IntegerFieldType},
		{Name: "payload", Type: cbigquery.JSONFieldType},
	}
}

// Save implements cbigquery.ValueSaver. The event id doubles as the insert
// id so redelivered events are deduplicated by the streaming API.
func (r *MarketplaceEventRow) Save() (map[string]cbigquery.Value, string, error) {
	row := map[string]cbigquery.Value{
		"event_id":                r.EventID,
		"event_type":              r.EventType,
		"occurred_at":             r.OccurredAt,
		"aggregate_type":          r.AggregateType,
		"aggregate_id":            r.AggregateID,
		"actor_account_id":        text(r.ActorAccountID),
		"account_id":              text(r.AccountID),
		"counterparty_account_id": text(r.CounterpartyAccountID),
		"listing_id":              text(r.ListingID),
		"offer_id":                text(r.OfferID),
		"operation_id":            text(r.OperationID),
		"entry_kind":              text(r.EntryKind),
		"offer_status":            text(r.OfferStatus),
		"amount":                  nil,
		"payload":                 nil,
	}
	if r.Amount.Valid {
		row["amount"] = r.Amount.Int64
	}
	if r.Payload.Valid {
		row["payload"] = r.Payload.JSONVal
	}
	return row, r.EventID, nil
}

func text(v cbigquery.NullString) cbigquery.Value {
	if !v.Valid {
		return nil
	}
	return v.StringVal
}
