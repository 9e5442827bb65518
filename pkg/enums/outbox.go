package enums

// OutboxAggregateType is the aggregate_type column of outbox_events and the
// first half of the Pub/Sub ordering key.
type OutboxAggregateType string

const (
	AggregateAccount OutboxAggregateType = "account"
	AggregateListing OutboxAggregateType = "listing"
	AggregateOffer   OutboxAggregateType = "offer"
)

var aggregateTypes = set[OutboxAggregateType]{AggregateAccount, AggregateListing, AggregateOffer}

func (a OutboxAggregateType) IsValid() bool { return aggregateTypes.has(a) }

func ParseOutboxAggregateType(value string) (OutboxAggregateType, error) {
	return aggregateTypes.parse(value, "aggregate type")
}

// OutboxEventType names a domain event. Consumers route on it.
type OutboxEventType string

const (
	EventOfferCreated    OutboxEventType = "offer_created"
	EventOfferAccepted   OutboxEventType = "offer_accepted"
	EventOfferRejected   OutboxEventType = "offer_rejected"
	EventLedgerCredited  OutboxEventType = "ledger_credited"
	EventListingRedeemed OutboxEventType = "listing_redeemed"
)

var eventTypes = set[OutboxEventType]{
	EventOfferCreated,
	EventOfferAccepted,
	EventOfferRejected,
	EventLedgerCredited,
	EventListingRedeemed,
}

func (e OutboxEventType) IsValid() bool { return eventTypes.has(e) }

func ParseOutboxEventType(value string) (OutboxEventType, error) {
	return eventTypes.parse(value, "event type")
}

// OutboxDLQErrorReason records why a row was parked in outbox_dlq.
type OutboxDLQErrorReason string

const (
	OutboxDLQReasonMaxAttempts  OutboxDLQErrorReason = "max_attempts"
	OutboxDLQReasonNonRetryable OutboxDLQErrorReason = "non_retryable"
)

func (r OutboxDLQErrorReason) IsValid() bool {
	return set[OutboxDLQErrorReason]{OutboxDLQReasonMaxAttempts, OutboxDLQReasonNonRetryable}.has(r)
}
