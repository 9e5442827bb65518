package enums

import "fmt"

// OfferStatus tracks the barter offer lifecycle. accepted and rejected are terminal.
type OfferStatus string

const (
	OfferStatusPending  OfferStatus = "pending"
	OfferStatusAccepted OfferStatus = "accepted"
	OfferStatusRejected OfferStatus = "rejected"
)

var offerStatuses = set[OfferStatus]{OfferStatusPending, OfferStatusAccepted, OfferStatusRejected}

func (s OfferStatus) IsValid() bool { return offerStatuses.has(s) }

func (s OfferStatus) IsTerminal() bool {
	return s == OfferStatusAccepted || s == OfferStatusRejected
}

func ParseOfferStatus(value string) (OfferStatus, error) {
	return offerStatuses.parse(value, "offer status")
}

// OfferDecision is the recipient's answer to a pending offer.
type OfferDecision string

const (
	OfferDecisionAccept OfferDecision = "accept"
	OfferDecisionReject OfferDecision = "reject"
)

// TargetStatus maps a decision onto the terminal status it produces.
func (d OfferDecision) TargetStatus() (OfferStatus, error) {
	switch d {
	case OfferDecisionAccept:
		return OfferStatusAccepted, nil
	case OfferDecisionReject:
		return OfferStatusRejected, nil
	default:
		return "", fmt.Errorf("invalid offer decision %q", d)
	}
}

// OfferDirection selects which side of an offer the caller is on.
type OfferDirection string

const (
	OfferDirectionReceived OfferDirection = "received"
	OfferDirectionSent     OfferDirection = "sent"
)

func ParseOfferDirection(value string) (OfferDirection, error) {
	return set[OfferDirection]{OfferDirectionReceived, OfferDirectionSent}.parse(value, "offer direction")
}
