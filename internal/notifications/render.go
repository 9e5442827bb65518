package notifications

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/bukkus/bukkus-backend/pkg/enums"
	"github.com/bukkus/bukkus-backend/pkg/outbox/payloads"
)

// rendered is the inbox text for one recipient. Copy is Rioplatense Spanish,
// the language the app ships in.
type rendered struct {
	recipient uuid.UUID
	kind      enums.NotificationType
	title     string
	message   string
	link      string
}

// render maps a decoded payload onto inbox text. ok is false for payloads that
// do not produce a notification.
func render(payload any) (rendered, bool) {
	switch p := payload.(type) {
	case payloads.OfferCreatedEvent:
		return rendered{
			recipient: p.RecipientAccountID(),
			kind:      enums.NotificationTypeOffer,
			title:     "¡Tenés una nueva oferta!",
			message:   fmt.Sprintf("Te ofrecieron %q a cambio de %q.", p.ProposedItem, bookTitle(p.ListingTitle)),
			link:      "/ofertas/" + p.OfferID.String(),
		}, true
	case payloads.OfferResolvedEvent:
		out := rendered{
			recipient: p.RecipientAccountID(),
			kind:      enums.NotificationTypeOffer,
			link:      "/ofertas/" + p.OfferID.String(),
		}
		switch p.Status {
		case enums.OfferStatusAccepted:
			out.title = "¡Aceptaron tu oferta!"
			out.message = fmt.Sprintf("Tu oferta por %q fue aceptada. Ya pueden coordinar el intercambio por chat.", bookTitle(p.ListingTitle))
			if p.ChatChannelID != nil {
				out.link = "/chat/" + p.ChatChannelID.String()
			}
		case enums.OfferStatusRejected:
			out.title = "Oferta rechazada"
			out.message = fmt.Sprintf("Tu oferta por %q fue rechazada.", bookTitle(p.ListingTitle))
		default:
			return rendered{}, false
		}
		return out, true
	case payloads.LedgerCreditedEvent:
		// Redemption credits are announced by the listing_redeemed event.
		if p.RelatedListingID != nil {
			return rendered{}, false
		}
		title := "Recibiste BUKKcoins"
		if p.Kind == enums.LedgerEntryDeposit {
			title = "Carga acreditada"
		}
		return rendered{
			recipient: p.RecipientAccountID(),
			kind:      enums.NotificationTypeWallet,
			title:     title,
			message:   fmt.Sprintf("Se acreditaron %d BUKKcoins en tu billetera. Saldo actual: %d.", p.Amount, p.BalanceAfter),
			link:      "/billetera",
		}, true
	case payloads.ListingRedeemedEvent:
		return rendered{
			recipient: p.RecipientAccountID(),
			kind:      enums.NotificationTypeWallet,
			title:     "¡Canjearon tu libro!",
			message:   fmt.Sprintf("Canjearon %q por %d BUKKcoins. Ya están en tu billetera.", bookTitle(p.ListingTitle), p.TokenPrice),
			link:      "/billetera",
		}, true
	default:
		return rendered{}, false
	}
}

func bookTitle(title string) string {
	if title == "" {
		return "tu libro"
	}
	return title
}
