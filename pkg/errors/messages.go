package errors

import (
	"strings"

	"golang.org/x/text/language"
)

var supportedLocales = []language.Tag{
	language.Spanish,
	language.English,
}

var localeMatcher = language.NewMatcher(supportedLocales)

var localizedMessages = map[Code]map[language.Tag]string{
	CodeValidation: {
		language.Spanish: "Revisá los datos ingresados.",
		language.English: "Please check the submitted data.",
	},
	CodeUnauthorized: {
		language.Spanish: "Tenés que iniciar sesión.",
		language.English: "You need to sign in.",
	},
	CodeNotFound: {
		language.Spanish: "No encontramos lo que buscabas.",
		language.English: "We could not find that.",
	},
	CodeIdempotency: {
		language.Spanish: "Esta solicitud ya fue enviada con otros datos.",
		language.English: "This request was already sent with different data.",
	},
	CodeRateLimit: {
		language.Spanish: "Demasiados intentos, esperá un momento.",
		language.English: "Too many attempts, wait a moment.",
	},
	CodeInternal: {
		language.Spanish: "Algo salió mal.",
		language.English: "Something went wrong.",
	},
	CodeInvalidAmount: {
		language.Spanish: "El monto tiene que ser un número entero positivo.",
		language.English: "The amount must be a positive whole number.",
	},
	CodeInsufficientBalance: {
		language.Spanish: "No tenés BUKKcoins suficientes.",
		language.English: "Insufficient funds.",
	},
	CodeUnknownAccount: {
		language.Spanish: "La billetera no existe.",
		language.English: "That wallet does not exist.",
	},
	CodeListingUnavailable: {
		language.Spanish: "Este libro ya no está disponible.",
		language.English: "This book is no longer available.",
	},
	CodeSelfOffer: {
		language.Spanish: "No podés ofertar por tu propio libro.",
		language.English: "You cannot make an offer on your own book.",
	},
	CodeSelfRedemption: {
		language.Spanish: "No podés canjear tu propio libro.",
		language.English: "You cannot redeem your own book.",
	},
	CodeOfferLimitReached: {
		language.Spanish: "Ya hiciste el máximo de ofertas para este libro.",
		language.English: "You reached the offer limit for this book.",
	},
	CodeOfferNotFound: {
		language.Spanish: "La oferta no existe.",
		language.English: "That offer does not exist.",
	},
	CodeOfferAlreadyResolved: {
		language.Spanish: "Esta oferta ya fue respondida.",
		language.English: "This offer was already answered.",
	},
	CodeNotAuthorized: {
		language.Spanish: "No tenés permiso para hacer esto.",
		language.English: "You are not allowed to do that.",
	},
	CodeStoreUnavailable: {
		language.Spanish: "El servicio no está disponible en este momento, probá de nuevo.",
		language.English: "Temporarily unavailable, try again.",
	},
}

// MatchLocale picks the supported locale closest to an Accept-Language header value.
// fallback is used when the header is empty or unparseable.
func MatchLocale(acceptLanguage string, fallback language.Tag) language.Tag {
	if strings.TrimSpace(acceptLanguage) == "" {
		return normalizeLocale(fallback)
	}
	tags, _, err := language.ParseAcceptLanguage(acceptLanguage)
	if err != nil || len(tags) == 0 {
		return normalizeLocale(fallback)
	}
	_, idx, confidence := localeMatcher.Match(tags...)
	if confidence == language.No {
		return normalizeLocale(fallback)
	}
	return supportedLocales[idx]
}

// ParseLocale parses a configured locale such as "es" or "en-US".
func ParseLocale(value string) language.Tag {
	tag, err := language.Parse(strings.TrimSpace(value))
	if err != nil {
		return language.Spanish
	}
	return normalizeLocale(tag)
}

func normalizeLocale(tag language.Tag) language.Tag {
	_, idx, confidence := localeMatcher.Match(tag)
	if confidence == language.No {
		return language.Spanish
	}
	return supportedLocales[idx]
}

// LocalizedMessage returns the user-facing message for code in the given locale.
func LocalizedMessage(code Code, locale language.Tag) string {
	messages, ok := localizedMessages[code]
	if !ok {
		messages = localizedMessages[CodeInternal]
	}
	if msg, ok := messages[normalizeLocale(locale)]; ok {
		return msg
	}
	return messages[language.Spanish]
}
