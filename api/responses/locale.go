package responses

import (
	"context"

	"golang.org/x/text/language"
)

type localeKey struct{}

// WithLocale stores the negotiated response language on the context.
func WithLocale(ctx context.Context, tag language.Tag) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, localeKey{}, tag)
}

// LocaleFromContext returns the negotiated language, or Spanish when none was negotiated.
func LocaleFromContext(ctx context.Context) language.Tag {
	if ctx == nil {
		return language.Spanish
	}
	if tag, ok := ctx.Value(localeKey{}).(language.Tag); ok {
		return tag
	}
	return language.Spanish
}
