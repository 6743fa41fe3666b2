// Package translate provides single-shot text translation between two
// language codes.
package translate

import "context"

// Translator converts text from sourceLang to targetLang and returns the
// translated text only.
type Translator interface {
	Translate(ctx context.Context, text, sourceLang, targetLang string) (string, error)
}
