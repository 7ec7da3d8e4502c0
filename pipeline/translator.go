package pipeline

import (
	"context"

	"github.com/minios-linux/mdxlate/langmeta"
)

// Translator turns a source document into its translation for one language.
//
//go:generate mockgen -source=translator.go -destination=mocks/mock_translator.go -package=mocks
type Translator interface {
	// Translate returns text translated into lang. An empty result with a
	// nil error means the endpoint produced nothing usable.
	Translate(ctx context.Context, text string, lang langmeta.Meta) (string, error)
}
