// Package categorize labels memory content with categories. The primary
// implementation calls an OpenAI-compatible chat endpoint; a keyword matcher
// serves as the deterministic fallback so categorization never hard-fails.
package categorize

import (
	"context"

	"github.com/rs/zerolog"
)

// Categorizer returns category names for a piece of memory content.
type Categorizer interface {
	Categorize(ctx context.Context, content string) ([]string, error)
}

// Fallback tries primary and falls back to secondary when primary errors or
// returns nothing.
type Fallback struct {
	Primary   Categorizer
	Secondary Categorizer
	Log       zerolog.Logger
}

func (f *Fallback) Categorize(ctx context.Context, content string) ([]string, error) {
	if f.Primary != nil {
		cats, err := f.Primary.Categorize(ctx, content)
		if err == nil && len(cats) > 0 {
			return cats, nil
		}
		if err != nil {
			f.Log.Warn().Err(err).Msg("primary categorizer failed, falling back to keywords")
		}
	}
	return f.Secondary.Categorize(ctx, content)
}
