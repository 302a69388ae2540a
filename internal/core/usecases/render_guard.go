package usecases

import (
	"context"
	"fmt"

	"github.com/samirrijal/geofield/internal/core/domain"
)

// MaxRenderDepth bounds maps nested inside other maps' popups.
const MaxRenderDepth = 4

type renderTokenKey struct{}

// renderToken is the set of maps being rendered along one call chain.
// Tokens are immutable; each nested render gets its own copy.
type renderToken struct {
	maps  map[string]struct{}
	depth int
}

// enterRender marks mapID as rendering in the returned context. It refuses
// a map already rendering further up the chain, and chains deeper than
// MaxRenderDepth.
func enterRender(ctx context.Context, mapID string) (context.Context, error) {
	parent, _ := ctx.Value(renderTokenKey{}).(*renderToken)
	tok := &renderToken{maps: map[string]struct{}{mapID: {}}, depth: 1}
	if parent != nil {
		if _, busy := parent.maps[mapID]; busy {
			return ctx, fmt.Errorf("%w: map %q", domain.ErrRecursiveRender, mapID)
		}
		if parent.depth >= MaxRenderDepth {
			return ctx, fmt.Errorf("%w: depth %d exceeded", domain.ErrRecursiveRender, MaxRenderDepth)
		}
		for id := range parent.maps {
			tok.maps[id] = struct{}{}
		}
		tok.depth = parent.depth + 1
	}
	return context.WithValue(ctx, renderTokenKey{}, tok), nil
}

// RenderDepth returns how many renders are in progress along ctx.
func RenderDepth(ctx context.Context) int {
	if tok, ok := ctx.Value(renderTokenKey{}).(*renderToken); ok {
		return tok.depth
	}
	return 0
}
