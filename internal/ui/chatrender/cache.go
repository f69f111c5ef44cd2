package chatrender

import (
	"context"
	"fmt"
	"time"

	"github.com/zjrosen/weft/internal/assembly"
	"github.com/zjrosen/weft/internal/cachemanager"
)

// renderTTL bounds how long a rendered transcript stays cached. Keys change
// whenever the transcript grows, so expiry only reclaims abandoned entries.
const renderTTL = 2 * time.Minute

type renderInput struct {
	messages []*assembly.Message
	width    int
	cfg      RenderConfig
}

// RenderCache memoizes full-transcript renders. Assembly mutates the
// trailing message in place, so cache keys fold in a fingerprint of the
// transcript's content rather than relying on message identity alone.
type RenderCache struct {
	cache *cachemanager.ReadThroughCache[string, string, renderInput]
}

// NewRenderCache builds a render cache backed by an in-memory store.
func NewRenderCache() *RenderCache {
	store := cachemanager.NewInMemoryCacheManager[string, string](
		"chatrender", cachemanager.DefaultExpiration, cachemanager.DefaultCleanupInterval)
	rt := cachemanager.NewReadThroughCache(store,
		func(_ context.Context, in renderInput) (string, error) {
			return RenderMessages(in.messages, in.width, in.cfg), nil
		}, false)
	return &RenderCache{cache: rt}
}

// Render returns the styled transcript for a session, reusing the previous
// render when nothing changed since.
func (c *RenderCache) Render(ctx context.Context, sessionID string, messages []*assembly.Message, width int, cfg RenderConfig) string {
	key := renderKey(sessionID, messages, width, cfg)
	out, err := c.cache.Get(ctx, key, renderInput{messages: messages, width: width, cfg: cfg}, renderTTL)
	if err != nil {
		// The compute function cannot fail, but degrade anyway.
		return RenderMessages(messages, width, cfg)
	}
	return out
}

// renderKey fingerprints the transcript. Growth of any message, arrival of a
// tool result, or accumulated command output all change the key.
func renderKey(sessionID string, messages []*assembly.Message, width int, cfg RenderConfig) string {
	var blocks, chars, results int
	for _, msg := range messages {
		blocks += len(msg.Blocks)
		for _, b := range msg.Blocks {
			switch blk := b.(type) {
			case *assembly.TextBlock:
				chars += len(blk.Text)
			case *assembly.ThinkingBlock:
				chars += len(blk.Text)
			case *assembly.ToolUseBlock:
				chars += len(blk.Result)
				blocks += countChildren(blk)
				if blk.HasResult {
					results++
				}
			case *assembly.CommandBlock:
				chars += len(blk.Output) + len(blk.Status)
			}
		}
	}
	return fmt.Sprintf("%s|%d|%d|%d|%d|%d|%t", sessionID, width, len(messages), blocks, chars, results, cfg.ShowThinking)
}

func countChildren(b *assembly.ToolUseBlock) int {
	n := len(b.Children)
	for _, c := range b.Children {
		n += countChildren(c)
	}
	return n
}
