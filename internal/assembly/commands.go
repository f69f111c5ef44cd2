package assembly

import (
	"time"

	"github.com/zjrosen/weft/internal/log"
	"github.com/zjrosen/weft/internal/protocol"
)

// commandTracker keys long-running command blocks by their stable handle so
// later status events update the original block in place rather than
// appending new entries.
type commandTracker struct {
	byHandle map[string]*CommandBlock
}

func newCommandTracker() *commandTracker {
	return &commandTracker{byHandle: make(map[string]*CommandBlock)}
}

// update folds one status event into the tracked block for its handle.
// Returns the block and whether it was created by this event; a created
// block still needs placement in the transcript by the caller. Status events
// for a handle never seen before (missed start, reconnect) create the block
// defensively instead of being dropped.
func (t *commandTracker) update(env protocol.Envelope, at time.Time) (*CommandBlock, bool) {
	blk, ok := t.byHandle[env.Handle]
	created := false
	if !ok {
		blk = &CommandBlock{
			Handle:    env.Handle,
			Kind:      env.CommandKind,
			Command:   env.Command,
			Status:    protocol.StatusRunning,
			StartedAt: at,
		}
		t.byHandle[env.Handle] = blk
		created = true
	}

	if env.Command != "" && blk.Command == "" {
		blk.Command = env.Command
	}
	if env.CommandKind != "" && blk.Kind == "" {
		blk.Kind = env.CommandKind
	}
	blk.Output += env.OutputDelta

	switch env.Status {
	case protocol.StatusRunning, "":
		// no transition
	case protocol.StatusCompleted, protocol.StatusFailed:
		if blk.Status.IsTerminal() && blk.Status != env.Status {
			log.Warn(log.CatAssembly, "Status event for finished command ignored",
				"handle", env.Handle, "have", string(blk.Status), "got", string(env.Status))
			break
		}
		if !blk.Status.IsTerminal() {
			blk.Status = env.Status
			blk.EndedAt = at
		}
	default:
		log.Debug(log.CatAssembly, "Unknown command status", "handle", env.Handle, "status", string(env.Status))
	}

	return blk, created
}
