package log

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/zjrosen/weft/internal/pubsub"
)

// The package logger initializes once per process, so a single test walks
// the whole surface: init, formatting, levels, and the event feed.
func TestLogger_Lifecycle(t *testing.T) {
	path := filepath.Join(t.TempDir(), "debug.log")
	cleanup, err := Init(path)
	require.NoError(t, err)
	defer cleanup()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	listener := NewListener(ctx)
	require.NotNil(t, listener)

	Info(CatStream, "Envelope routed", "sessionId", "s1", "kind", "marker")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	content := string(data)
	require.Contains(t, content, "[INFO]")
	require.Contains(t, content, "[stream]")
	require.Contains(t, content, "Envelope routed sessionId=s1 kind=marker")

	msg := listener.Listen()()
	event, ok := msg.(pubsub.Event[string])
	require.True(t, ok)
	require.Contains(t, event.Payload, "Envelope routed")

	t.Run("odd field count keeps orphan key", func(t *testing.T) {
		Debug(CatUI, "Resize", "width")

		data, err := os.ReadFile(path)
		require.NoError(t, err)
		require.Contains(t, string(data), "width=<missing>")
	})

	t.Run("min level filters below threshold", func(t *testing.T) {
		SetMinLevel(LevelWarn)
		defer SetMinLevel(LevelDebug)

		Info(CatUI, "Filtered out entirely")

		data, err := os.ReadFile(path)
		require.NoError(t, err)
		require.NotContains(t, string(data), "Filtered out entirely")
	})

	t.Run("disabled logger writes nothing", func(t *testing.T) {
		SetEnabled(false)
		defer SetEnabled(true)

		Error(CatDB, "Suppressed while disabled")

		data, err := os.ReadFile(path)
		require.NoError(t, err)
		require.NotContains(t, string(data), "Suppressed while disabled")
	})
}

func TestSafeGo_RecoversPanic(t *testing.T) {
	done := make(chan struct{})
	SafeGo("panicky", func() {
		defer close(done)
		panic("boom")
	})

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("goroutine did not finish")
	}
}
