package assembly

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/zjrosen/weft/internal/protocol"
	"github.com/zjrosen/weft/internal/pubsub"
)

func sessDelta(session, text string) protocol.Envelope {
	return protocol.Envelope{
		Kind:      protocol.KindAssistantTextDelta,
		SessionID: session,
		Text:      text,
	}
}

func TestMultiplexer_FirstOpenedSessionBecomesActive(t *testing.T) {
	m := NewMultiplexer()
	defer m.Close()

	m.OpenSession("a")
	m.OpenSession("b")

	require.Equal(t, "a", m.ActiveSessionID())
	require.Equal(t, []string{"a", "b"}, m.Sessions())
}

func TestMultiplexer_RoutesBySessionID(t *testing.T) {
	m := NewMultiplexer()
	defer m.Close()
	m.OpenSession("a")
	m.OpenSession("b")

	m.Route(sessDelta("a", "for a"))
	m.Route(sessDelta("b", "for b"))

	require.Equal(t, "for a", m.History("a")[0].Text())
	require.Equal(t, "for b", m.History("b")[0].Text())
}

func TestMultiplexer_InactiveSessionKeepsAssembling(t *testing.T) {
	m := NewMultiplexer()
	defer m.Close()
	m.OpenSession("a")
	m.OpenSession("b")

	m.Route(sessDelta("a", "hello"))
	m.Route(sessDelta("b", "noise"))

	active := m.ActiveHistory()
	require.Len(t, active, 1)
	require.Equal(t, "hello", active[0].Text())

	// B assembled independently; nothing of it leaked into the active view.
	require.Len(t, m.History("b"), 1)
	require.Equal(t, "noise", m.History("b")[0].Text())
}

func TestMultiplexer_SwitchIsInstantNoReplay(t *testing.T) {
	m := NewMultiplexer()
	defer m.Close()
	m.OpenSession("a")
	m.OpenSession("b")

	m.Route(sessDelta("b", "assembled "))
	m.Route(sessDelta("b", "while hidden"))

	m.SetActiveSession("b")

	active := m.ActiveHistory()
	require.Len(t, active, 1)
	require.Equal(t, "assembled while hidden", active[0].Text())
}

func TestMultiplexer_LegacyEnvelopeBindsToActiveSession(t *testing.T) {
	m := NewMultiplexer()
	defer m.Close()
	m.OpenSession("a")
	m.OpenSession("b")
	m.SetActiveSession("b")

	m.Route(sessDelta("", "no affinity"))

	require.Empty(t, m.History("a"))
	require.Equal(t, "no affinity", m.History("b")[0].Text())
}

func TestMultiplexer_NoActiveSessionDropsLegacyEnvelope(t *testing.T) {
	m := NewMultiplexer()
	defer m.Close()

	m.Route(sessDelta("", "nowhere to go"))

	require.Empty(t, m.Sessions())
	require.Nil(t, m.ActiveHistory())
}

func TestMultiplexer_UnopenedSessionDropped(t *testing.T) {
	m := NewMultiplexer()
	defer m.Close()
	m.OpenSession("a")

	m.Route(sessDelta("ghost", "lost"))

	require.Nil(t, m.History("ghost"))
	require.Empty(t, m.History("a"))
}

func TestMultiplexer_DroppedEnvelopeNeverReplayed(t *testing.T) {
	m := NewMultiplexer()
	defer m.Close()
	m.OpenSession("a")

	m.Route(sessDelta("ghost", "lost forever"))
	m.OpenSession("ghost")
	m.SetActiveSession("ghost")

	require.Empty(t, m.ActiveHistory())
}

func TestMultiplexer_SetActiveUnknownSessionIgnored(t *testing.T) {
	m := NewMultiplexer()
	defer m.Close()
	m.OpenSession("a")

	m.SetActiveSession("nope")

	require.Equal(t, "a", m.ActiveSessionID())
}

func TestMultiplexer_CloseSessionDiscardsHistory(t *testing.T) {
	m := NewMultiplexer()
	defer m.Close()
	m.OpenSession("a")
	m.Route(sessDelta("a", "bye"))

	m.CloseSession("a")

	require.Nil(t, m.History("a"))
	require.Equal(t, "", m.ActiveSessionID())
	require.Empty(t, m.Sessions())
}

func TestMultiplexer_PublishesHistoryChanges(t *testing.T) {
	m := NewMultiplexer()
	defer m.Close()
	m.OpenSession("a")
	m.OpenSession("b")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ch := m.Subscribe(ctx)

	m.Route(sessDelta("a", "visible"))
	m.Route(sessDelta("b", "background"))

	first := receiveChange(t, ch)
	require.Equal(t, "a", first.SessionID)
	require.Equal(t, 1, first.Messages)
	require.True(t, first.Active)

	second := receiveChange(t, ch)
	require.Equal(t, "b", second.SessionID)
	require.False(t, second.Active, "background session change must not claim the active view")
}

func receiveChange(t *testing.T, ch <-chan pubsub.Event[HistoryChange]) HistoryChange {
	t.Helper()
	select {
	case ev := <-ch:
		return ev.Payload
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for history change")
		return HistoryChange{}
	}
}

// TestMultiplexer_SessionIsolation is a property-based test: however envelopes
// for different sessions interleave, each session's transcript contains
// exactly the text addressed to it, in arrival order.
func TestMultiplexer_SessionIsolation(t *testing.T) {
	rapid.Check(t, func(r *rapid.T) {
		numSessions := rapid.IntRange(2, 4).Draw(r, "numSessions")
		sessions := make([]string, numSessions)
		for i := range sessions {
			sessions[i] = fmt.Sprintf("sess-%d", i)
		}

		m := NewMultiplexer()
		defer m.Close()
		for _, id := range sessions {
			m.OpenSession(id)
		}

		want := make(map[string]string)
		numEnvelopes := rapid.IntRange(1, 50).Draw(r, "numEnvelopes")
		for i := 0; i < numEnvelopes; i++ {
			target := rapid.SampledFrom(sessions).Draw(r, "target")
			chunk := rapid.StringMatching(`[a-z]{1,6} `).Draw(r, "chunk")
			m.Route(sessDelta(target, chunk))
			want[target] += chunk
		}

		for _, id := range sessions {
			var got string
			for _, msg := range m.History(id) {
				got += msg.Text()
			}
			require.Equal(r, want[id], got, "session %s transcript diverged", id)
		}
	})
}
