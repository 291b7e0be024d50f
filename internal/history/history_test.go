package history

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"xhiqi-bot/internal/domain"
)

func turn(i int) domain.Turn {
	return domain.UserTurn("u", fmt.Sprintf("msg-%d", i))
}

func contents(turns []domain.Turn) []string {
	out := make([]string, 0, len(turns))
	for _, t := range turns {
		out = append(out, t.Content)
	}
	return out
}

func TestWindow_KeepsInsertionOrder(t *testing.T) {
	w := NewWindow(5)
	for i := 0; i < 3; i++ {
		w.Append(turn(i))
	}
	require.Equal(t, []string{"msg-0", "msg-1", "msg-2"}, contents(w.Snapshot()))
	require.Equal(t, 3, w.Len())
}

func TestWindow_EvictsOldestBeyondBound(t *testing.T) {
	for _, size := range []int{1, 2, 3, 7, 20} {
		w := NewWindow(size)
		total := size*3 + 1
		for i := 0; i < total; i++ {
			w.Append(turn(i))
			require.LessOrEqual(t, w.Len(), size)
		}

		want := make([]string, 0, size)
		for i := total - size; i < total; i++ {
			want = append(want, fmt.Sprintf("msg-%d", i))
		}
		require.Equal(t, want, contents(w.Snapshot()), "size=%d", size)
	}
}

func TestWindow_SnapshotIsACopy(t *testing.T) {
	w := NewWindow(3)
	w.Append(turn(0))
	snap := w.Snapshot()
	snap[0].Content = "changed"
	w.Append(turn(1))

	require.Equal(t, []string{"msg-0", "msg-1"}, contents(w.Snapshot()))
	require.Len(t, snap, 1)
}

func TestWindow_EmptySnapshot(t *testing.T) {
	w := NewWindow(0)
	require.Equal(t, DefaultSize, w.Cap())
	require.NotNil(t, w.Snapshot())
	require.Empty(t, w.Snapshot())
}

func TestWindow_FullWindowTwoAppends(t *testing.T) {
	w := NewWindow(20)
	for i := 0; i < 20; i++ {
		w.Append(turn(i))
	}
	w.Append(domain.UserTurn("alice", "new question"))
	w.Append(domain.AssistantTurn("new answer"))

	snap := w.Snapshot()
	require.Len(t, snap, 20)
	require.Equal(t, "msg-2", snap[0].Content)
	require.Equal(t, "new answer", snap[19].Content)
}

func TestWindow_ConcurrentAppends(t *testing.T) {
	w := NewWindow(10)
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			w.Append(turn(i))
			_ = w.Snapshot()
		}(i)
	}
	wg.Wait()
	require.Equal(t, 10, w.Len())
}

func TestShared_IgnoresKey(t *testing.T) {
	s := NewShared(4)
	s.Append("channel-a", turn(0))
	s.Append("channel-b", turn(1))
	require.Equal(t, []string{"msg-0", "msg-1"}, contents(s.Snapshot("anything")))
}

func TestPartitioned_SeparatesKeys(t *testing.T) {
	p := NewPartitioned(2)
	p.Append("a", turn(0))
	p.Append("b", turn(1))
	p.Append("a", turn(2))
	p.Append("a", turn(3))

	require.Equal(t, []string{"msg-2", "msg-3"}, contents(p.Snapshot("a")))
	require.Equal(t, []string{"msg-1"}, contents(p.Snapshot("b")))
	require.Empty(t, p.Snapshot("missing"))
}

func TestNew_SelectsScope(t *testing.T) {
	require.IsType(t, &Shared{}, New(ScopeGlobal, 5))
	require.IsType(t, &Partitioned{}, New(ScopeChannel, 5))
	require.IsType(t, &Shared{}, New("unknown", 5))
}
