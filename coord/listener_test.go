package coord

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LdDl/mot3d-go/frames"
)

func TestChanListenerBlocks(t *testing.T) {
	l := NewChanListener(1)
	require.NoError(t, l.Send(context.Background(), LiveMessage{Kind: KindEndOfFrame, Frame: 1}))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := l.Send(ctx, LiveMessage{Kind: KindEndOfFrame, Frame: 2})
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	msg := <-l.Messages()
	assert.Equal(t, uint64(1), uint64(msg.Frame))

	l.Close()
	l.Close()
	assert.ErrorIs(t, l.Send(context.Background(), LiveMessage{}), ErrListenerClosed)
}

func TestDropNewestListener(t *testing.T) {
	l := NewDropNewestListener(2, quietLogger)
	for frame := 1; frame <= 5; frame++ {
		msg := LiveMessage{Kind: KindEndOfFrame, Frame: frames.SyncFno(frame)}
		require.NoError(t, l.Send(context.Background(), msg))
	}
	assert.Equal(t, uint64(3), l.Dropped())

	got := drain(l.ChanListener)
	require.Len(t, got, 2)
	// the oldest messages are kept
	assert.Equal(t, frames.SyncFno(1), got[0].Frame)
	assert.Equal(t, frames.SyncFno(2), got[1].Frame)
}

func TestLiveMessageKindString(t *testing.T) {
	assert.Equal(t, "birth", KindBirth.String())
	assert.Equal(t, "end_of_frame", KindEndOfFrame.String())
	assert.Equal(t, "LiveMessageKind(42)", LiveMessageKind(42).String())
}
