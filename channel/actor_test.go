package channel

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mijahauan/signal-recorder-sub001/archive"
	"github.com/mijahauan/signal-recorder-sub001/ntpcache"
	"github.com/mijahauan/signal-recorder-sub001/rtpdemux"
)

func TestActorEnqueueDropsWhenFull(t *testing.T) {
	dir := t.TempDir()
	a := NewActor("WWV10", 4, 4, 10_000_000, ntpcache.New(), func() string { return dir }, zerolog.Nop())

	for i := 0; i < queueDepth+10; i++ {
		a.Enqueue(rtpdemux.Packet{Seq: uint16(i), TS: uint32(i * 4), Payload: payloadOf(4)})
	}
	assert.Greater(t, a.packetsDropped, uint64(0))
}

func TestActorRunWritesArchiveOnShutdown(t *testing.T) {
	dir := t.TempDir()
	var archived *archive.Record
	a := NewActor("WWV10", 4, 4, 10_000_000, ntpcache.New(), func() string { return dir }, zerolog.Nop())
	a.OnArchive = func(rec *archive.Record, path string) { archived = rec }
	a.SetAnchor(TimeSnap{RTP: 0, UTC: time.Date(2026, 3, 5, 0, 0, 0, 0, time.UTC), Source: "wwv"})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		a.Run(ctx)
		close(done)
	}()

	for i := 0; i < 5; i++ {
		a.Enqueue(rtpdemux.Packet{Seq: uint16(i), TS: uint32(i * 4), Payload: payloadOf(4)})
	}
	time.Sleep(20 * time.Millisecond)
	cancel()
	<-done

	require.NotNil(t, archived)
	assert.Equal(t, StateRecording, a.State())

	matches, _ := filepath.Glob(filepath.Join(dir, "*.npz"))
	assert.Len(t, matches, 1)
}
