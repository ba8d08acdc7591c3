package video

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zsiec/playout/internal/logger"
	"github.com/zsiec/playout/internal/media"
	"github.com/zsiec/playout/internal/rational"
	"github.com/zsiec/playout/internal/state"
)

var (
	geo      = media.Geometry{Width: 16, Height: 16, Format: media.PixelFormatRGBA}
	frameDur = rational.New(1, 25)
)

// 16x16 RGBA is 1024 bytes
func softwareFrame(layer string, pts rational.Rational) *media.Unit {
	return media.NewVideoUnit(layer, pts, frameDur, media.NewSoftwareFrame(geo))
}

func hardwareFrame(layer string, pts rational.Rational, surface uint32) *media.Unit {
	return media.NewVideoUnit(layer, pts, frameDur, &media.HardwareFrame{Geo: geo, Device: "vaapi0", Surface: surface})
}

func newTestQueue(props state.Properties) (*Queue, *state.State) {
	st := state.New(props)
	return NewQueue(st, logger.NewNullLogger()), st
}

func TestQueue_DequeuePacing(t *testing.T) {
	ms := func(v int64) rational.Rational { return rational.New(v, 1000) }

	tests := []struct {
		name     string
		heads    []rational.Rational
		target   rational.Rational
		wantPTS  *rational.Rational
		wantLeft int
	}{
		{
			name:     "on time",
			heads:    []rational.Rational{ms(40)},
			target:   ms(40),
			wantPTS:  &[]rational.Rational{ms(40)}[0],
			wantLeft: 0,
		},
		{
			name:     "within skip window",
			heads:    []rational.Rational{ms(50)},
			target:   ms(40),
			wantPTS:  &[]rational.Rational{ms(50)}[0],
			wantLeft: 0,
		},
		{
			name:     "too early",
			heads:    []rational.Rational{ms(51)},
			target:   ms(40),
			wantLeft: 1,
		},
		{
			name:     "drops stale frames and delivers next",
			heads:    []rational.Rational{ms(0), ms(40), ms(80), ms(120)},
			target:   ms(80),
			wantPTS:  &[]rational.Rational{ms(80)}[0],
			wantLeft: 1,
		},
		{
			name:     "drops stale frames then waits",
			heads:    []rational.Rational{ms(0), ms(40), ms(80)},
			target:   ms(60),
			wantLeft: 1,
		},
		{
			name:     "everything stale",
			heads:    []rational.Rational{ms(0), ms(40)},
			target:   ms(100),
			wantLeft: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q, _ := newTestQueue(state.Properties{})
			layer := uuid.NewString()
			for _, pts := range tt.heads {
				require.NoError(t, q.Enqueue(softwareFrame(layer, pts)))
			}

			got := q.Dequeue(layer, tt.target)
			if tt.wantPTS == nil {
				assert.Nil(t, got)
			} else {
				require.NotNil(t, got)
				assert.True(t, got.PTS.Equal(*tt.wantPTS), "got %s", got.PTS)
			}
			assert.Equal(t, tt.wantLeft, q.Len(layer))
			assert.Equal(t, int64(tt.wantLeft), q.Count())
			assert.Equal(t, int64(tt.wantLeft*1024), q.Size())
		})
	}
}

func TestQueue_DequeueUnknownLayer(t *testing.T) {
	q, _ := newTestQueue(state.Properties{})
	assert.Nil(t, q.Dequeue("missing", rational.Zero))
	assert.Zero(t, q.Len("missing"))
}

func TestQueue_LayersIndependent(t *testing.T) {
	q, _ := newTestQueue(state.Properties{})
	a, b := uuid.NewString(), uuid.NewString()

	require.NoError(t, q.Enqueue(softwareFrame(a, rational.Zero)))
	require.NoError(t, q.Enqueue(softwareFrame(b, rational.New(1, 1))))

	assert.NotNil(t, q.Dequeue(a, rational.Zero))
	assert.Nil(t, q.Dequeue(b, rational.Zero))
	assert.Equal(t, 1, q.Len(b))
}

func TestQueue_NotFullHardwareCountsUnits(t *testing.T) {
	q, st := newTestQueue(state.Properties{
		DecodeMethod:       media.DecodeHardware,
		VideoMaxQueueCount: 2,
		VideoMaxQueueSize:  1 << 30,
	})
	layer := uuid.NewString()

	require.NoError(t, q.Enqueue(hardwareFrame(layer, rational.Zero, 0)))
	assert.True(t, st.VideoDecodeReady.Get())

	require.NoError(t, q.Enqueue(hardwareFrame(layer, frameDur, 1)))
	assert.False(t, q.Ready())
	assert.False(t, st.VideoDecodeReady.Get())
	assert.Less(t, q.Size(), int64(1<<30))
}

func TestQueue_NotFullSoftwareCountsBytes(t *testing.T) {
	q, st := newTestQueue(state.Properties{
		DecodeMethod:       media.DecodeSoftware,
		VideoMaxQueueCount: 1,
		VideoMaxQueueSize:  3 * 1024,
	})
	layer := uuid.NewString()

	for i := int64(0); i < 2; i++ {
		require.NoError(t, q.Enqueue(softwareFrame(layer, frameDur.MulInt(i))))
	}
	// count limit is exceeded but bytes govern
	assert.True(t, st.VideoDecodeReady.Get())

	require.NoError(t, q.Enqueue(softwareFrame(layer, frameDur.MulInt(2))))
	assert.False(t, st.VideoDecodeReady.Get())

	require.NotNil(t, q.Dequeue(layer, rational.Zero))
	assert.True(t, st.VideoDecodeReady.Get())
}

func TestQueue_ClearNotify(t *testing.T) {
	tests := []struct {
		name  string
		clear func(q *Queue, layers []string)
	}{
		{"all", func(q *Queue, _ []string) { q.Clear(true) }},
		{"each by id", func(q *Queue, layers []string) {
			for _, id := range layers {
				q.ClearByID(id, true)
			}
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q, st := newTestQueue(state.Properties{VideoMaxQueueSize: 1024})
			layers := []string{uuid.NewString(), uuid.NewString()}
			for _, id := range layers {
				require.NoError(t, q.Enqueue(softwareFrame(id, rational.Zero)))
			}
			require.False(t, st.VideoDecodeReady.Get())

			tt.clear(q, layers)

			assert.True(t, st.VideoDecodeReady.Get())
			assert.Zero(t, q.Count())
			assert.Zero(t, q.Size())
			for _, id := range layers {
				assert.Zero(t, q.Len(id))
			}
		})
	}
}

func TestQueue_ClearWakesWaiter(t *testing.T) {
	q, st := newTestQueue(state.Properties{VideoMaxQueueSize: 1024})
	layer := uuid.NewString()
	require.NoError(t, q.Enqueue(softwareFrame(layer, rational.Zero)))

	done := make(chan error, 1)
	go func() {
		done <- st.VideoDecodeReady.WaitUntilTrue(context.Background())
	}()

	q.Clear(true)
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("clear did not wake the decode side")
	}
}

func TestQueue_Seek(t *testing.T) {
	q, st := newTestQueue(state.Properties{})
	active, idle := uuid.NewString(), uuid.NewString()
	st.SetActiveLayers(active)

	for i := int64(0); i < 5; i++ {
		require.NoError(t, q.Enqueue(softwareFrame(active, frameDur.MulInt(i))))
		require.NoError(t, q.Enqueue(softwareFrame(idle, frameDur.MulInt(i))))
	}

	// 100ms is inside the frame at 80ms
	require.True(t, q.Seek(rational.New(1, 10)))
	assert.True(t, q.Front(active).PTS.Equal(rational.New(2, 25)))
	assert.Equal(t, 3, q.Len(active))
	assert.Equal(t, 5, q.Len(idle))

	assert.False(t, q.Seek(rational.New(10, 1)))
	assert.Zero(t, q.Len(active))
}

func TestQueue_SeekWithoutDuration(t *testing.T) {
	q, st := newTestQueue(state.Properties{})
	layer := uuid.NewString()
	st.SetActiveLayers(layer)

	for i := int64(0); i < 3; i++ {
		u := media.NewVideoUnit(layer, rational.New(i, 10), rational.Zero, media.NewSoftwareFrame(geo))
		require.NoError(t, q.Enqueue(u))
	}

	require.True(t, q.Seek(rational.New(15, 100)))
	assert.True(t, q.Front(layer).PTS.Equal(rational.New(2, 10)))
}

func TestQueue_ConcurrentAccess(t *testing.T) {
	q, st := newTestQueue(state.Properties{VideoMaxQueueSize: 8 * 1024})
	layer := uuid.NewString()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := int64(0); i < 200; i++ {
			if err := st.VideoDecodeReady.WaitUntilTrue(ctx); err != nil {
				return
			}
			_ = q.Enqueue(softwareFrame(layer, frameDur.MulInt(i)))
		}
	}()

	delivered := 0
	go func() {
		defer wg.Done()
		for delivered < 200 && ctx.Err() == nil {
			if q.Dequeue(layer, frameDur.MulInt(int64(delivered))) != nil {
				delivered++
			}
			assert.LessOrEqual(t, q.Size(), int64(8*1024))
		}
	}()
	wg.Wait()

	assert.Equal(t, 200, delivered)
	assert.Zero(t, q.Count())
}
