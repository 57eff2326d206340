package smoother

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClock lets tests drive the frame loop by hand
type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time               { return c.t }
func (c *fakeClock) advance(d time.Duration) time.Time {
	c.t = c.t.Add(d)
	return c.t
}

func newTestSmoother(clock *fakeClock) *Smoother {
	s := New(nil)
	s.now = clock.now
	return s
}

func TestFirstFixSnapsImmediately(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1000, 0)}
	s := newTestSmoother(clock)

	s.Push(Position{Lat: -34.6037, Lng: -58.3816, Heading: 90})
	got := s.Displayed()
	assert.Equal(t, -34.6037, got.Lat)
	assert.Equal(t, 90.0, got.Heading)
}

func TestLargeJumpSnapsWithoutAnimation(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1000, 0)}
	s := newTestSmoother(clock)
	s.Push(Position{Lat: -34.6037, Lng: -58.3816})

	// ~1.1 km away, past the 350 m threshold
	s.Push(Position{Lat: -34.5937, Lng: -58.3816})
	got := s.Displayed()
	assert.Equal(t, -34.5937, got.Lat)

	// No in-flight animation: a later tick changes nothing
	s.Tick(clock.advance(100 * time.Millisecond))
	assert.Equal(t, -34.5937, s.Displayed().Lat)
}

func TestSmallMoveAnimatesWithEaseOut(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1000, 0)}
	s := newTestSmoother(clock)
	s.Push(Position{Lat: 0, Lng: 0})

	// ~55 m north: duration = clamp(55*12, 300, 1200) ≈ 667 ms
	target := Position{Lat: 0.0005, Lng: 0}
	s.Push(target)

	// Halfway through: ease-out cubic gives 1-(1-0.5)^3 = 0.875
	require.NotNil(t, s.anim)
	half := s.anim.duration / 2
	s.Tick(clock.advance(half))
	mid := s.Displayed()
	assert.InDelta(t, 0.0005*0.875, mid.Lat, 1e-9)
	assert.Greater(t, mid.Lat, 0.0)
	assert.Less(t, mid.Lat, 0.0005)

	// Past the end: landed exactly on target, animation cleared
	s.Tick(clock.advance(s.anim.duration))
	assert.Equal(t, target.Lat, s.Displayed().Lat)
	assert.Nil(t, s.anim)
}

func TestAnimationDurationClamped(t *testing.T) {
	assert.Equal(t, MinDuration, animationDuration(0))
	assert.Equal(t, MinDuration, animationDuration(10))   // 120 ms raw
	assert.Equal(t, 600*time.Millisecond, animationDuration(50))
	assert.Equal(t, MaxDuration, animationDuration(200))  // 2400 ms raw
	assert.Equal(t, MaxDuration, animationDuration(349))
}

func TestHeadingWrapsShortestDirection(t *testing.T) {
	// 350° to 10° goes forward through 0°, not backwards through 180°
	assert.InDelta(t, 0.0, lerpHeading(350, 10, 0.5), 1e-9)
	assert.InDelta(t, 355.0, lerpHeading(350, 10, 0.25), 1e-9)
	assert.InDelta(t, 5.0, lerpHeading(350, 10, 0.75), 1e-9)

	// And the other way around
	assert.InDelta(t, 0.0, lerpHeading(10, 350, 0.5), 1e-9)

	// Plain case, no wrap
	assert.InDelta(t, 45.0, lerpHeading(0, 90, 0.5), 1e-9)
}

func TestEaseOutCubic(t *testing.T) {
	assert.Equal(t, 0.0, easeOutCubic(0))
	assert.Equal(t, 1.0, easeOutCubic(1))
	assert.InDelta(t, 0.875, easeOutCubic(0.5), 1e-9)
}

func TestRouteCameraAutoRevertsWhileDriving(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1000, 0)}
	s := newTestSmoother(clock)
	s.SetDriving(true)

	assert.Equal(t, CameraFollow, s.Camera())
	s.SelectRoute()
	assert.Equal(t, CameraRoute, s.Camera())

	s.Tick(clock.advance(11 * time.Second))
	assert.Equal(t, CameraRoute, s.Camera(), "still within the 12 s grace period")

	s.Tick(clock.advance(2 * time.Second))
	assert.Equal(t, CameraFollow, s.Camera())
}

func TestRouteCameraSticksWhenNotDriving(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1000, 0)}
	s := newTestSmoother(clock)
	s.SetDriving(false)

	s.SelectRoute()
	s.Tick(clock.advance(time.Minute))
	assert.Equal(t, CameraRoute, s.Camera())
}

func TestStopCancelsInFlightAnimation(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1000, 0)}
	s := newTestSmoother(clock)
	s.Push(Position{Lat: 0, Lng: 0})
	s.Push(Position{Lat: 0.0005, Lng: 0})
	require.NotNil(t, s.anim)

	s.Stop()
	assert.Nil(t, s.anim)
	before := s.Displayed()
	s.Tick(clock.advance(time.Second))
	assert.Equal(t, before, s.Displayed())

	s.Stop() // idempotent
}

func TestFrameLoopLifecycle(t *testing.T) {
	frames := make(chan Position, 64)
	s := New(func(p Position, _ CameraMode) {
		select {
		case frames <- p:
		default:
		}
	})
	s.Start()
	defer s.Stop()

	s.Push(Position{Lat: 0, Lng: 0})
	s.Push(Position{Lat: 0.0005, Lng: 0})

	select {
	case <-frames:
	case <-time.After(time.Second):
		t.Fatal("frame loop produced no frames")
	}
}
