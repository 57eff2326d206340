// Package smoother animates a low-frequency, jittery position feed
// into smooth marker movement. Raw fixes arrive every few seconds;
// consumers want a continuously updating position and heading without
// visible jumps and without lagging behind real movement.
//
// The interpolation math is pure; the Smoother wraps it in a
// ticker-driven frame loop with an explicit start/stop lifecycle so
// switching jobs never leaks a running timer.
package smoother

import (
	"math"
	"sync"
	"time"
)

const (
	// SnapDistanceM is the single-step discontinuity threshold. Jumps
	// past it (app resume, fix reacquisition) snap instead of animating.
	SnapDistanceM = 350.0

	// Animation duration scales with distance, clamped to this range
	MinDuration = 300 * time.Millisecond
	MaxDuration = 1200 * time.Millisecond
	msPerMeter  = 12.0

	// FrameInterval approximates a 60fps render loop
	FrameInterval = 16 * time.Millisecond

	// routeRevertAfter is how long a manually selected route view lasts
	// before the camera goes back to following the driver
	routeRevertAfter = 12 * time.Second

	earthRadiusM = 6371000.0
)

// CameraMode selects what the map camera does each frame
type CameraMode string

const (
	CameraFollow CameraMode = "follow" // Re-center on the displayed position
	CameraRoute  CameraMode = "route"  // Fit the remaining route, user-requested
)

// Position is a rendered coordinate with heading in degrees [0, 360)
type Position struct {
	Lat     float64
	Lng     float64
	Heading float64
}

type animation struct {
	start    Position
	target   Position
	startAt  time.Time
	duration time.Duration
}

// Smoother drives one marker. OnFrame is invoked from the frame loop
// (and from Push on snaps) with the position to render.
type Smoother struct {
	mu        sync.Mutex
	displayed Position
	hasFix    bool
	anim      *animation

	camera     CameraMode
	manualAt   time.Time // When the user last selected the route view
	driving    bool
	onFrame    func(Position, CameraMode)
	now        func() time.Time
	stop       chan struct{}
	stopOnce   sync.Once
	started    bool
}

// New creates a stopped Smoother. onFrame may be nil when only the
// polled Displayed value is used.
func New(onFrame func(Position, CameraMode)) *Smoother {
	return &Smoother{
		camera:  CameraFollow,
		onFrame: onFrame,
		now:     time.Now,
		stop:    make(chan struct{}),
	}
}

// Start launches the frame loop. Calling Start twice is a no-op.
func (s *Smoother) Start() {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return
	}
	s.started = true
	s.mu.Unlock()

	go func() {
		ticker := time.NewTicker(FrameInterval)
		defer ticker.Stop()
		for {
			select {
			case <-s.stop:
				return
			case <-ticker.C:
				s.Tick(s.now())
			}
		}
	}()
}

// Stop cancels the frame loop and any in-flight animation. Safe to
// call more than once, and required when the watched job changes.
func (s *Smoother) Stop() {
	s.stopOnce.Do(func() { close(s.stop) })
	s.mu.Lock()
	s.anim = nil
	s.mu.Unlock()
}

// Push feeds a new raw fix. Small moves start an eased animation from
// the currently displayed position; implausible jumps snap immediately.
func (s *Smoother) Push(fix Position) {
	s.mu.Lock()

	if !s.hasFix {
		s.hasFix = true
		s.displayed = normalize(fix)
		s.anim = nil
		s.emitLocked()
		return
	}

	distance := planarMeters(s.displayed.Lat, s.displayed.Lng, fix.Lat, fix.Lng)
	if distance > SnapDistanceM {
		s.displayed = normalize(fix)
		s.anim = nil
		s.emitLocked()
		return
	}

	s.anim = &animation{
		start:    s.displayed,
		target:   normalize(fix),
		startAt:  s.now(),
		duration: animationDuration(distance),
	}
	s.mu.Unlock()
}

// Tick advances the animation to the given instant. The frame loop
// calls it every FrameInterval; tests call it directly.
func (s *Smoother) Tick(now time.Time) {
	s.mu.Lock()

	if s.camera == CameraRoute && !s.manualAt.IsZero() && s.driving &&
		now.Sub(s.manualAt) >= routeRevertAfter {
		s.camera = CameraFollow
		s.manualAt = time.Time{}
	}

	if s.anim == nil {
		s.mu.Unlock()
		return
	}

	s.displayed = interpolate(s.anim, now)
	if now.Sub(s.anim.startAt) >= s.anim.duration {
		s.anim = nil
	}
	s.emitLocked()
}

// Displayed returns the last rendered position
func (s *Smoother) Displayed() Position {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.displayed
}

// Camera returns the current camera mode
func (s *Smoother) Camera() CameraMode {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.camera
}

// SelectRoute switches to the route overview on explicit user request.
// While the job is in a driving substate the camera reverts to follow
// after 12 seconds.
func (s *Smoother) SelectRoute() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.camera = CameraRoute
	s.manualAt = s.now()
}

// SetDriving tells the camera whether the job is in a driving substate
func (s *Smoother) SetDriving(driving bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.driving = driving
}

// emitLocked fires the frame callback and releases the mutex. The
// callback runs outside the lock so it may call back into the Smoother.
func (s *Smoother) emitLocked() {
	pos, cam, cb := s.displayed, s.camera, s.onFrame
	s.mu.Unlock()
	if cb != nil {
		cb(pos, cam)
	}
}

// animationDuration maps step distance to animation length:
// 12 ms per meter, clamped to [300ms, 1200ms]
func animationDuration(distanceM float64) time.Duration {
	ms := distanceM * msPerMeter
	if ms < float64(MinDuration/time.Millisecond) {
		ms = float64(MinDuration / time.Millisecond)
	}
	if ms > float64(MaxDuration/time.Millisecond) {
		ms = float64(MaxDuration / time.Millisecond)
	}
	return time.Duration(ms) * time.Millisecond
}

// interpolate evaluates an animation at the given instant
func interpolate(a *animation, now time.Time) Position {
	t := float64(now.Sub(a.startAt)) / float64(a.duration)
	if t < 0 {
		t = 0
	}
	if t > 1 {
		t = 1
	}
	eased := easeOutCubic(t)

	return Position{
		Lat:     a.start.Lat + (a.target.Lat-a.start.Lat)*eased,
		Lng:     a.start.Lng + (a.target.Lng-a.start.Lng)*eased,
		Heading: lerpHeading(a.start.Heading, a.target.Heading, eased),
	}
}

func easeOutCubic(t float64) float64 {
	inv := 1 - t
	return 1 - inv*inv*inv
}

// lerpHeading interpolates along the shorter angular direction,
// wrapping at 0/360 (350° to 10° goes through north, not backwards)
func lerpHeading(from, to, t float64) float64 {
	delta := math.Mod(to-from+540, 360) - 180
	h := math.Mod(from+delta*t, 360)
	if h < 0 {
		h += 360
	}
	return h
}

// planarMeters approximates the distance between two nearby points
// with an equirectangular projection. Fine at marker-animation scale;
// the distance filter is the one that needs real haversine.
func planarMeters(lat1, lng1, lat2, lng2 float64) float64 {
	latRad := (lat1 + lat2) / 2 * math.Pi / 180
	dLat := (lat2 - lat1) * math.Pi / 180
	dLng := (lng2 - lng1) * math.Pi / 180 * math.Cos(latRad)
	return math.Sqrt(dLat*dLat+dLng*dLng) * earthRadiusM
}

func normalize(p Position) Position {
	h := math.Mod(p.Heading, 360)
	if h < 0 {
		h += 360
	}
	p.Heading = h
	return p
}
