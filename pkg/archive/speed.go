package archive

import (
	"sync"
	"time"
)

type speedSample struct {
	moment time.Time
	bytes  int
}

// SpeedTracker calculates the throughput of a running Create or Extract call. It implements io.Writer so it
// can be passed (directly or through io.MultiWriter) as the Progress option.
type SpeedTracker struct {
	lock    sync.Mutex
	now     func() time.Time
	start   time.Time
	total   int64
	samples []speedSample
}

const maxSamples = 10

// NewSpeedTracker creates a new SpeedTracker instance
func NewSpeedTracker() *SpeedTracker {
	return newSpeedTracker(time.Now)
}

func newSpeedTracker(now func() time.Time) *SpeedTracker {
	return &SpeedTracker{
		now:     now,
		start:   now(),
		samples: make([]speedSample, 0, maxSamples+1),
	}
}

func (st *SpeedTracker) Write(p []byte) (int, error) {
	st.Track(len(p))
	return len(p), nil
}

// Track records that the passed amount of bytes have been transferred
func (st *SpeedTracker) Track(bytes int) {
	st.lock.Lock()
	defer st.lock.Unlock()

	st.total += int64(bytes)
	st.samples = append(st.samples, speedSample{
		moment: st.now(),
		bytes:  bytes,
	})

	l := len(st.samples)
	if l > maxSamples {
		st.samples = st.samples[l-maxSamples:]
	}
}

// GetSpeed calculates the current transfer speed (bytes per second) based on the last samples taken through Track()
func (st *SpeedTracker) GetSpeed() float64 {
	st.lock.Lock()
	defer st.lock.Unlock()

	if len(st.samples) < 2 {
		return 0
	}

	bytes := 0
	for _, sample := range st.samples[1:] {
		bytes += sample.bytes
	}

	start := st.samples[0].moment
	end := st.samples[len(st.samples)-1].moment
	elapsed := end.Sub(start).Seconds()
	if elapsed <= 0 {
		return 0
	}

	return float64(bytes) / elapsed
}

// Average returns the total amount of tracked bytes and the overall throughput since the tracker was created
func (st *SpeedTracker) Average() (int64, float64) {
	st.lock.Lock()
	defer st.lock.Unlock()

	elapsed := st.now().Sub(st.start).Seconds()
	if elapsed <= 0 {
		return st.total, 0
	}
	return st.total, float64(st.total) / elapsed
}
