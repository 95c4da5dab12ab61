package pipeline

import (
	"math"
	"sort"
	"sync"
	"time"

	"github.com/khaledhikmat/aicam-go/model"
)

// maxMatchDistance is how far, in frame pixels, a centroid may move between
// consecutive cycles and still be claimed by an existing track.
const maxMatchDistance = 50.0

type track struct {
	x        int
	y        int
	entry    time.Time
	lastSeen time.Time
}

// Tracker correlates per-frame person detections into persistent tracks and
// keeps occupancy statistics binned by wall-clock second.
//
// Matching is greedy in ascending track order: each track claims its nearest
// unclaimed centroid within maxMatchDistance, so an earlier track can take a
// centroid that sits closer to a later one. This is intentionally not a
// globally optimal assignment. A track that claims nothing is evicted on the
// spot; there is no grace period and no re-identification, so a person who
// leaves the radius for one cycle comes back as a new track.
type Tracker struct {
	mu        sync.Mutex
	tracks    map[int64]*track
	nextID    int64
	frames    uint64
	created   int64
	occupancy map[int64]int
}

func NewTracker() *Tracker {
	return &Tracker{
		tracks:    map[int64]*track{},
		occupancy: map[int64]int{},
	}
}

// Update matches the person detections of one cycle against the active
// tracks and returns the resulting occupancy snapshot.
func (t *Tracker) Update(persons []model.Detection, now time.Time) model.TrackingUpdate {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.frames++
	t.occupancy[now.Unix()] = len(persons)

	type centroid struct {
		x, y int
	}
	centroids := make([]centroid, len(persons))
	for i, p := range persons {
		cx, cy := p.Box.Center()
		centroids[i] = centroid{x: cx, y: cy}
	}
	claimed := make([]bool, len(centroids))

	// Ascending track order keeps the greedy matching deterministic.
	ids := make([]int64, 0, len(t.tracks))
	for id := range t.tracks {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	for _, id := range ids {
		tr := t.tracks[id]
		best := -1
		bestDist := math.Inf(1)
		for i, c := range centroids {
			if claimed[i] {
				continue
			}
			dist := math.Hypot(float64(c.x-tr.x), float64(c.y-tr.y))
			if dist < bestDist && dist < maxMatchDistance {
				bestDist = dist
				best = i
			}
		}

		if best == -1 {
			delete(t.tracks, id)
			continue
		}
		tr.x = centroids[best].x
		tr.y = centroids[best].y
		tr.lastSeen = now
		claimed[best] = true
	}

	for i, c := range centroids {
		if claimed[i] {
			continue
		}
		t.nextID++
		t.created++
		t.tracks[t.nextID] = &track{
			x:        c.x,
			y:        c.y,
			entry:    now,
			lastSeen: now,
		}
	}

	return model.TrackingUpdate{
		PeopleCount:  len(persons),
		ActiveTracks: len(t.tracks),
		AvgDwellTime: t.avgDwellLocked(now),
	}
}

// avgDwellLocked is the mean seconds since entry over the active tracks.
// Callers hold the lock.
func (t *Tracker) avgDwellLocked(now time.Time) float64 {
	if len(t.tracks) == 0 {
		return 0.0
	}
	total := 0.0
	for _, tr := range t.tracks {
		total += now.Sub(tr.entry).Seconds()
	}
	return total / float64(len(t.tracks))
}

// Statistics aggregates the counters since the last statistics reset.
func (t *Tracker) Statistics(now time.Time) model.TrackingStats {
	t.mu.Lock()
	defer t.mu.Unlock()

	avg := 0.0
	peak := 0
	if len(t.occupancy) > 0 {
		sum := 0
		for _, n := range t.occupancy {
			sum += n
			if n > peak {
				peak = n
			}
		}
		avg = float64(sum) / float64(len(t.occupancy))
	}

	return model.TrackingStats{
		TotalFrames:       t.frames,
		AvgPeopleCount:    avg,
		PeakPeopleCount:   peak,
		CurrentTracks:     len(t.tracks),
		AvgDwellTime:      t.avgDwellLocked(now),
		TotalPeoplePassed: t.created,
	}
}

// ResetStatistics clears the occupancy history, the active tracks and the
// people-passed counter for periodic rollover. Track identifiers keep
// incrementing so an identifier is never assigned twice in one process.
func (t *Tracker) ResetStatistics() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.tracks = map[int64]*track{}
	t.occupancy = map[int64]int{}
	t.frames = 0
	t.created = 0
}
