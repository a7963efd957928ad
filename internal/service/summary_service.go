package service

import (
	"sync"
	"time"

	"coinsentry/internal/config"
)

// SummaryService decides when the daily market summaries go out: at
// each configured hour, once per hour slot per day, never during quiet
// hours.
type SummaryService struct {
	hours []int
	quiet config.QuietHoursConfig

	mu       sync.Mutex
	lastSent map[int]string // hour -> date it was sent

	nowFunc func() time.Time
}

func NewSummaryService(hours []int, quiet config.QuietHoursConfig) *SummaryService {
	return &SummaryService{
		hours:    hours,
		quiet:    quiet,
		lastSent: make(map[int]string),
		nowFunc:  time.Now,
	}
}

// ShouldSend reports whether a summary is due right now.
func (s *SummaryService) ShouldSend() bool {
	now := s.nowFunc()
	if InQuietHours(s.quiet, now) {
		return false
	}

	hour := now.Hour()
	for _, h := range s.hours {
		if h != hour {
			continue
		}
		s.mu.Lock()
		sent := s.lastSent[hour] == dateKey(now)
		s.mu.Unlock()
		return !sent
	}
	return false
}

// MarkSent records that the current hour slot got its summary.
func (s *SummaryService) MarkSent() {
	now := s.nowFunc()
	s.mu.Lock()
	s.lastSent[now.Hour()] = dateKey(now)
	s.mu.Unlock()
}

// NextSummary returns when the next summary is due, or zero time when
// no summary hours are configured.
func (s *SummaryService) NextSummary() time.Time {
	if len(s.hours) == 0 {
		return time.Time{}
	}

	now := s.nowFunc()
	best := time.Time{}
	for _, h := range s.hours {
		candidate := time.Date(now.Year(), now.Month(), now.Day(), h, 0, 0, 0, now.Location())
		if !candidate.After(now) {
			candidate = candidate.Add(24 * time.Hour)
		}
		if best.IsZero() || candidate.Before(best) {
			best = candidate
		}
	}
	return best
}

// InQuietHours reports whether now falls in the configured quiet
// window. A window crossing midnight (start 23, end 7) wraps.
func InQuietHours(q config.QuietHoursConfig, now time.Time) bool {
	if !q.Enabled {
		return false
	}
	hour := now.Hour()
	if q.StartHour <= q.EndHour {
		return hour >= q.StartHour && hour < q.EndHour
	}
	return hour >= q.StartHour || hour < q.EndHour
}

func dateKey(t time.Time) string {
	return t.Format(time.DateOnly)
}
