// Package fitfeed serves activity summaries decoded from FIT files on disk.
package fitfeed

import (
	"context"
	"fmt"
	"log"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/tormoder/fit"

	"example.com/wellness/internal/domain"
	"example.com/wellness/internal/providers"
)

// Option configures a Directory.
type Option func(*Directory)

// WithLogger overrides the logger used to report undecodable files.
func WithLogger(logger *log.Logger) Option {
	return func(d *Directory) {
		d.logger = logger
	}
}

// Directory is an ActivityFeed over the *.fit files of one folder.
type Directory struct {
	root   string
	logger *log.Logger

	mu    sync.Mutex
	cache map[string]cachedSummary
}

type cachedSummary struct {
	modTime time.Time
	summary domain.ActivitySummary
}

// NewDirectory constructs a Directory feed rooted at root.
func NewDirectory(root string, opts ...Option) *Directory {
	d := &Directory{
		root:   root,
		logger: log.New(log.Writer(), "[fitfeed] ", log.LstdFlags),
		cache:  make(map[string]cachedSummary),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// FetchActivities returns a 1-based page of decoded sessions, newest first.
// Files that fail to decode are logged and skipped.
func (d *Directory) FetchActivities(ctx context.Context, page, perPage int) (providers.ActivityPage, error) {
	paths, err := filepath.Glob(filepath.Join(d.root, "*.fit"))
	if err != nil {
		return providers.ActivityPage{}, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	all := make([]domain.ActivitySummary, 0, len(paths))
	for _, path := range paths {
		if err := ctx.Err(); err != nil {
			return providers.ActivityPage{}, err
		}
		summary, ok := d.summaryLocked(path)
		if ok {
			all = append(all, summary)
		}
	}
	sort.Slice(all, func(i, j int) bool { return all[i].Start.After(all[j].Start) })

	if page < 1 || perPage < 1 {
		return providers.ActivityPage{}, nil
	}
	start := (page - 1) * perPage
	if start >= len(all) {
		return providers.ActivityPage{}, nil
	}
	end := min(start+perPage, len(all))
	return providers.ActivityPage{Activities: all[start:end], Fetched: end - start}, nil
}

func (d *Directory) summaryLocked(path string) (domain.ActivitySummary, bool) {
	info, err := os.Stat(path)
	if err != nil {
		d.logger.Printf("stat %s: %v", path, err)
		return domain.ActivitySummary{}, false
	}
	if cached, ok := d.cache[path]; ok && cached.modTime.Equal(info.ModTime()) {
		return cached.summary, true
	}

	summary, err := DecodeFile(path)
	if err != nil {
		d.logger.Printf("skip %s: %v", path, err)
		return domain.ActivitySummary{}, false
	}
	d.cache[path] = cachedSummary{modTime: info.ModTime(), summary: summary}
	return summary, true
}

// DecodeFile reads the first session of a FIT activity file.
func DecodeFile(path string) (domain.ActivitySummary, error) {
	f, err := os.Open(path)
	if err != nil {
		return domain.ActivitySummary{}, fmt.Errorf("open FIT file: %w", err)
	}
	defer f.Close()

	decoded, err := fit.Decode(f)
	if err != nil {
		return domain.ActivitySummary{}, fmt.Errorf("decode FIT file: %w", err)
	}
	activity, err := decoded.Activity()
	if err != nil {
		return domain.ActivitySummary{}, fmt.Errorf("activity FIT expected: %w", err)
	}
	if len(activity.Sessions) == 0 {
		return domain.ActivitySummary{}, fmt.Errorf("activity file has no session message")
	}

	s := activity.Sessions[0]
	start := s.StartTime
	if start.IsZero() || fit.IsBaseTime(start) {
		return domain.ActivitySummary{}, fmt.Errorf("session has no start time")
	}

	id := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	summary := domain.ActivitySummary{
		ID:             id,
		Type:           domain.ParseActivityType(strings.TrimPrefix(fmt.Sprint(s.Sport), "Sport")),
		Name:           id,
		Start:          start,
		MovingTime:     seconds(s.GetTotalMovingTimeScaled()),
		ElapsedTime:    seconds(s.GetTotalTimerTimeScaled()),
		DistanceMeters: positive(s.GetTotalDistanceScaled()),
	}
	if s.AvgPower != math.MaxUint16 && s.AvgPower > 0 {
		v := float64(s.AvgPower)
		summary.AvgPowerWatts = &v
	}
	if s.AvgHeartRate != math.MaxUint8 && s.AvgHeartRate > 0 {
		v := float64(s.AvgHeartRate)
		summary.AvgHeartRate = &v
	}
	if s.TotalWork != math.MaxUint32 && s.TotalWork > 0 {
		v := float64(s.TotalWork) / 1000.0
		summary.Kilojoules = &v
	}
	return summary, nil
}

func positive(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) || v <= 0 {
		return 0
	}
	return v
}

func seconds(v float64) time.Duration {
	return time.Duration(positive(v) * float64(time.Second))
}
