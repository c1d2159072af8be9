// Package logwriter appends telemetry rows to per-(family, site, tank,
// day) NDJSON files, rate-limited per stream and whitelisted per family.
// A single goroutine drains a write queue so concurrent pollers never
// interleave partial lines across files.
package logwriter

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/modbus-edge/gateway/internal/telemetry"
	"github.com/modbus-edge/gateway/pkg/log"
	"golang.org/x/time/rate"
)

var wlog = log.Component("logwriter")

// DefaultMinInterval is the minimum spacing between accepted rows for the
// same (family, site, tank) stream.
const DefaultMinInterval = 30 * time.Second

// DefaultQueueDepth bounds the write queue; Enqueue blocks once it fills,
// which is how backpressure is honored.
const DefaultQueueDepth = 1024

type rowJob struct {
	path string
	row  map[string]interface{}
}

// Writer is the rate-limited, rotating NDJSON log writer.
type Writer struct {
	logDir      string
	minInterval time.Duration
	whitelist   *whitelistLoader

	limitersMu sync.Mutex
	limiters   map[string]*rate.Limiter

	queue chan rowJob
	wg    sync.WaitGroup

	streamsMu sync.Mutex
	streams   map[string]*os.File
}

// New constructs a Writer. logDir is where telemetry-*.ndjson files are
// written; configDir is where logPoints*.json whitelists are read from.
func New(logDir, configDir string, minInterval time.Duration) *Writer {
	if minInterval <= 0 {
		minInterval = DefaultMinInterval
	}
	return &Writer{
		logDir:      logDir,
		minInterval: minInterval,
		whitelist:   newWhitelistLoader(configDir),
		limiters:    make(map[string]*rate.Limiter),
		queue:       make(chan rowJob, DefaultQueueDepth),
		streams:     make(map[string]*os.File),
	}
}

// Start launches the single writer goroutine.
func (w *Writer) Start() {
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		for job := range w.queue {
			w.writeRow(job)
		}
	}()
}

// Enqueue rate-limits, whitelists, and rounds one frame's points for
// (family, siteID, tankID), then appends the resulting row to the write
// queue. Rows arriving faster than minInterval are silently dropped rather
// than queued.
func (w *Writer) Enqueue(family, siteID, tankID string, frame telemetry.Frame) {
	streamKey := family + "|" + siteID + "|" + tankID
	if !w.limiterFor(streamKey).Allow() {
		return
	}

	whitelist, err := w.whitelist.forFamily(family)
	if err != nil {
		wlog.Warnf("no whitelist for family %q, dropping row: %v", family, err)
		return
	}

	row := buildRow(tankID, frame.TsUTC, frame.S, whitelist)
	path := pathFor(w.logDir, family, siteID, tankID, frame.TsUTC)

	w.queue <- rowJob{path: path, row: row}
}

func (w *Writer) limiterFor(streamKey string) *rate.Limiter {
	w.limitersMu.Lock()
	defer w.limitersMu.Unlock()
	l, ok := w.limiters[streamKey]
	if !ok {
		l = rate.NewLimiter(rate.Every(w.minInterval), 1)
		w.limiters[streamKey] = l
	}
	return l
}

func pathFor(logDir, family, siteID, tankID string, ts time.Time) string {
	day := ts.In(hstLocation).Format("2006-01-02")
	name := fmt.Sprintf("telemetry-%s-%s-%s-%s.ndjson", family, siteID, tankID, day)
	return filepath.Join(logDir, name)
}

func (w *Writer) writeRow(job rowJob) {
	f, err := w.openStream(job.path)
	if err != nil {
		wlog.Errorf("open %s: %v", job.path, err)
		return
	}

	line, err := json.Marshal(job.row)
	if err != nil {
		wlog.Errorf("marshal row for %s: %v", job.path, err)
		return
	}
	line = append(line, '\n')

	if _, err := f.Write(line); err != nil {
		wlog.Errorf("write %s: %v", job.path, err)
	}
}

func (w *Writer) openStream(path string) (*os.File, error) {
	w.streamsMu.Lock()
	defer w.streamsMu.Unlock()

	if f, ok := w.streams[path]; ok {
		return f, nil
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, err
	}
	w.streams[path] = f
	return f, nil
}

// Shutdown drains the queue, then closes every open stream, waiting for
// the writer goroutine to finish before returning.
func (w *Writer) Shutdown() {
	close(w.queue)
	w.wg.Wait()

	w.streamsMu.Lock()
	defer w.streamsMu.Unlock()
	for path, f := range w.streams {
		if err := f.Close(); err != nil {
			wlog.Warnf("close %s: %v", path, err)
		}
	}
}
