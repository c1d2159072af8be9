package api

import (
	"bufio"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/gorilla/mux"
)

// logFileEntry is one row of the log-listing response.
type logFileEntry struct {
	Name string `json:"name"`
	Size int64  `json:"size"`
}

// listLogs lists every NDJSON file in the log directory.
func (s *Server) listLogs(rw http.ResponseWriter, r *http.Request) {
	entries, err := os.ReadDir(s.opts.LogDir)
	if err != nil {
		handleError(err, http.StatusInternalServerError, rw)
		return
	}

	out := make([]logFileEntry, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".ndjson") {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		out = append(out, logFileEntry{Name: e.Name(), Size: info.Size()})
	}
	writeJSON(rw, out)
}

// downloadLog serves one log file's raw bytes. The requested basename is
// sanitized and the resolved path is required to stay within the log
// directory before the file is opened.
func (s *Server) downloadLog(rw http.ResponseWriter, r *http.Request) {
	name := filepath.Base(mux.Vars(r)["file"])
	if name == "." || name == "/" || strings.Contains(name, "..") {
		handleError(fmt.Errorf("invalid log file name"), http.StatusBadRequest, rw)
		return
	}

	path := filepath.Join(s.opts.LogDir, name)
	resolved, err := filepath.Abs(path)
	if err != nil {
		handleError(err, http.StatusInternalServerError, rw)
		return
	}
	logRoot, err := filepath.Abs(s.opts.LogDir)
	if err != nil {
		handleError(err, http.StatusInternalServerError, rw)
		return
	}
	if !strings.HasPrefix(resolved, logRoot+string(filepath.Separator)) {
		handleError(fmt.Errorf("log file path escapes log directory"), http.StatusBadRequest, rw)
		return
	}

	rw.Header().Set("Content-Type", "application/x-ndjson")
	http.ServeFile(rw, r, resolved)
}

// seriesPoint is one entry of a log time-series query response.
type seriesPoint struct {
	TsUTC time.Time `json:"ts"`
	Value float64   `json:"value"`
}

// logSeries parses every daily log file matching *-<tankId>-*.ndjson,
// optionally narrowed to one family by filename prefix, and returns the
// named field's values across the requested time range, sorted by
// timestamp.
func (s *Server) logSeries(rw http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	tankID := q.Get("tankId")
	field := q.Get("field")
	if tankID == "" || field == "" {
		handleError(fmt.Errorf("tankId and field are required"), http.StatusBadRequest, rw)
		return
	}
	familyFilter := q.Get("family")

	var from, to time.Time
	hasFrom, hasTo := false, false
	if v := q.Get("from"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			handleError(fmt.Errorf("invalid from: %w", err), http.StatusBadRequest, rw)
			return
		}
		from, hasFrom = t, true
	}
	if v := q.Get("to"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			handleError(fmt.Errorf("invalid to: %w", err), http.StatusBadRequest, rw)
			return
		}
		to, hasTo = t, true
	}

	entries, err := os.ReadDir(s.opts.LogDir)
	if err != nil {
		handleError(err, http.StatusInternalServerError, rw)
		return
	}

	var points []seriesPoint
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".ndjson") {
			continue
		}
		if !strings.Contains(name, "-"+tankID+"-") {
			continue
		}
		if familyFilter != "" && !strings.HasPrefix(name, "telemetry-"+familyFilter+"-") {
			continue
		}

		rows, err := readSeriesFromFile(filepath.Join(s.opts.LogDir, name), field)
		if err != nil {
			alog.Warnf("logSeries: skipping unreadable file %s: %v", name, err)
			continue
		}
		for _, p := range rows {
			if hasFrom && p.TsUTC.Before(from) {
				continue
			}
			if hasTo && p.TsUTC.After(to) {
				continue
			}
			points = append(points, p)
		}
	}

	sort.Slice(points, func(i, j int) bool { return points[i].TsUTC.Before(points[j].TsUTC) })
	writeJSON(rw, points)
}

// tsKeys is the fallback chain of NDJSON row keys tried, in order, when
// looking for a row's timestamp: the gateway's own log writer emits
// ts_hst, and rows logged under any of the other keys are still readable.
var tsKeys = []string{"ts_utc", "ts_hst", "ts", "ts_local", "time"}

func readSeriesFromFile(path, field string) ([]seriesPoint, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var out []seriesPoint
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		var row map[string]interface{}
		if err := json.Unmarshal(sc.Bytes(), &row); err != nil {
			continue
		}
		ts, ok := rowTimestamp(row)
		if !ok {
			continue
		}
		v, ok := row[field].(float64)
		if !ok {
			continue
		}
		out = append(out, seriesPoint{TsUTC: ts.UTC(), Value: v})
	}
	return out, sc.Err()
}

func rowTimestamp(row map[string]interface{}) (time.Time, bool) {
	for _, key := range tsKeys {
		tsRaw, ok := row[key].(string)
		if !ok {
			continue
		}
		ts, err := time.Parse(time.RFC3339Nano, tsRaw)
		if err != nil {
			continue
		}
		return ts, true
	}
	return time.Time{}, false
}
