package main

import (
	"archive/zip"
	"bufio"
	"encoding/csv"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"math"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

)

type record struct {
	sensorID string
	value    float64
	ts       float64 // unix epoch seconds
}

func main() {
	urlFlag := flag.String("url", "", "Home Assistant base URL (overrides HA_URL)")
	tokenFlag := flag.String("token", "", "Long-lived access token (overrides HA_TOKEN)")
	entitiesFlag := flag.String("entities", "", "Comma-separated entity IDs to fetch (overrides HA_ENTITIES)")
	days := flag.Int("days", 7, "Days of history to cover; later runs back-fill days missing before the existing data")
	output := flag.String("output", "input/ha-fetch.csv", "Cumulative output CSV path")
	dataDir := flag.String("data-dir", "data", "Directory the forecast reads zip archives from (empty disables)")
	flag.Parse()

	loadDotEnv(".env")

	haURL := resolveFlag(*urlFlag, "HA_URL")
	haToken := resolveFlag(*tokenFlag, "HA_TOKEN")
	if haURL == "" {
		log.Fatal("HA_URL not set, use -url flag or set HA_URL in .env")
	}
	if haToken == "" {
		log.Fatal("HA_TOKEN not set, use -token flag or set HA_TOKEN in .env")
	}
	haURL = strings.TrimRight(haURL, "/")

	entityIDs := splitEntityIDs(resolveFlag(*entitiesFlag, "HA_ENTITIES"))
	if len(entityIDs) == 0 {
		log.Fatal("no entities given, use -entities flag or set HA_ENTITIES in .env")
	}

	existing, firstTS, latestTS := loadExistingRecords(*output)
	endTime := time.Now()
	windows := fetchWindows(endTime, *days, firstTS, latestTS)
	if latestTS > 0 {
		log.Printf("existing data covers %s to %s", time.Unix(int64(firstTS), 0).Format(time.RFC3339),
			time.Unix(int64(latestTS), 0).Format(time.RFC3339))
	} else {
		log.Printf("first run, fetching last %d days", *days)
	}

	client := &http.Client{Timeout: 30 * time.Second}

	var newRecords []record
	for _, w := range windows {
		log.Printf("fetching %s to %s", w.start.Format(time.RFC3339), w.end.Format(time.RFC3339))
		for start := w.start; start.Before(w.end); start = start.Add(24 * time.Hour) {
			end := start.Add(24 * time.Hour)
			if end.After(w.end) {
				end = w.end
			}

			dayRecords, err := fetchDay(client, haURL, haToken, start, end, entityIDs)
			if err != nil {
				log.Fatalf("fetching %s: %v", start.Format("2006-01-02"), err)
			}
			newRecords = append(newRecords, dayRecords...)
			log.Printf("  %s: %d records", start.Format("2006-01-02"), len(dayRecords))

			if end.Before(endTime) {
				time.Sleep(500 * time.Millisecond)
			}
		}
	}

	merged := mergeRecords(existing, newRecords)

	if err := os.MkdirAll(filepath.Dir(*output), 0o755); err != nil {
		log.Fatalf("creating output directory: %v", err)
	}
	if err := writeCSV(*output, merged); err != nil {
		log.Fatalf("writing CSV: %v", err)
	}
	log.Printf("wrote %d records to %s (was %d, fetched %d new)", len(merged), *output, len(existing), len(newRecords))

	if *dataDir != "" && len(newRecords) > 0 {
		path, err := writeArchive(*dataDir, endTime, mergeRecords(nil, newRecords))
		if err != nil {
			log.Fatalf("writing archive: %v", err)
		}
		log.Printf("wrote %d new records to %s", len(newRecords), path)
	}
}

// window is a half-open time range to download.
type window struct {
	start, end time.Time
}

// fetchWindows returns the ranges missing from the cumulative file. With no
// data the whole -days range is fetched. Otherwise the range before the first
// record is back-filled when -days reaches further back, and the tail since
// the last record is fetched with one minute of overlap.
func fetchWindows(now time.Time, days int, firstTS, latestTS float64) []window {
	from := now.AddDate(0, 0, -days)
	if latestTS <= 0 {
		return []window{{start: from, end: now}}
	}

	var ws []window
	first := time.Unix(int64(firstTS), 0)
	if from.Before(first) {
		ws = append(ws, window{start: from, end: first})
	}
	ws = append(ws, window{start: time.Unix(int64(latestTS), 0).Add(-time.Minute), end: now})
	return ws
}

// loadDotEnv reads a .env file and sets variables not already in the environment.
func loadDotEnv(path string) {
	f, err := os.Open(path)
	if err != nil {
		return // silently skip if .env doesn't exist
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, val, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		val = strings.TrimSpace(val)
		if _, exists := os.LookupEnv(key); !exists {
			os.Setenv(key, val)
		}
	}
}

func resolveFlag(flagVal, envKey string) string {
	if flagVal != "" {
		return flagVal
	}
	return os.Getenv(envKey)
}

// splitEntityIDs parses a comma-separated entity list, dropping blanks and
// duplicates.
func splitEntityIDs(s string) []string {
	seen := make(map[string]bool)
	var ids []string
	for _, id := range strings.Split(s, ",") {
		id = strings.TrimSpace(id)
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func loadExistingRecords(path string) ([]record, float64, float64) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, 0
	}
	defer f.Close()

	cr := csv.NewReader(f)
	// skip header
	if _, err := cr.Read(); err != nil {
		return nil, 0, 0
	}

	var records []record
	var minTS, maxTS float64

	for {
		row, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			continue
		}
		if len(row) < 3 {
			continue
		}

		value, err := strconv.ParseFloat(row[1], 64)
		if err != nil {
			continue
		}
		ts, err := strconv.ParseFloat(row[2], 64)
		if err != nil {
			continue
		}

		records = append(records, record{
			sensorID: row[0],
			value:    value,
			ts:       ts,
		})
		if minTS == 0 || ts < minTS {
			minTS = ts
		}
		if ts > maxTS {
			maxTS = ts
		}
	}

	return records, minTS, maxTS
}

func fetchDay(client *http.Client, baseURL, token string, start, end time.Time, entityIDs []string) ([]record, error) {
	reqURL := fmt.Sprintf("%s/api/history/period/%s?end_time=%s&filter_entity_id=%s&minimal_response&no_attributes",
		baseURL,
		start.Format(time.RFC3339),
		url.QueryEscape(end.Format(time.RFC3339)),
		strings.Join(entityIDs, ","),
	)

	var body []byte
	var err error
	for attempt := range 5 {
		body, err = doRequest(client, reqURL, token)
		if err == nil {
			break
		}
		if isRetryable(err) {
			wait := time.Duration(math.Pow(2, float64(attempt))) * time.Second
			log.Printf("  retrying in %s: %v", wait, err)
			time.Sleep(wait)
			continue
		}
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("after 5 attempts: %w", err)
	}

	return parseHistoryResponse(body, entityIDs)
}

type apiError struct {
	statusCode int
	message    string
}

func (e *apiError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.statusCode, e.message)
}

func isRetryable(err error) bool {
	ae, ok := err.(*apiError)
	if !ok {
		return true // network errors are retryable
	}
	return ae.statusCode == 429 || ae.statusCode >= 500
}

func doRequest(client *http.Client, reqURL, token string) ([]byte, error) {
	req, err := http.NewRequest("GET", reqURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode == 401 {
		return nil, &apiError{statusCode: 401, message: "authentication failed, check your HA_TOKEN"}
	}
	if resp.StatusCode != 200 {
		return nil, &apiError{statusCode: resp.StatusCode, message: string(body)}
	}
	return body, nil
}

// parseHistoryResponse parses the HA history API response.
// Format: array of arrays. Each inner array is one entity's history.
// With minimal_response, only the first entry has entity_id.
// Entities not in wanted are dropped.
func parseHistoryResponse(data []byte, wanted []string) ([]record, error) {
	want := make(map[string]bool, len(wanted))
	for _, id := range wanted {
		want[id] = true
	}

	var outer [][]json.RawMessage
	if err := json.Unmarshal(data, &outer); err != nil {
		return nil, fmt.Errorf("parsing JSON: %w", err)
	}

	var records []record
	for _, entityHistory := range outer {
		var currentEntityID string
		for i, raw := range entityHistory {
			var entry struct {
				EntityID    string `json:"entity_id"`
				State       string `json:"state"`
				LastChanged string `json:"last_changed"`
			}
			if err := json.Unmarshal(raw, &entry); err != nil {
				continue
			}

			if i == 0 {
				currentEntityID = entry.EntityID
			}
			if entry.EntityID != "" {
				currentEntityID = entry.EntityID
			}

			// Skip non-numeric states
			if entry.State == "unavailable" || entry.State == "unknown" || entry.State == "" {
				continue
			}

			if !want[currentEntityID] {
				continue
			}

			value, err := strconv.ParseFloat(entry.State, 64)
			if err != nil {
				continue
			}

			ts, err := time.Parse(time.RFC3339Nano, entry.LastChanged)
			if err != nil {
				// Try alternate format without nanoseconds
				ts, err = time.Parse("2006-01-02T15:04:05+00:00", entry.LastChanged)
				if err != nil {
					continue
				}
			}

			records = append(records, record{
				sensorID: currentEntityID,
				value:    value,
				ts:       float64(ts.UnixNano()) / 1e9,
			})
		}
	}

	return records, nil
}

func mergeRecords(existing, new []record) []record {
	type key struct {
		sensorID string
		ts       float64
	}

	seen := make(map[key]record, len(existing)+len(new))
	for _, r := range existing {
		seen[key{r.sensorID, r.ts}] = r
	}
	for _, r := range new {
		seen[key{r.sensorID, r.ts}] = r // new overwrites existing on conflict
	}

	merged := make([]record, 0, len(seen))
	for _, r := range seen {
		merged = append(merged, r)
	}

	sort.Slice(merged, func(i, j int) bool {
		if merged[i].sensorID != merged[j].sensorID {
			return merged[i].sensorID < merged[j].sensorID
		}
		return merged[i].ts < merged[j].ts
	})

	return merged
}

func writeCSV(path string, records []record) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return encodeCSV(f, records)
}

// writeArchive packs records into a new zip in dataDir so the next forecast
// run picks them up. The name carries the fetch time because extracted
// archives are never extracted again.
func writeArchive(dataDir string, fetched time.Time, records []record) (string, error) {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return "", err
	}
	name := "ha-fetch-" + fetched.UTC().Format("20060102-150405")
	path := filepath.Join(dataDir, name+".zip")

	f, err := os.Create(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	zw := zip.NewWriter(f)
	w, err := zw.Create(name + ".csv")
	if err != nil {
		return "", err
	}
	if err := encodeCSV(w, records); err != nil {
		return "", err
	}
	if err := zw.Close(); err != nil {
		return "", err
	}
	return path, nil
}

// encodeCSV writes records in the recent-states layout (sensor_id,value,updated_ts).
func encodeCSV(out io.Writer, records []record) error {
	w := csv.NewWriter(out)
	if err := w.Write([]string{"sensor_id", "value", "updated_ts"}); err != nil {
		return err
	}

	for _, r := range records {
		if err := w.Write([]string{
			r.sensorID,
			strconv.FormatFloat(r.value, 'f', -1, 64),
			strconv.FormatFloat(r.ts, 'f', 7, 64),
		}); err != nil {
			return err
		}
	}

	w.Flush()
	return w.Error()
}
