package ingest

import (
	"database/sql"
	"fmt"
	"strconv"

	_ "modernc.org/sqlite"
)

// recorderStatsQuery selects hourly long-term statistics from a Home
// Assistant recorder database in the statistics CSV layout.
const recorderStatsQuery = `
SELECT
  statistics_meta.statistic_id AS sensor_id,
  statistics.start_ts AS start_time,
  statistics.mean AS avg,
  statistics.min AS min_val,
  statistics.max AS max_val
FROM statistics
JOIN statistics_meta ON statistics.metadata_id = statistics_meta.id
WHERE statistics.mean IS NOT NULL
ORDER BY statistics_meta.statistic_id, statistics.start_ts`

// ReadRecorderDB reads long-term statistics from a Home Assistant recorder
// SQLite file. The database is opened read-only.
func ReadRecorderDB(path string) (*Table, error) {
	db, err := sql.Open("sqlite", "file:"+path+"?mode=ro")
	if err != nil {
		return nil, fmt.Errorf("opening recorder database: %w", err)
	}
	defer db.Close()

	rows, err := db.Query(recorderStatsQuery)
	if err != nil {
		return nil, fmt.Errorf("querying statistics: %w", err)
	}
	defer rows.Close()

	t := &Table{Name: path, Header: append([]string(nil), haStatsColumns...)}
	for rows.Next() {
		var (
			sensorID       string
			start          float64
			avg            float64
			minVal, maxVal sql.NullFloat64
		)
		if err := rows.Scan(&sensorID, &start, &avg, &minVal, &maxVal); err != nil {
			return nil, fmt.Errorf("scanning statistics row: %w", err)
		}
		t.Rows = append(t.Rows, []string{
			sensorID,
			strconv.FormatFloat(start, 'f', -1, 64),
			strconv.FormatFloat(avg, 'f', -1, 64),
			formatNullFloat(minVal),
			formatNullFloat(maxVal),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating statistics: %w", err)
	}
	return t, nil
}

func formatNullFloat(v sql.NullFloat64) string {
	if !v.Valid {
		return ""
	}
	return strconv.FormatFloat(v.Float64, 'f', -1, 64)
}
