package db

import "database/sql"

// POIEvent is one persisted classification outcome, shaped for the web API.
type POIEvent struct {
	SessionID       string  `json:"session_id"`
	CycleIndex      uint64  `json:"cycle_index"`
	X               float64 `json:"x"`
	Y               float64 `json:"y"`
	Category        string  `json:"category"`
	TimestampNs     int64   `json:"timestamp_ns"`
	MaskTimestampNs int64   `json:"mask_timestamp_ns"`
	Confidence      float64 `json:"confidence"`
	Drivable        bool    `json:"drivable"`
	CreatedAtNs     int64   `json:"created_at_ns"`
}

// RecentPOIEvents returns up to limit POI outcomes, newest first.
func (db *DB) RecentPOIEvents(limit int) ([]POIEvent, error) {
	rows, err := db.Query(`
		SELECT session_id, cycle_index, x, y, category,
		       timestamp_ns, mask_timestamp_ns, confidence, drivable, created_at_ns
		FROM poi_events ORDER BY event_rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []POIEvent
	for rows.Next() {
		var e POIEvent
		var category sql.NullString
		var drivable int
		if err := rows.Scan(
			&e.SessionID, &e.CycleIndex, &e.X, &e.Y, &category,
			&e.TimestampNs, &e.MaskTimestampNs, &e.Confidence, &drivable, &e.CreatedAtNs,
		); err != nil {
			return nil, err
		}
		e.Category = category.String
		e.Drivable = drivable != 0
		events = append(events, e)
	}
	return events, rows.Err()
}

// CycleRow is one persisted cycle summary, shaped for the web API.
type CycleRow struct {
	SessionID       string `json:"session_id"`
	CycleIndex      uint64 `json:"cycle_index"`
	MaskTimestampNs int64  `json:"mask_timestamp_ns"`
	Drained         int    `json:"drained"`
	Classified      int    `json:"classified"`
	Passed          int    `json:"passed"`
	Evicted         int    `json:"evicted"`
	DurationUs      int64  `json:"duration_us"`
	CreatedAtNs     int64  `json:"created_at_ns"`
}

// RecentCycles returns up to limit cycle summaries, newest first.
func (db *DB) RecentCycles(limit int) ([]CycleRow, error) {
	rows, err := db.Query(`
		SELECT session_id, cycle_index, mask_timestamp_ns,
		       drained, classified, passed, evicted, duration_us, created_at_ns
		FROM fusion_cycles ORDER BY cycle_rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var cycles []CycleRow
	for rows.Next() {
		var c CycleRow
		if err := rows.Scan(
			&c.SessionID, &c.CycleIndex, &c.MaskTimestampNs,
			&c.Drained, &c.Classified, &c.Passed, &c.Evicted, &c.DurationUs, &c.CreatedAtNs,
		); err != nil {
			return nil, err
		}
		cycles = append(cycles, c)
	}
	return cycles, rows.Err()
}

// RecentConfidences returns the confidence and decision of up to limit POI
// outcomes, newest first. Feeds the summary statistics endpoint.
func (db *DB) RecentConfidences(limit int) (confidences []float64, drivable []bool, err error) {
	rows, err := db.Query(`
		SELECT confidence, drivable
		FROM poi_events ORDER BY event_rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var c float64
		var d int
		if err := rows.Scan(&c, &d); err != nil {
			return nil, nil, err
		}
		confidences = append(confidences, c)
		drivable = append(drivable, d != 0)
	}
	return confidences, drivable, rows.Err()
}
