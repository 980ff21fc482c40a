package store

import "time"

// SaveSnapshot inserts or replaces the snapshot for s.Key.
func (db *DB) SaveSnapshot(s *Snapshot) error {
	if s.UpdatedAt == 0 {
		s.UpdatedAt = time.Now().UnixMilli()
	}
	_, err := db.Exec(`
		INSERT INTO query_cache (key, phone_number_id, participant, data, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			data = excluded.data,
			updated_at = excluded.updated_at`,
		s.Key, s.PhoneNumberID, s.Participant, s.Data, s.UpdatedAt)
	return err
}

// LoadSnapshots returns every stored snapshot, most recently updated first.
func (db *DB) LoadSnapshots() ([]Snapshot, error) {
	rows, err := db.Query(`
		SELECT key, phone_number_id, participant, data, updated_at
		FROM query_cache ORDER BY updated_at DESC`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []Snapshot
	for rows.Next() {
		var s Snapshot
		if err := rows.Scan(&s.Key, &s.PhoneNumberID, &s.Participant, &s.Data, &s.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// DeleteSnapshot removes the snapshot for key. Missing keys are not an error.
func (db *DB) DeleteSnapshot(key string) error {
	_, err := db.Exec(`DELETE FROM query_cache WHERE key = ?`, key)
	return err
}
