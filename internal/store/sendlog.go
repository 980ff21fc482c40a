package store

import "time"

// RecordSend journals a send as pending before it is submitted.
func (db *DB) RecordSend(speculativeID, phoneNumberID, participant, body string) error {
	now := time.Now().UnixMilli()
	_, err := db.Exec(`
		INSERT INTO send_log (speculative_id, phone_number_id, participant, body, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, 'pending', ?, ?)`,
		speculativeID, phoneNumberID, participant, body, now, now)
	return err
}

// MarkSendReconciled records the server id a pending send was replaced with.
func (db *DB) MarkSendReconciled(speculativeID, serverMsgID string) error {
	now := time.Now().UnixMilli()
	_, err := db.Exec(`UPDATE send_log SET status = 'reconciled', server_msg_id = ?, updated_at = ? WHERE speculative_id = ?`,
		serverMsgID, now, speculativeID)
	return err
}

// MarkSendRolledBack records why a send failed.
func (db *DB) MarkSendRolledBack(speculativeID, errMsg string) error {
	now := time.Now().UnixMilli()
	_, err := db.Exec(`UPDATE send_log SET status = 'rolled_back', error_message = ?, updated_at = ? WHERE speculative_id = ?`,
		errMsg, now, speculativeID)
	return err
}

// AbandonPending marks sends left pending by a previous run. Their outcome
// is unknown; the next refetch shows whether the server has them.
func (db *DB) AbandonPending() (int64, error) {
	now := time.Now().UnixMilli()
	res, err := db.Exec(`UPDATE send_log SET status = 'abandoned', updated_at = ? WHERE status = 'pending'`, now)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// ListSends returns the most recent journal entries, newest first.
func (db *DB) ListSends(limit int) ([]SendEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := db.Query(`
		SELECT id, speculative_id, phone_number_id, participant, body, status,
			server_msg_id, error_message, created_at, updated_at
		FROM send_log ORDER BY created_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []SendEntry
	for rows.Next() {
		var e SendEntry
		if err := rows.Scan(&e.ID, &e.SpeculativeID, &e.PhoneNumberID, &e.Participant, &e.Body, &e.Status,
			&e.ServerMsgID, &e.ErrorMessage, &e.CreatedAt, &e.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
