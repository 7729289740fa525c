package journal

import "time"

// ListTrades returns up to limit trade records for the account, most
// recent execution first. limit <= 0 means no bound.
func (j *SQLite) ListTrades(accountID string, limit int) ([]TradeRecord, error) {
	q := `
		SELECT trade_id, account_id, order_id, symbol, side, quantity, price, fee, total, executed_at
		FROM trades
		WHERE account_id = ?
		ORDER BY executed_at DESC, trade_id DESC`
	args := []any{accountID}
	if limit > 0 {
		q += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := j.db.Query(q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []TradeRecord
	for rows.Next() {
		var rec TradeRecord
		if err := rows.Scan(
			&rec.TradeID,
			&rec.AccountID,
			&rec.OrderID,
			&rec.Symbol,
			&rec.Side,
			&rec.Quantity,
			&rec.Price,
			&rec.Fee,
			&rec.Total,
			&rec.ExecutedAt,
		); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// ListEquityBetween returns equity samples for the account with time in
// [start, end), oldest first.
func (j *SQLite) ListEquityBetween(accountID string, start, end time.Time) ([]EquitySnapshot, error) {
	rows, err := j.db.Query(`
		SELECT account_id, time, cash, equity, drawdown
		FROM equity
		WHERE account_id = ? AND time >= ? AND time < ?
		ORDER BY time ASC`, accountID, start, end)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []EquitySnapshot
	for rows.Next() {
		var rec EquitySnapshot
		if err := rows.Scan(&rec.AccountID, &rec.Time, &rec.Cash, &rec.Equity, &rec.Drawdown); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}
