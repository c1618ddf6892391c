package postgres

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/polkiloo/shiftclose/internal/domain/model"
)

type packInventory struct {
	storage *Storage
}

// Packs returns the requested packs keyed by pack id. Unknown ids are absent from the map.
func (r *packInventory) Packs(ctx context.Context, storeID string, packIDs []string) (map[string]model.Pack, error) {
	const query = `SELECT pack_id, game, status, ticket_count, current_serial, ticket_price::text
                   FROM lottery_packs WHERE store_id=$1 AND pack_id = ANY($2)`
	rows, err := r.storage.pool.Query(ctx, query, storeID, packIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make(map[string]model.Pack, len(packIDs))
	for rows.Next() {
		var (
			p     model.Pack
			price string
		)
		if err := rows.Scan(&p.PackID, &p.Game, &p.Status, &p.TicketCount, &p.CurrentSerial, &price); err != nil {
			return nil, err
		}
		if p.TicketPrice, err = decimal.NewFromString(price); err != nil {
			return nil, fmt.Errorf("decode ticket price of pack %s: %w", p.PackID, err)
		}
		result[p.PackID] = p
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}
