package postgres

import (
	"context"
	"fmt"

	"truek-settlement/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// TradeMessageRepo implements ports.TradeMessageRepository.
type TradeMessageRepo struct {
	pool Pool
}

// NewTradeMessageRepo creates a new TradeMessageRepo.
func NewTradeMessageRepo(pool Pool) *TradeMessageRepo {
	return &TradeMessageRepo{pool: pool}
}

// Create inserts a trade message within a transaction.
func (r *TradeMessageRepo) Create(ctx context.Context, tx pgx.Tx, m *domain.TradeMessage) error {
	query := `INSERT INTO trade_messages (id, trade_id, sender_id, body, created_at) VALUES ($1, $2, $3, $4, $5)`

	if _, err := tx.Exec(ctx, query, m.ID, m.TradeID, m.SenderID, m.Body, m.CreatedAt); err != nil {
		return fmt.Errorf("insert trade message: %w", err)
	}
	return nil
}

// ListByTrade returns a trade's messages, oldest first.
func (r *TradeMessageRepo) ListByTrade(ctx context.Context, tradeID uuid.UUID) ([]*domain.TradeMessage, error) {
	query := `SELECT id, trade_id, sender_id, body, created_at FROM trade_messages
		WHERE trade_id = $1 ORDER BY created_at ASC, id ASC`

	rows, err := r.pool.Query(ctx, query, tradeID)
	if err != nil {
		return nil, fmt.Errorf("list trade messages: %w", err)
	}
	defer rows.Close()

	var msgs []*domain.TradeMessage
	for rows.Next() {
		var m domain.TradeMessage
		if err := rows.Scan(&m.ID, &m.TradeID, &m.SenderID, &m.Body, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan trade message: %w", err)
		}
		msgs = append(msgs, &m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate trade messages: %w", err)
	}
	return msgs, nil
}
