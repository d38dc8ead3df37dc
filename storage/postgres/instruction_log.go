package postgres

import (
	"context"
	"fmt"

	"github.com/vultisig/dca-plugin/common"
	"github.com/vultisig/dca-plugin/internal/types"
)

func (p *PostgresBackend) RecordInstruction(ctx context.Context, record types.InstructionRecord) error {
	if p.pool == nil {
		return fmt.Errorf("database pool is nil")
	}
	payload := record.Payload
	if len(payload) == 0 {
		payload = []byte("{}")
	}
	_, err := p.pool.Exec(ctx, `
	INSERT INTO instruction_log (action, block_height, correlation, payload)
	VALUES ($1, $2, $3, $4)
	`, record.Action, int64(record.BlockHeight), int64(record.Correlation), payload)
	if err != nil {
		return fmt.Errorf("failed to insert instruction record: %w", err)
	}
	return nil
}

func (p *PostgresBackend) GetInstructionHistory(ctx context.Context, correlation uint64, sort string, take int, skip int) ([]types.InstructionRecord, error) {
	if p.pool == nil {
		return nil, fmt.Errorf("database pool is nil")
	}

	orderBy, orderDirection := common.GetSortingCondition(sort)
	query := fmt.Sprintf(`
	SELECT id, action, block_height, correlation, payload, created_at
	FROM instruction_log
	WHERE correlation = $1
	ORDER BY %s %s, id %s
	LIMIT $2 OFFSET $3`, orderBy, orderDirection, orderDirection)

	rows, err := p.pool.Query(ctx, query, int64(correlation), take, skip)
	if err != nil {
		return nil, fmt.Errorf("failed to query instruction history: %w", err)
	}
	defer rows.Close()

	var records []types.InstructionRecord
	for rows.Next() {
		var (
			record      types.InstructionRecord
			height      int64
			correlation int64
			payload     []byte
		)
		if err := rows.Scan(&record.ID, &record.Action, &height, &correlation, &payload, &record.CreatedAt); err != nil {
			return nil, err
		}
		record.BlockHeight = uint64(height)
		record.Correlation = uint64(correlation)
		record.Payload = payload
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return records, nil
}
