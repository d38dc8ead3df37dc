package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/vultisig/dca-plugin/common"
	"github.com/vultisig/dca-plugin/internal/types"
)

type MemoryInstructionLog struct {
	mu      sync.Mutex
	records []types.InstructionRecord
}

var _ InstructionLog = (*MemoryInstructionLog)(nil)

func NewMemoryInstructionLog() *MemoryInstructionLog {
	return &MemoryInstructionLog{}
}

func (l *MemoryInstructionLog) RecordInstruction(_ context.Context, record types.InstructionRecord) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	record.ID = int64(len(l.records) + 1)
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now().UTC()
	}
	l.records = append(l.records, record)
	return nil
}

// GetInstructionHistory returns matching records ordered like the SQL
// backend, newest first by default.
func (l *MemoryInstructionLog) GetInstructionHistory(_ context.Context, correlation uint64, sortBy string, take int, skip int) ([]types.InstructionRecord, error) {
	l.mu.Lock()
	matched := make([]types.InstructionRecord, 0)
	for _, r := range l.records {
		if r.Correlation == correlation {
			matched = append(matched, r)
		}
	}
	l.mu.Unlock()

	orderBy, orderDirection := common.GetSortingCondition(sortBy)
	less := func(a, b types.InstructionRecord) bool {
		switch orderBy {
		case "block_height":
			if a.BlockHeight != b.BlockHeight {
				return a.BlockHeight < b.BlockHeight
			}
		case "created_at":
			if !a.CreatedAt.Equal(b.CreatedAt) {
				return a.CreatedAt.Before(b.CreatedAt)
			}
		}
		return a.ID < b.ID
	}
	sort.SliceStable(matched, func(i, j int) bool {
		if orderDirection == "DESC" {
			return less(matched[j], matched[i])
		}
		return less(matched[i], matched[j])
	})

	if skip < 0 {
		skip = 0
	}
	if skip >= len(matched) {
		return []types.InstructionRecord{}, nil
	}
	matched = matched[skip:]
	if take > 0 && take < len(matched) {
		matched = matched[:take]
	}
	return matched, nil
}
