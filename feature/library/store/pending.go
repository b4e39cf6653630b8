package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"library-sync/feature/library/models"

	"gorm.io/gorm"
)

// PendingWrite is the journaled latest local write of a record. Writes counts
// the local writes coalesced into it since the last acknowledgment.
type PendingWrite struct {
	ID     string
	Op     Op
	Record models.Record
	Seq    int64
	Writes int
}

// PendingWrites returns the journaled writes not yet acknowledged, oldest first.
func (s *Store) PendingWrites(ctx context.Context) ([]PendingWrite, error) {
	var rows []models.PendingRow
	if err := s.db.WithContext(ctx).Order("seq").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to read pending writes: %w", err)
	}
	out := make([]PendingWrite, 0, len(rows))
	for _, row := range rows {
		rec := row.Record
		rec.ID = row.RecordID
		out = append(out, PendingWrite{ID: row.RecordID, Op: Op(row.Op), Record: rec, Seq: row.Seq, Writes: row.Writes})
	}
	return out, nil
}

// AckPending acknowledges the write of id journaled at seq. When a newer write
// replaced it, the entry stays with the acknowledged writes subtracted.
func (s *Store) AckPending(ctx context.Context, id string, seq int64, writes int) error {
	return s.policy.Do(ctx, func(ctx context.Context) error {
		return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			res := tx.Where("record_id = ? AND seq = ?", id, seq).Delete(&models.PendingRow{})
			if res.Error != nil || res.RowsAffected > 0 {
				return res.Error
			}
			return tx.Model(&models.PendingRow{}).
				Where("record_id = ? AND writes > ?", id, writes).
				UpdateColumn("writes", gorm.Expr("writes - ?", writes)).Error
		})
	})
}

// journal records a local write in tx so it survives until acknowledged.
func (s *Store) journal(tx *gorm.DB, op Op, rec models.Record) (int64, error) {
	var prev models.PendingRow
	err := tx.Where("record_id = ?", rec.ID).Take(&prev).Error
	found := err == nil
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, err
	}

	row := models.PendingRow{RecordID: rec.ID, Op: string(op), Record: rec, Seq: s.nextSeq(), Writes: 1}
	if found {
		row.Writes = prev.Writes + 1
		return row.Seq, tx.Save(&row).Error
	}
	return row.Seq, tx.Create(&row).Error
}

// nextSeq returns a journal sequence greater than any issued before, including
// those persisted by earlier runs.
func (s *Store) nextSeq() int64 {
	s.seqMu.Lock()
	defer s.seqMu.Unlock()
	n := time.Now().UnixNano()
	if n <= s.lastSeq {
		n = s.lastSeq + 1
	}
	s.lastSeq = n
	return n
}
