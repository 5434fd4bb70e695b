package transaction

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/omarshaarawi/rosterbot/internal/models"
)

var originSeq atomic.Int64

// BatchKey correlates every transaction created by one submission.
func BatchKey(season, week int, originSeq int64, now time.Time) string {
	return fmt.Sprintf("Season-%03d-Week-%02d-%d-%d", season, week, originSeq, now.Unix())
}

// NewBatchKey draws the next origin sequence, so no two submissions in this
// process share a key even within the same second.
func NewBatchKey(season, week int, now time.Time) string {
	return BatchKey(season, week, originSeq.Add(1), now)
}

type Batch struct {
	Key     string
	Week    int
	Season  int
	OwnerID int64
	Frozen  bool
}

// Finalize stamps each move with the batch, one transaction per move.
func (b Batch) Finalize(moves []models.Move) []models.FinalizedTransaction {
	txs := make([]models.FinalizedTransaction, len(moves))
	for i, m := range moves {
		txs[i] = models.FinalizedTransaction{
			Week:         b.Week,
			Season:       b.Season,
			MoveBatchKey: b.Key,
			Player:       m.Player,
			FromTeam:     m.FromTeam(),
			ToTeam:       m.ToTeam(),
			OwnerID:      b.OwnerID,
			Frozen:       b.Frozen,
		}
	}
	return txs
}
