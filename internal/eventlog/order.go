package eventlog

import (
	"sort"

	"github.com/kaoriishige/adtown-ishige-sub000/pkg/db/models"
)

// SortForReplay orders events by occurrence time. Events sharing a timestamp
// run lowest precedence first so the highest precedence kind lands last.
func SortForReplay(rows []models.BillingEvent) {
	sort.SliceStable(rows, func(i, j int) bool {
		a, b := rows[i], rows[j]
		if !a.OccurredAt.Equal(b.OccurredAt) {
			return a.OccurredAt.Before(b.OccurredAt)
		}
		return a.Kind.Precedence() < b.Kind.Precedence()
	})
}
