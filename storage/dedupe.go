package storage

import (
	"infortic-scraper/models"
	"infortic-scraper/utils"
)

// Dedupe drops in-batch duplicates by natural key, keeping the first
// occurrence and the original order. Records without a derivable key are
// reported as row errors instead of being returned.
func Dedupe(spec models.TableSpec, batch models.Batch) ([]models.Record, []models.RowError) {
	unique, _, rowErrs := dedupe(spec, batch)
	return unique, rowErrs
}

// dedupe also returns the batch index of every kept record so backend row
// errors can be reported against the caller's positions.
func dedupe(spec models.TableSpec, batch models.Batch) ([]models.Record, []int, []models.RowError) {
	seen := utils.NewKeySet()
	unique := make([]models.Record, 0, len(batch))
	indexes := make([]int, 0, len(batch))
	var rowErrs []models.RowError

	for i, r := range batch {
		key, ok := spec.Key(r)
		if !ok {
			rowErrs = append(rowErrs, models.RowError{
				Index:   i,
				Message: "record has no natural key",
			})
			continue
		}
		if !seen.Add(key) {
			continue
		}
		unique = append(unique, r)
		indexes = append(indexes, i)
	}
	return unique, indexes, rowErrs
}
