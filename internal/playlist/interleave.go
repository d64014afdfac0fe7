// Package playlist re-sequences playlists to inject commercial clips at a
// fixed cadence and applies commercial configurations against the store.
package playlist

import "samhost/internal/models"

// Interleave walks the main entries in order and, after every interval-th
// main video, appends quantity commercials drawn round-robin from the pool.
// Positions in the returned list are renumbered zero-based to the final play
// order. Existing entries are returned position-updated; injected commercials
// are new entries with no ID.
//
// The function is pure. When the pool or the main list is empty, or the
// parameters are non-positive, the main list is returned unchanged. Callers
// re-applying a configuration must strip previously injected commercials
// first; with that precondition the function is idempotent in its inputs.
func Interleave(main []models.PlaylistEntry, pool []models.Video, quantity, interval int) []models.PlaylistEntry {
	if len(main) == 0 || len(pool) == 0 || quantity < 1 || interval < 1 {
		return main
	}

	out := make([]models.PlaylistEntry, 0, len(main)+(len(main)/interval)*quantity)
	position := 0
	poolIndex := 0

	for i, entry := range main {
		entry.Position = position
		position++
		out = append(out, entry)

		if (i+1)%interval != 0 {
			continue
		}
		for j := 0; j < quantity; j++ {
			commercial := pool[poolIndex%len(pool)]
			poolIndex++
			out = append(out, models.PlaylistEntry{
				PlaylistID: entry.PlaylistID,
				VideoID:    commercial.ID,
				Position:   position,
				Kind:       models.EntryCommercial,
			})
			position++
		}
	}
	return out
}
