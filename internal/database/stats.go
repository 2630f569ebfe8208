package database

import (
	"context"
	"time"

	"thumbnail-gallery/internal/metrics"
)

// Stats implements metrics.StatsProvider.
func (d *Database) Stats(ctx context.Context) (stats metrics.Stats, err error) {
	start := time.Now()
	defer func() { recordQuery("stats", start, err) }()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	err = d.db.QueryRowContext(ctx, `
		SELECT
			(SELECT COUNT(*) FROM images),
			(SELECT COUNT(*) FROM images WHERE image_order IS NULL),
			(SELECT COUNT(*) FROM folders)`,
	).Scan(&stats.Images, &stats.PendingImages, &stats.Folders)
	if err != nil {
		return stats, err
	}

	rows, err := d.db.QueryContext(ctx, "SELECT tier, COUNT(*) FROM thumbnails GROUP BY tier")
	if err != nil {
		return stats, err
	}
	defer rows.Close()

	stats.Thumbnails = make(map[string]int)
	for rows.Next() {
		var (
			tier string
			n    int
		)
		if err = rows.Scan(&tier, &n); err != nil {
			return stats, err
		}
		stats.Thumbnails[tier] = n
	}
	err = rows.Err()

	d.UpdateDBMetrics()
	return stats, err
}
