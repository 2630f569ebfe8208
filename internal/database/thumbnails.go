package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"thumbnail-gallery/internal/media"
)

// ThumbnailsPage returns ordered thumbnails of one tier in a folder.
func (d *Database) ThumbnailsPage(ctx context.Context, folderID int64, tier media.Tier, limit, offset int) ([]Thumbnail, error) {
	return d.listThumbnails(ctx, "thumbnails_page", `
		SELECT t.id, t.image_id, t.tier, t.data, t.thumbnail_order
		FROM thumbnails t
		JOIN images i ON i.id = t.image_id
		WHERE i.folder_id = ? AND t.tier = ? AND t.thumbnail_order IS NOT NULL
		ORDER BY t.thumbnail_order, t.image_id
		LIMIT ? OFFSET ?`,
		folderID, string(tier), limit, offset)
}

// SaveThumbnails upserts thumbnails of an image that already has an order,
// stamping them with that order.
func (d *Database) SaveThumbnails(ctx context.Context, imageID int64, thumbs []NewThumbnail) (saved []Thumbnail, err error) {
	err = d.withTx(ctx, "save_thumbnails", func(tx *sql.Tx) error {
		var order sql.NullInt64
		err := tx.QueryRowContext(ctx,
			d.dialect.rebind("SELECT image_order FROM images WHERE id = ?"), imageID,
		).Scan(&order)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("image %d: %w", imageID, ErrNotFound)
		}
		if err != nil {
			return err
		}
		if !order.Valid {
			return fmt.Errorf("image %d has no order", imageID)
		}
		saved, err = d.upsertThumbnails(ctx, tx, imageID, order.Int64, thumbs)
		return err
	})
	if err != nil {
		return nil, err
	}
	return saved, nil
}

func (d *Database) upsertThumbnails(ctx context.Context, tx *sql.Tx, imageID, order int64, thumbs []NewThumbnail) ([]Thumbnail, error) {
	upsert, err := tx.PrepareContext(ctx, d.dialect.rebind(`
		INSERT INTO thumbnails (image_id, tier, data, thumbnail_order) VALUES (?, ?, ?, ?)
		ON CONFLICT (image_id, tier) DO UPDATE SET data = excluded.data, thumbnail_order = excluded.thumbnail_order
		RETURNING id`))
	if err != nil {
		return nil, err
	}
	defer upsert.Close()

	saved := make([]Thumbnail, 0, len(thumbs))
	for _, t := range thumbs {
		th := Thumbnail{ImageID: imageID, Tier: t.Tier, Data: t.Data, Order: order}
		if err := upsert.QueryRowContext(ctx, imageID, string(t.Tier), t.Data, order).Scan(&th.ID); err != nil {
			return nil, fmt.Errorf("save %s thumbnail: %w", t.Tier, err)
		}
		saved = append(saved, th)
	}
	return saved, nil
}

// ThumbnailsByImage returns every stored tier of an image.
func (d *Database) ThumbnailsByImage(ctx context.Context, imageID int64) ([]Thumbnail, error) {
	return d.listThumbnails(ctx, "thumbnails_by_image", `
		SELECT id, image_id, tier, data, COALESCE(thumbnail_order, -1)
		FROM thumbnails WHERE image_id = ? ORDER BY id`,
		imageID)
}

func (d *Database) listThumbnails(ctx context.Context, operation, query string, args ...any) (thumbs []Thumbnail, err error) {
	start := time.Now()
	defer func() { recordQuery(operation, start, err) }()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	rows, err := d.db.QueryContext(ctx, d.dialect.rebind(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var (
			t    Thumbnail
			tier string
		)
		if err = rows.Scan(&t.ID, &t.ImageID, &tier, &t.Data, &t.Order); err != nil {
			return nil, err
		}
		t.Tier = media.Tier(tier)
		thumbs = append(thumbs, t)
	}
	err = rows.Err()
	return thumbs, err
}

// ImagesMissingTiers lists images that lack at least one of tiers.
func (d *Database) ImagesMissingTiers(ctx context.Context, tiers []media.Tier) (missing []MissingThumbnails, err error) {
	start := time.Now()
	defer func() { recordQuery("images_missing_tiers", start, err) }()

	ctx, cancel := context.WithTimeout(ctx, txTimeout)
	defer cancel()

	rows, err := d.db.QueryContext(ctx, `
		SELECT i.id, i.folder_id, i.image_order, t.tier
		FROM images i
		LEFT JOIN thumbnails t ON t.image_id = i.id
		ORDER BY i.id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var (
		current MissingThumbnails
		have    map[media.Tier]bool
		started bool
	)
	flush := func() {
		if !started {
			return
		}
		for _, tier := range tiers {
			if !have[tier] {
				current.Tiers = append(current.Tiers, tier)
			}
		}
		if len(current.Tiers) > 0 {
			missing = append(missing, current)
		}
	}

	for rows.Next() {
		var (
			ref   ImageRef
			order sql.NullInt64
			tier  sql.NullString
		)
		if err = rows.Scan(&ref.ID, &ref.FolderID, &order, &tier); err != nil {
			return nil, err
		}
		if !started || ref.ID != current.Image.ID {
			flush()
			ref.Order = nullableOrder(order)
			current = MissingThumbnails{Image: ref}
			have = make(map[media.Tier]bool, len(tiers))
			started = true
		}
		if tier.Valid {
			have[media.Tier(tier.String)] = true
		}
	}
	if err = rows.Err(); err != nil {
		return nil, err
	}
	flush()
	return missing, nil
}
