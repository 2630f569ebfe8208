package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// SaveImage stores an upload without an order and returns its id. A folder
// that no longer exists yields ErrNotFound.
func (d *Database) SaveImage(ctx context.Context, data []byte, folderID int64) (id int64, err error) {
	err = d.withTx(ctx, "save_image", func(tx *sql.Tx) error {
		if err := d.requireFolderTx(ctx, tx, folderID); err != nil {
			return err
		}
		err := tx.QueryRowContext(ctx,
			d.dialect.rebind("INSERT INTO images (data, folder_id) VALUES (?, ?) RETURNING id"),
			data, folderID,
		).Scan(&id)
		if err != nil {
			return fmt.Errorf("failed to save image: %w", err)
		}
		return nil
	})
	return id, err
}

// FindImage returns an image with its data.
func (d *Database) FindImage(ctx context.Context, id int64) (img *Image, err error) {
	start := time.Now()
	defer func() { recordQuery("find_image", start, err) }()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	var (
		order     sql.NullInt64
		createdAt int64
	)
	img = &Image{}
	err = d.db.QueryRowContext(ctx,
		d.dialect.rebind("SELECT id, folder_id, image_order, data, created_at FROM images WHERE id = ?"),
		id,
	).Scan(&img.ID, &img.FolderID, &order, &img.Data, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("image %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	img.Order = nullableOrder(order)
	img.CreatedAt = time.Unix(createdAt, 0)
	return img, nil
}

// FindImages returns the images with the given ids that exist, with data,
// ordered by id.
func (d *Database) FindImages(ctx context.Context, ids []int64) (imgs []Image, err error) {
	if len(ids) == 0 {
		return nil, nil
	}

	start := time.Now()
	defer func() { recordQuery("find_images", start, err) }()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	filter, args := d.dialect.idsFilter("id", ids)
	rows, err := d.db.QueryContext(ctx,
		d.dialect.rebind("SELECT id, folder_id, image_order, data, created_at FROM images WHERE "+filter+" ORDER BY id"),
		args...,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var (
			img       Image
			order     sql.NullInt64
			createdAt int64
		)
		if err = rows.Scan(&img.ID, &img.FolderID, &order, &img.Data, &createdAt); err != nil {
			return nil, err
		}
		img.Order = nullableOrder(order)
		img.CreatedAt = time.Unix(createdAt, 0)
		imgs = append(imgs, img)
	}
	err = rows.Err()
	return imgs, err
}

// ImageRef returns an image's folder and order without its data.
func (d *Database) ImageRef(ctx context.Context, id int64) (ref ImageRef, err error) {
	start := time.Now()
	defer func() { recordQuery("image_ref", start, err) }()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	var order sql.NullInt64
	err = d.db.QueryRowContext(ctx,
		d.dialect.rebind("SELECT id, folder_id, image_order FROM images WHERE id = ?"),
		id,
	).Scan(&ref.ID, &ref.FolderID, &order)
	if errors.Is(err, sql.ErrNoRows) {
		return ImageRef{}, fmt.Errorf("image %d: %w", id, ErrNotFound)
	}
	ref.Order = nullableOrder(order)
	return ref, err
}

// ImagesInFolder lists every image in a folder, ordered ones first.
func (d *Database) ImagesInFolder(ctx context.Context, folderID int64) ([]ImageRef, error) {
	return d.listRefs(ctx, "images_in_folder",
		"SELECT id, folder_id, image_order FROM images WHERE folder_id = ? ORDER BY image_order IS NULL, image_order, id",
		folderID)
}

// OrderedImagesInFolder lists the images of a folder that have an order,
// sorted by order then id.
func (d *Database) OrderedImagesInFolder(ctx context.Context, folderID int64) ([]ImageRef, error) {
	return d.listRefs(ctx, "ordered_images_in_folder",
		"SELECT id, folder_id, image_order FROM images WHERE folder_id = ? AND image_order IS NOT NULL ORDER BY image_order, id",
		folderID)
}

func (d *Database) listRefs(ctx context.Context, operation, query string, args ...any) (refs []ImageRef, err error) {
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
			ref   ImageRef
			order sql.NullInt64
		)
		if err = rows.Scan(&ref.ID, &ref.FolderID, &order); err != nil {
			return nil, err
		}
		ref.Order = nullableOrder(order)
		refs = append(refs, ref)
	}
	err = rows.Err()
	return refs, err
}

// CountImagesInFolder counts all images in a folder, including ones still
// being processed.
func (d *Database) CountImagesInFolder(ctx context.Context, folderID int64) (n int, err error) {
	start := time.Now()
	defer func() { recordQuery("count_images", start, err) }()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	err = d.db.QueryRowContext(ctx,
		d.dialect.rebind("SELECT COUNT(*) FROM images WHERE folder_id = ?"), folderID,
	).Scan(&n)
	return n, err
}

// MaxImageOrder returns the highest order in a folder. ok is false when no
// image in the folder has an order.
func (d *Database) MaxImageOrder(ctx context.Context, folderID int64) (max int64, ok bool, err error) {
	start := time.Now()
	defer func() { recordQuery("max_image_order", start, err) }()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	var v sql.NullInt64
	err = d.db.QueryRowContext(ctx,
		d.dialect.rebind("SELECT MAX(image_order) FROM images WHERE folder_id = ?"), folderID,
	).Scan(&v)
	if err != nil {
		return 0, false, err
	}
	return v.Int64, v.Valid, nil
}

// DeleteImage removes an image and its thumbnails in one transaction and
// returns the folder it was in.
func (d *Database) DeleteImage(ctx context.Context, id int64) (folderID int64, err error) {
	err = d.withTx(ctx, "delete_image", func(tx *sql.Tx) error {
		err := tx.QueryRowContext(ctx,
			d.dialect.rebind("SELECT folder_id FROM images WHERE id = ?"), id,
		).Scan(&folderID)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("image %d: %w", id, ErrNotFound)
		}
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, d.dialect.rebind("DELETE FROM thumbnails WHERE image_id = ?"), id); err != nil {
			return fmt.Errorf("delete thumbnails: %w", err)
		}
		if _, err := tx.ExecContext(ctx, d.dialect.rebind("DELETE FROM images WHERE id = ?"), id); err != nil {
			return fmt.Errorf("delete image: %w", err)
		}
		return nil
	})
	return folderID, err
}

// CompleteImage sets the order of an image that is still in folderID and
// has no order yet, and upserts its thumbnails with the same order,
// atomically. Thumbnails already stored for other tiers are brought to the
// same order. ErrConflict is returned when the image was moved or ordered
// in the meantime.
func (d *Database) CompleteImage(ctx context.Context, imageID, folderID, order int64, thumbs []NewThumbnail) (saved []Thumbnail, err error) {
	err = d.withTx(ctx, "complete_image", func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			d.dialect.rebind("UPDATE images SET image_order = ? WHERE id = ? AND folder_id = ? AND image_order IS NULL"),
			order, imageID, folderID)
		if err != nil {
			return fmt.Errorf("update image order: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			var current int64
			err := tx.QueryRowContext(ctx,
				d.dialect.rebind("SELECT folder_id FROM images WHERE id = ?"), imageID,
			).Scan(&current)
			if errors.Is(err, sql.ErrNoRows) {
				return fmt.Errorf("image %d: %w", imageID, ErrNotFound)
			}
			if err != nil {
				return err
			}
			return fmt.Errorf("image %d (now in folder %d): %w", imageID, current, ErrConflict)
		}

		if saved, err = d.upsertThumbnails(ctx, tx, imageID, order, thumbs); err != nil {
			return err
		}

		_, err = tx.ExecContext(ctx,
			d.dialect.rebind("UPDATE thumbnails SET thumbnail_order = ? WHERE image_id = ?"), order, imageID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return saved, nil
}

// MoveImage moves an image from one folder to another with a new order,
// updating its thumbnails in the same transaction. ErrNotFound is returned
// when the image is not in fromFolder.
func (d *Database) MoveImage(ctx context.Context, imageID, fromFolder, toFolder, order int64) error {
	return d.withTx(ctx, "move_image", func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			d.dialect.rebind("UPDATE images SET folder_id = ?, image_order = ? WHERE id = ? AND folder_id = ?"),
			toFolder, order, imageID, fromFolder)
		if err != nil {
			return fmt.Errorf("move image: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return fmt.Errorf("image %d in folder %d: %w", imageID, fromFolder, ErrNotFound)
		}
		_, err = tx.ExecContext(ctx,
			d.dialect.rebind("UPDATE thumbnails SET thumbnail_order = ? WHERE image_id = ?"), order, imageID)
		return err
	})
}

// RenumberImages assigns orders 0..len(ids)-1 to ids, in sequence, on both
// images and thumbnails. Ids no longer in folderID are skipped without
// consuming a number.
func (d *Database) RenumberImages(ctx context.Context, folderID int64, ids []int64) (assigned int64, err error) {
	err = d.withTx(ctx, "renumber_images", func(tx *sql.Tx) error {
		updImage, err := tx.PrepareContext(ctx,
			d.dialect.rebind("UPDATE images SET image_order = ? WHERE id = ? AND folder_id = ?"))
		if err != nil {
			return err
		}
		defer updImage.Close()

		updThumbs, err := tx.PrepareContext(ctx,
			d.dialect.rebind("UPDATE thumbnails SET thumbnail_order = ? WHERE image_id = ?"))
		if err != nil {
			return err
		}
		defer updThumbs.Close()

		assigned = 0
		for _, id := range ids {
			res, err := updImage.ExecContext(ctx, assigned, id, folderID)
			if err != nil {
				return fmt.Errorf("renumber image %d: %w", id, err)
			}
			if n, _ := res.RowsAffected(); n == 0 {
				continue
			}
			if _, err := updThumbs.ExecContext(ctx, assigned, id); err != nil {
				return fmt.Errorf("renumber thumbnails of %d: %w", id, err)
			}
			assigned++
		}
		return nil
	})
	return assigned, err
}
