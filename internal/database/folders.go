package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// EnsureFolder returns the id of the folder named name under parentID,
// creating it if needed. Concurrent callers receive the same id. A parent
// that no longer exists yields ErrNotFound.
func (d *Database) EnsureFolder(ctx context.Context, name string, parentID int64) (id int64, err error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return 0, errors.New("folder name cannot be empty")
	}

	start := time.Now()
	defer func() { recordQuery("ensure_folder", start, err) }()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	lookup := d.dialect.rebind("SELECT id FROM folders WHERE name = ? AND parent_id = ?")
	err = d.db.QueryRowContext(ctx, lookup, name, parentID).Scan(&id)
	if err == nil {
		return id, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return 0, err
	}

	err = d.withTx(ctx, "create_folder", func(tx *sql.Tx) error {
		if err := d.requireFolderTx(ctx, tx, parentID); err != nil {
			return err
		}
		return tx.QueryRowContext(ctx,
			d.dialect.rebind("INSERT INTO folders (name, parent_id) VALUES (?, ?) RETURNING id"),
			name, parentID,
		).Scan(&id)
	})

	if errors.Is(err, ErrNotFound) {
		return 0, err
	}
	if isUniqueViolation(err) {
		err = d.db.QueryRowContext(ctx, lookup, name, parentID).Scan(&id)
	}
	if err != nil {
		return 0, fmt.Errorf("failed to create folder %q: %w", name, err)
	}
	return id, nil
}

// FindFolder returns a folder by id.
func (d *Database) FindFolder(ctx context.Context, id int64) (f *Folder, err error) {
	start := time.Now()
	defer func() { recordQuery("find_folder", start, err) }()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	f = &Folder{}
	err = d.db.QueryRowContext(ctx,
		d.dialect.rebind("SELECT id, name, parent_id FROM folders WHERE id = ?"), id,
	).Scan(&f.ID, &f.Name, &f.ParentID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("folder %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return f, nil
}

// requireFolderTx fails with ErrNotFound unless id is the root or a stored
// folder.
func (d *Database) requireFolderTx(ctx context.Context, tx *sql.Tx, id int64) error {
	if id == RootFolderID {
		return nil
	}
	var n int
	err := tx.QueryRowContext(ctx,
		d.dialect.rebind("SELECT COUNT(*) FROM folders WHERE id = ?"), id,
	).Scan(&n)
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("folder %d: %w", id, ErrNotFound)
	}
	return nil
}

// FolderExists reports whether id names the root or a stored folder.
func (d *Database) FolderExists(ctx context.Context, id int64) (bool, error) {
	if id == RootFolderID {
		return true, nil
	}
	_, err := d.FindFolder(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	return err == nil, err
}

// Subfolders lists the direct children of parentID sorted by name.
func (d *Database) Subfolders(ctx context.Context, parentID int64) (folders []Folder, err error) {
	start := time.Now()
	defer func() { recordQuery("subfolders", start, err) }()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	rows, err := d.db.QueryContext(ctx,
		d.dialect.rebind("SELECT id, name, parent_id FROM folders WHERE parent_id = ? ORDER BY name, id"), parentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var f Folder
		if err = rows.Scan(&f.ID, &f.Name, &f.ParentID); err != nil {
			return nil, err
		}
		folders = append(folders, f)
	}
	err = rows.Err()
	return folders, err
}

// ParentID returns the parent of a folder. The root is its own parent.
func (d *Database) ParentID(ctx context.Context, folderID int64) (int64, error) {
	if folderID == RootFolderID {
		return RootFolderID, nil
	}
	f, err := d.FindFolder(ctx, folderID)
	if err != nil {
		return 0, err
	}
	return f.ParentID, nil
}

// DeleteFolder removes a folder without subfolders, together with any
// images and thumbnails still in it, and returns how many images it
// removed. ErrConflict is returned when a subfolder exists.
func (d *Database) DeleteFolder(ctx context.Context, id int64) (removed int64, err error) {
	if id == RootFolderID {
		return 0, errors.New("the root folder cannot be deleted")
	}
	err = d.withTx(ctx, "delete_folder", func(tx *sql.Tx) error {
		var children int
		err := tx.QueryRowContext(ctx,
			d.dialect.rebind("SELECT COUNT(*) FROM folders WHERE parent_id = ?"), id,
		).Scan(&children)
		if err != nil {
			return err
		}
		if children > 0 {
			return fmt.Errorf("folder %d has %d subfolders: %w", id, children, ErrConflict)
		}

		if _, err := tx.ExecContext(ctx, d.dialect.rebind(
			"DELETE FROM thumbnails WHERE image_id IN (SELECT id FROM images WHERE folder_id = ?)"), id); err != nil {
			return fmt.Errorf("delete thumbnails: %w", err)
		}
		res, err := tx.ExecContext(ctx, d.dialect.rebind("DELETE FROM images WHERE folder_id = ?"), id)
		if err != nil {
			return fmt.Errorf("delete images: %w", err)
		}
		removed, _ = res.RowsAffected()

		res, err = tx.ExecContext(ctx, d.dialect.rebind("DELETE FROM folders WHERE id = ?"), id)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return fmt.Errorf("folder %d: %w", id, ErrNotFound)
		}
		return nil
	})
	return removed, err
}

// FolderIDs lists every stored folder id.
func (d *Database) FolderIDs(ctx context.Context) (ids []int64, err error) {
	start := time.Now()
	defer func() { recordQuery("folder_ids", start, err) }()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	rows, err := d.db.QueryContext(ctx, "SELECT id FROM folders ORDER BY id")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var id int64
		if err = rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	err = rows.Err()
	return ids, err
}
