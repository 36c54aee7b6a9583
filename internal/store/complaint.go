package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/civicgrid/complaintd/internal/model"
)

// UpsertComplaint inserts or replaces a cached complaint record.
func (db *DB) UpsertComplaint(c model.Complaint) error {
	attachments, err := json.Marshal(c.Attachments)
	if err != nil {
		return fmt.Errorf("encode attachments: %w", err)
	}
	_, err = db.Exec(`
		INSERT INTO complaints (id, title, description, category, priority, status,
			reporter_name, reporter_email, attachments, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			title = excluded.title,
			description = excluded.description,
			category = excluded.category,
			priority = excluded.priority,
			status = excluded.status,
			reporter_name = excluded.reporter_name,
			reporter_email = excluded.reporter_email,
			attachments = excluded.attachments,
			created_at = excluded.created_at,
			updated_at = excluded.updated_at`,
		c.ID, c.Title, c.Description, string(c.Category), string(c.Priority), string(c.Status),
		c.Reporter.Name, c.Reporter.Email, string(attachments),
		c.CreatedAt.UnixMilli(), c.UpdatedAt.UnixMilli())
	return err
}

// DeleteComplaint removes a cached complaint. Deleting an unknown id is a
// no-op.
func (db *DB) DeleteComplaint(id string) error {
	_, err := db.Exec(`DELETE FROM complaints WHERE id = ?`, id)
	return err
}

// ReplaceComplaints swaps the whole cache for the given list in one
// transaction, mirroring a full-snapshot reconciliation.
func (db *DB) ReplaceComplaints(list []model.Complaint) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(`DELETE FROM complaints`); err != nil {
		return fmt.Errorf("clear cache: %w", err)
	}
	for _, c := range list {
		attachments, err := json.Marshal(c.Attachments)
		if err != nil {
			return fmt.Errorf("encode attachments: %w", err)
		}
		if _, err := tx.Exec(`
			INSERT INTO complaints (id, title, description, category, priority, status,
				reporter_name, reporter_email, attachments, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				title = excluded.title,
				description = excluded.description,
				category = excluded.category,
				priority = excluded.priority,
				status = excluded.status,
				reporter_name = excluded.reporter_name,
				reporter_email = excluded.reporter_email,
				attachments = excluded.attachments,
				created_at = excluded.created_at,
				updated_at = excluded.updated_at`,
			c.ID, c.Title, c.Description, string(c.Category), string(c.Priority), string(c.Status),
			c.Reporter.Name, c.Reporter.Email, string(attachments),
			c.CreatedAt.UnixMilli(), c.UpdatedAt.UnixMilli()); err != nil {
			return fmt.Errorf("insert %s: %w", c.ID, err)
		}
	}
	return tx.Commit()
}

// ListComplaints returns cached complaints newest-first, at most limit.
func (db *DB) ListComplaints(limit int) ([]model.Complaint, error) {
	if limit <= 0 {
		limit = 200
	}
	rows, err := db.Query(`
		SELECT id, title, description, category, priority, status,
			reporter_name, reporter_email, attachments, created_at, updated_at
		FROM complaints
		ORDER BY created_at DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []model.Complaint
	for rows.Next() {
		c, err := scanComplaint(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// GetComplaint returns a single cached complaint, or nil if absent.
func (db *DB) GetComplaint(id string) (*model.Complaint, error) {
	row := db.QueryRow(`
		SELECT id, title, description, category, priority, status,
			reporter_name, reporter_email, attachments, created_at, updated_at
		FROM complaints WHERE id = ?`, id)
	c, err := scanComplaint(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanComplaint(row scanner) (model.Complaint, error) {
	var (
		c                    model.Complaint
		category, priority   string
		status, attachments  string
		createdMs, updatedMs int64
	)
	err := row.Scan(&c.ID, &c.Title, &c.Description, &category, &priority, &status,
		&c.Reporter.Name, &c.Reporter.Email, &attachments, &createdMs, &updatedMs)
	if err != nil {
		return model.Complaint{}, err
	}
	c.Category = model.Category(category)
	c.Priority = model.Priority(priority)
	c.Status = model.Status(status)
	c.CreatedAt = time.UnixMilli(createdMs).UTC()
	c.UpdatedAt = time.UnixMilli(updatedMs).UTC()
	if attachments != "" && attachments != "[]" {
		if err := json.Unmarshal([]byte(attachments), &c.Attachments); err != nil {
			return model.Complaint{}, fmt.Errorf("decode attachments for %s: %w", c.ID, err)
		}
	}
	return c, nil
}
