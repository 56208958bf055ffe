package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/sandeepkv93/taskd/internal/model"
)

const sqliteTimeLayout = time.RFC3339Nano

type SQLiteRepository struct {
	db *sql.DB
}

func NewSQLiteRepository(db *sql.DB) (*SQLiteRepository, error) {
	if db == nil {
		return nil, errors.New("storage: nil db")
	}
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}
	return &SQLiteRepository{db: db}, nil
}

// OpenSQLite opens path, applies migrations and returns a ready repository.
func OpenSQLite(path string) (*SQLiteRepository, error) {
	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// SQLite serializes writers; a single connection avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)
	if err := MigrateUp(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	repo, err := NewSQLiteRepository(db)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return repo, nil
}

func (r *SQLiteRepository) Close() error {
	return r.db.Close()
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (r *SQLiteRepository) SaveTemplate(ctx context.Context, tpl *model.TaskTemplate) error {
	return saveTemplate(ctx, r.db, tpl)
}

func saveTemplate(ctx context.Context, db execer, tpl *model.TaskTemplate) error {
	payload, err := json.Marshal(tpl.Snapshot())
	if err != nil {
		return fmt.Errorf("encode template %s: %w", tpl.ID(), err)
	}
	_, err = db.ExecContext(ctx, `
		INSERT INTO templates (id, title, status, payload, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			title = excluded.title,
			status = excluded.status,
			payload = excluded.payload,
			updated_at = excluded.updated_at`,
		tpl.ID(), tpl.Title(), string(tpl.Status()), string(payload),
		mustTime(tpl.CreatedAt()), mustTime(tpl.UpdatedAt()),
	)
	if err != nil {
		return fmt.Errorf("save template %s: %w", tpl.ID(), err)
	}
	return nil
}

func (r *SQLiteRepository) GetTemplate(ctx context.Context, id string) (*model.TaskTemplate, error) {
	row := r.db.QueryRowContext(ctx, `SELECT payload FROM templates WHERE id = ?`, id)
	tpl, err := scanTemplate(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return tpl, nil
}

func (r *SQLiteRepository) DeleteTemplate(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM templates WHERE id = ?`, id)
	if err != nil {
		return err
	}
	return checkRowsAffected(res)
}

func (r *SQLiteRepository) ListTemplates(ctx context.Context, filter TemplateListFilter) ([]*model.TaskTemplate, error) {
	query := `SELECT payload FROM templates`
	args := make([]any, 0, len(filter.Statuses)+2)
	if len(filter.Statuses) > 0 {
		query += ` WHERE status IN (` + placeholders(len(filter.Statuses)) + `)`
		for _, s := range filter.Statuses {
			args = append(args, string(s))
		}
	}
	query += ` ORDER BY created_at ASC, id ASC`
	query += applyPagination(&args, filter.Limit, filter.Offset)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]*model.TaskTemplate, 0)
	for rows.Next() {
		tpl, scanErr := scanTemplate(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		out = append(out, tpl)
	}
	return out, rows.Err()
}

func (r *SQLiteRepository) SaveInstance(ctx context.Context, inst *model.TaskInstance) error {
	return saveInstance(ctx, r.db, inst)
}

func saveInstance(ctx context.Context, db execer, inst *model.TaskInstance) error {
	payload, err := json.Marshal(inst.Snapshot())
	if err != nil {
		return fmt.Errorf("encode instance %s: %w", inst.ID(), err)
	}
	_, err = db.ExecContext(ctx, `
		INSERT INTO instances (id, template_id, status, scheduled_ms, payload, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			scheduled_ms = excluded.scheduled_ms,
			payload = excluded.payload,
			updated_at = excluded.updated_at`,
		inst.ID(), inst.TemplateID(), string(inst.Status()), inst.ScheduledTime().UnixMilli(),
		string(payload), mustTime(inst.UpdatedAt()),
	)
	if err != nil {
		return fmt.Errorf("save instance %s: %w", inst.ID(), err)
	}
	return nil
}

func (r *SQLiteRepository) SaveBatch(ctx context.Context, tpl *model.TaskTemplate, insts []*model.TaskInstance) (err error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin batch: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if err = saveTemplate(ctx, tx, tpl); err != nil {
		return err
	}
	for _, inst := range insts {
		if inst.TemplateID() != tpl.ID() {
			return fmt.Errorf("storage: instance %s belongs to template %s, not %s", inst.ID(), inst.TemplateID(), tpl.ID())
		}
		if err = saveInstance(ctx, tx, inst); err != nil {
			return err
		}
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit batch: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) GetInstance(ctx context.Context, id string) (*model.TaskInstance, error) {
	row := r.db.QueryRowContext(ctx, `SELECT payload FROM instances WHERE id = ?`, id)
	inst, err := scanInstance(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return inst, nil
}

func (r *SQLiteRepository) DeleteInstance(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM instances WHERE id = ?`, id)
	if err != nil {
		return err
	}
	return checkRowsAffected(res)
}

func (r *SQLiteRepository) ListInstances(ctx context.Context, filter InstanceListFilter) ([]*model.TaskInstance, error) {
	query := `SELECT payload FROM instances`
	where := make([]string, 0, 4)
	args := make([]any, 0, len(filter.Statuses)+5)
	if filter.TemplateID != "" {
		where = append(where, `template_id = ?`)
		args = append(args, filter.TemplateID)
	}
	if len(filter.Statuses) > 0 {
		where = append(where, `status IN (`+placeholders(len(filter.Statuses))+`)`)
		for _, s := range filter.Statuses {
			args = append(args, string(s))
		}
	}
	if !filter.ScheduledFrom.IsZero() {
		where = append(where, `scheduled_ms >= ?`)
		args = append(args, filter.ScheduledFrom.UnixMilli())
	}
	if !filter.ScheduledTo.IsZero() {
		where = append(where, `scheduled_ms <= ?`)
		args = append(args, filter.ScheduledTo.UnixMilli())
	}
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, ` AND `)
	}
	query += ` ORDER BY scheduled_ms ASC, id ASC`
	query += applyPagination(&args, filter.Limit, filter.Offset)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]*model.TaskInstance, 0)
	for rows.Next() {
		inst, scanErr := scanInstance(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		out = append(out, inst)
	}
	return out, rows.Err()
}

func mustTime(v time.Time) string {
	return v.UTC().Format(sqliteTimeLayout)
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

func applyPagination(args *[]any, limit, offset int) string {
	sql := ""
	if limit > 0 {
		sql += " LIMIT ?"
		*args = append(*args, limit)
	}
	if offset > 0 {
		if limit <= 0 {
			sql += " LIMIT -1"
		}
		sql += " OFFSET ?"
		*args = append(*args, offset)
	}
	return sql
}

type scanner interface {
	Scan(dest ...any) error
}

func scanTemplate(s scanner) (*model.TaskTemplate, error) {
	var payload string
	if err := s.Scan(&payload); err != nil {
		return nil, err
	}
	var snap model.TemplateSnapshot
	if err := json.Unmarshal([]byte(payload), &snap); err != nil {
		return nil, fmt.Errorf("decode template: %w", err)
	}
	tpl, err := model.TemplateFromPersistence(snap)
	if err != nil {
		return nil, fmt.Errorf("load template %s: %w", snap.ID, err)
	}
	return tpl, nil
}

func scanInstance(s scanner) (*model.TaskInstance, error) {
	var payload string
	if err := s.Scan(&payload); err != nil {
		return nil, err
	}
	var snap model.InstanceSnapshot
	if err := json.Unmarshal([]byte(payload), &snap); err != nil {
		return nil, fmt.Errorf("decode instance: %w", err)
	}
	inst, err := model.InstanceFromPersistence(snap)
	if err != nil {
		return nil, fmt.Errorf("load instance %s: %w", snap.ID, err)
	}
	return inst, nil
}

func checkRowsAffected(res sql.Result) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}
