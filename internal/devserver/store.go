package devserver

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3" // SQLite driver

	"github.com/nutrilogic/datacache/internal/api"
)

const (
	defaultMaxOpenConns    = 25
	defaultMaxIdleConns    = 5
	defaultConnMaxLifetime = 5 * time.Minute
)

// StatusNormal is the only nutritional status that does not need follow-up.
const StatusNormal = "normal"

var errNoRows = errors.New("devserver: record not found")

const schema = `
CREATE TABLE IF NOT EXISTS users (
	id       INTEGER PRIMARY KEY AUTOINCREMENT,
	name     TEXT NOT NULL,
	email    TEXT NOT NULL UNIQUE,
	password TEXT NOT NULL,
	role     TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS children (
	id               INTEGER PRIMARY KEY AUTOINCREMENT,
	parent_id        INTEGER NOT NULL REFERENCES users(id),
	name             TEXT NOT NULL,
	gender           TEXT NOT NULL,
	birth_date       TEXT NOT NULL,
	weight_kg        REAL NOT NULL DEFAULT 0,
	height_cm        REAL NOT NULL DEFAULT 0,
	nutrition_status TEXT NOT NULL DEFAULT 'normal',
	is_active        BOOLEAN NOT NULL DEFAULT 1,
	updated_at       DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_children_parent ON children(parent_id);
`

const childColumns = `id, parent_id, name, gender, birth_date, weight_kg, height_cm, nutrition_status, is_active, updated_at`

// store is the SQLite persistence of the stand-in API.
type store struct {
	db *sqlx.DB
}

// userRow carries the password column, which api.User does not expose.
type userRow struct {
	api.User
	Password string `db:"password"`
}

// listQuery filters children. ParentID zero means every parent.
type listQuery struct {
	ParentID int64
	Status   string
	Active   *bool
	Search   string
}

func openStore(dsn string) (*store, error) {
	db, err := sqlx.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite connection: %w", err)
	}

	if strings.Contains(dsn, ":memory:") {
		// Every connection to :memory: is a separate database.
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(defaultMaxOpenConns)
		db.SetMaxIdleConns(defaultMaxIdleConns)
	}
	db.SetConnMaxLifetime(defaultConnMaxLifetime)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping sqlite database: %w", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate sqlite database: %w", err)
	}
	return &store{db: db}, nil
}

func (s *store) close() error { return s.db.Close() }

func (s *store) createUser(ctx context.Context, name, email, password, role string) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO users (name, email, password, role) VALUES (?, ?, ?, ?)`,
		name, email, password, role)
	if err != nil {
		return 0, fmt.Errorf("insert user %s: %w", email, err)
	}
	return res.LastInsertId()
}

func (s *store) userByEmail(ctx context.Context, email string) (userRow, error) {
	var u userRow
	err := s.db.GetContext(ctx, &u, `SELECT id, name, email, role, password FROM users WHERE email = ?`, email)
	if errors.Is(err, sql.ErrNoRows) {
		return u, errNoRows
	}
	return u, err
}

func (q listQuery) where() (string, []any) {
	var clauses []string
	var args []any
	if q.ParentID != 0 {
		clauses = append(clauses, "parent_id = ?")
		args = append(args, q.ParentID)
	}
	if q.Status != "" && q.Status != "all" {
		clauses = append(clauses, "nutrition_status = ?")
		args = append(args, q.Status)
	}
	if q.Active != nil {
		clauses = append(clauses, "is_active = ?")
		args = append(args, *q.Active)
	}
	if q.Search != "" {
		clauses = append(clauses, "name LIKE ?")
		args = append(args, "%"+q.Search+"%")
	}
	if len(clauses) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

func (s *store) listChildren(ctx context.Context, q listQuery) ([]api.Child, error) {
	where, args := q.where()
	children := []api.Child{}
	err := s.db.SelectContext(ctx, &children, `SELECT `+childColumns+` FROM children`+where+` ORDER BY name, id`, args...)
	if err != nil {
		return nil, fmt.Errorf("list children: %w", err)
	}
	return children, nil
}

func (s *store) priorityChildren(ctx context.Context, parentID int64) ([]api.Child, error) {
	query := `SELECT ` + childColumns + ` FROM children WHERE is_active = 1 AND nutrition_status <> ?`
	args := []any{StatusNormal}
	if parentID != 0 {
		query += ` AND parent_id = ?`
		args = append(args, parentID)
	}
	children := []api.Child{}
	if err := s.db.SelectContext(ctx, &children, query+` ORDER BY updated_at DESC, id`, args...); err != nil {
		return nil, fmt.Errorf("list priority children: %w", err)
	}
	return children, nil
}

func (s *store) getChild(ctx context.Context, id int64) (api.Child, error) {
	var c api.Child
	err := s.db.GetContext(ctx, &c, `SELECT `+childColumns+` FROM children WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return c, errNoRows
	}
	return c, err
}

func (s *store) insertChild(ctx context.Context, c api.Child) (api.Child, error) {
	c.UpdatedAt = time.Now().UTC()
	res, err := s.db.NamedExecContext(ctx, `INSERT INTO children
		(parent_id, name, gender, birth_date, weight_kg, height_cm, nutrition_status, is_active, updated_at)
		VALUES (:parent_id, :name, :gender, :birth_date, :weight_kg, :height_cm, :nutrition_status, :is_active, :updated_at)`, c)
	if err != nil {
		return api.Child{}, fmt.Errorf("insert child: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return api.Child{}, err
	}
	return s.getChild(ctx, id)
}

func (s *store) updateChild(ctx context.Context, c api.Child) (api.Child, error) {
	c.UpdatedAt = time.Now().UTC()
	res, err := s.db.NamedExecContext(ctx, `UPDATE children SET
		parent_id = :parent_id, name = :name, gender = :gender, birth_date = :birth_date,
		weight_kg = :weight_kg, height_cm = :height_cm, nutrition_status = :nutrition_status,
		is_active = :is_active, updated_at = :updated_at
		WHERE id = :id`, c)
	if err != nil {
		return api.Child{}, fmt.Errorf("update child %d: %w", c.ID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return api.Child{}, errNoRows
	}
	return s.getChild(ctx, c.ID)
}

func (s *store) deleteChild(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM children WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete child %d: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errNoRows
	}
	return nil
}

func (s *store) dashboard(ctx context.Context, parentID int64) (api.DashboardSummary, error) {
	query := `SELECT nutrition_status, is_active, COUNT(*) AS n FROM children`
	var args []any
	if parentID != 0 {
		query += ` WHERE parent_id = ?`
		args = append(args, parentID)
	}
	query += ` GROUP BY nutrition_status, is_active`

	var rows []struct {
		Status string `db:"nutrition_status"`
		Active bool   `db:"is_active"`
		N      int    `db:"n"`
	}
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return api.DashboardSummary{}, fmt.Errorf("dashboard summary: %w", err)
	}

	sum := api.DashboardSummary{ByStatus: map[string]int{}}
	for _, r := range rows {
		sum.TotalChildren += r.N
		if !r.Active {
			continue
		}
		sum.ActiveChildren += r.N
		sum.ByStatus[r.Status] += r.N
		if r.Status != StatusNormal {
			sum.PriorityCount += r.N
		}
	}
	return sum, nil
}
