// Package storage implements the ledger repository on SQL databases. The same
// queries serve SQLite (modernc.org/sqlite) and PostgreSQL (lib/pq); only
// placeholders and error codes differ between the two.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/lib/pq"
	_ "modernc.org/sqlite"

	"ucontrol/internal/core"
	"ucontrol/internal/log"
	"ucontrol/internal/period"
	"ucontrol/internal/ports"
)

// Dialect selects placeholder style, driver and migrations.
type Dialect string

const (
	DialectSQLite   Dialect = "sqlite"
	DialectPostgres Dialect = "postgres"
)

func (d Dialect) driverName() string {
	return string(d)
}

const (
	defaultMaxOpenConns    = 25
	defaultMaxIdleConns    = 25
	defaultConnMaxLifetime = 5 * time.Minute
	defaultConnMaxIdleTime = 1 * time.Minute
)

// Repository implements ports.Repository over database/sql.
type Repository struct {
	db      *sql.DB
	dialect Dialect
	logger  *log.Logger
}

var _ ports.Repository = (*Repository)(nil)

// NewSQLiteRepository opens (creating if needed) the database file at dbPath
// and applies migrations.
func NewSQLiteRepository(dbPath string, logger *log.Logger) (*Repository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}
	dsn := "file:" + dbPath + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"

	db, err := sql.Open(DialectSQLite.driverName(), dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// A single writer avoids SQLITE_BUSY under concurrent requests.
	db.SetMaxOpenConns(1)

	return newRepository(db, DialectSQLite, dsn, logger)
}

// NewPostgresRepository connects to dsn and applies migrations.
func NewPostgresRepository(dsn string, logger *log.Logger) (*Repository, error) {
	db, err := sql.Open(DialectPostgres.driverName(), dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres database: %w", err)
	}

	db.SetMaxOpenConns(defaultMaxOpenConns)
	db.SetMaxIdleConns(defaultMaxIdleConns)
	db.SetConnMaxLifetime(defaultConnMaxLifetime)
	db.SetConnMaxIdleTime(defaultConnMaxIdleTime)

	return newRepository(db, DialectPostgres, dsn, logger)
}

func newRepository(db *sql.DB, dialect Dialect, dsn string, logger *log.Logger) (*Repository, error) {
	if logger == nil {
		logger = log.Discard()
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(dialect, dsn); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &Repository{
		db:      db,
		dialect: dialect,
		logger:  logger.WithComponent(log.ComponentStorage),
	}, nil
}

func (r *Repository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

func (r *Repository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Dialect reports which database the repository talks to.
func (r *Repository) Dialect() Dialect {
	return r.dialect
}

// rebind rewrites ? placeholders as $n for PostgreSQL.
func (r *Repository) rebind(query string) string {
	if r.dialect != DialectPostgres {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, ch := range query {
		if ch == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(ch)
	}
	return b.String()
}

func (r *Repository) exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	res, err := r.db.ExecContext(ctx, r.rebind(query), args...)
	return res, r.translate(err)
}

// execOne runs a statement that must touch exactly one row.
func (r *Repository) execOne(ctx context.Context, what, id, query string, args ...any) error {
	res, err := r.exec(ctx, query, args...)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%s %s: %w", what, id, core.ErrNotFound)
	}
	return nil
}

// translate maps driver constraint errors onto domain sentinels.
func (r *Repository) translate(err error) error {
	if err == nil {
		return nil
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case "23505":
			return fmt.Errorf("%w: %s", core.ErrConflict, pqErr.Message)
		case "23503":
			return fmt.Errorf("%w: record is still referenced", core.ErrConflict)
		}
		return err
	}
	msg := err.Error()
	switch {
	case strings.Contains(msg, "UNIQUE constraint failed"):
		return fmt.Errorf("%w: %s", core.ErrConflict, msg)
	case strings.Contains(msg, "FOREIGN KEY constraint failed"):
		return fmt.Errorf("%w: record is still referenced", core.ErrConflict)
	}
	return err
}

// Accounts

const accountColumns = `id, name, type, currency, initial_balance_cents, is_active, created_at`

func (r *Repository) CreateAccount(ctx context.Context, a core.Account) error {
	_, err := r.exec(ctx,
		`INSERT INTO accounts (`+accountColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.Name, string(a.Type), a.Currency, a.InitialBalance.Cents, a.IsActive, a.CreatedAt.UTC())
	if err != nil {
		return fmt.Errorf("create account: %w", err)
	}
	return nil
}

func (r *Repository) UpdateAccount(ctx context.Context, a core.Account) error {
	err := r.execOne(ctx, "account", a.ID,
		`UPDATE accounts SET name = ?, type = ?, currency = ?, initial_balance_cents = ?, is_active = ? WHERE id = ?`,
		a.Name, string(a.Type), a.Currency, a.InitialBalance.Cents, a.IsActive, a.ID)
	if err != nil {
		return fmt.Errorf("update account: %w", err)
	}
	return nil
}

func (r *Repository) GetAccount(ctx context.Context, id string) (core.Account, error) {
	row := r.db.QueryRowContext(ctx, r.rebind(`SELECT `+accountColumns+` FROM accounts WHERE id = ?`), id)
	a, err := scanAccount(row)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Account{}, fmt.Errorf("account %s: %w", id, core.ErrNotFound)
	}
	if err != nil {
		return core.Account{}, fmt.Errorf("get account: %w", err)
	}
	return a, nil
}

func (r *Repository) ListAccounts(ctx context.Context) ([]core.Account, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+accountColumns+` FROM accounts ORDER BY name, id`)
	if err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}
	defer rows.Close()

	accounts := []core.Account{}
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("scan account: %w", err)
		}
		accounts = append(accounts, a)
	}
	return accounts, rows.Err()
}

func (r *Repository) DeleteAccount(ctx context.Context, id string) error {
	if err := r.execOne(ctx, "account", id, `DELETE FROM accounts WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete account: %w", err)
	}
	return nil
}

// Incomes

const incomeColumns = `id, account_id, date, description, amount_cents, category, created_at`

func (r *Repository) CreateIncome(ctx context.Context, in core.Income) error {
	_, err := r.exec(ctx,
		`INSERT INTO incomes (`+incomeColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		in.ID, in.AccountID, in.Date.String(), in.Description, in.Amount.Cents, in.Category, in.CreatedAt.UTC())
	if err != nil {
		return fmt.Errorf("create income: %w", err)
	}
	r.logger.DebugContext(ctx, "Income saved",
		log.FieldTransactionID, in.ID,
		log.FieldAmountCents, in.Amount.Cents)
	return nil
}

func (r *Repository) GetIncome(ctx context.Context, id string) (core.Income, error) {
	row := r.db.QueryRowContext(ctx, r.rebind(`SELECT `+incomeColumns+` FROM incomes WHERE id = ?`), id)
	in, err := scanIncome(row)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Income{}, fmt.Errorf("income %s: %w", id, core.ErrNotFound)
	}
	if err != nil {
		return core.Income{}, fmt.Errorf("get income: %w", err)
	}
	return in, nil
}

func (r *Repository) ListIncomes(ctx context.Context, f ports.TransactionFilter) ([]core.Income, error) {
	where, args := filterClause(f)
	rows, err := r.db.QueryContext(ctx,
		r.rebind(`SELECT `+incomeColumns+` FROM incomes`+where+` ORDER BY date, created_at, id`), args...)
	if err != nil {
		return nil, fmt.Errorf("list incomes: %w", err)
	}
	defer rows.Close()

	incomes := []core.Income{}
	for rows.Next() {
		in, err := scanIncome(rows)
		if err != nil {
			return nil, fmt.Errorf("scan income: %w", err)
		}
		incomes = append(incomes, in)
	}
	return incomes, rows.Err()
}

func (r *Repository) DeleteIncome(ctx context.Context, id string) error {
	if err := r.execOne(ctx, "income", id, `DELETE FROM incomes WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete income: %w", err)
	}
	return nil
}

// Expenses

const expenseColumns = `id, account_id, date, description, amount_cents, category, subcategory, created_at`

func (r *Repository) CreateExpense(ctx context.Context, e core.Expense) error {
	_, err := r.exec(ctx,
		`INSERT INTO expenses (`+expenseColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.AccountID, e.Date.String(), e.Description, e.Amount.Cents, e.Category, e.Subcategory, e.CreatedAt.UTC())
	if err != nil {
		return fmt.Errorf("create expense: %w", err)
	}
	r.logger.DebugContext(ctx, "Expense saved",
		log.FieldTransactionID, e.ID,
		log.FieldAmountCents, e.Amount.Cents)
	return nil
}

func (r *Repository) GetExpense(ctx context.Context, id string) (core.Expense, error) {
	row := r.db.QueryRowContext(ctx, r.rebind(`SELECT `+expenseColumns+` FROM expenses WHERE id = ?`), id)
	e, err := scanExpense(row)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Expense{}, fmt.Errorf("expense %s: %w", id, core.ErrNotFound)
	}
	if err != nil {
		return core.Expense{}, fmt.Errorf("get expense: %w", err)
	}
	return e, nil
}

func (r *Repository) ListExpenses(ctx context.Context, f ports.TransactionFilter) ([]core.Expense, error) {
	where, args := filterClause(f)
	rows, err := r.db.QueryContext(ctx,
		r.rebind(`SELECT `+expenseColumns+` FROM expenses`+where+` ORDER BY date, created_at, id`), args...)
	if err != nil {
		return nil, fmt.Errorf("list expenses: %w", err)
	}
	defer rows.Close()

	expenses := []core.Expense{}
	for rows.Next() {
		e, err := scanExpense(rows)
		if err != nil {
			return nil, fmt.Errorf("scan expense: %w", err)
		}
		expenses = append(expenses, e)
	}
	return expenses, rows.Err()
}

func (r *Repository) DeleteExpense(ctx context.Context, id string) error {
	if err := r.execOne(ctx, "expense", id, `DELETE FROM expenses WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete expense: %w", err)
	}
	return nil
}

// Budgets

const budgetColumns = `id, category, period_key, limit_cents, created_at`

func (r *Repository) CreateBudget(ctx context.Context, b core.Budget) error {
	_, err := r.exec(ctx,
		`INSERT INTO budgets (`+budgetColumns+`) VALUES (?, ?, ?, ?, ?)`,
		b.ID, b.Category, b.PeriodKey, b.Limit.Cents, b.CreatedAt.UTC())
	if err != nil {
		return fmt.Errorf("create budget: %w", err)
	}
	return nil
}

func (r *Repository) UpdateBudget(ctx context.Context, b core.Budget) error {
	err := r.execOne(ctx, "budget", b.ID,
		`UPDATE budgets SET category = ?, period_key = ?, limit_cents = ? WHERE id = ?`,
		b.Category, b.PeriodKey, b.Limit.Cents, b.ID)
	if err != nil {
		return fmt.Errorf("update budget: %w", err)
	}
	return nil
}

func (r *Repository) GetBudget(ctx context.Context, id string) (core.Budget, error) {
	row := r.db.QueryRowContext(ctx, r.rebind(`SELECT `+budgetColumns+` FROM budgets WHERE id = ?`), id)
	b, err := scanBudget(row)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Budget{}, fmt.Errorf("budget %s: %w", id, core.ErrNotFound)
	}
	if err != nil {
		return core.Budget{}, fmt.Errorf("get budget: %w", err)
	}
	return b, nil
}

// ListBudgets returns the budgets of one period, or all budgets when
// periodKey is empty.
func (r *Repository) ListBudgets(ctx context.Context, periodKey string) ([]core.Budget, error) {
	query := `SELECT ` + budgetColumns + ` FROM budgets`
	var args []any
	if periodKey != "" {
		query += ` WHERE period_key = ?`
		args = append(args, periodKey)
	}
	rows, err := r.db.QueryContext(ctx, r.rebind(query+` ORDER BY period_key, category`), args...)
	if err != nil {
		return nil, fmt.Errorf("list budgets: %w", err)
	}
	defer rows.Close()

	budgets := []core.Budget{}
	for rows.Next() {
		b, err := scanBudget(rows)
		if err != nil {
			return nil, fmt.Errorf("scan budget: %w", err)
		}
		budgets = append(budgets, b)
	}
	return budgets, rows.Err()
}

func (r *Repository) DeleteBudget(ctx context.Context, id string) error {
	if err := r.execOne(ctx, "budget", id, `DELETE FROM budgets WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete budget: %w", err)
	}
	return nil
}

// Cutoff configuration

func (r *Repository) GetCutoffConfig(ctx context.Context) (period.CutoffConfig, error) {
	var (
		cfg     period.CutoffConfig
		updated timeColumn
	)
	err := r.db.QueryRowContext(ctx,
		`SELECT cutoff_day, is_active, updated_at FROM cutoff_config WHERE id = 1`).
		Scan(&cfg.CutoffDay, &cfg.IsActive, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return period.CutoffConfig{}, fmt.Errorf("cutoff config: %w", core.ErrNotFound)
	}
	if err != nil {
		return period.CutoffConfig{}, fmt.Errorf("get cutoff config: %w", err)
	}
	cfg.UpdatedAt = updated.Time
	return cfg, nil
}

func (r *Repository) SaveCutoffConfig(ctx context.Context, cfg period.CutoffConfig) error {
	_, err := r.exec(ctx,
		`INSERT INTO cutoff_config (id, cutoff_day, is_active, updated_at) VALUES (1, ?, ?, ?)
		 ON CONFLICT (id) DO UPDATE SET cutoff_day = excluded.cutoff_day, is_active = excluded.is_active, updated_at = excluded.updated_at`,
		cfg.CutoffDay, cfg.IsActive, cfg.UpdatedAt.UTC())
	if err != nil {
		return fmt.Errorf("save cutoff config: %w", err)
	}
	r.logger.InfoContext(ctx, "Cutoff config saved", log.FieldCutoffDay, cfg.CutoffDay)
	return nil
}

// filterClause renders f as a WHERE clause with ? placeholders.
func filterClause(f ports.TransactionFilter) (string, []any) {
	var conds []string
	var args []any
	if !f.From.IsZero() {
		conds = append(conds, "date >= ?")
		args = append(args, f.From.String())
	}
	if !f.To.IsZero() {
		conds = append(conds, "date <= ?")
		args = append(args, f.To.String())
	}
	if f.AccountID != "" {
		conds = append(conds, "account_id = ?")
		args = append(args, f.AccountID)
	}
	if f.Category != "" {
		conds = append(conds, "category = ?")
		args = append(args, f.Category)
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}
