/*
Package sqlite provides the SQLite-backed implementation of the storage
interfaces.

PURPOSE:
  Implements welfare.Store and welfare.TxStore using SQLite. In production,
  the same patterns apply to PostgreSQL - only minor SQL dialect differences.

KEY TABLES:
  programs:     Benefit catalog, top level
  sub_programs: Per-benefit amounts and quota limits
  claimants:    Employee records
  claims:       The claim lifecycle (status-guarded updates only)
  claim_comments: Append-only revision side-channel
  quota_usage:  Append-only usage ledger, UNIQUE on claim_id

APPEND-ONLY ENFORCEMENT:
  quota_usage and claim_comments receive INSERTs only. The unique index on
  quota_usage(claim_id) makes re-recording a completed claim a detectable
  constraint violation mapped to welfare.ErrDuplicateUsage.

STATUS-GUARDED UPDATES:
  ApplyClaimMutation compiles to a single
    UPDATE claims SET ... WHERE id = ? AND status IN (...)
  and reports applied=false when RowsAffected is zero. Concurrent reviewers
  racing on the same claim serialize here.

WAL MODE:
  SQLite is opened with WAL (Write-Ahead Logging) for better concurrency:
  - Multiple readers don't block
  - Single writer at a time
  - Better crash recovery

USAGE:
  store, err := sqlite.New("./data/welfare.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

MIGRATION:
  Schema is auto-migrated on New(). For production, use a proper
  migration tool (golang-migrate, goose) with versioned migrations.

SEE ALSO:
  - welfare/store.go: Interface definitions and semantics
  - welfare/store/memory.go: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"
	"github.com/warp/welfare-engine/welfare"
)

// Store implements welfare.TxStore using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

var _ welfare.TxStore = (*Store)(nil)

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Each pooled connection to :memory: would see its own empty database.
	if dbPath == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	-- Benefit catalog
	CREATE TABLE IF NOT EXISTS programs (
		id TEXT PRIMARY KEY,
		code TEXT NOT NULL UNIQUE,
		name TEXT NOT NULL,
		active BOOLEAN NOT NULL DEFAULT TRUE,
		sort_order INTEGER NOT NULL DEFAULT 0,
		required_docs_json TEXT,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS sub_programs (
		id TEXT PRIMARY KEY,
		program_id TEXT NOT NULL,
		code TEXT NOT NULL,
		name TEXT NOT NULL,
		unit TEXT NOT NULL,
		amount TEXT NOT NULL,
		max_per_request TEXT,
		max_per_year TEXT,
		max_lifetime TEXT,
		max_claims_per_year INTEGER,
		max_claims_lifetime INTEGER,
		active BOOLEAN NOT NULL DEFAULT TRUE,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		UNIQUE(program_id, code)
	);

	CREATE INDEX IF NOT EXISTS idx_sub_programs_program
		ON sub_programs(program_id);

	-- Claimants
	CREATE TABLE IF NOT EXISTS claimants (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		active BOOLEAN NOT NULL DEFAULT TRUE,
		created_at TEXT NOT NULL
	);

	-- Claims (lifecycle entity; status changes via guarded UPDATE only)
	CREATE TABLE IF NOT EXISTS claims (
		id TEXT PRIMARY KEY,
		claimant_id TEXT NOT NULL,
		sub_program_id TEXT NOT NULL,
		fiscal_year INTEGER NOT NULL,
		requested_amount TEXT NOT NULL,
		approved_amount TEXT,
		nights INTEGER,
		beneficiary_name TEXT,
		beneficiary_relation TEXT,
		status TEXT NOT NULL,
		admin_approver_id TEXT,
		admin_approved_at TEXT,
		manager_approver_id TEXT,
		manager_approved_at TEXT,
		rejected_by TEXT,
		rejection_reason TEXT,
		documents_json TEXT,
		submitted_at TEXT NOT NULL,
		completed_at TEXT,
		updated_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_claims_claimant
		ON claims(claimant_id);
	CREATE INDEX IF NOT EXISTS idx_claims_status
		ON claims(status);
	CREATE INDEX IF NOT EXISTS idx_claims_sub_program
		ON claims(sub_program_id);

	-- Comments (append-only)
	CREATE TABLE IF NOT EXISTS claim_comments (
		id TEXT PRIMARY KEY,
		claim_id TEXT NOT NULL,
		author_id TEXT NOT NULL,
		author_kind TEXT NOT NULL,
		text TEXT NOT NULL,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_comments_claim
		ON claim_comments(claim_id, created_at);

	-- Quota usage ledger (append-only; claim_id is the idempotency key)
	CREATE TABLE IF NOT EXISTS quota_usage (
		claim_id TEXT PRIMARY KEY,
		claimant_id TEXT NOT NULL,
		sub_program_id TEXT NOT NULL,
		fiscal_year INTEGER NOT NULL,
		amount TEXT NOT NULL,
		recorded_at TEXT NOT NULL
	);

	-- Hot path: usage replay for quota checks
	CREATE INDEX IF NOT EXISTS idx_usage_claimant_subprogram
		ON quota_usage(claimant_id, sub_program_id, fiscal_year);
	`

	_, err := s.db.Exec(schema)
	return err
}

// dbtx is satisfied by both *sql.DB and *sql.Tx.
type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// =============================================================================
// CATALOG STORE
// =============================================================================

// SaveProgram upserts a program.
func (s *Store) SaveProgram(ctx context.Context, p welfare.Program) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saveProgram(ctx, s.db, p)
}

func (s *Store) saveProgram(ctx context.Context, q dbtx, p welfare.Program) error {
	docsJSON, _ := json.Marshal(p.RequiredDocuments)

	query := `
		INSERT INTO programs (id, code, name, active, sort_order, required_docs_json, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			code = excluded.code,
			name = excluded.name,
			active = excluded.active,
			sort_order = excluded.sort_order,
			required_docs_json = excluded.required_docs_json,
			updated_at = excluded.updated_at
	`

	now := time.Now().UTC()
	createdAt := p.CreatedAt
	if createdAt.IsZero() {
		createdAt = now
	}
	updatedAt := p.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = now
	}

	_, err := q.ExecContext(ctx, query,
		p.ID, p.Code, p.Name, p.Active, p.SortOrder, string(docsJSON),
		createdAt.Format(time.RFC3339), updatedAt.Format(time.RFC3339),
	)
	return err
}

// GetProgram retrieves a program by ID. Returns (nil, nil) when absent.
func (s *Store) GetProgram(ctx context.Context, id welfare.ProgramID) (*welfare.Program, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.getProgram(ctx, s.db, "SELECT id, code, name, active, sort_order, required_docs_json, created_at, updated_at FROM programs WHERE id = ?", id)
}

// GetProgramByCode retrieves a program by its unique code.
func (s *Store) GetProgramByCode(ctx context.Context, code string) (*welfare.Program, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.getProgram(ctx, s.db, "SELECT id, code, name, active, sort_order, required_docs_json, created_at, updated_at FROM programs WHERE code = ?", code)
}

func (s *Store) getProgram(ctx context.Context, q dbtx, query string, arg any) (*welfare.Program, error) {
	var (
		p                    welfare.Program
		docsJSON             sql.NullString
		createdAt, updatedAt string
	)

	err := q.QueryRowContext(ctx, query, arg).Scan(
		&p.ID, &p.Code, &p.Name, &p.Active, &p.SortOrder, &docsJSON, &createdAt, &updatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	if docsJSON.Valid && docsJSON.String != "" {
		json.Unmarshal([]byte(docsJSON.String), &p.RequiredDocuments)
	}
	p.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	p.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
	return &p, nil
}

// ListPrograms returns programs ordered by sort order, then code.
func (s *Store) ListPrograms(ctx context.Context, activeOnly bool) ([]welfare.Program, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := "SELECT id, code, name, active, sort_order, required_docs_json, created_at, updated_at FROM programs"
	if activeOnly {
		query += " WHERE active = TRUE"
	}
	query += " ORDER BY sort_order ASC, code ASC"

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var programs []welfare.Program
	for rows.Next() {
		var (
			p                    welfare.Program
			docsJSON             sql.NullString
			createdAt, updatedAt string
		)
		if err := rows.Scan(&p.ID, &p.Code, &p.Name, &p.Active, &p.SortOrder, &docsJSON, &createdAt, &updatedAt); err != nil {
			return nil, err
		}
		if docsJSON.Valid && docsJSON.String != "" {
			json.Unmarshal([]byte(docsJSON.String), &p.RequiredDocuments)
		}
		p.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		p.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
		programs = append(programs, p)
	}
	return programs, rows.Err()
}

// DeleteProgram hard-deletes a program and its sub-programs. Refuses with
// welfare.ErrProgramInUse when any claim references one of its sub-programs.
func (s *Store) DeleteProgram(ctx context.Context, id welfare.ProgramID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var count int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM claims
		WHERE sub_program_id IN (SELECT id FROM sub_programs WHERE program_id = ?)
	`, id).Scan(&count)
	if err != nil {
		return err
	}
	if count > 0 {
		return welfare.ErrProgramInUse
	}

	if _, err := s.db.ExecContext(ctx, "DELETE FROM sub_programs WHERE program_id = ?", id); err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, "DELETE FROM programs WHERE id = ?", id)
	return err
}

// SaveSubProgram upserts a sub-program.
func (s *Store) SaveSubProgram(ctx context.Context, sp welfare.SubProgram) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saveSubProgram(ctx, s.db, sp)
}

func (s *Store) saveSubProgram(ctx context.Context, q dbtx, sp welfare.SubProgram) error {
	query := `
		INSERT INTO sub_programs (id, program_id, code, name, unit, amount,
			max_per_request, max_per_year, max_lifetime, max_claims_per_year, max_claims_lifetime,
			active, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			program_id = excluded.program_id,
			code = excluded.code,
			name = excluded.name,
			unit = excluded.unit,
			amount = excluded.amount,
			max_per_request = excluded.max_per_request,
			max_per_year = excluded.max_per_year,
			max_lifetime = excluded.max_lifetime,
			max_claims_per_year = excluded.max_claims_per_year,
			max_claims_lifetime = excluded.max_claims_lifetime,
			active = excluded.active,
			updated_at = excluded.updated_at
	`

	now := time.Now().UTC()
	createdAt := sp.CreatedAt
	if createdAt.IsZero() {
		createdAt = now
	}
	updatedAt := sp.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = now
	}

	_, err := q.ExecContext(ctx, query,
		sp.ID, sp.ProgramID, sp.Code, sp.Name, sp.Unit, sp.Amount.String(),
		nullDecimal(sp.MaxPerRequest), nullDecimal(sp.MaxPerYear), nullDecimal(sp.MaxLifetime),
		nullInt(sp.MaxClaimsPerYear), nullInt(sp.MaxClaimsLifetime),
		sp.Active,
		createdAt.Format(time.RFC3339), updatedAt.Format(time.RFC3339),
	)
	return err
}

const subProgramColumns = `id, program_id, code, name, unit, amount,
	max_per_request, max_per_year, max_lifetime, max_claims_per_year, max_claims_lifetime,
	active, created_at, updated_at`

// GetSubProgram retrieves a sub-program by ID. Returns (nil, nil) when absent.
func (s *Store) GetSubProgram(ctx context.Context, id welfare.SubProgramID) (*welfare.SubProgram, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.getSubProgram(ctx, s.db, id)
}

func (s *Store) getSubProgram(ctx context.Context, q dbtx, id welfare.SubProgramID) (*welfare.SubProgram, error) {
	rows, err := q.QueryContext(ctx, "SELECT "+subProgramColumns+" FROM sub_programs WHERE id = ?", id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, rows.Err()
	}
	sp, err := scanSubProgram(rows)
	if err != nil {
		return nil, err
	}
	return &sp, nil
}

// ListSubPrograms returns a program's sub-programs ordered by code.
func (s *Store) ListSubPrograms(ctx context.Context, programID welfare.ProgramID) ([]welfare.SubProgram, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		"SELECT "+subProgramColumns+" FROM sub_programs WHERE program_id = ? ORDER BY code ASC", programID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var subPrograms []welfare.SubProgram
	for rows.Next() {
		sp, err := scanSubProgram(rows)
		if err != nil {
			return nil, err
		}
		subPrograms = append(subPrograms, sp)
	}
	return subPrograms, rows.Err()
}

// DeleteSubProgram hard-deletes a sub-program. Refuses with
// welfare.ErrProgramInUse when claims exist against it.
func (s *Store) DeleteSubProgram(ctx context.Context, id welfare.SubProgramID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var count int
	if err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM claims WHERE sub_program_id = ?", id).Scan(&count); err != nil {
		return err
	}
	if count > 0 {
		return welfare.ErrProgramInUse
	}

	_, err := s.db.ExecContext(ctx, "DELETE FROM sub_programs WHERE id = ?", id)
	return err
}

func scanSubProgram(rows *sql.Rows) (welfare.SubProgram, error) {
	var (
		sp                                     welfare.SubProgram
		amount                                 string
		maxPerRequest, maxPerYear, maxLifetime sql.NullString
		maxClaimsYear, maxClaimsLifetime       sql.NullInt64
		createdAt, updatedAt                   string
	)

	err := rows.Scan(
		&sp.ID, &sp.ProgramID, &sp.Code, &sp.Name, &sp.Unit, &amount,
		&maxPerRequest, &maxPerYear, &maxLifetime, &maxClaimsYear, &maxClaimsLifetime,
		&sp.Active, &createdAt, &updatedAt,
	)
	if err != nil {
		return sp, fmt.Errorf("failed to scan sub-program: %w", err)
	}

	sp.Amount, err = decimal.NewFromString(amount)
	if err != nil {
		return sp, fmt.Errorf("corrupt amount for sub-program %s: %w", sp.ID, err)
	}
	sp.MaxPerRequest = parseNullDecimal(maxPerRequest)
	sp.MaxPerYear = parseNullDecimal(maxPerYear)
	sp.MaxLifetime = parseNullDecimal(maxLifetime)
	sp.MaxClaimsPerYear = parseNullInt(maxClaimsYear)
	sp.MaxClaimsLifetime = parseNullInt(maxClaimsLifetime)
	sp.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	sp.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
	return sp, nil
}

// SaveClaimant upserts a claimant.
func (s *Store) SaveClaimant(ctx context.Context, c welfare.Claimant) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saveClaimant(ctx, s.db, c)
}

func (s *Store) saveClaimant(ctx context.Context, q dbtx, c welfare.Claimant) error {
	query := `
		INSERT INTO claimants (id, name, active, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			active = excluded.active
	`

	createdAt := c.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	_, err := q.ExecContext(ctx, query, c.ID, c.Name, c.Active, createdAt.Format(time.RFC3339))
	return err
}

// GetClaimant retrieves a claimant by ID. Returns (nil, nil) when absent.
func (s *Store) GetClaimant(ctx context.Context, id welfare.ClaimantID) (*welfare.Claimant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.getClaimant(ctx, s.db, id)
}

func (s *Store) getClaimant(ctx context.Context, q dbtx, id welfare.ClaimantID) (*welfare.Claimant, error) {
	var (
		c         welfare.Claimant
		createdAt string
	)

	err := q.QueryRowContext(ctx,
		"SELECT id, name, active, created_at FROM claimants WHERE id = ?", id,
	).Scan(&c.ID, &c.Name, &c.Active, &createdAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	c.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	return &c, nil
}

// ListClaimants returns all claimants ordered by ID.
func (s *Store) ListClaimants(ctx context.Context) ([]welfare.Claimant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		"SELECT id, name, active, created_at FROM claimants ORDER BY id ASC")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var claimants []welfare.Claimant
	for rows.Next() {
		var (
			c         welfare.Claimant
			createdAt string
		)
		if err := rows.Scan(&c.ID, &c.Name, &c.Active, &createdAt); err != nil {
			return nil, err
		}
		c.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		claimants = append(claimants, c)
	}
	return claimants, rows.Err()
}

// =============================================================================
// CLAIM STORE
// =============================================================================

const claimColumns = `id, claimant_id, sub_program_id, fiscal_year,
	requested_amount, approved_amount, nights, beneficiary_name, beneficiary_relation,
	status, admin_approver_id, admin_approved_at, manager_approver_id, manager_approved_at,
	rejected_by, rejection_reason, documents_json, submitted_at, completed_at, updated_at`

// CreateClaim inserts a new claim.
func (s *Store) CreateClaim(ctx context.Context, c welfare.Claim) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.createClaim(ctx, s.db, c)
}

func (s *Store) createClaim(ctx context.Context, q dbtx, c welfare.Claim) error {
	docsJSON, _ := json.Marshal(c.Documents)

	query := `
		INSERT INTO claims (` + claimColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := q.ExecContext(ctx, query,
		c.ID, c.ClaimantID, c.SubProgramID, c.FiscalYear,
		c.RequestedAmount.String(), nullDecimal(c.ApprovedAmount), nullInt(c.Nights),
		c.BeneficiaryName, c.BeneficiaryRelation,
		c.Status,
		nullStringPtr(c.AdminApproverID), nullTime(c.AdminApprovedAt),
		nullStringPtr(c.ManagerApproverID), nullTime(c.ManagerApprovedAt),
		nullStringPtr(c.RejectedBy), nullStringPtr(c.RejectionReason),
		string(docsJSON),
		c.SubmittedAt.Format(time.RFC3339), nullTime(c.CompletedAt),
		c.UpdatedAt.Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to create claim: %w", err)
	}
	return nil
}

// GetClaim retrieves a claim by ID. Returns (nil, nil) when absent.
func (s *Store) GetClaim(ctx context.Context, id welfare.ClaimID) (*welfare.Claim, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.getClaim(ctx, s.db, id)
}

func (s *Store) getClaim(ctx context.Context, q dbtx, id welfare.ClaimID) (*welfare.Claim, error) {
	claims, err := s.queryClaims(ctx, q, "SELECT "+claimColumns+" FROM claims WHERE id = ?", id)
	if err != nil {
		return nil, err
	}
	if len(claims) == 0 {
		return nil, nil
	}
	return &claims[0], nil
}

// ListClaimsByClaimant returns a claimant's claims, oldest submission first.
func (s *Store) ListClaimsByClaimant(ctx context.Context, id welfare.ClaimantID) ([]welfare.Claim, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.queryClaims(ctx, s.db,
		"SELECT "+claimColumns+" FROM claims WHERE claimant_id = ? ORDER BY submitted_at ASC, id ASC", id)
}

// ListClaimsByStatus returns all claims in a given status, oldest first.
// This is the reviewer work-queue query.
func (s *Store) ListClaimsByStatus(ctx context.Context, status welfare.ClaimStatus) ([]welfare.Claim, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.queryClaims(ctx, s.db,
		"SELECT "+claimColumns+" FROM claims WHERE status = ? ORDER BY submitted_at ASC, id ASC", status)
}

// ApplyClaimMutation performs the status-guarded compare-and-set as a single
// UPDATE. applied is false when the guard did not match the current status.
func (s *Store) ApplyClaimMutation(ctx context.Context, m welfare.ClaimMutation) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.applyClaimMutation(ctx, s.db, m)
}

func (s *Store) applyClaimMutation(ctx context.Context, q dbtx, m welfare.ClaimMutation) (bool, error) {
	sets := []string{"status = ?", "updated_at = ?"}
	args := []any{m.To, m.UpdatedAt.Format(time.RFC3339)}

	if m.AdminApproverID != nil {
		sets = append(sets, "admin_approver_id = ?", "admin_approved_at = ?")
		args = append(args, *m.AdminApproverID, nullTime(m.AdminApprovedAt))
	}
	if m.ManagerApproverID != nil {
		sets = append(sets, "manager_approver_id = ?", "manager_approved_at = ?")
		args = append(args, *m.ManagerApproverID, nullTime(m.ManagerApprovedAt))
	}
	if m.ApprovedAmount != nil {
		sets = append(sets, "approved_amount = ?")
		args = append(args, m.ApprovedAmount.String())
	}
	if m.RejectedBy != nil {
		sets = append(sets, "rejected_by = ?", "rejection_reason = ?")
		args = append(args, *m.RejectedBy, nullStringPtr(m.RejectionReason))
	}
	if m.CompletedAt != nil {
		sets = append(sets, "completed_at = ?")
		args = append(args, m.CompletedAt.Format(time.RFC3339))
	}

	guards := make([]string, len(m.FromStatuses))
	args = append(args, m.ID)
	for i, from := range m.FromStatuses {
		guards[i] = "?"
		args = append(args, from)
	}
	query := fmt.Sprintf(
		"UPDATE claims SET %s WHERE id = ? AND status IN (%s)",
		strings.Join(sets, ", "), strings.Join(guards, ", "),
	)

	res, err := q.ExecContext(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("failed to apply claim mutation: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

// AppendComment adds a comment. Append-only.
func (s *Store) AppendComment(ctx context.Context, c welfare.Comment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.appendComment(ctx, s.db, c)
}

func (s *Store) appendComment(ctx context.Context, q dbtx, c welfare.Comment) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO claim_comments (id, claim_id, author_id, author_kind, text, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, c.ID, c.ClaimID, c.AuthorID, c.AuthorKind, c.Text, c.CreatedAt.Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("failed to append comment: %w", err)
	}
	return nil
}

// ListComments returns a claim's comments oldest-first.
func (s *Store) ListComments(ctx context.Context, claimID welfare.ClaimID) ([]welfare.Comment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.listComments(ctx, s.db, claimID)
}

func (s *Store) listComments(ctx context.Context, q dbtx, claimID welfare.ClaimID) ([]welfare.Comment, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT id, claim_id, author_id, author_kind, text, created_at
		FROM claim_comments
		WHERE claim_id = ?
		ORDER BY created_at ASC, id ASC
	`, claimID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var comments []welfare.Comment
	for rows.Next() {
		var (
			c         welfare.Comment
			createdAt string
		)
		if err := rows.Scan(&c.ID, &c.ClaimID, &c.AuthorID, &c.AuthorKind, &c.Text, &createdAt); err != nil {
			return nil, err
		}
		c.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		comments = append(comments, c)
	}
	return comments, rows.Err()
}

func (s *Store) queryClaims(ctx context.Context, q dbtx, query string, args ...any) ([]welfare.Claim, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query claims: %w", err)
	}
	defer rows.Close()

	var claims []welfare.Claim
	for rows.Next() {
		c, err := scanClaim(rows)
		if err != nil {
			return nil, err
		}
		claims = append(claims, c)
	}
	return claims, rows.Err()
}

func scanClaim(rows *sql.Rows) (welfare.Claim, error) {
	var (
		c                                    welfare.Claim
		requestedAmount                      string
		approvedAmount                       sql.NullString
		nights                               sql.NullInt64
		beneficiaryName, beneficiaryRelation sql.NullString
		adminApprover, managerApprover       sql.NullString
		adminApprovedAt, managerApprovedAt   sql.NullString
		rejectedBy, rejectionReason          sql.NullString
		docsJSON                             sql.NullString
		submittedAt, updatedAt               string
		completedAt                          sql.NullString
	)

	err := rows.Scan(
		&c.ID, &c.ClaimantID, &c.SubProgramID, &c.FiscalYear,
		&requestedAmount, &approvedAmount, &nights, &beneficiaryName, &beneficiaryRelation,
		&c.Status, &adminApprover, &adminApprovedAt, &managerApprover, &managerApprovedAt,
		&rejectedBy, &rejectionReason, &docsJSON, &submittedAt, &completedAt, &updatedAt,
	)
	if err != nil {
		return c, fmt.Errorf("failed to scan claim: %w", err)
	}

	c.RequestedAmount, err = decimal.NewFromString(requestedAmount)
	if err != nil {
		return c, fmt.Errorf("corrupt requested amount for claim %s: %w", c.ID, err)
	}
	c.ApprovedAmount = parseNullDecimal(approvedAmount)
	c.Nights = parseNullInt(nights)
	c.BeneficiaryName = beneficiaryName.String
	c.BeneficiaryRelation = beneficiaryRelation.String
	c.AdminApproverID = parseNullString(adminApprover)
	c.AdminApprovedAt = parseNullTime(adminApprovedAt)
	c.ManagerApproverID = parseNullString(managerApprover)
	c.ManagerApprovedAt = parseNullTime(managerApprovedAt)
	c.RejectedBy = parseNullString(rejectedBy)
	c.RejectionReason = parseNullString(rejectionReason)
	if docsJSON.Valid && docsJSON.String != "" {
		json.Unmarshal([]byte(docsJSON.String), &c.Documents)
	}
	c.SubmittedAt, _ = time.Parse(time.RFC3339, submittedAt)
	c.CompletedAt = parseNullTime(completedAt)
	c.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
	return c, nil
}

// =============================================================================
// USAGE STORE (append-only)
// =============================================================================

// AppendUsage records a completed claim's quota effect. The primary key on
// claim_id maps a duplicate insert to welfare.ErrDuplicateUsage.
func (s *Store) AppendUsage(ctx context.Context, rec welfare.UsageRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.appendUsage(ctx, s.db, rec)
}

func (s *Store) appendUsage(ctx context.Context, q dbtx, rec welfare.UsageRecord) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO quota_usage (claim_id, claimant_id, sub_program_id, fiscal_year, amount, recorded_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, rec.ClaimID, rec.ClaimantID, rec.SubProgramID, rec.FiscalYear,
		rec.Amount.String(), rec.RecordedAt.Format(time.RFC3339))

	if err != nil {
		if isUniqueConstraintError(err) {
			return welfare.ErrDuplicateUsage
		}
		return fmt.Errorf("failed to append usage: %w", err)
	}
	return nil
}

// LoadUsage returns all usage records for a (claimant, sub-program) pair,
// across all fiscal years, oldest-first.
func (s *Store) LoadUsage(ctx context.Context, claimantID welfare.ClaimantID, subProgramID welfare.SubProgramID) ([]welfare.UsageRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loadUsage(ctx, s.db, claimantID, subProgramID)
}

func (s *Store) loadUsage(ctx context.Context, q dbtx, claimantID welfare.ClaimantID, subProgramID welfare.SubProgramID) ([]welfare.UsageRecord, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT claim_id, claimant_id, sub_program_id, fiscal_year, amount, recorded_at
		FROM quota_usage
		WHERE claimant_id = ? AND sub_program_id = ?
		ORDER BY recorded_at ASC, claim_id ASC
	`, claimantID, subProgramID)
	if err != nil {
		return nil, fmt.Errorf("failed to query usage: %w", err)
	}
	defer rows.Close()

	var records []welfare.UsageRecord
	for rows.Next() {
		var (
			rec        welfare.UsageRecord
			amount     string
			recordedAt string
		)
		if err := rows.Scan(&rec.ClaimID, &rec.ClaimantID, &rec.SubProgramID, &rec.FiscalYear, &amount, &recordedAt); err != nil {
			return nil, err
		}
		rec.Amount, err = decimal.NewFromString(amount)
		if err != nil {
			return nil, fmt.Errorf("corrupt usage amount for claim %s: %w", rec.ClaimID, err)
		}
		rec.RecordedAt, _ = time.Parse(time.RFC3339, recordedAt)
		records = append(records, rec)
	}
	return records, rows.Err()
}

// UsageExists checks whether a claim's usage was already recorded.
func (s *Store) UsageExists(ctx context.Context, claimID welfare.ClaimID) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var count int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM quota_usage WHERE claim_id = ?", claimID).Scan(&count)
	return count > 0, err
}

// =============================================================================
// TRANSACTIONAL STORE
// =============================================================================

// WithTx executes a function within a database transaction.
func (s *Store) WithTx(ctx context.Context, fn func(store welfare.Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	txStore := &txStore{tx: sqlTx, parent: s}
	if err := fn(txStore); err != nil {
		return err
	}

	return sqlTx.Commit()
}

// txStore runs every operation against the open transaction. The parent's
// lock is held for the duration of WithTx, so no further locking here.
type txStore struct {
	tx     *sql.Tx
	parent *Store
}

var _ welfare.Store = (*txStore)(nil)

func (ts *txStore) SaveProgram(ctx context.Context, p welfare.Program) error {
	return ts.parent.saveProgram(ctx, ts.tx, p)
}
func (ts *txStore) GetProgram(ctx context.Context, id welfare.ProgramID) (*welfare.Program, error) {
	return ts.parent.getProgram(ctx, ts.tx, "SELECT id, code, name, active, sort_order, required_docs_json, created_at, updated_at FROM programs WHERE id = ?", id)
}
func (ts *txStore) GetProgramByCode(ctx context.Context, code string) (*welfare.Program, error) {
	return ts.parent.getProgram(ctx, ts.tx, "SELECT id, code, name, active, sort_order, required_docs_json, created_at, updated_at FROM programs WHERE code = ?", code)
}
func (ts *txStore) ListPrograms(ctx context.Context, activeOnly bool) ([]welfare.Program, error) {
	return nil, errTxUnsupported("ListPrograms")
}
func (ts *txStore) DeleteProgram(ctx context.Context, id welfare.ProgramID) error {
	return errTxUnsupported("DeleteProgram")
}
func (ts *txStore) SaveSubProgram(ctx context.Context, sp welfare.SubProgram) error {
	return ts.parent.saveSubProgram(ctx, ts.tx, sp)
}
func (ts *txStore) GetSubProgram(ctx context.Context, id welfare.SubProgramID) (*welfare.SubProgram, error) {
	return ts.parent.getSubProgram(ctx, ts.tx, id)
}
func (ts *txStore) ListSubPrograms(ctx context.Context, programID welfare.ProgramID) ([]welfare.SubProgram, error) {
	return nil, errTxUnsupported("ListSubPrograms")
}
func (ts *txStore) DeleteSubProgram(ctx context.Context, id welfare.SubProgramID) error {
	return errTxUnsupported("DeleteSubProgram")
}
func (ts *txStore) SaveClaimant(ctx context.Context, c welfare.Claimant) error {
	return ts.parent.saveClaimant(ctx, ts.tx, c)
}
func (ts *txStore) GetClaimant(ctx context.Context, id welfare.ClaimantID) (*welfare.Claimant, error) {
	return ts.parent.getClaimant(ctx, ts.tx, id)
}
func (ts *txStore) ListClaimants(ctx context.Context) ([]welfare.Claimant, error) {
	return nil, errTxUnsupported("ListClaimants")
}
func (ts *txStore) CreateClaim(ctx context.Context, c welfare.Claim) error {
	return ts.parent.createClaim(ctx, ts.tx, c)
}
func (ts *txStore) GetClaim(ctx context.Context, id welfare.ClaimID) (*welfare.Claim, error) {
	return ts.parent.getClaim(ctx, ts.tx, id)
}
func (ts *txStore) ListClaimsByClaimant(ctx context.Context, id welfare.ClaimantID) ([]welfare.Claim, error) {
	return ts.parent.queryClaims(ctx, ts.tx,
		"SELECT "+claimColumns+" FROM claims WHERE claimant_id = ? ORDER BY submitted_at ASC, id ASC", id)
}
func (ts *txStore) ListClaimsByStatus(ctx context.Context, status welfare.ClaimStatus) ([]welfare.Claim, error) {
	return ts.parent.queryClaims(ctx, ts.tx,
		"SELECT "+claimColumns+" FROM claims WHERE status = ? ORDER BY submitted_at ASC, id ASC", status)
}
func (ts *txStore) ApplyClaimMutation(ctx context.Context, m welfare.ClaimMutation) (bool, error) {
	return ts.parent.applyClaimMutation(ctx, ts.tx, m)
}
func (ts *txStore) AppendComment(ctx context.Context, c welfare.Comment) error {
	return ts.parent.appendComment(ctx, ts.tx, c)
}
func (ts *txStore) ListComments(ctx context.Context, claimID welfare.ClaimID) ([]welfare.Comment, error) {
	return ts.parent.listComments(ctx, ts.tx, claimID)
}
func (ts *txStore) AppendUsage(ctx context.Context, rec welfare.UsageRecord) error {
	return ts.parent.appendUsage(ctx, ts.tx, rec)
}
func (ts *txStore) LoadUsage(ctx context.Context, claimantID welfare.ClaimantID, subProgramID welfare.SubProgramID) ([]welfare.UsageRecord, error) {
	return ts.parent.loadUsage(ctx, ts.tx, claimantID, subProgramID)
}
func (ts *txStore) UsageExists(ctx context.Context, claimID welfare.ClaimID) (bool, error) {
	var count int
	err := ts.tx.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM quota_usage WHERE claim_id = ?", claimID).Scan(&count)
	return count > 0, err
}

func errTxUnsupported(op string) error {
	return fmt.Errorf("%s is not supported inside a transaction", op)
}

// =============================================================================
// UTILITIES
// =============================================================================

// Reset clears all data (for testing/demo).
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tables := []string{"quota_usage", "claim_comments", "claims", "claimants", "sub_programs", "programs"}
	for _, table := range tables {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return err
		}
	}
	return nil
}

// Helper functions

func nullDecimal(d *decimal.Decimal) sql.NullString {
	if d == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: d.String(), Valid: true}
}

func parseNullDecimal(ns sql.NullString) *decimal.Decimal {
	if !ns.Valid {
		return nil
	}
	d, err := decimal.NewFromString(ns.String)
	if err != nil {
		return nil
	}
	return &d
}

func nullInt(n *int) sql.NullInt64 {
	if n == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*n), Valid: true}
}

func parseNullInt(ni sql.NullInt64) *int {
	if !ni.Valid {
		return nil
	}
	n := int(ni.Int64)
	return &n
}

func nullStringPtr(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func parseNullString(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}

func nullTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: t.Format(time.RFC3339), Valid: true}
}

func parseNullTime(ns sql.NullString) *time.Time {
	if !ns.Valid {
		return nil
	}
	t, err := time.Parse(time.RFC3339, ns.String)
	if err != nil {
		return nil
	}
	return &t
}

func isUniqueConstraintError(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
