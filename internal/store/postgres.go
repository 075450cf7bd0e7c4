package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) DB() *sql.DB {
	return s.db
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Users

func (s *PostgresStore) CreateUser(ctx context.Context, user User) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (id, username, password_hash, role)
		VALUES ($1, $2, $3, $4)
	`, user.ID, user.Username, user.PasswordHash, user.Role)
	if err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

// Serializes concurrent first-admin bootstraps across all API instances
// sharing the database.
const firstAdminLockKey = 874015001

// CreateFirstAdmin inserts the bootstrap admin, reporting false if an admin
// row already exists. An advisory transaction lock keeps the existence check
// and the insert atomic under concurrent bootstrap attempts.
func (s *PostgresStore) CreateFirstAdmin(ctx context.Context, user User) (bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin first admin tx: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, firstAdminLockKey); err != nil {
		_ = tx.Rollback()
		return false, fmt.Errorf("lock first admin: %w", err)
	}

	var exists bool
	if err := tx.QueryRowContext(ctx, `
		SELECT EXISTS(SELECT 1 FROM users WHERE role = 'admin')
	`).Scan(&exists); err != nil {
		_ = tx.Rollback()
		return false, fmt.Errorf("check admin exists: %w", err)
	}
	if exists {
		_ = tx.Rollback()
		return false, nil
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO users (id, username, password_hash, role)
		VALUES ($1, $2, $3, $4)
	`, user.ID, user.Username, user.PasswordHash, user.Role); err != nil {
		_ = tx.Rollback()
		return false, fmt.Errorf("insert first admin: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit first admin: %w", err)
	}
	return true, nil
}

func (s *PostgresStore) GetUserByID(ctx context.Context, userID string) (User, error) {
	return s.scanUser(s.db.QueryRowContext(ctx, `
		SELECT id, username, password_hash, role, created_at, updated_at
		FROM users WHERE id = $1
	`, userID))
}

func (s *PostgresStore) GetUserByUsername(ctx context.Context, username string) (User, error) {
	return s.scanUser(s.db.QueryRowContext(ctx, `
		SELECT id, username, password_hash, role, created_at, updated_at
		FROM users WHERE username = $1
	`, username))
}

func (s *PostgresStore) scanUser(row *sql.Row) (User, error) {
	var user User
	err := row.Scan(&user.ID, &user.Username, &user.PasswordHash, &user.Role, &user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		return User{}, err
	}
	return user, nil
}

func (s *PostgresStore) ListUsers(ctx context.Context) ([]User, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, username, password_hash, role, created_at, updated_at
		FROM users ORDER BY created_at, id
	`)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	var users []User
	for rows.Next() {
		var user User
		if err := rows.Scan(&user.ID, &user.Username, &user.PasswordHash, &user.Role, &user.CreatedAt, &user.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		users = append(users, user)
	}
	return users, rows.Err()
}

func (s *PostgresStore) UpdateUser(ctx context.Context, user User) (bool, error) {
	var result sql.Result
	var err error
	if user.PasswordHash != "" {
		result, err = s.db.ExecContext(ctx, `
			UPDATE users SET username=$2, role=$3, password_hash=$4, updated_at=NOW()
			WHERE id=$1
		`, user.ID, user.Username, user.Role, user.PasswordHash)
	} else {
		result, err = s.db.ExecContext(ctx, `
			UPDATE users SET username=$2, role=$3, updated_at=NOW()
			WHERE id=$1
		`, user.ID, user.Username, user.Role)
	}
	if err != nil {
		return false, fmt.Errorf("update user: %w", err)
	}
	changed, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return changed > 0, nil
}

func (s *PostgresStore) DeleteUser(ctx context.Context, userID string) (bool, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM users WHERE id=$1`, userID)
	if err != nil {
		return false, fmt.Errorf("delete user: %w", err)
	}
	changed, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return changed > 0, nil
}

func (s *PostgresStore) AdminExists(ctx context.Context) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM users WHERE role='admin')`).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check admin exists: %w", err)
	}
	return exists, nil
}

// UsernamesByID resolves a set of user ids to usernames in one query. Ids
// that do not resolve are simply absent from the result.
func (s *PostgresStore) UsernamesByID(ctx context.Context, ids []string) (map[string]string, error) {
	names := make(map[string]string, len(ids))
	if len(ids) == 0 {
		return names, nil
	}

	placeholders := make([]string, 0, len(ids))
	args := make([]any, 0, len(ids))
	for i, id := range ids {
		placeholders = append(placeholders, fmt.Sprintf("$%d", i+1))
		args = append(args, id)
	}
	query := `SELECT id, username FROM users WHERE id IN (` + strings.Join(placeholders, ",") + `)`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("resolve usernames: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id, username string
		if err := rows.Scan(&id, &username); err != nil {
			return nil, fmt.Errorf("scan username: %w", err)
		}
		names[id] = username
	}
	return names, rows.Err()
}

// Leads

func (s *PostgresStore) InsertLead(ctx context.Context, lead Lead) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO leads (id, school_name, email, address, phone_number, progress_status, assigned_to)
		VALUES ($1, $2, $3, $4, $5, $6, NULLIF($7, ''))
	`, lead.ID, lead.SchoolName, lead.Email, lead.Address, lead.PhoneNumber, lead.ProgressStatus, lead.AssignedTo)
	if err != nil {
		return fmt.Errorf("insert lead: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetLead(ctx context.Context, leadID string) (Lead, error) {
	var lead Lead
	var assignedTo sql.NullString
	err := s.db.QueryRowContext(ctx, `
		SELECT id, school_name, email, address, phone_number, progress_status, assigned_to, version, created_at, updated_at
		FROM leads WHERE id = $1
	`, leadID).Scan(
		&lead.ID, &lead.SchoolName, &lead.Email, &lead.Address, &lead.PhoneNumber,
		&lead.ProgressStatus, &assignedTo, &lead.Version, &lead.CreatedAt, &lead.UpdatedAt,
	)
	if err != nil {
		return Lead{}, err
	}
	lead.AssignedTo = assignedTo.String

	leads := []Lead{lead}
	if err := s.attachChildren(ctx, leads); err != nil {
		return Lead{}, err
	}
	return leads[0], nil
}

func (s *PostgresStore) ListLeads(ctx context.Context) ([]Lead, error) {
	return s.listLeads(ctx, `
		SELECT id, school_name, email, address, phone_number, progress_status, assigned_to, version, created_at, updated_at
		FROM leads ORDER BY created_at, id
	`)
}

func (s *PostgresStore) ListLeadsByOwner(ctx context.Context, ownerID string) ([]Lead, error) {
	return s.listLeads(ctx, `
		SELECT id, school_name, email, address, phone_number, progress_status, assigned_to, version, created_at, updated_at
		FROM leads WHERE assigned_to = $1 ORDER BY created_at, id
	`, ownerID)
}

func (s *PostgresStore) listLeads(ctx context.Context, query string, args ...any) ([]Lead, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list leads: %w", err)
	}
	defer rows.Close()

	var leads []Lead
	for rows.Next() {
		var lead Lead
		var assignedTo sql.NullString
		if err := rows.Scan(
			&lead.ID, &lead.SchoolName, &lead.Email, &lead.Address, &lead.PhoneNumber,
			&lead.ProgressStatus, &assignedTo, &lead.Version, &lead.CreatedAt, &lead.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan lead: %w", err)
		}
		lead.AssignedTo = assignedTo.String
		leads = append(leads, lead)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if err := s.attachChildren(ctx, leads); err != nil {
		return nil, err
	}
	return leads, nil
}

// attachChildren loads statusHistory and emailCampaigns for every lead in the
// slice, preserving append (seq) order.
func (s *PostgresStore) attachChildren(ctx context.Context, leads []Lead) error {
	if len(leads) == 0 {
		return nil
	}
	index := make(map[string]int, len(leads))
	placeholders := make([]string, 0, len(leads))
	args := make([]any, 0, len(leads))
	for i := range leads {
		index[leads[i].ID] = i
		placeholders = append(placeholders, fmt.Sprintf("$%d", i+1))
		args = append(args, leads[i].ID)
	}
	inList := strings.Join(placeholders, ",")

	historyRows, err := s.db.QueryContext(ctx, `
		SELECT id, lead_id, status, assigned_to, description, updated_at
		FROM lead_history WHERE lead_id IN (`+inList+`) ORDER BY seq
	`, args...)
	if err != nil {
		return fmt.Errorf("load history: %w", err)
	}
	defer historyRows.Close()
	for historyRows.Next() {
		var entry HistoryEntry
		var assignedTo sql.NullString
		if err := historyRows.Scan(&entry.ID, &entry.LeadID, &entry.Status, &assignedTo, &entry.Description, &entry.UpdatedAt); err != nil {
			return fmt.Errorf("scan history entry: %w", err)
		}
		entry.AssignedTo = assignedTo.String
		i := index[entry.LeadID]
		leads[i].StatusHistory = append(leads[i].StatusHistory, entry)
	}
	if err := historyRows.Err(); err != nil {
		return err
	}

	campaignRows, err := s.db.QueryContext(ctx, `
		SELECT id, lead_id, category, content, sent_by, sent_at
		FROM lead_campaigns WHERE lead_id IN (`+inList+`) ORDER BY seq
	`, args...)
	if err != nil {
		return fmt.Errorf("load campaigns: %w", err)
	}
	defer campaignRows.Close()
	for campaignRows.Next() {
		var entry CampaignEntry
		if err := campaignRows.Scan(&entry.ID, &entry.LeadID, &entry.Category, &entry.Content, &entry.SentBy, &entry.SentAt); err != nil {
			return fmt.Errorf("scan campaign entry: %w", err)
		}
		i := index[entry.LeadID]
		leads[i].EmailCampaigns = append(leads[i].EmailCampaigns, entry)
	}
	return campaignRows.Err()
}

// SaveLeadUpdate persists the patched scalar fields and appends the history
// entries produced for them as one transaction. The write is conditional on
// expectedVersion: a false return means another writer got there first and
// nothing was changed.
func (s *PostgresStore) SaveLeadUpdate(ctx context.Context, lead Lead, expectedVersion int64, entries []HistoryEntry) (bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin lead update: %w", err)
	}

	result, err := tx.ExecContext(ctx, `
		UPDATE leads
		SET school_name=$2, email=$3, address=$4, phone_number=$5, progress_status=$6,
			assigned_to=NULLIF($7, ''), version=version+1, updated_at=NOW()
		WHERE id=$1 AND version=$8
	`, lead.ID, lead.SchoolName, lead.Email, lead.Address, lead.PhoneNumber,
		lead.ProgressStatus, lead.AssignedTo, expectedVersion)
	if err != nil {
		_ = tx.Rollback()
		return false, fmt.Errorf("update lead: %w", err)
	}
	changed, err := result.RowsAffected()
	if err != nil {
		_ = tx.Rollback()
		return false, err
	}
	if changed == 0 {
		_ = tx.Rollback()
		return false, nil
	}

	for _, entry := range entries {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO lead_history (id, lead_id, status, assigned_to, description, updated_at)
			VALUES ($1, $2, $3, NULLIF($4, ''), $5, $6)
		`, entry.ID, lead.ID, entry.Status, entry.AssignedTo, entry.Description, entry.UpdatedAt); err != nil {
			_ = tx.Rollback()
			return false, fmt.Errorf("append history: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit lead update: %w", err)
	}
	return true, nil
}

func (s *PostgresStore) DeleteLead(ctx context.Context, leadID string) (bool, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM leads WHERE id=$1`, leadID)
	if err != nil {
		return false, fmt.Errorf("delete lead: %w", err)
	}
	changed, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return changed > 0, nil
}

// UpdateHistoryDescription replaces only the description of one ledger entry.
// Status, owner snapshot, and timestamp are immutable.
func (s *PostgresStore) UpdateHistoryDescription(ctx context.Context, leadID, historyID, description string) (bool, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE lead_history SET description=$3 WHERE lead_id=$1 AND id=$2
	`, leadID, historyID, description)
	if err != nil {
		return false, fmt.Errorf("update history description: %w", err)
	}
	changed, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return changed > 0, nil
}

// Campaigns

func (s *PostgresStore) InsertCampaign(ctx context.Context, entry CampaignEntry) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO lead_campaigns (id, lead_id, category, content, sent_by, sent_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, entry.ID, entry.LeadID, entry.Category, entry.Content, entry.SentBy, entry.SentAt)
	if err != nil {
		return fmt.Errorf("insert campaign: %w", err)
	}
	return nil
}

func (s *PostgresStore) UpdateCampaign(ctx context.Context, entry CampaignEntry) (bool, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE lead_campaigns SET category=$3, content=$4, sent_by=$5, sent_at=$6
		WHERE lead_id=$1 AND id=$2
	`, entry.LeadID, entry.ID, entry.Category, entry.Content, entry.SentBy, entry.SentAt)
	if err != nil {
		return false, fmt.Errorf("update campaign: %w", err)
	}
	changed, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return changed > 0, nil
}

func (s *PostgresStore) DeleteCampaign(ctx context.Context, leadID, campaignID string) (bool, error) {
	result, err := s.db.ExecContext(ctx, `
		DELETE FROM lead_campaigns WHERE lead_id=$1 AND id=$2
	`, leadID, campaignID)
	if err != nil {
		return false, fmt.Errorf("delete campaign: %w", err)
	}
	changed, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return changed > 0, nil
}

// Sessions (Postgres fallback when Redis is not configured)

func (s *PostgresStore) SaveRefreshSession(ctx context.Context, tokenHash, userID string, expiresAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO refresh_sessions (token_hash, user_id, expires_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (token_hash) DO UPDATE SET user_id=EXCLUDED.user_id, expires_at=EXCLUDED.expires_at, revoked_at=NULL
	`, tokenHash, userID, expiresAt)
	if err != nil {
		return fmt.Errorf("save refresh session: %w", err)
	}
	return nil
}

func (s *PostgresStore) LookupRefreshSession(ctx context.Context, tokenHash string) (User, error) {
	const query = `
		SELECT u.id, u.username, u.password_hash, u.role, u.created_at, u.updated_at
		FROM refresh_sessions rs
		JOIN users u ON u.id = rs.user_id
		WHERE rs.token_hash = $1
			AND rs.revoked_at IS NULL
			AND rs.expires_at > NOW()
	`
	var user User
	err := s.db.QueryRowContext(ctx, query, tokenHash).Scan(
		&user.ID, &user.Username, &user.PasswordHash, &user.Role, &user.CreatedAt, &user.UpdatedAt,
	)
	if err != nil {
		return User{}, err
	}
	return user, nil
}

func (s *PostgresStore) RevokeRefreshSession(ctx context.Context, tokenHash string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE refresh_sessions SET revoked_at=NOW() WHERE token_hash=$1`, tokenHash)
	if err != nil {
		return fmt.Errorf("revoke refresh session: %w", err)
	}
	return nil
}

func (s *PostgresStore) RevokeAccessToken(ctx context.Context, jti string, expiresAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO revoked_tokens (jti, expires_at)
		VALUES ($1, $2)
		ON CONFLICT (jti) DO NOTHING
	`, jti, expiresAt)
	if err != nil {
		return fmt.Errorf("revoke access token: %w", err)
	}
	return nil
}

func (s *PostgresStore) IsAccessTokenRevoked(ctx context.Context, jti string) (bool, error) {
	var revoked bool
	err := s.db.QueryRowContext(ctx, `
		SELECT EXISTS(SELECT 1 FROM revoked_tokens WHERE jti=$1 AND expires_at > NOW())
	`, jti).Scan(&revoked)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return false, fmt.Errorf("check revoked token: %w", err)
	}
	return revoked, nil
}
