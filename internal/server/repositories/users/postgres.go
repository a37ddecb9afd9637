package users

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/taskhub/internal/common"
	"github.com/dmitrijs2005/taskhub/internal/dbx"
	"github.com/dmitrijs2005/taskhub/internal/server/models"
)

const userColumns = `id, name, email, password_hash, role, email_verified,
		email_verification_token, token_expires_at,
		password_reset_token, password_reset_expires_at,
		sso_token, sso_token_expires_at,
		password_changed_at, created_at, updated_at`

// PostgresRepository implements Repository over dbx.DBTX, so the same code
// runs on *sql.DB and inside a transaction.
type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// tokenColumns maps a token class to its value and expiry columns.
func tokenColumns(class models.TokenClass) (value, expires string, err error) {
	switch class {
	case models.TokenEmailVerification:
		return "email_verification_token", "token_expires_at", nil
	case models.TokenPasswordReset:
		return "password_reset_token", "password_reset_expires_at", nil
	case models.TokenSSO:
		return "sso_token", "sso_token_expires_at", nil
	}
	return "", "", fmt.Errorf("unknown token class %d", class)
}

func nullToken(t models.Token) (sql.NullString, sql.NullTime) {
	if t.IsZero() {
		return sql.NullString{}, sql.NullTime{}
	}
	return sql.NullString{String: t.Value, Valid: true}, sql.NullTime{Time: t.ExpiresAt, Valid: true}
}

func tokenFromNull(v sql.NullString, exp sql.NullTime) models.Token {
	if !v.Valid {
		return models.Token{}
	}
	return models.Token{Value: v.String, ExpiresAt: exp.Time}
}

func scanUser(row *sql.Row) (*models.User, error) {
	var (
		u                   models.User
		role                string
		verifyTok, resetTok sql.NullString
		ssoTok              sql.NullString
		verifyExp, resetExp sql.NullTime
		ssoExp              sql.NullTime
	)

	err := row.Scan(&u.ID, &u.Name, &u.Email, &u.PasswordHash, &role, &u.EmailVerified,
		&verifyTok, &verifyExp,
		&resetTok, &resetExp,
		&ssoTok, &ssoExp,
		&u.PasswordChangedAt, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}

	u.Role = models.Role(role)
	u.EmailVerification = tokenFromNull(verifyTok, verifyExp)
	u.PasswordReset = tokenFromNull(resetTok, resetExp)
	u.SSO = tokenFromNull(ssoTok, ssoExp)

	return &u, nil
}

func (r *PostgresRepository) Create(ctx context.Context, user *models.User) (*models.User, error) {
	query := `
		INSERT INTO users (name, email, password_hash, role, email_verified, email_verification_token, token_expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, password_changed_at, created_at, updated_at
	`

	tok, exp := nullToken(user.EmailVerification)
	user.Email = models.NormalizeEmail(user.Email)

	err := r.db.QueryRowContext(ctx, query,
		user.Name, user.Email, user.PasswordHash, string(user.Role), user.EmailVerified, tok, exp,
	).Scan(&user.ID, &user.PasswordChangedAt, &user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		if dbx.IsUniqueViolation(err) {
			return nil, common.ErrEmailTaken
		}
		return nil, fmt.Errorf("db error: %w", err)
	}

	return user, nil
}

func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	return scanUser(r.db.QueryRowContext(ctx, query, id))
}

func (r *PostgresRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE lower(email) = $1`
	return scanUser(r.db.QueryRowContext(ctx, query, models.NormalizeEmail(email)))
}

func (r *PostgresRepository) FindByToken(ctx context.Context, class models.TokenClass, value string) (*models.User, error) {
	col, _, err := tokenColumns(class)
	if err != nil {
		return nil, err
	}

	query := fmt.Sprintf(`SELECT %s FROM users WHERE %s = $1`, userColumns, col)
	return scanUser(r.db.QueryRowContext(ctx, query, value))
}

func (r *PostgresRepository) SetToken(ctx context.Context, userID string, class models.TokenClass, token models.Token) error {
	col, expCol, err := tokenColumns(class)
	if err != nil {
		return err
	}

	query := fmt.Sprintf(`UPDATE users SET %s = $2, %s = $3, updated_at = now() WHERE id = $1`, col, expCol)

	tok, exp := nullToken(token)
	res, err := r.db.ExecContext(ctx, query, userID, tok, exp)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return requireOneRow(res)
}

func (r *PostgresRepository) ConsumeToken(ctx context.Context, class models.TokenClass, value string, now time.Time) (*models.User, error) {
	col, expCol, err := tokenColumns(class)
	if err != nil {
		return nil, err
	}

	query := fmt.Sprintf(`
		UPDATE users SET %[1]s = NULL, %[2]s = NULL, updated_at = now()
		WHERE %[1]s = $1 AND %[2]s >= $2
		RETURNING %[3]s`, col, expCol, userColumns)

	user, err := scanUser(r.db.QueryRowContext(ctx, query, value, now))
	if err != nil {
		return nil, err
	}
	user.SetToken(class, models.Token{Value: value})
	return user, nil
}

func (r *PostgresRepository) ClearToken(ctx context.Context, class models.TokenClass, value string) error {
	col, expCol, err := tokenColumns(class)
	if err != nil {
		return err
	}

	query := fmt.Sprintf(`UPDATE users SET %s = NULL, %s = NULL, updated_at = now() WHERE %s = $1`, col, expCol, col)
	if _, err := r.db.ExecContext(ctx, query, value); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) MarkEmailVerified(ctx context.Context, userID string) error {
	query := `UPDATE users SET email_verified = TRUE, updated_at = now() WHERE id = $1`
	res, err := r.db.ExecContext(ctx, query, userID)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return requireOneRow(res)
}

// UpdatePassword also drops any pending reset and SSO token; both were
// issued against the old password.
func (r *PostgresRepository) UpdatePassword(ctx context.Context, userID, passwordHash string, changedAt time.Time) error {
	query := `UPDATE users SET password_hash = $2, password_changed_at = $3, updated_at = $3,
		password_reset_token = NULL, password_reset_expires_at = NULL,
		sso_token = NULL, sso_token_expires_at = NULL
		WHERE id = $1`
	res, err := r.db.ExecContext(ctx, query, userID, passwordHash, changedAt)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return requireOneRow(res)
}

func (r *PostgresRepository) Delete(ctx context.Context, userID string) error {
	query := `DELETE FROM users WHERE id = $1`
	res, err := r.db.ExecContext(ctx, query, userID)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return requireOneRow(res)
}

func requireOneRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if n == 0 {
		return common.ErrorNotFound
	}
	return nil
}
