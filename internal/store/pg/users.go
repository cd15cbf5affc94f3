package pg

import (
	"context"
	"time"

	"github.com/onepass-id/onepass/internal/store/core"
)

const userCols = `id, public_id, email, username, virtual_email, is_verified,
	verification_token, otp_secret, otp_code, otp_expires_at, otp_attempts, created_at`

func scanUser(row interface{ Scan(...any) error }) (*core.User, error) {
	var u core.User
	var publicID int64
	err := row.Scan(&u.ID, &publicID, &u.Email, &u.Username, &u.VirtualEmail,
		&u.IsVerified, &u.VerificationToken, &u.OTPSecret, &u.OTPCode,
		&u.OTPExpiresAt, &u.OTPAttempts, &u.CreatedAt)
	if err != nil {
		if noRows(err) {
			return nil, core.ErrNotFound
		}
		return nil, err
	}
	u.PublicID = uint64(publicID)
	return &u, nil
}

func (s *Store) CreateUser(ctx context.Context, u *core.User) error {
	const q = `INSERT INTO users
		(public_id, email, username, virtual_email, is_verified, verification_token)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at`
	err := s.pool.QueryRow(ctx, q,
		int64(u.PublicID), u.Email, u.Username, u.VirtualEmail, u.IsVerified,
		u.VerificationToken).Scan(&u.ID, &u.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return core.ErrConflict
		}
		return err
	}
	return nil
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (*core.User, error) {
	const q = `SELECT ` + userCols + ` FROM users WHERE LOWER(email) = LOWER($1)`
	return scanUser(s.pool.QueryRow(ctx, q, email))
}

func (s *Store) GetUserByID(ctx context.Context, id int64) (*core.User, error) {
	const q = `SELECT ` + userCols + ` FROM users WHERE id = $1`
	return scanUser(s.pool.QueryRow(ctx, q, id))
}

func (s *Store) GetUserByPublicID(ctx context.Context, publicID uint64) (*core.User, error) {
	const q = `SELECT ` + userCols + ` FROM users WHERE public_id = $1`
	return scanUser(s.pool.QueryRow(ctx, q, int64(publicID)))
}

func (s *Store) GetUserByVerificationToken(ctx context.Context, token string) (*core.User, error) {
	const q = `SELECT ` + userCols + ` FROM users WHERE verification_token = $1`
	return scanUser(s.pool.QueryRow(ctx, q, token))
}

func (s *Store) MarkUserVerified(ctx context.Context, id int64) error {
	const q = `UPDATE users SET is_verified = TRUE, verification_token = NULL WHERE id = $1`
	tag, err := s.pool.Exec(ctx, q, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return core.ErrNotFound
	}
	return nil
}

func (s *Store) SetVerificationToken(ctx context.Context, id int64, token string) error {
	const q = `UPDATE users SET verification_token = $2 WHERE id = $1`
	tag, err := s.pool.Exec(ctx, q, id, token)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return core.ErrNotFound
	}
	return nil
}

func (s *Store) SetOTPSecret(ctx context.Context, id int64, secretB32 string) error {
	const q = `UPDATE users SET otp_secret = $2 WHERE id = $1`
	tag, err := s.pool.Exec(ctx, q, id, secretB32)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return core.ErrNotFound
	}
	return nil
}

// ArmOTP instala el código sólo si el slot está libre o vencido. El WHERE
// condicional es el guard de "un código vivo por usuario": dos requests
// concurrentes pegan contra el mismo row y sólo una actualiza.
func (s *Store) ArmOTP(ctx context.Context, userID int64, code string, expiresAt time.Time, attempts int) error {
	const q = `UPDATE users
		SET otp_code = $2, otp_expires_at = $3, otp_attempts = $4
		WHERE id = $1 AND (otp_code IS NULL OR otp_expires_at <= now())`
	tag, err := s.pool.Exec(ctx, q, userID, code, expiresAt, attempts)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 1 {
		return nil
	}
	var exists bool
	if err := s.pool.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM users WHERE id = $1)`, userID).Scan(&exists); err != nil {
		return err
	}
	if !exists {
		return core.ErrNotFound
	}
	return core.ErrConflict
}

// ConsumeOTP es el compare-and-clear. Se toma el row con FOR UPDATE para que
// exactamente un caller concurrente pueda ganar el canje.
func (s *Store) ConsumeOTP(ctx context.Context, userID int64, code string, now time.Time) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	var stored *string
	var expiresAt *time.Time
	err = tx.QueryRow(ctx,
		`SELECT otp_code, otp_expires_at FROM users WHERE id = $1 FOR UPDATE`,
		userID).Scan(&stored, &expiresAt)
	if err != nil {
		if noRows(err) {
			return core.ErrNotFound
		}
		return err
	}
	if stored == nil || expiresAt == nil {
		return core.ErrNotFound
	}

	const clear = `UPDATE users
		SET otp_code = NULL, otp_expires_at = NULL, otp_attempts = 0
		WHERE id = $1`

	if now.After(*expiresAt) {
		if _, err := tx.Exec(ctx, clear, userID); err != nil {
			return err
		}
		if err := tx.Commit(ctx); err != nil {
			return err
		}
		return core.ErrExpired
	}
	if *stored != code {
		return core.ErrInvalid
	}
	if _, err := tx.Exec(ctx, clear, userID); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (s *Store) FailOTPAttempt(ctx context.Context, userID int64) (int, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback(ctx)

	var stored *string
	var attempts int
	err = tx.QueryRow(ctx,
		`SELECT otp_code, otp_attempts FROM users WHERE id = $1 FOR UPDATE`,
		userID).Scan(&stored, &attempts)
	if err != nil {
		if noRows(err) {
			return 0, core.ErrNotFound
		}
		return 0, err
	}
	if stored == nil {
		return 0, core.ErrNotFound
	}

	attempts--
	if attempts <= 0 {
		if _, err := tx.Exec(ctx,
			`UPDATE users SET otp_code = NULL, otp_expires_at = NULL, otp_attempts = 0 WHERE id = $1`,
			userID); err != nil {
			return 0, err
		}
		return 0, tx.Commit(ctx)
	}
	if _, err := tx.Exec(ctx,
		`UPDATE users SET otp_attempts = $2 WHERE id = $1`, userID, attempts); err != nil {
		return 0, err
	}
	return attempts, tx.Commit(ctx)
}

func (s *Store) ClearOTP(ctx context.Context, userID int64) error {
	const q = `UPDATE users
		SET otp_code = NULL, otp_expires_at = NULL, otp_attempts = 0
		WHERE id = $1`
	tag, err := s.pool.Exec(ctx, q, userID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return core.ErrNotFound
	}
	return nil
}
