package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
)

var (
	// ErrDuplicateFileNumber is returned when an insert or update would
	// violate the file_number uniqueness constraint.
	ErrDuplicateFileNumber = errors.New("file number already exists")
	// ErrDuplicatePhoneNumber is returned when a registration reuses a phone
	// number.
	ErrDuplicatePhoneNumber = errors.New("phone number already registered")
)

const pgUniqueViolation = "23505"

func uniqueViolation(err error, constraint string) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation && pgErr.ConstraintName == constraint
}

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
		INSERT INTO users (id, phone_number, password_hash, first_name, last_name, department, role)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, user.ID, user.PhoneNumber, user.PasswordHash, user.FirstName, user.LastName, user.Department, user.Role)
	if uniqueViolation(err, "users_phone_number_key") {
		return ErrDuplicatePhoneNumber
	}
	if err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetUserByID(ctx context.Context, userID string) (User, error) {
	return s.scanUser(s.db.QueryRowContext(ctx, `
		SELECT id, phone_number, password_hash, first_name, last_name, department, role, created_at
		FROM users WHERE id = $1
	`, userID))
}

func (s *PostgresStore) GetUserByPhone(ctx context.Context, phoneNumber string) (User, error) {
	return s.scanUser(s.db.QueryRowContext(ctx, `
		SELECT id, phone_number, password_hash, first_name, last_name, department, role, created_at
		FROM users WHERE phone_number = $1
	`, phoneNumber))
}

func (s *PostgresStore) scanUser(row *sql.Row) (User, error) {
	var user User
	err := row.Scan(&user.ID, &user.PhoneNumber, &user.PasswordHash, &user.FirstName,
		&user.LastName, &user.Department, &user.Role, &user.CreatedAt)
	if err != nil {
		return User{}, err
	}
	return user, nil
}

func (s *PostgresStore) ListUsers(ctx context.Context) ([]User, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, phone_number, password_hash, first_name, last_name, department, role, created_at
		FROM users
		ORDER BY first_name, last_name
	`)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	var users []User
	for rows.Next() {
		var user User
		if err := rows.Scan(&user.ID, &user.PhoneNumber, &user.PasswordHash, &user.FirstName,
			&user.LastName, &user.Department, &user.Role, &user.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		users = append(users, user)
	}
	return users, rows.Err()
}

func (s *PostgresStore) CountUsers(ctx context.Context) (int, error) {
	var count int
	if err := s.db.QueryRowContext(ctx, `SELECT count(*) FROM users`).Scan(&count); err != nil {
		return 0, fmt.Errorf("count users: %w", err)
	}
	return count, nil
}

// Files

func (s *PostgresStore) InsertFile(ctx context.Context, file File) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO files (id, file_number, dispatched_date, assigned_to, current_status, remarks, uploaded_by, upload_date)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, file.ID, file.FileNumber, file.DispatchedDate, file.AssignedTo, file.CurrentStatus,
		file.Remarks, file.UploadedBy, file.UploadDate)
	if uniqueViolation(err, "files_file_number_key") {
		return ErrDuplicateFileNumber
	}
	if err != nil {
		return fmt.Errorf("insert file: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetFile(ctx context.Context, fileID string) (File, error) {
	var file File
	err := s.db.QueryRowContext(ctx, `
		SELECT id, file_number, dispatched_date, assigned_to, current_status, remarks, uploaded_by, upload_date
		FROM files WHERE id = $1
	`, fileID).Scan(&file.ID, &file.FileNumber, &file.DispatchedDate, &file.AssignedTo,
		&file.CurrentStatus, &file.Remarks, &file.UploadedBy, &file.UploadDate)
	if err != nil {
		return File{}, err
	}
	return file, nil
}

func (s *PostgresStore) UpdateFile(ctx context.Context, file File) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE files
		SET file_number = $2, dispatched_date = $3, assigned_to = $4, current_status = $5, remarks = $6
		WHERE id = $1
	`, file.ID, file.FileNumber, file.DispatchedDate, file.AssignedTo, file.CurrentStatus, file.Remarks)
	if uniqueViolation(err, "files_file_number_key") {
		return ErrDuplicateFileNumber
	}
	if err != nil {
		return fmt.Errorf("update file: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update file rows: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func (s *PostgresStore) DeleteFile(ctx context.Context, fileID string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM files WHERE id = $1`, fileID)
	if err != nil {
		return fmt.Errorf("delete file: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete file rows: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func (s *PostgresStore) ListFilesAssignedTo(ctx context.Context, userID string, limit int) ([]File, error) {
	return s.queryFiles(ctx, `
		SELECT id, file_number, dispatched_date, assigned_to, current_status, remarks, uploaded_by, upload_date
		FROM files WHERE assigned_to = $1
		ORDER BY upload_date DESC
	`+limitClause(limit), userID)
}

func (s *PostgresStore) ListFilesUploadedBy(ctx context.Context, userID string) ([]File, error) {
	return s.queryFiles(ctx, `
		SELECT id, file_number, dispatched_date, assigned_to, current_status, remarks, uploaded_by, upload_date
		FROM files WHERE uploaded_by = $1
		ORDER BY upload_date DESC
	`, userID)
}

func (s *PostgresStore) ListAllFiles(ctx context.Context, limit int) ([]File, error) {
	return s.queryFiles(ctx, `
		SELECT id, file_number, dispatched_date, assigned_to, current_status, remarks, uploaded_by, upload_date
		FROM files
		ORDER BY upload_date DESC
	`+limitClause(limit))
}

func limitClause(limit int) string {
	if limit <= 0 {
		return ""
	}
	return fmt.Sprintf(" LIMIT %d", limit)
}

func (s *PostgresStore) queryFiles(ctx context.Context, query string, args ...any) ([]File, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list files: %w", err)
	}
	defer rows.Close()

	var files []File
	for rows.Next() {
		var file File
		if err := rows.Scan(&file.ID, &file.FileNumber, &file.DispatchedDate, &file.AssignedTo,
			&file.CurrentStatus, &file.Remarks, &file.UploadedBy, &file.UploadDate); err != nil {
			return nil, fmt.Errorf("scan file: %w", err)
		}
		files = append(files, file)
	}
	return files, rows.Err()
}

func (s *PostgresStore) CountFiles(ctx context.Context) (int, error) {
	var count int
	if err := s.db.QueryRowContext(ctx, `SELECT count(*) FROM files`).Scan(&count); err != nil {
		return 0, fmt.Errorf("count files: %w", err)
	}
	return count, nil
}

func (s *PostgresStore) CountFilesAssignedTo(ctx context.Context, userID string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `SELECT count(*) FROM files WHERE assigned_to = $1`, userID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count assigned files: %w", err)
	}
	return count, nil
}

func (s *PostgresStore) CountFilesUploadedBy(ctx context.Context, userID string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `SELECT count(*) FROM files WHERE uploaded_by = $1`, userID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count uploaded files: %w", err)
	}
	return count, nil
}

// CountFilesByStatus returns per-status counts across all files. Statuses
// with no files are absent from the map; callers zero-fill.
func (s *PostgresStore) CountFilesByStatus(ctx context.Context) (map[string]int, error) {
	return s.statusCounts(ctx, `
		SELECT current_status, count(*) FROM files GROUP BY current_status
	`)
}

// CountFilesByStatusAssignedTo is CountFilesByStatus scoped to one assignee.
func (s *PostgresStore) CountFilesByStatusAssignedTo(ctx context.Context, userID string) (map[string]int, error) {
	return s.statusCounts(ctx, `
		SELECT current_status, count(*) FROM files WHERE assigned_to = $1 GROUP BY current_status
	`, userID)
}

func (s *PostgresStore) statusCounts(ctx context.Context, query string, args ...any) (map[string]int, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("status counts: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("scan status count: %w", err)
		}
		counts[status] = count
	}
	return counts, rows.Err()
}

// Notifications

func (s *PostgresStore) InsertNotification(ctx context.Context, notification Notification) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO notifications (id, user_id, type, message, file_id, created_at, read)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, notification.ID, notification.UserID, notification.Type, notification.Message,
		notification.FileID, notification.CreatedAt, notification.Read)
	if err != nil {
		return fmt.Errorf("insert notification: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListNotifications(ctx context.Context, userID string) ([]Notification, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, type, message, file_id, created_at, read
		FROM notifications WHERE user_id = $1
		ORDER BY created_at DESC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	defer rows.Close()

	var notifications []Notification
	for rows.Next() {
		var n Notification
		if err := rows.Scan(&n.ID, &n.UserID, &n.Type, &n.Message, &n.FileID, &n.CreatedAt, &n.Read); err != nil {
			return nil, fmt.Errorf("scan notification: %w", err)
		}
		notifications = append(notifications, n)
	}
	return notifications, rows.Err()
}

// MarkNotificationRead sets read=true on a notification owned by userID and
// returns the updated record. sql.ErrNoRows means no such notification
// belongs to the user.
func (s *PostgresStore) MarkNotificationRead(ctx context.Context, userID, notificationID string) (Notification, error) {
	var n Notification
	err := s.db.QueryRowContext(ctx, `
		UPDATE notifications SET read = TRUE
		WHERE id = $1 AND user_id = $2
		RETURNING id, user_id, type, message, file_id, created_at, read
	`, notificationID, userID).Scan(&n.ID, &n.UserID, &n.Type, &n.Message, &n.FileID, &n.CreatedAt, &n.Read)
	if err != nil {
		return Notification{}, err
	}
	return n, nil
}

func (s *PostgresStore) MarkAllNotificationsRead(ctx context.Context, userID string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE notifications SET read = TRUE
		WHERE user_id = $1 AND read = FALSE
	`, userID)
	if err != nil {
		return fmt.Errorf("mark all notifications read: %w", err)
	}
	return nil
}

func (s *PostgresStore) DeleteNotification(ctx context.Context, userID, notificationID string) error {
	result, err := s.db.ExecContext(ctx, `
		DELETE FROM notifications WHERE id = $1 AND user_id = $2
	`, notificationID, userID)
	if err != nil {
		return fmt.Errorf("delete notification: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete notification rows: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// Revoked access tokens (Postgres fallback when Redis is not configured)

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
		SELECT EXISTS(SELECT 1 FROM revoked_tokens WHERE jti = $1 AND expires_at > NOW())
	`, jti).Scan(&revoked)
	if err != nil {
		return false, fmt.Errorf("check revoked token: %w", err)
	}
	return revoked, nil
}
