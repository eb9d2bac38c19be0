package repository

import (
	"context"
	"time"

	"github.com/stockflow/stockflow-backend/internal/stock/domain"
	"github.com/stockflow/stockflow-backend/pkg/database"
)

// CachedEmployee is a locally cached user, maintained from user.events.
// Responsible-user checks resolve against this cache instead of calling
// the user service.
type CachedEmployee struct {
	UserID    string    `db:"user_id" json:"user_id"`
	FullName  string    `db:"full_name" json:"full_name"`
	Email     *string   `db:"email" json:"email,omitempty"`
	RoleName  *string   `db:"role_name" json:"role_name,omitempty"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// EmployeeCacheRepository handles employee cache persistence and
// implements domain.UserDirectory.
type EmployeeCacheRepository struct {
	db *database.DB
}

// NewEmployeeCacheRepository creates a new employee cache repository
func NewEmployeeCacheRepository(db *database.DB) *EmployeeCacheRepository {
	return &EmployeeCacheRepository{db: db}
}

// Set creates or updates a cached employee
func (r *EmployeeCacheRepository) Set(ctx context.Context, e *CachedEmployee) error {
	query := `
		INSERT INTO employee_cache (user_id, full_name, email, role_name, updated_at)
		VALUES ($1, $2, $3, $4, NOW())
		ON CONFLICT (user_id)
		DO UPDATE SET full_name = $2, email = $3, role_name = $4, updated_at = NOW()
	`
	_, err := r.db.ExecContext(ctx, query, e.UserID, e.FullName, e.Email, e.RoleName)
	return mapErr(err, "employee")
}

// Get gets a cached employee by user ID
func (r *EmployeeCacheRepository) Get(ctx context.Context, userID string) (*CachedEmployee, error) {
	var e CachedEmployee
	query := `SELECT * FROM employee_cache WHERE user_id = $1`
	if err := r.db.GetContext(ctx, &e, query, userID); err != nil {
		return nil, mapErr(err, "employee")
	}
	return &e, nil
}

// Delete removes a cached employee
func (r *EmployeeCacheRepository) Delete(ctx context.Context, userID string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM employee_cache WHERE user_id = $1`, userID)
	return mapErr(err, "employee")
}

// GetByID implements domain.UserDirectory
func (r *EmployeeCacheRepository) GetByID(ctx context.Context, id string) (*domain.EmployeeInfo, error) {
	e, err := r.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	info := &domain.EmployeeInfo{
		ID:       e.UserID,
		FullName: e.FullName,
	}
	if e.Email != nil {
		info.Email = *e.Email
	}
	if e.RoleName != nil {
		info.RoleName = *e.RoleName
	}
	return info, nil
}
