package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/zhouzirui/acoda/backend/internal/model/account"
	"github.com/zhouzirui/acoda/backend/internal/store"
)

const userColumns = `id, email, plan, stripe_customer_id, created_at, updated_at`

func (s *Store) CreateUser(ctx context.Context, user *account.User) error {
	_, err := s.exec(ctx,
		`INSERT INTO users (`+userColumns+`) VALUES (?, ?, ?, ?, ?, ?)`,
		user.ID,
		nullString(strings.ToLower(user.Email)),
		string(user.Plan),
		nullString(user.StripeCustomerID),
		user.CreatedAt.UTC(),
		user.UpdatedAt.UTC(),
	)
	if isUniqueViolation(err) {
		return store.ErrConflict
	}
	if err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

func (s *Store) GetUser(ctx context.Context, id string) (*account.User, error) {
	return s.scanUser(s.queryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = ?`, id))
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (*account.User, error) {
	return s.scanUser(s.queryRow(ctx, `SELECT `+userColumns+` FROM users WHERE email = ?`, strings.ToLower(email)))
}

func (s *Store) GetUserByStripeCustomer(ctx context.Context, customerID string) (*account.User, error) {
	return s.scanUser(s.queryRow(ctx, `SELECT `+userColumns+` FROM users WHERE stripe_customer_id = ?`, customerID))
}

func (s *Store) scanUser(row *sql.Row) (*account.User, error) {
	var (
		user     account.User
		email    sql.NullString
		plan     string
		customer sql.NullString
	)
	err := row.Scan(&user.ID, &email, &plan, &customer, &user.CreatedAt, &user.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan user: %w", err)
	}
	user.Email = email.String
	user.Plan = account.Plan(plan)
	user.StripeCustomerID = customer.String
	return &user, nil
}

func (s *Store) UpdateUserPlan(ctx context.Context, id string, plan account.Plan, now time.Time) error {
	res, err := s.exec(ctx, `UPDATE users SET plan = ?, updated_at = ? WHERE id = ?`, string(plan), now.UTC(), id)
	if err != nil {
		return fmt.Errorf("update user plan: %w", err)
	}
	return requireAffected(res)
}

func (s *Store) SetStripeCustomer(ctx context.Context, id, customerID string, now time.Time) error {
	res, err := s.exec(ctx, `UPDATE users SET stripe_customer_id = ?, updated_at = ? WHERE id = ?`, nullString(customerID), now.UTC(), id)
	if isUniqueViolation(err) {
		return store.ErrConflict
	}
	if err != nil {
		return fmt.Errorf("set stripe customer: %w", err)
	}
	return requireAffected(res)
}

// DeleteUser relies on ON DELETE CASCADE for owned rows.
func (s *Store) DeleteUser(ctx context.Context, id string) error {
	res, err := s.exec(ctx, `DELETE FROM users WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	return requireAffected(res)
}
