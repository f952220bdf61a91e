package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

type cartRepository struct {
	db *sql.DB
}

// NewCartRepository создаёт PostgreSQL-реализацию CartRepository.
// Позиции корзины хранятся в cart_items и переписываются целиком при Save.
func NewCartRepository(store *Store) domain.CartRepository {
	return &cartRepository{db: store.DB()}
}

func (r *cartRepository) Get(userID string) (domain.Cart, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	var cart domain.Cart
	err := r.db.QueryRowContext(ctx, `
		SELECT user_id, version, created_at, updated_at
		FROM carts
		WHERE user_id = $1
	`, userID).Scan(&cart.UserID, &cart.Version, &cart.CreatedAt, &cart.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Cart{}, domain.ErrCartNotFound
		}
		return domain.Cart{}, fmt.Errorf("select cart: %w", err)
	}
	cart.CreatedAt = cart.CreatedAt.UTC()
	cart.UpdatedAt = cart.UpdatedAt.UTC()

	lines, err := r.loadLines(ctx, userID)
	if err != nil {
		return domain.Cart{}, err
	}
	cart.Lines = lines
	cart.Recalculate()

	return cart, nil
}

func (r *cartRepository) Create(cart domain.Cart) error {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	return withTx(ctx, r.db, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO carts (user_id, version, created_at, updated_at)
			VALUES ($1,$2,$3,$4)
		`, cart.UserID, cart.Version, cart.CreatedAt, cart.UpdatedAt)
		if err != nil {
			if isUniqueViolation(err) {
				return domain.ErrCartAlreadyExists
			}
			return fmt.Errorf("insert cart: %w", err)
		}
		return insertCartLines(ctx, tx, cart)
	})
}

func (r *cartRepository) Save(cart domain.Cart) (domain.Cart, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	err := withTx(ctx, r.db, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			UPDATE carts
			SET version = version + 1,
			    updated_at = $1
			WHERE user_id = $2
			  AND version = $3
		`, cart.UpdatedAt, cart.UserID, cart.Version)
		if err != nil {
			return fmt.Errorf("update cart: %w", err)
		}

		affected, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("rows affected: %w", err)
		}
		if affected == 0 {
			var exists bool
			if err := tx.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM carts WHERE user_id = $1)`, cart.UserID).Scan(&exists); err != nil {
				return fmt.Errorf("check cart exists: %w", err)
			}
			if !exists {
				return domain.ErrCartNotFound
			}
			return domain.ErrCartVersionConflict
		}

		if _, err := tx.ExecContext(ctx, `DELETE FROM cart_items WHERE user_id = $1`, cart.UserID); err != nil {
			return fmt.Errorf("delete cart items: %w", err)
		}
		return insertCartLines(ctx, tx, cart)
	})
	if err != nil {
		return domain.Cart{}, err
	}

	saved := cart.Clone()
	saved.Version++
	return saved, nil
}

func insertCartLines(ctx context.Context, tx *sql.Tx, cart domain.Cart) error {
	for position, line := range cart.Lines {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO cart_items (id, user_id, product_id, position, quantity, price, added_at)
			VALUES ($1,$2,$3,$4,$5,$6,$7)
		`, line.ID, cart.UserID, line.ProductID, position, line.Quantity, line.Price, line.AddedAt); err != nil {
			return fmt.Errorf("insert cart item: %w", err)
		}
	}
	return nil
}

func (r *cartRepository) loadLines(ctx context.Context, userID string) ([]domain.CartLine, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, product_id, quantity, price, added_at
		FROM cart_items
		WHERE user_id = $1
		ORDER BY position ASC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("select cart items: %w", err)
	}
	defer rows.Close()

	lines := make([]domain.CartLine, 0)
	for rows.Next() {
		var line domain.CartLine
		if err := rows.Scan(&line.ID, &line.ProductID, &line.Quantity, &line.Price, &line.AddedAt); err != nil {
			return nil, fmt.Errorf("scan cart item: %w", err)
		}
		line.AddedAt = line.AddedAt.UTC()
		lines = append(lines, line)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate cart items: %w", err)
	}
	return lines, nil
}

var _ domain.CartRepository = (*cartRepository)(nil)
