package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/riftwalk/server/internal/storage"
)

// InventoryRepository provides inventory persistence operations.
type InventoryRepository struct {
	db *pgxpool.Pool
}

// NewInventoryRepository creates an InventoryRepository backed by the given pool.
func NewInventoryRepository(db *pgxpool.Pool) *InventoryRepository {
	return &InventoryRepository{db: db}
}

const inventoryColumns = `id, character_id, item_id, name, quantity, slot, created_at`

func scanItem(row pgx.Row) (*storage.InventoryItem, error) {
	var it storage.InventoryItem
	err := row.Scan(&it.ID, &it.CharacterID, &it.ItemID, &it.Name, &it.Quantity, &it.Slot, &it.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &it, nil
}

// ListByCharacter returns a character's inventory, oldest stacks first.
func (r *InventoryRepository) ListByCharacter(ctx context.Context, characterID string) ([]*storage.InventoryItem, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+inventoryColumns+` FROM inventory_items
		 WHERE character_id = $1 ORDER BY created_at ASC, id ASC`, characterID)
	if err != nil {
		return nil, fmt.Errorf("listing inventory: %w", err)
	}
	defer rows.Close()

	items := make([]*storage.InventoryItem, 0)
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning inventory row: %w", err)
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

// Add inserts a new inventory stack.
func (r *InventoryRepository) Add(ctx context.Context, item *storage.InventoryItem) (*storage.InventoryItem, error) {
	out, err := scanItem(r.db.QueryRow(ctx, `
		INSERT INTO inventory_items (character_id, item_id, name, quantity, slot)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING `+inventoryColumns,
		item.CharacterID, item.ItemID, item.Name, item.Quantity, item.Slot))
	if err != nil {
		return nil, fmt.Errorf("inserting inventory item: %w", err)
	}
	return out, nil
}

// UpdateQuantity sets a stack's quantity.
func (r *InventoryRepository) UpdateQuantity(ctx context.Context, id string, quantity int) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE inventory_items SET quantity = $2 WHERE id = $1`, id, quantity)
	if err != nil {
		return fmt.Errorf("updating inventory quantity: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("inventory item %s: %w", id, storage.ErrNotFound)
	}
	return nil
}

// Remove deletes a stack.
func (r *InventoryRepository) Remove(ctx context.Context, id string) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM inventory_items WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("removing inventory item: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("inventory item %s: %w", id, storage.ErrNotFound)
	}
	return nil
}
