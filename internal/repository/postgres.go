package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/cloud-wave-best-zizon/stock-order-service/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

const (
	pgUniqueViolation      = "23505"
	pgSerializationFailure = "40001"
	pgDeadlockDetected     = "40P01"
)

type PostgresStore struct {
	pool *pgxpool.Pool
	now  func() time.Time
}

func NewPostgresStore(ctx context.Context, connString string) (*PostgresStore, error) {
	config, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("failed to parse connection string: %w", err)
	}

	config.MaxConns = 25
	config.MinConns = 2
	config.MaxConnLifetime = time.Hour
	config.MaxConnIdleTime = 30 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &PostgresStore{pool: pool, now: func() time.Time { return time.Now().UTC() }}, nil
}

func (s *PostgresStore) Close() {
	s.pool.Close()
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS items (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			unit_price NUMERIC NOT NULL CHECK (unit_price >= 0),
			quantity INTEGER NOT NULL CHECK (quantity >= 0),
			owner_id TEXT NOT NULL,
			created_at TIMESTAMP WITH TIME ZONE NOT NULL,
			updated_at TIMESTAMP WITH TIME ZONE NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_items_owner_id ON items(owner_id)`,

		`CREATE TABLE IF NOT EXISTS customers (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			nic TEXT NOT NULL UNIQUE,
			address TEXT NOT NULL,
			contact_no TEXT NOT NULL,
			owner_id TEXT NOT NULL,
			created_at TIMESTAMP WITH TIME ZONE NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_customers_owner_id ON customers(owner_id)`,

		`CREATE TABLE IF NOT EXISTS orders (
			id TEXT PRIMARY KEY,
			customer_id TEXT NOT NULL,
			owner_id TEXT NOT NULL,
			ordered_at TIMESTAMP WITH TIME ZONE NOT NULL,
			lines JSONB NOT NULL,
			subtotal NUMERIC NOT NULL,
			discount_percent NUMERIC NOT NULL CHECK (discount_percent >= 0 AND discount_percent <= 100),
			final_amount NUMERIC NOT NULL,
			status VARCHAR(20) NOT NULL CHECK (status IN ('pending', 'completed', 'cancelled')),
			version BIGINT NOT NULL,
			created_at TIMESTAMP WITH TIME ZONE NOT NULL,
			updated_at TIMESTAMP WITH TIME ZONE NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_orders_owner_id ON orders(owner_id, ordered_at DESC)`,

		`CREATE TABLE IF NOT EXISTS order_history (
			archive_id TEXT PRIMARY KEY,
			original_order_id TEXT NOT NULL,
			ordered_at TIMESTAMP WITH TIME ZONE NOT NULL,
			customer_id TEXT NOT NULL,
			customer_name TEXT NOT NULL,
			lines JSONB NOT NULL,
			subtotal NUMERIC NOT NULL,
			discount_percent NUMERIC NOT NULL,
			final_amount NUMERIC NOT NULL,
			status VARCHAR(20) NOT NULL,
			owner_id TEXT NOT NULL,
			archived_at TIMESTAMP WITH TIME ZONE NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_order_history_original ON order_history(original_order_id, archived_at DESC)`,

		`CREATE TABLE IF NOT EXISTS order_delete_intents (
			order_id TEXT PRIMARY KEY,
			archive_id TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMP WITH TIME ZONE NOT NULL
		)`,
		`ALTER TABLE order_delete_intents ADD COLUMN IF NOT EXISTS archive_id TEXT NOT NULL DEFAULT ''`,
	}

	for _, migration := range migrations {
		if _, err := s.pool.Exec(ctx, migration); err != nil {
			return fmt.Errorf("failed to run migration: %w", err)
		}
	}
	return nil
}

type lineJSON struct {
	ItemID    string          `json:"item_id"`
	ItemName  string          `json:"item_name"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
}

func encodeLines(lines []domain.OrderLine) (string, error) {
	out := make([]lineJSON, len(lines))
	for i, l := range lines {
		out[i] = lineJSON(l)
	}
	data, err := json.Marshal(out)
	if err != nil {
		return "", fmt.Errorf("failed to marshal order lines: %w", err)
	}
	return string(data), nil
}

func decodeLines(data []byte) ([]domain.OrderLine, error) {
	var raw []lineJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to unmarshal order lines: %w", err)
	}
	out := make([]domain.OrderLine, len(raw))
	for i, l := range raw {
		out[i] = domain.OrderLine(l)
	}
	return out, nil
}

func pgCode(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}

// classify turns driver errors into the repository's retry and uniqueness vocabulary.
func classify(op string, err error) error {
	switch pgCode(err) {
	case pgSerializationFailure, pgDeadlockDetected:
		return fmt.Errorf("%w: %s: %v", ErrVersionMismatch, op, err)
	case pgUniqueViolation:
		return fmt.Errorf("%w: %s", ErrAlreadyExists, op)
	}
	return storageError(op, err)
}

func toNumeric(d decimal.Decimal) pgtype.Numeric {
	return pgtype.Numeric{Int: d.Coefficient(), Exp: d.Exponent(), Valid: true}
}

func fromNumeric(n pgtype.Numeric) (decimal.Decimal, error) {
	if !n.Valid || n.NaN || n.InfinityModifier != pgtype.Finite {
		return decimal.Zero, errors.New("numeric value is not a finite number")
	}
	if n.Int == nil {
		return decimal.Zero, nil
	}
	return decimal.NewFromBigInt(n.Int, n.Exp), nil
}

func fromNumerics(values ...pgtype.Numeric) ([]decimal.Decimal, error) {
	out := make([]decimal.Decimal, len(values))
	for i, v := range values {
		d, err := fromNumeric(v)
		if err != nil {
			return nil, err
		}
		out[i] = d
	}
	return out, nil
}

const itemColumns = `id, name, unit_price, quantity, owner_id, created_at, updated_at`

func scanItem(row pgx.Row) (*domain.Item, error) {
	var (
		item  domain.Item
		price pgtype.Numeric
	)
	if err := row.Scan(&item.ItemID, &item.Name, &price, &item.Quantity, &item.OwnerID, &item.CreatedAt, &item.UpdatedAt); err != nil {
		return nil, err
	}
	p, err := fromNumeric(price)
	if err != nil {
		return nil, fmt.Errorf("item %s unit price: %w", item.ItemID, err)
	}
	item.UnitPrice = p
	return &item, nil
}

func (s *PostgresStore) CreateItem(ctx context.Context, item *domain.Item) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO items (id, name, unit_price, quantity, owner_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		item.ItemID, item.Name, toNumeric(item.UnitPrice), item.Quantity, item.OwnerID, item.CreatedAt, item.UpdatedAt)
	if err != nil {
		return classify("insert item "+item.ItemID, err)
	}
	return nil
}

func (s *PostgresStore) GetItem(ctx context.Context, itemID string) (*domain.Item, error) {
	item, err := scanItem(s.pool.QueryRow(ctx, `SELECT `+itemColumns+` FROM items WHERE id = $1`, itemID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.NotFoundError("item", itemID)
	}
	if err != nil {
		return nil, classify("get item", err)
	}
	return item, nil
}

func (s *PostgresStore) UpdateItemDetails(ctx context.Context, item *domain.Item) error {
	tag, err := s.pool.Exec(ctx, `UPDATE items SET name = $2, unit_price = $3, updated_at = $4 WHERE id = $1`,
		item.ItemID, item.Name, toNumeric(item.UnitPrice), item.UpdatedAt)
	if err != nil {
		return classify("update item", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.NotFoundError("item", item.ItemID)
	}
	return nil
}

func (s *PostgresStore) ListItems(ctx context.Context, ownerID string) ([]domain.Item, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+itemColumns+` FROM items WHERE owner_id = $1 ORDER BY id`, ownerID)
	if err != nil {
		return nil, classify("list items", err)
	}
	defer rows.Close()

	var items []domain.Item
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, classify("scan item", err)
		}
		items = append(items, *item)
	}
	if err := rows.Err(); err != nil {
		return nil, classify("list items", err)
	}
	return items, nil
}

func (s *PostgresStore) DeleteItem(ctx context.Context, itemID string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM items WHERE id = $1`, itemID)
	if err != nil {
		return classify("delete item", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.NotFoundError("item", itemID)
	}
	return nil
}

func (s *PostgresStore) CreateCustomer(ctx context.Context, c *domain.Customer) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO customers (id, name, nic, address, contact_no, owner_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		c.CustomerID, c.Name, c.NIC, c.Address, c.ContactNo, c.OwnerID, c.CreatedAt)
	if err != nil {
		return classify("insert customer "+c.CustomerID, err)
	}
	return nil
}

const customerColumns = `id, name, nic, address, contact_no, owner_id, created_at`

func scanCustomer(row pgx.Row) (*domain.Customer, error) {
	var c domain.Customer
	if err := row.Scan(&c.CustomerID, &c.Name, &c.NIC, &c.Address, &c.ContactNo, &c.OwnerID, &c.CreatedAt); err != nil {
		return nil, err
	}
	return &c, nil
}

func (s *PostgresStore) GetCustomer(ctx context.Context, customerID string) (*domain.Customer, error) {
	c, err := scanCustomer(s.pool.QueryRow(ctx, `SELECT `+customerColumns+` FROM customers WHERE id = $1`, customerID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.NotFoundError("customer", customerID)
	}
	if err != nil {
		return nil, classify("get customer", err)
	}
	return c, nil
}

func (s *PostgresStore) ListCustomers(ctx context.Context, ownerID string) ([]domain.Customer, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+customerColumns+` FROM customers WHERE owner_id = $1 ORDER BY id`, ownerID)
	if err != nil {
		return nil, classify("list customers", err)
	}
	defer rows.Close()

	var customers []domain.Customer
	for rows.Next() {
		c, err := scanCustomer(rows)
		if err != nil {
			return nil, classify("scan customer", err)
		}
		customers = append(customers, *c)
	}
	if err := rows.Err(); err != nil {
		return nil, classify("list customers", err)
	}
	return customers, nil
}

func (s *PostgresStore) UpdateCustomer(ctx context.Context, c *domain.Customer) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE customers SET name = $2, nic = $3, address = $4, contact_no = $5 WHERE id = $1`,
		c.CustomerID, c.Name, c.NIC, c.Address, c.ContactNo)
	if err != nil {
		return classify("update customer "+c.CustomerID, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.NotFoundError("customer", c.CustomerID)
	}
	return nil
}

func (s *PostgresStore) DeleteCustomer(ctx context.Context, customerID string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM customers WHERE id = $1`, customerID)
	if err != nil {
		return classify("delete customer", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.NotFoundError("customer", customerID)
	}
	return nil
}

const orderColumns = `id, customer_id, owner_id, ordered_at, lines, subtotal, discount_percent,
	final_amount, status, version, created_at, updated_at`

func scanOrder(row pgx.Row) (*domain.Order, error) {
	var (
		o                         domain.Order
		lines                     []byte
		subtotal, discount, final pgtype.Numeric
		status                    string
	)
	if err := row.Scan(&o.OrderID, &o.CustomerID, &o.OwnerID, &o.OrderedAt, &lines, &subtotal, &discount,
		&final, &status, &o.Version, &o.CreatedAt, &o.UpdatedAt); err != nil {
		return nil, err
	}
	var err error
	if o.Lines, err = decodeLines(lines); err != nil {
		return nil, err
	}
	amounts, err := fromNumerics(subtotal, discount, final)
	if err != nil {
		return nil, fmt.Errorf("order %s amounts: %w", o.OrderID, err)
	}
	o.Subtotal, o.DiscountPercent, o.FinalAmount = amounts[0], amounts[1], amounts[2]
	if o.Status, err = domain.ParseOrderStatus(status); err != nil {
		return nil, err
	}
	return &o, nil
}

func (s *PostgresStore) GetOrder(ctx context.Context, orderID string) (*domain.Order, error) {
	o, err := scanOrder(s.pool.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, orderID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.NotFoundError("order", orderID)
	}
	if err != nil {
		return nil, classify("get order", err)
	}
	return o, nil
}

func (s *PostgresStore) ListOrders(ctx context.Context, ownerID string) ([]domain.Order, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+orderColumns+` FROM orders WHERE owner_id = $1 ORDER BY ordered_at DESC`, ownerID)
	if err != nil {
		return nil, classify("list orders", err)
	}
	defer rows.Close()

	var orders []domain.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, classify("scan order", err)
		}
		orders = append(orders, *o)
	}
	if err := rows.Err(); err != nil {
		return nil, classify("list orders", err)
	}
	return orders, nil
}

const historyColumns = `archive_id, original_order_id, ordered_at, customer_id, customer_name, lines,
	subtotal, discount_percent, final_amount, status, owner_id, archived_at`

func scanHistory(row pgx.Row) (*domain.OrderHistoryEntry, error) {
	var (
		h                         domain.OrderHistoryEntry
		lines                     []byte
		subtotal, discount, final pgtype.Numeric
		status                    string
	)
	err := row.Scan(&h.ArchiveID, &h.OriginalOrderID, &h.OrderedAt, &h.CustomerID, &h.CustomerName, &lines,
		&subtotal, &discount, &final, &status, &h.OwnerID, &h.ArchivedAt)
	if err != nil {
		return nil, err
	}
	if h.Lines, err = decodeLines(lines); err != nil {
		return nil, err
	}
	amounts, err := fromNumerics(subtotal, discount, final)
	if err != nil {
		return nil, fmt.Errorf("archive %s amounts: %w", h.ArchiveID, err)
	}
	h.Subtotal, h.DiscountPercent, h.FinalAmount = amounts[0], amounts[1], amounts[2]
	h.Status = domain.OrderStatus(status)
	return &h, nil
}

func (s *PostgresStore) FindHistory(ctx context.Context, originalOrderID string) (*domain.OrderHistoryEntry, error) {
	h, err := scanHistory(s.pool.QueryRow(ctx, `
		SELECT `+historyColumns+` FROM order_history WHERE original_order_id = $1
		ORDER BY archived_at DESC, archive_id DESC LIMIT 1`, originalOrderID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.NotFoundError("order history", originalOrderID)
	}
	if err != nil {
		return nil, classify("find history", err)
	}
	return h, nil
}

func (s *PostgresStore) ListHistory(ctx context.Context, originalOrderID string) ([]domain.OrderHistoryEntry, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+historyColumns+` FROM order_history WHERE original_order_id = $1
		ORDER BY archived_at, archive_id`, originalOrderID)
	if err != nil {
		return nil, classify("list history", err)
	}
	defer rows.Close()

	var entries []domain.OrderHistoryEntry
	for rows.Next() {
		h, err := scanHistory(rows)
		if err != nil {
			return nil, classify("scan history", err)
		}
		entries = append(entries, *h)
	}
	if err := rows.Err(); err != nil {
		return nil, classify("list history", err)
	}
	return entries, nil
}

func (s *PostgresStore) ListDeleteIntents(ctx context.Context) ([]DeleteIntent, error) {
	rows, err := s.pool.Query(ctx, `SELECT order_id, archive_id, created_at FROM order_delete_intents ORDER BY order_id`)
	if err != nil {
		return nil, classify("list delete intents", err)
	}
	defer rows.Close()

	var intents []DeleteIntent
	for rows.Next() {
		var in DeleteIntent
		if err := rows.Scan(&in.OrderID, &in.ArchiveID, &in.CreatedAt); err != nil {
			return nil, classify("scan delete intent", err)
		}
		intents = append(intents, in)
	}
	if err := rows.Err(); err != nil {
		return nil, classify("list delete intents", err)
	}
	return intents, nil
}

// Commit runs m inside one SERIALIZABLE transaction. Each stock delta is a conditional
// UPDATE so the availability check and the decrement cannot be split by another writer.
func (s *PostgresStore) Commit(ctx context.Context, m Mutation) (result CommitResult, err error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable})
	if err != nil {
		return CommitResult{}, classify("begin transaction", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(context.WithoutCancel(ctx))
		}
	}()

	now := s.now()
	deltas := MergeDeltas(m.Deltas)
	result = CommitResult{Quantities: make(map[string]int, len(deltas))}

	for _, d := range deltas {
		var qty int
		err = tx.QueryRow(ctx, `
			UPDATE items SET quantity = quantity + $2, updated_at = $3
			WHERE id = $1 AND quantity + $2 >= 0
			RETURNING quantity`, d.ItemID, d.Delta, now).Scan(&qty)
		if errors.Is(err, pgx.ErrNoRows) {
			err = s.deltaRejection(ctx, tx, d)
			return CommitResult{}, err
		}
		if err != nil {
			err = classify("apply stock delta", err)
			return CommitResult{}, err
		}
		result.Quantities[d.ItemID] = qty
	}

	if w := m.Order; w != nil {
		if result.Order, err = s.writeOrder(ctx, tx, w); err != nil {
			return CommitResult{}, err
		}
	}

	if h := m.History; h != nil {
		if err = s.insertHistory(ctx, tx, h); err != nil {
			return CommitResult{}, err
		}
	}

	if in := m.PutIntent; in != nil {
		if _, err = tx.Exec(ctx, `
			INSERT INTO order_delete_intents (order_id, archive_id, created_at) VALUES ($1, $2, $3)
			ON CONFLICT (order_id) DO UPDATE SET archive_id = EXCLUDED.archive_id, created_at = EXCLUDED.created_at`,
			in.OrderID, in.ArchiveID, now); err != nil {
			err = classify("put delete intent", err)
			return CommitResult{}, err
		}
	}
	if m.ClearIntent != "" {
		if _, err = tx.Exec(ctx, `DELETE FROM order_delete_intents WHERE order_id = $1`, m.ClearIntent); err != nil {
			err = classify("clear delete intent", err)
			return CommitResult{}, err
		}
	}

	if err = tx.Commit(ctx); err != nil {
		err = classify("commit transaction", err)
		return CommitResult{}, err
	}
	return result, nil
}

func (s *PostgresStore) deltaRejection(ctx context.Context, tx pgx.Tx, d StockDelta) error {
	var (
		name      string
		available int
	)
	err := tx.QueryRow(ctx, `SELECT name, quantity FROM items WHERE id = $1`, d.ItemID).Scan(&name, &available)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.NotFoundError("item", d.ItemID)
	}
	if err != nil {
		return classify("read item", err)
	}
	return &domain.StockError{ItemID: d.ItemID, ItemName: name, Requested: -d.Delta, Available: available}
}

func (s *PostgresStore) writeOrder(ctx context.Context, tx pgx.Tx, w *OrderWrite) (*domain.Order, error) {
	o := w.Order
	switch w.Op {
	case OrderCreate:
		lines, err := encodeLines(o.Lines)
		if err != nil {
			return nil, err
		}
		tag, err := tx.Exec(ctx, `
			INSERT INTO orders (id, customer_id, owner_id, ordered_at, lines, subtotal, discount_percent,
			                    final_amount, status, version, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, 1, $10, $11)
			ON CONFLICT (id) DO NOTHING`,
			o.OrderID, o.CustomerID, o.OwnerID, o.OrderedAt, lines, toNumeric(o.Subtotal), toNumeric(o.DiscountPercent),
			toNumeric(o.FinalAmount), string(o.Status), o.CreatedAt, o.UpdatedAt)
		if err != nil {
			return nil, classify("insert order", err)
		}
		if tag.RowsAffected() == 0 {
			return nil, fmt.Errorf("%w: order %s", ErrAlreadyExists, o.OrderID)
		}
		next := o.Clone()
		next.Version = 1
		return next, nil

	case OrderReplace:
		lines, err := encodeLines(o.Lines)
		if err != nil {
			return nil, err
		}
		tag, err := tx.Exec(ctx, `
			UPDATE orders SET customer_id = $3, lines = $4, subtotal = $5, discount_percent = $6,
			       final_amount = $7, status = $8, updated_at = $9, version = version + 1
			WHERE id = $1 AND version = $2`,
			o.OrderID, o.Version, o.CustomerID, lines, toNumeric(o.Subtotal), toNumeric(o.DiscountPercent),
			toNumeric(o.FinalAmount), string(o.Status), o.UpdatedAt)
		if err != nil {
			return nil, classify("update order", err)
		}
		if tag.RowsAffected() == 0 {
			return nil, s.orderMiss(ctx, tx, o.OrderID)
		}
		next := o.Clone()
		next.Version = o.Version + 1
		return next, nil

	case OrderDelete:
		tag, err := tx.Exec(ctx, `DELETE FROM orders WHERE id = $1 AND version = $2`, o.OrderID, o.Version)
		if err != nil {
			return nil, classify("delete order", err)
		}
		if tag.RowsAffected() == 0 {
			return nil, s.orderMiss(ctx, tx, o.OrderID)
		}
		return nil, nil

	default:
		return nil, fmt.Errorf("unknown order operation %d", w.Op)
	}
}

func (s *PostgresStore) orderMiss(ctx context.Context, tx pgx.Tx, orderID string) error {
	var exists bool
	if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM orders WHERE id = $1)`, orderID).Scan(&exists); err != nil {
		return classify("read order", err)
	}
	if !exists {
		return domain.NotFoundError("order", orderID)
	}
	return fmt.Errorf("%w: order %s", ErrVersionMismatch, orderID)
}

func (s *PostgresStore) insertHistory(ctx context.Context, tx pgx.Tx, h *domain.OrderHistoryEntry) error {
	lines, err := encodeLines(h.Lines)
	if err != nil {
		return err
	}
	_, err = tx.Exec(ctx, `
		INSERT INTO order_history (archive_id, original_order_id, ordered_at, customer_id, customer_name, lines,
		                           subtotal, discount_percent, final_amount, status, owner_id, archived_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		h.ArchiveID, h.OriginalOrderID, h.OrderedAt, h.CustomerID, h.CustomerName, lines,
		toNumeric(h.Subtotal), toNumeric(h.DiscountPercent), toNumeric(h.FinalAmount), string(h.Status), h.OwnerID, h.ArchivedAt)
	if err != nil {
		return classify("insert order history", err)
	}
	return nil
}
