package asset

import (
	"context"
	_ "embed"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

//go:embed schema.sql
var schema string

// PostgresToken implements Faucet with balances and allowances stored in
// PostgreSQL next to the event state, so event books and the asset agree
// across restarts. Amounts are NUMERIC for exact decimal precision.
type PostgresToken struct {
	pool     *pgxpool.Pool
	address  common.Address
	decimals int32
}

// NewPostgresToken creates a token backed by pool.
func NewPostgresToken(pool *pgxpool.Pool, addr common.Address, decimals int32) *PostgresToken {
	return &PostgresToken{pool: pool, address: addr, decimals: decimals}
}

// Migrate creates the asset tables if they do not exist.
func (t *PostgresToken) Migrate(ctx context.Context) error {
	_, err := t.pool.Exec(ctx, schema)
	return err
}

func (t *PostgresToken) Address() common.Address { return t.address }
func (t *PostgresToken) Decimals() int32         { return t.decimals }

func (t *PostgresToken) Mint(ctx context.Context, account common.Address, amount decimal.Decimal) error {
	if !validAmount(amount, t.decimals) {
		return fmt.Errorf("%w: %s", ErrInvalidAmount, amount)
	}
	_, err := t.pool.Exec(ctx,
		`INSERT INTO asset_balances (asset, account, balance) VALUES ($1, $2, $3::NUMERIC)
		 ON CONFLICT (asset, account) DO UPDATE SET balance = asset_balances.balance + EXCLUDED.balance`,
		t.address.Hex(), account.Hex(), amount.String(),
	)
	if err != nil {
		return fmt.Errorf("mint to %s: %w", account.Hex(), err)
	}
	return nil
}

func (t *PostgresToken) Approve(ctx context.Context, owner, spender common.Address, amount decimal.Decimal) error {
	if amount.IsNegative() {
		return ErrInvalidAmount
	}
	_, err := t.pool.Exec(ctx,
		`INSERT INTO asset_allowances (asset, owner, spender, amount) VALUES ($1, $2, $3, $4::NUMERIC)
		 ON CONFLICT (asset, owner, spender) DO UPDATE SET amount = EXCLUDED.amount`,
		t.address.Hex(), owner.Hex(), spender.Hex(), amount.String(),
	)
	if err != nil {
		return fmt.Errorf("approve %s: %w", spender.Hex(), err)
	}
	return nil
}

func (t *PostgresToken) Allowance(ctx context.Context, owner, spender common.Address) (decimal.Decimal, error) {
	return t.amount(ctx,
		`SELECT amount::TEXT FROM asset_allowances WHERE asset = $1 AND owner = $2 AND spender = $3`,
		t.address.Hex(), owner.Hex(), spender.Hex())
}

func (t *PostgresToken) BalanceOf(ctx context.Context, account common.Address) (decimal.Decimal, error) {
	return t.amount(ctx,
		`SELECT balance::TEXT FROM asset_balances WHERE asset = $1 AND account = $2`,
		t.address.Hex(), account.Hex())
}

func (t *PostgresToken) Transfer(ctx context.Context, holder, to common.Address, amount decimal.Decimal) (bool, error) {
	err := t.inTx(ctx, func(tx pgx.Tx) error {
		return t.move(ctx, tx, holder, to, amount)
	})
	return err == nil, err
}

func (t *PostgresToken) TransferFrom(ctx context.Context, spender, from, to common.Address, amount decimal.Decimal) (bool, error) {
	err := t.inTx(ctx, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx,
			`UPDATE asset_allowances SET amount = amount - $4::NUMERIC
			 WHERE asset = $1 AND owner = $2 AND spender = $3 AND amount >= $4::NUMERIC`,
			t.address.Hex(), from.Hex(), spender.Hex(), amount.String(),
		)
		if err != nil {
			return fmt.Errorf("spend allowance: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return fmt.Errorf("%w: %s to %s, requested %s", ErrInsufficientAllowance, from.Hex(), spender.Hex(), amount)
		}
		return t.move(ctx, tx, from, to, amount)
	})
	return err == nil, err
}

// move debits from and credits to inside tx.
func (t *PostgresToken) move(ctx context.Context, tx pgx.Tx, from, to common.Address, amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return ErrInvalidAmount
	}
	tag, err := tx.Exec(ctx,
		`UPDATE asset_balances SET balance = balance - $3::NUMERIC
		 WHERE asset = $1 AND account = $2 AND balance >= $3::NUMERIC`,
		t.address.Hex(), from.Hex(), amount.String(),
	)
	if err != nil {
		return fmt.Errorf("debit %s: %w", from.Hex(), err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s needs %s", ErrInsufficientBalance, from.Hex(), amount)
	}
	_, err = tx.Exec(ctx,
		`INSERT INTO asset_balances (asset, account, balance) VALUES ($1, $2, $3::NUMERIC)
		 ON CONFLICT (asset, account) DO UPDATE SET balance = asset_balances.balance + EXCLUDED.balance`,
		t.address.Hex(), to.Hex(), amount.String(),
	)
	if err != nil {
		return fmt.Errorf("credit %s: %w", to.Hex(), err)
	}
	return nil
}

func (t *PostgresToken) inTx(ctx context.Context, fn func(pgx.Tx) error) error {
	tx, err := t.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// amount reads a single NUMERIC column; a missing row is zero.
func (t *PostgresToken) amount(ctx context.Context, query string, args ...any) (decimal.Decimal, error) {
	var s string
	err := t.pool.QueryRow(ctx, query, args...).Scan(&s)
	if errors.Is(err, pgx.ErrNoRows) {
		return decimal.Zero, nil
	}
	if err != nil {
		return decimal.Zero, err
	}
	return decimal.NewFromString(s)
}
