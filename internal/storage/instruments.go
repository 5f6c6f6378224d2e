package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/Masterminds/squirrel"
	"github.com/Veraticus/the-points-must-flow/internal/common"
	"github.com/Veraticus/the-points-must-flow/internal/model"
	"github.com/Veraticus/the-points-must-flow/internal/rewards"
	"github.com/google/uuid"
)

var instrumentColumns = []string{"id", "wallet_id", "name", "account_id", "base_multiplier", "point_value"}

// ListWallets returns every wallet ID known to the database.
func (s *SQLiteStorage) ListWallets(ctx context.Context) ([]string, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT wallet_id FROM instruments
		UNION
		SELECT wallet_id FROM transactions
		ORDER BY wallet_id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list wallets: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var wallets []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan wallet: %w", err)
		}
		wallets = append(wallets, id)
	}
	return wallets, rows.Err()
}

// SaveInstrument inserts or replaces an instrument and its rules.
// Malformed instruments are rejected with a ValidationError.
func (s *SQLiteStorage) SaveInstrument(ctx context.Context, inst model.Instrument) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateString(inst.WalletID, "walletID"); err != nil {
		return err
	}
	if err := rewards.ValidateInstrument(inst); err != nil {
		return err
	}

	return s.withTx(ctx, func(tx *sql.Tx) error {
		insert := squirrel.Insert("instruments").
			Columns(instrumentColumns...).
			Values(inst.ID, inst.WalletID, inst.Name, nullString(inst.AccountID),
				inst.BaseMultiplier.String(), inst.PointValue.String()).
			Suffix(`ON CONFLICT(id) DO UPDATE SET
				wallet_id = excluded.wallet_id,
				name = excluded.name,
				account_id = excluded.account_id,
				base_multiplier = excluded.base_multiplier,
				point_value = excluded.point_value`)
		if _, err := exec(ctx, tx, insert); err != nil {
			return fmt.Errorf("failed to save instrument %s: %w", inst.ID, err)
		}

		if _, err := exec(ctx, tx, squirrel.Delete("reward_rules").Where(squirrel.Eq{"instrument_id": inst.ID})); err != nil {
			return fmt.Errorf("failed to clear rules for %s: %w", inst.ID, err)
		}
		for i, rule := range inst.Rules {
			if err := insertRule(ctx, tx, inst.ID, rule, i); err != nil {
				return err
			}
		}
		return nil
	})
}

// AddRewardRule appends a rule to an instrument, after any existing rules.
func (s *SQLiteStorage) AddRewardRule(ctx context.Context, instrumentID string, rule model.RewardRule) (model.RewardRule, error) {
	if err := validateContext(ctx); err != nil {
		return model.RewardRule{}, err
	}
	if err := validateString(instrumentID, "instrumentID"); err != nil {
		return model.RewardRule{}, err
	}
	if err := rewards.ValidateRule(rule); err != nil {
		return model.RewardRule{}, err
	}
	if rule.ID == "" {
		rule.ID = uuid.NewString()
	}

	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var exists int
		err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM instruments WHERE id = ?`, instrumentID).Scan(&exists)
		if err != nil {
			return fmt.Errorf("failed to look up instrument: %w", err)
		}
		if exists == 0 {
			return fmt.Errorf("instrument %s: %w", instrumentID, common.ErrNotFound)
		}

		var next int
		err = tx.QueryRowContext(ctx,
			`SELECT COALESCE(MAX(position) + 1, 0) FROM reward_rules WHERE instrument_id = ?`,
			instrumentID).Scan(&next)
		if err != nil {
			return fmt.Errorf("failed to get rule position: %w", err)
		}
		return insertRule(ctx, tx, instrumentID, rule, next)
	})
	if err != nil {
		return model.RewardRule{}, err
	}
	return rule, nil
}

func insertRule(ctx context.Context, tx *sql.Tx, instrumentID string, rule model.RewardRule, position int) error {
	if rule.ID == "" {
		rule.ID = uuid.NewString()
	}
	insert := squirrel.Insert("reward_rules").
		Columns("id", "instrument_id", "category", "multiplier", "position").
		Values(rule.ID, instrumentID, rule.Category, rule.Multiplier.String(), position)
	if _, err := exec(ctx, tx, insert); err != nil {
		return fmt.Errorf("failed to insert rule %s: %w", rule.ID, err)
	}
	return nil
}

// ListInstruments returns the instruments of a wallet with their rules in
// declared order.
func (s *SQLiteStorage) ListInstruments(ctx context.Context, walletID string) ([]model.Instrument, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(walletID, "walletID"); err != nil {
		return nil, err
	}

	rows, err := query(ctx, s.db, squirrel.Select(instrumentColumns...).
		From("instruments").
		Where(squirrel.Eq{"wallet_id": walletID}).
		OrderBy("id"))
	if err != nil {
		return nil, fmt.Errorf("failed to query instruments: %w", err)
	}
	instruments, err := scanInstruments(rows)
	if err != nil {
		return nil, err
	}
	if err := s.loadRules(ctx, instruments); err != nil {
		return nil, err
	}
	return instruments, nil
}

// GetInstrumentByAccount finds the instrument linked to an import account.
func (s *SQLiteStorage) GetInstrumentByAccount(ctx context.Context, accountID string) (*model.Instrument, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(accountID, "accountID"); err != nil {
		return nil, err
	}

	rows, err := query(ctx, s.db, squirrel.Select(instrumentColumns...).
		From("instruments").
		Where(squirrel.Eq{"account_id": accountID}))
	if err != nil {
		return nil, fmt.Errorf("failed to query instrument: %w", err)
	}
	instruments, err := scanInstruments(rows)
	if err != nil {
		return nil, err
	}
	if len(instruments) == 0 {
		return nil, fmt.Errorf("account %s: %w", accountID, common.ErrNotFound)
	}
	if err := s.loadRules(ctx, instruments); err != nil {
		return nil, err
	}
	return &instruments[0], nil
}

func scanInstruments(rows *sql.Rows) ([]model.Instrument, error) {
	defer func() { _ = rows.Close() }()

	var instruments []model.Instrument
	for rows.Next() {
		var inst model.Instrument
		var accountID sql.NullString
		if err := rows.Scan(&inst.ID, &inst.WalletID, &inst.Name, &accountID,
			&inst.BaseMultiplier, &inst.PointValue); err != nil {
			return nil, fmt.Errorf("failed to scan instrument: %w", err)
		}
		inst.AccountID = accountID.String
		instruments = append(instruments, inst)
	}
	return instruments, rows.Err()
}

func (s *SQLiteStorage) loadRules(ctx context.Context, instruments []model.Instrument) error {
	if len(instruments) == 0 {
		return nil
	}

	ids := make([]string, len(instruments))
	index := make(map[string]int, len(instruments))
	for i, inst := range instruments {
		ids[i] = inst.ID
		index[inst.ID] = i
	}

	rows, err := query(ctx, s.db, squirrel.Select("id", "instrument_id", "category", "multiplier").
		From("reward_rules").
		Where(squirrel.Eq{"instrument_id": ids}).
		OrderBy("instrument_id", "position"))
	if err != nil {
		return fmt.Errorf("failed to query rules: %w", err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var rule model.RewardRule
		var instrumentID string
		if err := rows.Scan(&rule.ID, &instrumentID, &rule.Category, &rule.Multiplier); err != nil {
			return fmt.Errorf("failed to scan rule: %w", err)
		}
		i, ok := index[instrumentID]
		if !ok {
			return fmt.Errorf("%w: rule %s for unknown instrument %s", common.ErrDatabaseCorrupted, rule.ID, instrumentID)
		}
		instruments[i].Rules = append(instruments[i].Rules, rule)
	}
	return rows.Err()
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}
