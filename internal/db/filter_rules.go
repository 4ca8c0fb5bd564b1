package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/vdavid/bbs2ch/internal/models"
)

// SaveFilterRule stores a new NG rule and fills in its ID and creation time.
func SaveFilterRule(ctx context.Context, pool *pgxpool.Pool, rule *models.FilterRule) error {
	err := pool.QueryRow(ctx, `
		INSERT INTO filter_rules (field, pattern, reason, chain_id, board_url, dat)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at
	`, rule.Field, rule.Pattern, rule.Reason, rule.ChainID, rule.BoardURL, rule.Dat).Scan(&rule.ID, &rule.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to save filter rule: %w", err)
	}

	return nil
}

// ListFilterRules returns all NG rules, oldest first.
func ListFilterRules(ctx context.Context, pool *pgxpool.Pool) ([]models.FilterRule, error) {
	rows, err := pool.Query(ctx, `
		SELECT id, field, pattern, reason, chain_id, board_url, dat, created_at
		FROM filter_rules
		ORDER BY created_at, id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list filter rules: %w", err)
	}
	defer rows.Close()

	var rules []models.FilterRule
	for rows.Next() {
		var r models.FilterRule
		if err := rows.Scan(&r.ID, &r.Field, &r.Pattern, &r.Reason, &r.ChainID, &r.BoardURL, &r.Dat, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan filter rule: %w", err)
		}
		rules = append(rules, r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate filter rules: %w", err)
	}

	return rules, nil
}

// DeleteFilterRule removes an NG rule. Deleting an unknown rule is not an error.
func DeleteFilterRule(ctx context.Context, pool *pgxpool.Pool, ruleID string) error {
	_, err := pool.Exec(ctx, `DELETE FROM filter_rules WHERE id = $1`, ruleID)
	if err != nil && !isInvalidID(err) {
		return fmt.Errorf("failed to delete filter rule: %w", err)
	}

	return nil
}
