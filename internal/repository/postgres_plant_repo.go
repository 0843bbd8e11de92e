package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/hitoshi/plantcare/internal/model"
)

const plantColumns = `id, user_id, name, species, last_watered, interval_days,
		        sunlight, indoors, notes, created_at, updated_at`

// rowScanner は*sql.Rowと*sql.Rowsの共通インターフェース。
type rowScanner interface {
	Scan(dest ...any) error
}

// PostgresPlantRepo はPostgreSQLを使用した植物リポジトリ。
type PostgresPlantRepo struct {
	db *sql.DB
}

// NewPostgresPlantRepo はPostgresPlantRepoを生成する。
func NewPostgresPlantRepo(db *sql.DB) *PostgresPlantRepo {
	return &PostgresPlantRepo{db: db}
}

// Create は植物を作成する。
func (r *PostgresPlantRepo) Create(ctx context.Context, plant *model.Plant) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO plants (id, user_id, name, species, last_watered, interval_days,
		                     sunlight, indoors, notes, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		plant.ID, plant.UserID, plant.Name, plant.Species, plant.LastWatered, plant.IntervalDays,
		string(plant.Sunlight), plant.Indoors, plant.Notes, plant.CreatedAt, plant.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("植物の作成に失敗しました: %w", err)
	}
	return nil
}

// ListByUserID はユーザーの植物一覧をcreated_at降順で返す。
func (r *PostgresPlantRepo) ListByUserID(ctx context.Context, userID string) ([]*model.Plant, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+plantColumns+`
		 FROM plants
		 WHERE user_id = $1
		 ORDER BY created_at DESC, id DESC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("植物一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	plants := make([]*model.Plant, 0)
	for rows.Next() {
		p, err := scanPlant(rows)
		if err != nil {
			return nil, fmt.Errorf("植物のスキャンに失敗しました: %w", err)
		}
		plants = append(plants, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("植物一覧の走査に失敗しました: %w", err)
	}

	return plants, nil
}

// UpdateOwned は所有者が一致する植物を更新し、更新後の値を返す。
// 該当がない場合（存在しない、または他ユーザーの植物）はnilを返す。
func (r *PostgresPlantRepo) UpdateOwned(ctx context.Context, userID, plantID string, fields model.PlantFields) (*model.Plant, error) {
	row := r.db.QueryRowContext(ctx,
		`UPDATE plants
		 SET name = $3, species = $4, last_watered = $5, interval_days = $6,
		     sunlight = $7, indoors = $8, notes = $9, updated_at = now()
		 WHERE id = $1 AND user_id = $2
		 RETURNING `+plantColumns,
		plantID, userID, fields.Name, fields.Species, fields.LastWatered, fields.IntervalDays,
		string(fields.Sunlight), fields.Indoors, fields.Notes,
	)

	p, err := scanPlant(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("植物の更新に失敗しました: %w", err)
	}
	return p, nil
}

// DeleteOwned は所有者が一致する植物を削除する。
func (r *PostgresPlantRepo) DeleteOwned(ctx context.Context, userID, plantID string) (bool, error) {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM plants WHERE id = $1 AND user_id = $2`,
		plantID, userID,
	)
	if err != nil {
		return false, fmt.Errorf("植物の削除に失敗しました: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rowsAffected > 0, nil
}

// scanPlant は1行分の植物データをスキャンする。
func scanPlant(s rowScanner) (*model.Plant, error) {
	p := &model.Plant{}
	var species, notes sql.NullString
	var sunlight string
	if err := s.Scan(
		&p.ID, &p.UserID, &p.Name, &species, &p.LastWatered, &p.IntervalDays,
		&sunlight, &p.Indoors, &notes, &p.CreatedAt, &p.UpdatedAt,
	); err != nil {
		return nil, err
	}
	p.Species = nullStringValue(species)
	p.Notes = nullStringValue(notes)
	p.Sunlight = model.Sunlight(sunlight)
	p.LastWatered = p.LastWatered.UTC()
	return p, nil
}

// nullStringValue はsql.NullStringから文字列値を取得する。
func nullStringValue(ns sql.NullString) string {
	if ns.Valid {
		return ns.String
	}
	return ""
}

// compile-time interface check
var _ PlantRepository = (*PostgresPlantRepo)(nil)
