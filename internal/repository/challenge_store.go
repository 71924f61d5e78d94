package repository

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"TradeSim/internal/domain/models"
	"TradeSim/internal/domain/repository"
)

// challengeRow is the gorm mapping for user challenges. Balances mutate in
// place on every order, which is why this lives in a relational store rather
// than the append-only trade log.
type challengeRow struct {
	ID               string  `gorm:"primarykey"`
	UserID           string  `gorm:"index;not null"`
	PlanID           string  `gorm:"index"`
	Status           string  `gorm:"not null;default:'active'"`
	Phase            int     `gorm:"not null;default:1"`
	StartingBalance  float64 `gorm:"not null"`
	CurrentBalance   float64 `gorm:"not null"`
	HighestBalance   float64
	TotalProfit      float64
	TotalLoss        float64
	DailyLossPercent float64 `gorm:"column:daily_loss"`
	TradingDays      int
	CreatedAt        int64 `gorm:"autoCreateTime"`
	UpdatedAt        int64 `gorm:"autoUpdateTime"`
}

func (challengeRow) TableName() string { return "user_challenges" }

// planRow is the purchased challenge tier.
type planRow struct {
	ID                    string `gorm:"primarykey"`
	Name                  string
	AccountSize           float64
	ProfitTargetPercent   float64 `gorm:"column:profit_target"`
	DailyLossLimitPercent float64 `gorm:"column:daily_loss_limit"`
	MaxLossLimitPercent   float64 `gorm:"column:max_loss_limit"`
}

func (planRow) TableName() string { return "challenge_plans" }

// GormChallengeStore implements ChallengeStore on sqlite via gorm.
type GormChallengeStore struct {
	db *gorm.DB
}

// NewGormChallengeStore opens the database, enables WAL for concurrent
// read/write, and migrates the schema.
func NewGormChallengeStore(dbPath string) (*GormChallengeStore, error) {
	db, err := gorm.Open(sqlite.Open(dbPath), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("get sql.DB: %w", err)
	}
	if _, err := sqlDB.Exec("PRAGMA journal_mode=WAL"); err != nil {
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	if err := db.AutoMigrate(&challengeRow{}, &planRow{}); err != nil {
		return nil, fmt.Errorf("auto migrate: %w", err)
	}

	return &GormChallengeStore{db: db}, nil
}

func (s *GormChallengeStore) Get(ctx context.Context, id string) (*models.Challenge, error) {
	var row challengeRow
	if err := s.db.WithContext(ctx).First(&row, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("challenge %s not found", id)
		}
		return nil, err
	}
	return s.toModel(ctx, &row)
}

func (s *GormChallengeStore) ActiveForUser(ctx context.Context, userID string) (*models.Challenge, error) {
	var row challengeRow
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND status = ?", userID, models.ChallengeActive).
		Order("created_at DESC").
		First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("no active challenge for user %s", userID)
		}
		return nil, err
	}
	return s.toModel(ctx, &row)
}

func (s *GormChallengeStore) UpdateBalances(ctx context.Context, c *models.Challenge) error {
	return s.db.WithContext(ctx).Model(&challengeRow{}).
		Where("id = ?", c.ID).
		Updates(map[string]interface{}{
			"current_balance": c.CurrentBalance,
			"highest_balance": c.HighestBalance,
			"total_profit":    c.TotalProfit,
			"total_loss":      c.TotalLoss,
			"daily_loss":      c.DailyLossPercent,
			"trading_days":    c.TradingDays,
		}).Error
}

// Create inserts a challenge and, if needed, its plan. Used by seeding and tests.
func (s *GormChallengeStore) Create(ctx context.Context, c *models.Challenge) error {
	if c.Plan.ID != "" {
		plan := planRow{
			ID:                    c.Plan.ID,
			Name:                  c.Plan.Name,
			AccountSize:           c.Plan.AccountSize,
			ProfitTargetPercent:   c.Plan.ProfitTargetPercent,
			DailyLossLimitPercent: c.Plan.DailyLossLimitPercent,
			MaxLossLimitPercent:   c.Plan.MaxLossLimitPercent,
		}
		if err := s.db.WithContext(ctx).Save(&plan).Error; err != nil {
			return err
		}
	}
	row := challengeRow{
		ID:               c.ID,
		UserID:           c.UserID,
		PlanID:           c.Plan.ID,
		Status:           c.Status,
		Phase:            c.Phase,
		StartingBalance:  c.StartingBalance,
		CurrentBalance:   c.CurrentBalance,
		HighestBalance:   c.HighestBalance,
		TotalProfit:      c.TotalProfit,
		TotalLoss:        c.TotalLoss,
		DailyLossPercent: c.DailyLossPercent,
		TradingDays:      c.TradingDays,
	}
	return s.db.WithContext(ctx).Create(&row).Error
}

func (s *GormChallengeStore) toModel(ctx context.Context, row *challengeRow) (*models.Challenge, error) {
	out := &models.Challenge{
		ID:               row.ID,
		UserID:           row.UserID,
		Status:           row.Status,
		Phase:            row.Phase,
		StartingBalance:  row.StartingBalance,
		CurrentBalance:   row.CurrentBalance,
		HighestBalance:   row.HighestBalance,
		TotalProfit:      row.TotalProfit,
		TotalLoss:        row.TotalLoss,
		DailyLossPercent: row.DailyLossPercent,
		TradingDays:      row.TradingDays,
	}
	if row.PlanID != "" {
		var plan planRow
		if err := s.db.WithContext(ctx).First(&plan, "id = ?", row.PlanID).Error; err == nil {
			out.Plan = models.ChallengePlan{
				ID:                    plan.ID,
				Name:                  plan.Name,
				AccountSize:           plan.AccountSize,
				ProfitTargetPercent:   plan.ProfitTargetPercent,
				DailyLossLimitPercent: plan.DailyLossLimitPercent,
				MaxLossLimitPercent:   plan.MaxLossLimitPercent,
			}
		}
	}
	return out, nil
}

func (s *GormChallengeStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

var _ repository.ChallengeStore = (*GormChallengeStore)(nil)
