package repository

import (
	"context"
	"errors"
	"time"

	"quizwallet/internal/model"

	"gorm.io/gorm"
)

// ScoreRow 排行榜一行：账户与该周期得分
type ScoreRow struct {
	UserID int64 `json:"user_id"`
	Score  int64 `json:"score"`
}

// LeaderboardRepository 排行榜只读聚合
//
// since 为 nil 表示总榜，直接使用 account.coin_balance；
// 否则统计 since 之后 type = earned 且 coins > 0 的硬币流水之和。
// 两种口径的排序规则一致：score DESC, user_id ASC
type LeaderboardRepository struct {
	db *gorm.DB
}

func NewLeaderboardRepository(db *gorm.DB) *LeaderboardRepository {
	return &LeaderboardRepository{db: db}
}

func (r *LeaderboardRepository) scores(ctx context.Context, since *time.Time) *gorm.DB {
	if since == nil {
		return r.db.WithContext(ctx).
			Table("account").
			Select("user_id, coin_balance AS score")
	}

	// LEFT JOIN 保证本周期没有收入的账户也以 0 分参与排名
	return r.db.WithContext(ctx).
		Table("account AS a").
		Select("a.user_id AS user_id, COALESCE(SUM(ct.coins), 0) AS score").
		Joins("LEFT JOIN coin_transaction AS ct ON ct.user_id = a.user_id AND ct.type = ? AND ct.coins > 0 AND ct.created_at >= ?",
			string(model.CoinTypeEarned), *since).
		Group("a.user_id")
}

// Top 返回前 limit 名
func (r *LeaderboardRepository) Top(ctx context.Context, since *time.Time, limit int) ([]ScoreRow, error) {
	var rows []ScoreRow
	err := r.db.WithContext(ctx).
		Table("(?) AS s", r.scores(ctx, since)).
		Select("s.user_id, s.score").
		Order("s.score DESC, s.user_id ASC").
		Limit(limit).
		Scan(&rows).Error
	return rows, err
}

// ScoreOf 单独计算某个账户的周期得分
func (r *LeaderboardRepository) ScoreOf(ctx context.Context, since *time.Time, userID int64) (int64, error) {
	var account model.Account
	err := r.db.WithContext(ctx).Select("coin_balance").Where("user_id = ?", userID).First(&account).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, ErrAccountNotFound
		}
		return 0, err
	}

	if since == nil {
		return account.CoinBalance, nil
	}

	var score int64
	err = r.db.WithContext(ctx).
		Model(&model.CoinTransaction{}).
		Select("COALESCE(SUM(coins), 0)").
		Where("user_id = ? AND type = ? AND coins > 0 AND created_at >= ?", userID, string(model.CoinTypeEarned), *since).
		Scan(&score).Error
	return score, err
}

// CountAhead 排在 (score, userID) 之前的账户数，名次 = CountAhead + 1
func (r *LeaderboardRepository) CountAhead(ctx context.Context, since *time.Time, score int64, userID int64) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Table("(?) AS s", r.scores(ctx, since)).
		Where("s.score > ? OR (s.score = ? AND s.user_id < ?)", score, score, userID).
		Count(&count).Error
	return count, err
}
