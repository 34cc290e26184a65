package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"quizwallet/internal/infrastructure/cache"
	"quizwallet/internal/repository"

	"gorm.io/gorm"
)

type Period string

const (
	PeriodAll     Period = "all"
	PeriodWeekly  Period = "weekly"
	PeriodMonthly Period = "monthly"
)

func ParsePeriod(s string) (Period, error) {
	switch Period(s) {
	case PeriodAll, PeriodWeekly, PeriodMonthly:
		return Period(s), nil
	case "":
		return PeriodAll, nil
	}
	return "", fmt.Errorf("%w: %s", ErrInvalidPeriod, s)
}

// PeriodStart 周期起点，按 loc 所在时区对齐到自然周（周一 00:00）或自然月（1 日 00:00），返回 UTC
// 总榜没有起点，返回 nil
func PeriodStart(period Period, now time.Time, loc *time.Location) *time.Time {
	local := now.In(loc)
	var start time.Time
	switch period {
	case PeriodWeekly:
		offset := (int(local.Weekday()) + 6) % 7
		start = time.Date(local.Year(), local.Month(), local.Day()-offset, 0, 0, 0, 0, loc)
	case PeriodMonthly:
		start = time.Date(local.Year(), local.Month(), 1, 0, 0, 0, 0, loc)
	default:
		return nil
	}
	start = start.UTC()
	return &start
}

type LeaderboardEntry struct {
	Rank   int64 `json:"rank"`
	UserID int64 `json:"user_id"`
	Score  int64 `json:"score"`
}

type LeaderboardResult struct {
	Period  Period             `json:"period"`
	Since   *time.Time         `json:"since,omitempty"`
	Entries []LeaderboardEntry `json:"entries"`
	Focus   *LeaderboardEntry  `json:"focus,omitempty"`
}

// LeaderboardService 排行榜
//
// 排序规则：得分降序，得分相同时 user_id 小的在前，名次从 1 开始。
// 关注用户不在窗口内时单独计算得分与名次，使用同一排序规则
type LeaderboardService struct {
	repo         *repository.LeaderboardRepository
	cache        *cache.LeaderboardCache
	clock        Clock
	loc          *time.Location
	defaultLimit int
	maxLimit     int
}

type LeaderboardOptions struct {
	Cache        *cache.LeaderboardCache
	Clock        Clock
	Location     *time.Location
	DefaultLimit int
	MaxLimit     int
}

func NewLeaderboardService(db *gorm.DB, opts LeaderboardOptions) *LeaderboardService {
	if opts.Clock == nil {
		opts.Clock = SystemClock{}
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.DefaultLimit <= 0 {
		opts.DefaultLimit = 10
	}
	if opts.MaxLimit < opts.DefaultLimit {
		opts.MaxLimit = opts.DefaultLimit
	}
	return &LeaderboardService{
		repo:         repository.NewLeaderboardRepository(db),
		cache:        opts.Cache,
		clock:        opts.Clock,
		loc:          opts.Location,
		defaultLimit: opts.DefaultLimit,
		maxLimit:     opts.MaxLimit,
	}
}

// Rank 返回前 limit 名，focusUserID 不为 nil 时附带该用户的名次
// limit 只限制返回窗口，不影响名次计算范围
func (s *LeaderboardService) Rank(ctx context.Context, period Period, limit int, focusUserID *int64) (*LeaderboardResult, error) {
	period, err := ParsePeriod(string(period))
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = s.defaultLimit
	}
	if limit > s.maxLimit {
		limit = s.maxLimit
	}

	since := PeriodStart(period, s.clock.Now(), s.loc)
	result := &LeaderboardResult{Period: period, Since: since}

	entries, cached, err := s.window(ctx, period, since, limit, true)
	if err != nil {
		return nil, err
	}

	// 窗口外的名次按当前数据计算，缓存窗口可能已过时，
	// 此时重新聚合窗口，保证同一次响应里的名次不冲突
	if focusUserID != nil && cached && !containsUser(entries, *focusUserID) {
		entries, _, err = s.window(ctx, period, since, limit, false)
		if err != nil {
			return nil, err
		}
	}
	result.Entries = entries

	if focusUserID != nil {
		focus, err := s.focus(ctx, since, entries, *focusUserID)
		if err != nil {
			return nil, err
		}
		result.Focus = focus
	}

	return result, nil
}

// window 返回前 limit 名，第二个返回值表示是否来自缓存
// useCache 为 false 时直接聚合并刷新缓存
func (s *LeaderboardService) window(ctx context.Context, period Period, since *time.Time, limit int, useCache bool) ([]LeaderboardEntry, bool, error) {
	var windowStart time.Time
	if since != nil {
		windowStart = *since
	}

	var entries []LeaderboardEntry
	if useCache {
		hit, err := s.cache.Get(ctx, string(period), windowStart, limit, &entries)
		if err != nil {
			log.Printf("[LeaderboardService] 读取排行榜缓存失败: period=%s, err=%v", period, err)
		}
		if hit {
			return entries, true, nil
		}
	}

	rows, err := s.repo.Top(ctx, since, limit)
	if err != nil {
		return nil, false, translate(err)
	}

	entries = make([]LeaderboardEntry, 0, len(rows))
	for i, row := range rows {
		entries = append(entries, LeaderboardEntry{
			Rank:   int64(i + 1),
			UserID: row.UserID,
			Score:  row.Score,
		})
	}

	if err := s.cache.Set(ctx, string(period), windowStart, limit, entries); err != nil {
		log.Printf("[LeaderboardService] 写入排行榜缓存失败: period=%s, err=%v", period, err)
	}
	return entries, false, nil
}

func containsUser(entries []LeaderboardEntry, userID int64) bool {
	for i := range entries {
		if entries[i].UserID == userID {
			return true
		}
	}
	return false
}

// focus 窗口内直接复用；窗口外 rank = 得分更高的账户数 + 同分且 user_id 更小的账户数 + 1
// 用户不存在时返回 nil
func (s *LeaderboardService) focus(ctx context.Context, since *time.Time, entries []LeaderboardEntry, userID int64) (*LeaderboardEntry, error) {
	for i := range entries {
		if entries[i].UserID == userID {
			entry := entries[i]
			return &entry, nil
		}
	}

	score, err := s.repo.ScoreOf(ctx, since, userID)
	if err != nil {
		if errors.Is(err, repository.ErrAccountNotFound) {
			return nil, nil
		}
		return nil, translate(err)
	}

	ahead, err := s.repo.CountAhead(ctx, since, score, userID)
	if err != nil {
		return nil, translate(err)
	}

	return &LeaderboardEntry{
		Rank:   ahead + 1,
		UserID: userID,
		Score:  score,
	}, nil
}
