// Package store 提供基于 GORM 的持久化层。
//
// 所有读写都通过 Store 完成；Transaction 在同一事务中暴露一个新的 Store，
// 事务内的调用必须使用该实例，不能回到外层 Store。
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/BaSui01/agora/types"
)

// Store 仓储
type Store struct {
	db *gorm.DB
}

// New 创建 Store
func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

// DB 返回底层连接（迁移与健康检查使用）
func (s *Store) DB() *gorm.DB { return s.db }

// Transaction 在事务中执行 fn
func (s *Store) Transaction(ctx context.Context, fn func(tx *Store) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&Store{db: tx})
	})
}

func (s *Store) conn(ctx context.Context) *gorm.DB {
	return s.db.WithContext(ctx)
}

// =============================================================================
// 🏠 Room
// =============================================================================

// EnsureRoom 按名称获取房间，不存在时创建
func (s *Store) EnsureRoom(ctx context.Context, name string) (*Room, error) {
	room := Room{Name: name}
	if err := s.conn(ctx).Where(Room{Name: name}).FirstOrCreate(&room).Error; err != nil {
		return nil, fmt.Errorf("ensure room %q: %w", name, err)
	}
	return &room, nil
}

// FindRoom 按名称查找房间
func (s *Store) FindRoom(ctx context.Context, name string) (*Room, error) {
	var room Room
	err := s.conn(ctx).Where("name = ?", name).First(&room).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, types.NotFoundf("room %q not found", name)
	}
	if err != nil {
		return nil, fmt.Errorf("find room %q: %w", name, err)
	}
	return &room, nil
}

// ListRooms 列出所有房间
func (s *Store) ListRooms(ctx context.Context) ([]Room, error) {
	var rooms []Room
	if err := s.conn(ctx).Order("id ASC").Find(&rooms).Error; err != nil {
		return nil, fmt.Errorf("list rooms: %w", err)
	}
	return rooms, nil
}

// ResetRoom 删除房间内的条目、分析与外发记录。人格、评分与延迟日志保留。
func (s *Store) ResetRoom(ctx context.Context, roomID uint) error {
	return s.Transaction(ctx, func(tx *Store) error {
		db := tx.conn(ctx)
		if err := db.Where("room_id = ?", roomID).Delete(&OutboundCall{}).Error; err != nil {
			return fmt.Errorf("reset outbound calls: %w", err)
		}
		if err := db.Where("room_id = ?", roomID).Delete(&Analysis{}).Error; err != nil {
			return fmt.Errorf("reset analyses: %w", err)
		}
		if err := db.Where("room_id = ?", roomID).Delete(&Entry{}).Error; err != nil {
			return fmt.Errorf("reset entries: %w", err)
		}
		return nil
	})
}

// =============================================================================
// 💬 Entry
// =============================================================================

// AppendEntry 追加条目
func (s *Store) AppendEntry(ctx context.Context, e *Entry) error {
	if err := s.conn(ctx).Create(e).Error; err != nil {
		return fmt.Errorf("append entry: %w", err)
	}
	return nil
}

// GetEntry 按 ID 获取条目
func (s *Store) GetEntry(ctx context.Context, id uint) (*Entry, error) {
	var e Entry
	err := s.conn(ctx).First(&e, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, types.NotFoundf("entry %d not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get entry %d: %w", id, err)
	}
	return &e, nil
}

// RecentEntries 返回最近 limit 条条目，按时间正序
func (s *Store) RecentEntries(ctx context.Context, roomID uint, limit int) ([]Entry, error) {
	var entries []Entry
	err := s.conn(ctx).
		Where("room_id = ?", roomID).
		Order("id DESC").
		Limit(limit).
		Find(&entries).Error
	if err != nil {
		return nil, fmt.Errorf("recent entries: %w", err)
	}
	for i, j := 0, len(entries)-1; i < j; i, j = i+1, j-1 {
		entries[i], entries[j] = entries[j], entries[i]
	}
	return entries, nil
}

// EntriesAfter 返回 ID 大于 afterID 的条目，按时间正序
func (s *Store) EntriesAfter(ctx context.Context, roomID, afterID uint) ([]Entry, error) {
	var entries []Entry
	err := s.conn(ctx).
		Where("room_id = ? AND id > ?", roomID, afterID).
		Order("id ASC").
		Find(&entries).Error
	if err != nil {
		return nil, fmt.Errorf("entries after %d: %w", afterID, err)
	}
	return entries, nil
}

// =============================================================================
// 🎭 Persona
// =============================================================================

// ListPersonas 列出全部人格
func (s *Store) ListPersonas(ctx context.Context) ([]Persona, error) {
	var personas []Persona
	if err := s.conn(ctx).Order("id ASC").Find(&personas).Error; err != nil {
		return nil, fmt.Errorf("list personas: %w", err)
	}
	return personas, nil
}

// ActivePersonas 列出启用中的人格
func (s *Store) ActivePersonas(ctx context.Context) ([]Persona, error) {
	var personas []Persona
	if err := s.conn(ctx).Where("active = ?", true).Order("id ASC").Find(&personas).Error; err != nil {
		return nil, fmt.Errorf("active personas: %w", err)
	}
	return personas, nil
}

// GetPersona 按 ID 获取人格
func (s *Store) GetPersona(ctx context.Context, id uint) (*Persona, error) {
	var p Persona
	err := s.conn(ctx).First(&p, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, types.NotFoundf("persona %d not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get persona %d: %w", id, err)
	}
	return &p, nil
}

// LockPersona 在事务内读取人格并加行锁（SELECT ... FOR UPDATE），
// 用于倍率的读-改-写。SQLite 无行锁，由其库级写锁串行化。
func (s *Store) LockPersona(ctx context.Context, id uint) (*Persona, error) {
	var p Persona
	err := s.conn(ctx).Clauses(clause.Locking{Strength: clause.LockingStrengthUpdate}).First(&p, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, types.NotFoundf("persona %d not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("lock persona %d: %w", id, err)
	}
	return &p, nil
}

// CreatePersona 创建人格，名称冲突返回 CONFLICT
func (s *Store) CreatePersona(ctx context.Context, p *Persona) error {
	var count int64
	if err := s.conn(ctx).Model(&Persona{}).Where("name = ?", p.Name).Count(&count).Error; err != nil {
		return fmt.Errorf("check persona name: %w", err)
	}
	if count > 0 {
		return types.Conflictf("persona %q already exists", p.Name)
	}
	if err := s.conn(ctx).Create(p).Error; err != nil {
		return fmt.Errorf("create persona: %w", err)
	}
	return nil
}

// SavePersona 保存人格的可编辑字段（含零值）。
// multiplier 只由 SetMultiplier 写入，避免覆盖并发评分刚写入的倍率。
func (s *Store) SavePersona(ctx context.Context, p *Persona) error {
	err := s.conn(ctx).Model(p).
		Select("*").
		Omit("id", "multiplier", "created_at").
		Updates(p).Error
	if err != nil {
		return fmt.Errorf("save persona %d: %w", p.ID, err)
	}
	return nil
}

// SetMultiplier 更新人格倍率
func (s *Store) SetMultiplier(ctx context.Context, personaID uint, multiplier float64) error {
	err := s.conn(ctx).Model(&Persona{}).
		Where("id = ?", personaID).
		Update("multiplier", multiplier).Error
	if err != nil {
		return fmt.Errorf("set multiplier for persona %d: %w", personaID, err)
	}
	return nil
}

// CountPersonas 人格总数
func (s *Store) CountPersonas(ctx context.Context) (int64, error) {
	var count int64
	if err := s.conn(ctx).Model(&Persona{}).Count(&count).Error; err != nil {
		return 0, fmt.Errorf("count personas: %w", err)
	}
	return count, nil
}

// =============================================================================
// 🧠 Analysis
// =============================================================================

// CreateAnalysis 写入分析
func (s *Store) CreateAnalysis(ctx context.Context, a *Analysis) error {
	if err := s.conn(ctx).Create(a).Error; err != nil {
		return fmt.Errorf("create analysis: %w", err)
	}
	return nil
}

// GetAnalysis 按 ID 获取分析
func (s *Store) GetAnalysis(ctx context.Context, id uint) (*Analysis, error) {
	var a Analysis
	err := s.conn(ctx).First(&a, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, types.NotFoundf("analysis %d not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get analysis %d: %w", id, err)
	}
	return &a, nil
}

// ListAnalyses 房间内最近的分析，按 ID 倒序
func (s *Store) ListAnalyses(ctx context.Context, roomID uint, limit int) ([]Analysis, error) {
	var out []Analysis
	err := s.conn(ctx).
		Where("room_id = ?", roomID).
		Order("id DESC").
		Limit(limit).
		Find(&out).Error
	if err != nil {
		return nil, fmt.Errorf("list analyses: %w", err)
	}
	return out, nil
}

// AnalysesForEntry 某条目的全部分析
func (s *Store) AnalysesForEntry(ctx context.Context, entryID uint) ([]Analysis, error) {
	var out []Analysis
	if err := s.conn(ctx).Where("entry_id = ?", entryID).Order("id ASC").Find(&out).Error; err != nil {
		return nil, fmt.Errorf("analyses for entry %d: %w", entryID, err)
	}
	return out, nil
}

// LatestActiveAnalysis 返回人格在房间内最新的可触发分析：
// 未触发、提议回复非空、置信度大于 0。没有时返回 nil, nil。
func (s *Store) LatestActiveAnalysis(ctx context.Context, roomID, personaID uint) (*Analysis, error) {
	var a Analysis
	err := s.conn(ctx).
		Where("room_id = ? AND persona_id = ? AND triggered = ? AND proposed_response <> ? AND confidence > 0",
			roomID, personaID, false, "").
		Order("id DESC").
		First(&a).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("latest active analysis: %w", err)
	}
	return &a, nil
}

// MarkTriggered 条件更新 triggered=false→true，返回是否由本次调用完成
func (s *Store) MarkTriggered(ctx context.Context, analysisID uint) (bool, error) {
	res := s.conn(ctx).Model(&Analysis{}).
		Where("id = ? AND triggered = ?", analysisID, false).
		Update("triggered", true)
	if res.Error != nil {
		return false, fmt.Errorf("mark analysis %d triggered: %w", analysisID, res.Error)
	}
	return res.RowsAffected == 1, nil
}

// =============================================================================
// 📣 OutboundCall / ResponseRating
// =============================================================================

// CreateOutboundCall 写入外发记录
func (s *Store) CreateOutboundCall(ctx context.Context, c *OutboundCall) error {
	if err := s.conn(ctx).Create(c).Error; err != nil {
		return fmt.Errorf("create outbound call: %w", err)
	}
	return nil
}

// OutboundCallForAnalysis 返回分析对应的外发记录，没有时返回 nil, nil
func (s *Store) OutboundCallForAnalysis(ctx context.Context, analysisID uint) (*OutboundCall, error) {
	var c OutboundCall
	err := s.conn(ctx).Where("analysis_id = ?", analysisID).First(&c).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("outbound call for analysis %d: %w", analysisID, err)
	}
	return &c, nil
}

// ListOutboundCalls 房间内最近的外发记录
func (s *Store) ListOutboundCalls(ctx context.Context, roomID uint, limit int) ([]OutboundCall, error) {
	var out []OutboundCall
	err := s.conn(ctx).Where("room_id = ?", roomID).Order("id DESC").Limit(limit).Find(&out).Error
	if err != nil {
		return nil, fmt.Errorf("list outbound calls: %w", err)
	}
	return out, nil
}

// GetRating 返回分析的评分，没有时返回 nil, nil
func (s *Store) GetRating(ctx context.Context, analysisID uint) (*ResponseRating, error) {
	var r ResponseRating
	err := s.conn(ctx).Where("analysis_id = ?", analysisID).First(&r).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get rating for analysis %d: %w", analysisID, err)
	}
	return &r, nil
}

// RatingsFor 批量读取评分，key 为 analysis id
func (s *Store) RatingsFor(ctx context.Context, analysisIDs []uint) (map[uint]ResponseRating, error) {
	out := make(map[uint]ResponseRating, len(analysisIDs))
	if len(analysisIDs) == 0 {
		return out, nil
	}
	var rows []ResponseRating
	if err := s.conn(ctx).Where("analysis_id IN ?", analysisIDs).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("ratings: %w", err)
	}
	for _, r := range rows {
		out[r.AnalysisID] = r
	}
	return out, nil
}

// CreateRating 写入评分。唯一索引冲突时返回 CONFLICT。
func (s *Store) CreateRating(ctx context.Context, r *ResponseRating) error {
	res := s.conn(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(r)
	if res.Error != nil {
		return fmt.Errorf("create rating: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return types.Conflictf("analysis %d already rated", r.AnalysisID)
	}
	return nil
}

// =============================================================================
// 📝 PendingSubmission
// =============================================================================

// CreateSubmission 写入待审核内容
func (s *Store) CreateSubmission(ctx context.Context, sub *PendingSubmission) error {
	if err := s.conn(ctx).Create(sub).Error; err != nil {
		return fmt.Errorf("create submission: %w", err)
	}
	return nil
}

// GetSubmission 按 ID 获取待审核内容
func (s *Store) GetSubmission(ctx context.Context, id uint) (*PendingSubmission, error) {
	var sub PendingSubmission
	err := s.conn(ctx).First(&sub, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, types.NotFoundf("submission %d not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get submission %d: %w", id, err)
	}
	return &sub, nil
}

// ListSubmissions 按状态列出，status 为空时列出全部
func (s *Store) ListSubmissions(ctx context.Context, status string, limit int) ([]PendingSubmission, error) {
	q := s.conn(ctx).Order("id DESC").Limit(limit)
	if status != "" {
		q = q.Where("status = ?", status)
	}
	var out []PendingSubmission
	if err := q.Find(&out).Error; err != nil {
		return nil, fmt.Errorf("list submissions: %w", err)
	}
	return out, nil
}

// ResolveSubmission 仅当仍为 pending 时写入终态，返回是否由本次调用完成
func (s *Store) ResolveSubmission(ctx context.Context, id uint, updates map[string]any) (bool, error) {
	res := s.conn(ctx).Model(&PendingSubmission{}).
		Where("id = ? AND status = ?", id, SubmissionPending).
		Updates(updates)
	if res.Error != nil {
		return false, fmt.Errorf("resolve submission %d: %w", id, res.Error)
	}
	return res.RowsAffected == 1, nil
}

// =============================================================================
// ⏱️ LatencyLog
// =============================================================================

// CreateLatencyLog 写入延迟日志
func (s *Store) CreateLatencyLog(ctx context.Context, l *LatencyLog) error {
	if err := s.conn(ctx).Create(l).Error; err != nil {
		return fmt.Errorf("create latency log: %w", err)
	}
	return nil
}

// LatencyStat 按操作与模型聚合的耗时统计
type LatencyStat struct {
	Operation string  `json:"operation"`
	Model     string  `json:"model"`
	Count     int64   `json:"count"`
	Failures  int64   `json:"failures"`
	AvgMs     float64 `json:"avg_ms"`
	MaxMs     int64   `json:"max_ms"`
}

// LatencySummary 统计 since 之后的调用
func (s *Store) LatencySummary(ctx context.Context, since time.Time) ([]LatencyStat, error) {
	var stats []LatencyStat
	err := s.conn(ctx).Model(&LatencyLog{}).
		Select("operation, model, COUNT(*) AS count, "+
			"SUM(CASE WHEN success THEN 0 ELSE 1 END) AS failures, "+
			"AVG(duration_ms) AS avg_ms, MAX(duration_ms) AS max_ms").
		Where("created_at >= ?", since).
		Group("operation, model").
		Order("operation ASC, model ASC").
		Scan(&stats).Error
	if err != nil {
		return nil, fmt.Errorf("latency summary: %w", err)
	}
	return stats, nil
}
