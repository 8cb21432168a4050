package store

import (
	"strconv"
	"strings"
	"time"
)

// Entry origins. Persona-authored entries carry "persona:<id>".
const (
	OriginHuman      = "human"
	OriginExternal   = "external"
	OriginTranscript = "transcript"
	OriginSimulated  = "simulated"
	originPersonaPre = "persona:"
)

// Submission states.
const (
	SubmissionPending  = "pending"
	SubmissionApproved = "approved"
	SubmissionRejected = "rejected"
)

// Outbound call states.
const (
	OutboundCommitted = "committed"
)

// Room 对话房间
type Room struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Name      string    `gorm:"size:100;not null;uniqueIndex" json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// Entry 对话条目，只追加
type Entry struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	RoomID    uint      `gorm:"not null;index:idx_entry_room" json:"room_id"`
	Speaker   string    `gorm:"size:100;not null" json:"speaker"`
	Content   string    `gorm:"type:text;not null" json:"content"`
	Origin    string    `gorm:"size:64;not null" json:"origin"`
	CreatedAt time.Time `json:"created_at"`
}

// PersonaOrigin 返回人格发言条目的 origin 标记
func PersonaOrigin(personaID uint) string {
	return originPersonaPre + strconv.FormatUint(uint64(personaID), 10)
}

// IsPersonaOrigin 报告条目是否由人格触发产生
func (e Entry) IsPersonaOrigin() bool {
	return strings.HasPrefix(e.Origin, originPersonaPre)
}

// Persona 人格，从不删除，只会停用
type Persona struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	Name        string    `gorm:"size:100;not null;uniqueIndex" json:"name"`
	Description string    `gorm:"type:text" json:"description"`
	Prompt      string    `gorm:"type:text" json:"prompt"`
	Color       string    `gorm:"size:16" json:"color"`
	Voice       string    `gorm:"size:32" json:"voice"`
	Model       string    `gorm:"size:128;not null" json:"model"`
	Active      bool      `gorm:"index" json:"active"`
	Multiplier  float64   `gorm:"not null" json:"multiplier"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Analysis 某人格针对某条目的一次评估
type Analysis struct {
	ID               uint      `gorm:"primaryKey" json:"id"`
	RoomID           uint      `gorm:"not null;index:idx_analysis_room_persona" json:"room_id"`
	PersonaID        uint      `gorm:"not null;index:idx_analysis_room_persona" json:"persona_id"`
	EntryID          uint      `gorm:"not null;index" json:"entry_id"`
	Confidence       int       `gorm:"not null" json:"confidence"`
	ShouldSpeak      bool      `json:"should_speak"`
	Rationale        string    `gorm:"type:text" json:"rationale"`
	ProposedResponse string    `gorm:"type:text" json:"proposed_response"`
	Triggered        bool      `gorm:"index" json:"triggered"`
	Model            string    `gorm:"size:128" json:"model"`
	Error            string    `gorm:"size:1000" json:"error,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
}

// OutboundCall 触发时写入的外发记录
type OutboundCall struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	CallID     string    `gorm:"size:36;not null;uniqueIndex" json:"call_id"`
	RoomID     uint      `gorm:"not null;index" json:"room_id"`
	PersonaID  uint      `gorm:"not null;index" json:"persona_id"`
	AnalysisID uint      `gorm:"not null;uniqueIndex" json:"analysis_id"`
	EntryID    uint      `gorm:"not null" json:"entry_id"`
	Rationale  string    `gorm:"type:text" json:"rationale"`
	Content    string    `gorm:"type:text" json:"content"`
	Status     string    `gorm:"size:32;not null" json:"status"`
	CreatedAt  time.Time `json:"created_at"`
}

// ResponseRating 对一次触发的评价，每个分析至多一条
type ResponseRating struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	AnalysisID uint      `gorm:"not null;uniqueIndex" json:"analysis_id"`
	PersonaID  uint      `gorm:"not null;index" json:"persona_id"`
	Rating     int       `gorm:"not null" json:"rating"`
	CreatedAt  time.Time `json:"created_at"`
}

// PendingSubmission 外部来源内容的审核队列
type PendingSubmission struct {
	ID            uint       `gorm:"primaryKey" json:"id"`
	RoomID        uint       `gorm:"not null;index" json:"room_id"`
	Speaker       string     `gorm:"size:100;not null" json:"speaker"`
	Content       string     `gorm:"type:text;not null" json:"content"`
	Status        string     `gorm:"size:16;not null;index" json:"status"`
	ReviewedBy    string     `gorm:"size:100" json:"reviewed_by,omitempty"`
	ReviewNote    string     `gorm:"type:text" json:"review_note,omitempty"`
	EditedSpeaker string     `gorm:"size:100" json:"edited_speaker,omitempty"`
	EditedContent string     `gorm:"type:text" json:"edited_content,omitempty"`
	EntryID       *uint      `json:"entry_id,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	ReviewedAt    *time.Time `json:"reviewed_at,omitempty"`
}

// LatencyLog 外部调用耗时记录，仅用于观测
type LatencyLog struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	Operation  string    `gorm:"size:64;not null;index:idx_latency_op_model" json:"operation"`
	Model      string    `gorm:"size:128;index:idx_latency_op_model" json:"model"`
	Service    string    `gorm:"size:32" json:"service"`
	DurationMs int64     `gorm:"not null" json:"duration_ms"`
	Success    bool      `json:"success"`
	Error      string    `gorm:"size:1000" json:"error,omitempty"`
	RoomID     uint      `json:"room_id,omitempty"`
	PersonaID  uint      `json:"persona_id,omitempty"`
	Metadata   string    `gorm:"type:text" json:"metadata,omitempty"`
	CreatedAt  time.Time `gorm:"index" json:"created_at"`
}

// AllModels 返回需要迁移的全部模型
func AllModels() []any {
	return []any{
		&Room{},
		&Entry{},
		&Persona{},
		&Analysis{},
		&OutboundCall{},
		&ResponseRating{},
		&PendingSubmission{},
		&LatencyLog{},
	}
}
