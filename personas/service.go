package personas

import (
	"context"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/BaSui01/agora/feedback"
	"github.com/BaSui01/agora/llm"
	"github.com/BaSui01/agora/store"
	"github.com/BaSui01/agora/types"
)

var colorPattern = regexp.MustCompile(`^#[0-9A-Fa-f]{6}$`)

// knownVoices 语音合成可用的声音，空值表示不发声
var knownVoices = map[string]struct{}{
	"alloy": {}, "ash": {}, "ballad": {}, "coral": {}, "echo": {}, "fable": {},
	"nova": {}, "onyx": {}, "sage": {}, "shimmer": {}, "verse": {},
}

// ModelCatalog 报告模型是否可用，由 llm.ModelRegistry 实现
type ModelCatalog interface {
	Known(model string) bool
}

// Notifier 人格变化后让所有房间状态失效
type Notifier interface {
	PublishAll(ctx context.Context)
}

// Input 创建人格的参数
type Input struct {
	Name        string  `json:"name"`
	Description string  `json:"description"`
	Prompt      string  `json:"prompt"`
	Color       string  `json:"color"`
	Voice       string  `json:"voice"`
	Model       string  `json:"model"`
	Multiplier  float64 `json:"multiplier"`
	Active      *bool   `json:"active,omitempty"`
}

// Patch 部分更新，nil 字段保持不变
type Patch struct {
	Name        *string  `json:"name,omitempty"`
	Description *string  `json:"description,omitempty"`
	Prompt      *string  `json:"prompt,omitempty"`
	Color       *string  `json:"color,omitempty"`
	Voice       *string  `json:"voice,omitempty"`
	Model       *string  `json:"model,omitempty"`
	Multiplier  *float64 `json:"multiplier,omitempty"`
	Active      *bool    `json:"active,omitempty"`
}

// Service 人格管理。人格从不删除，只会停用。
type Service struct {
	store    *store.Store
	models   ModelCatalog
	notifier Notifier
	logger   *zap.Logger
}

// NewService 创建人格管理服务
func NewService(st *store.Store, models ModelCatalog, notifier Notifier, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		store:    st,
		models:   models,
		notifier: notifier,
		logger:   logger.With(zap.String("component", "personas")),
	}
}

// List 列出全部人格
func (s *Service) List(ctx context.Context) ([]store.Persona, error) {
	ps, err := s.store.ListPersonas(ctx)
	if err != nil {
		return nil, types.Internal("list personas", err)
	}
	return ps, nil
}

// Get 按 ID 获取人格
func (s *Service) Get(ctx context.Context, id uint) (*store.Persona, error) {
	return s.store.GetPersona(ctx, id)
}

// Create 创建人格，倍率为 0 时取 1.0
func (s *Service) Create(ctx context.Context, in Input) (*store.Persona, error) {
	p := &store.Persona{
		Name:        strings.TrimSpace(in.Name),
		Description: strings.TrimSpace(in.Description),
		Prompt:      strings.TrimSpace(in.Prompt),
		Color:       strings.TrimSpace(in.Color),
		Voice:       strings.TrimSpace(in.Voice),
		Model:       strings.TrimSpace(in.Model),
		Multiplier:  in.Multiplier,
		Active:      true,
	}
	if in.Active != nil {
		p.Active = *in.Active
	}
	if p.Multiplier == 0 {
		p.Multiplier = 1.0
	}
	if err := s.validate(p); err != nil {
		return nil, err
	}
	p.Multiplier = feedback.ClampMultiplier(p.Multiplier)

	if err := s.store.CreatePersona(ctx, p); err != nil {
		if _, ok := types.AsError(err); ok {
			return nil, err
		}
		return nil, types.Internal("create persona", err)
	}
	s.changed(ctx)
	s.logger.Info("persona created", zap.Uint("persona_id", p.ID), zap.String("name", p.Name))
	return p, nil
}

// Update 部分更新人格；Active=false 即停用
func (s *Service) Update(ctx context.Context, id uint, patch Patch) (*store.Persona, error) {
	p, err := s.store.GetPersona(ctx, id)
	if err != nil {
		return nil, err
	}
	oldName := p.Name

	setString(&p.Name, patch.Name)
	setString(&p.Description, patch.Description)
	setString(&p.Prompt, patch.Prompt)
	setString(&p.Color, patch.Color)
	setString(&p.Voice, patch.Voice)
	setString(&p.Model, patch.Model)
	if patch.Multiplier != nil {
		p.Multiplier = *patch.Multiplier
	}
	if patch.Active != nil {
		p.Active = *patch.Active
	}
	if err := s.validate(p); err != nil {
		return nil, err
	}
	p.Multiplier = feedback.ClampMultiplier(p.Multiplier)

	if p.Name != oldName {
		if _, err := s.byName(ctx, p.Name); err == nil {
			return nil, types.Conflictf("persona %q already exists", p.Name)
		}
	}
	err = s.store.Transaction(ctx, func(tx *store.Store) error {
		if err := tx.SavePersona(ctx, p); err != nil {
			return err
		}
		if patch.Multiplier == nil {
			return nil
		}
		return tx.SetMultiplier(ctx, p.ID, p.Multiplier)
	})
	if err != nil {
		return nil, types.Internal("save persona", err)
	}
	s.changed(ctx)
	s.logger.Info("persona updated", zap.Uint("persona_id", p.ID), zap.Bool("active", p.Active))
	return p, nil
}

// Seed 人格表为空时写入种子人格，返回写入数量
func (s *Service) Seed(ctx context.Context, seeds []Input) (int, error) {
	ps := make([]store.Persona, 0, len(seeds))
	for _, in := range seeds {
		p := store.Persona{
			Name:        strings.TrimSpace(in.Name),
			Description: in.Description,
			Prompt:      in.Prompt,
			Color:       in.Color,
			Voice:       in.Voice,
			Model:       in.Model,
			Multiplier:  in.Multiplier,
			Active:      true,
		}
		if p.Multiplier == 0 {
			p.Multiplier = 1.0
		}
		if err := s.validate(&p); err != nil {
			return 0, err
		}
		p.Multiplier = feedback.ClampMultiplier(p.Multiplier)
		ps = append(ps, p)
	}
	n, err := s.store.SeedPersonas(ctx, ps)
	if err != nil {
		return 0, types.Internal("seed personas", err)
	}
	if n > 0 {
		s.logger.Info("seed personas written", zap.Int("count", n))
	}
	return n, nil
}

func (s *Service) validate(p *store.Persona) error {
	switch {
	case p.Name == "":
		return types.Validationf("persona name is required")
	case len(p.Name) > store.MaxSpeakerLength:
		return types.Validationf("persona name exceeds %d characters", store.MaxSpeakerLength)
	case p.Model == "":
		return types.Validationf("persona model is required")
	case s.models != nil && !s.models.Known(p.Model):
		return types.Validationf("unknown model %q", p.Model)
	case p.Voice != "" && !knownVoice(p.Voice):
		return types.Validationf("unknown voice %q", p.Voice)
	case p.Color != "" && !colorPattern.MatchString(p.Color):
		return types.Validationf("color must be #RRGGBB, got %q", p.Color)
	case p.Multiplier < 0:
		return types.Validationf("multiplier must be positive")
	}
	return nil
}

func (s *Service) byName(ctx context.Context, name string) (*store.Persona, error) {
	ps, err := s.store.ListPersonas(ctx)
	if err != nil {
		return nil, err
	}
	for i := range ps {
		if ps[i].Name == name {
			return &ps[i], nil
		}
	}
	return nil, types.NotFoundf("persona %q not found", name)
}

func (s *Service) changed(ctx context.Context) {
	if s.notifier != nil {
		s.notifier.PublishAll(ctx)
	}
}

func knownVoice(v string) bool {
	_, ok := knownVoices[strings.ToLower(v)]
	return ok
}

func setString(dst *string, v *string) {
	if v != nil {
		*dst = strings.TrimSpace(*v)
	}
}

var _ ModelCatalog = (*llm.ModelRegistry)(nil)
