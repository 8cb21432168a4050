package conversation

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/BaSui01/agora/llm"
	"github.com/BaSui01/agora/orchestrator"
	"github.com/BaSui01/agora/store"
	"github.com/BaSui01/agora/types"
)

const (
	simulationWindow = 10
	fallbackSpeaker  = "Guest"
	simulationPrompt = `You play the human participants of a small, live conversation that several AI personas are quietly listening to.
Write exactly one next turn from one of the humans. Keep it natural and short (one to three sentences), and keep the topic moving.
If there is no conversation yet, open one about an everyday dilemma with a philosophical edge.
Never speak as any of these personas: %s.

Reply with a single JSON object and nothing else:
{"speaker": "first name of the human speaking", "content": "what they say"}`
)

type simulatedTurn struct {
	Speaker string `json:"speaker"`
	Content string `json:"content"`
}

// Simulate 让默认模型扮演人类参与者续写对话，每轮作为 simulated 条目提交并分析。
// 中途失败时返回已完成的轮次与错误。
func (s *Service) Simulate(ctx context.Context, roomName string, turns int) ([]*orchestrator.Result, error) {
	if s.completer == nil {
		return nil, types.NewError(types.ErrServiceUnavailable, "dialogue simulation is not configured").
			WithHTTPStatus(http.StatusServiceUnavailable)
	}
	if turns == 0 {
		turns = 1
	}
	if turns < 0 || turns > MaxSimulatedTurns {
		return nil, types.Validationf("turns must be between 1 and %d", MaxSimulatedTurns)
	}
	room, err := s.ensureRoom(ctx, roomName)
	if err != nil {
		return nil, err
	}

	personas, err := s.store.ListPersonas(ctx)
	if err != nil {
		return nil, types.Internal("list personas", err)
	}
	names := make([]string, 0, len(personas))
	taken := make(map[string]struct{}, len(personas))
	for _, p := range personas {
		names = append(names, p.Name)
		taken[strings.ToLower(p.Name)] = struct{}{}
	}
	system := fmt.Sprintf(simulationPrompt, strings.Join(names, ", "))

	results := make([]*orchestrator.Result, 0, turns)
	for i := 0; i < turns; i++ {
		turn, err := s.nextTurn(ctx, room.ID, system)
		if err != nil {
			return results, err
		}
		if _, ok := taken[strings.ToLower(turn.Speaker)]; ok || strings.TrimSpace(turn.Speaker) == "" {
			turn.Speaker = fallbackSpeaker
		}

		res, err := s.Submit(ctx, room.Name, turn.Speaker, turn.Content, store.OriginSimulated)
		if err != nil {
			return results, err
		}
		results = append(results, res)
	}

	s.logger.Info("dialogue simulated", zap.Uint("room_id", room.ID), zap.Int("turns", len(results)))
	return results, nil
}

func (s *Service) nextTurn(ctx context.Context, roomID uint, system string) (simulatedTurn, error) {
	recent, err := s.store.RecentEntries(ctx, roomID, simulationWindow)
	if err != nil {
		return simulatedTurn{}, types.Internal("load recent entries", err)
	}
	var b strings.Builder
	if len(recent) == 0 {
		b.WriteString("(no conversation yet)")
	}
	for _, e := range recent {
		b.WriteString(e.Speaker)
		b.WriteString(": ")
		b.WriteString(e.Content)
		b.WriteString("\n")
	}

	text, err := s.completer.Complete(ctx, s.model, []llm.Message{
		llm.SystemMessage(system),
		llm.UserMessage(b.String()),
	}, true, llm.WithDefaultFallback(), llm.WithTemperature(0.9))
	if err != nil {
		return simulatedTurn{}, err
	}

	var turn simulatedTurn
	if err := llm.DecodeStructured(text, &turn); err != nil {
		return simulatedTurn{}, err
	}
	turn.Speaker = strings.TrimSpace(turn.Speaker)
	if strings.TrimSpace(turn.Content) == "" {
		return simulatedTurn{}, types.NewError(types.ErrParse, "simulated turn has no content").
			WithHTTPStatus(http.StatusUnprocessableEntity)
	}
	return turn, nil
}
