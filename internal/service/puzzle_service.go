package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"escaperoom/internal/config"
	"escaperoom/internal/logger"
	"escaperoom/internal/model"
)

// ContentSource produces the riddle of one level.
type ContentSource interface {
	Riddle(ctx context.Context, d model.Difficulty, level, totalLevels int) model.Question
}

// PuzzleService generates riddles through the Gemini API. Any failure falls
// back to the fixed riddle of the difficulty tier, so callers always get content.
type PuzzleService struct {
	config *config.AIConfig
	client *http.Client
}

// NewPuzzleService creates a new puzzle service
func NewPuzzleService(cfg config.AIConfig) *PuzzleService {
	return &PuzzleService{
		config: &cfg,
		client: &http.Client{
			Timeout: time.Duration(cfg.TimeoutMS) * time.Millisecond,
		},
	}
}

var fallbackRiddles = map[model.Difficulty]model.Question{
	model.DifficultyEasy: {
		Prompt:  "What has keys but can't open locks?",
		Answers: model.AnswerSet{"piano", "a piano", "keyboard", "a keyboard"},
		Hint:    "You can play music on it.",
	},
	model.DifficultyMedium: {
		Prompt:  "What gets wetter the more it dries?",
		Answers: model.AnswerSet{"towel", "a towel"},
		Hint:    "You use it after a shower.",
	},
	model.DifficultyHard: {
		Prompt:  "I speak without a mouth and hear without ears. I have no body, but I come alive with wind. What am I?",
		Answers: model.AnswerSet{"echo", "an echo"},
		Hint:    "Shout in the mountains and you will hear me.",
	},
}

// FallbackRiddle returns the built-in riddle for d placed at level.
func FallbackRiddle(d model.Difficulty, level int) model.Question {
	q, ok := fallbackRiddles[d]
	if !ok {
		q = fallbackRiddles[model.DifficultyEasy]
	}
	q = q.Clone()
	q.Level = level
	q.Kind = model.PuzzleRiddle
	return q
}

func (s *PuzzleService) Riddle(ctx context.Context, d model.Difficulty, level, totalLevels int) model.Question {
	if !s.config.IsEnabled() {
		return FallbackRiddle(d, level)
	}

	q, err := s.generate(ctx, d, level, totalLevels)
	if err != nil {
		logger.Log.Warn("using fallback riddle",
			zap.String("difficulty", string(d)),
			zap.Int("level", level),
			zap.Error(fmt.Errorf("%w: %v", ErrContentGenerationFailed, err)),
		)
		return FallbackRiddle(d, level)
	}
	return *q
}

type generatedRiddle struct {
	Question string          `json:"question"`
	Answer   model.AnswerSet `json:"answer"`
	Hint     string          `json:"hint"`
}

func (s *PuzzleService) generate(ctx context.Context, d model.Difficulty, level, totalLevels int) (*model.Question, error) {
	response, err := s.callGemini(ctx, buildRiddlePrompt(d, level, totalLevels))
	if err != nil {
		return nil, err
	}

	var gen generatedRiddle
	if err := json.Unmarshal([]byte(stripCodeFence(response)), &gen); err != nil {
		return nil, fmt.Errorf("failed to decode riddle: %w", err)
	}
	// AnswerSet drops null and blank answers, so an empty set means unsolvable.
	if strings.TrimSpace(gen.Question) == "" || len(gen.Answer) == 0 {
		return nil, errors.New("riddle is missing question or answer")
	}

	return &model.Question{
		Level:   level,
		Kind:    model.PuzzleRiddle,
		Prompt:  strings.TrimSpace(gen.Question),
		Answers: gen.Answer,
		Hint:    strings.TrimSpace(gen.Hint),
	}, nil
}

func (s *PuzzleService) callGemini(ctx context.Context, prompt string) (string, error) {
	reqBody := map[string]interface{}{
		"contents": []map[string]interface{}{
			{
				"parts": []map[string]string{
					{"text": prompt},
				},
			},
		},
		"generationConfig": map[string]interface{}{
			"responseMimeType": "application/json",
		},
	}

	jsonBody, err := json.Marshal(reqBody)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.config.ModelEndpoint(), bytes.NewBuffer(jsonBody))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	// The key stays out of the URL so transport errors never log it.
	req.Header.Set("x-goog-api-key", s.config.APIKey)

	resp, err := s.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("gemini returned status %d", resp.StatusCode)
	}

	// Parse Gemini response structure
	var geminiResp struct {
		Candidates []struct {
			Content struct {
				Parts []struct {
					Text string `json:"text"`
				} `json:"parts"`
			} `json:"content"`
		} `json:"candidates"`
	}

	if err := json.Unmarshal(body, &geminiResp); err != nil {
		return "", err
	}

	if len(geminiResp.Candidates) > 0 && len(geminiResp.Candidates[0].Content.Parts) > 0 {
		return geminiResp.Candidates[0].Content.Parts[0].Text, nil
	}

	return "", fmt.Errorf("empty response from Gemini")
}

func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

func buildRiddlePrompt(d model.Difficulty, level, totalLevels int) string {
	return fmt.Sprintf(`You are writing puzzles for an escape room game. Write ONE riddle for level %d of %d at %s difficulty.
Later levels should be harder than earlier ones. The answer must be one or two words.
Return ONLY valid JSON matching this schema:
{
  "question": "the riddle text",
  "answer": ["accepted answer", "alternative spelling"],
  "hint": "a short hint that does not reveal the answer"
}`, level, totalLevels, d)
}
