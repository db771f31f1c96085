// Package sentiment 调用大模型为新闻标题打情绪分，
// 产出可供策略消费的情绪列。
package sentiment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"quantlab/internal/config"
	"quantlab/internal/market"
)

const scorePrompt = `
你是一个专业的金融新闻分析师。请阅读下列关于 %s 的新闻标题，评估整体市场情绪。

新闻标题：
%s

请严格输出唯一的 JSON 对象，格式如下：
{
  "score": -1.0-1.0,   // 情绪分，-1 极度悲观，0 中性，1 极度乐观
  "reasoning": "..."  // 支撑结论的关键理由
}

注意事项：
- score 必须位于 [-1, 1]，请勿返回其他范围的数值。
- 若标题之间情绪冲突，请给出加权后的整体判断。
`

// Scorer 封装 OpenAI 情绪打分调用。
type Scorer struct {
	cfg    config.OpenAIConfig
	logger *zap.Logger
	sdk    *openai.Client
}

// NewScorer 使用给定配置创建情绪打分器。
func NewScorer(cfg config.OpenAIConfig, logger *zap.Logger) (*Scorer, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("openai api_key 不能为空")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	sdkConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		sdkConfig.BaseURL = cfg.BaseURL
	}
	sdkConfig.HTTPClient = &http.Client{
		Timeout: cfg.Timeout + 5*time.Second,
	}

	return &Scorer{
		cfg:    cfg,
		logger: logger,
		sdk:    openai.NewClientWithConfig(sdkConfig),
	}, nil
}

type scoreResponse struct {
	Score     float64 `json:"score"`
	Reasoning string  `json:"reasoning"`
}

// Score 为一组新闻标题返回 [-1,1] 的情绪分。
func (s *Scorer) Score(ctx context.Context, symbol string, headlines []string) (float64, error) {
	if len(headlines) == 0 {
		return 0, errors.New("sentiment: 标题列表为空")
	}
	if s.cfg.Model == "" {
		return 0, errors.New("openai model 不能为空")
	}

	var list strings.Builder
	for _, headline := range headlines {
		list.WriteString("- ")
		list.WriteString(headline)
		list.WriteString("\n")
	}

	response, err := s.sdk.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: s.cfg.Model,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleUser,
				Content: fmt.Sprintf(scorePrompt, symbol, list.String()),
			},
		},
		Temperature: 0,
	})
	if err != nil {
		s.logger.Error("调用OpenAI失败", zap.Error(err))
		return 0, fmt.Errorf("调用OpenAI失败: %w", err)
	}

	if len(response.Choices) == 0 {
		return 0, errors.New("OpenAI 返回结果为空")
	}
	rawContent := strings.TrimSpace(response.Choices[0].Message.Content)
	if rawContent == "" {
		return 0, errors.New("OpenAI 返回内容为空")
	}

	score, err := parseScore(rawContent)
	if err != nil {
		s.logger.Error("解析情绪分失败",
			zap.Error(err),
			zap.String("raw_content", rawContent),
		)
		return 0, err
	}

	s.logger.Debug("情绪打分完成",
		zap.String("symbol", symbol),
		zap.Int("headlines", len(headlines)),
		zap.Float64("score", score),
	)
	return score, nil
}

// Annotate 按日期为 frame 写入情绪列，无新闻的日期填 NaN。
// 日期键格式为 2006-01-02，与 K 线时间戳的 UTC 日期对齐。
func (s *Scorer) Annotate(ctx context.Context, frame *market.PriceFrame, headlinesByDate map[string][]string, column string) error {
	if column == "" {
		column = "sentiment"
	}

	scores := make(map[string]float64, len(headlinesByDate))
	for date, headlines := range headlinesByDate {
		if err := ctx.Err(); err != nil {
			return err
		}
		score, err := s.Score(ctx, frame.Symbol, headlines)
		if err != nil {
			return fmt.Errorf("sentiment: %s 打分失败: %w", date, err)
		}
		scores[date] = score
	}

	values := make([]float64, frame.Len())
	for i, ts := range frame.Timestamps {
		if score, ok := scores[ts.UTC().Format("2006-01-02")]; ok {
			values[i] = score
		} else {
			values[i] = math.NaN()
		}
	}
	return frame.SetColumn(column, values)
}

func parseScore(content string) (float64, error) {
	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")
	if start == -1 || end == -1 || end <= start {
		return 0, fmt.Errorf("模型输出未找到有效JSON: %s", content)
	}

	var parsed scoreResponse
	if err := json.Unmarshal([]byte(content[start:end+1]), &parsed); err != nil {
		return 0, fmt.Errorf("解析情绪JSON失败: %w", err)
	}
	if math.IsNaN(parsed.Score) || parsed.Score < -1 || parsed.Score > 1 {
		return 0, fmt.Errorf("情绪分 %v 超出 [-1,1]", parsed.Score)
	}
	return parsed.Score, nil
}
