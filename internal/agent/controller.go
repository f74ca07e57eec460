// Package agent runs the conversation loop: it feeds the task to the model,
// dispatches the tool calls the model makes, and stops on completion or when
// a budget runs out.
package agent

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/stepdrive/browserpilot/internal/config"
	"github.com/stepdrive/browserpilot/internal/llm"
	"github.com/stepdrive/browserpilot/internal/tools"
)

// ToolExecutor is what the loop needs from the tool layer.
type ToolExecutor interface {
	Execute(ctx context.Context, name string, input json.RawMessage) (tools.Result, error)
}

// Controller owns one task's conversation with the model.
type Controller struct {
	client  llm.Client
	exec    ToolExecutor
	cfg     config.Config
	logger  zerolog.Logger
	history History
}

func NewController(client llm.Client, exec ToolExecutor, cfg config.Config, logger zerolog.Logger) *Controller {
	return &Controller{client: client, exec: exec, cfg: cfg, logger: logger}
}

// History returns the action trail of the last ExecuteTask call.
func (c *Controller) History() []ActionRecord { return c.history.Records() }

// ExecuteTask runs the agent loop until the model stops calling tools, the
// action budget is spent, or tool calls fail too many times in a row. Every
// tool error is reported back to the model as an error tool_result. Budget
// and retry exhaustion are task outcomes returned as strings; only
// model-service failures abort with a Go error.
func (c *Controller) ExecuteTask(ctx context.Context, task string) (string, error) {
	if task == "" {
		return "", fmt.Errorf("task must not be empty")
	}
	c.history = History{}
	messages := []llm.Message{llm.UserMessage(llm.TextBlock(task))}
	defs := tools.Definitions()

	actions := 0
	consecutiveFailures := 0
	lastText := ""
	var totalUsage llm.Usage

	for {
		resp, err := c.client.Chat(ctx, llm.Request{
			System:      systemPrompt,
			Messages:    messages,
			Tools:       defs,
			MaxTokens:   c.cfg.MaxTokens,
			Temperature: c.cfg.Temperature,
		})
		if err != nil {
			return "", fmt.Errorf("model call: %w", err)
		}
		totalUsage.InputTokens += resp.Usage.InputTokens
		totalUsage.OutputTokens += resp.Usage.OutputTokens
		messages = append(messages, llm.Message{Role: "assistant", Content: resp.Content})

		// The latest narrative across all assistant turns doubles as the
		// final answer when the closing response has no text of its own.
		for _, b := range resp.Content {
			if b.Type == llm.BlockText && b.Text != "" {
				lastText = b.Text
			}
		}

		calls := toolCalls(resp.Content)
		if len(calls) == 0 {
			c.logger.Info().
				Int("actions", actions).
				Int("input_tokens", totalUsage.InputTokens).
				Int("output_tokens", totalUsage.OutputTokens).
				Str("stop_reason", resp.StopReason).
				Msg("task finished")
			if lastText == "" {
				return "Task completed.", nil
			}
			return lastText, nil
		}

		results := make([]llm.ContentBlock, 0, len(calls))
		for _, call := range calls {
			if actions >= c.cfg.MaxActionsPerTask {
				c.logger.Warn().Int("budget", c.cfg.MaxActionsPerTask).Msg("action budget exhausted")
				return fmt.Sprintf("Stopped: the action budget of %d was exhausted before the task finished.", c.cfg.MaxActionsPerTask), nil
			}
			actions++

			start := time.Now()
			res, err := c.exec.Execute(ctx, call.Name, call.Input)
			took := time.Since(start)
			c.history.Add(call.Name, call.Input, res.Text, err, took)

			if err != nil {
				consecutiveFailures++
				c.logger.Warn().Str("tool", call.Name).Int("consecutive", consecutiveFailures).Err(err).Msg("tool call failed")
				if consecutiveFailures >= c.cfg.MaxRetries {
					return fmt.Sprintf("Stopped after %d consecutive tool failures; last error: %v", consecutiveFailures, err), nil
				}
				results = append(results, llm.ToolResultBlock(call.ID, true,
					llm.TextBlock("Error: "+err.Error())))
				continue
			}
			consecutiveFailures = 0
			results = append(results, llm.ToolResultBlock(call.ID, false, resultBlocks(res)...))
		}
		messages = append(messages, llm.UserMessage(results...))
	}
}

func toolCalls(content []llm.ContentBlock) []llm.ContentBlock {
	var calls []llm.ContentBlock
	for _, b := range content {
		if b.Type == llm.BlockToolUse {
			calls = append(calls, b)
		}
	}
	return calls
}

func resultBlocks(res tools.Result) []llm.ContentBlock {
	var blocks []llm.ContentBlock
	if res.Text != "" {
		blocks = append(blocks, llm.TextBlock(res.Text))
	}
	if res.Screenshot != nil {
		blocks = append(blocks, llm.ImageBlock(
			res.Screenshot.MediaType,
			base64.StdEncoding.EncodeToString(res.Screenshot.Data),
		))
	}
	if len(blocks) == 0 {
		blocks = append(blocks, llm.TextBlock("Done."))
	}
	return blocks
}
