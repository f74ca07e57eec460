package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stepdrive/browserpilot/internal/browser"
	"github.com/stepdrive/browserpilot/internal/config"
	"github.com/stepdrive/browserpilot/internal/llm"
	"github.com/stepdrive/browserpilot/internal/tools"
)

// scriptedClient replays responses in order and records every request.
type scriptedClient struct {
	responses []*llm.Response
	requests  []llm.Request
}

func (s *scriptedClient) Chat(ctx context.Context, req llm.Request) (*llm.Response, error) {
	s.requests = append(s.requests, req)
	if len(s.responses) == 0 {
		return nil, errors.New("scripted client exhausted")
	}
	resp := s.responses[0]
	s.responses = s.responses[1:]
	return resp, nil
}

func (s *scriptedClient) Name() string { return "scripted" }

type execCall struct {
	name  string
	input json.RawMessage
}

// scriptedExecutor returns canned results, one per call.
type scriptedExecutor struct {
	results []tools.Result
	errs    []error
	calls   []execCall
}

func (s *scriptedExecutor) Execute(ctx context.Context, name string, input json.RawMessage) (tools.Result, error) {
	i := len(s.calls)
	s.calls = append(s.calls, execCall{name: name, input: input})
	var res tools.Result
	if i < len(s.results) {
		res = s.results[i]
	}
	var err error
	if i < len(s.errs) {
		err = s.errs[i]
	}
	return res, err
}

func textResponse(text string) *llm.Response {
	return &llm.Response{
		Content:    []llm.ContentBlock{llm.TextBlock(text)},
		StopReason: llm.StopEndTurn,
	}
}

func toolUseResponse(blocks ...llm.ContentBlock) *llm.Response {
	return &llm.Response{Content: blocks, StopReason: llm.StopToolUse}
}

func toolUse(id, name, input string) llm.ContentBlock {
	return llm.ContentBlock{Type: llm.BlockToolUse, ID: id, Name: name, Input: json.RawMessage(input)}
}

func testConfig() config.Config {
	cfg := config.Default()
	cfg.APIKey = "test"
	cfg.MaxActionsPerTask = 10
	cfg.MaxRetries = 3
	return cfg
}

func TestExecuteTaskFinishesWithoutTools(t *testing.T) {
	client := &scriptedClient{responses: []*llm.Response{textResponse("Nothing to do.")}}
	exec := &scriptedExecutor{}
	c := NewController(client, exec, testConfig(), zerolog.Nop())

	out, err := c.ExecuteTask(context.Background(), "do nothing")
	require.NoError(t, err)
	assert.Equal(t, "Nothing to do.", out)
	assert.Empty(t, exec.calls)

	require.Len(t, client.requests, 1)
	req := client.requests[0]
	assert.NotEmpty(t, req.System)
	assert.Len(t, req.Tools, 8)
	require.Len(t, req.Messages, 1)
	assert.Equal(t, "user", req.Messages[0].Role)
}

func TestExecuteTaskDispatchesToolCallsInOrder(t *testing.T) {
	client := &scriptedClient{responses: []*llm.Response{
		toolUseResponse(
			llm.TextBlock("Opening the page."),
			toolUse("tu_1", "navigate", `{"tab_id":1,"url":"example.com"}`),
			toolUse("tu_2", "read_page", `{"tab_id":1}`),
		),
		textResponse("Opened and read the page."),
	}}
	shot := &browser.Screenshot{Data: []byte("img"), MediaType: "image/jpeg"}
	exec := &scriptedExecutor{
		results: []tools.Result{
			{Text: "Navigated tab 1 to example.com.", Screenshot: shot},
			{Text: `ref_1 link: "Home"`},
		},
	}
	c := NewController(client, exec, testConfig(), zerolog.Nop())

	out, err := c.ExecuteTask(context.Background(), "open example.com")
	require.NoError(t, err)
	assert.Equal(t, "Opened and read the page.", out)

	require.Len(t, exec.calls, 2)
	assert.Equal(t, "navigate", exec.calls[0].name)
	assert.Equal(t, "read_page", exec.calls[1].name)

	// Second request carries the assistant turn plus one user message with
	// both tool results, in call order.
	require.Len(t, client.requests, 2)
	msgs := client.requests[1].Messages
	require.Len(t, msgs, 3)
	results := msgs[2].Content
	require.Len(t, results, 2)

	assert.Equal(t, llm.BlockToolResult, results[0].Type)
	assert.Equal(t, "tu_1", results[0].ToolUseID)
	assert.False(t, results[0].IsError)
	require.Len(t, results[0].Content, 2)
	assert.Equal(t, llm.BlockText, results[0].Content[0].Type)
	assert.Equal(t, llm.BlockImage, results[0].Content[1].Type)
	assert.Equal(t, "image/jpeg", results[0].Content[1].Source.MediaType)

	assert.Equal(t, "tu_2", results[1].ToolUseID)
	require.Len(t, results[1].Content, 1)
	assert.Equal(t, `ref_1 link: "Home"`, results[1].Content[0].Text)

	recs := c.History()
	require.Len(t, recs, 2)
	assert.Equal(t, "navigate", recs[0].Tool)
	assert.NotEmpty(t, recs[0].ID)
}

func TestExecuteTaskActionBudget(t *testing.T) {
	// The model keeps asking for clicks; the budget cuts it off.
	var responses []*llm.Response
	for i := 0; i < 5; i++ {
		responses = append(responses, toolUseResponse(
			toolUse(fmt.Sprintf("tu_%d", i), "computer", `{"tab_id":1,"action":{"action":"screenshot"}}`),
		))
	}
	client := &scriptedClient{responses: responses}
	exec := &scriptedExecutor{}

	cfg := testConfig()
	cfg.MaxActionsPerTask = 2
	c := NewController(client, exec, cfg, zerolog.Nop())

	out, err := c.ExecuteTask(context.Background(), "loop forever")
	require.NoError(t, err)
	assert.Contains(t, out, "budget of 2")
	assert.Len(t, exec.calls, 2, "exactly the budgeted number of actions runs")
}

func TestExecuteTaskConsecutiveFailuresAbort(t *testing.T) {
	var responses []*llm.Response
	for i := 0; i < 5; i++ {
		responses = append(responses, toolUseResponse(
			toolUse(fmt.Sprintf("tu_%d", i), "navigate", `{"tab_id":1,"url":"nope.invalid"}`),
		))
	}
	client := &scriptedClient{responses: responses}
	boom := errors.New("dns failure")
	exec := &scriptedExecutor{errs: []error{boom, boom, boom, boom}}

	c := NewController(client, exec, testConfig(), zerolog.Nop())

	out, err := c.ExecuteTask(context.Background(), "go somewhere broken")
	require.NoError(t, err, "retries-exceeded is a task outcome, not a transport failure")
	assert.Contains(t, out, "3 consecutive")
	assert.Contains(t, out, "dns failure", "the outcome names the last error")
	assert.Len(t, exec.calls, 3, "the fourth call is never attempted")
}

func TestExecuteTaskKeepsLatestNarrative(t *testing.T) {
	// The closing response carries no text; the answer comes from the last
	// assistant turn that did.
	client := &scriptedClient{responses: []*llm.Response{
		toolUseResponse(
			llm.TextBlock("Clicked the submit button, order placed."),
			toolUse("tu_1", "get_page_text", `{"tab_id":1}`),
		),
		{Content: nil, StopReason: llm.StopEndTurn},
	}}
	exec := &scriptedExecutor{results: []tools.Result{{Text: "Order #1234 confirmed"}}}
	c := NewController(client, exec, testConfig(), zerolog.Nop())

	out, err := c.ExecuteTask(context.Background(), "place the order")
	require.NoError(t, err)
	assert.Equal(t, "Clicked the submit button, order placed.", out)
}

func TestExecuteTaskFailureCounterResets(t *testing.T) {
	var responses []*llm.Response
	for i := 0; i < 4; i++ {
		responses = append(responses, toolUseResponse(
			toolUse(fmt.Sprintf("tu_%d", i), "get_page_text", `{"tab_id":1}`),
		))
	}
	responses = append(responses, textResponse("Recovered."))
	client := &scriptedClient{responses: responses}

	boom := errors.New("flaky")
	exec := &scriptedExecutor{
		errs:    []error{boom, boom, nil, boom},
		results: []tools.Result{{}, {}, {Text: "some text"}, {}},
	}
	c := NewController(client, exec, testConfig(), zerolog.Nop())

	out, err := c.ExecuteTask(context.Background(), "read flaky page")
	require.NoError(t, err, "a success between failures resets the counter")
	assert.Equal(t, "Recovered.", out)
	assert.Len(t, exec.calls, 4)
}

func TestExecuteTaskReportsToolErrorsToModel(t *testing.T) {
	client := &scriptedClient{responses: []*llm.Response{
		toolUseResponse(toolUse("tu_1", "find", `{"tab_id":1,"query":""}`)),
		textResponse("Giving up."),
	}}
	exec := &scriptedExecutor{errs: []error{errors.New("find query must not be empty")}}
	c := NewController(client, exec, testConfig(), zerolog.Nop())

	out, err := c.ExecuteTask(context.Background(), "find nothing")
	require.NoError(t, err)
	assert.Equal(t, "Giving up.", out)

	require.Len(t, client.requests, 2)
	msgs := client.requests[1].Messages
	results := msgs[len(msgs)-1].Content
	require.Len(t, results, 1)
	assert.True(t, results[0].IsError)
	assert.Contains(t, results[0].Content[0].Text, "find query must not be empty")
}

func TestExecuteTaskEmptyTask(t *testing.T) {
	c := NewController(&scriptedClient{}, &scriptedExecutor{}, testConfig(), zerolog.Nop())
	_, err := c.ExecuteTask(context.Background(), "")
	assert.Error(t, err)
}

func TestExecuteTaskModelFailureIsFatal(t *testing.T) {
	client := &scriptedClient{} // exhausted immediately
	c := NewController(client, &scriptedExecutor{}, testConfig(), zerolog.Nop())
	_, err := c.ExecuteTask(context.Background(), "anything")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "model call")
}
