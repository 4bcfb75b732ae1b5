package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	jsonrepair "github.com/RealAlexandreAI/json-repair"

	"github.com/kirillkom/quarterly-financial-analyser/internal/core/domain"
	"github.com/kirillkom/quarterly-financial-analyser/internal/core/ports"
)

const (
	agentToolRetriever  = "financial_data_retriever"
	agentToolCalculator = "calculator"

	defaultAgentMaxIterations = 10
)

const (
	stopFinalAnswer     = "final_answer"
	stopGenerated       = "max_iterations_generated"
	stopRetrieverAnswer = "retriever_fallback"
	stopNoContext       = "no_context"
	stopPlannerError    = "planner_error"
	stopCanceled        = "canceled"
)

const financialAnalystSystemPrompt = `You are a financial analyst assistant working with quarterly reports of listed companies.

Give accurate, specific answers grounded in the company data you retrieve.

Guidelines:
- Quarters end in March (Q1), June (Q2), September (Q3) and December (Q4).
- Growth rate is (new value - old value) / old value * 100%.
- Keep absolute values and percentages apart.
- Use precise financial terms and state the limits of the data.

Method:
1. Retrieve the raw figures you need.
2. Run any calculation needed to derive the answer.
3. Interpret the result for the business.
4. Note caveats in the data.

Answer only financial questions and greetings. For anything else say you are not aware.`

type AnswerQueryUseCase struct {
	planner    ports.TextGenerator
	retriever  *FinancialRetriever
	calculator ports.Calculator
	limits     domain.AgentLimits
	observer   ports.PipelineObserver
}

func NewAnswerQueryUseCase(
	planner ports.TextGenerator,
	retriever *FinancialRetriever,
	calculator ports.Calculator,
	limits domain.AgentLimits,
	observer ports.PipelineObserver,
) *AnswerQueryUseCase {
	if limits.MaxIterations <= 0 {
		limits.MaxIterations = defaultAgentMaxIterations
	}
	if limits.RetrieverTopK <= 0 {
		limits.RetrieverTopK = defaultRetrieverTopK
	}
	return &AnswerQueryUseCase{
		planner:    planner,
		retriever:  retriever,
		calculator: calculator,
		limits:     limits,
		observer:   observerOrNop(observer),
	}
}

// agentRun is the mutable state of one reasoning loop.
type agentRun struct {
	scratchpad   []string
	toolEvents   []domain.AgentToolEvent
	toolsInvoked []string
	toolSet      map[string]struct{}
	parseErrors  int
	// retrievals counts searches that completed, with or without hits.
	retrievals   int
	grounded     bool
}

func (r *agentRun) recordTool(event domain.AgentToolEvent) {
	r.toolEvents = append(r.toolEvents, event)
	if _, seen := r.toolSet[event.Tool]; !seen {
		r.toolSet[event.Tool] = struct{}{}
		r.toolsInvoked = append(r.toolsInvoked, event.Tool)
	}
	r.scratchpad = append(r.scratchpad, fmt.Sprintf("Action: %s\nAction Input: %s\nObservation: %s", event.Tool, event.Input, event.Output))
}

func (r *agentRun) recordParseError(raw string, err error) {
	r.parseErrors++
	r.scratchpad = append(r.scratchpad, fmt.Sprintf("Observation: invalid step format (%v). Reply with exactly one JSON step. Previous output: %s", err, truncate(raw, 300)))
}

// Answer runs the bounded reasoning loop for one question. Tool failures and
// malformed planner steps become observations; the loop itself only fails
// on invalid input.
func (uc *AnswerQueryUseCase) Answer(ctx context.Context, question string) (*domain.QueryAnswer, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "answer query", errors.New("query is required"))
	}

	run := &agentRun{
		scratchpad: make([]string, 0, uc.limits.MaxIterations),
		toolSet:    make(map[string]struct{}),
	}
	finalAnswer := ""
	stopReason := ""
	iterations := 0

	for i := 1; i <= uc.limits.MaxIterations; i++ {
		if ctx.Err() != nil {
			stopReason = stopCanceled
			break
		}
		iterations = i

		raw, err := uc.planner.GenerateJSON(ctx, financialAnalystSystemPrompt, buildFinancialPlannerPrompt(question, run.scratchpad))
		if err != nil {
			slog.Error("planner call failed", "iteration", i, "error", err)
			stopReason = stopPlannerError
			if isAgentCanceled(err) {
				stopReason = stopCanceled
			}
			break
		}

		step, err := decodeAgentStep(raw)
		if err != nil {
			slog.Warn("planner step unparsable", "iteration", i, "error", err)
			run.recordParseError(raw, err)
			continue
		}

		switch step.Type {
		case "final":
			finalAnswer = strings.TrimSpace(step.Answer)
			if finalAnswer == "" {
				run.recordParseError(raw, errors.New("final step without answer"))
				continue
			}
			stopReason = stopFinalAnswer
		case "tool":
			run.recordTool(uc.executeTool(ctx, run, step, question))
		default:
			run.recordParseError(raw, fmt.Errorf("unsupported step type %q", step.Type))
		}

		if finalAnswer != "" {
			break
		}
	}

	if finalAnswer == "" && stopReason != stopCanceled {
		finalAnswer, stopReason = uc.finishWithoutFinalStep(ctx, run, question)
	}
	// Searches that ran and found nothing override the model's answer so it
	// cannot report figures it never saw. Failed searches do not count.
	if run.retrievals > 0 && !run.grounded {
		finalAnswer = couldNotFindMessage
		stopReason = stopNoContext
	}
	if finalAnswer == "" {
		finalAnswer = couldNotFindMessage
	}

	uc.observer.ObserveAgentRun(stopReason, iterations)
	slog.Info("agent run finished",
		"iterations", iterations,
		"stop_reason", stopReason,
		"tools", strings.Join(run.toolsInvoked, ","),
		"parse_errors", run.parseErrors,
	)

	return &domain.QueryAnswer{
		Answer:       finalAnswer,
		Iterations:   iterations,
		ToolsInvoked: run.toolsInvoked,
		ToolEvents:   run.toolEvents,
		ParseErrors:  run.parseErrors,
		StopReason:   stopReason,
	}, nil
}

// finishWithoutFinalStep forces a best-effort answer once the loop ended
// without one. A grounded scratchpad gets one direct answer prompt; the
// retriever answer for the original question is the last resort.
func (uc *AnswerQueryUseCase) finishWithoutFinalStep(ctx context.Context, run *agentRun, question string) (string, string) {
	if run.grounded {
		answer, err := uc.planner.GenerateText(ctx, financialAnalystSystemPrompt, buildForcedFinalPrompt(question, run.scratchpad))
		if err == nil && strings.TrimSpace(answer) != "" {
			return strings.TrimSpace(answer), stopGenerated
		}
		if err != nil {
			slog.Warn("forced final answer failed", "error", err)
		}
	}

	retrieval, err := uc.retriever.Retrieve(ctx, question)
	if err != nil {
		slog.Warn("retriever fallback failed", "error", err)
		return "", stopNoContext
	}
	run.retrievals++
	if !retrieval.Found {
		return "", stopNoContext
	}
	run.grounded = true
	return retrieval.Text, stopRetrieverAnswer
}

func (uc *AnswerQueryUseCase) executeTool(ctx context.Context, run *agentRun, step domain.AgentStep, question string) domain.AgentToolEvent {
	switch step.Tool {
	case agentToolRetriever:
		query := strings.TrimSpace(stringInput(step.Input, "query", question))
		retrieval, err := uc.retriever.Retrieve(ctx, query)
		if err != nil {
			return toolErrorEvent(step.Tool, query, err)
		}
		run.retrievals++
		if retrieval.Found {
			run.grounded = true
		}
		return domain.AgentToolEvent{Tool: agentToolRetriever, Input: query, Status: "ok", Output: retrieval.Text}
	case agentToolCalculator:
		expression := strings.TrimSpace(stringInput(step.Input, "expression", ""))
		if expression == "" {
			return toolErrorEvent(step.Tool, expression, errors.New("calculator requires an expression"))
		}
		value, err := uc.calculator.Evaluate(ctx, expression)
		if err != nil {
			return toolErrorEvent(step.Tool, expression, err)
		}
		return domain.AgentToolEvent{Tool: agentToolCalculator, Input: expression, Status: "ok", Output: value}
	default:
		input, _ := json.Marshal(step.Input)
		return toolErrorEvent(step.Tool, string(input), fmt.Errorf("unsupported tool: %s", step.Tool))
	}
}

func toolErrorEvent(tool, input string, err error) domain.AgentToolEvent {
	slog.Warn("agent tool failed", "tool", tool, "error", err)
	return domain.AgentToolEvent{
		Tool:   tool,
		Input:  input,
		Status: "error",
		Output: "error: " + err.Error(),
	}
}

func isAgentCanceled(err error) bool {
	return errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled)
}

// decodeAgentStep parses a planner reply, falling back to local JSON repair
// for fenced, truncated or otherwise malformed output.
func decodeAgentStep(raw string) (domain.AgentStep, error) {
	step, err := parseAgentStep(raw)
	if err == nil {
		return step, nil
	}

	candidate := stripCodeFence(raw)
	if object, locateErr := locateJSONObject(raw); locateErr == nil {
		candidate = object
	}
	repaired, repairErr := jsonrepair.RepairJSON(candidate)
	if repairErr != nil {
		return domain.AgentStep{}, fmt.Errorf("%w; repair: %v", err, repairErr)
	}
	step, repairedErr := parseAgentStep(repaired)
	if repairedErr != nil {
		return domain.AgentStep{}, err
	}
	return step, nil
}

func parseAgentStep(raw string) (domain.AgentStep, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return domain.AgentStep{}, errors.New("empty planner response")
	}
	var step domain.AgentStep
	if err := json.Unmarshal([]byte(raw), &step); err != nil {
		return domain.AgentStep{}, fmt.Errorf("unmarshal planner json: %w", err)
	}
	step.Type = strings.ToLower(strings.TrimSpace(step.Type))
	step.Tool = strings.ToLower(strings.TrimSpace(step.Tool))
	if step.Type == "" {
		return domain.AgentStep{}, errors.New("planner step has no type")
	}
	return step, nil
}

func buildFinancialPlannerPrompt(question string, scratchpad []string) string {
	history := scratchpad
	if len(history) == 0 {
		history = []string{"(no tool outputs yet)"}
	}

	return fmt.Sprintf(`Decide the next step for answering the question below.
Return ONLY one valid JSON object.
Schema:
{"type":"tool","tool":"financial_data_retriever","input":{"query":"company, metric and period"}}
or
{"type":"tool","tool":"calculator","input":{"expression":"(1250000 - 1100000) / 1100000 * 100"}}
or
{"type":"final","answer":"..."}

Tools:
- financial_data_retriever: finds reported figures such as revenue, cost of goods sold, gross profit, operating expenses, operating income or net income for a company and period. Name the company, the metric and the period in the query.
- calculator: evaluates one arithmetic expression. Use it for growth rates, margins, ratios and sums.

Previous steps:
%s

Question:
%s
`, strings.Join(history, "\n\n"), question)
}

func buildForcedFinalPrompt(question string, scratchpad []string) string {
	return fmt.Sprintf(`The step limit was reached. Using only the observations below, give your best final answer to the question.
If the observations hold no relevant figures, answer exactly: "%s"

Observations:
%s

Question:
%s
`, couldNotFindMessage, strings.Join(scratchpad, "\n\n"), question)
}

func stringInput(input map[string]any, key, fallback string) string {
	if input == nil {
		return fallback
	}
	value, ok := input[key]
	if !ok || value == nil {
		return fallback
	}
	switch typed := value.(type) {
	case string:
		if strings.TrimSpace(typed) == "" {
			return fallback
		}
		return typed
	default:
		return fmt.Sprint(typed)
	}
}

func truncate(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit]) + "..."
}
