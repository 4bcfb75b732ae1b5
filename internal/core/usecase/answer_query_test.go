package usecase

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/kirillkom/quarterly-financial-analyser/internal/core/domain"
)

func revenueHits() []domain.RetrievedChunk {
	return []domain.RetrievedChunk{{
		Chunk: domain.Chunk{Text: "Company: Dipped Products PLC (DIPD). Data Point: Revenue. Values: 03/2024: 1250000"},
		Score: 0.91,
	}}
}

func newAnswerFixture(gen *scriptedGenerator, index *fakeVectorIndex, maxIterations int) (*AnswerQueryUseCase, *fakeEmbedder, *fakeCalculator) {
	embedder := &fakeEmbedder{}
	calc := &fakeCalculator{}
	retriever := NewFinancialRetriever(embedder, index, gen, 5)
	uc := NewAnswerQueryUseCase(gen, retriever, calc, domain.AgentLimits{MaxIterations: maxIterations}, nil)
	return uc, embedder, calc
}

func TestAnswerReturnsCouldNotFindWhenIndexIsEmpty(t *testing.T) {
	gen := &scriptedGenerator{
		steps: []string{
			`{"type":"tool","tool":"financial_data_retriever","input":{"query":"DIPD revenue March 2024"}}`,
			`{"type":"final","answer":"Revenue was 9 billion."}`,
		},
		text: "should not be used",
	}
	uc, embedder, _ := newAnswerFixture(gen, &fakeVectorIndex{}, 10)

	answer, err := uc.Answer(context.Background(), "What was DIPD revenue in March 2024?")
	if err != nil {
		t.Fatalf("Answer() error = %v", err)
	}
	if !strings.Contains(answer.Answer, "could not find") {
		t.Fatalf("expected could-not-find answer, got %q", answer.Answer)
	}
	if answer.StopReason != "no_context" {
		t.Fatalf("unexpected stop reason %q", answer.StopReason)
	}
	if len(embedder.queries) == 0 || embedder.queries[0] != "Financial information about DIPD revenue March 2024" {
		t.Fatalf("unexpected search string %v", embedder.queries)
	}
	if answer.ToolEvents[0].Output != "No relevant financial information found for your query." {
		t.Fatalf("unexpected retriever output %q", answer.ToolEvents[0].Output)
	}
}

func TestAnswerUsesToolsThenFinalAnswer(t *testing.T) {
	gen := &scriptedGenerator{
		steps: []string{
			`{"type":"tool","tool":"financial_data_retriever","input":{"query":"DIPD revenue"}}`,
			`{"type":"tool","tool":"calculator","input":{"expression":"(1300000-1250000)/1250000*100"}}`,
			`{"type":"final","answer":"Revenue grew 4%."}`,
		},
		text: "DIPD revenue was LKR 1,250,000.",
	}
	index := &fakeVectorIndex{hits: revenueHits()}
	uc, _, calc := newAnswerFixture(gen, index, 10)

	answer, err := uc.Answer(context.Background(), "How much did DIPD revenue grow?")
	if err != nil {
		t.Fatalf("Answer() error = %v", err)
	}
	if answer.Answer != "Revenue grew 4%." || answer.StopReason != "final_answer" {
		t.Fatalf("unexpected answer %+v", answer)
	}
	if answer.Iterations != 3 {
		t.Fatalf("expected 3 iterations, got %d", answer.Iterations)
	}
	if strings.Join(answer.ToolsInvoked, ",") != "financial_data_retriever,calculator" {
		t.Fatalf("unexpected tools %v", answer.ToolsInvoked)
	}
	if len(calc.expressions) != 1 {
		t.Fatalf("expected calculator call, got %v", calc.expressions)
	}
	if index.limits[0] != 5 {
		t.Fatalf("expected top-k 5, got %d", index.limits[0])
	}
	if !strings.Contains(gen.prompts[2], "Observation: 42") {
		t.Fatalf("scratchpad must carry the calculator observation")
	}
}

func TestAnswerToleratesMalformedSteps(t *testing.T) {
	gen := &scriptedGenerator{
		steps: []string{
			"I think I should look this up",
			"```json\n{\"type\":\"final\",\"answer\":\"Hello! Ask me about DIPD or REXP.\"\n```",
		},
	}
	uc, _, _ := newAnswerFixture(gen, &fakeVectorIndex{}, 10)

	answer, err := uc.Answer(context.Background(), "hi")
	if err != nil {
		t.Fatalf("Answer() error = %v", err)
	}
	if answer.ParseErrors != 1 {
		t.Fatalf("expected one parse error, got %d", answer.ParseErrors)
	}
	if answer.Answer != "Hello! Ask me about DIPD or REXP." {
		t.Fatalf("expected repaired final answer, got %q", answer.Answer)
	}
	if !strings.Contains(gen.prompts[1], "invalid step format") {
		t.Fatalf("parse error must be surfaced to the planner")
	}
}

func TestAnswerForcesFinalAnswerAtIterationCap(t *testing.T) {
	gen := &scriptedGenerator{text: "Revenue was LKR 1,250,000 in March 2024."}
	index := &fakeVectorIndex{hits: revenueHits()}
	uc, _, _ := newAnswerFixture(gen, index, 3)

	answer, err := uc.Answer(context.Background(), "DIPD revenue?")
	if err != nil {
		t.Fatalf("Answer() error = %v", err)
	}
	if answer.Iterations != 3 || answer.StopReason != "max_iterations_generated" {
		t.Fatalf("unexpected run %+v", answer)
	}
	// three retriever answers plus the forced final prompt
	if gen.textCalls != 4 {
		t.Fatalf("expected 4 text generations, got %d", gen.textCalls)
	}
}

func TestAnswerFallsBackToRetrieverWhenPlannerFails(t *testing.T) {
	gen := &scriptedGenerator{stepErr: errors.New("model overloaded"), text: "REXP net income was LKR 10,000."}
	uc, _, _ := newAnswerFixture(gen, &fakeVectorIndex{hits: revenueHits()}, 10)

	answer, err := uc.Answer(context.Background(), "REXP net income?")
	if err != nil {
		t.Fatalf("Answer() error = %v", err)
	}
	if answer.StopReason != "retriever_fallback" || answer.Answer != "REXP net income was LKR 10,000." {
		t.Fatalf("unexpected answer %+v", answer)
	}
}

func TestAnswerRecordsCalculatorErrorsAsObservations(t *testing.T) {
	gen := &scriptedGenerator{steps: []string{
		`{"type":"tool","tool":"calculator","input":{"expression":"1/0"}}`,
		`{"type":"tool","tool":"stock_price","input":{}}`,
		`{"type":"final","answer":"Division by zero is undefined."}`,
	}}
	uc, _, _ := newAnswerFixture(gen, &fakeVectorIndex{}, 10)

	answer, err := uc.Answer(context.Background(), "what is 1/0")
	if err != nil {
		t.Fatalf("Answer() error = %v", err)
	}
	if len(answer.ToolEvents) != 2 || answer.ToolEvents[0].Status != "error" || answer.ToolEvents[1].Status != "error" {
		t.Fatalf("unexpected tool events %+v", answer.ToolEvents)
	}
	if answer.Answer != "Division by zero is undefined." {
		t.Fatalf("unexpected answer %q", answer.Answer)
	}
}

func TestAnswerKeepsFinalAnswerWhenRetrieverFails(t *testing.T) {
	gen := &scriptedGenerator{steps: []string{
		`{"type":"tool","tool":"financial_data_retriever","input":{"query":"DIPD revenue"}}`,
		`{"type":"final","answer":"The financial data is unavailable right now, please try again later."}`,
	}}
	uc, embedder, _ := newAnswerFixture(gen, &fakeVectorIndex{}, 10)
	embedder.err = errors.New("qdrant unavailable")

	answer, err := uc.Answer(context.Background(), "What was DIPD revenue?")
	if err != nil {
		t.Fatalf("Answer() error = %v", err)
	}
	if answer.StopReason != "final_answer" {
		t.Fatalf("unexpected stop reason %q", answer.StopReason)
	}
	if answer.Answer != "The financial data is unavailable right now, please try again later." {
		t.Fatalf("unexpected answer %q", answer.Answer)
	}
	if len(answer.ToolEvents) != 1 || answer.ToolEvents[0].Status != "error" {
		t.Fatalf("expected failed retriever event, got %+v", answer.ToolEvents)
	}
}

func TestAnswerRejectsEmptyQuestion(t *testing.T) {
	uc, _, _ := newAnswerFixture(&scriptedGenerator{}, &fakeVectorIndex{}, 10)
	if _, err := uc.Answer(context.Background(), ""); !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
}
