package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kirillkom/quarterly-financial-analyser/internal/core/domain"
	"github.com/kirillkom/quarterly-financial-analyser/internal/core/ports"
)

type StageRunner interface {
	SelectAll(ctx context.Context) []domain.StageReport
}

type DatasetBuilder interface {
	BuildAll(ctx context.Context) []domain.StageReport
}

// Pipeline is the set of stages the operator CLI can run one at a time.
type Pipeline struct {
	Acquirer ports.ReportAcquirer
	Selector StageRunner
	Dataset  DatasetBuilder
	Indexer  ports.KnowledgeIndexer
	Answerer ports.QueryAnswerer
}

// Loader builds the pipeline on first use so --help works without
// credentials. The returned func releases its resources.
type Loader func(ctx context.Context) (*Pipeline, func(), error)

func NewRootCommand(load Loader) *cobra.Command {
	root := &cobra.Command{
		Use:           "pipeline",
		Short:         "Run quarterly financial report pipeline stages",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(
		acquireCommand(load),
		stageCommand(load, "select", "Copy the statement page of every raw report", func(ctx context.Context, p *Pipeline) (any, error) {
			return p.Selector.SelectAll(ctx), nil
		}),
		stageCommand(load, "extract", "Extract metrics and rebuild company tables", func(ctx context.Context, p *Pipeline) (any, error) {
			return p.Dataset.BuildAll(ctx), nil
		}),
		stageCommand(load, "index", "Index company tables into the vector store", func(ctx context.Context, p *Pipeline) (any, error) {
			stats, err := p.Indexer.IndexAll(ctx)
			if err != nil {
				return nil, err
			}
			return stats, nil
		}),
		stageCommand(load, "visualize", "Run select, extract and index in sequence", runAll),
		queryCommand(load),
	)
	return root
}

func acquireCommand(load Loader) *cobra.Command {
	return &cobra.Command{
		Use:   "acquire [company]",
		Short: "Download the latest interim reports of a company",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withPipeline(cmd, load, func(ctx context.Context, p *Pipeline) (any, error) {
				return p.Acquirer.Acquire(ctx, args[0])
			})
		},
	}
}

func queryCommand(load Loader) *cobra.Command {
	var verbose bool
	cmd := &cobra.Command{
		Use:   "query [question]",
		Short: "Ask a question about the indexed financial data",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			question := strings.Join(args, " ")
			return withPipeline(cmd, load, func(ctx context.Context, p *Pipeline) (any, error) {
				answer, err := p.Answerer.Answer(ctx, question)
				if err != nil {
					return nil, err
				}
				if verbose {
					return answer, nil
				}
				return answer.Answer, nil
			})
		},
	}
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "print iterations, tools and stop reason")
	return cmd
}

func stageCommand(load Loader, use, short string, run func(context.Context, *Pipeline) (any, error)) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withPipeline(cmd, load, run)
		},
	}
}

func runAll(ctx context.Context, p *Pipeline) (any, error) {
	out := struct {
		Selection  []domain.StageReport `json:"selection"`
		Extraction []domain.StageReport `json:"extraction"`
		Index      domain.IndexStats    `json:"index"`
	}{}
	out.Selection = p.Selector.SelectAll(ctx)
	out.Extraction = p.Dataset.BuildAll(ctx)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	stats, err := p.Indexer.IndexAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("index: %w", err)
	}
	out.Index = stats
	return out, nil
}

func withPipeline(cmd *cobra.Command, load Loader, run func(context.Context, *Pipeline) (any, error)) error {
	if load == nil {
		return errors.New("pipeline loader not configured")
	}
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	p, release, err := load(ctx)
	if err != nil {
		return fmt.Errorf("init pipeline: %w", err)
	}
	if release != nil {
		defer release()
	}

	result, err := run(ctx, p)
	if err != nil {
		return err
	}
	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal result: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(data))
	return nil
}
