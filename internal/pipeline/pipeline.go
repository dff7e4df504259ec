package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/sashabaranov/go-openai/jsonschema"

	"ai-web-studio/internal/llm"
	"ai-web-studio/internal/models"
	"ai-web-studio/internal/retry"
	"ai-web-studio/internal/telemetry"
)

var ErrEmptyOutput = errors.New("model returned empty output")

// Model is the completion surface the pipeline needs. *llm.Client implements it.
type Model interface {
	Complete(ctx context.Context, prompt, system string, wantsJSON bool) (llm.Completion, error)
	CompleteStructured(ctx context.Context, prompt string, schema jsonschema.Definition, system string) (llm.Structured, error)
}

// Input is the job snapshot a run works from.
type Input struct {
	Title           string
	Prompt          string
	TechStack       string
	ColorSchemeHint string
}

// Checkpoint is consulted before every stage. A non-nil error aborts the run
// and is returned unchanged.
type Checkpoint func(ctx context.Context, next Stage) error

// Result is a complete bundle plus accounting across all stages.
type Result struct {
	Bundle models.Bundle
	Model  string
	Usage  llm.Usage
}

type Options struct {
	Palette PaletteResolver
	Retry   retry.Policy
}

// Pipeline runs the five generation stages strictly in order.
type Pipeline struct {
	model   Model
	palette PaletteResolver
	retry   retry.Policy
	log     zerolog.Logger
}

func New(model Model, log zerolog.Logger, opts Options) *Pipeline {
	palette := opts.Palette
	if palette == nil {
		palette = FixedPalette{}
	}
	return &Pipeline{model: model, palette: palette, retry: opts.Retry, log: log}
}

// Run produces a bundle or fails with the first stage error. A partial bundle
// is never returned.
func (p *Pipeline) Run(ctx context.Context, in Input, check Checkpoint) (Result, error) {
	var acc Result

	structure := runStage(ctx, p, StageStructure, check, &acc, func(ctx context.Context) Outcome[models.WebsiteStructure] {
		return p.structure(ctx, in)
	})
	if structure.Err != nil {
		return Result{}, structure.Err
	}

	palette := runStage(ctx, p, StageColorScheme, check, &acc, func(ctx context.Context) Outcome[models.ColorScheme] {
		return p.colorScheme(ctx, in.ColorSchemeHint, structure.Value)
	})
	if palette.Err != nil {
		return Result{}, palette.Err
	}

	markup := runStage(ctx, p, StageMarkup, check, &acc, func(ctx context.Context) Outcome[string] {
		return p.text(ctx, markupPrompt(structure.Value, palette.Value), markupSystem)
	})
	if markup.Err != nil {
		return Result{}, markup.Err
	}

	style := runStage(ctx, p, StageStyle, check, &acc, func(ctx context.Context) Outcome[string] {
		return p.text(ctx, stylePrompt(structure.Value, palette.Value), styleSystem)
	})
	if style.Err != nil {
		return Result{}, style.Err
	}

	script := runStage(ctx, p, StageScript, check, &acc, func(ctx context.Context) Outcome[string] {
		return p.text(ctx, scriptPrompt(structure.Value.SectionTypeList()), scriptSystem)
	})
	if script.Err != nil {
		return Result{}, script.Err
	}

	acc.Bundle = models.Bundle{
		Structure:   structure.Value,
		ColorScheme: palette.Value,
		Markup:      markup.Value,
		Stylesheet:  style.Value,
		Script:      script.Value,
	}
	return acc, nil
}

func runStage[T any](ctx context.Context, p *Pipeline, stage Stage, check Checkpoint, acc *Result, fn func(context.Context) Outcome[T]) Outcome[T] {
	if err := ctx.Err(); err != nil {
		return failed[T](&StageError{Stage: stage, Err: err})
	}
	if check != nil {
		if err := check(ctx, stage); err != nil {
			return failed[T](err)
		}
	}

	start := time.Now()
	out := fn(ctx)
	elapsed := time.Since(start)
	telemetry.StageDuration.WithLabelValues(string(stage)).Observe(elapsed.Seconds())

	if out.Err != nil {
		telemetry.StageFailures.WithLabelValues(string(stage)).Inc()
		p.log.Warn().Err(out.Err).Str("stage", string(stage)).Dur("duration", elapsed).Msg("stage failed")
		out.Err = &StageError{Stage: stage, Err: out.Err}
		return out
	}
	acc.Usage = acc.Usage.Add(out.Usage)
	if out.Model != "" {
		acc.Model = out.Model
	}
	p.log.Info().Str("stage", string(stage)).Dur("duration", elapsed).Int("tokens", out.Usage.TotalTokens).Msg("stage completed")
	return out
}

func (p *Pipeline) structure(ctx context.Context, in Input) Outcome[models.WebsiteStructure] {
	var res llm.Structured
	err := p.retry.Do(ctx, func(ctx context.Context) error {
		var err error
		res, err = p.model.CompleteStructured(ctx, structurePrompt(in), StructureSchema, structureSystem)
		return err
	}, llm.IsRetryable)
	if err != nil {
		return failed[models.WebsiteStructure](err)
	}
	s, err := llm.Decode[models.WebsiteStructure](res.Data)
	if err != nil {
		return failed[models.WebsiteStructure](err)
	}
	if err := s.Normalize(); err != nil {
		return failed[models.WebsiteStructure](err)
	}
	return ok(s, res.Completion)
}

func (p *Pipeline) colorScheme(ctx context.Context, hint string, s models.WebsiteStructure) Outcome[models.ColorScheme] {
	c, err := p.palette.Resolve(ctx, hint, s)
	if err != nil {
		return failed[models.ColorScheme](err)
	}
	if err := c.Validate(); err != nil {
		return failed[models.ColorScheme](err)
	}
	return Outcome[models.ColorScheme]{Value: c}
}

func (p *Pipeline) text(ctx context.Context, prompt, system string) Outcome[string] {
	var comp llm.Completion
	err := p.retry.Do(ctx, func(ctx context.Context) error {
		var err error
		comp, err = p.model.Complete(ctx, prompt, system, false)
		return err
	}, llm.IsRetryable)
	if err != nil {
		return failed[string](err)
	}
	text := trimCodeFence(comp.Text)
	if text == "" {
		return failed[string](fmt.Errorf("%w (%d raw bytes)", ErrEmptyOutput, len(comp.Text)))
	}
	return ok(text, comp)
}
