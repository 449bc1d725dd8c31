package pipeline

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"voice3d-server/internal/contracts/providers"
	apperrors "voice3d-server/internal/platform/errors"
	"voice3d-server/internal/platform/observability"
	"voice3d-server/internal/utils"
)

const (
	DefaultRemotePath = "models/latest.glb"
	imageExt          = ".png"
	modelExt          = ".glb"
)

type Options struct {
	ArtifactDir   string
	URLPrefix     string
	RemotePath    string
	StyleModifier string
	NameMaxLength int
	// StageTimeout bounds each external call. Zero means no bound.
	StageTimeout time.Duration
}

// Pipeline runs optimize, image, model and publish strictly in order.
// Each stage consumes the previous stage's output; a failure stops the run
// and leaves already written local files in place.
type Pipeline struct {
	opts      Options
	optimizer providers.PromptOptimizer
	images    providers.ImageGenerator
	models    providers.ModelGenerator
	store     providers.ArtifactStore
	logger    *utils.Logger
	now       func() time.Time
}

func New(opts Options, optimizer providers.PromptOptimizer, images providers.ImageGenerator,
	models providers.ModelGenerator, store providers.ArtifactStore, logger *utils.Logger) *Pipeline {
	if opts.RemotePath == "" {
		opts.RemotePath = DefaultRemotePath
	}
	if opts.URLPrefix == "" {
		opts.URLPrefix = "/artifacts"
	}
	if opts.NameMaxLength <= 0 {
		opts.NameMaxLength = DefaultNameMaxLength
	}
	return &Pipeline{
		opts:      opts,
		optimizer: optimizer,
		images:    images,
		models:    models,
		store:     store,
		logger:    logger,
		now:       time.Now,
	}
}

// Generation is the local outcome of the first three stages.
type Generation struct {
	Prompt  string
	Refined string
	Image   Artifact
	Model   Artifact
}

// Run generates and publishes in one call.
func (p *Pipeline) Run(ctx context.Context, prompt, style string) (*PublishedAsset, error) {
	gen, err := p.Generate(ctx, prompt, style)
	if err != nil {
		return nil, err
	}
	return p.Publish(ctx, gen)
}

// Generate runs prompt optimization, image generation and model generation.
// An empty style falls back to the configured modifier.
func (p *Pipeline) Generate(ctx context.Context, prompt, style string) (*Generation, error) {
	if style == "" {
		style = p.opts.StyleModifier
	}
	stem := Stem(prompt, p.opts.NameMaxLength)
	gen := &Generation{Prompt: prompt}

	err := p.stage(ctx, StageOptimize, apperrors.KindPromptOptimization, func(ctx context.Context) error {
		refined, err := p.optimizer.OptimizePrompt(ctx, prompt, style)
		if err != nil {
			return err
		}
		refined = strings.TrimSpace(refined)
		if refined == "" {
			return fmt.Errorf("prompt optimization returned no text")
		}
		gen.Refined = refined
		p.logger.InfoTag("LLM", "%s refined prompt: %q", providers.NameOf(p.optimizer), refined)
		return nil
	})
	if err != nil {
		return gen, err
	}

	err = p.stage(ctx, StageImage, apperrors.KindImageGeneration, func(ctx context.Context) error {
		data, err := p.images.GenerateImage(ctx, gen.Refined)
		if err != nil {
			return err
		}
		if len(data) == 0 {
			return fmt.Errorf("image generation returned no data")
		}
		art, err := p.write(KindImage, stem, imageExt, data, gen.Refined)
		if err != nil {
			return err
		}
		gen.Image = art
		p.logger.InfoTag("Image", "%s wrote %s (%d bytes)", providers.NameOf(p.images), art.Path, len(data))
		return nil
	})
	if err != nil {
		return gen, err
	}

	err = p.stage(ctx, StageModel, apperrors.KindModelGeneration, func(ctx context.Context) error {
		data, err := p.models.GenerateModel(ctx, gen.Image.Payload, gen.Image.Name)
		if err != nil {
			return err
		}
		if len(data) == 0 {
			return fmt.Errorf("model generation returned no data")
		}
		art, err := p.write(KindModel, stem, modelExt, data, gen.Refined)
		if err != nil {
			return err
		}
		gen.Model = art
		p.logger.InfoTag("Mesh", "%s wrote %s (%d bytes)", providers.NameOf(p.models), art.Path, len(data))
		return nil
	})
	if err != nil {
		return gen, err
	}
	return gen, nil
}

// Publish uploads the generated model to the canonical remote path,
// replacing whatever version is there.
func (p *Pipeline) Publish(ctx context.Context, gen *Generation) (*PublishedAsset, error) {
	if gen == nil || len(gen.Model.Payload) == 0 {
		return nil, apperrors.New(apperrors.KindPublish, "pipeline."+StagePublish, "no model to publish")
	}

	var asset *PublishedAsset
	err := p.stage(ctx, StagePublish, apperrors.KindPublish, func(ctx context.Context) error {
		prior, found, err := p.store.Lookup(ctx, p.opts.RemotePath)
		if err != nil {
			return fmt.Errorf("lookup %s: %w", p.opts.RemotePath, err)
		}
		if !found {
			prior = ""
		}
		version, err := p.store.Put(ctx, p.opts.RemotePath, gen.Model.Payload, prior)
		if err != nil {
			return fmt.Errorf("upload %s: %w", p.opts.RemotePath, err)
		}
		asset = &PublishedAsset{
			RemotePath:   p.opts.RemotePath,
			PriorVersion: prior,
			Version:      version,
			LocalPath:    gen.Model.Path,
			URL:          p.URL(gen.Model.Name),
			Prompt:       gen.Prompt,
			Refined:      gen.Refined,
			PublishedAt:  p.now(),
		}
		p.logger.InfoTag("Publish", "%s %s: %q -> %q", providers.NameOf(p.store), p.opts.RemotePath, prior, version)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return asset, nil
}

// URL is the public path of a local artifact file.
func (p *Pipeline) URL(name string) string {
	return path.Join("/", p.opts.URLPrefix, name)
}

func (p *Pipeline) stage(ctx context.Context, name string, kind apperrors.Kind, fn func(context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return apperrors.Wrap(kind, "pipeline."+name, "cancelled", err)
	}
	if p.opts.StageTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.opts.StageTimeout)
		defer cancel()
	}

	ctx, end := observability.StartSpan(ctx, "pipeline", name)
	err := fn(ctx)
	if err != nil {
		err = apperrors.Wrap(kind, "pipeline."+name, name+" failed", err)
		p.logger.ErrorTag("Pipeline", "%s: %v", name, err)
	}
	end(err)
	return err
}

func (p *Pipeline) write(kind ArtifactKind, stem, ext string, data []byte, prompt string) (Artifact, error) {
	if err := os.MkdirAll(p.opts.ArtifactDir, 0o755); err != nil {
		return Artifact{}, fmt.Errorf("create artifact dir: %w", err)
	}
	name := FileName(kind, stem, ext)
	target := filepath.Join(p.opts.ArtifactDir, name)
	if err := os.WriteFile(target, data, 0o644); err != nil {
		return Artifact{}, fmt.Errorf("write %s: %w", name, err)
	}
	return Artifact{Kind: kind, Payload: data, Name: name, Path: target, Prompt: prompt}, nil
}
