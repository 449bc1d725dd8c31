package bootstrap

import (
	"context"

	"voice3d-server/internal/contracts/providers"
	asropenai "voice3d-server/internal/domain/asr/openai"
	"voice3d-server/internal/domain/image"
	imageopenai "voice3d-server/internal/domain/image/openai"
	"voice3d-server/internal/domain/llm"
	llmgemini "voice3d-server/internal/domain/llm/gemini"
	llmopenai "voice3d-server/internal/domain/llm/openai"
	"voice3d-server/internal/domain/mesh/stability"
	publishgithub "voice3d-server/internal/domain/publish/github"
	publishs3 "voice3d-server/internal/domain/publish/s3"
	platformconfig "voice3d-server/internal/platform/config"
	"voice3d-server/internal/utils"
)

// llmInput pairs the config entry with the hot-reloaded system instruction.
type llmInput struct {
	cfg         platformconfig.LLMConfig
	instruction llm.InstructionFunc
}

// imageInput pairs the config entry with the payload validator.
type imageInput struct {
	cfg    platformconfig.ImageConfig
	logger *utils.Logger
}

var (
	asrRegistry     = providers.NewRegistry[platformconfig.ASRConfig, providers.Transcriber]("ASR")
	llmRegistry     = providers.NewRegistry[llmInput, providers.PromptOptimizer]("LLM")
	imageRegistry   = providers.NewRegistry[imageInput, providers.ImageGenerator]("Image")
	meshRegistry    = providers.NewRegistry[platformconfig.MeshConfig, providers.ModelGenerator]("Mesh")
	publishRegistry = providers.NewRegistry[platformconfig.PublishConfig, providers.ArtifactStore]("Publish")
)

func init() {
	asrRegistry.MustRegister("openai", func(_ context.Context, c platformconfig.ASRConfig) (providers.Transcriber, error) {
		return asropenai.New(asropenai.Config{
			APIKey:   c.APIKey,
			BaseURL:  c.BaseURL,
			Model:    c.Model,
			Language: c.Language,
		})
	})

	llmRegistry.MustRegister("openai", func(_ context.Context, in llmInput) (providers.PromptOptimizer, error) {
		return llmopenai.New(llmopenai.Config{
			APIKey:      in.cfg.APIKey,
			BaseURL:     in.cfg.BaseURL,
			Model:       in.cfg.ModelName,
			Temperature: in.cfg.Temperature,
			MaxTokens:   in.cfg.MaxTokens,
		}, in.instruction)
	})
	llmRegistry.MustRegister("gemini", func(ctx context.Context, in llmInput) (providers.PromptOptimizer, error) {
		return llmgemini.New(ctx, llmgemini.Config{
			APIKey:      in.cfg.APIKey,
			BaseURL:     in.cfg.BaseURL,
			Model:       in.cfg.ModelName,
			Temperature: in.cfg.Temperature,
			MaxTokens:   in.cfg.MaxTokens,
		}, in.instruction)
	})

	imageRegistry.MustRegister("openai", func(_ context.Context, in imageInput) (providers.ImageGenerator, error) {
		limits := image.DefaultLimits()
		if in.cfg.MaxBytes > 0 {
			limits.MaxFileSize = in.cfg.MaxBytes
		}
		pipeline := image.NewPipeline(image.NewValidator(limits, in.logger), limits)
		return imageopenai.New(imageopenai.Config{
			APIKey:  in.cfg.APIKey,
			BaseURL: in.cfg.BaseURL,
			Model:   in.cfg.Model,
			Size:    in.cfg.Size,
			Quality: in.cfg.Quality,
		}, pipeline)
	})

	meshRegistry.MustRegister("stability", func(_ context.Context, c platformconfig.MeshConfig) (providers.ModelGenerator, error) {
		return stability.New(stability.Config{
			APIKey:            c.APIKey,
			BaseURL:           c.BaseURL,
			TextureResolution: c.TextureResolution,
			ForegroundRatio:   c.ForegroundRatio,
			Timeout:           c.Timeout,
		})
	})

	publishRegistry.MustRegister("github", func(_ context.Context, c platformconfig.PublishConfig) (providers.ArtifactStore, error) {
		return publishgithub.New(publishgithub.Config{
			Token:         c.Token,
			Owner:         c.Owner,
			Repo:          c.Repo,
			Branch:        c.Branch,
			CommitMessage: c.CommitMessage,
			BaseURL:       c.BaseURL,
			Timeout:       c.Timeout,
		})
	})
	publishRegistry.MustRegister("s3", func(_ context.Context, c platformconfig.PublishConfig) (providers.ArtifactStore, error) {
		return publishs3.New(publishs3.Config{
			Bucket:       c.Bucket,
			Region:       c.Region,
			AccessKey:    c.AccessKey,
			SecretKey:    c.SecretKey,
			Endpoint:     c.BaseURL,
			UsePathStyle: c.UsePathStyle,
			Timeout:      c.Timeout,
		})
	})
}

// providerSet is the selected adapter per capability.
type providerSet struct {
	transcriber providers.Transcriber
	optimizer   providers.PromptOptimizer
	images      providers.ImageGenerator
	models      providers.ModelGenerator
	store       providers.ArtifactStore
}

func buildProviders(ctx context.Context, cfg *platformconfig.Config, instruction llm.InstructionFunc, logger *utils.Logger) (*providerSet, error) {
	set := &providerSet{}
	var err error

	asrCfg := cfg.SelectedASR()
	if set.transcriber, err = asrRegistry.Create(ctx, asrCfg.Type, asrCfg); err != nil {
		return nil, err
	}
	llmCfg := cfg.SelectedLLM()
	if set.optimizer, err = llmRegistry.Create(ctx, llmCfg.Type, llmInput{cfg: llmCfg, instruction: instruction}); err != nil {
		return nil, err
	}
	imageCfg := cfg.SelectedImage()
	if set.images, err = imageRegistry.Create(ctx, imageCfg.Type, imageInput{cfg: imageCfg, logger: logger}); err != nil {
		return nil, err
	}
	meshCfg := cfg.SelectedMesh()
	if set.models, err = meshRegistry.Create(ctx, meshCfg.Type, meshCfg); err != nil {
		return nil, err
	}
	publishCfg := cfg.SelectedPublish()
	if set.store, err = publishRegistry.Create(ctx, publishCfg.Type, publishCfg); err != nil {
		return nil, err
	}

	logger.InfoTag("Bootstrap", "providers: ASR=%s LLM=%s Image=%s Mesh=%s Publish=%s",
		providers.NameOf(set.transcriber), providers.NameOf(set.optimizer), providers.NameOf(set.images),
		providers.NameOf(set.models), providers.NameOf(set.store))
	return set, nil
}
