package config

import "time"

const defaultSystemInstruction = `You turn short spoken descriptions into prompts for an image model.
The image will be converted into a 3D model, so describe a single object, centered,
fully visible, on a plain white background, with soft even lighting and no text.
Reply with the prompt only.`

// DefaultConfig returns a configuration that runs locally with environment-provided keys.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			IP:              "0.0.0.0",
			Port:            3000,
			ShutdownTimeout: 15 * time.Second,
		},
		Log: LogConfig{
			Level: "info",
			Dir:   "data/logs",
			File:  "server.log",
		},
		Web: WebConfig{
			StaticDir:      "./web",
			ArtifactDir:    "data/artifacts",
			ArtifactPrefix: "/artifacts",
			WebsocketPath:  "/ws",
			UploadDir:      "data/uploads",
			MaxUploadBytes: 25 << 20,
		},
		Recording: RecordingConfig{
			MaxDuration: 10 * time.Second,
			FlushGrace:  750 * time.Millisecond,
			SampleRate:  16000,
			Channels:    1,
			TempDir:     "data/recordings",
			ArchiveDir:  "data/recordings/archive",
		},
		Normalizer: NormalizerConfig{
			FFmpegPath: "ffmpeg",
			Timeout:    30 * time.Second,
		},
		Pipeline: PipelineConfig{
			StyleModifier:     "low-poly 3D render, isometric view",
			SystemInstruction: defaultSystemInstruction,
			NameMaxLength:     20,
			StageTimeout:      3 * time.Minute,
		},
		Metrics: MetricsConfig{
			Enabled:   true,
			Path:      "/metrics",
			Namespace: "voice3d",
		},
		Selected: SelectedConfig{
			ASR:     "OpenAIASR",
			LLM:     "OpenAILLM",
			Image:   "OpenAIImage",
			Mesh:    "StabilityMesh",
			Publish: "GitHubPublish",
		},
		ASR: map[string]ASRConfig{
			"OpenAIASR": {
				Type:     "openai",
				Model:    "whisper-1",
				Language: "en",
			},
		},
		LLM: map[string]LLMConfig{
			"OpenAILLM": {
				Type:        "openai",
				ModelName:   "gpt-4o-mini",
				Temperature: 0.7,
				MaxTokens:   300,
			},
			"GeminiLLM": {
				Type:        "gemini",
				ModelName:   "gemini-2.0-flash",
				Temperature: 0.7,
				MaxTokens:   300,
			},
		},
		Image: map[string]ImageConfig{
			"OpenAIImage": {
				Type:     "openai",
				Model:    "dall-e-3",
				Size:     "1024x1024",
				Quality:  "standard",
				MaxBytes: 20 << 20,
			},
		},
		Mesh: map[string]MeshConfig{
			"StabilityMesh": {
				Type:              "stability",
				BaseURL:           "https://api.stability.ai",
				TextureResolution: 1024,
				ForegroundRatio:   0.85,
				Timeout:           2 * time.Minute,
			},
		},
		Publish: map[string]PublishConfig{
			"GitHubPublish": {
				Type:          "github",
				BaseURL:       "https://api.github.com",
				Branch:        "main",
				Path:          "models/latest.glb",
				CommitMessage: "Update generated model",
				Timeout:       30 * time.Second,
			},
			"S3Publish": {
				Type:    "s3",
				Path:    "models/latest.glb",
				Region:  "us-east-1",
				Timeout: 30 * time.Second,
			},
		},
	}
}
