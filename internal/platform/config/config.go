package config

import (
	"time"
)

type Config struct {
	Server     ServerConfig             `yaml:"server"`
	Log        LogConfig                `yaml:"log"`
	Web        WebConfig                `yaml:"web"`
	Recording  RecordingConfig          `yaml:"recording"`
	Normalizer NormalizerConfig         `yaml:"normalizer"`
	Pipeline   PipelineConfig           `yaml:"pipeline"`
	Metrics    MetricsConfig            `yaml:"metrics"`
	Selected   SelectedConfig           `yaml:"selected_module"`
	ASR        map[string]ASRConfig     `yaml:"ASR"`
	LLM        map[string]LLMConfig     `yaml:"LLM"`
	Image      map[string]ImageConfig   `yaml:"Image"`
	Mesh       map[string]MeshConfig    `yaml:"Mesh"`
	Publish    map[string]PublishConfig `yaml:"Publish"`
}

type ServerConfig struct {
	IP              string        `yaml:"ip"`
	Port            int           `yaml:"port"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

type LogConfig struct {
	Level string `yaml:"log_level"`
	Dir   string `yaml:"log_dir"`
	File  string `yaml:"log_file"`
}

type WebConfig struct {
	StaticDir      string `yaml:"static_dir"`
	ArtifactDir    string `yaml:"artifact_dir"`
	ArtifactPrefix string `yaml:"artifact_prefix"`
	WebsocketPath  string `yaml:"websocket_path"`
	UploadDir      string `yaml:"upload_dir"`
	MaxUploadBytes int64  `yaml:"max_upload_bytes"`
}

// RecordingConfig bounds a capture session.
type RecordingConfig struct {
	MaxDuration time.Duration `yaml:"max_duration"`
	FlushGrace  time.Duration `yaml:"flush_grace"`
	SampleRate  int           `yaml:"sample_rate"`
	Channels    int           `yaml:"channels"`
	TempDir     string        `yaml:"temp_dir"`
	KeepAudio   bool          `yaml:"keep_audio"`
	ArchiveDir  string        `yaml:"archive_dir"`
}

type NormalizerConfig struct {
	FFmpegPath string        `yaml:"ffmpeg_path"`
	Timeout    time.Duration `yaml:"timeout"`
}

type PipelineConfig struct {
	StyleModifier         string        `yaml:"style_modifier"`
	SystemInstruction     string        `yaml:"system_instruction"`
	SystemInstructionFile string        `yaml:"system_instruction_file"`
	NameMaxLength         int           `yaml:"name_max_length"`
	StageTimeout          time.Duration `yaml:"stage_timeout"`
}

type MetricsConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Path      string `yaml:"path"`
	Namespace string `yaml:"namespace"`
}

// SelectedConfig picks one provider entry per capability.
type SelectedConfig struct {
	ASR     string `yaml:"ASR"`
	LLM     string `yaml:"LLM"`
	Image   string `yaml:"Image"`
	Mesh    string `yaml:"Mesh"`
	Publish string `yaml:"Publish"`
}

type ASRConfig struct {
	Type     string `yaml:"type"`
	APIKey   string `yaml:"api_key"`
	BaseURL  string `yaml:"url"`
	Model    string `yaml:"model"`
	Language string `yaml:"language"`
}

type LLMConfig struct {
	Type        string  `yaml:"type"`
	ModelName   string  `yaml:"model_name"`
	BaseURL     string  `yaml:"url"`
	APIKey      string  `yaml:"api_key"`
	Temperature float64 `yaml:"temperature"`
	MaxTokens   int     `yaml:"max_tokens"`
}

type ImageConfig struct {
	Type    string `yaml:"type"`
	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"url"`
	Model   string `yaml:"model"`
	Size    string `yaml:"size"`
	Quality string `yaml:"quality"`
	// MaxBytes caps the decoded image payload.
	MaxBytes int64 `yaml:"max_bytes"`
}

type MeshConfig struct {
	Type              string        `yaml:"type"`
	APIKey            string        `yaml:"api_key"`
	BaseURL           string        `yaml:"url"`
	TextureResolution int           `yaml:"texture_resolution"`
	ForegroundRatio   float64       `yaml:"foreground_ratio"`
	Timeout           time.Duration `yaml:"timeout"`
}

// PublishConfig covers both the GitHub contents store and the S3 store.
type PublishConfig struct {
	Type          string        `yaml:"type"`
	Path          string        `yaml:"path"`
	CommitMessage string        `yaml:"commit_message"`
	Token         string        `yaml:"token"`
	Owner         string        `yaml:"owner"`
	Repo          string        `yaml:"repo"`
	Branch        string        `yaml:"branch"`
	BaseURL       string        `yaml:"url"`
	Bucket        string        `yaml:"bucket"`
	Region        string        `yaml:"region"`
	AccessKey     string        `yaml:"access_key"`
	SecretKey     string        `yaml:"secret_key"`
	UsePathStyle  bool          `yaml:"use_path_style"`
	Timeout       time.Duration `yaml:"timeout"`
}
