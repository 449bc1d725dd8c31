package pipeline

import "time"

type ArtifactKind string

const (
	KindImage ArtifactKind = "image"
	KindModel ArtifactKind = "model"
)

// Stage names double as span operations and metric labels.
const (
	StageOptimize = "optimize_prompt"
	StageImage    = "generate_image"
	StageModel    = "generate_model"
	StagePublish  = "publish"
)

// Artifact is the output of one generation stage. It belongs to a single run.
type Artifact struct {
	Kind    ArtifactKind
	Payload []byte
	Name    string
	Path    string
	Prompt  string
}

// PublishedAsset describes the model that reached the remote store.
type PublishedAsset struct {
	RemotePath   string    `json:"remote_path"`
	PriorVersion string    `json:"prior_version,omitempty"`
	Version      string    `json:"version"`
	LocalPath    string    `json:"local_path"`
	URL          string    `json:"url"`
	Prompt       string    `json:"prompt"`
	Refined      string    `json:"refined_prompt"`
	PublishedAt  time.Time `json:"published_at"`
}
