package cli

import (
	"fmt"
	"io"
	"os/exec"

	"github.com/spf13/cobra"

	platformconfig "voice3d-server/internal/platform/config"
)

// Check is one prerequisite line of the doctor report.
type Check struct {
	Name   string
	OK     bool
	Detail string
}

// lookPath is replaced in tests.
var lookPath = exec.LookPath

func NewDoctorCmd(flags *Flags) *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check prerequisites",
		RunE: func(cmd *cobra.Command, args []string) error {
			result, err := platformconfig.NewLoader().
				WithDotEnv(!flags.NoDotEnv).
				WithPath(flags.ConfigPath).
				Load()
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
			if !report(cmd.OutOrStdout(), Diagnose(result.Config)) {
				return fmt.Errorf("some prerequisites are missing")
			}
			return nil
		},
	}
}

// Diagnose inspects the external binaries and credentials the selected
// providers need.
func Diagnose(cfg *platformconfig.Config) []Check {
	var checks []Check

	if path, err := lookPath(cfg.Normalizer.FFmpegPath); err != nil {
		checks = append(checks, Check{Name: "ffmpeg", Detail: "not found at " + cfg.Normalizer.FFmpegPath})
	} else {
		checks = append(checks, Check{Name: "ffmpeg", OK: true, Detail: path})
	}

	checks = append(checks,
		keyCheck("ASR "+cfg.Selected.ASR, cfg.SelectedASR().APIKey, "OPENAI_API_KEY"),
		keyCheck("LLM "+cfg.Selected.LLM, cfg.SelectedLLM().APIKey, llmKeyEnv(cfg.SelectedLLM().Type)),
		keyCheck("Image "+cfg.Selected.Image, cfg.SelectedImage().APIKey, "OPENAI_API_KEY"),
		keyCheck("Mesh "+cfg.Selected.Mesh, cfg.SelectedMesh().APIKey, "STABILITY_API_KEY"),
	)

	pub := cfg.SelectedPublish()
	name := "Publish " + cfg.Selected.Publish
	switch pub.Type {
	case "github":
		switch {
		case pub.Token == "":
			checks = append(checks, Check{Name: name, Detail: "token not set. Set GITHUB_TOKEN or add to config"})
		case pub.Owner == "" || pub.Repo == "":
			checks = append(checks, Check{Name: name, Detail: "owner/repo not set. Set GITHUB_OWNER and GITHUB_REPO"})
		default:
			checks = append(checks, Check{Name: name, OK: true, Detail: pub.Owner + "/" + pub.Repo + ":" + pub.Path})
		}
	case "s3":
		if pub.Bucket == "" {
			checks = append(checks, Check{Name: name, Detail: "bucket not set. Set S3_BUCKET or add to config"})
		} else {
			checks = append(checks, Check{Name: name, OK: true, Detail: "s3://" + pub.Bucket + "/" + pub.Path})
		}
	default:
		checks = append(checks, Check{Name: name, Detail: "unknown type " + pub.Type})
	}

	checks = append(checks, Check{Name: "Artifacts directory", OK: true, Detail: cfg.Web.ArtifactDir})
	return checks
}

func keyCheck(name, key, env string) Check {
	if key != "" {
		return Check{Name: name, OK: true, Detail: "configured"}
	}
	return Check{Name: name, Detail: "not set. Set " + env + " or add to config"}
}

func llmKeyEnv(typ string) string {
	if typ == "gemini" {
		return "GEMINI_API_KEY"
	}
	return "OPENAI_API_KEY"
}

func report(w io.Writer, checks []Check) bool {
	ok := true
	for _, c := range checks {
		mark := "ok"
		if !c.OK {
			mark = "missing"
			ok = false
		}
		fmt.Fprintf(w, "%-8s %-24s %s\n", mark, c.Name, c.Detail)
	}
	if ok {
		fmt.Fprintln(w, "\nAll prerequisites met.")
	} else {
		fmt.Fprintln(w, "\nSome prerequisites are missing.")
	}
	return ok
}
