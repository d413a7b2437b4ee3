package studio

import "fmt"

// Step is the active phase of the ad workflow. Exactly one step is active
// at a time; transitions are owned by the Controller.
type Step string

const (
	StepPrepare  Step = "PREPARE"
	StepDesign   Step = "DESIGN"
	StepFinalize Step = "FINALIZE"
)

// Artifact is one image in the workflow: raw bytes as base64 plus the mime
// type they were decoded with.
type Artifact struct {
	Base64   string
	MimeType string
}

func (a Artifact) IsZero() bool {
	return a.Base64 == ""
}

// DataURL returns a renderable reference to the artifact bytes.
func (a Artifact) DataURL() string {
	if a.IsZero() {
		return ""
	}
	return fmt.Sprintf("data:%s;base64,%s", a.MimeType, a.Base64)
}

// Snapshot is a read-only copy of the workflow state, safe to hand to a
// presentation layer while a gateway call is outstanding.
type Snapshot struct {
	Step        Step
	Original    Artifact
	Prepared    Artifact
	Final       Artifact
	Scene       string
	VideoPrompt string
	HasPrepared bool
	Busy        bool
	LastError   string
}
