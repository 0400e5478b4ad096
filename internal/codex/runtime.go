package codex

import (
	"encoding/json"
	"os"
)

// CLIOptions are the user-tunable codex exec flags.
type CLIOptions struct {
	Profile          string `json:"profile"`
	Sandbox          string `json:"sandbox"`
	ApprovalPolicy   string `json:"approvalPolicy"`
	SkipGitRepoCheck bool   `json:"skipGitRepoCheck"`
	CwdOverride      string `json:"cwdOverride"`
	ExtraArgs        string `json:"extraArgs"`
	EnableWebSearch  bool   `json:"enableWebSearch"`
}

// CLIOptionsPatch is a partial update; nil fields are left unchanged.
type CLIOptionsPatch struct {
	Profile          *string `json:"profile,omitempty"`
	Sandbox          *string `json:"sandbox,omitempty"`
	ApprovalPolicy   *string `json:"approvalPolicy,omitempty"`
	SkipGitRepoCheck *bool   `json:"skipGitRepoCheck,omitempty"`
	CwdOverride      *string `json:"cwdOverride,omitempty"`
	ExtraArgs        *string `json:"extraArgs,omitempty"`
	EnableWebSearch  *bool   `json:"enableWebSearch,omitempty"`
}

// UnmarshalJSON also accepts "askForApproval" and "ask_for_approval" as
// names for the approval policy.
func (p *CLIOptionsPatch) UnmarshalJSON(data []byte) error {
	type plain CLIOptionsPatch
	var aux struct {
		plain
		AskForApproval      *string `json:"askForApproval,omitempty"`
		AskForApprovalSnake *string `json:"ask_for_approval,omitempty"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	*p = CLIOptionsPatch(aux.plain)
	if p.ApprovalPolicy == nil {
		if aux.AskForApproval != nil {
			p.ApprovalPolicy = aux.AskForApproval
		} else {
			p.ApprovalPolicy = aux.AskForApprovalSnake
		}
	}
	return nil
}

// Apply returns o with every non-nil field of p applied.
func (o CLIOptions) Apply(p CLIOptionsPatch) CLIOptions {
	if p.Profile != nil {
		o.Profile = *p.Profile
	}
	if p.Sandbox != nil {
		o.Sandbox = *p.Sandbox
	}
	if p.ApprovalPolicy != nil {
		o.ApprovalPolicy = *p.ApprovalPolicy
	}
	if p.SkipGitRepoCheck != nil {
		o.SkipGitRepoCheck = *p.SkipGitRepoCheck
	}
	if p.CwdOverride != nil {
		o.CwdOverride = *p.CwdOverride
	}
	if p.ExtraArgs != nil {
		o.ExtraArgs = *p.ExtraArgs
	}
	if p.EnableWebSearch != nil {
		o.EnableWebSearch = *p.EnableWebSearch
	}
	return o
}

// RuntimeConfig is read when a process is launched. Changing it never
// affects processes that are already running.
type RuntimeConfig struct {
	Mode       string     `json:"mode"`
	YoloMode   bool       `json:"yoloMode"`
	Model      string     `json:"model"`
	Cwd        string     `json:"cwd"`
	CLIOptions CLIOptions `json:"cliOptions"`
}

// DefaultRuntimeConfig returns the settings used before any user change.
func DefaultRuntimeConfig() RuntimeConfig {
	cwd, err := os.Getwd()
	if err != nil {
		cwd = "."
	}
	return RuntimeConfig{
		Mode: "fast",
		Cwd:  cwd,
		CLIOptions: CLIOptions{
			Sandbox:          "workspace-write",
			ApprovalPolicy:   "on-request",
			SkipGitRepoCheck: true,
		},
	}
}
