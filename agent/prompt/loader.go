package prompt

import (
	_ "embed"
	"strings"
)

var (
	//go:embed template/executor.txt
	executorRaw string

	//go:embed template/presenter.txt
	presenterRaw string

	//go:embed template/repair.txt
	repairRaw string
)

// PromptSet holds loaded prompt content.
type PromptSet struct {
	Executor  string
	Presenter string
	Repair    string
}

// LoadPromptSet returns a PromptSet with trimmed prompt strings.
// This is safe to call concurrently; the embed is compile-time, and trimming is cheap.
func LoadPromptSet() PromptSet {
	return PromptSet{
		Executor:  strings.TrimSpace(executorRaw),
		Presenter: strings.TrimSpace(presenterRaw),
		Repair:    strings.TrimSpace(repairRaw),
	}
}
