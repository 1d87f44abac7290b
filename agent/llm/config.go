package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/cloudwego/eino/components/model"

	contractx "github.com/haasonsaas/adept/agent/contract"
	openrouterx "github.com/haasonsaas/adept/pkg/openrouter"
)

type Config struct {
	BaseURL            string        `envconfig:"BASE_URL" split_words:"true" default:"https://openrouter.ai/api/v1"`
	APIKey             string        `envconfig:"API_KEY" split_words:"true" required:"true"`
	Model              string        `envconfig:"MODEL" split_words:"true" required:"true"`
	MaxCompletionToken int           `envconfig:"MAX_COMPLETION_TOKEN" split_words:"true" default:"4000"`
	Temperature        float32       `envconfig:"TEMPERATURE" split_words:"true" default:"0.3"`
	Timeout            time.Duration `envconfig:"TIMEOUT" split_words:"true" default:"60s"`
	SiteURL            string        `envconfig:"SITE_URL" split_words:"true"`
	SiteName           string        `envconfig:"SITE_NAME" split_words:"true"`

	ExecutorModel        string  `envconfig:"EXECUTOR_MODEL" split_words:"true"`
	PresenterModel       string  `envconfig:"PRESENTER_MODEL" split_words:"true"`
	RepairModel          string  `envconfig:"REPAIR_MODEL" split_words:"true"`
	ExecutorTemperature  float32 `envconfig:"EXECUTOR_TEMPERATURE" split_words:"true" default:"-1"`
	PresenterTemperature float32 `envconfig:"PRESENTER_TEMPERATURE" split_words:"true" default:"-1"`
	RepairTemperature    float32 `envconfig:"REPAIR_TEMPERATURE" split_words:"true" default:"-1"`
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.APIKey) == "" {
		return fmt.Errorf("%w: openrouter api key is required", contractx.ErrValidation)
	}
	if strings.TrimSpace(c.Model) == "" {
		return fmt.Errorf("%w: default model is required", contractx.ErrValidation)
	}
	return nil
}

// OpenRouterFor resolves the model config for one phase, falling back to the
// shared defaults when a phase has no override.
func (c Config) OpenRouterFor(phase contractx.Phase) openrouterx.Config {
	modelName := strings.TrimSpace(c.Model)
	temp := c.Temperature

	switch phase {
	case contractx.PhaseExecutor:
		if v := strings.TrimSpace(c.ExecutorModel); v != "" {
			modelName = v
		}
		if c.ExecutorTemperature >= 0 {
			temp = c.ExecutorTemperature
		}
	case contractx.PhasePresenter:
		if v := strings.TrimSpace(c.PresenterModel); v != "" {
			modelName = v
		}
		if c.PresenterTemperature >= 0 {
			temp = c.PresenterTemperature
		}
	case contractx.PhaseRepair:
		if v := strings.TrimSpace(c.RepairModel); v != "" {
			modelName = v
		}
		if c.RepairTemperature >= 0 {
			temp = c.RepairTemperature
		}
	}

	maxCompletionToken := c.MaxCompletionToken
	return openrouterx.Config{
		BaseURL:            strings.TrimSpace(c.BaseURL),
		APIKey:             strings.TrimSpace(c.APIKey),
		Model:              modelName,
		MaxCompletionToken: &maxCompletionToken,
		Temperature:        temp,
		Timeout:            c.Timeout,
		SiteURL:            strings.TrimSpace(c.SiteURL),
		SiteName:           strings.TrimSpace(c.SiteName),
	}
}

// Models builds the three phase models from one config. It satisfies the
// pipeline's model collaborator.
type Models struct {
	executor  model.ToolCallingChatModel
	presenter model.ToolCallingChatModel
	repair    model.ToolCallingChatModel
}

var _ contractx.Models = (*Models)(nil)

func NewModels(ctx context.Context, cfg Config) (*Models, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	build := func(phase contractx.Phase) (model.ToolCallingChatModel, error) {
		orCfg := cfg.OpenRouterFor(phase)
		m, err := orCfg.New(ctx)
		if err != nil {
			return nil, fmt.Errorf("build %s model: %w", phase, err)
		}
		return m, nil
	}

	executor, err := build(contractx.PhaseExecutor)
	if err != nil {
		return nil, err
	}
	presenter, err := build(contractx.PhasePresenter)
	if err != nil {
		return nil, err
	}
	repair, err := build(contractx.PhaseRepair)
	if err != nil {
		return nil, err
	}

	return &Models{executor: executor, presenter: presenter, repair: repair}, nil
}

func (m *Models) Executor() model.ToolCallingChatModel { return m.executor }
func (m *Models) Presenter() model.BaseChatModel       { return m.presenter }
func (m *Models) Repair() model.BaseChatModel          { return m.repair }
