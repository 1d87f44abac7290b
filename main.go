package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/rs/zerolog/log"

	approvalx "github.com/haasonsaas/adept/agent/approval"
	auditx "github.com/haasonsaas/adept/agent/audit"
	contractx "github.com/haasonsaas/adept/agent/contract"
	guardx "github.com/haasonsaas/adept/agent/guard"
	llmx "github.com/haasonsaas/adept/agent/llm"
	outcomex "github.com/haasonsaas/adept/agent/outcome"
	pipelinex "github.com/haasonsaas/adept/agent/pipeline"
	promptx "github.com/haasonsaas/adept/agent/prompt"
	ratelimitx "github.com/haasonsaas/adept/agent/ratelimit"
	toolx "github.com/haasonsaas/adept/agent/tool"
	configx "github.com/haasonsaas/adept/pkg/config"
	_ "github.com/haasonsaas/adept/pkg/logger/autoload"
	openrouterx "github.com/haasonsaas/adept/pkg/openrouter"
	redisrestx "github.com/haasonsaas/adept/pkg/redisrest"
)

type AppConfig struct {
	WorkspaceID      string `envconfig:"WORKSPACE_ID" split_words:"true" default:"default"`
	UserID           string `envconfig:"USER_ID" split_words:"true" default:"local"`
	MaxSteps         int    `envconfig:"MAX_STEPS" split_words:"true" default:"8"`
	AuditPostgresDSN string `envconfig:"AUDIT_POSTGRES_DSN" split_words:"true"`
	UpstashURL       string `envconfig:"UPSTASH_URL" split_words:"true"`
	UpstashToken     string `envconfig:"UPSTASH_TOKEN" split_words:"true"`
}

func main() {
	ctx := context.Background()
	appCfg := configx.MustNew[AppConfig]("")

	llmCfg := configx.MustNew[llmx.Config]("OPENROUTER")
	models, err := llmx.NewModels(ctx, *llmCfg)
	if err != nil {
		log.Fatal().Err(err).Msg("build phase models")
	}

	// Raw SDK client for endpoints the eino model abstraction does not cover.
	openRouterClient := openrouterx.NewClient(llmCfg.OpenRouterFor(contractx.PhaseExecutor))
	if openRouterClient == nil {
		log.Fatal().Msg("initialize openrouter client")
	}

	registry := toolx.NewRegistry(toolx.Config{})
	tracker := toolx.NewTracker(
		toolx.Issue{Key: "ENG-123", Title: "Login page crashes on submit", Status: "open"},
		toolx.Issue{Key: "ENG-124", Title: "Search results missing pagination", Status: "open"},
	)
	if err := toolx.RegisterBuiltins(registry, nil); err != nil {
		log.Fatal().Err(err).Msg("register builtin tools")
	}
	if err := toolx.RegisterTracker(registry, tracker); err != nil {
		log.Fatal().Err(err).Msg("register tracker tools")
	}
	if err := toolx.RegisterKnowledgeBase(registry, []toolx.Snippet{
		{Title: "VPN setup", Body: "How to configure the VPN client on a new laptop."},
		{Title: "Release process", Body: "Checklist for cutting a production release."},
	}); err != nil {
		log.Fatal().Err(err).Msg("register knowledge base")
	}
	registry.MarkHot("tracker.get_issue")
	registry.MarkHot("tracker.search_issues")

	guard, err := guardx.New(guardx.Config{})
	if err != nil {
		log.Fatal().Err(err).Msg("build guard")
	}

	limiterCfg := configx.MustNew[ratelimitx.Config]("RATE")
	limiter := ratelimitx.New(*limiterCfg)

	var approvalStore approvalx.Store
	if appCfg.UpstashURL != "" && appCfg.UpstashToken != "" {
		client := redisrestx.MustNew(redisrestx.Config{URL: appCfg.UpstashURL, Token: appCfg.UpstashToken})
		approvalStore, err = approvalx.NewRedisStore(client)
		if err != nil {
			log.Fatal().Err(err).Msg("build approval store")
		}
	}
	approvals, err := approvalx.New(approvalx.Config{}, approvalStore)
	if err != nil {
		log.Fatal().Err(err).Msg("build approval gates")
	}

	var audit contractx.AuditLog = auditx.NewLogger()
	if appCfg.AuditPostgresDSN != "" {
		store, err := auditx.NewBunStore(appCfg.AuditPostgresDSN)
		if err != nil {
			log.Fatal().Err(err).Msg("connect audit database")
		}
		defer store.Close()
		if err := store.Init(ctx); err != nil {
			log.Fatal().Err(err).Msg("init audit database")
		}
		audit = auditx.Multi{auditx.NewLogger(), store}
	}

	monitor := outcomex.New()

	svc, err := pipelinex.New(ctx, pipelinex.Deps{
		Models:    models,
		Registry:  registry,
		Guard:     guard,
		Limiter:   limiter,
		Approvals: approvals,
		Audit:     audit,
		Monitor:   monitor,
		Notify: func(_ context.Context, message string) {
			fmt.Println("  " + message)
		},
		Prompts:  promptx.LoadPromptSet(),
		MaxSteps: appCfg.MaxSteps,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("build pipeline")
	}

	caller := contractx.CallerContext{
		UserID:      appCfg.UserID,
		WorkspaceID: appCfg.WorkspaceID,
		SessionID:   "local",
	}

	fmt.Println("Ready. Type a message, or an empty line to exit.")
	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			break
		}

		reply, err := svc.Respond(ctx, pipelinex.Request{UserMessage: line, Caller: caller})
		if err != nil {
			log.Error().Err(err).Msg("request failed")
			fmt.Println("Sorry, something went wrong handling that.")
			continue
		}
		fmt.Println(reply.Text)
	}
}
