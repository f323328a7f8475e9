package main

import (
	"errors"
	"fmt"

	"github.com/hal9000y/sdr/internal/agent"
	"github.com/hal9000y/sdr/internal/auth"
	"github.com/hal9000y/sdr/internal/config"
	"github.com/hal9000y/sdr/internal/format"
	"github.com/hal9000y/sdr/internal/gservice"
	"github.com/hal9000y/sdr/internal/llm"
	"github.com/hal9000y/sdr/internal/logger"
	"github.com/hal9000y/sdr/internal/mailer"
	"github.com/hal9000y/sdr/internal/sdr"
	"github.com/hal9000y/sdr/internal/tool"
)

// newMailer builds the email service for the configured provider.
// For Gmail the returned token may still be unauthorized; see requireToken.
func newMailer(appCfg config.AppConfig, redirectURL string) (*mailer.Service, *auth.Token, error) {
	emailCfg, err := config.LoadEmailConfig()
	if err != nil {
		return nil, nil, err
	}

	switch emailCfg.Provider {
	case config.ProviderGmail:
		tok, err := newGmailToken(redirectURL)
		if err != nil {
			return nil, nil, err
		}
		transport := mailer.NewGmail(gservice.NewGmail(tok))
		return mailer.New(emailCfg.FromEmail, emailCfg.ToEmail, transport), tok, nil
	default:
		transport := mailer.NewSendGrid(emailCfg.APIKey, emailCfg.BaseURL, config.HTTPClient(appCfg.CABundle, 0))
		return mailer.New(emailCfg.FromEmail, emailCfg.ToEmail, transport), nil, nil
	}
}

func newGmailToken(redirectURL string) (*auth.Token, error) {
	gmailCfg, err := config.LoadGmailConfig()
	if err != nil {
		return nil, err
	}

	tok, err := auth.NewToken(auth.NewOAuthConfig(gmailCfg.ClientID, gmailCfg.ClientSecret, redirectURL), gmailCfg.TokenFile)
	if err != nil {
		return nil, fmt.Errorf("auth.NewToken failed: %w", err)
	}

	return tok, nil
}

// requireToken fails when the Gmail transport has no token yet. A nil tok means another provider.
func requireToken(tok *auth.Token) error {
	if tok == nil {
		return nil
	}
	if _, err := tok.OAuthToken(); errors.Is(err, auth.ErrTokenNotSet) {
		return fmt.Errorf("%w: Gmail is not authorized, run `sdr auth` first", config.ErrConfiguration)
	}
	return nil
}

func persistToken(tok *auth.Token) {
	if tok == nil {
		return
	}
	if err := tok.Persist(); err != nil {
		logger.Get().Errorw("tok.Persist failed", "error", err)
	}
}

// newManager wires the model backend, runtime and tools around svc.
func newManager(appCfg config.AppConfig, svc *mailer.Service) (*sdr.Manager, *tool.Factory, error) {
	llmCfg, err := config.LoadLLMConfig()
	if err != nil {
		return nil, nil, err
	}
	agentCfg := config.LoadAgentConfig()

	model := llm.NewOpenAI(llm.OpenAIOptions{
		APIKey:     llmCfg.APIKey,
		BaseURL:    llmCfg.BaseURL,
		Model:      agentCfg.Model,
		HTTPClient: config.HTTPClient(appCfg.CABundle, llmCfg.Timeout),
	})
	runtime := agent.NewRuntime(model, agent.WithMaxTurns(llmCfg.MaxTurns))

	factory, err := tool.NewFactory(agentCfg, runtime, svc, format.Cleaner{})
	if err != nil {
		return nil, nil, err
	}
	m, err := sdr.New(agentCfg, runtime, factory)
	if err != nil {
		return nil, nil, err
	}

	logger.Get().Debugw("sdr manager ready", "model", agentCfg.Model, "company", agentCfg.CompanyName, "max_turns", llmCfg.MaxTurns)

	return m, factory, nil
}

// newCLIManager builds a manager for one-shot commands.
func newCLIManager(appCfg config.AppConfig) (*sdr.Manager, func(), error) {
	svc, tok, err := newMailer(appCfg, "http://"+defaultHTTPAddr+"/oauth")
	if err != nil {
		return nil, nil, err
	}
	if err := requireToken(tok); err != nil {
		return nil, nil, err
	}

	m, _, err := newManager(appCfg, svc)
	if err != nil {
		return nil, nil, err
	}

	return m, func() { persistToken(tok) }, nil
}
