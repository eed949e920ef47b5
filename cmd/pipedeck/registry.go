package main

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/waabox/pipedeck/internal/clock"
	"github.com/waabox/pipedeck/internal/config"
	"github.com/waabox/pipedeck/internal/domain"
	"github.com/waabox/pipedeck/internal/provider"
	githubprovider "github.com/waabox/pipedeck/internal/provider/github"
	gitlabprovider "github.com/waabox/pipedeck/internal/provider/gitlab"
	"github.com/waabox/pipedeck/internal/provider/local"
	"github.com/waabox/pipedeck/internal/provider/memory"
)

// buildRegistry registers every adapter pipedeck ships with. Nothing here
// touches the network; credentials are only used once a job is submitted.
func buildRegistry(cfg config.Config, repo domain.Repository, log *logrus.Entry) (*provider.Registry, error) {
	clk := clock.Real()
	registry := provider.NewRegistry()
	registry.Register(memory.ProviderName, memory.New(clk))
	registry.Register(local.ProviderName, local.NewAdapter(local.Options{
		LogDir: cfg.Local.LogDir,
		Shell:  cfg.Local.Shell,
		Clock:  clk,
	}))

	gh := githubprovider.NewAdapter(cfg.GitHub.Token, cfg.GitHub.URL, repo, clk)
	ghAdapter, err := withTokenCommand(gh, githubprovider.ProviderName, cfg.GitHub.TokenCommand, gh.SetToken)
	if err != nil {
		return nil, err
	}
	registry.Register(githubprovider.ProviderName, ghAdapter)

	gl := gitlabprovider.NewAdapter(cfg.GitLab.Token, cfg.GitLab.URL, repo)
	glAdapter, err := withTokenCommand(gl, gitlabprovider.ProviderName, cfg.GitLab.TokenCommand, gl.SetToken)
	if err != nil {
		return nil, err
	}
	registry.Register(gitlabprovider.ProviderName, glAdapter)

	log.WithField("providers", registry.Names()).Debug("adapters registered")
	return registry, nil
}

// withTokenCommand wraps inner so that a rejected token is replaced by the
// output of command and the call retried once.
func withTokenCommand(inner domain.BuildAdapter, name, command string, setToken func(string)) (domain.BuildAdapter, error) {
	if command == "" {
		return inner, nil
	}
	refresh, err := provider.CommandTokenSource(command)
	if err != nil {
		return nil, fmt.Errorf("%s.token_command: %w", name, err)
	}
	return provider.NewRefreshingAdapter(inner, name, refresh, setToken), nil
}
