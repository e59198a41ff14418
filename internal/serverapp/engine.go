package serverapp

import (
	"fmt"
	"net/http"
	"sort"

	"restql/internal/addon"
	"restql/internal/auth"
	"restql/internal/client"
	"restql/internal/config"
	"restql/internal/cursor"
	"restql/internal/engine"
	"restql/internal/logging"
	"restql/internal/observability"
	"restql/internal/policy"
	"restql/internal/transport"
)

// BuildEngine translates cfg into an engine configuration. The returned
// configuration owns its pagination store; the caller closes it.
func BuildEngine(cfg *config.Config, logger *logging.Logger, metrics *observability.QueryMetrics) (engine.Config, error) {
	opts := client.Options{
		APIURL:    cfg.API.URL,
		Headers:   toHeader(cfg.API.Headers),
		CanCancel: cfg.API.CanCancel,
		Default:   transport.NewHTTPTransport(cfg.API.Timeout),
		Debug:     cfg.API.Debug,
		Metrics:   metrics,
	}
	if logger != nil {
		opts.Logger = logger.Logger
	}

	if len(cfg.API.Path) > 0 {
		opts.Paths = make(map[string]client.EntityOptions, len(cfg.API.Path))
		for entity, ec := range cfg.API.Path {
			opts.Paths[entity] = client.EntityOptions{URL: ec.URL, Headers: toHeader(ec.Headers)}
		}
	}

	if path := cfg.API.DataPath; path != "" {
		opts.DataExtractor = func(body any) any {
			if v := cursor.LookupPath(body, path); v != nil {
				return v
			}
			return body
		}
	}

	refresher, err := auth.New(cfg.Auth.Refresh)
	if err != nil {
		return engine.Config{}, fmt.Errorf("auth refresh: %w", err)
	}
	opts.Refresher = refresher

	if opts.Policy, opts.Policies, err = buildPolicies(cfg); err != nil {
		return engine.Config{}, err
	}

	addons, err := buildAddons(cfg.Addons)
	if err != nil {
		return engine.Config{}, err
	}

	if cfg.Pagination.Enabled() {
		opts.Pagination = &cursor.Spec{
			Param:          cfg.Pagination.Param,
			ResponsePath:   cfg.Pagination.ResponsePath,
			ResponseHeader: cfg.Pagination.ResponseHeader,
		}
	}
	if opts.Store, err = buildStore(cfg.Pagination); err != nil {
		return engine.Config{}, err
	}

	return engine.Config{
		Client:  opts,
		PathMap: cfg.API.PathMap,
		Addons:  addons,
	}, nil
}

func buildPolicies(cfg *config.Config) (policy.Policy, map[string]policy.Policy, error) {
	var global policy.Policy
	if cfg.Policy.Type != "" {
		p, err := policy.New("global", cfg.Policy)
		if err != nil {
			return nil, nil, fmt.Errorf("policy: %w", err)
		}
		global = p
	}
	if len(cfg.Policies) == 0 {
		return global, nil, nil
	}

	scoped := make(map[string]policy.Policy, len(cfg.Policies))
	for _, name := range sortedNames(cfg.Policies) {
		p, err := policy.New(name, cfg.Policies[name])
		if err != nil {
			return nil, nil, fmt.Errorf("policies.%s: %w", name, err)
		}
		scoped[name] = p
	}
	return global, scoped, nil
}

func buildAddons(cfgs []config.AddonConfig) ([]addon.Addon, error) {
	addons := make([]addon.Addon, 0, len(cfgs))
	for i, a := range cfgs {
		switch a.Type {
		case "tag":
			addons = append(addons, addon.NewTagger(a.Keyword, a.Property))
		default:
			return nil, fmt.Errorf("addons[%d]: unknown addon type %q", i, a.Type)
		}
	}
	return addons, nil
}

func buildStore(cfg config.PaginationConfig) (cursor.Store, error) {
	if cfg.Store != "redis" {
		return cursor.NewMemoryStore(), nil
	}
	store, err := cursor.NewRedisStore(cfg.RedisURL, cfg.RedisPrefix, cfg.RedisTTL)
	if err != nil {
		return nil, fmt.Errorf("pagination store: %w", err)
	}
	return store, nil
}

func toHeader(values map[string]string) http.Header {
	h := make(http.Header, len(values))
	for k, v := range values {
		h.Set(k, v)
	}
	return h
}

func sortedNames[V any](m map[string]V) []string {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
