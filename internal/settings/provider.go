package settings

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/fekuna/omnipos-fiscal-service/config"
	"github.com/fekuna/omnipos-fiscal-service/internal/fiscal"
	"github.com/fekuna/omnipos-fiscal-service/pkg/logger"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const activeEnvKey = "fiscal.active_environment"

var ErrUnknownEnvironment = errors.New("unknown fiscal environment")

// Provider resolves the active fiscal environment. The stored choice wins over
// the configured default so operators can switch without a restart.
type Provider struct {
	repo       Repository
	envs       map[string]fiscal.EnvironmentConfig
	defaultEnv string
	logger     logger.ZapLogger
}

func NewProvider(repo Repository, envs map[string]fiscal.EnvironmentConfig, defaultEnv string, log logger.ZapLogger) (*Provider, error) {
	if _, ok := envs[defaultEnv]; !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownEnvironment, defaultEnv)
	}
	return &Provider{
		repo:       repo,
		envs:       envs,
		defaultEnv: defaultEnv,
		logger:     log,
	}, nil
}

// Active loads the environment for one operation.
func (p *Provider) Active(ctx context.Context) (fiscal.EnvironmentConfig, error) {
	name := p.defaultEnv

	stored, ok, err := p.repo.Get(ctx, activeEnvKey)
	if err != nil {
		return fiscal.EnvironmentConfig{}, fmt.Errorf("failed to read active environment: %w", err)
	}
	if ok && stored != "" {
		name = stored
	}

	env, found := p.envs[name]
	if !found {
		p.logger.Warn("stored fiscal environment is not configured, using default",
			zap.String("stored", name),
			zap.String("default", p.defaultEnv),
		)
		return p.envs[p.defaultEnv], nil
	}
	return env, nil
}

func (p *Provider) SetActive(ctx context.Context, name, operator string) error {
	name = strings.ToLower(strings.TrimSpace(name))
	if _, ok := p.envs[name]; !ok {
		return fmt.Errorf("%w: %q", ErrUnknownEnvironment, name)
	}
	if err := p.repo.Set(ctx, activeEnvKey, name, time.Now()); err != nil {
		return fmt.Errorf("failed to store active environment: %w", err)
	}
	p.logger.Info("fiscal environment switched",
		zap.String("environment", name),
		zap.String("operator", operator),
	)
	return nil
}

func (p *Provider) Environments() []string {
	names := make([]string, 0, len(p.envs))
	for name := range p.envs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// EnvironmentsFromConfig builds the named environments from process configuration.
func EnvironmentsFromConfig(cfg config.FiscalConfig) (map[string]fiscal.EnvironmentConfig, error) {
	sandbox, err := environmentFromConfig(fiscal.EnvSandbox, cfg.Sandbox)
	if err != nil {
		return nil, err
	}
	production, err := environmentFromConfig(fiscal.EnvProduction, cfg.Production)
	if err != nil {
		return nil, err
	}
	return map[string]fiscal.EnvironmentConfig{
		fiscal.EnvSandbox:    sandbox,
		fiscal.EnvProduction: production,
	}, nil
}

// CheckLeaseTTL refuses a sync lease that could expire while a submission
// to any environment is still retrying, which would let a second worker
// claim the invoice and submit it again.
func CheckLeaseTTL(envs map[string]fiscal.EnvironmentConfig, lease time.Duration) error {
	for _, name := range sortedNames(envs) {
		if worst := envs[name].MaxSubmitDuration(); lease <= worst {
			return fmt.Errorf("sync lease %s must exceed the worst-case %s submission time of %s", lease, name, worst)
		}
	}
	return nil
}

func sortedNames(envs map[string]fiscal.EnvironmentConfig) []string {
	names := make([]string, 0, len(envs))
	for name := range envs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func environmentFromConfig(name string, c config.FiscalEnvironmentConfig) (fiscal.EnvironmentConfig, error) {
	env := fiscal.EnvironmentConfig{
		Name:            name,
		BaseURL:         c.BaseURL,
		USIN:            c.USIN,
		Token:           c.Token,
		InvoiceType:     c.InvoiceType,
		DefaultPCTCode:  c.PCTCode,
		DefaultItemCode: c.ItemCode,
		Timeout:         c.Timeout,
		MaxAttempts:     c.MaxAttempts,
		BackoffBase:     c.BackoffBase,
	}

	var err error
	if c.POSID != "" {
		if env.POSID, err = strconv.ParseInt(c.POSID, 10, 64); err != nil {
			return env, fmt.Errorf("%s: invalid POS id %q: %w", name, c.POSID, err)
		}
	}
	if env.TaxRate, err = parseDecimal(c.TaxRate); err != nil {
		return env, fmt.Errorf("%s: invalid tax rate: %w", name, err)
	}
	if env.Discount, err = parseDecimal(c.Discount); err != nil {
		return env, fmt.Errorf("%s: invalid discount: %w", name, err)
	}
	return env, nil
}

func parseDecimal(s string) (decimal.Decimal, error) {
	if strings.TrimSpace(s) == "" {
		return decimal.Zero, nil
	}
	return decimal.NewFromString(strings.TrimSpace(s))
}
