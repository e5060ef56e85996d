package config

import (
	"fmt"
	"sync"
	"time"

	"github.com/and161185/checkout/internal/errs"
	"github.com/and161185/checkout/internal/gateway"
	"github.com/and161185/checkout/internal/model"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

// Platform is the operator-owned settings file.
type Platform struct {
	Routing        map[string]string           `mapstructure:"routing"`
	Providers      map[string]ProviderSettings `mapstructure:"providers"`
	DefaultFeePlan FeePlanSettings             `mapstructure:"default_fee_plan"`
}

type ProviderSettings struct {
	BaseURL             string        `mapstructure:"base_url"`
	Token               string        `mapstructure:"token"`
	ClientID            string        `mapstructure:"client_id"`
	ClientSecret        string        `mapstructure:"client_secret"`
	CertificatePath     string        `mapstructure:"certificate_path"`
	CertificatePassword string        `mapstructure:"certificate_password"`
	PixKey              string        `mapstructure:"pix_key"`
	WebhookSecret       string        `mapstructure:"webhook_secret"`
	AllowedIPs          []string      `mapstructure:"allowed_ips"`
	Timeout             time.Duration `mapstructure:"timeout"`
}

type FeeRateSettings struct {
	Percentual       string `mapstructure:"percentual"`
	Fixed            string `mapstructure:"fixed"`
	ReleaseDelayDays int    `mapstructure:"release_delay_days"`
}

type FeePlanSettings struct {
	Name   string          `mapstructure:"name"`
	Pix    FeeRateSettings `mapstructure:"pix"`
	Card   FeeRateSettings `mapstructure:"card"`
	Boleto FeeRateSettings `mapstructure:"boleto"`
}

func LoadPlatform(path string) (*Platform, error) {
	p := &Platform{}
	if path == "" {
		return p, nil
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read platform config: %w", err)
	}
	if err := v.Unmarshal(p); err != nil {
		return nil, fmt.Errorf("decode platform config: %w", err)
	}
	return p, nil
}

func (p *Platform) RoutingTable() (gateway.Routing, error) {
	routing := make(gateway.Routing, len(p.Routing))
	for k, id := range p.Routing {
		method, ok := model.ParseMethod(k)
		if !ok {
			return nil, errs.NewConfigurationError("routing: unknown payment method %q", k)
		}
		routing[method] = id
	}
	return routing, nil
}

func (p *Platform) FeePlan() (model.FeePlan, error) {
	plan := model.FeePlan{Name: p.DefaultFeePlan.Name}
	if plan.Name == "" {
		plan.Name = "default"
	}

	var err error
	if plan.Pix, err = p.DefaultFeePlan.Pix.rate("pix"); err != nil {
		return model.FeePlan{}, err
	}
	if plan.Card, err = p.DefaultFeePlan.Card.rate("card"); err != nil {
		return model.FeePlan{}, err
	}
	if plan.Boleto, err = p.DefaultFeePlan.Boleto.rate("boleto"); err != nil {
		return model.FeePlan{}, err
	}
	return plan, nil
}

func (s FeeRateSettings) rate(name string) (model.MethodFee, error) {
	pct, err := parseAmount(s.Percentual)
	if err != nil {
		return model.MethodFee{}, errs.NewConfigurationError("default_fee_plan.%s.percentual: %v", name, err)
	}
	fixed, err := parseAmount(s.Fixed)
	if err != nil {
		return model.MethodFee{}, errs.NewConfigurationError("default_fee_plan.%s.fixed: %v", name, err)
	}
	if s.ReleaseDelayDays < 0 {
		return model.MethodFee{}, errs.NewConfigurationError("default_fee_plan.%s.release_delay_days is negative", name)
	}
	return model.MethodFee{Percentual: pct, Fixed: fixed, ReleaseDelayDays: s.ReleaseDelayDays}, nil
}

func parseAmount(s string) (decimal.Decimal, error) {
	if s == "" {
		return decimal.Zero, nil
	}
	return decimal.NewFromString(s)
}

type PlatformStore struct {
	path string

	mu       sync.RWMutex
	platform *Platform
	routing  gateway.Routing
	feePlan  model.FeePlan
}

func NewPlatformStore(path string) (*PlatformStore, error) {
	s := &PlatformStore{path: path}
	if err := s.Reload(); err != nil {
		return nil, err
	}
	return s, nil
}

// On error the previous settings stay in effect.
func (s *PlatformStore) Reload() error {
	p, err := LoadPlatform(s.path)
	if err != nil {
		return err
	}
	routing, err := p.RoutingTable()
	if err != nil {
		return err
	}
	plan, err := p.FeePlan()
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.platform = p
	s.routing = routing
	s.feePlan = plan
	return nil
}

func (s *PlatformStore) Routing() gateway.Routing {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(gateway.Routing, len(s.routing))
	for k, v := range s.routing {
		out[k] = v
	}
	return out
}

func (s *PlatformStore) DefaultFeePlan() model.FeePlan {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.feePlan
}

func (s *PlatformStore) Platform() *Platform {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.platform
}
