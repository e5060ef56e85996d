package providers

import (
	"fmt"
	"sort"
	"strings"

	"github.com/and161185/checkout/internal/config"
	"github.com/and161185/checkout/internal/gateway"
	"github.com/and161185/checkout/internal/gateway/asaas"
	"github.com/and161185/checkout/internal/gateway/efi"
	"github.com/and161185/checkout/internal/gateway/mercadopago"
	"github.com/and161185/checkout/internal/gateway/pagarme"
	"github.com/and161185/checkout/internal/gateway/pagseguro"
	"go.uber.org/zap"
)

type factory func(s config.ProviderSettings, logger *zap.SugaredLogger) (gateway.Provider, error)

var factories = map[string]factory{
	mercadopago.ID: func(s config.ProviderSettings, _ *zap.SugaredLogger) (gateway.Provider, error) {
		return mercadopago.New(mercadopago.Config{
			BaseURL:       s.BaseURL,
			AccessToken:   s.Token,
			WebhookSecret: s.WebhookSecret,
			Timeout:       s.Timeout,
		}), nil
	},
	asaas.ID: func(s config.ProviderSettings, logger *zap.SugaredLogger) (gateway.Provider, error) {
		return asaas.New(asaas.Config{
			BaseURL:      s.BaseURL,
			APIKey:       s.Token,
			WebhookToken: s.WebhookSecret,
			Timeout:      s.Timeout,
		}, logger), nil
	},
	pagarme.ID: func(s config.ProviderSettings, _ *zap.SugaredLogger) (gateway.Provider, error) {
		return pagarme.New(pagarme.Config{
			BaseURL:    s.BaseURL,
			SecretKey:  s.Token,
			AllowedIPs: s.AllowedIPs,
			Timeout:    s.Timeout,
		})
	},
	efi.ID: func(s config.ProviderSettings, _ *zap.SugaredLogger) (gateway.Provider, error) {
		return efi.New(efi.Config{
			BaseURL:             s.BaseURL,
			ClientID:            s.ClientID,
			ClientSecret:        s.ClientSecret,
			CertificatePath:     s.CertificatePath,
			CertificatePassword: s.CertificatePassword,
			PixKey:              s.PixKey,
			WebhookSecret:       s.WebhookSecret,
			Timeout:             s.Timeout,
		})
	},
	pagseguro.ID: func(s config.ProviderSettings, _ *zap.SugaredLogger) (gateway.Provider, error) {
		return pagseguro.New(pagseguro.Config{
			BaseURL: s.BaseURL,
			Token:   s.Token,
			Timeout: s.Timeout,
		}), nil
	},
}

func Known() []string {
	ids := make([]string, 0, len(factories))
	for id := range factories {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Build instantiates every provider that has a settings section. An unknown
// section is a configuration error.
func Build(platform *config.Platform, logger *zap.SugaredLogger) ([]gateway.Provider, error) {
	ids := make([]string, 0, len(platform.Providers))
	for id := range platform.Providers {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	out := make([]gateway.Provider, 0, len(ids))
	for _, id := range ids {
		build, ok := factories[strings.ToLower(id)]
		if !ok {
			return nil, fmt.Errorf("providers.%s: unknown provider, known: %s", id, strings.Join(Known(), ", "))
		}
		p, err := build(platform.Providers[id], logger)
		if err != nil {
			return nil, fmt.Errorf("providers.%s: %w", id, err)
		}
		out = append(out, p)
	}
	return out, nil
}

func NotificationURL(publicURL, id string) string {
	return strings.TrimRight(publicURL, "/") + "/api/webhooks/" + id
}
