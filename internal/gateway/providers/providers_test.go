package providers

import (
	"testing"

	"github.com/and161185/checkout/internal/config"
	"github.com/and161185/checkout/internal/model"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestBuild(t *testing.T) {
	platform := &config.Platform{Providers: map[string]config.ProviderSettings{
		"mercadopago": {Token: "t"},
		"asaas":       {Token: "t"},
		"pagarme":     {Token: "t", AllowedIPs: []string{"10.0.0.0/8"}},
		"efi":         {ClientID: "id", ClientSecret: "s"},
		"pagseguro":   {Token: "t"},
	}}

	got, err := Build(platform, zap.NewNop().Sugar())
	require.NoError(t, err)

	ids := make([]string, 0, len(got))
	for _, p := range got {
		ids = append(ids, p.ID())
	}
	require.Equal(t, []string{"asaas", "efi", "mercadopago", "pagarme", "pagseguro"}, ids)
	require.Equal(t, Known(), ids)
}

func TestBuildEfiIsPixOnly(t *testing.T) {
	got, err := Build(&config.Platform{Providers: map[string]config.ProviderSettings{"efi": {}}}, zap.NewNop().Sugar())
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.True(t, got[0].Supports(model.MethodPix))
	require.False(t, got[0].Supports(model.MethodBoleto))
}

func TestBuildUnknownProvider(t *testing.T) {
	_, err := Build(&config.Platform{Providers: map[string]config.ProviderSettings{"paypal": {}}}, zap.NewNop().Sugar())
	require.ErrorContains(t, err, "paypal")
}

func TestBuildPropagatesProviderErrors(t *testing.T) {
	_, err := Build(&config.Platform{Providers: map[string]config.ProviderSettings{
		"pagarme": {AllowedIPs: []string{"nope"}},
	}}, zap.NewNop().Sugar())
	require.ErrorContains(t, err, "providers.pagarme")
}

func TestNotificationURL(t *testing.T) {
	require.Equal(t, "https://pay.example.com/api/webhooks/efi", NotificationURL("https://pay.example.com/", "efi"))
}
