package efi

import (
	"context"
	"crypto/subtle"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/and161185/checkout/internal/errs"
	"github.com/and161185/checkout/internal/gateway"
	"github.com/and161185/checkout/internal/model"
	"github.com/and161185/checkout/internal/utils"
	"github.com/go-resty/resty/v2"
	"software.sslmate.com/src/go-pkcs12"
)

const ID = "efi"

const DefaultBaseURL = "https://pix.api.efipay.com.br"

type Config struct {
	BaseURL             string
	ClientID            string
	ClientSecret        string
	CertificatePath     string
	CertificatePassword string
	PixKey              string
	WebhookSecret       string
	Timeout             time.Duration
	Expiration          time.Duration
}

type Client struct {
	http       *resty.Client
	clientID   string
	secret     string
	pixKey     string
	hookSecret string
	expiration time.Duration

	mu      sync.Mutex
	token   string
	expires time.Time
	now     func() time.Time
}

func New(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Expiration <= 0 {
		cfg.Expiration = time.Hour
	}

	hc := gateway.NewHTTPClient(cfg.BaseURL, cfg.Timeout)
	if cfg.CertificatePath != "" {
		cert, err := LoadCertificate(cfg.CertificatePath, cfg.CertificatePassword)
		if err != nil {
			return nil, err
		}
		hc.SetCertificates(cert)
	}

	return &Client{
		http:       hc,
		clientID:   cfg.ClientID,
		secret:     cfg.ClientSecret,
		pixKey:     cfg.PixKey,
		hookSecret: cfg.WebhookSecret,
		expiration: cfg.Expiration,
		now:        time.Now,
	}, nil
}

func LoadCertificate(path, password string) (tls.Certificate, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("read efi certificate: %w", err)
	}

	key, leaf, chain, err := pkcs12.DecodeChain(data, password)
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("decode efi certificate: %w", err)
	}

	cert := tls.Certificate{
		Certificate: [][]byte{leaf.Raw},
		PrivateKey:  key,
		Leaf:        leaf,
	}
	for _, ca := range chain {
		cert.Certificate = append(cert.Certificate, ca.Raw)
	}
	return cert, nil
}

func (c *Client) ID() string { return ID }

func (c *Client) Supports(method model.Method) bool {
	return method == model.MethodPix
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
}

// accessToken returns the cached token, renewing it a minute before expiry.
func (c *Client) accessToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.token != "" && c.now().Before(c.expires) {
		return c.token, nil
	}

	resp, err := c.http.R().
		SetContext(ctx).
		SetBasicAuth(c.clientID, c.secret).
		SetBody(map[string]string{"grant_type": "client_credentials"}).
		Post("/oauth/token")
	if err := gateway.Check(ID, resp, err); err != nil {
		return "", err
	}

	var tr tokenResponse
	if err := json.Unmarshal(resp.Body(), &tr); err != nil || tr.AccessToken == "" {
		return "", &errs.GatewayError{Provider: ID, Retryable: true, Err: fmt.Errorf("token response: %v", err)}
	}

	c.token = tr.AccessToken
	c.expires = c.now().Add(time.Duration(tr.ExpiresIn)*time.Second - time.Minute)
	return c.token, nil
}

func (c *Client) dropToken() {
	c.mu.Lock()
	c.token = ""
	c.mu.Unlock()
}

type cobRequest struct {
	Calendario struct {
		Expiracao int `json:"expiracao"`
	} `json:"calendario"`
	Devedor            map[string]string `json:"devedor,omitempty"`
	Valor              map[string]string `json:"valor"`
	Chave              string            `json:"chave"`
	SolicitacaoPagador string            `json:"solicitacaoPagador,omitempty"`
}

type cob struct {
	TxID   string `json:"txid"`
	Status string `json:"status"`
	Loc    struct {
		ID int64 `json:"id"`
	} `json:"loc"`
	PixCopiaECola string `json:"pixCopiaECola"`
}

type qrCode struct {
	QRCode       string `json:"qrcode"`
	ImagemQRCode string `json:"imagemQrcode"`
}

// TxID derives the charge id from the order reference. Efí accepts 26 to 35
// alphanumerics, and the same order always maps to the same charge.
func TxID(reference string) string {
	var b strings.Builder
	for _, r := range reference {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	id := b.String()
	if len(id) > 35 {
		id = id[:35]
	}
	for len(id) < 26 {
		id += "0"
	}
	return id
}

func (c *Client) CreatePayment(ctx context.Context, req gateway.PaymentRequest) (gateway.IntentResult, error) {
	if req.Method != model.MethodPix {
		return gateway.IntentResult{}, errs.ErrInvalidMethod
	}

	token, err := c.accessToken(ctx)
	if err != nil {
		return gateway.IntentResult{}, err
	}

	body := cobRequest{
		Valor:              map[string]string{"original": req.Amount.StringFixed(2)},
		Chave:              c.pixKey,
		SolicitacaoPagador: truncate(req.Description, 140),
	}
	body.Calendario.Expiracao = int(c.expiration.Seconds())
	doc := utils.OnlyDigits(req.Buyer.Document)
	switch utils.DocumentType(doc) {
	case utils.DocumentCPF:
		body.Devedor = map[string]string{"cpf": doc, "nome": req.Buyer.Name}
	case utils.DocumentCNPJ:
		body.Devedor = map[string]string{"cnpj": doc, "nome": req.Buyer.Name}
	}

	txid := TxID(req.ExternalReference)
	resp, err := c.http.R().
		SetContext(ctx).
		SetAuthToken(token).
		SetBody(body).
		Put("/v2/cob/" + txid)
	if err := gateway.Check(ID, resp, err); err != nil {
		if resp != nil && resp.StatusCode() == http.StatusUnauthorized {
			c.dropToken()
		}
		return gateway.IntentResult{}, gateway.Refusal(err)
	}

	var charge cob
	if err := json.Unmarshal(resp.Body(), &charge); err != nil {
		return gateway.IntentResult{}, &errs.GatewayError{Provider: ID, Retryable: true, Err: err}
	}
	if charge.TxID == "" {
		charge.TxID = txid
	}

	payload := model.ProviderPayload{TransactionID: charge.TxID, CopyPasteCode: charge.PixCopiaECola}
	if charge.Loc.ID != 0 {
		c.fillQRCode(ctx, token, charge.Loc.ID, &payload)
	}

	if eventStatus(charge.Status) == gateway.EventPaid {
		approved := true
		payload.Approved = &approved
		return gateway.IntentResult{Outcome: gateway.Approved, ProviderRef: charge.TxID, Payload: payload}, nil
	}
	return gateway.IntentResult{Outcome: gateway.PendingCollection, ProviderRef: charge.TxID, Payload: payload}, nil
}

func (c *Client) fillQRCode(ctx context.Context, token string, locID int64, payload *model.ProviderPayload) {
	resp, err := c.http.R().
		SetContext(ctx).
		SetAuthToken(token).
		Get(fmt.Sprintf("/v2/loc/%d/qrcode", locID))
	if gateway.Check(ID, resp, err) != nil {
		return
	}

	var qr qrCode
	if json.Unmarshal(resp.Body(), &qr) != nil {
		return
	}
	if qr.QRCode != "" {
		payload.CopyPasteCode = qr.QRCode
	}
	payload.QRImage = qr.ImagemQRCode
}

func (c *Client) Authenticate(n gateway.Notification) error {
	got := n.Query.Get("hmac")
	if c.hookSecret == "" || subtle.ConstantTimeCompare([]byte(got), []byte(c.hookSecret)) != 1 {
		return errs.ErrUnauthenticEvent
	}
	return nil
}

type notification struct {
	Pix []struct {
		EndToEndID string `json:"endToEndId"`
		TxID       string `json:"txid"`
		Valor      string `json:"valor"`
		Horario    string `json:"horario"`
	} `json:"pix"`
}

func (c *Client) ParseEvent(_ context.Context, body []byte) ([]gateway.Event, error) {
	var n notification
	if err := json.Unmarshal(body, &n); err != nil {
		return nil, fmt.Errorf("%w: %v", errs.ErrMalformedEvent, err)
	}

	events := make([]gateway.Event, 0, len(n.Pix))
	for _, p := range n.Pix {
		if p.TxID == "" {
			continue
		}
		// txid это id заказа без дефисов, uuid.Parse его принимает
		events = append(events, gateway.Event{
			ProviderRef:       p.TxID,
			ExternalReference: p.TxID,
			Status:            gateway.EventPaid,
			RawStatus:         "pix_received",
		})
	}
	return events, nil
}

func eventStatus(s string) gateway.EventStatus {
	switch s {
	case "CONCLUIDA":
		return gateway.EventPaid
	case "REMOVIDA_PELO_USUARIO_RECEBEDOR", "REMOVIDA_PELO_PSP":
		return gateway.EventCancelled
	}
	return gateway.EventPending
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
