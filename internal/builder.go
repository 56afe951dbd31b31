package internal

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"cmipay/entity"
)

// Protocol constants of the CMI hosted-page flow.
const (
	// CMI settles in a single currency; 504 is the ISO 4217 numeric code for MAD.
	currencyCodeMAD = "504"
	tranTypePreAuth = "PreAuth"
	storeType3DPay  = "3D_PAY_HOSTING"
	hashAlgorithm   = "ver3"
	encodingUTF8    = "UTF-8"
	refreshTime     = "5"
)

// Relative callback paths joined with the configured base URL.
const (
	errorPath   = "/payment/cmi/error"
	returnPath  = "/payment/cmi/return"
	webhookPath = "/payment/cmi/webhook"
)

// Free-text fields are reduced to a gateway-safe allow-list before trimming.
// Name-like fields delete disallowed runs, address and phone collapse them
// to a single space.
var (
	notAlnumSpace = regexp.MustCompile(`[^a-zA-Z0-9 ]+`)
	notPhone      = regexp.MustCompile(`[^0-9 -]+`)
)

// Builder assembles the signed redirect payload for a transaction.
// It is a pure function of its inputs and never mutates the transaction.
type Builder struct {
	merchantId string
	gatewayUrl string
	baseUrl    string
	signer     *Signer
}

func NewBuilder(merchantId, gatewayUrl, baseUrl string, signer *Signer) *Builder {
	return &Builder{
		merchantId: merchantId,
		gatewayUrl: gatewayUrl,
		baseUrl:    baseUrl,
		signer:     signer,
	}
}

// BuildRedirectPayload assembles the gateway field set for the transaction,
// signs it outbound and inserts the hash field last so it is excluded from
// its own input.
func (b *Builder) BuildRedirectPayload(transaction *entity.Transaction) (*entity.PaymentRequest, error) {
	if b.merchantId == "" {
		return nil, fmt.Errorf("merchant id not configured")
	}
	billing := transaction.Billing

	request := entity.NewPaymentRequest(b.gatewayUrl)
	request.Set("clientid", b.merchantId)
	request.Set("oid", transaction.Reference)
	request.Set("amount", formatAmount(transaction.Amount, transaction.CurrencyDecimals))
	request.Set("currency", currencyCodeMAD)
	request.Set("TranType", tranTypePreAuth)
	request.Set("storetype", storeType3DPay)
	request.Set("hashAlgorithm", hashAlgorithm)
	request.Set("rnd", nonce())
	request.Set("llang", displayLanguage(billing.Lang))
	request.Set("refreshtime", refreshTime)
	request.Set("encoding", encodingUTF8)
	request.Set("BillToName", strings.TrimSpace(notAlnumSpace.ReplaceAllString(billing.Name, "")))
	request.Set("email", strings.TrimSpace(billing.Email))
	request.Set("tel", strings.TrimSpace(notPhone.ReplaceAllString(billing.Phone, " ")))
	request.Set("BillToStreet1", strings.TrimSpace(notAlnumSpace.ReplaceAllString(billing.Street, " ")))
	request.Set("BillToCity", strings.TrimSpace(notAlnumSpace.ReplaceAllString(billing.City, "")))
	request.Set("BillToPostalCode", strings.TrimSpace(notAlnumSpace.ReplaceAllString(billing.Zip, "")))
	request.Set("BillToCountry", strings.TrimSpace(notAlnumSpace.ReplaceAllString(billing.Country, "")))
	request.Set("BillToStateProv", billingState(billing))
	request.Set("shopurl", b.baseUrl)
	request.Set("failUrl", joinUrl(b.baseUrl, errorPath))
	request.Set("okUrl", joinUrl(b.baseUrl, returnPath))
	request.Set("callbackUrl", joinUrl(b.baseUrl, webhookPath))
	request.Set("api_url", b.gatewayUrl)

	hash, err := b.signer.Sign(Outbound, request.Values())
	if err != nil {
		return nil, fmt.Errorf("sign redirect payload: %w", err)
	}
	request.Set("hash", hash)

	return request, nil
}

// formatAmount renders the amount as a fixed-point decimal string with the
// currency's decimal places. The default of 2 applies only when the currency
// does not specify a count; an explicit zero is a zero-decimal currency.
func formatAmount(amount float64, decimals *int) string {
	places := 2
	if decimals != nil {
		places = *decimals
	}
	return decimal.NewFromFloat(amount).StringFixed(int32(places))
}

// displayLanguage maps the billing language tag to the gateway page locale.
// French and Arabic are matched by substring in that priority order,
// everything else falls back to English.
func displayLanguage(lang string) string {
	tag := strings.ToLower(strings.TrimSpace(lang))
	switch {
	case strings.Contains(tag, "fr"):
		return "fr"
	case strings.Contains(tag, "ar"):
		return "ar"
	default:
		return "en"
	}
}

// billingState uses the region code for US billing addresses and the full
// region name everywhere else.
func billingState(billing entity.Billing) string {
	if billing.CountryCode == "US" {
		return billing.StateCode
	}
	return billing.StateName
}

func nonce() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

func joinUrl(base, path string) string {
	joined, err := url.JoinPath(base, path)
	if err != nil {
		return base + path
	}
	return joined
}
