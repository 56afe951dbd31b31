package internal

import (
	"testing"

	"cmipay/entity"
)

func intPtr(value int) *int {
	return &value
}

func testTransaction() *entity.Transaction {
	return &entity.Transaction{
		Reference:        "tx-20240101120000",
		Provider:         ProviderCmi,
		Amount:           10,
		Currency:         "MAD",
		CurrencyDecimals: intPtr(2),
		State:            entity.StateDraft,
		Billing: entity.Billing{
			Name:        "O'Brien-Smith #2",
			Email:       " obrien@example.com ",
			Phone:       "+212 (522) 123-456",
			Street:      "123 Main St. #4, Apt B",
			City:        "Casablanca!",
			Zip:         "20 000\n",
			Country:     "Morocco",
			CountryCode: "MA",
			StateName:   "Casablanca-Settat",
			StateCode:   "CS",
			Lang:        "fr_MA",
		},
	}
}

func testBuilder() *Builder {
	return NewBuilder("M123", "https://gw.example/fim/est3Dgate", "https://shop.example", NewSigner("secret"))
}

func TestBuildRedirectPayload(t *testing.T) {
	request, err := testBuilder().BuildRedirectPayload(testTransaction())
	if err != nil {
		t.Fatalf("build: %v", err)
	}

	want := map[string]string{
		"clientid":         "M123",
		"oid":              "tx-20240101120000",
		"amount":           "10.00",
		"currency":         "504",
		"TranType":         "PreAuth",
		"storetype":        "3D_PAY_HOSTING",
		"hashAlgorithm":    "ver3",
		"refreshtime":      "5",
		"encoding":         "UTF-8",
		"llang":            "fr",
		"BillToName":       "OBrienSmith 2",
		"email":            "obrien@example.com",
		"tel":              "212  522  123-456",
		"BillToStreet1":    "123 Main St   4  Apt B",
		"BillToCity":       "Casablanca",
		"BillToPostalCode": "20 000",
		"BillToCountry":    "Morocco",
		"BillToStateProv":  "Casablanca-Settat",
		"shopurl":          "https://shop.example",
		"failUrl":          "https://shop.example/payment/cmi/error",
		"okUrl":            "https://shop.example/payment/cmi/return",
		"callbackUrl":      "https://shop.example/payment/cmi/webhook",
		"api_url":          "https://gw.example/fim/est3Dgate",
	}
	for name, value := range want {
		if got := request.Get(name); got != value {
			t.Errorf("field %s: got %q, want %q", name, got, value)
		}
	}
	if request.ActionUrl != "https://gw.example/fim/est3Dgate" {
		t.Errorf("action url: %s", request.ActionUrl)
	}
	if request.Get("rnd") == "" {
		t.Error("rnd nonce is empty")
	}
}

func TestBuildRedirectPayload_HashLastAndVerifiable(t *testing.T) {
	request, err := testBuilder().BuildRedirectPayload(testTransaction())
	if err != nil {
		t.Fatalf("build: %v", err)
	}

	fields := request.Fields()
	if fields[len(fields)-1].Name != "hash" {
		t.Fatalf("last field is %s, want hash", fields[len(fields)-1].Name)
	}

	// The hash must equal the outbound signature over all fields before the
	// hash itself was added.
	values := request.Values()
	delete(values, "hash")
	check, err := NewSigner("secret").Sign(Outbound, values)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if request.Get("hash") != check {
		t.Errorf("hash mismatch:\n got %s\nwant %s", request.Get("hash"), check)
	}
}

func TestBuildRedirectPayload_MissingMerchantId(t *testing.T) {
	builder := NewBuilder("", "https://gw.example", "https://shop.example", NewSigner("secret"))
	if _, err := builder.BuildRedirectPayload(testTransaction()); err == nil {
		t.Error("expected error for missing merchant id")
	}
}

func TestBuildRedirectPayload_MissingStoreKey(t *testing.T) {
	builder := NewBuilder("M123", "https://gw.example", "https://shop.example", NewSigner(""))
	if _, err := builder.BuildRedirectPayload(testTransaction()); err == nil {
		t.Error("expected error for missing store key")
	}
}

func TestFormatAmount(t *testing.T) {
	tests := []struct {
		amount   float64
		decimals *int
		want     string
	}{
		{10, intPtr(2), "10.00"},
		{10.5, intPtr(2), "10.50"},
		{10.555, intPtr(2), "10.56"},
		{10, intPtr(3), "10.000"},
		{10, intPtr(0), "10"}, // zero-decimal currency
		{10, nil, "10.00"},    // unspecified decimals default to 2
	}
	for _, tc := range tests {
		if got := formatAmount(tc.amount, tc.decimals); got != tc.want {
			t.Errorf("formatAmount(%v, %v) = %s, want %s", tc.amount, tc.decimals, got, tc.want)
		}
	}
}

func TestDisplayLanguage(t *testing.T) {
	tests := []struct {
		lang string
		want string
	}{
		{"fr_MA", "fr"},
		{"ar_MA", "ar"},
		{"en_US", "en"},
		{"de_DE", "en"},
		{"", "en"},
		{"FR_FR", "fr"},
	}
	for _, tc := range tests {
		if got := displayLanguage(tc.lang); got != tc.want {
			t.Errorf("displayLanguage(%q) = %s, want %s", tc.lang, got, tc.want)
		}
	}
}

func TestBillingState(t *testing.T) {
	us := entity.Billing{CountryCode: "US", StateName: "California", StateCode: "CA"}
	if got := billingState(us); got != "CA" {
		t.Errorf("US billing state: got %s, want CA", got)
	}
	other := entity.Billing{CountryCode: "MA", StateName: "Casablanca-Settat", StateCode: "CS"}
	if got := billingState(other); got != "Casablanca-Settat" {
		t.Errorf("non-US billing state: got %s", got)
	}
	none := entity.Billing{CountryCode: "MA"}
	if got := billingState(none); got != "" {
		t.Errorf("missing region: got %q, want empty", got)
	}
}
