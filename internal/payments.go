package internal

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"cmipay/config"
	"cmipay/entity"
	"cmipay/services"
)

// ProviderCmi is the provider code this integration registers under.
const ProviderCmi = "cmi"

// Acknowledgment strings the gateway expects on the webhook transport.
// AckPostAuth tells the gateway to proceed to post-authorization capture;
// AckApproved acknowledges a declined notification; AckFailure reports that
// the notification could not be validated.
const (
	AckPostAuth = "ACTION=POSTAUTH"
	AckApproved = "APPROVED"
	AckFailure  = "FAILURE"
)

// Validation failures reject a callback without touching any transaction.
var (
	ErrMissingReference  = errors.New("callback data missing oid")
	ErrMissingSignature  = errors.New("callback data missing HASH")
	ErrSignatureMismatch = errors.New("callback signature mismatch")
)

// Payments integrates the CMI hosted-payment-page gateway. It builds signed
// redirect payloads and reconciles return/webhook callbacks against stored
// transactions. Callback processing is serialized per reference so racing
// deliveries (browser return vs webhook, gateway retries) cannot interleave.
type Payments struct {
	conf     *config.Config
	database services.Database
	logger   services.LogHandler
	locks    sync.Map // map[string]*sync.Mutex for per-reference locking
	signer   *Signer
	builder  *Builder
}

func NewPayments(conf *config.Config) *Payments {
	signer := NewSigner(conf.Merchant.StoreKey)
	return &Payments{
		conf:    conf,
		signer:  signer,
		builder: NewBuilder(conf.Merchant.MerchantId, conf.Merchant.GatewayUrl, conf.BaseUrl, signer),
	}
}

func (p *Payments) SetDatabase(database services.Database) {
	p.database = database
}

func (p *Payments) SetLogger(logger services.LogHandler) {
	p.logger = logger
	if p.conf.Merchant.AutoConfirm {
		p.logger.Info("automatic confirmation mode enabled")
	}
}

func (p *Payments) Code() string {
	return ProviderCmi
}

// SupportsCurrency reports whether this provider can settle the currency.
// CMI settles in a single configured currency; transactions in any other
// currency must be rejected before creation.
func (p *Payments) SupportsCurrency(currency string) bool {
	return strings.EqualFold(currency, p.conf.Merchant.Currency)
}

// lockReference acquires the per-reference lock so the lookup-and-transition
// sequence runs as a critical section for that reference.
func (p *Payments) lockReference(reference string) *sync.Mutex {
	value, _ := p.locks.LoadOrStore(reference, &sync.Mutex{})
	mutex := value.(*sync.Mutex)
	mutex.Lock()
	return mutex
}

// unlockReference releases the lock. The mutex stays in the map: removing it
// would hand a fresh mutex to the next caller while a waiter is still blocked
// on this one. Growth is bounded by the number of distinct references.
func (p *Payments) unlockReference(_ string, mutex *sync.Mutex) {
	mutex.Unlock()
}

// CreateTransaction validates the draft, assigns a unique reference and
// stores it in the draft state.
func (p *Payments) CreateTransaction(ctx context.Context, draft *entity.Transaction) (*entity.Transaction, error) {
	if p.database == nil {
		return nil, fmt.Errorf("database not set")
	}
	if draft.Amount <= 0 {
		return nil, fmt.Errorf("invalid amount %v", draft.Amount)
	}
	if !p.SupportsCurrency(draft.Currency) {
		return nil, fmt.Errorf("currency %s is not supported", draft.Currency)
	}

	reference, err := p.newReference(ctx)
	if err != nil {
		return nil, err
	}

	draft.Reference = reference
	draft.Provider = ProviderCmi
	draft.Currency = strings.ToUpper(draft.Currency)
	draft.State = entity.StateDraft
	draft.TimeCreated = time.Now()
	draft.TimeUpdated = draft.TimeCreated

	if err := p.database.SaveTransaction(ctx, draft); err != nil {
		return nil, fmt.Errorf("save transaction %s: %w", reference, err)
	}
	p.logger.Info(fmt.Sprintf("transaction %s created, amount %v %s", reference, draft.Amount, draft.Currency))
	return draft, nil
}

// newReference generates a reference unique per provider account: a
// timestamp-derived prefix plus a numeric suffix to disambiguate collisions.
func (p *Payments) newReference(ctx context.Context) (string, error) {
	prefix := fmt.Sprintf("tx-%s", time.Now().Format("20060102150405"))
	reference := prefix
	for suffix := 1; ; suffix++ {
		exists, err := p.database.ReferenceExists(ctx, ProviderCmi, reference)
		if err != nil {
			return "", fmt.Errorf("check reference %s: %w", reference, err)
		}
		if !exists {
			return reference, nil
		}
		reference = fmt.Sprintf("%s-%d", prefix, suffix)
	}
}

// BuildRedirect loads the transaction and assembles its signed redirect
// payload. The transaction record itself is read-only here.
func (p *Payments) BuildRedirect(ctx context.Context, reference string) (*entity.PaymentRequest, error) {
	if p.database == nil {
		return nil, fmt.Errorf("database not set")
	}
	transaction, err := p.database.GetTransactionByReference(ctx, ProviderCmi, reference)
	if err != nil {
		return nil, fmt.Errorf("lookup transaction %s: %w", reference, err)
	}
	request, err := p.builder.BuildRedirectPayload(transaction)
	if err != nil {
		return nil, fmt.Errorf("build redirect for %s: %w", reference, err)
	}
	return request, nil
}

// HandleReturn processes a browser return, on either the success or the
// error path. Both paths carry the same payload shape and either outcome may
// appear on either path, so they funnel into the same reconciliation. The
// caller redirects to the status page regardless of the result.
func (p *Payments) HandleReturn(ctx context.Context, payload entity.CallbackPayload) error {
	_, err := p.reconcile(ctx, payload)
	return err
}

// HandleWebhook processes a server-to-server notification. The gateway
// result code "00" denotes approval; anything else is a decline. The
// returned acknowledgment tells the gateway whether to finalize capture.
func (p *Payments) HandleWebhook(ctx context.Context, payload entity.CallbackPayload) string {
	status := "DECLINED"
	if payload["ProcReturnCode"] == "00" {
		status = "APPROVED"
	}
	// The derived status drives the state machine but is excluded from the
	// inbound signature input.
	payload["lapTransactionState"] = status

	transaction, err := p.reconcile(ctx, payload)
	if err != nil {
		p.logger.Error(fmt.Sprintf("webhook for %s rejected", payload["oid"]), err)
		return AckFailure
	}
	// Capture is requested only when the store actually recorded the
	// approval; a replayed approval onto a canceled or errored transaction
	// must not finalize the charge.
	if status == "APPROVED" && transaction.State == entity.StateDone {
		return AckPostAuth
	}
	return AckApproved
}

// reconcile is the single callback entry point: it validates the payload,
// verifies its signature against the stored merchant key and drives the
// transaction state machine. Replays for terminal transactions are logged
// and ignored so gateway retries stay idempotent.
func (p *Payments) reconcile(ctx context.Context, payload entity.CallbackPayload) (*entity.Transaction, error) {
	if p.database == nil {
		return nil, fmt.Errorf("database not set")
	}
	reference := payload["oid"]
	sign := payload["HASH"]
	if reference == "" {
		return nil, ErrMissingReference
	}
	if sign == "" {
		return nil, fmt.Errorf("%w: reference %s", ErrMissingSignature, reference)
	}

	mutex := p.lockReference(reference)
	defer p.unlockReference(reference, mutex)

	transaction, err := p.database.GetTransactionByReference(ctx, ProviderCmi, reference)
	if err != nil {
		return nil, fmt.Errorf("lookup transaction %s: %w", reference, err)
	}

	check, err := p.signer.Sign(Inbound, payload)
	if err != nil {
		return nil, fmt.Errorf("verify signature for %s: %w", reference, err)
	}
	if check != sign {
		p.logger.Warn(fmt.Sprintf("invalid sign for %s: received %s, computed %s", reference, sign, check))
		p.archive(ctx, reference, payload, "signature mismatch")
		return nil, fmt.Errorf("%w: reference %s", ErrSignatureMismatch, reference)
	}

	if transaction.IsTerminal() {
		p.logger.Info(fmt.Sprintf("transaction %s already %s, ignoring replayed callback", reference, transaction.State))
		p.archive(ctx, reference, payload, "replay ignored")
		return transaction, nil
	}

	// Browser returns carry no status label: the gateway signs the outcome
	// only into webhook notifications. Verification alone is the outcome
	// here; the state machine waits for a labeled callback.
	status := payload["lapTransactionState"]
	if status == "" {
		p.logger.Info(fmt.Sprintf("transaction %s verified, no status label", reference))
		p.archive(ctx, reference, payload, "verified")
		return transaction, nil
	}

	transaction.ProviderReference = payload["TransId"]
	previous := transaction.State
	transaction.ApplyStatus(status)
	if transaction.State == entity.StateError {
		p.logger.Warn(fmt.Sprintf("unrecognized payment state %q for transaction %s", status, reference))
	}
	transaction.TimeUpdated = time.Now()

	if err := p.database.UpdateTransaction(ctx, transaction); err != nil {
		return nil, fmt.Errorf("update transaction %s: %w", reference, err)
	}
	p.archive(ctx, reference, payload, string(transaction.State))
	p.logger.Info(fmt.Sprintf("transaction %s: %s -> %s; provider reference %s", reference, previous, transaction.State, secret(transaction.ProviderReference)))

	return transaction, nil
}

// archive stores the raw callback for operator troubleshooting. Failures
// here are logged but never fail the reconciliation itself.
func (p *Payments) archive(ctx context.Context, reference string, payload entity.CallbackPayload, outcome string) {
	record := &entity.CallbackRecord{
		Provider:  ProviderCmi,
		Reference: reference,
		Fields:    payload,
		Outcome:   outcome,
		Received:  time.Now(),
	}
	if err := p.database.SaveCallback(ctx, record); err != nil {
		p.logger.Error(fmt.Sprintf("archive callback for %s", reference), err)
	}
}

func secret(some string) string {
	if len(some) > 5 {
		return fmt.Sprintf("%s***", some[0:5])
	}
	if some == "" {
		return "?"
	}
	return "***"
}
