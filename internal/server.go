package internal

import (
	"cmipay/config"
	"cmipay/entity"
	"cmipay/services"
	"encoding/json"
	"fmt"
	"html/template"
	"net"
	"net/http"
	"net/url"

	"github.com/julienschmidt/httprouter"
)

const (
	createTransaction = "/transaction"
	payTransaction    = "/pay/:provider/:reference"
	paymentError      = "/payment/:provider/error"
	paymentReturn     = "/payment/:provider/return"
	paymentWebhook    = "/payment/:provider/webhook"
	paymentStatus     = "/payment/status"
)

// redirectPage auto-submits the signed field set to the gateway's hosted page.
var redirectPage = template.Must(template.New("redirect").Parse(`<!DOCTYPE html>
<html>
<body onload="document.forms[0].submit()">
<form action="{{.ActionUrl}}" method="post">
{{range .Fields}}<input type="hidden" name="{{.Name}}" value="{{.Value}}"/>
{{end}}<noscript><input type="submit" value="Pay"/></noscript>
</form>
</body>
</html>`))

type Server struct {
	conf       *config.Config
	httpServer *http.Server
	providers  map[string]services.Payments
	logger     services.LogHandler
}

func NewServer(conf *config.Config) *Server {

	server := Server{
		conf:      conf,
		providers: make(map[string]services.Payments),
	}

	// register itself as a router for httpServer handler
	router := httprouter.New()
	server.Register(router)
	server.httpServer = &http.Server{
		Handler: router,
	}

	return &server
}

func (s *Server) Register(router *httprouter.Router) {
	router.POST(createTransaction, s.createTransaction)
	router.GET(payTransaction, s.payTransaction)
	router.POST(paymentError, s.handleReturn)
	router.POST(paymentReturn, s.handleReturn)
	router.POST(paymentWebhook, s.handleWebhook)
	router.GET(paymentStatus, s.statusPage)
}

// AddProvider registers a payment integration under its provider code.
func (s *Server) AddProvider(payments services.Payments) {
	s.providers[payments.Code()] = payments
}

func (s *Server) SetLogger(logger services.LogHandler) {
	s.logger = logger
}

func (s *Server) Start() error {
	if s.conf == nil {
		return fmt.Errorf("configuration not loaded")
	}

	serverAddress := fmt.Sprintf("%s:%s", s.conf.Listen.BindIP, s.conf.Listen.Port)
	listener, err := net.Listen("tcp", serverAddress)
	if err != nil {
		return err
	}

	if s.conf.Listen.TLS {
		s.logger.Info(fmt.Sprintf("starting https TLS on %s", serverAddress))
		err = s.httpServer.ServeTLS(listener, s.conf.Listen.CertFile, s.conf.Listen.KeyFile)
	} else {
		s.logger.Info(fmt.Sprintf("starting http on %s", serverAddress))
		err = s.httpServer.Serve(listener)
	}

	return err
}

func (s *Server) provider(name string) (services.Payments, bool) {
	payments, ok := s.providers[name]
	return payments, ok
}

// createTransactionRequest is the checkout entry: a draft transaction for a
// given provider, amount and billing contact.
type createTransactionRequest struct {
	Provider string         `json:"provider"`
	Amount   float64        `json:"amount"`
	Currency string         `json:"currency"`
	Billing  entity.Billing `json:"billing"`
}

func (s *Server) createTransaction(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	ctx := WithRequestID(r.Context())
	reqID := GetRequestID(ctx)

	var request createTransactionRequest
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		s.logger.Warn(fmt.Sprintf("[%s] create transaction: decode request body; %v", reqID, err))
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	if request.Provider == "" {
		request.Provider = ProviderCmi
	}
	payments, ok := s.provider(request.Provider)
	if !ok {
		s.logger.Warn(fmt.Sprintf("[%s] create transaction: unknown provider %s", reqID, request.Provider))
		w.WriteHeader(http.StatusNotFound)
		return
	}
	// the compatibility filter: this provider is not offered for
	// currencies it cannot settle
	if !payments.SupportsCurrency(request.Currency) {
		s.logger.Warn(fmt.Sprintf("[%s] create transaction: currency %s not supported by %s", reqID, request.Currency, request.Provider))
		w.WriteHeader(http.StatusUnprocessableEntity)
		return
	}

	draft := &entity.Transaction{
		Amount:   request.Amount,
		Currency: request.Currency,
		Billing:  request.Billing,
	}
	transaction, err := payments.CreateTransaction(ctx, draft)
	if err != nil {
		s.logger.Error(fmt.Sprintf("[%s] create transaction", reqID), err)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"reference": transaction.Reference,
		"pay_url":   fmt.Sprintf("/pay/%s/%s", transaction.Provider, transaction.Reference),
	})
}

func (s *Server) payTransaction(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	ctx := WithRequestID(r.Context())
	reqID := GetRequestID(ctx)

	payments, ok := s.provider(ps.ByName("provider"))
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	reference := ps.ByName("reference")
	if reference == "" {
		s.logger.Warn(fmt.Sprintf("[%s] empty transaction reference", reqID))
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	request, err := payments.BuildRedirect(ctx, reference)
	if err != nil {
		s.logger.Error(fmt.Sprintf("[%s] build redirect for %s", reqID, reference), err)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := redirectPage.Execute(w, request); err != nil {
		s.logger.Error(fmt.Sprintf("[%s] render redirect page for %s", reqID, reference), err)
	}
}

// handleReturn serves both the success and the error browser-return paths.
// The gateway picks the URL based on its own outcome, but either outcome may
// appear on either path, so both run the same reconciliation and always
// redirect the browser to the generic status page.
func (s *Server) handleReturn(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	ctx := WithRequestID(r.Context())
	reqID := GetRequestID(ctx)

	payments, ok := s.provider(ps.ByName("provider"))
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	if err := r.ParseForm(); err != nil {
		s.logger.Warn(fmt.Sprintf("[%s] return: parse form; %v", reqID, err))
		http.Redirect(w, r, paymentStatus, http.StatusFound)
		return
	}

	if err := payments.HandleReturn(ctx, formPayload(r.PostForm)); err != nil {
		s.logger.Error(fmt.Sprintf("[%s] return for %s", reqID, r.PostForm.Get("oid")), err)
	}
	http.Redirect(w, r, paymentStatus, http.StatusFound)
}

func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	ctx := WithRequestID(r.Context())
	reqID := GetRequestID(ctx)

	payments, ok := s.provider(ps.ByName("provider"))
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	if err := r.ParseForm(); err != nil {
		s.logger.Warn(fmt.Sprintf("[%s] webhook: parse form; %v", reqID, err))
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte(AckFailure))
		return
	}

	ack := payments.HandleWebhook(ctx, formPayload(r.PostForm))
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte(ack))
}

func (s *Server) statusPage(w http.ResponseWriter, _ *http.Request, _ httprouter.Params) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write([]byte("<html><body><p>Your payment has been processed. You may close this page.</p></body></html>"))
}

func formPayload(values url.Values) entity.CallbackPayload {
	payload := make(entity.CallbackPayload, len(values))
	for key, list := range values {
		if len(list) > 0 {
			payload[key] = list[0]
		}
	}
	return payload
}
