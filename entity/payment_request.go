package entity

// Field is a single named value of an outbound redirect form.
type Field struct {
	Name  string
	Value string
}

// PaymentRequest is the ordered field set posted to the gateway's hosted
// page. Insertion order is preserved for form rendering; the signature
// engine receives the fields as a plain map. The hash field is always
// inserted last and the request is not mutated after signing.
type PaymentRequest struct {
	ActionUrl string

	fields []Field
	index  map[string]int
}

func NewPaymentRequest(actionUrl string) *PaymentRequest {
	return &PaymentRequest{
		ActionUrl: actionUrl,
		index:     make(map[string]int),
	}
}

// Set adds a field or replaces the value of an existing one in place.
func (r *PaymentRequest) Set(name, value string) {
	if i, ok := r.index[name]; ok {
		r.fields[i].Value = value
		return
	}
	r.index[name] = len(r.fields)
	r.fields = append(r.fields, Field{Name: name, Value: value})
}

func (r *PaymentRequest) Get(name string) string {
	if i, ok := r.index[name]; ok {
		return r.fields[i].Value
	}
	return ""
}

// Fields returns the fields in insertion order.
func (r *PaymentRequest) Fields() []Field {
	return r.fields
}

// Values returns the field set as a map for signature computation.
func (r *PaymentRequest) Values() map[string]string {
	values := make(map[string]string, len(r.fields))
	for _, field := range r.fields {
		values[field.Name] = field.Value
	}
	return values
}
