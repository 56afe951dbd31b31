package services

import (
	"cmipay/entity"
	"context"
	"errors"
)

// ErrTransactionNotFound is returned when no transaction matches a reference.
var ErrTransactionNotFound = errors.New("transaction not found")

// ErrDuplicateReference is returned when more than one transaction matches a
// reference. References are unique per provider, so duplicates indicate
// corrupted stored data and must never be resolved by picking one match.
var ErrDuplicateReference = errors.New("duplicate transaction reference")

type Database interface {
	WriteLogMessage(data Data) error

	SaveTransaction(ctx context.Context, transaction *entity.Transaction) error
	UpdateTransaction(ctx context.Context, transaction *entity.Transaction) error
	GetTransactionByReference(ctx context.Context, provider, reference string) (*entity.Transaction, error)
	ReferenceExists(ctx context.Context, provider, reference string) (bool, error)

	SaveCallback(ctx context.Context, record *entity.CallbackRecord) error
}

type Data interface {
	DataType() string
}
