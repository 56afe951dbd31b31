package internal

import (
	"cmipay/config"
	"cmipay/entity"
	"cmipay/services"
	"context"
	"fmt"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"log"
)

const (
	collectionLog          = "payment_log"
	collectionTransactions = "transactions"
	collectionCallbacks    = "callbacks"
)

type MongoDB struct {
	ctx              context.Context
	clientOptions    *options.ClientOptions
	database         string
	logRecordsNumber int64
}

func NewMongoClient(conf *config.Config) (*MongoDB, error) {
	if !conf.Mongo.Enabled {
		return nil, nil
	}
	connectionUri := fmt.Sprintf("mongodb://%s:%s", conf.Mongo.Host, conf.Mongo.Port)
	clientOptions := options.Client().ApplyURI(connectionUri)
	if conf.Mongo.User != "" {
		clientOptions.SetAuth(options.Credential{
			Username:   conf.Mongo.User,
			Password:   conf.Mongo.Password,
			AuthSource: conf.Mongo.Database,
		})
	}
	client := &MongoDB{
		ctx:              context.Background(),
		clientOptions:    clientOptions,
		database:         conf.Mongo.Database,
		logRecordsNumber: conf.LogRecords,
	}
	return client, nil
}

func (m *MongoDB) connect() (*mongo.Client, error) {
	connection, err := mongo.Connect(m.ctx, m.clientOptions)
	if err != nil {
		return nil, err
	}
	return connection, nil
}

func (m *MongoDB) disconnect(connection *mongo.Client) {
	err := connection.Disconnect(m.ctx)
	if err != nil {
		log.Println("mongodb disconnect error", err)
	}
}

func (m *MongoDB) SaveTransaction(ctx context.Context, transaction *entity.Transaction) error {
	connection, err := m.connect()
	if err != nil {
		return err
	}
	defer m.disconnect(connection)

	collection := connection.Database(m.database).Collection(collectionTransactions)
	_, err = collection.InsertOne(ctx, transaction)
	return err
}

// UpdateTransaction persists the state transition of a reconciled transaction.
func (m *MongoDB) UpdateTransaction(ctx context.Context, transaction *entity.Transaction) error {
	connection, err := m.connect()
	if err != nil {
		return err
	}
	defer m.disconnect(connection)

	collection := connection.Database(m.database).Collection(collectionTransactions)
	filter := bson.D{{Key: "reference", Value: transaction.Reference}, {Key: "provider", Value: transaction.Provider}}
	update := bson.D{
		{Key: "$set", Value: bson.D{
			{Key: "state", Value: transaction.State},
			{Key: "state_message", Value: transaction.StateMessage},
			{Key: "provider_reference", Value: transaction.ProviderReference},
			{Key: "time_updated", Value: transaction.TimeUpdated},
		}},
	}
	if _, err = collection.UpdateOne(ctx, filter, update); err != nil {
		return err
	}
	return nil
}

// GetTransactionByReference returns the single transaction matching the
// reference for the given provider. Zero matches map to
// services.ErrTransactionNotFound; more than one match means the stored-data
// uniqueness invariant is broken and is reported as
// services.ErrDuplicateReference instead of silently picking one.
func (m *MongoDB) GetTransactionByReference(ctx context.Context, provider, reference string) (*entity.Transaction, error) {
	connection, err := m.connect()
	if err != nil {
		return nil, err
	}
	defer m.disconnect(connection)

	collection := connection.Database(m.database).Collection(collectionTransactions)
	filter := bson.D{{Key: "reference", Value: reference}, {Key: "provider", Value: provider}}
	cursor, err := collection.Find(ctx, filter, options.Find().SetLimit(2))
	if err != nil {
		return nil, err
	}
	var transactions []entity.Transaction
	if err = cursor.All(ctx, &transactions); err != nil {
		return nil, err
	}
	switch len(transactions) {
	case 0:
		return nil, services.ErrTransactionNotFound
	case 1:
		return &transactions[0], nil
	default:
		return nil, fmt.Errorf("%w: %s", services.ErrDuplicateReference, reference)
	}
}

func (m *MongoDB) ReferenceExists(ctx context.Context, provider, reference string) (bool, error) {
	connection, err := m.connect()
	if err != nil {
		return false, err
	}
	defer m.disconnect(connection)

	collection := connection.Database(m.database).Collection(collectionTransactions)
	filter := bson.D{{Key: "reference", Value: reference}, {Key: "provider", Value: provider}}
	count, err := collection.CountDocuments(ctx, filter, options.Count().SetLimit(1))
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (m *MongoDB) SaveCallback(ctx context.Context, record *entity.CallbackRecord) error {
	connection, err := m.connect()
	if err != nil {
		return err
	}
	defer m.disconnect(connection)

	collection := connection.Database(m.database).Collection(collectionCallbacks)
	_, err = collection.InsertOne(ctx, record)
	return err
}

func (m *MongoDB) WriteLogMessage(data services.Data) error {
	connection, err := m.connect()
	if err != nil {
		return err
	}
	defer m.disconnect(connection)
	collection := connection.Database(m.database).Collection(collectionLog)
	if _, err = collection.InsertOne(m.ctx, data); err != nil {
		return err
	}
	m.trimLog(collection)
	return nil
}

// trimLog keeps the payment_log collection at the configured record count by
// dropping the oldest surplus entries. Trim failures never fail the write.
func (m *MongoDB) trimLog(collection *mongo.Collection) {
	if m.logRecordsNumber <= 0 {
		return
	}
	count, err := collection.CountDocuments(m.ctx, bson.D{})
	if err != nil || count <= m.logRecordsNumber {
		return
	}
	opts := options.Find().
		SetSort(bson.D{{Key: "timestamp", Value: 1}}).
		SetLimit(count - m.logRecordsNumber).
		SetProjection(bson.D{{Key: "_id", Value: 1}})
	cursor, err := collection.Find(m.ctx, bson.D{}, opts)
	if err != nil {
		return
	}
	var oldest []bson.M
	if err = cursor.All(m.ctx, &oldest); err != nil {
		return
	}
	ids := make([]interface{}, 0, len(oldest))
	for _, record := range oldest {
		ids = append(ids, record["_id"])
	}
	if len(ids) == 0 {
		return
	}
	if _, err = collection.DeleteMany(m.ctx, bson.D{{Key: "_id", Value: bson.D{{Key: "$in", Value: ids}}}}); err != nil {
		log.Println("mongodb log trim error", err)
	}
}
