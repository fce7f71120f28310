package database

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Collection names shared with the mongodb repositories.
const (
	CollectionRides          = "rides"
	CollectionParticipations = "participations"
	CollectionActivity       = "activity_log"
	CollectionMessages       = "ride_messages"
	CollectionPayments       = "payment_transactions"
	collectionMigrations     = "migrations"
)

type Migration struct {
	Version     int
	Description string
	Up          func(context.Context, *mongo.Database) error
	Down        func(context.Context, *mongo.Database) error
}

type Migrator struct {
	db         *mongo.Database
	migrations []Migration
	log        logrus.FieldLogger
}

func NewMigrator(db *mongo.Database, log logrus.FieldLogger) *Migrator {
	return &Migrator{
		db:         db,
		migrations: Migrations(),
		log:        log,
	}
}

func (m *Migrator) Up(ctx context.Context) error {
	currentVersion, err := m.CurrentVersion(ctx)
	if err != nil {
		return err
	}

	for _, migration := range m.migrations {
		if migration.Version <= currentVersion {
			continue
		}
		m.log.WithField("version", migration.Version).Infof("Running migration: %s", migration.Description)

		if err := migration.Up(ctx, m.db); err != nil {
			return fmt.Errorf("migration %d failed: %w", migration.Version, err)
		}
		if err := m.updateVersion(ctx, migration.Version); err != nil {
			return fmt.Errorf("failed to update migration version: %w", err)
		}
	}

	return nil
}

func (m *Migrator) Down(ctx context.Context, targetVersion int) error {
	currentVersion, err := m.CurrentVersion(ctx)
	if err != nil {
		return err
	}

	for i := len(m.migrations) - 1; i >= 0; i-- {
		migration := m.migrations[i]
		if migration.Version > currentVersion || migration.Version <= targetVersion {
			continue
		}
		m.log.WithField("version", migration.Version).Infof("Reverting migration: %s", migration.Description)

		if err := migration.Down(ctx, m.db); err != nil {
			return fmt.Errorf("migration %d rollback failed: %w", migration.Version, err)
		}

		previousVersion := targetVersion
		if i > 0 {
			previousVersion = m.migrations[i-1].Version
		}
		if err := m.updateVersion(ctx, previousVersion); err != nil {
			return fmt.Errorf("failed to update migration version: %w", err)
		}
	}

	return nil
}

// LatestVersion is the version Up migrates to.
func (m *Migrator) LatestVersion() int {
	latest := 0
	for _, migration := range m.migrations {
		if migration.Version > latest {
			latest = migration.Version
		}
	}
	return latest
}

func (m *Migrator) CurrentVersion(ctx context.Context) (int, error) {
	var result struct {
		Version int `bson:"version"`
	}

	err := m.db.Collection(collectionMigrations).FindOne(ctx, bson.D{}).Decode(&result)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return 0, nil
		}
		return 0, err
	}

	return result.Version, nil
}

func (m *Migrator) updateVersion(ctx context.Context, version int) error {
	_, err := m.db.Collection(collectionMigrations).ReplaceOne(
		ctx,
		bson.D{},
		bson.D{{Key: "version", Value: version}, {Key: "updated_at", Value: time.Now()}},
		options.Replace().SetUpsert(true),
	)
	return err
}

func Migrations() []Migration {
	return []Migration{
		{
			Version:     1,
			Description: "Create rides collection with indexes",
			Up:          createRidesIndexes,
			Down:        dropCollection(CollectionRides),
		},
		{
			Version:     2,
			Description: "Create participations collection with indexes",
			Up:          createParticipationsIndexes,
			Down:        dropCollection(CollectionParticipations),
		},
		{
			Version:     3,
			Description: "Create activity log collection with indexes",
			Up:          createActivityIndexes,
			Down:        dropCollection(CollectionActivity),
		},
		{
			Version:     4,
			Description: "Create ride messages collection with indexes",
			Up:          createMessagesIndexes,
			Down:        dropCollection(CollectionMessages),
		},
		{
			Version:     5,
			Description: "Create payment transactions collection with indexes",
			Up:          createPaymentsIndexes,
			Down:        dropCollection(CollectionPayments),
		},
	}
}

func dropCollection(name string) func(context.Context, *mongo.Database) error {
	return func(ctx context.Context, db *mongo.Database) error {
		return db.Collection(name).Drop(ctx)
	}
}

func createRidesIndexes(ctx context.Context, db *mongo.Database) error {
	indexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "ride_code", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys: bson.D{{Key: "status", Value: 1}, {Key: "seats_left", Value: 1}},
		},
		{
			Keys: bson.D{{Key: "owner_id", Value: 1}, {Key: "created_at", Value: -1}},
		},
		{
			Keys: bson.D{{Key: "needs_reconciliation", Value: 1}},
		},
	}

	_, err := db.Collection(CollectionRides).Indexes().CreateMany(ctx, indexes)
	return err
}

func createParticipationsIndexes(ctx context.Context, db *mongo.Database) error {
	indexes := []mongo.IndexModel{
		{
			// At most one non-cancelled participation per (ride, user).
			Keys: bson.D{{Key: "active_key", Value: 1}},
			Options: options.Index().
				SetUnique(true).
				SetPartialFilterExpression(bson.M{"active_key": bson.M{"$exists": true}}),
		},
		{
			Keys: bson.D{{Key: "ride_id", Value: 1}, {Key: "created_at", Value: 1}},
		},
		{
			Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "status", Value: 1}},
		},
		{
			Keys: bson.D{{Key: "status", Value: 1}, {Key: "paid", Value: 1}, {Key: "created_at", Value: 1}},
		},
		{
			Keys:    bson.D{{Key: "checkout_session_id", Value: 1}},
			Options: options.Index().SetSparse(true),
		},
	}

	_, err := db.Collection(CollectionParticipations).Indexes().CreateMany(ctx, indexes)
	return err
}

func createActivityIndexes(ctx context.Context, db *mongo.Database) error {
	indexes := []mongo.IndexModel{
		{
			Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "created_at", Value: -1}},
		},
		{
			Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "action", Value: 1}, {Key: "created_at", Value: -1}},
		},
	}

	_, err := db.Collection(CollectionActivity).Indexes().CreateMany(ctx, indexes)
	return err
}

func createMessagesIndexes(ctx context.Context, db *mongo.Database) error {
	indexes := []mongo.IndexModel{
		{
			Keys: bson.D{{Key: "ride_id", Value: 1}, {Key: "created_at", Value: -1}},
		},
	}

	_, err := db.Collection(CollectionMessages).Indexes().CreateMany(ctx, indexes)
	return err
}

func createPaymentsIndexes(ctx context.Context, db *mongo.Database) error {
	indexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "session_id", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys: bson.D{{Key: "participation_id", Value: 1}},
		},
		{
			Keys: bson.D{{Key: "status", Value: 1}, {Key: "created_at", Value: -1}},
		},
	}

	_, err := db.Collection(CollectionPayments).Indexes().CreateMany(ctx, indexes)
	return err
}
