package mongodb

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"carpool/internal/apperr"
	"carpool/internal/models"
	"carpool/internal/repositories/interfaces"
	"carpool/pkg/cache"
	"carpool/pkg/database"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type rideRepository struct {
	collection *mongo.Collection
	cache      cache.Cache
	cacheTTL   time.Duration
}

// NewRideRepository caches rides by id when c is non-nil. Every mutation
// refreshes or drops the cached copy.
func NewRideRepository(db *mongo.Database, c cache.Cache, cacheTTL time.Duration) interfaces.RideRepository {
	if cacheTTL <= 0 {
		cacheTTL = 15 * time.Minute
	}
	return &rideRepository{
		collection: db.Collection(database.CollectionRides),
		cache:      c,
		cacheTTL:   cacheTTL,
	}
}

func (r *rideRepository) Create(ctx context.Context, ride *models.Ride) error {
	if ride.ID.IsZero() {
		ride.ID = primitive.NewObjectID()
	}
	now := time.Now().UTC()
	ride.CreatedAt = now
	ride.UpdatedAt = now

	if _, err := r.collection.InsertOne(ctx, ride); err != nil {
		return translate(err, "create ride", "ride")
	}

	r.cacheRide(ctx, ride)
	return nil
}

func (r *rideRepository) GetByID(ctx context.Context, id primitive.ObjectID) (*models.Ride, error) {
	if ride := r.getRideFromCache(ctx, id); ride != nil {
		return ride, nil
	}

	ride, err := r.load(ctx, id)
	if err != nil {
		return nil, err
	}
	r.cacheRide(ctx, ride)
	return ride, nil
}

// load reads straight from the collection, skipping the cache.
func (r *rideRepository) load(ctx context.Context, id primitive.ObjectID) (*models.Ride, error) {
	var ride models.Ride
	if err := r.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&ride); err != nil {
		return nil, translate(err, "get ride", "ride")
	}
	return &ride, nil
}

func (r *rideRepository) GetByIDs(ctx context.Context, ids []primitive.ObjectID) ([]*models.Ride, error) {
	if len(ids) == 0 {
		return []*models.Ride{}, nil
	}
	return r.find(ctx, bson.M{"_id": bson.M{"$in": ids}}, "get rides")
}

func (r *rideRepository) ListActive(ctx context.Context, filter *models.RideFilter) ([]*models.Ride, error) {
	query := bson.M{
		"status":     models.RideStatusActive,
		"seats_left": bson.M{"$gt": 0},
	}
	if filter != nil {
		if filter.Origin != "" {
			query["origin"] = containsInsensitive(filter.Origin)
		}
		if filter.Destination != "" {
			query["destination"] = containsInsensitive(filter.Destination)
		}
	}
	return r.find(ctx, query, "list active rides")
}

func (r *rideRepository) ListByOwner(ctx context.Context, ownerID string, status models.RideStatus) ([]*models.Ride, error) {
	query := bson.M{"owner_id": ownerID}
	if status != "" {
		query["status"] = status
	}
	return r.find(ctx, query, "list rides by owner")
}

func (r *rideRepository) find(ctx context.Context, query bson.M, action string) ([]*models.Ride, error) {
	opts := options.Find().SetSort(bson.D{{Key: "departure_time", Value: 1}, {Key: "_id", Value: 1}})
	cursor, err := r.collection.Find(ctx, query, opts)
	if err != nil {
		return nil, translate(err, action, "ride")
	}
	defer cursor.Close(ctx)

	rides := make([]*models.Ride, 0)
	if err := cursor.All(ctx, &rides); err != nil {
		return nil, fmt.Errorf("failed to decode rides: %w", err)
	}
	return rides, nil
}

func (r *rideRepository) UpdateDetails(ctx context.Context, id primitive.ObjectID, update *models.RideDetailsUpdate) (*models.Ride, error) {
	set := bson.M{"updated_at": time.Now().UTC()}
	if update.Title != nil {
		set["title"] = *update.Title
	}
	if update.Origin != nil {
		set["origin"] = *update.Origin
	}
	if update.Destination != nil {
		set["destination"] = *update.Destination
	}
	if update.DepartureTime != nil {
		set["departure_time"] = update.DepartureTime.UTC()
	}

	ride, err := r.findAndUpdate(ctx,
		bson.M{"_id": id, "status": models.RideStatusActive},
		bson.M{"$set": set},
		"update ride",
	)
	if err != nil {
		if apperr.Is(err, apperr.KindNotFound) {
			return nil, r.explainMiss(ctx, id, apperr.State("RIDE_NOT_ACTIVE", "ride is no longer active"))
		}
		return nil, err
	}
	return ride, nil
}

func (r *rideRepository) TransitionStatus(ctx context.Context, id primitive.ObjectID, from, to models.RideStatus) (*models.Ride, error) {
	now := time.Now().UTC()
	set := bson.M{"status": to, "updated_at": now}
	switch to {
	case models.RideStatusCancelled:
		set["cancelled_at"] = now
	case models.RideStatusCompleted:
		set["completed_at"] = now
	}

	ride, err := r.findAndUpdate(ctx,
		bson.M{"_id": id, "status": from},
		bson.M{"$set": set},
		"change ride status",
	)
	if err != nil {
		if apperr.Is(err, apperr.KindNotFound) {
			return nil, r.explainMiss(ctx, id, apperr.State("INVALID_RIDE_STATUS", "ride is not "+string(from)))
		}
		return nil, err
	}
	return ride, nil
}

// DecrementSeat is the only writer of seats_left after creation. The
// filter makes the decrement a compare-and-swap on an active ride with
// seats_left > 0.
func (r *rideRepository) DecrementSeat(ctx context.Context, id primitive.ObjectID) (*models.Ride, error) {
	ride, err := r.findAndUpdate(ctx,
		bson.M{"_id": id, "status": models.RideStatusActive, "seats_left": bson.M{"$gt": 0}},
		bson.M{
			"$inc": bson.M{"seats_left": -1},
			"$set": bson.M{"updated_at": time.Now().UTC()},
		},
		"decrement seat",
	)
	if err != nil {
		if apperr.Is(err, apperr.KindNotFound) {
			return nil, r.explainSeatMiss(ctx, id)
		}
		return nil, err
	}
	return ride, nil
}

func (r *rideRepository) FlagReconciliation(ctx context.Context, id primitive.ObjectID, reason models.ReconciliationReason) error {
	result, err := r.collection.UpdateOne(ctx,
		bson.M{"_id": id},
		bson.M{
			"$set":      bson.M{"needs_reconciliation": true, "updated_at": time.Now().UTC()},
			"$addToSet": bson.M{"reconciliation_reasons": reason},
		},
	)
	if err != nil {
		return translate(err, "flag ride", "ride")
	}
	if result.MatchedCount == 0 {
		return apperr.NotFound("ride")
	}

	r.invalidateRideCache(ctx, id)
	return nil
}

func (r *rideRepository) findAndUpdate(ctx context.Context, filter, update bson.M, action string) (*models.Ride, error) {
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var ride models.Ride
	if err := r.collection.FindOneAndUpdate(ctx, filter, update, opts).Decode(&ride); err != nil {
		return nil, translate(err, action, "ride")
	}

	r.cacheRide(ctx, &ride)
	return &ride, nil
}

// explainMiss tells a missing ride apart from a failed precondition.
func (r *rideRepository) explainMiss(ctx context.Context, id primitive.ObjectID, precondition error) error {
	r.invalidateRideCache(ctx, id)
	if _, err := r.load(ctx, id); err != nil {
		return err
	}
	return precondition
}

func (r *rideRepository) explainSeatMiss(ctx context.Context, id primitive.ObjectID) error {
	r.invalidateRideCache(ctx, id)
	current, err := r.load(ctx, id)
	if err != nil {
		return err
	}
	if !current.IsActive() {
		return apperr.State("RIDE_NOT_ACTIVE", "ride is "+string(current.Status))
	}
	return apperr.Capacity("NO_SEATS_LEFT", "no seats left on ride")
}

func containsInsensitive(s string) primitive.Regex {
	return primitive.Regex{Pattern: regexp.QuoteMeta(s), Options: "i"}
}

// Cache helpers
func rideCacheKey(id primitive.ObjectID) string {
	return fmt.Sprintf("ride:%s", id.Hex())
}

func (r *rideRepository) cacheRide(ctx context.Context, ride *models.Ride) {
	if r.cache != nil {
		r.cache.Set(ctx, rideCacheKey(ride.ID), ride, r.cacheTTL)
	}
}

func (r *rideRepository) getRideFromCache(ctx context.Context, id primitive.ObjectID) *models.Ride {
	if r.cache == nil {
		return nil
	}

	var ride models.Ride
	if err := r.cache.Get(ctx, rideCacheKey(id), &ride); err != nil {
		return nil
	}
	return &ride
}

func (r *rideRepository) invalidateRideCache(ctx context.Context, id primitive.ObjectID) {
	if r.cache != nil {
		r.cache.Delete(ctx, rideCacheKey(id))
	}
}
