package mongodb

import (
	"context"
	"testing"
	"time"

	"carpool/internal/apperr"
	"carpool/internal/models"
	"carpool/pkg/cache"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo/integration/mtest"
)

func rideDoc(id primitive.ObjectID, seatsLeft int) bson.D {
	return bson.D{
		{Key: "_id", Value: id},
		{Key: "owner_id", Value: "owner-1"},
		{Key: "origin", Value: "Berlin"},
		{Key: "destination", Value: "Hamburg"},
		{Key: "total_seats", Value: 4},
		{Key: "seats_left", Value: seatsLeft},
		{Key: "price_per_seat", Value: int64(1500)},
		{Key: "currency", Value: "eur"},
		{Key: "status", Value: "active"},
	}
}

func participationDoc(id, rideID primitive.ObjectID, status string, paid bool, reference string) bson.D {
	return bson.D{
		{Key: "_id", Value: id},
		{Key: "ride_id", Value: rideID},
		{Key: "user_id", Value: "rider-1"},
		{Key: "amount_due", Value: int64(1500)},
		{Key: "paid", Value: paid},
		{Key: "status", Value: status},
		{Key: "payment_reference", Value: reference},
	}
}

func duplicateKey() bson.D {
	return mtest.CreateWriteErrorsResponse(mtest.WriteError{
		Index:   0,
		Code:    11000,
		Message: "E11000 duplicate key error",
	})
}

func TestRideRepository(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))
	ctx := context.Background()

	mt.Run("create assigns id", func(mt *mtest.T) {
		repo := NewRideRepository(mt.DB, nil, time.Minute)
		mt.AddMockResponses(mtest.CreateSuccessResponse())

		ride := &models.Ride{OwnerID: "owner-1", TotalSeats: 2, SeatsLeft: 2, Status: models.RideStatusActive}
		if err := repo.Create(ctx, ride); err != nil {
			mt.Fatalf("create: %v", err)
		}
		if ride.ID.IsZero() || ride.CreatedAt.IsZero() {
			mt.Fatal("expected id and created_at to be set")
		}
	})

	mt.Run("duplicate ride code is a conflict", func(mt *mtest.T) {
		repo := NewRideRepository(mt.DB, nil, time.Minute)
		mt.AddMockResponses(duplicateKey())

		err := repo.Create(ctx, &models.Ride{RideCode: "ABCD2345"})
		if !apperr.Is(err, apperr.KindConflict) {
			mt.Fatalf("expected conflict, got %v", err)
		}
	})

	mt.Run("missing ride is not found", func(mt *mtest.T) {
		repo := NewRideRepository(mt.DB, nil, time.Minute)
		mt.AddMockResponses(mtest.CreateCursorResponse(0, "carpool.rides", mtest.FirstBatch))

		_, err := repo.GetByID(ctx, primitive.NewObjectID())
		if !apperr.Is(err, apperr.KindNotFound) {
			mt.Fatalf("expected not found, got %v", err)
		}
	})

	mt.Run("get by id fills the cache", func(mt *mtest.T) {
		server := miniredis.RunT(mt.T)
		rc := cache.NewRedisCacheFromClient(redis.NewClient(&redis.Options{Addr: server.Addr()}))
		repo := NewRideRepository(mt.DB, rc, time.Minute)

		id := primitive.NewObjectID()
		mt.AddMockResponses(mtest.CreateCursorResponse(0, "carpool.rides", mtest.FirstBatch, rideDoc(id, 3)))

		first, err := repo.GetByID(ctx, id)
		if err != nil {
			mt.Fatalf("first get: %v", err)
		}
		if !server.Exists("ride:" + id.Hex()) {
			mt.Fatal("expected ride to be cached")
		}

		// No mock response is queued, so this must be served from redis.
		second, err := repo.GetByID(ctx, id)
		if err != nil {
			mt.Fatalf("cached get: %v", err)
		}
		if second.SeatsLeft != first.SeatsLeft || second.ID != id {
			mt.Fatalf("cached ride differs: %+v", second)
		}
	})

	mt.Run("decrement returns updated ride", func(mt *mtest.T) {
		repo := NewRideRepository(mt.DB, nil, time.Minute)
		id := primitive.NewObjectID()
		mt.AddMockResponses(mtest.CreateSuccessResponse(bson.E{Key: "value", Value: rideDoc(id, 1)}))

		ride, err := repo.DecrementSeat(ctx, id)
		if err != nil {
			mt.Fatalf("decrement: %v", err)
		}
		if ride.SeatsLeft != 1 {
			mt.Fatalf("expected 1 seat left, got %d", ride.SeatsLeft)
		}
	})

	mt.Run("decrement with no seat is a capacity error", func(mt *mtest.T) {
		repo := NewRideRepository(mt.DB, nil, time.Minute)
		id := primitive.NewObjectID()
		mt.AddMockResponses(
			mtest.CreateSuccessResponse(),
			mtest.CreateCursorResponse(0, "carpool.rides", mtest.FirstBatch, rideDoc(id, 0)),
		)

		_, err := repo.DecrementSeat(ctx, id)
		if !apperr.Is(err, apperr.KindCapacity) {
			mt.Fatalf("expected capacity error, got %v", err)
		}
	})

	mt.Run("decrement on cancelled ride is a state error", func(mt *mtest.T) {
		repo := NewRideRepository(mt.DB, nil, time.Minute)
		id := primitive.NewObjectID()
		cancelled := append(rideDoc(id, 2)[:8], bson.E{Key: "status", Value: "cancelled"})
		mt.AddMockResponses(
			mtest.CreateSuccessResponse(),
			mtest.CreateCursorResponse(0, "carpool.rides", mtest.FirstBatch, cancelled),
		)

		_, err := repo.DecrementSeat(ctx, id)
		if !apperr.Is(err, apperr.KindState) {
			mt.Fatalf("expected state error, got %v", err)
		}
	})

	mt.Run("transition on missing ride is not found", func(mt *mtest.T) {
		repo := NewRideRepository(mt.DB, nil, time.Minute)
		mt.AddMockResponses(
			mtest.CreateSuccessResponse(),
			mtest.CreateCursorResponse(0, "carpool.rides", mtest.FirstBatch),
		)

		_, err := repo.TransitionStatus(ctx, primitive.NewObjectID(), models.RideStatusActive, models.RideStatusCancelled)
		if !apperr.Is(err, apperr.KindNotFound) {
			mt.Fatalf("expected not found, got %v", err)
		}
	})

	mt.Run("flag on missing ride is not found", func(mt *mtest.T) {
		repo := NewRideRepository(mt.DB, nil, time.Minute)
		mt.AddMockResponses(mtest.CreateSuccessResponse(bson.E{Key: "n", Value: 0}, bson.E{Key: "nModified", Value: 0}))

		err := repo.FlagReconciliation(ctx, primitive.NewObjectID(), models.ReconciliationOversell)
		if !apperr.Is(err, apperr.KindNotFound) {
			mt.Fatalf("expected not found, got %v", err)
		}
	})
}

func TestParticipationRepository(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))
	ctx := context.Background()

	mt.Run("create sets active key", func(mt *mtest.T) {
		repo := NewParticipationRepository(mt.DB)
		mt.AddMockResponses(mtest.CreateSuccessResponse())

		p := &models.Participation{RideID: primitive.NewObjectID(), UserID: "rider-1", AmountDue: 1500}
		if err := repo.Create(ctx, p); err != nil {
			mt.Fatalf("create: %v", err)
		}
		if p.ActiveKey == nil || *p.ActiveKey != models.ActiveParticipationKey(p.RideID, "rider-1") {
			mt.Fatalf("unexpected active key %v", p.ActiveKey)
		}
		if p.Status != models.ParticipationStatusPending {
			mt.Fatalf("expected pending, got %s", p.Status)
		}
	})

	mt.Run("second active participation conflicts", func(mt *mtest.T) {
		repo := NewParticipationRepository(mt.DB)
		mt.AddMockResponses(duplicateKey())

		err := repo.Create(ctx, &models.Participation{RideID: primitive.NewObjectID(), UserID: "rider-1"})
		appErr, ok := apperr.As(err)
		if !ok || appErr.Code != "ALREADY_JOINED" {
			mt.Fatalf("expected ALREADY_JOINED conflict, got %v", err)
		}
	})

	mt.Run("mark paid applies", func(mt *mtest.T) {
		repo := NewParticipationRepository(mt.DB)
		id, rideID := primitive.NewObjectID(), primitive.NewObjectID()
		mt.AddMockResponses(
			mtest.CreateCursorResponse(0, "carpool.participations", mtest.FirstBatch, participationDoc(id, rideID, "pending", false, "")),
			mtest.CreateSuccessResponse(bson.E{Key: "value", Value: participationDoc(id, rideID, "paid", true, "pi_1")}),
		)

		p, applied, err := repo.MarkPaid(ctx, id, "pi_1", 1500)
		if err != nil {
			mt.Fatalf("mark paid: %v", err)
		}
		if !applied || !p.Paid || p.PaymentReference != "pi_1" {
			mt.Fatalf("unexpected result applied=%v %+v", applied, p)
		}
	})

	mt.Run("mark paid on paid participation reports not applied", func(mt *mtest.T) {
		repo := NewParticipationRepository(mt.DB)
		id, rideID := primitive.NewObjectID(), primitive.NewObjectID()
		mt.AddMockResponses(
			mtest.CreateCursorResponse(0, "carpool.participations", mtest.FirstBatch, participationDoc(id, rideID, "paid", true, "pi_1")),
		)

		p, applied, err := repo.MarkPaid(ctx, id, "pi_2", 1500)
		if err != nil {
			mt.Fatalf("mark paid: %v", err)
		}
		if applied || p.PaymentReference != "pi_1" {
			mt.Fatalf("expected untouched payment, applied=%v ref=%s", applied, p.PaymentReference)
		}
	})

	mt.Run("mark paid lost race", func(mt *mtest.T) {
		repo := NewParticipationRepository(mt.DB)
		id, rideID := primitive.NewObjectID(), primitive.NewObjectID()
		mt.AddMockResponses(
			mtest.CreateCursorResponse(0, "carpool.participations", mtest.FirstBatch, participationDoc(id, rideID, "pending", false, "")),
			mtest.CreateSuccessResponse(),
			mtest.CreateCursorResponse(0, "carpool.participations", mtest.FirstBatch, participationDoc(id, rideID, "paid", true, "pi_other")),
		)

		p, applied, err := repo.MarkPaid(ctx, id, "pi_1", 1500)
		if err != nil {
			mt.Fatalf("mark paid: %v", err)
		}
		if applied || p.PaymentReference != "pi_other" {
			mt.Fatalf("expected winner's payment, applied=%v ref=%s", applied, p.PaymentReference)
		}
	})

	mt.Run("reactivation blocked by another active participation", func(mt *mtest.T) {
		repo := NewParticipationRepository(mt.DB)
		id, rideID := primitive.NewObjectID(), primitive.NewObjectID()
		mt.AddMockResponses(
			mtest.CreateCursorResponse(0, "carpool.participations", mtest.FirstBatch, participationDoc(id, rideID, "cancelled", false, "")),
			duplicateKey(),
		)

		_, _, err := repo.MarkPaid(ctx, id, "pi_1", 1500)
		if !apperr.Is(err, apperr.KindConflict) {
			mt.Fatalf("expected conflict, got %v", err)
		}
	})

	mt.Run("cancel of paid participation is a state error", func(mt *mtest.T) {
		repo := NewParticipationRepository(mt.DB)
		id, rideID := primitive.NewObjectID(), primitive.NewObjectID()
		mt.AddMockResponses(
			mtest.CreateSuccessResponse(),
			mtest.CreateCursorResponse(0, "carpool.participations", mtest.FirstBatch, participationDoc(id, rideID, "paid", true, "pi_1")),
		)

		_, err := repo.Cancel(ctx, id)
		if !apperr.Is(err, apperr.KindState) {
			mt.Fatalf("expected state error, got %v", err)
		}
	})
}

func TestPaymentAndChatRepositories(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))
	ctx := context.Background()

	mt.Run("mark completed reports the transition", func(mt *mtest.T) {
		repo := NewPaymentRepository(mt.DB)
		mt.AddMockResponses(mtest.CreateSuccessResponse(bson.E{Key: "n", Value: 1}, bson.E{Key: "nModified", Value: 1}))

		applied, err := repo.MarkCompleted(ctx, "cs_1", "pi_1")
		if err != nil || !applied {
			mt.Fatalf("expected applied, got %v %v", applied, err)
		}
	})

	mt.Run("duplicate session conflicts", func(mt *mtest.T) {
		repo := NewPaymentRepository(mt.DB)
		mt.AddMockResponses(duplicateKey())

		err := repo.Create(ctx, &models.PaymentTransaction{SessionID: "cs_1"})
		if !apperr.Is(err, apperr.KindConflict) {
			mt.Fatalf("expected conflict, got %v", err)
		}
	})

	mt.Run("chat history is returned oldest first", func(mt *mtest.T) {
		repo := NewChatRepository(mt.DB)
		rideID := primitive.NewObjectID()
		now := time.Now().UTC().Truncate(time.Millisecond)
		newer := bson.D{{Key: "_id", Value: primitive.NewObjectID()}, {Key: "ride_id", Value: rideID}, {Key: "content", Value: "second"}, {Key: "created_at", Value: now}}
		older := bson.D{{Key: "_id", Value: primitive.NewObjectID()}, {Key: "ride_id", Value: rideID}, {Key: "content", Value: "first"}, {Key: "created_at", Value: now.Add(-time.Minute)}}
		mt.AddMockResponses(mtest.CreateCursorResponse(0, "carpool.ride_messages", mtest.FirstBatch, newer, older))

		messages, err := repo.ListByRide(ctx, rideID, 10)
		if err != nil {
			mt.Fatalf("list: %v", err)
		}
		if len(messages) != 2 || messages[0].Content != "first" || messages[1].Content != "second" {
			mt.Fatalf("unexpected order: %+v", messages)
		}
	})
}
