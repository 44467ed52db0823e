// Package mongostore implements store.Store on MongoDB. Quota claims and
// slot releases run inside multi-document transactions, so the server must
// be a replica set.
package mongostore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	models "github.com/phillip/iinsaf-marketplace-go/models"
	"github.com/phillip/iinsaf-marketplace-go/store"
)

const (
	colUsers       = "users"
	colWallets     = "wallets"
	colPricing     = "pricing"
	colAds         = "advertisements"
	colFree        = "free_conferences"
	colPaid        = "paid_conferences"
	colAssignments = "assignments"
	colCoupons     = "coupons"
	colPayments    = "payment_history"
)

type Store struct {
	client *mongo.Client
	db     *mongo.Database
}

var _ store.Store = (*Store)(nil)

func New(client *mongo.Client, dbName string) *Store {
	return &Store{client: client, db: client.Database(dbName)}
}

func (s *Store) col(name string) *mongo.Collection {
	return s.db.Collection(name)
}

// EnsureIndexes creates the unique keys the store relies on for idempotency.
func (s *Store) EnsureIndexes(ctx context.Context) error {
	unique := options.Index().SetUnique(true)
	indexes := map[string][]mongo.IndexModel{
		colUsers: {
			{Keys: bson.D{{Key: "role", Value: 1}, {Key: "verified", Value: 1}}},
		},
		colWallets: {
			{Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "user_type", Value: 1}}, Options: unique},
		},
		colAds: {
			{Keys: bson.D{{Key: "owner_id", Value: 1}, {Key: "created_at", Value: -1}}},
			{Keys: bson.D{{Key: "status", Value: 1}}},
		},
		colFree: {
			{Keys: bson.D{{Key: "conference_id", Value: 1}}, Options: unique},
			{Keys: bson.D{{Key: "submitted_by", Value: 1}, {Key: "created_at", Value: -1}}},
		},
		colPaid: {
			{Keys: bson.D{{Key: "conference_id", Value: 1}}, Options: unique},
			{Keys: bson.D{{Key: "submitted_by", Value: 1}, {Key: "created_at", Value: -1}}},
		},
		colAssignments: {
			{Keys: bson.D{{Key: "kind", Value: 1}, {Key: "entity_id", Value: 1}, {Key: "reporter_id", Value: 1}}, Options: unique},
			{Keys: bson.D{{Key: "kind", Value: 1}, {Key: "reporter_id", Value: 1}}},
		},
		colCoupons: {
			{Keys: bson.D{{Key: "code", Value: 1}}, Options: unique},
		},
		colPayments: {
			{Keys: bson.D{{Key: "payment_id", Value: 1}}, Options: unique},
			{Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "created_at", Value: -1}}},
		},
	}
	for name, idx := range indexes {
		if _, err := s.col(name).Indexes().CreateMany(ctx, idx); err != nil {
			return fmt.Errorf("create indexes on %s: %w", name, err)
		}
	}
	zap.L().Info("mongo indexes ensured", zap.Int("collections", len(indexes)))
	return nil
}

// ---------------- USERS ----------------

func (s *Store) CreateUser(ctx context.Context, user *models.User) error {
	if user.ID.IsZero() {
		user.ID = primitive.NewObjectID()
	}
	_, err := s.col(colUsers).InsertOne(ctx, user)
	return mapErr(err)
}

func (s *Store) GetUser(ctx context.Context, id primitive.ObjectID) (models.User, error) {
	return findOne[models.User](ctx, s.col(colUsers), bson.M{"_id": id})
}

func (s *Store) ListWorkers(ctx context.Context, role string) ([]models.User, error) {
	filter := bson.M{"role": role, "verified": true}
	return findAll[models.User](ctx, s.col(colUsers), filter, bson.D{{Key: "_id", Value: 1}})
}

// ---------------- WALLETS ----------------

// Credit upserts the wallet. A wallet that already holds the correlation id
// fails the filter, so the upsert collides with the unique wallet key.
func (s *Store) Credit(ctx context.Context, userID primitive.ObjectID, userType string, tx models.WalletTransaction) (models.Wallet, error) {
	filter := bson.M{
		"user_id":                     userID,
		"user_type":                   userType,
		"transactions.correlation_id": bson.M{"$ne": tx.CorrelationID},
	}
	update := bson.M{
		"$inc":         bson.M{"balance": tx.Signed()},
		"$push":        bson.M{"transactions": tx},
		"$set":         bson.M{"updated_at": tx.CreatedAt},
		"$setOnInsert": bson.M{"created_at": tx.CreatedAt},
	}
	opts := options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After)

	var w models.Wallet
	for attempt := 0; attempt < 2; attempt++ {
		err := s.col(colWallets).FindOneAndUpdate(ctx, filter, update, opts).Decode(&w)
		if err == nil {
			return w, nil
		}
		if !mongo.IsDuplicateKeyError(err) {
			return models.Wallet{}, err
		}
		existing, gerr := s.GetWallet(ctx, userID, userType)
		if gerr != nil {
			return models.Wallet{}, gerr
		}
		if existing.HasCorrelation(tx.CorrelationID) {
			return models.Wallet{}, store.ErrDuplicateTransaction
		}
		// Lost an insert race against another first credit; retry as an update.
	}
	return models.Wallet{}, store.ErrConflict
}

func (s *Store) Debit(ctx context.Context, userID primitive.ObjectID, userType string, tx models.WalletTransaction) (models.Wallet, error) {
	filter := bson.M{
		"user_id":                     userID,
		"user_type":                   userType,
		"balance":                     bson.M{"$gte": tx.Amount},
		"transactions.correlation_id": bson.M{"$ne": tx.CorrelationID},
	}
	update := bson.M{
		"$inc":  bson.M{"balance": tx.Signed()},
		"$push": bson.M{"transactions": tx},
		"$set":  bson.M{"updated_at": tx.CreatedAt},
	}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var w models.Wallet
	err := s.col(colWallets).FindOneAndUpdate(ctx, filter, update, opts).Decode(&w)
	if err == nil {
		return w, nil
	}
	if !errors.Is(err, mongo.ErrNoDocuments) {
		return models.Wallet{}, err
	}
	existing, gerr := s.GetWallet(ctx, userID, userType)
	switch {
	case errors.Is(gerr, store.ErrNotFound):
		return models.Wallet{}, store.ErrInsufficientBalance
	case gerr != nil:
		return models.Wallet{}, gerr
	case existing.HasCorrelation(tx.CorrelationID):
		return models.Wallet{}, store.ErrDuplicateTransaction
	}
	return models.Wallet{}, store.ErrInsufficientBalance
}

func (s *Store) GetWallet(ctx context.Context, userID primitive.ObjectID, userType string) (models.Wallet, error) {
	return findOne[models.Wallet](ctx, s.col(colWallets), bson.M{"user_id": userID, "user_type": userType})
}

// ---------------- PRICING ----------------

func (s *Store) GetPricing(ctx context.Context) (models.PricingConfig, error) {
	return findOne[models.PricingConfig](ctx, s.col(colPricing), bson.M{"_id": models.PricingConfigID})
}

func (s *Store) SetPricing(ctx context.Context, cfg models.PricingConfig) error {
	cfg.ID = models.PricingConfigID
	_, err := s.col(colPricing).ReplaceOne(ctx, bson.M{"_id": cfg.ID}, cfg, options.Replace().SetUpsert(true))
	return mapErr(err)
}

// ---------------- ADS ----------------

func (s *Store) CreateAd(ctx context.Context, ad *models.Advertisement) error {
	if ad.ID.IsZero() {
		ad.ID = primitive.NewObjectID()
	}
	_, err := s.col(colAds).InsertOne(ctx, ad)
	return mapErr(err)
}

func (s *Store) GetAd(ctx context.Context, id primitive.ObjectID) (models.Advertisement, error) {
	return findOne[models.Advertisement](ctx, s.col(colAds), bson.M{"_id": id})
}

func (s *Store) ListAds(ctx context.Context, filter store.AdFilter) ([]models.Advertisement, error) {
	q := bson.M{}
	if filter.OwnerID != nil {
		q["owner_id"] = *filter.OwnerID
	}
	if filter.Status != "" {
		q["status"] = filter.Status
	}
	return findAll[models.Advertisement](ctx, s.col(colAds), q, newestFirst)
}

func (s *Store) PatchAd(ctx context.Context, id primitive.ObjectID, expected []models.AdStatus, patch store.AdPatch) (models.Advertisement, error) {
	set := bson.M{"updated_at": time.Now()}
	if patch.Status != nil {
		set["status"] = *patch.Status
	}
	if patch.AdminNote != nil {
		set["admin_note"] = *patch.AdminNote
	}
	if patch.Targeting != nil {
		set["targeting"] = *patch.Targeting
	}
	if patch.ApprovedAt != nil {
		set["approved_at"] = *patch.ApprovedAt
	}
	if patch.AcceptBefore != nil {
		set["accept_before"] = *patch.AcceptBefore
	}
	if patch.AdminCommission != nil {
		set["admin_commission"] = *patch.AdminCommission
	}
	if patch.FinalReporterPrice != nil {
		set["final_reporter_price"] = *patch.FinalReporterPrice
	}
	if patch.NotifiedReporters != nil {
		set["notified_reporters"] = patch.NotifiedReporters
	}
	if patch.CompletionDetails != nil {
		set["completion_details"] = *patch.CompletionDetails
	}
	return patchOne[models.Advertisement](ctx, s.col(colAds), id, statusStrings(expected), set)
}

// ---------------- CONFERENCES ----------------

func (s *Store) CreateFreeConference(ctx context.Context, conf *models.FreeConference) error {
	if conf.ID.IsZero() {
		conf.ID = primitive.NewObjectID()
	}
	_, err := s.col(colFree).InsertOne(ctx, conf)
	return mapErr(err)
}

func (s *Store) GetFreeConference(ctx context.Context, id primitive.ObjectID) (models.FreeConference, error) {
	return findOne[models.FreeConference](ctx, s.col(colFree), bson.M{"_id": id})
}

func (s *Store) ListFreeConferences(ctx context.Context, filter store.ConferenceFilter) ([]models.FreeConference, error) {
	return findAll[models.FreeConference](ctx, s.col(colFree), conferenceQuery(filter), newestFirst)
}

func (s *Store) PatchFreeConference(ctx context.Context, id primitive.ObjectID, expected []models.ConferenceStatus, patch store.ConferencePatch) (models.FreeConference, error) {
	return patchOne[models.FreeConference](ctx, s.col(colFree), id, statusStrings(expected), conferenceSet(patch))
}

func (s *Store) CreatePaidConference(ctx context.Context, conf *models.PaidConference) error {
	if conf.ID.IsZero() {
		conf.ID = primitive.NewObjectID()
	}
	_, err := s.col(colPaid).InsertOne(ctx, conf)
	return mapErr(err)
}

func (s *Store) GetPaidConference(ctx context.Context, id primitive.ObjectID) (models.PaidConference, error) {
	return findOne[models.PaidConference](ctx, s.col(colPaid), bson.M{"_id": id})
}

func (s *Store) ListPaidConferences(ctx context.Context, filter store.ConferenceFilter) ([]models.PaidConference, error) {
	return findAll[models.PaidConference](ctx, s.col(colPaid), conferenceQuery(filter), newestFirst)
}

func (s *Store) PatchPaidConference(ctx context.Context, id primitive.ObjectID, expected []models.ConferenceStatus, patch store.ConferencePatch) (models.PaidConference, error) {
	set := conferenceSet(patch)
	if patch.PaymentStatus != nil {
		set["payment_status"] = *patch.PaymentStatus
	}
	if patch.CommissionDetails != nil {
		set["commission_details"] = *patch.CommissionDetails
	}
	if patch.RefundDetails != nil {
		set["refund_details"] = *patch.RefundDetails
	}
	return patchOne[models.PaidConference](ctx, s.col(colPaid), id, statusStrings(expected), set)
}

func (s *Store) ExcludeReporter(ctx context.Context, kind models.AssignmentKind, id, reporterID primitive.ObjectID) error {
	res, err := s.col(parentCollection(kind)).UpdateOne(ctx,
		bson.M{"_id": id},
		bson.M{"$addToSet": bson.M{"excluded_reporters": reporterID}},
	)
	if err != nil {
		return mapErr(err)
	}
	if res.MatchedCount == 0 {
		return store.ErrNotFound
	}
	return nil
}

func conferenceQuery(filter store.ConferenceFilter) bson.M {
	q := bson.M{}
	if filter.SubmittedBy != nil {
		q["submitted_by"] = *filter.SubmittedBy
	}
	if filter.Status != "" {
		q["status"] = filter.Status
	}
	return q
}

func conferenceSet(patch store.ConferencePatch) bson.M {
	set := bson.M{"updated_at": time.Now()}
	if patch.Status != nil {
		set["status"] = *patch.Status
	}
	if patch.AdminNote != nil {
		set["admin_note"] = *patch.AdminNote
	}
	if patch.Targeting != nil {
		set["targeting"] = *patch.Targeting
	}
	if patch.ApprovedAt != nil {
		set["approved_at"] = *patch.ApprovedAt
	}
	if patch.CompletedAt != nil {
		set["completed_at"] = *patch.CompletedAt
	}
	if patch.NotifiedReporters != nil {
		set["notified_reporters"] = patch.NotifiedReporters
	}
	return set
}

// ---------------- ASSIGNMENTS ----------------

func (s *Store) EnsurePending(ctx context.Context, kind models.AssignmentKind, entityID primitive.ObjectID, entityCode string, reporters []models.User, at time.Time) (int, error) {
	if len(reporters) == 0 {
		return 0, nil
	}
	writes := make([]mongo.WriteModel, 0, len(reporters))
	for _, r := range reporters {
		row := models.Assignment{
			ID:         primitive.NewObjectID(),
			Kind:       kind,
			EntityID:   entityID,
			EntityCode: entityCode,
			ReporterID: r.ID,
			IinsafID:   r.IinsafID,
			Status:     models.AssignmentPending,
			TargetedAt: at,
			CreatedAt:  at,
			UpdatedAt:  at,
		}
		writes = append(writes, mongo.NewUpdateOneModel().
			SetFilter(assignmentKey(kind, entityID, r.ID)).
			SetUpdate(bson.M{"$setOnInsert": row}).
			SetUpsert(true))
	}
	res, err := s.col(colAssignments).BulkWrite(ctx, writes, options.BulkWrite().SetOrdered(false))
	if err != nil {
		return 0, mapErr(err)
	}
	return int(res.UpsertedCount), nil
}

func (s *Store) ReopenRejected(ctx context.Context, kind models.AssignmentKind, entityID primitive.ObjectID, reporterIDs []primitive.ObjectID, at time.Time) (int, error) {
	if len(reporterIDs) == 0 {
		return 0, nil
	}
	res, err := s.col(colAssignments).UpdateMany(ctx,
		bson.M{
			"kind":        kind,
			"entity_id":   entityID,
			"reporter_id": bson.M{"$in": reporterIDs},
			"status":      models.AssignmentRejected,
		},
		bson.M{
			"$set": bson.M{
				"status":      models.AssignmentPending,
				"accepted":    false,
				"targeted_at": at,
				"updated_at":  at,
			},
			"$unset": bson.M{"rejected_at": "", "reject_note": ""},
		},
	)
	if err != nil {
		return 0, mapErr(err)
	}
	return int(res.ModifiedCount), nil
}

func (s *Store) GetAssignment(ctx context.Context, kind models.AssignmentKind, entityID, reporterID primitive.ObjectID) (models.Assignment, error) {
	return findOne[models.Assignment](ctx, s.col(colAssignments), assignmentKey(kind, entityID, reporterID))
}

func (s *Store) ListByEntity(ctx context.Context, kind models.AssignmentKind, entityID primitive.ObjectID) ([]models.Assignment, error) {
	return findAll[models.Assignment](ctx, s.col(colAssignments), bson.M{"kind": kind, "entity_id": entityID}, targetedOrder)
}

func (s *Store) ListByReporter(ctx context.Context, kind models.AssignmentKind, reporterID primitive.ObjectID) ([]models.Assignment, error) {
	return findAll[models.Assignment](ctx, s.col(colAssignments), bson.M{"kind": kind, "reporter_id": reporterID}, targetedOrder)
}

func (s *Store) TransitionAssignment(ctx context.Context, t store.Transition) (models.Assignment, error) {
	filter := assignmentKey(t.Kind, t.EntityID, t.ReporterID)
	filter["status"] = bson.M{"$in": t.From}
	if t.FromProof != nil {
		clauses := proofClauses(t.FromProof)
		if len(clauses) == 0 {
			return models.Assignment{}, s.missOrConflict(ctx, t.Kind, t.EntityID, t.ReporterID)
		}
		filter["$or"] = clauses
	}
	update := bson.M{"$set": assignmentSet(t.Patch, t.At)}

	if !t.ReleaseSlot {
		var a models.Assignment
		err := s.col(colAssignments).FindOneAndUpdate(ctx, filter, update,
			options.FindOneAndUpdate().SetReturnDocument(options.After)).Decode(&a)
		if errors.Is(err, mongo.ErrNoDocuments) {
			return models.Assignment{}, s.missOrConflict(ctx, t.Kind, t.EntityID, t.ReporterID)
		}
		return a, mapErr(err)
	}

	out, err := s.withTransaction(ctx, func(sc mongo.SessionContext) (interface{}, error) {
		var before models.Assignment
		err := s.col(colAssignments).FindOneAndUpdate(sc, filter, update,
			options.FindOneAndUpdate().SetReturnDocument(options.Before)).Decode(&before)
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, s.missOrConflict(sc, t.Kind, t.EntityID, t.ReporterID)
		}
		if err != nil {
			return nil, err
		}
		if holdsSlot(before.Status) {
			if err := s.releaseSlot(sc, t.Kind, t.EntityID, t.At); err != nil {
				return nil, err
			}
		}
		return s.GetAssignment(sc, t.Kind, t.EntityID, t.ReporterID)
	})
	if err != nil {
		return models.Assignment{}, err
	}
	return out.(models.Assignment), nil
}

// ClaimSlot takes the parent's slot first. A reporter who already responded
// aborts the transaction, which hands the slot back.
func (s *Store) ClaimSlot(ctx context.Context, claim store.SlotClaim) (store.ClaimResult, error) {
	parent, ok := slotFields[claim.Kind]
	if !ok {
		return store.ClaimResult{}, store.ErrConflict
	}

	out, err := s.withTransaction(ctx, func(sc mongo.SessionContext) (interface{}, error) {
		if _, err := s.GetAssignment(sc, claim.Kind, claim.EntityID, claim.ReporterID); err != nil {
			return nil, err
		}

		count, quota, err := s.takeSlot(sc, claim, parent)
		if err != nil {
			return nil, err
		}

		set := bson.M{
			"status":      models.AssignmentAccepted,
			"accepted":    true,
			"accepted_at": claim.At,
			"updated_at":  claim.At,
		}
		if claim.Snapshot != nil {
			set["snapshot"] = *claim.Snapshot
		}
		filter := assignmentKey(claim.Kind, claim.EntityID, claim.ReporterID)
		filter["status"] = models.AssignmentPending

		var a models.Assignment
		err = s.col(colAssignments).FindOneAndUpdate(sc, filter, bson.M{"$set": set},
			options.FindOneAndUpdate().SetReturnDocument(options.After)).Decode(&a)
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, store.ErrConflict
		}
		if err != nil {
			return nil, err
		}
		return store.ClaimResult{
			Assignment: a,
			Count:      count.n,
			Quota:      quota,
			Filled:     count.running && count.n >= quota,
		}, nil
	})
	if err != nil {
		return store.ClaimResult{}, err
	}
	return out.(store.ClaimResult), nil
}

type slotField struct {
	collection string
	count      string
	quota      string
	// fillable lists the parent statuses that move to running when full.
	fillable []string
}

var slotFields = map[models.AssignmentKind]slotField{
	models.KindAd: {
		collection: colAds,
		count:      "accept_reporter_count",
		quota:      "required_reporter",
		fillable:   []string{string(models.AdStatusApproved)},
	},
	models.KindPaidConference: {
		collection: colPaid,
		count:      "accepted_count",
		quota:      "number_of_reporters",
		fillable:   []string{string(models.ConferenceStatusApproved), string(models.ConferenceStatusModified)},
	},
}

type slotCount struct {
	n       int
	running bool
}

func (s *Store) takeSlot(sc mongo.SessionContext, claim store.SlotClaim, f slotField) (slotCount, int, error) {
	filter := bson.M{
		"_id":    claim.EntityID,
		"status": bson.M{"$in": []string{"approved", "modified"}},
		"$expr":  bson.M{"$lt": bson.A{"$" + f.count, "$" + f.quota}},
	}
	update := mongo.Pipeline{
		{{Key: "$set", Value: bson.D{
			{Key: f.count, Value: bson.D{{Key: "$add", Value: bson.A{"$" + f.count, 1}}}},
			{Key: "updated_at", Value: claim.At},
		}}},
		{{Key: "$set", Value: bson.D{
			{Key: "fills", Value: bson.D{{Key: "$and", Value: bson.A{
				bson.D{{Key: "$gte", Value: bson.A{"$" + f.count, "$" + f.quota}}},
				bson.D{{Key: "$in", Value: bson.A{"$status", f.fillable}}},
			}}}},
		}}},
		{{Key: "$set", Value: bson.D{
			{Key: "status", Value: bson.D{{Key: "$cond", Value: bson.A{"$fills", "running", "$status"}}}},
			{Key: "filled_from", Value: bson.D{{Key: "$cond", Value: bson.A{"$fills", "$status", "$filled_from"}}}},
		}}},
		{{Key: "$unset", Value: "fills"}},
	}
	res := s.col(f.collection).FindOneAndUpdate(sc, filter, update,
		options.FindOneAndUpdate().SetReturnDocument(options.After))
	if errors.Is(res.Err(), mongo.ErrNoDocuments) {
		n, err := s.col(f.collection).CountDocuments(sc, bson.M{"_id": claim.EntityID})
		if err != nil {
			return slotCount{}, 0, err
		}
		if n == 0 {
			return slotCount{}, 0, store.ErrNotFound
		}
		return slotCount{}, 0, store.ErrCapacityReached
	}
	if res.Err() != nil {
		return slotCount{}, 0, res.Err()
	}

	if claim.Kind == models.KindAd {
		var ad models.Advertisement
		if err := res.Decode(&ad); err != nil {
			return slotCount{}, 0, err
		}
		return slotCount{n: ad.AcceptReporterCount, running: ad.Status == models.AdStatusRunning}, ad.RequiredReporter, nil
	}
	var conf models.PaidConference
	if err := res.Decode(&conf); err != nil {
		return slotCount{}, 0, err
	}
	return slotCount{n: conf.AcceptedCount, running: conf.Status == models.ConferenceStatusRunning}, conf.NumberOfReporters, nil
}

func (s *Store) RemoveAssignment(ctx context.Context, kind models.AssignmentKind, entityID, reporterID primitive.ObjectID) (models.Assignment, error) {
	out, err := s.withTransaction(ctx, func(sc mongo.SessionContext) (interface{}, error) {
		filter := assignmentKey(kind, entityID, reporterID)
		filter["status"] = bson.M{"$ne": models.AssignmentCompleted}

		var a models.Assignment
		err := s.col(colAssignments).FindOneAndDelete(sc, filter).Decode(&a)
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, s.missOrConflict(sc, kind, entityID, reporterID)
		}
		if err != nil {
			return nil, err
		}
		if holdsSlot(a.Status) {
			if err := s.releaseSlot(sc, kind, entityID, time.Now()); err != nil {
				return nil, err
			}
		}
		return a, nil
	})
	if err != nil {
		return models.Assignment{}, err
	}
	return out.(models.Assignment), nil
}

// releaseSlot returns one unit of quota to the parent. A running parent
// drops back to the status it filled from.
func (s *Store) releaseSlot(ctx context.Context, kind models.AssignmentKind, entityID primitive.ObjectID, at time.Time) error {
	f, ok := slotFields[kind]
	if !ok {
		return nil
	}
	update := mongo.Pipeline{
		{{Key: "$set", Value: bson.D{
			{Key: f.count, Value: bson.D{{Key: "$subtract", Value: bson.A{"$" + f.count, 1}}}},
			{Key: "status", Value: bson.D{{Key: "$cond", Value: bson.A{
				bson.D{{Key: "$eq", Value: bson.A{"$status", "running"}}},
				bson.D{{Key: "$ifNull", Value: bson.A{"$filled_from", "approved"}}},
				"$status",
			}}}},
			{Key: "updated_at", Value: at},
		}}},
	}
	_, err := s.col(f.collection).UpdateOne(ctx, bson.M{"_id": entityID, f.count: bson.M{"$gt": 0}}, update)
	return err
}

func (s *Store) missOrConflict(ctx context.Context, kind models.AssignmentKind, entityID, reporterID primitive.ObjectID) error {
	n, err := s.col(colAssignments).CountDocuments(ctx, assignmentKey(kind, entityID, reporterID))
	if err != nil {
		return err
	}
	if n == 0 {
		return store.ErrNotFound
	}
	return store.ErrConflict
}

func holdsSlot(status models.AssignmentStatus) bool {
	switch status {
	case models.AssignmentAccepted, models.AssignmentSubmitted, models.AssignmentProofSubmitted, models.AssignmentProofRejected:
		return true
	}
	return false
}

func assignmentKey(kind models.AssignmentKind, entityID, reporterID primitive.ObjectID) bson.M {
	return bson.M{"kind": kind, "entity_id": entityID, "reporter_id": reporterID}
}

// proofClauses builds the $or branches for a proof status constraint. The
// empty status matches a row without a proof.
func proofClauses(statuses []models.ProofStatus) bson.A {
	clauses := bson.A{}
	named := make([]models.ProofStatus, 0, len(statuses))
	for _, st := range statuses {
		if st == "" {
			clauses = append(clauses, bson.M{"proof": nil})
			continue
		}
		named = append(named, st)
	}
	if len(named) > 0 {
		clauses = append(clauses, bson.M{"proof.status": bson.M{"$in": named}})
	}
	return clauses
}

func assignmentSet(p store.AssignmentPatch, at time.Time) bson.M {
	set := bson.M{"status": p.Status, "updated_at": at}
	if p.Accepted != nil {
		set["accepted"] = *p.Accepted
	}
	if p.AdProof != nil {
		set["ad_proof"] = *p.AdProof
	}
	if p.AcceptedAt != nil {
		set["accepted_at"] = *p.AcceptedAt
	}
	if p.RejectedAt != nil {
		set["rejected_at"] = *p.RejectedAt
	}
	if p.CompletedAt != nil {
		set["completed_at"] = *p.CompletedAt
	}
	if p.RejectNote != nil {
		set["reject_note"] = *p.RejectNote
	}
	if p.AdminRejectedBy != nil {
		set["admin_rejected_by"] = *p.AdminRejectedBy
	}
	if p.AdminRejectedAt != nil {
		set["admin_rejected_at"] = *p.AdminRejectedAt
	}
	if p.AdminRejectNote != nil {
		set["admin_reject_note"] = *p.AdminRejectNote
	}
	if p.Snapshot != nil {
		set["snapshot"] = *p.Snapshot
	}
	if p.Proof != nil {
		set["proof"] = *p.Proof
	}
	return set
}

func parentCollection(kind models.AssignmentKind) string {
	switch kind {
	case models.KindFreeConference:
		return colFree
	case models.KindPaidConference:
		return colPaid
	}
	return colAds
}

// ---------------- COUPONS ----------------

func (s *Store) CreateCoupon(ctx context.Context, coupon *models.Coupon) error {
	if coupon.ID.IsZero() {
		coupon.ID = primitive.NewObjectID()
	}
	coupon.Code = normalizeCode(coupon.Code)
	_, err := s.col(colCoupons).InsertOne(ctx, coupon)
	return mapErr(err)
}

func (s *Store) GetCouponByCode(ctx context.Context, code string) (models.Coupon, error) {
	return findOne[models.Coupon](ctx, s.col(colCoupons), bson.M{"code": normalizeCode(code)})
}

func (s *Store) ListCoupons(ctx context.Context) ([]models.Coupon, error) {
	return findAll[models.Coupon](ctx, s.col(colCoupons), bson.M{}, bson.D{{Key: "code", Value: 1}})
}

func (s *Store) RedeemCoupon(ctx context.Context, code string, now time.Time) (models.Coupon, error) {
	code = normalizeCode(code)
	filter := bson.M{
		"code":        code,
		"status":      models.CouponStatusActive,
		"valid_from":  bson.M{"$lte": now},
		"valid_until": bson.M{"$gte": now},
		"$or": bson.A{
			bson.M{"usage_limit": bson.M{"$lte": 0}},
			bson.M{"$expr": bson.M{"$lt": bson.A{"$used_count", "$usage_limit"}}},
		},
	}
	update := bson.M{
		"$inc": bson.M{"used_count": 1},
		"$set": bson.M{"updated_at": now},
	}
	var c models.Coupon
	err := s.col(colCoupons).FindOneAndUpdate(ctx, filter, update,
		options.FindOneAndUpdate().SetReturnDocument(options.After)).Decode(&c)
	if errors.Is(err, mongo.ErrNoDocuments) {
		if _, gerr := s.GetCouponByCode(ctx, code); gerr != nil {
			return models.Coupon{}, gerr
		}
		return models.Coupon{}, store.ErrConflict
	}
	return c, mapErr(err)
}

func (s *Store) ReleaseCoupon(ctx context.Context, code string) error {
	code = normalizeCode(code)
	res, err := s.col(colCoupons).UpdateOne(ctx,
		bson.M{"code": code, "used_count": bson.M{"$gt": 0}},
		bson.M{"$inc": bson.M{"used_count": -1}},
	)
	if err != nil {
		return mapErr(err)
	}
	if res.MatchedCount == 0 {
		_, gerr := s.GetCouponByCode(ctx, code)
		return gerr
	}
	return nil
}

// ---------------- PAYMENTS ----------------

func (s *Store) RecordPayment(ctx context.Context, p *models.PaymentHistory) error {
	if p.ID.IsZero() {
		p.ID = primitive.NewObjectID()
	}
	_, err := s.col(colPayments).InsertOne(ctx, p)
	return mapErr(err)
}

func (s *Store) GetPayment(ctx context.Context, paymentID string) (models.PaymentHistory, error) {
	return findOne[models.PaymentHistory](ctx, s.col(colPayments), bson.M{"payment_id": paymentID})
}

func (s *Store) DeletePayment(ctx context.Context, paymentID string) error {
	res, err := s.col(colPayments).DeleteOne(ctx, bson.M{"payment_id": paymentID})
	if err != nil {
		return mapErr(err)
	}
	if res.DeletedCount == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) ListPayments(ctx context.Context, userID primitive.ObjectID) ([]models.PaymentHistory, error) {
	return findAll[models.PaymentHistory](ctx, s.col(colPayments), bson.M{"user_id": userID}, newestFirst)
}

// ---------------- HELPERS ----------------

var (
	newestFirst   = bson.D{{Key: "created_at", Value: -1}}
	targetedOrder = bson.D{{Key: "targeted_at", Value: 1}, {Key: "reporter_id", Value: 1}}
)

func (s *Store) withTransaction(ctx context.Context, fn func(sc mongo.SessionContext) (interface{}, error)) (interface{}, error) {
	session, err := s.client.StartSession()
	if err != nil {
		return nil, fmt.Errorf("start session: %w", err)
	}
	defer session.EndSession(ctx)
	return session.WithTransaction(ctx, fn)
}

func findOne[T any](ctx context.Context, coll *mongo.Collection, filter bson.M) (T, error) {
	var out T
	if err := coll.FindOne(ctx, filter).Decode(&out); err != nil {
		var zero T
		return zero, mapErr(err)
	}
	return out, nil
}

func findAll[T any](ctx context.Context, coll *mongo.Collection, filter bson.M, sort bson.D) ([]T, error) {
	cursor, err := coll.Find(ctx, filter, options.Find().SetSort(sort))
	if err != nil {
		return nil, mapErr(err)
	}
	defer cursor.Close(ctx)

	out := make([]T, 0)
	if err := cursor.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// patchOne sets fields on the document while its status is one of expected.
func patchOne[T any](ctx context.Context, coll *mongo.Collection, id primitive.ObjectID, expected []string, set bson.M) (T, error) {
	var out T
	filter := bson.M{"_id": id}
	if len(expected) > 0 {
		filter["status"] = bson.M{"$in": expected}
	}
	err := coll.FindOneAndUpdate(ctx, filter, bson.M{"$set": set},
		options.FindOneAndUpdate().SetReturnDocument(options.After)).Decode(&out)
	if errors.Is(err, mongo.ErrNoDocuments) {
		n, cerr := coll.CountDocuments(ctx, bson.M{"_id": id})
		if cerr != nil {
			return out, cerr
		}
		if n == 0 {
			return out, store.ErrNotFound
		}
		return out, store.ErrConflict
	}
	return out, mapErr(err)
}

func statusStrings[T ~string](in []T) []string {
	out := make([]string, len(in))
	for i, s := range in {
		out[i] = string(s)
	}
	return out
}

func normalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

func mapErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, mongo.ErrNoDocuments):
		return store.ErrNotFound
	case mongo.IsDuplicateKeyError(err):
		return store.ErrDuplicate
	}
	return err
}
