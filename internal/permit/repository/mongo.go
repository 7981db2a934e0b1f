package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/permitflow/go-services/internal/permit"
)

// MongoRepo implements Repository on MongoDB. Packages, documents and billing
// submissions live in separate collections keyed by an "id" string field.
// Status transitions use conditional updates so that concurrent writers
// resolve to a single winner; the unique index on billing submission
// packageId backstops the one-record-per-package invariant.
type MongoRepo struct {
	packages    *mongo.Collection
	documents   *mongo.Collection
	submissions *mongo.Collection
}

func NewMongoRepo(db *mongo.Database) *MongoRepo {
	packages := db.Collection("permit_packages")
	documents := db.Collection("permit_documents")
	submissions := db.Collection("billing_submissions")

	unique := func(col *mongo.Collection, key string) {
		idx := mongo.IndexModel{Keys: bson.D{{Key: key, Value: 1}}, Options: options.Index().SetUnique(true)}
		col.Indexes().CreateOne(context.Background(), idx)
	}
	unique(packages, "id")
	unique(documents, "id")
	unique(submissions, "id")
	unique(submissions, "packageId")
	documents.Indexes().CreateOne(context.Background(),
		mongo.IndexModel{Keys: bson.D{{Key: "packageId", Value: 1}}})

	return &MongoRepo{packages: packages, documents: documents, submissions: submissions}
}

func (m *MongoRepo) CreatePackage(ctx context.Context, p *permit.Package) (string, error) {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if p.Status == "" {
		p.Status = permit.StatusDraft
	}
	now := time.Now().UTC()
	p.CreatedAt = now
	p.UpdatedAt = now
	if _, err := m.packages.InsertOne(ctx, p); err != nil {
		return "", fmt.Errorf("insert package: %w", err)
	}
	return p.ID, nil
}

func (m *MongoRepo) GetPackage(ctx context.Context, id string) (*permit.Package, error) {
	var p permit.Package
	err := m.packages.FindOne(ctx, bson.M{"id": id}).Decode(&p)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, permit.ErrNotFound
		}
		return nil, err
	}
	return &p, nil
}

func (m *MongoRepo) ListPackages(ctx context.Context, filter ListFilter) ([]*permit.Package, error) {
	query := bson.M{}
	if filter.CustomerID != "" {
		query["customerId"] = filter.CustomerID
	}
	if filter.Status != "" {
		query["status"] = filter.Status
	}
	cur, err := m.packages.Find(ctx, query, options.Find().SetSort(bson.D{{Key: "createdAt", Value: 1}}))
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)
	out := []*permit.Package{}
	for cur.Next(ctx) {
		var p permit.Package
		if err := cur.Decode(&p); err != nil {
			return nil, err
		}
		out = append(out, &p)
	}
	return out, cur.Err()
}

func transitionSet(to permit.Status, at time.Time, actor string) bson.M {
	set := bson.M{"status": to, "updatedAt": at}
	switch to {
	case permit.StatusReadyForBilling:
		set["readyForBillingAt"] = at
		set["readyForBillingBy"] = actor
	case permit.StatusSubmittedToBilling:
		set["submittedToBillingAt"] = at
		set["submittedToBillingBy"] = actor
	}
	return set
}

func (m *MongoRepo) TransitionStatus(ctx context.Context, id string, from, to permit.Status, at time.Time, actor string) error {
	res, err := m.packages.UpdateOne(ctx,
		bson.M{"id": id, "status": from},
		bson.M{"$set": transitionSet(to, at, actor)})
	if err != nil {
		return fmt.Errorf("transition package: %w", err)
	}
	if res.MatchedCount == 0 {
		return m.classifyMiss(ctx, id)
	}
	return nil
}

// classifyMiss distinguishes a missing package from a lost conditional
// update after a zero-match write.
func (m *MongoRepo) classifyMiss(ctx context.Context, id string) error {
	n, err := m.packages.CountDocuments(ctx, bson.M{"id": id})
	if err != nil {
		return err
	}
	if n == 0 {
		return permit.ErrNotFound
	}
	return permit.ErrStatusConflict
}

func (m *MongoRepo) CreateDocument(ctx context.Context, d *permit.Document) (string, error) {
	if _, err := m.GetPackage(ctx, d.PackageID); err != nil {
		return "", err
	}
	if d.ID == "" {
		d.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	d.CreatedAt = now
	d.UpdatedAt = now
	if _, err := m.documents.InsertOne(ctx, d); err != nil {
		return "", fmt.Errorf("insert document: %w", err)
	}
	return d.ID, nil
}

func (m *MongoRepo) GetDocument(ctx context.Context, id string) (*permit.Document, error) {
	var d permit.Document
	err := m.documents.FindOne(ctx, bson.M{"id": id}).Decode(&d)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, permit.ErrNotFound
		}
		return nil, err
	}
	return &d, nil
}

func (m *MongoRepo) ListDocuments(ctx context.Context, packageID string) ([]*permit.Document, error) {
	cur, err := m.documents.Find(ctx, bson.M{"packageId": packageID},
		options.Find().SetSort(bson.D{{Key: "createdAt", Value: 1}}))
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)
	out := []*permit.Document{}
	for cur.Next(ctx) {
		var d permit.Document
		if err := cur.Decode(&d); err != nil {
			return nil, err
		}
		out = append(out, &d)
	}
	return out, cur.Err()
}

func (m *MongoRepo) DeleteDocument(ctx context.Context, id string) error {
	res, err := m.documents.DeleteOne(ctx, bson.M{"id": id})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return permit.ErrNotFound
	}
	return nil
}

func (m *MongoRepo) SetDocumentVerification(ctx context.Context, id string, verified bool, actor string, at time.Time) (*permit.Document, error) {
	set := bson.M{"verifiedComplete": verified, "updatedAt": at}
	unset := bson.M{}
	if verified {
		set["verifiedAt"] = at
		set["verifiedBy"] = actor
	} else {
		unset["verifiedAt"] = ""
		unset["verifiedBy"] = ""
	}
	update := bson.M{"$set": set}
	if len(unset) > 0 {
		update["$unset"] = unset
	}
	res, err := m.documents.UpdateOne(ctx, bson.M{"id": id}, update)
	if err != nil {
		return nil, fmt.Errorf("set verification: %w", err)
	}
	if res.MatchedCount == 0 {
		return nil, permit.ErrNotFound
	}
	return m.GetDocument(ctx, id)
}

func (m *MongoRepo) ReplaceDocumentFile(ctx context.Context, id string, file permit.FileInfo, at time.Time) (*permit.Document, error) {
	update := bson.M{
		"$set": bson.M{
			"fileName":         file.FileName,
			"sizeBytes":        file.SizeBytes,
			"contentType":      file.ContentType,
			"storageKey":       file.StorageKey,
			"verifiedComplete": false,
			"updatedAt":        at,
		},
		"$unset": bson.M{"verifiedAt": "", "verifiedBy": ""},
	}
	res, err := m.documents.UpdateOne(ctx, bson.M{"id": id}, update)
	if err != nil {
		return nil, fmt.Errorf("replace document file: %w", err)
	}
	if res.MatchedCount == 0 {
		return nil, permit.ErrNotFound
	}
	return m.GetDocument(ctx, id)
}

func (m *MongoRepo) SubmitToBilling(ctx context.Context, id, actor string, at time.Time) (*permit.BillingSubmission, error) {
	res, err := m.packages.UpdateOne(ctx,
		bson.M{"id": id, "status": permit.StatusReadyForBilling},
		bson.M{"$set": transitionSet(permit.StatusSubmittedToBilling, at, actor)})
	if err != nil {
		return nil, fmt.Errorf("submit package: %w", err)
	}
	if res.MatchedCount == 0 {
		return nil, m.classifyMiss(ctx, id)
	}

	sub := &permit.BillingSubmission{
		ID:          uuid.NewString(),
		PackageID:   id,
		SubmittedBy: actor,
		SubmittedAt: at,
	}
	if _, err := m.submissions.InsertOne(ctx, sub); err != nil {
		// roll the status back so the package never sits in
		// submitted_to_billing without its submission record
		m.packages.UpdateOne(ctx, bson.M{"id": id},
			bson.M{
				"$set":   bson.M{"status": permit.StatusReadyForBilling, "updatedAt": at},
				"$unset": bson.M{"submittedToBillingAt": "", "submittedToBillingBy": ""},
			})
		return nil, fmt.Errorf("insert billing submission: %w", err)
	}
	return sub, nil
}

func (m *MongoRepo) GetBillingSubmission(ctx context.Context, packageID string) (*permit.BillingSubmission, error) {
	var s permit.BillingSubmission
	err := m.submissions.FindOne(ctx, bson.M{"packageId": packageID}).Decode(&s)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, permit.ErrNotFound
		}
		return nil, err
	}
	return &s, nil
}
