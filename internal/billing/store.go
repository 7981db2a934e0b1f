package billing

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/permitflow/go-services/internal/database"
)

// Handoff is the snapshot written for the billing system when a package is
// submitted. It carries everything billing needs so that side never reads
// the permit collections directly.
type Handoff struct {
	SubmissionID string            `bson:"submissionId" json:"submissionId"`
	PackageID    string            `bson:"packageId" json:"packageId"`
	CustomerID   string            `bson:"customerId" json:"customerId"`
	CountyID     string            `bson:"countyId" json:"countyId"`
	Title        string            `bson:"title" json:"title"`
	PermitType   string            `bson:"permitType" json:"permitType"`
	SubmittedBy  string            `bson:"submittedBy" json:"submittedBy"`
	SubmittedAt  time.Time         `bson:"submittedAt" json:"submittedAt"`
	Documents    []HandoffDocument `bson:"documents" json:"documents"`
}

// HandoffDocument is the per-document inventory line in a handoff.
type HandoffDocument struct {
	DocumentID string `bson:"documentId" json:"documentId"`
	Category   string `bson:"category" json:"category"`
	FileName   string `bson:"fileName" json:"fileName"`
	StorageKey string `bson:"storageKey" json:"storageKey"`
}

// SaveHandoff persists (upsert) a handoff snapshot over a short-lived
// connection. If mongoURI is empty the function is a no-op; memory-backed
// deployments have no billing consumer.
func SaveHandoff(ctx context.Context, mongoURI, databaseName string, h *Handoff) error {
	if mongoURI == "" {
		return nil
	}
	client, err := database.ConnectMongo(ctx, mongoURI, 5*time.Second)
	if err != nil {
		return fmt.Errorf("connect mongo: %w", err)
	}
	defer client.Disconnect(ctx)

	col := client.Database(databaseName).Collection("billing_handoffs")
	filter := bson.M{"submissionId": h.SubmissionID}
	opts := options.Update().SetUpsert(true)
	if _, err := col.UpdateOne(ctx, filter, bson.M{"$set": h}, opts); err != nil {
		return fmt.Errorf("save billing handoff: %w", err)
	}
	return nil
}

// LoadHandoff fetches a handoff by submission id. Returns nil when not found.
func LoadHandoff(ctx context.Context, mongoURI, databaseName, submissionID string) (*Handoff, error) {
	if mongoURI == "" {
		return nil, nil
	}
	client, err := database.ConnectMongo(ctx, mongoURI, 5*time.Second)
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	defer client.Disconnect(ctx)
	col := client.Database(databaseName).Collection("billing_handoffs")
	var h Handoff
	if err := col.FindOne(ctx, bson.M{"submissionId": submissionID}).Decode(&h); err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, nil
		}
		return nil, err
	}
	return &h, nil
}
