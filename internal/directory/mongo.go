package directory

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoRepo is the MongoDB-backed Repository. Records keep a string "id"
// field so API identifiers stay stable across storage backends.
type MongoRepo struct {
	customers   *mongo.Collection
	counties    *mongo.Collection
	contractors *mongo.Collection
}

func NewMongoRepo(db *mongo.Database) *MongoRepo {
	r := &MongoRepo{
		customers:   db.Collection("customers"),
		counties:    db.Collection("counties"),
		contractors: db.Collection("contractors"),
	}
	idx := mongo.IndexModel{Keys: bson.D{{Key: "id", Value: 1}}, Options: options.Index().SetUnique(true)}
	for _, col := range []*mongo.Collection{r.customers, r.counties, r.contractors} {
		col.Indexes().CreateOne(context.Background(), idx)
	}
	return r
}

func (m *MongoRepo) CreateCustomer(ctx context.Context, c *Customer) (*Customer, error) {
	cp := *c
	cp.ID = uuid.NewString()
	now := time.Now().UTC()
	cp.CreatedAt = now
	cp.UpdatedAt = now
	if _, err := m.customers.InsertOne(ctx, &cp); err != nil {
		return nil, fmt.Errorf("insert customer: %w", err)
	}
	return &cp, nil
}

func (m *MongoRepo) GetCustomer(ctx context.Context, id string) (*Customer, error) {
	var c Customer
	if err := m.customers.FindOne(ctx, bson.M{"id": id}).Decode(&c); err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &c, nil
}

func (m *MongoRepo) ListCustomers(ctx context.Context) ([]*Customer, error) {
	cur, err := m.customers.Find(ctx, bson.M{})
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)
	out := []*Customer{}
	for cur.Next(ctx) {
		var c Customer
		if err := cur.Decode(&c); err != nil {
			return nil, err
		}
		out = append(out, &c)
	}
	return out, cur.Err()
}

func (m *MongoRepo) CreateCounty(ctx context.Context, co *County) (*County, error) {
	cp := *co
	cp.ID = uuid.NewString()
	now := time.Now().UTC()
	cp.CreatedAt = now
	cp.UpdatedAt = now
	if _, err := m.counties.InsertOne(ctx, &cp); err != nil {
		return nil, fmt.Errorf("insert county: %w", err)
	}
	return &cp, nil
}

func (m *MongoRepo) GetCounty(ctx context.Context, id string) (*County, error) {
	var co County
	if err := m.counties.FindOne(ctx, bson.M{"id": id}).Decode(&co); err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &co, nil
}

func (m *MongoRepo) ListCounties(ctx context.Context) ([]*County, error) {
	cur, err := m.counties.Find(ctx, bson.M{})
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)
	out := []*County{}
	for cur.Next(ctx) {
		var co County
		if err := cur.Decode(&co); err != nil {
			return nil, err
		}
		out = append(out, &co)
	}
	return out, cur.Err()
}

func (m *MongoRepo) CreateContractor(ctx context.Context, ct *Contractor) (*Contractor, error) {
	cp := *ct
	cp.ID = uuid.NewString()
	now := time.Now().UTC()
	cp.CreatedAt = now
	cp.UpdatedAt = now
	if _, err := m.contractors.InsertOne(ctx, &cp); err != nil {
		return nil, fmt.Errorf("insert contractor: %w", err)
	}
	return &cp, nil
}

func (m *MongoRepo) GetContractor(ctx context.Context, id string) (*Contractor, error) {
	var ct Contractor
	if err := m.contractors.FindOne(ctx, bson.M{"id": id}).Decode(&ct); err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &ct, nil
}

func (m *MongoRepo) ListContractors(ctx context.Context) ([]*Contractor, error) {
	cur, err := m.contractors.Find(ctx, bson.M{})
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)
	out := []*Contractor{}
	for cur.Next(ctx) {
		var ct Contractor
		if err := cur.Decode(&ct); err != nil {
			return nil, err
		}
		out = append(out, &ct)
	}
	return out, cur.Err()
}
