package branches

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sync"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/odyssey-erp/branchdesk/internal/shared"
)

// Repository persists branches.
type Repository interface {
	Insert(ctx context.Context, branch Branch) (Branch, error)
	Get(ctx context.Context, id primitive.ObjectID) (Branch, error)
	List(ctx context.Context, filter ListFilter) ([]Branch, int64, error)
	// Update writes the named fields of branch plus updatedAt and returns
	// the stored document.
	Update(ctx context.Context, branch Branch, fields []string) (Branch, error)
}

// MongoRepository implements Repository on a MongoDB collection.
type MongoRepository struct {
	coll *mongo.Collection

	indexOnce sync.Once
	indexErr  error
}

// NewMongoRepository wraps coll.
func NewMongoRepository(coll *mongo.Collection) *MongoRepository {
	return &MongoRepository{coll: coll}
}

// IndexModels lists the indexes maintained on the branches collection.
func IndexModels() []mongo.IndexModel {
	return []mongo.IndexModel{
		{Keys: bson.D{{Key: "name", Value: 1}}, Options: options.Index().SetName("name_1")},
		{Keys: bson.D{{Key: "isActive", Value: 1}}, Options: options.Index().SetName("isActive_1")},
		{Keys: bson.D{{Key: "name_key", Value: 1}}, Options: options.Index().SetName("name_key_1")},
	}
}

// EnsureIndexes creates the collection indexes. Only the first call per
// repository talks to the server; later calls return the first outcome.
func (r *MongoRepository) EnsureIndexes(ctx context.Context) error {
	r.indexOnce.Do(func() {
		if _, err := r.coll.Indexes().CreateMany(ctx, IndexModels()); err != nil {
			r.indexErr = fmt.Errorf("branches: create indexes: %w", err)
		}
	})
	return r.indexErr
}

// Insert stores a new branch, assigning an id when missing.
func (r *MongoRepository) Insert(ctx context.Context, branch Branch) (Branch, error) {
	if branch.ID.IsZero() {
		branch.ID = primitive.NewObjectID()
	}
	if _, err := r.coll.InsertOne(ctx, branch); err != nil {
		return Branch{}, fmt.Errorf("branches: insert: %w", err)
	}
	return branch, nil
}

// Get fetches a branch by id.
func (r *MongoRepository) Get(ctx context.Context, id primitive.ObjectID) (Branch, error) {
	var branch Branch
	err := r.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&branch)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return Branch{}, shared.ErrNotFound
		}
		return Branch{}, fmt.Errorf("branches: get: %w", err)
	}
	return branch, nil
}

// List returns one page of branches and the total matching count.
func (r *MongoRepository) List(ctx context.Context, filter ListFilter) ([]Branch, int64, error) {
	filter = filter.normalized()
	query := listQuery(filter)

	total, err := r.coll.CountDocuments(ctx, query)
	if err != nil {
		return nil, 0, fmt.Errorf("branches: count: %w", err)
	}

	dir := 1
	if filter.SortDir == SortDesc {
		dir = -1
	}
	opts := options.Find().
		SetSort(bson.D{{Key: filter.SortBy, Value: dir}, {Key: "_id", Value: dir}}).
		SetSkip(int64((filter.Page - 1) * filter.Limit)).
		SetLimit(int64(filter.Limit))

	cursor, err := r.coll.Find(ctx, query, opts)
	if err != nil {
		return nil, 0, fmt.Errorf("branches: find: %w", err)
	}
	defer cursor.Close(ctx)

	items := make([]Branch, 0, filter.Limit)
	if err := cursor.All(ctx, &items); err != nil {
		return nil, 0, fmt.Errorf("branches: decode: %w", err)
	}
	return items, total, nil
}

// Update writes the named fields of branch and stamps updatedAt. Fields not
// named keep whatever the store holds. createdAt is never touched.
func (r *MongoRepository) Update(ctx context.Context, branch Branch, fields []string) (Branch, error) {
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	var stored Branch
	err := r.coll.FindOneAndUpdate(ctx, bson.M{"_id": branch.ID}, updateDocument(branch, fields), opts).Decode(&stored)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return Branch{}, shared.ErrNotFound
		}
		return Branch{}, fmt.Errorf("branches: update: %w", err)
	}
	return stored, nil
}

// updateDocument sets the named fields and unsets cleared optional ones.
func updateDocument(branch Branch, fields []string) bson.M {
	set := bson.M{"updatedAt": branch.UpdatedAt}
	unset := bson.M{}
	optional := func(key string, value any, present bool) {
		if present {
			set[key] = value
		} else {
			unset[key] = ""
		}
	}
	for _, field := range fields {
		switch field {
		case FieldName:
			set["name"] = branch.Name
			set["name_key"] = branch.NameKey
		case FieldAddress:
			set["address"] = branch.Address
		case FieldPhone:
			optional("phone", branch.Phone, branch.Phone != "")
		case FieldEmail:
			optional("email", branch.Email, branch.Email != "")
		case FieldManager:
			if branch.Manager != nil {
				set["manager"] = *branch.Manager
			} else {
				unset["manager"] = ""
			}
		case FieldIsActive:
			set["isActive"] = branch.IsActive
		}
	}

	update := bson.M{"$set": set}
	if len(unset) > 0 {
		update["$unset"] = unset
	}
	return update
}

func listQuery(filter ListFilter) bson.M {
	query := bson.M{}
	if filter.IsActive != nil {
		query["isActive"] = *filter.IsActive
	}
	if filter.Search != "" {
		query["name_key"] = primitive.Regex{Pattern: regexp.QuoteMeta(FoldName(filter.Search))}
	}
	return query
}

var _ Repository = (*MongoRepository)(nil)
