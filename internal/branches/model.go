package branches

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// CollectionName is the MongoDB collection holding branch documents.
const CollectionName = "branches"

// Branch is a physical or organizational location.
// Manager is a weak reference to users.id: the branch does not own the user
// and nothing cascades between the two.
type Branch struct {
	ID        primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Name      string             `bson:"name" json:"name"`
	NameKey   string             `bson:"name_key" json:"-"`
	Address   string             `bson:"address" json:"address"`
	Phone     string             `bson:"phone,omitempty" json:"phone,omitempty"`
	Email     string             `bson:"email,omitempty" json:"email,omitempty"`
	Manager   *int64             `bson:"manager,omitempty" json:"manager,omitempty"`
	IsActive  bool               `bson:"isActive" json:"isActive"`
	CreatedAt time.Time          `bson:"createdAt" json:"createdAt"`
	UpdatedAt time.Time          `bson:"updatedAt" json:"updatedAt"`
}

// Input returns the caller-settable view of b.
func (b Branch) Input() BranchInput {
	active := b.IsActive
	var manager *int64
	if b.Manager != nil {
		id := *b.Manager
		manager = &id
	}
	return BranchInput{
		Name:     b.Name,
		Address:  b.Address,
		Phone:    b.Phone,
		Email:    b.Email,
		Manager:  manager,
		IsActive: &active,
	}
}

func sameManager(a, b *int64) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}
