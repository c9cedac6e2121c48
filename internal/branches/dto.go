package branches

import (
	"encoding/json"
	"strings"
)

// BranchInput is the caller-settable part of a branch. Timestamps and the id
// are system managed and deliberately absent.
type BranchInput struct {
	Name     string `json:"name"`
	Address  string `json:"address"`
	Phone    string `json:"phone,omitempty"`
	Email    string `json:"email,omitempty"`
	Manager  *int64 `json:"manager,omitempty"`
	IsActive *bool  `json:"isActive,omitempty"`
}

// BranchPatch is a partial update. Nil fields keep the stored value.
type BranchPatch struct {
	Name     *string    `json:"name,omitempty"`
	Address  *string    `json:"address,omitempty"`
	Phone    *string    `json:"phone,omitempty"`
	Email    *string    `json:"email,omitempty"`
	Manager  OptionalID `json:"manager"`
	IsActive *bool      `json:"isActive,omitempty"`
}

// Mutable branch fields, named as in the stored document.
const (
	FieldName     = "name"
	FieldAddress  = "address"
	FieldPhone    = "phone"
	FieldEmail    = "email"
	FieldManager  = "manager"
	FieldIsActive = "isActive"
)

// Fields lists the members present in p, in document order.
func (p BranchPatch) Fields() []string {
	var fields []string
	if p.Name != nil {
		fields = append(fields, FieldName)
	}
	if p.Address != nil {
		fields = append(fields, FieldAddress)
	}
	if p.Phone != nil {
		fields = append(fields, FieldPhone)
	}
	if p.Email != nil {
		fields = append(fields, FieldEmail)
	}
	if p.Manager.Set {
		fields = append(fields, FieldManager)
	}
	if p.IsActive != nil {
		fields = append(fields, FieldIsActive)
	}
	return fields
}

// Apply overlays p on in.
func (p BranchPatch) Apply(in BranchInput) BranchInput {
	if p.Name != nil {
		in.Name = *p.Name
	}
	if p.Address != nil {
		in.Address = *p.Address
	}
	if p.Phone != nil {
		in.Phone = *p.Phone
	}
	if p.Email != nil {
		in.Email = *p.Email
	}
	if p.Manager.Set {
		in.Manager = p.Manager.Value
	}
	if p.IsActive != nil {
		active := *p.IsActive
		in.IsActive = &active
	}
	return in
}

// OptionalID distinguishes an absent JSON member from an explicit null.
type OptionalID struct {
	Set   bool
	Value *int64
}

// UnmarshalJSON implements json.Unmarshaler.
func (o *OptionalID) UnmarshalJSON(data []byte) error {
	o.Set = true
	if strings.TrimSpace(string(data)) == "null" {
		o.Value = nil
		return nil
	}
	var v int64
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	o.Value = &v
	return nil
}

// MarshalJSON implements json.Marshaler.
func (o OptionalID) MarshalJSON() ([]byte, error) {
	if !o.Set || o.Value == nil {
		return []byte("null"), nil
	}
	return json.Marshal(*o.Value)
}

// Sort fields accepted by List.
const (
	SortByName      = "name"
	SortByCreatedAt = "createdAt"
	SortByUpdatedAt = "updatedAt"

	SortAsc  = "asc"
	SortDesc = "desc"

	DefaultPage  = 1
	DefaultLimit = 20
	MaxLimit     = 100
	// MaxPage bounds the skip sent to the store.
	MaxPage = 10000
)

// ListFilter narrows and pages List results.
type ListFilter struct {
	IsActive *bool
	Search   string
	Page     int
	Limit    int
	SortBy   string
	SortDir  string
}

func (f ListFilter) normalized() ListFilter {
	if f.Page < 1 {
		f.Page = DefaultPage
	}
	if f.Page > MaxPage {
		f.Page = MaxPage
	}
	if f.Limit < 1 {
		f.Limit = DefaultLimit
	}
	if f.Limit > MaxLimit {
		f.Limit = MaxLimit
	}
	switch f.SortBy {
	case SortByName, SortByCreatedAt, SortByUpdatedAt:
	default:
		f.SortBy = SortByName
	}
	if f.SortDir != SortDesc {
		f.SortDir = SortAsc
	}
	f.Search = strings.TrimSpace(f.Search)
	return f
}

// Page is one page of List results.
type Page struct {
	Items []Branch `json:"items"`
	Total int64    `json:"total"`
	Page  int      `json:"page"`
	Limit int      `json:"limit"`
}
