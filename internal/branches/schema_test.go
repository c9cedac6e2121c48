package branches

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/branchdesk/internal/shared"
)

func ptr[T any](v T) *T { return &v }

func TestSchemaRejectsBlankRequiredFields(t *testing.T) {
	schema := NewSchema()

	cases := []struct {
		name   string
		input  BranchInput
		fields []string
	}{
		{"missing both", BranchInput{}, []string{"name", "address"}},
		{"whitespace name", BranchInput{Name: "   \t", Address: "123 Main St"}, []string{"name"}},
		{"whitespace address", BranchInput{Name: "Main St", Address: "\n "}, []string{"address"}},
		{"non positive manager", BranchInput{Name: "Main St", Address: "123 Main St", Manager: ptr(int64(0))}, []string{"manager"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := schema.Normalize(tc.input)
			require.Error(t, err)
			assert.True(t, errors.Is(err, shared.ErrValidation))

			var verr *shared.ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Len(t, verr.Fields, len(tc.fields))
			for _, f := range tc.fields {
				assert.Contains(t, verr.Fields, f)
			}
		})
	}
}

func TestSchemaNormalizesFields(t *testing.T) {
	schema := NewSchema()

	b, err := schema.Normalize(BranchInput{
		Name:    "  Main St ",
		Address: " 123 Main St  ",
		Phone:   " +1 555 0100 ",
		Email:   "  Foo@Bar.COM ",
		Manager: ptr(int64(9)),
	})
	require.NoError(t, err)

	assert.Equal(t, "Main St", b.Name)
	assert.Equal(t, "123 Main St", b.Address)
	assert.Equal(t, "+1 555 0100", b.Phone)
	assert.Equal(t, "foo@bar.com", b.Email)
	require.NotNil(t, b.Manager)
	assert.Equal(t, int64(9), *b.Manager)
	assert.True(t, b.IsActive)
	assert.True(t, b.CreatedAt.IsZero())
}

func TestSchemaKeepsExplicitInactive(t *testing.T) {
	b, err := NewSchema().Normalize(BranchInput{Name: "Depot", Address: "1 Dock Rd", IsActive: ptr(false)})
	require.NoError(t, err)
	assert.False(t, b.IsActive)
}

func TestSchemaDoesNotCheckEmailShape(t *testing.T) {
	b, err := NewSchema().Normalize(BranchInput{Name: "Depot", Address: "1 Dock Rd", Email: "NOT-AN-EMAIL"})
	require.NoError(t, err)
	assert.Equal(t, "not-an-email", b.Email)
}

func TestFoldName(t *testing.T) {
	assert.Equal(t, "sao paulo centro", FoldName("São Paulo Centro"))
	assert.Equal(t, "zurich", FoldName(" ZÜRICH "))
}

func BenchmarkFoldName(b *testing.B) {
	for i := 0; i < b.N; i++ {
		_ = FoldName("  Café de la Gare, Zürich Hbf  ")
	}
}

func BenchmarkNormalize(b *testing.B) {
	schema := NewSchema()
	in := BranchInput{Name: " Main St ", Address: "123 Main St", Email: "Ops@Example.com", Manager: ptr(int64(7))}
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		if _, err := schema.Normalize(in); err != nil {
			b.Fatal(err)
		}
	}
}
