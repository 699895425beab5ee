package filter

import (
	"errors"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var testSchema = Schema{
	"herbName":   {Column: "herb_name", Type: TypeString},
	"status":     {Column: "status", Type: TypeString},
	"quantityKg": {Column: "quantity_kg", Type: TypeNumber},
}

type harvest struct {
	ID         uint
	HerbName   string
	Status     string
	QuantityKg float64
}

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&harvest{}))
	require.NoError(t, db.Create([]harvest{
		{HerbName: "Tulsi", Status: "COLLECTED", QuantityKg: 2},
		{HerbName: "Holy Tulsi", Status: "IN_STORAGE", QuantityKg: 12.5},
		{HerbName: "Neem", Status: "COLLECTED", QuantityKg: 40},
	}).Error)
	return db
}

func TestParse(t *testing.T) {
	e, err := Parse(`status = 'COLLECTED' and quantityKg >= 5.5`)
	require.NoError(t, err)
	require.Len(t, e.Terms, 2)
	assert.Equal(t, "status", e.Terms[0].Property)
	assert.Equal(t, "=", e.Terms[0].Operator)
	require.NotNil(t, e.Terms[0].Value.String)
	assert.Equal(t, "quantityKg", e.Terms[1].Property)
	require.NotNil(t, e.Terms[1].Value.Number)
	assert.Equal(t, "5.5", *e.Terms[1].Value.Number)
}

func TestParse_Errors(t *testing.T) {
	for _, expr := range []string{
		"status",
		"status = ",
		"= 'x'",
		"status = 'x' AND",
		"status == 'x'",
		"status = 'x' OR herbName = 'y'",
	} {
		t.Run(expr, func(t *testing.T) {
			_, err := Parse(expr)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalid))
		})
	}
}

func TestCompile(t *testing.T) {
	f, err := Compile(`herbName LIKE "%tulsi%" AND quantityKg < -1`, testSchema)
	require.NoError(t, err)
	require.Len(t, f.Conditions, 2)
	assert.Equal(t, Condition{Property: "herbName", Column: "herb_name", Operator: "LIKE", Value: "%tulsi%"}, f.Conditions[0])
	assert.Equal(t, Condition{Property: "quantityKg", Column: "quantity_kg", Operator: "<", Value: -1.0}, f.Conditions[1])
}

func TestCompile_Empty(t *testing.T) {
	f, err := Compile("   ", testSchema)
	require.NoError(t, err)
	assert.True(t, f.Empty())
	assert.Equal(t, "", f.String())
}

func TestCompile_SchemaErrors(t *testing.T) {
	tests := []struct {
		name string
		expr string
		msg  string
	}{
		{"unknown property", `collectorId = 'u1'`, "unknown property"},
		{"string for number", `quantityKg = '5'`, "expects a number"},
		{"number for string", `status = 5`, "expects a quoted string"},
		{"like on number", `quantityKg LIKE 5`, "LIKE is not supported"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Compile(tt.expr, testSchema)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalid)
			assert.Contains(t, err.Error(), tt.msg)
		})
	}
}

func TestUnquote(t *testing.T) {
	assert.Equal(t, "it's", unquote(`'it\'s'`))
	assert.Equal(t, `say "hi"`, unquote(`"say \"hi\""`))
	assert.Equal(t, "", unquote(`''`))
}

func TestScope(t *testing.T) {
	db := setupTestDB(t)

	tests := []struct {
		expr string
		want []string
	}{
		{``, []string{"Tulsi", "Holy Tulsi", "Neem"}},
		{`status = 'COLLECTED'`, []string{"Tulsi", "Neem"}},
		{`status != 'COLLECTED'`, []string{"Holy Tulsi"}},
		{`herbName like '%TULSI%'`, []string{"Tulsi", "Holy Tulsi"}},
		{`herbName LIKE '%tulsi%' AND quantityKg > 10`, []string{"Holy Tulsi"}},
		{`quantityKg <= 12.5`, []string{"Tulsi", "Holy Tulsi"}},
	}
	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			f, err := Compile(tt.expr, testSchema)
			require.NoError(t, err)

			var names []string
			err = db.Model(&harvest{}).Scopes(f.Scope()).Order("id ASC").Pluck("herb_name", &names).Error
			require.NoError(t, err)
			assert.Equal(t, tt.want, names)
		})
	}
}

func TestFilterString(t *testing.T) {
	f, err := Compile(`status = 'COLLECTED' and quantityKg > 5`, testSchema)
	require.NoError(t, err)
	assert.Equal(t, `status = 'COLLECTED' AND quantityKg > 5`, f.String())

	again, err := Compile(f.String(), testSchema)
	require.NoError(t, err)
	assert.Equal(t, f.Conditions, again.Conditions)
}
