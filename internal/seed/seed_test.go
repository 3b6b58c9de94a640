package seed

import (
	"math/rand/v2"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atinyakov/crmkeeper/internal/models"
)

func TestDefault_IsStable(t *testing.T) {
	a := Default()
	b := Default()
	require.Len(t, a, 2)
	assert.Equal(t, a, b)

	a[0].Name = "mutated"
	assert.NotEqual(t, a[0].Name, Default()[0].Name, "Default must return fresh copies")
}

func TestGenerate_ProducesValidCustomers(t *testing.T) {
	now := time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)
	customers := Generate(30, now, rand.New(rand.NewPCG(1, 2)))
	require.Len(t, customers, 30)

	v := validator.New()
	ids := make(map[string]bool)
	for _, c := range customers {
		require.NoError(t, v.Struct(c), "customer %+v", c)
		assert.False(t, ids[c.ID], "duplicate id %s", c.ID)
		ids[c.ID] = true

		last, ok := c.LastContactDate()
		require.True(t, ok)
		assert.False(t, last.After(now))
		assert.True(t, now.Sub(last) < 61*24*time.Hour)
		require.Len(t, c.ActivityLog, 1)
	}
}

func TestDemoTenant(t *testing.T) {
	assert.Nil(t, NewDemoTenant("  "))

	demo := NewDemoTenant(" Demo@CRM.example ")
	require.NotNil(t, demo)
	assert.True(t, demo.Matches("demo@crm.example"))
	assert.True(t, demo.Matches("DEMO@crm.example"))
	assert.False(t, demo.Matches("other@crm.example"))

	var none *DemoTenant
	assert.False(t, none.Matches("demo@crm.example"))

	assert.Len(t, demo.Dataset(time.Now()), DefaultDemoCustomers)
	for _, c := range demo.Dataset(time.Now()) {
		assert.NotEqual(t, models.StatusInactive, c.Status)
	}
}
