package calendar

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nsm120/vle/event"
	"github.com/nsm120/vle/value"
)

func TestPutInternalReplacesPrior(t *testing.T) {
	c := New()
	c.PutInternal(1, value.Time(5))
	c.PutInternal(1, value.Time(10))
	assert.Equal(t, value.Time(10), c.TopTime())
	assert.Equal(t, 1, c.Stats().PendingInternal)
}

func TestPopBagGroupsBySimAndClassifies(t *testing.T) {
	c := New()
	c.PutInternal(1, value.Time(5))
	c.PutExternal(event.External{Time: value.Time(5), Target: 2, TargetPort: "in"})
	c.PutInternal(3, value.Time(5))
	c.PutExternal(event.External{Time: value.Time(5), Target: 3, TargetPort: "in"})

	at, bags, views, ok := c.PopBag()
	require.True(t, ok)
	assert.Equal(t, value.Time(5), at)
	require.Len(t, bags, 3)
	assert.Empty(t, views)

	assert.NotNil(t, bags[1].Internal)
	assert.Empty(t, bags[1].Externals)

	assert.Nil(t, bags[2].Internal)
	assert.Len(t, bags[2].Externals, 1)

	assert.True(t, bags[3].IsConfluent(), "sim 3 should be confluent (internal + external)")
	assert.True(t, c.Empty(), "table should be empty after popping its only bag")
}

func TestCancelRemovesOutstandingInternal(t *testing.T) {
	c := New()
	c.PutInternal(1, value.Time(5))
	c.Cancel(1)
	assert.True(t, c.Empty())
}

func TestTopTimeOrdering(t *testing.T) {
	c := New()
	c.PutInternal(1, value.Time(10))
	c.PutInternal(2, value.Time(3))
	c.PutInternal(3, value.Time(7))
	assert.Equal(t, value.Time(3), c.TopTime())

	at, _, _, ok := c.PopBag()
	require.True(t, ok)
	assert.Equal(t, value.Time(3), at)
	assert.Equal(t, value.Time(7), c.TopTime())
}

func TestPutObservationSchedulesAndReplacesPriorTick(t *testing.T) {
	c := New()
	c.PutObservation(0, value.Time(1))
	c.PutObservation(0, value.Time(2))
	assert.Equal(t, value.Time(2), c.TopTime())

	at, bags, views, ok := c.PopBag()
	require.True(t, ok)
	assert.Equal(t, value.Time(2), at)
	assert.Empty(t, bags)
	assert.Equal(t, []int{0}, views)
	assert.True(t, c.Empty())
}

func TestPopBagMergesObservationTicksWithSimulatorEvents(t *testing.T) {
	c := New()
	c.PutInternal(1, value.Time(5))
	c.PutObservation(0, value.Time(5))
	c.PutObservation(2, value.Time(5))

	_, bags, views, ok := c.PopBag()
	require.True(t, ok)
	require.Len(t, bags, 1)
	assert.Equal(t, []int{0, 2}, views, "observation indices should come back sorted")
}

func TestEmptyTableTopTimeIsPositiveInfinity(t *testing.T) {
	c := New()
	assert.Equal(t, value.PositiveInfinity, c.TopTime())
}
