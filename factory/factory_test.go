package factory

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nsm120/vle/dynamics"
	"github.com/nsm120/vle/kernelerr"
	"github.com/nsm120/vle/simulator"
)

type closeRecorder struct {
	name  string
	order *[]string
}

func (c closeRecorder) Close() error {
	*c.order = append(*c.order, c.name)
	return nil
}

func TestRegistryLookupMissingIsLoadError(t *testing.T) {
	r := NewRegistry()
	r.NoteSearchPath("/opt/vle/plugins/generator.so")
	r.NoteSearchPath("/home/user/.vle/plugins/generator.so")
	_, err := r.Lookup("generator")
	require.Error(t, err)
	var ke *kernelerr.KernelError
	require.True(t, errors.As(err, &ke))
	assert.Equal(t, kernelerr.Load, ke.Kind)
}

func TestRegistryRegisterAndLookup(t *testing.T) {
	r := NewRegistry()
	r.Register("generator", func(sim *simulator.Simulator) (dynamics.Dynamics, error) {
		return nil, nil
	})
	f, err := r.Lookup("generator")
	require.NoError(t, err)
	assert.NotNil(t, f)
}

func TestRegistryCloseOrderIsLIFO(t *testing.T) {
	r := NewRegistry()
	var order []string
	r.RegisterCloser(closeRecorder{name: "first", order: &order})
	r.RegisterCloser(closeRecorder{name: "second", order: &order})
	require.NoError(t, r.Close())
	assert.Equal(t, []string{"second", "first"}, order)
}

func TestRegistryNamesSorted(t *testing.T) {
	r := NewRegistry()
	r.Register("zeta", nil)
	r.Register("alpha", nil)
	assert.Equal(t, []string{"alpha", "zeta"}, r.Names())
}
