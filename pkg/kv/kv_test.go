package kv_test

import (
	"testing"

	"github.com/mistifyio/atmosphere/pkg/kv"
	_ "github.com/mistifyio/atmosphere/pkg/kv/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	store, err := kv.New("memory://")
	require.NoError(t, err)
	assert.NoError(t, store.Ping())

	_, err = kv.New("zookeeper://localhost:2181")
	assert.Error(t, err)

	_, err = kv.New("%zz://")
	assert.Error(t, err)
}

func TestRegisterTwice(t *testing.T) {
	assert.Panics(t, func() {
		kv.Register("memory", func(string) (kv.KV, error) { return nil, nil })
	})
}

func TestEventString(t *testing.T) {
	assert.Equal(t, "Create", kv.Create.String())
	assert.Equal(t, "None", kv.EventType(42).String())

	e := kv.Event{Key: "/a", Type: kv.Update, Value: kv.Value{Data: []byte("v"), Index: 3}}
	assert.Equal(t, "{Key:/a, Type:Update, Index: 3, Value: v}", e.GoString())
}
