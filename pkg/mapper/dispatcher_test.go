package mapper

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/mapperd/pkg/mapblob"
)

func TestValidateVolumeName_RejectsOverLong(t *testing.T) {
	name := strings.Repeat("a", mapblob.MaxVolumeLen+1)
	err := validateVolumeName("MAPR", name)
	require.Error(t, err)

	var mapperErr *Error
	require.ErrorAs(t, err, &mapperErr)
	assert.Equal(t, KindProtocol, mapperErr.Kind)
}

func TestValidateVolumeName_AcceptsAtLimit(t *testing.T) {
	name := strings.Repeat("a", mapblob.MaxVolumeLen)
	assert.NoError(t, validateVolumeName("MAPR", name))
}

func TestDispatcher_RejectsOverLongVolume(t *testing.T) {
	h := newTestHarness()
	d := NewDispatcher(h.service)

	name := strings.Repeat("v", mapblob.MaxVolumeLen+1)
	_, err := d.Dispatch(context.Background(), &Request{Kind: OpMAPR, Volume: name, Size: 1})
	require.Error(t, err)

	var mapperErr *Error
	require.ErrorAs(t, err, &mapperErr)
	assert.Equal(t, KindProtocol, mapperErr.Kind)
}

func TestDispatcher_RejectsOverLongCloneChild(t *testing.T) {
	h := newTestHarness()
	d := NewDispatcher(h.service)
	h.preloadV0(t, "parentvol", mapblob.Record{Digest: digest(0x01)})

	childName := strings.Repeat("c", mapblob.MaxVolumeLen+1)
	_, err := d.Dispatch(context.Background(), &Request{Kind: OpClone, Volume: "parentvol", ChildVolume: childName, Size: SizeUnknown})
	require.Error(t, err)

	var mapperErr *Error
	require.ErrorAs(t, err, &mapperErr)
	assert.Equal(t, KindProtocol, mapperErr.Kind)
}
