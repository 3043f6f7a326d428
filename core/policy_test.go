package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// scenario 6: Saturation(2); three consecutive calls return true, true,
// false; after reset the next call returns true.
func TestSaturationAdmitsExactlyN(t *testing.T) {
	p := NewSaturation(2)
	req := &StageRequest{}

	assert.True(t, p.ShouldInsert(req))
	assert.True(t, p.ShouldInsert(req))
	assert.False(t, p.ShouldInsert(req))

	p.Reset()
	assert.True(t, p.ShouldInsert(req))
}

func TestPerSampleLimitIsPerSampleId(t *testing.T) {
	p := NewPerSampleLimit(1)

	reqA := &StageRequest{Meta: FlowMetadata{SampleId: "a"}}
	reqB := &StageRequest{Meta: FlowMetadata{SampleId: "b"}}

	assert.True(t, p.ShouldInsert(reqA))
	assert.False(t, p.ShouldInsert(reqA))
	assert.True(t, p.ShouldInsert(reqB))
}

func TestAlwaysAndNeverInsert(t *testing.T) {
	assert.True(t, AlwaysInsert{}.ShouldInsert(&StageRequest{}))
	assert.False(t, NeverInsert{}.ShouldInsert(&StageRequest{}))
}

func TestAllIsConjunction(t *testing.T) {
	sat := NewSaturation(1)
	policy := All{Policies: []InsertionPolicy{AlwaysInsert{}, sat}}

	req := &StageRequest{}
	assert.True(t, policy.ShouldInsert(req))
	assert.False(t, policy.ShouldInsert(req))
}

func TestAnyIsDisjunction(t *testing.T) {
	policy := Any{Policies: []InsertionPolicy{NeverInsert{}, AlwaysInsert{}}}
	assert.True(t, policy.ShouldInsert(&StageRequest{}))
}
