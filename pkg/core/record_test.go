package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSnapshot_MarkCompleted_IgnoresDuplicates(t *testing.T) {
	s := &Snapshot{TaskIDs: []string{"a", "b"}}

	assert.True(t, s.MarkCompleted("a"))
	assert.False(t, s.MarkCompleted("a"))
	assert.Equal(t, []string{"a"}, s.CompletedTaskIDs)
	assert.False(t, s.IsComplete())

	assert.True(t, s.MarkCompleted("b"))
	assert.True(t, s.IsComplete())
}

func TestSnapshot_EmptyIsComplete(t *testing.T) {
	s := &Snapshot{}
	assert.True(t, s.IsComplete())
}

func TestSnapshot_Clone(t *testing.T) {
	s := Snapshot{TaskIDs: []string{"a"}, CompletedTaskIDs: []string{}}
	c := s.Clone()
	c.MarkCompleted("a")
	c.TaskIDs[0] = "z"

	assert.Empty(t, s.CompletedTaskIDs)
	assert.Equal(t, "a", s.TaskIDs[0])
}
