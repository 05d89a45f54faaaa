package event

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCompareIDs(t *testing.T) {
	assert := assert.New(t)

	assert.Equal(0, CompareIDs("123", "123"))
	assert.Equal(-1, CompareIDs("99", "100"))
	assert.Equal(1, CompareIDs("110000000000000001", "109999999999999999"))
	assert.Equal(-1, CompareIDs("abc", "abd"))
}

func TestNewerThan(t *testing.T) {
	assert := assert.New(t)

	now := time.Now()
	p1 := Post{ID: "1", CreatedAt: now}
	p2 := Post{ID: "2", CreatedAt: now}
	p3 := Post{ID: "3", CreatedAt: now.Add(-time.Minute)}

	assert.True(NewerThan(&p2, &p1))
	assert.False(NewerThan(&p1, &p2))
	assert.True(NewerThan(&p1, &p3))
	assert.False(NewerThan(&p3, &p2))
}
