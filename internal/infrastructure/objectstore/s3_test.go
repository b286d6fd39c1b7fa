package objectstore

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestScopePrefix(t *testing.T) {
	p := &S3ScopeProvisioner{prefix: "tenants"}
	assert.Equal(t, "tenants/t-1/", p.ScopePrefix("t-1"))

	bare := &S3ScopeProvisioner{}
	assert.Equal(t, "t-1/", bare.ScopePrefix("t-1"))
}
