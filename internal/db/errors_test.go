package db

import (
	"context"
	"database/sql/driver"
	"errors"
	"fmt"
	"io"
	"net"
	"testing"

	mssql "github.com/microsoft/go-mssqldb"
	"github.com/stretchr/testify/assert"

	"github.com/heriberto777/core-app-sub000/internal/entity"
)

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "dial tcp: operation timed out" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

var _ net.Error = timeoutErr{}

// TestClassify validates the driver-error taxonomy mapping.
func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		kind entity.Kind
	}{
		{"nil", nil, entity.Kind("")},
		{"duplicate index 2601", mssql.Error{Number: 2601}, entity.KindDuplicate},
		{"duplicate key 2627", mssql.Error{Number: 2627}, entity.KindDuplicate},
		{"login failed", mssql.Error{Number: 18456}, entity.KindUnknown},
		{"permission denied", mssql.Error{Number: 229}, entity.KindUnknown},
		{"object not found", mssql.Error{Number: 208}, entity.KindUnknown},
		{"context cancelled", context.Canceled, entity.KindCancelled},
		{"deadline exceeded", context.DeadlineExceeded, entity.KindConnectionLost},
		{"bad conn", driver.ErrBadConn, entity.KindConnectionLost},
		{"eof", io.EOF, entity.KindConnectionLost},
		{"net timeout", timeoutErr{}, entity.KindConnectionLost},
		{"wrapped net timeout", fmt.Errorf("query: %w", timeoutErr{}), entity.KindConnectionLost},
		{"driver text: not loggedin", errors.New("mssql: invalid state, expecting not loggedin"), entity.KindConnectionLost},
		{"driver text: broken pipe", errors.New("write tcp: broken pipe"), entity.KindConnectionLost},
		{"anything else", errors.New("syntax error near FROM"), entity.KindUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.kind, Classify(tt.err))
		})
	}
}

// TestIsTableNotFound validates missing-table detection.
func TestIsTableNotFound(t *testing.T) {
	assert.True(t, IsTableNotFound(ErrTableNotFound))
	assert.True(t, IsTableNotFound(mssql.Error{Number: 208}))
	assert.False(t, IsTableNotFound(mssql.Error{Number: 2627}))
	assert.False(t, IsTableNotFound(errors.New("other")))
}

// TestWrapSQL validates classification wrapping.
func TestWrapSQL(t *testing.T) {
	assert.NoError(t, WrapSQL("noop", nil))

	err := WrapSQL("insert failed", mssql.Error{Number: 2627})
	assert.Equal(t, entity.KindDuplicate, entity.KindOf(err))
	assert.Contains(t, err.Error(), "insert failed")

	var netE net.Error = timeoutErr{}
	err = WrapSQL("probe", netE)
	assert.True(t, entity.IsConnectionLost(err))
}
