package db

import (
	"bytes"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func openMemory(t *testing.T) *gorm.DB {
	t.Helper()
	gdb, err := Open("sqlite", "file:"+uuid.NewString()+"?mode=memory&cache=shared")
	require.NoError(t, err)
	sqlDB, err := gdb.DB()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })
	return gdb
}

func TestGormLogger_SkipsRecordNotFound(t *testing.T) {
	gdb := openMemory(t)
	var buf bytes.Buffer
	quiet := gdb.Session(&gorm.Session{Logger: newGormLogger(&buf)})

	var chat Chat
	err := quiet.Where("chat_id = ?", "missing").Take(&chat).Error
	require.ErrorIs(t, err, gorm.ErrRecordNotFound)
	assert.Empty(t, buf.String())

	err = quiet.Exec("SELECT * FROM no_such_table").Error
	require.Error(t, err)
	assert.Contains(t, buf.String(), "no_such_table")
}

func TestOpen_UnsupportedDriver(t *testing.T) {
	_, err := Open("oracle", "dsn")
	assert.ErrorContains(t, err, "unsupported sql driver")
}

func TestMessageList_RoundTrip(t *testing.T) {
	gdb := openMemory(t)
	in := Chat{ChatID: "c1", UserID: "u1", Title: "T", Messages: MessageList{{ID: "m1", Role: "user", Content: "hi"}}}
	require.NoError(t, gdb.Create(&in).Error)

	var out Chat
	require.NoError(t, gdb.Take(&out, "chat_id = ?", "c1").Error)
	assert.Equal(t, in.Messages, out.Messages)
	assert.Equal(t, "u1", out.ToModel().OwnerID)
}
