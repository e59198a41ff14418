package query

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDetectCommand(t *testing.T) {
	for q, want := range map[string]Command{
		"SELECT * FROM users":            CommandSelect,
		"  insert into users (a) values": CommandInsert,
		"Update users SET a = 1":         CommandUpdate,
		"DELETE FROM users WHERE id = 1": CommandDelete,
	} {
		got, err := DetectCommand(q)
		require.NoError(t, err, q)
		assert.Equal(t, want, got, q)
	}

	_, err := DetectCommand("TRUNCATE users")
	assert.True(t, errors.Is(err, ErrMalformedQuery))
}

func TestParseInsert(t *testing.T) {
	ins := ParseInsert("INSERT INTO users (name, age, nickname, note) VALUES ('Ann, B', 31, null, plain)")
	assert.Equal(t, "users", ins.Entity)
	assert.Equal(t, []string{"name", "age", "nickname", "note"}, ins.Columns)
	assert.Equal(t, map[string]any{"name": "Ann, B", "age": float64(31), "nickname": nil, "note": "plain"}, ins.Data)
}

func TestParseInsert_ShortValuesLeavesNil(t *testing.T) {
	ins := ParseInsert("INSERT INTO users (name, age) VALUES ('Ann')")
	assert.Equal(t, map[string]any{"name": "Ann", "age": nil}, ins.Data)
}

func TestParseInsert_EntityOnly(t *testing.T) {
	ins := ParseInsert("INSERT INTO users")
	assert.Equal(t, "users", ins.Entity)
	assert.Empty(t, ins.Data)
}

func TestParseUpdate(t *testing.T) {
	upd, err := ParseUpdate("UPDATE users SET name = 'Jo, Jr', age = 40, active = true WHERE id = 7")
	require.NoError(t, err)
	assert.Equal(t, "users", upd.Entity)
	assert.Equal(t, "7", upd.ID)
	assert.Equal(t, map[string]any{"name": "Jo, Jr", "age": float64(40), "active": true}, upd.Data)
}

func TestParseUpdate_Malformed(t *testing.T) {
	_, err := ParseUpdate("UPDATE users name = 'x'")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrMalformedQuery))
}

func TestParseUpdateTarget(t *testing.T) {
	entity, id, err := ParseUpdateTarget("UPDATE posts WHERE id = 'abc'")
	require.NoError(t, err)
	assert.Equal(t, "posts", entity)
	assert.Equal(t, "abc", id)
}

func TestParseDelete(t *testing.T) {
	del, err := ParseDelete("delete from posts where id = 12")
	require.NoError(t, err)
	assert.Equal(t, Delete{Entity: "posts", ID: "12"}, del)

	_, err = ParseDelete("DELETE posts")
	assert.True(t, errors.Is(err, ErrMalformedQuery))
}
