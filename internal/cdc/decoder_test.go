package cdc

import (
	"testing"
	"time"

	"github.com/jackc/pglogrepl"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func customerRelation() *pglogrepl.RelationMessage {
	return &pglogrepl.RelationMessage{
		RelationID:   16384,
		Namespace:    "public",
		RelationName: "customer",
		Columns: []*pglogrepl.RelationMessageColumn{
			{Name: "id"},
			{Name: "first_name"},
			{Name: "last_name"},
		},
	}
}

func textColumn(s string) *pglogrepl.TupleDataColumn {
	return &pglogrepl.TupleDataColumn{DataType: pglogrepl.TupleDataTypeText, Data: []byte(s)}
}

func TestDecodeInsertAfterRelation(t *testing.T) {
	d := NewDecoder()
	now := time.Now()

	ev, err := d.decodeMessage(customerRelation(), 100, now)
	require.NoError(t, err)
	require.NotNil(t, ev)
	assert.Equal(t, OpRelation, ev.Operation)
	assert.Equal(t, "customer", ev.Table)

	insert := &pglogrepl.InsertMessage{
		RelationID: 16384,
		Tuple: &pglogrepl.TupleData{
			Columns: []*pglogrepl.TupleDataColumn{
				textColumn("1"),
				textColumn("John"),
				textColumn("Doe"),
			},
		},
	}
	ev, err = d.decodeMessage(insert, 200, now)
	require.NoError(t, err)
	require.NotNil(t, ev)
	assert.Equal(t, OpInsert, ev.Operation)
	assert.Equal(t, "public", ev.Schema)
	assert.Equal(t, "customer", ev.Table)
	assert.Equal(t, pglogrepl.LSN(200), ev.LSN)
	assert.Equal(t, map[string]any{"id": "1", "first_name": "John", "last_name": "Doe"}, ev.New)
}

func TestDecodeInsertUnknownRelationSkipped(t *testing.T) {
	d := NewDecoder()

	insert := &pglogrepl.InsertMessage{RelationID: 99, Tuple: &pglogrepl.TupleData{}}
	ev, err := d.decodeMessage(insert, 10, time.Now())
	require.NoError(t, err)
	assert.Nil(t, ev)
}

func TestDecodeUpdateCarriesOldAndNew(t *testing.T) {
	d := NewDecoder()
	_, err := d.decodeMessage(customerRelation(), 1, time.Now())
	require.NoError(t, err)

	update := &pglogrepl.UpdateMessage{
		RelationID: 16384,
		OldTuple: &pglogrepl.TupleData{
			Columns: []*pglogrepl.TupleDataColumn{
				textColumn("1"),
				textColumn("John"),
				textColumn("Doe"),
			},
		},
		NewTuple: &pglogrepl.TupleData{
			Columns: []*pglogrepl.TupleDataColumn{
				textColumn("1"),
				textColumn("Jane"),
				textColumn("Doe"),
			},
		},
	}
	ev, err := d.decodeMessage(update, 2, time.Now())
	require.NoError(t, err)
	require.NotNil(t, ev)
	assert.Equal(t, OpUpdate, ev.Operation)
	assert.Equal(t, "John", ev.Old["first_name"])
	assert.Equal(t, "Jane", ev.New["first_name"])
}

func TestDecodeTupleTags(t *testing.T) {
	rel := customerRelation()
	tuple := &pglogrepl.TupleData{
		Columns: []*pglogrepl.TupleDataColumn{
			textColumn("7"),
			{DataType: pglogrepl.TupleDataTypeNull},
			{DataType: pglogrepl.TupleDataTypeToast},
		},
	}

	row := decodeTuple(rel, tuple)
	assert.Equal(t, "7", row["id"])
	v, present := row["first_name"]
	assert.True(t, present)
	assert.Nil(t, v)
	_, present = row["last_name"]
	assert.False(t, present, "unchanged TOAST column must be omitted")
}

func TestDecodeBeginCommit(t *testing.T) {
	d := NewDecoder()
	commitTime := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)

	ev, err := d.decodeMessage(&pglogrepl.BeginMessage{FinalLSN: 500, CommitTime: commitTime}, 1, time.Now())
	require.NoError(t, err)
	assert.Equal(t, OpBegin, ev.Operation)
	assert.Equal(t, pglogrepl.LSN(500), ev.LSN)

	ev, err = d.decodeMessage(&pglogrepl.CommitMessage{CommitLSN: 500, CommitTime: commitTime}, 1, time.Now())
	require.NoError(t, err)
	assert.Equal(t, OpCommit, ev.Operation)
	assert.Equal(t, commitTime, ev.Timestamp)
}

func TestDecodeDeterministicReplay(t *testing.T) {
	now := time.Now()
	play := func() *Event {
		d := NewDecoder()
		_, err := d.decodeMessage(customerRelation(), 1, now)
		require.NoError(t, err)
		insert := &pglogrepl.InsertMessage{
			RelationID: 16384,
			Tuple: &pglogrepl.TupleData{
				Columns: []*pglogrepl.TupleDataColumn{
					textColumn("1"), textColumn("A"), textColumn("B"),
				},
			},
		}
		ev, err := d.decodeMessage(insert, 2, now)
		require.NoError(t, err)
		return ev
	}

	assert.Equal(t, play(), play())
}
