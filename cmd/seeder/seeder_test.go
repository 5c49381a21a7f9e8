package main

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFakeLeads(t *testing.T) {
	leads := fakeLeads(40, 7)
	require.Len(t, leads, 40)

	phones := map[string]bool{}
	for _, l := range leads {
		assert.NotEmpty(t, l.Name)
		assert.Regexp(t, `^55\d{2}9\d{8}$`, l.Phone)
		assert.False(t, phones[l.Phone], "duplicate phone %s", l.Phone)
		phones[l.Phone] = true
		assert.Contains(t, l.CustomFields, "cidade")
	}

	assert.Equal(t, leads, fakeLeads(40, 7), "same seed, same leads")
}

func TestInsertLeads(t *testing.T) {
	conn, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer conn.Close()

	leads := fakeLeads(2, 1)
	mock.ExpectBegin()
	prep := mock.ExpectPrepare(`INSERT INTO leads`)
	prep.ExpectQuery().
		WithArgs(leads[0].Name, leads[0].Phone, leads[0].Email, sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(10))
	prep.ExpectQuery().
		WithArgs(leads[1].Name, leads[1].Phone, leads[1].Email, sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(11))
	mock.ExpectCommit()

	ids, err := insertLeads(context.Background(), conn, leads)
	require.NoError(t, err)
	assert.Equal(t, []int{10, 11}, ids)
	assert.NoError(t, mock.ExpectationsWereMet())
}
