package sites

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPostgresStore_GetSites(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	now := time.Now()
	mock.ExpectQuery("SELECT (.+) FROM sites\\s+WHERE membership_id = \\$1").
		WithArgs(int64(3)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "customer_id", "membership_id", "title", "path", "status", "created_at"}).
			AddRow(1, 5, 3, "Blog", "/blog", "active", now).
			AddRow(2, 5, 3, "Shop", "/shop", "pending", now))

	sites, err := NewPostgresStore(db).GetSites(context.Background(), 3)
	require.NoError(t, err)
	require.Len(t, sites, 2)
	assert.Equal(t, StatusPending, sites[1].Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_CreatePendingSite(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("INSERT INTO sites").
		WithArgs(int64(5), int64(3), "Blog", "/blog", StatusPending).
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow(9, time.Now()))

	site := &Site{CustomerID: 5, MembershipID: 3, Title: "Blog", Path: "/blog", Status: StatusActive}
	require.NoError(t, NewPostgresStore(db).CreatePendingSite(context.Background(), site))
	assert.Equal(t, int64(9), site.ID)
	assert.Equal(t, StatusPending, site.Status)
}

func TestPostgresStore_Counts(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	store := NewPostgresStore(db)

	mock.ExpectQuery("SELECT post_type, COUNT\\(\\*\\)").
		WithArgs(int64(1)).
		WillReturnRows(sqlmock.NewRows([]string{"post_type", "count"}).AddRow("post", 120).AddRow("page", 4))
	mock.ExpectQuery("SELECT COUNT\\(\\*\\) FROM site_domains").
		WithArgs(int64(1)).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(2))

	posts, err := store.CountPosts(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, map[string]int64{"post": 120, "page": 4}, posts)

	domains, err := store.CountCustomDomains(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, int64(2), domains)
	assert.NoError(t, mock.ExpectationsWereMet())
}
