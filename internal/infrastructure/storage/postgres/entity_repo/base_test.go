package entity_repo

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"crudkit/internal/core/apperror"
	"crudkit/internal/domain"
	"crudkit/internal/domain/catalogs/product"
	"crudkit/internal/domain/filter"
	"crudkit/internal/infrastructure/storage/postgres"
)

// fakeStore records statements instead of talking to PostgreSQL.
type fakeStore struct {
	execs    []string
	args     [][]any
	tag      pgconn.CommandTag
	execErr  error
	count    int64
	queriers int
	txs      int
}

func (s *fakeStore) RunInTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	s.txs++
	return fn(ctx)
}

func (s *fakeStore) GetQuerier(ctx context.Context) postgres.Querier {
	s.queriers++
	return s
}

func (s *fakeStore) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	s.execs = append(s.execs, sql)
	s.args = append(s.args, args)
	return s.tag, s.execErr
}

func (s *fakeStore) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	return nil, errors.New("not supported")
}

func (s *fakeStore) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	s.execs = append(s.execs, sql)
	s.args = append(s.args, args)
	return countRow{n: s.count}
}

type countRow struct{ n int64 }

func (r countRow) Scan(dest ...any) error {
	*(dest[0].(*int64)) = r.n
	return nil
}

const productCols = "t.id, t.sku, t.name, t.category, t.price, t.quantity, t.active, t.created_at, t.updated_at"

func TestBaseRepo_SelectQuery(t *testing.T) {
	repo := NewProductRepo(nil)

	sql, args, err := repo.SelectQuery(map[string]any{"name": "bob"}, domain.Page{Limit: 10})
	require.NoError(t, err)
	assert.Equal(t, "SELECT "+productCols+" FROM cat_products AS t WHERE CAST(t.name AS TEXT) LIKE @t_name_1 LIMIT 10", sql)
	assert.Equal(t, pgx.NamedArgs{"t_name_1": "%bob%"}, args)
}

func TestBaseRepo_SelectQuery_FoldAndOrder(t *testing.T) {
	repo := NewProductRepo(nil)
	f := filter.New(
		filter.Where("quantity", filter.Equal, 30),
		filter.OrWhere("category", filter.Like, "%par%"),
		filter.Where("active", filter.Equal, true),
	)

	sql, args, err := repo.SelectQuery(f, domain.Page{
		Offset:  20,
		Limit:   10,
		OrderBy: []domain.Sort{{Column: "price", Direction: domain.Desc}},
	})
	require.NoError(t, err)
	assert.Equal(t, "SELECT "+productCols+" FROM cat_products AS t WHERE ((t.quantity = @t_quantity_1 OR CAST(t.category AS TEXT) LIKE @t_category_2) AND t.active = @t_active_3) ORDER BY t.price DESC LIMIT 10 OFFSET 20", sql)
	assert.Len(t, args, 3)
}

func TestBaseRepo_CountQuery(t *testing.T) {
	repo := NewProductRepo(nil)

	sql, args, err := repo.CountQuery(map[string]any{"sku": "A-1", "quantity": "5"})
	require.NoError(t, err)
	assert.Equal(t, "SELECT COUNT(*) FROM cat_products AS t WHERE (t.quantity = @t_quantity_1 AND CAST(t.sku AS TEXT) LIKE @t_sku_2)", sql)
	assert.Equal(t, pgx.NamedArgs{"t_quantity_1": "5", "t_sku_2": "%A-1%"}, args)
}

func TestBaseRepo_RawFilterIgnoresUnknownKeys(t *testing.T) {
	repo := NewProductRepo(nil)

	sql, args, err := repo.CountQuery(map[string]any{"name": "x", "password": "y"})
	require.NoError(t, err)
	assert.Equal(t, "SELECT COUNT(*) FROM cat_products AS t WHERE CAST(t.name AS TEXT) LIKE @t_name_1", sql)
	assert.Len(t, args, 1)
}

func TestBaseRepo_Joins(t *testing.T) {
	repo := NewBaseRepo(nil, Config[*product.Product]{
		Table: product.Table,
		Joins: []string{"cat_categories AS c ON c.code = t.category"},
		New:   product.New,
	})

	sql, args, err := repo.CountQuery(filter.New(filter.Where("c.title", filter.Equal, "Tools")))
	require.NoError(t, err)
	assert.Equal(t, "SELECT COUNT(*) FROM cat_products AS t LEFT JOIN cat_categories AS c ON c.code = t.category WHERE c.title = @c_title_1", sql)
	assert.Equal(t, pgx.NamedArgs{"c_title_1": "Tools"}, args)
}

func TestBaseRepo_MissingFilterNeverTouchesStore(t *testing.T) {
	store := &fakeStore{}
	repo := NewProductRepo(store)
	ctx := context.Background()

	_, err := repo.Read(ctx, 42, domain.DefaultPage())
	assert.True(t, apperror.IsMissingFilter(err))

	_, err = repo.Count(ctx, "name=bob")
	assert.True(t, apperror.IsMissingFilter(err))

	_, err = repo.PageCount(ctx, []string{"x"}, 10)
	assert.True(t, apperror.IsMissingFilter(err))

	assert.Zero(t, store.queriers)
	assert.Empty(t, store.execs)
}

func TestBaseRepo_InvalidComparatorNeverTouchesStore(t *testing.T) {
	store := &fakeStore{}
	repo := NewProductRepo(store)

	_, err := repo.Count(context.Background(), filter.New(filter.Where("name", filter.CompareType("~"), "x")))
	assert.True(t, apperror.IsInvalidComparator(err))
	assert.Empty(t, store.execs)
}

func TestBaseRepo_CountAndPageCount(t *testing.T) {
	store := &fakeStore{count: 21}
	repo := NewProductRepo(store)
	ctx := context.Background()

	n, err := repo.Count(ctx, map[string]any{"active": true})
	require.NoError(t, err)
	assert.Equal(t, int64(21), n)
	require.Len(t, store.args, 1)
	assert.Equal(t, []any{pgx.NamedArgs{"t_active_1": true}}, store.args[0])

	pages, err := repo.PageCount(ctx, filter.New(), 10)
	require.NoError(t, err)
	assert.Equal(t, int64(3), pages)

	_, err = repo.PageCount(ctx, filter.New(), 0)
	assert.True(t, apperror.HasCode(err, apperror.CodeInvalidInput))
}

func TestBaseRepo_Save(t *testing.T) {
	store := &fakeStore{tag: pgconn.NewCommandTag("INSERT 0 1")}
	repo := NewProductRepo(store)

	p := product.New()
	p.SKU = "A-1"
	p.Name = "Anvil"
	p.Price = decimal.NewFromInt(10)

	require.NoError(t, repo.Save(context.Background(), p))
	assert.Equal(t, 1, store.txs)
	require.Len(t, store.execs, 1)
	assert.Equal(t, "INSERT INTO cat_products (active,category,created_at,id,name,price,quantity,sku,updated_at) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)", store.execs[0])
	assert.False(t, p.CreatedAt.IsZero())

	cached, ok := repo.Identity().Get(p.ID)
	assert.True(t, ok)
	assert.Same(t, p, cached)

	found, ok, err := repo.FindByID(context.Background(), p.ID)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Same(t, p, found)
}

func TestBaseRepo_UpdateAndDelete(t *testing.T) {
	store := &fakeStore{tag: pgconn.NewCommandTag("UPDATE 1")}
	repo := NewProductRepo(store)
	ctx := context.Background()
	p := product.New()

	require.NoError(t, repo.Update(ctx, p))
	assert.Equal(t, "UPDATE cat_products SET active = $1, category = $2, created_at = $3, name = $4, price = $5, quantity = $6, sku = $7, updated_at = $8 WHERE id = $9", store.execs[0])

	store.tag = pgconn.NewCommandTag("DELETE 1")
	require.NoError(t, repo.Delete(ctx, p))
	assert.Equal(t, "DELETE FROM cat_products WHERE id = $1", store.execs[1])
	assert.Equal(t, []any{p.ID}, store.args[1])

	_, tracked := repo.Identity().Get(p.ID)
	assert.False(t, tracked)

	store.tag = pgconn.NewCommandTag("DELETE 0")
	err := repo.Delete(ctx, p)
	assert.True(t, apperror.IsNotFound(err))
}

func TestBaseRepo_WriteErrors(t *testing.T) {
	store := &fakeStore{execErr: &pgconn.PgError{Code: "23505", ConstraintName: "cat_products_sku_uq"}}
	repo := NewProductRepo(store)

	err := repo.Save(context.Background(), product.New())
	assert.True(t, apperror.HasCode(err, apperror.CodeConflict))

	store.execErr = errors.New("connection reset")
	err = repo.Save(context.Background(), product.New())
	require.Error(t, err)
	assert.False(t, apperror.IsAppError(err))
}

func TestBaseRepo_ClearResetsIdentity(t *testing.T) {
	repo := NewProductRepo(&fakeStore{tag: pgconn.NewCommandTag("INSERT 0 1")})
	p := product.New()
	require.NoError(t, repo.Save(context.Background(), p))
	require.Equal(t, 1, repo.Identity().Len())

	repo.Clear()
	assert.Zero(t, repo.Identity().Len())
}

func TestExactFilter(t *testing.T) {
	f := ExactFilter(map[string]any{"sku": "A-1", "category": nil})
	require.Equal(t, 2, f.Len())

	c := f.Criteria()
	assert.Equal(t, "category", c[0].Column())
	assert.Equal(t, filter.IsNull, c[0].Compare())
	assert.Equal(t, "sku", c[1].Column())
	assert.Equal(t, filter.Equal, c[1].Compare())
	assert.Equal(t, "A-1", c[1].Value())
}

func TestNewProductRepo_Prototype(t *testing.T) {
	p := NewProductRepo(nil).Prototype()
	assert.NotEqual(t, uuid.Nil, p.ID)
	assert.True(t, p.Active)
}
