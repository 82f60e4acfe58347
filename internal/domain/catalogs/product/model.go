// Package product provides the Product catalog: the sample entity wired through
// the repository, CRUD service, HTTP API and bulk importer.
package product

import (
	"errors"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Table is the PostgreSQL table products live in.
const Table = "cat_products"

// Product is a stock-keeping item.
type Product struct {
	ID uuid.UUID `db:"id" json:"id"`

	// SKU is the business key used to match import rows
	SKU string `db:"sku" json:"sku"`

	Name     string  `db:"name" json:"name"`
	Category *string `db:"category" json:"category,omitempty"`

	Price    decimal.Decimal `db:"price" json:"price"`
	Quantity int             `db:"quantity" json:"quantity"`
	Active   bool            `db:"active" json:"active"`

	CreatedAt time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt time.Time `db:"updated_at" json:"updatedAt"`
}

// New returns an empty, active product with a fresh ID.
func New() *Product {
	return &Product{ID: uuid.New(), Active: true}
}

// Touch stamps UpdatedAt, and CreatedAt on first save.
func (p *Product) Touch(now time.Time) {
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	p.UpdatedAt = now
}

// Validate implements validation.Validatable.
func (p Product) Validate() error {
	return validation.ValidateStruct(&p,
		validation.Field(&p.SKU, validation.Required, validation.Length(1, 64)),
		validation.Field(&p.Name, validation.Required, validation.Length(1, 255)),
		validation.Field(&p.Category, validation.NilOrNotEmpty, validation.Length(1, 128)),
		validation.Field(&p.Price, validation.By(nonNegative)),
		validation.Field(&p.Quantity, validation.Min(0)),
	)
}

var errNegative = errors.New("must be no less than 0")

func nonNegative(value any) error {
	d, ok := value.(decimal.Decimal)
	if !ok {
		return errors.New("must be a decimal")
	}
	if d.IsNegative() {
		return errNegative
	}
	return nil
}
