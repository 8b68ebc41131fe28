package kinds

import (
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/JonMunkholm/rowbind/internal/convert"
	"github.com/JonMunkholm/rowbind/internal/core"
)

func init() {
	registerProducts()
}

// Category is the closed set of product categories.
type Category string

func (Category) EnumValues() []string {
	return []string{"Hardware", "Software", "Service", "Subscription"}
}

// Product is one row of a product catalog export.
type Product struct {
	SKU         string         `sheet:"SKU,required"`
	Name        string         `sheet:"Product Name,required,width=32"`
	Category    Category       `sheet:"Category,default=Hardware"`
	UnitPrice   pgtype.Numeric `sheet:"Unit Price,required,converter=money"`
	InStock     bool           `sheet:"In Stock,default=true"`
	LaunchDate  *convert.Date  `sheet:"Launch Date"`
	Description string         `sheet:"Description,width=48"`
}

func registerProducts() {
	core.Register(core.NewKind[Product](core.KindInfo{
		Key:          "product",
		Group:        "Catalog",
		Label:        "Products",
		Description:  "Product catalog with list prices",
		Table:        "products",
		UploadColumn: UploadColumn,
	}))
}
