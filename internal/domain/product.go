package domain

// Product is the slice of the catalog the order workflows need: live price and
// available stock. The catalog itself is owned by a collaborator service.
type Product struct {
	ID    string `db:"id"`
	Name  string `db:"name"`
	Price int64  `db:"price"`
	Stock int32  `db:"stock"`
}
