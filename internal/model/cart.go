package model

// Line is one product reference inside a cart.
type Line struct {
	Product  int `json:"product"`
	Quantity int `json:"quantity"`
}

// Cart is an ordered list of lines, at most one per product.
type Cart struct {
	ID       int    `json:"id"`
	Products []Line `json:"products"`
}

// EntityID returns the cart's identifier.
func (c Cart) EntityID() int {
	return c.ID
}

// WithID returns a copy of the cart carrying the given identifier.
func (c Cart) WithID(id int) Cart {
	c.ID = id
	return c
}

// AddLine returns a copy of the cart with one more unit of itemID.
// An existing line is incremented in place; otherwise a new line is appended.
// The receiver's backing array is never modified.
func (c Cart) AddLine(itemID int) Cart {
	lines := make([]Line, len(c.Products), len(c.Products)+1)
	copy(lines, c.Products)

	for i := range lines {
		if lines[i].Product == itemID {
			lines[i].Quantity++
			c.Products = lines
			return c
		}
	}

	c.Products = append(lines, Line{Product: itemID, Quantity: 1})
	return c
}

// Quantity reports how many units of itemID the cart holds.
func (c Cart) Quantity(itemID int) int {
	for _, l := range c.Products {
		if l.Product == itemID {
			return l.Quantity
		}
	}
	return 0
}
