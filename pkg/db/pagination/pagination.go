package pagination

const (
	DefaultLimit = 50
	MaxLimit     = 250
)

// Pagination binds limit/offset list parameters from the query string.
type Pagination struct {
	Limit  int `form:"limit,default=50"`
	Offset int `form:"offset"`
}

// Normalize clamps the parameters to sane bounds.
func (p Pagination) Normalize() Pagination {
	if p.Limit <= 0 {
		p.Limit = DefaultLimit
	}
	if p.Limit > MaxLimit {
		p.Limit = MaxLimit
	}
	if p.Offset < 0 {
		p.Offset = 0
	}
	return p
}
