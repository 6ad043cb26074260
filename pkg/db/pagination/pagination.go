// Package pagination holds the shared offset paging types for list
// endpoints.
package pagination

// Pagination binds the standard list query parameters.
type Pagination struct {
	Limit  int `form:"limit,default=50" validate:"gte=1,lte=250"` // Min 1, Max 250
	Offset int `form:"offset" validate:"gte=0"`
}

func (p Pagination) Normalized() (limit, offset int) {
	limit = p.Limit
	if limit <= 0 {
		limit = 50
	}
	if limit > 250 {
		limit = 250
	}
	offset = p.Offset
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}

// PageInfo reports where a page sits inside the full result set.
type PageInfo struct {
	Total   int64 `json:"total"`
	Limit   int   `json:"limit"`
	Offset  int   `json:"offset"`
	HasMore bool  `json:"has_more"`
}

func BuildPageInfo(total int64, limit, offset, returned int) PageInfo {
	return PageInfo{
		Total:   total,
		Limit:   limit,
		Offset:  offset,
		HasMore: int64(offset+returned) < total,
	}
}
