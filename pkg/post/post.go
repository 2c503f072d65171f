// Package post defines the post model shared by the fetchers and coordinators,
// together with the fetch contracts the coordinators consume.
package post

import "context"

// Post is a single content record. ID is stable and unique; it is used as the
// merge key by the pagination coordinator and as the rendering key by views.
type Post struct {
	ID      int
	Title   string
	Body    string
	OwnerID int
}

// DTO is the wire representation returned by the posts REST API.
type DTO struct {
	UserID int    `json:"userId"`
	ID     int    `json:"id"`
	Title  string `json:"title"`
	Body   string `json:"body"`
}

// Post converts the wire representation to the domain model.
func (d DTO) Post() Post {
	return Post{
		ID:      d.ID,
		Title:   d.Title,
		Body:    d.Body,
		OwnerID: d.UserID,
	}
}

// FromDTOs converts a decoded response body, preserving order.
func FromDTOs(dtos []DTO) []Post {
	posts := make([]Post, 0, len(dtos))
	for _, d := range dtos {
		posts = append(posts, d.Post())
	}
	return posts
}

// PageFetcher fetches one page of posts. Pages are 1-based; an empty result
// means there is no more data.
type PageFetcher interface {
	FetchPage(ctx context.Context, page, limit int) ([]Post, error)
}

// TotalPageFetcher is a PageFetcher that also reports the total number of
// posts available upstream. total is -1 when the source does not report it.
type TotalPageFetcher interface {
	PageFetcher
	FetchPageWithTotal(ctx context.Context, page, limit int) (posts []Post, total int, err error)
}

// AllFetcher fetches the complete list in one call.
type AllFetcher interface {
	FetchAll(ctx context.Context) ([]Post, error)
}

// PageFetcherFunc adapts a function to PageFetcher.
type PageFetcherFunc func(ctx context.Context, page, limit int) ([]Post, error)

// FetchPage calls f.
func (f PageFetcherFunc) FetchPage(ctx context.Context, page, limit int) ([]Post, error) {
	return f(ctx, page, limit)
}

// AllFetcherFunc adapts a function to AllFetcher.
type AllFetcherFunc func(ctx context.Context) ([]Post, error)

// FetchAll calls f.
func (f AllFetcherFunc) FetchAll(ctx context.Context) ([]Post, error) {
	return f(ctx)
}

// ToDTO converts back to the wire representation.
func (p Post) ToDTO() DTO {
	return DTO{
		UserID: p.OwnerID,
		ID:     p.ID,
		Title:  p.Title,
		Body:   p.Body,
	}
}
