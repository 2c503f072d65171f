// Package pagination coordinates incremental, page-based loading of posts.
//
// A Coordinator turns "load more" signals into fetches against a
// post.PageFetcher and folds the results into one ordered, deduplicated list.
// The first page (refresh) and later pages (append, or prepend when loading
// backwards) carry independent loading and error states, so a view can show a
// full-screen error for a failed first page and an inline retry row for a
// failed next page.
//
// Example usage:
//
//	coord := pagination.New(apiClient)
//	defer coord.Close()
//
//	if err := coord.Initialize(10, 1); err != nil {
//		return err // *ConfigError
//	}
//	for state := range coord.Observe(ctx) {
//		render(state)
//	}
//
// The coordinator:
//   - Owns its state inside a single run loop; signals never block
//   - Allows at most one in-flight append (and one prepend) at a time
//   - Tags every fetch with a generation and drops results from superseded ones
//   - Treats an empty page as the end of data
//   - Converts fetch failures into state, never into returned errors
//
// BatchFetcher is the bulk counterpart: it fetches every page of a source in
// parallel with a worker pool and merges them into one list.
package pagination
