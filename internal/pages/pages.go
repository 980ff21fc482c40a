package pages

import (
	"iter"
	"slices"
)

// NoCursor is the page param of the most recent page, which is always fetched without a token.
const NoCursor = ""

// Identifiable is implemented by items that carry a reconciliation identity.
type Identifiable interface {
	ItemID() string
}

// Page is one server page of items, newest first.
// An empty NextPageToken means no older page exists.
type Page[T Identifiable] struct {
	Items         []T    `json:"items"`
	TotalItems    int    `json:"totalItems"`
	NextPageToken string `json:"nextPageToken,omitempty"`
}

// HasNext reports whether an older page can be requested after this one.
func (p Page[T]) HasNext() bool {
	return p.NextPageToken != ""
}

// Collection is an ordered run of pages for one cache entry.
// Pages[0] is always the most recent page and PageParams[i] is the cursor
// Pages[i] was fetched with, so PageParams[0] is always NoCursor.
//
// A Collection is treated as an immutable value: every function in this
// package returns a new top-level value and never writes through the input,
// so an earlier snapshot stays valid after later transforms.
type Collection[T Identifiable] struct {
	Pages      []Page[T] `json:"pages"`
	PageParams []string  `json:"pageParams"`
}

// New returns a collection holding only the given most recent page.
func New[T Identifiable](first Page[T]) *Collection[T] {
	return &Collection[T]{
		Pages:      []Page[T]{first},
		PageParams: []string{NoCursor},
	}
}

// Empty reports whether c has no pages or every page has no items.
func (c *Collection[T]) Empty() bool {
	if c == nil {
		return true
	}
	for _, p := range c.Pages {
		if len(p.Items) > 0 {
			return false
		}
	}
	return true
}

// Len returns the number of items loaded across all pages.
func (c *Collection[T]) Len() int {
	if c == nil {
		return 0
	}
	n := 0
	for _, p := range c.Pages {
		n += len(p.Items)
	}
	return n
}

// All yields every loaded item, newest first.
func (c *Collection[T]) All() iter.Seq[T] {
	return func(yield func(T) bool) {
		if c == nil {
			return
		}
		for _, p := range c.Pages {
			for _, it := range p.Items {
				if !yield(it) {
					return
				}
			}
		}
	}
}

// clone copies the top-level slices; pages themselves are shared.
func (c *Collection[T]) clone() *Collection[T] {
	return &Collection[T]{
		Pages:      slices.Clone(c.Pages),
		PageParams: slices.Clone(c.PageParams),
	}
}

// InsertAtHead prepends item to the most recent page and bumps its total.
// A nil or page-less collection becomes a single page holding only item.
// Older pages and every NextPageToken are left untouched.
func InsertAtHead[T Identifiable](c *Collection[T], item T) *Collection[T] {
	if c == nil || len(c.Pages) == 0 {
		return New(Page[T]{Items: []T{item}, TotalItems: 1})
	}

	head := c.Pages[0]
	items := make([]T, 0, len(head.Items)+1)
	items = append(items, item)
	items = append(items, head.Items...)

	out := c.clone()
	out.Pages[0] = Page[T]{
		Items:         items,
		TotalItems:    head.TotalItems + 1,
		NextPageToken: head.NextPageToken,
	}
	return out
}

// ReplaceByID substitutes replacement for every item whose id is targetID.
// Pages without a match are carried over as-is. When nothing matches, c
// itself is returned, which makes reconciliation safe to repeat.
func ReplaceByID[T Identifiable](c *Collection[T], targetID string, replacement T) *Collection[T] {
	if c == nil || len(c.Pages) == 0 {
		return c
	}

	var out *Collection[T]
	for i, p := range c.Pages {
		var items []T
		for j, it := range p.Items {
			if it.ItemID() != targetID {
				continue
			}
			if items == nil {
				items = slices.Clone(p.Items)
			}
			items[j] = replacement
		}
		if items == nil {
			continue
		}
		if out == nil {
			out = c.clone()
		}
		out.Pages[i] = Page[T]{
			Items:         items,
			TotalItems:    p.TotalItems,
			NextPageToken: p.NextPageToken,
		}
	}
	if out == nil {
		return c
	}
	return out
}

// AppendPage adds an older page fetched with cursor at the end of c.
// Pages[0] is never modified. A nil or page-less collection yields a
// collection whose only page is p, fetched without a cursor.
func AppendPage[T Identifiable](c *Collection[T], p Page[T], cursor string) *Collection[T] {
	if c == nil || len(c.Pages) == 0 {
		return New(p)
	}
	out := c.clone()
	out.Pages = append(out.Pages, p)
	out.PageParams = append(out.PageParams, cursor)
	return out
}

// NextPageToken returns the cursor of the next older page, or "" when the
// oldest loaded page is the last one (or nothing is loaded).
func NextPageToken[T Identifiable](c *Collection[T]) string {
	if c == nil || len(c.Pages) == 0 {
		return ""
	}
	return c.Pages[len(c.Pages)-1].NextPageToken
}

// Filter drops every item keep rejects, decrementing each page's total by
// the number of items removed from it. When nothing is dropped c is returned.
func Filter[T Identifiable](c *Collection[T], keep func(T) bool) *Collection[T] {
	if c == nil || len(c.Pages) == 0 {
		return c
	}

	var out *Collection[T]
	for i, p := range c.Pages {
		kept := slices.DeleteFunc(slices.Clone(p.Items), func(it T) bool { return !keep(it) })
		removed := len(p.Items) - len(kept)
		if removed == 0 {
			continue
		}
		if out == nil {
			out = c.clone()
		}
		out.Pages[i] = Page[T]{
			Items:         kept,
			TotalItems:    max(p.TotalItems-removed, 0),
			NextPageToken: p.NextPageToken,
		}
	}
	if out == nil {
		return c
	}
	return out
}
