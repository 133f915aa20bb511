package gadget

import (
	"net/url"
	"strconv"

	"gadgets/internal/models"
	"gadgets/internal/storage"
)

// TimeFormat is the wire format of created_at and updated_at.
const TimeFormat = "2006-01-02 15:04:05"

// UserResource is the public form of a gadget's creator.
type UserResource struct {
	ID    uint   `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

// Resource is the client-facing representation of a gadget.
type Resource struct {
	ID          uint         `json:"id"`
	Image       *string      `json:"image"`
	ImageURL    *string      `json:"image_url"`
	Name        string       `json:"name"`
	Description *string      `json:"description"`
	Price       string       `json:"price"`
	CreatedBy   UserResource `json:"createdBy"`
	CreatedAt   string       `json:"created_at"`
	UpdatedAt   string       `json:"updated_at"`
}

// NewResource maps a gadget record. store may be nil, in which case
// image_url is left null.
func NewResource(g *models.Gadget, store storage.Storage) Resource {
	r := Resource{
		ID:          g.ID,
		Name:        g.Name,
		Description: g.Description,
		Price:       g.Price.StringFixed(2),
		CreatedBy: UserResource{
			ID:    g.CreatedBy.ID,
			Name:  g.CreatedBy.Name,
			Email: g.CreatedBy.Email,
		},
		CreatedAt: g.CreatedAt.Format(TimeFormat),
		UpdatedAt: g.UpdatedAt.Format(TimeFormat),
	}
	if g.HasImage() {
		key := g.ImageKey()
		r.Image = &key
		if store != nil {
			u := store.URL(key)
			r.ImageURL = &u
		}
	}
	return r
}

// CollectionMeta describes the position of a page.
type CollectionMeta struct {
	CurrentPage int   `json:"current_page"`
	LastPage    int   `json:"last_page"`
	PerPage     int   `json:"per_page"`
	Total       int64 `json:"total"`
	From        *int  `json:"from"`
	To          *int  `json:"to"`
}

// CollectionLinks are absolute page URLs; prev and next are null at the ends.
type CollectionLinks struct {
	First string  `json:"first"`
	Last  string  `json:"last"`
	Prev  *string `json:"prev"`
	Next  *string `json:"next"`
}

// Collection is a paginated list of resources.
type Collection struct {
	Data  []Resource      `json:"data"`
	Meta  CollectionMeta  `json:"meta"`
	Links CollectionLinks `json:"links"`
}

// NewCollection maps a page. Links are built from path and query with the
// page parameter replaced.
func NewCollection(p *Page, store storage.Storage, path string, query url.Values) Collection {
	data := make([]Resource, 0, len(p.Items))
	for i := range p.Items {
		data = append(data, NewResource(&p.Items[i], store))
	}

	pageURL := func(n int) string {
		q := url.Values{}
		for k, v := range query {
			q[k] = v
		}
		q.Set("page", strconv.Itoa(n))
		return path + "?" + q.Encode()
	}

	c := Collection{
		Data: data,
		Meta: CollectionMeta{
			CurrentPage: p.CurrentPage,
			LastPage:    p.LastPage,
			PerPage:     p.PerPage,
			Total:       p.Total,
		},
		Links: CollectionLinks{
			First: pageURL(1),
			Last:  pageURL(p.LastPage),
		},
	}
	if len(p.Items) > 0 {
		from, to := p.From(), p.To()
		c.Meta.From, c.Meta.To = &from, &to
	}
	if p.CurrentPage > 1 {
		prev := pageURL(p.CurrentPage - 1)
		c.Links.Prev = &prev
	}
	if p.CurrentPage < p.LastPage {
		next := pageURL(p.CurrentPage + 1)
		c.Links.Next = &next
	}
	return c
}
