// Copyright 2017 Diffeo, Inc.
// This software is released under an MIT/X11 open source license.

package main

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/diffeo/go-restlet/converter"
	"github.com/diffeo/go-restlet/metadata"
	"github.com/diffeo/go-restlet/resource"
	"github.com/diffeo/go-restlet/restlet"
	"github.com/diffeo/go-restlet/routing"
	"github.com/satori/go.uuid"
	"github.com/sirupsen/logrus"
)

// Bookmark is the one resource type of the demo application.
type Bookmark struct {
	ID      string    `json:"id" codec:"id"`
	URL     string    `json:"url" codec:"url"`
	Title   string    `json:"title,omitempty" codec:"title,omitempty"`
	Tags    []string  `json:"tags,omitempty" codec:"tags,omitempty"`
	Created time.Time `json:"created" codec:"created"`
}

// Bookmarks keeps bookmarks in memory.  If Mirror is set, every
// change is also written to blob://<Mirror>/<id>.json through the
// context's client dispatcher, and bookmarks missing from memory are
// looked for there.
type Bookmarks struct {
	Context    *restlet.Context
	Converters *converter.Service
	Mirror     string

	lock      sync.Mutex
	bookmarks map[string]Bookmark
}

// NewBookmarks creates an empty bookmark store.
func NewBookmarks(ctx *restlet.Context, mirror string) *Bookmarks {
	return &Bookmarks{
		Context:    ctx,
		Converters: converter.NewService(),
		Mirror:     mirror,
		bookmarks:  make(map[string]Bookmark),
	}
}

// Count returns the number of bookmarks in memory.
func (b *Bookmarks) Count() int {
	b.lock.Lock()
	defer b.lock.Unlock()
	return len(b.bookmarks)
}

// List returns every bookmark, oldest first.
func (b *Bookmarks) List() []Bookmark {
	b.lock.Lock()
	result := make([]Bookmark, 0, len(b.bookmarks))
	for _, bm := range b.bookmarks {
		result = append(result, bm)
	}
	b.lock.Unlock()
	sort.Slice(result, func(i, j int) bool {
		if result[i].Created.Equal(result[j].Created) {
			return result[i].ID < result[j].ID
		}
		return result[i].Created.Before(result[j].Created)
	})
	return result
}

// Get returns one bookmark.
func (b *Bookmarks) Get(ctx context.Context, id string) (Bookmark, error) {
	b.lock.Lock()
	bm, ok := b.bookmarks[id]
	b.lock.Unlock()
	if ok {
		return bm, nil
	}
	if b.Mirror != "" {
		if err := b.load(ctx, id, &bm); err == nil {
			b.lock.Lock()
			b.bookmarks[id] = bm
			b.lock.Unlock()
			return bm, nil
		}
	}
	return Bookmark{}, restlet.NewStatusError(restlet.StatusNotFound, "no bookmark %q", id)
}

// Put stores a bookmark and returns true if it is new.
func (b *Bookmarks) Put(ctx context.Context, bm Bookmark) (bool, error) {
	if bm.URL == "" {
		return false, restlet.NewStatusError(restlet.StatusBadRequest, "bookmark needs a url")
	}
	if _, err := restlet.ParseReference(bm.URL); err != nil {
		return false, restlet.NewStatusError(restlet.StatusBadRequest, "bad url %q", bm.URL)
	}
	b.lock.Lock()
	old, exists := b.bookmarks[bm.ID]
	if exists {
		bm.Created = old.Created
	} else if bm.Created.IsZero() {
		bm.Created = b.Context.Time().Now().UTC()
	}
	b.bookmarks[bm.ID] = bm
	b.lock.Unlock()
	if b.Mirror != "" {
		if err := b.store(ctx, bm); err != nil {
			return !exists, err
		}
	}
	return !exists, nil
}

// Delete removes a bookmark.
func (b *Bookmarks) Delete(ctx context.Context, id string) error {
	b.lock.Lock()
	_, exists := b.bookmarks[id]
	delete(b.bookmarks, id)
	b.lock.Unlock()
	if !exists {
		return restlet.NewStatusError(restlet.StatusNotFound, "no bookmark %q", id)
	}
	if b.Mirror != "" {
		return b.mirrorCall(ctx, restlet.MethodDelete, id, nil).Err
	}
	return nil
}

func (b *Bookmarks) mirrorCall(ctx context.Context, method restlet.Method, id string, bm *Bookmark) *restlet.Response {
	ref := restlet.MustParseReference("blob://" + b.Mirror + "/" + id + ".json")
	req := restlet.NewRequestRef(method, ref)
	req.SetContext(ctx)
	resp := restlet.NewResponse(req)
	if bm != nil {
		entity, err := b.Converters.Encode(*bm, metadata.Variant{MediaType: metadata.ApplicationJSON})
		if err != nil {
			resp.SetError(err)
			return resp
		}
		req.Entity = entity
	}
	dispatcher := b.Context.ClientDispatcher
	if dispatcher == nil {
		resp.SetError(restlet.ConfigError{Err: routing.ErrNoDispatcher})
		return resp
	}
	dispatcher.Handle(req, resp)
	if resp.Err == nil && resp.Status.IsError() {
		resp.Err = restlet.StatusError{Status: resp.Status}
	}
	if resp.Err != nil {
		b.Context.Log().WithFields(logrus.Fields{
			"method": method,
			"ref":    ref.String(),
			"status": resp.Status.Code,
		}).WithError(resp.Err).Warn("Bookmark mirror call failed")
	}
	return resp
}

func (b *Bookmarks) store(ctx context.Context, bm Bookmark) error {
	return b.mirrorCall(ctx, restlet.MethodPut, bm.ID, &bm).Err
}

func (b *Bookmarks) load(ctx context.Context, id string, bm *Bookmark) error {
	resp := b.mirrorCall(ctx, restlet.MethodGet, id, nil)
	if resp.Err != nil {
		return resp.Err
	}
	if resp.Entity == nil {
		return restlet.NewStatusError(restlet.StatusNotFound, "no bookmark %q", id)
	}
	defer resp.Entity.Release()
	return b.Converters.ToObject(ctx, resp.Entity, bm)
}

// Router builds the routes of the bookmark application:
//
//     /bookmarks        GET the list, POST a new bookmark
//     /bookmarks/{id}   GET, PUT, DELETE one bookmark
func (b *Bookmarks) Router() *routing.Router {
	collection := &resource.Resource{
		Context:        b.Context,
		Converters:     b.Converters,
		Representation: Bookmark{},
		Get: func(c *resource.Call) (interface{}, error) {
			list := b.List()
			if tag := c.Query.Get("tag"); tag != "" {
				list = withTag(list, tag)
			}
			return list, nil
		},
		Post: func(c *resource.Call, in interface{}) (interface{}, error) {
			bm := in.(Bookmark)
			bm.ID = uuid.NewV4().String()
			bm.Created = time.Time{}
			if _, err := b.Put(c.Request.Context(), bm); err != nil {
				return nil, err
			}
			bm, _ = b.Get(c.Request.Context(), bm.ID)
			return resource.Created{Location: "bookmarks/" + bm.ID, Body: bm}, nil
		},
	}
	item := &resource.Resource{
		Context:        b.Context,
		Converters:     b.Converters,
		Representation: Bookmark{},
		Find: func(c *resource.Call) (interface{}, error) {
			if c.Request.Method == restlet.MethodPut {
				return nil, nil
			}
			return b.Get(c.Request.Context(), c.Attribute("id"))
		},
		Get: func(c *resource.Call) (interface{}, error) {
			return c.Target, nil
		},
		Put: func(c *resource.Call, in interface{}) (interface{}, error) {
			bm := in.(Bookmark)
			bm.ID = c.Attribute("id")
			created, err := b.Put(c.Request.Context(), bm)
			if err != nil {
				return nil, err
			}
			if created {
				return resource.Created{Location: bm.ID}, nil
			}
			return nil, nil
		},
		Delete: func(c *resource.Call) (interface{}, error) {
			return nil, b.Delete(c.Request.Context(), c.Attribute("id"))
		},
	}

	router := routing.NewRouter(b.Context)
	router.MustAttach("/bookmarks", collection)
	router.MustAttach("/bookmarks/{id}", item)
	return router
}

func withTag(list []Bookmark, tag string) []Bookmark {
	result := []Bookmark{}
	for _, bm := range list {
		for _, t := range bm.Tags {
			if t == tag {
				result = append(result, bm)
				break
			}
		}
	}
	return result
}
