// Copyright 2017 Diffeo, Inc.
// This software is released under an MIT/X11 open source license.

package main

import (
	"strings"
	"sync"
	"testing"

	"github.com/diffeo/go-restlet/component"
	"github.com/diffeo/go-restlet/restlet"
	"github.com/jtacoma/uritemplates"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNumbers(t *testing.T) {
	var got []int
	for n := range Numbers(5) {
		got = append(got, n)
	}
	assert.Equal(t, []int{1, 2, 3, 4, 5}, got)
}

func TestExpand(t *testing.T) {
	tmpl, err := uritemplates.Parse("riap://component/things/{id}?n={n}")
	require.NoError(t, err)
	b := benchWork{Target: tmpl}

	first, err := b.Expand(1)
	require.NoError(t, err)
	second, err := b.Expand(2)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(first, "riap://component/things/"))
	assert.True(t, strings.HasSuffix(first, "?n=1"))
	assert.NotEqual(t, strings.TrimSuffix(first, "?n=1"), strings.TrimSuffix(second, "?n=2"))
}

func TestCallsCounted(t *testing.T) {
	tmpl, err := uritemplates.Parse("riap://component/things/{n}")
	require.NoError(t, err)
	c := component.New(nil)
	var lock sync.Mutex
	seen := map[string]bool{}
	c.Internal.MustAttach("/things/{n}", restlet.HandlerFunc(func(req *restlet.Request, resp *restlet.Response) {
		n := req.Attributes.GetString("n")
		lock.Lock()
		seen[n] = true
		lock.Unlock()
		if n == "3" {
			resp.SetStatus(restlet.StatusNotFound)
		}
	}))
	require.NoError(t, c.Start())
	defer c.Stop()

	b := benchWork{Component: c, Target: tmpl, Concurrency: 2}
	numbers := Numbers(4)
	b.Run(func() {
		for n := range numbers {
			b.Call(restlet.MethodGet, n, "")
		}
	})
	assert.Equal(t, uint64(4), b.calls)
	assert.Equal(t, uint64(1), b.failures)
	assert.Equal(t, map[string]bool{"1": true, "2": true, "3": true, "4": true}, seen)
}
