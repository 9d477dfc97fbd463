// Copyright 2016-2017 Diffeo, Inc.
// This software is released under an MIT/X11 open source license.

// Package restletbench provides a load-generation tool for Restlet
// servers.  Targets are RFC 6570 URI templates; {id} expands to a
// fresh UUID for every call and {n} to the call number.
//
//     restletbench --target 'http://localhost:8182/bookmarks/{id}' put --count 1000
package main

import (
	"runtime"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/diffeo/go-restlet/component"
	"github.com/diffeo/go-restlet/metadata"
	"github.com/diffeo/go-restlet/representation"
	"github.com/diffeo/go-restlet/restlet"
	"github.com/jtacoma/uritemplates"
	"github.com/satori/go.uuid"
	"github.com/sirupsen/logrus"
	"github.com/urfave/cli"
)

type benchWork struct {
	Component   *component.Component
	Target      *uritemplates.UriTemplate
	Concurrency int

	calls, failures uint64
}

// Run runs runner in Concurrency goroutines and waits for them all.
func (bench *benchWork) Run(runner func()) {
	wg := sync.WaitGroup{}
	wg.Add(bench.Concurrency)
	for i := 0; i < bench.Concurrency; i++ {
		go func() {
			defer wg.Done()
			runner()
		}()
	}
	wg.Wait()
}

// Expand formats the target for call number n.
func (bench *benchWork) Expand(n int) (string, error) {
	return bench.Target.Expand(map[string]interface{}{
		"id": uuid.NewV4().String(),
		"n":  strconv.Itoa(n),
	})
}

// Call makes one call and counts it.
func (bench *benchWork) Call(method restlet.Method, n int, body string) *restlet.Response {
	atomic.AddUint64(&bench.calls, 1)
	target, err := bench.Expand(n)
	if err != nil {
		atomic.AddUint64(&bench.failures, 1)
		return nil
	}
	req, err := restlet.NewRequest(method, target)
	if err != nil {
		atomic.AddUint64(&bench.failures, 1)
		return nil
	}
	if body != "" {
		req.Entity = representation.NewString(body, metadata.ApplicationJSON)
	}
	resp := bench.Component.Call(req)
	if resp.Status.IsError() {
		atomic.AddUint64(&bench.failures, 1)
	}
	if resp.Entity != nil {
		_, _ = representation.ReadAll(req.Context(), resp.Entity)
	}
	return resp
}

// Numbers feeds 1..count to the returned channel, then closes it.
func Numbers(count int) <-chan int {
	numbers := make(chan int)
	go func() {
		for i := 1; i <= count; i++ {
			numbers <- i
		}
		close(numbers)
	}()
	return numbers
}

// Report logs the totals of a run.
func (bench *benchWork) Report(what string, start time.Time) {
	elapsed := time.Since(start)
	calls := atomic.LoadUint64(&bench.calls)
	fields := logrus.Fields{
		"calls":    calls,
		"failures": atomic.LoadUint64(&bench.failures),
		"elapsed":  elapsed,
	}
	if elapsed > 0 {
		fields["rate"] = float64(calls) / elapsed.Seconds()
	}
	logrus.WithFields(fields).Info(what)
}

var bench benchWork

// repeat runs a method count times across the workers.
func repeat(method restlet.Method, body string) func(c *cli.Context) {
	return func(c *cli.Context) {
		numbers := Numbers(c.Int("count"))
		start := time.Now()
		bench.Run(func() {
			for n := range numbers {
				bench.Call(method, n, body)
			}
		})
		bench.Report(method.String(), start)
	}
}

var countFlag = cli.IntFlag{
	Name:  "count",
	Value: 100,
	Usage: "number of calls to make",
}

var getCalls = cli.Command{
	Name:   "get",
	Usage:  "GET the target many times",
	Flags:  []cli.Flag{countFlag},
	Action: repeat(restlet.MethodGet, ""),
}

var putCalls = cli.Command{
	Name:   "put",
	Usage:  "PUT a small bookmark to the target many times",
	Flags:  []cli.Flag{countFlag},
	Action: repeat(restlet.MethodPut, `{"url":"http://example.com/","title":"bench"}`),
}

var deleteCalls = cli.Command{
	Name:   "delete",
	Usage:  "DELETE the target many times",
	Flags:  []cli.Flag{countFlag},
	Action: repeat(restlet.MethodDelete, ""),
}

var soak = cli.Command{
	Name:  "soak",
	Usage: "GET the target for a fixed time",
	Flags: []cli.Flag{
		cli.DurationFlag{
			Name:  "duration",
			Value: 10 * time.Second,
			Usage: "keep calling for this long",
		},
		cli.DurationFlag{
			Name:  "delay",
			Value: 0,
			Usage: "wait this long between calls",
		},
	},
	Action: func(c *cli.Context) {
		duration := c.Duration("duration")
		delay := c.Duration("delay")
		start := time.Now()
		var n int64
		bench.Run(func() {
			for time.Since(start) < duration {
				bench.Call(restlet.MethodGet, int(atomic.AddInt64(&n, 1)), "")
				time.Sleep(delay)
			}
		})
		bench.Report("soak", start)
	},
}

func main() {
	app := cli.NewApp()
	app.Usage = "benchmark a Restlet server"
	app.Flags = []cli.Flag{
		cli.StringFlag{
			Name:  "target",
			Value: "http://localhost:8182/bookmarks/{id}",
			Usage: "URI template of the resource to call",
		},
		cli.IntFlag{
			Name:  "concurrency",
			Value: runtime.NumCPU(),
			Usage: "run this many callers in parallel",
		},
	}
	app.Commands = []cli.Command{
		getCalls,
		putCalls,
		deleteCalls,
		soak,
	}
	app.Before = func(c *cli.Context) (err error) {
		bench.Target, err = uritemplates.Parse(c.String("target"))
		if err != nil {
			return
		}

		bench.Component = component.New(nil)
		bench.Component.AddClient(restlet.HTTP, restlet.HTTPS)
		bench.Component.AddClient(restlet.CBORRPC)
		err = bench.Component.Start()
		if err != nil {
			return
		}

		bench.Concurrency = c.Int("concurrency")

		return
	}
	app.After = func(c *cli.Context) error {
		if bench.Component == nil {
			return nil
		}
		return bench.Component.Stop()
	}
	app.RunAndExitOnError()
}
